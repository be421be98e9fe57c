package events

import (
	"sync"
	"time"

	"github.com/google/btree"

	"github.com/bowlofstew/porto/pkg/clock"
)

func msToDuration(ms int64) time.Duration { return time.Duration(ms) * time.Millisecond }

// item is the btree.Item stored in the queue's ordered index: ordered by
// DueMs first, then by a monotonic sequence number so two events due at
// the same millisecond still have a total order (btree requires Less to be
// a strict weak ordering) and so a later Cancel(id) can find and remove a
// specific pending event in O(log n) instead of a linear scan.
type item struct {
	due int64
	seq uint64
	ev  Event
}

func (a *item) Less(than btree.Item) bool {
	b := than.(*item)
	if a.due != b.due {
		return a.due < b.due
	}
	return a.seq < b.seq
}

// Queue is the due_ms-ordered priority queue from spec.md §4.5. Workers
// call Pop, which blocks on the queue's condition variable the standard
// way: re-check the predicate in a loop, never assume a single wakeup
// means the predicate held.
type Queue struct {
	mu    sync.Mutex
	cond  *sync.Cond
	tree  *btree.BTree
	byID  map[uint64]*item
	seq   uint64
	clock clock.Clock
	closed bool
}

func New(clk clock.Clock) *Queue {
	q := &Queue{
		tree:  btree.New(32),
		byID:  make(map[uint64]*item),
		clock: clk,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push schedules ev for dispatch at ev.DueMs and returns an id usable with
// Cancel.
func (q *Queue) Push(ev Event) uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	it := &item{due: ev.DueMs, seq: q.seq, ev: ev}
	q.tree.ReplaceOrInsert(it)
	q.byID[it.seq] = it
	q.cond.Broadcast()
	return it.seq
}

// Cancel removes a still-pending event. It returns false if the event has
// already been popped or never existed -- the explicit-cancellation path;
// implicit cancellation (destroyed container) is instead handled by the
// dispatcher's Resolver check at pop time.
func (q *Queue) Cancel(id uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	it, ok := q.byID[id]
	if !ok {
		return false
	}
	q.tree.Delete(it)
	delete(q.byID, id)
	return true
}

// Close unblocks any goroutine waiting in Pop so worker goroutines can
// exit during shutdown.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// Pop blocks until the earliest-due event's due time has arrived, then
// removes and returns it along with its id (for re-Push on a handler
// requesting requeue). It returns ok=false only once the queue has been
// Closed and is empty.
func (q *Queue) Pop() (id uint64, ev Event, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if q.closed && q.tree.Len() == 0 {
			return 0, Event{}, false
		}
		min := q.tree.Min()
		if min == nil {
			q.cond.Wait()
			continue
		}
		top := min.(*item)
		now := q.clock.NowMs()
		if top.due > now {
			q.waitFor(top.due - now)
			continue
		}
		q.tree.Delete(top)
		delete(q.byID, top.seq)
		return top.seq, top.ev, true
	}
}

// waitFor releases q.mu, blocks for at most d (or until Broadcast), then
// reacquires q.mu. It is built on the same condvar rather than a plain
// timer so a Push of an earlier-due event or a Close wakes it immediately.
func (q *Queue) waitFor(d int64) {
	if d <= 0 {
		return
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-q.clock.After(msToDuration(d)):
		case <-done:
		}
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	}()
	q.cond.Wait()
	close(done)
}

// Len reports the number of pending events, for metrics.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tree.Len()
}
