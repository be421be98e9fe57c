package tree

import "sync/atomic"

var waiterSeq uint64

// Waiter is a client-side wait record. Containers hold these in a weak
// fashion: the tree never follows a Waiter back to the client session
// that created it, and every Waiter is pruned from its container's waiter
// set once the container reaches Destroyed (see Tree.Destroy), so nothing
// keeps a destroyed container's waiters map alive. Go has no native weak
// pointer, so "weak" here means "lives in an id-indexed map that is
// explicitly cleared at the one point the referent's lifetime ends."
type Waiter struct {
	ID      uint64
	Notify  chan Notification
	closed  bool
}

// Notification is what a waiter receives when the container it watches
// reaches a workload-terminal state, or when its own timeout elapses.
type Notification struct {
	Container string
	State     State
	TimedOut  bool
}

// NewWaiter allocates a Waiter with a buffered channel so delivery never
// blocks the tree/event-queue goroutine that wakes it.
func NewWaiter() *Waiter {
	return &Waiter{
		ID:     atomic.AddUint64(&waiterSeq, 1),
		Notify: make(chan Notification, 1),
	}
}

// AddWaiter registers w against c.
func (t *Tree) AddWaiter(c *Container, w *Waiter) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c.waiters[w.ID] = w
}

// RemoveWaiter deregisters w, used when a client disconnects or its
// WaitTimeout event fires.
func (t *Tree) RemoveWaiter(c *Container, id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(c.waiters, id)
}

// wakeWaiters delivers a terminal-state notification to every waiter on c
// and clears the set; callers must hold t.mu.
func (t *Tree) wakeWaiters(c *Container) {
	for id, w := range c.waiters {
		if w.closed {
			continue
		}
		select {
		case w.Notify <- Notification{Container: c.Name, State: c.State}:
		default:
		}
		delete(c.waiters, id)
	}
}

// NotifyTimeout delivers a TimedOut notification to the single waiter id
// on c, if it is still registered, and removes it. Used by the daemon's
// WaitTimeout event handler.
func (t *Tree) NotifyTimeout(c *Container, id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := c.waiters[id]
	if !ok || w.closed {
		return
	}
	select {
	case w.Notify <- Notification{Container: c.Name, State: c.State, TimedOut: true}:
	default:
	}
	delete(c.waiters, id)
}

// pruneWaiters discards every waiter on c without notifying them, used
// when c reaches Destroyed so no reference into this container's waiter
// map survives the container itself.
func pruneWaiters(c *Container) {
	for id, w := range c.waiters {
		w.closed = true
		delete(c.waiters, id)
	}
}
