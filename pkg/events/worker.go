package events

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/bowlofstew/porto/pkg/clock"
	"github.com/bowlofstew/porto/pkg/perr"
	"github.com/bowlofstew/porto/pkg/plog"
)

var log = plog.For("events")

// Handler processes one event. Returning a *perr.Error of kind perr.Busy
// tells the pool the required per-container write lock could not be
// acquired immediately; the event is re-queued with a short backoff
// instead of being dropped, per spec.md §4.5.
type Handler func(ctx context.Context, ev Event) error

// Resolver reports whether name still identifies a live container. The
// pool calls it before dispatch, not the Handler, so the implicit
// cancellation rule (a destroyed container's weak reference has expired)
// applies uniformly across every event Kind without each Handler
// re-implementing the check.
type Resolver func(name string) bool

// Pool is the N-worker dispatch loop from spec.md §4.5.
type Pool struct {
	queue    *Queue
	handlers map[Kind]Handler
	resolve  Resolver
	clock    clock.Clock
	requeueBackoffMs int64
}

// NewPool wires a worker pool over queue. handlers must cover every Kind
// the daemon actually pushes; an event whose Kind has no handler is
// logged and dropped.
func NewPool(queue *Queue, clk clock.Clock, resolve Resolver, handlers map[Kind]Handler) *Pool {
	return &Pool{
		queue:            queue,
		handlers:         handlers,
		resolve:          resolve,
		clock:            clk,
		requeueBackoffMs: 50,
	}
}

// Run starts n worker goroutines and blocks until ctx is cancelled; it then
// closes the queue and returns once all workers have exited.
func (p *Pool) Run(ctx context.Context, n int) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			p.workerLoop(ctx)
			return nil
		})
	}
	<-ctx.Done()
	p.queue.Close()
	return g.Wait()
}

func (p *Pool) workerLoop(ctx context.Context) {
	for {
		id, ev, ok := p.queue.Pop()
		if !ok {
			return
		}
		if ev.ContainerName != "" && p.resolve != nil && !p.resolve(ev.ContainerName) {
			// Implicit cancellation: the container's weak reference has
			// expired (it reached Destroyed and was removed from the
			// tree's name->container mapping).
			continue
		}
		p.dispatch(ctx, id, ev)
	}
}

func (p *Pool) dispatch(ctx context.Context, id uint64, ev Event) {
	h, ok := p.handlers[ev.Kind]
	if !ok {
		log.Warnf("no handler registered for event kind %s", ev.Kind)
		return
	}
	err := h(ctx, ev)
	if err == nil {
		return
	}
	if perr.Is(err, perr.Busy) {
		ev.DueMs = p.clock.NowMs() + p.requeueBackoffMs
		p.queue.Push(ev)
		return
	}
	log.WithError(err).Warnf("event %s on %s failed", ev.Kind, ev.ContainerName)
}
