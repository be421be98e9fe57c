package session

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiters applies a per-client-container rate limit to request
// submission, grounded on the daemon-wide worker-pool sizing concern in
// spec.md §5: a single noisy client should not starve the worker pool for
// every other session.
type Limiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func NewLimiters(rps float64, burst int) *Limiters {
	return &Limiters{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (l *Limiters) get(clientContainer string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[clientContainer]
	if !ok {
		lim = rate.NewLimiter(l.rps, l.burst)
		l.limiters[clientContainer] = lim
	}
	return lim
}

// Wait blocks until clientContainer's limiter admits one more request, or
// ctx is cancelled.
func (l *Limiters) Wait(ctx context.Context, clientContainer string) error {
	return l.get(clientContainer).Wait(ctx)
}

// Forget drops a client's limiter once its container is destroyed, so
// Limiters does not grow unboundedly over a long daemon lifetime.
func (l *Limiters) Forget(clientContainer string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.limiters, clientContainer)
}
