package tree

import (
	"sync"

	"github.com/bowlofstew/porto/pkg/perr"
)

// IDPool allocates small integer container ids from a bitmap, 1..max, with
// reuse only after a container's persistent record has been removed
// (spec.md invariant 6). It is a plain bitset rather than a free-list so
// that restore-time reservation of specific ids (from on-disk records) is a
// single bit-set rather than a list scan.
type IDPool struct {
	mu     sync.Mutex
	max    int
	used   []bool // index 0 unused, ids are 1..max
	cursor int
}

// NewIDPool creates a pool allowing ids 1..max.
func NewIDPool(max int) *IDPool {
	return &IDPool{max: max, used: make([]bool, max+1), cursor: 1}
}

// Alloc returns the first free id at or after a rotating cursor (wrapping
// from max back to 1), or ResourceNotAvailable if the pool is exhausted.
func (p *IDPool) Alloc() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := 0; i < p.max; i++ {
		id := p.cursor
		p.cursor++
		if p.cursor > p.max {
			p.cursor = 1
		}
		if !p.used[id] {
			p.used[id] = true
			return id, nil
		}
	}
	return 0, perr.New(perr.ResourceNotAvailable, "id pool exhausted")
}

// Reserve marks id as used without going through the cursor scan, for
// restoring a container whose persisted record already names its id.
func (p *IDPool) Reserve(id int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id <= 0 || id > p.max {
		return perr.New(perr.InvalidValue, "id %d out of range", id)
	}
	if p.used[id] {
		return perr.New(perr.InvalidState, "id %d already in use", id)
	}
	p.used[id] = true
	return nil
}

// Release returns id to the pool. Per invariant 6, callers must only do
// this once the container has reached Destroyed and its record is removed.
func (p *IDPool) Release(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id > 0 && id <= p.max {
		p.used[id] = false
	}
}
