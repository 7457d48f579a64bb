// Package idpool implements a bounded allocator for compact integer ids.
//
// Pools hand out ids from a fixed [min, max] range and recycle released
// ids in FIFO order. Exhaustion is a normal outcome, not an error: the
// caller is expected to fall back to software processing when no id is
// available.
package idpool

import "sync"

// Pool allocates integer ids from a fixed range.
type Pool struct {
	mu    sync.Mutex
	min   uint32
	max   uint32
	next  uint32   // next never-used id, valid while next <= max
	freed []uint32 // released ids, reused before fresh ones
}

// New creates a pool covering the inclusive range [min, max].
func New(min, max uint32) *Pool {
	return &Pool{min: min, max: max, next: min}
}

// Alloc returns an unused id, or false when the pool is exhausted.
func (p *Pool) Alloc() (uint32, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := len(p.freed); n > 0 {
		id := p.freed[0]
		p.freed = p.freed[1:]
		return id, true
	}
	if p.next > p.max {
		return 0, false
	}
	id := p.next
	p.next++
	return id, true
}

// Free returns an id to the pool. Freeing an id that was never allocated
// corrupts the pool; callers own that invariant.
func (p *Pool) Free(id uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.freed = append(p.freed, id)
}

// InUse reports how many ids are currently allocated.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return int(p.next-p.min) - len(p.freed)
}
