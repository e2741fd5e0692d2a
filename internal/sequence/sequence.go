// Package sequence issues record ids. Each collection gets a monotonic
// counter lazily seeded from the highest id currently stored, so the first
// id into an empty collection is 1 and concurrent creates never race for
// the same id.
package sequence

import "sync"

type Allocator struct {
	mu   sync.Mutex
	next map[string]int64
}

func New() *Allocator {
	return &Allocator{next: make(map[string]int64)}
}

// Next returns the next id for the named collection. seed is consulted once
// per collection, on first use, and must return the current maximum id
// (0 for an empty collection).
func (a *Allocator) Next(collection string, seed func() (int64, error)) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	n, ok := a.next[collection]
	if !ok {
		max, err := seed()
		if err != nil {
			return 0, err
		}
		n = max + 1
	}
	a.next[collection] = n + 1
	return n, nil
}

// Observe bumps the counter past an externally-supplied id so later
// allocations stay unique after a caller inserts with its own id.
func (a *Allocator) Observe(collection string, id int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n, ok := a.next[collection]; ok && id >= n {
		a.next[collection] = id + 1
	}
}
