package batch

import "sync"

// Aggregator is a running total shared by the workers of one batch call.
type Aggregator struct {
	mu    sync.Mutex
	total uint64
}

// Add adds delta to the running total.
func (a *Aggregator) Add(delta uint64) {
	a.mu.Lock()
	a.total += delta
	a.mu.Unlock()
}

// Total returns the current total.
func (a *Aggregator) Total() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.total
}
