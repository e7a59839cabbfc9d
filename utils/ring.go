package utils

import "sync"

// Ring is a bounded FIFO history. Pushing past capacity evicts the oldest entry.
// Safe for concurrent use.
type Ring[T any] struct {
	mu    sync.RWMutex
	items []T
	start int
	size  int
}

// NewRing returns a ring holding at most capacity entries (minimum 1).
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{items: make([]T, capacity)}
}

// Push appends v, evicting the oldest entry when full.
func (r *Ring[T]) Push(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := len(r.items)
	if r.size < c {
		r.items[(r.start+r.size)%c] = v
		r.size++
		return
	}
	r.items[r.start] = v
	r.start = (r.start + 1) % c
}

// Last returns up to n most recent entries in chronological order.
// n <= 0 returns everything.
func (r *Ring[T]) Last(n int) []T {
	return r.Filter(n, nil)
}

// Filter returns up to n most recent entries accepted by keep, oldest first.
// A nil keep accepts everything.
func (r *Ring[T]) Filter(n int, keep func(T) bool) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := len(r.items)
	var out []T
	for i := r.size - 1; i >= 0; i-- {
		v := r.items[(r.start+i)%c]
		if keep != nil && !keep(v) {
			continue
		}
		out = append(out, v)
		if n > 0 && len(out) == n {
			break
		}
	}
	// collected newest-first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Len returns the number of stored entries.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int { return len(r.items) }

// Reset drops all entries.
func (r *Ring[T]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.items)
	r.start, r.size = 0, 0
}
