package cache

import "sync"

// SeenRing remembers the last capacity keys shown to it, in arrival
// order. Recording one more evicts the oldest, so membership always means
// "among the last N records". Re-seeing a key does not refresh its slot.
// Safe for concurrent use.
type SeenRing[K comparable] struct {
	mu   sync.Mutex
	buf  []K
	set  map[K]struct{}
	head int
	full bool
}

// NewSeenRing creates a ring holding up to capacity keys.
func NewSeenRing[K comparable](capacity int) *SeenRing[K] {
	if capacity <= 0 {
		capacity = 1
	}
	return &SeenRing[K]{
		buf: make([]K, capacity),
		set: make(map[K]struct{}, capacity),
	}
}

// Seen reports whether key is among the remembered records, recording it
// when it was not.
func (r *SeenRing[K]) Seen(key K) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.set[key]; ok {
		return true
	}
	if r.full {
		delete(r.set, r.buf[r.head])
	}
	r.buf[r.head] = key
	r.set[key] = struct{}{}
	r.head++
	if r.head == len(r.buf) {
		r.head = 0
		r.full = true
	}
	return false
}

// Len returns how many keys the ring currently remembers.
func (r *SeenRing[K]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.set)
}
