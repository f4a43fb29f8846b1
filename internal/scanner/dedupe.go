package scanner

import (
	"sync"
	"time"
)

// dedupeSet is a TTL set keyed by transaction signature. The upstream
// subscription can deliver the same transaction more than once; entries
// absorb duplicates for the TTL window and are pruned lazily.
type dedupeSet struct {
	mu  sync.Mutex
	ttl time.Duration
	set map[string]time.Time
}

func newDedupeSet(ttl time.Duration) *dedupeSet {
	return &dedupeSet{
		ttl: ttl,
		set: make(map[string]time.Time),
	}
}

// Seen records key and reports whether it was already present within the TTL
// window.
func (d *dedupeSet) Seen(key string) bool {
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if at, ok := d.set[key]; ok && now.Sub(at) < d.ttl {
		return true
	}
	d.set[key] = now

	// Lazy pruning keeps the set bounded without a background goroutine.
	if len(d.set) > 4096 {
		for k, at := range d.set {
			if now.Sub(at) >= d.ttl {
				delete(d.set, k)
			}
		}
	}
	return false
}

// Restore seeds the set from recovered state.
func (d *dedupeSet) Restore(keys []string) {
	now := time.Now()
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, k := range keys {
		d.set[k] = now
	}
}

// Keys returns the currently tracked signatures for snapshotting.
func (d *dedupeSet) Keys() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	keys := make([]string, 0, len(d.set))
	for k := range d.set {
		keys = append(keys, k)
	}
	return keys
}

// Len returns the current number of tracked signatures.
func (d *dedupeSet) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.set)
}
