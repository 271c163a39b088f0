// Package cache provides the TTL cache domains backing the aggregation
// pipeline. Each domain expires independently; a read past its TTL is a
// miss and a successful refetch overwrites the previous entry wholesale.
package cache

import (
	"strings"
	"sync"
	"time"
)

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// Domain is a keyed cache whose entries expire after a fixed TTL.
// A TTL of zero or less means entries never expire and are only removed by
// explicit invalidation.
type Domain[V any] struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]entry[V]
	now     func() time.Time
}

// NewDomain creates an empty domain with the given TTL.
func NewDomain[V any](ttl time.Duration) *Domain[V] {
	return &Domain[V]{
		ttl:     ttl,
		entries: make(map[string]entry[V]),
		now:     time.Now,
	}
}

// Get returns the cached value for key. An entry older than the domain TTL
// is a miss.
func (d *Domain[V]) Get(key string) (V, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if d.ttl > 0 && d.now().Sub(e.storedAt) >= d.ttl {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key, unconditionally overwriting any previous
// entry and resetting its timestamp.
func (d *Domain[V]) Set(key string, value V) {
	d.mu.Lock()
	d.entries[key] = entry[V]{value: value, storedAt: d.now()}
	d.mu.Unlock()
}

// Delete removes one entry.
func (d *Domain[V]) Delete(key string) {
	d.mu.Lock()
	delete(d.entries, key)
	d.mu.Unlock()
}

// DeletePrefix removes every entry whose key starts with prefix.
func (d *Domain[V]) DeletePrefix(prefix string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for key := range d.entries {
		if strings.HasPrefix(key, prefix) {
			delete(d.entries, key)
			n++
		}
	}
	return n
}

// Flush removes all entries.
func (d *Domain[V]) Flush() {
	d.mu.Lock()
	d.entries = make(map[string]entry[V])
	d.mu.Unlock()
}

// Len returns the number of stored entries, expired ones included.
func (d *Domain[V]) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}
