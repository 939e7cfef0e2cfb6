package resilience

import (
	"sync"
	"time"
)

// LastGood remembers the most recent successful result per operation key so
// it can be served as a stale-but-usable fallback while the dependency is
// down. Entries expire after the store's TTL; expired entries are removed
// lazily on read.
type LastGood[R any] struct {
	ttl time.Duration

	mu      sync.RWMutex
	entries map[string]*lastGoodEntry[R]
}

type lastGoodEntry[R any] struct {
	value    R
	storedAt time.Time
}

// NewLastGood creates a last-good store. A non-positive TTL keeps entries
// until they are overwritten or forgotten.
func NewLastGood[R any](ttl time.Duration) *LastGood[R] {
	return &LastGood[R]{
		ttl:     ttl,
		entries: make(map[string]*lastGoodEntry[R]),
	}
}

// Put stores the latest successful result for key.
func (l *LastGood[R]) Put(key string, value R) {
	l.mu.Lock()
	l.entries[key] = &lastGoodEntry[R]{value: value, storedAt: time.Now()}
	l.mu.Unlock()
}

// Get returns the remembered result for key. Returns false on miss or expiry.
func (l *LastGood[R]) Get(key string) (R, bool) {
	l.mu.RLock()
	entry, ok := l.entries[key]
	l.mu.RUnlock()

	var zero R
	if !ok {
		return zero, false
	}

	if l.ttl > 0 && time.Since(entry.storedAt) > l.ttl {
		// Expired - clean up lazily
		l.mu.Lock()
		delete(l.entries, key)
		l.mu.Unlock()
		return zero, false
	}

	return entry.value, true
}

// Forget removes the remembered result for key. Idempotent.
func (l *LastGood[R]) Forget(key string) {
	l.mu.Lock()
	delete(l.entries, key)
	l.mu.Unlock()
}

// Len returns the number of remembered results, including not yet
// collected expired ones.
func (l *LastGood[R]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
