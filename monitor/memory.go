package monitor

import (
	"context"
	"sync"
)

// defaultMemoryCapacity is used when NewMemory is given a non-positive size.
const defaultMemoryCapacity = 256

// Memory retains the most recent records in a fixed-size ring. Once the ring
// is full the oldest record is overwritten. It backs tests and the admin
// surface; it is not a durable store.
type Memory struct {
	mu   sync.Mutex
	recs []Record
	next int
	full bool
}

// NewMemory creates a ring that retains the last capacity records.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}
	return &Memory{recs: make([]Record, capacity)}
}

// Record implements Monitor.
func (m *Memory) Record(_ context.Context, rec Record) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.recs[m.next] = rec
	m.next++
	if m.next == len(m.recs) {
		m.next = 0
		m.full = true
	}
}

// Snapshot returns the retained records, oldest first. The slice is a copy;
// Meta maps are shared with the emitters.
func (m *Memory) Snapshot() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.full {
		out := make([]Record, m.next)
		copy(out, m.recs[:m.next])
		return out
	}
	out := make([]Record, 0, len(m.recs))
	out = append(out, m.recs[m.next:]...)
	out = append(out, m.recs[:m.next]...)
	return out
}

// Len reports how many records are currently retained.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.full {
		return len(m.recs)
	}
	return m.next
}

// Reset discards all retained records.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.recs {
		m.recs[i] = Record{}
	}
	m.next = 0
	m.full = false
}

// Ensure Memory implements Monitor
var _ Monitor = (*Memory)(nil)
