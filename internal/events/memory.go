package events

import (
	"context"
	"sync"
)

// MemorySink keeps records in memory. It backs tests and the dry-run mode of
// the node when no database is configured.
type MemorySink struct {
	mu      sync.Mutex
	records []Record
	// Err, if set, is returned by every Append and nothing is stored.
	Err error
}

// Append stores r after validating it.
func (m *MemorySink) Append(_ context.Context, r Record) error {
	if err := Validate(r); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.records = append(m.records, r)
	return nil
}

// Records returns a copy of everything appended so far, oldest first.
func (m *MemorySink) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}

// Count returns how many records of the given kind were appended.
func (m *MemorySink) Count(k Kind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.records {
		if r.Kind() == k {
			n++
		}
	}
	return n
}
