package journal

import (
	"context"
	"sync"
)

// MemoryJournal keeps events in memory.
type MemoryJournal struct {
	mu     sync.RWMutex
	events []Event
}

var _ Journal = (*MemoryJournal)(nil)

// NewMemoryJournal creates an empty in-memory journal.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{}
}

// Append implements Journal.
func (m *MemoryJournal) Append(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// Events returns a copy of all events in append order.
func (m *MemoryJournal) Events() []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// ByKind returns the events of one kind in append order.
func (m *MemoryJournal) ByKind(kind Kind) []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Event
	for _, e := range m.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
