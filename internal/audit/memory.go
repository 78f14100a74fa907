package audit

import (
	"context"
	"sync"
)

// Memory keeps everything it receives, for inspection in tests.
type Memory struct {
	mu      sync.Mutex
	records []Record
	events  []DomainEvent
}

// NewMemory creates an empty in-memory emitter.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Audit(_ context.Context, rec Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
}

func (m *Memory) Publish(_ context.Context, ev DomainEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

// Records returns a copy of the received audit records.
func (m *Memory) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.records...)
}

// Events returns a copy of the received domain events.
func (m *Memory) Events() []DomainEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]DomainEvent(nil), m.events...)
}

// EventsOfType returns the received domain events of the given type.
func (m *Memory) EventsOfType(typ string) []DomainEvent {
	var out []DomainEvent
	for _, ev := range m.Events() {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}
