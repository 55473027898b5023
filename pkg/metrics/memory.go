package metrics

import "sync"

// MemoryObserver keeps every event; intended for tests and debugging.
type MemoryObserver struct {
	mu     sync.Mutex
	events []MetricsEvent
}

func NewMemoryObserver() *MemoryObserver {
	return &MemoryObserver{}
}

func (m *MemoryObserver) RecordEvent(ev MetricsEvent) {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
}

// Snapshot returns a copy of the recorded events.
func (m *MemoryObserver) Snapshot() []MetricsEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MetricsEvent, len(m.events))
	copy(out, m.events)
	return out
}

// Named returns recorded events with the given name.
func (m *MemoryObserver) Named(name string) []MetricsEvent {
	var out []MetricsEvent
	for _, ev := range m.Snapshot() {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}
