package notify

import (
	"context"
	"sync"
)

// MockNotifier implements Notifier for testing. It records every event and
// fails with Err when set.
type MockNotifier struct {
	mu     sync.Mutex
	name   string
	events []Event
	Err    error
}

// NewMockNotifier creates a MockNotifier reporting name.
func NewMockNotifier(name string) *MockNotifier {
	return &MockNotifier{name: name}
}

// Name implements Notifier.
func (m *MockNotifier) Name() string { return m.name }

// Notify records ev.
func (m *MockNotifier) Notify(ctx context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return m.Err
}

// Events returns a copy of every recorded event.
func (m *MockNotifier) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}
