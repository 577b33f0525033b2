package provider

import (
	"context"
	"sync"

	"smartspray.io/notifier/internal/notification"
)

// Delivery is one message captured by MockSender.
type Delivery struct {
	Address string
	Content notification.Content
}

// MockSender captures deliveries in memory. Used by handler tests and the
// local demo profile.
type MockSender struct {
	mu         sync.Mutex
	deliveries []Delivery
	err        error
}

// NewMockSender creates a MockSender.
func NewMockSender() *MockSender {
	return &MockSender{}
}

// FailWith makes subsequent sends return err (nil restores success).
func (m *MockSender) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Send implements notification.Sender.
func (m *MockSender) Send(_ context.Context, address string, content notification.Content) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.deliveries = append(m.deliveries, Delivery{Address: address, Content: content})
	return nil
}

// Deliveries returns a copy of captured deliveries.
func (m *MockSender) Deliveries() []Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Delivery(nil), m.deliveries...)
}

// Reset clears captured deliveries and any configured failure.
func (m *MockSender) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveries = nil
	m.err = nil
}
