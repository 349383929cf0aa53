package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
)

// PublisherMock stubs the event bus and keeps every published event per
// routing key.
type PublisherMock struct {
	mock.Mock

	mu        sync.Mutex
	published map[string][]any
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	m.mu.Lock()
	if m.published == nil {
		m.published = make(map[string][]any)
	}
	m.published[routingKey] = append(m.published[routingKey], event)
	m.mu.Unlock()

	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

// Published returns the events sent to routingKey, oldest first.
func (m *PublisherMock) Published(routingKey string) []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]any(nil), m.published[routingKey]...)
}
