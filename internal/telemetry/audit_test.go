package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"hms-sync/internal/mocks"
)

func TestEmitPublishesEnvelope(t *testing.T) {
	pub := new(mocks.PublisherMock)
	var got AuditEnvelope
	pub.On("Publish", mock.Anything, "audit.hms", mock.AnythingOfType("telemetry.AuditEnvelope")).
		Run(func(args mock.Arguments) { got = args.Get(2).(AuditEnvelope) }).
		Return(nil).Once()

	e := NewAuditEmitter(pub, "audit.hms", "hms-sync", "test")
	e.Emit(context.Background(), "info", ActionSessionOpen, "session opened", Actor{UserID: "doc-1", HospitalID: "h-1", RequestID: "req-1"})

	pub.AssertExpectations(t)
	require.Equal(t, 1, got.SchemaVersion)
	assert.Equal(t, "audit_log", got.EventType)
	assert.Equal(t, "hms-sync", got.Service)
	assert.Equal(t, "doc-1", got.UserID)
	assert.Equal(t, "h-1", got.HospitalID)
	assert.Equal(t, "req-1", got.RequestID)
	assert.Equal(t, AuditPayload{Level: "info", Action: ActionSessionOpen, Text: "session opened"}, got.Payload)
	assert.NotEmpty(t, got.OccurredAt)
}

func TestEmitSwallowsPublishErrors(t *testing.T) {
	pub := new(mocks.PublisherMock)
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("closed"))

	e := NewAuditEmitter(pub, "audit.hms", "hms-sync", "test")
	assert.NotPanics(t, func() {
		e.Emit(context.Background(), "error", ActionMessageFailed, "send failed", Actor{})
	})
}

func TestNilEmitterIsNoop(t *testing.T) {
	var e *AuditEmitter
	assert.NotPanics(t, func() {
		e.Emit(context.Background(), "info", ActionSessionClose, "bye", Actor{})
	})
}
