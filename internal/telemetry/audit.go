package telemetry

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// Audit actions recorded for session activity.
const (
	ActionSessionOpen      = "session_open"
	ActionSessionClose     = "session_close"
	ActionMessageFailed    = "message_send_failed"
	ActionNotificationRead = "notification_read"
	ActionNotificationSent = "notification_sent"
)

type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	UserID        string       `json:"user_id,omitempty"`
	HospitalID    string       `json:"hospital_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level  string `json:"level"`
	Action string `json:"action"`
	Text   string `json:"text"`
}

// Actor identifies who an audit entry is about.
type Actor struct {
	UserID     string
	HospitalID string
	RequestID  string
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
	}
}

// Emit publishes one audit entry. A nil emitter drops it.
func (e *AuditEmitter) Emit(ctx context.Context, level, action, text string, actor Actor) {
	if e == nil || e.publisher == nil {
		return
	}

	zap.S().Debugw("audit emit", "level", level, "action", action, "request_id", actor.RequestID, "user_id", actor.UserID)
	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     actor.RequestID,
		UserID:        actor.UserID,
		HospitalID:    actor.HospitalID,
		Payload: AuditPayload{
			Level:  level,
			Action: action,
			Text:   text,
		},
	}

	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		zap.S().Warnw("audit publish failed", "action", action, "error", err)
	}
}

// AMQPHeaders exposes the routing-relevant fields of the envelope.
func (e AuditEnvelope) AMQPHeaders() map[string]string {
	return map[string]string{
		"x-request-id": e.RequestID,
		"user_id":      e.UserID,
		"hospital_id":  e.HospitalID,
		"action":       e.Payload.Action,
	}
}
