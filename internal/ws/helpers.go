package ws

import (
	"context"
	"time"

	"github.com/google/uuid"

	"hms-sync/internal/observability"
)

func newConnID() string {
	return uuid.NewString()
}

const (
	wsKind       = "session"
	wsRoutingKey = "ws_events.sessions"
)

// publishLifecycle records a connection event on the bus and in metrics.
func publishLifecycle(ctx context.Context, event string, info ConnInfo, reason string) {
	var durationMS int64
	if event != "ws_connect" {
		durationMS = time.Since(info.ConnectedAt).Milliseconds()
	}
	observability.IncWSEvent(wsKind, event)
	_ = observability.PublishEvent(ctx, wsRoutingKey, observability.EventEnvelope{
		EventType:  "ws_events",
		EventName:  event,
		UserID:     info.UserID,
		HospitalID: info.HospitalID,
		Payload:    wsPayload(event, info, durationMS, reason),
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}

func wsPayload(event string, info ConnInfo, durationMS int64, reason string) map[string]interface{} {
	return map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":        wsKind,
			"resource_id": info.UserID,
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": durationMS,
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":     info.UserID,
			"hospital_id": info.HospitalID,
			"device_id":   info.DeviceID,
			"ip":          info.IP,
		},
	}
}
