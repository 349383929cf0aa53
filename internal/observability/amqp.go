package observability

import (
	"context"
	"sync"
)

// Publisher is the subset of the rabbitmq publisher used for ws lifecycle
// events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

type headeredEvent struct {
	Headers map[string]string `json:"headers,omitempty"`
	EventEnvelope
}

var (
	publisherMu      sync.RWMutex
	defaultPublisher Publisher
)

func SetPublisher(publisher Publisher) {
	publisherMu.Lock()
	defaultPublisher = publisher
	publisherMu.Unlock()
}

func PublishEvent(ctx context.Context, routingKey string, message EventEnvelope, headers map[string]string) error {
	publisherMu.RLock()
	publisher := defaultPublisher
	publisherMu.RUnlock()
	if publisher == nil {
		return nil
	}

	err := publisher.Publish(ctx, routingKey, headeredEvent{Headers: headers, EventEnvelope: message})
	if err != nil {
		IncAMQPPublishError()
	}
	return err
}

func (e headeredEvent) AMQPHeaders() map[string]string {
	out := make(map[string]string, len(e.Headers)+3)
	for k, v := range e.Headers {
		out[k] = v
	}
	out["event_name"] = e.EventName
	out["user_id"] = e.UserID
	out["hospital_id"] = e.HospitalID
	return out
}
