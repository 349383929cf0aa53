// Package rabbitmq publishes gateway audit and connection events to a topic
// exchange.
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// AppID identifies this gateway as the producer of every message.
const AppID = "hms-sync"

// ErrClosed is returned once the broker connection has gone away.
var ErrClosed = errors.New("rabbitmq connection closed")

// Publisher publishes audit and websocket lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// Headered events expose correlation values that are copied into the AMQP
// message headers so consumers can route without decoding the body.
type Headered interface {
	AMQPHeaders() map[string]string
}

// NewPublisher connects to the broker and declares exchange. Without a URL,
// or when the broker cannot be reached, events are logged and dropped.
func NewPublisher(amqpURL, exchange string) Publisher {
	if amqpURL == "" {
		return newNoop("empty amqp url")
	}
	conn, ch, err := dial(amqpURL, exchange)
	if err != nil {
		return newNoop(err.Error())
	}

	p := &amqpPublisher{conn: conn, ch: ch, exchange: exchange}
	go p.watch(conn.NotifyClose(make(chan *amqp.Error, 1)))
	zap.S().Infow("rabbitmq connected", "exchange", exchange)
	return p
}

func dial(amqpURL, exchange string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	// durable topic exchange, not auto-deleted
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return conn, ch, nil
}

type amqpPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	closed   bool
}

func (p *amqpPublisher) watch(closes <-chan *amqp.Error) {
	if err, ok := <-closes; ok && err != nil {
		zap.S().Errorw("rabbitmq connection lost", "code", err.Code, "reason", err.Reason)
	}
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event for %s: %w", routingKey, err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		AppId:        AppID,
		Timestamp:    time.Now().UTC(),
		Headers:      headersOf(event),
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if err := p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg); err != nil {
		zap.S().Warnw("rabbitmq publish failed", "routing_key", routingKey, "error", err)
		return err
	}
	return nil
}

func (p *amqpPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	_ = p.ch.Close()
	return p.conn.Close()
}

func headersOf(event any) amqp.Table {
	h, ok := event.(Headered)
	if !ok {
		return nil
	}
	out := amqp.Table{}
	for k, v := range h.AMQPHeaders() {
		if v != "" {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

type noopPublisher struct {
	reason string
}

func newNoop(reason string) noopPublisher {
	zap.S().Warnw("rabbitmq disabled, events are logged only", "reason", reason)
	return noopPublisher{reason: reason}
}

func (noopPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	fields := []interface{}{"routing_key", routingKey}
	for k, v := range headersOf(event) {
		fields = append(fields, k, v)
	}
	zap.S().Debugw("rabbitmq noop publish", fields...)
	return nil
}

func (noopPublisher) Close() error {
	return nil
}

// PublisherMode reports the publisher mode for logging.
func PublisherMode(p Publisher) string {
	switch p.(type) {
	case *amqpPublisher:
		return "amqp"
	case noopPublisher:
		return "noop"
	default:
		return "unknown"
	}
}

// PublisherNoopReason explains why events are not reaching the broker.
func PublisherNoopReason(p Publisher) string {
	if n, ok := p.(noopPublisher); ok {
		return n.reason
	}
	return ""
}
