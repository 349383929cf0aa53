// Package socket owns the single upstream socket connection of a session.
package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"hms-sync/internal/models"
	"hms-sync/internal/observability"
)

// ErrNotConnected is returned by Emit when no connection is open.
var ErrNotConnected = errors.New("socket not connected")

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 512 * 1024
)

// Handler receives the data of one inbound event. ctx is cancelled when the
// connection that delivered the event goes away.
type Handler func(ctx context.Context, data json.RawMessage)

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Manager is a connection manager for one staff session. Handlers are
// registered once and survive reconnects.
type Manager struct {
	url    string
	token  string
	dialer *websocket.Dialer

	mu       sync.Mutex
	conn     *websocket.Conn
	cancel   context.CancelFunc
	identity models.Identity

	writeMu sync.Mutex

	handlersMu sync.RWMutex
	handlers   map[string][]Handler
}

// NewManager builds a manager for the backend socket at url.
func NewManager(url, token string) *Manager {
	return &Manager{
		url:      url,
		token:    token,
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		handlers: make(map[string][]Handler),
	}
}

// On registers h for event. Lifecycle events are "connect" and "disconnect".
func (m *Manager) On(event string, h Handler) {
	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()
	m.handlers[event] = append(m.handlers[event], h)
}

// Connect opens the connection for id and registers the user. Connecting
// again for the same identity is a no-op; a different identity replaces the
// previous connection.
func (m *Manager) Connect(ctx context.Context, id models.Identity) error {
	m.mu.Lock()
	if m.conn != nil && m.identity == id {
		m.mu.Unlock()
		return nil
	}
	replaced := m.detachLocked()
	m.mu.Unlock()
	if replaced {
		m.dispatch(context.Background(), models.EventDisconnect, reasonPayload("replaced"))
	}

	header := http.Header{}
	if m.token != "" {
		header.Set("Authorization", "Bearer "+m.token)
		header.Set("Cookie", (&http.Cookie{Name: "access_token", Value: m.token}).String())
	}

	conn, _, err := m.dialer.DialContext(ctx, m.url, header)
	if err != nil {
		return fmt.Errorf("dial backend socket: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)

	connCtx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.conn = conn
	m.cancel = cancel
	m.identity = id
	m.mu.Unlock()

	if err := m.Emit(ctx, models.EventRegisterUser, models.RegisterUser{ID: id.UserID, HospitalID: id.HospitalID}); err != nil {
		_ = m.Close()
		return fmt.Errorf("register user: %w", err)
	}

	zap.S().Infow("backend socket connected", "user_id", id.UserID, "hospital_id", id.HospitalID)
	m.dispatch(connCtx, models.EventConnect, nil)
	go m.readLoop(connCtx, conn)
	return nil
}

// Connected reports whether a connection is open.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

// Emit sends one event. Writes are serialized.
func (m *Manager) Emit(ctx context.Context, event string, payload interface{}) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(envelope{Event: event, Data: data}); err != nil {
		return fmt.Errorf("write %s: %w", event, err)
	}
	observability.IncUpstreamEvent("out", event)
	return nil
}

// Close tears the connection down. There is no automatic reconnect.
func (m *Manager) Close() error {
	m.mu.Lock()
	closed := m.detachLocked()
	m.mu.Unlock()
	if closed {
		m.dispatch(context.Background(), models.EventDisconnect, reasonPayload("closed"))
	}
	return nil
}

func (m *Manager) detachLocked() bool {
	if m.conn == nil {
		return false
	}
	m.writeMu.Lock()
	_ = m.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	m.writeMu.Unlock()
	_ = m.conn.Close()
	m.cancel()
	m.conn = nil
	m.cancel = nil
	return true
}

func (m *Manager) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.mu.Lock()
			current := m.conn == conn
			if current {
				m.conn = nil
				m.cancel()
				m.cancel = nil
			}
			m.mu.Unlock()
			if current {
				zap.S().Warnw("backend socket dropped", "error", err)
				_ = conn.Close()
				m.dispatch(context.Background(), models.EventDisconnect, reasonPayload(err.Error()))
			}
			return
		}

		var ev envelope
		if err := json.Unmarshal(data, &ev); err != nil || ev.Event == "" {
			zap.S().Warnw("skipping malformed socket frame", "error", err, "size", len(data))
			continue
		}
		observability.IncUpstreamEvent("in", ev.Event)
		m.dispatch(ctx, ev.Event, ev.Data)
	}
}

func (m *Manager) dispatch(ctx context.Context, event string, data json.RawMessage) {
	m.handlersMu.RLock()
	handlers := append([]Handler(nil), m.handlers[event]...)
	m.handlersMu.RUnlock()

	for _, h := range handlers {
		h(ctx, data)
	}
}

func reasonPayload(reason string) json.RawMessage {
	raw, _ := json.Marshal(map[string]string{"reason": reason})
	return raw
}
