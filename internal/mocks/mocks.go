package mocks

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/stretchr/testify/mock"

	"hms-sync/internal/backend"
	"hms-sync/internal/models"
	"hms-sync/internal/socket"
)

type BackendMock struct {
	mock.Mock
}

func (m *BackendMock) Conversations(ctx context.Context) ([]models.Conversation, error) {
	args := m.Called(ctx)
	var list []models.Conversation
	if val := args.Get(0); val != nil {
		list = val.([]models.Conversation)
	}
	return list, args.Error(1)
}

func (m *BackendMock) Messages(ctx context.Context, peerID string) ([]models.Message, error) {
	args := m.Called(ctx, peerID)
	var list []models.Message
	if val := args.Get(0); val != nil {
		list = val.([]models.Message)
	}
	return list, args.Error(1)
}

func (m *BackendMock) SendMessage(ctx context.Context, req backend.SendRequest) (models.Message, error) {
	args := m.Called(ctx, req)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *BackendMock) MarkRead(ctx context.Context, senderID string) error {
	args := m.Called(ctx, senderID)
	return args.Error(0)
}

func (m *BackendMock) UnreadCounts(ctx context.Context) (backend.UnreadCounts, error) {
	args := m.Called(ctx)
	var counts backend.UnreadCounts
	if val := args.Get(0); val != nil {
		counts = val.(backend.UnreadCounts)
	}
	return counts, args.Error(1)
}

func (m *BackendMock) DoctorNotifications(ctx context.Context, userID string) ([]models.Notification, error) {
	args := m.Called(ctx, userID)
	var list []models.Notification
	if val := args.Get(0); val != nil {
		list = val.([]models.Notification)
	}
	return list, args.Error(1)
}

func (m *BackendMock) UnreadNotifications(ctx context.Context, userID string) ([]models.Notification, error) {
	args := m.Called(ctx, userID)
	var list []models.Notification
	if val := args.Get(0); val != nil {
		list = val.([]models.Notification)
	}
	return list, args.Error(1)
}

func (m *BackendMock) MarkNotificationRead(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *BackendMock) SendNotification(ctx context.Context, n models.NewNotification) (models.Notification, error) {
	args := m.Called(ctx, n)
	var out models.Notification
	if val := args.Get(0); val != nil {
		out = val.(models.Notification)
	}
	return out, args.Error(1)
}

func (m *BackendMock) NotificationData(ctx context.Context, id string) (models.Notification, error) {
	args := m.Called(ctx, id)
	var out models.Notification
	if val := args.Get(0); val != nil {
		out = val.(models.Notification)
	}
	return out, args.Error(1)
}

type EmojiRepositoryMock struct {
	mock.Mock
}

func (m *EmojiRepositoryMock) Touch(ctx context.Context, userID, emoji string) error {
	args := m.Called(ctx, userID, emoji)
	return args.Error(0)
}

func (m *EmojiRepositoryMock) List(ctx context.Context, userID string, limit int) ([]string, error) {
	args := m.Called(ctx, userID, limit)
	var list []string
	if val := args.Get(0); val != nil {
		list = val.([]string)
	}
	return list, args.Error(1)
}

type UploaderMock struct {
	mock.Mock
}

func (m *UploaderMock) Upload(ctx context.Context, name string, r io.Reader) (string, error) {
	args := m.Called(ctx, name, r)
	return args.String(0), args.Error(1)
}

// Emitted is one outbound socket event captured by FakeSocket.
type Emitted struct {
	Event   string
	Payload interface{}
}

// FakeSocket records emits and lets tests deliver inbound events
// synchronously, the way the socket reader goroutine does.
type FakeSocket struct {
	mu         sync.Mutex
	handlers   map[string][]socket.Handler
	emitted    []Emitted
	EmitErr    error
	ConnectErr error
	Identity   models.Identity
	Connects   int
	Closed     bool
}

func NewFakeSocket() *FakeSocket {
	return &FakeSocket{handlers: make(map[string][]socket.Handler)}
}

func (f *FakeSocket) On(event string, h socket.Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[event] = append(f.handlers[event], h)
}

func (f *FakeSocket) Emit(ctx context.Context, event string, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.EmitErr != nil {
		return f.EmitErr
	}
	f.emitted = append(f.emitted, Emitted{Event: event, Payload: payload})
	return nil
}

func (f *FakeSocket) Connect(ctx context.Context, id models.Identity) error {
	f.mu.Lock()
	f.Identity = id
	f.Connects++
	err := f.ConnectErr
	f.mu.Unlock()
	if err == nil {
		f.Deliver(ctx, models.EventConnect, nil)
	}
	return err
}

func (f *FakeSocket) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// Deliver runs every handler registered for event with payload marshalled
// to JSON.
func (f *FakeSocket) Deliver(ctx context.Context, event string, payload interface{}) {
	var data json.RawMessage
	if payload != nil {
		if raw, ok := payload.(string); ok {
			data = json.RawMessage(raw)
		} else {
			data, _ = json.Marshal(payload)
		}
	}
	f.mu.Lock()
	hs := append([]socket.Handler(nil), f.handlers[event]...)
	f.mu.Unlock()
	for _, h := range hs {
		h(ctx, data)
	}
}

// HandlerCount reports how many handlers are attached to event.
func (f *FakeSocket) HandlerCount(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers[event])
}

// Emitted returns captured emits for event, or all emits when event is "".
func (f *FakeSocket) Emitted(event string) []Emitted {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Emitted
	for _, e := range f.emitted {
		if event == "" || e.Event == event {
			out = append(out, e)
		}
	}
	return out
}
