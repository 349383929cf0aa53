// Package session keeps one live chat and notification session per
// authenticated staff member and forwards their state changes to browsers.
package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"hms-sync/internal/chatsync"
	"hms-sync/internal/models"
	"hms-sync/internal/notifications"
	"hms-sync/internal/observability"
	"hms-sync/internal/telemetry"
)

// DefaultPollSpec is the fallback refresh schedule for unread state.
const DefaultPollSpec = "@every 10s"

const pollTimeout = 8 * time.Second

var ErrNoSession = errors.New("no open session")

// Backend is everything a session needs from the hospital REST API.
type Backend interface {
	chatsync.API
	notifications.API
}

// Dialer builds the per-user backend client and upstream socket.
type Dialer func(id models.Identity, token string) (Backend, chatsync.Socket)

// Broadcaster delivers state events to a user's browser connections.
type Broadcaster interface {
	BroadcastToUser(userID string, ev models.StateEvent)
}

// Options configures a Manager.
type Options struct {
	Dialer      Dialer
	Broadcaster Broadcaster
	Uploader    notifications.Uploader
	Audit       *telemetry.AuditEmitter
	ListPath    string
	PollSpec    string
}

// Session is the live state of one user.
type Session struct {
	Identity      models.Identity
	Chat          *chatsync.Synchronizer
	Notifications *notifications.Tracker
	OpenedAt      time.Time

	cancel      context.CancelFunc
	reconnectMu sync.Mutex
}

func (s *Session) close() {
	s.cancel()
	s.Notifications.Close()
	if err := s.Chat.Close(); err != nil {
		zap.S().Warnw("close session socket", "user_id", s.Identity.UserID, "error", err)
	}
}

// Manager owns every open session.
type Manager struct {
	opts Options

	mu       sync.RWMutex
	sessions map[string]*Session

	cron *cron.Cron
}

func NewManager(opts Options) *Manager {
	if opts.ListPath == "" {
		opts.ListPath = notifications.DefaultListPath
	}
	if opts.PollSpec == "" {
		opts.PollSpec = DefaultPollSpec
	}
	return &Manager{
		opts:     opts,
		sessions: make(map[string]*Session),
		cron:     cron.New(cron.WithLocation(time.UTC)),
	}
}

// Open returns the live session for id, creating and connecting it when
// none exists yet. Opening a connected session has no side effects; a
// session whose upstream socket dropped is reconnected and refetched.
func (m *Manager) Open(ctx context.Context, id models.Identity, token string) (*Session, error) {
	if s, ok := m.Get(id.UserID); ok {
		if err := m.reconnect(ctx, s); err != nil {
			return nil, err
		}
		return s, nil
	}

	api, sock := m.opts.Dialer(id, token)
	userID := id.UserID
	forward := func(ev models.StateEvent) {
		if m.opts.Broadcaster != nil {
			m.opts.Broadcaster.BroadcastToUser(userID, ev)
		}
	}

	chat := chatsync.New(id, api, sock)
	trackerOpts := []notifications.Option{
		notifications.WithListPath(m.opts.ListPath),
		notifications.WithAlerter(notifications.AlerterFunc(func(ctx context.Context, n models.Notification) {
			forward(models.StateEvent{Type: models.StateAlert, Data: n})
		})),
	}
	if m.opts.Uploader != nil {
		trackerOpts = append(trackerOpts, notifications.WithUploader(m.opts.Uploader))
	}
	tracker := notifications.New(id, api, sock, trackerOpts...)
	chat.OnChange(forward)
	tracker.OnChange(forward)

	runCtx, cancel := context.WithCancel(context.Background())
	s := &Session{Identity: id, Chat: chat, Notifications: tracker, OpenedAt: time.Now(), cancel: cancel}

	if err := chat.Connect(ctx); err != nil {
		cancel()
		_ = chat.Close()
		zap.S().Errorw("session connect failed", "user_id", userID, "error", err)
		return nil, err
	}
	if err := tracker.Subscribe(ctx); err != nil {
		zap.S().Warnw("notification subscribe failed", "user_id", userID, "error", err)
	}
	_ = chat.FetchConversations(ctx)
	_ = tracker.Fetch(ctx)

	m.mu.Lock()
	if existing, ok := m.sessions[userID]; ok {
		m.mu.Unlock()
		s.close()
		return existing, nil
	}
	m.sessions[userID] = s
	n := len(m.sessions)
	m.mu.Unlock()

	go tracker.Run(runCtx)
	observability.SetOpenSessions(n)
	zap.S().Infow("session opened", "user_id", userID, "hospital_id", id.HospitalID)
	m.opts.Audit.Emit(ctx, "info", telemetry.ActionSessionOpen, "session opened", telemetry.Actor{UserID: userID, HospitalID: id.HospitalID})
	return s, nil
}

func (m *Manager) reconnect(ctx context.Context, s *Session) error {
	s.reconnectMu.Lock()
	defer s.reconnectMu.Unlock()
	if s.Chat.Connected() {
		return nil
	}

	userID := s.Identity.UserID
	if err := s.Chat.Connect(ctx); err != nil {
		zap.S().Errorw("session reconnect failed", "user_id", userID, "error", err)
		return err
	}
	if err := s.Notifications.Subscribe(ctx); err != nil {
		zap.S().Warnw("notification subscribe failed", "user_id", userID, "error", err)
	}
	_ = s.Chat.Resync(ctx)
	_ = s.Notifications.Fetch(ctx)
	zap.S().Infow("session reconnected", "user_id", userID)
	return nil
}

// Get returns the open session of userID.
func (m *Manager) Get(userID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[userID]
	return s, ok
}

// Close tears down the session of userID: socket, timers and refresh loop.
func (m *Manager) Close(ctx context.Context, userID string) error {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	if ok {
		delete(m.sessions, userID)
	}
	n := len(m.sessions)
	m.mu.Unlock()
	if !ok {
		return ErrNoSession
	}

	s.close()
	observability.SetOpenSessions(n)
	zap.S().Infow("session closed", "user_id", userID, "duration", time.Since(s.OpenedAt).String())
	m.opts.Audit.Emit(ctx, "info", telemetry.ActionSessionClose, "session closed", telemetry.Actor{UserID: userID, HospitalID: s.Identity.HospitalID})
	return nil
}

// Snapshot returns the current state of userID's session as state events.
func (m *Manager) Snapshot(userID string) ([]models.StateEvent, bool) {
	s, ok := m.Get(userID)
	if !ok {
		return nil, false
	}
	return []models.StateEvent{
		{Type: models.StateConnection, Data: map[string]bool{"connected": s.Chat.Connected()}},
		{Type: models.StateConversations, Data: s.Chat.Conversations()},
		{Type: models.StateMessages, Data: s.Chat.Messages()},
		{Type: models.StateNotifications, Data: s.Notifications.List()},
	}, true
}

// StartPolling schedules the unread refresh for every open session.
func (m *Manager) StartPolling() error {
	if _, err := m.cron.AddFunc(m.opts.PollSpec, m.Poll); err != nil {
		return err
	}
	m.cron.Start()
	zap.S().Infow("unread poll scheduled", "spec", m.opts.PollSpec)
	return nil
}

// Poll refreshes unread state of every open session once. Notification
// refreshes go through the tracker's invalidation queue.
func (m *Manager) Poll() {
	m.mu.RLock()
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.RUnlock()

	for _, s := range open {
		ctx, cancel := context.WithTimeout(context.Background(), pollTimeout)
		_ = s.Chat.RefreshUnread(ctx)
		cancel()
		s.Notifications.Invalidate()
	}
}

// Shutdown stops polling and closes every session.
func (m *Manager) Shutdown(ctx context.Context) {
	stopped := m.cron.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
	}

	m.mu.Lock()
	open := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range open {
		s.close()
	}
	observability.SetOpenSessions(0)
	zap.S().Infow("sessions shut down", "count", len(open))
}

// Summary describes one open session for operators.
type Summary struct {
	UserID        string    `json:"user_id"`
	HospitalID    string    `json:"hospital_id"`
	Connected     bool      `json:"connected"`
	Conversations int       `json:"conversations"`
	Unread        int       `json:"unread_notifications"`
	OpenedAt      time.Time `json:"opened_at"`
}

// Summaries lists the open sessions ordered by user id.
func (m *Manager) Summaries() []Summary {
	m.mu.RLock()
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.RUnlock()

	out := make([]Summary, 0, len(open))
	for _, s := range open {
		out = append(out, Summary{
			UserID:        s.Identity.UserID,
			HospitalID:    s.Identity.HospitalID,
			Connected:     s.Chat.Connected(),
			Conversations: len(s.Chat.Conversations()),
			Unread:        s.Notifications.UnreadCount(),
			OpenedAt:      s.OpenedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Count returns the number of open sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
