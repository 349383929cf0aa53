// Package notifications tracks a staff member's notification feed: history
// fetches, live pushes, read state and new-notification alerts.
package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"hms-sync/internal/models"
	"hms-sync/internal/observability"
	"hms-sync/internal/socket"
)

// DefaultListPath is the view path of the notification list.
const DefaultListPath = "/notifications"

var (
	ErrNotFound     = errors.New("notification not found")
	ErrNoUploader   = errors.New("image uploads are not configured")
	ErrEmptyTitle   = errors.New("notification title is required")
	ErrNoRecipients = errors.New("notification needs a doctor")
)

// API is the slice of the backend client the tracker uses.
type API interface {
	DoctorNotifications(ctx context.Context, userID string) ([]models.Notification, error)
	UnreadNotifications(ctx context.Context, userID string) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
	SendNotification(ctx context.Context, n models.NewNotification) (models.Notification, error)
	NotificationData(ctx context.Context, id string) (models.Notification, error)
}

// Socket is the upstream connection the tracker listens on.
type Socket interface {
	On(event string, h socket.Handler)
	Emit(ctx context.Context, event string, payload interface{}) error
}

// Uploader stores an image and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, name string, r io.Reader) (string, error)
}

// Alerter surfaces a newly arrived notification to the user.
type Alerter interface {
	Alert(ctx context.Context, n models.Notification)
}

// AlerterFunc adapts a function to Alerter.
type AlerterFunc func(ctx context.Context, n models.Notification)

func (f AlerterFunc) Alert(ctx context.Context, n models.Notification) { f(ctx, n) }

// Attachment is an image to upload with a new notification.
type Attachment struct {
	Name   string
	Reader io.Reader
}

// Option customizes a Tracker.
type Option func(*Tracker)

func WithAlerter(a Alerter) Option { return func(t *Tracker) { t.alerter = a } }

func WithUploader(u Uploader) Option { return func(t *Tracker) { t.uploader = u } }

func WithListPath(p string) Option { return func(t *Tracker) { t.listPath = cleanPath(p) } }

func WithNow(now func() time.Time) Option { return func(t *Tracker) { t.now = now } }

// Tracker owns the notification list for one user session.
type Tracker struct {
	self     models.Identity
	api      API
	sock     Socket
	alerter  Alerter
	uploader Uploader
	listPath string
	now      func() time.Time

	mu         sync.Mutex
	items      []models.Notification
	activeView string
	subscribed bool

	refresh chan struct{}

	subsMu sync.RWMutex
	subs   []func(models.StateEvent)
}

// New builds a tracker for self and attaches the push handler.
func New(self models.Identity, api API, sock Socket, opts ...Option) *Tracker {
	t := &Tracker{
		self:     self,
		api:      api,
		sock:     sock,
		listPath: DefaultListPath,
		now:      time.Now,
		refresh:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(t)
	}
	sock.On(models.EventNewNotification, t.onNewNotification)
	sock.On(models.EventDisconnect, t.onDisconnect)
	return t
}

// onDisconnect forgets the subscription; the backend drops it with the
// connection.
func (t *Tracker) onDisconnect(ctx context.Context, data json.RawMessage) {
	t.mu.Lock()
	t.subscribed = false
	t.mu.Unlock()
}

// OnChange registers fn for state-change events.
func (t *Tracker) OnChange(fn func(models.StateEvent)) {
	t.subsMu.Lock()
	defer t.subsMu.Unlock()
	t.subs = append(t.subs, fn)
}

func (t *Tracker) notify() {
	t.subsMu.RLock()
	subs := append(([]func(models.StateEvent))(nil), t.subs...)
	t.subsMu.RUnlock()
	if len(subs) == 0 {
		return
	}
	ev := models.StateEvent{Type: models.StateNotifications, Data: t.List()}
	for _, fn := range subs {
		fn(ev)
	}
}

// Subscribe joins the user's notification stream. Only the first call per
// connection emits doctor_login.
func (t *Tracker) Subscribe(ctx context.Context) error {
	t.mu.Lock()
	if t.subscribed {
		t.mu.Unlock()
		return nil
	}
	t.subscribed = true
	t.mu.Unlock()

	if err := t.sock.Emit(ctx, models.EventDoctorLogin, models.DoctorLogin{UserID: t.self.UserID}); err != nil {
		t.mu.Lock()
		t.subscribed = false
		t.mu.Unlock()
		return fmt.Errorf("subscribe notifications: %w", err)
	}
	return nil
}

// Fetch loads the full notification history in server order. Locally read
// notifications stay read.
func (t *Tracker) Fetch(ctx context.Context) error {
	list, err := t.api.DoctorNotifications(ctx, t.self.UserID)
	if err != nil {
		zap.S().Errorw("fetch notifications failed", "user_id", t.self.UserID, "error", err)
		return err
	}

	t.mu.Lock()
	prev := t.indexByIDLocked()
	seen := make(map[string]bool, len(list))
	fresh := make([]models.Notification, 0, len(list))
	for _, n := range list {
		if seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		if old, ok := prev[n.ID]; ok {
			n = keepReadState(old, n)
		}
		fresh = append(fresh, n)
	}
	t.items = fresh
	t.mu.Unlock()

	t.notify()
	return nil
}

// keepReadState enforces that a notification never moves back from read or
// from an in-flight read.
func keepReadState(local, remote models.Notification) models.Notification {
	switch local.State {
	case models.ReadDone:
		remote.Read = true
		remote.State = models.ReadDone
	case models.ReadPending:
		if !remote.Read {
			remote.State = models.ReadPending
		}
	}
	return remote
}

func (t *Tracker) indexByIDLocked() map[string]models.Notification {
	out := make(map[string]models.Notification, len(t.items))
	for _, n := range t.items {
		out[n.ID] = n
	}
	return out
}

func (t *Tracker) onNewNotification(ctx context.Context, data json.RawMessage) {
	raw := data
	var wrapped struct {
		Notification json.RawMessage `json:"notification"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && len(wrapped.Notification) > 0 && wrapped.Notification[0] == '{' {
		raw = wrapped.Notification
	}
	n, err := models.DecodeNotification(raw)
	if err != nil || n.ID == "" {
		zap.S().Warnw("dropping malformed notification", "error", err)
		return
	}
	if n.DoctorID != t.self.UserID {
		return
	}

	t.mu.Lock()
	for _, existing := range t.items {
		if existing.ID == n.ID {
			t.mu.Unlock()
			return
		}
	}
	t.items = append([]models.Notification{n}, t.items...)
	onList := t.activeView == t.listPath
	t.mu.Unlock()

	t.notify()
	if !onList && t.alerter != nil {
		observability.IncAlert()
		t.alerter.Alert(ctx, n)
	}
	t.Invalidate()
}

// SetActiveView records the path the user is currently looking at.
func (t *Tracker) SetActiveView(p string) {
	t.mu.Lock()
	t.activeView = cleanPath(p)
	t.mu.Unlock()
}

func cleanPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	return path.Clean("/" + strings.TrimPrefix(p, "/"))
}

// MarkRead moves one notification to read. The transition is optimistic;
// a failed request reverts it to unread and returns the error.
func (t *Tracker) MarkRead(ctx context.Context, id string) error {
	t.mu.Lock()
	idx := t.indexLocked(id)
	if idx < 0 {
		t.mu.Unlock()
		return ErrNotFound
	}
	if t.items[idx].State != models.ReadUnread {
		t.mu.Unlock()
		return nil
	}
	t.items[idx].State = models.ReadPending
	t.mu.Unlock()
	t.notify()

	err := t.api.MarkNotificationRead(ctx, id)

	t.mu.Lock()
	if idx := t.indexLocked(id); idx >= 0 && t.items[idx].State == models.ReadPending {
		if err != nil {
			t.items[idx].State = models.ReadUnread
		} else {
			t.items[idx].State = models.ReadDone
			t.items[idx].Read = true
		}
	}
	t.mu.Unlock()
	t.notify()

	if err != nil {
		zap.S().Errorw("mark notification read failed", "user_id", t.self.UserID, "notification_id", id, "error", err)
		return fmt.Errorf("mark notification %s read: %w", id, err)
	}
	return nil
}

func (t *Tracker) indexLocked(id string) int {
	for i, n := range t.items {
		if n.ID == id {
			return i
		}
	}
	return -1
}

// Invalidate schedules one unread refresh. Calls made while a refresh is
// already queued coalesce into it.
func (t *Tracker) Invalidate() {
	select {
	case t.refresh <- struct{}{}:
	default:
	}
}

// Run services invalidations until ctx is done.
func (t *Tracker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.refresh:
			_ = t.RefreshUnread(ctx)
		}
	}
}

// RefreshUnread prepends unread notifications the list has not seen yet. It
// never changes the read state of known entries: only MarkRead moves a
// notification to read.
func (t *Tracker) RefreshUnread(ctx context.Context) error {
	unread, err := t.api.UnreadNotifications(ctx, t.self.UserID)
	if err != nil {
		zap.S().Warnw("unread notification refresh failed", "user_id", t.self.UserID, "error", err)
		return err
	}

	t.mu.Lock()
	var added []models.Notification
	known := t.indexByIDLocked()
	for _, n := range unread {
		if _, ok := known[n.ID]; !ok {
			added = append(added, n)
			known[n.ID] = n
		}
	}
	if len(added) > 0 {
		t.items = append(added, t.items...)
	}
	t.mu.Unlock()

	if len(added) > 0 {
		t.notify()
	}
	return nil
}

// Send uploads attachments and creates a notification through the backend.
func (t *Tracker) Send(ctx context.Context, n models.NewNotification, attachments []Attachment) (models.Notification, error) {
	if strings.TrimSpace(n.Title) == "" {
		return models.Notification{}, ErrEmptyTitle
	}
	if n.DoctorID == "" {
		return models.Notification{}, ErrNoRecipients
	}
	if n.ReceptionistID == "" {
		n.ReceptionistID = t.self.UserID
	}
	if len(attachments) > 0 && t.uploader == nil {
		return models.Notification{}, ErrNoUploader
	}

	for _, a := range attachments {
		url, err := t.uploader.Upload(ctx, a.Name, a.Reader)
		if err != nil {
			return models.Notification{}, fmt.Errorf("upload %s: %w", a.Name, err)
		}
		n.Images = append(n.Images, url)
	}

	created, err := t.api.SendNotification(ctx, n)
	if err != nil {
		zap.S().Errorw("send notification failed", "user_id", t.self.UserID, "doctor_id", n.DoctorID, "error", err)
		return models.Notification{}, err
	}
	return created, nil
}

// Details returns the full record behind a notification.
func (t *Tracker) Details(ctx context.Context, id string) (models.Notification, error) {
	n, err := t.api.NotificationData(ctx, id)
	if err != nil {
		return models.Notification{}, err
	}
	t.mu.Lock()
	if idx := t.indexLocked(id); idx >= 0 {
		n = keepReadState(t.items[idx], n)
	}
	t.mu.Unlock()
	return n, nil
}

// List returns a copy of the notifications, newest first.
func (t *Tracker) List() []models.Notification {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.Notification, len(t.items))
	for i, n := range t.items {
		n.Images = append([]string(nil), n.Images...)
		out[i] = n
	}
	return out
}

// UnreadCount counts notifications still unread. In-flight reads count as
// read.
func (t *Tracker) UnreadCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, item := range t.items {
		if item.State == models.ReadUnread {
			n++
		}
	}
	return n
}

// Now returns the tracker's notion of the current time.
func (t *Tracker) Now() time.Time { return t.now() }

// Close drops the subscription flag so a later session resubscribes.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.subscribed = false
	t.mu.Unlock()
}
