// Package chatsync keeps a session's conversation list, active thread and
// presence state consistent across REST fetches and socket pushes.
package chatsync

import (
	"context"
	"encoding/json"
	"errors"
	"html"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"hms-sync/internal/backend"
	"hms-sync/internal/models"
	"hms-sync/internal/observability"
	"hms-sync/internal/socket"
)

// TypingDebounce is the quiet period after which typing is considered over.
const TypingDebounce = 2 * time.Second

const emitTimeout = 5 * time.Second

var (
	ErrNoConversation  = errors.New("no conversation selected")
	ErrEmptyMessage    = errors.New("message content is empty")
	ErrMessageNotFound = errors.New("message not found")
	ErrNotRetryable    = errors.New("message is not in a failed state")
	ErrMarkup          = errors.New("message content contains markup")
)

// API is the slice of the backend client the synchronizer uses.
type API interface {
	Conversations(ctx context.Context) ([]models.Conversation, error)
	Messages(ctx context.Context, peerID string) ([]models.Message, error)
	SendMessage(ctx context.Context, req backend.SendRequest) (models.Message, error)
	MarkRead(ctx context.Context, senderID string) error
	UnreadCounts(ctx context.Context) (backend.UnreadCounts, error)
}

// Socket is the upstream connection the synchronizer subscribes through.
type Socket interface {
	On(event string, h socket.Handler)
	Emit(ctx context.Context, event string, payload interface{}) error
	Connect(ctx context.Context, id models.Identity) error
	Close() error
}

// Option customizes a Synchronizer.
type Option func(*Synchronizer)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(s *Synchronizer) { s.clock = c }
}

// WithIDGenerator replaces the temporary id generator.
func WithIDGenerator(gen func() string) Option {
	return func(s *Synchronizer) { s.newID = gen }
}

const (
	followUpQueue   = 64
	followUpTimeout = 15 * time.Second
)

type followUp func(ctx context.Context)

type peerTimer struct {
	timer Timer
}

// Synchronizer is the chat state of exactly one user session. All entity
// writes go through methods holding mu; network calls happen outside it.
type Synchronizer struct {
	self      models.Identity
	api       API
	sock      Socket
	clock     Clock
	sanitizer *bluemonday.Policy
	newID     func() string

	mu            sync.Mutex
	conversations []models.Conversation
	online        map[string]bool
	peerTyping    map[string]*peerTimer
	activePeer    string
	thread        []models.Message
	threadGen     uint64
	outbox        map[string]models.Message
	connected     bool

	localTyping *peerTimer
	typingPeer  string

	subsMu sync.RWMutex
	subs   []func(models.StateEvent)

	followUps chan followUp
	done      chan struct{}
	closeOnce sync.Once
}

// New builds a synchronizer for self and attaches its socket subscriptions.
// Subscriptions live as long as the synchronizer and read the current
// selection under lock, so selection changes never re-subscribe.
func New(self models.Identity, api API, sock Socket, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		self:       self,
		api:        api,
		sock:       sock,
		clock:      realClock{},
		sanitizer:  bluemonday.StrictPolicy(),
		newID:      func() string { return models.TempIDPrefix + uuid.NewString() },
		online:     make(map[string]bool),
		peerTyping: make(map[string]*peerTimer),
		outbox:     make(map[string]models.Message),
		followUps:  make(chan followUp, followUpQueue),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.runFollowUps()

	sock.On(models.EventReceiveMessage, s.onReceiveMessage)
	sock.On(models.EventUserStatusChange, s.onStatusChange)
	sock.On(models.EventUserTyping, s.onUserTyping)
	sock.On(models.EventMessagesRead, s.onMessagesRead)
	sock.On(models.EventConnect, s.onConnect)
	sock.On(models.EventDisconnect, s.onDisconnect)
	return s
}

// OnChange registers fn for state-change events.
func (s *Synchronizer) OnChange(fn func(models.StateEvent)) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	s.subs = append(s.subs, fn)
}

func (s *Synchronizer) notify(kind string, data interface{}) {
	s.subsMu.RLock()
	subs := append(([]func(models.StateEvent))(nil), s.subs...)
	s.subsMu.RUnlock()

	ev := models.StateEvent{Type: kind, Data: data}
	for _, fn := range subs {
		fn(ev)
	}
}

// Connect opens the upstream socket for the session user.
func (s *Synchronizer) Connect(ctx context.Context) error {
	return s.sock.Connect(ctx, s.self)
}

// Resync reloads the conversation list and, when a conversation is
// selected, its thread. It is the recovery path after a reconnect.
func (s *Synchronizer) Resync(ctx context.Context) error {
	err := s.FetchConversations(ctx)
	if peer := s.Active(); peer != "" {
		if selErr := s.SelectConversation(ctx, peer); err == nil {
			err = selErr
		}
	}
	return err
}

// FetchConversations replaces the conversation list with the backend's.
// On failure the previous list is kept.
func (s *Synchronizer) FetchConversations(ctx context.Context) error {
	list, err := s.api.Conversations(ctx)
	if err != nil {
		zap.S().Errorw("fetch conversations failed", "user_id", s.self.UserID, "error", err)
		return err
	}

	seen := make(map[string]bool, len(list))
	fresh := make([]models.Conversation, 0, len(list))
	online := make(map[string]bool, len(list))
	for _, conv := range list {
		if conv.PeerID == "" || seen[conv.PeerID] {
			continue
		}
		seen[conv.PeerID] = true
		online[conv.PeerID] = conv.Online()
		fresh = append(fresh, conv)
	}

	s.mu.Lock()
	s.conversations = fresh
	s.online = online
	s.mu.Unlock()

	s.notify(models.StateConversations, s.Conversations())
	return nil
}

// SelectConversation makes peerID the active thread, loads its history and
// acknowledges unread messages.
func (s *Synchronizer) SelectConversation(ctx context.Context, peerID string) error {
	if strings.TrimSpace(peerID) == "" {
		return ErrNoConversation
	}

	s.mu.Lock()
	flushPeer := ""
	if s.localTyping != nil && s.typingPeer != peerID {
		flushPeer = s.stopLocalTypingLocked()
	}
	if s.activePeer != peerID {
		s.thread = nil
	}
	s.activePeer = peerID
	s.threadGen++
	gen := s.threadGen
	unread := 0
	if idx := s.indexLocked(peerID); idx >= 0 {
		unread = s.conversations[idx].UnreadCount
	}
	s.mu.Unlock()

	if flushPeer != "" {
		s.emit(ctx, models.EventTyping, models.TypingPayload{ReceiverID: flushPeer, Typing: false})
	}

	msgs, fetchErr := s.api.Messages(ctx, peerID)
	if fetchErr != nil {
		zap.S().Errorw("fetch messages failed", "user_id", s.self.UserID, "peer_id", peerID, "error", fetchErr)
	} else {
		s.mu.Lock()
		if gen == s.threadGen {
			s.thread = s.mergeThreadLocked(peerID, msgs)
		}
		s.mu.Unlock()
		s.notify(models.StateMessages, s.Messages())
	}

	if unread > 0 {
		s.markConversationRead(ctx, peerID)
	}
	return fetchErr
}

// mergeThreadLocked combines a fetched history with unconfirmed local sends
// for the same peer.
func (s *Synchronizer) mergeThreadLocked(peerID string, fetched []models.Message) []models.Message {
	out := make([]models.Message, 0, len(fetched)+len(s.outbox))
	ids := make(map[string]bool, len(fetched))
	for _, m := range fetched {
		if ids[m.ID] {
			continue
		}
		ids[m.ID] = true
		out = append(out, m)
	}
	for _, m := range s.outboxForLocked(peerID) {
		out = append(out, m)
	}
	return out
}

func (s *Synchronizer) outboxForLocked(peerID string) []models.Message {
	var pending []models.Message
	for _, m := range s.outbox {
		if m.ReceiverID == peerID {
			pending = append(pending, m)
		}
	}
	sortByCreated(pending)
	return pending
}

// markConversationRead zeroes the unread counter and issues both receipt
// paths. Receipts are at-least-once; repeats are harmless.
func (s *Synchronizer) markConversationRead(ctx context.Context, peerID string) {
	s.markReadLocal(peerID)
	s.sendReceipts(ctx, peerID)
}

func (s *Synchronizer) markReadLocal(peerID string) {
	now := s.clock.Now()
	s.mu.Lock()
	if idx := s.indexLocked(peerID); idx >= 0 {
		s.conversations[idx].UnreadCount = 0
	}
	for i := range s.thread {
		m := &s.thread[i]
		if m.SenderID == peerID && !m.Read {
			m.Read = true
			readAt := now
			m.ReadAt = &readAt
		}
	}
	s.mu.Unlock()
	s.notify(models.StateConversations, s.Conversations())
}

func (s *Synchronizer) sendReceipts(ctx context.Context, peerID string) {
	if err := s.api.MarkRead(ctx, peerID); err != nil {
		zap.S().Warnw("read receipt request failed", "peer_id", peerID, "error", err)
	}
	s.emit(ctx, models.EventMarkRead, models.MarkReadPayload{SenderID: peerID})
}

// enqueue queues a network follow-up of an inbound event so the socket reader
// never waits on the backend. A full queue drops the follow-up; the unread
// poll repairs what it would have done.
func (s *Synchronizer) enqueue(fn followUp) {
	select {
	case s.followUps <- fn:
	default:
		zap.S().Warnw("chat follow-up queue full, dropping", "user_id", s.self.UserID)
	}
}

func (s *Synchronizer) runFollowUps() {
	for {
		select {
		case <-s.done:
			return
		case fn := <-s.followUps:
			ctx, cancel := context.WithTimeout(context.Background(), followUpTimeout)
			fn(ctx)
			cancel()
		}
	}
}

// SendMessage appends an optimistic message, pushes it over the socket and
// persists it. The returned message is the confirmed record, or the failed
// temporary one together with the error.
func (s *Synchronizer) SendMessage(ctx context.Context, content string) (models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return models.Message{}, ErrEmptyMessage
	}
	clean := s.clean(content)
	if clean == "" {
		return models.Message{}, ErrEmptyMessage
	}
	// Anything the policy would drop is refused rather than sent altered.
	if clean != strings.TrimSpace(content) {
		return models.Message{}, ErrMarkup
	}

	s.mu.Lock()
	if s.activePeer == "" {
		s.mu.Unlock()
		return models.Message{}, ErrNoConversation
	}
	temp := models.Message{
		ID:         s.newID(),
		SenderID:   s.self.UserID,
		ReceiverID: s.activePeer,
		Content:    clean,
		CreatedAt:  s.clock.Now(),
		IsTemp:     true,
		State:      models.SendPending,
	}
	s.thread = append(s.thread, temp)
	s.outbox[temp.ID] = temp
	s.updateConversationWithMessageLocked(temp)
	s.mu.Unlock()

	s.notify(models.StateMessages, s.Messages())
	s.notify(models.StateConversations, s.Conversations())

	s.emit(ctx, models.EventSendMessage, models.SendMessagePayload{
		TempID:     temp.ID,
		SenderID:   temp.SenderID,
		ReceiverID: temp.ReceiverID,
		Content:    temp.Content,
		CreatedAt:  temp.CreatedAt,
	})
	s.StopTyping(ctx)

	return s.persist(ctx, temp)
}

// RetrySend re-posts a message whose earlier send failed.
func (s *Synchronizer) RetrySend(ctx context.Context, tempID string) (models.Message, error) {
	s.mu.Lock()
	msg, ok := s.outbox[tempID]
	if !ok {
		s.mu.Unlock()
		return models.Message{}, ErrMessageNotFound
	}
	if msg.State != models.SendFailed {
		s.mu.Unlock()
		return models.Message{}, ErrNotRetryable
	}
	msg.State = models.SendPending
	msg.Error = ""
	s.setTempLocked(msg)
	s.mu.Unlock()
	s.notify(models.StateMessages, s.Messages())

	return s.persist(ctx, msg)
}

func (s *Synchronizer) persist(ctx context.Context, temp models.Message) (models.Message, error) {
	confirmed, err := s.api.SendMessage(ctx, backend.SendRequest{ReceiverID: temp.ReceiverID, Content: temp.Content})
	if err != nil {
		zap.S().Errorw("message send failed", "user_id", s.self.UserID, "peer_id", temp.ReceiverID, "temp_id", temp.ID, "error", err)
		s.mu.Lock()
		failed, ok := s.outbox[temp.ID]
		if ok {
			failed.State = models.SendFailed
			failed.Error = err.Error()
			s.setTempLocked(failed)
		} else {
			failed = temp
		}
		s.mu.Unlock()
		observability.IncSendOutcome(string(models.SendFailed))
		s.notify(models.StateMessages, s.Messages())
		return failed, err
	}

	if confirmed.ID == "" {
		confirmed.ID = strings.TrimPrefix(temp.ID, models.TempIDPrefix)
	}
	if confirmed.SenderID == "" {
		confirmed.SenderID = temp.SenderID
	}
	if confirmed.ReceiverID == "" {
		confirmed.ReceiverID = temp.ReceiverID
	}
	if confirmed.Content == "" {
		confirmed.Content = temp.Content
	}
	if confirmed.CreatedAt.IsZero() {
		confirmed.CreatedAt = temp.CreatedAt
	}
	confirmed.IsTemp = false
	confirmed.State = models.SendConfirmed

	s.mu.Lock()
	s.reconcileLocked(temp.ID, confirmed)
	s.mu.Unlock()
	observability.IncSendOutcome(string(models.SendConfirmed))
	s.notify(models.StateMessages, s.Messages())
	s.notify(models.StateConversations, s.Conversations())
	return confirmed, nil
}

// setTempLocked writes an updated temporary message to the outbox and, when
// visible, to the thread.
func (s *Synchronizer) setTempLocked(msg models.Message) {
	s.outbox[msg.ID] = msg
	for i := range s.thread {
		if s.thread[i].ID == msg.ID {
			s.thread[i] = msg
			break
		}
	}
}

// reconcileLocked replaces temp tempID with its canonical record. When the
// canonical record is already present the temp is dropped instead.
func (s *Synchronizer) reconcileLocked(tempID string, confirmed models.Message) {
	delete(s.outbox, tempID)

	tempIdx, canonIdx := -1, -1
	for i, m := range s.thread {
		switch m.ID {
		case tempID:
			tempIdx = i
		case confirmed.ID:
			canonIdx = i
		}
	}
	switch {
	case tempIdx >= 0 && canonIdx >= 0:
		s.thread = append(s.thread[:tempIdx], s.thread[tempIdx+1:]...)
	case tempIdx >= 0:
		s.thread[tempIdx] = confirmed
	}

	peer := confirmed.PeerOf(s.self.UserID)
	if idx := s.indexLocked(peer); idx >= 0 {
		if last := s.conversations[idx].LastMessage; last != nil && last.ID == tempID {
			c := confirmed
			s.conversations[idx].LastMessage = &c
		}
	}
}

// matchOutboxLocked finds the oldest unconfirmed send that msg confirms.
func (s *Synchronizer) matchOutboxLocked(msg models.Message) (string, bool) {
	var best models.Message
	found := false
	for _, m := range s.outbox {
		if m.ReceiverID != msg.ReceiverID || m.Content != msg.Content {
			continue
		}
		if !found || m.CreatedAt.Before(best.CreatedAt) {
			best = m
			found = true
		}
	}
	return best.ID, found
}

// updateConversationWithMessageLocked is the single write path for
// conversation ordering and unread counters, shared by send and receive.
func (s *Synchronizer) updateConversationWithMessageLocked(msg models.Message) {
	peer := msg.PeerOf(s.self.UserID)
	if peer == "" {
		return
	}

	var conv models.Conversation
	idx := s.indexLocked(peer)
	if idx >= 0 {
		conv = s.conversations[idx]
		s.conversations = append(s.conversations[:idx], s.conversations[idx+1:]...)
	} else {
		conv = models.Conversation{
			PeerID:       peer,
			Peer:         models.NewPeerProfile(models.Ref{ID: peer}),
			OnlineStatus: models.StatusOffline,
		}
		if s.online[peer] {
			conv.OnlineStatus = models.StatusOnline
		}
	}

	duplicate := conv.LastMessage != nil && conv.LastMessage.ID == msg.ID
	m := msg
	conv.LastMessage = &m
	if !duplicate && msg.SenderID != s.self.UserID && peer != s.activePeer {
		conv.UnreadCount++
	}

	s.conversations = append([]models.Conversation{conv}, s.conversations...)
}

func (s *Synchronizer) indexLocked(peerID string) int {
	for i, c := range s.conversations {
		if c.PeerID == peerID {
			return i
		}
	}
	return -1
}

func (s *Synchronizer) threadHasLocked(id string) bool {
	for _, m := range s.thread {
		if m.ID == id {
			return true
		}
	}
	return false
}

func (s *Synchronizer) onReceiveMessage(ctx context.Context, data json.RawMessage) {
	msg, err := decodeInbound(data)
	if err != nil {
		zap.S().Warnw("dropping malformed receive_message", "error", err)
		return
	}

	s.mu.Lock()
	peer := msg.PeerOf(s.self.UserID)
	active := peer != "" && peer == s.activePeer
	known := s.indexLocked(peer) >= 0
	fromSelf := msg.SenderID == s.self.UserID

	if fromSelf {
		if tempID, ok := s.matchOutboxLocked(msg); ok {
			s.reconcileLocked(tempID, msg)
		}
	}
	if active && !s.threadHasLocked(msg.ID) {
		s.thread = append(s.thread, msg)
	}
	s.updateConversationWithMessageLocked(msg)
	s.mu.Unlock()

	if active {
		s.notify(models.StateMessages, s.Messages())
	}
	s.notify(models.StateConversations, s.Conversations())

	if active && !fromSelf {
		s.markReadLocal(peer)
		s.enqueue(func(ctx context.Context) { s.sendReceipts(ctx, peer) })
	}
	if !known {
		// The placeholder has no profile yet; the backend already lists the
		// conversation because it delivered the message.
		s.enqueue(func(ctx context.Context) { _ = s.FetchConversations(ctx) })
	}
}

func decodeInbound(data json.RawMessage) (models.Message, error) {
	var wrapped struct {
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && len(wrapped.Message) > 0 && wrapped.Message[0] == '{' {
		data = wrapped.Message
	}
	msg, err := models.DecodeMessage(data)
	if err != nil {
		return models.Message{}, err
	}
	if msg.ID == "" || (msg.SenderID == "" && msg.ReceiverID == "") {
		return models.Message{}, errors.New("message without id or participants")
	}
	return msg, nil
}

type presenceUpdate struct {
	PeerID   string    `json:"peerId"`
	Status   string    `json:"status"`
	LastSeen time.Time `json:"lastSeen,omitempty"`
}

func (s *Synchronizer) onStatusChange(ctx context.Context, data json.RawMessage) {
	var ev models.StatusChange
	if err := json.Unmarshal(data, &ev); err != nil || ev.UserID == "" {
		zap.S().Warnw("dropping malformed user_status_change", "error", err)
		return
	}

	status := ev.NormalizedStatus()
	update := presenceUpdate{PeerID: ev.UserID, Status: status}

	s.mu.Lock()
	s.online[ev.UserID] = status == models.StatusOnline
	if idx := s.indexLocked(ev.UserID); idx >= 0 {
		s.conversations[idx].OnlineStatus = status
		if status == models.StatusOffline {
			s.conversations[idx].LastSeen = ev.LastSeenTime(s.clock.Now())
		}
		update.LastSeen = s.conversations[idx].LastSeen
	}
	s.mu.Unlock()

	s.notify(models.StatePresence, update)
}

type typingUpdate struct {
	PeerID string `json:"peerId"`
	Typing bool   `json:"typing"`
}

func (s *Synchronizer) onUserTyping(ctx context.Context, data json.RawMessage) {
	var ev models.TypingEvent
	if err := json.Unmarshal(data, &ev); err != nil || ev.UserID == "" {
		zap.S().Warnw("dropping malformed user_typing", "error", err)
		return
	}

	s.mu.Lock()
	if prev, ok := s.peerTyping[ev.UserID]; ok {
		prev.timer.Stop()
		delete(s.peerTyping, ev.UserID)
	}
	if ev.Typing {
		entry := &peerTimer{}
		peer := ev.UserID
		entry.timer = s.clock.AfterFunc(TypingDebounce, func() {
			s.mu.Lock()
			current := s.peerTyping[peer] == entry
			if current {
				delete(s.peerTyping, peer)
			}
			s.mu.Unlock()
			if current {
				s.notify(models.StateTyping, typingUpdate{PeerID: peer, Typing: false})
			}
		})
		s.peerTyping[peer] = entry
	}
	s.mu.Unlock()

	s.notify(models.StateTyping, typingUpdate{PeerID: ev.UserID, Typing: ev.Typing})
}

func (s *Synchronizer) onMessagesRead(ctx context.Context, data json.RawMessage) {
	var ev models.MessagesRead
	if err := json.Unmarshal(data, &ev); err != nil || ev.ReaderID == "" {
		zap.S().Warnw("dropping malformed messages_read", "error", err)
		return
	}
	readAt := ev.ReadTime(s.clock.Now())

	s.mu.Lock()
	for i := range s.thread {
		m := &s.thread[i]
		if m.SenderID == s.self.UserID && m.ReceiverID == ev.ReaderID && !m.Read {
			m.Read = true
			t := readAt
			m.ReadAt = &t
		}
	}
	if idx := s.indexLocked(ev.ReaderID); idx >= 0 {
		if last := s.conversations[idx].LastMessage; last != nil && last.SenderID == s.self.UserID && !last.Read {
			updated := *last
			updated.Read = true
			t := readAt
			updated.ReadAt = &t
			s.conversations[idx].LastMessage = &updated
		}
	}
	s.mu.Unlock()

	s.notify(models.StateMessages, s.Messages())
}

func (s *Synchronizer) onConnect(ctx context.Context, data json.RawMessage) {
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	s.notify(models.StateConnection, map[string]bool{"connected": true})
}

func (s *Synchronizer) onDisconnect(ctx context.Context, data json.RawMessage) {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
	zap.S().Infow("chat socket disconnected", "user_id", s.self.UserID, "detail", string(data))
	s.notify(models.StateConnection, map[string]bool{"connected": false})
}

// HandleTyping records a keystroke. The first keystroke of a burst emits
// typing:true; a single debounce timer emits typing:false once the burst
// has been quiet for TypingDebounce.
func (s *Synchronizer) HandleTyping(ctx context.Context) {
	s.mu.Lock()
	if s.activePeer == "" {
		s.mu.Unlock()
		return
	}
	start := s.localTyping == nil
	if !start {
		s.localTyping.timer.Stop()
	}
	peer := s.activePeer
	entry := &peerTimer{}
	entry.timer = s.clock.AfterFunc(TypingDebounce, func() { s.typingExpired(entry) })
	s.localTyping = entry
	s.typingPeer = peer
	s.mu.Unlock()

	if start {
		s.emit(ctx, models.EventTyping, models.TypingPayload{ReceiverID: peer, Typing: true})
	}
}

func (s *Synchronizer) typingExpired(entry *peerTimer) {
	s.mu.Lock()
	if s.localTyping != entry {
		s.mu.Unlock()
		return
	}
	s.localTyping = nil
	peer := s.typingPeer
	s.typingPeer = ""
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
	defer cancel()
	s.emit(ctx, models.EventTyping, models.TypingPayload{ReceiverID: peer, Typing: false})
}

// StopTyping ends a typing burst immediately.
func (s *Synchronizer) StopTyping(ctx context.Context) {
	s.mu.Lock()
	peer := s.stopLocalTypingLocked()
	s.mu.Unlock()
	if peer != "" {
		s.emit(ctx, models.EventTyping, models.TypingPayload{ReceiverID: peer, Typing: false})
	}
}

func (s *Synchronizer) stopLocalTypingLocked() string {
	if s.localTyping == nil {
		return ""
	}
	s.localTyping.timer.Stop()
	s.localTyping = nil
	peer := s.typingPeer
	s.typingPeer = ""
	return peer
}

// RefreshUnread merges the backend's unread counters. The active
// conversation always reads zero.
func (s *Synchronizer) RefreshUnread(ctx context.Context) error {
	counts, err := s.api.UnreadCounts(ctx)
	if err != nil {
		zap.S().Warnw("unread refresh failed", "user_id", s.self.UserID, "error", err)
		return err
	}

	changed := false
	s.mu.Lock()
	if len(counts.BySender) > 0 || counts.Total == 0 {
		for i := range s.conversations {
			c := &s.conversations[i]
			n := counts.BySender[c.PeerID]
			if c.PeerID == s.activePeer {
				n = 0
			}
			if c.UnreadCount != n {
				c.UnreadCount = n
				changed = true
			}
		}
	}
	s.mu.Unlock()

	if changed {
		s.notify(models.StateConversations, s.Conversations())
	}
	return nil
}

func (s *Synchronizer) emit(ctx context.Context, event string, payload interface{}) {
	if err := s.sock.Emit(ctx, event, payload); err != nil {
		zap.S().Warnw("socket emit failed", "event", event, "user_id", s.self.UserID, "error", err)
	}
}

// Conversations returns a copy of the list, most recently active first.
func (s *Synchronizer) Conversations() []models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Conversation, len(s.conversations))
	for i, c := range s.conversations {
		if c.LastMessage != nil {
			m := *c.LastMessage
			c.LastMessage = &m
		}
		out[i] = c
	}
	return out
}

// Messages returns a copy of the active thread.
func (s *Synchronizer) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.thread...)
}

// Active returns the selected peer id, or "" when none is selected.
func (s *Synchronizer) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activePeer
}

// IsOnline reports the tracked presence of peerID.
func (s *Synchronizer) IsOnline(peerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online[peerID]
}

// IsTyping reports whether peerID is currently typing.
func (s *Synchronizer) IsTyping(peerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.peerTyping[peerID]
	return ok
}

// Connected reports whether the upstream socket is open.
func (s *Synchronizer) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// TotalUnread sums unread counters across conversations.
func (s *Synchronizer) TotalUnread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, c := range s.conversations {
		total += c.UnreadCount
	}
	return total
}

// Close stops the follow-up worker and pending timers, then closes the
// socket.
func (s *Synchronizer) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	s.mu.Lock()
	s.stopLocalTypingLocked()
	for peer, entry := range s.peerTyping {
		entry.timer.Stop()
		delete(s.peerTyping, peer)
	}
	s.mu.Unlock()
	return s.sock.Close()
}

// clean strips markup but keeps the remaining text as typed. Escaping is
// left to whoever renders the message.
func (s *Synchronizer) clean(content string) string {
	return strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(content)))
}
