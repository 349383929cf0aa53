package models

import "time"

// Identity is the authenticated staff member a session belongs to.
type Identity struct {
	UserID     string `json:"userId"`
	HospitalID string `json:"hospitalId"`
}

// Upstream socket event names.
const (
	EventConnect          = "connect"
	EventDisconnect       = "disconnect"
	EventRegisterUser     = "register_user"
	EventSendMessage      = "send_message"
	EventTyping           = "typing"
	EventMarkRead         = "mark_read"
	EventDoctorLogin      = "doctor_login"
	EventReceiveMessage   = "receive_message"
	EventUserStatusChange = "user_status_change"
	EventUserTyping       = "user_typing"
	EventMessagesRead     = "messages_read"
	EventNewNotification  = "newNotification"
)

// RegisterUser is emitted once per connection.
type RegisterUser struct {
	ID         string `json:"_id"`
	HospitalID string `json:"hospital_ID"`
}

// SendMessagePayload carries an optimistic message to the peer.
type SendMessagePayload struct {
	TempID     string    `json:"tempId"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
}

// TypingPayload is emitted while the local user types.
type TypingPayload struct {
	ReceiverID string `json:"receiverId"`
	Typing     bool   `json:"typing"`
}

// MarkReadPayload acknowledges messages from a sender.
type MarkReadPayload struct {
	SenderID string `json:"senderId"`
}

// DoctorLogin subscribes the user to notification pushes.
type DoctorLogin struct {
	UserID string `json:"userId"`
}

// StatusChange is pushed when a peer goes online or offline.
type StatusChange struct {
	UserID   string `json:"userId"`
	Status   string `json:"status"`
	LastSeen string `json:"lastSeen"`
}

// TypingEvent is pushed when a peer starts or stops typing.
type TypingEvent struct {
	UserID string `json:"userId"`
	Typing bool   `json:"typing"`
}

// MessagesRead is pushed when a peer has read the local user's messages.
type MessagesRead struct {
	ReaderID string `json:"readerId"`
	ReadAt   string `json:"readAt"`
}

// ReadTime returns the parsed read time or fallback when absent.
func (m MessagesRead) ReadTime(fallback time.Time) time.Time {
	if t := parseTime(m.ReadAt); !t.IsZero() {
		return t
	}
	return fallback
}

// LastSeenTime returns the parsed last-seen time or fallback when absent.
func (s StatusChange) LastSeenTime(fallback time.Time) time.Time {
	if t := parseTime(s.LastSeen); !t.IsZero() {
		return t
	}
	return fallback
}

// NormalizedStatus folds any status string into online or offline.
func (s StatusChange) NormalizedStatus() string {
	return normalizeStatus(s.Status)
}

// Downstream state event types.
const (
	StateConversations = "conversations"
	StateMessages      = "messages"
	StatePresence      = "presence"
	StateTyping        = "typing"
	StateNotifications = "notifications"
	StateAlert         = "alert"
	StateConnection    = "connection"
)

// StateEvent is a state delta pushed to browser clients.
type StateEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}
