package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Presence values carried by conversations and status events.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// UnknownName is shown when a profile has no usable name.
const UnknownName = "Unknown"

// PeerProfile describes the staff member on the other side of a conversation.
type PeerProfile struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// Initials returns up to two upper-case initials for avatar placeholders.
func (p PeerProfile) Initials() string {
	fields := strings.Fields(p.Name)
	if len(fields) == 0 {
		return "?"
	}
	out := ""
	for _, f := range fields {
		out += strings.ToUpper(string([]rune(f)[0]))
		if len([]rune(out)) == 2 {
			break
		}
	}
	return out
}

// Conversation is one entry of the conversation list, keyed by PeerID.
type Conversation struct {
	PeerID       string      `json:"peerId"`
	Peer         PeerProfile `json:"peer"`
	LastMessage  *Message    `json:"lastMessage,omitempty"`
	UnreadCount  int         `json:"unreadCount"`
	OnlineStatus string      `json:"onlineStatus"`
	LastSeen     time.Time   `json:"lastSeen,omitempty"`
}

// Online reports whether the embedded status is online.
func (c Conversation) Online() bool {
	return c.OnlineStatus == StatusOnline
}

type wireConversation struct {
	User         Ref             `json:"user"`
	Participant  Ref             `json:"participant"`
	UserID       Ref             `json:"userId"`
	LastMessage  json.RawMessage `json:"lastMessage"`
	UnreadCount  int             `json:"unreadCount"`
	OnlineStatus string          `json:"onlineStatus"`
	Status       string          `json:"status"`
	LastSeen     string          `json:"lastSeen"`
}

// DecodeConversation normalizes one backend conversation record.
func DecodeConversation(raw json.RawMessage) (Conversation, error) {
	var w wireConversation
	if err := json.Unmarshal(raw, &w); err != nil {
		return Conversation{}, err
	}

	peer := firstRef(w.User, w.Participant, w.UserID)
	conv := Conversation{
		PeerID:       peer.ID,
		Peer:         NewPeerProfile(peer),
		UnreadCount:  w.UnreadCount,
		OnlineStatus: normalizeStatus(firstNonEmpty(w.OnlineStatus, w.Status, peer.Status)),
		LastSeen:     parseTime(w.LastSeen),
	}
	if conv.LastSeen.IsZero() {
		conv.LastSeen = peer.LastSeen
	}
	if conv.UnreadCount < 0 {
		conv.UnreadCount = 0
	}
	if len(w.LastMessage) > 0 && string(w.LastMessage) != "null" {
		if msg, err := DecodeMessage(w.LastMessage); err == nil {
			conv.LastMessage = &msg
		}
	}
	return conv, nil
}

// NewPeerProfile builds a profile with placeholder fallbacks.
func NewPeerProfile(r Ref) PeerProfile {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		name = UnknownName
	}
	return PeerProfile{ID: r.ID, Name: name, Avatar: r.Avatar}
}

func normalizeStatus(s string) string {
	if strings.EqualFold(strings.TrimSpace(s), StatusOnline) {
		return StatusOnline
	}
	return StatusOffline
}
