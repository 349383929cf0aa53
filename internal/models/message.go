package models

import (
	"encoding/json"
	"strings"
	"time"
)

// SendState tracks an optimistic message through confirmation.
type SendState string

const (
	SendPending   SendState = "pending"
	SendConfirmed SendState = "confirmed"
	SendFailed    SendState = "failed"
)

// TempIDPrefix marks client-generated message ids.
const TempIDPrefix = "temp-"

// Message is one chat message. Temporary records carry a client id until the
// backend confirms them.
type Message struct {
	ID         string     `json:"id"`
	SenderID   string     `json:"senderId"`
	ReceiverID string     `json:"receiverId"`
	Content    string     `json:"content"`
	CreatedAt  time.Time  `json:"createdAt"`
	Read       bool       `json:"read"`
	ReadAt     *time.Time `json:"readAt,omitempty"`
	IsTemp     bool       `json:"isTemp"`
	State      SendState  `json:"state"`
	Error      string     `json:"error,omitempty"`
}

// PeerOf returns the participant that is not self.
func (m Message) PeerOf(self string) string {
	if m.SenderID == self {
		return m.ReceiverID
	}
	return m.SenderID
}

// IsTempID reports whether id was generated client-side.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

type wireMessage struct {
	ID         string `json:"_id"`
	AltID      string `json:"id"`
	Sender     Ref    `json:"sender"`
	SenderID   Ref    `json:"senderId"`
	Receiver   Ref    `json:"receiver"`
	ReceiverID Ref    `json:"receiverId"`
	Content    string `json:"content"`
	CreatedAt  string `json:"createdAt"`
	Read       bool   `json:"read"`
	ReadAt     string `json:"readAt"`
}

// DecodeMessage normalizes one backend message record.
func DecodeMessage(raw json.RawMessage) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(raw, &w); err != nil {
		return Message{}, err
	}

	msg := Message{
		ID:         firstNonEmpty(w.ID, w.AltID),
		SenderID:   firstRef(w.Sender, w.SenderID).ID,
		ReceiverID: firstRef(w.Receiver, w.ReceiverID).ID,
		Content:    w.Content,
		CreatedAt:  parseTime(w.CreatedAt),
		Read:       w.Read,
		State:      SendConfirmed,
	}
	if readAt := parseTime(w.ReadAt); !readAt.IsZero() {
		msg.ReadAt = &readAt
		msg.Read = true
	}
	return msg, nil
}

// DecodeMessages normalizes a list of messages, skipping malformed entries.
func DecodeMessages(raws []json.RawMessage) []Message {
	out := make([]Message, 0, len(raws))
	for _, raw := range raws {
		msg, err := DecodeMessage(raw)
		if err != nil {
			continue
		}
		out = append(out, msg)
	}
	return out
}
