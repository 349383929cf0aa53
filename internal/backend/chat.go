package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"hms-sync/internal/models"
)

// listKeys are the object keys the backend wraps lists in.
var listKeys = []string{"data", "conversations", "messages", "notifications", "unreadNotifications", "notification"}

// listEnvelope accepts either a bare array or an object wrapping one under
// a known key. Any other object is rejected.
type listEnvelope []json.RawMessage

func (l *listEnvelope) UnmarshalJSON(b []byte) error {
	var arr []json.RawMessage
	if err := json.Unmarshal(b, &arr); err == nil {
		*l = arr
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	for _, key := range listKeys {
		if inner, ok := obj[key]; ok {
			if err := json.Unmarshal(inner, &arr); err == nil {
				*l = arr
				return nil
			}
		}
	}
	return fmt.Errorf("no list in response object (keys %s)", strings.Join(sortedKeys(obj), ", "))
}

func sortedKeys(obj map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Conversations returns the caller's conversation list.
func (c *Client) Conversations(ctx context.Context) ([]models.Conversation, error) {
	var raw listEnvelope
	if err := c.do(ctx, http.MethodGet, "/api/chat/conversations", "/api/chat/conversations", nil, &raw); err != nil {
		return nil, err
	}
	out := make([]models.Conversation, 0, len(raw))
	for _, item := range raw {
		conv, err := models.DecodeConversation(item)
		if err != nil || conv.PeerID == "" {
			continue
		}
		out = append(out, conv)
	}
	return out, nil
}

// Messages returns the thread with peerID, oldest first.
func (c *Client) Messages(ctx context.Context, peerID string) ([]models.Message, error) {
	var raw listEnvelope
	if err := c.do(ctx, http.MethodGet, "/api/chat/messages/:userId", "/api/chat/messages/"+escape(peerID), nil, &raw); err != nil {
		return nil, err
	}
	return models.DecodeMessages(raw), nil
}

// SendRequest is the body of POST /api/chat/send.
type SendRequest struct {
	ReceiverID string `json:"receiverId"`
	Content    string `json:"content"`
}

// SendMessage persists a message and returns the confirmed record.
func (c *Client) SendMessage(ctx context.Context, req SendRequest) (models.Message, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/api/chat/send", "/api/chat/send", req, &raw); err != nil {
		return models.Message{}, err
	}
	var wrapped struct {
		Message json.RawMessage `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil {
		if len(wrapped.Message) > 0 && wrapped.Message[0] == '{' {
			raw = wrapped.Message
		} else if len(wrapped.Data) > 0 && wrapped.Data[0] == '{' {
			raw = wrapped.Data
		}
	}
	return models.DecodeMessage(raw)
}

// MarkRead acknowledges every message from senderID. The backend treats
// repeats as no-ops.
func (c *Client) MarkRead(ctx context.Context, senderID string) error {
	return c.do(ctx, http.MethodPost, "/api/chat/read/:senderId", "/api/chat/read/"+escape(senderID), nil, nil)
}

// UnreadCounts is the response of GET /api/chat/unread.
type UnreadCounts struct {
	Total    int            `json:"total"`
	BySender map[string]int `json:"bySender"`
}

// UnreadCounts returns unread message counts grouped by sender.
func (c *Client) UnreadCounts(ctx context.Context) (UnreadCounts, error) {
	var raw struct {
		Total       int `json:"total"`
		TotalUnread int `json:"totalUnread"`
		Counts      []struct {
			ID     string `json:"_id"`
			Sender string `json:"senderId"`
			Count  int    `json:"count"`
		} `json:"counts"`
		BySender map[string]int `json:"bySender"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/chat/unread", "/api/chat/unread", nil, &raw); err != nil {
		return UnreadCounts{}, err
	}

	out := UnreadCounts{Total: raw.Total, BySender: map[string]int{}}
	if out.Total == 0 {
		out.Total = raw.TotalUnread
	}
	for id, n := range raw.BySender {
		out.BySender[id] = n
	}
	for _, entry := range raw.Counts {
		id := entry.Sender
		if id == "" {
			id = entry.ID
		}
		if id != "" {
			out.BySender[id] = entry.Count
		}
	}
	if out.Total == 0 {
		for _, n := range out.BySender {
			out.Total += n
		}
	}
	return out, nil
}
