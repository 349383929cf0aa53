package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefAcceptsIDOrDocument(t *testing.T) {
	var payload struct {
		A Ref `json:"a"`
		B Ref `json:"b"`
		C Ref `json:"c"`
		D Ref `json:"d"`
	}
	raw := `{"a":"u1","b":{"_id":"u2","firstName":"Ada","lastName":"Obi"},"c":null,"d":42}`
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))

	assert.Equal(t, Ref{ID: "u1"}, payload.A)
	assert.Equal(t, "u2", payload.B.ID)
	assert.Equal(t, "Ada Obi", payload.B.Name)
	assert.True(t, payload.C.Empty())
	assert.Equal(t, "42", payload.D.ID)
}

func TestDecodeConversationFallbacks(t *testing.T) {
	conv, err := DecodeConversation(json.RawMessage(`{"userId":"p1","unreadCount":-2}`))
	require.NoError(t, err)

	assert.Equal(t, "p1", conv.PeerID)
	assert.Equal(t, UnknownName, conv.Peer.Name)
	assert.Equal(t, 0, conv.UnreadCount)
	assert.Equal(t, StatusOffline, conv.OnlineStatus)
	assert.Nil(t, conv.LastMessage)
}

func TestDecodeConversationPopulated(t *testing.T) {
	raw := `{
		"user":{"_id":"p1","name":"Dr Grey","avatar":"a.png","status":"ONLINE"},
		"lastMessage":{"_id":"m1","sender":{"_id":"p1"},"receiver":"me","content":"hi","createdAt":"2026-01-02T10:00:00Z"},
		"unreadCount":3
	}`
	conv, err := DecodeConversation(json.RawMessage(raw))
	require.NoError(t, err)

	assert.Equal(t, "Dr Grey", conv.Peer.Name)
	assert.True(t, conv.Online())
	require.NotNil(t, conv.LastMessage)
	assert.Equal(t, "p1", conv.LastMessage.SenderID)
	assert.Equal(t, "me", conv.LastMessage.ReceiverID)
	assert.Equal(t, SendConfirmed, conv.LastMessage.State)
	assert.Equal(t, 3, conv.UnreadCount)
}

func TestDecodeMessageReadAtImpliesRead(t *testing.T) {
	msg, err := DecodeMessage(json.RawMessage(`{"id":"m1","senderId":"a","receiverId":"b","readAt":"2026-01-02T10:00:00Z"}`))
	require.NoError(t, err)

	assert.True(t, msg.Read)
	require.NotNil(t, msg.ReadAt)
	assert.Equal(t, time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC), msg.ReadAt.UTC())
	assert.Equal(t, "b", msg.PeerOf("a"))
	assert.Equal(t, "a", msg.PeerOf("b"))
}

func TestDecodeNotificationPlaceholders(t *testing.T) {
	raw := `{"_id":"n1","message":"arrived","doctor_ID":{"_id":"d1"},"patient_ID":"pat1","images":[{"secure_url":"https://x/1.png"},{"url":""}]}`
	n, err := DecodeNotification(json.RawMessage(raw))
	require.NoError(t, err)

	assert.Equal(t, "Notification", n.Title)
	assert.Equal(t, "arrived", n.Body)
	assert.Equal(t, "d1", n.DoctorID)
	assert.Equal(t, "pat1", n.PatientID)
	assert.Equal(t, NotAvailable, n.PatientName)
	assert.Equal(t, []string{"https://x/1.png"}, n.Images)
	assert.Equal(t, ReadUnread, n.State)
}

func TestDecodeNotificationsSkipsBadEntries(t *testing.T) {
	list := DecodeNotifications([]json.RawMessage{
		json.RawMessage(`{"_id":"n1","isRead":true,"patient_ID":{"_id":"p","name":"Jane"}}`),
		json.RawMessage(`{"title":"no id"}`),
		json.RawMessage(`not json`),
	})
	require.Len(t, list, 1)
	assert.True(t, list[0].Read)
	assert.Equal(t, ReadDone, list[0].State)
	assert.Equal(t, "Jane", list[0].PatientName)
}

func TestInitials(t *testing.T) {
	assert.Equal(t, "MG", PeerProfile{Name: "meredith grey shepherd"}.Initials())
	assert.Equal(t, "?", PeerProfile{}.Initials())
}
