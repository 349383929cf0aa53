package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"hms-sync/internal/chatsync"
	"hms-sync/internal/models"
	"hms-sync/internal/session"
	"hms-sync/internal/telemetry"
)

// ChatHandler exposes the conversation list and the active thread.
type ChatHandler struct {
	sessions *session.Manager
	audit    *telemetry.AuditEmitter
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(sessions *session.Manager, audit *telemetry.AuditEmitter) *ChatHandler {
	return &ChatHandler{sessions: sessions, audit: audit}
}

type conversationView struct {
	models.Conversation
	Initials string `json:"initials"`
	Typing   bool   `json:"typing"`
	Active   bool   `json:"active"`
}

func conversationViews(chat *chatsync.Synchronizer) []conversationView {
	convs := chat.Conversations()
	active := chat.Active()
	out := make([]conversationView, 0, len(convs))
	for _, conv := range convs {
		out = append(out, conversationView{
			Conversation: conv,
			Initials:     conv.Peer.Initials(),
			Typing:       chat.IsTyping(conv.PeerID),
			Active:       conv.PeerID == active,
		})
	}
	return out
}

// ListConversations returns the cached conversation list.
func (h *ChatHandler) ListConversations(c *gin.Context) {
	s, ok := sessionOf(c, h.sessions)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"conversations": conversationViews(s.Chat),
		"totalUnread":   s.Chat.TotalUnread(),
	})
}

// RefreshConversations reloads the list from the backend.
func (h *ChatHandler) RefreshConversations(c *gin.Context) {
	s, ok := sessionOf(c, h.sessions)
	if !ok {
		return
	}
	if err := s.Chat.FetchConversations(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"conversations": conversationViews(s.Chat),
		"totalUnread":   s.Chat.TotalUnread(),
	})
}

// SelectConversation makes a peer's thread active and returns it.
func (h *ChatHandler) SelectConversation(c *gin.Context) {
	s, ok := sessionOf(c, h.sessions)
	if !ok {
		return
	}
	if err := s.Chat.SelectConversation(c.Request.Context(), c.Param("peer_id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"peerId": s.Chat.Active(), "messages": s.Chat.Messages()})
}

// ListMessages returns the active thread.
func (h *ChatHandler) ListMessages(c *gin.Context) {
	s, ok := sessionOf(c, h.sessions)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"peerId": s.Chat.Active(), "messages": s.Chat.Messages()})
}

// SendMessage sends to the active conversation. A failed send still returns
// the temporary message so the client can offer a retry.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s, ok := sessionOf(c, h.sessions)
	if !ok {
		return
	}

	msg, err := s.Chat.SendMessage(c.Request.Context(), req.Content)
	h.respondSend(c, msg, err)
}

// RetryMessage re-sends a failed message.
func (h *ChatHandler) RetryMessage(c *gin.Context) {
	s, ok := sessionOf(c, h.sessions)
	if !ok {
		return
	}
	msg, err := s.Chat.RetrySend(c.Request.Context(), c.Param("temp_id"))
	h.respondSend(c, msg, err)
}

func (h *ChatHandler) respondSend(c *gin.Context, msg models.Message, err error) {
	if err == nil {
		c.JSON(http.StatusCreated, gin.H{"message": msg})
		return
	}
	if msg.State == models.SendFailed {
		h.audit.Emit(c.Request.Context(), "WARN", telemetry.ActionMessageFailed, err.Error(), actorFromContext(c))
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "message": msg})
		return
	}
	respondError(c, err)
}

// Typing records a keystroke or an explicit stop.
func (h *ChatHandler) Typing(c *gin.Context) {
	var req struct {
		Typing *bool `json:"typing"`
	}
	_ = c.ShouldBindJSON(&req)
	s, ok := sessionOf(c, h.sessions)
	if !ok {
		return
	}
	if req.Typing != nil && !*req.Typing {
		s.Chat.StopTyping(c.Request.Context())
	} else {
		s.Chat.HandleTyping(c.Request.Context())
	}
	c.Status(http.StatusNoContent)
}
