package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"hms-sync/internal/middleware"
	"hms-sync/internal/session"
)

// SessionHandler opens and closes live sessions.
type SessionHandler struct {
	sessions *session.Manager
}

// NewSessionHandler builds a SessionHandler.
func NewSessionHandler(sessions *session.Manager) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

type sessionResponse struct {
	UserID     string    `json:"userId"`
	HospitalID string    `json:"hospitalId"`
	Connected  bool      `json:"connected"`
	OpenedAt   time.Time `json:"openedAt"`
}

func newSessionResponse(s *session.Session) sessionResponse {
	return sessionResponse{
		UserID:     s.Identity.UserID,
		HospitalID: s.Identity.HospitalID,
		Connected:  s.Chat.Connected(),
		OpenedAt:   s.OpenedAt,
	}
}

// Open starts the caller's session, or returns the one already running.
func (h *SessionHandler) Open(c *gin.Context) {
	id, _ := middleware.IdentityFrom(c)
	_, existed := h.sessions.Get(id.UserID)

	s, err := h.sessions.Open(c.Request.Context(), id, middleware.TokenFrom(c))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not connect to backend"})
		return
	}

	status := http.StatusCreated
	if existed {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"session": newSessionResponse(s)})
}

// Close ends the caller's session.
func (h *SessionHandler) Close(c *gin.Context) {
	id, _ := middleware.IdentityFrom(c)
	if err := h.sessions.Close(c.Request.Context(), id.UserID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SetView records the path the caller is looking at.
func (h *SessionHandler) SetView(c *gin.Context) {
	var req struct {
		Path string `json:"path" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s, ok := sessionOf(c, h.sessions)
	if !ok {
		return
	}
	s.Notifications.SetActiveView(req.Path)
	c.Status(http.StatusNoContent)
}

// sessionOf resolves the caller's open session or writes a 404.
func sessionOf(c *gin.Context, sessions *session.Manager) (*session.Session, bool) {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
		return nil, false
	}
	s, ok := sessions.Get(id.UserID)
	if !ok {
		respondError(c, session.ErrNoSession)
		return nil, false
	}
	return s, true
}
