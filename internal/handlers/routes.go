package handlers

import (
	"github.com/gin-gonic/gin"

	"hms-sync/internal/middleware"
	"hms-sync/internal/repositories"
	"hms-sync/internal/session"
	"hms-sync/internal/telemetry"
)

// Deps are the collaborators of the local API.
type Deps struct {
	Sessions  *session.Manager
	Emojis    repositories.EmojiRepository
	Audit     *telemetry.AuditEmitter
	Validator *middleware.TokenValidator
	Limiter   *middleware.RateLimiter
}

// RegisterRoutes mounts the authenticated local API on router.
func RegisterRoutes(router gin.IRouter, d Deps) {
	api := router.Group("/")
	api.Use(middleware.AuthMiddleware(d.Validator))
	if d.Limiter != nil {
		api.Use(middleware.RateLimit(d.Limiter))
	}

	sessions := NewSessionHandler(d.Sessions)
	api.POST("/session", sessions.Open)
	api.DELETE("/session", sessions.Close)
	api.PUT("/session/view", sessions.SetView)

	chat := NewChatHandler(d.Sessions, d.Audit)
	api.GET("/conversations", chat.ListConversations)
	api.POST("/conversations/refresh", chat.RefreshConversations)
	api.POST("/conversations/:peer_id/select", chat.SelectConversation)
	api.GET("/messages", chat.ListMessages)
	api.POST("/messages", chat.SendMessage)
	api.POST("/messages/:temp_id/retry", chat.RetryMessage)
	api.POST("/typing", chat.Typing)

	notes := NewNotificationHandler(d.Sessions, d.Audit)
	api.GET("/notifications", notes.List)
	api.POST("/notifications", notes.Send)
	api.GET("/notifications/:id", notes.Details)
	api.POST("/notifications/:id/read", notes.MarkRead)

	if d.Emojis != nil {
		emojis := NewEmojiHandler(d.Emojis)
		api.GET("/emoji/recent", emojis.List)
		api.POST("/emoji/recent", emojis.Touch)
	}
}
