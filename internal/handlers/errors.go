package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"hms-sync/internal/backend"
	"hms-sync/internal/chatsync"
	"hms-sync/internal/media"
	"hms-sync/internal/notifications"
	"hms-sync/internal/repositories"
	"hms-sync/internal/session"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var apiErr *backend.APIError
	switch {
	case errors.Is(err, chatsync.ErrEmptyMessage),
		errors.Is(err, chatsync.ErrMarkup),
		errors.Is(err, notifications.ErrEmptyTitle),
		errors.Is(err, notifications.ErrNoRecipients),
		errors.Is(err, repositories.ErrInvalidEmoji):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNoSession),
		errors.Is(err, chatsync.ErrMessageNotFound),
		errors.Is(err, notifications.ErrNotFound),
		backend.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, chatsync.ErrNoConversation),
		errors.Is(err, chatsync.ErrNotRetryable):
		return http.StatusConflict
	case errors.Is(err, notifications.ErrNoUploader),
		errors.Is(err, media.ErrDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, backend.ErrTransport), errors.As(err, &apiErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}
