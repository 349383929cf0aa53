package session

import (
	"hms-sync/internal/backend"
	"hms-sync/internal/chatsync"
	"hms-sync/internal/models"
	"hms-sync/internal/socket"
)

// NewDialer returns a Dialer that talks to the real hospital backend.
func NewDialer(backendURL, socketURL string, rps float64) Dialer {
	return func(id models.Identity, token string) (Backend, chatsync.Socket) {
		api := backend.NewClient(backendURL, token, backend.WithRateLimit(rps))
		return api, socket.NewManager(socketURL, token)
	}
}
