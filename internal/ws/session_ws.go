package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"hms-sync/internal/middleware"
	"hms-sync/internal/models"
	"hms-sync/internal/observability"
)

const (
	maxClientMessageSize = 4 * 1024
	defaultPongWait      = 60 * time.Second
)

// Snapshotter returns the current state of a user's session so a freshly
// connected tab can render without waiting for the next change.
type Snapshotter interface {
	Snapshot(userID string) ([]models.StateEvent, bool)
}

// SessionWebSocketHandler streams session state changes to browsers.
type SessionWebSocketHandler struct {
	hub       *Hub
	validator *middleware.TokenValidator
	sessions  Snapshotter
	upgrader  websocket.Upgrader
	pongWait  time.Duration
}

// NewSessionWebSocketHandler constructs a SessionWebSocketHandler. An empty
// origins list accepts any origin.
func NewSessionWebSocketHandler(hub *Hub, validator *middleware.TokenValidator, sessions Snapshotter, origins []string) *SessionWebSocketHandler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return &SessionWebSocketHandler{
		hub:       hub,
		validator: validator,
		sessions:  sessions,
		pongWait:  defaultPongWait,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[origin]
			},
		},
	}
}

// Handle upgrades the connection and registers the client.
func (h *SessionWebSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("hms-sync/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	id, err := h.validator.Validate(middleware.TokenFromRequest(c.Request))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      id.UserID,
		HospitalID:  id.HospitalID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	h.hub.AddClient(conn, info)

	observability.IncWSActive(wsKind)
	zap.S().Debugw("websocket connected", info.logFields("device_id", info.DeviceID)...)
	publishLifecycle(ctx, "ws_connect", info, "")

	if events, ok := h.sessions.Snapshot(id.UserID); ok {
		for _, ev := range events {
			if err := h.hub.SendTo(id.UserID, conn, ev); err != nil {
				zap.S().Warnw("snapshot write failed", info.logFields("error", err)...)
				break
			}
		}
	}

	// Browsers only send pongs and close frames; the state flows one way.
	conn.SetReadLimit(maxClientMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(h.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.pongWait))
	})
	stop := make(chan struct{})
	go h.keepAlive(conn, info, stop)

	// The request context ends when Handle returns.
	connCtx := context.WithoutCancel(ctx)
	go func() {
		var closeReason string
		defer func() {
			close(stop)
			h.hub.RemoveClient(info.UserID, conn)
			observability.DecWSActive(wsKind)
			publishLifecycle(connCtx, "ws_disconnect", info, closeReason)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				closeReason = err.Error()
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					publishLifecycle(connCtx, "ws_error", info, closeReason)
				}
				return
			}
		}
	}()
}

// keepAlive pings conn until stop is closed or a ping cannot be written.
func (h *SessionWebSocketHandler) keepAlive(conn *websocket.Conn, info ConnInfo, stop <-chan struct{}) {
	ticker := time.NewTicker(h.pongWait * 9 / 10)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				zap.S().Debugw("websocket ping failed", info.logFields("error", err)...)
				return
			}
		}
	}
}
