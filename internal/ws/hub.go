package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"hms-sync/internal/models"
)

const writeWait = 10 * time.Second

type client struct {
	conn *websocket.Conn
	info ConnInfo
	mu   sync.Mutex
}

func (c *client) write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub maintains browser connections grouped by user id. One user may have
// several tabs open.
type Hub struct {
	rooms map[string]map[*websocket.Conn]*client
	mu    sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*websocket.Conn]*client)}
}

// AddClient registers conn in the room of info.UserID.
func (h *Hub) AddClient(conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[info.UserID]; !ok {
		h.rooms[info.UserID] = make(map[*websocket.Conn]*client)
	}
	h.rooms[info.UserID][conn] = &client{conn: conn, info: info}
}

// RemoveClient drops conn from userID's room.
func (h *Hub) RemoveClient(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[userID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.rooms, userID)
		}
	}
}

// ClientCount returns the number of connections open for userID.
func (h *Hub) ClientCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[userID])
}

// BroadcastToUser sends ev to every connection of userID. Connections that
// fail to accept the write are closed and removed.
func (h *Hub) BroadcastToUser(userID string, ev models.StateEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		zap.S().Errorw("encode state event", "type", ev.Type, "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*client, 0, len(h.rooms[userID]))
	for _, c := range h.rooms[userID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.write(payload); err != nil {
			zap.S().Warnw("websocket write error", c.info.logFields("error", err)...)
			c.conn.Close()
			h.RemoveClient(userID, c.conn)
			h.publishWSError(c.info, err)
		}
	}
}

// SendTo writes ev to a single connection.
func (h *Hub) SendTo(userID string, conn *websocket.Conn, ev models.StateEvent) error {
	h.mu.RLock()
	c, ok := h.rooms[userID][conn]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return c.write(payload)
}

func (h *Hub) publishWSError(info ConnInfo, err error) {
	publishLifecycle(context.Background(), "ws_error", info, err.Error())
}
