package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Hub tracks the live connections on this instance. A user may hold any
// number of them (several tabs); every one receives each event.
type Hub struct {
	mu     sync.RWMutex
	users  map[uuid.UUID]map[string]*Connection
	logger *zap.Logger
}

var _ Publisher = (*Hub)(nil)

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		users:  make(map[uuid.UUID]map[string]*Connection),
		logger: logger.Named("hub"),
	}
}

// Attach registers conn and starts its write loop.
func (h *Hub) Attach(conn *Connection) {
	h.mu.Lock()
	conns := h.users[conn.UserID]
	if conns == nil {
		conns = make(map[string]*Connection)
		h.users[conn.UserID] = conns
	}
	conns[conn.ID] = conn
	h.mu.Unlock()

	conn.Start()
	h.logger.Debug("connection attached",
		zap.String("user_id", conn.UserID.String()),
		zap.String("conn_id", conn.ID),
	)
}

// Detach forgets conn. It does not close it.
func (h *Hub) Detach(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns := h.users[conn.UserID]
	delete(conns, conn.ID)
	if len(conns) == 0 {
		delete(h.users, conn.UserID)
	}
}

// Online returns how many live connections userID has here.
func (h *Hub) Online(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

// Publish encodes event once and enqueues it on each of userID's
// connections. A user with no connections is not an error.
func (h *Hub) Publish(_ context.Context, userID uuid.UUID, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	h.Deliver(userID, payload)
	return nil
}

// Deliver enqueues an already-encoded payload and reports how many
// connections accepted it.
func (h *Hub) Deliver(userID uuid.UUID, payload []byte) int {
	h.mu.RLock()
	targets := make([]*Connection, 0, len(h.users[userID]))
	for _, conn := range h.users[userID] {
		targets = append(targets, conn)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, conn := range targets {
		if err := conn.Send(payload); err != nil {
			h.logger.Warn("dropping event for connection",
				zap.String("user_id", userID.String()),
				zap.String("conn_id", conn.ID),
				zap.Error(err),
			)
			continue
		}
		delivered++
	}
	return delivered
}

// Close closes every tracked connection and empties the hub.
func (h *Hub) Close() {
	h.mu.Lock()
	var all []*Connection
	for _, conns := range h.users {
		for _, conn := range conns {
			all = append(all, conn)
		}
	}
	h.users = make(map[uuid.UUID]map[string]*Connection)
	h.mu.Unlock()

	for _, conn := range all {
		conn.Close(websocket.CloseGoingAway, "server shutdown")
	}
}
