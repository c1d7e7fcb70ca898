// Package notify delivers triggered alert notifications over the ui,
// webhook and email channels.
package notify

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/shielded-scanner/internal/models"
)

// Hub tracks live ui connections per user. One user may hold several
// concurrent connections; each connection belongs to exactly one user.
// The websocket protocol allows a single writer per connection, so every
// connection carries its own write lock and all frames go through it.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]map[*websocket.Conn]*sync.Mutex
}

// NewHub creates an empty connection hub
func NewHub() *Hub {
	return &Hub{conns: make(map[string]map[*websocket.Conn]*sync.Mutex)}
}

// Register adds a connection under the user's id
func (h *Hub) Register(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.conns[userID] == nil {
		h.conns[userID] = make(map[*websocket.Conn]*sync.Mutex)
	}
	h.conns[userID][conn] = &sync.Mutex{}
	log.Printf("[Hub] User %s connected (%d connections)", userID, len(h.conns[userID]))
}

// Unregister removes a connection. The caller closes the socket.
func (h *Hub) Unregister(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if set, ok := h.conns[userID]; ok {
		delete(set, conn)
		if len(set) == 0 {
			delete(h.conns, userID)
		}
	}
}

// ConnectionCount returns the number of live connections for a user
func (h *Hub) ConnectionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID])
}

// Push writes the notification to every live connection of the user.
// Returns true if at least one connection accepted the write. No live
// connections is a silent no-op: the notification row remains queryable.
// Safe for concurrent callers: writes to one connection are serialized
// on its write lock.
func (h *Hub) Push(ctx context.Context, userID string, n *models.AlertNotification) bool {
	payload, err := json.Marshal(n)
	if err != nil {
		log.Printf("[Hub] Failed to marshal notification %s: %v", n.ID, err)
		return false
	}

	type target struct {
		conn *websocket.Conn
		mu   *sync.Mutex
	}

	h.mu.RLock()
	targets := make([]target, 0, len(h.conns[userID]))
	for conn, mu := range h.conns[userID] {
		targets = append(targets, target{conn: conn, mu: mu})
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return true
	}

	delivered := false
	for _, t := range targets {
		t.mu.Lock()
		err := t.conn.WriteMessage(websocket.TextMessage, payload)
		t.mu.Unlock()

		if err != nil {
			log.Printf("[Hub] Failed to push to user %s: %v", userID, err)
			h.Unregister(userID, t.conn)
			t.conn.Close()
			continue
		}
		delivered = true
	}
	return delivered
}
