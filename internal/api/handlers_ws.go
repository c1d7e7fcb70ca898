package api

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Cross-origin policy is handled at the gateway; the ui origin is not
	// known here
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 50 * time.Second
)

// handleWebSocket handles GET /ws - register a live notification connection.
// The user id comes from the X-User-ID header or, for browser clients that
// cannot set headers on websocket dials, the user query parameter.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		uid = r.URL.Query().Get("user")
	}
	if uid == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "user identity required", nil)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] Upgrade failed for user %s: %v", uid, err)
		return
	}

	s.hub.Register(uid, conn)

	go s.readLoop(uid, conn)
	go s.pingLoop(conn)
}

// readLoop drains client frames so pings are answered, and unregisters the
// connection when the peer goes away
func (s *Server) readLoop(uid string, conn *websocket.Conn) {
	defer func() {
		s.hub.Unregister(uid, conn)
		conn.Close()
	}()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for range ticker.C {
		if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
			return
		}
	}
}
