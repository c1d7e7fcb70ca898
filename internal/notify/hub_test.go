package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shielded-scanner/internal/models"
)

// dialTestConn upgrades a real websocket pair and registers the server side
// with the hub, returning the client side for reading.
func dialTestConn(t *testing.T, hub *Hub, userID string) *websocket.Conn {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Register(userID, conn)
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	require.Eventually(t, func() bool {
		return hub.ConnectionCount(userID) == 1
	}, time.Second, 10*time.Millisecond)

	return client
}

func TestPush_DeliversToConnection(t *testing.T) {
	hub := NewHub()
	client := dialTestConn(t, hub, "user-1")

	ok := hub.Push(context.Background(), "user-1", &models.AlertNotification{ID: "n-1", Message: "hello"})
	require.True(t, ok)

	client.SetReadDeadline(time.Now().Add(time.Second))
	var received models.AlertNotification
	require.NoError(t, client.ReadJSON(&received))
	assert.Equal(t, "n-1", received.ID)
}

func TestPush_ConcurrentDeliveries(t *testing.T) {
	hub := NewHub()
	client := dialTestConn(t, hub, "user-1")

	const pushes = 8

	// Drain the client side so writes never block on a full buffer
	got := make(chan struct{}, pushes)
	go func() {
		client.SetReadDeadline(time.Now().Add(5 * time.Second))
		for {
			if _, _, err := client.ReadMessage(); err != nil {
				return
			}
			got <- struct{}{}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < pushes; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("Push panicked under concurrent delivery: %v", r)
				}
			}()
			hub.Push(context.Background(), "user-1", &models.AlertNotification{ID: "n-1", Message: "x"})
		}(i)
	}
	wg.Wait()

	for i := 0; i < pushes; i++ {
		select {
		case <-got:
		case <-time.After(2 * time.Second):
			t.Fatalf("received %d of %d concurrent pushes", i, pushes)
		}
	}

	if hub.ConnectionCount("user-1") != 1 {
		t.Errorf("connection dropped during concurrent delivery")
	}
}

func TestUnregister_RemovesConnection(t *testing.T) {
	hub := NewHub()
	client := dialTestConn(t, hub, "user-1")
	_ = client

	hub.mu.RLock()
	var conn *websocket.Conn
	for c := range hub.conns["user-1"] {
		conn = c
	}
	hub.mu.RUnlock()

	hub.Unregister("user-1", conn)
	assert.Equal(t, 0, hub.ConnectionCount("user-1"))
}
