package notify

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

func dialHub(t *testing.T, hub *Hub) (*websocket.Conn, *websocket.Conn, func()) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	serverConns := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Add(conn)
		serverConns <- conn
	}))

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.Count() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("observer never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	serverConn := <-serverConns
	return conn, serverConn, func() {
		_ = conn.Close()
		srv.Close()
	}
}

func TestHubPublishReachesObserver(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	conn, _, cleanup := dialHub(t, hub)
	defer cleanup()

	hub.Publish("new_help_request", map[string]any{"request_id": "r1"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]any
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg["type"] != "new_help_request" || msg["request_id"] != "r1" {
		t.Fatalf("unexpected message: %v", msg)
	}
}

// Two publishers hitting the same observer at once must never write to
// the connection concurrently; the race detector catches violations.
func TestHubConcurrentPublishers(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	conn, _, cleanup := dialHub(t, hub)
	defer cleanup()

	const publishers = 8
	const perPublisher = 50

	done := make(chan struct{})
	received := 0
	go func() {
		defer close(done)
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		for received < publishers*perPublisher {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			received++
		}
	}()

	var wg sync.WaitGroup
	for p := 0; p < publishers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perPublisher; i++ {
				hub.Publish("new_help_request", map[string]any{"request_id": "r1"})
			}
		}()
	}
	wg.Wait()
	<-done

	if received != publishers*perPublisher {
		t.Fatalf("expected %d messages, got %d", publishers*perPublisher, received)
	}
}

func TestHubReplyOnlyToRegistered(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	conn, serverConn, cleanup := dialHub(t, hub)
	defer cleanup()

	if err := hub.Reply(serverConn, map[string]any{"type": "heartbeat"}); err != nil {
		t.Fatalf("reply to registered observer failed: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]any
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg["type"] != "heartbeat" {
		t.Fatalf("unexpected message: %v", msg)
	}

	hub.Remove(serverConn)
	if err := hub.Reply(serverConn, map[string]any{"type": "heartbeat"}); err == nil {
		t.Fatalf("expected error replying to removed observer")
	}
}

func TestHubDropsDeadObserver(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	conn, _, cleanup := dialHub(t, hub)
	defer cleanup()
	_ = conn.Close()

	// The first write after the close may still land in the socket buffer;
	// keep publishing until the hub notices.
	deadline := time.Now().Add(2 * time.Second)
	for hub.Count() > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("dead observer never dropped")
		}
		hub.Publish("request_resolved", map[string]any{"request_id": "r1"})
		time.Sleep(10 * time.Millisecond)
	}
}
