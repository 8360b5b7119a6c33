// Package notify carries lifecycle events to supervisor dashboards and
// follow-ups to customers.
package notify

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const writeTimeout = 5 * time.Second

var errUnknownObserver = errors.New("unknown observer")

// Hub fans events out to connected websocket observers. Delivery is
// best-effort, at most once per observer; a failing connection is dropped
// without blocking the publisher or the other observers. Writes to each
// connection are serialized through a per-connection mutex, since the
// websocket package permits at most one concurrent writer.
type Hub struct {
	Logger zerolog.Logger

	mu    sync.Mutex
	conns map[*websocket.Conn]*sync.Mutex
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		Logger: logger,
		conns:  map[*websocket.Conn]*sync.Mutex{},
	}
}

func (h *Hub) Add(conn *websocket.Conn) {
	h.mu.Lock()
	h.conns[conn] = &sync.Mutex{}
	h.mu.Unlock()
}

func (h *Hub) Remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	_ = conn.Close()
}

// Count reports the number of connected observers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *Hub) write(conn *websocket.Conn, connMu *sync.Mutex, v any) error {
	connMu.Lock()
	defer connMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(v)
}

// Reply writes one message to a single registered observer, serialized
// with concurrent broadcasts.
func (h *Hub) Reply(conn *websocket.Conn, v any) error {
	h.mu.Lock()
	connMu, ok := h.conns[conn]
	h.mu.Unlock()
	if !ok {
		return errUnknownObserver
	}
	return h.write(conn, connMu, v)
}

func (h *Hub) Publish(kind string, payload map[string]any) {
	message := map[string]any{"type": kind}
	for k, v := range payload {
		message[k] = v
	}

	type target struct {
		conn *websocket.Conn
		mu   *sync.Mutex
	}
	h.mu.Lock()
	targets := make([]target, 0, len(h.conns))
	for c, m := range h.conns {
		targets = append(targets, target{conn: c, mu: m})
	}
	h.mu.Unlock()

	for _, t := range targets {
		if err := h.write(t.conn, t.mu, message); err != nil {
			h.Logger.Warn().Err(err).Str("event", kind).Msg("dropping dead observer")
			h.Remove(t.conn)
		}
	}
}
