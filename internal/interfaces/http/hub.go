package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/pumpwatch/internal/alert"
)

const writeWait = 5 * time.Second

// Hub broadcasts every emitted alert to connected websocket clients. It is
// an alert.Sink, so the manager fans out to it like any other sink.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
	closed  bool
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Local ops endpoint; same-host tooling connects freely.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]bool),
	}
}

func (h *Hub) Name() string  { return "websocket" }
func (h *Hub) Enabled() bool { return true }

// Send broadcasts the alert as JSON to every client. A failed write drops
// that client; broadcast never fails as a whole.
func (h *Hub) Send(_ context.Context, a *alert.Alert) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(a); err != nil {
			log.Debug().Err(err).Msg("stream client dropped")
			conn.Close()
			delete(h.clients, conn)
		}
	}
	return nil
}

// ClientCount reports connected stream clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects all clients and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for conn := range h.clients {
		conn.Close()
	}
	h.clients = make(map[*websocket.Conn]bool)
}

// handleStream upgrades the connection and parks it in the client set. The
// read loop exists only to notice disconnects; clients do not send.
func (h *Hub) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("stream upgrade failed")
		return
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[conn] = true
	h.mu.Unlock()

	go func() {
		defer func() {
			h.mu.Lock()
			delete(h.clients, conn)
			h.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
