// Package dashboard implements the HTTP status surface: a health
// endpoint plus a websocket hub that rebroadcasts the Display worker's
// periodic snapshot, using a connection registry with a ping/pong
// heartbeat and a periodic snapshot-then-broadcast loop.
package dashboard

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Hub maintains the set of connected dashboard clients and broadcasts
// messages to all of them.
type Hub struct {
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	upgrader  websocket.Upgrader
}

// NewHub builds an empty Hub that accepts connections from any origin —
// this engine's dashboard is assumed to run behind the operator's own
// network boundary, not exposed publicly.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// HandleWebSocket upgrades the connection, registers it, and blocks in a
// read loop whose only purpose is detecting disconnects — the dashboard
// is read-only from the client's side.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("dashboard: upgrade error: %v", err)
		return
	}

	h.register(conn)
	defer func() {
		h.unregister(conn)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for range ticker.C {
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (h *Hub) register(conn *websocket.Conn) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	h.clients[conn] = true
	log.Printf("dashboard: client connected, total %d", len(h.clients))
}

func (h *Hub) unregister(conn *websocket.Conn) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		log.Printf("dashboard: client disconnected, total %d", len(h.clients))
	}
}

// Broadcast sends msg, JSON-encoded, to every connected client, dropping
// and closing any connection whose write fails.
func (h *Hub) Broadcast(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("dashboard: broadcast marshal error: %v", err)
		return
	}

	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	for client := range h.clients {
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Printf("dashboard: write error: %v", err)
			client.Close()
			delete(h.clients, client)
		}
	}
}
