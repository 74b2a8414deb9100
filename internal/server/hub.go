// Package server owns the WebSocket transport and connection lifecycle.
// It registers connections, feeds inbound frames to the router, and
// guarantees that a disconnecting connection leaves every room exactly
// once before its handle is discarded.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rickgao/room-relay/internal/event"
	"github.com/rickgao/room-relay/internal/room"
	"github.com/rickgao/room-relay/internal/router"
)

// HubConfig configures the hub.
type HubConfig struct {
	Conn          ConnConfig
	AllowedOrigin string // "*" allows any origin
}

// Hub accepts WebSocket connections and drives their lifecycle:
// Connected -> (joins, leaves, events) -> Disconnected.
type Hub struct {
	cfg      HubConfig
	registry *room.Registry
	router   *router.Router
	logger   *slog.Logger

	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[uuid.UUID]*Conn
}

// NewHub creates a hub.
func NewHub(cfg HubConfig, registry *room.Registry, rt *router.Router, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Hub{
		cfg:      cfg,
		registry: registry,
		router:   rt,
		logger:   logger,
		conns:    make(map[uuid.UUID]*Conn),
	}

	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if cfg.AllowedOrigin == "*" || cfg.AllowedOrigin == "" {
				return true
			}
			origin := r.Header.Get("Origin")
			// Non-browser clients send no Origin header.
			return origin == "" || origin == cfg.AllowedOrigin
		},
	}

	return h
}

// ServeWS upgrades an HTTP request and runs the connection until it
// disconnects. The calling goroutine becomes the connection's read task.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	conn := newConn(sock, h.cfg.Conn, h.logger)
	h.register(conn)
	defer h.unregister(conn)

	go conn.writePump()

	conn.readLoop(func(data []byte) {
		h.handleFrame(conn, data)
	})
}

// handleFrame dispatches one inbound frame: join requests mutate the
// registry, everything else goes to the router.
func (h *Hub) handleFrame(conn *Conn, data []byte) {
	var probe struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		conn.Deliver(event.EncodeError(0, event.CodeMalformedEvent, "invalid json"))
		return
	}

	if probe.Event == event.NameJoin {
		h.handleJoin(conn, probe.Data)
		return
	}

	h.router.Route(conn, data)
}

// handleJoin processes a room:join request. Join is idempotent and sends
// no acknowledgment.
func (h *Hub) handleJoin(conn *Conn, data json.RawMessage) {
	var req event.JoinRequest
	if err := json.Unmarshal(data, &req); err != nil || req.RoomID <= 0 {
		conn.Deliver(event.EncodeError(0, event.CodeMalformedEvent, "roomId must be a positive integer"))
		return
	}

	h.registry.Join(conn, req.RoomID)
	h.logger.Info("client joined room",
		"conn_id", conn.ID(),
		"room_id", req.RoomID,
	)
}

// register adds a connection to the hub.
func (h *Hub) register(conn *Conn) {
	h.mu.Lock()
	h.conns[conn.ID()] = conn
	count := len(h.conns)
	h.mu.Unlock()

	h.logger.Info("client connected",
		"conn_id", conn.ID(),
		"connections", count,
	)
}

// unregister handles the transition to Disconnected: the connection
// leaves every room before its handle is discarded. Runs exactly once,
// synchronously with the disconnect.
func (h *Hub) unregister(conn *Conn) {
	h.registry.LeaveAll(conn)

	h.mu.Lock()
	delete(h.conns, conn.ID())
	count := len(h.conns)
	h.mu.Unlock()

	conn.Close()

	h.logger.Info("client disconnected",
		"conn_id", conn.ID(),
		"connections", count,
	)
}

// Connections returns a read-only snapshot of all current connections.
func (h *Hub) Connections() []room.Member {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]room.Member, 0, len(h.conns))
	for _, c := range h.conns {
		out = append(out, c)
	}
	return out
}

// ConnCount returns the number of live connections.
func (h *Hub) ConnCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// CloseAll closes every connection; used during shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
