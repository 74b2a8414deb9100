package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rickgao/room-relay/internal/room"
	"github.com/rickgao/room-relay/internal/router"
	"github.com/rickgao/room-relay/internal/store"
)

// NewHandler builds the relay's HTTP surface: the WebSocket endpoint, a
// health check, and runtime stats.
func NewHandler(startTime time.Time, hub *Hub, registry *room.Registry, rt *router.Router, dispatcher *store.Dispatcher) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", hub.ServeWS)

	// Response shape kept stable for operational compatibility:
	// {status, timestamp, uptime}.
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(struct {
			Status    string  `json:"status"`
			Timestamp string  `json:"timestamp"`
			Uptime    float64 `json:"uptime"`
		}{
			Status:    "ok",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Uptime:    time.Since(startTime).Seconds(),
		})
	})

	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(struct {
			Connections int                   `json:"connections"`
			Rooms       int                   `json:"rooms"`
			Router      router.Stats          `json:"router"`
			Persistence store.DispatcherStats `json:"persistence"`
		}{
			Connections: hub.ConnCount(),
			Rooms:       registry.RoomCount(),
			Router:      rt.Stats(),
			Persistence: dispatcher.Stats(),
		})
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("Room relay running"))
	})

	return mux
}
