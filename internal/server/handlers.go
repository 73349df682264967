// Package server exposes HTTP handlers, including the WebSocket upgrade,
// health check, and runtime stats.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// NewWebSocketHandler returns the handler for WebSocket upgrade requests.
// It resolves the room identifier from the request path, falling back to the
// configured default room when the segment is absent, upgrades the
// connection, and hands the new client to the hub.
func NewWebSocketHandler(hub *Hub, cfg *Config, log *slog.Logger) http.HandlerFunc {
	cfg.sanitize()
	policy := newOriginPolicy(cfg.AllowedOrigins, log)
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     policy.check,
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		room := r.PathValue("room")
		if room == "" {
			room = cfg.DefaultRoom
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("websocket upgrade failed", "addr", r.RemoteAddr, "err", err)
			return
		}

		client := newClient(uuid.New().String(), room, conn, hub, r.RemoteAddr, cfg, log)

		// The hub queues the system notice and launches the pump goroutines.
		hub.register <- client
	}
}

// HealthHandler provides a simple health check endpoint.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Veilchat relay is running!")
}

// NewStatsHandler reports active room and client counts as JSON.
func NewStatsHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		rooms, clients := hub.Stats()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]int{"rooms": rooms, "clients": clients})
	}
}
