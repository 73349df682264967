// Package server wires HTTP handlers into a ServeMux for the Veilchat relay.
package server

import (
	"log/slog"
	"net/http"

	"github.com/rs/cors"

	"github.com/veilchat/relay/internal/directory"
)

// SetupRoutes configures all application routes: health check, metrics,
// stats, the WebSocket relay endpoints, and the key directory API. The
// directory API is rate limited per IP; CORS applies to everything.
func SetupRoutes(cfg *Config, log *slog.Logger, hub *Hub, keys *directory.API) http.Handler {
	cfg.sanitize()

	wsHandler := NewWebSocketHandler(hub, cfg, log)
	limiter := newIPRateLimiter(cfg.APIRateLimit)

	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/healthz", HealthHandler)
	mux.Handle("/metrics", MetricsHandler())
	mux.HandleFunc("/stats", NewStatsHandler(hub))

	mux.HandleFunc("/ws", wsHandler)
	mux.HandleFunc("/ws/{room}", wsHandler)

	mux.Handle("POST /api/keys/upload", limiter.middleware(http.HandlerFunc(keys.Upload)))
	mux.Handle("GET /api/keys/{username}", limiter.middleware(http.HandlerFunc(keys.Get)))

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSAllow,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(mux)
}
