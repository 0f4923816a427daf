// Package server implements the HTTP server, middleware, and request handlers for the application.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/woozymasta/warden/internal/config"
	"github.com/woozymasta/warden/internal/punish"
	"github.com/woozymasta/warden/internal/registry"
)

// New creates a new Server. peers serves the WebSocket upgrade at /ws.
func New(store *punish.Store, reg *registry.Registry, peers http.Handler, cfg *config.Config) *Server {
	return &Server{
		store:          store,
		registry:       reg,
		peers:          peers,
		authToken:      cfg.Server.AuthToken,
		trustProxy:     cfg.Server.TrustProxy,
		hardLimitCount: cfg.RateLimit.HardLimitCount,
		hardLimitWin:   cfg.RateLimit.HardLimitWin,
		shutdown:       make(chan struct{}),
	}
}

// Close stops background helpers.
func (s *Server) Close() {
	close(s.shutdown)
}

// Run configures the HTTP routes and returns the main handler.
func (s *Server) Run() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /ws", s.RateLimitMiddleware(s.RealIPMiddleware(s.peers)))
	mux.Handle("GET /api/servers", http.HandlerFunc(s.handleServers))
	mux.Handle("GET /health", http.HandlerFunc(s.handleHealth))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.Handle("GET /api/stats", AdminAuthMiddleware(s.authToken, http.HandlerFunc(s.handleStats)))
	mux.Handle("GET /api/server", AdminAuthMiddleware(s.authToken, http.HandlerFunc(s.handleGetServer)))
	mux.Handle("POST /api/server/verify", AdminAuthMiddleware(s.authToken, http.HandlerFunc(s.handleVerifyServer)))
	mux.Handle("GET /api/player", AdminAuthMiddleware(s.authToken, http.HandlerFunc(s.handleGetPlayer)))
	mux.Handle("POST /api/player/capability", AdminAuthMiddleware(s.authToken, http.HandlerFunc(s.handleCapability)))

	return s.LoggingMiddleware(mux)
}
