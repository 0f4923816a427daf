package server

import (
	"net/http"
	"time"

	"github.com/woozymasta/warden/internal/punish"
	"github.com/woozymasta/warden/internal/registry"
)

// Server holds the dependencies, configuration, and runtime state required
// to serve the peer endpoint and the HTTP API.
type Server struct {
	// store is the authority for player and server records and the directory.
	store *punish.Store

	// registry exposes live connection counts for the stats endpoint.
	registry *registry.Registry

	// peers is the WebSocket endpoint game servers and clients connect to.
	peers http.Handler

	// shutdown stops background helpers such as the rate limiter cache cleanup.
	shutdown chan struct{}

	// authToken is the secret token required to access administrative API endpoints.
	// An empty token disables them.
	authToken string

	// hardLimitCount is the maximum number of connection attempts allowed per IP address
	// within the hardLimitWin duration.
	hardLimitCount int

	// hardLimitWin is the time window duration for the hard rate limiter.
	hardLimitWin time.Duration

	// trustProxy indicates whether the server should trust headers like X-Forwarded-For
	// or CF-Connecting-IP when determining the client's real IP address.
	trustProxy bool
}
