package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/warden/internal/directory"
	"github.com/woozymasta/warden/internal/models"
	"github.com/woozymasta/warden/internal/punish"
	"github.com/woozymasta/warden/internal/vars"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleHealth reports liveness and the build version.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, vars.Ver())
}

// handleServers returns the public directory, or the marker entry when nothing is listed.
func (s *Server) handleServers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, directory.Published(s.store.Listings()))
}

// handleStats returns record counts and live connections.
// This endpoint is protected by AdminAuthMiddleware.
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		models.Stats
		Connections int `json:"connections"`
	}{
		Stats:       s.store.Stats(),
		Connections: s.registry.Count(),
	})
}

// handleGetServer returns one server record without its token.
// Query params: ?id=<server id>
func (s *Server) handleGetServer(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Missing required param (id)", http.StatusBadRequest)
		return
	}

	srv, ok := s.store.ServerByID(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	srv.Token = ""

	writeJSON(w, http.StatusOK, srv)
}

// handleVerifyServer sets the verified flag of a server.
// Query params: ?id=<server id>&verified=true
func (s *Server) handleVerifyServer(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	verified, err := strconv.ParseBool(r.URL.Query().Get("verified"))
	if id == "" || err != nil {
		http.Error(w, "Missing required params (id, verified)", http.StatusBadRequest)
		return
	}

	srv, err := s.store.SetVerified(id, verified)
	switch {
	case errors.Is(err, punish.ErrServerNotFound):
		http.NotFound(w, r)
		return
	case err != nil:
		log.Error().Err(err).Str("server", id).Msg("Failed to change server verification")
		http.Error(w, "Database Error", http.StatusInternalServerError)
		return
	}

	log.Info().Str("server", id).Bool("verified", verified).Msg("Server verification changed")
	srv.Token = ""
	writeJSON(w, http.StatusOK, srv)
}

// handleGetPlayer returns one player record with its capabilities but without its token.
// Query params: ?hwid=<hwid>
func (s *Server) handleGetPlayer(w http.ResponseWriter, r *http.Request) {
	hwid := r.URL.Query().Get("hwid")
	if hwid == "" {
		http.Error(w, "Missing required param (hwid)", http.StatusBadRequest)
		return
	}

	p, ok := s.store.FindPlayer(hwid)
	if !ok {
		http.NotFound(w, r)
		return
	}
	p.Token = ""

	writeJSON(w, http.StatusOK, p)
}

// handleCapability grants or revokes a player capability.
// Query params: ?hwid=<hwid>&cap=global_ban&grant=true
func (s *Server) handleCapability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	hwid, capability := q.Get("hwid"), models.Capability(q.Get("cap"))
	grant, err := strconv.ParseBool(q.Get("grant"))
	if hwid == "" || capability == "" || err != nil {
		http.Error(w, "Missing required params (hwid, cap, grant)", http.StatusBadRequest)
		return
	}
	if !capability.Known() {
		http.Error(w, "Unknown capability", http.StatusBadRequest)
		return
	}

	change := s.store.RevokeCapability
	if grant {
		change = s.store.GrantCapability
	}

	p, err := change(hwid, capability)
	switch {
	case errors.Is(err, punish.ErrPlayerNotFound):
		http.NotFound(w, r)
		return
	case err != nil:
		log.Error().Err(err).Str("hwid", hwid).Msg("Failed to change capability")
		http.Error(w, "Database Error", http.StatusInternalServerError)
		return
	}

	log.Info().Str("hwid", hwid).Str("capability", string(capability)).Bool("grant", grant).Msg("Capability changed")
	p.Token = ""
	writeJSON(w, http.StatusOK, p)
}
