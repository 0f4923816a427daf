// Package punish owns player and server records, their ban and punishment histories,
// the verified-server directory, and the periodic expiry sweep over them.
package punish

import (
	"cmp"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/woozymasta/warden/internal/directory"
	"github.com/woozymasta/warden/internal/models"
)

var (
	// ErrPlayerNotFound is returned when no player matches the HWID.
	ErrPlayerNotFound = errors.New("player not found")
	// ErrServerNotFound is returned when no server matches the lookup.
	ErrServerNotFound = errors.New("server not found")
	// ErrNotVerified is returned when a listing is requested for an unverified server.
	ErrNotVerified = errors.New("server is not verified")
	// ErrListRemoval is returned when a server carries an active list-removal punishment.
	ErrListRemoval = errors.New("server is removed from the list")
	// ErrInvalidIdentity is returned for empty HWIDs or out of range ports.
	ErrInvalidIdentity = errors.New("invalid identity")
	// ErrPersist wraps storage failures. The in-memory mutation is kept.
	ErrPersist = errors.New("persist failed")
)

const tokenBytes = 32

// Snapshotter is the durable storage behind the store.
type Snapshotter interface {
	Load() ([]models.Player, []models.Server, error)
	Save(players []models.Player, servers []models.Server) error
	Fresh() bool
}

// Store holds every player and server record and the directory derived from them.
// All mutation happens under one mutex, including Persist, so a snapshot
// never captures a half-applied change and storage writes never overlap.
type Store struct {
	repo    Snapshotter
	dir     *directory.Directory
	players map[string]*models.Player // by HWID
	servers map[string]*models.Server // by ID
	now     func() time.Time
	mu      sync.Mutex
}

// NewStore creates an empty store. Call Load before serving.
func NewStore(repo Snapshotter, dir *directory.Directory) *Store {
	if dir == nil {
		dir = directory.New(nil)
	}

	return &Store{
		repo:    repo,
		dir:     dir,
		players: make(map[string]*models.Player),
		servers: make(map[string]*models.Server),
		now:     time.Now,
	}
}

// Load replaces in-memory records with the stored snapshot.
// A freshly created storage file is written immediately so it exists before anything else runs.
func (s *Store) Load() error {
	players, servers, err := s.repo.Load()
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.players)
	clear(s.servers)

	for i := range players {
		p := players[i]
		p.BanHistory.Recompute()
		s.players[p.HWID] = &p
	}
	for i := range servers {
		srv := servers[i]
		srv.PunishmentHistory.Recompute()
		s.servers[srv.ID] = &srv
	}

	log.Info().
		Int("players", len(s.players)).
		Int("servers", len(s.servers)).
		Msg("Database loaded")

	if s.repo.Fresh() {
		log.Info().Msg("No database found, initializing a new one")
		return s.persistLocked()
	}

	return nil
}

// Persist writes the full snapshot to storage.
func (s *Store) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.persistLocked()
}

func (s *Store) persistLocked() error {
	players := make([]models.Player, 0, len(s.players))
	for _, p := range s.players {
		players = append(players, p.Clone())
	}
	slices.SortFunc(players, func(a, b models.Player) int { return cmp.Compare(a.HWID, b.HWID) })

	servers := make([]models.Server, 0, len(s.servers))
	for _, srv := range s.servers {
		servers = append(servers, srv.Clone())
	}
	slices.SortFunc(servers, func(a, b models.Server) int { return cmp.Compare(a.ID, b.ID) })

	if err := s.repo.Save(players, servers); err != nil {
		log.Error().Err(err).Msg("Failed to persist database")
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}

	return nil
}

// FindPlayer returns a copy of the player with the given HWID.
func (s *Store) FindPlayer(hwid string) (models.Player, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[hwid]
	if !ok {
		return models.Player{}, false
	}
	p.BanHistory.Recompute()

	return p.Clone(), true
}

// FindServer returns a copy of the first server matching pred.
func (s *Store) FindServer(pred func(models.Server) bool) (models.Server, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	srv := s.findServerLocked(pred)
	if srv == nil {
		return models.Server{}, false
	}
	srv.PunishmentHistory.Recompute()

	return srv.Clone(), true
}

func (s *Store) findServerLocked(pred func(models.Server) bool) *models.Server {
	for _, srv := range s.servers {
		if pred(*srv) {
			return srv
		}
	}

	return nil
}

// ServerByToken returns the server holding token.
func (s *Store) ServerByToken(token string) (models.Server, bool) {
	if token == "" {
		return models.Server{}, false
	}

	return s.FindServer(func(srv models.Server) bool { return srv.Token == token })
}

// ServerByID returns the server with the given ID.
func (s *Store) ServerByID(id string) (models.Server, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	srv, ok := s.servers[id]
	if !ok {
		return models.Server{}, false
	}
	srv.PunishmentHistory.Recompute()

	return srv.Clone(), true
}

// EnsurePlayer returns the player for hwid, creating it on first contact.
// Nickname and IP are refreshed when provided.
func (s *Store) EnsurePlayer(hwid, nickname, ip string) (models.Player, bool, error) {
	if hwid == "" {
		return models.Player{}, false, ErrInvalidIdentity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[hwid]
	created := !ok
	if created {
		p = &models.Player{
			ID:       s.uniqueIDLocked(),
			HWID:     hwid,
			Nickname: nickname,
			IP:       ip,
			Token:    s.uniqueTokenLocked(),
		}
		s.players[hwid] = p
		log.Info().Str("hwid", hwid).Str("id", p.ID).Str("nickname", nickname).Msg("New player registered")
	}

	changed := created
	if nickname != "" && p.Nickname != nickname {
		p.Nickname, changed = nickname, true
	}
	if ip != "" && p.IP != ip {
		p.IP, changed = ip, true
	}
	p.BanHistory.Recompute()

	if changed {
		if err := s.persistLocked(); err != nil {
			return p.Clone(), created, err
		}
	}

	return p.Clone(), created, nil
}

// EnsureServer returns the server for the (ip, port, hwid) triple,
// creating it with a fresh ID and token on first contact.
func (s *Store) EnsureServer(ip string, port int, hwid string) (models.Server, bool, error) {
	if ip == "" || hwid == "" || port <= 0 || port > 65535 {
		return models.Server{}, false, ErrInvalidIdentity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	srv := s.findServerLocked(func(x models.Server) bool {
		return x.IP == ip && x.Port == port && x.HWID == hwid
	})
	if srv != nil {
		srv.PunishmentHistory.Recompute()
		return srv.Clone(), false, nil
	}

	srv = &models.Server{
		ID:    s.uniqueIDLocked(),
		IP:    ip,
		Port:  port,
		HWID:  hwid,
		Token: s.uniqueTokenLocked(),
	}
	s.servers[srv.ID] = srv

	log.Info().Str("id", srv.ID).Str("ip", ip).Int("port", port).Msg("New server registered")

	if err := s.persistLocked(); err != nil {
		return srv.Clone(), true, err
	}

	return srv.Clone(), true, nil
}

// AddBan appends ban to the player's history with a fresh per-history ID,
// recomputes the history and persists. The stored ban is returned even when
// persisting fails; callers must treat ErrPersist as a failed operation.
func (s *Store) AddBan(hwid string, ban models.Ban) (models.Ban, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[hwid]
	if !ok {
		return models.Ban{}, ErrPlayerNotFound
	}

	ban.ID = p.BanHistory.AllocateID()
	ban.ActiveFrom = normalize(ban.ActiveFrom)
	ban.ActiveUntil = normalize(ban.ActiveUntil)
	p.BanHistory.Entries = append(p.BanHistory.Entries, ban)
	p.BanHistory.Expire(s.now())

	return ban, s.persistLocked()
}

// AddPunishment appends punishment to the server's history and persists.
// List-removal severities evict the server's listing at once.
func (s *Store) AddPunishment(serverID string, punishment models.Punishment) (models.Punishment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	srv, ok := s.servers[serverID]
	if !ok {
		return models.Punishment{}, ErrServerNotFound
	}

	punishment.ID = srv.PunishmentHistory.AllocateID()
	punishment.ActiveFrom = normalize(punishment.ActiveFrom)
	punishment.ActiveUntil = normalize(punishment.ActiveUntil)
	srv.PunishmentHistory.Entries = append(srv.PunishmentHistory.Entries, punishment)
	srv.PunishmentHistory.Expire(s.now())

	if !listable(srv, s.now()) {
		s.dir.Evict(srv.Token)
	}

	return punishment, s.persistLocked()
}

// SetVerified changes the verification flag. Unverifying evicts the listing.
func (s *Store) SetVerified(serverID string, verified bool) (models.Server, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	srv, ok := s.servers[serverID]
	if !ok {
		return models.Server{}, ErrServerNotFound
	}

	srv.IsVerified = verified
	if !verified {
		s.dir.Evict(srv.Token)
	}

	return srv.Clone(), s.persistLocked()
}

// GrantCapability adds c to the player's capability set.
func (s *Store) GrantCapability(hwid string, c models.Capability) (models.Player, error) {
	return s.updateCapabilities(hwid, func(caps []models.Capability) []models.Capability {
		if slices.Contains(caps, c) {
			return caps
		}
		return append(caps, c)
	})
}

// RevokeCapability removes c from the player's capability set.
func (s *Store) RevokeCapability(hwid string, c models.Capability) (models.Player, error) {
	return s.updateCapabilities(hwid, func(caps []models.Capability) []models.Capability {
		caps = slices.DeleteFunc(caps, func(x models.Capability) bool { return x == c })
		if len(caps) == 0 {
			return nil
		}
		return caps
	})
}

func (s *Store) updateCapabilities(hwid string, fn func([]models.Capability) []models.Capability) (models.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[hwid]
	if !ok {
		return models.Player{}, ErrPlayerNotFound
	}
	p.Capabilities = fn(p.Capabilities)

	return p.Clone(), s.persistLocked()
}

// UpdateListing records the server's live telemetry and lists it when it is
// verified and carries no active list-removal punishment. Otherwise any existing
// listing is evicted and ErrNotVerified or ErrListRemoval is returned.
func (s *Store) UpdateListing(token string, t models.Telemetry) (models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	srv := s.findServerLocked(func(x models.Server) bool { return token != "" && x.Token == token })
	if srv == nil {
		return models.Listing{}, ErrServerNotFound
	}

	if t.Name != "" {
		srv.Name = t.Name
	}
	if t.Link != "" {
		srv.Link = t.Link
	}
	srv.PlayersActive = t.PlayersActive
	srv.MaxPlayers = t.MaxPlayers

	now := s.now()
	switch {
	case !srv.IsVerified:
		s.dir.Evict(token)
		return models.Listing{}, ErrNotVerified
	case srv.PunishmentHistory.ListRemovalActive(now):
		s.dir.Evict(token)
		return models.Listing{}, ErrListRemoval
	}

	listing := models.Listing{
		ServerID:      srv.ID,
		Name:          srv.Name,
		IP:            srv.IP,
		Port:          srv.Port,
		PlayersActive: srv.PlayersActive,
		MaxPlayers:    srv.MaxPlayers,
		Link:          srv.Link,
		CountryCode:   t.CountryCode,
		UpdatedAt:     normalize(now),
	}
	s.dir.Upsert(token, listing)

	return listing, nil
}

// EvictListing removes the listing for token; it reports whether one existed.
func (s *Store) EvictListing(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.dir.Evict(token)
}

// IsListed reports whether token currently has a listing.
func (s *Store) IsListed(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.dir.Has(token)
}

// Listings returns a copy of the directory.
func (s *Store) Listings() []models.Listing {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.dir.Snapshot()
}

// Players returns copies of all players ordered by HWID.
func (s *Store) Players() []models.Player {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Player, 0, len(s.players))
	for _, p := range s.players {
		p.BanHistory.Recompute()
		out = append(out, p.Clone())
	}
	slices.SortFunc(out, func(a, b models.Player) int { return cmp.Compare(a.HWID, b.HWID) })

	return out
}

// Servers returns copies of all servers ordered by name, then ID.
func (s *Store) Servers() []models.Server {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Server, 0, len(s.servers))
	for _, srv := range s.servers {
		srv.PunishmentHistory.Recompute()
		out = append(out, srv.Clone())
	}
	slices.SortFunc(out, func(a, b models.Server) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})

	return out
}

// Stats summarizes the stored records.
func (s *Store) Stats() models.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := models.Stats{
		Players: len(s.players),
		Servers: len(s.servers),
		Listed:  s.dir.Len(),
	}
	for _, p := range s.players {
		st.Bans += len(p.BanHistory.Entries)
	}
	for _, srv := range s.servers {
		st.Punishments += len(srv.PunishmentHistory.Entries)
		if srv.IsVerified {
			st.Verified++
		}
	}

	return st
}

// listable reports whether srv may appear in the directory at now.
func listable(srv *models.Server, now time.Time) bool {
	return srv.IsVerified && !srv.PunishmentHistory.ListRemovalActive(now)
}

func (s *Store) uniqueIDLocked() string {
	for {
		id := uuid.NewString()
		_, taken := s.servers[id]
		if !taken && !s.playerIDTakenLocked(id) {
			return id
		}
	}
}

func (s *Store) playerIDTakenLocked(id string) bool {
	for _, p := range s.players {
		if p.ID == id {
			return true
		}
	}

	return false
}

func (s *Store) uniqueTokenLocked() string {
	for {
		token := newToken()
		if !s.tokenTakenLocked(token) {
			return token
		}
	}
}

func (s *Store) tokenTakenLocked(token string) bool {
	for _, p := range s.players {
		if p.Token == token {
			return true
		}
	}
	for _, srv := range s.servers {
		if srv.Token == token {
			return true
		}
	}

	return false
}

// newToken returns an unguessable hex token from the process CSPRNG.
func newToken() string {
	buf := make([]byte, tokenBytes)
	_, _ = rand.Read(buf) // crypto/rand.Read never returns an error

	return hex.EncodeToString(buf)
}

// normalize keeps timestamps in UTC at millisecond precision, matching storage.
func normalize(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}

	return t.UTC().Truncate(time.Millisecond)
}
