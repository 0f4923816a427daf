// Package registry tracks live peer connections and the identity each one has announced.
package registry

import (
	"errors"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/warden/internal/metrics"
	"github.com/woozymasta/warden/internal/transport"
	"golang.org/x/time/rate"
)

// State is the lifecycle stage of a peer.
type State int

// Peer states.
const (
	Pending State = iota
	IdentifiedServer
	IdentifiedClient
	Closed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case IdentifiedServer:
		return "server"
	case IdentifiedClient:
		return "client"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

var (
	// ErrRoleConflict is returned when a peer tries to change its resolved role.
	ErrRoleConflict = errors.New("peer role already resolved")
	// ErrPeerClosed is returned when resolving a peer that was removed.
	ErrPeerClosed = errors.New("peer closed")
	// ErrInvalidRole is returned for roles other than server or client.
	ErrInvalidRole = errors.New("invalid peer role")
)

// Identity is what a peer announces about itself.
type Identity struct {
	IP       string
	HWID     string
	Token    string
	Nickname string
	Port     int
}

// Peer is one connected endpoint.
type Peer struct {
	conn    transport.Conn
	limiter *rate.Limiter
	ident   Identity
	state   State
	mu      sync.Mutex
}

// Conn returns the transport connection.
func (p *Peer) Conn() transport.Conn { return p.conn }

// ID returns the connection ID.
func (p *Peer) ID() uint64 { return p.conn.ID() }

// Latency returns the last measured round trip.
func (p *Peer) Latency() time.Duration { return p.conn.Latency() }

// State returns the current lifecycle state.
func (p *Peer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state
}

// Identity returns a copy of the announced identity.
func (p *Peer) Identity() Identity {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.ident
}

// SetToken records the token issued to the peer.
func (p *Peer) SetToken(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ident.Token = token
}

// Allow reports whether the peer is within its packet rate.
func (p *Peer) Allow() bool {
	return p.limiter.Allow()
}

// Listings is the directory view the registry needs.
type Listings interface {
	EvictListing(token string) bool
	IsListed(token string) bool
}

// Registry owns the set of live peers. Lock order is registry, then store.
type Registry struct {
	listings Listings
	peers    map[uint64]*Peer
	rate     rate.Limit
	burst    int
	mu       sync.Mutex
}

// New creates a registry. Each peer may send packetRate packets per second with the given burst;
// a non-positive rate disables the limit.
func New(listings Listings, packetRate float64, burst int) *Registry {
	limit := rate.Limit(packetRate)
	if packetRate <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}

	return &Registry{
		listings: listings,
		peers:    make(map[uint64]*Peer),
		rate:     limit,
		burst:    burst,
	}
}

// Register adds a pending peer for conn. The IP is taken from the remote address.
func (r *Registry) Register(conn transport.Conn) *Peer {
	p := &Peer{
		conn:    conn,
		limiter: rate.NewLimiter(r.rate, r.burst),
		ident:   Identity{IP: hostOf(conn.RemoteAddr())},
		state:   Pending,
	}

	r.mu.Lock()
	r.peers[conn.ID()] = p
	r.mu.Unlock()

	metrics.Connections.WithLabelValues(Pending.String()).Inc()
	log.Debug().Uint64("conn", conn.ID()).Str("remote", conn.RemoteAddr()).Msg("Peer connected")

	return p
}

// Lookup returns the peer registered for a connection.
func (r *Registry) Lookup(conn transport.Conn) (*Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.peers[conn.ID()]

	return p, ok
}

// ResolveRole moves a pending peer to role and merges the announced identity.
// Re-announcing the same role refreshes the identity; a different role is rejected.
func (r *Registry) ResolveRole(p *Peer, role State, ident Identity) error {
	if role != IdentifiedServer && role != IdentifiedClient {
		return ErrInvalidRole
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case Closed:
		return ErrPeerClosed
	case Pending:
		metrics.Connections.WithLabelValues(Pending.String()).Dec()
		metrics.Connections.WithLabelValues(role.String()).Inc()
		p.state = role
		log.Debug().Uint64("conn", p.conn.ID()).Str("role", role.String()).Str("hwid", ident.HWID).Msg("Peer identified")
	case role:
	default:
		return ErrRoleConflict
	}

	if ident.IP != "" {
		p.ident.IP = ident.IP
	}
	if ident.HWID != "" {
		p.ident.HWID = ident.HWID
	}
	if ident.Token != "" {
		p.ident.Token = ident.Token
	}
	if ident.Nickname != "" {
		p.ident.Nickname = ident.Nickname
	}
	if ident.Port != 0 {
		p.ident.Port = ident.Port
	}

	return nil
}

// Remove closes the peer and evicts its listing before returning.
func (r *Registry) Remove(p *Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.peers[p.conn.ID()] == p {
		delete(r.peers, p.conn.ID())
	}

	p.mu.Lock()
	prev := p.state
	p.state = Closed
	token := p.ident.Token
	p.mu.Unlock()

	if prev == Closed {
		return
	}
	metrics.Connections.WithLabelValues(prev.String()).Dec()

	if prev == IdentifiedServer && token != "" && r.listings.EvictListing(token) {
		log.Info().Uint64("conn", p.conn.ID()).Msg("Server disconnected, listing removed")
	}
	log.Debug().Uint64("conn", p.conn.ID()).Str("role", prev.String()).Msg("Peer disconnected")
}

// VerifiedServers returns identified server peers whose token is currently listed.
func (r *Registry) VerifiedServers() []*Peer {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Peer
	for _, p := range r.peers {
		p.mu.Lock()
		state, token := p.state, p.ident.Token
		p.mu.Unlock()

		if state == IdentifiedServer && token != "" && r.listings.IsListed(token) {
			out = append(out, p)
		}
	}

	return out
}

// VerifiedServerConns returns the connections of VerifiedServers.
func (r *Registry) VerifiedServerConns() []transport.Conn {
	peers := r.VerifiedServers()
	conns := make([]transport.Conn, len(peers))
	for i, p := range peers {
		conns[i] = p.conn
	}

	return conns
}

// Count returns the number of live peers.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.peers)
}

func hostOf(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if _, err := strconv.Atoi(port); err != nil {
		return addr
	}

	return host
}
