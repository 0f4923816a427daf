// Package dispatch routes decoded packets from peers to request handlers and sends the replies back.
package dispatch

import (
	"context"
	"net"
	"runtime/debug"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/warden/internal/authz"
	"github.com/woozymasta/warden/internal/metrics"
	"github.com/woozymasta/warden/internal/models"
	"github.com/woozymasta/warden/internal/protocol"
	"github.com/woozymasta/warden/internal/punish"
	"github.com/woozymasta/warden/internal/registry"
	"github.com/woozymasta/warden/internal/transport"
)

// CountryResolver maps an IP address to an ISO country code.
type CountryResolver interface {
	GetCountryCode(ip string) string
}

// Options configures the dispatcher.
type Options struct {
	// Geo is optional.
	Geo CountryResolver
	// Address is stamped as SenderAddress on every reply.
	Address string
	// TrustSenderAddress takes the peer IP from the SenderAddress header instead of the socket.
	TrustSenderAddress bool
}

type handlerFunc func(ctx context.Context, req *request) protocol.Packet

// request is one inbound packet with the peer that sent it.
type request struct {
	peer   *registry.Peer
	packet protocol.Packet
	ip     string
}

// Dispatcher implements transport.Handler on top of the registry, the store and the authz engine.
type Dispatcher struct {
	ctx      context.Context
	store    *punish.Store
	registry *registry.Registry
	engine   *authz.Engine
	geo      CountryResolver
	server   map[string]handlerFunc
	client   map[string]handlerFunc
	address  string
	trust    bool
}

// New creates a dispatcher. ctx bounds the work started by handlers.
func New(ctx context.Context, store *punish.Store, reg *registry.Registry, engine *authz.Engine, opts Options) *Dispatcher {
	d := &Dispatcher{
		ctx:      ctx,
		store:    store,
		registry: reg,
		engine:   engine,
		geo:      opts.Geo,
		address:  opts.Address,
		trust:    opts.TrustSenderAddress,
	}

	d.server = map[string]handlerFunc{
		protocol.RequestServerInfo:    d.serverInfo,
		protocol.RequestPlayerInfo:    d.playerInfo,
		protocol.RequestAuthCommand:   d.authCommand,
		protocol.RequestDataUpdate:    d.dataUpdate,
		protocol.RequestDownloadToken: d.downloadToken,
		protocol.RequestBanCheck:      d.banCheck,
	}
	d.client = map[string]handlerFunc{
		protocol.RequestDownloadServerList: d.downloadServerList,
		protocol.RequestAuthenticate:       d.authenticate,
	}

	return d
}

var _ transport.Handler = (*Dispatcher)(nil)

// OnConnect registers a pending peer.
func (d *Dispatcher) OnConnect(c transport.Conn) {
	d.registry.Register(c)
}

// OnDisconnect removes the peer and evicts its listing.
func (d *Dispatcher) OnDisconnect(c transport.Conn) {
	if p, ok := d.registry.Lookup(c); ok {
		d.registry.Remove(p)
	}
}

// OnMessage runs one inbound frame through the dispatch pipeline.
func (d *Dispatcher) OnMessage(c transport.Conn, m transport.Message) {
	if m.Delivery != transport.ReliableOrdered {
		metrics.Dropped.WithLabelValues("delivery").Inc()
		log.Debug().Uint64("conn", c.ID()).Stringer("delivery", m.Delivery).Msg("Dropped packet: unsupported delivery method")
		return
	}

	peer, ok := d.registry.Lookup(c)
	if !ok {
		return
	}

	pkt, err := protocol.Decode(m.Payload)
	if err != nil {
		metrics.Dropped.WithLabelValues("malformed").Inc()
		log.Warn().Err(err).Uint64("conn", c.ID()).Msg("Dropped packet: cannot decode")
		return
	}

	if !peer.Allow() {
		metrics.Dropped.WithLabelValues("rate").Inc()
		log.Warn().Uint64("conn", c.ID()).Str("request", pkt.RequestName()).Msg("Dropped packet: rate limit")
		return
	}

	req := &request{peer: peer, packet: pkt, ip: d.peerIP(peer, pkt)}

	sender := pkt.Sender()
	if sender == protocol.SenderIdentity {
		d.identify(req)
		return
	}

	var table map[string]handlerFunc
	switch {
	case sender.IsServer():
		table = d.server
	case sender.IsClient():
		table = d.client
	default:
		metrics.Dropped.WithLabelValues("sender").Inc()
		log.Debug().Uint64("conn", c.ID()).Str("sender", string(sender)).Msg("Dropped packet: unknown sender")
		return
	}

	handler, ok := table[pkt.RequestName()]
	if !ok {
		metrics.Dropped.WithLabelValues("request").Inc()
		log.Debug().Uint64("conn", c.ID()).Str("sender", string(sender)).Str("request", pkt.RequestName()).Msg("Ignored unknown request")
		return
	}

	metrics.Packets.WithLabelValues(string(sender), pkt.RequestName()).Inc()

	reply := d.call(handler, req)

	if reply.Result() == protocol.ResultFailed {
		metrics.Failures.WithLabelValues(string(reply.FailReason())).Inc()
	}

	d.send(peer, reply)
}

// call runs a handler. A panic is logged and answered with a failure.
func (d *Dispatcher) call(h handlerFunc, req *request) (reply protocol.Packet) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("request", req.packet.RequestName()).
				Uint64("conn", req.peer.ID()).
				Bytes("stack", debug.Stack()).
				Msg("Handler panicked")
			reply = d.reply(req).Fail(protocol.FailInvalidArgument).Packet()
		}
	}()

	return h(d.ctx, req)
}

func (d *Dispatcher) send(peer *registry.Peer, reply protocol.Packet) {
	data, err := protocol.Encode(reply)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode reply")
		return
	}

	if err := peer.Conn().Send(data); err != nil {
		log.Warn().Err(err).Uint64("conn", peer.ID()).Str("request", reply.RequestName()).Msg("Failed to send reply")
	}
}

// identify applies a Sender=Identity packet. It never produces a reply.
func (d *Dispatcher) identify(req *request) {
	pkt := req.packet

	role := registry.IdentifiedClient
	switch r, _ := pkt.Arg(protocol.ArgRole); strings.ToLower(r) {
	case "server":
		role = registry.IdentifiedServer
	case "client", "":
	default:
		log.Debug().Uint64("conn", req.peer.ID()).Str("role", r).Msg("Ignored identity with unknown role")
		return
	}

	ident := registry.Identity{IP: req.ip}
	ident.HWID, _ = pkt.Arg(protocol.ArgHWID)
	ident.Nickname, _ = pkt.Arg(protocol.ArgNickname)
	ident.Token, _ = pkt.Arg(protocol.ArgToken)
	ident.Port, _ = pkt.IntArg(protocol.ArgPort)

	if err := d.registry.ResolveRole(req.peer, role, ident); err != nil {
		log.Warn().Err(err).Uint64("conn", req.peer.ID()).Str("role", role.String()).Msg("Identity rejected")
		return
	}

	if role == registry.IdentifiedClient && ident.HWID != "" {
		if _, _, err := d.store.EnsurePlayer(ident.HWID, ident.Nickname, ident.IP); err != nil {
			log.Error().Err(err).Str("hwid", ident.HWID).Msg("Failed to register player")
		}
	}
}

// peerIP returns the address used for identity records.
func (d *Dispatcher) peerIP(peer *registry.Peer, pkt protocol.Packet) string {
	if d.trust {
		if addr := pkt.SenderAddress(); addr != "" {
			if host, _, err := net.SplitHostPort(addr); err == nil {
				return host
			}
			return addr
		}
	}

	return peer.Identity().IP
}

// reply starts the response to req.
func (d *Dispatcher) reply(req *request) *protocol.Builder {
	return protocol.NewBuilder(protocol.SenderAuthority, d.address).Request(req.packet.RequestName())
}

// hwid returns the HWID argument, falling back to the identity the peer announced.
func hwid(req *request) (string, bool) {
	if v, ok := req.packet.Arg(protocol.ArgHWID); ok {
		return v, true
	}

	v := req.peer.Identity().HWID

	return v, v != ""
}

// publicServer strips the secret token before a record leaves the service.
func publicServer(s models.Server) models.Server {
	s.Token = ""
	return s
}
