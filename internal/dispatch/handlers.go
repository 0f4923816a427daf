package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/warden/internal/directory"
	"github.com/woozymasta/warden/internal/models"
	"github.com/woozymasta/warden/internal/protocol"
	"github.com/woozymasta/warden/internal/punish"
	"github.com/woozymasta/warden/internal/registry"
)

// ensureServer resolves or creates the record for the calling server and binds the peer to it.
func (d *Dispatcher) ensureServer(req *request) (models.Server, protocol.FailReason) {
	if req.peer.State() == registry.IdentifiedClient {
		log.Warn().Uint64("conn", req.peer.ID()).Msg("Server request from a client connection")
		return models.Server{}, protocol.FailUnauthorizedServer
	}

	port, ok := req.packet.IntArg(protocol.ArgPort)
	if !ok {
		port = req.peer.Identity().Port
	}

	id, ok := hwid(req)
	if !ok || port == 0 {
		return models.Server{}, protocol.FailMissingArgument
	}

	srv, _, err := d.store.EnsureServer(req.ip, port, id)
	switch {
	case errors.Is(err, punish.ErrInvalidIdentity):
		return models.Server{}, protocol.FailInvalidArgument
	case err != nil:
		return models.Server{}, protocol.FailPersist
	}

	ident := registry.Identity{IP: req.ip, HWID: id, Port: port, Token: srv.Token}
	if err := d.registry.ResolveRole(req.peer, registry.IdentifiedServer, ident); err != nil {
		log.Warn().Err(err).Uint64("conn", req.peer.ID()).Msg("Cannot bind connection to server")
		return models.Server{}, protocol.FailUnauthorizedServer
	}

	return srv, ""
}

// serverInfo returns the caller's server record, registering it on first contact.
func (d *Dispatcher) serverInfo(_ context.Context, req *request) protocol.Packet {
	reply := d.reply(req)

	srv, reason := d.ensureServer(req)
	if reason != "" {
		return reply.Fail(reason).Packet()
	}

	return reply.Success().
		Arg(protocol.ArgID, srv.ID).
		Arg(protocol.ArgIsVerified, srv.IsVerified).
		JSON(publicServer(srv)).
		Packet()
}

// downloadToken issues the server token. Repeated calls from the same server return the same token.
func (d *Dispatcher) downloadToken(_ context.Context, req *request) protocol.Packet {
	reply := d.reply(req)

	srv, reason := d.ensureServer(req)
	if reason != "" {
		return reply.Fail(reason).Packet()
	}

	return reply.Success().
		Arg(protocol.ArgID, srv.ID).
		Arg(protocol.ArgToken, srv.Token).
		Packet()
}

// playerInfo returns the public view of a player record.
func (d *Dispatcher) playerInfo(_ context.Context, req *request) protocol.Packet {
	reply := d.reply(req)

	if _, ok := d.boundServer(req); !ok {
		return reply.Fail(protocol.FailUnauthorizedServer).Packet()
	}

	id, ok := req.packet.Arg(protocol.ArgHWID)
	if !ok {
		return reply.Fail(protocol.FailMissingArgument).Packet()
	}

	p, ok := d.store.FindPlayer(id)
	if !ok {
		return reply.Arg(protocol.ArgHWID, id).Fail(protocol.FailUnknownPlayer).Packet()
	}

	return reply.Success().
		Arg(protocol.ArgHWID, id).
		JSON(p.Public()).
		Packet()
}

// banCheck tells a server whether a joining player is currently banned.
func (d *Dispatcher) banCheck(_ context.Context, req *request) protocol.Packet {
	reply := d.reply(req)

	if _, ok := d.boundServer(req); !ok {
		return reply.Fail(protocol.FailUnauthorizedServer).Packet()
	}

	id, ok := req.packet.Arg(protocol.ArgHWID)
	if !ok {
		return reply.Fail(protocol.FailMissingArgument).Packet()
	}

	p, ok := d.store.FindPlayer(id)
	if !ok {
		return reply.Arg(protocol.ArgHWID, id).Fail(protocol.FailUnknownPlayer).Packet()
	}

	now := time.Now()
	banned := false
	for _, b := range p.BanHistory.Entries {
		if b.Active(now) {
			banned = true
			reply.JSON(b)
		}
	}

	return reply.Success().
		Arg(protocol.ArgHWID, id).
		Arg(protocol.ArgBanned, banned).
		Arg(protocol.ArgIsPermanentActive, p.BanHistory.IsPermanentActive).
		Packet()
}

// boundServer resolves the calling peer to the server record it is bound to.
// Client connections and peers that never identified as a server are refused.
func (d *Dispatcher) boundServer(req *request) (models.Server, bool) {
	if req.peer.State() != registry.IdentifiedServer {
		return models.Server{}, false
	}

	token := req.peer.Identity().Token
	if token == "" {
		token, _ = req.packet.Arg(protocol.ArgToken)
	}

	srv, ok := d.store.ServerByToken(token)
	if !ok {
		return models.Server{}, false
	}
	req.peer.SetToken(srv.Token)

	return srv, true
}

// authCommand runs an admin command for the player named by HWID.
// Only verified servers may relay admin commands.
func (d *Dispatcher) authCommand(ctx context.Context, req *request) protocol.Packet {
	srv, ok := d.boundServer(req)
	if !ok || !srv.IsVerified {
		log.Warn().
			Uint64("conn", req.peer.ID()).
			Str("server", srv.ID).
			Msg("Admin command from unverified server refused")
		return d.reply(req).Fail(protocol.FailUnauthorizedServer).Packet()
	}

	issuerHWID, _ := req.packet.Arg(protocol.ArgHWID)
	issuer, ok := d.store.FindPlayer(issuerHWID)
	if !ok {
		return d.reply(req).Fail(protocol.FailUnauthorizedPlayer).Packet()
	}

	command, _ := req.packet.Arg(protocol.ArgCommand)
	log.Info().
		Str("server", srv.ID).
		Str("issuer", issuer.HWID).
		Str("command", command).
		Msg("Admin command received")

	return d.engine.Execute(ctx, issuer, command, req.packet.Args)
}

// dataUpdate records live telemetry and refreshes the server's listing.
func (d *Dispatcher) dataUpdate(_ context.Context, req *request) protocol.Packet {
	reply := d.reply(req)

	srv, ok := d.boundServer(req)
	if !ok {
		return reply.Fail(protocol.FailUnauthorizedServer).Packet()
	}

	t := models.Telemetry{}
	t.Name, _ = req.packet.Arg(protocol.ArgName)
	t.Link, _ = req.packet.Arg(protocol.ArgLink)
	t.PlayersActive, _ = req.packet.IntArg(protocol.ArgPlayersActive)
	t.MaxPlayers, _ = req.packet.IntArg(protocol.ArgMaxPlayers)
	if t.PlayersActive < 0 || t.MaxPlayers < 0 {
		return reply.Fail(protocol.FailInvalidArgument).Packet()
	}
	if d.geo != nil {
		t.CountryCode = d.geo.GetCountryCode(srv.IP)
	}

	listing, err := d.store.UpdateListing(srv.Token, t)
	switch {
	case errors.Is(err, punish.ErrNotVerified), errors.Is(err, punish.ErrServerNotFound):
		return reply.Fail(protocol.FailUnauthorizedServer).Packet()
	case errors.Is(err, punish.ErrListRemoval):
		return reply.Fail(protocol.FailServerPunished).Packet()
	case err != nil:
		return reply.Fail(protocol.FailPersist).Packet()
	}

	return reply.Success().JSON(listing).Packet()
}

// authenticate registers or refreshes the calling player and returns its token.
func (d *Dispatcher) authenticate(_ context.Context, req *request) protocol.Packet {
	reply := d.reply(req)

	id, ok := hwid(req)
	if !ok {
		return reply.Fail(protocol.FailMissingArgument).Packet()
	}
	nickname, _ := req.packet.Arg(protocol.ArgNickname)

	ident := registry.Identity{IP: req.ip, HWID: id, Nickname: nickname}
	if err := d.registry.ResolveRole(req.peer, registry.IdentifiedClient, ident); err != nil {
		return reply.Fail(protocol.FailUnauthorizedPlayer).Packet()
	}

	p, _, err := d.store.EnsurePlayer(id, nickname, req.ip)
	switch {
	case errors.Is(err, punish.ErrInvalidIdentity):
		return reply.Fail(protocol.FailInvalidArgument).Packet()
	case err != nil:
		return reply.Fail(protocol.FailPersist).Packet()
	}

	if p.BanHistory.IsPermanentActive {
		return reply.Fail(protocol.FailActiveBan).Packet()
	}

	return reply.Success().
		Arg(protocol.ArgID, p.ID).
		Arg(protocol.ArgToken, p.Token).
		Packet()
}

// downloadServerList returns the directory to a known, not permanently banned player.
func (d *Dispatcher) downloadServerList(_ context.Context, req *request) protocol.Packet {
	reply := d.reply(req)

	id, _ := hwid(req)
	p, ok := d.store.FindPlayer(id)
	if !ok {
		return reply.Fail(protocol.FailUnauthorizedPlayer).Packet()
	}

	if p.BanHistory.IsPermanentActive {
		return reply.Fail(protocol.FailActiveBan).Packet()
	}

	for _, l := range directory.Published(d.store.Listings()) {
		reply.JSON(l)
	}

	return reply.Success().Packet()
}
