// Package authz executes privileged admin commands issued by players through game servers.
package authz

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"github.com/woozymasta/warden/internal/metrics"
	"github.com/woozymasta/warden/internal/models"
	"github.com/woozymasta/warden/internal/protocol"
	"github.com/woozymasta/warden/internal/punish"
	"github.com/woozymasta/warden/internal/transport"
)

// Commands.
const (
	CommandGlobalBanAdd        = "GlobalBanAdd"
	CommandServerPunishmentAdd = "ServerPunishmentAdd"
	CommandBanHistory          = "BanHistory"
)

// Store is the part of the punishment store the engine mutates.
type Store interface {
	FindPlayer(hwid string) (models.Player, bool)
	ServerByID(id string) (models.Server, bool)
	AddBan(hwid string, ban models.Ban) (models.Ban, error)
	AddPunishment(serverID string, punishment models.Punishment) (models.Punishment, error)
}

// Recipients lists the connections of listed servers that receive ban notifications.
type Recipients interface {
	VerifiedServerConns() []transport.Conn
}

type command struct {
	run        func(ctx context.Context, issuer models.Player, args protocol.Packet, reply *protocol.Builder) protocol.FailReason
	capability models.Capability
}

// Engine checks capabilities and runs admin commands.
type Engine struct {
	store      Store
	recipients Recipients
	commands   map[string]command
	now        func() time.Time
	address    string
}

// New creates an engine. address is stamped into every packet the engine builds.
func New(store Store, recipients Recipients, address string) *Engine {
	e := &Engine{
		store:      store,
		recipients: recipients,
		address:    address,
		now:        time.Now,
	}

	e.commands = map[string]command{
		CommandGlobalBanAdd:        {capability: models.CapGlobalBan, run: e.globalBanAdd},
		CommandServerPunishmentAdd: {capability: models.CapServerPunish, run: e.serverPunishmentAdd},
		CommandBanHistory:          {capability: models.CapBanView, run: e.banHistory},
	}

	return e
}

// Execute runs command on behalf of issuer and returns the AuthCommand reply.
// Nothing is mutated unless the issuer holds the command's capability.
func (e *Engine) Execute(ctx context.Context, issuer models.Player, command string, args map[string]string) protocol.Packet {
	reply := protocol.NewBuilder(protocol.SenderAuthority, e.address).
		Request(protocol.RequestAuthCommand).
		Arg(protocol.ArgCommand, command)

	cmd, ok := e.commands[command]
	if !ok {
		return reply.Fail(protocol.FailUnknownCommand).Packet()
	}

	if !issuer.HasCapability(cmd.capability) {
		log.Warn().
			Str("issuer", issuer.HWID).
			Str("command", command).
			Msg("Command refused: missing capability")
		return reply.Fail(protocol.FailUnauthorizedPlayer).Packet()
	}

	if reason := cmd.run(ctx, issuer, protocol.Packet{Args: args}, reply); reason != "" {
		return reply.Fail(reason).Packet()
	}

	return reply.Success().Packet()
}

func (e *Engine) globalBanAdd(ctx context.Context, issuer models.Player, args protocol.Packet, reply *protocol.Builder) protocol.FailReason {
	hwid, ok := args.Arg(protocol.ArgTargetHWID)
	if !ok {
		return protocol.FailMissingArgument
	}

	if _, ok := e.store.FindPlayer(hwid); !ok {
		return protocol.FailUnknownPlayer
	}

	now := e.now()
	permanent := args.BoolArg(protocol.ArgIsPermanent)
	until, reason := expiry(args, now, permanent)
	if reason != "" {
		return reason
	}

	reasonText, _ := args.Arg(protocol.ArgReason)
	ban, err := e.store.AddBan(hwid, models.Ban{
		Reason:      reasonText,
		IssuerID:    issuer.ID,
		ActiveFrom:  now,
		ActiveUntil: until,
		IsGlobal:    true,
		IsPermanent: permanent,
	})
	switch {
	case errors.Is(err, punish.ErrPlayerNotFound):
		return protocol.FailUnknownPlayer
	case err != nil:
		return protocol.FailPersist
	}

	metrics.BansIssued.Inc()
	ev := log.Info().
		Str("target", hwid).
		Str("issuer", issuer.HWID).
		Int("ban_id", ban.ID).
		Bool("permanent", ban.IsPermanent)
	if !ban.IsPermanent {
		ev = ev.Str("expires", humanize.Time(ban.ActiveUntil))
	}
	ev.Msg("Global ban added")

	e.notify(ctx, hwid, ban)
	reply.Arg(protocol.ArgTargetHWID, hwid).Arg(protocol.ArgBanID, ban.ID)

	return ""
}

// notify sends NewGlobalBan to every listed server. Delivery is best effort.
func (e *Engine) notify(ctx context.Context, hwid string, ban models.Ban) {
	b := protocol.NewBuilder(protocol.SenderAuthority, e.address).
		Request(protocol.NotifyNewGlobalBan).
		Arg(protocol.ArgHWID, hwid).
		Arg(protocol.ArgBanID, ban.ID).
		Arg(protocol.ArgReason, ban.Reason).
		Arg(protocol.ArgIsPermanent, ban.IsPermanent)
	if !ban.IsPermanent {
		b.Arg(protocol.ArgActiveUntil, ban.ActiveUntil.Format(time.RFC3339))
	}

	data, err := protocol.Encode(b.JSON(ban).Packet())
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode ban notification")
		return
	}

	var sent, failed int
	for _, conn := range e.recipients.VerifiedServerConns() {
		if ctx.Err() != nil {
			break
		}

		if err := conn.Send(data); err != nil {
			failed++
			metrics.BanNotifications.WithLabelValues("failed").Inc()
			log.Warn().Err(err).Uint64("conn", conn.ID()).Msg("Failed to notify server of global ban")
			continue
		}
		sent++
		metrics.BanNotifications.WithLabelValues("sent").Inc()
	}

	log.Debug().Str("target", hwid).Int("sent", sent).Int("failed", failed).Msg("Global ban broadcast")
}

func (e *Engine) serverPunishmentAdd(_ context.Context, issuer models.Player, args protocol.Packet, reply *protocol.Builder) protocol.FailReason {
	id, ok := args.Arg(protocol.ArgTargetServerID)
	if !ok {
		return protocol.FailMissingArgument
	}

	rawSeverity, ok := args.Arg(protocol.ArgSeverity)
	if !ok {
		return protocol.FailMissingArgument
	}
	severity, err := models.ParseSeverity(rawSeverity)
	if err != nil {
		return protocol.FailInvalidArgument
	}

	if _, ok := e.store.ServerByID(id); !ok {
		return protocol.FailUnknownServer
	}

	now := e.now()
	permanent := args.BoolArg(protocol.ArgIsPermanent)
	until, reason := expiry(args, now, permanent)
	if reason != "" {
		return reason
	}

	reasonText, _ := args.Arg(protocol.ArgReason)
	p, err := e.store.AddPunishment(id, models.Punishment{
		Severity:    severity,
		Reason:      reasonText,
		IssuerID:    issuer.ID,
		ActiveFrom:  now,
		ActiveUntil: until,
		IsGlobal:    true,
		IsPermanent: permanent,
	})
	switch {
	case errors.Is(err, punish.ErrServerNotFound):
		return protocol.FailUnknownServer
	case err != nil:
		return protocol.FailPersist
	}

	log.Info().
		Str("server", id).
		Str("issuer", issuer.HWID).
		Stringer("severity", severity).
		Int("punishment_id", p.ID).
		Msg("Server punishment added")

	reply.Arg(protocol.ArgTargetServerID, id).Arg(protocol.ArgPunishmentID, p.ID)

	return ""
}

func (e *Engine) banHistory(_ context.Context, _ models.Player, args protocol.Packet, reply *protocol.Builder) protocol.FailReason {
	hwid, ok := args.Arg(protocol.ArgTargetHWID)
	if !ok {
		return protocol.FailMissingArgument
	}

	target, ok := e.store.FindPlayer(hwid)
	if !ok {
		return protocol.FailUnknownTargetPlayer
	}

	reply.Arg(protocol.ArgTargetHWID, hwid).
		Arg(protocol.ArgIsPermanentActive, target.BanHistory.IsPermanentActive)
	for _, b := range target.BanHistory.Entries {
		reply.JSON(b)
	}

	return ""
}

// maxDurationSeconds is the largest whole-second count a time.Duration holds.
const maxDurationSeconds = math.MaxInt64 / int64(time.Second)

// expiry resolves the end of a non-permanent entry from the Duration argument,
// given either as a Go duration ("36h") or as whole seconds.
func expiry(args protocol.Packet, now time.Time, permanent bool) (time.Time, protocol.FailReason) {
	if permanent {
		return time.Time{}, ""
	}

	raw, ok := args.Arg(protocol.ArgDuration)
	if !ok {
		return time.Time{}, protocol.FailMissingArgument
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		secs, convErr := strconv.ParseInt(raw, 10, 64)
		if convErr != nil || secs <= 0 || secs > maxDurationSeconds {
			return time.Time{}, protocol.FailInvalidArgument
		}
		d = time.Duration(secs) * time.Second
	}
	if d <= 0 {
		return time.Time{}, protocol.FailInvalidArgument
	}

	return now.Add(d), ""
}
