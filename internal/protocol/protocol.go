// Package protocol defines the packet model exchanged with game servers and clients.
package protocol

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// Header names.
const (
	HeaderSender        = "Sender"
	HeaderSenderAddress = "SenderAddress"
	HeaderRequestName   = "RequestName"
)

// Sender identifies who stamped a packet.
type Sender string

// Senders.
const (
	SenderServer        Sender = "Server"
	SenderServerClient  Sender = "ServerClient"
	SenderGameClient    Sender = "GameClient"
	SenderConsoleClient Sender = "ConsoleClient"
	SenderIdentity      Sender = "Identity"
	SenderAuthority     Sender = "Authority"
)

// IsServer reports whether packets from s are routed to the server handler table.
func (s Sender) IsServer() bool {
	return s == SenderServer || s == SenderServerClient
}

// IsClient reports whether packets from s are routed to the client handler table.
func (s Sender) IsClient() bool {
	return s == SenderGameClient || s == SenderConsoleClient
}

// Request names.
const (
	// Server origin
	RequestServerInfo    = "ServerInfo"
	RequestPlayerInfo    = "PlayerInfo"
	RequestAuthCommand   = "AuthCommand"
	RequestDataUpdate    = "DataUpdate"
	RequestDownloadToken = "DownloadToken"
	RequestBanCheck      = "BanCheck"

	// Client origin
	RequestDownloadServerList = "DownloadServerList"
	RequestAuthenticate       = "Authenticate"

	// Authority origin
	NotifyNewGlobalBan = "NewGlobalBan"
)

// Argument names.
const (
	ArgResult            = "Result"
	ArgFailReason        = "FailReason"
	ArgHWID              = "HWID"
	ArgTargetHWID        = "TargetHWID"
	ArgTargetServerID    = "TargetServerID"
	ArgNickname          = "Nickname"
	ArgRole              = "Role"
	ArgPort              = "Port"
	ArgToken             = "Token"
	ArgID                = "ID"
	ArgName              = "Name"
	ArgLink              = "Link"
	ArgPlayersActive     = "PlayersActive"
	ArgMaxPlayers        = "MaxPlayers"
	ArgCommand           = "Command"
	ArgReason            = "Reason"
	ArgDuration          = "Duration"
	ArgSeverity          = "Severity"
	ArgIsPermanent       = "IsPermanent"
	ArgIsVerified        = "IsVerified"
	ArgIsPermanentActive = "IsPermanentActive"
	ArgBanned            = "Banned"
	ArgBanID             = "BanID"
	ArgPunishmentID      = "PunishmentID"
	ArgActiveUntil       = "ActiveUntil"
)

// Result values.
const (
	ResultSuccess = "Success"
	ResultFailed  = "Failed"
)

// FailReason is the machine-readable cause carried with Result=Failed.
type FailReason string

// Fail reasons.
const (
	FailUnauthorizedPlayer  FailReason = "UNAUTHORIZED_PLAYER"
	FailUnauthorizedServer  FailReason = "UNAUTHORIZED_SERVER"
	FailUnknownPlayer       FailReason = "UNKNOWN_PLAYER"
	FailUnknownTargetPlayer FailReason = "UNKNOWN_TARGET_PLAYER"
	FailUnknownServer       FailReason = "UNKNOWN_SERVER"
	FailActiveBan           FailReason = "ACTIVE_BAN"
	FailUnknownCommand      FailReason = "UNKNOWN_COMMAND"
	FailServerPunished      FailReason = "SERVER_PUNISHED"
	FailMissingArgument     FailReason = "MISSING_ARGUMENT"
	FailInvalidArgument     FailReason = "INVALID_ARGUMENT"
	FailPersist             FailReason = "PERSIST_FAILED"
)

// ErrMalformed is returned for payloads that are not a packet.
var ErrMalformed = errors.New("malformed packet")

// Packet is one protocol message: headers, a flat argument map and an ordered content list.
type Packet struct {
	Headers map[string]string `json:"headers"`
	Args    map[string]string `json:"args,omitempty"`
	Content []string          `json:"content,omitempty"`
}

// Sender returns the Sender header.
func (p Packet) Sender() Sender {
	return Sender(p.Headers[HeaderSender])
}

// RequestName returns the RequestName header.
func (p Packet) RequestName() string {
	return p.Headers[HeaderRequestName]
}

// SenderAddress returns the SenderAddress header.
func (p Packet) SenderAddress() string {
	return p.Headers[HeaderSenderAddress]
}

// Arg returns the trimmed argument value and whether it was present and non-empty.
func (p Packet) Arg(name string) (string, bool) {
	v := strings.TrimSpace(p.Args[name])
	return v, v != ""
}

// IntArg parses an integer argument.
func (p Packet) IntArg(name string) (int, bool) {
	v, ok := p.Arg(name)
	if !ok {
		return 0, false
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}

	return n, true
}

// BoolArg parses a boolean argument; absent or unparsable values are false.
func (p Packet) BoolArg(name string) bool {
	v, _ := p.Arg(name)
	b, _ := strconv.ParseBool(v)

	return b
}

// Result returns the Result argument.
func (p Packet) Result() string {
	return p.Args[ArgResult]
}

// FailReason returns the FailReason argument.
func (p Packet) FailReason() FailReason {
	return FailReason(p.Args[ArgFailReason])
}

// Encode serializes a packet for the transport.
func Encode(p Packet) ([]byte, error) {
	return json.Marshal(p)
}

// Decode parses a transport payload. Packets without a Sender header are malformed.
func Decode(data []byte) (Packet, error) {
	var p Packet
	if err := json.Unmarshal(data, &p); err != nil {
		return Packet{}, errors.Join(ErrMalformed, err)
	}

	if p.Headers[HeaderSender] == "" {
		return Packet{}, ErrMalformed
	}

	return p, nil
}
