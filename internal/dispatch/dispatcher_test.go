package dispatch

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/woozymasta/warden/internal/authz"
	"github.com/woozymasta/warden/internal/directory"
	"github.com/woozymasta/warden/internal/models"
	"github.com/woozymasta/warden/internal/protocol"
	"github.com/woozymasta/warden/internal/punish"
	"github.com/woozymasta/warden/internal/registry"
	"github.com/woozymasta/warden/internal/transport"
)

type memSnapshot struct{}

func (memSnapshot) Load() ([]models.Player, []models.Server, error) { return nil, nil, nil }
func (memSnapshot) Save([]models.Player, []models.Server) error { return nil }
func (memSnapshot) Fresh() bool { return false }

type fakeConn struct {
	remote string
	sent   [][]byte
	id     uint64
	mu     sync.Mutex
}

func (c *fakeConn) ID() uint64 { return c.id }
func (c *fakeConn) RemoteAddr() string { return c.remote }
func (c *fakeConn) Latency() time.Duration { return 0 }
func (c *fakeConn) Close() error { return nil }
func (c *fakeConn) Send(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, b)
	return nil
}

func (c *fakeConn) replies(t *testing.T) []protocol.Packet {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]protocol.Packet, 0, len(c.sent))
	for _, b := range c.sent {
		p, err := protocol.Decode(b)
		require.NoError(t, err)
		out = append(out, p)
	}

	return out
}

type staticGeo string

func (g staticGeo) GetCountryCode(string) string { return string(g) }

type env struct {
	store *punish.Store
	reg   *registry.Registry
	d     *Dispatcher
	next  uint64
}

func newEnv(t *testing.T) *env {
	t.Helper()

	store := punish.NewStore(memSnapshot{}, nil)
	reg := registry.New(store, 0, 0)
	engine := authz.New(store, reg, "authority:7000")
	d := New(context.Background(), store, reg, engine, Options{Address: "authority:7000", Geo: staticGeo("DE")})

	return &env{store: store, reg: reg, d: d}
}

func (e *env) connect(remote string) *fakeConn {
	e.next++
	c := &fakeConn{id: e.next, remote: remote}
	e.d.OnConnect(c)

	return c
}

// request sends a reliable-ordered packet and returns the reply, if any.
func (e *env) request(t *testing.T, c *fakeConn, sender protocol.Sender, name string, args map[string]string) (protocol.Packet, bool) {
	t.Helper()

	b := protocol.NewBuilder(sender, "").Request(name)
	for k, v := range args {
		b.Arg(k, v)
	}
	data, err := protocol.Encode(b.Packet())
	require.NoError(t, err)

	before := len(c.replies(t))
	e.d.OnMessage(c, transport.Message{Delivery: transport.ReliableOrdered, Payload: data})

	got := c.replies(t)
	if len(got) == before {
		return protocol.Packet{}, false
	}

	return got[len(got)-1], true
}

func (e *env) mustRequest(t *testing.T, c *fakeConn, sender protocol.Sender, name string, args map[string]string) protocol.Packet {
	t.Helper()

	reply, ok := e.request(t, c, sender, name, args)
	require.True(t, ok, "no reply to %s", name)
	require.Equal(t, protocol.SenderAuthority, reply.Sender())
	require.Equal(t, "authority:7000", reply.SenderAddress())
	require.Equal(t, name, reply.RequestName())

	return reply
}

// registeredServer connects a server and binds it to a fresh, unverified record.
func (e *env) registeredServer(t *testing.T, remote, hwid string) (*fakeConn, string) {
	t.Helper()

	c := e.connect(remote)
	reply := e.mustRequest(t, c, protocol.SenderServer, protocol.RequestDownloadToken, map[string]string{
		protocol.ArgPort: "7777", protocol.ArgHWID: hwid,
	})
	require.Equal(t, protocol.ResultSuccess, reply.Result())

	return c, reply.Args[protocol.ArgID]
}

// listedServer connects a server, verifies it and lists it through DataUpdate.
func (e *env) listedServer(t *testing.T, remote, hwid string) (*fakeConn, string) {
	t.Helper()

	c, id := e.registeredServer(t, remote, hwid)
	_, err := e.store.SetVerified(id, true)
	require.NoError(t, err)

	reply := e.mustRequest(t, c, protocol.SenderServer, protocol.RequestDataUpdate, map[string]string{
		protocol.ArgName: "Server " + hwid, protocol.ArgPlayersActive: "3", protocol.ArgMaxPlayers: "32",
	})
	require.Equal(t, protocol.ResultSuccess, reply.Result())

	return c, id
}

func TestPlayerInfoUnknown(t *testing.T) {
	e := newEnv(t)
	c, _ := e.registeredServer(t, "10.0.0.1:4000", "EE:FF")

	reply := e.mustRequest(t, c, protocol.SenderServer, protocol.RequestPlayerInfo, map[string]string{
		protocol.ArgHWID: "AA:BB",
	})
	require.Equal(t, protocol.ResultFailed, reply.Result())
	require.Equal(t, protocol.FailUnknownPlayer, reply.FailReason())
}

func TestPlayerInfoHidesSecrets(t *testing.T) {
	e := newEnv(t)
	_, _, err := e.store.EnsurePlayer("AA:BB", "alpha", "10.9.9.9")
	require.NoError(t, err)
	_, err = e.store.GrantCapability("AA:BB", models.CapGlobalBan)
	require.NoError(t, err)

	c, _ := e.registeredServer(t, "10.0.0.1:4000", "EE:FF")
	reply := e.mustRequest(t, c, protocol.SenderServer, protocol.RequestPlayerInfo, map[string]string{
		protocol.ArgHWID: "AA:BB",
	})
	require.Equal(t, protocol.ResultSuccess, reply.Result())
	require.Len(t, reply.Content, 1)

	var p models.Player
	require.NoError(t, json.Unmarshal([]byte(reply.Content[0]), &p))
	require.Equal(t, "alpha", p.Nickname)
	require.Empty(t, p.Token)
	require.Empty(t, p.Capabilities)
}

func TestDroppedPackets(t *testing.T) {
	e := newEnv(t)
	c := e.connect("10.0.0.1:4000")

	data, err := protocol.Encode(protocol.NewBuilder(protocol.SenderServer, "").
		Request(protocol.RequestPlayerInfo).Arg(protocol.ArgHWID, "AA:BB").Packet())
	require.NoError(t, err)

	for _, d := range []transport.Delivery{transport.ReliableUnordered, transport.Sequenced, transport.Unreliable} {
		e.d.OnMessage(c, transport.Message{Delivery: d, Payload: data})
	}
	e.d.OnMessage(c, transport.Message{Delivery: transport.ReliableOrdered, Payload: []byte("{broken")})

	_, ok := e.request(t, c, protocol.SenderServer, "Reboot", nil)
	require.False(t, ok)
	_, ok = e.request(t, c, protocol.SenderGameClient, protocol.RequestPlayerInfo, nil)
	require.False(t, ok)
	_, ok = e.request(t, c, protocol.SenderAuthority, protocol.RequestPlayerInfo, nil)
	require.False(t, ok)

	require.Empty(t, c.replies(t))
}

func TestRateLimitDrops(t *testing.T) {
	e := newEnv(t)
	e.reg = registry.New(e.store, 1, 2)
	e.d = New(context.Background(), e.store, e.reg, authz.New(e.store, e.reg, ""), Options{Address: "authority:7000"})
	c, _ := e.registeredServer(t, "10.0.0.1:4000", "EE:FF")

	args := map[string]string{protocol.ArgHWID: "AA:BB"}
	_, ok := e.request(t, c, protocol.SenderServer, protocol.RequestPlayerInfo, args)
	require.True(t, ok)
	_, ok = e.request(t, c, protocol.SenderServer, protocol.RequestPlayerInfo, args)
	require.False(t, ok)
}

func TestDownloadTokenIdempotent(t *testing.T) {
	e := newEnv(t)
	c := e.connect("10.0.0.5:4000")
	args := map[string]string{protocol.ArgPort: "7777", protocol.ArgHWID: "EE:FF"}

	first := e.mustRequest(t, c, protocol.SenderServer, protocol.RequestDownloadToken, args)
	second := e.mustRequest(t, c, protocol.SenderServer, protocol.RequestDownloadToken, args)

	require.Equal(t, protocol.ResultSuccess, first.Result())
	require.NotEmpty(t, first.Args[protocol.ArgToken])
	require.Equal(t, first.Args[protocol.ArgToken], second.Args[protocol.ArgToken])
	require.Equal(t, first.Args[protocol.ArgID], second.Args[protocol.ArgID])
	require.Len(t, e.store.Servers(), 1)

	missing := e.mustRequest(t, e.connect("10.0.0.5:4001"), protocol.SenderServer, protocol.RequestDownloadToken, map[string]string{protocol.ArgHWID: "EE:FF"})
	require.Equal(t, protocol.FailMissingArgument, missing.FailReason())
}

func TestServerInfoHidesToken(t *testing.T) {
	e := newEnv(t)
	c := e.connect("10.0.0.5:4000")

	reply := e.mustRequest(t, c, protocol.SenderServer, protocol.RequestServerInfo, map[string]string{
		protocol.ArgPort: "7777", protocol.ArgHWID: "EE:FF",
	})
	require.Equal(t, protocol.ResultSuccess, reply.Result())
	require.Equal(t, "false", reply.Args[protocol.ArgIsVerified])

	var srv models.Server
	require.NoError(t, json.Unmarshal([]byte(reply.Content[0]), &srv))
	require.Equal(t, "10.0.0.5", srv.IP)
	require.Empty(t, srv.Token)
}

func TestDataUpdateRequiresVerifiedServer(t *testing.T) {
	e := newEnv(t)
	c := e.connect("10.0.0.5:4000")

	reply := e.mustRequest(t, c, protocol.SenderServer, protocol.RequestDataUpdate, nil)
	require.Equal(t, protocol.FailUnauthorizedServer, reply.FailReason())

	e.mustRequest(t, c, protocol.SenderServer, protocol.RequestDownloadToken, map[string]string{
		protocol.ArgPort: "7777", protocol.ArgHWID: "EE:FF",
	})
	reply = e.mustRequest(t, c, protocol.SenderServer, protocol.RequestDataUpdate, map[string]string{protocol.ArgName: "x"})
	require.Equal(t, protocol.FailUnauthorizedServer, reply.FailReason())
	require.Empty(t, e.store.Listings())
}

func TestDataUpdateListsServer(t *testing.T) {
	e := newEnv(t)
	_, id := e.listedServer(t, "10.0.0.5:4000", "EE:FF")

	listings := e.store.Listings()
	require.Len(t, listings, 1)
	require.Equal(t, id, listings[0].ServerID)
	require.Equal(t, "DE", listings[0].CountryCode)
	require.Equal(t, 3, listings[0].PlayersActive)
	require.Equal(t, 32, listings[0].MaxPlayers)
}

func TestDataUpdatePunishedServer(t *testing.T) {
	e := newEnv(t)
	c, id := e.listedServer(t, "10.0.0.5:4000", "EE:FF")

	_, err := e.store.AddPunishment(id, models.Punishment{Severity: models.PermanentServerListRemoval, IsPermanent: true})
	require.NoError(t, err)
	require.Empty(t, e.store.Listings())

	reply := e.mustRequest(t, c, protocol.SenderServer, protocol.RequestDataUpdate, map[string]string{protocol.ArgName: "back"})
	require.Equal(t, protocol.FailServerPunished, reply.FailReason())
	require.Empty(t, e.store.Listings())
}

func TestDisconnectEvictsListing(t *testing.T) {
	e := newEnv(t)
	c, _ := e.listedServer(t, "10.0.0.5:4000", "EE:FF")
	require.Len(t, e.store.Listings(), 1)

	e.d.OnDisconnect(c)

	require.Empty(t, e.store.Listings())
	require.Zero(t, e.reg.Count())
}

func TestDownloadServerList(t *testing.T) {
	e := newEnv(t)
	client := e.connect("192.0.2.1:5000")

	reply := e.mustRequest(t, client, protocol.SenderGameClient, protocol.RequestDownloadServerList, map[string]string{
		protocol.ArgHWID: "AA:BB",
	})
	require.Equal(t, protocol.FailUnauthorizedPlayer, reply.FailReason())

	_, ok := e.request(t, client, protocol.SenderIdentity, "", map[string]string{
		protocol.ArgRole: "Client", protocol.ArgHWID: "AA:BB", protocol.ArgNickname: "alpha",
	})
	require.False(t, ok)

	reply = e.mustRequest(t, client, protocol.SenderGameClient, protocol.RequestDownloadServerList, nil)
	require.Equal(t, protocol.ResultSuccess, reply.Result())
	require.Len(t, reply.Content, 1)
	require.Contains(t, reply.Content[0], directory.NoServersMarker)

	e.listedServer(t, "10.0.0.5:4000", "EE:FF")
	e.listedServer(t, "10.0.0.6:4000", "GG:HH")

	reply = e.mustRequest(t, client, protocol.SenderGameClient, protocol.RequestDownloadServerList, nil)
	require.Equal(t, protocol.ResultSuccess, reply.Result())
	require.Len(t, reply.Content, 2)

	var l models.Listing
	require.NoError(t, json.Unmarshal([]byte(reply.Content[0]), &l))
	require.Equal(t, "Server EE:FF", l.Name)
	require.NotContains(t, reply.Content[0], "token")
}

func TestActiveBanBlocksClient(t *testing.T) {
	e := newEnv(t)
	_, _, err := e.store.EnsurePlayer("CC:DD", "target", "")
	require.NoError(t, err)
	_, err = e.store.AddBan("CC:DD", models.Ban{IsGlobal: true, IsPermanent: true})
	require.NoError(t, err)

	client := e.connect("192.0.2.1:5000")
	reply := e.mustRequest(t, client, protocol.SenderGameClient, protocol.RequestDownloadServerList, map[string]string{
		protocol.ArgHWID: "CC:DD",
	})
	require.Equal(t, protocol.FailActiveBan, reply.FailReason())

	reply = e.mustRequest(t, client, protocol.SenderGameClient, protocol.RequestAuthenticate, map[string]string{
		protocol.ArgHWID: "CC:DD",
	})
	require.Equal(t, protocol.FailActiveBan, reply.FailReason())
}

func TestAuthenticate(t *testing.T) {
	e := newEnv(t)
	client := e.connect("192.0.2.1:5000")

	first := e.mustRequest(t, client, protocol.SenderConsoleClient, protocol.RequestAuthenticate, map[string]string{
		protocol.ArgHWID: "AA:BB", protocol.ArgNickname: "alpha",
	})
	require.Equal(t, protocol.ResultSuccess, first.Result())
	require.NotEmpty(t, first.Args[protocol.ArgToken])

	second := e.mustRequest(t, client, protocol.SenderConsoleClient, protocol.RequestAuthenticate, nil)
	require.Equal(t, first.Args[protocol.ArgToken], second.Args[protocol.ArgToken])

	p, ok := e.store.FindPlayer("AA:BB")
	require.True(t, ok)
	require.Equal(t, "192.0.2.1", p.IP)
	require.Equal(t, "alpha", p.Nickname)

	reply := e.mustRequest(t, client, protocol.SenderServer, protocol.RequestServerInfo, map[string]string{
		protocol.ArgPort: "7777", protocol.ArgHWID: "AA:BB",
	})
	require.Equal(t, protocol.FailUnauthorizedServer, reply.FailReason())
}

func TestBanCheck(t *testing.T) {
	e := newEnv(t)
	_, _, err := e.store.EnsurePlayer("CC:DD", "target", "")
	require.NoError(t, err)

	c, _ := e.registeredServer(t, "10.0.0.5:4000", "EE:FF")
	reply := e.mustRequest(t, c, protocol.SenderServer, protocol.RequestBanCheck, map[string]string{protocol.ArgHWID: "CC:DD"})
	require.Equal(t, "false", reply.Args[protocol.ArgBanned])

	_, err = e.store.AddBan("CC:DD", models.Ban{ActiveFrom: time.Now().Add(-time.Minute), ActiveUntil: time.Now().Add(time.Hour)})
	require.NoError(t, err)

	reply = e.mustRequest(t, c, protocol.SenderServer, protocol.RequestBanCheck, map[string]string{protocol.ArgHWID: "CC:DD"})
	require.Equal(t, protocol.ResultSuccess, reply.Result())
	require.Equal(t, "true", reply.Args[protocol.ArgBanned])
	require.Equal(t, "false", reply.Args[protocol.ArgIsPermanentActive])
	require.Len(t, reply.Content, 1)
}

func TestAuthCommandGlobalBan(t *testing.T) {
	e := newEnv(t)
	_, _, err := e.store.EnsurePlayer("AD:MN", "admin", "")
	require.NoError(t, err)
	_, err = e.store.GrantCapability("AD:MN", models.CapGlobalBan)
	require.NoError(t, err)
	_, _, err = e.store.EnsurePlayer("CC:DD", "target", "")
	require.NoError(t, err)

	issuing, _ := e.listedServer(t, "10.0.0.5:4000", "EE:FF")
	other, _ := e.listedServer(t, "10.0.0.6:4000", "GG:HH")
	unlisted := e.connect("10.0.0.7:4000")
	e.mustRequest(t, unlisted, protocol.SenderServer, protocol.RequestDownloadToken, map[string]string{
		protocol.ArgPort: "7777", protocol.ArgHWID: "II:JJ",
	})

	reply := e.mustRequest(t, issuing, protocol.SenderServer, protocol.RequestAuthCommand, map[string]string{
		protocol.ArgHWID:        "AD:MN",
		protocol.ArgCommand:     authz.CommandGlobalBanAdd,
		protocol.ArgTargetHWID:  "CC:DD",
		protocol.ArgReason:      "wallhack",
		protocol.ArgIsPermanent: "true",
	})
	require.Equal(t, protocol.ResultSuccess, reply.Result())

	for _, c := range []*fakeConn{issuing, other} {
		var notified bool
		for _, p := range c.replies(t) {
			if p.RequestName() == protocol.NotifyNewGlobalBan {
				notified = true
				require.Equal(t, "CC:DD", p.Args[protocol.ArgHWID])
			}
		}
		require.True(t, notified)
	}
	for _, p := range unlisted.replies(t) {
		require.NotEqual(t, protocol.NotifyNewGlobalBan, p.RequestName())
	}

	for range 10 {
		_, err := e.store.Sweep(time.Now().Add(24 * time.Hour))
		require.NoError(t, err)
	}
	target, _ := e.store.FindPlayer("CC:DD")
	require.True(t, target.BanHistory.IsPermanentActive)

	client := e.connect("192.0.2.1:5000")
	reply = e.mustRequest(t, client, protocol.SenderGameClient, protocol.RequestDownloadServerList, map[string]string{
		protocol.ArgHWID: "CC:DD",
	})
	require.Equal(t, protocol.FailActiveBan, reply.FailReason())
}

func TestAuthCommandRejections(t *testing.T) {
	e := newEnv(t)
	c := e.connect("10.0.0.5:4000")

	reply := e.mustRequest(t, c, protocol.SenderServer, protocol.RequestAuthCommand, map[string]string{
		protocol.ArgHWID: "AD:MN", protocol.ArgCommand: authz.CommandGlobalBanAdd,
	})
	require.Equal(t, protocol.FailUnauthorizedServer, reply.FailReason())

	reply = e.mustRequest(t, c, protocol.SenderServer, protocol.RequestDownloadToken, map[string]string{
		protocol.ArgPort: "7777", protocol.ArgHWID: "EE:FF",
	})
	_, err := e.store.SetVerified(reply.Args[protocol.ArgID], true)
	require.NoError(t, err)

	reply = e.mustRequest(t, c, protocol.SenderServer, protocol.RequestAuthCommand, map[string]string{
		protocol.ArgHWID: "AD:MN", protocol.ArgCommand: authz.CommandGlobalBanAdd,
	})
	require.Equal(t, protocol.FailUnauthorizedPlayer, reply.FailReason())

	_, _, err = e.store.EnsurePlayer("AD:MN", "admin", "")
	require.NoError(t, err)

	reply = e.mustRequest(t, c, protocol.SenderServer, protocol.RequestAuthCommand, map[string]string{
		protocol.ArgHWID: "AD:MN", protocol.ArgCommand: authz.CommandGlobalBanAdd, protocol.ArgTargetHWID: "CC:DD",
	})
	require.Equal(t, protocol.FailUnauthorizedPlayer, reply.FailReason())

	reply = e.mustRequest(t, c, protocol.SenderServer, protocol.RequestAuthCommand, map[string]string{
		protocol.ArgHWID: "AD:MN", protocol.ArgCommand: "Format",
	})
	require.Equal(t, protocol.FailUnknownCommand, reply.FailReason())
}

func TestAuthCommandFromUnverifiedServer(t *testing.T) {
	e := newEnv(t)
	_, _, err := e.store.EnsurePlayer("AD:MN", "admin", "")
	require.NoError(t, err)
	_, err = e.store.GrantCapability("AD:MN", models.CapGlobalBan)
	require.NoError(t, err)
	_, _, err = e.store.EnsurePlayer("CC:DD", "victim", "")
	require.NoError(t, err)

	rogue := e.connect("6.6.6.6:4000")
	reply := e.mustRequest(t, rogue, protocol.SenderServer, protocol.RequestServerInfo, map[string]string{
		protocol.ArgPort: "1", protocol.ArgHWID: "rogue",
	})
	require.Equal(t, protocol.ResultSuccess, reply.Result())
	require.Equal(t, "false", reply.Args[protocol.ArgIsVerified])

	reply = e.mustRequest(t, rogue, protocol.SenderServer, protocol.RequestAuthCommand, map[string]string{
		protocol.ArgHWID:        "AD:MN",
		protocol.ArgCommand:     authz.CommandGlobalBanAdd,
		protocol.ArgTargetHWID:  "CC:DD",
		protocol.ArgIsPermanent: "true",
	})
	require.Equal(t, protocol.ResultFailed, reply.Result())
	require.Equal(t, protocol.FailUnauthorizedServer, reply.FailReason())

	victim, _ := e.store.FindPlayer("CC:DD")
	require.Empty(t, victim.BanHistory.Entries)
	require.False(t, victim.BanHistory.IsPermanentActive)
}

func TestServerQueriesRefuseClients(t *testing.T) {
	e := newEnv(t)
	_, _, err := e.store.EnsurePlayer("CC:DD", "victim", "2.2.2.2")
	require.NoError(t, err)

	client := e.connect("192.0.2.1:5000")
	reply := e.mustRequest(t, client, protocol.SenderGameClient, protocol.RequestAuthenticate, map[string]string{
		protocol.ArgHWID: "AA:BB",
	})
	require.Equal(t, protocol.ResultSuccess, reply.Result())

	pending := e.connect("192.0.2.2:5000")

	for _, c := range []*fakeConn{client, pending} {
		for _, name := range []string{protocol.RequestPlayerInfo, protocol.RequestBanCheck} {
			reply := e.mustRequest(t, c, protocol.SenderServer, name, map[string]string{protocol.ArgHWID: "CC:DD"})
			require.Equal(t, protocol.ResultFailed, reply.Result())
			require.Equal(t, protocol.FailUnauthorizedServer, reply.FailReason())
			require.Empty(t, reply.Content)
		}
	}
}

func TestHandlerPanicRecovered(t *testing.T) {
	e := newEnv(t)
	e.d.server["Explode"] = func(context.Context, *request) protocol.Packet { panic("boom") }
	c, _ := e.registeredServer(t, "10.0.0.1:4000", "EE:FF")

	reply := e.mustRequest(t, c, protocol.SenderServer, "Explode", nil)
	require.Equal(t, protocol.ResultFailed, reply.Result())
	require.Equal(t, protocol.FailInvalidArgument, reply.FailReason())

	reply = e.mustRequest(t, c, protocol.SenderServer, protocol.RequestPlayerInfo, map[string]string{protocol.ArgHWID: "AA:BB"})
	require.Equal(t, protocol.FailUnknownPlayer, reply.FailReason())
}

func TestTrustSenderAddress(t *testing.T) {
	e := newEnv(t)
	e.d.trust = true
	c := e.connect("127.0.0.1:4000")

	data, err := protocol.Encode(protocol.NewBuilder(protocol.SenderGameClient, "198.51.100.4:27015").
		Request(protocol.RequestAuthenticate).Arg(protocol.ArgHWID, "AA:BB").Packet())
	require.NoError(t, err)
	e.d.OnMessage(c, transport.Message{Delivery: transport.ReliableOrdered, Payload: data})

	p, ok := e.store.FindPlayer("AA:BB")
	require.True(t, ok)
	require.Equal(t, "198.51.100.4", p.IP)
}
