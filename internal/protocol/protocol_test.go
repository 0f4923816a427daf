package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuilderReply(t *testing.T) {
	p := NewBuilder(SenderAuthority, "203.0.113.7").
		Request(RequestPlayerInfo).
		Fail(FailUnknownPlayer).
		Packet()

	require.Equal(t, SenderAuthority, p.Sender())
	require.Equal(t, "203.0.113.7", p.SenderAddress())
	require.Equal(t, RequestPlayerInfo, p.RequestName())
	require.Equal(t, ResultFailed, p.Result())
	require.Equal(t, FailUnknownPlayer, p.FailReason())
}

func TestEncodeDecode(t *testing.T) {
	in := NewBuilder(SenderServer, "10.0.0.1").
		Request(RequestDataUpdate).
		Arg(ArgPlayersActive, 12).
		Arg(ArgIsPermanent, true).
		JSON(map[string]int{"a": 1}).
		Packet()

	data, err := Encode(in)
	require.NoError(t, err)

	out, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, in, out)

	n, ok := out.IntArg(ArgPlayersActive)
	require.True(t, ok)
	require.Equal(t, 12, n)
	require.True(t, out.BoolArg(ArgIsPermanent))
	require.Equal(t, []string{`{"a":1}`}, out.Content)
}

func TestDecodeMalformed(t *testing.T) {
	_, err := Decode([]byte("not json"))
	require.ErrorIs(t, err, ErrMalformed)

	_, err = Decode([]byte(`{"headers":{"RequestName":"PlayerInfo"}}`))
	require.ErrorIs(t, err, ErrMalformed)
}

func TestSenderRouting(t *testing.T) {
	require.True(t, SenderServer.IsServer())
	require.True(t, SenderServerClient.IsServer())
	require.True(t, SenderGameClient.IsClient())
	require.True(t, SenderConsoleClient.IsClient())
	require.False(t, SenderIdentity.IsServer())
	require.False(t, SenderIdentity.IsClient())
}

func TestArgs(t *testing.T) {
	p := Packet{Args: map[string]string{ArgPort: " 7777 ", ArgName: "  "}}

	port, ok := p.IntArg(ArgPort)
	require.True(t, ok)
	require.Equal(t, 7777, port)

	_, ok = p.Arg(ArgName)
	require.False(t, ok)
	_, ok = p.IntArg(ArgHWID)
	require.False(t, ok)
	require.False(t, p.BoolArg(ArgIsPermanent))
}
