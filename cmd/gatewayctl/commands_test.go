package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/sessamekesh/gateway-client/internal/gatewaytest"
	gatewaymsg "github.com/sessamekesh/gateway-client/pkg/message/gateway"
	"github.com/sessamekesh/gateway-client/pkg/message/value"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func openTestSession(t *testing.T) (*Session, *bytes.Buffer, *gatewaytest.FakeGateway) {
	gw := gatewaytest.StartFakeGateway(t, nil)
	register := gatewaytest.StartFakeRegister(t, gw.Address())

	globals := &Globals{Register: []string{register.Address()}, Timeout: 2 * time.Second}
	s, err := globals.open(context.Background(), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(s.close)

	out := &bytes.Buffer{}
	s.out = out
	return s, out, gw
}

func TestParseBroadcastFlags(t *testing.T) {
	cli := &arguments{}
	parser, err := kong.New(cli)
	require.NoError(t, err)

	_, err = parser.Parse([]string{"--register=10.0.0.1:1236", "broadcast", "hello", "--group=a,b", "--raw"})
	require.NoError(t, err)
	require.Equal(t, []string{"10.0.0.1:1236"}, cli.Register)
	require.Equal(t, "hello", cli.Broadcast.Message)
	require.Equal(t, []string{"a", "b"}, cli.Broadcast.Group)
	require.True(t, cli.Broadcast.Raw)
}

func TestAddressesCommand(t *testing.T) {
	s, out, gw := openTestSession(t)

	require.NoError(t, (&AddressesCommand{}).Run(s))
	require.Equal(t, gw.Address()+"\n", out.String())
}

func TestSendCommandWithJsonBody(t *testing.T) {
	s, _, gw := openTestSession(t)

	cmd := &SendCommand{ClientId: gw.ClientId(t, 4), MessageArgs: MessageArgs{Message: `{"type":"ping"}`, Json: true}}
	require.NoError(t, cmd.Run(s))

	frame := gw.WaitForCommands(t, 1)[0]
	require.Equal(t, gatewaymsg.Command_SendToOne, frame.Cmd)
	require.True(t, frame.Body.IsStructured())
	require.True(t, value.Map(value.Pair("type", value.String("ping"))).Equal(frame.Body.Value()))
}

func TestCountCommand(t *testing.T) {
	s, out, gw := openTestSession(t)
	gw.ReplyWith(value.Int(12))

	require.NoError(t, (&CountCommand{Group: "room"}).Run(s))
	require.Equal(t, "12\n", out.String())
	require.Equal(t, "room", string(gw.Commands()[0].ExtData))
}

func TestSessionsCommandPrintsJson(t *testing.T) {
	s, out, gw := openTestSession(t)
	encoded, err := value.PHPCodec{}.Encode(value.Map(value.Pair("n", value.Int(1))))
	require.NoError(t, err)
	gw.ReplyWith(value.Map(value.IntPair(2, value.String(string(encoded)))))

	require.NoError(t, (&SessionsCommand{}).Run(s))
	require.Equal(t, `{"`+gw.ClientId(t, 2)+`":{"n":1}}`+"\n", out.String())
}

func TestGroupsCommandWithCounts(t *testing.T) {
	s, out, gw := openTestSession(t)
	gw.ReplyWith(value.Map(
		value.IntPair(1, value.Map(value.Pair("uid", value.String("u1")), value.Pair("groups", value.Strings("b", "a")))),
		value.IntPair(2, value.Map(value.Pair("uid", value.String("u2")), value.Pair("groups", value.Strings("a")))),
	))

	require.NoError(t, (&GroupsCommand{Counts: true}).Run(s))
	require.Equal(t, "a 2\nb 1\n", out.String())
}

func TestKickCommand(t *testing.T) {
	s, _, gw := openTestSession(t)

	require.NoError(t, (&KickCommand{ClientId: gw.ClientId(t, 8), Message: "bye"}).Run(s))

	frame := gw.WaitForCommands(t, 1)[0]
	require.Equal(t, gatewaymsg.Command_Kick, frame.Cmd)
	require.Equal(t, uint32(8), frame.ConnectionId)
	require.Equal(t, "bye", string(frame.Body.Bytes()))
}
