package gatewaytest

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/sessamekesh/gateway-client/pkg/clientid"
	"github.com/sessamekesh/gateway-client/pkg/message/gateway"
	"github.com/sessamekesh/gateway-client/pkg/message/value"
	"github.com/stretchr/testify/require"
)

// Handler decides the reply to one request frame. Returning false sends nothing back.
type Handler func(frame *gateway.Frame) (value.Value, bool)

type FakeGateway struct {
	listener   net.Listener
	serializer gateway.FrameSerializer

	mut_state   sync.Mutex
	handler     Handler
	silent      bool
	drop        bool
	frames      []*gateway.Frame
	connections []net.Conn
}

func StartFakeGateway(t testing.TB, codec value.Codec) *FakeGateway {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	g := &FakeGateway{
		listener:   listener,
		serializer: gateway.FrameSerializer{Codec: codec},
	}
	t.Cleanup(g.close)

	go g.serve()
	return g
}

func (g *FakeGateway) Address() string {
	return g.listener.Addr().String()
}

// ClientId names connection connectionId on this gateway.
func (g *FakeGateway) ClientId(t testing.TB, connectionId uint32) string {
	ip, port, err := clientid.SplitAddress(g.Address())
	require.NoError(t, err)
	return clientid.Encode(ip, port, connectionId)
}

func (g *FakeGateway) Handle(handler Handler) {
	g.mut_state.Lock()
	defer g.mut_state.Unlock()
	g.handler = handler
}

// ReplyWith answers every non-auth frame with v.
func (g *FakeGateway) ReplyWith(v value.Value) {
	g.Handle(func(*gateway.Frame) (value.Value, bool) { return v, true })
}

// Hang keeps connections open without ever replying.
func (g *FakeGateway) Hang() {
	g.mut_state.Lock()
	defer g.mut_state.Unlock()
	g.silent = true
}

// Drop closes every connection as soon as a command frame arrives, without replying.
func (g *FakeGateway) Drop() {
	g.mut_state.Lock()
	defer g.mut_state.Unlock()
	g.drop = true
}

func (g *FakeGateway) Frames() []*gateway.Frame {
	g.mut_state.Lock()
	defer g.mut_state.Unlock()
	return append([]*gateway.Frame{}, g.frames...)
}

// Commands lists received frames without the auth frames.
func (g *FakeGateway) Commands() []*gateway.Frame {
	commands := []*gateway.Frame{}
	for _, frame := range g.Frames() {
		if frame.Cmd != gateway.Command_GatewayClientConnect {
			commands = append(commands, frame)
		}
	}
	return commands
}

func (g *FakeGateway) ConnectionCount() int {
	g.mut_state.Lock()
	defer g.mut_state.Unlock()
	return len(g.connections)
}

// WaitForCommands blocks until n non-auth frames have arrived.
func (g *FakeGateway) WaitForCommands(t testing.TB, n int) []*gateway.Frame {
	require.Eventually(t, func() bool {
		return len(g.Commands()) >= n
	}, 2*time.Second, 5*time.Millisecond)
	return g.Commands()
}

func (g *FakeGateway) serve() {
	for {
		conn, err := g.listener.Accept()
		if err != nil {
			return
		}
		g.mut_state.Lock()
		g.connections = append(g.connections, conn)
		g.mut_state.Unlock()
		go g.handle(conn)
	}
}

func (g *FakeGateway) handle(conn net.Conn) {
	defer conn.Close()

	pending := []byte{}
	readBuf := make([]byte, 4096)
	for {
		n, err := conn.Read(readBuf)
		if err != nil {
			return
		}
		pending = append(pending, readBuf[:n]...)

		for {
			packLen := gateway.PeekLength(pending)
			if packLen == 0 || len(pending) < packLen {
				break
			}
			if packLen < gateway.HeaderLength {
				return
			}
			frame, decodeErr := g.serializer.Decode(pending[:packLen])
			if decodeErr != nil {
				return
			}
			pending = pending[packLen:]

			if g.dropping() && frame.Cmd != gateway.Command_GatewayClientConnect {
				g.record(frame)
				return
			}
			if reply, ok := g.record(frame); ok {
				buf, encodeErr := g.serializer.EncodeReply(reply)
				if encodeErr != nil {
					return
				}
				if _, writeErr := conn.Write(buf); writeErr != nil {
					return
				}
			}
		}
	}
}

func (g *FakeGateway) record(frame *gateway.Frame) (value.Value, bool) {
	g.mut_state.Lock()
	g.frames = append(g.frames, frame)
	handler := g.handler
	silent := g.silent
	g.mut_state.Unlock()

	if frame.Cmd == gateway.Command_GatewayClientConnect || silent || handler == nil {
		return value.Null(), false
	}
	return handler(frame)
}

func (g *FakeGateway) dropping() bool {
	g.mut_state.Lock()
	defer g.mut_state.Unlock()
	return g.drop
}

func (g *FakeGateway) close() {
	g.listener.Close()

	g.mut_state.Lock()
	defer g.mut_state.Unlock()
	for _, conn := range g.connections {
		conn.Close()
	}
}
