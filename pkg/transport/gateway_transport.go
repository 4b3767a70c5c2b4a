package transport

import (
	"context"
	goerrs "errors"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/sessamekesh/gateway-client/internal"
	"github.com/sessamekesh/gateway-client/pkg/errors"
	"github.com/sessamekesh/gateway-client/pkg/message/gateway"
	"github.com/sessamekesh/gateway-client/pkg/message/value"
	"github.com/sessamekesh/gateway-client/pkg/metrics"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultConnectTimeout = 3 * time.Second
	DefaultReadTimeout    = time.Second
	DefaultReplyTimeout   = 5 * time.Second
	DefaultCollectTimeout = 5 * time.Second

	readChunkSize = 65535
)

type GatewayTransportParams struct {
	SecretKey string

	ConnectTimeout time.Duration
	// ReadTimeout bounds each read of a single round trip, ReplyTimeout the whole wait.
	ReadTimeout    time.Duration
	ReplyTimeout   time.Duration
	CollectTimeout time.Duration

	PersistentConnection bool
	MaxPersistentSockets int
	// Persistent sockets unused for this long are closed on the next one-way send. 0 keeps them.
	IdleSocketTimeout time.Duration

	Codec value.Codec

	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

type GatewayTransport struct {
	params GatewayTransportParams

	log        *zap.Logger
	serializer gateway.FrameSerializer
	authPrefix []byte
	dialer     net.Dialer

	sockets *internal.SocketStore
}

func CreateGatewayTransport(params GatewayTransportParams) (*GatewayTransport, error) {
	logger := params.Logger
	if logger == nil {
		logger = zap.Must(zap.NewDevelopment())
	}
	if params.ConnectTimeout <= 0 {
		params.ConnectTimeout = DefaultConnectTimeout
	}
	if params.ReadTimeout <= 0 {
		params.ReadTimeout = DefaultReadTimeout
	}
	if params.ReplyTimeout <= 0 {
		params.ReplyTimeout = DefaultReplyTimeout
	}
	if params.CollectTimeout <= 0 {
		params.CollectTimeout = DefaultCollectTimeout
	}

	authPrefix, authErr := gateway.AuthPrefix(params.SecretKey)
	if authErr != nil {
		return nil, authErr
	}

	return &GatewayTransport{
		params:     params,
		log:        logger.With(zap.String("component", "transport")),
		serializer: gateway.FrameSerializer{Codec: params.Codec},
		authPrefix: authPrefix,
		dialer:     net.Dialer{Timeout: params.ConnectTimeout, KeepAlive: 30 * time.Second},
		sockets:    internal.CreateSocketStore(params.MaxPersistentSockets),
	}, nil
}

func (t *GatewayTransport) Serializer() gateway.FrameSerializer {
	return t.serializer
}

// Close drops every persistent socket.
func (t *GatewayTransport) Close() {
	t.sockets.CloseAll()
}

// buffer is the bytes of one logical send: the auth frame, if any, then the frame.
func (t *GatewayTransport) buffer(frame *gateway.Frame) ([]byte, error) {
	encoded, err := t.serializer.Encode(frame)
	if err != nil {
		return nil, err
	}
	if len(t.authPrefix) == 0 {
		return encoded, nil
	}
	buf := make([]byte, 0, len(t.authPrefix)+len(encoded))
	buf = append(buf, t.authPrefix...)
	return append(buf, encoded...), nil
}

func (t *GatewayTransport) dial(ctx context.Context, address string) (net.Conn, error) {
	conn, err := t.dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, &errors.ConnectFailure{Address: address, Err: err}
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
	}
	return conn, nil
}

func writeAll(conn net.Conn, buf []byte, deadline time.Time) error {
	conn.SetWriteDeadline(deadline)
	n, err := conn.Write(buf)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return io.ErrShortWrite
	}
	return nil
}

// SendOneWay writes frame to address without waiting for a reply.
func (t *GatewayTransport) SendOneWay(ctx context.Context, address string, frame *gateway.Frame) error {
	t.params.Metrics.Request(metrics.ShapeOneWay)

	buf, err := t.buffer(frame)
	if err != nil {
		return err
	}

	if !t.params.PersistentConnection {
		return t.sendOnce(ctx, address, frame.Cmd, buf)
	}

	if t.params.IdleSocketTimeout > 0 {
		if closed := t.sockets.CloseIdle(time.Now().Add(-t.params.IdleSocketTimeout).UnixMilli()); closed > 0 {
			t.log.Debug("Closed idle persistent sockets", zap.Int("count", closed))
		}
	}

	conn, reused, connErr := t.persistentSocket(ctx, address)
	if connErr != nil {
		var tooMany *internal.TooManySocketsError
		if goerrs.As(connErr, &tooMany) {
			t.log.Warn("Persistent socket limit reached, sending on a short-lived socket", zap.String("address", address))
			return t.sendOnce(ctx, address, frame.Cmd, buf)
		}
		t.params.Metrics.Failure(metrics.ShapeOneWay, metrics.ReasonConnect)
		return connErr
	}

	writeErr := writeAll(conn, buf, time.Now().Add(t.params.ReplyTimeout))
	if writeErr == nil {
		t.sockets.Touch(address, time.Now().UnixMilli())
		return nil
	}

	t.sockets.Evict(address, conn)
	if !reused {
		t.params.Metrics.Failure(metrics.ShapeOneWay, metrics.ReasonWrite)
		return pkgerrors.Wrapf(writeErr, "writing %s to %s", frame.Cmd, address)
	}

	// The Gateway may have dropped an idle socket, one retry on a fresh one
	t.log.Debug("Persistent socket failed, reconnecting", zap.String("address", address), zap.Error(writeErr))
	conn, _, connErr = t.persistentSocket(ctx, address)
	if connErr != nil {
		t.params.Metrics.Failure(metrics.ShapeOneWay, metrics.ReasonConnect)
		return connErr
	}
	if retryErr := writeAll(conn, buf, time.Now().Add(t.params.ReplyTimeout)); retryErr != nil {
		t.sockets.Evict(address, conn)
		t.params.Metrics.Failure(metrics.ShapeOneWay, metrics.ReasonWrite)
		return pkgerrors.Wrapf(retryErr, "writing %s to %s", frame.Cmd, address)
	}
	t.sockets.Touch(address, time.Now().UnixMilli())
	return nil
}

func (t *GatewayTransport) sendOnce(ctx context.Context, address string, cmd gateway.Command, buf []byte) error {
	conn, dialErr := t.dial(ctx, address)
	if dialErr != nil {
		t.params.Metrics.Failure(metrics.ShapeOneWay, metrics.ReasonConnect)
		return dialErr
	}
	defer conn.Close()

	if writeErr := writeAll(conn, buf, time.Now().Add(t.params.ReplyTimeout)); writeErr != nil {
		t.params.Metrics.Failure(metrics.ShapeOneWay, metrics.ReasonWrite)
		return pkgerrors.Wrapf(writeErr, "writing %s to %s", cmd, address)
	}
	return nil
}

// persistentSocket returns the stored socket for address, dialing one if needed. reused reports
// whether the socket was already open before this call.
func (t *GatewayTransport) persistentSocket(ctx context.Context, address string) (net.Conn, bool, error) {
	if conn, has := t.sockets.Get(address); has {
		if socketAlive(conn) {
			return conn, true, nil
		}
		t.log.Debug("Stored persistent socket was closed by the gateway, redialing", zap.String("address", address))
		t.sockets.Evict(address, conn)
	}

	conn, dialErr := t.dial(ctx, address)
	if dialErr != nil {
		return nil, false, dialErr
	}

	kept, stored, adoptErr := t.sockets.Adopt(address, conn, time.Now().UnixMilli())
	if adoptErr != nil {
		conn.Close()
		return nil, false, adoptErr
	}
	if !stored {
		conn.Close()
		return kept, true, nil
	}
	return conn, false, nil
}

// socketAlive polls conn without blocking. Gateways never write on one-way sockets, so anything
// other than an immediate read timeout (EOF, reset, stray bytes) means the socket is unusable.
func socketAlive(conn net.Conn) bool {
	if err := conn.SetReadDeadline(time.Now()); err != nil {
		return false
	}
	var scratch [1]byte
	n, err := conn.Read(scratch[:])
	if n > 0 || !goerrs.Is(err, os.ErrDeadlineExceeded) {
		return false
	}
	return conn.SetReadDeadline(time.Time{}) == nil
}

// SendAndReceive opens a fresh socket, sends frame and waits for one reply.
func (t *GatewayTransport) SendAndReceive(ctx context.Context, address string, frame *gateway.Frame) (value.Value, error) {
	t.params.Metrics.Request(metrics.ShapeReceive)

	buf, err := t.buffer(frame)
	if err != nil {
		return value.Null(), err
	}

	conn, dialErr := t.dial(ctx, address)
	if dialErr != nil {
		t.params.Metrics.Failure(metrics.ShapeReceive, metrics.ReasonConnect)
		return value.Null(), dialErr
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	deadline := time.Now().Add(t.params.ReplyTimeout)
	if ctxDeadline, has := ctx.Deadline(); has && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	if writeErr := writeAll(conn, buf, deadline); writeErr != nil {
		t.params.Metrics.Failure(metrics.ShapeReceive, metrics.ReasonWrite)
		return value.Null(), pkgerrors.Wrapf(writeErr, "writing %s to %s", frame.Cmd, address)
	}

	received := []byte{}
	chunk := make([]byte, readChunkSize)
	for {
		total := gateway.ReplyLength(received)
		if total > 0 && len(received) >= total {
			break
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return value.Null(), pkgerrors.Wrapf(ctxErr, "waiting for %s reply from %s", frame.Cmd, address)
		}
		now := time.Now()
		if !now.Before(deadline) {
			t.params.Metrics.Failure(metrics.ShapeReceive, metrics.ReasonTimeout)
			return value.Null(), &errors.Timeout{Address: address, Deadline: t.params.ReplyTimeout, Received: len(received)}
		}
		readDeadline := now.Add(t.params.ReadTimeout)
		if deadline.Before(readDeadline) {
			readDeadline = deadline
		}
		conn.SetReadDeadline(readDeadline)

		n, readErr := conn.Read(chunk)
		received = append(received, chunk[:n]...)
		if readErr == nil {
			continue
		}
		if goerrs.Is(readErr, os.ErrDeadlineExceeded) {
			continue
		}
		if goerrs.Is(readErr, io.EOF) {
			if total := gateway.ReplyLength(received); total > 0 && len(received) >= total {
				break
			}
			t.params.Metrics.Failure(metrics.ShapeReceive, metrics.ReasonClosed)
			return value.Null(), &errors.RemoteClosed{Address: address, Received: len(received)}
		}
		t.params.Metrics.Failure(metrics.ShapeReceive, metrics.ReasonClosed)
		return value.Null(), pkgerrors.Wrapf(readErr, "reading %s reply from %s", frame.Cmd, address)
	}

	reply, decodeErr := t.serializer.DecodeReply(received)
	if decodeErr != nil {
		t.params.Metrics.Failure(metrics.ShapeReceive, metrics.ReasonDecode)
		return value.Null(), decodeErr
	}
	return reply, nil
}

// SendAndCollect sends one frame per address concurrently and gathers the replies that arrive
// within the collect timeout. Targets that fail to connect, close early or stay silent are left
// out of the result; that is never an error.
func (t *GatewayTransport) SendAndCollect(ctx context.Context, frames map[string]*gateway.Frame) map[string]value.Value {
	log := t.log.With(zap.String("op", uuid.NewString()))

	collectCtx, cancel := context.WithTimeout(ctx, t.params.CollectTimeout)
	defer cancel()
	deadline, _ := collectCtx.Deadline()

	mut_results := sync.Mutex{}
	results := make(map[string]value.Value, len(frames))
	incomplete := 0

	g := errgroup.Group{}
	for address, frame := range frames {
		t.params.Metrics.Request(metrics.ShapeCollect)
		g.Go(func() error {
			reply, err := t.collectOne(collectCtx, deadline, address, frame)
			if err != nil {
				log.Debug("Gateway left out of collected result", zap.String("address", address), zap.Stringer("cmd", frame.Cmd), zap.Error(err))
				mut_results.Lock()
				incomplete++
				mut_results.Unlock()
				return nil
			}
			mut_results.Lock()
			results[address] = reply
			mut_results.Unlock()
			return nil
		})
	}
	g.Wait()

	if incomplete > 0 {
		t.params.Metrics.PartialFanout()
		log.Info("Collected partial result", zap.Int("targets", len(frames)), zap.Int("replies", len(results)))
	}
	return results
}

func (t *GatewayTransport) collectOne(ctx context.Context, deadline time.Time, address string, frame *gateway.Frame) (value.Value, error) {
	buf, err := t.buffer(frame)
	if err != nil {
		return value.Null(), err
	}

	conn, dialErr := t.dial(ctx, address)
	if dialErr != nil {
		t.params.Metrics.Failure(metrics.ShapeCollect, metrics.ReasonConnect)
		return value.Null(), dialErr
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	if writeErr := writeAll(conn, buf, deadline); writeErr != nil {
		t.params.Metrics.Failure(metrics.ShapeCollect, metrics.ReasonWrite)
		return value.Null(), writeErr
	}

	conn.SetReadDeadline(deadline)
	received := []byte{}
	chunk := make([]byte, readChunkSize)
	for {
		if total := gateway.ReplyLength(received); total > 0 && len(received) >= total {
			break
		}
		n, readErr := conn.Read(chunk)
		received = append(received, chunk[:n]...)
		if readErr == nil {
			continue
		}
		if goerrs.Is(readErr, io.EOF) {
			if total := gateway.ReplyLength(received); total > 0 && len(received) >= total {
				break
			}
			t.params.Metrics.Failure(metrics.ShapeCollect, metrics.ReasonClosed)
			return value.Null(), &errors.RemoteClosed{Address: address, Received: len(received)}
		}
		if goerrs.Is(readErr, os.ErrDeadlineExceeded) {
			t.params.Metrics.Failure(metrics.ShapeCollect, metrics.ReasonTimeout)
			return value.Null(), &errors.Timeout{Address: address, Deadline: t.params.CollectTimeout, Received: len(received)}
		}
		return value.Null(), readErr
	}

	reply, decodeErr := t.serializer.DecodeReply(received)
	if decodeErr != nil {
		t.params.Metrics.Failure(metrics.ShapeCollect, metrics.ReasonDecode)
		return value.Null(), decodeErr
	}
	return reply, nil
}

// Broadcast sends one frame per address as one-way writes. Every target is attempted; the
// returned error combines the failures of the ones that could not be reached.
func (t *GatewayTransport) Broadcast(ctx context.Context, frames map[string]*gateway.Frame) error {
	mut_errs := sync.Mutex{}
	var sendErrs error

	g := errgroup.Group{}
	for address, frame := range frames {
		g.Go(func() error {
			if err := t.SendOneWay(ctx, address, frame); err != nil {
				mut_errs.Lock()
				sendErrs = multierr.Append(sendErrs, err)
				mut_errs.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	return sendErrs
}
