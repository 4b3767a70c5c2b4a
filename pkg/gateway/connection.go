// Package gateway is the application-facing client for a fleet of Gateways: it resolves client ids
// to Gateways, builds the request frames and routes them through the transport.
package gateway

import (
	"context"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sessamekesh/gateway-client/pkg/clientid"
	"github.com/sessamekesh/gateway-client/pkg/config"
	"github.com/sessamekesh/gateway-client/pkg/directory"
	"github.com/sessamekesh/gateway-client/pkg/errors"
	gatewaymsg "github.com/sessamekesh/gateway-client/pkg/message/gateway"
	"github.com/sessamekesh/gateway-client/pkg/message/value"
	"github.com/sessamekesh/gateway-client/pkg/metrics"
	"github.com/sessamekesh/gateway-client/pkg/requestctx"
	"github.com/sessamekesh/gateway-client/pkg/transport"
	utils "github.com/sessamekesh/gateway-client/pkg/util"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type ConnectionParams struct {
	Name   string
	Config config.ConnectionConfig

	// Zero values use the transport defaults.
	ReadTimeout    time.Duration
	ReplyTimeout   time.Duration
	CollectTimeout time.Duration

	Clock   clock.Clock
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// Connection talks to every Gateway behind one Register configuration.
type Connection struct {
	config config.ConnectionConfig
	codec  value.Codec

	log       *zap.Logger
	directory *directory.Directory
	transport *transport.GatewayTransport
}

var _ Operations = (*Connection)(nil)

func CreateConnection(params ConnectionParams) (*Connection, error) {
	logger := params.Logger
	if logger == nil {
		logger = zap.Must(zap.NewDevelopment())
	}
	if err := params.Config.Validate(params.Name); err != nil {
		return nil, err
	}
	cfg := params.Config.Normalized()
	codec := cfg.CodecImpl()
	log := logger.With(zap.String("connection", params.Name))

	dir, dirErr := directory.CreateDirectory(directory.DirectoryParams{
		RegisterAddresses: cfg.RegisterAddress,
		SecretKey:         cfg.SecretKey,
		ConnectTimeout:    cfg.ConnectTimeoutDuration(),
		DisableCache:      cfg.AddressesCacheDisable,
		Clock:             params.Clock,
		Metrics:           params.Metrics,
		Logger:            log,
	})
	if dirErr != nil {
		return nil, dirErr
	}

	tr, trErr := transport.CreateGatewayTransport(transport.GatewayTransportParams{
		SecretKey:            cfg.SecretKey,
		ConnectTimeout:       cfg.ConnectTimeoutDuration(),
		ReadTimeout:          params.ReadTimeout,
		ReplyTimeout:         params.ReplyTimeout,
		CollectTimeout:       params.CollectTimeout,
		PersistentConnection: cfg.PersistentConnection,
		MaxPersistentSockets: cfg.MaxPersistentSockets,
		IdleSocketTimeout:    cfg.IdleSocketTimeoutDuration(),
		Codec:                codec,
		Metrics:              params.Metrics,
		Logger:               log,
	})
	if trErr != nil {
		return nil, trErr
	}

	return &Connection{
		config:    cfg,
		codec:     codec,
		log:       log.With(zap.String("component", "gateway")),
		directory: dir,
		transport: tr,
	}, nil
}

func (c *Connection) Config() config.ConnectionConfig {
	return c.config
}

// Close releases persistent sockets. The connection stays usable.
func (c *Connection) Close() {
	c.transport.Close()
}

func (c *Connection) Addresses(ctx context.Context) ([]string, error) {
	return c.directory.Addresses(ctx)
}

func (c *Connection) currentClient(ctx context.Context, operation string) (*requestctx.RequestContext, error) {
	rc, has := requestctx.FromContext(ctx)
	if !has {
		return nil, &errors.MissingRequestContext{Operation: operation}
	}
	return rc, nil
}

// resolve finds the Gateway address and connection id behind clientId. The current client is
// answered from the request context without decoding.
func (c *Connection) resolve(ctx context.Context, operation string, clientId string) (string, uint32, error) {
	if rc, has := requestctx.FromContext(ctx); has && rc.Targets(clientId) {
		return rc.GatewayAddress(), rc.ConnectionId, nil
	}
	if clientId == "" {
		return "", 0, &errors.MissingRequestContext{Operation: operation}
	}
	a, err := clientid.Decode(clientId)
	if err != nil {
		return "", 0, err
	}
	return a.GatewayAddress(), a.ConnectionId, nil
}

// addressConnections groups client ids by owning Gateway. Ids that do not decode are skipped, the
// client they named is assumed gone.
type addressConnections struct {
	order []string
	ids   map[string][]uint32
}

func (c *Connection) groupByAddress(clientIds []string) *addressConnections {
	grouped := &addressConnections{ids: make(map[string][]uint32)}
	seen := utils.StringSet{}
	for _, clientId := range clientIds {
		if seen.Has(clientId) {
			continue
		}
		seen.Add(clientId)

		a, err := clientid.Decode(clientId)
		if err != nil {
			c.log.Debug("Skipping undecodable client id", zap.String("client_id", clientId), zap.Error(err))
			continue
		}
		address := a.GatewayAddress()
		if _, has := grouped.ids[address]; !has {
			grouped.order = append(grouped.order, address)
		}
		grouped.ids[address] = append(grouped.ids[address], a.ConnectionId)
	}
	return grouped
}

// connectionSet is the JSON object Gateways expect for a set of connection ids: {"7":7}.
func connectionSet(connectionIds []uint32) value.Value {
	entries := make([]value.Entry, 0, len(connectionIds))
	for _, id := range connectionIds {
		entries = append(entries, value.Pair(strconv.FormatUint(uint64(id), 10), value.Int(int64(id))))
	}
	return value.Map(entries...)
}

func jsonExt(v value.Value) ([]byte, error) {
	return value.JSONCodec{}.Encode(v)
}

// sendToClient is the shape shared by every command aimed at one client connection.
func (c *Connection) sendToClient(ctx context.Context, operation string, clientId string, cmd gatewaymsg.Command, body gatewaymsg.Body, extData []byte) error {
	address, connectionId, err := c.resolve(ctx, operation, clientId)
	if err != nil {
		return err
	}
	return c.transport.SendOneWay(ctx, address, &gatewaymsg.Frame{
		Cmd:          cmd,
		ConnectionId: connectionId,
		ExtData:      extData,
		Body:         body,
	})
}

// broadcast sends a one-way frame to every known Gateway. Unreachable Gateways are logged and
// otherwise ignored.
func (c *Connection) broadcast(ctx context.Context, frameFor func(address string) (*gatewaymsg.Frame, error)) error {
	addresses, err := c.directory.Addresses(ctx)
	if err != nil {
		return err
	}
	frames := make(map[string]*gatewaymsg.Frame, len(addresses))
	for _, address := range addresses {
		frame, frameErr := frameFor(address)
		if frameErr != nil {
			return frameErr
		}
		frames[address] = frame
	}
	return c.sendFrames(ctx, frames)
}

func (c *Connection) sendFrames(ctx context.Context, frames map[string]*gatewaymsg.Frame) error {
	if sendErr := c.transport.Broadcast(ctx, frames); sendErr != nil {
		c.log.Warn("Some gateways were not reached",
			zap.Int("targets", len(frames)),
			zap.Errors("failures", multierr.Errors(sendErr)))
	}
	return nil
}

// collect sends the same frame to every known Gateway and returns the replies that arrived.
func (c *Connection) collect(ctx context.Context, frame *gatewaymsg.Frame) (map[string]value.Value, error) {
	addresses, err := c.directory.Addresses(ctx)
	if err != nil {
		return nil, err
	}
	frames := make(map[string]*gatewaymsg.Frame, len(addresses))
	for _, address := range addresses {
		frames[address] = frame
	}
	return c.transport.SendAndCollect(ctx, frames), nil
}

// forEachConnection walks a {connection_id: item} reply from one Gateway.
func (c *Connection) forEachConnection(address string, reply value.Value, fn func(clientId string, item value.Value)) {
	ip, port, err := clientid.SplitAddress(address)
	if err != nil {
		c.log.Warn("Reply from a gateway with an unusable address", zap.String("address", address), zap.Error(err))
		return
	}
	for _, e := range reply.Entries() {
		connectionId, ok := e.Key.AsInt()
		if !ok || connectionId < 0 {
			continue
		}
		fn(clientid.Encode(ip, port, uint32(connectionId)), e.Value)
	}
}

func (c *Connection) decodeSession(raw value.Value) value.Value {
	switch raw.Kind() {
	case value.KindMap, value.KindList:
		return raw
	case value.KindString:
		s, _ := raw.AsString()
		if s == "" {
			return value.Map()
		}
		session, err := c.codec.Decode([]byte(s))
		if err != nil {
			c.log.Warn("Undecodable session", zap.Error(err))
			return value.Map()
		}
		if session.IsNull() {
			return value.Map()
		}
		return session
	}
	return value.Map()
}
