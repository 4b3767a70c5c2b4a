// Package directory keeps the list of live Gateway addresses, as reported by a Register.
package directory

import (
	"bufio"
	"context"
	"net"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	pkgerrors "github.com/pkg/errors"
	"github.com/sessamekesh/gateway-client/pkg/errors"
	"github.com/sessamekesh/gateway-client/pkg/message/value"
	"github.com/sessamekesh/gateway-client/pkg/metrics"
	"github.com/tidwall/gjson"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultCacheTTL       = time.Second
	DefaultConnectTimeout = 3 * time.Second
	DefaultReplyTimeout   = 5 * time.Second

	maxReplyLineLength = 655350
)

type DirectoryParams struct {
	RegisterAddresses []string
	SecretKey         string

	ConnectTimeout time.Duration
	ReplyTimeout   time.Duration
	CacheTTL       time.Duration

	// DisableCache sends every lookup to the Register.
	DisableCache bool

	Clock   clock.Clock
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

type Directory struct {
	params DirectoryParams

	log   *zap.Logger
	clock clock.Clock

	refreshGroup singleflight.Group

	mut_addresses sync.RWMutex
	addresses     []string
	fetchedAt     time.Time
}

func CreateDirectory(params DirectoryParams) (*Directory, error) {
	if len(params.RegisterAddresses) == 0 {
		return nil, &errors.ConfigError{Reason: "at least one register address is required"}
	}

	logger := params.Logger
	if logger == nil {
		logger = zap.Must(zap.NewDevelopment())
	}
	clk := params.Clock
	if clk == nil {
		clk = clock.New()
	}
	if params.ConnectTimeout <= 0 {
		params.ConnectTimeout = DefaultConnectTimeout
	}
	if params.ReplyTimeout <= 0 {
		params.ReplyTimeout = DefaultReplyTimeout
	}
	if params.CacheTTL <= 0 {
		params.CacheTTL = DefaultCacheTTL
	}

	return &Directory{
		params: params,
		log:    logger.With(zap.String("component", "directory")),
		clock:  clk,
	}, nil
}

// Addresses returns the cached address list while it is younger than the cache TTL and non-empty,
// and asks the Register otherwise. Concurrent callers share one refresh.
func (d *Directory) Addresses(ctx context.Context) ([]string, error) {
	if cached, ok := d.cached(); ok {
		return cached, nil
	}

	resultCh := d.refreshGroup.DoChan("refresh", func() (interface{}, error) {
		// Another caller may have refreshed while this one waited for the flight slot
		if cached, ok := d.cached(); ok {
			return cached, nil
		}
		return d.Refresh(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultCh:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]string), nil
	}
}

func (d *Directory) cached() ([]string, bool) {
	if d.params.DisableCache {
		return nil, false
	}

	d.mut_addresses.RLock()
	defer d.mut_addresses.RUnlock()

	if len(d.addresses) == 0 || d.clock.Since(d.fetchedAt) >= d.params.CacheTTL {
		return nil, false
	}
	return append([]string{}, d.addresses...), true
}

// Refresh queries the Register unconditionally and replaces the cache on success.
func (d *Directory) Refresh(ctx context.Context) ([]string, error) {
	requestTime := d.clock.Now()

	conn, registerAddress, dialErr := d.dialRegister(ctx)
	if dialErr != nil {
		return nil, dialErr
	}
	defer conn.Close()

	addresses, queryErr := d.query(conn, registerAddress)
	if queryErr != nil {
		d.log.Warn("Register query failed", zap.String("register", registerAddress), zap.Error(queryErr))
		return nil, queryErr
	}

	d.mut_addresses.Lock()
	d.addresses = addresses
	d.fetchedAt = requestTime
	d.mut_addresses.Unlock()

	d.params.Metrics.RegisterRefresh(d.clock.Since(requestTime))
	d.log.Debug("Refreshed gateway addresses", zap.String("register", registerAddress), zap.Strings("addresses", addresses))
	return append([]string{}, addresses...), nil
}

// dialRegister tries every register address in order and returns the first that connects.
func (d *Directory) dialRegister(ctx context.Context) (net.Conn, string, error) {
	dialer := net.Dialer{Timeout: d.params.ConnectTimeout}

	var dialErrs error
	for _, registerAddress := range d.params.RegisterAddresses {
		conn, err := dialer.DialContext(ctx, "tcp", registerAddress)
		if err == nil {
			return conn, registerAddress, nil
		}
		d.log.Debug("Register unreachable", zap.String("register", registerAddress), zap.Error(err))
		dialErrs = multierr.Append(dialErrs, &errors.ConnectFailure{Address: registerAddress, Err: err})
	}

	return nil, "", &errors.DirectoryUnavailable{
		RegisterAddresses: d.params.RegisterAddresses,
		Err:               dialErrs,
	}
}

func (d *Directory) query(conn net.Conn, registerAddress string) ([]string, error) {
	request, encodeErr := value.JSONCodec{}.Encode(value.Map(
		value.Pair("event", value.String("worker_connect")),
		value.Pair("secret_key", value.String(d.params.SecretKey)),
	))
	if encodeErr != nil {
		return nil, encodeErr
	}

	conn.SetDeadline(time.Now().Add(d.params.ReplyTimeout))
	if _, writeErr := conn.Write(append(request, '\n')); writeErr != nil {
		return nil, &errors.DirectoryProtocolError{
			RegisterAddress: registerAddress,
			Err:             pkgerrors.Wrap(writeErr, "sending worker_connect"),
		}
	}

	reader := bufio.NewReaderSize(conn, 4096)
	line := []byte{}
	for {
		chunk, isPrefix, readErr := reader.ReadLine()
		line = append(line, chunk...)
		if readErr != nil {
			if len(line) > 0 {
				break
			}
			return nil, &errors.DirectoryProtocolError{
				RegisterAddress: registerAddress,
				Err:             pkgerrors.Wrap(readErr, "reading register reply"),
			}
		}
		if !isPrefix || len(line) >= maxReplyLineLength {
			break
		}
	}

	return parseAddresses(registerAddress, line)
}

func parseAddresses(registerAddress string, line []byte) ([]string, error) {
	if !gjson.ValidBytes(line) {
		return nil, &errors.DirectoryProtocolError{RegisterAddress: registerAddress, Reply: string(line)}
	}
	field := gjson.GetBytes(line, "addresses")
	if !field.IsArray() {
		return nil, &errors.DirectoryProtocolError{
			RegisterAddress: registerAddress,
			Reply:           string(line),
			Err:             pkgerrors.New("reply has no addresses list"),
		}
	}

	addresses := []string{}
	for _, item := range field.Array() {
		if item.String() != "" {
			addresses = append(addresses, item.String())
		}
	}
	return addresses, nil
}
