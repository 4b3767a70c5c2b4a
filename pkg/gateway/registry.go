package gateway

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sessamekesh/gateway-client/pkg/config"
	"github.com/sessamekesh/gateway-client/pkg/metrics"
	"go.uber.org/zap"
)

type RegistryParams struct {
	// Nil uses config.DefaultFile.
	Config *config.File

	ReadTimeout    time.Duration
	ReplyTimeout   time.Duration
	CollectTimeout time.Duration

	Clock   clock.Clock
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// Registry hands out Connections by config name or by inline options. Connections are keyed by
// config.ConnectionConfig.Key, so two configs with the same content share one Connection and its
// address cache.
type Registry struct {
	params RegistryParams
	file   *config.File
	log    *zap.Logger

	mut_connections sync.Mutex
	connections     map[string]*Connection
}

func CreateRegistry(params RegistryParams) *Registry {
	logger := params.Logger
	if logger == nil {
		logger = zap.Must(zap.NewDevelopment())
	}
	file := params.Config
	if file == nil {
		file = config.DefaultFile()
	}
	return &Registry{
		params:      params,
		file:        file,
		log:         logger,
		connections: make(map[string]*Connection),
	}
}

// Connection returns the connection configured under name, "" meaning the default one.
func (r *Registry) Connection(name string) (*Connection, error) {
	cfg, err := r.file.Connection(name)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = r.file.Default
	}
	return r.ConnectionFor(name, cfg)
}

// ConnectionFromOptions builds, or reuses, a connection from inline options with the same keys as
// a config file entry.
func (r *Registry) ConnectionFromOptions(options map[string]any) (*Connection, error) {
	cfg, err := config.ConnectionFromMap(options)
	if err != nil {
		return nil, err
	}
	return r.ConnectionFor("", cfg)
}

func (r *Registry) ConnectionFor(name string, cfg config.ConnectionConfig) (*Connection, error) {
	if err := cfg.Validate(name); err != nil {
		return nil, err
	}
	key := cfg.Key()

	r.mut_connections.Lock()
	defer r.mut_connections.Unlock()

	if existing, has := r.connections[key]; has {
		return existing, nil
	}
	if name == "" {
		name = "adhoc-" + key[:8]
	}
	conn, err := CreateConnection(ConnectionParams{
		Name:           name,
		Config:         cfg,
		ReadTimeout:    r.params.ReadTimeout,
		ReplyTimeout:   r.params.ReplyTimeout,
		CollectTimeout: r.params.CollectTimeout,
		Clock:          r.params.Clock,
		Metrics:        r.params.Metrics,
		Logger:         r.log,
	})
	if err != nil {
		return nil, err
	}
	r.log.Debug("Created gateway connection", zap.String("connection", name), zap.String("key", key))
	r.connections[key] = conn
	return conn, nil
}

func (r *Registry) Len() int {
	r.mut_connections.Lock()
	defer r.mut_connections.Unlock()
	return len(r.connections)
}

// Close releases the persistent sockets of every connection handed out so far.
func (r *Registry) Close() {
	r.mut_connections.Lock()
	defer r.mut_connections.Unlock()
	for _, conn := range r.connections {
		conn.Close()
	}
}
