// Package config describes Gateway client connections and loads them from files and environment.
package config

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/minio/sha256-simd"
	pkgerrors "github.com/pkg/errors"
	"github.com/sessamekesh/gateway-client/pkg/errors"
	"github.com/sessamekesh/gateway-client/pkg/message/value"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "GATEWAYCLIENT"

	DefaultConnectionName  = "localhost"
	DefaultRegisterAddress = "127.0.0.1:1236"
	DefaultConnectTimeout  = 3.0
)

type ConnectionConfig struct {
	RegisterAddress       []string `mapstructure:"register_address"`
	SecretKey             string   `mapstructure:"secret_key"`
	ConnectTimeout        float64  `mapstructure:"connect_timeout"`
	PersistentConnection  bool     `mapstructure:"persistent_connection"`
	AddressesCacheDisable bool     `mapstructure:"addresses_cache_disable"`
	// MaxPersistentSockets caps persistent sockets, one per Gateway. 0 means no cap; past the cap
	// sends use short-lived sockets.
	MaxPersistentSockets int `mapstructure:"max_persistent_sockets"`
	// IdleSocketTimeout closes persistent sockets unused for this many seconds. 0 keeps them.
	IdleSocketTimeout float64 `mapstructure:"idle_socket_timeout"`
	// Codec is "php" (default) or "json" and must match what the Gateways use.
	Codec string `mapstructure:"codec"`
}

type File struct {
	Default     string                      `mapstructure:"default"`
	Connections map[string]ConnectionConfig `mapstructure:"connections"`
}

// Normalized fills defaults and cleans up the register list, so that configs that mean the same
// thing compare equal.
func (c ConnectionConfig) Normalized() ConnectionConfig {
	registers := []string{}
	for _, entry := range c.RegisterAddress {
		for _, address := range strings.Split(entry, ",") {
			if address = strings.TrimSpace(address); address != "" {
				registers = append(registers, address)
			}
		}
	}
	c.RegisterAddress = registers
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.MaxPersistentSockets < 0 {
		c.MaxPersistentSockets = 0
	}
	if c.IdleSocketTimeout < 0 {
		c.IdleSocketTimeout = 0
	}
	c.Codec = strings.ToLower(strings.TrimSpace(c.Codec))
	if c.Codec == "" {
		c.Codec = "php"
	}
	return c
}

func (c ConnectionConfig) Validate(name string) error {
	n := c.Normalized()
	if len(n.RegisterAddress) == 0 {
		return &errors.ConfigError{ConnectionName: name, Reason: "register_address is empty"}
	}
	if value.CodecByName(n.Codec) == nil {
		return &errors.ConfigError{ConnectionName: name, Reason: "unknown codec " + n.Codec}
	}
	return nil
}

func (c ConnectionConfig) ConnectTimeoutDuration() time.Duration {
	return time.Duration(c.Normalized().ConnectTimeout * float64(time.Second))
}

func (c ConnectionConfig) IdleSocketTimeoutDuration() time.Duration {
	return time.Duration(c.Normalized().IdleSocketTimeout * float64(time.Second))
}

func (c ConnectionConfig) CodecImpl() value.Codec {
	return value.CodecByName(c.Normalized().Codec)
}

// Key is a stable content hash of the normalized config. Two configs with the same key share one
// connection, address cache included.
func (c ConnectionConfig) Key() string {
	n := c.Normalized()
	fields, _ := value.FromAny(map[string]any{
		"addresses_cache_disable": n.AddressesCacheDisable,
		"codec":                   n.Codec,
		"connect_timeout":         n.ConnectTimeout,
		"idle_socket_timeout":     n.IdleSocketTimeout,
		"max_persistent_sockets":  n.MaxPersistentSockets,
		"persistent_connection":   n.PersistentConnection,
		"register_address":        n.RegisterAddress,
		"secret_key":              n.SecretKey,
	})
	canonical, _ := value.JSONCodec{}.Encode(fields)
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// DefaultFile is used when no configuration is given: one "localhost" connection to a Register on
// the same host.
func DefaultFile() *File {
	return &File{
		Default: DefaultConnectionName,
		Connections: map[string]ConnectionConfig{
			DefaultConnectionName: ConnectionConfig{RegisterAddress: []string{DefaultRegisterAddress}}.Normalized(),
		},
	}
}

// Connection resolves a named connection, "" meaning the default one.
func (f *File) Connection(name string) (ConnectionConfig, error) {
	if name == "" {
		name = f.Default
	}
	if name == "" {
		name = DefaultConnectionName
	}
	c, has := f.Connections[name]
	if !has {
		return ConnectionConfig{}, &errors.ConfigError{ConnectionName: name, Reason: "no such connection"}
	}
	if err := c.Validate(name); err != nil {
		return ConnectionConfig{}, err
	}
	return c.Normalized(), nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("default", DefaultConnectionName)
	return v
}

// Load reads a config file (format picked by extension). Any key in it can be overridden from the
// environment, e.g. GATEWAYCLIENT_CONNECTIONS_LOCALHOST_SECRET_KEY.
func Load(path string) (*File, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, pkgerrors.Wrapf(err, "reading gateway client config %s", path)
	}
	return unmarshalFile(v)
}

// FromMap builds a File from an already parsed settings tree, as a host framework would hand over.
func FromMap(settings map[string]any) (*File, error) {
	v := newViper()
	if err := v.MergeConfigMap(settings); err != nil {
		return nil, pkgerrors.Wrap(err, "merging gateway client settings")
	}
	return unmarshalFile(v)
}

func unmarshalFile(v *viper.Viper) (*File, error) {
	f := &File{}
	if err := v.Unmarshal(f); err != nil {
		return nil, pkgerrors.Wrap(err, "decoding gateway client config")
	}
	for name, c := range f.Connections {
		f.Connections[name] = c.Normalized()
	}
	return f, nil
}

// ConnectionFromMap decodes inline options for an ad-hoc connection, with the same keys as a
// connection entry in a config file.
func ConnectionFromMap(options map[string]any) (ConnectionConfig, error) {
	v := viper.New()
	if err := v.MergeConfigMap(options); err != nil {
		return ConnectionConfig{}, pkgerrors.Wrap(err, "merging connection options")
	}
	c := ConnectionConfig{}
	if err := v.Unmarshal(&c); err != nil {
		return ConnectionConfig{}, pkgerrors.Wrap(err, "decoding connection options")
	}
	if err := c.Validate(""); err != nil {
		return ConnectionConfig{}, err
	}
	return c.Normalized(), nil
}
