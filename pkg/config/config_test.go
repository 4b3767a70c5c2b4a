package config

import (
	goerrs "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sessamekesh/gateway-client/pkg/errors"
	"github.com/stretchr/testify/require"
)

const sampleYaml = `
default: localhost
connections:
  localhost:
    register_address: 127.0.0.1:1236
    secret_key: ""
    connect_timeout: 3
    persistent_connection: false
    addresses_cache_disable: false
  cluster:
    register_address:
      - 10.0.0.1:1236
      - 10.0.0.2:1236
    connect_timeout: 0.5
    codec: json
    persistent_connection: true
    max_persistent_sockets: 8
    idle_socket_timeout: 30
  broken:
    secret_key: abc
`

func writeConfig(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadYaml(t *testing.T) {
	f, err := Load(writeConfig(t, "gateway.yaml", sampleYaml))
	require.NoError(t, err)

	local, err := f.Connection("")
	require.NoError(t, err)
	require.Equal(t, []string{"127.0.0.1:1236"}, local.RegisterAddress)
	require.Equal(t, 3*time.Second, local.ConnectTimeoutDuration())
	require.Equal(t, "php", local.Codec)

	cluster, err := f.Connection("cluster")
	require.NoError(t, err)
	require.Equal(t, []string{"10.0.0.1:1236", "10.0.0.2:1236"}, cluster.RegisterAddress)
	require.Equal(t, 500*time.Millisecond, cluster.ConnectTimeoutDuration())
	require.Equal(t, "json", cluster.CodecImpl().Name())
	require.Equal(t, 8, cluster.MaxPersistentSockets)
	require.Equal(t, 30*time.Second, cluster.IdleSocketTimeoutDuration())
	require.Zero(t, local.MaxPersistentSockets)
	require.Zero(t, local.IdleSocketTimeoutDuration())
}

func TestMissingAndInvalidConnections(t *testing.T) {
	f, err := Load(writeConfig(t, "gateway.yaml", sampleYaml))
	require.NoError(t, err)

	var configErr *errors.ConfigError
	_, err = f.Connection("nope")
	require.True(t, goerrs.As(err, &configErr))
	require.Equal(t, "nope", configErr.ConnectionName)

	_, err = f.Connection("broken")
	require.True(t, goerrs.As(err, &configErr))
	require.Equal(t, "broken", configErr.ConnectionName)
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("GATEWAYCLIENT_CONNECTIONS_LOCALHOST_SECRET_KEY", "from-env")
	f, err := Load(writeConfig(t, "gateway.yaml", sampleYaml))
	require.NoError(t, err)

	local, err := f.Connection("localhost")
	require.NoError(t, err)
	require.Equal(t, "from-env", local.SecretKey)
}

func TestLoadJson(t *testing.T) {
	path := writeConfig(t, "gateway.json", `{"connections":{"localhost":{"register_address":"a:1, b:2","persistent_connection":true}}}`)
	f, err := Load(path)
	require.NoError(t, err)

	local, err := f.Connection("")
	require.NoError(t, err)
	require.Equal(t, []string{"a:1", "b:2"}, local.RegisterAddress)
	require.True(t, local.PersistentConnection)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestKeyIgnoresRepresentation(t *testing.T) {
	a, err := ConnectionFromMap(map[string]any{"register_address": "10.0.0.1:1236,10.0.0.2:1236"})
	require.NoError(t, err)
	b, err := ConnectionFromMap(map[string]any{
		"register_address": []string{"10.0.0.1:1236", " 10.0.0.2:1236"},
		"connect_timeout":  3,
		"codec":            "PHP",
	})
	require.NoError(t, err)
	require.Equal(t, a.Key(), b.Key())
	require.Len(t, a.Key(), 64)

	c, err := ConnectionFromMap(map[string]any{"register_address": "10.0.0.1:1236", "secret_key": "x"})
	require.NoError(t, err)
	require.NotEqual(t, a.Key(), c.Key())
}

func TestKeyCoversSocketSettings(t *testing.T) {
	base := map[string]any{"register_address": "10.0.0.1:1236", "persistent_connection": true}
	a, err := ConnectionFromMap(base)
	require.NoError(t, err)

	capped, err := ConnectionFromMap(map[string]any{
		"register_address":       "10.0.0.1:1236",
		"persistent_connection":  true,
		"max_persistent_sockets": 2,
	})
	require.NoError(t, err)
	require.NotEqual(t, a.Key(), capped.Key())

	idle, err := ConnectionFromMap(map[string]any{
		"register_address":      "10.0.0.1:1236",
		"persistent_connection": true,
		"idle_socket_timeout":   0.25,
	})
	require.NoError(t, err)
	require.NotEqual(t, a.Key(), idle.Key())
	require.Equal(t, 250*time.Millisecond, idle.IdleSocketTimeoutDuration())

	negative, err := ConnectionFromMap(map[string]any{
		"register_address":       "10.0.0.1:1236",
		"persistent_connection":  true,
		"max_persistent_sockets": -1,
		"idle_socket_timeout":    -5,
	})
	require.NoError(t, err)
	require.Zero(t, negative.MaxPersistentSockets)
	require.Equal(t, a.Key(), negative.Key())
}

func TestConnectionFromMapValidates(t *testing.T) {
	_, err := ConnectionFromMap(map[string]any{"secret_key": "x"})
	var configErr *errors.ConfigError
	require.True(t, goerrs.As(err, &configErr))

	_, err = ConnectionFromMap(map[string]any{"register_address": "a:1", "codec": "msgpack"})
	require.True(t, goerrs.As(err, &configErr))
}

func TestFromMap(t *testing.T) {
	f, err := FromMap(map[string]any{
		"default": "other",
		"connections": map[string]any{
			"other": map[string]any{"register_address": "192.168.0.89:1236"},
		},
	})
	require.NoError(t, err)
	other, err := f.Connection("")
	require.NoError(t, err)
	require.Equal(t, []string{"192.168.0.89:1236"}, other.RegisterAddress)
}

func TestDefaultFile(t *testing.T) {
	f := DefaultFile()

	c, err := f.Connection("")
	require.NoError(t, err)
	require.Equal(t, []string{DefaultRegisterAddress}, c.RegisterAddress)
	require.Equal(t, DefaultConnectTimeout, c.ConnectTimeout)
	require.Equal(t, "php", c.Codec)
}
