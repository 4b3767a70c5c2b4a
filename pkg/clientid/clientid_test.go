package clientid

import (
	goerrs "errors"
	"testing"

	"github.com/sessamekesh/gateway-client/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestEncodeKnownValue(t *testing.T) {
	id := Encode(0x0A000001, 8080, 5)
	require.Equal(t, "0a0000011f9000000005", id)
	require.Len(t, id, EncodedLength)
}

func TestRoundTrip(t *testing.T) {
	cases := []Address{
		{},
		{LocalIp: 0xFFFFFFFF, LocalPort: 0xFFFF, ConnectionId: 0xFFFFFFFF},
		{LocalIp: 0x7F000001, LocalPort: 2000, ConnectionId: 1},
		{LocalIp: 0xC0A80A14, LocalPort: 7273, ConnectionId: 123456789},
	}
	for _, in := range cases {
		out, err := Decode(in.ClientId())
		require.NoError(t, err)
		require.Equal(t, in, out)
	}
}

func TestDecodeRejectsBadIds(t *testing.T) {
	inputs := []string{
		"",
		"0a0000011f900000000",
		"0a0000011f90000000050",
		"zz0000011f9000000005",
	}
	for _, input := range inputs {
		_, err := Decode(input)
		var invalid *errors.InvalidIdentity
		require.True(t, goerrs.As(err, &invalid), input)
		require.Equal(t, input, invalid.ClientId)
	}
}

func TestDecodeAcceptsUppercase(t *testing.T) {
	a, err := Decode("0A0000011F9000000005")
	require.NoError(t, err)
	require.Equal(t, "10.0.0.1:8080", a.GatewayAddress())
	require.Equal(t, uint32(5), a.ConnectionId)
}

func TestAddressHelpers(t *testing.T) {
	require.Equal(t, "10.0.0.1", IpToString(0x0A000001))

	ip, ok := IpFromString("192.168.1.2")
	require.True(t, ok)
	require.Equal(t, uint32(0xC0A80102), ip)

	_, ok = IpFromString("::1")
	require.False(t, ok)

	ip, port, err := SplitAddress("127.0.0.1:7273")
	require.NoError(t, err)
	require.Equal(t, uint32(0x7F000001), ip)
	require.Equal(t, uint16(7273), port)
	require.Equal(t, "127.0.0.1:7273", JoinAddress(ip, port))

	_, _, err = SplitAddress("localhost:99999")
	require.Error(t, err)
}
