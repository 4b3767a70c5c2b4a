// Package clientid converts between client ids and the Gateway slot they name.
//
// A client id is the lowercase hex form of 10 big-endian bytes: the Gateway's internal IPv4
// address (4), its internal port (2) and the connection id inside that Gateway (4).
package clientid

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net"
	"strconv"

	"github.com/sessamekesh/gateway-client/pkg/errors"
)

const (
	RawLength     = 10
	EncodedLength = RawLength * 2
)

// Address is the decoded form of a client id.
type Address struct {
	LocalIp      uint32
	LocalPort    uint16
	ConnectionId uint32
}

// GatewayAddress is the "ip:port" string used to reach the Gateway that owns the client.
func (a Address) GatewayAddress() string {
	return JoinAddress(a.LocalIp, a.LocalPort)
}

func (a Address) ClientId() string {
	return Encode(a.LocalIp, a.LocalPort, a.ConnectionId)
}

func Encode(localIp uint32, localPort uint16, connectionId uint32) string {
	var raw [RawLength]byte
	binary.BigEndian.PutUint32(raw[0:4], localIp)
	binary.BigEndian.PutUint16(raw[4:6], localPort)
	binary.BigEndian.PutUint32(raw[6:10], connectionId)
	return hex.EncodeToString(raw[:])
}

func Decode(clientId string) (Address, error) {
	if len(clientId) != EncodedLength {
		return Address{}, &errors.InvalidIdentity{
			ClientId: clientId,
			Reason:   fmt.Sprintf("expected %d hex characters, got %d", EncodedLength, len(clientId)),
		}
	}
	raw, err := hex.DecodeString(clientId)
	if err != nil {
		return Address{}, &errors.InvalidIdentity{ClientId: clientId, Reason: err.Error()}
	}
	if len(raw) != RawLength {
		return Address{}, &errors.InvalidIdentity{
			ClientId: clientId,
			Reason:   fmt.Sprintf("decoded to %d bytes", len(raw)),
		}
	}
	return Address{
		LocalIp:      binary.BigEndian.Uint32(raw[0:4]),
		LocalPort:    binary.BigEndian.Uint16(raw[4:6]),
		ConnectionId: binary.BigEndian.Uint32(raw[6:10]),
	}, nil
}

func IpToString(ip uint32) string {
	var raw [4]byte
	binary.BigEndian.PutUint32(raw[:], ip)
	return net.IP(raw[:]).String()
}

// IpFromString parses a dotted IPv4 address. Anything else yields false.
func IpFromString(s string) (uint32, bool) {
	parsed := net.ParseIP(s)
	if parsed == nil {
		return 0, false
	}
	v4 := parsed.To4()
	if v4 == nil {
		return 0, false
	}
	return binary.BigEndian.Uint32(v4), true
}

func JoinAddress(ip uint32, port uint16) string {
	return net.JoinHostPort(IpToString(ip), strconv.Itoa(int(port)))
}

// SplitAddress parses a Gateway "ip:port" address as handed out by the Register.
func SplitAddress(address string) (uint32, uint16, error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return 0, 0, err
	}
	ip, ok := IpFromString(host)
	if !ok {
		return 0, 0, fmt.Errorf("gateway address %q is not IPv4", address)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("gateway address %q has a bad port: %w", address, err)
	}
	return ip, uint16(port), nil
}
