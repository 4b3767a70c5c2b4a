package gateway

import (
	"encoding/binary"

	"github.com/sessamekesh/gateway-client/pkg/errors"
	"github.com/sessamekesh/gateway-client/pkg/message/value"
)

/*
Frame layout, all integers big-endian:

	pack_len      u32  whole frame including this header
	cmd           u8
	local_ip      u32
	local_port    u16
	client_ip     u32
	client_port   u16
	connection_id u32
	flag          u8
	gateway_port  u16
	ext_len       u32
	ext_data      [ext_len]byte
	body          [pack_len - HeaderLength - ext_len]byte
*/
const HeaderLength = 28

const (
	// FlagBodyIsScalar is the wire tag of a scalar body. It is derived from Body when encoding and is
	// never kept in Frame.Flag.
	FlagBodyIsScalar uint8 = 0x01
	// FlagNotCallEncode tells the Gateway to push the body to clients without running its own
	// protocol encoder, which saves work on broadcast.
	FlagNotCallEncode uint8 = 0x02
)

type Frame struct {
	Cmd          Command
	LocalIp      uint32
	LocalPort    uint16
	ClientIp     uint32
	ClientPort   uint16
	ConnectionId uint32
	Flag         uint8
	GatewayPort  uint16
	ExtData      []byte
	Body         Body
}

// Body is either a scalar byte string, passed through untouched, or a structured value that goes
// through the connection's Codec. The zero Body is an empty scalar.
type Body struct {
	structured bool
	raw        []byte
	value      value.Value
}

func Scalar(b []byte) Body {
	return Body{raw: b}
}

func Text(s string) Body {
	return Body{raw: []byte(s)}
}

func Structured(v value.Value) Body {
	return Body{structured: true, value: v}
}

func (b Body) IsStructured() bool { return b.structured }
func (b Body) Bytes() []byte      { return b.raw }
func (b Body) Value() value.Value { return b.value }

func (b Body) Equal(o Body) bool {
	if b.structured != o.structured {
		return false
	}
	if b.structured {
		return b.value.Equal(o.value)
	}
	return string(b.raw) == string(o.raw)
}

type FrameSerializer struct {
	Codec value.Codec
}

func (s FrameSerializer) codec() value.Codec {
	if s.Codec == nil {
		return value.DefaultCodec
	}
	return s.Codec
}

func (s FrameSerializer) Encode(f *Frame) ([]byte, error) {
	body := f.Body.raw
	flag := f.Flag &^ FlagBodyIsScalar
	if f.Body.structured {
		encoded, err := s.codec().Encode(f.Body.value)
		if err != nil {
			return nil, err
		}
		body = encoded
	} else {
		flag |= FlagBodyIsScalar
	}

	extLen := len(f.ExtData)
	packLen := HeaderLength + extLen + len(body)

	buf := make([]byte, HeaderLength, packLen)
	binary.BigEndian.PutUint32(buf[0:4], uint32(packLen))
	buf[4] = uint8(f.Cmd)
	binary.BigEndian.PutUint32(buf[5:9], f.LocalIp)
	binary.BigEndian.PutUint16(buf[9:11], f.LocalPort)
	binary.BigEndian.PutUint32(buf[11:15], f.ClientIp)
	binary.BigEndian.PutUint16(buf[15:17], f.ClientPort)
	binary.BigEndian.PutUint32(buf[17:21], f.ConnectionId)
	buf[21] = flag
	binary.BigEndian.PutUint16(buf[22:24], f.GatewayPort)
	binary.BigEndian.PutUint32(buf[24:28], uint32(extLen))

	buf = append(buf, f.ExtData...)
	buf = append(buf, body...)
	return buf, nil
}

// Decode parses exactly one frame from the front of msg. Bytes past pack_len are ignored.
func (s FrameSerializer) Decode(msg []byte) (*Frame, error) {
	if len(msg) < HeaderLength {
		return nil, &errors.MalformedFrame{
			MessageName: "GatewayFrame",
			MsgSize:     len(msg),
			MinimumSize: HeaderLength,
		}
	}

	packLen := int(binary.BigEndian.Uint32(msg[0:4]))
	extLen := int(binary.BigEndian.Uint32(msg[24:28]))
	if packLen < HeaderLength+extLen {
		return nil, &errors.MalformedFrame{
			MessageName: "GatewayFrame::PackLength",
			MsgSize:     packLen,
			MinimumSize: HeaderLength + extLen,
		}
	}
	if len(msg) < packLen {
		return nil, &errors.MalformedFrame{
			MessageName: "GatewayFrame::Body",
			MsgSize:     len(msg),
			MinimumSize: packLen,
		}
	}

	wireFlag := msg[21]
	frame := &Frame{
		Cmd:          Command(msg[4]),
		LocalIp:      binary.BigEndian.Uint32(msg[5:9]),
		LocalPort:    binary.BigEndian.Uint16(msg[9:11]),
		ClientIp:     binary.BigEndian.Uint32(msg[11:15]),
		ClientPort:   binary.BigEndian.Uint16(msg[15:17]),
		ConnectionId: binary.BigEndian.Uint32(msg[17:21]),
		Flag:         wireFlag &^ FlagBodyIsScalar,
		GatewayPort:  binary.BigEndian.Uint16(msg[22:24]),
	}

	// Readers reuse their buffers, so anything kept has to be copied
	if extLen > 0 {
		frame.ExtData = append([]byte{}, msg[HeaderLength:HeaderLength+extLen]...)
	}
	rawBody := msg[HeaderLength+extLen : packLen]
	if wireFlag&FlagBodyIsScalar != 0 {
		frame.Body = Scalar(append([]byte{}, rawBody...))
	} else {
		decoded, err := s.codec().Decode(rawBody)
		if err != nil {
			return nil, err
		}
		frame.Body = Structured(decoded)
	}

	return frame, nil
}

// PeekLength returns the declared pack_len once 4 bytes are buffered, 0 before that.
func PeekLength(buf []byte) int {
	if len(buf) < 4 {
		return 0
	}
	return int(binary.BigEndian.Uint32(buf[0:4]))
}
