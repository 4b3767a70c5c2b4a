package gateway

import (
	"encoding/binary"

	"github.com/sessamekesh/gateway-client/pkg/errors"
	"github.com/sessamekesh/gateway-client/pkg/message/value"
)

// ReplyHeaderLength is the big-endian u32 that prefixes every reply. It counts payload bytes only.
const ReplyHeaderLength = 4

func (s FrameSerializer) EncodeReply(v value.Value) ([]byte, error) {
	payload, err := s.codec().Encode(v)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, ReplyHeaderLength, ReplyHeaderLength+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	return append(buf, payload...), nil
}

// ReplyLength reports the total size of the reply at the front of buf, prefix included, or 0 while
// the prefix itself is incomplete.
func ReplyLength(buf []byte) int {
	if len(buf) < ReplyHeaderLength {
		return 0
	}
	return ReplyHeaderLength + int(binary.BigEndian.Uint32(buf[0:ReplyHeaderLength]))
}

func (s FrameSerializer) DecodeReply(buf []byte) (value.Value, error) {
	total := ReplyLength(buf)
	if total == 0 || len(buf) < total {
		return value.Null(), &errors.MalformedFrame{
			MessageName: "GatewayReply",
			MsgSize:     len(buf),
			MinimumSize: max(total, ReplyHeaderLength),
		}
	}
	return s.codec().Decode(buf[ReplyHeaderLength:total])
}
