package gateway

import "github.com/sessamekesh/gateway-client/pkg/message/value"

// AuthFrame builds the gateway-client-connect frame that has to precede any command on a socket
// when the Gateway is configured with a secret key. The body is always JSON, whatever codec the
// connection uses.
func AuthFrame(secretKey string) (*Frame, error) {
	body, err := value.JSONCodec{}.Encode(value.Map(value.Pair("secret_key", value.String(secretKey))))
	if err != nil {
		return nil, err
	}
	return &Frame{
		Cmd:  Command_GatewayClientConnect,
		Body: Scalar(body),
	}, nil
}

// AuthPrefix is the encoded AuthFrame, or nil when no secret is configured.
func AuthPrefix(secretKey string) ([]byte, error) {
	if secretKey == "" {
		return nil, nil
	}
	frame, err := AuthFrame(secretKey)
	if err != nil {
		return nil, err
	}
	return FrameSerializer{}.Encode(frame)
}
