package value

// Codec turns structured values into bytes and back. Reply payloads and non-scalar request bodies
// go through the Codec configured on a connection; it has to match what the Gateways were built with.
type Codec interface {
	Name() string
	Encode(v Value) ([]byte, error)
	Decode(buf []byte) (Value, error)
}

// DefaultCodec is the PHP serialization format spoken by stock Gateway deployments.
var DefaultCodec Codec = PHPCodec{}

// CodecByName resolves "php" and "json"; anything else yields nil.
func CodecByName(name string) Codec {
	switch name {
	case "", "php":
		return PHPCodec{}
	case "json":
		return JSONCodec{}
	}
	return nil
}
