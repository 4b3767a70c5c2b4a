package value

import (
	"math"
	"strconv"
	"unicode/utf8"

	"github.com/sessamekesh/gateway-client/pkg/errors"
	"github.com/tidwall/gjson"
)

// JSONCodec encodes values as JSON. It is also the encoding Gateways expect in ext_data.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (c JSONCodec) Encode(v Value) ([]byte, error) {
	return appendJSON(make([]byte, 0, 64), v)
}

func appendJSON(buf []byte, v Value) ([]byte, error) {
	switch v.kind {
	case KindNull:
		return append(buf, "null"...), nil
	case KindBool:
		return strconv.AppendBool(buf, v.b), nil
	case KindInt:
		return strconv.AppendInt(buf, v.i, 10), nil
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return nil, &errors.CodecError{Codec: "json", Offset: len(buf), Reason: "NaN and Inf have no JSON form"}
		}
		return strconv.AppendFloat(buf, v.f, 'g', -1, 64), nil
	case KindString:
		return appendJSONString(buf, v.s), nil
	case KindList:
		buf = append(buf, '[')
		var err error
		for i, item := range v.items {
			if i > 0 {
				buf = append(buf, ',')
			}
			if buf, err = appendJSON(buf, item); err != nil {
				return nil, err
			}
		}
		return append(buf, ']'), nil
	case KindMap:
		buf = append(buf, '{')
		var err error
		for i, e := range v.entries {
			if i > 0 {
				buf = append(buf, ',')
			}
			k, _ := e.Key.AsString()
			buf = appendJSONString(buf, k)
			buf = append(buf, ':')
			if buf, err = appendJSON(buf, e.Value); err != nil {
				return nil, err
			}
		}
		return append(buf, '}'), nil
	}
	return nil, &errors.InvalidEnumValue{EnumName: "value.Kind", IntValue: uint8(v.kind)}
}

const hexDigits = "0123456789abcdef"

func appendJSONString(buf []byte, s string) []byte {
	buf = append(buf, '"')
	for i := 0; i < len(s); {
		c := s[i]
		if c < utf8.RuneSelf {
			switch {
			case c == '"' || c == '\\':
				buf = append(buf, '\\', c)
			case c == '\n':
				buf = append(buf, '\\', 'n')
			case c == '\r':
				buf = append(buf, '\\', 'r')
			case c == '\t':
				buf = append(buf, '\\', 't')
			case c < 0x20:
				buf = append(buf, '\\', 'u', '0', '0', hexDigits[c>>4], hexDigits[c&0xF])
			default:
				buf = append(buf, c)
			}
			i++
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			buf = append(buf, "\ufffd"...)
		} else {
			buf = append(buf, s[i:i+size]...)
		}
		i += size
	}
	return append(buf, '"')
}

func (c JSONCodec) Decode(buf []byte) (Value, error) {
	if !gjson.ValidBytes(buf) {
		return Null(), &errors.CodecError{Codec: "json", Reason: "invalid JSON document"}
	}
	return fromGJSON(gjson.ParseBytes(buf)), nil
}

func fromGJSON(r gjson.Result) Value {
	switch r.Type {
	case gjson.False:
		return Bool(false)
	case gjson.True:
		return Bool(true)
	case gjson.Number:
		if i, err := strconv.ParseInt(r.Raw, 10, 64); err == nil {
			return Int(i)
		}
		return Float(r.Num)
	case gjson.String:
		return String(r.Str)
	case gjson.JSON:
		if r.IsArray() {
			items := []Value{}
			r.ForEach(func(_, item gjson.Result) bool {
				items = append(items, fromGJSON(item))
				return true
			})
			return List(items...)
		}
		entries := []Entry{}
		r.ForEach(func(key, item gjson.Result) bool {
			entries = append(entries, Pair(key.Str, fromGJSON(item)))
			return true
		})
		return Map(entries...)
	}
	return Null()
}
