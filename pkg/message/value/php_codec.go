package value

import (
	"bytes"
	"fmt"
	"math"
	"strconv"

	"github.com/sessamekesh/gateway-client/pkg/errors"
)

// PHPCodec reads and writes the format produced by PHP's serialize(). Objects and references are
// not supported since Gateways never send them.
type PHPCodec struct{}

func (PHPCodec) Name() string { return "php" }

func (c PHPCodec) Encode(v Value) ([]byte, error) {
	return appendPHP(make([]byte, 0, 64), v)
}

func appendPHP(buf []byte, v Value) ([]byte, error) {
	switch v.kind {
	case KindNull:
		return append(buf, "N;"...), nil
	case KindBool:
		if v.b {
			return append(buf, "b:1;"...), nil
		}
		return append(buf, "b:0;"...), nil
	case KindInt:
		buf = append(buf, "i:"...)
		buf = strconv.AppendInt(buf, v.i, 10)
		return append(buf, ';'), nil
	case KindFloat:
		buf = append(buf, "d:"...)
		buf = append(buf, phpFloat(v.f)...)
		return append(buf, ';'), nil
	case KindString:
		return appendPHPString(buf, v.s), nil
	case KindList, KindMap:
		entries := v.Entries()
		buf = append(buf, "a:"...)
		buf = strconv.AppendInt(buf, int64(len(entries)), 10)
		buf = append(buf, ":{"...)
		var err error
		for _, e := range entries {
			buf = appendPHPKey(buf, e.Key)
			if buf, err = appendPHP(buf, e.Value); err != nil {
				return nil, err
			}
		}
		return append(buf, '}'), nil
	}
	return nil, &errors.InvalidEnumValue{EnumName: "value.Kind", IntValue: uint8(v.kind)}
}

func appendPHPString(buf []byte, s string) []byte {
	buf = append(buf, "s:"...)
	buf = strconv.AppendInt(buf, int64(len(s)), 10)
	buf = append(buf, ":\""...)
	buf = append(buf, s...)
	return append(buf, "\";"...)
}

// PHP arrays only have int and string keys, and canonical decimal strings are stored as ints.
func appendPHPKey(buf []byte, k Value) []byte {
	switch k.kind {
	case KindInt:
		buf = append(buf, "i:"...)
		buf = strconv.AppendInt(buf, k.i, 10)
		return append(buf, ';')
	case KindBool:
		if k.b {
			return append(buf, "i:1;"...)
		}
		return append(buf, "i:0;"...)
	case KindFloat:
		buf = append(buf, "i:"...)
		buf = strconv.AppendInt(buf, int64(k.f), 10)
		return append(buf, ';')
	case KindString:
		if i, err := strconv.ParseInt(k.s, 10, 64); err == nil && strconv.FormatInt(i, 10) == k.s {
			buf = append(buf, "i:"...)
			buf = strconv.AppendInt(buf, i, 10)
			return append(buf, ';')
		}
		return appendPHPString(buf, k.s)
	}
	return appendPHPString(buf, "")
}

func phpFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NAN"
	case math.IsInf(f, 1):
		return "INF"
	case math.IsInf(f, -1):
		return "-INF"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func (c PHPCodec) Decode(buf []byte) (Value, error) {
	p := &phpParser{buf: buf}
	return p.parse()
}

type phpParser struct {
	buf []byte
	pos int
}

func (p *phpParser) fail(reason string, args ...any) error {
	return &errors.CodecError{Codec: "php", Offset: p.pos, Reason: fmt.Sprintf(reason, args...)}
}

func (p *phpParser) expect(s string) error {
	if !bytes.HasPrefix(p.buf[p.pos:], []byte(s)) {
		return p.fail("expected %q", s)
	}
	p.pos += len(s)
	return nil
}

// readUntil returns the bytes before delim and moves past it.
func (p *phpParser) readUntil(delim byte) (string, error) {
	idx := bytes.IndexByte(p.buf[p.pos:], delim)
	if idx < 0 {
		return "", p.fail("missing %q", delim)
	}
	s := string(p.buf[p.pos : p.pos+idx])
	p.pos += idx + 1
	return s, nil
}

func (p *phpParser) parse() (Value, error) {
	if p.pos+2 > len(p.buf) {
		return Null(), p.fail("unexpected end of input")
	}
	tag := p.buf[p.pos]
	if tag == 'N' {
		if err := p.expect("N;"); err != nil {
			return Null(), err
		}
		return Null(), nil
	}
	if p.buf[p.pos+1] != ':' {
		return Null(), p.fail("malformed tag %q", tag)
	}
	p.pos += 2
	switch tag {
	case 'b':
		raw, err := p.readUntil(';')
		if err != nil {
			return Null(), err
		}
		switch raw {
		case "0":
			return Bool(false), nil
		case "1":
			return Bool(true), nil
		}
		return Null(), p.fail("bad bool %q", raw)
	case 'i':
		raw, err := p.readUntil(';')
		if err != nil {
			return Null(), err
		}
		i, convErr := strconv.ParseInt(raw, 10, 64)
		if convErr != nil {
			return Null(), p.fail("bad int %q", raw)
		}
		return Int(i), nil
	case 'd':
		raw, err := p.readUntil(';')
		if err != nil {
			return Null(), err
		}
		switch raw {
		case "NAN":
			return Float(math.NaN()), nil
		case "INF":
			return Float(math.Inf(1)), nil
		case "-INF":
			return Float(math.Inf(-1)), nil
		}
		f, convErr := strconv.ParseFloat(raw, 64)
		if convErr != nil {
			return Null(), p.fail("bad float %q", raw)
		}
		return Float(f), nil
	case 's':
		s, err := p.parseStringBody()
		if err != nil {
			return Null(), err
		}
		return String(s), nil
	case 'a':
		return p.parseArray()
	}
	return Null(), p.fail("unsupported tag %q", tag)
}

// parseStringBody reads `<len>:"<bytes>";` after the `s:` prefix.
func (p *phpParser) parseStringBody() (string, error) {
	rawLen, err := p.readUntil(':')
	if err != nil {
		return "", err
	}
	n, convErr := strconv.Atoi(rawLen)
	if convErr != nil || n < 0 {
		return "", p.fail("bad string length %q", rawLen)
	}
	if err := p.expect("\""); err != nil {
		return "", err
	}
	if p.pos+n > len(p.buf) {
		return "", p.fail("string of %d bytes overruns input", n)
	}
	s := string(p.buf[p.pos : p.pos+n])
	p.pos += n
	if err := p.expect("\";"); err != nil {
		return "", err
	}
	return s, nil
}

func (p *phpParser) parseArray() (Value, error) {
	rawLen, err := p.readUntil(':')
	if err != nil {
		return Null(), err
	}
	n, convErr := strconv.Atoi(rawLen)
	if convErr != nil || n < 0 {
		return Null(), p.fail("bad array length %q", rawLen)
	}
	if err := p.expect("{"); err != nil {
		return Null(), err
	}
	// Each entry takes at least 4 bytes, so a larger count can only be garbage.
	if n > (len(p.buf)-p.pos)/4 {
		return Null(), p.fail("array of %d entries overruns input", n)
	}
	entries := make([]Entry, 0, n)
	sequential := true
	for i := 0; i < n; i++ {
		key, err := p.parse()
		if err != nil {
			return Null(), err
		}
		if key.kind != KindInt && key.kind != KindString {
			return Null(), p.fail("array key must be int or string, got %s", key.kind)
		}
		if key.kind != KindInt || key.i != int64(i) {
			sequential = false
		}
		val, err := p.parse()
		if err != nil {
			return Null(), err
		}
		entries = append(entries, Entry{Key: key, Value: val})
	}
	if err := p.expect("}"); err != nil {
		return Null(), err
	}
	if sequential && n > 0 {
		items := make([]Value, n)
		for i, e := range entries {
			items[i] = e.Value
		}
		return List(items...), nil
	}
	return Map(entries...), nil
}
