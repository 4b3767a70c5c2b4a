package value

import (
	goerrs "errors"
	"testing"

	"github.com/sessamekesh/gateway-client/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestPHPEncodeMatchesSerialize(t *testing.T) {
	tests := []struct {
		name     string
		value    Value
		expected string
	}{
		{name: "null", value: Null(), expected: "N;"},
		{name: "bool", value: Bool(true), expected: "b:1;"},
		{name: "int", value: Int(-42), expected: "i:-42;"},
		{name: "float", value: Float(0.5), expected: "d:0.5;"},
		{name: "multibyte string counts bytes", value: String("héllo"), expected: `s:6:"héllo";`},
		{name: "list", value: Strings("a", "b"), expected: `a:2:{i:0;s:1:"a";i:1;s:1:"b";}`},
		{
			name:     "nested map",
			value:    Map(Pair("uid", String("u1")), Pair("groups", Strings("g1"))),
			expected: `a:2:{s:3:"uid";s:2:"u1";s:6:"groups";a:1:{i:0;s:2:"g1";}}`,
		},
		{
			name:     "numeric string keys are stored as ints",
			value:    Map(Pair("7", Int(7)), Pair("07", Int(7))),
			expected: `a:2:{i:7;i:7;s:2:"07";i:7;}`,
		},
		{name: "empty map", value: Map(), expected: "a:0:{}"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			buf, err := PHPCodec{}.Encode(tc.value)
			require.NoError(t, err)
			require.Equal(t, tc.expected, string(buf))
		})
	}
}

func TestPHPDecode(t *testing.T) {
	v, err := PHPCodec{}.Decode([]byte(`a:2:{i:3;a:2:{s:3:"uid";s:2:"u1";s:6:"groups";a:2:{i:0;s:1:"x";i:1;s:1:"y";}}i:9;a:1:{s:3:"uid";N;}}`))
	require.NoError(t, err)
	require.Equal(t, KindMap, v.Kind())
	require.Equal(t, 2, v.Len())

	first, ok := v.Get("3")
	require.True(t, ok)
	uid, ok := first.Get("uid")
	require.True(t, ok)
	s, _ := uid.AsString()
	require.Equal(t, "u1", s)
	groups, _ := first.Get("groups")
	require.Equal(t, KindList, groups.Kind())
	require.Equal(t, []string{"x", "y"}, groups.StringItems())

	second, ok := v.Get("9")
	require.True(t, ok)
	nullUid, _ := second.Get("uid")
	require.True(t, nullUid.IsNull())
}

func TestPHPDecodeScalars(t *testing.T) {
	v, err := PHPCodec{}.Decode([]byte("i:12;"))
	require.NoError(t, err)
	i, ok := v.AsInt()
	require.True(t, ok)
	require.Equal(t, int64(12), i)

	v, err = PHPCodec{}.Decode([]byte("b:0;"))
	require.NoError(t, err)
	require.False(t, v.Truthy())

	v, err = PHPCodec{}.Decode([]byte("d:1.0E+25;"))
	require.NoError(t, err)
	f, _ := v.AsFloat()
	require.Equal(t, 1e25, f)

	v, err = PHPCodec{}.Decode([]byte(`s:5:"a;b:c";`))
	require.NoError(t, err)
	s, _ := v.AsString()
	require.Equal(t, "a;b:c", s)
}

func TestPHPRoundTrip(t *testing.T) {
	in := Map(
		Pair("name", String("bob")),
		Pair("age", Int(31)),
		Pair("score", Float(12.25)),
		Pair("admin", Bool(false)),
		Pair("tags", Strings("x", "y", "z")),
		Pair("extra", Null()),
	)
	buf, err := PHPCodec{}.Encode(in)
	require.NoError(t, err)
	out, err := PHPCodec{}.Decode(buf)
	require.NoError(t, err)
	require.True(t, in.Equal(out))
}

func TestPHPDecodeMalformed(t *testing.T) {
	inputs := []string{
		"",
		"i:12",
		`s:10:"short";`,
		"a:2:{i:0;i:1;}",
		"a:99999999:{}",
		`O:8:"stdClass":0:{}`,
		"b:2;",
	}
	for _, input := range inputs {
		_, err := PHPCodec{}.Decode([]byte(input))
		require.Error(t, err, input)
		var codecErr *errors.CodecError
		require.True(t, goerrs.As(err, &codecErr), input)
		require.Equal(t, "php", codecErr.Codec)
	}
}

func TestJSONCodec(t *testing.T) {
	in := Map(
		Pair("group", Strings("g1", "g\"2")),
		Pair("exclude", Map(Pair("7", Int(7)))),
		Pair("ratio", Float(0.25)),
		Pair("none", Null()),
	)
	buf, err := JSONCodec{}.Encode(in)
	require.NoError(t, err)
	require.Equal(t, `{"group":["g1","g\"2"],"exclude":{"7":7},"ratio":0.25,"none":null}`, string(buf))

	out, err := JSONCodec{}.Decode(buf)
	require.NoError(t, err)
	require.True(t, in.Equal(out))

	_, err = JSONCodec{}.Decode([]byte(`{"broken":`))
	require.Error(t, err)
}

func TestJSONEscapesControlCharacters(t *testing.T) {
	buf, err := JSONCodec{}.Encode(String("a\nb\x01"))
	require.NoError(t, err)
	require.Equal(t, `"a\nb\u0001"`, string(buf))
}

func TestReplaceRecursive(t *testing.T) {
	base := Map(
		Pair("name", String("bob")),
		Pair("prefs", Map(Pair("lang", String("en")), Pair("tz", String("UTC")))),
	)
	patch := Map(
		Pair("prefs", Map(Pair("lang", String("fr")))),
		Pair("level", Int(3)),
	)
	merged := ReplaceRecursive(base, patch)

	expected := Map(
		Pair("name", String("bob")),
		Pair("prefs", Map(Pair("lang", String("fr")), Pair("tz", String("UTC")))),
		Pair("level", Int(3)),
	)
	require.True(t, expected.Equal(merged))
}

func TestFromAnySortsMapKeys(t *testing.T) {
	v, err := FromAny(map[string]any{"b": 2, "a": []string{"x"}, "c": nil})
	require.NoError(t, err)
	buf, err := JSONCodec{}.Encode(v)
	require.NoError(t, err)
	require.Equal(t, `{"a":["x"],"b":2,"c":null}`, string(buf))

	_, err = FromAny(struct{}{})
	require.Error(t, err)
}

func TestTruthy(t *testing.T) {
	require.True(t, Int(1).Truthy())
	require.False(t, String("0").Truthy())
	require.False(t, Null().Truthy())
	require.True(t, Strings("a").Truthy())
	require.False(t, Map().Truthy())
}
