package value_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnwards/prefmigrate/internal/value"
)

func TestZeroValueIsUndefined(t *testing.T) {
	var v value.Value
	assert.Equal(t, value.Undefined, v.Kind())
	assert.True(t, v.IsAbsent())
	assert.Equal(t, "undefined", v.String())

	_, err := json.Marshal(v)
	require.Error(t, err)
	assert.ErrorIs(t, err, value.ErrUndefined)
}

func TestParse(t *testing.T) {
	v, err := value.Parse([]byte(`{"a":{"b":[1,true,null,"x"]},"n":2.5}`))
	require.NoError(t, err)
	require.Equal(t, value.Object, v.Kind())

	a, ok := v.Field("a")
	require.True(t, ok)
	b, ok := a.Field("b")
	require.True(t, ok)
	require.Equal(t, value.Array, b.Kind())

	elems := b.Elems()
	require.Len(t, elems, 4)
	assert.Equal(t, value.NewNumber(1), elems[0])
	assert.Equal(t, value.NewBool(true), elems[1])
	assert.Equal(t, value.NewNull(), elems[2])
	assert.Equal(t, value.NewString("x"), elems[3])

	n, ok := v.Field("n")
	require.True(t, ok)
	assert.InDelta(t, 2.5, n.Number(), 0)
}

func TestParseNull(t *testing.T) {
	v, err := value.Parse([]byte(`null`))
	require.NoError(t, err)
	assert.Equal(t, value.Null, v.Kind())
	assert.True(t, v.IsAbsent())
}

func TestParseMalformed(t *testing.T) {
	_, err := value.Parse([]byte(`{"a":`))
	assert.Error(t, err)
}

func TestMarshalSortsObjectKeys(t *testing.T) {
	v := value.NewObject(map[string]value.Value{
		"z": value.NewNumber(1),
		"a": value.NewArray(value.NewString("q"), value.NewNull()),
		"m": value.NewBool(false),
	})
	b, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":["q",null],"m":false,"z":1}`, string(b))
	assert.Equal(t, `{"a":["q",null],"m":false,"z":1}`, string(b))
}

func TestMarshalLeavesHTMLUnescaped(t *testing.T) {
	v := value.NewObject(map[string]value.Value{
		"<k>": value.NewString("<b>Tom & Jerry</b>"),
	})
	b, err := v.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"<k>":"<b>Tom & Jerry</b>"}`, string(b))
	assert.Equal(t, `"a\"b\n"`, value.NewString("a\"b\n").String())
}

func TestMarshalNestedUndefinedFails(t *testing.T) {
	v := value.NewArray(value.NewNumber(1), value.Value{})
	_, err := json.Marshal(v)
	assert.ErrorIs(t, err, value.ErrUndefined)
}

func TestUnmarshalField(t *testing.T) {
	var doc struct {
		V value.Value `json:"v"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"v":{"k":[1,2]}}`), &doc))
	assert.Equal(t, `{"k":[1,2]}`, doc.V.String())
}

func TestFromAny(t *testing.T) {
	v, err := value.FromAny(map[string]any{"i": 3, "f": 1.25, "s": "x", "l": []any{false}})
	require.NoError(t, err)
	assert.Equal(t, `{"f":1.25,"i":3,"l":[false],"s":"x"}`, v.String())

	_, err = value.FromAny(struct{}{})
	assert.Error(t, err)
}

func TestInterfaceRoundTrip(t *testing.T) {
	v, err := value.Parse([]byte(`{"a":[1,"b",{"c":null}]}`))
	require.NoError(t, err)

	back, err := value.FromAny(v.Interface())
	require.NoError(t, err)
	assert.Equal(t, v, back)
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{1, "1"},
		{-2, "-2"},
		{1.5, "1.5"},
		{0, "0"},
		{100000000, "100000000"},
		{1e21, "1e+21"},
		{0.0000001, "1e-7"},
		{2.5e-8, "2.5e-8"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, value.FormatNumber(tt.in), "FormatNumber(%v)", tt.in)
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "boolean", value.Bool.String())
	assert.Equal(t, "object", value.Object.String())
	assert.Equal(t, "Kind(42)", value.Kind(42).String())
}
