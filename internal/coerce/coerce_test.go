package coerce_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnwards/prefmigrate/internal/coerce"
	"github.com/johnwards/prefmigrate/internal/domain"
	"github.com/johnwards/prefmigrate/internal/value"
)

func obj(fields map[string]value.Value) value.Value { return value.NewObject(fields) }

func TestToBoolean(t *testing.T) {
	tests := []struct {
		name string
		in   value.Value
		want bool
	}{
		{"bool true", value.NewBool(true), true},
		{"bool false", value.NewBool(false), false},
		{"string one", value.NewString("1"), true},
		{"string TRUE", value.NewString("TRUE"), true},
		{"string Yes", value.NewString("Yes"), true},
		{"string no", value.NewString("no"), false},
		{"string zero", value.NewString("0"), false},
		{"empty string", value.NewString(""), false},
		{"number zero", value.NewNumber(0), false},
		{"number negative", value.NewNumber(-3), true},
		{"null", value.NewNull(), false},
		{"empty array", value.NewArray(), true},
		{"empty object", obj(nil), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := coerce.Coerce(tt.in, domain.TypeBoolean)
			require.Equal(t, value.Bool, got.Kind())
			assert.Equal(t, tt.want, got.Bool())
		})
	}
}

func TestToString(t *testing.T) {
	tests := []struct {
		name string
		in   value.Value
		want string
	}{
		{"string", value.NewString("dark"), "dark"},
		{"integer", value.NewNumber(14), "14"},
		{"float", value.NewNumber(1.25), "1.25"},
		{"bool", value.NewBool(false), "false"},
		{"null", value.NewNull(), "null"},
		{"array", value.NewArray(value.NewNumber(1), value.NewString("a")), `[1,"a"]`},
		{"object", obj(map[string]value.Value{"b": value.NewBool(true)}), `{"b":true}`},
		{"html in object", obj(map[string]value.Value{"tag": value.NewString("<a href='x'>&</a>")}), `{"tag":"<a href='x'>&</a>"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := coerce.Coerce(tt.in, domain.TypeString)
			require.Equal(t, value.String, got.Kind())
			assert.Equal(t, tt.want, got.Str())
		})
	}
}

func TestToNumber(t *testing.T) {
	tests := []struct {
		name string
		in   value.Value
		want float64
	}{
		{"number", value.NewNumber(2.5), 2.5},
		{"numeric string", value.NewString("42"), 42},
		{"padded string", value.NewString("  -1.5e2 "), -150},
		{"prefix string", value.NewString("3.5px"), 3.5},
		{"leading dot", value.NewString(".5"), 0.5},
		{"garbage", value.NewString("abc"), 0},
		{"sign only", value.NewString("-"), 0},
		{"infinity text", value.NewString("Infinity"), 0},
		{"overflow", value.NewString("1e999"), 0},
		{"true", value.NewBool(true), 1},
		{"false", value.NewBool(false), 0},
		{"null", value.NewNull(), 0},
		{"array", value.NewArray(value.NewNumber(7)), 0},
		{"object", obj(nil), 0},
		{"nan", value.NewNumber(math.NaN()), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := coerce.Coerce(tt.in, domain.TypeNumber)
			require.Equal(t, value.Number, got.Kind())
			assert.InDelta(t, tt.want, got.Number(), 1e-9)
		})
	}
}

func TestToArray(t *testing.T) {
	arr := value.NewArray(value.NewString("x"))
	assert.Equal(t, arr, coerce.Coerce(arr, domain.TypeArray))

	got := coerce.Coerce(value.NewString(`["a","b"]`), domain.TypeArray)
	assert.Equal(t, `["a","b"]`, got.String())

	got = coerce.Coerce(value.NewString(`{"a":1}`), domain.TypeArray)
	assert.Equal(t, `["{\"a\":1}"]`, got.String())

	got = coerce.Coerce(value.NewString(`[1,`), domain.TypeArray)
	assert.Equal(t, `["[1,"]`, got.String())

	got = coerce.Coerce(value.NewNumber(3), domain.TypeArray)
	assert.Equal(t, `[3]`, got.String())

	got = coerce.Coerce(value.NewNull(), "unknown[]")
	assert.Equal(t, `[null]`, got.String())
}

func TestToObject(t *testing.T) {
	o := obj(map[string]value.Value{"k": value.NewNumber(1)})
	assert.Equal(t, o, coerce.Coerce(o, domain.TypeObject))

	got := coerce.Coerce(value.NewString(`{"a":{"b":2}}`), domain.TypeObject)
	assert.Equal(t, `{"a":{"b":2}}`, got.String())

	got = coerce.Coerce(value.NewString(`[1,2]`), domain.TypeObject)
	assert.Equal(t, `{"value":"[1,2]"}`, got.String())

	got = coerce.Coerce(value.NewString(`not json`), domain.TypeObject)
	assert.Equal(t, `{"value":"not json"}`, got.String())

	got = coerce.Coerce(value.NewArray(value.NewBool(true)), "Record<string, unknown>")
	assert.Equal(t, `{"value":[true]}`, got.String())

	got = coerce.Coerce(value.NewNull(), domain.TypeObject)
	assert.Equal(t, `{"value":null}`, got.String())
}

func TestUnknownHintPassesThrough(t *testing.T) {
	inputs := []value.Value{
		value.NewString("s"),
		value.NewNumber(1),
		value.NewNull(),
		obj(map[string]value.Value{"a": value.NewBool(true)}),
	}
	for _, in := range inputs {
		assert.Equal(t, in, coerce.Coerce(in, domain.TypeUnknown))
		assert.Equal(t, in, coerce.Coerce(in, "SomethingElse"))
	}
}

// Every hint must produce its shape for every kind of input, including
// malformed JSON strings and Undefined.
func TestCoerceIsTotal(t *testing.T) {
	inputs := []value.Value{
		{},
		value.NewNull(),
		value.NewBool(true),
		value.NewBool(false),
		value.NewNumber(0),
		value.NewNumber(-12.5),
		value.NewString(""),
		value.NewString("yes"),
		value.NewString(`{"broken":`),
		value.NewString(`[1,2,3]`),
		value.NewString(`{"ok":true}`),
		value.NewArray(),
		value.NewArray(value.NewNull(), value.NewString("x")),
		obj(nil),
		obj(map[string]value.Value{"nested": value.NewArray(value.NewNumber(1))}),
	}
	shapes := map[domain.TypeHint]value.Kind{
		domain.TypeBoolean: value.Bool,
		domain.TypeString:  value.String,
		domain.TypeNumber:  value.Number,
		domain.TypeArray:   value.Array,
		domain.TypeObject:  value.Object,
	}
	for _, in := range inputs {
		for hint, kind := range shapes {
			var got value.Value
			require.NotPanics(t, func() { got = coerce.Coerce(in, hint) }, "Coerce(%s, %s)", in, hint)
			assert.Equal(t, kind, got.Kind(), "Coerce(%s, %s)", in, hint)

			_, err := got.MarshalJSON()
			assert.NoError(t, err, "Coerce(%s, %s) must be encodable", in, hint)
		}
		require.NotPanics(t, func() { coerce.Coerce(in, domain.TypeUnknown) })
	}
}
