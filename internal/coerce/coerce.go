// Package coerce converts untyped legacy values into the shape named by a
// mapping table type hint. Coerce is total: every input produces a value.
package coerce

import (
	"math"
	"strconv"
	"strings"

	"github.com/johnwards/prefmigrate/internal/domain"
	"github.com/johnwards/prefmigrate/internal/value"
)

// Legacy hint spellings still present in older mapping tables.
const (
	aliasArray  = "unknown[]"
	aliasObject = "Record<string, unknown>"
)

// Coerce converts v to the shape named by hint. Unrecognized hints return v
// unchanged. Undefined is treated as null.
func Coerce(v value.Value, hint domain.TypeHint) value.Value {
	if v.Kind() == value.Undefined {
		v = value.NewNull()
	}
	switch hint {
	case domain.TypeBoolean:
		return ToBoolean(v)
	case domain.TypeString:
		return ToString(v)
	case domain.TypeNumber:
		return ToNumber(v)
	case domain.TypeArray, aliasArray:
		return ToArray(v)
	case domain.TypeObject, aliasObject:
		return ToObject(v)
	default:
		return v
	}
}

// ToBoolean converts v to a boolean. Strings are true when they spell
// "true", "1" or "yes" in any case; numbers are true when non-zero; other
// values use truthiness.
func ToBoolean(v value.Value) value.Value {
	switch v.Kind() {
	case value.Bool:
		return v
	case value.String:
		switch strings.ToLower(v.Str()) {
		case "true", "1", "yes":
			return value.NewBool(true)
		}
		return value.NewBool(false)
	case value.Number:
		return value.NewBool(v.Number() != 0)
	case value.Array, value.Object:
		return value.NewBool(true)
	default:
		return value.NewBool(false)
	}
}

// ToString converts v to its textual form. Containers and null are encoded
// as JSON.
func ToString(v value.Value) value.Value {
	switch v.Kind() {
	case value.String:
		return v
	case value.Number:
		return value.NewString(value.FormatNumber(v.Number()))
	case value.Bool:
		return value.NewString(strconv.FormatBool(v.Bool()))
	default:
		b, err := v.MarshalJSON()
		if err != nil {
			return v
		}
		return value.NewString(string(b))
	}
}

// ToNumber converts v to a finite number. Strings use a leading-prefix
// float parse; anything unparseable becomes 0.
func ToNumber(v value.Value) value.Value {
	switch v.Kind() {
	case value.Number:
		if math.IsNaN(v.Number()) || math.IsInf(v.Number(), 0) {
			return value.NewNumber(0)
		}
		return v
	case value.String:
		return value.NewNumber(parseFloatPrefix(v.Str()))
	case value.Bool:
		if v.Bool() {
			return value.NewNumber(1)
		}
		return value.NewNumber(0)
	default:
		return value.NewNumber(0)
	}
}

// ToArray converts v to an array. Strings holding a JSON array are decoded;
// everything else is wrapped in a single-element array.
func ToArray(v value.Value) value.Value {
	switch v.Kind() {
	case value.Array:
		return v
	case value.String:
		if parsed, err := value.Parse([]byte(v.Str())); err == nil && parsed.Kind() == value.Array {
			return parsed
		}
	}
	return value.NewArray(v)
}

// ToObject converts v to an object. Strings holding a JSON object are
// decoded; everything else is wrapped as {"value": v}.
func ToObject(v value.Value) value.Value {
	switch v.Kind() {
	case value.Object:
		return v
	case value.String:
		if parsed, err := value.Parse([]byte(v.Str())); err == nil && parsed.Kind() == value.Object {
			return parsed
		}
	}
	return value.NewObject(map[string]value.Value{"value": v})
}

// parseFloatPrefix parses the longest decimal float prefix of s after
// leading whitespace. Hex, NaN and infinities are rejected.
func parseFloatPrefix(s string) float64 {
	s = strings.TrimLeft(s, " \t\n\r\v\f")
	end := floatPrefixLen(s)
	if end == 0 {
		return 0
	}
	f, err := strconv.ParseFloat(s[:end], 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0
	}
	return f
}

func floatPrefixLen(s string) int {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	digits := 0
	for i < len(s) && isDigit(s[i]) {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		j := i + 1
		frac := 0
		for j < len(s) && isDigit(s[j]) {
			j++
			frac++
		}
		if digits > 0 || frac > 0 {
			i = j
			digits += frac
		}
	}
	if digits == 0 {
		return 0
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		exp := 0
		for j < len(s) && isDigit(s[j]) {
			j++
			exp++
		}
		if exp > 0 {
			i = j
		}
	}
	return i
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
