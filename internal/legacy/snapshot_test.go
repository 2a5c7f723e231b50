package legacy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnwards/prefmigrate/internal/legacy"
	"github.com/johnwards/prefmigrate/internal/value"
)

func mustParse(t *testing.T, s string) value.Value {
	t.Helper()
	v, err := value.Parse([]byte(s))
	require.NoError(t, err)
	return v
}

func TestResolve(t *testing.T) {
	root := mustParse(t, `{"a":{"b":{"c":5}},"list":[{"x":1}],"flat":"v"}`)

	tests := []struct {
		key   string
		want  string
		found bool
	}{
		{"a.b.c", "5", true},
		{"a.b", `{"c":5}`, true},
		{"a.x.c", "", false},
		{"a.b.c.d", "", false},
		{"list.0.x", "", false},
		{"flat", `"v"`, true},
		{"missing", "", false},
		{"flat.len", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, ok := legacy.Resolve(root, tt.key)
			assert.Equal(t, tt.found, ok)
			if tt.found {
				assert.Equal(t, tt.want, got.String())
			} else {
				assert.Equal(t, value.Undefined, got.Kind())
			}
		})
	}
}

func TestResolveNonObjectRoot(t *testing.T) {
	_, ok := legacy.Resolve(value.NewArray(value.NewNumber(1)), "a")
	assert.False(t, ok)
	_, ok = legacy.Resolve(value.NewString("x"), "a.b")
	assert.False(t, ok)
}

func TestParseSnapshotRejectsNonObject(t *testing.T) {
	_, err := legacy.ParseSnapshot([]byte(`[1,2]`))
	assert.ErrorIs(t, err, legacy.ErrNotAnObject)

	_, err = legacy.ParseSnapshot([]byte(`{`))
	assert.Error(t, err)
}

func TestNestedAdapterStringCategory(t *testing.T) {
	snap, err := legacy.ParseSnapshot([]byte(`{"settings":"{\"theme\":\"dark\",\"codeEditor\":{\"enabled\":true}}"}`))
	require.NoError(t, err)

	a := legacy.NewNestedAdapter(snap, nil)
	assert.Equal(t, value.NewString("dark"), a.Read("settings", "theme"))
	assert.Equal(t, value.NewBool(true), a.Read("settings", "codeEditor.enabled"))
	assert.Equal(t, value.Undefined, a.Read("settings", "codeEditor.missing").Kind())
}

func TestNestedAdapterObjectCategory(t *testing.T) {
	snap, err := legacy.ParseSnapshot([]byte(`{"selectionStore":{"isAutoPin":true}}`))
	require.NoError(t, err)

	a := legacy.NewNestedAdapter(snap, nil)
	assert.Equal(t, value.NewBool(true), a.Read("selectionStore", "isAutoPin"))
}

func TestNestedAdapterAbsentCases(t *testing.T) {
	snap, err := legacy.ParseSnapshot([]byte(`{"broken":"{not json","num":5}`))
	require.NoError(t, err)

	a := legacy.NewNestedAdapter(snap, nil)
	assert.Equal(t, value.Undefined, a.Read("broken", "x").Kind())
	assert.Equal(t, value.Undefined, a.Read("num", "x").Kind())
	assert.Equal(t, value.Undefined, a.Read("nope", "x").Kind())

	// A second read hits the cached result.
	assert.Equal(t, value.Undefined, a.Read("broken", "x").Kind())
}

func TestNestedAdapterMalformedObjectCategory(t *testing.T) {
	snap, err := legacy.ParseSnapshot([]byte(`{"settings":{"theme":"dark"},"shortcuts":{"zoom":1e400}}`))
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Len())

	a := legacy.NewNestedAdapter(snap, nil)
	assert.Equal(t, value.NewString("dark"), a.Read("settings", "theme"))
	assert.Equal(t, value.Undefined, a.Read("shortcuts", "zoom").Kind())
}

func TestNestedAdapterWithoutSnapshot(t *testing.T) {
	a := legacy.NewNestedAdapter(nil, nil)
	assert.Equal(t, value.Undefined, a.Read("settings", "theme").Kind())
}

func TestSnapshotRawIsCopied(t *testing.T) {
	data := []byte(`{"a":1}`)
	snap, err := legacy.ParseSnapshot(data)
	require.NoError(t, err)
	data[1] = 'X'
	assert.Equal(t, `{"a":1}`, string(snap.Raw()))
	assert.Equal(t, 1, snap.Len())
}
