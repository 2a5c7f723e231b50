package legacy_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnwards/prefmigrate/internal/legacy"
	"github.com/johnwards/prefmigrate/internal/value"
)

type failingStore struct{}

func (failingStore) Get(string) (value.Value, error) {
	return value.Value{}, errors.New("disk on fire")
}

func TestFlatAdapterSwallowsErrors(t *testing.T) {
	a := legacy.NewFlatAdapter(failingStore{}, nil)
	assert.Equal(t, value.Undefined, a.Read("ZoomFactor").Kind())
}

func TestFlatAdapterNilStore(t *testing.T) {
	a := legacy.NewFlatAdapter(nil, nil)
	assert.Equal(t, value.Undefined, a.Read("ZoomFactor").Kind())
}

func TestJSONFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"ZoomFactor":1.2,"Language":"de-DE","Nested":{"a":1}}`), 0o600))

	s, err := legacy.OpenJSONFileStore(path)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, path, s.Path())

	a := legacy.NewFlatAdapter(s, nil)
	assert.Equal(t, value.NewNumber(1.2), a.Read("ZoomFactor"))
	assert.Equal(t, value.NewString("de-DE"), a.Read("Language"))
	assert.Equal(t, value.Undefined, a.Read("Missing").Kind())
	assert.Equal(t, value.Undefined, a.Read("Nested.a").Kind())
}

func TestJSONFileStoreMissingFile(t *testing.T) {
	s, err := legacy.OpenJSONFileStore(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, "{}", string(s.Dump()))
}

func TestJSONFileStoreMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`["not","an","object"]`), 0o600))

	_, err := legacy.OpenJSONFileStore(path)
	assert.ErrorIs(t, err, legacy.ErrNotAnObject)
}

func TestJSONFileStoreMalformedKeyIsIsolated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"ZoomFactor": 1.25, "Broken": 1e400}`), 0o600))

	s, err := legacy.OpenJSONFileStore(path)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())

	_, err = s.Get("Broken")
	assert.Error(t, err)

	a := legacy.NewFlatAdapter(s, nil)
	assert.Equal(t, value.NewNumber(1.25), a.Read("ZoomFactor"))
	assert.Equal(t, value.Undefined, a.Read("Broken").Kind())
}
