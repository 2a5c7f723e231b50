package legacy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/johnwards/prefmigrate/internal/value"
)

// FlatStore is the legacy flat key-value store. Get returns an Undefined
// value when the key does not exist.
type FlatStore interface {
	Get(key string) (value.Value, error)
}

// FlatAdapter reads single values from a FlatStore. Read errors are logged
// and reported as absent so one unreadable key cannot abort a migration.
type FlatAdapter struct {
	store  FlatStore
	logger *slog.Logger
}

// NewFlatAdapter creates a FlatAdapter. A nil logger uses slog.Default().
func NewFlatAdapter(store FlatStore, logger *slog.Logger) *FlatAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &FlatAdapter{store: store, logger: logger.With("component", "flat-adapter")}
}

// Read returns the value stored under key, or Undefined.
func (a *FlatAdapter) Read(key string) value.Value {
	if a.store == nil {
		return value.Value{}
	}
	v, err := a.store.Get(key)
	if err != nil {
		a.logger.Warn("failed to read legacy flat store", "key", key, "error", err)
		return value.Value{}
	}
	return v
}

// JSONFileStore is a FlatStore backed by a single JSON object on disk, the
// layout used by the legacy configuration file. Values are decoded on Get,
// so one malformed key only fails its own read.
type JSONFileStore struct {
	path string
	raw  []byte
	data map[string]json.RawMessage
}

// OpenJSONFileStore loads the JSON object at path. A missing file yields an
// empty store; a file that is not a JSON object is an error.
func OpenJSONFileStore(path string) (*JSONFileStore, error) {
	s := &JSONFileStore{path: path, data: map[string]json.RawMessage{}}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.raw = []byte("{}")
			return s, nil
		}
		return nil, fmt.Errorf("read legacy store: %w", err)
	}

	doc, err := decodeObject(raw)
	if err != nil {
		return nil, fmt.Errorf("parse legacy store %s: %w", path, err)
	}
	s.data = doc
	s.raw = raw
	return s, nil
}

// Get implements FlatStore. A key whose value cannot be decoded returns an
// error.
func (s *JSONFileStore) Get(key string) (value.Value, error) {
	raw, ok := s.data[key]
	if !ok {
		return value.Value{}, nil
	}
	v, err := value.Parse(raw)
	if err != nil {
		return value.Value{}, fmt.Errorf("parse legacy key %q: %w", key, err)
	}
	return v, nil
}

// Path returns the file the store was loaded from.
func (s *JSONFileStore) Path() string { return s.path }

// Dump returns the raw document as loaded.
func (s *JSONFileStore) Dump() []byte { return s.raw }

// Len returns the number of top-level keys.
func (s *JSONFileStore) Len() int { return len(s.data) }

// decodeObject splits a JSON object into its undecoded members. Anything
// other than an object wraps ErrNotAnObject.
func decodeObject(data []byte) (map[string]json.RawMessage, error) {
	if !json.Valid(data) {
		var discard any
		return nil, json.Unmarshal(data, &discard)
	}
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrNotAnObject
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
