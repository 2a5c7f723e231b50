package legacy

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/johnwards/prefmigrate/internal/value"
)

// ErrNotAnObject is returned when a legacy document is not a JSON object.
var ErrNotAnObject = errors.New("not a JSON object")

// Snapshot is the legacy client state, keyed by category. Each category is
// either an object or a JSON-encoded string holding one. Categories are
// decoded on access so one malformed category cannot reject the others. A
// Snapshot is immutable once built.
type Snapshot struct {
	raw        []byte
	categories map[string]json.RawMessage
}

// ParseSnapshot splits a snapshot document into its categories.
func ParseSnapshot(data []byte) (*Snapshot, error) {
	categories, err := decodeObject(data)
	if err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	raw := make([]byte, len(data))
	copy(raw, data)
	return &Snapshot{raw: raw, categories: categories}, nil
}

// Category returns the blob stored for name. ok is false when the category
// does not exist; err is set when it exists but cannot be decoded.
func (s *Snapshot) Category(name string) (v value.Value, ok bool, err error) {
	if s == nil {
		return value.Value{}, false, nil
	}
	raw, ok := s.categories[name]
	if !ok {
		return value.Value{}, false, nil
	}
	v, err = value.Parse(raw)
	if err != nil {
		return value.Value{}, true, fmt.Errorf("parse category %q: %w", name, err)
	}
	return v, true, nil
}

// Raw returns the document the snapshot was parsed from.
func (s *Snapshot) Raw() []byte {
	if s == nil {
		return nil
	}
	return s.raw
}

// Len returns the number of categories.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.categories)
}

// NestedAdapter reads dotted paths out of a Snapshot. Parsed category blobs
// are cached for the adapter's lifetime. It is not safe for concurrent use.
type NestedAdapter struct {
	snapshot *Snapshot
	parsed   map[string]value.Value
	logger   *slog.Logger
}

// NewNestedAdapter creates a NestedAdapter over snapshot, which may be nil.
func NewNestedAdapter(snapshot *Snapshot, logger *slog.Logger) *NestedAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &NestedAdapter{
		snapshot: snapshot,
		parsed:   map[string]value.Value{},
		logger:   logger.With("component", "nested-adapter"),
	}
}

// Read resolves key inside category. Anything that cannot be resolved is
// reported as Undefined.
func (a *NestedAdapter) Read(category, key string) value.Value {
	blob, ok := a.category(category)
	if !ok {
		return value.Value{}
	}
	v, _ := Resolve(blob, key)
	return v
}

func (a *NestedAdapter) category(name string) (value.Value, bool) {
	if v, ok := a.parsed[name]; ok {
		return v, v.Kind() != value.Undefined
	}

	blob, ok, err := a.snapshot.Category(name)
	if err != nil {
		a.logger.Warn("failed to decode snapshot category", "category", name, "error", err)
		a.parsed[name] = value.Value{}
		return value.Value{}, false
	}
	if !ok {
		a.logger.Debug("snapshot category not found", "category", name)
		a.parsed[name] = value.Value{}
		return value.Value{}, false
	}
	if blob.Kind() == value.String {
		parsed, err := value.Parse([]byte(blob.Str()))
		if err != nil {
			a.logger.Warn("failed to parse snapshot category", "category", name, "error", err)
			a.parsed[name] = value.Value{}
			return value.Value{}, false
		}
		blob = parsed
	}
	a.parsed[name] = blob
	return blob, true
}

// Resolve walks a dotted path from root. A key without dots is a direct
// field access. Every node on the way must be an object; a missing segment
// or a non-object node yields (Undefined, false).
func Resolve(root value.Value, dottedKey string) (value.Value, bool) {
	if !strings.Contains(dottedKey, ".") {
		return root.Field(dottedKey)
	}
	cur := root
	for _, seg := range strings.Split(dottedKey, ".") {
		if cur.Kind() != value.Object {
			return value.Value{}, false
		}
		next, ok := cur.Field(seg)
		if !ok {
			return value.Value{}, false
		}
		cur = next
	}
	return cur, true
}
