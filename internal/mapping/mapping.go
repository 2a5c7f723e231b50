// Package mapping loads the static table that maps legacy preference keys to
// target preference keys.
package mapping

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/johnwards/prefmigrate/internal/domain"
	"github.com/johnwards/prefmigrate/internal/value"
)

//go:embed mappings.yaml
var defaultTable []byte

//go:embed mappings.schema.json
var schemaJSON []byte

const schemaURL = "mappings.schema.json"

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("load mapping schema: %w", err)
	}
	sch, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile mapping schema: %w", err)
	}
	return sch, nil
})

type document struct {
	Version int       `yaml:"version"`
	Flat    []entry   `yaml:"flat"`
	Nested  yaml.Node `yaml:"nested"`
}

type entry struct {
	OriginalKey string    `yaml:"originalKey"`
	TargetKey   string    `yaml:"targetKey"`
	Type        string    `yaml:"type"`
	Default     yaml.Node `yaml:"default"`
}

// Load returns the items of the built-in mapping table.
func Load() ([]domain.Item, error) {
	return Parse(bytes.NewReader(defaultTable))
}

// LoadFile returns the items of the mapping table stored at path.
func LoadFile(path string) ([]domain.Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mapping table: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Parse(f)
}

// Parse validates a YAML mapping table and converts it to items. Flat
// entries come first, then nested entries in category order as written.
func Parse(r io.Reader) ([]domain.Item, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read mapping table: %w", err)
	}
	if err := validate(raw); err != nil {
		return nil, err
	}

	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode mapping table: %w", err)
	}

	items := make([]domain.Item, 0, len(doc.Flat))
	for _, e := range doc.Flat {
		it, err := e.item(domain.Flat())
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}

	if doc.Nested.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(doc.Nested.Content); i += 2 {
			category := doc.Nested.Content[i].Value
			var entries []entry
			if err := doc.Nested.Content[i+1].Decode(&entries); err != nil {
				return nil, fmt.Errorf("decode category %q: %w", category, err)
			}
			for _, e := range entries {
				it, err := e.item(domain.Nested(category))
				if err != nil {
					return nil, err
				}
				items = append(items, it)
			}
		}
	}
	return items, nil
}

// Defaults returns the default value of every item that has one, keyed by
// target key.
func Defaults(items []domain.Item) map[string]value.Value {
	out := make(map[string]value.Value, len(items))
	for _, it := range items {
		if it.HasDefault() {
			out[it.TargetKey] = it.Default
		}
	}
	return out
}

func (e entry) item(src domain.Source) (domain.Item, error) {
	it := domain.Item{
		OriginalKey: e.OriginalKey,
		TargetKey:   e.TargetKey,
		Type:        domain.TypeHint(e.Type),
		Source:      src,
	}
	// An explicit null default is the same as no default.
	if e.Default.Kind != 0 {
		var x any
		if err := e.Default.Decode(&x); err != nil {
			return domain.Item{}, fmt.Errorf("decode default of %q: %w", e.TargetKey, err)
		}
		if x != nil {
			v, err := value.FromAny(x)
			if err != nil {
				return domain.Item{}, fmt.Errorf("default of %q: %w", e.TargetKey, err)
			}
			it.Default = v
		}
	}
	return it, nil
}

func validate(raw []byte) error {
	sch, err := compiledSchema()
	if err != nil {
		return err
	}

	var tree any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return fmt.Errorf("decode mapping table: %w", err)
	}
	// Re-encode so the validator sees the same types encoding/json produces.
	b, err := json.Marshal(tree)
	if err != nil {
		return fmt.Errorf("normalize mapping table: %w", err)
	}
	var normalized any
	if err := json.Unmarshal(b, &normalized); err != nil {
		return fmt.Errorf("normalize mapping table: %w", err)
	}
	if err := sch.Validate(normalized); err != nil {
		return fmt.Errorf("invalid mapping table: %w", err)
	}
	return nil
}
