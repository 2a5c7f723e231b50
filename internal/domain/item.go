package domain

import "github.com/johnwards/prefmigrate/internal/value"

// TypeHint names the target shape a legacy value is coerced into.
type TypeHint string

const (
	TypeBoolean TypeHint = "boolean"
	TypeString  TypeHint = "string"
	TypeNumber  TypeHint = "number"
	TypeArray   TypeHint = "array"
	TypeObject  TypeHint = "object"
	TypeUnknown TypeHint = "unknown"
)

// SourceKind identifies which legacy store an item is read from.
type SourceKind string

const (
	// SourceFlat is the legacy flat key-value store.
	SourceFlat SourceKind = "flat"
	// SourceNested is the legacy per-category client-state snapshot.
	SourceNested SourceKind = "nested"
)

// Source locates a legacy value. Category is only meaningful for
// SourceNested.
type Source struct {
	Kind     SourceKind `json:"kind"`
	Category string     `json:"category,omitempty"`
}

// Flat returns the flat-store source.
func Flat() Source { return Source{Kind: SourceFlat} }

// Nested returns the snapshot source for the given category.
func Nested(category string) Source { return Source{Kind: SourceNested, Category: category} }

// Item is one planned unit of work, derived from a mapping table entry.
// Default is Undefined when the entry carries no default.
type Item struct {
	OriginalKey string      `json:"originalKey"`
	TargetKey   string      `json:"targetKey"`
	Type        TypeHint    `json:"type"`
	Default     value.Value `json:"-"`
	Source      Source      `json:"source"`
}

// HasDefault reports whether the mapping entry supplied a default value.
func (i Item) HasDefault() bool { return i.Default.Kind() != value.Undefined }
