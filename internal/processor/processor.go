// Package processor defines the pluggable processors of an index and the
// pipeline that runs them at three hook points: items before indexing,
// queries before execution and result sets after execution.
package processor

import (
	"github.com/Aman-CERP/searchapi/internal/field"
	"github.com/Aman-CERP/searchapi/internal/query"
)

// Processor is the minimal processor contract. Behaviour comes from the
// optional hook interfaces below, or from FieldProcessor's default traversal.
type Processor interface {
	ID() string
}

// Applicable is implemented by processors that only work for some indexes.
// The check must depend on immutable index properties only.
type Applicable interface {
	SupportsIndex(schema field.Schema) bool
}

// ItemAlterer may drop items before they are indexed. It returns the items
// to keep.
type ItemAlterer interface {
	AlterItems(items []*field.Item) []*field.Item
}

// ItemPreprocessor replaces the default traversal for items.
type ItemPreprocessor interface {
	PreprocessIndexItems(items []*field.Item)
}

// QueryPreprocessor replaces the default traversal for queries.
type QueryPreprocessor interface {
	PreprocessSearchQuery(q *query.Query)
}

// ResultPostprocessor processes results after the backend returned them.
type ResultPostprocessor interface {
	PostprocessSearchResults(results *query.ResultSet, q *query.Query)
}

// FieldProcessor processes individual string values; the pipeline walks
// fields, key trees and filter conditions for it.
type FieldProcessor interface {
	Processor
	Selection() *Selection
	// Process transforms one string. It returns a string scalar or tokens;
	// an empty result removes the value.
	Process(s string) field.Value
}

// Selection decides which fields a FieldProcessor touches: the configured
// fields, or absent those, every field whose base type is in Types.
type Selection struct {
	Fields []string
	Types  []field.Type
}

// DefaultTypes are the types processed when a processor declares none.
var DefaultTypes = []field.Type{field.Text, field.Tokens, field.String}

// FulltextTypes selects fulltext fields only.
var FulltextTypes = []field.Type{field.Text, field.Tokens}

// Selects reports whether def is processed.
func (s *Selection) Selects(def field.Definition) bool {
	if len(s.Fields) > 0 {
		for _, f := range s.Fields {
			if f == def.Key {
				return true
			}
		}
		return false
	}
	types := s.Types
	if len(types) == 0 {
		types = DefaultTypes
	}
	base := def.Type.Base()
	for _, t := range types {
		if t == base {
			return true
		}
	}
	return false
}

// SelectsKey looks key up in schema and reports whether it is processed.
func (s *Selection) SelectsKey(schema field.Schema, key string) bool {
	def, ok := schema.Field(key)
	return ok && s.Selects(def)
}

// SelectsFulltext reports whether any selected field of schema is fulltext;
// only then are search keys processed.
func (s *Selection) SelectsFulltext(schema field.Schema) bool {
	for _, def := range schema.Fields() {
		if def.Type.IsFulltext() && s.Selects(def) {
			return true
		}
	}
	return false
}

// Base is embeddable by FieldProcessors.
type Base struct {
	id        string
	selection Selection
}

// NewBase creates a Base. types applies when fields is empty.
func NewBase(id string, fields []string, types []field.Type) Base {
	return Base{id: id, selection: Selection{Fields: fields, Types: types}}
}

// ID returns the processor id.
func (b *Base) ID() string { return b.id }

// Selection returns the field selection.
func (b *Base) Selection() *Selection { return &b.selection }
