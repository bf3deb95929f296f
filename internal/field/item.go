package field

import (
	"sort"

	"github.com/Aman-CERP/searchapi/internal/item"
)

// Definition is the configuration of one indexed field.
type Definition struct {
	Key         string
	Label       string
	Type        Type
	Boost       float64
	Datasource  string // empty for datasource-independent fields
	Property    string // property path, ':'-separated for nested properties
	Description string
}

// Field is a definition plus the value extracted for one item. Processors
// may change both Type and Value (tokenizing text, for instance); Original
// keeps the extracted value for display and excerpts.
type Field struct {
	Definition
	Value    Value
	Original Value
}

// Item is an item ready for processing and indexing.
type Item struct {
	ID       item.ID
	Fields   map[string]*Field
	Original any // the datasource's loaded object
	Score    float64
	Excerpt  string
}

// NewItem returns an item with no fields.
func NewItem(id item.ID, original any) *Item {
	return &Item{ID: id, Fields: make(map[string]*Field), Original: original, Score: 1}
}

// Field returns a field by key.
func (it *Item) Field(key string) (*Field, bool) {
	f, ok := it.Fields[key]
	return f, ok
}

// Set stores a value under def.Key.
func (it *Item) Set(def Definition, v Value) *Field {
	f := &Field{Definition: def, Value: v, Original: v}
	it.Fields[def.Key] = f
	return f
}

// Keys returns the item's field keys, sorted.
func (it *Item) Keys() []string {
	keys := make([]string, 0, len(it.Fields))
	for k := range it.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Schema exposes an index's field configuration.
type Schema interface {
	IndexID() string
	Fields() []Definition
	Field(key string) (Definition, bool)
}

// FulltextFields returns the keys of the schema's fulltext fields, sorted.
func FulltextFields(s Schema) []string {
	var out []string
	for _, d := range s.Fields() {
		if d.Type.IsFulltext() {
			out = append(out, d.Key)
		}
	}
	sort.Strings(out)
	return out
}

// StaticSchema is a fixed Schema.
type StaticSchema struct {
	id   string
	defs []Definition
	byID map[string]Definition
}

// NewSchema builds a StaticSchema. Definitions are kept sorted by key.
func NewSchema(indexID string, defs ...Definition) *StaticSchema {
	s := &StaticSchema{id: indexID, byID: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		s.byID[d.Key] = d
	}
	for _, d := range s.byID {
		s.defs = append(s.defs, d)
	}
	sort.Slice(s.defs, func(i, j int) bool { return s.defs[i].Key < s.defs[j].Key })
	return s
}

func (s *StaticSchema) IndexID() string      { return s.id }
func (s *StaticSchema) Fields() []Definition { return s.defs }
func (s *StaticSchema) Field(key string) (Definition, bool) {
	d, ok := s.byID[key]
	return d, ok
}
