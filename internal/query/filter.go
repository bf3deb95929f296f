package query

import (
	"fmt"
	"sort"

	"github.com/Aman-CERP/searchapi/internal/errors"
	"github.com/Aman-CERP/searchapi/internal/field"
)

// Operator compares a field against a condition value.
type Operator string

const (
	Equal          Operator = "="
	NotEqual       Operator = "<>"
	Less           Operator = "<"
	LessOrEqual    Operator = "<="
	GreaterOrEqual Operator = ">="
	Greater        Operator = ">"
)

// Operators lists every supported operator, longest first so that parsers
// can match prefixes greedily.
var Operators = []Operator{LessOrEqual, GreaterOrEqual, NotEqual, Less, Greater, Equal}

// ParseOperator validates s.
func ParseOperator(s string) (Operator, error) {
	for _, op := range Operators {
		if string(op) == s {
			return op, nil
		}
	}
	return "", errors.New(errors.ErrCodeInvalidOperator, fmt.Sprintf("unknown operator %q", s), nil)
}

// Node is a filter tree node: *Condition or *Filter.
type Node interface {
	isNode()
}

// Condition is a leaf comparison. A nil Value compares against "no value".
type Condition struct {
	Field    string
	Value    any
	Operator Operator
}

func (*Condition) isNode() {}

// Filter is a boolean group of conditions and nested filters.
type Filter struct {
	Conjunction Conjunction
	Children    []Node
	tags        map[string]struct{}
}

func (*Filter) isNode() {}

// NewFilter creates an empty filter group.
func NewFilter(conj Conjunction, tags ...string) *Filter {
	f := &Filter{Conjunction: conj}
	for _, t := range tags {
		f.AddTag(t)
	}
	return f
}

// Condition appends a leaf condition. An empty operator means "=".
func (f *Filter) Condition(fieldKey string, value any, op Operator) *Filter {
	if op == "" {
		op = Equal
	}
	f.Children = append(f.Children, &Condition{Field: fieldKey, Value: value, Operator: op})
	return f
}

// Filter appends a nested filter.
func (f *Filter) Filter(nested *Filter) *Filter {
	f.Children = append(f.Children, nested)
	return f
}

// AddTag marks the filter, e.g. to correlate it with a facet.
func (f *Filter) AddTag(tag string) {
	if f.tags == nil {
		f.tags = make(map[string]struct{})
	}
	f.tags[tag] = struct{}{}
}

// HasTag reports whether the filter carries tag.
func (f *Filter) HasTag(tag string) bool {
	_, ok := f.tags[tag]
	return ok
}

// Tags returns the filter's tags, sorted.
func (f *Filter) Tags() []string {
	out := make([]string, 0, len(f.tags))
	for t := range f.tags {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Conditions returns every leaf condition in tree order.
func (f *Filter) Conditions() []*Condition {
	var out []*Condition
	for _, c := range f.Children {
		switch x := c.(type) {
		case *Condition:
			out = append(out, x)
		case *Filter:
			out = append(out, x.Conditions()...)
		}
	}
	return out
}

// IsEmpty reports whether the filter has no conditions at any depth.
func (f *Filter) IsEmpty() bool {
	return len(f.Conditions()) == 0
}

// ByTag returns the first filter in the tree (f included) carrying tag.
func (f *Filter) ByTag(tag string) (*Filter, bool) {
	if f.HasTag(tag) {
		return f, true
	}
	for _, c := range f.Children {
		if nested, ok := c.(*Filter); ok {
			if found, ok := nested.ByTag(tag); ok {
				return found, true
			}
		}
	}
	return nil, false
}

// ValidateOperator checks that op may be used on def with value. Fulltext
// fields and NULL comparisons accept only "=" and "<>".
func ValidateOperator(def field.Definition, value any, op Operator) error {
	if _, err := ParseOperator(string(op)); err != nil {
		return err
	}
	if op == Equal || op == NotEqual {
		return nil
	}
	if value == nil {
		return errors.New(errors.ErrCodeInvalidOperator,
			fmt.Sprintf("operator %q cannot compare field %q with NULL", op, def.Key), nil).
			WithDetail("field", def.Key)
	}
	if def.Type.IsFulltext() {
		return errors.New(errors.ErrCodeInvalidOperator,
			fmt.Sprintf("operator %q is not valid on fulltext field %q", op, def.Key), nil).
			WithDetail("field", def.Key)
	}
	return nil
}

// Validate checks every condition of f against schema. Special fields
// search_api_id and search_api_datasource are always accepted.
func (f *Filter) Validate(schema field.Schema) error {
	for _, c := range f.Conditions() {
		def, ok := lookupField(schema, c.Field)
		if !ok {
			return errors.InvalidField(c.Field, "unknown field")
		}
		if err := ValidateOperator(def, c.Value, c.Operator); err != nil {
			return err
		}
	}
	return nil
}

func lookupField(schema field.Schema, key string) (field.Definition, bool) {
	switch key {
	case FieldID, FieldDatasource:
		return field.Definition{Key: key, Type: field.String}, true
	}
	return schema.Field(key)
}
