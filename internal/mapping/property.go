// Package mapping turns datasource property trees into typed, indexable
// fields and extracts those fields from loaded items.
package mapping

import (
	"github.com/Aman-CERP/searchapi/internal/field"
)

// PathSeparator joins nested property keys.
const PathSeparator = ":"

// LabelSeparator joins nested property labels.
const LabelSeparator = " » "

// Property describes one datasource property. A property with children is
// complex: it is either expanded (when listed in the index's additional
// fields) or indexed through its main child.
type Property struct {
	Key         string
	Label       string
	Type        string // native type name, see TypeTable
	List        bool
	Main        string
	Description string
	Children    []Property
}

// IsComplex reports whether p has children.
func (p Property) IsComplex() bool {
	return len(p.Children) > 0
}

// Child returns the direct child with the given key.
func (p Property) Child(key string) (Property, bool) {
	for _, c := range p.Children {
		if c.Key == key {
			return c, true
		}
	}
	return Property{}, false
}

func (p Property) label() string {
	if p.Label != "" {
		return p.Label
	}
	return p.Key
}

// TypeTable maps native property types to field types.
var TypeTable = map[string]field.Type{
	"string":    field.String,
	"email":     field.String,
	"language":  field.String,
	"text":      field.Text,
	"markdown":  field.Text,
	"html":      field.Text,
	"integer":   field.Integer,
	"int":       field.Integer,
	"float":     field.Decimal,
	"decimal":   field.Decimal,
	"number":    field.Decimal,
	"boolean":   field.Boolean,
	"bool":      field.Boolean,
	"date":      field.Date,
	"datetime":  field.Date,
	"timestamp": field.Date,
	"duration":  field.Duration,
	"uri":       field.URI,
	"url":       field.URI,
	"tokens":    field.Tokens,
}

// MapType looks up a native type in TypeTable.
func MapType(native string) (field.Type, bool) {
	t, ok := TypeTable[native]
	return t, ok
}
