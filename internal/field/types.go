package field

import (
	"fmt"
	"strings"
)

// Type is a field data type.
type Type string

// Primitive types.
const (
	Text     Type = "text"
	String   Type = "string"
	Integer  Type = "integer"
	Decimal  Type = "decimal"
	Date     Type = "date"
	Duration Type = "duration"
	Boolean  Type = "boolean"
	URI      Type = "uri"
	Tokens   Type = "tokens"
)

const (
	listPrefix = "list<"
	listSuffix = ">"
)

var primitives = map[Type]bool{
	Text: true, String: true, Integer: true, Decimal: true, Date: true,
	Duration: true, Boolean: true, URI: true, Tokens: true,
}

// Primitives returns every non-list type.
func Primitives() []Type {
	return []Type{Text, String, Integer, Decimal, Date, Duration, Boolean, URI, Tokens}
}

// ListOf returns list<t>.
func ListOf(t Type) Type {
	return Type(listPrefix + string(t) + listSuffix)
}

// ParseType validates s as a field type.
func ParseType(s string) (Type, error) {
	t := Type(strings.TrimSpace(s))
	if !t.Valid() {
		return "", fmt.Errorf("unknown field type %q", s)
	}
	return t, nil
}

// Valid reports whether t is a primitive or a (nested) list of one.
func (t Type) Valid() bool {
	if t.IsList() {
		return t.Elem().Valid()
	}
	return primitives[t]
}

// IsList reports whether t is list<...>.
func (t Type) IsList() bool {
	s := string(t)
	return strings.HasPrefix(s, listPrefix) && strings.HasSuffix(s, listSuffix)
}

// Elem returns the element type of a list, or t itself.
func (t Type) Elem() Type {
	if !t.IsList() {
		return t
	}
	s := string(t)
	return Type(s[len(listPrefix) : len(s)-len(listSuffix)])
}

// Base returns the innermost primitive type.
func (t Type) Base() Type {
	for t.IsList() {
		t = t.Elem()
	}
	return t
}

// Depth returns the list nesting depth (0 for primitives).
func (t Type) Depth() int {
	n := 0
	for t.IsList() {
		t = t.Elem()
		n++
	}
	return n
}

// WithBase returns t with its innermost type replaced by base.
func (t Type) WithBase(base Type) Type {
	if t.IsList() {
		return ListOf(t.Elem().WithBase(base))
	}
	return base
}

// IsFulltext reports whether t is text or tokens at any list depth.
func (t Type) IsFulltext() bool {
	b := t.Base()
	return b == Text || b == Tokens
}

// IsSortable reports whether a query may sort on a field of type t.
func (t Type) IsSortable() bool {
	return t.Valid() && !t.IsList() && !t.IsFulltext()
}

// IsNumeric reports whether the base type compares numerically.
func (t Type) IsNumeric() bool {
	switch t.Base() {
	case Integer, Decimal, Duration:
		return true
	}
	return false
}

func (t Type) String() string { return string(t) }
