package field

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind tags the shape of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindScalar
	KindTokens
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindTokens:
		return "tokens"
	case KindList:
		return "list"
	default:
		return "null"
	}
}

// Token is one scored word-like unit of a fulltext value.
type Token struct {
	Value string
	Score float64
}

// NewToken returns a token with score 1.
func NewToken(v string) Token {
	return Token{Value: v, Score: 1}
}

// Value is a field value: Null, Scalar, TokenList or List.
type Value struct {
	kind   Kind
	scalar any
	tokens []Token
	list   []Value
}

// Null returns the empty value.
func Null() Value { return Value{} }

// Scalar wraps a single primitive value. A nil v yields Null.
func Scalar(v any) Value {
	if v == nil {
		return Null()
	}
	return Value{kind: KindScalar, scalar: v}
}

// TokenList wraps tokens.
func TokenList(tokens []Token) Value {
	return Value{kind: KindTokens, tokens: tokens}
}

// List wraps the element values of a list field.
func List(values []Value) Value {
	return Value{kind: KindList, list: values}
}

// Strings builds a list of string scalars.
func Strings(values ...string) Value {
	out := make([]Value, len(values))
	for i, v := range values {
		out[i] = Scalar(v)
	}
	return List(out)
}

// Kind returns the value's shape.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v has no value. Empty lists and token lists count
// as null.
func (v Value) IsNull() bool {
	switch v.kind {
	case KindNull:
		return true
	case KindTokens:
		return len(v.tokens) == 0
	case KindList:
		for _, e := range v.list {
			if !e.IsNull() {
				return false
			}
		}
		return true
	}
	return false
}

// Scalar returns the wrapped scalar, or nil.
func (v Value) Scalar() any { return v.scalar }

// Tokens returns the wrapped tokens, or nil.
func (v Value) Tokens() []Token { return v.tokens }

// List returns the list elements, or nil.
func (v Value) List() []Value { return v.list }

// Texts flattens v into string values, in order: scalars are formatted,
// tokens contribute their values, lists recurse.
func (v Value) Texts() []string {
	var out []string
	v.walk(func(s string) { out = append(out, s) })
	return out
}

// Text joins Texts with single spaces.
func (v Value) Text() string {
	return strings.Join(v.Texts(), " ")
}

func (v Value) walk(fn func(string)) {
	switch v.kind {
	case KindScalar:
		fn(FormatScalar(v.scalar))
	case KindTokens:
		for _, t := range v.tokens {
			fn(t.Value)
		}
	case KindList:
		for _, e := range v.list {
			e.walk(fn)
		}
	}
}

// Scalars flattens v into its scalar leaves; tokens contribute their string values.
func (v Value) Scalars() []any {
	var out []any
	switch v.kind {
	case KindScalar:
		out = append(out, v.scalar)
	case KindTokens:
		for _, t := range v.tokens {
			out = append(out, t.Value)
		}
	case KindList:
		for _, e := range v.list {
			out = append(out, e.Scalars()...)
		}
	}
	return out
}

func (v Value) String() string {
	switch v.kind {
	case KindScalar:
		return FormatScalar(v.scalar)
	case KindTokens:
		parts := make([]string, len(v.tokens))
		for i, t := range v.tokens {
			parts[i] = fmt.Sprintf("%s^%g", t.Value, t.Score)
		}
		return "[" + strings.Join(parts, " ") + "]"
	case KindList:
		parts := make([]string, len(v.list))
		for i, e := range v.list {
			parts[i] = e.String()
		}
		return "(" + strings.Join(parts, ", ") + ")"
	default:
		return "NULL"
	}
}

// FormatScalar renders a scalar as text. Dates use RFC 3339.
func FormatScalar(s any) string {
	switch x := s.(type) {
	case nil:
		return ""
	case string:
		return x
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case time.Duration:
		return strconv.FormatInt(int64(x/time.Second), 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		if x {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprint(x)
	}
}
