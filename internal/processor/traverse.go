package processor

import (
	"strings"

	"github.com/Aman-CERP/searchapi/internal/field"
	"github.com/Aman-CERP/searchapi/internal/query"
)

// ProcessValue applies fn to every string in v and returns the new type and
// value.
//
// Scalars are processed directly and may turn into tokens. Token values are
// processed individually; token results multiply scores and empty results
// are dropped. List elements are processed recursively; if any element
// changes type, every element is promoted to that type so the list stays
// homogeneous.
func ProcessValue(t field.Type, v field.Value, fn func(string) field.Value) (field.Type, field.Value) {
	switch v.Kind() {
	case field.KindScalar:
		s, ok := v.Scalar().(string)
		if !ok {
			return t, v
		}
		out := fn(s)
		if out.Kind() == field.KindTokens {
			return field.Tokens, out
		}
		return t, out

	case field.KindTokens:
		var out []field.Token
		for _, tok := range v.Tokens() {
			r := fn(tok.Value)
			switch r.Kind() {
			case field.KindTokens:
				for _, sub := range r.Tokens() {
					if sub.Value != "" {
						out = append(out, field.Token{Value: sub.Value, Score: sub.Score * tok.Score})
					}
				}
			case field.KindScalar:
				if s := field.FormatScalar(r.Scalar()); s != "" {
					out = append(out, field.Token{Value: s, Score: tok.Score})
				}
			}
		}
		return field.Tokens, field.TokenList(out)

	case field.KindList:
		elem := t.Elem()
		elems := v.List()
		outTypes := make([]field.Type, len(elems))
		outVals := make([]field.Value, len(elems))
		changed := elem
		for i, e := range elems {
			outTypes[i], outVals[i] = ProcessValue(elem, e, fn)
			if outTypes[i] != elem {
				changed = outTypes[i]
			}
		}
		if changed != elem {
			for i := range outVals {
				if outTypes[i] != changed {
					outVals[i] = promote(outVals[i], changed)
				}
			}
		}
		return field.ListOf(changed), field.List(outVals)
	}
	return t, v
}

// promote converts v to the shape of target; scalars become single tokens
// with score 1.
func promote(v field.Value, target field.Type) field.Value {
	switch {
	case target.IsList():
		if v.Kind() != field.KindList {
			return field.List([]field.Value{promote(v, target.Elem())})
		}
		elems := v.List()
		out := make([]field.Value, len(elems))
		for i, e := range elems {
			out[i] = promote(e, target.Elem())
		}
		return field.List(out)
	case target == field.Tokens:
		switch v.Kind() {
		case field.KindScalar:
			s := field.FormatScalar(v.Scalar())
			if s == "" {
				return field.TokenList(nil)
			}
			return field.TokenList([]field.Token{field.NewToken(s)})
		case field.KindNull:
			return field.TokenList(nil)
		}
	}
	return v
}

// ProcessItems runs the default item traversal of fp over items.
func ProcessItems(fp FieldProcessor, items []*field.Item) {
	sel := fp.Selection()
	for _, it := range items {
		for _, f := range it.Fields {
			if !sel.Selects(f.Definition) {
				continue
			}
			f.Type, f.Value = ProcessValue(f.Type, f.Value, fp.Process)
		}
	}
}

// ProcessQuery runs the default query traversal of fp: key tree leaves
// (when fp processes a fulltext field) and string conditions on selected
// fields.
func ProcessQuery(fp FieldProcessor, q *query.Query) {
	sel := fp.Selection()
	if keys := q.Keys(); keys != nil && sel.SelectsFulltext(q.Index()) {
		ProcessKeys(keys, fp.Process)
	}
	ProcessFilter(q.Filter(), q.Index(), sel, fp.Process)
}

// ProcessKeys rewrites leaves in place. A leaf turning into several tokens
// becomes an AND group; empty leaves and groups are removed.
func ProcessKeys(k *query.Keys, fn func(string) field.Value) {
	out := k.Children[:0]
	for _, child := range k.Children {
		switch x := child.(type) {
		case query.Term:
			r := fn(string(x))
			switch r.Kind() {
			case field.KindTokens:
				var terms []string
				for _, tok := range r.Tokens() {
					if tok.Value != "" {
						terms = append(terms, tok.Value)
					}
				}
				switch len(terms) {
				case 0:
				case 1:
					out = append(out, query.Term(terms[0]))
				default:
					out = append(out, query.NewKeys(query.And, terms...))
				}
			case field.KindScalar:
				if s := field.FormatScalar(r.Scalar()); s != "" {
					out = append(out, query.Term(s))
				}
			}
		case *query.Keys:
			ProcessKeys(x, fn)
			if len(x.Children) > 0 {
				out = append(out, x)
			}
		}
	}
	k.Children = out
}

// ProcessFilter rewrites string conditions on selected fields. Tokens are
// joined with spaces; a condition is removed only if processing emptied a
// non-empty value.
func ProcessFilter(f *query.Filter, schema field.Schema, sel *Selection, fn func(string) field.Value) {
	out := f.Children[:0]
	for _, child := range f.Children {
		switch x := child.(type) {
		case *query.Condition:
			s, ok := x.Value.(string)
			if !ok || !sel.SelectsKey(schema, x.Field) {
				out = append(out, x)
				continue
			}
			processed := joinValue(fn(s))
			if s != "" && processed == "" {
				continue
			}
			x.Value = processed
			out = append(out, x)
		case *query.Filter:
			ProcessFilter(x, schema, sel, fn)
			out = append(out, x)
		}
	}
	f.Children = out
}

func joinValue(v field.Value) string {
	if v.Kind() == field.KindTokens {
		parts := make([]string, 0, len(v.Tokens()))
		for _, t := range v.Tokens() {
			if t.Value != "" {
				parts = append(parts, t.Value)
			}
		}
		return strings.Join(parts, " ")
	}
	return field.FormatScalar(v.Scalar())
}
