package bleveindex

import (
	"fmt"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	bq "github.com/blevesearch/bleve/v2/search/query"

	"github.com/Aman-CERP/searchapi/internal/errors"
	"github.com/Aman-CERP/searchapi/internal/field"
	"github.com/Aman-CERP/searchapi/internal/query"
)

// buildQuery translates the keys and filter of q into one Bleve query.
func buildQuery(q *query.Query) (bq.Query, error) {
	schema := q.Index()
	var parts []bq.Query

	if kq := keysQuery(q, schema); kq != nil {
		parts = append(parts, kq)
	}
	fq, err := filterQuery(q.Filter(), schema)
	if err != nil {
		return nil, err
	}
	if fq != nil {
		parts = append(parts, fq)
	}

	switch len(parts) {
	case 0:
		return bleve.NewMatchAllQuery(), nil
	case 1:
		return parts[0], nil
	}
	return bleve.NewConjunctionQuery(parts...), nil
}

func keysQuery(q *query.Query, schema field.Schema) bq.Query {
	if raw, ok := q.DirectKeys(); ok {
		if strings.TrimSpace(raw) == "" {
			return nil
		}
		return bleve.NewQueryStringQuery(raw)
	}

	keys := q.Keys()
	if keys == nil || keys.IsEmpty() {
		return nil
	}

	var defs []field.Definition
	for _, key := range q.Fields() {
		if def, ok := schema.Field(key); ok && def.Type.IsFulltext() {
			defs = append(defs, def)
		}
	}
	if len(defs) == 0 {
		return bleve.NewMatchNoneQuery()
	}
	return keysNode(keys, defs)
}

func keysNode(k *query.Keys, defs []field.Definition) bq.Query {
	var parts []bq.Query
	for _, child := range k.Children {
		switch c := child.(type) {
		case query.Term:
			if strings.TrimSpace(string(c)) != "" {
				parts = append(parts, termQuery(string(c), defs))
			}
		case *query.Keys:
			if sub := keysNode(c, defs); sub != nil {
				parts = append(parts, sub)
			}
		}
	}
	if len(parts) == 0 {
		return nil
	}

	var group bq.Query
	switch {
	case len(parts) == 1:
		group = parts[0]
	case k.Conjunction == query.Or:
		group = bleve.NewDisjunctionQuery(parts...)
	default:
		group = bleve.NewConjunctionQuery(parts...)
	}
	if k.Negation {
		return not(group)
	}
	return group
}

// termQuery matches one term in any of the searched fields, each weighted
// by its boost. Terms containing spaces are phrases.
func termQuery(term string, defs []field.Definition) bq.Query {
	phrase := strings.ContainsAny(term, " \t")
	perField := make([]bq.Query, 0, len(defs))
	for _, def := range defs {
		boost := def.Boost
		if boost <= 0 {
			boost = 1
		}
		if phrase {
			mq := bleve.NewMatchPhraseQuery(term)
			mq.SetField(def.Key)
			mq.SetBoost(boost)
			perField = append(perField, mq)
			continue
		}
		mq := bleve.NewMatchQuery(term)
		mq.SetField(def.Key)
		mq.SetBoost(boost)
		perField = append(perField, mq)
	}
	if len(perField) == 1 {
		return perField[0]
	}
	return bleve.NewDisjunctionQuery(perField...)
}

func filterQuery(f *query.Filter, schema field.Schema) (bq.Query, error) {
	if f == nil || f.IsEmpty() {
		return nil, nil
	}

	var parts []bq.Query
	for _, child := range f.Children {
		switch n := child.(type) {
		case *query.Condition:
			cq, err := conditionQuery(n, schema)
			if err != nil {
				return nil, err
			}
			parts = append(parts, cq)
		case *query.Filter:
			sub, err := filterQuery(n, schema)
			if err != nil {
				return nil, err
			}
			if sub != nil {
				parts = append(parts, sub)
			}
		}
	}

	switch {
	case len(parts) == 0:
		return nil, nil
	case len(parts) == 1:
		return parts[0], nil
	case f.Conjunction == query.Or:
		return bleve.NewDisjunctionQuery(parts...), nil
	}
	return bleve.NewConjunctionQuery(parts...), nil
}

func conditionQuery(c *query.Condition, schema field.Schema) (bq.Query, error) {
	op := c.Operator
	if op == "" {
		op = query.Equal
	}

	switch c.Field {
	case query.FieldID:
		return negateIf(bleve.NewDocIDQuery(valueStrings(c.Value)), op == query.NotEqual), nil
	case query.FieldDatasource:
		tq := bleve.NewTermQuery(fmt.Sprint(c.Value))
		tq.SetField(fieldDatasource)
		return compareTerm(tq, fieldDatasource, fmt.Sprint(c.Value), op), nil
	}

	def, ok := schema.Field(c.Field)
	if !ok {
		return nil, errors.InvalidField(c.Field, "unknown field")
	}
	if err := query.ValidateOperator(def, c.Value, op); err != nil {
		return nil, err
	}

	if c.Value == nil {
		tq := bleve.NewTermQuery(def.Key)
		tq.SetField(fieldPresent)
		return negateIf(tq, op == query.Equal), nil
	}

	if def.Type.IsFulltext() {
		mq := bleve.NewMatchQuery(field.FormatScalar(c.Value))
		mq.SetField(def.Key)
		mq.SetOperator(bq.MatchQueryOperatorAnd)
		return negateIf(mq, op == query.NotEqual), nil
	}

	v, err := field.Coerce(c.Value, def.Type.Base())
	if err != nil || v.IsNull() {
		return nil, errors.InvalidField(def.Key, fmt.Sprintf("cannot compare with %v", c.Value))
	}

	switch s := v.Scalar().(type) {
	case int64:
		return numericCondition(def.Key, float64(s), op), nil
	case float64:
		return numericCondition(def.Key, s, op), nil
	case time.Duration:
		return numericCondition(def.Key, s.Seconds(), op), nil
	case time.Time:
		return dateCondition(def.Key, s, op), nil
	case bool:
		bfq := bleve.NewBoolFieldQuery(s)
		bfq.SetField(def.Key)
		return negateIf(bfq, op == query.NotEqual), nil
	case string:
		tq := bleve.NewTermQuery(s)
		tq.SetField(def.Key)
		return compareTerm(tq, def.Key, s, op), nil
	}
	return nil, errors.InvalidField(def.Key, fmt.Sprintf("unsupported value %v", c.Value))
}

func valueStrings(v any) []string {
	switch x := v.(type) {
	case []string:
		return x
	case []any:
		out := make([]string, len(x))
		for i, e := range x {
			out[i] = fmt.Sprint(e)
		}
		return out
	}
	return []string{fmt.Sprint(v)}
}

func bounds(op query.Operator) (lower, upper bool, lowerInc, upperInc bool) {
	switch op {
	case query.Less:
		return false, true, false, false
	case query.LessOrEqual:
		return false, true, false, true
	case query.Greater:
		return true, false, false, false
	case query.GreaterOrEqual:
		return true, false, true, false
	}
	return true, true, true, true
}

func compareTerm(eq *bq.TermQuery, key, value string, op query.Operator) bq.Query {
	switch op {
	case query.Equal:
		return eq
	case query.NotEqual:
		return not(eq)
	}
	lower, upper, lowerInc, upperInc := bounds(op)
	var lo, hi string
	if lower {
		lo = value
	}
	if upper {
		hi = value
	}
	rq := bleve.NewTermRangeInclusiveQuery(lo, hi, &lowerInc, &upperInc)
	rq.SetField(key)
	return rq
}

func numericCondition(key string, n float64, op query.Operator) bq.Query {
	lower, upper, lowerInc, upperInc := bounds(op)
	var lo, hi *float64
	if lower {
		lo = &n
	}
	if upper {
		hi = &n
	}
	rq := bleve.NewNumericRangeInclusiveQuery(lo, hi, &lowerInc, &upperInc)
	rq.SetField(key)
	return negateIf(rq, op == query.NotEqual)
}

func dateCondition(key string, t time.Time, op query.Operator) bq.Query {
	lower, upper, lowerInc, upperInc := bounds(op)
	var start, end time.Time
	if lower {
		start = t
	}
	if upper {
		end = t
	}
	rq := bleve.NewDateRangeInclusiveQuery(start, end, &lowerInc, &upperInc)
	rq.SetField(key)
	return negateIf(rq, op == query.NotEqual)
}

func negateIf(q bq.Query, negate bool) bq.Query {
	if negate {
		return not(q)
	}
	return q
}

// not matches every document q does not match.
func not(q bq.Query) bq.Query {
	b := bleve.NewBooleanQuery()
	b.AddMust(bleve.NewMatchAllQuery())
	b.AddMustNot(q)
	return b
}
