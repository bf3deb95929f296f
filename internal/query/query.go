// Package query provides the search query model: parsed keys, a boolean
// filter tree, sorting and paging, and a two-phase execution protocol in
// which the index's processors preprocess the query and postprocess the
// results around the backend search.
package query

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Aman-CERP/searchapi/internal/errors"
	"github.com/Aman-CERP/searchapi/internal/field"
)

// Special field keys usable in sorts and conditions.
const (
	FieldRelevance  = "search_api_relevance"
	FieldID         = "search_api_id"
	FieldDatasource = "search_api_datasource"
)

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// Sort is one sort criterion.
type Sort struct {
	Field     string
	Direction Direction
}

// State is the execution state of a query.
type State int

const (
	StateBuilt State = iota
	StatePreExecuted
	StateExecuted
	StatePostExecuted
)

func (s State) String() string {
	switch s {
	case StatePreExecuted:
		return "pre_executed"
	case StateExecuted:
		return "executed"
	case StatePostExecuted:
		return "post_executed"
	default:
		return "built"
	}
}

// Index is what a query runs against: the index's schema plus its processor
// hooks and backend search.
type Index interface {
	field.Schema
	PreprocessQuery(q *Query)
	Search(ctx context.Context, q *Query) (*ResultSet, error)
	PostprocessResults(results *ResultSet, q *Query)
}

// Options configures key parsing.
type Options struct {
	ParseMode   ParseMode
	Conjunction Conjunction
}

// Query is a search request against one index.
type Query struct {
	index Index
	opts  Options
	id    string

	rawKeys string
	keys    *Keys
	hasKeys bool

	fields  []string
	filter  *Filter
	sorts   []Sort
	offset  int
	limit   int
	options map[string]any
	tags    map[string]struct{}

	state   State
	results *ResultSet
}

// New creates a query against index.
func New(index Index, opts Options) *Query {
	if opts.ParseMode == "" {
		opts.ParseMode = ParseTerms
	}
	if opts.Conjunction == "" {
		opts.Conjunction = And
	}
	return &Query{
		index:   index,
		opts:    opts,
		id:      uuid.NewString(),
		filter:  NewFilter(And),
		limit:   -1,
		options: make(map[string]any),
		tags:    make(map[string]struct{}),
	}
}

// ID returns a unique id for this query, used to correlate logs.
func (q *Query) ID() string { return q.id }

// Index returns the queried index.
func (q *Query) Index() Index { return q.index }

// ParseMode returns the key parse mode.
func (q *Query) ParseMode() ParseMode { return q.opts.ParseMode }

// SetKeys parses raw search keys with the query's parse mode.
func (q *Query) SetKeys(raw string) *Query {
	q.rawKeys = raw
	q.hasKeys = true
	if q.opts.ParseMode == ParseDirect {
		q.keys = nil
		return q
	}
	q.keys = ParseKeys(raw, q.opts.ParseMode, q.opts.Conjunction)
	return q
}

// SetKeysTree replaces the parsed keys. A nil tree clears the keys.
func (q *Query) SetKeysTree(k *Keys) *Query {
	q.keys = k
	q.hasKeys = k != nil
	return q
}

// Keys returns the parsed key tree, nil for direct mode or when no keys are set.
func (q *Query) Keys() *Keys { return q.keys }

// OriginalKeys returns the keys as given to SetKeys.
func (q *Query) OriginalKeys() string { return q.rawKeys }

// DirectKeys returns the raw keys of a direct-mode query.
func (q *Query) DirectKeys() (string, bool) {
	if q.opts.ParseMode != ParseDirect || !q.hasKeys {
		return "", false
	}
	return q.rawKeys, true
}

// HasKeys reports whether the query searches for keys. Without keys the
// query is filter-only.
func (q *Query) HasKeys() bool {
	if !q.hasKeys {
		return false
	}
	if q.keys == nil {
		return q.opts.ParseMode == ParseDirect && q.rawKeys != ""
	}
	return !q.keys.IsEmpty()
}

// SetFields restricts the fulltext fields searched. Each key must be a
// fulltext field of the index.
func (q *Query) SetFields(keys ...string) error {
	for _, k := range keys {
		def, ok := q.index.Field(k)
		if !ok {
			return errors.InvalidField(k, "unknown field")
		}
		if !def.Type.IsFulltext() {
			return errors.InvalidField(k, "not a fulltext field")
		}
	}
	q.fields = append([]string(nil), keys...)
	return nil
}

// Fields returns the fulltext fields searched.
func (q *Query) Fields() []string { return q.fields }

// Filter returns the root filter (AND).
func (q *Query) Filter() *Filter { return q.filter }

// Condition adds a condition to the root filter.
func (q *Query) Condition(fieldKey string, value any, op Operator) *Query {
	q.filter.Condition(fieldKey, value, op)
	return q
}

// AddFilter adds a nested filter to the root filter.
func (q *Query) AddFilter(f *Filter) *Query {
	q.filter.Filter(f)
	return q
}

// Sort adds a sort criterion. It fails for unknown, multi-valued and
// fulltext fields. The special fields search_api_relevance, search_api_id
// and search_api_datasource are always sortable.
func (q *Query) Sort(fieldKey string, dir Direction) error {
	switch dir {
	case "":
		dir = Asc
	case Asc, Desc:
	default:
		return errors.New(errors.ErrCodeInvalidQuery, fmt.Sprintf("invalid sort direction %q", dir), nil)
	}

	switch fieldKey {
	case FieldRelevance, FieldID, FieldDatasource:
	default:
		def, ok := q.index.Field(fieldKey)
		switch {
		case !ok:
			return errors.InvalidField(fieldKey, "unknown field")
		case def.Type.IsList():
			return errors.InvalidField(fieldKey, "cannot sort on a multi-valued field")
		case !def.Type.IsSortable():
			return errors.InvalidField(fieldKey, fmt.Sprintf("cannot sort on a field of type %s", def.Type))
		}
	}

	for i, s := range q.sorts {
		if s.Field == fieldKey {
			q.sorts[i].Direction = dir
			return nil
		}
	}
	q.sorts = append(q.sorts, Sort{Field: fieldKey, Direction: dir})
	return nil
}

// Sorts returns sort criteria in the order they were added.
func (q *Query) Sorts() []Sort { return q.sorts }

// Range sets paging. A negative limit means no limit.
func (q *Query) Range(offset, limit int) *Query {
	if offset < 0 {
		offset = 0
	}
	q.offset = offset
	q.limit = limit
	return q
}

// Offset returns the first result position.
func (q *Query) Offset() int { return q.offset }

// Limit returns the maximum number of results, negative for unlimited.
func (q *Query) Limit() int { return q.limit }

// Option returns an option value.
func (q *Query) Option(key string) (any, bool) {
	v, ok := q.options[key]
	return v, ok
}

// SetOption sets an option and returns the previous value.
func (q *Query) SetOption(key string, v any) any {
	old := q.options[key]
	q.options[key] = v
	return old
}

// AddTag tags the query.
func (q *Query) AddTag(tag string) *Query {
	q.tags[tag] = struct{}{}
	return q
}

// HasTag reports whether the query has tag.
func (q *Query) HasTag(tag string) bool {
	_, ok := q.tags[tag]
	return ok
}

// State returns the execution state.
func (q *Query) State() State { return q.state }

// Results returns the results of an executed query.
func (q *Query) Results() *ResultSet { return q.results }

// PreExecute defaults the searched fields and runs query preprocessing.
// Only the first call has an effect.
func (q *Query) PreExecute() {
	if q.state != StateBuilt {
		return
	}
	if len(q.fields) == 0 {
		q.fields = field.FulltextFields(q.index)
	}
	q.index.PreprocessQuery(q)
	q.state = StatePreExecuted
}

// Execute runs the query. Executing an executed query returns the same results.
func (q *Query) Execute(ctx context.Context) (*ResultSet, error) {
	if q.state >= StateExecuted {
		return q.results, nil
	}
	q.PreExecute()

	results, err := q.index.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	q.state = StateExecuted
	q.PostExecute(results)
	return results, nil
}

// PostExecute runs result postprocessing.
func (q *Query) PostExecute(results *ResultSet) {
	if q.state == StatePostExecuted {
		return
	}
	q.results = results
	q.index.PostprocessResults(results, q)
	q.state = StatePostExecuted
}
