package query

import (
	"encoding/json"

	"github.com/Aman-CERP/searchapi/internal/field"
	"github.com/Aman-CERP/searchapi/internal/item"
)

// ResultItem is one search hit.
type ResultItem struct {
	ID      item.ID
	Score   float64
	Fields  map[string]field.Value // preloaded field values, may be nil
	Excerpt string
}

// Datasource returns the datasource the hit came from.
func (r *ResultItem) Datasource() string { return r.ID.Datasource() }

// ResultSet holds the results of one executed query.
type ResultSet struct {
	query   *Query
	count   int
	order   []string
	items   map[string]*ResultItem
	warning []string
	ignored []string
	extra   map[string]any
}

// NewResultSet creates an empty result set for q.
func NewResultSet(q *Query) *ResultSet {
	return &ResultSet{query: q, items: make(map[string]*ResultItem), extra: make(map[string]any)}
}

// Query returns the query that produced the results.
func (r *ResultSet) Query() *Query { return r.query }

// ResultCount returns the total number of matches, which may be approximate
// and larger than len(Items()).
func (r *ResultSet) ResultCount() int { return r.count }

// SetResultCount sets the total number of matches.
func (r *ResultSet) SetResultCount(n int) {
	if n < 0 {
		n = 0
	}
	r.count = n
}

// AddItem appends a hit. Adding an existing id replaces it in place.
func (r *ResultSet) AddItem(it *ResultItem) {
	key := it.ID.String()
	if _, ok := r.items[key]; !ok {
		r.order = append(r.order, key)
	}
	r.items[key] = it
}

// Item returns the hit for id.
func (r *ResultSet) Item(id item.ID) (*ResultItem, bool) {
	it, ok := r.items[id.String()]
	return it, ok
}

// RemoveItem drops the hit for id.
func (r *ResultSet) RemoveItem(id item.ID) {
	key := id.String()
	if _, ok := r.items[key]; !ok {
		return
	}
	delete(r.items, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Items returns the hits in result order.
func (r *ResultSet) Items() []*ResultItem {
	out := make([]*ResultItem, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.items[k])
	}
	return out
}

// Len returns the number of hits held.
func (r *ResultSet) Len() int { return len(r.order) }

// AddWarning appends a warning unless already present.
func (r *ResultSet) AddWarning(msg string) {
	r.warning = appendUnique(r.warning, msg)
}

// Warnings returns warnings in insertion order.
func (r *ResultSet) Warnings() []string { return r.warning }

// AddIgnoredKeys records search keys that were dropped during processing.
func (r *ResultSet) AddIgnoredKeys(keys ...string) {
	for _, k := range keys {
		r.ignored = appendUnique(r.ignored, k)
	}
}

// IgnoredKeys returns ignored keys in insertion order.
func (r *ResultSet) IgnoredKeys() []string { return r.ignored }

// SetExtra stores backend or processor specific data.
func (r *ResultSet) SetExtra(key string, v any) { r.extra[key] = v }

// Extra returns extra data by key.
func (r *ResultSet) Extra(key string) (any, bool) {
	v, ok := r.extra[key]
	return v, ok
}

// ExtraData returns the extra data map.
func (r *ResultSet) ExtraData() map[string]any { return r.extra }

func appendUnique(list []string, s string) []string {
	for _, x := range list {
		if x == s {
			return list
		}
	}
	return append(list, s)
}

type jsonResultItem struct {
	ID         string         `json:"id"`
	Datasource string         `json:"datasource"`
	Score      float64        `json:"score"`
	Fields     map[string]any `json:"fields,omitempty"`
	Excerpt    string         `json:"excerpt,omitempty"`
}

type jsonResultSet struct {
	ResultCount int              `json:"result_count"`
	Items       []jsonResultItem `json:"items"`
	Warnings    []string         `json:"warnings,omitempty"`
	IgnoredKeys []string         `json:"ignored_keys,omitempty"`
	Extra       map[string]any   `json:"extra_data,omitempty"`
}

// MarshalJSON encodes the result set for machine-readable CLI output.
func (r *ResultSet) MarshalJSON() ([]byte, error) {
	out := jsonResultSet{
		ResultCount: r.count,
		Items:       make([]jsonResultItem, 0, len(r.order)),
		Warnings:    r.warning,
		IgnoredKeys: r.ignored,
	}
	if len(r.extra) > 0 {
		out.Extra = r.extra
	}
	for _, it := range r.Items() {
		ji := jsonResultItem{ID: it.ID.String(), Datasource: it.Datasource(), Score: it.Score, Excerpt: it.Excerpt}
		if len(it.Fields) > 0 {
			ji.Fields = make(map[string]any, len(it.Fields))
			for k, v := range it.Fields {
				ji.Fields[k] = v.Texts()
			}
		}
		out.Items = append(out.Items, ji)
	}
	return json.Marshal(out)
}
