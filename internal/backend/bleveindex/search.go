package bleveindex

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search"

	"github.com/Aman-CERP/searchapi/internal/backend"
	"github.com/Aman-CERP/searchapi/internal/errors"
	"github.com/Aman-CERP/searchapi/internal/field"
	"github.com/Aman-CERP/searchapi/internal/item"
	"github.com/Aman-CERP/searchapi/internal/query"
)

const defaultFacetLimit = 10

// Search executes q. Stored original values of every field are preloaded
// into the result items.
func (b *Backend) Search(ctx context.Context, q *query.Query) (*query.ResultSet, error) {
	schema := q.Index()
	idx, err := b.get(schema.IndexID())
	if err != nil {
		return nil, err
	}
	if err := q.Filter().Validate(schema); err != nil {
		return nil, err
	}

	bleveQuery, err := buildQuery(q)
	if err != nil {
		return nil, err
	}

	size := q.Limit()
	if size < 0 {
		count, err := idx.DocCount()
		if err != nil {
			return nil, errors.New(errors.ErrCodeSearchFailed, "failed to count documents", err)
		}
		size = int(count)
	}
	req := bleve.NewSearchRequestOptions(bleveQuery, size, q.Offset(), false)

	defs := schema.Fields()
	req.Fields = make([]string, 0, len(defs))
	for _, def := range defs {
		req.Fields = append(req.Fields, storedPrefix+def.Key)
	}
	if order := sortOrder(q); len(order) > 0 {
		req.SortBy(order)
	}

	rs := query.NewResultSet(q)
	facets := backend.Facets(q)
	for _, f := range facets {
		def, ok := schema.Field(f.Field)
		if !ok {
			rs.AddWarning(fmt.Sprintf("Unknown facet field %q.", f.Field))
			continue
		}
		if def.Type.IsNumeric() || def.Type.Base() == field.Date {
			rs.AddWarning(fmt.Sprintf("Facets on field %q are not supported.", f.Field))
			continue
		}
		limit := f.Limit
		if limit <= 0 {
			limit = defaultFacetLimit
		}
		req.AddFacet(f.Field, bleve.NewFacetRequest(f.Field, limit))
	}

	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, errors.New(errors.ErrCodeSearchFailed, "search failed", err)
	}

	rs.SetResultCount(int(res.Total))
	for _, hit := range res.Hits {
		id, err := item.Parse(hit.ID)
		if err != nil {
			b.logger.Warn("bleve_bad_document_id", slog.String("id", hit.ID))
			continue
		}
		ri := &query.ResultItem{ID: id, Score: hit.Score, Fields: make(map[string]field.Value)}
		for _, def := range defs {
			if raw, ok := hit.Fields[storedPrefix+def.Key]; ok {
				ri.Fields[def.Key] = decodeStored(def.Type, raw)
			}
		}
		rs.AddItem(ri)
	}

	if len(facets) > 0 {
		out, err := facetValues(res.Facets, facets)
		if err != nil {
			rs.AddWarning("Facet results could not be read.")
			b.logger.Warn("bleve_facets_unreadable", slog.String("error", err.Error()))
		} else {
			rs.SetExtra(backend.FacetsOption, out)
		}
	}

	b.logger.Debug("bleve_search",
		slog.String("index", schema.IndexID()),
		slog.String("query", q.ID()),
		slog.Int("hits", len(res.Hits)),
		slog.Uint64("total", res.Total))
	return rs, nil
}

func sortOrder(q *query.Query) []string {
	var order []string
	for _, s := range q.Sorts() {
		name := s.Field
		switch s.Field {
		case query.FieldRelevance:
			name = "_score"
		case query.FieldID:
			name = "_id"
		case query.FieldDatasource:
			name = fieldDatasource
		}
		if s.Direction == query.Desc {
			name = "-" + name
		}
		order = append(order, name)
	}
	return order
}

type facetJSON struct {
	Missing int `json:"missing"`
	Terms   []struct {
		Term  string `json:"term"`
		Count int    `json:"count"`
	} `json:"terms"`
}

// facetValues reads term facets through their JSON form, which is stable
// across Bleve releases.
func facetValues(results search.FacetResults, requested []backend.Facet) (map[string][]backend.FacetValue, error) {
	data, err := json.Marshal(results)
	if err != nil {
		return nil, err
	}
	var parsed map[string]facetJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, err
	}

	out := make(map[string][]backend.FacetValue)
	for _, f := range requested {
		r, ok := parsed[f.Field]
		if !ok {
			continue
		}
		values := make([]backend.FacetValue, 0, len(r.Terms)+1)
		for _, t := range r.Terms {
			if t.Count < f.MinCount {
				continue
			}
			values = append(values, backend.FacetValue{Value: t.Term, Count: t.Count})
		}
		if f.Missing && r.Missing > 0 {
			values = append(values, backend.FacetValue{Count: r.Missing})
		}
		out[f.Field] = values
	}
	return out, nil
}
