// Package backend defines the contract between indexes and the servers that
// store their items and execute their queries.
package backend

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/Aman-CERP/searchapi/internal/errors"
	"github.com/Aman-CERP/searchapi/internal/field"
	"github.com/Aman-CERP/searchapi/internal/item"
	"github.com/Aman-CERP/searchapi/internal/query"
)

// Feature is an optional backend capability.
type Feature string

const (
	// FeatureFacets means the backend honors the FacetsOption query option.
	FeatureFacets Feature = "facets"
	// FeatureDatasourceDelete means DeleteAllItems can target one datasource.
	FeatureDatasourceDelete Feature = "datasource_delete"
)

// FacetsOption is the query option holding a []Facet request.
const FacetsOption = "search_api_facets"

// Facet requests value counts for one field.
type Facet struct {
	Field string `json:"field"`
	Limit int    `json:"limit"`
	// MinCount drops values with fewer matches.
	MinCount int `json:"min_count,omitempty"`
	// Missing adds a count of matches without a value.
	Missing bool `json:"missing,omitempty"`
}

// FacetValue is one value of a facet result. The missing count has an
// empty Value.
type FacetValue struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Backend stores indexed items and executes searches for the indexes of
// one server.
type Backend interface {
	// AddIndex prepares storage for an index. Existing storage is reused.
	AddIndex(ctx context.Context, idx field.Schema) error

	// UpdateIndex applies a changed field configuration. It reports whether
	// the stored data was discarded and the index needs a full reindex.
	UpdateIndex(ctx context.Context, idx field.Schema) (bool, error)

	// RemoveIndex drops an index and all of its data.
	RemoveIndex(ctx context.Context, indexID string) error

	// IndexItems stores items and returns the ids that were stored.
	IndexItems(ctx context.Context, idx field.Schema, items []*field.Item) ([]item.ID, error)

	DeleteItems(ctx context.Context, idx field.Schema, ids []item.ID) error

	// DeleteAllItems deletes every item, or only those of datasource when it
	// is not empty.
	DeleteAllItems(ctx context.Context, idx field.Schema, datasource string) error

	Search(ctx context.Context, q *query.Query) (*query.ResultSet, error)

	SupportsDataType(t field.Type) bool
	SupportsFeature(f Feature) bool

	Close() error
}

// Config is the configuration for creating a backend.
type Config struct {
	ServerID string
	// Path is the storage directory. Empty means in-memory.
	Path    string
	Options map[string]any
	Logger  *slog.Logger
}

// Factory creates a backend.
type Factory func(cfg Config) (Backend, error)

// Registry maps backend ids to their factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory.
func (r *Registry) Register(id string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[id] = f
}

// IDs returns the registered ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Create builds a backend. Unknown ids and failed construction yield
// plugin resolution errors.
func (r *Registry) Create(id string, cfg Config) (Backend, error) {
	r.mu.RLock()
	f, ok := r.factories[id]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.PluginError(errors.ErrCodePluginUnknown, id, nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	b, err := f(cfg)
	if err != nil {
		return nil, errors.PluginError(errors.ErrCodePluginInvalid, id, err)
	}
	if b == nil {
		return nil, errors.PluginError(errors.ErrCodePluginInvalid, id, fmt.Errorf("factory returned no backend"))
	}
	return b, nil
}

// Facets returns the facet request of q, if any.
func Facets(q *query.Query) []Facet {
	v, ok := q.Option(FacetsOption)
	if !ok {
		return nil
	}
	facets, _ := v.([]Facet)
	return facets
}
