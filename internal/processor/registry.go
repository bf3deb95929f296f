package processor

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Aman-CERP/searchapi/internal/errors"
	"github.com/Aman-CERP/searchapi/internal/field"
)

// Factory creates a processor for an index from its configuration.
type Factory func(schema field.Schema, cfg Config) (Processor, error)

// Registry maps processor ids to their factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory. Registering an id twice replaces the factory.
func (r *Registry) Register(id string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[id] = f
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[id]
	return ok
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

// Create builds a processor. Unknown ids, failed construction and
// inapplicable processors yield plugin resolution errors.
func (r *Registry) Create(id string, schema field.Schema, cfg Config) (Processor, error) {
	r.mu.RLock()
	f, ok := r.factories[id]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.PluginError(errors.ErrCodePluginUnknown, id, nil)
	}

	p, err := f(schema, cfg)
	if err != nil {
		return nil, errors.PluginError(errors.ErrCodePluginInvalid, id, err)
	}
	if p == nil {
		return nil, errors.PluginError(errors.ErrCodePluginInvalid, id, fmt.Errorf("factory returned no processor"))
	}
	if a, ok := p.(Applicable); ok && !a.SupportsIndex(schema) {
		return nil, errors.PluginError(errors.ErrCodePluginNotApplicable, id, nil)
	}
	return p, nil
}
