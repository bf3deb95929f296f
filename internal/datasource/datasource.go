// Package datasource defines the contract of the components that enumerate
// and load indexable items, plus a registry of datasource types.
package datasource

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/Aman-CERP/searchapi/internal/config"
	"github.com/Aman-CERP/searchapi/internal/errors"
	"github.com/Aman-CERP/searchapi/internal/mapping"
)

// Datasource enumerates and loads the items of one kind.
type Datasource interface {
	// ID is the datasource id used in item ids.
	ID() string

	// Type is the registry id the datasource was created from.
	Type() string

	// Properties describes the loaded items.
	Properties() []mapping.Property

	// ItemIDs returns the raw ids of every item.
	ItemIDs(ctx context.Context) ([]string, error)

	// LoadMultiple loads items by raw id. Ids that no longer exist are
	// missing from the result.
	LoadMultiple(ctx context.Context, ids []string) (map[string]map[string]any, error)
}

// Rooted is implemented by datasources backed by a directory.
type Rooted interface {
	Root() string
	// RawID maps an absolute path under Root to a raw id. It reports false
	// for paths the datasource does not cover.
	RawID(path string) (string, bool)
}

// Options holds datasource settings.
type Options map[string]any

// String returns a string option.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok && v != nil {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
	return def
}

// Bool returns a boolean option.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key].(bool); ok {
		return v
	}
	return def
}

// Int returns an integer option.
func (o Options) Int(key string, def int) int {
	switch v := o[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// Strings returns a list option. A single string is split on commas.
func (o Options) Strings(key string) []string {
	switch v := o[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			out = append(out, fmt.Sprint(e))
		}
		return out
	case string:
		var out []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Config is the configuration for creating a datasource.
type Config struct {
	ID      string
	Options Options
	// Properties are property definitions declared in configuration.
	Properties []mapping.Property
	// BaseDir resolves relative paths in options.
	BaseDir string
	Logger  *slog.Logger
}

// Factory creates a datasource.
type Factory func(cfg Config) (Datasource, error)

// Registry maps datasource types to their factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory.
func (r *Registry) Register(typ string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[typ] = f
}

// Types returns the registered types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Create builds a datasource of type typ.
func (r *Registry) Create(typ string, cfg Config) (Datasource, error) {
	r.mu.RLock()
	f, ok := r.factories[typ]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.PluginError(errors.ErrCodePluginUnknown, typ, nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	ds, err := f(cfg)
	if err != nil {
		return nil, errors.PluginError(errors.ErrCodePluginInvalid, typ, err)
	}
	if ds == nil {
		return nil, errors.PluginError(errors.ErrCodePluginInvalid, typ, fmt.Errorf("factory returned no datasource"))
	}
	return ds, nil
}

// ConfigFrom builds the creation config of a configured datasource.
func ConfigFrom(dc config.DatasourceConfig, baseDir string, logger *slog.Logger) Config {
	return Config{
		ID:         dc.ID,
		Options:    Options(dc.Options),
		Properties: Properties(dc.Properties),
		BaseDir:    baseDir,
		Logger:     logger,
	}
}

// Properties converts configured property declarations.
func Properties(pcs []config.PropertyConfig) []mapping.Property {
	if len(pcs) == 0 {
		return nil
	}
	out := make([]mapping.Property, len(pcs))
	for i, pc := range pcs {
		out[i] = mapping.Property{
			Key:         pc.Key,
			Label:       pc.Label,
			Type:        pc.Type,
			List:        pc.List,
			Main:        pc.Main,
			Description: pc.Description,
			Children:    Properties(pc.Children),
		}
	}
	return out
}
