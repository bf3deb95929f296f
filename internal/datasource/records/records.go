// Package records provides a datasource reading a list of records from a
// YAML, JSON or TOML file.
package records

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/searchapi/internal/datasource"
	"github.com/Aman-CERP/searchapi/internal/errors"
	"github.com/Aman-CERP/searchapi/internal/mapping"
)

// Type is the registry id of this datasource.
const Type = "records"

// Option keys.
const (
	OptionPath   = "path"
	OptionFormat = "format"
	OptionIDKey  = "id_key"
	// OptionListKey names the top-level key holding the records when the
	// file is a table rather than a list. TOML files always are.
	OptionListKey = "list_key"
)

const (
	defaultIDKey   = "id"
	defaultListKey = "records"
)

// Register adds the records datasource to reg.
func Register(reg *datasource.Registry) {
	reg.Register(Type, func(cfg datasource.Config) (datasource.Datasource, error) {
		return New(cfg)
	})
}

// Datasource serves the records of one file. The file is re-read when its
// modification time changes.
type Datasource struct {
	id       string
	path     string
	format   string
	idKey    string
	listKey  string
	declared []mapping.Property
	logger   *slog.Logger

	mu      sync.Mutex
	modTime time.Time
	size    int64
	order   []string
	records map[string]map[string]any
}

// New creates a records datasource.
func New(cfg datasource.Config) (*Datasource, error) {
	path := cfg.Options.String(OptionPath, "")
	if path == "" {
		return nil, errors.ConfigError(fmt.Sprintf("datasource %q: option %q is required", cfg.ID, OptionPath), nil)
	}
	if !filepath.IsAbs(path) && cfg.BaseDir != "" {
		path = filepath.Join(cfg.BaseDir, path)
	}

	format := strings.ToLower(cfg.Options.String(OptionFormat, ""))
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}
	switch format {
	case "yml":
		format = "yaml"
	case "yaml", "json", "toml":
	default:
		return nil, errors.ConfigError(fmt.Sprintf("datasource %q: unsupported records format %q", cfg.ID, format), nil)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Datasource{
		id:       cfg.ID,
		path:     path,
		format:   format,
		idKey:    cfg.Options.String(OptionIDKey, defaultIDKey),
		listKey:  cfg.Options.String(OptionListKey, defaultListKey),
		declared: cfg.Properties,
		logger:   logger,
	}, nil
}

// ID returns the datasource id.
func (d *Datasource) ID() string { return d.id }

// Type returns "records".
func (d *Datasource) Type() string { return Type }

// Path returns the records file.
func (d *Datasource) Path() string { return d.path }

// Properties returns the declared property tree. Without declarations the
// tree is inferred from the records.
func (d *Datasource) Properties() []mapping.Property {
	if len(d.declared) > 0 {
		return d.declared
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.refresh(); err != nil {
		d.logger.Warn("records_properties_unavailable",
			slog.String("datasource", d.id),
			slog.String("error", err.Error()))
		return nil
	}
	recs := make([]map[string]any, 0, len(d.order))
	for _, id := range d.order {
		recs = append(recs, d.records[id])
	}
	return Infer(recs)
}

// ItemIDs returns the record ids in file order.
func (d *Datasource) ItemIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.refresh(); err != nil {
		return nil, err
	}
	return append([]string(nil), d.order...), nil
}

// LoadMultiple returns the records with the given ids.
func (d *Datasource) LoadMultiple(ctx context.Context, ids []string) (map[string]map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.refresh(); err != nil {
		return nil, err
	}
	out := make(map[string]map[string]any, len(ids))
	for _, id := range ids {
		if rec, ok := d.records[id]; ok {
			out[id] = rec
		}
	}
	return out, nil
}

// refresh re-reads the file when it changed. Callers hold d.mu.
func (d *Datasource) refresh() error {
	info, err := os.Stat(d.path)
	if err != nil {
		return errors.New(errors.ErrCodeDatasource, fmt.Sprintf("datasource %q: cannot read %s", d.id, d.path), err)
	}
	if d.records != nil && info.ModTime().Equal(d.modTime) && info.Size() == d.size {
		return nil
	}

	data, err := os.ReadFile(d.path)
	if err != nil {
		return errors.New(errors.ErrCodeDatasource, fmt.Sprintf("datasource %q: cannot read %s", d.id, d.path), err)
	}
	list, err := d.decode(data)
	if err != nil {
		return errors.New(errors.ErrCodeDatasource, fmt.Sprintf("datasource %q: invalid %s in %s", d.id, d.format, d.path), err)
	}

	records := make(map[string]map[string]any, len(list))
	order := make([]string, 0, len(list))
	for i, rec := range list {
		raw, ok := rec[d.idKey]
		id := ""
		if ok && raw != nil {
			id = strings.TrimSpace(fmt.Sprint(raw))
		}
		if id == "" {
			d.logger.Warn("records_missing_id",
				slog.String("datasource", d.id),
				slog.Int("position", i),
				slog.String("id_key", d.idKey))
			continue
		}
		if _, dup := records[id]; dup {
			d.logger.Warn("records_duplicate_id",
				slog.String("datasource", d.id),
				slog.String("id", id))
			continue
		}
		records[id] = rec
		order = append(order, id)
	}

	d.records = records
	d.order = order
	d.modTime = info.ModTime()
	d.size = info.Size()
	d.logger.Debug("records_loaded",
		slog.String("datasource", d.id),
		slog.String("path", d.path),
		slog.Int("records", len(order)))
	return nil
}

func (d *Datasource) decode(data []byte) ([]map[string]any, error) {
	var doc any
	switch d.format {
	case "toml":
		var table map[string]any
		if err := toml.Unmarshal(data, &table); err != nil {
			return nil, err
		}
		doc = table
	default:
		// JSON is read through the YAML decoder.
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	}

	if table, ok := doc.(map[string]any); ok {
		doc = table[d.listKey]
	}
	if doc == nil {
		return nil, nil
	}
	items, ok := doc.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a list of records or a %q list", d.listKey)
	}
	out := make([]map[string]any, 0, len(items))
	for i, it := range items {
		rec, ok := it.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("record %d is not a map", i)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Infer derives a property tree from sample records. A key's type is that
// of its first non-null value; maps become complex properties.
func Infer(records []map[string]any) []mapping.Property {
	seen := make(map[string]int)
	var props []mapping.Property
	for _, rec := range records {
		keys := make([]string, 0, len(rec))
		for k := range rec {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			p, ok := inferProperty(k, rec[k])
			if !ok {
				continue
			}
			if i, exists := seen[k]; exists {
				props[i] = mergeProperty(props[i], p)
				continue
			}
			seen[k] = len(props)
			props = append(props, p)
		}
	}
	return props
}

func inferProperty(key string, v any) (mapping.Property, bool) {
	p := mapping.Property{Key: key}
	if list, ok := v.([]any); ok {
		p.List = true
		v = nil
		for _, e := range list {
			if e != nil {
				v = e
				break
			}
		}
	}
	switch x := v.(type) {
	case nil:
		return p, false
	case map[string]any:
		p.Type = "object"
		p.Children = Infer([]map[string]any{x})
		if len(p.Children) > 0 {
			p.Main = p.Children[0].Key
		}
	default:
		p.Type = scalarType(x)
	}
	return p, true
}

func mergeProperty(a, b mapping.Property) mapping.Property {
	if a.IsComplex() && b.IsComplex() {
		a.Children = Infer([]map[string]any{propertyShape(a), propertyShape(b)})
	}
	a.List = a.List || b.List
	return a
}

// propertyShape rebuilds a sample record from a complex property so two
// inferred shapes can be merged.
func propertyShape(p mapping.Property) map[string]any {
	out := make(map[string]any, len(p.Children))
	for _, c := range p.Children {
		var v any
		switch {
		case c.IsComplex():
			v = propertyShape(c)
		case c.Type == "integer":
			v = 0
		case c.Type == "decimal":
			v = 0.0
		case c.Type == "boolean":
			v = false
		case c.Type == "date":
			v = time.Time{}
		default:
			v = ""
		}
		if c.List {
			v = []any{v}
		}
		out[c.Key] = v
	}
	return out
}

func scalarType(v any) string {
	switch v.(type) {
	case bool:
		return "boolean"
	case int, int64, uint64, int32:
		return "integer"
	case float64, float32:
		return "decimal"
	case time.Time:
		return "date"
	}
	return "string"
}
