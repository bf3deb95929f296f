package mapping

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/Aman-CERP/searchapi/internal/field"
)

// Source is a datasource as seen by the mapper.
type Source interface {
	ID() string
	Properties() []Property
}

// Entry is one field a datasource can provide.
type Entry struct {
	Datasource  string
	Property    string // path used for extraction
	Key         string // suggested field key
	Label       string
	Type        field.Type
	NativeType  string
	Description string
}

// Mapping lists the fields an index can be configured with.
type Mapping struct {
	IndexID  string
	Entries  []Entry
	Unmapped map[string][]string // native type -> property paths
	// Expandable lists complex properties that are not expanded and have no
	// main property; adding them to additional fields makes their children available.
	Expandable []string
	Warnings   []string
}

// Sorted returns entries ordered by label, then datasource.
func (m *Mapping) Sorted() []Entry {
	out := append([]Entry(nil), m.Entries...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Label != out[j].Label {
			return out[i].Label < out[j].Label
		}
		return out[i].Datasource < out[j].Datasource
	})
	return out
}

// Lookup finds the entry for a datasource property path.
func (m *Mapping) Lookup(datasource, path string) (Entry, bool) {
	for _, e := range m.Entries {
		if e.Datasource == datasource && e.Property == path {
			return e, true
		}
	}
	return Entry{}, false
}

// Check reports field definitions that the mapping cannot serve.
func (m *Mapping) Check(defs []field.Definition) []string {
	var problems []string
	for _, d := range defs {
		if d.Datasource == "" {
			if _, ok := pseudoProperties[d.Property]; !ok {
				problems = append(problems, fmt.Sprintf("field %q: unknown datasource-independent property %q", d.Key, d.Property))
			}
			continue
		}
		if _, ok := m.Lookup(d.Datasource, d.Property); !ok {
			problems = append(problems, fmt.Sprintf("field %q: datasource %q has no property %q", d.Key, d.Datasource, d.Property))
		}
	}
	return problems
}

// Mapper builds mappings and extracts fields.
type Mapper struct {
	cache  *Cache
	logger *slog.Logger
}

// NewMapper creates a mapper. A nil cache disables caching.
func NewMapper(cache *Cache, logger *slog.Logger) *Mapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mapper{cache: cache, logger: logger}
}

// Cache returns the mapper's cache handle.
func (m *Mapper) Cache() *Cache { return m.cache }

// Map returns the mapping for an index over the given sources. additional
// lists complex property paths to expand, either "path" (any datasource) or
// "datasource/path".
func (m *Mapper) Map(indexID string, additional []string, sources ...Source) *Mapping {
	if m.cache != nil {
		if cached, ok := m.cache.get(indexID); ok {
			return cached
		}
	}

	mapping := &Mapping{IndexID: indexID, Unmapped: make(map[string][]string)}
	for _, src := range sources {
		w := walker{
			mapping:    mapping,
			datasource: src.ID(),
			expand:     expandSet(src.ID(), additional),
		}
		w.walk(src.Properties(), "", "", false)
	}

	for native, paths := range mapping.Unmapped {
		msg := fmt.Sprintf("properties of unsupported type %q are not indexable: %s", native, strings.Join(paths, ", "))
		mapping.Warnings = append(mapping.Warnings, msg)
		m.logger.Warn("unmapped_property_type",
			slog.String("index", indexID),
			slog.String("type", native),
			slog.Any("properties", paths))
	}
	sort.Strings(mapping.Warnings)

	if m.cache != nil {
		m.cache.add(indexID, mapping)
	}
	return mapping
}

func expandSet(datasource string, additional []string) map[string]bool {
	set := make(map[string]bool, len(additional))
	for _, a := range additional {
		if ds, path, ok := strings.Cut(a, "/"); ok {
			if ds == datasource {
				set[path] = true
			}
			continue
		}
		set[a] = true
	}
	return set
}

type walker struct {
	mapping    *Mapping
	datasource string
	expand     map[string]bool
}

func (w *walker) walk(props []Property, prefix, labelPrefix string, inList bool) {
	for _, p := range props {
		key := p.Key
		label := p.label()
		if prefix != "" {
			key = prefix + PathSeparator + p.Key
			label = labelPrefix + LabelSeparator + label
		}
		list := inList || p.List

		if p.IsComplex() {
			if w.expand[key] {
				w.walk(p.Children, key, label, list)
				continue
			}
			main, ok := p.Child(p.Main)
			if !ok || main.IsComplex() {
				w.mapping.Expandable = append(w.mapping.Expandable, w.datasource+"/"+key)
				continue
			}
			w.leaf(main, key+PathSeparator+main.Key, key, label, list || main.List, p.Description)
			continue
		}
		w.leaf(p, key, key, label, list, p.Description)
	}
}

func (w *walker) leaf(p Property, path, key, label string, list bool, description string) {
	t, ok := MapType(p.Type)
	if !ok {
		w.mapping.Unmapped[p.Type] = append(w.mapping.Unmapped[p.Type], w.datasource+"/"+path)
		return
	}
	if list {
		t = field.ListOf(t)
	}
	w.mapping.Entries = append(w.mapping.Entries, Entry{
		Datasource:  w.datasource,
		Property:    path,
		Key:         key,
		Label:       label,
		Type:        t,
		NativeType:  p.Type,
		Description: description,
	})
}
