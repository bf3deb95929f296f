// Package index ties datasources, the tracker, the processor pipeline and a
// search backend together. It provides the index entity, a manager running
// lifecycle hooks on save and delete, and a per-index orchestrator driving
// indexing runs and queries.
package index

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/searchapi/internal/config"
	"github.com/Aman-CERP/searchapi/internal/errors"
	"github.com/Aman-CERP/searchapi/internal/field"
	"github.com/Aman-CERP/searchapi/internal/processor"
	"github.com/Aman-CERP/searchapi/internal/query"
)

// Options holds per-index behaviour switches.
type Options struct {
	// CronLimit is the number of items one IndexItems call handles when no
	// limit is given. Negative means all.
	CronLimit     int               `yaml:"cron_limit"`
	ParseMode     query.ParseMode   `yaml:"parse_mode"`
	Conjunction   query.Conjunction `yaml:"conjunction"`
	IndexDirectly bool              `yaml:"index_directly"`
	TrackQueued   bool              `yaml:"track_queued"`
}

// Index is the configuration of one search index.
type Index struct {
	ID               string                      `yaml:"id"`
	Name             string                      `yaml:"name"`
	Description      string                      `yaml:"description,omitempty"`
	Server           string                      `yaml:"server,omitempty"`
	Enabled          bool                        `yaml:"enabled"`
	ReadOnly         bool                        `yaml:"read_only"`
	Datasources      []string                    `yaml:"datasources"`
	Fields           []field.Definition          `yaml:"fields"`
	AdditionalFields []string                    `yaml:"additional_fields,omitempty"`
	Processors       map[string]processor.Config `yaml:"processors,omitempty"`
	Options          Options                     `yaml:"options"`
}

// Field returns the definition of the field with the given key.
func (idx *Index) Field(key string) (field.Definition, bool) {
	for _, d := range idx.Fields {
		if d.Key == key {
			return d, true
		}
	}
	return field.Definition{}, false
}

// HasDatasource reports whether the index covers datasource id.
func (idx *Index) HasDatasource(id string) bool {
	for _, ds := range idx.Datasources {
		if ds == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of idx.
func (idx *Index) Clone() *Index {
	data, err := yaml.Marshal(idx)
	if err != nil {
		panic(fmt.Sprintf("index %s: clone: %v", idx.ID, err))
	}
	out := &Index{}
	if err := yaml.Unmarshal(data, out); err != nil {
		panic(fmt.Sprintf("index %s: clone: %v", idx.ID, err))
	}
	return out
}

// Server is a configured search backend instance.
type Server struct {
	ID          string
	Name        string
	Backend     string
	Path        string
	Description string
	Options     map[string]any
}

// FromConfig converts an index configuration into an Index.
func FromConfig(ic config.IndexConfig) (*Index, error) {
	idx := &Index{
		ID:               ic.ID,
		Name:             ic.Name,
		Description:      ic.Description,
		Server:           ic.Server,
		Enabled:          ic.IsEnabled(),
		ReadOnly:         ic.ReadOnly,
		Datasources:      append([]string(nil), ic.Datasources...),
		AdditionalFields: append([]string(nil), ic.AdditionalFields...),
		Options: Options{
			CronLimit:     ic.Options.CronLimit,
			IndexDirectly: ic.Options.IndexDirectly,
			TrackQueued:   ic.Options.QueuesItems(),
		},
	}
	if idx.Name == "" {
		idx.Name = idx.ID
	}

	mode, err := query.ParseParseMode(ic.Options.ParseMode)
	if err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("index %q: %v", ic.ID, err), err)
	}
	idx.Options.ParseMode = mode
	conj, err := query.ParseConjunction(ic.Options.DefaultConjunction)
	if err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("index %q: %v", ic.ID, err), err)
	}
	idx.Options.Conjunction = conj

	keys := make([]string, 0, len(ic.Fields))
	for k := range ic.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fc := ic.Fields[key]
		def := field.Definition{
			Key:         key,
			Label:       fc.Label,
			Boost:       fc.Boost,
			Datasource:  fc.Datasource,
			Property:    fc.Property,
			Description: fc.Description,
		}
		if def.Property == "" {
			def.Property = key
		}
		if fc.Type != "" {
			t, err := field.ParseType(fc.Type)
			if err != nil {
				return nil, errors.ConfigError(fmt.Sprintf("index %q: field %q: %v", ic.ID, key, err), err)
			}
			def.Type = t
		}
		idx.Fields = append(idx.Fields, def)
	}

	if len(ic.Processors) > 0 {
		idx.Processors = make(map[string]processor.Config, len(ic.Processors))
		for id, pc := range ic.Processors {
			idx.Processors[id] = processor.Config{
				Enabled:  pc.IsEnabled(),
				Weight:   pc.Weight,
				Fields:   append([]string(nil), pc.Fields...),
				Settings: pc.Settings,
			}
		}
	}
	return idx, nil
}

// ServerFromConfig converts a server configuration. path is the resolved
// storage path of the server.
func ServerFromConfig(sc config.ServerConfig, path string) Server {
	name := sc.Name
	if name == "" {
		name = sc.ID
	}
	return Server{
		ID:          sc.ID,
		Name:        name,
		Backend:     sc.Backend,
		Path:        path,
		Description: sc.Description,
		Options:     sc.Options,
	}
}

// sameSchema reports whether a and b index the same fields the same way.
func sameSchema(a, b *Index) bool {
	return equalYAML(a.Fields, b.Fields) &&
		equalYAML(a.AdditionalFields, b.AdditionalFields) &&
		equalYAML(a.Processors, b.Processors)
}

func equalYAML(a, b any) bool {
	da, errA := yaml.Marshal(a)
	db, errB := yaml.Marshal(b)
	return errA == nil && errB == nil && string(da) == string(db)
}
