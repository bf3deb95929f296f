package processor

import (
	"log/slog"
	"sort"

	"github.com/Aman-CERP/searchapi/internal/errors"
	"github.com/Aman-CERP/searchapi/internal/field"
	"github.com/Aman-CERP/searchapi/internal/query"
)

// Entry is one processor in a pipeline.
type Entry struct {
	ID        string
	Weight    int
	Processor Processor
}

// Pipeline runs an index's processors in weight order.
type Pipeline struct {
	entries []Entry
	logger  *slog.Logger
}

// NewPipeline creates a pipeline from entries, ordered by weight then id.
func NewPipeline(logger *slog.Logger, entries ...Entry) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	sorted := append([]Entry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Weight != sorted[j].Weight {
			return sorted[i].Weight < sorted[j].Weight
		}
		return sorted[i].ID < sorted[j].ID
	})
	return &Pipeline{entries: sorted, logger: logger}
}

// Build creates the pipeline of an index from its processor configuration.
// Disabled processors are ignored. Processors that cannot be created are
// skipped with a warning; their errors are returned for reporting.
func Build(reg *Registry, schema field.Schema, configs map[string]Config, logger *slog.Logger) (*Pipeline, []error) {
	if logger == nil {
		logger = slog.Default()
	}
	var (
		entries []Entry
		skipped []error
	)
	for id, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		p, err := reg.Create(id, schema, cfg)
		if err != nil {
			attrs := append([]any{slog.String("index", schema.IndexID()), slog.String("processor", id)}, errors.LogAttrs(err)...)
			logger.Warn("processor_skipped", attrs...)
			skipped = append(skipped, err)
			continue
		}
		entries = append(entries, Entry{ID: id, Weight: cfg.Weight, Processor: p})
	}
	sort.Slice(skipped, func(i, j int) bool { return skipped[i].Error() < skipped[j].Error() })
	return NewPipeline(logger, entries...), skipped
}

// Entries returns the processors in preprocessing order.
func (p *Pipeline) Entries() []Entry { return p.entries }

// IDs returns processor ids in preprocessing order.
func (p *Pipeline) IDs() []string {
	ids := make([]string, len(p.entries))
	for i, e := range p.entries {
		ids[i] = e.ID
	}
	return ids
}

// Len returns the number of processors.
func (p *Pipeline) Len() int { return len(p.entries) }

// AlterItems lets processors drop items. It returns the kept items and the
// dropped ones, each in input order.
func (p *Pipeline) AlterItems(items []*field.Item) (kept, dropped []*field.Item) {
	kept = items
	for _, e := range p.entries {
		a, ok := e.Processor.(ItemAlterer)
		if !ok {
			continue
		}
		kept = a.AlterItems(kept)
	}
	if len(kept) == len(items) {
		return kept, nil
	}
	keep := make(map[*field.Item]bool, len(kept))
	for _, it := range kept {
		keep[it] = true
	}
	for _, it := range items {
		if !keep[it] {
			dropped = append(dropped, it)
		}
	}
	return kept, dropped
}

// PreprocessItems runs item preprocessing in order.
func (p *Pipeline) PreprocessItems(items []*field.Item) {
	for _, e := range p.entries {
		switch x := e.Processor.(type) {
		case ItemPreprocessor:
			x.PreprocessIndexItems(items)
		case FieldProcessor:
			ProcessItems(x, items)
		}
	}
}

// PreprocessQuery runs query preprocessing in order.
func (p *Pipeline) PreprocessQuery(q *query.Query) {
	for _, e := range p.entries {
		switch x := e.Processor.(type) {
		case QueryPreprocessor:
			x.PreprocessSearchQuery(q)
		case FieldProcessor:
			ProcessQuery(x, q)
		}
	}
}

// PostprocessResults runs result postprocessing in reverse order.
func (p *Pipeline) PostprocessResults(results *query.ResultSet, q *query.Query) {
	for i := len(p.entries) - 1; i >= 0; i-- {
		if x, ok := p.entries[i].Processor.(ResultPostprocessor); ok {
			x.PostprocessSearchResults(results, q)
		}
	}
}
