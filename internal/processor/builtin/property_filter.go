package builtin

import (
	"fmt"

	"github.com/Aman-CERP/searchapi/internal/field"
	"github.com/Aman-CERP/searchapi/internal/processor"
)

// propertyFilter keeps only items whose field matches one of the configured
// values (or none of them, when negated). Excluded items are removed from
// the index.
type propertyFilter struct {
	id     string
	field  string
	values map[string]bool
	negate bool
}

func newPropertyFilter(schema field.Schema, cfg processor.Config) (processor.Processor, error) {
	key := cfg.String("field", "")
	if key == "" {
		return nil, fmt.Errorf("setting %q is required", "field")
	}
	p := &propertyFilter{
		id:     PropertyFilter,
		field:  key,
		values: make(map[string]bool),
		negate: cfg.Bool("negate", false),
	}
	for _, v := range cfg.Strings("values") {
		p.values[v] = true
	}
	return p, nil
}

func (p *propertyFilter) ID() string { return p.id }

// SupportsIndex requires the filtered field to exist.
func (p *propertyFilter) SupportsIndex(schema field.Schema) bool {
	_, ok := schema.Field(p.field)
	return ok
}

func (p *propertyFilter) AlterItems(items []*field.Item) []*field.Item {
	out := items[:0:0]
	for _, it := range items {
		if p.matches(it) != p.negate {
			out = append(out, it)
		}
	}
	return out
}

func (p *propertyFilter) matches(it *field.Item) bool {
	f, ok := it.Field(p.field)
	if !ok {
		return false
	}
	for _, s := range f.Original.Texts() {
		if p.values[s] {
			return true
		}
	}
	return false
}
