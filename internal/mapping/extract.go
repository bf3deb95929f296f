package mapping

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/searchapi/internal/errors"
	"github.com/Aman-CERP/searchapi/internal/field"
	"github.com/Aman-CERP/searchapi/internal/item"
)

// Datasource-independent pseudo properties.
const (
	PropertyDatasource = "search_api_datasource"
	PropertyID         = "search_api_id"
	PropertyRawID      = "search_api_raw_id"
)

var pseudoProperties = map[string]func(item.ID) any{
	PropertyDatasource: func(id item.ID) any { return id.Datasource() },
	PropertyID:         func(id item.ID) any { return id.String() },
	PropertyRawID:      func(id item.ID) any { return id.Raw() },
}

// Extract builds a field.Item from a loaded datasource object. Only fields
// of the item's datasource, or datasource-independent fields, are pulled.
// A value that cannot be coerced to its field type fails the whole item.
func (m *Mapper) Extract(id item.ID, original map[string]any, defs []field.Definition) (*field.Item, error) {
	out := field.NewItem(id, original)
	for _, def := range defs {
		var native any
		switch def.Datasource {
		case "":
			get, ok := pseudoProperties[def.Property]
			if !ok {
				continue
			}
			native = get(id)
		case id.Datasource():
			native = ValueAt(original, def.Property)
		default:
			continue
		}

		v, err := field.Coerce(native, def.Type)
		if err != nil {
			return nil, errors.New(errors.ErrCodeExtractFailed,
				fmt.Sprintf("item %s: field %q", id, def.Key), err).
				WithDetail("item", id.String()).
				WithDetail("field", def.Key)
		}
		out.Set(def, v)
	}
	return out, nil
}

// ValueAt resolves a ':'-separated property path in a loaded object. Lists
// along the path fan out and their results are flattened into one slice.
func ValueAt(obj any, path string) any {
	if path == "" {
		return obj
	}
	head, rest, _ := strings.Cut(path, PathSeparator)

	switch x := obj.(type) {
	case map[string]any:
		v, ok := x[head]
		if !ok {
			return nil
		}
		if rest == "" {
			return v
		}
		return ValueAt(v, rest)
	case []any:
		var out []any
		for _, e := range x {
			v := ValueAt(e, path)
			if v == nil {
				continue
			}
			if vs, ok := v.([]any); ok {
				out = append(out, vs...)
			} else {
				out = append(out, v)
			}
		}
		if out == nil {
			return nil
		}
		return out
	case []map[string]any:
		list := make([]any, len(x))
		for i, e := range x {
			list[i] = e
		}
		return ValueAt(list, path)
	}
	return nil
}
