// Package item defines the identifier of one indexable unit: the id of the
// datasource that produced it plus the datasource's own raw id.
package item

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Aman-CERP/searchapi/internal/errors"
)

// Separator joins the datasource id and the raw id. Datasource ids never
// contain it; raw ids may (file paths, for instance).
const Separator = "/"

// ID identifies one item within an index.
type ID struct {
	datasource string
	raw        string
}

// New builds an ID. It panics if datasource is empty or contains the separator.
func New(datasource, raw string) ID {
	if datasource == "" || strings.Contains(datasource, Separator) {
		panic(fmt.Sprintf("item: invalid datasource id %q", datasource))
	}
	return ID{datasource: datasource, raw: raw}
}

// Parse parses a serialized identifier.
func Parse(s string) (ID, error) {
	ds, raw, ok := strings.Cut(s, Separator)
	if !ok || ds == "" || raw == "" {
		return ID{}, errors.New(errors.ErrCodeInvalidItemID, fmt.Sprintf("malformed item id %q", s), nil)
	}
	return ID{datasource: ds, raw: raw}, nil
}

// MustParse is like Parse but panics on malformed input. Identifiers read
// back from our own storage are always well formed.
func MustParse(s string) ID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// Datasource returns the datasource id.
func (id ID) Datasource() string { return id.datasource }

// Raw returns the datasource-specific id.
func (id ID) Raw() string { return id.raw }

// IsZero reports whether id is the zero value.
func (id ID) IsZero() bool { return id.datasource == "" && id.raw == "" }

// String returns the serialized form.
func (id ID) String() string {
	return id.datasource + Separator + id.raw
}

// Strings serializes ids, preserving order.
func Strings(ids []ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// GroupByDatasource splits ids into raw ids per datasource, preserving the
// relative order within each group.
func GroupByDatasource(ids []ID) map[string][]string {
	groups := make(map[string][]string)
	for _, id := range ids {
		groups[id.datasource] = append(groups[id.datasource], id.raw)
	}
	return groups
}

// Datasources returns the distinct datasource ids in ids, sorted.
func Datasources(ids []ID) []string {
	seen := make(map[string]struct{})
	for _, id := range ids {
		seen[id.datasource] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for ds := range seen {
		out = append(out, ds)
	}
	sort.Strings(out)
	return out
}

// FromRaw builds ids for raw ids of one datasource.
func FromRaw(datasource string, raw []string) []ID {
	out := make([]ID, len(raw))
	for i, r := range raw {
		out[i] = New(datasource, r)
	}
	return out
}
