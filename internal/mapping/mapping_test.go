package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/searchapi/internal/errors"
	"github.com/Aman-CERP/searchapi/internal/field"
	"github.com/Aman-CERP/searchapi/internal/item"
)

type staticSource struct {
	id    string
	props []Property
}

func (s staticSource) ID() string             { return s.id }
func (s staticSource) Properties() []Property { return s.props }

func articleSource() staticSource {
	return staticSource{id: "articles", props: []Property{
		{Key: "title", Label: "Title", Type: "string"},
		{Key: "body", Label: "Body", Type: "html"},
		{Key: "published", Label: "Published", Type: "timestamp"},
		{Key: "attachment", Label: "Attachment", Type: "blob"},
		{Key: "author", Label: "Author", Main: "name", Children: []Property{
			{Key: "name", Label: "Name", Type: "string"},
			{Key: "age", Label: "Age", Type: "integer"},
		}},
		{Key: "tags", Label: "Tags", List: true, Main: "label", Children: []Property{
			{Key: "label", Label: "Label", Type: "string"},
		}},
		{Key: "meta", Label: "Meta", Children: []Property{
			{Key: "origin", Label: "Origin", Type: "url"},
		}},
	}}
}

func keys(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Key
	}
	return out
}

func TestMap_MainPropertyFallback(t *testing.T) {
	// Given: no additional fields
	m := NewMapper(nil, nil)

	// When: mapping
	mapping := m.Map("idx", nil, articleSource())

	// Then: complex properties use their main child, meta has none
	author, ok := mapping.Lookup("articles", "author:name")
	require.True(t, ok)
	assert.Equal(t, "author", author.Key)
	assert.Equal(t, "Author", author.Label)
	assert.Equal(t, field.String, author.Type)

	tags, ok := mapping.Lookup("articles", "tags:label")
	require.True(t, ok)
	assert.Equal(t, field.ListOf(field.String), tags.Type)

	assert.Equal(t, []string{"articles/meta"}, mapping.Expandable)
	assert.NotContains(t, keys(mapping.Entries), "author:age")
}

func TestMap_AdditionalFieldsRecurse(t *testing.T) {
	// Given: author and meta expanded
	m := NewMapper(nil, nil)

	// When: mapping
	mapping := m.Map("idx", []string{"author", "articles/meta", "other/tags"}, articleSource())

	// Then: children appear with compound keys and labels
	age, ok := mapping.Lookup("articles", "author:age")
	require.True(t, ok)
	assert.Equal(t, "author:age", age.Key)
	assert.Equal(t, "Author » Age", age.Label)
	assert.Equal(t, field.Integer, age.Type)

	origin, ok := mapping.Lookup("articles", "meta:origin")
	require.True(t, ok)
	assert.Equal(t, field.URI, origin.Type)

	// tags expansion targeted another datasource
	_, ok = mapping.Lookup("articles", "tags:label")
	assert.True(t, ok)
	assert.Empty(t, mapping.Expandable)
}

func TestMap_UnknownTypesAreWarnings(t *testing.T) {
	mapping := NewMapper(nil, nil).Map("idx", nil, articleSource())

	assert.Equal(t, []string{"articles/attachment"}, mapping.Unmapped["blob"])
	require.Len(t, mapping.Warnings, 1)
	assert.Contains(t, mapping.Warnings[0], "blob")
	// the rest of the mapping is still built
	_, ok := mapping.Lookup("articles", "title")
	assert.True(t, ok)
}

func TestMapping_Sorted(t *testing.T) {
	mapping := NewMapper(nil, nil).Map("idx", []string{"author"}, articleSource())

	sorted := mapping.Sorted()

	for i := 1; i < len(sorted); i++ {
		assert.LessOrEqual(t, sorted[i-1].Label, sorted[i].Label)
	}
	assert.Equal(t, "Author » Age", sorted[0].Label)
}

func TestMapping_Check(t *testing.T) {
	mapping := NewMapper(nil, nil).Map("idx", nil, articleSource())

	problems := mapping.Check([]field.Definition{
		{Key: "title", Datasource: "articles", Property: "title"},
		{Key: "missing", Datasource: "articles", Property: "nope"},
		{Key: "ds", Property: PropertyDatasource},
		{Key: "bad", Property: "whatever"},
	})

	assert.Len(t, problems, 2)
}

func TestCache_InvalidateRebuilds(t *testing.T) {
	// Given: a cached mapping
	cache := NewCache(4)
	m := NewMapper(cache, nil)
	first := m.Map("idx", nil, articleSource())

	// When: mapping again with different options
	second := m.Map("idx", []string{"author"}, articleSource())

	// Then: the cached mapping is returned until invalidation
	assert.Same(t, first, second)
	assert.Equal(t, 1, cache.Len())

	cache.Invalidate("idx")
	third := m.Map("idx", []string{"author"}, articleSource())
	assert.NotSame(t, first, third)
	_, ok := third.Lookup("articles", "author:age")
	assert.True(t, ok)
}

func TestValueAt(t *testing.T) {
	obj := map[string]any{
		"title":  "Hello",
		"author": map[string]any{"name": "Ada"},
		"tags":   []any{map[string]any{"label": "go"}, map[string]any{"label": "search"}},
	}

	assert.Equal(t, "Hello", ValueAt(obj, "title"))
	assert.Equal(t, "Ada", ValueAt(obj, "author:name"))
	assert.Equal(t, []any{"go", "search"}, ValueAt(obj, "tags:label"))
	assert.Nil(t, ValueAt(obj, "author:missing"))
}

func TestExtract(t *testing.T) {
	// Given: definitions for two datasources and a pseudo field
	m := NewMapper(nil, nil)
	id := item.New("articles", "1")
	defs := []field.Definition{
		{Key: "title", Type: field.Text, Datasource: "articles", Property: "title"},
		{Key: "tags", Type: field.ListOf(field.String), Datasource: "articles", Property: "tags:label"},
		{Key: "pages", Type: field.Integer, Datasource: "books", Property: "pages"},
		{Key: "source", Type: field.String, Property: PropertyDatasource},
	}
	obj := map[string]any{
		"title": "Hello",
		"tags":  []any{map[string]any{"label": "go"}},
	}

	// When: extracting
	it, err := m.Extract(id, obj, defs)

	// Then: only applicable fields are present
	require.NoError(t, err)
	assert.Equal(t, []string{"source", "tags", "title"}, it.Keys())
	assert.Equal(t, field.Scalar("Hello"), it.Fields["title"].Value)
	assert.Equal(t, field.Strings("go"), it.Fields["tags"].Value)
	assert.Equal(t, field.Scalar("articles"), it.Fields["source"].Value)
	assert.Equal(t, obj, it.Original)
}

func TestExtract_CoercionFailureRejectsItem(t *testing.T) {
	m := NewMapper(nil, nil)
	defs := []field.Definition{{Key: "n", Type: field.Integer, Datasource: "d", Property: "n"}}

	_, err := m.Extract(item.New("d", "1"), map[string]any{"n": "many"}, defs)

	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeExtractFailed, errors.GetCode(err))
}
