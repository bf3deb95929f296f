package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/searchapi/internal/datasource"
	"github.com/Aman-CERP/searchapi/internal/errors"
	"github.com/Aman-CERP/searchapi/internal/mapping"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newDatasource(t *testing.T, root string, opts datasource.Options) *Datasource {
	t.Helper()
	if opts == nil {
		opts = datasource.Options{}
	}
	opts[OptionRoot] = root
	ds, err := New(datasource.Config{ID: "docs", Options: opts})
	require.NoError(t, err)
	return ds
}

func TestNew_RequiresRoot(t *testing.T) {
	_, err := New(datasource.Config{ID: "docs", Options: datasource.Options{}})
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
}

func TestNew_RelativeRootUsesBaseDir(t *testing.T) {
	base := t.TempDir()
	ds, err := New(datasource.Config{
		ID:      "docs",
		BaseDir: base,
		Options: datasource.Options{OptionRoot: "content"},
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "content"), ds.Root())
}

func TestItemIDs_FiltersAndOrders(t *testing.T) {
	// Given a tree with indexable, excluded, ignored and binary files
	root := t.TempDir()
	writeFile(t, root, "b.md", "# B")
	writeFile(t, root, "a.txt", "plain")
	writeFile(t, root, "guide/intro.md", "# Intro")
	writeFile(t, root, "guide/draft.md", "draft")
	writeFile(t, root, "main.go", "package main")
	writeFile(t, root, "node_modules/pkg/readme.md", "vendored")
	writeFile(t, root, "build/out.md", "generated")
	writeFile(t, root, "blob.txt", "bin\x00ary")
	writeFile(t, root, ".gitignore", "build/\n")
	writeFile(t, root, "guide/.gitignore", "draft.md\n")

	ds := newDatasource(t, root, nil)

	// When listing item ids
	ids, err := ds.ItemIDs(context.Background())

	// Then only indexable files appear, lexically ordered with slash paths
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.md", "guide/intro.md"}, ids)
}

func TestItemIDs_ExcludeAndExtensionOptions(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "notes/one.md", "one")
	writeFile(t, root, "notes/two.md", "two")
	writeFile(t, root, "archive/old.md", "old")
	writeFile(t, root, "data.csv", "a,b")

	ds := newDatasource(t, root, datasource.Options{
		OptionExtensions: []any{"md", ".csv"},
		OptionExclude:    "archive/**, two.md",
	})

	ids, err := ds.ItemIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"data.csv", "notes/one.md"}, ids)
}

func TestItemIDs_GitignoreDisabled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "build/out.md", "generated")
	writeFile(t, root, ".gitignore", "build/\n")

	ds := newDatasource(t, root, datasource.Options{OptionRespectGitignore: false})

	ids, err := ds.ItemIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"build/out.md"}, ids)
}

func TestItemIDs_MissingRoot(t *testing.T) {
	ds := newDatasource(t, filepath.Join(t.TempDir(), "missing"), nil)

	_, err := ds.ItemIDs(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeDatasource, errors.GetCode(err))
}

func TestLoadMultiple(t *testing.T) {
	// Given a Markdown file with YAML front matter and a plain text file
	root := t.TempDir()
	writeFile(t, root, "guide/intro.md", "---\ntitle: Getting started\ntags: [setup, basics]\n---\n\n# Ignored heading\nWelcome.\n")
	writeFile(t, root, "notes.txt", "# Notes\nSome text")
	ds := newDatasource(t, root, nil)

	// When loading both plus a missing and an escaping id
	items, err := ds.LoadMultiple(context.Background(), []string{"guide/intro.md", "notes.txt", "gone.md", "../x.md"})

	// Then only existing files are returned with their properties
	require.NoError(t, err)
	require.Len(t, items, 2)

	intro := items["guide/intro.md"]
	assert.Equal(t, "guide/intro.md", intro[PropPath])
	assert.Equal(t, "intro.md", intro[PropName])
	assert.Equal(t, "md", intro[PropExtension])
	assert.Equal(t, "Getting started", intro[PropTitle])
	assert.Equal(t, "# Ignored heading\nWelcome.", intro[PropBody])
	assert.IsType(t, time.Time{}, intro[PropModified])
	meta, ok := intro[PropMeta].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"setup", "basics"}, meta["tags"])

	notes := items["notes.txt"]
	assert.Equal(t, "Notes", notes[PropTitle])
	assert.NotContains(t, notes, PropMeta)
	assert.EqualValues(t, len("# Notes\nSome text"), notes[PropSize])
}

func TestLoadMultiple_InvalidFrontMatterKeepsBody(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "bad.md", "---\ntitle: [unclosed\n---\nbody text\n")
	ds := newDatasource(t, root, nil)

	items, err := ds.LoadMultiple(context.Background(), []string{"bad.md"})
	require.NoError(t, err)
	require.Contains(t, items, "bad.md")
	assert.Equal(t, "body text", items["bad.md"][PropBody])
	assert.Equal(t, "bad", items["bad.md"][PropTitle])
}

func TestRawID(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "sub/.gitignore", "secret.md\n")
	ds := newDatasource(t, root, nil)

	tests := []struct {
		name string
		path string
		want string
		ok   bool
	}{
		{"nested file", filepath.Join(root, "sub", "page.md"), "sub/page.md", true},
		{"relative path", "top.md", "top.md", true},
		{"other extension", filepath.Join(root, "main.go"), "", false},
		{"outside root", filepath.Join(filepath.Dir(root), "x.md"), "", false},
		{"gitignored", filepath.Join(root, "sub", "secret.md"), "", false},
		{"default excluded dir", filepath.Join(root, ".git", "x.md"), "", false},
		{"root itself", root, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ds.RawID(tt.path)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProperties_MetaChildren(t *testing.T) {
	// Given declared meta properties and extra meta keys from options
	ds, err := New(datasource.Config{
		ID: "docs",
		Options: datasource.Options{
			OptionRoot: t.TempDir(),
			OptionMeta: []any{"author", "tags"},
		},
		Properties: []mapping.Property{{Key: "tags", Type: "string", List: true}},
	})
	require.NoError(t, err)

	// When reading the properties
	props := ds.Properties()

	// Then meta is a complex property whose main child is the first declared one
	meta := props[len(props)-1]
	assert.Equal(t, PropMeta, meta.Key)
	assert.Equal(t, "tags", meta.Main)
	require.Len(t, meta.Children, 2)
	assert.True(t, meta.Children[0].List)
	assert.Equal(t, "author", meta.Children[1].Key)
}

func TestProperties_NoMeta(t *testing.T) {
	ds := newDatasource(t, t.TempDir(), nil)
	for _, p := range ds.Properties() {
		assert.NotEqual(t, PropMeta, p.Key)
	}
}

func TestRegister(t *testing.T) {
	reg := datasource.NewRegistry()
	Register(reg)

	ds, err := reg.Create(Type, datasource.Config{ID: "docs", Options: datasource.Options{OptionRoot: t.TempDir()}})
	require.NoError(t, err)
	assert.Equal(t, Type, ds.Type())

	_, err = reg.Create(Type, datasource.Config{ID: "docs"})
	require.Error(t, err)
	assert.True(t, errors.IsPluginResolution(err))
}
