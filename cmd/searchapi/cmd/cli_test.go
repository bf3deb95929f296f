package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/searchapi/internal/config"
	"github.com/Aman-CERP/searchapi/internal/errors"
	"github.com/Aman-CERP/searchapi/internal/index"
)

// project writes the starter configuration and two documents to a temp
// directory and returns the configuration path.
func project(t *testing.T) (string, string) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()
	docs := filepath.Join(dir, "docs")
	require.NoError(t, os.MkdirAll(docs, 0o755))
	writeDoc(t, docs, "a.md", "# Getting started\n\nInstall the ranking module first.\n")
	writeDoc(t, docs, "b.md", "# Notes\n\nUnrelated text about deployment.\n")

	path := filepath.Join(dir, config.FileNames[0])
	require.NoError(t, config.Example().WriteYAML(path))
	return path, docs
}

func writeDoc(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func searchJSON(t *testing.T, cfg string, args ...string) map[string]any {
	t.Helper()
	out, err := run(t, append([]string{"--config", cfg, "search", "docs", "--json"}, args...)...)
	require.NoError(t, err)
	var rs map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rs))
	return rs
}

func statusJSON(t *testing.T, cfg string) []index.Status {
	t.Helper()
	out, err := run(t, "--config", cfg, "status", "--json")
	require.NoError(t, err)
	var statuses []index.Status
	require.NoError(t, json.Unmarshal([]byte(out), &statuses))
	return statuses
}

func TestCLI_IndexAndSearch(t *testing.T) {
	// Given: a project with two documents
	cfg, _ := project(t)

	// When: indexing everything
	out, err := run(t, "--config", cfg, "index", "--all")

	// Then: both documents are indexed and searchable
	require.NoError(t, err)
	assert.Contains(t, out, "Complete: 2 of 2 item(s) indexed")

	rs := searchJSON(t, cfg, "ranking")
	assert.EqualValues(t, 1, rs["result_count"])
	items := rs["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "docs/a.md", items[0].(map[string]any)["id"])

	statuses := statusJSON(t, cfg)
	require.Len(t, statuses, 1)
	assert.Equal(t, 2, statuses[0].Tracker.Indexed)
	assert.Zero(t, statuses[0].Tracker.Pending())
}

func TestCLI_TrackUpdateThenIndex(t *testing.T) {
	// Given: an indexed project
	cfg, docs := project(t)
	_, err := run(t, "--config", cfg, "index", "--all")
	require.NoError(t, err)

	// When: a document changes and the change is reported
	writeDoc(t, docs, "b.md", "# Notes\n\nNow mentions ranking too.\n")
	out, err := run(t, "--config", cfg, "track", "update", "docs", "b.md")
	require.NoError(t, err)
	assert.Contains(t, out, "1 item(s) of docs updated for 1 index(es)")

	// Then: the item is pending until the next run
	assert.Equal(t, 1, statusJSON(t, cfg)[0].Tracker.Pending())
	_, err = run(t, "--config", cfg, "index")
	require.NoError(t, err)
	assert.EqualValues(t, 2, searchJSON(t, cfg, "ranking")["result_count"])
}

func TestCLI_TrackDelete(t *testing.T) {
	cfg, docs := project(t)
	_, err := run(t, "--config", cfg, "index", "--all")
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(docs, "a.md")))
	_, err = run(t, "--config", cfg, "track", "delete", "docs", "a.md")
	require.NoError(t, err)

	assert.EqualValues(t, 0, searchJSON(t, cfg, "ranking")["result_count"])
	assert.Equal(t, 1, statusJSON(t, cfg)[0].Tracker.Total)
}

func TestCLI_ReindexAndClear(t *testing.T) {
	// Given: an indexed project
	cfg, _ := project(t)
	_, err := run(t, "--config", cfg, "index", "--all")
	require.NoError(t, err)

	// When: scheduling a reindex
	out, err := run(t, "--config", cfg, "reindex", "docs")

	// Then: every item is pending while the data stays searchable
	require.NoError(t, err)
	assert.Contains(t, out, "docs: scheduled for reindexing")
	assert.Equal(t, 2, statusJSON(t, cfg)[0].Tracker.Pending())
	assert.EqualValues(t, 1, searchJSON(t, cfg, "ranking")["result_count"])

	// When: clearing
	out, err = run(t, "--config", cfg, "clear")

	// Then: the data is gone
	require.NoError(t, err)
	assert.Contains(t, out, "docs: cleared")
	assert.EqualValues(t, 0, searchJSON(t, cfg, "ranking")["result_count"])
}

func TestCLI_SearchErrors(t *testing.T) {
	cfg, _ := project(t)

	tests := []struct {
		name string
		args []string
		code string
	}{
		{"unknown index", []string{"search", "nope", "x"}, errors.ErrCodeUnknownIndex},
		{"malformed filter", []string{"search", "docs", "--filter", "title"}, errors.ErrCodeInvalidQuery},
		{"unknown filter field", []string{"search", "docs", "--filter", "color=red"}, errors.ErrCodeInvalidField},
		{"bad sort direction", []string{"search", "docs", "--sort", "path:up"}, errors.ErrCodeInvalidQuery},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, append([]string{"--config", cfg}, tt.args...)...)
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.GetCode(err))
		})
	}
}

func TestCLI_Fields(t *testing.T) {
	cfg, _ := project(t)

	out, err := run(t, "--config", cfg, "fields", "docs")

	require.NoError(t, err)
	assert.Contains(t, out, "* Title")
	assert.Contains(t, out, "  File name")
}

func TestCLI_ConfigInitAndShow(t *testing.T) {
	// Given: an empty directory
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "searchapi.yaml")

	// When: creating and showing the configuration
	out, err := run(t, "--config", path, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Created "+path)

	out, err = run(t, "--config", path, "config", "show", "--json")

	// Then: the starter configuration is loaded back
	require.NoError(t, err)
	var cfg config.Config
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	require.Len(t, cfg.Indexes, 1)
	assert.Equal(t, "docs", cfg.Indexes[0].ID)
}

func TestCLI_ConfigInit_KeepsExisting(t *testing.T) {
	cfg, _ := project(t)

	out, err := run(t, "--config", cfg, "config", "init")

	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
}

func TestCLI_MissingConfig(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	_, err := run(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "status")

	assert.Equal(t, errors.ErrCodeConfigNotFound, errors.GetCode(err))
}
