package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/searchapi/internal/errors"
)

func isolateUserConfig(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

const projectYAML = `
servers:
  - id: local
    backend: bleve
datasources:
  - id: notes
    type: file
    options:
      root: notes
indexes:
  - id: notes
    server: local
    datasources: [notes]
    fields:
      title: {type: text, boost: 3, datasource: notes, property: title}
    processors:
      ignorecase: {weight: 0}
      tokenizer: {weight: 5, enabled: false}
`

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, 1000, cfg.Tracker.ChunkSize)
	assert.Equal(t, "sqlite", cfg.Tracker.Driver)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_ProjectFile(t *testing.T) {
	// Given: a project dir with searchapi.yaml
	isolateUserConfig(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "searchapi.yaml"), projectYAML)

	// When: loading
	cfg, err := Load(dir)

	// Then: entities and index defaults are present
	require.NoError(t, err)
	require.Len(t, cfg.Indexes, 1)
	idx := cfg.Indexes[0]
	assert.True(t, idx.IsEnabled())
	assert.Equal(t, "notes", idx.Name)
	assert.Equal(t, DefaultCronLimit, idx.Options.CronLimit)
	assert.Equal(t, "terms", idx.Options.ParseMode)
	assert.Equal(t, "AND", idx.Options.DefaultConjunction)
	assert.True(t, idx.Options.QueuesItems())
	assert.True(t, idx.Processors["ignorecase"].IsEnabled())
	assert.False(t, idx.Processors["tokenizer"].IsEnabled())
	assert.Equal(t, 3.0, idx.Fields["title"].Boost)
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	isolateUserConfig(t)

	cfg, err := Load(t.TempDir())

	require.NoError(t, err)
	assert.Empty(t, cfg.Indexes)
	assert.Equal(t, DefaultChunkSize, cfg.Tracker.ChunkSize)
}

func TestLoad_UserConfigIsOverriddenByProject(t *testing.T) {
	// Given: a user config setting the log level and chunk size
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	writeFile(t, filepath.Join(xdg, "searchapi", "config.yaml"), "logging:\n  level: info\ntracker:\n  chunk_size: 10\n")
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "searchapi.yaml"), "tracker:\n  chunk_size: 20\n")

	// When: loading
	cfg, err := Load(dir)

	// Then: project wins where set, user config fills the rest
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 20, cfg.Tracker.ChunkSize)
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolateUserConfig(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "searchapi.yaml"), projectYAML)
	t.Setenv("SEARCHAPI_TRACKER_CHUNK_SIZE", "250")
	t.Setenv("SEARCHAPI_LOG_LEVEL", "debug")
	t.Setenv("SEARCHAPI_CRON_LIMIT", "-1")
	t.Setenv("SEARCHAPI_DATA_DIR", "/var/lib/searchapi")

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, 250, cfg.Tracker.ChunkSize)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, -1, cfg.Indexes[0].Options.CronLimit)
	assert.Equal(t, "/var/lib/searchapi/tracker.db", cfg.TrackerPath())
}

func TestLoad_InvalidYAML(t *testing.T) {
	isolateUserConfig(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "searchapi.yaml"), "indexes: [unclosed")

	_, err := Load(dir)

	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))

	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConfigNotFound, errors.GetCode(err))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		code   string
	}{
		{"zero chunk size", func(c *Config) { c.Tracker.ChunkSize = 0 }, errors.ErrCodeConfigInvalid},
		{"bad driver", func(c *Config) { c.Tracker.Driver = "postgres" }, errors.ErrCodeConfigInvalid},
		{"bad duration", func(c *Config) { c.Tracker.QueueTimeout = "soon" }, errors.ErrCodeConfigInvalid},
		{"duplicate server", func(c *Config) { c.Servers = append(c.Servers, c.Servers[0]) }, errors.ErrCodeConfigInvalid},
		{"slash in datasource id", func(c *Config) { c.Datasources[0].ID = "a/b"; c.Indexes[0].Datasources = nil }, errors.ErrCodeConfigInvalid},
		{"unknown server", func(c *Config) { c.Indexes[0].Server = "remote" }, errors.ErrCodeUnknownServer},
		{"unknown datasource", func(c *Config) { c.Indexes[0].Datasources = []string{"other"} }, errors.ErrCodeConfigInvalid},
		{"negative boost", func(c *Config) {
			f := c.Indexes[0].Fields["title"]
			f.Boost = -1
			c.Indexes[0].Fields["title"] = f
		}, errors.ErrCodeConfigInvalid},
		{"unknown parse mode", func(c *Config) { c.Indexes[0].Options.ParseMode = "fuzzy" }, errors.ErrCodeConfigInvalid},
		{"unknown conjunction", func(c *Config) { c.Indexes[0].Options.DefaultConjunction = "XOR" }, errors.ErrCodeConfigInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: a valid example config with one mutation
			cfg := Example()
			require.NoError(t, cfg.Validate())
			tt.mutate(cfg)

			// When/Then: validation fails with the expected code
			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.GetCode(err))
			assert.True(t, errors.IsConfiguration(err))
		})
	}
}

func TestPaths(t *testing.T) {
	isolateUserConfig(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "searchapi.yaml"), projectYAML)

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, ".searchapi", "tracker.db"), cfg.TrackerPath())
	assert.Equal(t, filepath.Join(dir, ".searchapi", "local"), cfg.ServerPath(cfg.Servers[0]))
	assert.Equal(t, "", cfg.ServerPath(ServerConfig{ID: "m", Path: ":memory:"}))
	assert.Equal(t, "/abs", cfg.ResolvePath("/abs"))
}

func TestDuration(t *testing.T) {
	assert.Equal(t, time.Hour, Duration("", time.Hour))
	assert.Equal(t, time.Duration(0), Duration("0", time.Hour))
	assert.Equal(t, 5*time.Second, Duration("5s", time.Hour))
	assert.Equal(t, time.Hour, Duration("bogus", time.Hour))
}

func TestWriteYAML_RoundTrip(t *testing.T) {
	// Given: the example config written to disk
	isolateUserConfig(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "searchapi.yaml")
	require.NoError(t, Example().WriteYAML(path))

	// When: loading it back
	cfg, err := Load(dir)

	// Then: the starter index survives
	require.NoError(t, err)
	idx, ok := cfg.Index("docs")
	require.True(t, ok)
	assert.Equal(t, "local", idx.Server)
	_, ok = cfg.Server("local")
	assert.True(t, ok)
	_, ok = cfg.Datasource("docs")
	assert.True(t, ok)
}
