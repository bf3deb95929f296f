package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/searchapi/internal/errors"
)

// FileNames are the project configuration file names, in lookup order.
var FileNames = []string{"searchapi.yaml", "searchapi.yml", ".searchapi.yaml"}

// Config represents the complete searchapi configuration.
type Config struct {
	Version     int                `yaml:"version" json:"version"`
	DataDir     string             `yaml:"data_dir" json:"data_dir"`
	Logging     LoggingConfig      `yaml:"logging" json:"logging"`
	Tracker     TrackerConfig      `yaml:"tracker" json:"tracker"`
	Watch       WatchConfig        `yaml:"watch" json:"watch"`
	Servers     []ServerConfig     `yaml:"servers" json:"servers"`
	Datasources []DatasourceConfig `yaml:"datasources" json:"datasources"`
	Indexes     []IndexConfig      `yaml:"indexes" json:"indexes"`

	// baseDir is the directory relative paths are resolved against.
	baseDir string
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	File      string `yaml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// TrackerConfig configures the item tracking store.
type TrackerConfig struct {
	// Driver is the database/sql driver: "sqlite" (pure Go, default) or "sqlite3" (CGO).
	Driver string `yaml:"driver" json:"driver"`
	// Path of the tracker database. Empty means <data_dir>/tracker.db.
	Path string `yaml:"path" json:"path"`
	// ChunkSize is the number of rows written per transaction (default: 1000).
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"`
	// BusyTimeout is how long SQLite waits on a locked database (default: 5s).
	BusyTimeout string `yaml:"busy_timeout" json:"busy_timeout"`
	// QueueTimeout is how long an item may stay QUEUED before a new run
	// puts it back to CHANGED (default: 1h, "0" disables).
	QueueTimeout string `yaml:"queue_timeout" json:"queue_timeout"`
}

// WatchConfig configures the file watcher.
type WatchConfig struct {
	Debounce string `yaml:"debounce" json:"debounce"`
}

// ServerConfig declares a search backend instance.
type ServerConfig struct {
	ID          string         `yaml:"id" json:"id"`
	Name        string         `yaml:"name" json:"name"`
	Backend     string         `yaml:"backend" json:"backend"`
	Path        string         `yaml:"path" json:"path"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
	Options     map[string]any `yaml:"options,omitempty" json:"options,omitempty"`
}

// DatasourceConfig declares a datasource instance.
type DatasourceConfig struct {
	ID         string           `yaml:"id" json:"id"`
	Type       string           `yaml:"type" json:"type"`
	Options    map[string]any   `yaml:"options,omitempty" json:"options,omitempty"`
	Properties []PropertyConfig `yaml:"properties,omitempty" json:"properties,omitempty"`
}

// PropertyConfig declares one datasource property. Complex properties have
// children and optionally name a main child used when not recursed into.
type PropertyConfig struct {
	Key         string           `yaml:"key" json:"key"`
	Label       string           `yaml:"label,omitempty" json:"label,omitempty"`
	Type        string           `yaml:"type" json:"type"`
	List        bool             `yaml:"list,omitempty" json:"list,omitempty"`
	Main        string           `yaml:"main,omitempty" json:"main,omitempty"`
	Description string           `yaml:"description,omitempty" json:"description,omitempty"`
	Children    []PropertyConfig `yaml:"children,omitempty" json:"children,omitempty"`
}

// IndexConfig declares a search index.
type IndexConfig struct {
	ID               string                     `yaml:"id" json:"id"`
	Name             string                     `yaml:"name" json:"name"`
	Description      string                     `yaml:"description,omitempty" json:"description,omitempty"`
	Server           string                     `yaml:"server" json:"server"`
	Enabled          *bool                      `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	ReadOnly         bool                       `yaml:"read_only" json:"read_only"`
	Datasources      []string                   `yaml:"datasources" json:"datasources"`
	Fields           map[string]FieldConfig     `yaml:"fields" json:"fields"`
	AdditionalFields []string                   `yaml:"additional_fields,omitempty" json:"additional_fields,omitempty"`
	Processors       map[string]ProcessorConfig `yaml:"processors,omitempty" json:"processors,omitempty"`
	Options          IndexOptions               `yaml:"options" json:"options"`
}

// IsEnabled reports whether the index is enabled. Indexes are enabled unless
// explicitly disabled.
func (i IndexConfig) IsEnabled() bool {
	return i.Enabled == nil || *i.Enabled
}

// FieldConfig declares one indexed field.
type FieldConfig struct {
	Type        string  `yaml:"type" json:"type"`
	Label       string  `yaml:"label,omitempty" json:"label,omitempty"`
	Boost       float64 `yaml:"boost,omitempty" json:"boost,omitempty"`
	Datasource  string  `yaml:"datasource,omitempty" json:"datasource,omitempty"`
	Property    string  `yaml:"property,omitempty" json:"property,omitempty"`
	Description string  `yaml:"description,omitempty" json:"description,omitempty"`
}

// ProcessorConfig enables and configures one processor on an index.
type ProcessorConfig struct {
	Enabled  *bool          `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Weight   int            `yaml:"weight" json:"weight"`
	Fields   []string       `yaml:"fields,omitempty" json:"fields,omitempty"`
	Settings map[string]any `yaml:"settings,omitempty" json:"settings,omitempty"`
}

// IsEnabled reports whether the processor is enabled. Listed processors are
// enabled unless explicitly disabled.
func (p ProcessorConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// IndexOptions holds per-index behaviour switches.
type IndexOptions struct {
	// CronLimit is the default batch size for "searchapi index" (default: 50, -1 = all).
	CronLimit int `yaml:"cron_limit" json:"cron_limit"`
	// ParseMode is the default key parse mode: direct, single or terms (default: terms).
	ParseMode string `yaml:"parse_mode" json:"parse_mode"`
	// DefaultConjunction joins parsed terms: AND or OR (default: AND).
	DefaultConjunction string `yaml:"default_conjunction" json:"default_conjunction"`
	// IndexDirectly indexes items as soon as a change is tracked.
	IndexDirectly bool `yaml:"index_directly" json:"index_directly"`
	// TrackQueued marks picked-up items QUEUED while a run indexes them.
	TrackQueued *bool `yaml:"track_queued,omitempty" json:"track_queued,omitempty"`
}

// QueuesItems reports whether indexing runs claim items as QUEUED (default: true).
func (o IndexOptions) QueuesItems() bool {
	return o.TrackQueued == nil || *o.TrackQueued
}

// Default values.
const (
	DefaultChunkSize    = 1000
	DefaultCronLimit    = 50
	DefaultParseMode    = "terms"
	DefaultConjunction  = "AND"
	DefaultDriver       = "sqlite"
	DefaultBusyTimeout  = "5s"
	DefaultQueueTimeout = "1h"
	DefaultDebounce     = "200ms"
)

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		DataDir: ".searchapi",
		Logging: LoggingConfig{
			Level:     "warn",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
		Tracker: TrackerConfig{
			Driver:       DefaultDriver,
			ChunkSize:    DefaultChunkSize,
			BusyTimeout:  DefaultBusyTimeout,
			QueueTimeout: DefaultQueueTimeout,
		},
		Watch: WatchConfig{Debounce: DefaultDebounce},
	}
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/searchapi/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/searchapi/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "searchapi", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "searchapi", "config.yaml")
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist.
func loadUserConfig() (*Config, error) {
	path := GetUserConfigPath()
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	cfg := &Config{}
	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load loads configuration from the specified directory.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/searchapi/config.yaml)
//  3. Project config (searchapi.yaml in dir)
//  4. Environment variables (SEARCHAPI_*)
func Load(dir string) (*Config, error) {
	return load(dir, "")
}

// LoadFile loads configuration from an explicit file path. Relative paths in
// the file are resolved against the file's directory.
func LoadFile(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.New(errors.ErrCodeConfigNotFound, fmt.Sprintf("config file %s not found", path), err).
			WithSuggestion("Run 'searchapi config init' to create one")
	}
	return load(filepath.Dir(path), path)
}

func load(dir, file string) (*Config, error) {
	cfg := NewConfig()
	cfg.baseDir = dir

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if file == "" {
		file = FindConfigFile(dir)
	}
	if file != "" {
		project := &Config{}
		if err := project.loadYAML(file); err != nil {
			return nil, err
		}
		cfg.mergeWith(project)
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FindConfigFile returns the first project configuration file found in dir,
// or "" if there is none.
func FindConfigFile(dir string) string {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// loadYAML reads a YAML file into c.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.ConfigError(fmt.Sprintf("failed to read config file %s", path), err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.ConfigError(fmt.Sprintf("failed to parse config file %s", path), err)
	}
	return nil
}

// mergeWith merges non-zero values from other into c. Entity lists replace
// the inherited lists wholesale when present.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if other.DataDir != "" {
		c.DataDir = other.DataDir
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.File != "" {
		c.Logging.File = other.Logging.File
	}
	if other.Logging.MaxSizeMB != 0 {
		c.Logging.MaxSizeMB = other.Logging.MaxSizeMB
	}
	if other.Logging.MaxFiles != 0 {
		c.Logging.MaxFiles = other.Logging.MaxFiles
	}

	if other.Tracker.Driver != "" {
		c.Tracker.Driver = other.Tracker.Driver
	}
	if other.Tracker.Path != "" {
		c.Tracker.Path = other.Tracker.Path
	}
	if other.Tracker.ChunkSize != 0 {
		c.Tracker.ChunkSize = other.Tracker.ChunkSize
	}
	if other.Tracker.BusyTimeout != "" {
		c.Tracker.BusyTimeout = other.Tracker.BusyTimeout
	}
	if other.Tracker.QueueTimeout != "" {
		c.Tracker.QueueTimeout = other.Tracker.QueueTimeout
	}

	if other.Watch.Debounce != "" {
		c.Watch.Debounce = other.Watch.Debounce
	}

	if len(other.Servers) > 0 {
		c.Servers = other.Servers
	}
	if len(other.Datasources) > 0 {
		c.Datasources = other.Datasources
	}
	if len(other.Indexes) > 0 {
		c.Indexes = other.Indexes
	}
}

// applyEnvOverrides applies SEARCHAPI_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SEARCHAPI_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("SEARCHAPI_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SEARCHAPI_TRACKER_DRIVER"); v != "" {
		c.Tracker.Driver = v
	}
	if v := os.Getenv("SEARCHAPI_TRACKER_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Tracker.ChunkSize = n
		}
	}
	if v := os.Getenv("SEARCHAPI_CRON_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			for i := range c.Indexes {
				c.Indexes[i].Options.CronLimit = n
			}
		}
	}
}

// applyDefaults fills per-index option defaults.
func (c *Config) applyDefaults() {
	for i := range c.Indexes {
		opts := &c.Indexes[i].Options
		if opts.CronLimit == 0 {
			opts.CronLimit = DefaultCronLimit
		}
		if opts.ParseMode == "" {
			opts.ParseMode = DefaultParseMode
		}
		if opts.DefaultConjunction == "" {
			opts.DefaultConjunction = DefaultConjunction
		}
		opts.DefaultConjunction = strings.ToUpper(opts.DefaultConjunction)
		if c.Indexes[i].Name == "" {
			c.Indexes[i].Name = c.Indexes[i].ID
		}
	}
}

// Validate validates the configuration and returns a configuration error
// describing the first problem found.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return errors.New(errors.ErrCodeConfigInvalid, fmt.Sprintf(format, args...), nil)
	}

	if c.Tracker.ChunkSize <= 0 {
		return invalid("tracker.chunk_size must be positive, got %d", c.Tracker.ChunkSize)
	}
	switch c.Tracker.Driver {
	case "sqlite", "sqlite3":
	default:
		return invalid("tracker.driver must be sqlite or sqlite3, got %q", c.Tracker.Driver)
	}
	for name, value := range map[string]string{
		"tracker.busy_timeout":  c.Tracker.BusyTimeout,
		"tracker.queue_timeout": c.Tracker.QueueTimeout,
		"watch.debounce":        c.Watch.Debounce,
	} {
		if value == "" || value == "0" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return invalid("%s: invalid duration %q", name, value)
		}
	}

	servers := make(map[string]bool, len(c.Servers))
	for _, s := range c.Servers {
		if s.ID == "" {
			return invalid("server without id")
		}
		if servers[s.ID] {
			return invalid("duplicate server id %q", s.ID)
		}
		if s.Backend == "" {
			return invalid("server %q: backend is required", s.ID)
		}
		servers[s.ID] = true
	}

	datasources := make(map[string]bool, len(c.Datasources))
	for _, d := range c.Datasources {
		if d.ID == "" {
			return invalid("datasource without id")
		}
		if strings.Contains(d.ID, "/") {
			return invalid("datasource id %q must not contain '/'", d.ID)
		}
		if datasources[d.ID] {
			return invalid("duplicate datasource id %q", d.ID)
		}
		if d.Type == "" {
			return invalid("datasource %q: type is required", d.ID)
		}
		datasources[d.ID] = true
	}

	indexes := make(map[string]bool, len(c.Indexes))
	for _, idx := range c.Indexes {
		if idx.ID == "" {
			return invalid("index without id")
		}
		if indexes[idx.ID] {
			return invalid("duplicate index id %q", idx.ID)
		}
		indexes[idx.ID] = true

		if idx.Server != "" && !servers[idx.Server] {
			return errors.New(errors.ErrCodeUnknownServer,
				fmt.Sprintf("index %q references unknown server %q", idx.ID, idx.Server), nil)
		}
		own := make(map[string]bool, len(idx.Datasources))
		for _, ds := range idx.Datasources {
			if !datasources[ds] {
				return invalid("index %q references unknown datasource %q", idx.ID, ds)
			}
			own[ds] = true
		}
		for key, f := range idx.Fields {
			if f.Boost < 0 {
				return invalid("index %q field %q: boost must be >= 0", idx.ID, key)
			}
			if f.Datasource != "" && !own[f.Datasource] {
				return invalid("index %q field %q: datasource %q is not attached to the index", idx.ID, key, f.Datasource)
			}
		}
		switch idx.Options.ParseMode {
		case "", "direct", "single", "terms":
		default:
			return invalid("index %q: unknown parse mode %q", idx.ID, idx.Options.ParseMode)
		}
		switch strings.ToUpper(idx.Options.DefaultConjunction) {
		case "", "AND", "OR":
		default:
			return invalid("index %q: unknown conjunction %q", idx.ID, idx.Options.DefaultConjunction)
		}
	}

	return nil
}

// ResolvePath resolves p against the configuration's base directory.
func (c *Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return filepath.Join(c.baseDir, p)
}

// BaseDir returns the directory relative paths are resolved against.
func (c *Config) BaseDir() string {
	return c.baseDir
}

// DataPath returns the absolute data directory.
func (c *Config) DataPath() string {
	return c.ResolvePath(c.DataDir)
}

// TrackerPath returns the tracker database path.
func (c *Config) TrackerPath() string {
	if c.Tracker.Path != "" {
		return c.ResolvePath(c.Tracker.Path)
	}
	return filepath.Join(c.DataPath(), "tracker.db")
}

// ServerPath returns the storage path for a server. ":memory:" keeps the
// server's indexes in memory only.
func (c *Config) ServerPath(s ServerConfig) string {
	switch s.Path {
	case ":memory:":
		return ""
	case "":
		return filepath.Join(c.DataPath(), s.ID)
	default:
		return c.ResolvePath(s.Path)
	}
}

// Duration parses a configured duration, returning fallback for empty values.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	if value == "0" {
		return 0
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// Server returns the server with the given id.
func (c *Config) Server(id string) (ServerConfig, bool) {
	for _, s := range c.Servers {
		if s.ID == id {
			return s, true
		}
	}
	return ServerConfig{}, false
}

// Datasource returns the datasource with the given id.
func (c *Config) Datasource(id string) (DatasourceConfig, bool) {
	for _, d := range c.Datasources {
		if d.ID == id {
			return d, true
		}
	}
	return DatasourceConfig{}, false
}

// Index returns the index with the given id.
func (c *Config) Index(id string) (IndexConfig, bool) {
	for _, idx := range c.Indexes {
		if idx.ID == id {
			return idx, true
		}
	}
	return IndexConfig{}, false
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
