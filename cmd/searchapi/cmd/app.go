package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchapi/internal/backend"
	"github.com/Aman-CERP/searchapi/internal/backend/bleveindex"
	"github.com/Aman-CERP/searchapi/internal/config"
	"github.com/Aman-CERP/searchapi/internal/datasource"
	"github.com/Aman-CERP/searchapi/internal/datasource/file"
	"github.com/Aman-CERP/searchapi/internal/datasource/records"
	"github.com/Aman-CERP/searchapi/internal/errors"
	"github.com/Aman-CERP/searchapi/internal/index"
	"github.com/Aman-CERP/searchapi/internal/lock"
	"github.com/Aman-CERP/searchapi/internal/logging"
	"github.com/Aman-CERP/searchapi/internal/processor/builtin"
	"github.com/Aman-CERP/searchapi/internal/tracker"
)

// lockTimeout is how long a command waits for another process to release
// the data directory.
const lockTimeout = 5 * time.Second

// app is the wired runtime of one command invocation.
type app struct {
	cfg     *config.Config
	store   *tracker.Store
	manager *index.Manager
	sources []datasource.Datasource
	lock    *lock.FileLock
	logger  *slog.Logger
}

// loadConfig loads the configuration named by --config, or the project
// configuration of the working directory.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	dir, err := os.Getwd()
	if err != nil {
		return nil, errors.InternalError("failed to get working directory", err)
	}
	return config.Load(dir)
}

// openApp loads the configuration, locks the data directory and brings the
// stored index state in line with the configuration.
func openApp(cmd *cobra.Command) (*app, error) {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := configureLogging(cfg); err != nil {
		return nil, err
	}
	logger := slog.Default()

	a := &app{cfg: cfg, logger: logger, lock: lock.New(cfg.DataPath())}
	if err := a.lock.Lock(ctx, lockTimeout); err != nil {
		return nil, err
	}

	if err := a.open(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

// configureLogging applies the configured log level and file unless --debug
// already took over logging.
func configureLogging(cfg *config.Config) error {
	if debugMode {
		return nil
	}
	lc := logging.DefaultConfig()
	if cfg.Logging.Level != "" {
		lc.Level = cfg.Logging.Level
	}
	if cfg.Logging.File != "" {
		lc.FilePath = cfg.ResolvePath(cfg.Logging.File)
		lc.WriteToStderr = false
	}
	if cfg.Logging.MaxSizeMB > 0 {
		lc.MaxSizeMB = cfg.Logging.MaxSizeMB
	}
	if cfg.Logging.MaxFiles > 0 {
		lc.MaxFiles = cfg.Logging.MaxFiles
	}
	logger, cleanup, err := logging.Setup(lc)
	if err != nil {
		return errors.ConfigError("failed to setup logging", err)
	}
	if loggingCleanup != nil {
		loggingCleanup()
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

func (a *app) open(ctx context.Context) error {
	cfg := a.cfg
	store, err := tracker.Open(tracker.Options{
		Driver:      cfg.Tracker.Driver,
		Path:        cfg.TrackerPath(),
		ChunkSize:   cfg.Tracker.ChunkSize,
		BusyTimeout: config.Duration(cfg.Tracker.BusyTimeout, 5*time.Second),
		Logger:      a.logger,
	})
	if err != nil {
		return err
	}
	a.store = store

	manager, err := index.NewManager(store, index.ManagerOptions{
		Processors:   builtin.NewRegistry(),
		Logger:       a.logger,
		QueueTimeout: config.Duration(cfg.Tracker.QueueTimeout, time.Hour),
	})
	if err != nil {
		return err
	}
	a.manager = manager

	backends := backend.NewRegistry()
	bleveindex.Register(backends)
	for _, sc := range cfg.Servers {
		srv := index.ServerFromConfig(sc, cfg.ServerPath(sc))
		b, err := backends.Create(srv.Backend, backend.Config{
			ServerID: srv.ID,
			Path:     srv.Path,
			Options:  srv.Options,
			Logger:   a.logger,
		})
		if err != nil {
			return fmt.Errorf("server %q: %w", sc.ID, err)
		}
		manager.AddServer(srv, b)
	}

	sources := datasource.NewRegistry()
	file.Register(sources)
	records.Register(sources)
	for _, dc := range cfg.Datasources {
		ds, err := sources.Create(dc.Type, datasource.ConfigFrom(dc, cfg.BaseDir(), a.logger))
		if err != nil {
			return fmt.Errorf("datasource %q: %w", dc.ID, err)
		}
		manager.AddDatasource(ds)
		a.sources = append(a.sources, ds)
	}

	indexes := make([]*index.Index, 0, len(cfg.Indexes))
	for _, ic := range cfg.Indexes {
		idx, err := index.FromConfig(ic)
		if err != nil {
			return err
		}
		indexes = append(indexes, idx)
	}
	return manager.Sync(ctx, indexes)
}

// indexes resolves index ids, defaulting to every index.
func (a *app) indexes(ids []string) ([]*index.Orchestrator, error) {
	if len(ids) == 0 {
		return a.manager.Indexes(), nil
	}
	out := make([]*index.Orchestrator, 0, len(ids))
	for _, id := range ids {
		o, err := a.manager.Index(id)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

// Close releases the manager, the tracker and the lock.
func (a *app) Close() error {
	var first error
	if a.manager != nil {
		first = a.manager.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil && first == nil {
			first = err
		}
	}
	if err := a.lock.Unlock(); err != nil && first == nil {
		first = err
	}
	return first
}

// datasource returns the configured datasource with the given id.
func (a *app) datasource(id string) (datasource.Datasource, error) {
	for _, ds := range a.sources {
		if ds.ID() == id {
			return ds, nil
		}
	}
	return nil, errors.New(errors.ErrCodeDatasource, fmt.Sprintf("unknown datasource %q", id), nil)
}
