package watcher

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/searchapi/internal/datasource"
	"github.com/Aman-CERP/searchapi/internal/errors"
	"github.com/Aman-CERP/searchapi/internal/index"
)

// Tracker receives item changes. *index.Manager implements it.
type Tracker interface {
	TrackItemsInserted(ctx context.Context, ds string, raw []string) ([]index.Report, error)
	TrackItemsUpdated(ctx context.Context, ds string, raw []string) ([]index.Report, error)
	TrackItemsDeleted(ctx context.Context, ds string, raw []string) error
}

// Source is a datasource whose items are files under a root.
type Source interface {
	ID() string
	datasource.Rooted
}

// Syncer turns file event batches into item changes of the datasources
// owning the files.
type Syncer struct {
	tracker Tracker
	sources []Source
	logger  *slog.Logger
	// OnReports is called with the reports of directly indexed changes.
	OnReports func([]index.Report)
}

// NewSyncer creates a syncer for sources.
func NewSyncer(tracker Tracker, sources []Source, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{tracker: tracker, sources: sources, logger: logger}
}

// Roots returns the root directories to watch.
func (s *Syncer) Roots() []string {
	roots := make([]string, 0, len(s.sources))
	for _, src := range s.sources {
		roots = append(roots, src.Root())
	}
	return roots
}

// SkipDir reports directories no source covers, such as .git.
func (s *Syncer) SkipDir(path string) bool {
	base := filepath.Base(path)
	return base == ".git" || base == ".hg" || base == ".svn" || base == "node_modules"
}

type changes struct {
	inserted, updated, deleted []string
}

// Apply reports one batch. Deleted paths are matched by location only,
// since a deleted file can no longer be checked against the filters.
func (s *Syncer) Apply(ctx context.Context, batch []FileEvent) error {
	perSource := make(map[string]*changes)
	var order []string
	for _, ev := range batch {
		for _, src := range s.sources {
			raw, ok := s.rawID(src, ev)
			if !ok {
				continue
			}
			c, seen := perSource[src.ID()]
			if !seen {
				c = &changes{}
				perSource[src.ID()] = c
				order = append(order, src.ID())
			}
			switch ev.Operation {
			case OpCreate:
				c.inserted = append(c.inserted, raw)
			case OpModify:
				c.updated = append(c.updated, raw)
			case OpDelete:
				c.deleted = append(c.deleted, raw)
			}
		}
	}

	var firstErr error
	record := func(ds, op string, err error) {
		if err == nil {
			return
		}
		attrs := append([]any{slog.String("datasource", ds), slog.String("operation", op)}, errors.LogAttrs(err)...)
		s.logger.Warn("watch_sync_failed", attrs...)
		if firstErr == nil {
			firstErr = err
		}
	}
	for _, ds := range order {
		c := perSource[ds]
		reports, err := s.tracker.TrackItemsInserted(ctx, ds, c.inserted)
		s.report(reports)
		record(ds, "insert", err)
		reports, err = s.tracker.TrackItemsUpdated(ctx, ds, c.updated)
		s.report(reports)
		record(ds, "update", err)
		record(ds, "delete", s.tracker.TrackItemsDeleted(ctx, ds, c.deleted))

		s.logger.Debug("watch_batch_applied",
			slog.String("datasource", ds),
			slog.Int("inserted", len(c.inserted)),
			slog.Int("updated", len(c.updated)),
			slog.Int("deleted", len(c.deleted)))
	}
	return firstErr
}

func (s *Syncer) rawID(src Source, ev FileEvent) (string, bool) {
	if ev.Operation != OpDelete {
		return src.RawID(ev.Path)
	}
	rel, err := filepath.Rel(src.Root(), ev.Path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (s *Syncer) report(reports []index.Report) {
	if s.OnReports != nil && len(reports) > 0 {
		s.OnReports(reports)
	}
}

// Run watches every source root and applies batches until ctx is done.
func (s *Syncer) Run(ctx context.Context, opts Options) error {
	if opts.SkipDir == nil {
		opts.SkipDir = s.SkipDir
	}
	if opts.Logger == nil {
		opts.Logger = s.logger
	}
	w, err := New(opts)
	if err != nil {
		return err
	}
	for _, root := range s.Roots() {
		if err := w.Add(root); err != nil {
			_ = w.Stop()
			return err
		}
		s.logger.Info("watch_started", slog.String("root", root))
	}

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	errs := w.Errors()
	for {
		select {
		case batch, ok := <-w.Events():
			if !ok {
				return <-done
			}
			_ = s.Apply(ctx, batch)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.logger.Warn("watch_error", slog.String("error", err.Error()))
		case err := <-done:
			_ = w.Stop()
			return err
		}
	}
}
