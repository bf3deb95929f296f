package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchapi/internal/config"
	apierrors "github.com/Aman-CERP/searchapi/internal/errors"
	"github.com/Aman-CERP/searchapi/internal/index"
	"github.com/Aman-CERP/searchapi/internal/output"
	"github.com/Aman-CERP/searchapi/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	var indexPending bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Track file changes of file datasources",
		Long: `Watch the root directories of every file datasource and report created,
modified and deleted files to the indexes covering them.

With --index (the default) the changed items are indexed right away;
otherwise they wait for the next 'searchapi index' run. Stop with Ctrl+C.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, indexPending)
		},
	}

	cmd.Flags().BoolVar(&indexPending, "index", true, "Index changed items after each batch")

	return cmd
}

func runWatch(cmd *cobra.Command, indexPending bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	var sources []watcher.Source
	for _, ds := range a.sources {
		if src, ok := ds.(watcher.Source); ok {
			sources = append(sources, src)
		}
	}
	if len(sources) == 0 {
		return apierrors.New(apierrors.ErrCodeConfigInvalid, "no file datasources to watch", nil).
			WithSuggestion("Add a datasource of type 'file' to the configuration")
	}

	out := output.New(cmd.OutOrStdout())
	var tracker watcher.Tracker = a.manager
	if indexPending {
		tracker = &indexingTracker{manager: a.manager, logger: a.logger, out: out}
	}
	syncer := watcher.NewSyncer(tracker, sources, a.logger)
	syncer.OnReports = func(reports []index.Report) {
		for _, r := range reports {
			printReport(out, r)
		}
	}

	for _, root := range syncer.Roots() {
		out.Statusf("👀", "Watching %s", root)
	}
	err = syncer.Run(ctx, watcher.Options{
		Debounce: config.Duration(a.cfg.Watch.Debounce, 200*time.Millisecond),
		Logger:   a.logger,
	})
	if errors.Is(err, context.Canceled) {
		out.Status("", "Stopped watching")
		return nil
	}
	return err
}

// indexingTracker indexes the pending items of the affected indexes after
// reporting changes. Indexes set to index directly already did so.
type indexingTracker struct {
	manager *index.Manager
	logger  *slog.Logger
	out     *output.Writer
}

func (t *indexingTracker) TrackItemsInserted(ctx context.Context, ds string, raw []string) ([]index.Report, error) {
	reports, err := t.manager.TrackItemsInserted(ctx, ds, raw)
	t.indexPending(ctx, ds)
	return reports, err
}

func (t *indexingTracker) TrackItemsUpdated(ctx context.Context, ds string, raw []string) ([]index.Report, error) {
	reports, err := t.manager.TrackItemsUpdated(ctx, ds, raw)
	t.indexPending(ctx, ds)
	return reports, err
}

func (t *indexingTracker) TrackItemsDeleted(ctx context.Context, ds string, raw []string) error {
	return t.manager.TrackItemsDeleted(ctx, ds, raw)
}

func (t *indexingTracker) indexPending(ctx context.Context, ds string) {
	for _, o := range t.manager.IndexesFor(ds) {
		idx := o.Index()
		if !idx.Enabled || idx.ReadOnly || idx.Options.IndexDirectly || o.Backend() == nil {
			continue
		}
		report, err := o.IndexItems(ctx, -1)
		if err != nil {
			t.logger.Warn("watch_index_failed",
				append([]any{slog.String("index", o.IndexID())}, apierrors.LogAttrs(err)...)...)
			t.out.Errorf("%s: %v", o.IndexID(), err)
			continue
		}
		if report.Total > 0 {
			printReport(t.out, report)
		}
	}
}

func printReport(out *output.Writer, r index.Report) {
	if r.Rejected > 0 {
		out.Warningf("%s: %d indexed, %d rejected", r.Index, r.Succeeded, r.Rejected)
		return
	}
	out.Successf("%s: %d indexed", r.Index, r.Succeeded+r.Filtered)
}
