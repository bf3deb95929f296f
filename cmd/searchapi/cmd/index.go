package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchapi/internal/errors"
	"github.com/Aman-CERP/searchapi/internal/index"
	"github.com/Aman-CERP/searchapi/internal/output"
	"github.com/Aman-CERP/searchapi/internal/ui"
)

func newIndexCmd() *cobra.Command {
	var limit int
	var all bool

	cmd := &cobra.Command{
		Use:   "index [index-id...]",
		Short: "Index pending items",
		Long: `Index items that changed since they were last indexed.

Without arguments every enabled index is processed. Each index handles up
to its cron_limit items per run unless --limit or --all is given.

Examples:
  searchapi index
  searchapi index docs --limit 500
  searchapi index --all`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if all {
				limit = -1
			}
			return runIndex(cmd, args, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of items per index (default: the index's cron_limit)")
	cmd.Flags().BoolVar(&all, "all", false, "Index every pending item")

	return cmd
}

func runIndex(cmd *cobra.Command, ids []string, limit int) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	targets, err := a.indexes(ids)
	if err != nil {
		return err
	}

	renderer := newRenderer(cmd)
	ctx := cmd.Context()
	if err := renderer.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = renderer.Stop() }()

	start := time.Now()
	stats := ui.CompletionStats{}
	var firstErr error
	for _, o := range targets {
		if !o.Index().Enabled && len(ids) == 0 {
			continue
		}
		report, err := indexOne(ctx, o, limit, renderer)
		stats.Indexes++
		stats.Total += report.Total
		stats.Succeeded += report.Succeeded
		stats.Filtered += report.Filtered
		stats.Rejected += report.Rejected
		stats.Missing += report.Missing
		for _, w := range report.Warnings {
			renderer.AddError(ui.ErrorEvent{Index: o.IndexID(), Err: fmt.Errorf("%s", w), IsWarn: true})
			stats.Warnings++
		}
		if err != nil {
			renderer.AddError(ui.ErrorEvent{Index: o.IndexID(), Err: err})
			stats.Errors++
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	stats.Duration = time.Since(start)
	renderer.Complete(stats)
	return firstErr
}

func indexOne(ctx context.Context, o *index.Orchestrator, limit int, renderer ui.Renderer) (index.Report, error) {
	o.OnProgress(func(p index.Progress) {
		renderer.UpdateProgress(ui.ProgressEvent{
			Index:     p.Index,
			Done:      p.Done,
			Total:     p.Total,
			Succeeded: p.Last.Succeeded,
			Rejected:  p.Last.Rejected,
		})
	})
	defer o.OnProgress(nil)

	report, err := o.IndexItems(ctx, limit)
	if err != nil {
		slog.Warn("index_run_failed", append([]any{slog.String("index", o.IndexID())}, errors.LogAttrs(err)...)...)
		return report, err
	}
	if report.Total == 0 {
		renderer.UpdateProgress(ui.ProgressEvent{Index: o.IndexID(), Message: "nothing to index"})
	}
	return report, nil
}

func newRenderer(cmd *cobra.Command) ui.Renderer {
	return ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(plainMode),
		ui.WithNoColor(noColor)))
}

func newReindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex [index-id...]",
		Short: "Schedule every item for reindexing",
		Long: `Mark every tracked item as changed. Indexed data stays searchable
until the next 'searchapi index' run replaces it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return forEachIndex(cmd, args, "scheduled for reindexing", func(ctx context.Context, o *index.Orchestrator) error {
				return o.Reindex(ctx)
			})
		},
	}
}

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear [index-id...]",
		Short: "Delete all indexed data and schedule reindexing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return forEachIndex(cmd, args, "cleared", func(ctx context.Context, o *index.Orchestrator) error {
				return o.Clear(ctx)
			})
		},
	}
}

func newRebuildTrackingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild-tracking [index-id...]",
		Short: "Recreate tracking records from the datasources",
		Long: `Drop the tracking records of an index and track every item its
datasources currently provide as new.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return forEachIndex(cmd, args, "tracking rebuilt", func(ctx context.Context, o *index.Orchestrator) error {
				_, err := o.RebuildTracking(ctx)
				return err
			})
		},
	}
}

// forEachIndex runs fn on the named indexes, reporting each outcome.
func forEachIndex(cmd *cobra.Command, ids []string, done string, fn func(context.Context, *index.Orchestrator) error) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	targets, err := a.indexes(ids)
	if err != nil {
		return err
	}
	out := output.New(cmd.OutOrStdout())
	var firstErr error
	for _, o := range targets {
		if err := fn(cmd.Context(), o); err != nil {
			out.Errorf("%s: %v", o.IndexID(), err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		out.Successf("%s: %s", o.IndexID(), done)
	}
	return firstErr
}
