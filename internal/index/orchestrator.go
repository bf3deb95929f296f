package index

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/searchapi/internal/backend"
	"github.com/Aman-CERP/searchapi/internal/datasource"
	"github.com/Aman-CERP/searchapi/internal/errors"
	"github.com/Aman-CERP/searchapi/internal/field"
	"github.com/Aman-CERP/searchapi/internal/item"
	"github.com/Aman-CERP/searchapi/internal/mapping"
	"github.com/Aman-CERP/searchapi/internal/processor"
	"github.com/Aman-CERP/searchapi/internal/query"
	"github.com/Aman-CERP/searchapi/internal/tracker"
)

// Defaults for indexing runs.
const (
	DefaultBatchSize = 100
	DefaultLoaders   = 4
	DefaultCronLimit = 50
)

// owner adapts an orchestrator to the tracker's write guard.
type owner struct{ o *Orchestrator }

func (w owner) IndexID() string { return w.o.idx.ID }
func (w owner) Status() bool    { return w.o.idx.Enabled }
func (w owner) ReadOnly() bool  { return w.o.idx.ReadOnly }
func (w owner) IsNew() bool     { return !w.o.saved.Load() }

// Orchestrator runs indexing and searches for one index. It is the schema
// processors and the backend see, and the query.Index queries run against.
type Orchestrator struct {
	idx      *Index
	defs     []field.Definition
	byKey    map[string]field.Definition
	backend  backend.Backend
	sources  []datasource.Datasource
	tracker  *tracker.Tracker
	pipeline *processor.Pipeline
	mapper   *mapping.Mapper
	mapping  *mapping.Mapping
	warnings []string

	batchSize    int
	loaders      int
	queueTimeout time.Duration
	progress     func(Progress)
	logger       *slog.Logger

	saved atomic.Bool
	// mu serializes indexing calls on this index.
	mu sync.Mutex
}

// IndexID returns the index id.
func (o *Orchestrator) IndexID() string { return o.idx.ID }

// Fields returns the resolved field definitions, sorted by key.
func (o *Orchestrator) Fields() []field.Definition { return o.defs }

// Field returns the resolved definition of a field.
func (o *Orchestrator) Field(key string) (field.Definition, bool) {
	d, ok := o.byKey[key]
	return d, ok
}

// Index returns the index configuration. Callers must not modify it.
func (o *Orchestrator) Index() *Index { return o.idx }

// Tracker returns the index's tracker.
func (o *Orchestrator) Tracker() *tracker.Tracker { return o.tracker }

// Backend returns the index's backend, nil when the index has no server.
func (o *Orchestrator) Backend() backend.Backend { return o.backend }

// Pipeline returns the processor pipeline.
func (o *Orchestrator) Pipeline() *processor.Pipeline { return o.pipeline }

// Mapping returns the fields the index's datasources provide.
func (o *Orchestrator) Mapping() *mapping.Mapping { return o.mapping }

// Warnings lists configuration problems found when the index was built.
func (o *Orchestrator) Warnings() []string { return o.warnings }

// Datasources returns the datasources of the index.
func (o *Orchestrator) Datasources() []datasource.Datasource { return o.sources }

// OnProgress sets a callback invoked after every indexing batch.
func (o *Orchestrator) OnProgress(fn func(Progress)) { o.progress = fn }

// Query creates a query against the index using its parse settings.
func (o *Orchestrator) Query() *query.Query {
	return query.New(o, query.Options{
		ParseMode:   o.idx.Options.ParseMode,
		Conjunction: o.idx.Options.Conjunction,
	})
}

// PreprocessQuery runs the pipeline's query preprocessing.
func (o *Orchestrator) PreprocessQuery(q *query.Query) { o.pipeline.PreprocessQuery(q) }

// PostprocessResults runs the pipeline's result postprocessing.
func (o *Orchestrator) PostprocessResults(results *query.ResultSet, q *query.Query) {
	o.pipeline.PostprocessResults(results, q)
}

// Search executes q on the backend.
func (o *Orchestrator) Search(ctx context.Context, q *query.Query) (*query.ResultSet, error) {
	if o.backend == nil {
		return nil, errors.New(errors.ErrCodeNoServer, fmt.Sprintf("index %q has no server", o.idx.ID), nil)
	}
	if !o.idx.Enabled {
		return nil, errors.New(errors.ErrCodeIndexDisabled, fmt.Sprintf("index %q is disabled", o.idx.ID), nil)
	}
	return o.backend.Search(ctx, q)
}

// checkIndexable reports why the index cannot index items, if it cannot.
func (o *Orchestrator) checkIndexable() error {
	switch {
	case !o.idx.Enabled:
		return errors.New(errors.ErrCodeIndexDisabled, fmt.Sprintf("index %q is disabled", o.idx.ID), nil)
	case o.idx.ReadOnly:
		return errors.New(errors.ErrCodeIndexReadOnly, fmt.Sprintf("index %q is read-only", o.idx.ID), nil)
	case o.backend == nil:
		return errors.New(errors.ErrCodeNoServer, fmt.Sprintf("index %q has no valid server", o.idx.ID), nil)
	case len(o.defs) == 0:
		return errors.New(errors.ErrCodeNoFields, fmt.Sprintf("index %q has no fields", o.idx.ID), nil).
			WithSuggestion("Add fields to the index configuration.")
	}
	return nil
}

// writable mirrors the tracker guard for operations that also touch the
// backend.
func (o *Orchestrator) writable() bool {
	return o.idx.Enabled && !o.idx.ReadOnly && o.saved.Load()
}

// IndexItems indexes up to limit pending items: never-indexed items first,
// then the oldest changes. A zero limit uses the index's cron limit, a
// negative one indexes everything pending.
func (o *Orchestrator) IndexItems(ctx context.Context, limit int) (Report, error) {
	if err := o.checkIndexable(); err != nil {
		return Report{Index: o.idx.ID}, err
	}
	if limit == 0 {
		limit = o.idx.Options.CronLimit
		if limit == 0 {
			limit = DefaultCronLimit
		}
	}

	if o.idx.Options.TrackQueued && o.queueTimeout > 0 {
		res, err := o.tracker.RequeueStale(ctx, o.queueTimeout)
		if err != nil {
			o.logger.Warn("requeue_stale_failed",
				slog.String("index", o.idx.ID),
				slog.String("error", err.Error()))
		} else if res.Rows > 0 {
			o.logger.Info("requeued_stale_items",
				slog.String("index", o.idx.ID),
				slog.Int64("items", res.Rows))
		}
	}

	ids, err := o.tracker.ChangedIDs(ctx, limit)
	if err != nil {
		return Report{Index: o.idx.ID}, err
	}
	return o.IndexSpecificItems(ctx, ids)
}

// IndexSpecificItems indexes the given items regardless of their tracking
// state. Items are processed in batches; one bad item never fails the call.
func (o *Orchestrator) IndexSpecificItems(ctx context.Context, ids []item.ID) (Report, error) {
	report := Report{Index: o.idx.ID}
	if err := o.checkIndexable(); err != nil {
		return report, err
	}
	if len(ids) == 0 {
		return report, nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	start := time.Now()
	for offset := 0; offset < len(ids); offset += o.batchSize {
		end := min(offset+o.batchSize, len(ids))
		batch, err := o.indexBatch(ctx, ids[offset:end])
		report.add(batch)
		if o.progress != nil {
			o.progress(Progress{Index: o.idx.ID, Done: end, Total: len(ids), Last: batch})
		}
		if err != nil {
			report.Duration = time.Since(start)
			report.finish()
			return report, err
		}
	}
	report.Duration = time.Since(start)
	report.finish()

	o.logger.Info("index_items_done",
		slog.String("index", o.idx.ID),
		slog.Int("total", report.Total),
		slog.Int("succeeded", report.Succeeded),
		slog.Int("filtered", report.Filtered),
		slog.Int("rejected", report.Rejected),
		slog.Int("missing", report.Missing),
		slog.Duration("duration", report.Duration))
	return report, nil
}

func (o *Orchestrator) indexBatch(ctx context.Context, ids []item.ID) (Report, error) {
	report := Report{Index: o.idx.ID, Total: len(ids)}
	queued := o.idx.Options.TrackQueued
	if queued {
		if _, err := o.tracker.TrackQueued(ctx, ids); err != nil {
			o.logger.Warn("track_queued_failed",
				slog.String("index", o.idx.ID),
				slog.String("error", err.Error()))
		}
	}

	loaded, failed, err := o.load(ctx, ids)
	if err != nil {
		o.requeue(ctx, ids, queued)
		return report, err
	}

	var (
		items    []*field.Item
		rejected []item.ID
		missing  []item.ID
	)
	rejected = append(rejected, failed...)
	failedSet := make(map[item.ID]bool, len(failed))
	for _, id := range failed {
		failedSet[id] = true
	}
	for _, id := range ids {
		if failedSet[id] {
			continue
		}
		obj, ok := loaded[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		it, err := o.mapper.Extract(id, obj, o.defs)
		if err != nil {
			attrs := append([]any{slog.String("index", o.idx.ID)}, errors.LogAttrs(err)...)
			o.logger.Warn("item_extraction_failed", attrs...)
			rejected = append(rejected, id)
			continue
		}
		items = append(items, it)
	}

	if len(missing) > 0 {
		o.removeMissing(ctx, missing)
		report.Missing = len(missing)
	}

	kept, dropped := o.pipeline.AlterItems(items)
	var filtered []item.ID
	for _, it := range dropped {
		filtered = append(filtered, it.ID)
	}
	if len(filtered) > 0 {
		if err := o.backend.DeleteItems(ctx, o, filtered); err != nil {
			o.logger.Warn("delete_filtered_failed",
				slog.String("index", o.idx.ID),
				slog.String("error", err.Error()))
		}
	}

	var indexed []item.ID
	if len(kept) > 0 {
		o.pipeline.PreprocessItems(kept)
		indexed, err = o.backend.IndexItems(ctx, o, kept)
		if err != nil {
			o.requeue(ctx, ids, queued)
			report.Rejected = len(ids) - report.Missing
			return report, errors.New(errors.ErrCodeIndexFailed,
				fmt.Sprintf("index %q: backend failed to index %d item(s)", o.idx.ID, len(kept)), err)
		}
	}

	confirmed := make(map[item.ID]bool, len(indexed))
	for _, id := range indexed {
		confirmed[id] = true
	}
	for _, it := range kept {
		if !confirmed[it.ID] {
			rejected = append(rejected, it.ID)
		}
	}

	done := append(append([]item.ID(nil), indexed...), filtered...)
	var trackErr error
	if len(done) > 0 {
		if _, err := o.tracker.TrackIndexed(ctx, done); err != nil {
			trackErr = err
		}
	}
	if len(rejected) > 0 {
		sort.Slice(rejected, func(i, j int) bool { return rejected[i].String() < rejected[j].String() })
		o.requeue(ctx, rejected, queued)
	}

	report.Succeeded = len(indexed)
	report.Filtered = len(filtered)
	report.Rejected = len(rejected)
	report.RejectedIDs = rejected
	return report, trackErr
}

// load fetches ids from their datasources concurrently. Ids of an unknown
// or failing datasource are returned as failed.
func (o *Orchestrator) load(ctx context.Context, ids []item.ID) (map[item.ID]map[string]any, []item.ID, error) {
	groups := item.GroupByDatasource(ids)
	names := make([]string, 0, len(groups))
	for ds := range groups {
		names = append(names, ds)
	}
	sort.Strings(names)

	type result struct {
		objects map[string]map[string]any
		failed  bool
	}
	results := make([]result, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.loaders)
	for i, name := range names {
		ds := o.source(name)
		if ds == nil {
			o.logger.Warn("unknown_datasource",
				slog.String("index", o.idx.ID),
				slog.String("datasource", name))
			results[i].failed = true
			continue
		}
		g.Go(func() error {
			objs, err := ds.LoadMultiple(gctx, groups[name])
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				attrs := append([]any{slog.String("index", o.idx.ID), slog.String("datasource", name)}, errors.LogAttrs(err)...)
				o.logger.Warn("datasource_load_failed", attrs...)
				results[i].failed = true
				return nil
			}
			results[i].objects = objs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	loaded := make(map[item.ID]map[string]any, len(ids))
	var failed []item.ID
	for i, name := range names {
		if results[i].failed {
			failed = append(failed, item.FromRaw(name, groups[name])...)
			continue
		}
		for raw, obj := range results[i].objects {
			loaded[item.New(name, raw)] = obj
		}
	}
	return loaded, failed, nil
}

func (o *Orchestrator) source(id string) datasource.Datasource {
	for _, ds := range o.sources {
		if ds.ID() == id {
			return ds
		}
	}
	return nil
}

// requeue puts ids back in line after a failed attempt.
func (o *Orchestrator) requeue(ctx context.Context, ids []item.ID, queued bool) {
	if !queued || len(ids) == 0 {
		return
	}
	if _, err := o.tracker.TrackUpdate(ctx, ids, true); err != nil {
		o.logger.Warn("requeue_failed",
			slog.String("index", o.idx.ID),
			slog.Int("items", len(ids)),
			slog.String("error", err.Error()))
	}
}

func (o *Orchestrator) removeMissing(ctx context.Context, ids []item.ID) {
	o.logger.Info("items_missing",
		slog.String("index", o.idx.ID),
		slog.Int("items", len(ids)))
	if _, err := o.tracker.TrackDelete(ctx, ids); err != nil {
		o.logger.Warn("untrack_missing_failed",
			slog.String("index", o.idx.ID),
			slog.String("error", err.Error()))
	}
	if err := o.backend.DeleteItems(ctx, o, ids); err != nil {
		o.logger.Warn("delete_missing_failed",
			slog.String("index", o.idx.ID),
			slog.String("error", err.Error()))
	}
}

// TrackAll starts tracking every item of every datasource of the index.
func (o *Orchestrator) TrackAll(ctx context.Context) (int, error) {
	total := 0
	for _, ds := range o.sources {
		n, err := o.TrackDatasource(ctx, ds.ID())
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// TrackDatasource starts tracking every item of one datasource. It returns
// the number of ids enumerated.
func (o *Orchestrator) TrackDatasource(ctx context.Context, id string) (int, error) {
	ds := o.source(id)
	if ds == nil {
		return 0, errors.ConfigError(fmt.Sprintf("index %q does not use datasource %q", o.idx.ID, id), nil)
	}
	raw, err := ds.ItemIDs(ctx)
	if err != nil {
		return 0, err
	}
	res, err := o.tracker.TrackInsert(ctx, item.FromRaw(id, raw))
	if err != nil {
		return len(raw), err
	}
	o.logger.Info("datasource_tracked",
		slog.String("index", o.idx.ID),
		slog.String("datasource", id),
		slog.Int("items", len(raw)),
		slog.Int64("inserted", res.Rows),
		slog.Bool("skipped", res.Skipped))
	return len(raw), nil
}

// Reindex marks every tracked item for reindexing. Indexed data stays
// searchable until it is replaced.
func (o *Orchestrator) Reindex(ctx context.Context) error {
	if err := o.checkWritable(); err != nil {
		return err
	}
	_, err := o.tracker.MarkAllChanged(ctx)
	return err
}

// Clear deletes all indexed data and marks every item for reindexing.
func (o *Orchestrator) Clear(ctx context.Context) error {
	if err := o.checkWritable(); err != nil {
		return err
	}
	if o.backend != nil {
		if err := o.backend.DeleteAllItems(ctx, o, ""); err != nil {
			return err
		}
	}
	_, err := o.tracker.MarkAllChanged(ctx)
	return err
}

// RebuildTracking drops all tracking records and tracks the datasources'
// current items afresh.
func (o *Orchestrator) RebuildTracking(ctx context.Context) (int, error) {
	if err := o.checkWritable(); err != nil {
		return 0, err
	}
	if _, err := o.tracker.Clear(ctx); err != nil {
		return 0, err
	}
	return o.TrackAll(ctx)
}

func (o *Orchestrator) checkWritable() error {
	switch {
	case !o.idx.Enabled:
		return errors.New(errors.ErrCodeIndexDisabled, fmt.Sprintf("index %q is disabled", o.idx.ID), nil)
	case o.idx.ReadOnly:
		return errors.New(errors.ErrCodeIndexReadOnly, fmt.Sprintf("index %q is read-only", o.idx.ID), nil)
	}
	return nil
}

// Status reports the tracking state of the index.
func (o *Orchestrator) Status(ctx context.Context) (Status, error) {
	st := Status{
		Index:    o.idx.ID,
		Name:     o.idx.Name,
		Server:   o.idx.Server,
		Enabled:  o.idx.Enabled,
		ReadOnly: o.idx.ReadOnly,
		Warnings: o.warnings,
	}
	total, err := o.tracker.Status(ctx)
	if err != nil {
		return st, err
	}
	st.Tracker = total
	st.Datasources, err = o.tracker.StatusByDatasource(ctx)
	return st, err
}
