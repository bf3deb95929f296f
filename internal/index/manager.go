package index

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Aman-CERP/searchapi/internal/backend"
	"github.com/Aman-CERP/searchapi/internal/datasource"
	"github.com/Aman-CERP/searchapi/internal/errors"
	"github.com/Aman-CERP/searchapi/internal/field"
	"github.com/Aman-CERP/searchapi/internal/item"
	"github.com/Aman-CERP/searchapi/internal/mapping"
	"github.com/Aman-CERP/searchapi/internal/processor"
	"github.com/Aman-CERP/searchapi/internal/tracker"
)

// fallbackType is used for fields whose type the backend cannot store.
const fallbackType = field.String

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	Processors *processor.Registry
	Mapper     *mapping.Mapper
	Logger     *slog.Logger

	// BatchSize is the number of items loaded and indexed together.
	BatchSize int
	// Loaders bounds the datasources loaded concurrently.
	Loaders int
	// QueueTimeout is how long an item may stay queued before it is
	// considered abandoned and requeued. Zero disables requeueing.
	QueueTimeout time.Duration

	// NoDefaultHooks leaves out validation and backend/tracker syncing.
	NoDefaultHooks bool
	Clock          func() time.Time
}

type serverEntry struct {
	server  Server
	backend backend.Backend
}

// Manager owns every index of a process. Saving an index runs the
// lifecycle hooks that keep its server and tracking records in line with
// the configuration.
type Manager struct {
	store     *tracker.Store
	snapshots *snapshots
	procs     *processor.Registry
	mapper    *mapping.Mapper
	logger    *slog.Logger
	hooks     hooks

	batchSize    int
	loaders      int
	queueTimeout time.Duration

	mu          sync.RWMutex
	servers     map[string]serverEntry
	datasources map[string]datasource.Datasource
	indexes     map[string]*Orchestrator
}

// NewManager creates a manager persisting index snapshots next to the
// tracking records of store.
func NewManager(store *tracker.Store, opts ManagerOptions) (*Manager, error) {
	if store == nil {
		return nil, errors.InternalError("index manager requires a tracker store", nil)
	}
	snaps, err := newSnapshots(store.DB(), opts.Clock)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	procs := opts.Processors
	if procs == nil {
		procs = processor.NewRegistry()
	}
	mapper := opts.Mapper
	if mapper == nil {
		mapper = mapping.NewMapper(mapping.NewCache(mapping.DefaultCacheSize), logger)
	}
	m := &Manager{
		store:        store,
		snapshots:    snaps,
		procs:        procs,
		mapper:       mapper,
		logger:       logger,
		batchSize:    opts.BatchSize,
		loaders:      opts.Loaders,
		queueTimeout: opts.QueueTimeout,
		servers:      make(map[string]serverEntry),
		datasources:  make(map[string]datasource.Datasource),
		indexes:      make(map[string]*Orchestrator),
	}
	if m.batchSize <= 0 {
		m.batchSize = DefaultBatchSize
	}
	if m.loaders <= 0 {
		m.loaders = DefaultLoaders
	}
	if !opts.NoDefaultHooks {
		m.registerDefaultHooks()
	}
	return m, nil
}

// AddServer registers a server and its backend.
func (m *Manager) AddServer(srv Server, b backend.Backend) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.servers[srv.ID] = serverEntry{server: srv, backend: b}
}

// AddDatasource registers a datasource.
func (m *Manager) AddDatasource(ds datasource.Datasource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.datasources[ds.ID()] = ds
}

// Servers returns the registered servers sorted by id.
func (m *Manager) Servers() []Server {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Server, 0, len(m.servers))
	for _, e := range m.servers {
		out = append(out, e.server)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Manager) server(id string) (Server, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.servers[id]
	return e.server, ok
}

func (m *Manager) backend(id string) (backend.Backend, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.servers[id]
	if !ok || e.backend == nil {
		return nil, false
	}
	return e.backend, true
}

func (m *Manager) datasource(id string) (datasource.Datasource, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ds, ok := m.datasources[id]
	return ds, ok
}

// Index returns the orchestrator of a saved index.
func (m *Manager) Index(id string) (*Orchestrator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.indexes[id]
	if !ok {
		return nil, errors.New(errors.ErrCodeUnknownIndex, fmt.Sprintf("unknown index %q", id), nil)
	}
	return o, nil
}

// Indexes returns every saved index sorted by id.
func (m *Manager) Indexes() []*Orchestrator {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Orchestrator, 0, len(m.indexes))
	for _, o := range m.indexes {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IndexID() < out[j].IndexID() })
	return out
}

// IndexesFor returns the indexes covering datasource ds.
func (m *Manager) IndexesFor(ds string) []*Orchestrator {
	var out []*Orchestrator
	for _, o := range m.Indexes() {
		if o.idx.HasDatasource(ds) {
			out = append(out, o)
		}
	}
	return out
}

// build creates an orchestrator for idx. Field definitions without a type
// take the one the mapping suggests; types the backend cannot store fall
// back to string.
func (m *Manager) build(idx *Index) *Orchestrator {
	o := &Orchestrator{
		idx:          idx,
		mapper:       m.mapper,
		batchSize:    m.batchSize,
		loaders:      m.loaders,
		queueTimeout: m.queueTimeout,
		logger:       m.logger,
	}
	if idx.Enabled && idx.Server != "" {
		if b, ok := m.backend(idx.Server); ok {
			o.backend = b
		}
	}

	sources := make([]mapping.Source, 0, len(idx.Datasources))
	for _, id := range idx.Datasources {
		if ds, ok := m.datasource(id); ok {
			o.sources = append(o.sources, ds)
			sources = append(sources, ds)
		}
	}
	o.mapping = m.mapper.Map(idx.ID, idx.AdditionalFields, sources...)

	defs := make([]field.Definition, 0, len(idx.Fields))
	for _, def := range idx.Fields {
		if def.Property == "" {
			def.Property = def.Key
		}
		if def.Label == "" {
			def.Label = def.Key
		}
		if def.Type == "" {
			if e, ok := o.mapping.Lookup(def.Datasource, def.Property); ok {
				def.Type = e.Type
			} else {
				def.Type = fallbackType
			}
		}
		if o.backend != nil && !o.backend.SupportsDataType(def.Type.Base()) {
			o.warnings = append(o.warnings, fmt.Sprintf("field %q: type %q is not supported by server %q, using %q",
				def.Key, def.Type.Base(), idx.Server, fallbackType))
			def.Type = def.Type.WithBase(fallbackType)
		}
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Key < defs[j].Key })
	o.defs = defs
	o.byKey = make(map[string]field.Definition, len(defs))
	for _, d := range defs {
		o.byKey[d.Key] = d
	}

	o.warnings = append(o.warnings, o.mapping.Check(defs)...)
	pipeline, skipped := processor.Build(m.procs, o, idx.Processors, o.logger)
	for _, err := range skipped {
		o.warnings = append(o.warnings, err.Error())
	}
	o.pipeline = pipeline
	o.tracker = m.store.For(owner{o})
	return o
}

// Save stores idx and runs the lifecycle hooks. An unchanged index is only
// reattached to its server.
func (m *Manager) Save(ctx context.Context, idx *Index) (*Orchestrator, error) {
	idx = idx.Clone()
	if idx.Name == "" {
		idx.Name = idx.ID
	}
	prev, found, err := m.snapshots.load(ctx, idx.ID)
	if err != nil {
		return nil, err
	}
	if !found {
		prev = nil
	}

	if prev != nil && equalYAML(prev, idx) {
		m.mu.RLock()
		current, attached := m.indexes[idx.ID]
		m.mu.RUnlock()
		if attached {
			return current, nil
		}
		o := m.build(idx)
		o.saved.Store(true)
		if err := m.attach(ctx, o); err != nil {
			return nil, err
		}
		return o, nil
	}

	ev := &Event{Manager: m, Index: idx, Original: prev}
	for _, h := range m.hooks.beforeSave {
		if err := h(ctx, ev); err != nil {
			return nil, err
		}
	}

	o := m.build(idx)
	if err := m.snapshots.save(ctx, idx); err != nil {
		return nil, err
	}
	o.saved.Store(true)
	if err := m.attach(ctx, o); err != nil {
		return nil, err
	}

	ev.Orchestrator = o
	for _, h := range m.hooks.afterSave {
		if err := h(ctx, ev); err != nil {
			return o, err
		}
	}
	m.logger.Info("index_saved",
		slog.String("index", idx.ID),
		slog.Bool("new", ev.IsNew()),
		slog.Bool("reindex", ev.Reindex))
	return o, nil
}

// attach opens the index on its backend and makes it the current
// orchestrator for its id.
func (m *Manager) attach(ctx context.Context, o *Orchestrator) error {
	if o.backend != nil {
		if err := o.backend.AddIndex(ctx, o); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.indexes[o.idx.ID] = o
	m.mu.Unlock()
	return nil
}

// Delete removes an index, its backend data and its tracking records.
func (m *Manager) Delete(ctx context.Context, id string) error {
	prev, found, err := m.snapshots.load(ctx, id)
	if err != nil {
		return err
	}
	m.mu.RLock()
	o, attached := m.indexes[id]
	m.mu.RUnlock()
	if !found && !attached {
		return errors.New(errors.ErrCodeUnknownIndex, fmt.Sprintf("unknown index %q", id), nil)
	}
	if !found {
		prev = o.idx
	}
	if o == nil {
		o = m.build(prev)
		o.saved.Store(true)
	}

	ev := &Event{Manager: m, Index: prev, Original: prev, Orchestrator: o}
	for _, h := range m.hooks.beforeDelete {
		if err := h(ctx, ev); err != nil {
			return err
		}
	}
	if err := m.snapshots.delete(ctx, id); err != nil {
		return err
	}
	m.mapper.Cache().Invalidate(id)
	m.mu.Lock()
	delete(m.indexes, id)
	m.mu.Unlock()
	m.logger.Info("index_deleted", slog.String("index", id))
	return nil
}

// Sync saves every index in indexes and deletes saved indexes that are no
// longer configured.
func (m *Manager) Sync(ctx context.Context, indexes []*Index) error {
	keep := make(map[string]bool, len(indexes))
	for _, idx := range indexes {
		keep[idx.ID] = true
		if _, err := m.Save(ctx, idx); err != nil {
			return err
		}
	}
	ids, err := m.snapshots.ids(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if keep[id] {
			continue
		}
		if err := m.Delete(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// TrackItemsInserted records new items of datasource ds in every index
// covering it.
func (m *Manager) TrackItemsInserted(ctx context.Context, ds string, raw []string) ([]Report, error) {
	return m.track(ctx, ds, raw, func(o *Orchestrator, ids []item.ID) error {
		_, err := o.tracker.TrackInsert(ctx, ids)
		return err
	})
}

// TrackItemsUpdated marks changed items of datasource ds for reindexing.
func (m *Manager) TrackItemsUpdated(ctx context.Context, ds string, raw []string) ([]Report, error) {
	return m.track(ctx, ds, raw, func(o *Orchestrator, ids []item.ID) error {
		_, err := o.tracker.TrackUpdate(ctx, ids, false)
		return err
	})
}

// TrackItemsDeleted removes deleted items of datasource ds from every index
// covering it.
func (m *Manager) TrackItemsDeleted(ctx context.Context, ds string, raw []string) error {
	if len(raw) == 0 {
		return nil
	}
	ids := item.FromRaw(ds, raw)
	for _, o := range m.IndexesFor(ds) {
		if _, err := o.tracker.TrackDelete(ctx, ids); err != nil {
			return err
		}
		if o.backend != nil && o.writable() {
			if err := o.backend.DeleteItems(ctx, o, ids); err != nil {
				return err
			}
		}
	}
	return nil
}

// track applies fn to every index covering ds. Indexes configured to
// index directly index the items right away.
func (m *Manager) track(ctx context.Context, ds string, raw []string,
	fn func(o *Orchestrator, ids []item.ID) error) ([]Report, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	ids := item.FromRaw(ds, raw)
	var reports []Report
	for _, o := range m.IndexesFor(ds) {
		if err := fn(o, ids); err != nil {
			return reports, err
		}
		if !o.idx.Options.IndexDirectly || o.checkIndexable() != nil {
			continue
		}
		r, err := o.IndexSpecificItems(ctx, ids)
		reports = append(reports, r)
		if err != nil {
			return reports, err
		}
	}
	return reports, nil
}

// Close closes every backend.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var first error
	for id, e := range m.servers {
		if e.backend == nil {
			continue
		}
		if err := e.backend.Close(); err != nil && first == nil {
			first = errors.StorageError(fmt.Sprintf("failed to close server %q", id), err)
		}
	}
	return first
}
