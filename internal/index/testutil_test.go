package index

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/searchapi/internal/backend"
	"github.com/Aman-CERP/searchapi/internal/backend/bleveindex"
	"github.com/Aman-CERP/searchapi/internal/errors"
	"github.com/Aman-CERP/searchapi/internal/field"
	"github.com/Aman-CERP/searchapi/internal/item"
	"github.com/Aman-CERP/searchapi/internal/mapping"
	"github.com/Aman-CERP/searchapi/internal/processor/builtin"
	"github.com/Aman-CERP/searchapi/internal/tracker"
)

// memSource is an in-memory datasource.
type memSource struct {
	id    string
	mu    sync.Mutex
	items map[string]map[string]any
	fail  bool
}

func newMemSource(id string, items map[string]map[string]any) *memSource {
	return &memSource{id: id, items: items}
}

func (s *memSource) ID() string   { return s.id }
func (s *memSource) Type() string { return "memory" }

func (s *memSource) Properties() []mapping.Property {
	return []mapping.Property{
		{Key: "title", Type: "string"},
		{Key: "body", Type: "text"},
		{Key: "category", Type: "string"},
		{Key: "year", Type: "integer"},
	}
}

func (s *memSource) ItemIDs(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *memSource) LoadMultiple(_ context.Context, ids []string) (map[string]map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, errors.New(errors.ErrCodeDatasource, "source unavailable", nil)
	}
	out := make(map[string]map[string]any, len(ids))
	for _, id := range ids {
		if obj, ok := s.items[id]; ok {
			out[id] = obj
		}
	}
	return out, nil
}

func (s *memSource) set(id string, obj map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[id] = obj
}

func (s *memSource) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
}

func sampleItems() map[string]map[string]any {
	return map[string]map[string]any{
		"1": {"title": "Search basics", "body": "How indexing works", "category": "public", "year": 2020},
		"2": {"title": "Ranking", "body": "Search ranking and boosts", "category": "public", "year": 2022},
		"3": {"title": "Internal notes", "body": "Not for everyone", "category": "private", "year": 2024},
	}
}

type fixture struct {
	store   *tracker.Store
	manager *Manager
	backend *bleveindex.Backend
	docs    *memSource
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := tracker.Open(tracker.Options{Retry: &errors.RetryConfig{MaxRetries: 0}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	b, err := bleveindex.New(backend.Config{ServerID: "local"})
	require.NoError(t, err)

	f := &fixture{store: store, backend: b, docs: newMemSource("docs", sampleItems())}
	f.manager = f.newManager(t)
	t.Cleanup(func() { _ = b.Close() })
	return f
}

// newManager creates a manager over the fixture's store, as a restarted
// process would.
func (f *fixture) newManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(f.store, ManagerOptions{Processors: builtin.NewRegistry(), BatchSize: 2})
	require.NoError(t, err)
	m.AddServer(Server{ID: "local", Name: "Local", Backend: bleveindex.ID}, f.backend)
	m.AddDatasource(f.docs)
	return m
}

func docsIndex() *Index {
	return &Index{
		ID:          "content",
		Name:        "Content",
		Server:      "local",
		Enabled:     true,
		Datasources: []string{"docs"},
		Fields: []field.Definition{
			{Key: "title", Datasource: "docs", Property: "title", Type: field.Text, Boost: 5},
			{Key: "body", Datasource: "docs", Property: "body"},
			{Key: "category", Datasource: "docs", Property: "category"},
			{Key: "year", Datasource: "docs", Property: "year"},
		},
		Options: Options{CronLimit: -1},
	}
}

func status(t *testing.T, o *Orchestrator) tracker.Status {
	t.Helper()
	st, err := o.Tracker().Status(context.Background())
	require.NoError(t, err)
	return st
}

func docID(raw string) item.ID { return item.New("docs", raw) }
