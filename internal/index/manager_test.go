package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/searchapi/internal/errors"
	"github.com/Aman-CERP/searchapi/internal/field"
	"github.com/Aman-CERP/searchapi/internal/mapping"
)

func TestSave_NewIndexTracksAllItems(t *testing.T) {
	// Given: a manager with one datasource
	f := newFixture(t)

	// When: saving a new index
	o, err := f.manager.Save(context.Background(), docsIndex())

	// Then: every item of the datasource is pending
	require.NoError(t, err)
	st := status(t, o)
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 3, st.Changed)

	got, err := f.manager.Index("content")
	require.NoError(t, err)
	assert.Same(t, o, got)
}

func TestSave_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Index)
		code   string
	}{
		{"missing id", func(idx *Index) { idx.ID = "" }, errors.ErrCodeConfigInvalid},
		{"unknown server", func(idx *Index) { idx.Server = "remote" }, errors.ErrCodeUnknownServer},
		{"unknown datasource", func(idx *Index) { idx.Datasources = append(idx.Datasources, "wiki") }, errors.ErrCodeConfigInvalid},
		{"duplicate field", func(idx *Index) { idx.Fields = append(idx.Fields, idx.Fields[0]) }, errors.ErrCodeConfigInvalid},
		{"negative boost", func(idx *Index) { idx.Fields[0].Boost = -1 }, errors.ErrCodeConfigInvalid},
		{"foreign datasource", func(idx *Index) { idx.Fields[0].Datasource = "wiki" }, errors.ErrCodeConfigInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: an invalid index
			f := newFixture(t)
			idx := docsIndex()
			tt.modify(idx)

			// When: saving it
			_, err := f.manager.Save(context.Background(), idx)

			// Then: it is rejected and not registered
			assert.Equal(t, tt.code, errors.GetCode(err))
			assert.Empty(t, f.manager.Indexes())
		})
	}
}

func TestSave_UnchangedIndexKeepsTracking(t *testing.T) {
	// Given: a fully indexed index
	f := newFixture(t)
	ctx := context.Background()
	o, err := f.manager.Save(ctx, docsIndex())
	require.NoError(t, err)
	_, err = o.IndexItems(ctx, -1)
	require.NoError(t, err)

	// When: saving the same configuration again
	again, err := f.manager.Save(ctx, docsIndex())

	// Then: nothing is requeued
	require.NoError(t, err)
	assert.Same(t, o, again)
	assert.Zero(t, status(t, again).Pending())
}

func TestSave_SnapshotSurvivesRestart(t *testing.T) {
	// Given: an indexed index and a restarted manager on the same store
	f := newFixture(t)
	ctx := context.Background()
	o, err := f.manager.Save(ctx, docsIndex())
	require.NoError(t, err)
	_, err = o.IndexItems(ctx, -1)
	require.NoError(t, err)

	restarted := f.newManager(t)

	// When: the unchanged configuration is saved again
	again, err := restarted.Save(ctx, docsIndex())

	// Then: the index is recognised and stays indexed and searchable
	require.NoError(t, err)
	assert.Zero(t, status(t, again).Pending())
	results, err := again.Query().SetKeys("ranking").Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, results.ResultCount())
}

func TestSave_FieldChangeMarksReindex(t *testing.T) {
	// Given: a fully indexed index
	f := newFixture(t)
	ctx := context.Background()
	o, err := f.manager.Save(ctx, docsIndex())
	require.NoError(t, err)
	_, err = o.IndexItems(ctx, -1)
	require.NoError(t, err)

	// When: a field's boost changes
	idx := docsIndex()
	idx.Fields[0].Boost = 8
	o, err = f.manager.Save(ctx, idx)

	// Then: every item is pending again
	require.NoError(t, err)
	assert.Equal(t, 3, status(t, o).Pending())
	title, _ := o.Field("title")
	assert.Equal(t, 8.0, title.Boost)
}

func TestSave_NameChangeKeepsTracking(t *testing.T) {
	// Given: a fully indexed index
	f := newFixture(t)
	ctx := context.Background()
	o, err := f.manager.Save(ctx, docsIndex())
	require.NoError(t, err)
	_, err = o.IndexItems(ctx, -1)
	require.NoError(t, err)

	// When: only its name changes
	idx := docsIndex()
	idx.Name = "Articles"
	o, err = f.manager.Save(ctx, idx)

	// Then: no reindex is needed
	require.NoError(t, err)
	assert.Zero(t, status(t, o).Pending())
	assert.Equal(t, "Articles", o.Index().Name)
}

func TestSave_RemovedDatasourceIsUntracked(t *testing.T) {
	// Given: an index over two datasources
	f := newFixture(t)
	ctx := context.Background()
	wiki := newMemSource("wiki", map[string]map[string]any{"home": {"title": "Home"}})
	f.manager.AddDatasource(wiki)

	idx := docsIndex()
	idx.Datasources = []string{"docs", "wiki"}
	idx.Fields = append(idx.Fields, field.Definition{Key: "wiki_title", Datasource: "wiki", Property: "title"})
	o, err := f.manager.Save(ctx, idx)
	require.NoError(t, err)
	assert.Equal(t, 4, status(t, o).Total)

	// When: the wiki datasource is removed
	o, err = f.manager.Save(ctx, docsIndex())

	// Then: its items are no longer tracked
	require.NoError(t, err)
	st, err := o.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Tracker.Total)
	assert.NotContains(t, st.Datasources, "wiki")
}

func TestSave_AddedDatasourceIsTracked(t *testing.T) {
	// Given: a saved index and a second datasource
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.manager.Save(ctx, docsIndex())
	require.NoError(t, err)
	f.manager.AddDatasource(newMemSource("wiki", map[string]map[string]any{"home": {"title": "Home"}}))

	// When: the datasource is added to the index
	idx := docsIndex()
	idx.Datasources = append(idx.Datasources, "wiki")
	o, err := f.manager.Save(ctx, idx)

	// Then: its items become tracked
	require.NoError(t, err)
	st, err := o.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Datasources["wiki"].Total)
}

func TestSave_DisablingClearsTracking(t *testing.T) {
	// Given: an enabled index
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.manager.Save(ctx, docsIndex())
	require.NoError(t, err)

	// When: it is disabled
	idx := docsIndex()
	idx.Enabled = false
	o, err := f.manager.Save(ctx, idx)

	// Then: no items are tracked
	require.NoError(t, err)
	assert.Zero(t, status(t, o).Total)

	// When: it is enabled again
	o, err = f.manager.Save(ctx, docsIndex())

	// Then: every item is tracked afresh
	require.NoError(t, err)
	assert.Equal(t, 3, status(t, o).Pending())
}

func TestSave_UnknownPropertyFallsBackToString(t *testing.T) {
	// Given: a field on a property the datasource does not declare
	f := newFixture(t)
	idx := docsIndex()
	idx.Fields = append(idx.Fields, field.Definition{Key: "count", Datasource: "docs", Property: "absent"})

	// When: saving it
	o, err := f.manager.Save(context.Background(), idx)

	// Then: the unknown property falls back to a string field and is reported
	require.NoError(t, err)
	def, ok := o.Field("count")
	require.True(t, ok)
	assert.Equal(t, field.String, def.Type)
	assert.Contains(t, o.Warnings(), `field "count": datasource "docs" has no property "absent"`)
}

func TestSave_HooksRunInOrder(t *testing.T) {
	// Given: a manager with custom hooks only
	f := newFixture(t)
	m, err := NewManager(f.store, ManagerOptions{NoDefaultHooks: true})
	require.NoError(t, err)
	m.AddDatasource(f.docs)

	var calls []string
	m.OnBeforeSave(func(_ context.Context, ev *Event) error {
		calls = append(calls, "before")
		assert.Nil(t, ev.Orchestrator)
		assert.True(t, ev.IsNew())
		return nil
	})
	m.OnAfterSave(func(_ context.Context, ev *Event) error {
		calls = append(calls, "after")
		assert.NotNil(t, ev.Orchestrator)
		return nil
	})

	// When: saving an index
	idx := docsIndex()
	idx.Server = ""
	_, err = m.Save(context.Background(), idx)

	// Then: both hooks ran in order
	require.NoError(t, err)
	assert.Equal(t, []string{"before", "after"}, calls)
}

func TestSave_BeforeHookAborts(t *testing.T) {
	// Given: a hook rejecting every save
	f := newFixture(t)
	f.manager.OnBeforeSave(func(context.Context, *Event) error {
		return errors.ConfigError("rejected", nil)
	})

	// When: saving
	_, err := f.manager.Save(context.Background(), docsIndex())

	// Then: the index is not saved
	require.Error(t, err)
	_, err = f.manager.Index("content")
	assert.Equal(t, errors.ErrCodeUnknownIndex, errors.GetCode(err))
}

func TestDelete_RemovesIndex(t *testing.T) {
	// Given: an indexed index
	f := newFixture(t)
	ctx := context.Background()
	o, err := f.manager.Save(ctx, docsIndex())
	require.NoError(t, err)
	_, err = o.IndexItems(ctx, -1)
	require.NoError(t, err)

	// When: deleting it
	require.NoError(t, f.manager.Delete(ctx, "content"))

	// Then: it is gone along with its tracking records
	_, err = f.manager.Index("content")
	assert.Equal(t, errors.ErrCodeUnknownIndex, errors.GetCode(err))
	assert.Zero(t, status(t, o).Total)

	// And: deleting again fails
	assert.Equal(t, errors.ErrCodeUnknownIndex, errors.GetCode(f.manager.Delete(ctx, "content")))
}

func TestSync_DeletesUnconfiguredIndexes(t *testing.T) {
	// Given: two saved indexes
	f := newFixture(t)
	ctx := context.Background()
	other := docsIndex()
	other.ID = "archive"
	require.NoError(t, f.manager.Sync(ctx, []*Index{docsIndex(), other}))
	require.Len(t, f.manager.Indexes(), 2)

	// When: syncing a configuration without the archive
	require.NoError(t, f.manager.Sync(ctx, []*Index{docsIndex()}))

	// Then: only the content index is left
	indexes := f.manager.Indexes()
	require.Len(t, indexes, 1)
	assert.Equal(t, "content", indexes[0].IndexID())
}

func TestTrackItems_IndexDirectly(t *testing.T) {
	// Given: an index that indexes changes directly
	f := newFixture(t)
	ctx := context.Background()
	idx := docsIndex()
	idx.Options.IndexDirectly = true
	o, err := f.manager.Save(ctx, idx)
	require.NoError(t, err)
	_, err = o.IndexItems(ctx, -1)
	require.NoError(t, err)

	// When: a new item is reported
	f.docs.set("5", map[string]any{"title": "Facets", "body": "Counting values"})
	reports, err := f.manager.TrackItemsInserted(ctx, "docs", []string{"5"})

	// Then: it is indexed right away
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, 1, reports[0].Succeeded)
	assert.Zero(t, status(t, o).Pending())
}

func TestTrackItems_QueuesChanges(t *testing.T) {
	// Given: a fully indexed index
	f := newFixture(t)
	ctx := context.Background()
	o, err := f.manager.Save(ctx, docsIndex())
	require.NoError(t, err)
	_, err = o.IndexItems(ctx, -1)
	require.NoError(t, err)

	// When: an item changes and another is deleted
	reports, err := f.manager.TrackItemsUpdated(ctx, "docs", []string{"1"})
	require.NoError(t, err)
	require.NoError(t, f.manager.TrackItemsDeleted(ctx, "docs", []string{"2"}))

	// Then: the change waits for the next run and the deletion is applied
	assert.Empty(t, reports)
	st := status(t, o)
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, 1, st.Pending())
	results, err := o.Query().SetKeys("ranking").Execute(ctx)
	require.NoError(t, err)
	assert.Zero(t, results.ResultCount())
}

func TestTrackItems_UnknownDatasourceIgnored(t *testing.T) {
	// Given: a saved index
	f := newFixture(t)
	_, err := f.manager.Save(context.Background(), docsIndex())
	require.NoError(t, err)

	// When: items of an unrelated datasource are reported
	reports, err := f.manager.TrackItemsInserted(context.Background(), "wiki", []string{"x"})

	// Then: nothing happens
	require.NoError(t, err)
	assert.Empty(t, reports)
}

var _ mapping.Source = (*memSource)(nil)
