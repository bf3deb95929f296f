package tracker

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/searchapi/internal/errors"
	"github.com/Aman-CERP/searchapi/internal/item"
)

type stubOwner struct {
	id       string
	enabled  bool
	readOnly bool
	isNew    bool
}

func (o *stubOwner) IndexID() string { return o.id }
func (o *stubOwner) Status() bool    { return o.enabled }
func (o *stubOwner) ReadOnly() bool  { return o.readOnly }
func (o *stubOwner) IsNew() bool     { return o.isNew }

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) set(sec int64)  { c.t = time.Unix(sec, 0) }

func newStore(t *testing.T, opts Options) (*Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Unix(1000, 0)}
	opts.Clock = clock.now
	if opts.Retry == nil {
		opts.Retry = &errors.RetryConfig{MaxRetries: 0}
	}
	s, err := Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, clock
}

func ids(raw ...string) []item.ID {
	out := make([]item.ID, len(raw))
	for i, r := range raw {
		out[i] = item.New("ds", r)
	}
	return out
}

func TestOpen_UnknownDriver(t *testing.T) {
	// Given: an unsupported driver name
	// When: opening the store
	_, err := Open(Options{Driver: "postgres"})

	// Then: a configuration error is returned
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
}

func TestTrackInsert_Idempotent(t *testing.T) {
	// Given: an enabled index with two tracked items, one indexed
	s, _ := newStore(t, Options{})
	tr := s.For(&stubOwner{id: "main", enabled: true})
	ctx := context.Background()

	_, err := tr.TrackInsert(ctx, ids("a", "b"))
	require.NoError(t, err)
	_, err = tr.TrackIndexed(ctx, ids("a"))
	require.NoError(t, err)

	// When: inserting the same ids again plus a new one
	res, err := tr.TrackInsert(ctx, ids("a", "b", "c"))

	// Then: only the new id is added and existing states are unchanged
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Rows)
	st, err := tr.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, Status{Total: 3, Changed: 2, Indexed: 1}, st)
}

func TestTracker_GuardSkipsWrites(t *testing.T) {
	owners := map[string]*stubOwner{
		"disabled":  {id: "x", enabled: false},
		"read-only": {id: "x", enabled: true, readOnly: true},
		"new":       {id: "x", enabled: true, isNew: true},
	}
	for name, owner := range owners {
		t.Run(name, func(t *testing.T) {
			// Given: an index that may not be written to
			s, _ := newStore(t, Options{})
			tr := s.For(owner)

			// When: tracking items
			res, err := tr.TrackInsert(context.Background(), ids("a"))

			// Then: the write is skipped without error
			require.NoError(t, err)
			assert.True(t, res.Skipped)
			st, err := tr.Status(context.Background())
			require.NoError(t, err)
			assert.Zero(t, st.Total)
		})
	}
}

func TestTrackUpdate_QueueProtection(t *testing.T) {
	// Given: one queued and one indexed item
	s, _ := newStore(t, Options{})
	tr := s.For(&stubOwner{id: "main", enabled: true})
	ctx := context.Background()

	_, err := tr.TrackInsert(ctx, ids("q", "i"))
	require.NoError(t, err)
	_, err = tr.TrackQueued(ctx, ids("q"))
	require.NoError(t, err)
	_, err = tr.TrackIndexed(ctx, ids("i"))
	require.NoError(t, err)

	// When: both change without dequeue
	_, err = tr.TrackUpdate(ctx, ids("q", "i"), false)
	require.NoError(t, err)

	// Then: the queued item stays queued
	rec, ok, err := tr.Get(ctx, item.New("ds", "q"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Queued, rec.State)
	rec, _, err = tr.Get(ctx, item.New("ds", "i"))
	require.NoError(t, err)
	assert.Equal(t, Changed, rec.State)

	// When: updating again with dequeue
	_, err = tr.TrackUpdate(ctx, ids("q"), true)
	require.NoError(t, err)

	// Then: the queued item is changed
	rec, _, err = tr.Get(ctx, item.New("ds", "q"))
	require.NoError(t, err)
	assert.Equal(t, Changed, rec.State)
	assert.True(t, rec.QueuedAt.IsZero())
}

func TestTrackUpdate_KeepsTimestampOfChangedItems(t *testing.T) {
	// Given: an item changed at t=1000
	s, clock := newStore(t, Options{})
	tr := s.For(&stubOwner{id: "main", enabled: true})
	ctx := context.Background()
	_, err := tr.TrackInsert(ctx, ids("a"))
	require.NoError(t, err)

	// When: it changes again later
	clock.set(2000)
	_, err = tr.TrackUpdate(ctx, ids("a"), true)
	require.NoError(t, err)

	// Then: it keeps its place in line
	rec, _, err := tr.Get(ctx, item.New("ds", "a"))
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1000, 0).UnixMilli(), rec.Changed.UnixMilli())
}

func TestChangedIDs_Fairness(t *testing.T) {
	// Given: B was indexed once and changed at t=2, A and C were never indexed
	s, clock := newStore(t, Options{})
	tr := s.For(&stubOwner{id: "main", enabled: true})
	ctx := context.Background()

	clock.set(0)
	_, err := tr.TrackInsert(ctx, ids("B"))
	require.NoError(t, err)
	_, err = tr.TrackIndexed(ctx, ids("B"))
	require.NoError(t, err)

	clock.set(1)
	_, err = tr.TrackInsert(ctx, ids("A"))
	require.NoError(t, err)
	clock.set(2)
	_, err = tr.TrackUpdate(ctx, ids("B"), false)
	require.NoError(t, err)
	clock.set(3)
	_, err = tr.TrackInsert(ctx, ids("C"))
	require.NoError(t, err)

	// When: asking for changed items
	got, err := tr.ChangedIDs(ctx, -1)

	// Then: never-indexed items come first, oldest change first
	require.NoError(t, err)
	assert.Equal(t, []string{"ds/A", "ds/C", "ds/B"}, item.Strings(got))

	limited, err := tr.ChangedIDs(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	none, err := tr.ChangedIDs(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestChangedIDsIn_FiltersDatasource(t *testing.T) {
	// Given: items from two datasources
	s, _ := newStore(t, Options{})
	tr := s.For(&stubOwner{id: "main", enabled: true})
	ctx := context.Background()
	_, err := tr.TrackInsert(ctx, []item.ID{item.New("a", "1"), item.New("b", "1"), item.New("a", "2")})
	require.NoError(t, err)

	// When: asking for one datasource
	got, err := tr.ChangedIDsIn(ctx, "a", -1)

	// Then: only its items are returned
	require.NoError(t, err)
	assert.Equal(t, []string{"a/1", "a/2"}, item.Strings(got))

	byDS, err := tr.StatusByDatasource(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, byDS["a"].Changed)
	assert.Equal(t, 1, byDS["b"].Total)
}

func TestTracker_IndexesAreIsolated(t *testing.T) {
	// Given: two indexes sharing a store
	s, _ := newStore(t, Options{})
	one := s.For(&stubOwner{id: "one", enabled: true})
	two := s.For(&stubOwner{id: "two", enabled: true})
	ctx := context.Background()
	_, err := one.TrackInsert(ctx, ids("a", "b"))
	require.NoError(t, err)
	_, err = two.TrackInsert(ctx, ids("a"))
	require.NoError(t, err)

	// When: clearing one of them
	n, err := one.Clear(ctx)

	// Then: the other keeps its records
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	st, err := two.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Total)
}

func TestMarkAllChanged(t *testing.T) {
	// Given: one item in every state
	s, clock := newStore(t, Options{})
	tr := s.For(&stubOwner{id: "main", enabled: true})
	ctx := context.Background()
	_, err := tr.TrackInsert(ctx, ids("c", "q", "i"))
	require.NoError(t, err)
	_, err = tr.TrackQueued(ctx, ids("q"))
	require.NoError(t, err)
	_, err = tr.TrackIndexed(ctx, ids("i"))
	require.NoError(t, err)

	// When: marking everything changed
	clock.set(5000)
	res, err := tr.MarkAllChanged(ctx)

	// Then: every item is pending and the changed one kept its timestamp
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Rows)
	st, err := tr.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, Status{Total: 3, Changed: 3}, st)
	rec, _, err := tr.Get(ctx, item.New("ds", "c"))
	require.NoError(t, err)
	assert.Equal(t, int64(1000), rec.Changed.Unix())
}

func TestRequeueStale(t *testing.T) {
	// Given: an item queued at t=1000
	s, clock := newStore(t, Options{})
	tr := s.For(&stubOwner{id: "main", enabled: true})
	ctx := context.Background()
	_, err := tr.TrackInsert(ctx, ids("a"))
	require.NoError(t, err)
	_, err = tr.TrackQueued(ctx, ids("a"))
	require.NoError(t, err)

	// When: requeueing before the timeout
	clock.set(1030)
	res, err := tr.RequeueStale(ctx, time.Minute)
	require.NoError(t, err)
	assert.Zero(t, res.Rows)

	// When: requeueing after the timeout
	clock.set(1100)
	res, err = tr.RequeueStale(ctx, time.Minute)

	// Then: the item is changed again
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Rows)
	rec, _, err := tr.Get(ctx, item.New("ds", "a"))
	require.NoError(t, err)
	assert.Equal(t, Changed, rec.State)
}

func TestTrackDelete_AndDeleteDatasource(t *testing.T) {
	// Given: items of two datasources
	s, _ := newStore(t, Options{})
	tr := s.For(&stubOwner{id: "main", enabled: true})
	ctx := context.Background()
	_, err := tr.TrackInsert(ctx, []item.ID{item.New("a", "1"), item.New("a", "2"), item.New("b", "1")})
	require.NoError(t, err)

	// When: deleting one item and then one datasource
	res, err := tr.TrackDelete(ctx, []item.ID{item.New("a", "1"), item.New("a", "missing")})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Rows)
	_, err = tr.DeleteDatasource(ctx, "b")
	require.NoError(t, err)

	// Then: only a/2 is left
	got, err := tr.ChangedIDs(ctx, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a/2"}, item.Strings(got))
}

func TestTrackInsert_ChunkFailureIsIsolated(t *testing.T) {
	// Given: a file-backed store and a trigger failing any insert of ds/1500
	path := filepath.Join(t.TempDir(), "tracker.db")
	s, _ := newStore(t, Options{Path: path})
	tr := s.For(&stubOwner{id: "main", enabled: true})
	ctx := context.Background()

	_, err := s.DB().Exec(`CREATE TRIGGER fail_chunk BEFORE INSERT ON tracker_items
		WHEN NEW.item_id = 'ds/1500' BEGIN SELECT RAISE(ABORT, 'forced failure'); END;`)
	require.NoError(t, err)

	all := make([]item.ID, 2500)
	for i := range all {
		all[i] = item.New("ds", fmt.Sprintf("%04d", i))
	}

	// When: inserting three chunks
	res, err := tr.TrackInsert(ctx, all)

	// Then: only the second chunk is rolled back
	require.Error(t, err)
	assert.True(t, errors.IsStorage(err))
	assert.Equal(t, 3, res.Chunks)
	assert.Equal(t, 2, res.Committed)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, 2, res.Failed[0].Chunk)
	assert.Len(t, res.FailedIDs(all), 1000)

	st, err := tr.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1500, st.Total)

	// When: the cause is removed and the call repeated
	_, err = s.DB().Exec(`DROP TRIGGER fail_chunk`)
	require.NoError(t, err)
	res, err = tr.TrackInsert(ctx, all)

	// Then: the missing chunk is filled in without duplicates
	require.NoError(t, err)
	assert.Equal(t, int64(1000), res.Rows)
	st, err = tr.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2500, st.Total)
}

func TestChunked_LargeChunkStaysWithinVariableLimit(t *testing.T) {
	// Given: a chunk size larger than one statement can bind
	s, _ := newStore(t, Options{ChunkSize: 40000})
	tr := s.For(&stubOwner{id: "main", enabled: true})
	ctx := context.Background()

	all := make([]item.ID, 40000)
	for i := range all {
		all[i] = item.New("ds", fmt.Sprintf("%05d", i))
	}

	// When: inserting and then updating every id in a single chunk
	res, err := tr.TrackInsert(ctx, all)

	// Then: the chunk commits as one transaction
	require.NoError(t, err)
	assert.Equal(t, 1, res.Chunks)
	assert.Equal(t, 1, res.Committed)
	assert.Equal(t, int64(40000), res.Rows)

	res, err = tr.TrackIndexed(ctx, all)
	require.NoError(t, err)
	assert.Equal(t, int64(40000), res.Rows)

	st, err := tr.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, Status{Total: 40000, Indexed: 40000}, st)
}

func TestStatementRows(t *testing.T) {
	assert.Equal(t, (maxVariables-reservedVariables)/insertColumns, statementRows(insertColumns))
	assert.Equal(t, maxVariables-reservedVariables, statementRows(1))
	assert.Equal(t, maxVariables-reservedVariables, statementRows(0))
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	// Given: a file-backed store with one tracked item
	path := filepath.Join(t.TempDir(), "tracker.db")
	s, err := Open(Options{Path: path})
	require.NoError(t, err)
	owner := &stubOwner{id: "main", enabled: true}
	_, err = s.For(owner).TrackInsert(context.Background(), ids("a"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// When: reopening
	s2, err := Open(Options{Path: path})
	require.NoError(t, err)
	defer s2.Close()

	// Then: the item is still tracked
	st, err := s2.For(owner).Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, st.Changed)
}

func TestClassify_BusyIsRetryable(t *testing.T) {
	// Given: a lock error from the driver
	err := classify("op", fmt.Errorf("database is locked (5) (SQLITE_BUSY)"))

	// Then: it is a retryable storage error
	assert.True(t, errors.IsRetryable(err))
	assert.Equal(t, errors.ErrCodeStorageBusy, errors.GetCode(err))

	other := classify("op", fmt.Errorf("no such table"))
	assert.False(t, errors.IsRetryable(other))
	assert.Nil(t, classify("op", nil))
}
