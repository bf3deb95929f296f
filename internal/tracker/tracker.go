// Package tracker records, per index, which items still need indexing.
//
// Every tracked item is in one of three states. CHANGED items wait for the
// next indexing run, QUEUED items have been handed to a worker, and INDEXED
// items are up to date. Mutating operations write in chunks, each chunk in
// its own transaction, so a failure in one chunk leaves the others intact.
package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/Aman-CERP/searchapi/internal/errors"
	"github.com/Aman-CERP/searchapi/internal/item"
)

// State is the tracking state of one item.
type State string

const (
	Changed State = "CHANGED"
	Queued  State = "QUEUED"
	Indexed State = "INDEXED"
)

const table = "tracker_items"

const (
	// maxVariables is SQLite's default limit of bound values per statement.
	maxVariables = 32766
	// reservedVariables covers the values a statement binds besides its ids.
	reservedVariables = 16
	// insertColumns is the number of values bound per inserted row.
	insertColumns = 5
)

// Owner is the index a tracker writes for. Writes are skipped while the
// owner is disabled, read-only, or not yet saved.
type Owner interface {
	IndexID() string
	Status() bool
	ReadOnly() bool
	IsNew() bool
}

// ChunkFailure describes one chunk whose transaction was rolled back.
type ChunkFailure struct {
	Chunk  int
	Offset int
	Size   int
	Err    error
}

// BatchResult summarizes a chunked write.
type BatchResult struct {
	// Skipped is set when the owner guard rejected the write.
	Skipped   bool
	Chunks    int
	Committed int
	Failed    []ChunkFailure
	// Rows is the number of rows changed by committed chunks.
	Rows int64
}

// FailedIDs returns the ids of every failed chunk, given the input of the call.
func (r BatchResult) FailedIDs(ids []item.ID) []item.ID {
	var out []item.ID
	for _, f := range r.Failed {
		end := f.Offset + f.Size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[f.Offset:end]...)
	}
	return out
}

// Status counts items per state.
type Status struct {
	Total   int `json:"total"`
	Changed int `json:"changed"`
	Queued  int `json:"queued"`
	Indexed int `json:"indexed"`
}

// Pending is the number of items not yet indexed.
func (s Status) Pending() int { return s.Changed + s.Queued }

func (s *Status) add(state State, n int) {
	s.Total += n
	switch state {
	case Changed:
		s.Changed += n
	case Queued:
		s.Queued += n
	case Indexed:
		s.Indexed += n
	}
}

// Record is the stored tracking row of one item.
type Record struct {
	ID        item.ID
	State     State
	Changed   time.Time
	IndexedAt time.Time
	QueuedAt  time.Time
}

// Tracker is the view of a Store scoped to one index.
type Tracker struct {
	store *Store
	owner Owner
}

// IndexID returns the owning index id.
func (t *Tracker) IndexID() string { return t.owner.IndexID() }

func (t *Tracker) writable() bool {
	return t.owner.Status() && !t.owner.ReadOnly() && !t.owner.IsNew()
}

func (t *Tracker) now() int64 { return t.store.now().UnixMilli() }

// chunked applies fn to ids in chunks of the store's chunk size, one
// transaction per chunk. A chunk binding more than maxVariables values is
// written as several statements within its transaction; perID is the number
// of values fn binds per id.
func (t *Tracker) chunked(ctx context.Context, op string, ids []item.ID, perID int,
	fn func(chunk []item.ID) squirrel.Sqlizer) (BatchResult, error) {
	if !t.writable() {
		return BatchResult{Skipped: true}, nil
	}

	var res BatchResult
	size := t.store.chunkSize
	for offset := 0; offset < len(ids); offset += size {
		end := min(offset+size, len(ids))
		chunk := ids[offset:end]
		res.Chunks++

		n, err := t.store.inTx(ctx, op, func(tx *sql.Tx) (int64, error) {
			return execSplit(ctx, tx, chunk, perID, fn)
		})
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			t.store.logger.Warn("tracker_chunk_failed",
				slog.String("op", op),
				slog.String("index", t.IndexID()),
				slog.Int("chunk", res.Chunks),
				slog.Int("size", len(chunk)),
				slog.String("error", err.Error()))
			res.Failed = append(res.Failed, ChunkFailure{Chunk: res.Chunks, Offset: offset, Size: len(chunk), Err: err})
			continue
		}
		res.Committed++
		res.Rows += n
	}

	if len(res.Failed) > 0 {
		return res, errors.StorageError(
			fmt.Sprintf("%s: %d of %d chunks failed", op, len(res.Failed), res.Chunks),
			res.Failed[0].Err)
	}
	return res, nil
}

// execSplit runs fn over part of chunk at a time so no statement exceeds
// SQLite's bound value limit.
func execSplit(ctx context.Context, tx *sql.Tx, chunk []item.ID, perID int,
	fn func(part []item.ID) squirrel.Sqlizer) (int64, error) {
	rows := statementRows(perID)
	var total int64
	for offset := 0; offset < len(chunk); offset += rows {
		n, err := execBuilt(ctx, tx, fn(chunk[offset:min(offset+rows, len(chunk))]))
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// statementRows is the number of ids one statement may carry.
func statementRows(perID int) int {
	return max(1, (maxVariables-reservedVariables)/max(1, perID))
}

// single applies one statement that is not split into chunks.
func (t *Tracker) single(ctx context.Context, op string, stmt squirrel.Sqlizer) (BatchResult, error) {
	if !t.writable() {
		return BatchResult{Skipped: true}, nil
	}
	n, err := t.store.inTx(ctx, op, func(tx *sql.Tx) (int64, error) {
		return execBuilt(ctx, tx, stmt)
	})
	if err != nil {
		return BatchResult{Chunks: 1, Failed: []ChunkFailure{{Chunk: 1, Err: err}}}, err
	}
	return BatchResult{Chunks: 1, Committed: 1, Rows: n}, nil
}

func (t *Tracker) where(ids []item.ID) squirrel.Eq {
	return squirrel.Eq{"index_id": t.IndexID(), "item_id": item.Strings(ids)}
}

// TrackInsert starts tracking ids as CHANGED. Ids already tracked keep
// their state.
func (t *Tracker) TrackInsert(ctx context.Context, ids []item.ID) (BatchResult, error) {
	return t.chunked(ctx, "track_insert", ids, insertColumns, func(chunk []item.ID) squirrel.Sqlizer {
		now := t.now()
		b := t.store.sb.Insert(table).Options("OR IGNORE").
			Columns("index_id", "item_id", "datasource", "state", "changed")
		for _, id := range chunk {
			b = b.Values(t.IndexID(), id.String(), id.Datasource(), string(Changed), now)
		}
		return b
	})
}

// TrackUpdate marks INDEXED ids as CHANGED and sets their changed time to
// now. With dequeue, QUEUED ids are marked as well; without it a queued
// item stays queued.
//
// Items that are already CHANGED are left alone: their changed time is not
// refreshed, so repeated updates do not move an item to the back of the
// ChangedIDs order. Use MarkAllChanged to reset every item.
func (t *Tracker) TrackUpdate(ctx context.Context, ids []item.ID, dequeue bool) (BatchResult, error) {
	states := updatable(dequeue)
	return t.chunked(ctx, "track_update", ids, 1, func(chunk []item.ID) squirrel.Sqlizer {
		where := t.where(chunk)
		where["state"] = states
		return t.store.sb.Update(table).
			Set("state", string(Changed)).
			Set("changed", t.now()).
			Set("queued_at", nil).
			Where(where)
	})
}

// MarkAllChanged marks every tracked item of the index as CHANGED,
// including queued ones.
func (t *Tracker) MarkAllChanged(ctx context.Context) (BatchResult, error) {
	return t.single(ctx, "mark_all_changed", t.store.sb.Update(table).
		Set("state", string(Changed)).
		Set("changed", t.now()).
		Set("queued_at", nil).
		Where(squirrel.Eq{"index_id": t.IndexID(), "state": updatable(true)}))
}

func updatable(dequeue bool) []string {
	if dequeue {
		return []string{string(Indexed), string(Queued)}
	}
	return []string{string(Indexed)}
}

// TrackQueued marks ids as handed to a worker.
func (t *Tracker) TrackQueued(ctx context.Context, ids []item.ID) (BatchResult, error) {
	return t.chunked(ctx, "track_queued", ids, 1, func(chunk []item.ID) squirrel.Sqlizer {
		return t.store.sb.Update(table).
			Set("state", string(Queued)).
			Set("queued_at", t.now()).
			Where(t.where(chunk))
	})
}

// TrackIndexed marks ids as up to date.
func (t *Tracker) TrackIndexed(ctx context.Context, ids []item.ID) (BatchResult, error) {
	return t.chunked(ctx, "track_indexed", ids, 1, func(chunk []item.ID) squirrel.Sqlizer {
		return t.store.sb.Update(table).
			Set("state", string(Indexed)).
			Set("indexed_at", t.now()).
			Set("queued_at", nil).
			Where(t.where(chunk))
	})
}

// TrackDelete stops tracking ids.
func (t *Tracker) TrackDelete(ctx context.Context, ids []item.ID) (BatchResult, error) {
	return t.chunked(ctx, "track_delete", ids, 1, func(chunk []item.ID) squirrel.Sqlizer {
		return t.store.sb.Delete(table).Where(t.where(chunk))
	})
}

// DeleteDatasource stops tracking every item of one datasource.
func (t *Tracker) DeleteDatasource(ctx context.Context, datasource string) (BatchResult, error) {
	return t.single(ctx, "delete_datasource", t.store.sb.Delete(table).
		Where(squirrel.Eq{"index_id": t.IndexID(), "datasource": datasource}))
}

// Clear stops tracking every item of the index. The owner guard does not
// apply: removing an index must always be able to drop its records.
func (t *Tracker) Clear(ctx context.Context) (int64, error) {
	return t.store.inTx(ctx, "clear", func(tx *sql.Tx) (int64, error) {
		return execBuilt(ctx, tx, t.store.sb.Delete(table).Where(squirrel.Eq{"index_id": t.IndexID()}))
	})
}

// RequeueStale returns QUEUED items whose worker has not reported back
// within olderThan to CHANGED. The original change time is kept.
func (t *Tracker) RequeueStale(ctx context.Context, olderThan time.Duration) (BatchResult, error) {
	cutoff := t.store.now().Add(-olderThan).UnixMilli()
	return t.single(ctx, "requeue_stale", t.store.sb.Update(table).
		Set("state", string(Changed)).
		Set("queued_at", nil).
		Where(squirrel.Eq{"index_id": t.IndexID(), "state": string(Queued)}).
		Where(squirrel.Lt{"queued_at": cutoff}))
}

// ChangedIDs returns up to limit CHANGED ids. Items never indexed come
// first, then by change time, then by id. A negative limit returns all.
func (t *Tracker) ChangedIDs(ctx context.Context, limit int) ([]item.ID, error) {
	return t.changed(ctx, squirrel.Eq{"index_id": t.IndexID(), "state": string(Changed)}, limit)
}

// ChangedIDsIn is ChangedIDs restricted to one datasource.
func (t *Tracker) ChangedIDsIn(ctx context.Context, datasource string, limit int) ([]item.ID, error) {
	return t.changed(ctx, squirrel.Eq{"index_id": t.IndexID(), "state": string(Changed), "datasource": datasource}, limit)
}

func (t *Tracker) changed(ctx context.Context, where squirrel.Eq, limit int) ([]item.ID, error) {
	if limit == 0 {
		return nil, nil
	}
	b := t.store.sb.Select("item_id").From(table).Where(where).
		OrderBy("indexed_at IS NOT NULL", "changed", "item_id")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, errors.InternalError("failed to build statement", err)
	}

	rows, err := t.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("changed_ids", err)
	}
	defer rows.Close()

	var ids []item.ID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, classify("changed_ids", err)
		}
		id, err := item.Parse(raw)
		if err != nil {
			t.store.logger.Warn("tracker_bad_item_id", slog.String("id", raw))
			continue
		}
		ids = append(ids, id)
	}
	return ids, classify("changed_ids", rows.Err())
}

// Status counts the index's items per state.
func (t *Tracker) Status(ctx context.Context) (Status, error) {
	var st Status
	err := t.count(ctx, []string{"state"}, func(_ string, state State, n int) {
		st.add(state, n)
	})
	return st, err
}

// StatusByDatasource counts items per state for each datasource.
func (t *Tracker) StatusByDatasource(ctx context.Context) (map[string]Status, error) {
	out := make(map[string]Status)
	err := t.count(ctx, []string{"datasource", "state"}, func(ds string, state State, n int) {
		st := out[ds]
		st.add(state, n)
		out[ds] = st
	})
	return out, err
}

func (t *Tracker) count(ctx context.Context, group []string, fn func(ds string, state State, n int)) error {
	cols := append(append([]string{}, group...), "COUNT(*)")
	query, args, err := t.store.sb.Select(cols...).From(table).
		Where(squirrel.Eq{"index_id": t.IndexID()}).
		GroupBy(group...).ToSql()
	if err != nil {
		return errors.InternalError("failed to build statement", err)
	}

	rows, err := t.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return classify("status", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ds    string
			state string
			n     int
		)
		if len(group) == 2 {
			err = rows.Scan(&ds, &state, &n)
		} else {
			err = rows.Scan(&state, &n)
		}
		if err != nil {
			return classify("status", err)
		}
		fn(ds, State(state), n)
	}
	return classify("status", rows.Err())
}

// Get returns the tracking record of one item.
func (t *Tracker) Get(ctx context.Context, id item.ID) (Record, bool, error) {
	query, args, err := t.store.sb.Select("state", "changed", "indexed_at", "queued_at").From(table).
		Where(squirrel.Eq{"index_id": t.IndexID(), "item_id": id.String()}).ToSql()
	if err != nil {
		return Record{}, false, errors.InternalError("failed to build statement", err)
	}

	var (
		state           string
		changed         int64
		indexed, queued sql.NullInt64
	)
	err = t.store.db.QueryRowContext(ctx, query, args...).Scan(&state, &changed, &indexed, &queued)
	if err == sql.ErrNoRows {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, classify("get", err)
	}

	rec := Record{ID: id, State: State(state), Changed: time.UnixMilli(changed)}
	if indexed.Valid {
		rec.IndexedAt = time.UnixMilli(indexed.Int64)
	}
	if queued.Valid {
		rec.QueuedAt = time.UnixMilli(queued.Int64)
	}
	return rec, true, nil
}
