package index

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/searchapi/internal/errors"
)

const snapshotTable = "search_indexes"

const snapshotSchema = `
CREATE TABLE IF NOT EXISTS search_indexes (
	id       TEXT PRIMARY KEY,
	config   TEXT NOT NULL,
	saved_at INTEGER NOT NULL
);
`

// snapshots persists the last saved configuration of every index, so that
// new and changed indexes are recognised across restarts.
type snapshots struct {
	db  *sql.DB
	sb  squirrel.StatementBuilderType
	now func() time.Time
}

func newSnapshots(db *sql.DB, now func() time.Time) (*snapshots, error) {
	if _, err := db.Exec(snapshotSchema); err != nil {
		return nil, errors.StorageError("failed to initialize index snapshot schema", err)
	}
	if now == nil {
		now = time.Now
	}
	return &snapshots{
		db:  db,
		sb:  squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
		now: now,
	}, nil
}

func (s *snapshots) load(ctx context.Context, id string) (*Index, bool, error) {
	query, args, err := s.sb.Select("config").From(snapshotTable).
		Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, false, errors.InternalError("failed to build snapshot query", err)
	}
	var raw string
	switch err := s.db.QueryRowContext(ctx, query, args...).Scan(&raw); {
	case err == sql.ErrNoRows:
		return nil, false, nil
	case err != nil:
		return nil, false, errors.StorageError(fmt.Sprintf("failed to load index %q", id), err)
	}

	idx := &Index{}
	if err := yaml.Unmarshal([]byte(raw), idx); err != nil {
		return nil, false, errors.StorageError(fmt.Sprintf("stored configuration of index %q is unreadable", id), err)
	}
	return idx, true, nil
}

func (s *snapshots) save(ctx context.Context, idx *Index) error {
	data, err := yaml.Marshal(idx)
	if err != nil {
		return errors.InternalError(fmt.Sprintf("failed to encode index %q", idx.ID), err)
	}
	query, args, err := s.sb.Insert(snapshotTable).Options("OR REPLACE").
		Columns("id", "config", "saved_at").
		Values(idx.ID, string(data), s.now().UnixMilli()).ToSql()
	if err != nil {
		return errors.InternalError("failed to build snapshot statement", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return errors.StorageError(fmt.Sprintf("failed to save index %q", idx.ID), err)
	}
	return nil
}

func (s *snapshots) delete(ctx context.Context, id string) error {
	query, args, err := s.sb.Delete(snapshotTable).Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return errors.InternalError("failed to build snapshot statement", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return errors.StorageError(fmt.Sprintf("failed to delete index %q", id), err)
	}
	return nil
}

func (s *snapshots) ids(ctx context.Context) ([]string, error) {
	query, args, err := s.sb.Select("id").From(snapshotTable).OrderBy("id").ToSql()
	if err != nil {
		return nil, errors.InternalError("failed to build snapshot query", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.StorageError("failed to list indexes", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.StorageError("failed to list indexes", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError("failed to list indexes", err)
	}
	return ids, nil
}
