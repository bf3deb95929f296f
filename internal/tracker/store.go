package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3" // CGO driver, opt-in via Driver "sqlite3"
	_ "modernc.org/sqlite"          // Pure Go SQLite driver (no CGO)

	"github.com/Aman-CERP/searchapi/internal/errors"
)

// Supported database/sql driver names.
const (
	DriverModernc = "sqlite"
	DriverCGO     = "sqlite3"
)

// DefaultChunkSize is the number of ids written per transaction.
const DefaultChunkSize = 1000

const schema = `
CREATE TABLE IF NOT EXISTS tracker_items (
	index_id   TEXT NOT NULL,
	item_id    TEXT NOT NULL,
	datasource TEXT NOT NULL,
	state      TEXT NOT NULL,
	changed    INTEGER NOT NULL,
	indexed_at INTEGER,
	queued_at  INTEGER,
	PRIMARY KEY (index_id, item_id)
);

CREATE INDEX IF NOT EXISTS idx_tracker_pending
	ON tracker_items(index_id, state, changed);

CREATE INDEX IF NOT EXISTS idx_tracker_datasource
	ON tracker_items(index_id, datasource);
`

// Options configures a Store.
type Options struct {
	// Driver is DriverModernc (default) or DriverCGO.
	Driver string

	// Path is the database file. Empty opens an in-memory database.
	Path string

	// ChunkSize bounds the ids written per transaction.
	ChunkSize int

	// BusyTimeout is handed to SQLite's busy handler.
	BusyTimeout time.Duration

	// Retry governs retries of chunks that fail with a busy database.
	Retry *errors.RetryConfig

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time

	Logger *slog.Logger
}

// Store persists tracking records for every index sharing one database.
type Store struct {
	db        *sql.DB
	path      string
	sb        squirrel.StatementBuilderType
	chunkSize int
	retry     errors.RetryConfig
	now       func() time.Time
	logger    *slog.Logger
}

// Open opens (creating if needed) the tracker database.
func Open(opts Options) (*Store, error) {
	driver := opts.Driver
	if driver == "" {
		driver = DriverModernc
	}
	if driver != DriverModernc && driver != DriverCGO {
		return nil, errors.ConfigError(fmt.Sprintf("unknown tracker driver %q", driver), nil)
	}

	busy := opts.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}

	dsn := ":memory:"
	if opts.Path != "" {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0755); err != nil {
			return nil, errors.StorageError("failed to create tracker directory", err)
		}
		dsn = opts.Path
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.StorageError("failed to open tracker database", err)
	}

	// One connection: keeps in-memory databases alive and serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()),
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	if opts.Path != "" {
		pragmas = append([]string{"PRAGMA journal_mode = WAL"}, pragmas...)
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, errors.StorageError(fmt.Sprintf("failed to set %s", p), err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.StorageError("failed to initialize tracker schema", err)
	}

	retry := errors.DefaultRetryConfig()
	if opts.Retry != nil {
		retry = *opts.Retry
	}
	chunk := opts.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		db:        db,
		path:      opts.Path,
		sb:        squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
		chunkSize: chunk,
		retry:     retry,
		now:       now,
		logger:    logger,
	}, nil
}

// DB exposes the underlying handle so other components can keep their
// tables in the same file.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the database path, empty for in-memory stores.
func (s *Store) Path() string { return s.path }

// ChunkSize returns the configured chunk size.
func (s *Store) ChunkSize() int { return s.chunkSize }

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// For returns the tracker of one index.
func (s *Store) For(owner Owner) *Tracker {
	return &Tracker{store: s, owner: owner}
}

// classify maps driver errors onto storage error codes. Lock contention is
// retryable, everything else is not.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := errors.As(err); ok {
		return err
	}
	msg := err.Error()
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database table is locked") {
		return errors.New(errors.ErrCodeStorageBusy, op+": database busy", err)
	}
	return errors.StorageError(op, err)
}

// inTx runs fn in one transaction, retrying the whole transaction while the
// database is busy.
func (s *Store) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) (int64, error)) (int64, error) {
	var rows int64
	err := errors.Retry(ctx, s.retry, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return classify(op, err)
		}
		defer func() { _ = tx.Rollback() }()

		n, err := fn(tx)
		if err != nil {
			return classify(op, err)
		}
		if err := tx.Commit(); err != nil {
			return classify(op, err)
		}
		rows = n
		return nil
	})
	return rows, err
}

func execBuilt(ctx context.Context, tx *sql.Tx, b squirrel.Sqlizer) (int64, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, errors.InternalError("failed to build statement", err)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
