package store

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/mnemos-dev/mnemos/internal/model"
)

const (
	defaultPoolSize       = 8
	defaultAcquireTimeout = 2 * time.Second
)

// SQLiteStore implements Adapter over an embedded SQLite database.
type SQLiteStore struct {
	db      *sql.DB
	path    string
	pool    *connPool
	timeout time.Duration // pool acquisition timeout; 0 means fail-fast
	entropy *rand.Rand
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithPoolSize sets the connection pool capacity.
func WithPoolSize(n int) Option {
	return func(s *SQLiteStore) { s.pool = newConnPool(n) }
}

// WithAcquireTimeout sets how long operations wait for a pool slot.
func WithAcquireTimeout(d time.Duration) Option {
	return func(s *SQLiteStore) { s.timeout = d }
}

// NewSQLiteStore opens or creates the database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(0)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		path:    dbPath,
		pool:    newConnPool(defaultPoolSize),
		timeout: defaultAcquireTimeout,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// NoWait returns a view of the store whose pool acquisition never blocks:
// contention surfaces as ErrStoreBusy. Used by the blocking ingest front
// door so an interactive caller is never stalled behind a lock.
func (s *SQLiteStore) NoWait() *SQLiteStore {
	clone := *s
	clone.timeout = 0
	return &clone
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

// withConn runs fn while holding a pool token, mapping engine-level busy
// errors to ErrStoreBusy.
func (s *SQLiteStore) withConn(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := s.pool.acquire(ctx, s.timeout); err != nil {
		return err
	}
	defer s.pool.release()

	if err := fn(ctx); err != nil {
		if isBusy(err) {
			return model.ErrStoreBusy
		}
		return err
	}
	return nil
}

// isBusy reports whether err is SQLite's exclusive-lock contention error.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// isUniqueViolation reports whether err is the content_hash uniqueness
// constraint firing (the loser of a concurrent identical insert).
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		id             TEXT PRIMARY KEY,
		content        TEXT NOT NULL,
		content_hash   TEXT NOT NULL UNIQUE,
		memory_type    TEXT NOT NULL,
		importance     REAL NOT NULL DEFAULT 0.5,
		confidence     REAL NOT NULL DEFAULT 0.5,
		source_type    TEXT NOT NULL DEFAULT '',
		agent_id       TEXT NOT NULL DEFAULT '',
		user_id        TEXT,
		session_id     TEXT,
		metadata       TEXT,
		content_length INTEGER NOT NULL DEFAULT 0,
		created_at     TEXT NOT NULL,
		valid_from     TEXT NOT NULL,
		valid_to       TEXT,
		accessed_at    TEXT,
		access_count   INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_memories_type_source ON memories(memory_type, source_type, content_length);
	CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_memories_valid_to ON memories(valid_to);
	CREATE INDEX IF NOT EXISTS idx_memories_session ON memories(session_id);
	CREATE INDEX IF NOT EXISTS idx_memories_importance ON memories(importance);

	CREATE TABLE IF NOT EXISTS entities (
		id              TEXT PRIMARY KEY,
		name            TEXT NOT NULL,
		normalized_name TEXT NOT NULL UNIQUE,
		entity_type     TEXT NOT NULL DEFAULT '',
		mention_count   INTEGER NOT NULL DEFAULT 0,
		first_seen      TEXT NOT NULL,
		last_seen       TEXT NOT NULL,
		confidence      REAL NOT NULL DEFAULT 0.5
	);

	CREATE TABLE IF NOT EXISTS entity_mentions (
		memory_id    TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
		entity_id    TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
		confidence   REAL NOT NULL DEFAULT 0.5,
		start_offset INTEGER NOT NULL DEFAULT 0,
		end_offset   INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (memory_id, entity_id)
	);
	CREATE INDEX IF NOT EXISTS idx_mentions_entity ON entity_mentions(entity_id);

	CREATE TABLE IF NOT EXISTS memory_links (
		from_id    TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
		to_id      TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
		rel        TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (from_id, to_id, rel)
	);
	CREATE INDEX IF NOT EXISTS idx_links_to ON memory_links(to_id);

	CREATE TABLE IF NOT EXISTS sessions (
		id            TEXT PRIMARY KEY,
		user_id       TEXT,
		agent_id      TEXT,
		created_at    TEXT NOT NULL,
		last_activity TEXT NOT NULL,
		memory_count  INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS archived_memories (
		id              TEXT PRIMARY KEY,
		content         TEXT NOT NULL,
		content_hash    TEXT NOT NULL,
		memory_type     TEXT NOT NULL,
		importance      REAL NOT NULL,
		confidence      REAL NOT NULL,
		source_type     TEXT NOT NULL,
		agent_id        TEXT NOT NULL,
		user_id         TEXT,
		session_id      TEXT,
		metadata        TEXT,
		created_at      TEXT NOT NULL,
		valid_from      TEXT NOT NULL,
		valid_to        TEXT,
		accessed_at     TEXT,
		access_count    INTEGER NOT NULL,
		archived_at     TEXT NOT NULL,
		archived_reason TEXT NOT NULL,
		prune_score     REAL NOT NULL DEFAULT 0
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Backup writes a consistent snapshot of the database to destPath using
// VACUUM INTO. The destination must not already exist.
func (s *SQLiteStore) Backup(ctx context.Context, destPath string) error {
	return s.withConn(ctx, func(ctx context.Context) error {
		if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			return fmt.Errorf("create backup dir: %w", err)
		}
		if _, err := os.Stat(destPath); err == nil {
			return fmt.Errorf("backup target already exists: %s", destPath)
		}
		if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, destPath); err != nil {
			return fmt.Errorf("vacuum into: %w", err)
		}
		return nil
	})
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
