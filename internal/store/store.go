// Package store owns all persistent state: the skill table, the snapshot
// store, the performance ledger and the execution archive. It is the single
// writer for each of those tables; readers go through the same Store but are
// never blocked by each other.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"taskforge/internal/logging"
	"taskforge/internal/types"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite-backed persistence component. All writes serialize
// through mu (single-writer discipline); reads take the read lock only.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// Open creates (or opens) the taskforge database at dbPath and ensures the
// schema exists.
func Open(dbPath string) (*Store, error) {
	logging.StoreDebug("opening store at %s", dbPath)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, dbPath: dbPath}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logging.Store("store initialized at %s", dbPath)
	return s, nil
}

// initialize creates the database schema.
func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS skills (
		signature     TEXT PRIMARY KEY,
		template_id   TEXT NOT NULL,
		source        TEXT NOT NULL,
		params        TEXT NOT NULL DEFAULT '{}',
		created_at    TIMESTAMP NOT NULL,
		last_used     TIMESTAMP NOT NULL,
		use_count     INTEGER NOT NULL DEFAULT 0,
		success_count INTEGER NOT NULL DEFAULT 0,
		failure_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS snapshots (
		module_id  TEXT NOT NULL,
		generation INTEGER NOT NULL,
		source     TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		PRIMARY KEY (module_id, generation)
	);

	CREATE TABLE IF NOT EXISTS ledger (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		module_id     TEXT NOT NULL,
		generation    INTEGER NOT NULL,
		before_metric REAL NOT NULL,
		after_metric  REAL NOT NULL,
		verdict       TEXT NOT NULL,
		failing_stage TEXT NOT NULL DEFAULT '',
		created_at    TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_ledger_module ON ledger(module_id, id);

	CREATE TABLE IF NOT EXISTS modules (
		module_id  TEXT PRIMARY KEY,
		generation INTEGER NOT NULL,
		source     TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS archive (
		key         TEXT PRIMARY KEY,
		artifact_id TEXT NOT NULL,
		template_id TEXT NOT NULL,
		source      TEXT NOT NULL,
		created_at  TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS executions (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		artifact_id TEXT NOT NULL,
		signature   TEXT NOT NULL DEFAULT '',
		template_id TEXT NOT NULL DEFAULT '',
		kind        TEXT NOT NULL,
		output      TEXT NOT NULL,
		error       TEXT NOT NULL DEFAULT '',
		exit_status INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		created_at  TIMESTAMP NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// write runs fn under the writer lock, retrying once on failure. A write
// that fails twice surfaces as a StorageError; append-only tables make a
// half-applied first attempt detectable and ignorable on read.
func (s *Store) write(op string, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := fn()
	if err == nil {
		return nil
	}
	logging.Get(logging.CategoryStore).Warn("%s failed, retrying once: %v", op, err)
	if err = fn(); err == nil {
		return nil
	}
	logging.Get(logging.CategoryStore).Error("%s failed after retry: %v", op, err)
	return &types.StorageError{Op: op, Cause: err}
}
