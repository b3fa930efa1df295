// Package store persists jobs and page jobs in an embedded SQLite database.
// It is the single source of truth for job state: workers claim pages with a
// conditional update, and parent job status is always derived from page
// statuses inside the database rather than computed in Go.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	// Pure-Go SQLite driver, registers as "sqlite".
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	original_filename TEXT NOT NULL,
	file_type TEXT NOT NULL,
	total_pages INTEGER NOT NULL,
	status TEXT NOT NULL DEFAULT 'queued',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS page_jobs (
	id TEXT PRIMARY KEY,
	parent_job_id TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
	page_number INTEGER NOT NULL,
	image_data BLOB NOT NULL,
	markdown_text TEXT,
	status TEXT NOT NULL DEFAULT 'queued',
	worker_id TEXT,
	error_message TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	UNIQUE (parent_job_id, page_number)
);

CREATE INDEX IF NOT EXISTS idx_page_jobs_status_created ON page_jobs(status, created_at);
CREATE INDEX IF NOT EXISTS idx_page_jobs_parent ON page_jobs(parent_job_id);
CREATE INDEX IF NOT EXISTS idx_jobs_status_created ON jobs(status, created_at DESC);
`

// Store wraps the SQLite database holding jobs and page jobs.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Config holds store configuration.
type Config struct {
	// Path is the SQLite database file. Parent directories are created.
	Path string
	// Logger is the structured logger to use.
	Logger *slog.Logger
}

// Open opens (creating if necessary) the database at cfg.Path, applies
// connection pragmas, and runs schema migration.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("store path is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Pragmas go in the DSN so the driver applies them to every connection
	// database/sql opens, not just the one a db.Exec happens to run on.
	// WAL lets readers proceed while a worker commits; busy_timeout covers
	// write contention between workers; foreign_keys enables the
	// jobs -> page_jobs cascade.
	dsn := cfg.Path +
		"?_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	s := &Store{
		db:     db,
		path:   cfg.Path,
		logger: cfg.Logger.With("component", "store"),
	}
	s.logger.Info("database ready", "path", cfg.Path)
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}
