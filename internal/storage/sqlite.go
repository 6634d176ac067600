package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (and creates if needed) the ledger database at path and
// ensures required tables exist.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if err := CheckLocalFilesystem(path); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; the busy timeout covers concurrent CLI invocations.
	db.SetMaxOpenConns(1)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(pctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := db.ExecContext(pctx, "PRAGMA journal_mode = WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal_mode: %w", err)
	}
	if err := BootstrapSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// BootstrapSQLite creates tables/indexes if missing.
func BootstrapSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS submissions (
  id              TEXT PRIMARY KEY,
  kind            TEXT NOT NULL,
  plugin          TEXT NOT NULL,
  config          TEXT NOT NULL,
  machine         TEXT NOT NULL,
  backend         TEXT NOT NULL,
  label           TEXT NOT NULL,
  script          TEXT NOT NULL,
  program         TEXT,
  wall_time       TEXT,
  memory          TEXT,
  cores           INTEGER NOT NULL DEFAULT 1,
  array_size      INTEGER NOT NULL DEFAULT 0,
  arguments       TEXT NOT NULL,
  workspace_id    TEXT,
  script_path     TEXT,
  scan_parameter  TEXT,
  scan_value      TEXT,
  status          TEXT NOT NULL,
  backend_job_id  TEXT,
  created_at      TEXT NOT NULL,
  submitted_at    TEXT,
  completed_at    TEXT,
  last_error      TEXT,
  output          TEXT
);`,
		`CREATE INDEX IF NOT EXISTS submissions_status_created_at_idx ON submissions(status, created_at);`,
		`CREATE INDEX IF NOT EXISTS submissions_plugin_created_at_idx ON submissions(plugin, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
