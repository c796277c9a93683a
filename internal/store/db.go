package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const currentVersion = 1

// DB wraps a SQLite database holding documents and score runs.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database at the given path and runs migrations.
// Use ":memory:" for an in-memory database (useful for testing).
func Open(path string) (*DB, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
	} else {
		dsn = ":memory:?_pragma=foreign_keys(ON)"
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set connection pool to 1 for SQLite
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	store := &DB{db: sqlDB}
	if err := store.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// Conn returns the underlying *sql.DB for advanced use cases.
func (d *DB) Conn() *sql.DB {
	return d.db
}

func (d *DB) migrate() error {
	var version int
	err := d.db.QueryRow("PRAGMA user_version").Scan(&version)
	if err != nil {
		return fmt.Errorf("reading user_version: %w", err)
	}

	if version >= currentVersion {
		return nil
	}

	if version < 1 {
		if err := d.migrateV1(); err != nil {
			return err
		}
	}

	_, err = d.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentVersion))
	if err != nil {
		return fmt.Errorf("setting user_version: %w", err)
	}

	return nil
}

func (d *DB) migrateV1() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE TABLE IF NOT EXISTS score_runs (
			id TEXT PRIMARY KEY,
			script TEXT,
			params TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			scored INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS scores (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES score_runs(id),
			doc_id TEXT NOT NULL,
			score REAL,
			error_code TEXT,
			error TEXT,
			UNIQUE(run_id, doc_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scores_run ON scores(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON score_runs(started_at)`,
	}

	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning migration transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("executing migration statement: %w", err)
		}
	}

	return tx.Commit()
}
