// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides schema bootstrap, WAL mode, and time encoding helpers

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store at the given path. The schema
// is created if it doesn't exist; parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("sqlite store ready", "path", path)
	return s, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		username      TEXT NOT NULL UNIQUE,
		email         TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		is_active     INTEGER NOT NULL DEFAULT 1,
		is_superuser  INTEGER NOT NULL DEFAULT 0,
		dept_id       INTEGER NOT NULL DEFAULT 0,
		last_login    TEXT,
		created_at    TEXT NOT NULL,
		updated_at    TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS roles (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		name        TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS api_routes (
		id      INTEGER PRIMARY KEY AUTOINCREMENT,
		method  TEXT NOT NULL,
		path    TEXT NOT NULL,
		summary TEXT NOT NULL DEFAULT '',
		tags    TEXT NOT NULL DEFAULT '',
		UNIQUE (method, path)
	);

	CREATE TABLE IF NOT EXISTS agents (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		name        TEXT NOT NULL,
		endpoint    TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		is_active   INTEGER NOT NULL DEFAULT 1,
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS depts (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		name        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		parent_id   INTEGER NOT NULL DEFAULT 0,
		sort_order  INTEGER NOT NULL DEFAULT 0,
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS menus (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		menu_type  TEXT NOT NULL DEFAULT 'menu',
		name       TEXT NOT NULL,
		path       TEXT NOT NULL DEFAULT '',
		component  TEXT NOT NULL DEFAULT '',
		icon       TEXT NOT NULL DEFAULT '',
		sort_order INTEGER NOT NULL DEFAULT 0,
		parent_id  INTEGER NOT NULL DEFAULT 0,
		is_hidden  INTEGER NOT NULL DEFAULT 0,
		redirect   TEXT NOT NULL DEFAULT '',
		keepalive  INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS user_roles (
		user_id INTEGER NOT NULL,
		role_id INTEGER NOT NULL,
		PRIMARY KEY (user_id, role_id)
	);

	CREATE TABLE IF NOT EXISTS role_apis (
		role_id INTEGER NOT NULL,
		api_id  INTEGER NOT NULL,
		PRIMARY KEY (role_id, api_id)
	);

	CREATE TABLE IF NOT EXISTS role_menus (
		role_id INTEGER NOT NULL,
		menu_id INTEGER NOT NULL,
		PRIMARY KEY (role_id, menu_id)
	);

	CREATE TABLE IF NOT EXISTS role_agents (
		role_id  INTEGER NOT NULL,
		agent_id INTEGER NOT NULL,
		PRIMARY KEY (role_id, agent_id)
	);

	CREATE TABLE IF NOT EXISTS file_mappings (
		id            TEXT PRIMARY KEY,
		original_name TEXT NOT NULL,
		file_type     TEXT NOT NULL DEFAULT '',
		file_size     INTEGER NOT NULL DEFAULT 0,
		file_path     TEXT NOT NULL DEFAULT '',
		user_id       INTEGER NOT NULL DEFAULT 0,
		created_at    TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS audit_logs (
		id         TEXT PRIMARY KEY,
		user_id    INTEGER NOT NULL DEFAULT 0,
		username   TEXT NOT NULL DEFAULT '',
		module     TEXT NOT NULL DEFAULT '',
		method     TEXT NOT NULL,
		path       TEXT NOT NULL,
		status     INTEGER NOT NULL,
		latency_ms INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_logs_created_at ON audit_logs(created_at);
	CREATE INDEX IF NOT EXISTS idx_users_dept_id ON users(dept_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// encodeTime stores timestamps as RFC3339 UTC strings.
func encodeTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// decodeTime parses a stored timestamp, returning the zero time for
// unparseable values rather than failing a whole row scan.
func decodeTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// isUniqueViolation reports whether err is a SQLite uniqueness failure.
// modernc.org/sqlite surfaces constraint failures in the error text.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
