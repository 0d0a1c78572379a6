// Package store provides the local SQLite cache backing the sync engine.
//
// The store holds cached entries, annotations, tags and tag links, the
// pending-change queues for offline creates and deletes, and the sync
// watermark. It has no network awareness; the sync engine decides what to
// write and when.
//
// Tags are kept in two representations on purpose: a denormalized JSON blob
// on the entry row, so exporting whole entries is a single-row read, and
// normalized tags/taglinks rows for browsing queries. SaveEntry keeps both
// in step.
//
// The database runs in WAL mode with foreign keys on. One sync pass at a
// time is assumed; callers must serialize.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// ErrExists is returned by Init when the database file is already present.
// Init refuses to touch an existing store so that a mistyped command can't
// silently mask data loss.
var ErrExists = errors.New("store already exists")

// Store wraps the SQLite connection to the local cache.
type Store struct {
	conn *sql.DB
	path string
}

// Open opens the cache database at path, creating it and its schema if it
// doesn't exist yet.
//
// The caller MUST call Close() when done.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, path: path}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := s.conn.Exec(pragma); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	if err := s.initSchema(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// Init creates a brand-new cache database at path. Unlike Open it fails
// with ErrExists if the file is already there.
func Init(path string) (*Store, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%w at %s", ErrExists, path)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat database file: %w", err)
	}
	return Open(path)
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection, checkpointing the WAL first.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.conn = nil
	return nil
}

// Reset drops all cached data and recreates the schema. Everything is
// lost, including the pending queues and the watermark.
func (s *Store) Reset(ctx context.Context) error {
	drop := `
	DROP TABLE IF EXISTS taglinks;
	DROP TABLE IF EXISTS annotations;
	DROP TABLE IF EXISTS new_annotations;
	DROP TABLE IF EXISTS new_urls;
	DROP TABLE IF EXISTS deleted_entries;
	DROP TABLE IF EXISTS deleted_annotations;
	DROP TABLE IF EXISTS tags;
	DROP TABLE IF EXISTS entries;
	DROP TABLE IF EXISTS sync_meta;
	`
	if _, err := s.conn.ExecContext(ctx, drop); err != nil {
		return fmt.Errorf("failed to drop tables: %w", err)
	}

	return s.initSchema(ctx)
}

// initSchema creates the tables and indexes. Idempotent.
func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		id INTEGER PRIMARY KEY,
		content TEXT,
		created_at TEXT NOT NULL,
		domain_name TEXT,
		http_status TEXT,
		is_archived INTEGER NOT NULL DEFAULT 0,
		is_public INTEGER NOT NULL DEFAULT 0,
		is_starred INTEGER NOT NULL DEFAULT 0,
		language TEXT,
		mimetype TEXT,
		origin_url TEXT,
		preview_picture TEXT,
		published_at TEXT,
		published_by TEXT,  -- JSON array
		reading_time INTEGER NOT NULL DEFAULT 0,
		starred_at TEXT,
		title TEXT,
		uid TEXT,
		updated_at TEXT NOT NULL,
		url TEXT,
		headers TEXT,  -- JSON array
		user_email TEXT NOT NULL DEFAULT '',
		user_id INTEGER NOT NULL DEFAULT 0,
		user_name TEXT NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT '[]'  -- denormalized JSON copy
	);

	CREATE TABLE IF NOT EXISTS annotations (
		id INTEGER PRIMARY KEY,
		annotator_schema_version TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		ranges TEXT NOT NULL DEFAULT '[]',  -- JSON array
		text TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL,
		quote TEXT,
		user TEXT,
		entry_id INTEGER NOT NULL,
		FOREIGN KEY (entry_id) REFERENCES entries(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS tags (
		id INTEGER PRIMARY KEY,
		label TEXT NOT NULL,
		slug TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS taglinks (
		entry_id INTEGER NOT NULL,
		tag_id INTEGER NOT NULL,
		PRIMARY KEY (entry_id, tag_id),
		FOREIGN KEY (entry_id) REFERENCES entries(id) ON DELETE CASCADE,
		FOREIGN KEY (tag_id) REFERENCES tags(id) ON DELETE CASCADE
	);

	-- Pending-change queues. Rows are removed only after the matching
	-- remote call succeeds, which makes the push phase idempotent.
	CREATE TABLE IF NOT EXISTS new_urls (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS new_annotations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		entry_id INTEGER NOT NULL,
		quote TEXT,
		ranges TEXT NOT NULL DEFAULT '[]',
		text TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS deleted_entries (
		id INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS deleted_annotations (
		id INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS sync_meta (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		last_sync TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_updated ON entries(updated_at);
	CREATE INDEX IF NOT EXISTS idx_entries_archived ON entries(is_archived);
	CREATE INDEX IF NOT EXISTS idx_entries_starred ON entries(is_starred);
	CREATE INDEX IF NOT EXISTS idx_annotations_updated ON annotations(updated_at);
	CREATE INDEX IF NOT EXISTS idx_annotations_entry ON annotations(entry_id);
	CREATE INDEX IF NOT EXISTS idx_taglinks_tag ON taglinks(tag_id);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	watermark := time.Unix(0, 0).UTC().Format(time.RFC3339)
	if _, err := s.conn.ExecContext(ctx,
		"INSERT OR IGNORE INTO sync_meta (id, last_sync) VALUES (1, ?)", watermark); err != nil {
		return fmt.Errorf("failed to seed sync metadata: %w", err)
	}

	return nil
}

// timeToNullString converts an optional timestamp to a nullable string.
func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

// parseTime parses a stored RFC3339 timestamp.
func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse stored timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// parseNullTime parses an optional stored timestamp.
func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
