// Package sqlite implements the relational half of the memory engine on an
// embedded SQLite database. A single store holds events, entities,
// bi-temporal relations, core memory blocks, reflections, and the state
// table the background engines use for watermarks.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

// schemaVersion is written to the schema_version table on first open.
// Bump it when an upgrade path is added.
const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id           TEXT PRIMARY KEY,
	agent_id     TEXT NOT NULL,
	event_type   TEXT NOT NULL,
	content      TEXT NOT NULL,
	importance   REAL NOT NULL DEFAULT 0.5,
	entities     TEXT,
	metadata     TEXT,
	created_at   TEXT NOT NULL,
	accessed_at  TEXT,
	access_count INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_events_agent_created ON events(agent_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_events_type ON events(event_type);
CREATE INDEX IF NOT EXISTS idx_events_created ON events(created_at DESC);

CREATE VIRTUAL TABLE IF NOT EXISTS events_fts USING fts5(
	content,
	content=events,
	content_rowid=rowid
);

CREATE TRIGGER IF NOT EXISTS events_ai AFTER INSERT ON events BEGIN
	INSERT INTO events_fts(rowid, content) VALUES (new.rowid, new.content);
END;
CREATE TRIGGER IF NOT EXISTS events_ad AFTER DELETE ON events BEGIN
	INSERT INTO events_fts(events_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
END;

CREATE TABLE IF NOT EXISTS entities (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL COLLATE NOCASE UNIQUE,
	entity_type  TEXT NOT NULL,
	summary      TEXT,
	observations TEXT NOT NULL DEFAULT '[]',
	importance   REAL NOT NULL DEFAULT 0.5,
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL,
	accessed_at  TEXT,
	access_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS relations (
	id            TEXT PRIMARY KEY,
	from_entity   TEXT NOT NULL REFERENCES entities(id),
	to_entity     TEXT NOT NULL REFERENCES entities(id),
	relation_type TEXT NOT NULL,
	weight        REAL NOT NULL DEFAULT 1.0,
	valid_from    TEXT NOT NULL,
	valid_until   TEXT,
	metadata      TEXT,
	created_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_relations_from ON relations(from_entity);
CREATE INDEX IF NOT EXISTS idx_relations_to ON relations(to_entity);
CREATE UNIQUE INDEX IF NOT EXISTS idx_relations_open
	ON relations(from_entity, to_entity, relation_type) WHERE valid_until IS NULL;

CREATE TABLE IF NOT EXISTS core_memory (
	id         TEXT PRIMARY KEY,
	block_type TEXT NOT NULL,
	block_key  TEXT NOT NULL DEFAULT 'default',
	content    TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	UNIQUE(block_type, block_key)
);

CREATE TABLE IF NOT EXISTS reflections (
	id           TEXT PRIMARY KEY,
	content      TEXT NOT NULL,
	source_ids   TEXT NOT NULL DEFAULT '[]',
	importance   REAL NOT NULL DEFAULT 0.5,
	depth        INTEGER NOT NULL DEFAULT 1,
	created_at   TEXT NOT NULL,
	accessed_at  TEXT,
	access_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS state (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL PRIMARY KEY
);
`

// Store is the relational store backed by a single SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and ensures the
// schema exists. Pass ":memory:" for an ephemeral in-memory database.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: database path is required", storage.ErrInvalidInput)
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports one concurrent writer. A single open connection
	// serialises access and avoids SQLITE_BUSY under concurrent load; it is
	// also what makes ":memory:" usable (every new connection would
	// otherwise see a fresh empty database).
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	if _, err := db.Exec("INSERT OR IGNORE INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to record schema version: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for maintenance paths (backup, vacuum).
func (s *Store) DB() *sql.DB {
	return s.db
}

// WithTx runs fn inside a single transaction: rollback if fn returns an
// error, commit otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// nowTS returns the current time at storage precision. Rows written with
// this value round-trip exactly, so structs returned from a write compare
// equal to later reads.
func nowTS() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// formatTS renders t in the canonical storage format. Timestamps are
// stored as fixed-width UTC strings so lexicographic ordering equals
// chronological ordering in range queries.
func formatTS(t time.Time) string {
	return types.FormatTimestamp(t)
}

// parseTS parses a timestamp in the canonical storage format.
func parseTS(s string) (time.Time, error) {
	return types.ParseTimestamp(s)
}

// nullableTS converts an optional time to its stored representation.
func nullableTS(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTS(*t), Valid: true}
}

// parseNullableTS converts a stored nullable timestamp back to a pointer.
func parseNullableTS(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTS(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// nullableString converts a string pointer to sql.NullString.
func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// marshalJSON serialises v to a nullable TEXT column; nil input stores NULL.
func marshalJSON(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// marshalStrings serialises a string slice, treating empty as NULL.
func marshalStrings(vals []string) (sql.NullString, error) {
	if len(vals) == 0 {
		return sql.NullString{}, nil
	}
	return marshalJSON(vals)
}

// unmarshalStrings parses a JSON string array column; NULL yields nil.
func unmarshalStrings(ns sql.NullString) ([]string, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(ns.String), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// unmarshalMap parses a JSON object column; NULL yields nil.
func unmarshalMap(ns sql.NullString) (map[string]interface{}, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(ns.String), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// placeholders returns n comma-separated SQL placeholders.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	out := make([]byte, 0, 2*n-1)
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, '?')
	}
	return string(out)
}
