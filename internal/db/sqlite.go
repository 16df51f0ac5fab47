package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// Schema creates the document and draft tables. Timestamps are UTC unix nanoseconds so that
// draft and document times compare exactly.
const Schema = `
CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL DEFAULT '',
    content BLOB,
    content_hash TEXT NOT NULL DEFAULT '',
    source_path TEXT NOT NULL DEFAULT '',
    source_key TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS documents_source_key ON documents(source_key);
CREATE INDEX IF NOT EXISTS documents_updated_at ON documents(updated_at);

CREATE TABLE IF NOT EXISTS drafts (
    document_id TEXT PRIMARY KEY,
    content BLOB,
    updated_at INTEGER NOT NULL
);`

type SQLite struct {
	path string
	conn *sql.DB
}

// NewSQLite returns a database stored at path. ":memory:" keeps everything in process.
func NewSQLite(path string) *SQLite {
	if path == "" {
		path = "./database.db"
	}
	return &SQLite{
		path: path,
		conn: nil,
	}
}

func (s *SQLite) Path() string {
	return s.path
}

func (s *SQLite) InitDB() error {
	if !strings.HasPrefix(s.path, ":memory:") && !strings.HasPrefix(s.path, "file:") {
		if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	var err error
	s.conn, err = sql.Open("sqlite3", s.path)
	if err != nil {
		return err
	}
	// One connection: SQLite has a single writer, and every in-memory connection is its own database.
	s.conn.SetMaxOpenConns(1)

	res, err := s.conn.Exec(Schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	dbLogger.Info().Str("path", s.path).Any("db_result", res).Msg("Database initialized")
	return nil
}

func (s *SQLite) Get() *sql.DB {
	return s.conn
}

// Close closes the connection pool but keeps the handle, so late callers get
// "sql: database is closed" rather than a nil dereference.
func (s *SQLite) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *SQLite) Query(query string, args ...interface{}) (*sql.Rows, error) {
	dbLogger.Debug().Str("query", query).Msg("Query")
	return s.conn.Query(query, args...)
}

func (s *SQLite) QueryRow(query string, args ...interface{}) *sql.Row {
	dbLogger.Debug().Str("query", query).Msg("QueryRow")
	return s.conn.QueryRow(query, args...)
}

func (s *SQLite) Exec(query string, args ...interface{}) (sql.Result, error) {
	dbLogger.Debug().Str("query", query).Msg("Exec")
	return s.conn.Exec(query, args...)
}
