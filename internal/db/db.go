// Package db opens the mnemex SQLite database and applies migrations.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	// Register sqlite-vec as an auto-extension so every connection opened by
	// this process has the vec0 virtual table module available.
	vec.Auto()
}

// DefaultEmbeddingDimension sizes the vec0 virtual table. 384 matches the
// hash embedder and all-MiniLM-style models; OpenAI small embeddings are
// truncated or re-dimensioned by callers that need them persisted.
const DefaultEmbeddingDimension = 384

// DB wraps a *sql.DB and exposes helpers.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database at path and applies migrations.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000", absPath)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Single writer, multiple readers.
	conn.SetMaxOpenConns(1)

	if err := applyMigrations(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	if err := applyVectorTables(conn, DefaultEmbeddingDimension); err != nil {
		// Non-fatal: sqlite-vec may be unavailable in some build
		// configurations. Persisted similarity lookups degrade to loading
		// the snapshot and searching in memory.
		_ = err
	}

	return &DB{conn: conn}, nil
}

// Conn returns the underlying *sql.DB.
func (d *DB) Conn() *sql.DB {
	return d.conn
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Ping checks the connection is live.
func (d *DB) Ping() error {
	return d.conn.Ping()
}
