package db

import (
	"database/sql"
	"fmt"
)

// migrations is an ordered list of SQL migration statements. Each statement
// is applied once, in order; new migrations are appended at the end.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS items (
		id           INTEGER PRIMARY KEY,
		content      TEXT NOT NULL,
		token_cost   INTEGER NOT NULL DEFAULT 0,
		importance   REAL NOT NULL DEFAULT 0.5,
		access_count INTEGER NOT NULL DEFAULT 0,
		last_access  DATETIME,
		created_at   DATETIME,
		seq          INTEGER NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS episodes (
		id         TEXT PRIMARY KEY,
		summary    TEXT NOT NULL,
		source_ids TEXT NOT NULL DEFAULT '[]',
		importance REAL NOT NULL DEFAULT 0.5,
		created_at DATETIME
	)`,

	`CREATE TABLE IF NOT EXISTS patterns (
		id                  TEXT PRIMARY KEY,
		signature           TEXT NOT NULL,
		member_ids          TEXT NOT NULL DEFAULT '[]',
		frequency           INTEGER NOT NULL DEFAULT 0,
		episodes_considered INTEGER NOT NULL DEFAULT 0,
		confidence          REAL NOT NULL DEFAULT 0,
		created_at          DATETIME,
		updated_at          DATETIME
	)`,

	`CREATE TABLE IF NOT EXISTS rules (
		id          TEXT PRIMARY KEY,
		condition   TEXT NOT NULL,
		consequence TEXT NOT NULL,
		confidence  REAL NOT NULL DEFAULT 0,
		pattern_id  TEXT NOT NULL,
		created_at  DATETIME,
		updated_at  DATETIME
	)`,

	`CREATE TABLE IF NOT EXISTS entries (
		tier       TEXT NOT NULL,
		owner_id   TEXT NOT NULL,
		terms      TEXT NOT NULL DEFAULT '{}',
		embedding  BLOB,
		created_at DATETIME,
		PRIMARY KEY (tier, owner_id)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_entries_tier     ON entries(tier)`,
	`CREATE INDEX IF NOT EXISTS idx_episodes_created ON episodes(created_at)`,
}

// applyMigrations runs any migrations that have not yet been applied.
func applyMigrations(conn *sql.DB) error {
	// Ensure the migration tracking table exists first.
	if _, err := conn.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for i, stmt := range migrations {
		var count int
		row := conn.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, i)
		if err := row.Scan(&count); err != nil {
			return fmt.Errorf("check migration %d: %w", i, err)
		}
		if count > 0 {
			continue
		}

		if _, err := conn.Exec(stmt); err != nil {
			return fmt.Errorf("apply migration %d: %w", i, err)
		}

		if _, err := conn.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, i); err != nil {
			return fmt.Errorf("record migration %d: %w", i, err)
		}
	}

	return nil
}

// applyVectorTables creates the sqlite-vec virtual table mirroring the
// persisted embeddings. Called after the vec extension is confirmed loaded.
func applyVectorTables(conn *sql.DB, dimension int) error {
	stmt := fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS vec_entries USING vec0(
		key TEXT PRIMARY KEY,
		embedding float[%d]
	)`, dimension)

	if _, err := conn.Exec(stmt); err != nil {
		return fmt.Errorf("create vector table: %w", err)
	}
	return nil
}
