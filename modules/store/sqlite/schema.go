package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaVersion = 1

// schemaStatements are executed in order to create the database schema.
// All use IF NOT EXISTS for idempotent re-application.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id              TEXT    PRIMARY KEY,
		mode            TEXT    NOT NULL,
		model           TEXT    NOT NULL DEFAULT '',
		input           TEXT    NOT NULL,
		budget          INTEGER NOT NULL,
		status          TEXT    NOT NULL,
		iteration_count INTEGER NOT NULL DEFAULT 0,
		thinking_tokens INTEGER NOT NULL DEFAULT 0,
		boxed_answer    TEXT    NOT NULL DEFAULT '',
		answer          TEXT    NOT NULL DEFAULT '',
		error           TEXT    NOT NULL DEFAULT '',
		started_at      INTEGER NOT NULL,
		finished_at     INTEGER NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC)`,

	`CREATE TABLE IF NOT EXISTS events (
		run_id  TEXT    NOT NULL,
		seq     INTEGER NOT NULL,
		kind    TEXT    NOT NULL,
		payload TEXT    NOT NULL,
		PRIMARY KEY (run_id, seq)
	)`,
}

// migrate creates or updates the database schema to the latest version.
func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("sqlite: create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("sqlite: read schema version: %w", err)
	}
	if current >= schemaVersion {
		return nil
	}

	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: migrate: %w\nstatement: %s", err, stmt)
		}
	}

	if _, err := db.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("sqlite: record schema version: %w", err)
	}
	return nil
}
