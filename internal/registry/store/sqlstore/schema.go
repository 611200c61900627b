package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is portable between PostgreSQL and SQLite. Timestamps are unix
// nanoseconds and metrics are a JSON object.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS model_counters (
		name         TEXT PRIMARY KEY,
		last_version INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS model_records (
		id                   TEXT PRIMARY KEY,
		name                 TEXT NOT NULL,
		version              INTEGER NOT NULL,
		stage                TEXT NOT NULL,
		model_type           TEXT NOT NULL,
		artifact_ref         TEXT NOT NULL,
		training_fingerprint TEXT NOT NULL,
		metrics              TEXT NOT NULL,
		created_at           BIGINT NOT NULL,
		promoted_at          BIGINT,
		archived_at          BIGINT,
		superseded_by        TEXT NOT NULL DEFAULT '',
		metrics_updated_at   BIGINT,
		UNIQUE (name, version)
	)`,
	// at most one production record per name
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_model_records_production
		ON model_records (name) WHERE stage = 'production'`,
}

func migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i, err)
		}
	}
	return nil
}
