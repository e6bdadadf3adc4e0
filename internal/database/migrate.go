package database

import (
	"context"
	"fmt"
)

const schema = `
	CREATE TABLE IF NOT EXISTS functions (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		route       TEXT NOT NULL UNIQUE,
		code        TEXT NOT NULL,
		language    TEXT NOT NULL,
		timeout_ms  BIGINT NOT NULL DEFAULT 30000 CHECK (timeout_ms > 0),
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS execution_records (
		id          TEXT PRIMARY KEY,
		function_id TEXT NOT NULL,
		duration_ms BIGINT NOT NULL,
		status      TEXT NOT NULL CHECK (status IN ('success', 'error')),
		error       TEXT NOT NULL DEFAULT '',
		timestamp   TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS idx_execution_records_function_time
		ON execution_records(function_id, timestamp DESC);
`

// Migrate is idempotent.
func (db *Database) Migrate(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	db.log.Info().Msg("database schema up to date")
	return nil
}
