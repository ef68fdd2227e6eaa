// Package migrations owns the PostgreSQL schema used by the state store.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

// statements are applied in order; each one is idempotent.
var statements = []string{
	`CREATE TABLE IF NOT EXISTS pots_state (
		key        TEXT PRIMARY KEY,
		value      JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS pots_state_updated_at_idx ON pots_state (updated_at)`,
}

// Apply executes every schema statement against db.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
	}
	return nil
}
