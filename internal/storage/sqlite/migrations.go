package sqlite

import (
	"context"
	"database/sql"
)

// schema holds one row per shared session. Receipt, people and attributions
// are stored as JSON documents since they are only ever read and replaced
// whole.
const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    receipt TEXT NOT NULL,
    people TEXT NOT NULL,
    attributions TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions(created_at);
`

// runMigrations executes the schema setup.
func runMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}
