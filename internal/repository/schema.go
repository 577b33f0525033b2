package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// postgresSchema is idempotent; it runs on every AutoMigrate.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL DEFAULT '',
	email           TEXT NOT NULL DEFAULT '',
	phone           TEXT NOT NULL DEFAULT '',
	role            TEXT NOT NULL DEFAULT 'user',
	is_active       BOOLEAN NOT NULL DEFAULT TRUE,
	password_hash   TEXT NOT NULL DEFAULT '',
	notify_email    BOOLEAN NOT NULL DEFAULT TRUE,
	notify_sms      BOOLEAN NOT NULL DEFAULT FALSE,
	notify_whatsapp BOOLEAN NOT NULL DEFAULT FALSE,
	notify_critical BOOLEAN NOT NULL DEFAULT TRUE,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS notifications (
	id                 TEXT PRIMARY KEY,
	user_id            TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	kind               TEXT NOT NULL,
	title              VARCHAR(255) NOT NULL,
	message            VARCHAR(2048) NOT NULL,
	entity_type        TEXT NOT NULL DEFAULT '',
	entity_id          TEXT NOT NULL DEFAULT '',
	priority           TEXT NOT NULL,
	requested_channels TEXT[] NOT NULL DEFAULT '{}',
	effective_channels TEXT[] NOT NULL DEFAULT '{}',
	sent_channels      TEXT[] NOT NULL DEFAULT '{}',
	read               BOOLEAN NOT NULL DEFAULT FALSE,
	sent               BOOLEAN NOT NULL DEFAULT FALSE,
	created_at         TIMESTAMPTZ NOT NULL,
	sent_at            TIMESTAMPTZ,
	read_at            TIMESTAMPTZ,
	expires_at         TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_notifications_user_read_created
	ON notifications (user_id, read, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_notifications_created_at
	ON notifications (created_at);
CREATE INDEX IF NOT EXISTS idx_notifications_expires_at
	ON notifications (expires_at);
`

// MigratePostgres creates the application tables. River's own tables are
// migrated separately by the infrastructure layer.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("apply notification schema: %w", err)
	}
	return nil
}

// migration holds a single SQLite schema migration with its target version.
type migration struct {
	version int
	sql     string
}

// sqliteMigrations is the ordered list of SQLite schema migrations.
// Timestamps are unix nanoseconds and channel sets are comma-joined.
var sqliteMigrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL DEFAULT '',
	email           TEXT NOT NULL DEFAULT '',
	phone           TEXT NOT NULL DEFAULT '',
	role            TEXT NOT NULL DEFAULT 'user',
	is_active       INTEGER NOT NULL DEFAULT 1,
	password_hash   TEXT NOT NULL DEFAULT '',
	notify_email    INTEGER NOT NULL DEFAULT 1,
	notify_sms      INTEGER NOT NULL DEFAULT 0,
	notify_whatsapp INTEGER NOT NULL DEFAULT 0,
	notify_critical INTEGER NOT NULL DEFAULT 1,
	created_at      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS notifications (
	id                 TEXT PRIMARY KEY,
	user_id            TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	kind               TEXT NOT NULL,
	title              TEXT NOT NULL,
	message            TEXT NOT NULL,
	entity_type        TEXT NOT NULL DEFAULT '',
	entity_id          TEXT NOT NULL DEFAULT '',
	priority           TEXT NOT NULL,
	requested_channels TEXT NOT NULL DEFAULT '',
	effective_channels TEXT NOT NULL DEFAULT '',
	sent_channels      TEXT NOT NULL DEFAULT '',
	read               INTEGER NOT NULL DEFAULT 0,
	sent               INTEGER NOT NULL DEFAULT 0,
	created_at         INTEGER NOT NULL,
	sent_at            INTEGER,
	read_at            INTEGER,
	expires_at         INTEGER
);

CREATE INDEX IF NOT EXISTS idx_notifications_user_read_created ON notifications(user_id, read, created_at);
CREATE INDEX IF NOT EXISTS idx_notifications_created_at ON notifications(created_at);
CREATE INDEX IF NOT EXISTS idx_notifications_expires_at ON notifications(expires_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
