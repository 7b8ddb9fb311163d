package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	role TEXT NOT NULL DEFAULT 'hq',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS projects (
	id UUID PRIMARY KEY,
	owner_id UUID NOT NULL,
	boss_id UUID,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS threads (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	project_id UUID NOT NULL UNIQUE REFERENCES projects(id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	last_active_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	message_count BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	thread_id UUID NOT NULL REFERENCES threads(id),
	sender_id UUID NOT NULL,
	sender_role TEXT NOT NULL,
	body TEXT NOT NULL,
	attachments JSONB NOT NULL DEFAULT '[]',
	is_read BOOLEAN NOT NULL DEFAULT FALSE,
	client_tag TEXT,
	created_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_projects_owner ON projects(owner_id);
CREATE INDEX IF NOT EXISTS idx_projects_boss ON projects(boss_id);
CREATE INDEX IF NOT EXISTS idx_threads_last_active ON threads(last_active_at);
CREATE INDEX IF NOT EXISTS idx_messages_thread_created ON messages(thread_id, created_at, id);
CREATE UNIQUE INDEX IF NOT EXISTS uniq_messages_client_tag ON messages(thread_id, client_tag)
	WHERE client_tag IS NOT NULL;
`

// RunMigrations applies the schema to the PostgreSQL database.
// All statements are idempotent, so re-running on boot is safe.
func RunMigrations(databaseURL string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	_, err = conn.Exec(ctx, schema)
	return err
}
