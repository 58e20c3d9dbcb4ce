package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema crea las tablas del chat. faqs la escribe el CMS; aqui solo se garantiza que exista.
const schema = `
CREATE TABLE IF NOT EXISTS chat_sessions (
	id               UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	session_id       TEXT NOT NULL UNIQUE,
	platform         TEXT NOT NULL CHECK (platform IN ('web', 'external')),
	status           TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'closed')),
	external_user_id TEXT,
	metadata         JSONB NOT NULL DEFAULT '{}'::jsonb,
	started_at       TIMESTAMPTZ NOT NULL,
	last_message_at  TIMESTAMPTZ,
	ended_at         TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS chat_sessions_active_external_uq
	ON chat_sessions (platform, external_user_id)
	WHERE status = 'active' AND external_user_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS chat_messages (
	seq          BIGSERIAL PRIMARY KEY,
	id           TEXT NOT NULL UNIQUE,
	session_id   TEXT NOT NULL REFERENCES chat_sessions (session_id) ON DELETE CASCADE,
	sender       TEXT NOT NULL CHECK (sender IN ('user', 'bot', 'staff')),
	content      TEXT NOT NULL,
	platform     TEXT NOT NULL,
	message_type TEXT,
	timestamp    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS chat_messages_session_ts_idx
	ON chat_messages (session_id, timestamp, seq);

CREATE TABLE IF NOT EXISTS faqs (
	id        BIGSERIAL PRIMARY KEY,
	question  TEXT NOT NULL,
	keywords  TEXT NOT NULL DEFAULT '',
	answer    TEXT NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	priority  INTEGER NOT NULL DEFAULT 0
);
`

// Migrate aplica el esquema de forma idempotente.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
