package db

import (
	"context"
	"fmt"
)

// schema is idempotent; Migrate runs it on every start.
//
// users is owned by the profile service. It is created here only so a fresh
// database (local dev, integration tests) has something to point at.
//
// Two constraints carry the core invariants:
//   - connection_requests_one_pending: partial unique index, at most one
//     pending row per ordered (sender, receiver).
//   - chats_pair_key: one chat per unordered pair, stored as user_low < user_high.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id          uuid PRIMARY KEY DEFAULT gen_random_uuid(),
	name        text NOT NULL,
	department  text NOT NULL DEFAULT '',
	location    text NOT NULL DEFAULT '',
	role        text NOT NULL DEFAULT 'student',
	interests   text[] NOT NULL DEFAULT '{}',
	created_at  timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS user_connections (
	user_id     uuid NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	peer_id     uuid NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	created_at  timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (user_id, peer_id),
	CHECK (user_id <> peer_id)
);

CREATE TABLE IF NOT EXISTS connection_requests (
	id          uuid PRIMARY KEY DEFAULT gen_random_uuid(),
	sender_id   uuid NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	receiver_id uuid NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	status      text NOT NULL DEFAULT 'pending'
	            CHECK (status IN ('pending', 'accepted', 'rejected')),
	created_at  timestamptz NOT NULL DEFAULT now(),
	updated_at  timestamptz NOT NULL DEFAULT now(),
	CHECK (sender_id <> receiver_id)
);

CREATE UNIQUE INDEX IF NOT EXISTS connection_requests_one_pending
	ON connection_requests (sender_id, receiver_id)
	WHERE status = 'pending';

CREATE INDEX IF NOT EXISTS connection_requests_receiver_pending
	ON connection_requests (receiver_id, created_at DESC)
	WHERE status = 'pending';

CREATE TABLE IF NOT EXISTS chats (
	id           uuid PRIMARY KEY DEFAULT gen_random_uuid(),
	user_low     uuid NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	user_high    uuid NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	last_updated timestamptz NOT NULL DEFAULT now(),
	created_at   timestamptz NOT NULL DEFAULT now(),
	CONSTRAINT chats_pair_key UNIQUE (user_low, user_high),
	CHECK (user_low < user_high)
);

CREATE INDEX IF NOT EXISTS chats_user_high ON chats (user_high);

CREATE TABLE IF NOT EXISTS chat_messages (
	id          bigserial PRIMARY KEY,
	chat_id     uuid NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
	sender_id   uuid NOT NULL REFERENCES users(id),
	content     text NOT NULL,
	created_at  timestamptz NOT NULL
);

CREATE INDEX IF NOT EXISTS chat_messages_chat_id ON chat_messages (chat_id, id);
`

// Migrate creates the tables and indexes this service relies on.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	db.logger.Info("schema applied")
	return nil
}

