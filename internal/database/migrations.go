package database

import (
	"context"
	"database/sql"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS rooms (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    api_key    TEXT NOT NULL UNIQUE,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS agents (
    id        TEXT PRIMARY KEY,
    room_id   TEXT NOT NULL REFERENCES rooms(id),
    name      TEXT NOT NULL,
    joined_at TEXT NOT NULL,
    UNIQUE (room_id, name)
);

CREATE TABLE IF NOT EXISTS messages (
    id         INTEGER PRIMARY KEY,
    room_id    TEXT NOT NULL REFERENCES rooms(id),
    from_agent TEXT NOT NULL,
    to_agent   TEXT,
    content    TEXT NOT NULL,
    type       TEXT NOT NULL DEFAULT 'message',
    read_by    TEXT NOT NULL DEFAULT '[]',
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_room_id ON messages (room_id, id);

CREATE TABLE IF NOT EXISTS tasks (
    id          INTEGER PRIMARY KEY,
    room_id     TEXT NOT NULL REFERENCES rooms(id),
    title       TEXT NOT NULL,
    description TEXT,
    assigned_to TEXT,
    status      TEXT NOT NULL DEFAULT 'pending',
    created_by  TEXT NOT NULL,
    created_at  TEXT NOT NULL,
    updated_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_room_created ON tasks (room_id, created_at DESC);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS rooms (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    api_key    TEXT NOT NULL UNIQUE,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS agents (
    id        TEXT PRIMARY KEY,
    room_id   TEXT NOT NULL REFERENCES rooms(id),
    name      TEXT NOT NULL,
    joined_at TIMESTAMPTZ NOT NULL,
    UNIQUE (room_id, name)
);

CREATE TABLE IF NOT EXISTS messages (
    id         BIGINT PRIMARY KEY,
    room_id    TEXT NOT NULL REFERENCES rooms(id),
    from_agent TEXT NOT NULL,
    to_agent   TEXT,
    content    TEXT NOT NULL,
    type       TEXT NOT NULL DEFAULT 'message',
    read_by    TEXT NOT NULL DEFAULT '[]',
    created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_room_id ON messages (room_id, id);

CREATE TABLE IF NOT EXISTS tasks (
    id          BIGINT PRIMARY KEY,
    room_id     TEXT NOT NULL REFERENCES rooms(id),
    title       TEXT NOT NULL,
    description TEXT,
    assigned_to TEXT,
    status      TEXT NOT NULL DEFAULT 'pending',
    created_by  TEXT NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_room_created ON tasks (room_id, created_at DESC);
`

func RunMigrations(ctx context.Context, db *sql.DB, d dialect) error {
	_, err := db.ExecContext(ctx, d.schema)
	return err
}
