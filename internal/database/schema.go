package database

// Schema is the full database schema at the latest migration version.
// It is applied directly by tests that use in-memory databases.
// Keep in sync with the files under migrations/files/.
const Schema = `
CREATE TABLE events (
    id TEXT PRIMARY KEY,
    kind INTEGER NOT NULL,
    pubkey TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    content TEXT NOT NULL,
    tags TEXT NOT NULL DEFAULT '[]',
    d_tag TEXT NOT NULL DEFAULT '',
    expires_at INTEGER,
    deleted INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX idx_events_pubkey_kind_d_tag ON events (pubkey, kind, d_tag);
CREATE INDEX idx_events_kind ON events (kind);
CREATE INDEX idx_events_created_at ON events (created_at DESC);
CREATE INDEX idx_events_expires_at ON events (expires_at) WHERE expires_at IS NOT NULL;

CREATE TABLE event_tags (
    event_id TEXT NOT NULL REFERENCES events (id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    value TEXT NOT NULL
);

CREATE INDEX idx_event_tags_event_id ON event_tags (event_id);
CREATE INDEX idx_event_tags_name_value ON event_tags (name, value);
`
