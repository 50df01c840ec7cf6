package core

// Migration is the base schema. Everything else in the system references
// rooms and movies, and the two queue tables are written from other modules'
// transactions, so this module must be registered first.
const Migration = `
CREATE TABLE IF NOT EXISTS rooms (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    created INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
    name TEXT NOT NULL UNIQUE,
    format TEXT NOT NULL DEFAULT '2D',
    capacity INTEGER NOT NULL DEFAULT 0,
    active INTEGER NOT NULL DEFAULT 1
) STRICT;

CREATE TABLE IF NOT EXISTS movies (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    created INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
    title TEXT NOT NULL,
    duration_minutes INTEGER NOT NULL CHECK (duration_minutes > 0 AND duration_minutes <= 1440),
    language TEXT NOT NULL DEFAULT ''
) STRICT;

CREATE TABLE IF NOT EXISTS api_tokens (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    created INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
    label TEXT NOT NULL DEFAULT '',
    token TEXT NOT NULL UNIQUE
) STRICT;

CREATE TABLE IF NOT EXISTS outbound_mail (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    created INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
    send_at INTEGER DEFAULT (strftime('%s', 'now')),
    recipient TEXT NOT NULL DEFAULT '',
    subject TEXT NOT NULL DEFAULT '',
    body TEXT NOT NULL DEFAULT ''
) STRICT;

CREATE INDEX IF NOT EXISTS outbound_mail_send_at_idx ON outbound_mail (send_at);

CREATE TABLE IF NOT EXISTS booking_outbox (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    created INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
    kind TEXT NOT NULL,
    occupation_id INTEGER NOT NULL,
    room_id INTEGER NOT NULL,
    event TEXT NOT NULL,
    start_ts INTEGER NOT NULL,
    end_ts INTEGER NOT NULL,
    attempts INTEGER NOT NULL DEFAULT 0,
    publish_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
    published INTEGER
) STRICT;

CREATE INDEX IF NOT EXISTS booking_outbox_pending_idx ON booking_outbox (published, publish_at);
`
