package booking

// The overlap triggers mirror the application-level check in conflict.go.
// They only fire for rows that are (or become) part of the conflict universe.
const migration = `
CREATE TABLE IF NOT EXISTS showtimes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    created INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
    room_id INTEGER NOT NULL REFERENCES rooms(id),
    movie_id INTEGER NOT NULL REFERENCES movies(id),
    format TEXT NOT NULL DEFAULT '',
    language TEXT NOT NULL DEFAULT '',
    price_cents INTEGER NOT NULL DEFAULT 0 CHECK (price_cents >= 0),
    start_ts INTEGER NOT NULL,
    end_ts INTEGER NOT NULL,
    overnight INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'finished')),
    CHECK (end_ts > start_ts)
) STRICT;

CREATE INDEX IF NOT EXISTS showtimes_room_window_idx ON showtimes (room_id, status, start_ts, end_ts);
CREATE INDEX IF NOT EXISTS showtimes_status_end_idx ON showtimes (status, end_ts);

CREATE TABLE IF NOT EXISTS reserved_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    created INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
    room_id INTEGER NOT NULL REFERENCES rooms(id),
    title TEXT NOT NULL,
    type_label TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    contact_name TEXT NOT NULL DEFAULT '',
    contact_email TEXT NOT NULL DEFAULT '',
    contact_phone TEXT NOT NULL DEFAULT '',
    start_ts INTEGER NOT NULL,
    end_ts INTEGER NOT NULL,
    overnight INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'reserved' CHECK (status IN ('reserved', 'cancelled', 'finished')),
    CHECK (end_ts > start_ts)
) STRICT;

CREATE INDEX IF NOT EXISTS reserved_events_room_window_idx ON reserved_events (room_id, status, start_ts, end_ts);
CREATE INDEX IF NOT EXISTS reserved_events_status_end_idx ON reserved_events (status, end_ts);

CREATE TRIGGER IF NOT EXISTS showtimes_overlap_insert
BEFORE INSERT ON showtimes
WHEN NEW.status = 'active' AND (
    EXISTS (SELECT 1 FROM showtimes WHERE room_id = NEW.room_id AND status = 'active' AND NOT (end_ts <= NEW.start_ts OR start_ts >= NEW.end_ts))
    OR EXISTS (SELECT 1 FROM reserved_events WHERE room_id = NEW.room_id AND status = 'reserved' AND NOT (end_ts <= NEW.start_ts OR start_ts >= NEW.end_ts))
)
BEGIN
    SELECT RAISE(ABORT, 'booking conflict');
END;

CREATE TRIGGER IF NOT EXISTS showtimes_overlap_update
BEFORE UPDATE OF room_id, start_ts, end_ts, status ON showtimes
WHEN NEW.status = 'active' AND (
    EXISTS (SELECT 1 FROM showtimes WHERE id != NEW.id AND room_id = NEW.room_id AND status = 'active' AND NOT (end_ts <= NEW.start_ts OR start_ts >= NEW.end_ts))
    OR EXISTS (SELECT 1 FROM reserved_events WHERE room_id = NEW.room_id AND status = 'reserved' AND NOT (end_ts <= NEW.start_ts OR start_ts >= NEW.end_ts))
)
BEGIN
    SELECT RAISE(ABORT, 'booking conflict');
END;

CREATE TRIGGER IF NOT EXISTS reserved_events_overlap_insert
BEFORE INSERT ON reserved_events
WHEN NEW.status = 'reserved' AND (
    EXISTS (SELECT 1 FROM showtimes WHERE room_id = NEW.room_id AND status = 'active' AND NOT (end_ts <= NEW.start_ts OR start_ts >= NEW.end_ts))
    OR EXISTS (SELECT 1 FROM reserved_events WHERE room_id = NEW.room_id AND status = 'reserved' AND NOT (end_ts <= NEW.start_ts OR start_ts >= NEW.end_ts))
)
BEGIN
    SELECT RAISE(ABORT, 'booking conflict');
END;

CREATE TRIGGER IF NOT EXISTS reserved_events_overlap_update
BEFORE UPDATE OF room_id, start_ts, end_ts, status ON reserved_events
WHEN NEW.status = 'reserved' AND (
    EXISTS (SELECT 1 FROM showtimes WHERE room_id = NEW.room_id AND status = 'active' AND NOT (end_ts <= NEW.start_ts OR start_ts >= NEW.end_ts))
    OR EXISTS (SELECT 1 FROM reserved_events WHERE id != NEW.id AND room_id = NEW.room_id AND status = 'reserved' AND NOT (end_ts <= NEW.start_ts OR start_ts >= NEW.end_ts))
)
BEGIN
    SELECT RAISE(ABORT, 'booking conflict');
END;

CREATE TRIGGER IF NOT EXISTS showtimes_outbox_insert
AFTER INSERT ON showtimes
BEGIN
    INSERT INTO booking_outbox (kind, occupation_id, room_id, event, start_ts, end_ts)
    VALUES ('showtime', NEW.id, NEW.room_id, 'created', NEW.start_ts, NEW.end_ts);
END;

CREATE TRIGGER IF NOT EXISTS showtimes_outbox_delete
AFTER DELETE ON showtimes
BEGIN
    INSERT INTO booking_outbox (kind, occupation_id, room_id, event, start_ts, end_ts)
    VALUES ('showtime', OLD.id, OLD.room_id, 'deleted', OLD.start_ts, OLD.end_ts);
END;

CREATE TRIGGER IF NOT EXISTS showtimes_outbox_status
AFTER UPDATE OF status ON showtimes
WHEN OLD.status != NEW.status
BEGIN
    INSERT INTO booking_outbox (kind, occupation_id, room_id, event, start_ts, end_ts)
    VALUES ('showtime', NEW.id, NEW.room_id, NEW.status, NEW.start_ts, NEW.end_ts);
END;

CREATE TRIGGER IF NOT EXISTS reserved_events_outbox_insert
AFTER INSERT ON reserved_events
BEGIN
    INSERT INTO booking_outbox (kind, occupation_id, room_id, event, start_ts, end_ts)
    VALUES ('reserved_event', NEW.id, NEW.room_id, 'created', NEW.start_ts, NEW.end_ts);
END;

CREATE TRIGGER IF NOT EXISTS reserved_events_outbox_status
AFTER UPDATE OF status ON reserved_events
WHEN OLD.status != NEW.status
BEGIN
    INSERT INTO booking_outbox (kind, occupation_id, room_id, event, start_ts, end_ts)
    VALUES ('reserved_event', NEW.id, NEW.room_id, NEW.status, NEW.start_ts, NEW.end_ts);
END;

CREATE TRIGGER IF NOT EXISTS reserved_events_outbox_moved
AFTER UPDATE OF room_id, start_ts, end_ts ON reserved_events
WHEN OLD.status = NEW.status AND (OLD.room_id != NEW.room_id OR OLD.start_ts != NEW.start_ts OR OLD.end_ts != NEW.end_ts)
BEGIN
    INSERT INTO booking_outbox (kind, occupation_id, room_id, event, start_ts, end_ts)
    VALUES ('reserved_event', NEW.id, NEW.room_id, 'updated', NEW.start_ts, NEW.end_ts);
END;
`
