package engine

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/marquee-cinema/marquee/engine/db"
)

const auditEventsMigration = `
CREATE TABLE IF NOT EXISTS audit_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    created INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
    source TEXT NOT NULL,
    subject_kind TEXT,
    subject_id INTEGER,
    event_type TEXT NOT NULL,
    success INTEGER NOT NULL DEFAULT 1,
    details TEXT NOT NULL DEFAULT ''
) STRICT;

CREATE INDEX IF NOT EXISTS audit_events_source_created_idx ON audit_events (source, created);
CREATE INDEX IF NOT EXISTS audit_events_subject_idx ON audit_events (subject_kind, subject_id);
`

// EventLogger records notable actions (admissions, sweeps, webhooks) for later inspection.
type EventLogger struct {
	db *sql.DB
}

func NewEventLogger(d *sql.DB) *EventLogger {
	db.MustMigrate(d, auditEventsMigration)
	return &EventLogger{db: d}
}

// Subject identifies the row an audit event is about. The zero value means "none".
type Subject struct {
	Kind string
	ID   int64
}

// LogEvent never fails the caller: errors are logged and swallowed.
// A nil EventLogger is a valid no-op.
func (e *EventLogger) LogEvent(ctx context.Context, source string, subject Subject, eventType string, success bool, details string) {
	if e == nil || e.db == nil {
		return
	}

	var kind, id any
	if subject.Kind != "" {
		kind = subject.Kind
		id = subject.ID
	}

	_, err := e.db.ExecContext(ctx,
		`INSERT INTO audit_events (source, subject_kind, subject_id, event_type, success, details) VALUES ($1, $2, $3, $4, $5, $6)`,
		source, kind, id, eventType, success, details)
	if err != nil {
		slog.Error("failed to log audit event", "error", err, "source", source, "eventType", eventType)
	}
}
