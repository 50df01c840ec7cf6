// Package email drains the outbound_mail table.
package email

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/marquee-cinema/marquee/engine"
)

const maxRPS = 1

// Messages older than this are abandoned rather than retried.
const maxMessageAge = time.Hour

type Sender func(ctx context.Context, to, subj string, msg []byte) error

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Enqueue schedules a message. Pass the caller's transaction so the mail
// only goes out if the surrounding change commits.
func Enqueue(ctx context.Context, db Execer, to, subject, body string) error {
	_, err := db.ExecContext(ctx, "INSERT INTO outbound_mail (recipient, subject, body) VALUES ($1, $2, $3)", to, subject, body)
	if err != nil {
		return fmt.Errorf("enqueueing email: %w", err)
	}
	return nil
}

type Module struct {
	db     *sql.DB
	sender Sender
}

// New expects the core schema. A nil sender prints messages to stdout.
func New(d *sql.DB, sender Sender) *Module {
	if sender == nil {
		sender = newNoopSender()
	}
	return &Module{db: d, sender: sender}
}

func (m *Module) AttachWorkers(mgr *engine.ProcMgr) {
	mgr.Add(engine.Poll(time.Second, engine.PollWorkqueue(engine.WithRateLimiting(m, maxRPS))))
}

func (m *Module) GetItem(ctx context.Context) (*message, error) {
	item := &message{}
	err := m.db.QueryRowContext(ctx, "SELECT id, recipient, subject, body, created FROM outbound_mail WHERE unixepoch() >= send_at AND unixepoch() - created < $1 ORDER BY send_at ASC LIMIT 1;", int64(maxMessageAge.Seconds())).Scan(&item.ID, &item.To, &item.Subject, &item.Body, &item.Created)
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (m *Module) ProcessItem(ctx context.Context, item *message) error {
	slog.Info("sending email", "id", item.ID, "to", item.To, "subject", item.Subject)
	return m.sender(ctx, item.To, item.Subject, []byte(item.Body))
}

func (m *Module) UpdateItem(ctx context.Context, item *message, success bool) (err error) {
	if success {
		_, err = m.db.ExecContext(ctx, "DELETE FROM outbound_mail WHERE id = $1;", item.ID)
	} else {
		_, err = m.db.ExecContext(ctx, "UPDATE outbound_mail SET send_at = unixepoch() + max((send_at - created) * 2, 10) WHERE id = $1;", item.ID)
	}
	return err
}

func newNoopSender() Sender {
	return func(ctx context.Context, to, subj string, msg []byte) error {
		fmt.Fprintf(os.Stdout, "--- START EMAIL TO %s WITH SUBJECT %q ---\n%s\n--- END EMAIL ---\n", to, subj, msg)
		return nil
	}
}

type message struct {
	ID      int64
	To      string
	Subject string
	Body    string
	Created int64
}

func (m *message) String() string { return fmt.Sprintf("id=%d", m.ID) }
