// Package publisher relays booking lifecycle events from the booking_outbox
// table to a message broker.
package publisher

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/marquee-cinema/marquee/engine"
	amqp "github.com/rabbitmq/amqp091-go"
)

const maxRPS = 20

const (
	minBackoff = 10 * time.Second
	maxBackoff = time.Hour
)

// Sink delivers one message. Implementations must be safe to call again after an error.
type Sink interface {
	Publish(ctx context.Context, routingKey string, msg amqp.Publishing) error
}

// Event is the message body.
type Event struct {
	ID           int64     `json:"id"`
	Kind         string    `json:"kind"`
	OccupationID int64     `json:"occupation_id"`
	RoomID       int64     `json:"room_id"`
	Event        string    `json:"event"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Created      time.Time `json:"created"`

	attempts int
}

// RoutingKey is booking.<kind>.<event>, e.g. booking.showtime.created.
func (e *Event) RoutingKey() string { return fmt.Sprintf("booking.%s.%s", e.Kind, e.Event) }

// MessageID is stable across redeliveries of the same outbox row.
func (e *Event) MessageID() string {
	return uuid.NewSHA1(uuid.NameSpaceURL, fmt.Appendf(nil, "marquee:booking_outbox:%d", e.ID)).String()
}

func (e *Event) String() string { return fmt.Sprintf("id=%d key=%s", e.ID, e.RoutingKey()) }

type Module struct {
	db   *sql.DB
	sink Sink
}

// New expects the core schema. A nil sink logs events instead of publishing them.
func New(d *sql.DB, sink Sink) *Module {
	if sink == nil {
		sink = logSink{}
	}
	return &Module{db: d, sink: sink}
}

func (m *Module) AttachWorkers(mgr *engine.ProcMgr) {
	mgr.Add(engine.Poll(time.Second, engine.PollWorkqueue(engine.WithRateLimiting(m, maxRPS))))
}

func (m *Module) GetItem(ctx context.Context) (*Event, error) {
	e := &Event{}
	var start, end, created engine.LocalTime
	err := m.db.QueryRowContext(ctx, `
SELECT id, kind, occupation_id, room_id, event, start_ts, end_ts, created, attempts
FROM booking_outbox
WHERE published IS NULL AND publish_at <= unixepoch()
ORDER BY publish_at, id
LIMIT 1`).Scan(&e.ID, &e.Kind, &e.OccupationID, &e.RoomID, &e.Event, &start, &end, &created, &e.attempts)
	if err != nil {
		return nil, err
	}
	e.Start = start.Time
	e.End = end.Time
	e.Created = created.Time
	return e, nil
}

func (m *Module) ProcessItem(ctx context.Context, e *Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return m.sink.Publish(ctx, e.RoutingKey(), amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    e.MessageID(),
		Timestamp:    time.Now().UTC(),
		Type:         e.Event,
		Body:         body,
	})
}

func (m *Module) UpdateItem(ctx context.Context, e *Event, success bool) (err error) {
	if success {
		_, err = m.db.ExecContext(ctx, "UPDATE booking_outbox SET published = unixepoch() WHERE id = $1", e.ID)
		return err
	}
	_, err = m.db.ExecContext(ctx, "UPDATE booking_outbox SET attempts = attempts + 1, publish_at = unixepoch() + $2 WHERE id = $1", e.ID, int64(backoff(e.attempts).Seconds()))
	return err
}

func backoff(attempts int) time.Duration {
	d := minBackoff
	for range attempts {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}

type logSink struct{}

func (logSink) Publish(ctx context.Context, routingKey string, msg amqp.Publishing) error {
	slog.Info("booking event", "routingKey", routingKey, "messageID", msg.MessageId, "body", string(msg.Body))
	return nil
}
