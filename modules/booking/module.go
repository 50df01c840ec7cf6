// Package booking decides whether a showtime or reserved event may occupy a room
// for a time interval, and owns both reservation tables.
package booking

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/marquee-cinema/marquee/engine"
	"github.com/marquee-cinema/marquee/engine/db"
	"github.com/marquee-cinema/marquee/modules/core"
)

const defaultSweepInterval = time.Minute

// PaymentGuard reports whether money has been taken against a reserved event.
// It is consulted inside the admission transaction.
type PaymentGuard interface {
	HasPayment(ctx context.Context, tx *sql.Tx, eventID int64) (bool, error)
}

type noPayments struct{}

func (noPayments) HasPayment(context.Context, *sql.Tx, int64) (bool, error) { return false, nil }

type Module struct {
	db       *sql.DB
	loc      *time.Location
	guard    PaymentGuard
	events   *engine.EventLogger
	checkins *engine.ValueSigner[int64]
	now      func() time.Time

	// SweepInterval is how often the server-side sweeper runs. Zero disables it.
	SweepInterval time.Duration
}

// New applies the booking schema. guard, events, and checkins may be nil.
func New(d *sql.DB, loc *time.Location, guard PaymentGuard, events *engine.EventLogger, checkins *engine.ValueSigner[int64]) *Module {
	db.MustMigrate(d, migration)
	if loc == nil {
		loc = time.UTC
	}
	if guard == nil {
		guard = noPayments{}
	}
	if checkins == nil {
		checkins = engine.NewValueSigner[int64]()
	}
	return &Module{
		db:            d,
		loc:           loc,
		guard:         guard,
		events:        events,
		checkins:      checkins,
		now:           time.Now,
		SweepInterval: defaultSweepInterval,
	}
}

func (m *Module) AttachWorkers(mgr *engine.ProcMgr) {
	if m.SweepInterval > 0 {
		mgr.Add(engine.Poll(m.SweepInterval, m.sweepNow))
	}
}

// requireRoom resolves a room for admission. Unknown and inactive rooms are validation failures.
func requireRoom(ctx context.Context, tx *sql.Tx, roomID int64) (*core.Room, error) {
	room, err := core.GetRoom(ctx, tx, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, validationErrorf("room %d does not exist", roomID)
	}
	if err != nil {
		return nil, err
	}
	if !room.Active {
		return nil, validationErrorf("room %d is not active", roomID)
	}
	return room, nil
}

// audit records the outcome of an operation. Validation failures are not interesting enough to keep.
func (m *Module) audit(ctx context.Context, subject engine.Subject, eventType string, err error, details string) {
	switch {
	case err == nil:
		m.events.LogEvent(ctx, "booking", subject, eventType, true, details)
	case errors.Is(err, ErrSchedulingConflict), errors.Is(err, ErrHasPayment):
		m.events.LogEvent(ctx, "booking", subject, eventType, false, err.Error())
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidInterval), errors.Is(err, ErrNotFound), errors.Is(err, ErrNotEditable):
	default:
		slog.Error("booking operation failed", "error", err, "op", eventType)
	}
}
