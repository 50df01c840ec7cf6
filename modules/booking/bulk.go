package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/marquee-cinema/marquee/engine"
	"github.com/marquee-cinema/marquee/engine/db"
)

type BulkRequest struct {
	RoomID          int64    `json:"room_id" validate:"required"`
	MovieID         int64    `json:"movie_id" validate:"required"`
	Language        string   `json:"language" validate:"max=50"`
	PriceCents      int      `json:"price_cents" validate:"gte=0"`
	From            string   `json:"from" validate:"required"`
	To              string   `json:"to" validate:"required"`
	Weekdays        []string `json:"weekdays"`
	Exclude         []string `json:"exclude"`
	Start           string   `json:"start" validate:"required"`
	End             string   `json:"end,omitempty"`
	DurationMinutes int      `json:"duration_minutes,omitempty"`
	AllOrNothing    bool     `json:"all_or_nothing"`
}

func (r *BulkRequest) recurrence() (RecurrenceSpec, error) {
	var spec RecurrenceSpec
	var err error
	if spec.From, err = ParseDate(r.From); err != nil {
		return spec, fmt.Errorf("%w: %s", ErrValidation, err)
	}
	if spec.To, err = ParseDate(r.To); err != nil {
		return spec, fmt.Errorf("%w: %s", ErrValidation, err)
	}
	for _, name := range r.Weekdays {
		wd, err := ParseWeekday(name)
		if err != nil {
			return spec, fmt.Errorf("%w: %s", ErrValidation, err)
		}
		spec.Weekdays = append(spec.Weekdays, wd)
	}
	for _, s := range r.Exclude {
		d, err := ParseDate(s)
		if err != nil {
			return spec, fmt.Errorf("%w: %s", ErrValidation, err)
		}
		spec.Exclude = append(spec.Exclude, d)
	}
	return spec, nil
}

func (r *BulkRequest) interval() IntervalSpec {
	return IntervalSpec{Start: r.Start, End: r.End, DurationMinutes: r.DurationMinutes}
}

// BulkOutcome is the result for one candidate date.
type BulkOutcome struct {
	Date       Date         `json:"date"`
	ShowtimeID int64        `json:"showtime_id,omitempty"`
	Reason     string       `json:"reason,omitempty"`
	Conflicts  []Occupation `json:"conflicts,omitempty"`
}

type BulkResult struct {
	AllOrNothing bool          `json:"all_or_nothing"`
	Aborted      bool          `json:"aborted"`
	Created      []BulkOutcome `json:"created"`
	Conflicts    []BulkOutcome `json:"conflicts"`
	Errors       []BulkOutcome `json:"errors"`
}

func newBulkResult(allOrNothing bool) *BulkResult {
	return &BulkResult{AllOrNothing: allOrNothing, Created: []BulkOutcome{}, Conflicts: []BulkOutcome{}, Errors: []BulkOutcome{}}
}

// record files the outcome of one date under created, conflicts, or errors.
func (r *BulkResult) record(date Date, s *Showtime, err error) {
	var cerr *ConflictError
	switch {
	case err == nil:
		r.Created = append(r.Created, BulkOutcome{Date: date, ShowtimeID: s.ID})
	case errors.As(err, &cerr):
		r.Conflicts = append(r.Conflicts, BulkOutcome{Date: date, Reason: ErrSchedulingConflict.Error(), Conflicts: cerr.Conflicts})
	case errors.Is(err, ErrSchedulingConflict):
		r.Conflicts = append(r.Conflicts, BulkOutcome{Date: date, Reason: err.Error()})
	case errors.Is(err, ErrInvalidInterval), errors.Is(err, ErrValidation):
		r.Errors = append(r.Errors, BulkOutcome{Date: date, Reason: err.Error()})
	default:
		slog.Error("bulk showtime admission failed", "error", err, "date", date)
		r.Errors = append(r.Errors, BulkOutcome{Date: date, Reason: "internal error"})
	}
}

// BulkCreateShowtimes schedules one showtime per date of the recurrence.
//
// Best-effort admits every date in its own transaction and reports each outcome.
// All-or-nothing checks every date before writing anything; a single conflict
// (or a failed write) rolls the whole batch back and the result is Aborted.
func (m *Module) BulkCreateShowtimes(ctx context.Context, req BulkRequest) (*BulkResult, error) {
	if err := engine.Validate(req); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err)
	}
	spec, err := req.recurrence()
	if err != nil {
		return nil, err
	}
	dates, err := ExpandDates(spec)
	if err != nil {
		return nil, err
	}

	var tmpl *showtimeTemplate
	err = db.WithTx(ctx, m.db, func(tx *sql.Tx) (err error) {
		tmpl, err = prepareShowtime(ctx, tx, req.RoomID, req.MovieID, req.Language, req.PriceCents)
		return err
	})
	if err != nil {
		return nil, err
	}

	// The time-of-day rule does not depend on the date, so a bad template fails the whole request.
	ivSpec := req.interval()
	if len(dates) > 0 {
		if _, err := ivSpec.resolveOn(dates[0], m.loc, tmpl.DefaultMinutes); err != nil {
			return nil, err
		}
	}

	var result *BulkResult
	if req.AllOrNothing {
		result, err = m.bulkAllOrNothing(ctx, tmpl, ivSpec, dates)
	} else {
		result, err = m.bulkBestEffort(ctx, tmpl, ivSpec, dates)
	}
	if err != nil {
		return nil, err
	}

	m.events.LogEvent(ctx, "booking", engine.Subject{Kind: "room", ID: req.RoomID}, "BulkShowtimesScheduled", !result.Aborted,
		fmt.Sprintf("dates=%d created=%d conflicts=%d errors=%d all_or_nothing=%t", len(dates), len(result.Created), len(result.Conflicts), len(result.Errors), req.AllOrNothing))
	return result, nil
}

func (m *Module) bulkBestEffort(ctx context.Context, tmpl *showtimeTemplate, ivSpec IntervalSpec, dates []Date) (*BulkResult, error) {
	result := newBulkResult(false)
	for _, date := range dates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var created *Showtime
		err := db.WithTx(ctx, m.db, func(tx *sql.Tx) error {
			iv, err := ivSpec.resolveOn(date, m.loc, tmpl.DefaultMinutes)
			if err != nil {
				return err
			}
			created, err = admitShowtime(ctx, tx, tmpl, iv)
			return err
		})
		result.record(date, created, err)
	}
	return result, nil
}

func (m *Module) bulkAllOrNothing(ctx context.Context, tmpl *showtimeTemplate, ivSpec IntervalSpec, dates []Date) (*BulkResult, error) {
	result := newBulkResult(true)

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Phase one: check every date, write nothing.
	intervals := make([]Interval, len(dates))
	for i, date := range dates {
		iv, err := ivSpec.resolveOn(date, m.loc, tmpl.DefaultMinutes)
		if err == nil {
			intervals[i] = iv
			err = checkConflict(ctx, tx, tmpl.RoomID, iv, 0)
		}
		var cerr *ConflictError
		if err != nil && !errors.As(err, &cerr) && !errors.Is(err, ErrInvalidInterval) {
			return nil, err
		}
		if err != nil {
			result.record(date, nil, err)
		}
	}
	if len(result.Conflicts) > 0 || len(result.Errors) > 0 {
		result.Aborted = true
		return result, nil
	}

	// Phase two: write everything. The triggers still guard each insert.
	created := make([]BulkOutcome, 0, len(dates))
	for i, date := range dates {
		s, err := insertShowtime(ctx, tx, tmpl, intervals[i])
		if err != nil {
			result.record(date, nil, err)
			result.Aborted = true
			return result, nil
		}
		created = append(created, BulkOutcome{Date: date, ShowtimeID: s.ID})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing bulk schedule: %w", err)
	}
	result.Created = created
	return result, nil
}
