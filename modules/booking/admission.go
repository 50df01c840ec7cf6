package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/marquee-cinema/marquee/engine"
	"github.com/marquee-cinema/marquee/engine/db"
	"github.com/marquee-cinema/marquee/modules/core"
	"github.com/marquee-cinema/marquee/modules/email"
)

const paymentLeadTime = 24 * time.Hour

type Showtime struct {
	ID         int64  `json:"id"`
	RoomID     int64  `json:"room_id"`
	MovieID    int64  `json:"movie_id"`
	Format     string `json:"format"`
	Language   string `json:"language"`
	PriceCents int    `json:"price_cents"`
	Interval
	Status  string    `json:"status"`
	Created time.Time `json:"created"`
}

type ShowtimeRequest struct {
	RoomID     int64  `json:"room_id" validate:"required"`
	MovieID    int64  `json:"movie_id" validate:"required"`
	Language   string `json:"language" validate:"max=50"`
	PriceCents int    `json:"price_cents" validate:"gte=0"`
	IntervalSpec
}

// EventDetails are the free-form fields of a reserved event.
type EventDetails struct {
	Title        string `json:"title" validate:"required,max=200"`
	TypeLabel    string `json:"type_label" validate:"max=100"`
	Description  string `json:"description" validate:"max=2000"`
	ContactName  string `json:"contact_name" validate:"required,max=200"`
	ContactEmail string `json:"contact_email" validate:"omitempty,email"`
	ContactPhone string `json:"contact_phone" validate:"max=50"`
}

type ReservedEvent struct {
	ID     int64 `json:"id"`
	RoomID int64 `json:"room_id"`
	EventDetails
	Interval
	Status     string    `json:"status"`
	Created    time.Time `json:"created"`
	PaymentDue time.Time `json:"payment_due"`
}

type EventRequest struct {
	RoomID int64 `json:"room_id" validate:"required"`
	EventDetails
	IntervalSpec
}

// EventPatch changes only the fields that are set.
type EventPatch struct {
	RoomID       *int64        `json:"room_id,omitempty"`
	Title        *string       `json:"title,omitempty"`
	TypeLabel    *string       `json:"type_label,omitempty"`
	Description  *string       `json:"description,omitempty"`
	ContactName  *string       `json:"contact_name,omitempty"`
	ContactEmail *string       `json:"contact_email,omitempty"`
	ContactPhone *string       `json:"contact_phone,omitempty"`
	Interval     *IntervalSpec `json:"interval,omitempty"`
}

func (p *EventPatch) apply(d *EventDetails) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&d.Title, p.Title)
	set(&d.TypeLabel, p.TypeLabel)
	set(&d.Description, p.Description)
	set(&d.ContactName, p.ContactName)
	set(&d.ContactEmail, p.ContactEmail)
	set(&d.ContactPhone, p.ContactPhone)
}

type Availability struct {
	RoomID int64 `json:"room_id"`
	Interval
	Available bool         `json:"available"`
	Reason    string       `json:"reason,omitempty"`
	Conflicts []Occupation `json:"conflicts"`
}

// CheckAvailability never writes. Unknown rooms return ErrNotFound.
// Inactive rooms are never available, matching admission.
func (m *Module) CheckAvailability(ctx context.Context, roomID int64, iv Interval) (*Availability, error) {
	avail := &Availability{RoomID: roomID, Interval: iv, Conflicts: []Occupation{}}
	err := db.WithTx(ctx, m.db, func(tx *sql.Tx) error {
		room, err := core.GetRoom(ctx, tx, roomID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("room %d: %w", roomID, ErrNotFound)
		}
		if err != nil {
			return err
		}
		if !room.Active {
			avail.Reason = "room is not active"
			return nil
		}

		conflicts, err := conflictsFor(ctx, tx, roomID, iv, 0)
		if err != nil {
			return err
		}
		avail.Conflicts = append([]Occupation{}, conflicts...)
		avail.Available = len(conflicts) == 0
		return nil
	})
	if err != nil {
		return nil, err
	}
	return avail, nil
}

// showtimeTemplate is everything about a showtime except when it happens.
type showtimeTemplate struct {
	RoomID         int64
	MovieID        int64
	MovieTitle     string
	Format         string
	Language       string
	PriceCents     int
	DefaultMinutes int
}

func prepareShowtime(ctx context.Context, tx *sql.Tx, roomID, movieID int64, language string, priceCents int) (*showtimeTemplate, error) {
	room, err := requireRoom(ctx, tx, roomID)
	if err != nil {
		return nil, err
	}
	movie, err := core.GetMovie(ctx, tx, movieID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, validationErrorf("movie %d does not exist", movieID)
	}
	if err != nil {
		return nil, err
	}
	if language == "" {
		language = movie.Language
	}
	return &showtimeTemplate{
		RoomID:         room.ID,
		MovieID:        movie.ID,
		MovieTitle:     movie.Title,
		Format:         room.Format,
		Language:       language,
		PriceCents:     priceCents,
		DefaultMinutes: movie.DurationMinutes,
	}, nil
}

const showtimeColumns = "id, room_id, movie_id, format, language, price_cents, start_ts, end_ts, overnight, status, created"

type scanner interface {
	Scan(dest ...any) error
}

func scanShowtime(row scanner) (*Showtime, error) {
	s := &Showtime{}
	var start, end, created engine.LocalTime
	err := row.Scan(&s.ID, &s.RoomID, &s.MovieID, &s.Format, &s.Language, &s.PriceCents, &start, &end, &s.Overnight, &s.Status, &created)
	if err != nil {
		return nil, err
	}
	s.Start, s.End, s.Created = start.Time, end.Time, created.Time
	return s, nil
}

// admitShowtime is the check-then-insert for one showtime. The caller owns the transaction.
func admitShowtime(ctx context.Context, tx *sql.Tx, tmpl *showtimeTemplate, iv Interval) (*Showtime, error) {
	if err := checkConflict(ctx, tx, tmpl.RoomID, iv, 0); err != nil {
		return nil, err
	}
	return insertShowtime(ctx, tx, tmpl, iv)
}

func insertShowtime(ctx context.Context, tx *sql.Tx, tmpl *showtimeTemplate, iv Interval) (*Showtime, error) {
	row := tx.QueryRowContext(ctx, `INSERT INTO showtimes (room_id, movie_id, format, language, price_cents, start_ts, end_ts, overnight)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING `+showtimeColumns,
		tmpl.RoomID, tmpl.MovieID, tmpl.Format, tmpl.Language, tmpl.PriceCents, iv.Start.Unix(), iv.End.Unix(), iv.Overnight)
	s, err := scanShowtime(row)
	if err != nil {
		return nil, classifyStoreError(err)
	}
	return s, nil
}

// CreateShowtime admits a single showtime. When the request has neither a
// duration nor an end time the movie's running time is used.
func (m *Module) CreateShowtime(ctx context.Context, req ShowtimeRequest) (*Showtime, error) {
	if err := engine.Validate(req); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err)
	}

	var created *Showtime
	err := db.WithTx(ctx, m.db, func(tx *sql.Tx) error {
		tmpl, err := prepareShowtime(ctx, tx, req.RoomID, req.MovieID, req.Language, req.PriceCents)
		if err != nil {
			return err
		}

		iv, err := req.IntervalSpec.Resolve(m.loc, tmpl.DefaultMinutes)
		if err != nil {
			return err
		}

		created, err = admitShowtime(ctx, tx, tmpl, iv)
		return err
	})

	subject := engine.Subject{Kind: string(KindShowtime)}
	if created != nil {
		subject.ID = created.ID
	}
	m.audit(ctx, subject, "ShowtimeCreated", err, fmt.Sprintf("room=%d date=%s start=%s", req.RoomID, req.Date, req.Start))
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (m *Module) GetShowtime(ctx context.Context, id int64) (*Showtime, error) {
	s, err := scanShowtime(m.db.QueryRowContext(ctx, "SELECT "+showtimeColumns+" FROM showtimes WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("showtime %d: %w", id, ErrNotFound)
	}
	return s, err
}

// DeleteShowtime hard-deletes an active showtime. Finished showtimes are history and stay.
func (m *Module) DeleteShowtime(ctx context.Context, id int64) error {
	err := db.WithTx(ctx, m.db, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx, "SELECT status FROM showtimes WHERE id = $1", id).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("showtime %d: %w", id, ErrNotFound)
		}
		if err != nil {
			return err
		}
		if status != StatusActive {
			return fmt.Errorf("showtime %d is %s: %w", id, status, ErrNotEditable)
		}
		_, err = tx.ExecContext(ctx, "DELETE FROM showtimes WHERE id = $1", id)
		return err
	})
	m.audit(ctx, engine.Subject{Kind: string(KindShowtime), ID: id}, "ShowtimeDeleted", err, "")
	return err
}

const eventColumns = "id, room_id, title, type_label, description, contact_name, contact_email, contact_phone, start_ts, end_ts, overnight, status, created"

func scanEvent(row scanner) (*ReservedEvent, error) {
	e := &ReservedEvent{}
	var start, end, created engine.LocalTime
	err := row.Scan(&e.ID, &e.RoomID, &e.Title, &e.TypeLabel, &e.Description, &e.ContactName, &e.ContactEmail, &e.ContactPhone, &start, &end, &e.Overnight, &e.Status, &created)
	if err != nil {
		return nil, err
	}
	e.Start, e.End, e.Created = start.Time, end.Time, created.Time
	e.PaymentDue = e.Start.Add(-paymentLeadTime)
	return e, nil
}

func getEvent(ctx context.Context, q queryer, id int64) (*ReservedEvent, error) {
	e, err := scanEvent(q.QueryRowContext(ctx, "SELECT "+eventColumns+" FROM reserved_events WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reserved event %d: %w", id, ErrNotFound)
	}
	return e, err
}

func (m *Module) GetReservedEvent(ctx context.Context, id int64) (*ReservedEvent, error) {
	return getEvent(ctx, m.db, id)
}

// CreateReservedEvent admits a private booking. The returned event carries
// PaymentDue, one day before it starts.
func (m *Module) CreateReservedEvent(ctx context.Context, req EventRequest) (*ReservedEvent, error) {
	if err := engine.Validate(req); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err)
	}
	iv, err := req.IntervalSpec.Resolve(m.loc, 0)
	if err != nil {
		return nil, err
	}

	var event *ReservedEvent
	err = db.WithTx(ctx, m.db, func(tx *sql.Tx) error {
		room, err := requireRoom(ctx, tx, req.RoomID)
		if err != nil {
			return err
		}
		if err := checkConflict(ctx, tx, req.RoomID, iv, 0); err != nil {
			return err
		}

		row := tx.QueryRowContext(ctx, `INSERT INTO reserved_events (room_id, title, type_label, description, contact_name, contact_email, contact_phone, start_ts, end_ts, overnight)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING `+eventColumns,
			req.RoomID, req.Title, req.TypeLabel, req.Description, req.ContactName, req.ContactEmail, req.ContactPhone, iv.Start.Unix(), iv.End.Unix(), iv.Overnight)
		event, err = scanEvent(row)
		if err != nil {
			return classifyStoreError(err)
		}

		if event.ContactEmail != "" {
			subj, body, err := confirmationMail(event, room, m.loc)
			if err != nil {
				return err
			}
			return email.Enqueue(ctx, tx, event.ContactEmail, subj, body)
		}
		return nil
	})

	subject := engine.Subject{Kind: string(KindReservedEvent)}
	if event != nil {
		subject.ID = event.ID
	}
	m.audit(ctx, subject, "ReservedEventCreated", err, fmt.Sprintf("room=%d title=%q", req.RoomID, req.Title))
	if err != nil {
		return nil, err
	}
	return event, nil
}

// lockEditable loads an event that may still be changed: it must be reserved and unpaid.
func (m *Module) lockEditable(ctx context.Context, tx *sql.Tx, id int64) (*ReservedEvent, error) {
	event, err := getEvent(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if event.Status != StatusReserved {
		return nil, fmt.Errorf("reserved event %d is %s: %w", id, event.Status, ErrNotEditable)
	}
	paid, err := m.guard.HasPayment(ctx, tx, id)
	if err != nil {
		return nil, fmt.Errorf("checking payments: %w", err)
	}
	if paid {
		return nil, fmt.Errorf("reserved event %d: %w", id, ErrHasPayment)
	}
	return event, nil
}

// UpdateReservedEvent re-runs admission for the patched event, excluding the event itself.
func (m *Module) UpdateReservedEvent(ctx context.Context, id int64, patch EventPatch) (*ReservedEvent, error) {
	if err := engine.Validate(patch); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err)
	}

	var updated *ReservedEvent
	err := db.WithTx(ctx, m.db, func(tx *sql.Tx) error {
		current, err := m.lockEditable(ctx, tx, id)
		if err != nil {
			return err
		}

		details := current.EventDetails
		patch.apply(&details)
		if err := engine.Validate(details); err != nil {
			return fmt.Errorf("%w: %s", ErrValidation, err)
		}

		roomID := current.RoomID
		if patch.RoomID != nil && *patch.RoomID != roomID {
			if _, err := requireRoom(ctx, tx, *patch.RoomID); err != nil {
				return err
			}
			roomID = *patch.RoomID
		}

		iv := current.Interval
		if patch.Interval != nil {
			if iv, err = patch.Interval.Resolve(m.loc, 0); err != nil {
				return err
			}
		}

		if err := checkConflict(ctx, tx, roomID, iv, id); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `UPDATE reserved_events SET room_id = $1, title = $2, type_label = $3, description = $4,
			contact_name = $5, contact_email = $6, contact_phone = $7, start_ts = $8, end_ts = $9, overnight = $10 WHERE id = $11`,
			roomID, details.Title, details.TypeLabel, details.Description, details.ContactName, details.ContactEmail, details.ContactPhone,
			iv.Start.Unix(), iv.End.Unix(), iv.Overnight, id)
		if err != nil {
			return classifyStoreError(err)
		}

		updated, err = getEvent(ctx, tx, id)
		return err
	})

	m.audit(ctx, engine.Subject{Kind: string(KindReservedEvent), ID: id}, "ReservedEventUpdated", err, "")
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// CancelReservedEvent is terminal. The event leaves the conflict universe immediately.
func (m *Module) CancelReservedEvent(ctx context.Context, id int64) error {
	err := db.WithTx(ctx, m.db, func(tx *sql.Tx) error {
		event, err := m.lockEditable(ctx, tx, id)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, "UPDATE reserved_events SET status = 'cancelled' WHERE id = $1 AND status = 'reserved'", id)
		if err != nil {
			return err
		}
		if event.ContactEmail != "" {
			subj, body, err := cancellationMail(event, m.loc)
			if err != nil {
				return err
			}
			return email.Enqueue(ctx, tx, event.ContactEmail, subj, body)
		}
		return nil
	})
	m.audit(ctx, engine.Subject{Kind: string(KindReservedEvent), ID: id}, "ReservedEventCancelled", err, "")
	return err
}

// ListOccupations returns every occupation of the room, in any status, that
// overlaps the given days (inclusive, in the venue timezone).
func (m *Module) ListOccupations(ctx context.Context, roomID int64, from, to Date) ([]Occupation, error) {
	if to.Before(from) {
		return nil, validationErrorf("to %s is before from %s", to, from)
	}
	start := from.In(m.loc).Unix()
	end := to.AddDays(1).In(m.loc).Unix()

	rows, err := m.db.QueryContext(ctx, `
SELECT 'showtime', s.id, s.room_id, COALESCE(mv.title, ''), s.status, s.start_ts, s.end_ts
    FROM showtimes s LEFT JOIN movies mv ON mv.id = s.movie_id
    WHERE s.room_id = $1 AND NOT (s.end_ts <= $2 OR s.start_ts >= $3)
UNION ALL
SELECT 'reserved_event', id, room_id, title, status, start_ts, end_ts
    FROM reserved_events
    WHERE room_id = $1 AND NOT (end_ts <= $2 OR start_ts >= $3)
ORDER BY 6, 2`, roomID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Occupation{}
	for rows.Next() {
		var o Occupation
		var s, e engine.LocalTime
		if err := rows.Scan(&o.Kind, &o.ID, &o.RoomID, &o.Label, &o.Status, &s, &e); err != nil {
			return nil, err
		}
		o.Start, o.End = s.Time, e.Time
		out = append(out, o)
	}
	return out, rows.Err()
}
