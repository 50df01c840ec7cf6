package booking

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/marquee-cinema/marquee/engine"
)

type Kind string

const (
	KindShowtime      Kind = "showtime"
	KindReservedEvent Kind = "reserved_event"
)

const (
	StatusActive    = "active"
	StatusReserved  = "reserved"
	StatusCancelled = "cancelled"
	StatusFinished  = "finished"
)

// Occupation is the shape shared by showtimes and reserved events.
// It is all the conflict detector ever looks at.
type Occupation struct {
	Kind   Kind      `json:"kind"`
	ID     int64     `json:"id"`
	RoomID int64     `json:"room_id"`
	Label  string    `json:"label"`
	Status string    `json:"status"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
}

// Active reports whether the occupation takes part in conflict detection.
func (o Occupation) Active() bool {
	switch o.Kind {
	case KindShowtime:
		return o.Status == StatusActive
	case KindReservedEvent:
		return o.Status == StatusReserved
	default:
		return false
	}
}

func (o Occupation) Interval() Interval { return Interval{Start: o.Start, End: o.End} }

func (o Occupation) String() string {
	return fmt.Sprintf("%s %d %q %s-%s", o.Kind, o.ID, o.Label, o.Start.Format("2006-01-02 15:04"), o.End.Format("15:04"))
}

// queryer is satisfied by *sql.Tx and *sql.DB. Admission always passes the
// transaction that will perform the write.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

const conflictCountQuery = `
SELECT
    (SELECT COUNT(*) FROM showtimes
        WHERE room_id = $1 AND status = 'active' AND NOT (end_ts <= $2 OR start_ts >= $3))
  + (SELECT COUNT(*) FROM reserved_events
        WHERE room_id = $1 AND status = 'reserved' AND id != $4 AND NOT (end_ts <= $2 OR start_ts >= $3))`

const conflictListQuery = `
SELECT 'showtime', s.id, s.room_id, COALESCE(mv.title, ''), s.status, s.start_ts, s.end_ts
    FROM showtimes s LEFT JOIN movies mv ON mv.id = s.movie_id
    WHERE s.room_id = $1 AND s.status = 'active' AND NOT (s.end_ts <= $2 OR s.start_ts >= $3)
UNION ALL
SELECT 'reserved_event', id, room_id, title, status, start_ts, end_ts
    FROM reserved_events
    WHERE room_id = $1 AND status = 'reserved' AND id != $4 AND NOT (end_ts <= $2 OR start_ts >= $3)
ORDER BY 6, 2`

// hasConflict reports whether any active occupation in the room overlaps iv.
// excludeEventID removes a reserved event from its own conflict universe; pass 0 for none.
func hasConflict(ctx context.Context, q queryer, roomID int64, iv Interval, excludeEventID int64) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, conflictCountQuery, roomID, iv.Start.Unix(), iv.End.Unix(), excludeEventID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("counting conflicts: %w", err)
	}
	return n > 0, nil
}

// conflictsFor lists the occupations hasConflict would have counted.
func conflictsFor(ctx context.Context, q queryer, roomID int64, iv Interval, excludeEventID int64) ([]Occupation, error) {
	rows, err := q.QueryContext(ctx, conflictListQuery, roomID, iv.Start.Unix(), iv.End.Unix(), excludeEventID)
	if err != nil {
		return nil, fmt.Errorf("listing conflicts: %w", err)
	}
	defer rows.Close()

	var out []Occupation
	for rows.Next() {
		var o Occupation
		var start, end engine.LocalTime
		if err := rows.Scan(&o.Kind, &o.ID, &o.RoomID, &o.Label, &o.Status, &start, &end); err != nil {
			return nil, err
		}
		o.Start = start.Time
		o.End = end.Time
		out = append(out, o)
	}
	return out, rows.Err()
}

// checkConflict returns a *ConflictError when iv collides with anything in the room.
func checkConflict(ctx context.Context, q queryer, roomID int64, iv Interval, excludeEventID int64) error {
	conflict, err := hasConflict(ctx, q, roomID, iv, excludeEventID)
	if err != nil || !conflict {
		return err
	}
	conflicts, err := conflictsFor(ctx, q, roomID, iv, excludeEventID)
	if err != nil {
		return err
	}
	return &ConflictError{Conflicts: conflicts}
}
