package metrics

import "time"

// aggregate queries may reference $1, the start of the current interval.
type aggregate struct {
	Name     string
	Query    string
	Interval time.Duration
}

var aggregates = []*aggregate{
	{
		Name:     "active-showtimes",
		Query:    "SELECT COUNT(*) FROM showtimes WHERE status = 'active'",
		Interval: time.Hour,
	},
	{
		Name:     "reserved-events",
		Query:    "SELECT COUNT(*) FROM reserved_events WHERE status = 'reserved'",
		Interval: time.Hour,
	},
	{
		Name:     "daily-finished-showtimes",
		Query:    "SELECT COUNT(*) FROM showtimes WHERE status = 'finished' AND end_ts > $1",
		Interval: 24 * time.Hour,
	},
	{
		Name:     "weekly-cancelled-events",
		Query:    "SELECT COUNT(*) FROM booking_outbox WHERE kind = 'reserved_event' AND event = 'cancelled' AND created > $1",
		Interval: 7 * 24 * time.Hour,
	},
}
