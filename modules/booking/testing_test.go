package booking

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/marquee-cinema/marquee/engine"
	"github.com/marquee-cinema/marquee/modules/core"
	"github.com/stretchr/testify/require"
)

const (
	room3 = int64(3)
	room4 = int64(4)
	heat  = int64(1) // 130 minutes
)

type fakeGuard map[int64]bool

func (g fakeGuard) HasPayment(ctx context.Context, tx *sql.Tx, id int64) (bool, error) {
	return g[id], nil
}

func newTestModule(t *testing.T, guard PaymentGuard) (*Module, *sql.DB) {
	d := core.NewTestDB(t)
	core.SeedRoom(t, d, room3, "Room 3")
	core.SeedRoom(t, d, room4, "Room 4")
	core.SeedMovie(t, d, heat, "Heat", 130)
	m := New(d, time.UTC, guard, engine.NewEventLogger(d), engine.NewValueSignerWithKey[int64]([]byte("test")))
	return m, d
}

func mustShowtime(t *testing.T, m *Module, room int64, date, start string, minutes int) *Showtime {
	s, err := m.CreateShowtime(t.Context(), ShowtimeRequest{
		RoomID:       room,
		MovieID:      heat,
		IntervalSpec: IntervalSpec{Date: date, Start: start, DurationMinutes: minutes},
	})
	require.NoError(t, err)
	return s
}

func mustEvent(t *testing.T, m *Module, room int64, date, start, end string) *ReservedEvent {
	e, err := m.CreateReservedEvent(t.Context(), EventRequest{
		RoomID:       room,
		EventDetails: EventDetails{Title: "Birthday", ContactName: "Laura", ContactEmail: "laura@example.com"},
		IntervalSpec: IntervalSpec{Date: date, Start: start, End: end},
	})
	require.NoError(t, err)
	return e
}

func countRows(t *testing.T, d *sql.DB, query string, args ...any) int {
	var n int
	require.NoError(t, d.QueryRow(query, args...).Scan(&n))
	return n
}
