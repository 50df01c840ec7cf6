package booking

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/marquee-cinema/marquee/engine"
	"github.com/marquee-cinema/marquee/engine/db"
)

var sweepQueries = []string{
	"UPDATE showtimes SET status = 'finished' WHERE status = 'active' AND end_ts <= $1",
	"UPDATE reserved_events SET status = 'finished' WHERE status = 'reserved' AND end_ts <= $1",
}

// SweepExpired marks every active occupation that ended at or before asOf as finished.
// It returns the number of rows changed, so a repeat run with nothing new returns 0.
func (m *Module) SweepExpired(ctx context.Context, asOf time.Time) (int64, error) {
	var total int64
	err := db.WithTx(ctx, m.db, func(tx *sql.Tx) error {
		for _, q := range sweepQueries {
			res, err := tx.ExecContext(ctx, q, asOf.Unix())
			if err != nil {
				return fmt.Errorf("sweeping: %w", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			total += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if total > 0 {
		m.events.LogEvent(ctx, "sweeper", engine.Subject{}, "Swept", true, fmt.Sprintf("as_of=%d rows=%d", asOf.Unix(), total))
	}
	return total, nil
}

// NextExpiry returns when the earliest active occupation ends, or nil when nothing is active.
func (m *Module) NextExpiry(ctx context.Context) (*time.Time, error) {
	var next sql.NullInt64
	err := m.db.QueryRowContext(ctx, `
SELECT MIN(end_ts) FROM (
    SELECT end_ts FROM showtimes WHERE status = 'active'
    UNION ALL
    SELECT end_ts FROM reserved_events WHERE status = 'reserved'
)`).Scan(&next)
	if err != nil {
		return nil, err
	}
	if !next.Valid {
		return nil, nil
	}
	t := time.Unix(next.Int64, 0).In(engine.Location())
	return &t, nil
}

func (m *Module) sweepNow(ctx context.Context) bool {
	start := time.Now()
	n, err := m.SweepExpired(ctx, m.now())
	if err != nil {
		slog.Error("failed to sweep expired bookings", "error", err)
		return false
	}
	if n > 0 {
		slog.Info("swept expired bookings", "duration", time.Since(start), "rows", n)
	}
	return false
}
