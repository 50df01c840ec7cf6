// Package metrics snapshots booking counts into a time series table.
package metrics

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/marquee-cinema/marquee/engine"
	"github.com/marquee-cinema/marquee/engine/db"
)

const migration = `
CREATE TABLE IF NOT EXISTS metrics (
    timestamp REAL NOT NULL DEFAULT (unixepoch('subsec')),
    series TEXT NOT NULL,
    value REAL NOT NULL
) STRICT;

CREATE INDEX IF NOT EXISTS metrics_series_timestamp_idx ON metrics (series, timestamp);
`

const maxPoints = 500

type Module struct {
	db *sql.DB
}

func New(d *sql.DB) *Module {
	db.MustMigrate(d, migration)
	return &Module{db: d}
}

func (m *Module) AttachRoutes(router *engine.Router) {
	router.Handle("GET", "/api/metrics/:series", router.WithAuthn(m.handleGetSeries))
}

func (m *Module) AttachWorkers(mgr *engine.ProcMgr) {
	mgr.Add(engine.Poll(time.Minute, m.visitAggregates))
}

func (m *Module) visitAggregates(ctx context.Context) bool {
	for _, agg := range aggregates {
		m.aggregate(ctx, agg)
	}
	return false
}

// aggregate records a new point if the series is older than its interval.
// It returns true when a point was written.
func (m *Module) aggregate(ctx context.Context, agg *aggregate) bool {
	var since *float64
	err := m.db.QueryRowContext(ctx, "SELECT unixepoch('subsec') - MAX(timestamp) FROM metrics WHERE series = $1", agg.Name).Scan(&since)
	if err != nil && err != sql.ErrNoRows {
		slog.Error("failed to check for metric", "metric", agg.Name, "error", err)
		return false
	}
	if err == nil && since != nil && *since < agg.Interval.Seconds() {
		return false
	}

	var args []any
	if strings.Contains(agg.Query, "$1") {
		args = append(args, time.Now().Add(-agg.Interval).Unix())
	}
	var value float64
	if err := m.db.QueryRowContext(ctx, agg.Query, args...).Scan(&value); err != nil {
		slog.Error("failed to query metric", "metric", agg.Name, "error", err)
		return false
	}

	_, err = m.db.ExecContext(ctx, "INSERT INTO metrics (series, value) VALUES ($1, $2)", agg.Name, value)
	if err != nil {
		slog.Error("failed to insert metric", "metric", agg.Name, "error", err)
		return false
	}
	slog.Info("aggregated metric", "metric", agg.Name, "value", value)

	return true
}

type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

func (m *Module) handleGetSeries(r *http.Request, ps httprouter.Params) engine.Response {
	rows, err := m.db.QueryContext(r.Context(), "SELECT timestamp, value FROM metrics WHERE series = $1 ORDER BY timestamp DESC LIMIT $2", ps.ByName("series"), maxPoints)
	if err != nil {
		return engine.Error(err)
	}
	defer rows.Close()

	points := []Point{}
	for rows.Next() {
		var ts, value float64
		if err := rows.Scan(&ts, &value); err != nil {
			return engine.Error(err)
		}
		sec := int64(ts)
		points = append(points, Point{Timestamp: time.Unix(sec, int64((ts-float64(sec))*1e9)).In(engine.Location()), Value: value})
	}
	if err := rows.Err(); err != nil {
		return engine.Error(err)
	}
	if len(points) == 0 {
		return engine.NotFoundf("no points for series %q", ps.ByName("series"))
	}
	return engine.JSON(points)
}
