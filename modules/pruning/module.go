// Package pruning enforces retention on append-only tables.
package pruning

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/marquee-cinema/marquee/engine"
	"github.com/marquee-cinema/marquee/engine/db"
)

const migration = `
CREATE TABLE IF NOT EXISTS pruning_jobs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    table_name TEXT NOT NULL,
    column TEXT NOT NULL DEFAULT 'created',
    criteria TEXT NOT NULL DEFAULT '',
    ttl INTEGER NOT NULL DEFAULT (2 * 365 * 86400), -- 2 years
    UNIQUE (table_name, criteria)
) STRICT;

INSERT OR IGNORE INTO pruning_jobs (table_name, column, criteria, ttl) VALUES
    ('audit_events', 'created', '', 365 * 86400),
    ('reserved_events', 'end_ts', 'status = ''cancelled''', 2 * 365 * 86400);
`

type Module struct {
	db *sql.DB
}

func New(d *sql.DB) *Module {
	db.MustMigrate(d, migration)
	return &Module{db: d}
}

func (m *Module) AttachWorkers(mgr *engine.ProcMgr) {
	mgr.Add(engine.Poll(time.Hour, m.runPruneJobs))
}

type job struct {
	table string
	query string
}

func (m *Module) runPruneJobs(ctx context.Context) bool {
	jobs, err := m.listPruneJobs(ctx)
	if err != nil {
		slog.Error("failed to list prune jobs", "error", err)
		return false
	}
	for _, j := range jobs {
		m.runPruneJob(ctx, j)
	}
	return false
}

func (m *Module) listPruneJobs(ctx context.Context) ([]job, error) {
	query, err := m.db.QueryContext(ctx, "SELECT table_name, column, criteria, ttl FROM pruning_jobs ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer query.Close()

	jobs := []job{}
	for query.Next() {
		var table, column, criteria string
		var ttl int // seconds
		if err := query.Scan(&table, &column, &criteria, &ttl); err != nil {
			return nil, err
		}

		q := fmt.Sprintf("DELETE FROM %s WHERE %s < unixepoch() - %d", table, column, ttl)
		if criteria != "" {
			q += " AND (" + criteria + ")"
		}
		jobs = append(jobs, job{table: table, query: q})
	}

	if err := query.Err(); err != nil {
		return nil, err
	}

	return jobs, nil
}

func (m *Module) runPruneJob(ctx context.Context, j job) {
	start := time.Now()
	result, err := m.db.ExecContext(ctx, j.query)
	if err != nil {
		slog.Error("failed to run prune job", "table", j.table, "error", err)
		return
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected > 0 {
		slog.Info("prune job completed", "table", j.table, "duration", time.Since(start), "rows", rowsAffected)
	}
}
