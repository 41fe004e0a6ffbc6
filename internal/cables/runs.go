package cables

import (
	"context"
	"fmt"
	"time"
)

// Run is the persisted summary of one discovery run.
type Run struct {
	ID             string    `json:"id" yaml:"id"`
	DumpDir        string    `json:"dump_dir" yaml:"dump_dir"`
	LogicalTime    time.Time `json:"logical_time" yaml:"logical_time"`
	Ports          int       `json:"ports" yaml:"ports"`
	CablesNew      int       `json:"cables_new" yaml:"cables_new"`
	CablesReplaced int       `json:"cables_replaced" yaml:"cables_replaced"`
	Issues         int       `json:"issues" yaml:"issues"`
	Unattributed   int       `json:"unattributed" yaml:"unattributed"`
	StartedAt      time.Time `json:"started_at" yaml:"started_at"`
}

// RecordRun stores a discovery run summary.
func (s *Store) RecordRun(ctx context.Context, r Run) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO discovery_runs (
			id, dump_dir, logical_time, ports, cables_new, cables_replaced,
			issues, unattributed, started_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.DumpDir, r.LogicalTime.Unix(), r.Ports, r.CablesNew, r.CablesReplaced,
		r.Issues, r.Unattributed, r.StartedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", r.ID, err)
	}
	return nil
}

// ListRuns returns the most recent discovery runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, dump_dir, logical_time, ports, cables_new, cables_replaced,
			issues, unattributed, started_at
		FROM discovery_runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r                Run
			logical, started int64
		)
		if err := rows.Scan(&r.ID, &r.DumpDir, &logical, &r.Ports, &r.CablesNew, &r.CablesReplaced,
			&r.Issues, &r.Unattributed, &started); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.LogicalTime = fromUnix(logical)
		r.StartedAt = fromUnix(started)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
