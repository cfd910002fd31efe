package journal

import (
	"context"
	"fmt"
	"time"

	"quill/internal/reconcile"
)

// BuildRecord summarizes one reconciliation run.
type BuildRecord struct {
	ID            int64         `json:"id"`
	Samples       int           `json:"samples"`
	Completed     int           `json:"completed"`
	Removed       int           `json:"removed"`
	ProbeFailures int           `json:"probe_failures"`
	Rebuilt       bool          `json:"rebuilt"`
	Duration      time.Duration `json:"duration_ns"`
	CorrelationID string        `json:"correlation_id,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// BuildFromResult converts a reconcile result into a journal record.
func BuildFromResult(res *reconcile.Result, correlationID string) BuildRecord {
	return BuildRecord{
		Samples:       len(res.Samples),
		Completed:     res.Statistics.CompletedSamples,
		Removed:       res.Removed,
		ProbeFailures: len(res.ProbeFailures),
		Rebuilt:       res.Rebuilt,
		Duration:      res.Duration,
		CorrelationID: correlationID,
	}
}

// RecordBuild stores a build summary.
func (s *Store) RecordBuild(ctx context.Context, rec BuildRecord) error {
	rebuilt := 0
	if rec.Rebuilt {
		rebuilt = 1
	}
	_, err := s.exec(ctx, `INSERT INTO builds
		(samples, completed, removed, probe_failures, rebuilt, duration_ms, correlation_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Samples,
		rec.Completed,
		rec.Removed,
		rec.ProbeFailures,
		rebuilt,
		rec.Duration.Milliseconds(),
		rec.CorrelationID,
		formatTime(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert build: %w", err)
	}
	return nil
}

// Builds returns up to limit recent builds, newest first.
func (s *Store) Builds(ctx context.Context, limit int) ([]BuildRecord, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, samples, completed, removed, probe_failures,
		rebuilt, duration_ms, correlation_id, created_at FROM builds ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query builds: %w", err)
	}
	defer rows.Close()

	var out []BuildRecord
	for rows.Next() {
		var (
			rec        BuildRecord
			rebuilt    int
			durationMS int64
			created    string
		)
		if err := rows.Scan(&rec.ID, &rec.Samples, &rec.Completed, &rec.Removed, &rec.ProbeFailures,
			&rebuilt, &durationMS, &rec.CorrelationID, &created); err != nil {
			return nil, fmt.Errorf("scan build: %w", err)
		}
		rec.Rebuilt = rebuilt != 0
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		rec.CreatedAt = parseTime(created)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate builds: %w", err)
	}
	return out, nil
}
