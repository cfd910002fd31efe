package journal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"quill/internal/pipeline"
)

const defaultLimit = 50

// EventRecord is one stored pipeline event.
type EventRecord struct {
	ID            int64     `json:"id"`
	SampleID      string    `json:"sample_id"`
	SampleNumber  int       `json:"sample_number"`
	Type          string    `json:"event_type"`
	Stage         string    `json:"stage,omitempty"`
	FromState     string    `json:"from_state"`
	ToState       string    `json:"to_state"`
	Attempt       int       `json:"attempt,omitempty"`
	Message       string    `json:"message,omitempty"`
	Error         string    `json:"error,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// EventFilter narrows Events. Zero values match everything.
type EventFilter struct {
	SampleID     string
	SampleNumber int
	Limit        int
}

// RecordEvent stores a pipeline event.
func (s *Store) RecordEvent(ctx context.Context, event pipeline.Event) error {
	var errText string
	if event.Err != nil {
		errText = event.Err.Error()
	}
	_, err := s.exec(ctx, `INSERT INTO events
		(sample_id, sample_number, event_type, stage, from_state, to_state, attempt, message, error, correlation_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.SampleID,
		event.SampleNumber,
		string(event.Type),
		string(event.Stage),
		event.From.String(),
		event.To.String(),
		event.Attempt,
		event.Message,
		errText,
		event.CorrelationID,
		formatTime(event.Time),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Events returns the most recent events matching filter, oldest first.
func (s *Store) Events(ctx context.Context, filter EventFilter) ([]EventRecord, error) {
	var (
		where []string
		args  []any
	)
	if filter.SampleID != "" {
		where = append(where, "sample_id = ?")
		args = append(args, filter.SampleID)
	}
	if filter.SampleNumber > 0 {
		where = append(where, "sample_number = ?")
		args = append(args, filter.SampleNumber)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	query := `SELECT id, sample_id, sample_number, event_type, stage, from_state, to_state,
		attempt, message, error, correlation_id, created_at FROM events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var (
			rec     EventRecord
			created string
		)
		if err := rows.Scan(&rec.ID, &rec.SampleID, &rec.SampleNumber, &rec.Type, &rec.Stage,
			&rec.FromState, &rec.ToState, &rec.Attempt, &rec.Message, &rec.Error,
			&rec.CorrelationID, &created); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		rec.CreatedAt = parseTime(created)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
