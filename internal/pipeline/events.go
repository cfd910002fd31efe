package pipeline

import (
	"context"
	"time"
)

// Stage names a unit of pipeline work.
type Stage string

const (
	StageRecording     Stage = "recording"
	StageTranscription Stage = "transcription"
	StageCleanup       Stage = "cleanup"
	StagePlaceholder   Stage = "placeholder"
)

// EventType classifies pipeline events.
type EventType string

const (
	EventTransition EventType = "transition"
	EventSkipped    EventType = "skipped"
	EventRetry      EventType = "retry"
	EventFailed     EventType = "failed"
	EventCompleted  EventType = "completed"
)

// Event describes one step of a sample's progress.
type Event struct {
	Type          EventType
	SampleID      string
	SampleNumber  int
	Stage         Stage
	From          State
	To            State
	Attempt       int
	Delay         time.Duration
	Message       string
	Err           error
	CorrelationID string
	Time          time.Time
}

// Observer receives every event the pipeline emits. Observe is called
// synchronously on the emitting goroutine.
type Observer interface {
	Observe(ctx context.Context, event Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, event Event)

// Observe calls f.
func (f ObserverFunc) Observe(ctx context.Context, event Event) {
	f(ctx, event)
}
