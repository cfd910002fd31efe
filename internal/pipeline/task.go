package pipeline

import (
	"context"
	"errors"
	"sync"

	"quill/internal/logging"
	"quill/internal/questions"
)

const taskEventBuffer = 64

// Task is one sample being processed in the background.
type Task struct {
	events chan Event
	done   chan struct{}
	cancel context.CancelFunc

	once   sync.Once
	result *Result
	err    error
}

// Events streams the task's events and is closed when the task finishes.
// Events are dropped rather than blocking the task when nobody reads.
func (t *Task) Events() <-chan Event { return t.events }

// Done is closed when the task has finished.
func (t *Task) Done() <-chan struct{} { return t.done }

// Cancel requests cancellation. The task stops before its next stage.
func (t *Task) Cancel() { t.cancel() }

// Wait blocks until the task finishes and returns its result.
func (t *Task) Wait() (*Result, error) {
	<-t.done
	return t.result, t.err
}

// Start processes q on a new goroutine.
func (p *Pipeline) Start(ctx context.Context, q questions.Question) *Task {
	ctx, cancel := context.WithCancel(ctx)
	task := &Task{
		events: make(chan Event, taskEventBuffer),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	sink := func(event Event) {
		select {
		case task.events <- event:
		default:
			p.logger.Debug("task event dropped",
				logging.String(logging.FieldSampleID, event.SampleID),
				logging.String("event", string(event.Type)),
			)
		}
	}
	go func() {
		defer cancel()
		defer close(task.done)
		defer close(task.events)
		task.result, task.err = p.process(ctx, q, sink)
	}()
	return task
}

// Summary is the outcome of ProcessAll.
type Summary struct {
	Results   []*Result
	Succeeded int
	Failed    int
}

// ProcessAll processes each question independently and in order. A failure
// is recorded against its sample and processing moves on; only cancellation
// stops the run early. The returned error joins every sample failure.
func (p *Pipeline) ProcessAll(ctx context.Context, qs []questions.Question) (*Summary, error) {
	summary := &Summary{Results: make([]*Result, 0, len(qs))}
	var errs []error
	for _, q := range qs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		task := p.Start(ctx, q)
		result, err := task.Wait()
		summary.Results = append(summary.Results, result)
		if err != nil {
			summary.Failed++
			errs = append(errs, err)
			continue
		}
		summary.Succeeded++
	}
	return summary, errors.Join(errs...)
}
