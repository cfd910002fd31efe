package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"quill/internal/dataset"
	"quill/internal/logging"
	"quill/internal/questions"
	"quill/internal/recording"
	"quill/internal/services"
)

// ErrNoActiveRecording is returned when stopping without a running session.
var ErrNoActiveRecording = errors.New("no active recording")

type activeRecording struct {
	run     *run
	session Session
	device  string
	started time.Time
}

// Recording describes a finished capture.
type Recording struct {
	Question questions.Question
	Capture  recording.Result
	Sample   dataset.Sample
}

// StartRecording begins capturing an answer to q. A question without an id
// is given one, saved to the registry before capture starts. device may be
// empty to use the configured or first available device.
func (p *Pipeline) StartRecording(ctx context.Context, q questions.Question, device string) (questions.Question, error) {
	if p.capture == nil {
		return q, services.Wrap(services.ErrConfiguration, "pipeline", "record", "audio capture not configured", nil)
	}
	if p.registry == nil {
		return q, services.Wrap(services.ErrConfiguration, "pipeline", "record", "question registry not loaded", nil)
	}

	p.recMu.Lock()
	defer p.recMu.Unlock()
	if p.active != nil {
		return q, recording.ErrRecordingActive
	}
	if _, exists := p.layout.Resolve(dataset.SlotAudio, q.ID, q.Number); exists {
		return q, services.Wrap(services.ErrValidation, "pipeline", "record", fmt.Sprintf("question %d already has a recording", q.Number), nil)
	}

	q, allocated, err := p.registry.EnsureID(q.Number)
	if err != nil {
		return q, err
	}
	if allocated {
		if err := p.registry.Save(); err != nil {
			return q, err
		}
		p.logger.Info("question id allocated", logging.Int(logging.FieldSampleNumber, q.Number), logging.String(logging.FieldSampleID, q.ID))
	}

	device, err = p.selectDevice(ctx, device)
	if err != nil {
		return q, err
	}

	r := p.newRun(ctx, q, StateIdle, nil)
	if err := r.machine.Transition(StateRecording); err != nil {
		return q, err
	}
	if err := p.layout.EnsureDirs(); err != nil {
		r.fail(StageRecording, err)
		return q, err
	}
	session, err := p.capture.Start(ctx, device, p.layout.CanonicalPath(dataset.SlotAudio, q.ID))
	if err != nil {
		r.fail(StageRecording, err)
		return q, err
	}
	p.active = &activeRecording{run: r, session: session, device: device, started: time.Now()}
	return q, nil
}

func (p *Pipeline) selectDevice(ctx context.Context, device string) (string, error) {
	if device = strings.TrimSpace(device); device != "" {
		return device, nil
	}
	if device = strings.TrimSpace(p.settings.Device); device != "" {
		return device, nil
	}
	devices, err := p.capture.Devices(ctx)
	if err != nil {
		return "", err
	}
	if len(devices) == 0 {
		return "", services.Wrap(services.ErrDevice, "pipeline", "record", "no capture device found", nil)
	}
	return devices[0].ID, nil
}

// Recording reports whether a capture is running and for which question.
func (p *Pipeline) Recording() (questions.Question, bool) {
	p.recMu.Lock()
	defer p.recMu.Unlock()
	if p.active == nil {
		return questions.Question{}, false
	}
	return p.active.run.q, true
}

// StopRecording finalizes the running capture, marks the question recorded
// and refreshes its sample record.
func (p *Pipeline) StopRecording(ctx context.Context) (*Recording, error) {
	p.recMu.Lock()
	active := p.active
	p.active = nil
	p.recMu.Unlock()
	if active == nil {
		return nil, ErrNoActiveRecording
	}
	r := active.run

	captured, err := active.session.Stop()
	if err != nil {
		r.fail(StageRecording, err)
		return nil, err
	}
	if err := p.registry.MarkRecorded(r.q.ID); err != nil {
		r.fail(StageRecording, err)
		return nil, err
	}
	if err := p.registry.Save(); err != nil {
		r.fail(StageRecording, err)
		return nil, err
	}
	r.q.HasRecording = true
	if err := r.persist(); err != nil {
		r.fail(StageRecording, err)
		return nil, err
	}
	if err := r.machine.Transition(StateRecorded); err != nil {
		return nil, err
	}
	r.ran = append(r.ran, StageRecording)
	r.logger.Info("answer recorded",
		logging.String("device", active.device),
		logging.Float64("duration_seconds", captured.DurationSeconds),
	)
	return &Recording{Question: r.q, Capture: captured, Sample: r.sample}, nil
}

// AbortRecording discards the running capture.
func (p *Pipeline) AbortRecording() error {
	p.recMu.Lock()
	active := p.active
	p.active = nil
	p.recMu.Unlock()
	if active == nil {
		return ErrNoActiveRecording
	}
	err := active.session.Abort()
	active.run.fail(StageRecording, context.Canceled)
	return err
}
