package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"quill/internal/dataset"
	"quill/internal/logging"
	"quill/internal/questions"
	"quill/internal/services"
)

const recordTimeout = 30 * time.Second

// Result reports what one invocation did to a sample.
type Result struct {
	SampleID     string
	SampleNumber int
	State        State
	Ran          []Stage
	Skipped      []Stage
	Sample       dataset.Sample
	Err          error
}

// DetectState derives a sample's state from the artifacts on disk. Stages
// count only while every earlier stage is present, so a gap reopens the
// chain at the first missing step. A text artifact that exists but cannot be
// read is reported as ErrFileSystem alongside the state reached before it.
func (p *Pipeline) DetectState(q questions.Question) (State, error) {
	if _, ok := p.layout.Resolve(dataset.SlotAudio, q.ID, q.Number); !ok {
		return StateIdle, nil
	}
	if ok, err := p.hasText(dataset.SlotRaw, q); err != nil || !ok {
		return StateRecorded, err
	}
	if ok, err := p.hasText(dataset.SlotAuto, q); err != nil || !ok {
		return StateTranscribed, err
	}
	if _, ok := p.layout.Resolve(dataset.SlotManual, q.ID, q.Number); !ok {
		return StateAutoCleaned, nil
	}
	return StatePlaceholderCreated, nil
}

func (p *Pipeline) hasText(slot dataset.Slot, q questions.Question) (bool, error) {
	_, ok, err := p.readText(slot, q)
	return ok, err
}

// readText returns the trimmed artifact content when it exists and is
// non-empty. Only a missing file counts as absent.
func (p *Pipeline) readText(slot dataset.Slot, q questions.Question) (string, bool, error) {
	path, ok := p.layout.Resolve(slot, q.ID, q.Number)
	if !ok {
		return "", false, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, services.Wrap(services.ErrFileSystem, "pipeline", "read "+slot.String(), path, err)
	}
	text := strings.TrimSpace(string(data))
	return text, text != "", nil
}

// nextStage is the stage that would run from state.
func nextStage(state State) Stage {
	switch {
	case state < StateRecorded:
		return StageRecording
	case state < StateTranscribed:
		return StageTranscription
	case state < StateAutoCleaned:
		return StageCleanup
	default:
		return StagePlaceholder
	}
}

// begin opens a run at the sample's detected state. A detection failure is
// recorded against the stage it blocks.
func (p *Pipeline) begin(ctx context.Context, q questions.Question, sink func(Event)) (*run, error) {
	state, err := p.DetectState(q)
	r := p.newRun(ctx, q, state, sink)
	if err != nil {
		r.fail(nextStage(state), err)
	}
	return r, err
}

// Transcribe writes the raw transcript for q unless a non-empty one exists.
// On failure the sample stays recorded.
func (p *Pipeline) Transcribe(ctx context.Context, q questions.Question) (*Result, error) {
	r, err := p.begin(ctx, q, nil)
	if err != nil {
		return r.result(err), err
	}
	err = r.transcribe()
	return r.result(err), err
}

// Cleanup writes the automated cleanup for q unless a non-empty one exists.
// On failure the sample stays transcribed.
func (p *Pipeline) Cleanup(ctx context.Context, q questions.Question) (*Result, error) {
	r, err := p.begin(ctx, q, nil)
	if err != nil {
		return r.result(err), err
	}
	err = r.cleanup()
	return r.result(err), err
}

// Process runs every missing stage for q in order. ctx is checked between
// stages; a stage already under way finishes its external call.
func (p *Pipeline) Process(ctx context.Context, q questions.Question) (*Result, error) {
	return p.process(ctx, q, nil)
}

func (p *Pipeline) process(ctx context.Context, q questions.Question, sink func(Event)) (*Result, error) {
	r, err := p.begin(ctx, q, sink)
	if err != nil {
		return r.result(err), err
	}
	if r.machine.State() == StateIdle {
		err = services.Wrap(services.ErrNotFound, "pipeline", "process", fmt.Sprintf("sample %d has no recording", q.Number), nil)
		r.fail(StageRecording, err)
		return r.result(err), err
	}

	for _, step := range []func() error{r.transcribe, r.cleanup, r.placeholder} {
		if err := ctx.Err(); err != nil {
			return r.result(err), err
		}
		if err := step(); err != nil {
			return r.result(err), err
		}
	}
	r.event(Event{Type: EventCompleted, Message: "sample processed"})
	r.logger.Info("sample processed",
		logging.String("state", r.machine.State().String()),
		logging.Int("stages_run", len(r.ran)),
	)
	return r.result(nil), nil
}

func (r *run) result(err error) *Result {
	return &Result{
		SampleID:     r.q.SampleID(),
		SampleNumber: r.q.Number,
		State:        r.machine.State(),
		Ran:          r.ran,
		Skipped:      r.skipped,
		Sample:       r.sample,
		Err:          err,
	}
}

func (r *run) skip(stage Stage, through ...State) error {
	for _, state := range through {
		if err := r.machine.Transition(state); err != nil {
			return err
		}
	}
	r.skipped = append(r.skipped, stage)
	r.event(Event{Type: EventSkipped, Stage: stage, Message: "artifact already present"})
	return nil
}

func (r *run) fail(stage Stage, err error) {
	if rbErr := r.machine.Rollback(); rbErr != nil && !errors.Is(rbErr, ErrInvalidTransition) {
		r.logger.Debug("rollback failed", logging.Error(rbErr))
	}
	r.logger.Error("stage failed",
		logging.String(logging.FieldStage, string(stage)),
		logging.Error(err),
		logging.String(logging.FieldErrorKind, services.Kind(err)),
		logging.String(logging.FieldEventType, "stage_failed"),
		logging.String(logging.FieldErrorHint, hintFor(err)),
	)
	r.event(Event{Type: EventFailed, Stage: stage, Err: err})
}

func hintFor(err error) string {
	switch {
	case errors.Is(err, services.ErrAuth):
		return "check the API key in .env or config.toml"
	case errors.Is(err, services.ErrTransient):
		return "the service is unavailable; rerun 'quill process' later"
	case errors.Is(err, services.ErrConfiguration):
		return "run 'quill doctor' to check configuration"
	case errors.Is(err, services.ErrFileSystem):
		return "check permissions on the dataset directory"
	case errors.Is(err, context.Canceled):
		return "run was cancelled; rerun to resume"
	default:
		return "see the error for details"
	}
}

// persist refreshes the sample record after an artifact write. The refresh
// runs even when the caller has been cancelled so completed work is kept.
func (r *run) persist() error {
	if r.p.records == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.ctx), recordTimeout)
	defer cancel()
	sample, err := r.p.records.Apply(ctx, r.q, r.models)
	if err != nil {
		return err
	}
	r.sample = sample
	return nil
}

func (r *run) transcribe() error {
	state := r.machine.State()
	if state >= StateTranscribed {
		r.skipped = append(r.skipped, StageTranscription)
		r.event(Event{Type: EventSkipped, Stage: StageTranscription, Message: "raw transcript already present"})
		return nil
	}
	if err := r.machine.Transition(StateTranscribing); err != nil {
		return err
	}
	if r.p.transcriber == nil {
		err := services.Wrap(services.ErrConfiguration, "pipeline", "transcribe", "no transcription service configured", nil)
		r.fail(StageTranscription, err)
		return err
	}
	audio, ok := r.p.layout.Resolve(dataset.SlotAudio, r.q.ID, r.q.Number)
	if !ok {
		err := services.Wrap(services.ErrNotFound, "pipeline", "transcribe", fmt.Sprintf("audio for sample %d", r.q.Number), nil)
		r.fail(StageTranscription, err)
		return err
	}

	started := time.Now()
	text, err := r.call(StageTranscription, r.p.settings.TranscriptionTimeout, func(ctx context.Context) (string, error) {
		return r.p.transcriber.Transcribe(ctx, audio)
	})
	if err == nil && strings.TrimSpace(text) == "" {
		err = services.Wrap(services.ErrExternalTool, "pipeline", "transcribe", "service returned an empty transcript", nil)
	}
	if err == nil {
		err = dataset.WriteAtomic(r.p.layout.CanonicalPath(dataset.SlotRaw, r.q.SampleID()), []byte(strings.TrimSpace(text)+"\n"), 0o644)
	}
	if err != nil {
		r.fail(StageTranscription, err)
		return err
	}
	r.models.TranscriptionModelID = dataset.Ptr(r.p.transcriber.Model())
	if err := r.persist(); err != nil {
		r.fail(StageTranscription, err)
		return err
	}
	r.ran = append(r.ran, StageTranscription)
	r.logger.Info("transcription written",
		logging.String("model", r.p.transcriber.Model()),
		logging.Int("words", len(strings.Fields(text))),
		logging.Duration("elapsed", time.Since(started)),
	)
	return r.machine.Transition(StateTranscribed)
}

func (r *run) cleanup() error {
	state := r.machine.State()
	if state >= StateAutoCleaned {
		r.skipped = append(r.skipped, StageCleanup)
		r.event(Event{Type: EventSkipped, Stage: StageCleanup, Message: "auto cleanup already present"})
		return nil
	}
	if err := r.machine.Transition(StateCleaningUp); err != nil {
		return err
	}
	if r.p.cleaner == nil {
		err := services.Wrap(services.ErrConfiguration, "pipeline", "cleanup", "no cleanup service configured", nil)
		r.fail(StageCleanup, err)
		return err
	}
	raw, ok, err := r.p.readText(dataset.SlotRaw, r.q)
	if err != nil {
		r.fail(StageCleanup, err)
		return err
	}
	if !ok {
		err := services.Wrap(services.ErrNotFound, "pipeline", "cleanup", fmt.Sprintf("raw transcript for sample %d", r.q.Number), nil)
		r.fail(StageCleanup, err)
		return err
	}

	started := time.Now()
	text, err := r.call(StageCleanup, r.p.settings.CleanupTimeout, func(ctx context.Context) (string, error) {
		return r.p.cleaner.Cleanup(ctx, raw, r.p.prompt)
	})
	if err == nil {
		err = dataset.WriteAtomic(r.p.layout.CanonicalPath(dataset.SlotAuto, r.q.SampleID()), []byte(strings.TrimSpace(text)+"\n"), 0o644)
	}
	if err != nil {
		r.fail(StageCleanup, err)
		return err
	}
	r.models.CleanupModelID = dataset.Ptr(r.p.cleaner.Model())
	if err := r.persist(); err != nil {
		r.fail(StageCleanup, err)
		return err
	}
	r.ran = append(r.ran, StageCleanup)
	r.logger.Info("auto cleanup written",
		logging.String("model", r.p.cleaner.Model()),
		logging.String("prompt_version", r.p.prompt.Version),
		logging.Duration("elapsed", time.Since(started)),
	)
	return r.machine.Transition(StateAutoCleaned)
}

func (r *run) placeholder() error {
	if r.machine.State() >= StatePlaceholderCreated {
		r.skipped = append(r.skipped, StagePlaceholder)
		r.event(Event{Type: EventSkipped, Stage: StagePlaceholder, Message: "manual cleanup already present"})
		return nil
	}
	created, err := r.p.EnsureManualPlaceholder(r.q)
	if err != nil {
		r.event(Event{Type: EventFailed, Stage: StagePlaceholder, Err: err})
		return err
	}
	if !created {
		return r.skip(StagePlaceholder, StatePlaceholderCreated)
	}
	if err := r.persist(); err != nil {
		r.event(Event{Type: EventFailed, Stage: StagePlaceholder, Err: err})
		return err
	}
	r.ran = append(r.ran, StagePlaceholder)
	return r.machine.Transition(StatePlaceholderCreated)
}

// EnsureManualPlaceholder creates an empty manual-cleanup file for q when no
// manual cleanup exists under either naming convention. It never replaces an
// existing file and reports whether it created one.
func (p *Pipeline) EnsureManualPlaceholder(q questions.Question) (bool, error) {
	if _, ok := p.layout.Resolve(dataset.SlotManual, q.ID, q.Number); ok {
		return false, nil
	}
	path := p.layout.CanonicalPath(dataset.SlotManual, q.SampleID())
	if err := os.MkdirAll(p.layout.Dir(dataset.SlotManual), 0o755); err != nil {
		return false, services.Wrap(services.ErrFileSystem, "pipeline", "placeholder", p.layout.Dir(dataset.SlotManual), err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, services.Wrap(services.ErrFileSystem, "pipeline", "placeholder", path, err)
	}
	if _, err := f.WriteString(dataset.ManualPlaceholder); err != nil {
		f.Close()
		return false, services.Wrap(services.ErrFileSystem, "pipeline", "placeholder", path, err)
	}
	if err := f.Close(); err != nil {
		return false, services.Wrap(services.ErrFileSystem, "pipeline", "placeholder", path, err)
	}
	return true, nil
}
