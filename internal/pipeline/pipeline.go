package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"quill/internal/config"
	"quill/internal/dataset"
	"quill/internal/logging"
	"quill/internal/prompts"
	"quill/internal/questions"
	"quill/internal/recording"
	"quill/internal/services"
)

// Transcriber turns recorded audio into a raw transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
	Model() string
}

// Cleaner produces an automated cleanup of a raw transcript.
type Cleaner interface {
	Cleanup(ctx context.Context, transcript string, prompt prompts.Prompt) (string, error)
	Model() string
}

// Recorder refreshes a sample record from disk and merges provenance into
// it. reconcile.Engine implements it.
type Recorder interface {
	Apply(ctx context.Context, q questions.Question, models dataset.Models) (dataset.Sample, error)
}

// AudioCapture starts microphone sessions.
type AudioCapture interface {
	Devices(ctx context.Context) ([]recording.Device, error)
	Start(ctx context.Context, device, dest string) (Session, error)
}

// Session is a running capture.
type Session interface {
	Stop() (recording.Result, error)
	Abort() error
}

// NewAudioCapture adapts a recording.Capture to AudioCapture.
func NewAudioCapture(c *recording.Capture) AudioCapture {
	return captureAdapter{capture: c}
}

type captureAdapter struct {
	capture *recording.Capture
}

func (a captureAdapter) Devices(ctx context.Context) ([]recording.Device, error) {
	return a.capture.Devices(ctx)
}

func (a captureAdapter) Start(ctx context.Context, device, dest string) (Session, error) {
	session, err := a.capture.Start(ctx, device, dest)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// RetryPolicy bounds attempts at transient external failures.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// Settings holds the tunables the pipeline reads from configuration.
type Settings struct {
	Retry                RetryPolicy
	TranscriptionTimeout time.Duration
	CleanupTimeout       time.Duration
	Device               string
}

// SettingsFromConfig derives pipeline settings from cfg.
func SettingsFromConfig(cfg *config.Config) Settings {
	initial, maxDelay := cfg.RetryDelays()
	return Settings{
		Retry: RetryPolicy{
			MaxAttempts:  cfg.Retry.MaxAttempts,
			InitialDelay: initial,
			MaxDelay:     maxDelay,
		},
		TranscriptionTimeout: cfg.TranscriptionTimeout(),
		CleanupTimeout:       cfg.CleanupTimeout(),
		Device:               cfg.Recording.Device,
	}
}

// Dependencies are the collaborators a Pipeline drives. Transcriber,
// Cleaner and Capture may be nil; stages needing them then fail with a
// configuration error.
type Dependencies struct {
	Layout      dataset.Layout
	Registry    *questions.Registry
	Records     Recorder
	Transcriber Transcriber
	Cleaner     Cleaner
	Prompt      prompts.Prompt
	Capture     AudioCapture
	Logger      *slog.Logger
	Observers   []Observer
}

// Pipeline advances samples through recording, transcription, cleanup and
// placeholder creation.
type Pipeline struct {
	settings    Settings
	layout      dataset.Layout
	registry    *questions.Registry
	records     Recorder
	transcriber Transcriber
	cleaner     Cleaner
	prompt      prompts.Prompt
	capture     AudioCapture
	logger      *slog.Logger

	obsMu     sync.RWMutex
	observers []Observer

	recMu  sync.Mutex
	active *activeRecording
}

// New constructs a Pipeline.
func New(settings Settings, deps Dependencies) *Pipeline {
	if settings.Retry.MaxAttempts <= 0 {
		settings.Retry.MaxAttempts = 1
	}
	return &Pipeline{
		settings:    settings,
		layout:      deps.Layout,
		registry:    deps.Registry,
		records:     deps.Records,
		transcriber: deps.Transcriber,
		cleaner:     deps.Cleaner,
		prompt:      deps.Prompt,
		capture:     deps.Capture,
		logger:      logging.NewComponentLogger(deps.Logger, "pipeline"),
		observers:   append([]Observer(nil), deps.Observers...),
	}
}

// AddObserver registers an observer for every subsequent event.
func (p *Pipeline) AddObserver(o Observer) {
	if o == nil {
		return
	}
	p.obsMu.Lock()
	p.observers = append(p.observers, o)
	p.obsMu.Unlock()
}

func (p *Pipeline) emit(ctx context.Context, sink func(Event), event Event) {
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}
	if event.CorrelationID == "" {
		if id, ok := services.RequestIDFromContext(ctx); ok {
			event.CorrelationID = id
		}
	}
	p.obsMu.RLock()
	observers := append([]Observer(nil), p.observers...)
	p.obsMu.RUnlock()
	for _, o := range observers {
		o.Observe(ctx, event)
	}
	if sink != nil {
		sink(event)
	}
}

// run carries per-sample state through the stages of one invocation.
type run struct {
	p       *Pipeline
	ctx     context.Context
	q       questions.Question
	machine *Machine
	sink    func(Event)
	logger  *slog.Logger
	models  dataset.Models
	sample  dataset.Sample
	ran     []Stage
	skipped []Stage
}

func (p *Pipeline) newRun(ctx context.Context, q questions.Question, initial State, sink func(Event)) *run {
	ctx = services.WithSampleID(ctx, q.SampleID())
	r := &run{
		p:      p,
		ctx:    ctx,
		q:      q,
		sink:   sink,
		logger: logging.WithContext(ctx, p.logger).With(logging.Int(logging.FieldSampleNumber, q.Number)),
	}
	r.machine = NewMachine(initial, func(from, to State) {
		p.emit(ctx, sink, Event{
			Type:         EventTransition,
			SampleID:     q.SampleID(),
			SampleNumber: q.Number,
			From:         from,
			To:           to,
		})
	})
	return r
}

func (r *run) event(event Event) {
	event.SampleID = r.q.SampleID()
	event.SampleNumber = r.q.Number
	if event.From == 0 && event.To == 0 {
		state := r.machine.State()
		event.From, event.To = state, state
	}
	r.p.emit(r.ctx, r.sink, event)
}
