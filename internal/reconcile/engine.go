package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"quill/internal/config"
	"quill/internal/dataset"
	"quill/internal/logging"
	"quill/internal/media/audioprobe"
	"quill/internal/questions"
	"quill/internal/services"
)

// Prober reads duration and format from an audio artifact.
type Prober interface {
	Probe(ctx context.Context, path string) (audioprobe.Metadata, error)
}

// Settings carries the dataset header written on every build.
type Settings struct {
	Metadata      dataset.Metadata
	Configuration dataset.Configuration
	Workers       int
}

// SettingsFromConfig derives build settings from the loaded configuration.
func SettingsFromConfig(cfg *config.Config, promptVersion string) Settings {
	return Settings{
		Metadata: dataset.Metadata{
			Name:        cfg.Dataset.Name,
			Description: cfg.Dataset.Description,
			Version:     cfg.Dataset.Version,
			Author:      cfg.Dataset.Author,
			License:     cfg.Dataset.License,
		},
		Configuration: dataset.Configuration{
			TranscriptionModel: cfg.Transcription.Model,
			CleanupModel:       cfg.Cleanup.Model,
			PromptVersion:      promptVersion,
			AudioFormat:        "wav",
			AudioSampleRate:    cfg.Recording.SampleRate,
		},
		Workers: cfg.Build.Workers,
	}
}

// Result summarizes one reconciliation pass.
type Result struct {
	Samples    []dataset.Sample
	Statistics dataset.Statistics
	// Removed counts snapshot samples whose question no longer exists.
	Removed int
	// ProbeFailures lists sample numbers whose audio could not be probed.
	ProbeFailures []int
	// Rebuilt is set when the prior snapshot was corrupt and ignored.
	Rebuilt  bool
	Duration time.Duration
}

// Engine rebuilds the store from the artifact filesystem.
type Engine struct {
	store    *dataset.Store
	layout   dataset.Layout
	prober   Prober
	settings Settings
	logger   *slog.Logger
	now      func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock overrides the clock used for metadata.created.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New constructs an Engine over store.
func New(store *dataset.Store, prober Prober, settings Settings, opts ...Option) *Engine {
	if settings.Workers <= 0 {
		settings.Workers = 1
	}
	e := &Engine{
		store:    store,
		layout:   store.Layout(),
		prober:   prober,
		settings: settings,
		logger:   logging.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.NewComponentLogger(e.logger, "reconcile")
	return e
}

// Store returns the store the engine writes to.
func (e *Engine) Store() *dataset.Store { return e.store }

// Build reconciles the store in memory from questions.json and the artifact
// directories. Nothing is written to disk.
func (e *Engine) Build(ctx context.Context) (*Result, error) {
	started := time.Now()
	registry, err := questions.Load(e.layout.QuestionsPath())
	if err != nil {
		return nil, err
	}

	result := &Result{}
	if err := e.store.Load(); err != nil {
		if !errors.Is(err, dataset.ErrCorruptSnapshot) {
			return nil, err
		}
		logging.WarnWithContext(e.logger, "dataset snapshot is corrupt; rebuilding from artifacts", "snapshot_corrupt",
			logging.String("path", e.layout.SnapshotPath()),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the snapshot will be rewritten on the next build"),
		)
		e.store.Retain(nil)
		e.store.SetHeader(dataset.Metadata{}, dataset.Configuration{})
		result.Rebuilt = true
	}
	created := e.store.Metadata().Created

	all := registry.All()
	derived, err := e.deriveAll(ctx, all)
	if err != nil {
		return nil, err
	}

	keep := make(map[string]struct{}, len(derived))
	for i, sample := range derived {
		keep[sample.ID] = struct{}{}
		if sample.AudioMetadata != nil && sample.AudioMetadata.ProbeError != "" {
			result.ProbeFailures = append(result.ProbeFailures, all[i].Number)
		}
		if err := e.store.Upsert(sample); err != nil {
			return nil, err
		}
	}
	result.Removed = e.store.Retain(keep)

	e.finalizeHeader(created)
	result.Samples = e.store.All()
	result.Statistics = e.store.Statistics()
	result.Duration = time.Since(started)

	e.logger.Info("dataset reconciled",
		logging.Int("samples", result.Statistics.TotalSamples),
		logging.Int("completed", result.Statistics.CompletedSamples),
		logging.Int("removed", result.Removed),
		logging.Int("probe_failures", len(result.ProbeFailures)),
		logging.Duration("duration", result.Duration),
	)
	return result, nil
}

// BuildAndPersist runs Build under the store lock and writes dataset.json.
func (e *Engine) BuildAndPersist(ctx context.Context) (*Result, error) {
	unlock, err := e.store.Lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	result, err := e.Build(ctx)
	if err != nil {
		return nil, err
	}
	if err := e.store.Persist(); err != nil {
		return nil, err
	}
	return result, nil
}

// Apply refreshes the record for one question from disk, merges models into
// its provenance and persists the snapshot. The pipeline calls it after
// every artifact write. A missing or corrupt snapshot triggers a full Build
// so the persisted statistics always cover every question.
func (e *Engine) Apply(ctx context.Context, q questions.Question, models dataset.Models) (dataset.Sample, error) {
	unlock, err := e.store.Lock(ctx)
	if err != nil {
		return dataset.Sample{}, err
	}
	defer unlock()

	registry, err := questions.Load(e.layout.QuestionsPath())
	if err != nil {
		return dataset.Sample{}, err
	}
	current, ok := registry.ByNumber(q.Number)
	if !ok {
		return dataset.Sample{}, services.Wrap(services.ErrNotFound, "reconcile", "apply", fmt.Sprintf("question %d", q.Number), nil)
	}

	full, err := e.loadPrior()
	if err != nil {
		return dataset.Sample{}, err
	}
	if full {
		if _, err := e.Build(ctx); err != nil {
			return dataset.Sample{}, err
		}
	} else if err := e.refresh(ctx, registry, current); err != nil {
		return dataset.Sample{}, err
	}

	sample, err := e.store.Get(current.SampleID())
	if err != nil {
		return dataset.Sample{}, err
	}
	sample.Models = models
	if err := e.store.Upsert(sample); err != nil {
		return dataset.Sample{}, err
	}
	if err := e.store.Persist(); err != nil {
		return dataset.Sample{}, err
	}
	return e.store.Get(sample.ID)
}

// loadPrior loads the snapshot and reports whether it must be rebuilt from
// scratch because it is missing or corrupt.
func (e *Engine) loadPrior() (bool, error) {
	if _, err := os.Stat(e.layout.SnapshotPath()); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return true, nil
		}
		return false, services.Wrap(services.ErrFileSystem, "reconcile", "stat snapshot", e.layout.SnapshotPath(), err)
	}
	if err := e.store.Load(); err != nil {
		if errors.Is(err, dataset.ErrCorruptSnapshot) {
			return true, nil
		}
		return false, err
	}
	return false, nil
}

// refresh re-derives q and every registry question the snapshot lacks, then
// drops records no question backs. A question that gained an id since the
// last build loses its number-keyed record here.
func (e *Engine) refresh(ctx context.Context, registry *questions.Registry, q questions.Question) error {
	created := e.store.Metadata().Created

	pending := []questions.Question{q}
	keep := make(map[string]struct{}, registry.Len())
	for _, other := range registry.All() {
		id := other.SampleID()
		keep[id] = struct{}{}
		if other.Number == q.Number {
			continue
		}
		if _, err := e.store.Get(id); err != nil {
			pending = append(pending, other)
		}
	}

	derived, err := e.deriveAll(ctx, pending)
	if err != nil {
		return err
	}
	for _, sample := range derived {
		if err := e.store.Upsert(sample); err != nil {
			return err
		}
	}
	if removed := e.store.Retain(keep); removed > 0 {
		e.logger.Debug("dropped stale samples", logging.Int("removed", removed))
	}
	e.finalizeHeader(created)
	return nil
}

func (e *Engine) finalizeHeader(created string) {
	metadata := e.settings.Metadata
	metadata.Created = created
	if strings.TrimSpace(metadata.Created) == "" {
		metadata.Created = e.now().UTC().Format(time.RFC3339)
	}
	e.store.SetHeader(metadata, e.settings.Configuration)
	e.store.SetStatistics(ComputeStatistics(e.store.All()))
}

// deriveAll probes every question over a bounded worker pool. Results keep
// the input order.
func (e *Engine) deriveAll(ctx context.Context, all []questions.Question) ([]dataset.Sample, error) {
	out := make([]dataset.Sample, len(all))
	errs := make([]error, len(all))
	jobs := make(chan int)

	workers := e.settings.Workers
	if workers > len(all) {
		workers = len(all)
	}
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				out[i], errs[i] = e.Derive(ctx, all[i])
			}
		}()
	}
	for i := range all {
		if ctx.Err() != nil {
			break
		}
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return out, nil
}

// Derive builds the filesystem view of one question's sample. Provenance is
// left empty; Upsert merges it from the stored record.
func (e *Engine) Derive(ctx context.Context, q questions.Question) (dataset.Sample, error) {
	sample := dataset.Sample{
		ID:           q.SampleID(),
		SampleNumber: q.Number,
		QuestionID:   q.ID,
		Question:     q.Text,
	}

	if path, ok := e.layout.Resolve(dataset.SlotAudio, q.ID, q.Number); ok {
		sample.Files.Audio = dataset.Ptr(e.layout.Rel(path))
		sample.AudioMetadata = e.probe(ctx, q, path)
	}

	var err error
	if sample.Files.RawTranscript, sample.Content.RawTranscript, sample.TextStatistics.RawWordCount, err = e.readText(dataset.SlotRaw, q); err != nil {
		return sample, err
	}
	if sample.Files.AutoCleanup, sample.Content.AutoCleanup, sample.TextStatistics.AutoWordCount, err = e.readText(dataset.SlotAuto, q); err != nil {
		return sample, err
	}
	if sample.Files.ManualCleanup, sample.Content.ManualCleanup, sample.TextStatistics.ManualWordCount, err = e.readText(dataset.SlotManual, q); err != nil {
		return sample, err
	}
	sample.DeriveStatus()
	return sample, nil
}

func (e *Engine) probe(ctx context.Context, q questions.Question, path string) *dataset.AudioMetadata {
	meta := &dataset.AudioMetadata{Format: audioprobe.FormatOf(path)}
	if e.prober == nil {
		return meta
	}
	probed, err := e.prober.Probe(ctx, path)
	if err != nil {
		meta.ProbeError = err.Error()
		e.logger.Warn("audio probe failed",
			logging.Int(logging.FieldSampleNumber, q.Number),
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "audio_probe_failed"),
			logging.String(logging.FieldErrorHint, "check the file is a readable audio recording"),
		)
		return meta
	}
	if probed.Format != "" {
		meta.Format = probed.Format
	}
	if probed.DurationSeconds > 0 {
		meta.DurationSeconds = dataset.Ptr(round(probed.DurationSeconds, 3))
	}
	if probed.SampleRate > 0 {
		meta.SampleRate = dataset.Ptr(probed.SampleRate)
	}
	return meta
}

func (e *Engine) readText(slot dataset.Slot, q questions.Question) (*string, string, *int, error) {
	path, ok := e.layout.Resolve(slot, q.ID, q.Number)
	if !ok {
		return nil, "", nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", nil, nil
		}
		return nil, "", nil, services.Wrap(services.ErrFileSystem, "reconcile", "read "+slot.String(), path, err)
	}
	content := strings.TrimSpace(string(data))
	words := len(strings.Fields(content))
	return dataset.Ptr(e.layout.Rel(path)), content, &words, nil
}

// ComputeStatistics reduces samples to dataset totals.
func ComputeStatistics(samples []dataset.Sample) dataset.Statistics {
	var stats dataset.Statistics
	stats.TotalSamples = len(samples)
	for _, s := range samples {
		if s.Status.Recorded {
			stats.RecordedSamples++
		}
		if s.Status.Transcribed {
			stats.TranscribedSamples++
		}
		if s.Status.AutoCleaned {
			stats.AutoCleanedSamples++
		}
		if s.Status.ManuallyCleaned {
			stats.ManuallyCleanedSamples++
		}
		if s.Status.IsComplete {
			stats.CompletedSamples++
		}
		if s.AudioMetadata != nil {
			stats.TotalAudioSeconds += dataset.Deref(s.AudioMetadata.DurationSeconds)
		}
		stats.TotalRawWords += dataset.Deref(s.TextStatistics.RawWordCount)
		stats.TotalManualWords += dataset.Deref(s.TextStatistics.ManualWordCount)
	}
	stats.TotalAudioSeconds = round(stats.TotalAudioSeconds, 3)
	if stats.TotalSamples > 0 {
		stats.CompletionPercentage = round(float64(stats.CompletedSamples)/float64(stats.TotalSamples)*100, 2)
	}
	return stats
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

// String renders the result as a one-line summary.
func (r *Result) String() string {
	if r == nil {
		return ""
	}
	return fmt.Sprintf("%d/%d samples complete (%.1f%%)", r.Statistics.CompletedSamples, r.Statistics.TotalSamples, r.Statistics.CompletionPercentage)
}
