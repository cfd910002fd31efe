package main

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"quill/internal/config"
	"quill/internal/dataset"
	"quill/internal/journal"
	"quill/internal/logging"
	"quill/internal/media/audioprobe"
	"quill/internal/notifications"
	"quill/internal/pipeline"
	"quill/internal/prompts"
	"quill/internal/questions"
	"quill/internal/reconcile"
	"quill/internal/recording"
	"quill/internal/services"
	"quill/internal/services/llm"
	"quill/internal/services/whisper"
)

type globalFlags struct {
	config   string
	root     string
	logLevel string
	json     bool
}

type commandContext struct {
	flags *globalFlags

	configOnce   sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	configErr    error

	loggerOnce sync.Once
	logger     *slog.Logger

	correlationID string
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{
		flags:         flags,
		correlationID: uuid.NewString(),
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, path, exists, err := config.Load(strings.TrimSpace(c.flags.config))
		if err != nil {
			c.configErr = services.Wrap(services.ErrConfiguration, "config", "load", path, err)
			return
		}
		if err := cfg.OverrideDatasetRoot(c.flags.root); err != nil {
			c.configErr = services.Wrap(services.ErrConfiguration, "config", "root", c.flags.root, err)
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = services.Wrap(services.ErrFileSystem, "config", "ensure directories", "", err)
			return
		}
		c.config = cfg
		c.configPath = path
		c.configExists = exists
	})
	return c.config, c.configErr
}

// log returns the invocation logger. Logger setup failures fall back to a
// console logger rather than failing the command.
func (c *commandContext) log() *slog.Logger {
	c.loggerOnce.Do(func() {
		cfg, _ := c.ensureConfig()
		logger, err := logging.NewFromConfig(cfg, c.flags.logLevel)
		if err != nil {
			logger, _ = logging.NewFromConfig(nil, c.flags.logLevel)
			logger.Warn("log setup failed; using console only", logging.Error(err))
		}
		c.logger = logger.With(logging.String(logging.FieldCorrelationID, c.correlationID))
	})
	return c.logger
}

// runContext tags ctx with the invocation's correlation id.
func (c *commandContext) runContext(cmd *cobra.Command) context.Context {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return services.WithRequestID(ctx, c.correlationID)
}

func (c *commandContext) jsonOutput() bool { return c.flags.json }

func (c *commandContext) layout() dataset.Layout {
	return dataset.NewLayout(c.config.Paths.DatasetRoot)
}

func (c *commandContext) registry() (*questions.Registry, error) {
	return questions.Load(c.layout().QuestionsPath())
}

func (c *commandContext) prompt() (prompts.Prompt, error) {
	return prompts.Load(c.config.Paths.DatasetRoot, c.config.Cleanup.PromptPath, c.config.Cleanup.PromptVersion)
}

// engine builds a reconcile engine over a fresh store for the dataset root.
func (c *commandContext) engine() (*reconcile.Engine, error) {
	prompt, err := c.prompt()
	if err != nil {
		return nil, err
	}
	logger := c.log()
	prober := audioprobe.New(audioprobe.WithBinary(c.config.FFprobeBinary()), audioprobe.WithLogger(logger))
	return reconcile.New(
		dataset.NewStore(c.layout()),
		prober,
		reconcile.SettingsFromConfig(c.config, prompt.Version),
		reconcile.WithLogger(logger),
	), nil
}

func (c *commandContext) capture() *recording.Capture {
	return recording.NewCapture(c.config.Recording, c.config.RecordingLockPath(), recording.WithLogger(c.log()))
}

// openJournal opens the run journal. The journal is auxiliary: when it
// cannot be opened the command continues without history.
func (c *commandContext) openJournal(ctx context.Context) *journal.Store {
	store, err := journal.OpenConfig(ctx, c.config)
	if err != nil {
		logging.WarnWithContext(c.log(), "run journal unavailable", "journal_open_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "history will not be recorded; check paths.state_dir"),
		)
		return nil
	}
	return store
}

func (c *commandContext) notifier() notifications.Service {
	return notifications.NewService(c.config)
}

// pipelineEnv bundles a pipeline with the resources it holds open.
type pipelineEnv struct {
	pipeline *pipeline.Pipeline
	registry *questions.Registry
	journal  *journal.Store
}

func (e *pipelineEnv) Close() {
	if e.journal != nil {
		_ = e.journal.Close()
	}
}

// newPipeline wires the transcription and cleanup clients, the reconcile
// engine, the capture device and the journal and notification observers.
func (c *commandContext) newPipeline(ctx context.Context, extra ...pipeline.Observer) (*pipelineEnv, error) {
	registry, err := c.registry()
	if err != nil {
		return nil, err
	}
	prompt, err := c.prompt()
	if err != nil {
		return nil, err
	}
	engine, err := c.engine()
	if err != nil {
		return nil, err
	}
	cfg := c.config
	logger := c.log()

	env := &pipelineEnv{registry: registry, journal: c.openJournal(ctx)}
	observers := append([]pipeline.Observer(nil), extra...)
	if env.journal != nil {
		observers = append(observers, env.journal.Observer(logger))
	}
	observers = append(observers, notifications.Observer(c.notifier(), func(number int) string {
		if q, ok := registry.ByNumber(number); ok {
			return q.Text
		}
		return ""
	}, logger))

	env.pipeline = pipeline.New(pipeline.SettingsFromConfig(cfg), pipeline.Dependencies{
		Layout:   c.layout(),
		Registry: registry,
		Records:  engine,
		Transcriber: whisper.NewClient(whisper.Config{
			APIKey:         cfg.Transcription.APIKey,
			BaseURL:        cfg.Transcription.BaseURL,
			Model:          cfg.Transcription.Model,
			Language:       cfg.Transcription.Language,
			TimeoutSeconds: cfg.Transcription.TimeoutSeconds,
		}),
		Cleaner: llm.NewClient(llm.Config{
			APIKey:         cfg.Cleanup.APIKey,
			BaseURL:        cfg.Cleanup.BaseURL,
			Model:          cfg.Cleanup.Model,
			Referer:        cfg.Cleanup.Referer,
			Title:          cfg.Cleanup.Title,
			TimeoutSeconds: cfg.Cleanup.TimeoutSeconds,
		}),
		Prompt:    prompt,
		Capture:   pipeline.NewAudioCapture(c.capture()),
		Logger:    logger,
		Observers: observers,
	})
	return env, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
