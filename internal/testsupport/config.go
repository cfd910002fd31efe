package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"quill/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Service keys are filled with dummies and retry delays are shortened.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DatasetRoot = filepath.Join(base, "dataset")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Transcription.APIKey = "test-openai"
	cfgVal.Cleanup.APIKey = "test-openrouter"
	cfgVal.Retry.InitialDelayMS = 1
	cfgVal.Retry.MaxDelayMS = 5
	cfgVal.Build.Workers = 2

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithServiceURLs points the transcription and cleanup clients at test servers.
func WithServiceURLs(transcription, cleanup string) ConfigOption {
	return func(b *configBuilder) {
		if transcription != "" {
			b.cfg.Transcription.BaseURL = transcription
		}
		if cleanup != "" {
			b.cfg.Cleanup.BaseURL = cleanup
		}
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. Each stub runs script, or exits 0 when script is empty.
func WithStubbedBinaries(script string, names ...string) ConfigOption {
	return func(b *configBuilder) {
		StubBinaries(b.t, filepath.Join(b.baseDir, "bin"), script, names...)
	}
}

// StubBinaries writes shell stubs into dir and prepends dir to PATH for the
// duration of the test.
func StubBinaries(t testing.TB, dir, script string, names ...string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir bin dir: %v", err)
	}
	if script == "" {
		script = "exit 0\n"
	}
	body := []byte("#!/bin/sh\n" + script)
	for _, name := range names {
		target := filepath.Join(dir, name)
		if err := os.WriteFile(target, body, 0o755); err != nil {
			t.Fatalf("write stub %s: %v", name, err)
		}
	}

	oldPath := os.Getenv("PATH")
	if err := os.Setenv("PATH", dir+string(os.PathListSeparator)+oldPath); err != nil {
		t.Fatalf("set PATH: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Setenv("PATH", oldPath)
	})
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DatasetRoot)
}
