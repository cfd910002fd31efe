package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"quill/internal/config"
)

func clearServiceEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"OPENAI_API_KEY", "OPENROUTER_API_KEY", "OPENROTUER_API_KEY", "TEXT_CLEANUP_VALIDATION_MODEL", "QUILL_NTFY_TOPIC", "HF_TOKEN", "HF_CLI", "QUILL_HF_REPO"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	clearServiceEnv(t)
	t.Setenv("OPENAI_API_KEY", "whisper-key")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "quill")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if !filepath.IsAbs(cfg.Paths.DatasetRoot) {
		t.Fatalf("expected absolute dataset root, got %q", cfg.Paths.DatasetRoot)
	}
	if cfg.Transcription.APIKey != "whisper-key" {
		t.Fatalf("expected transcription key from env, got %q", cfg.Transcription.APIKey)
	}
	if cfg.Transcription.Model != "whisper-1" {
		t.Fatalf("unexpected transcription model: %q", cfg.Transcription.Model)
	}
	if cfg.Cleanup.APIKey != "" {
		t.Fatalf("expected empty cleanup key, got %q", cfg.Cleanup.APIKey)
	}
	if err := cfg.RequireCleanup(); err == nil {
		t.Fatal("expected RequireCleanup to fail without a key")
	}
	if err := cfg.RequireTranscription(); err != nil {
		t.Fatalf("RequireTranscription: %v", err)
	}
	if cfg.Retry.MaxAttempts != config.Default().Retry.MaxAttempts {
		t.Fatalf("unexpected retry attempts: %d", cfg.Retry.MaxAttempts)
	}
	if cfg.JournalPath() != filepath.Join(wantState, "journal.db") {
		t.Fatalf("unexpected journal path: %q", cfg.JournalPath())
	}
}

func TestLoadCustomPath(t *testing.T) {
	clearServiceEnv(t)
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	root := filepath.Join(t.TempDir(), "dataset")
	configPath := filepath.Join(t.TempDir(), "quill.toml")
	content := `
[paths]
dataset_root = "` + root + `"
state_dir = "~/state"

[dataset]
name = "Voice Notes"
author = "Sam"

[cleanup]
api_key = "router-key"
prompt_path = "prompts/custom.md"

[retry]
max_attempts = 5
initial_delay_ms = 200
max_delay_ms = 800

[logging]
format = "JSON"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: %q", resolved)
	}
	if cfg.Paths.DatasetRoot != root {
		t.Fatalf("unexpected dataset root: %q", cfg.Paths.DatasetRoot)
	}
	if cfg.Paths.StateDir != filepath.Join(tempHome, "state") {
		t.Fatalf("unexpected state dir: %q", cfg.Paths.StateDir)
	}
	if cfg.Dataset.Name != "Voice Notes" || cfg.Dataset.Author != "Sam" {
		t.Fatalf("unexpected dataset metadata: %+v", cfg.Dataset)
	}
	if cfg.Dataset.Version != "1.0.0" {
		t.Fatalf("expected default version, got %q", cfg.Dataset.Version)
	}
	if cfg.Cleanup.PromptPath != filepath.Join(root, "prompts", "custom.md") {
		t.Fatalf("expected prompt path relative to dataset root, got %q", cfg.Cleanup.PromptPath)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected lowercased log format, got %q", cfg.Logging.Format)
	}
	initial, maxDelay := cfg.RetryDelays()
	if initial.Milliseconds() != 200 || maxDelay.Milliseconds() != 800 {
		t.Fatalf("unexpected retry delays: %v %v", initial, maxDelay)
	}
}

func TestDotEnvInDatasetRootSuppliesKeys(t *testing.T) {
	clearServiceEnv(t)
	t.Setenv("HOME", t.TempDir())

	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, ".env"), []byte("OPENROTUER_API_KEY=legacy-key\nOPENAI_API_KEY=dot-key\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Cleanup(func() {
		os.Unsetenv("OPENROTUER_API_KEY")
		os.Unsetenv("OPENAI_API_KEY")
	})
	configPath := filepath.Join(t.TempDir(), "quill.toml")
	if err := os.WriteFile(configPath, []byte("[paths]\ndataset_root = \""+root+"\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Cleanup.APIKey != "legacy-key" {
		t.Fatalf("expected legacy cleanup key from .env, got %q", cfg.Cleanup.APIKey)
	}
	if cfg.Transcription.APIKey != "dot-key" {
		t.Fatalf("expected transcription key from .env, got %q", cfg.Transcription.APIKey)
	}
}

func TestEnvModelOverridesConfig(t *testing.T) {
	clearServiceEnv(t)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("TEXT_CLEANUP_VALIDATION_MODEL", "anthropic/claude-haiku")

	configPath := filepath.Join(t.TempDir(), "quill.toml")
	if err := os.WriteFile(configPath, []byte("[cleanup]\nmodel = \"openai/gpt-4o-mini\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Cleanup.Model != "anthropic/claude-haiku" {
		t.Fatalf("expected env model override, got %q", cfg.Cleanup.Model)
	}
}

func TestOverrideDatasetRoot(t *testing.T) {
	clearServiceEnv(t)
	t.Setenv("HOME", t.TempDir())

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	root := t.TempDir()
	if err := cfg.OverrideDatasetRoot(root); err != nil {
		t.Fatalf("OverrideDatasetRoot: %v", err)
	}
	if cfg.Paths.DatasetRoot != root {
		t.Fatalf("unexpected dataset root: %q", cfg.Paths.DatasetRoot)
	}
	if err := cfg.OverrideDatasetRoot("  "); err != nil {
		t.Fatalf("blank override should be a no-op: %v", err)
	}
	if cfg.Paths.DatasetRoot != root {
		t.Fatalf("blank override changed root to %q", cfg.Paths.DatasetRoot)
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.StateDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q: %v", dir, err)
		}
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "OPENAI_API_KEY") {
		t.Fatalf("sample config missing env hint: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if cfg.Transcription.Model != "whisper-1" {
		t.Fatalf("unexpected sample transcription model: %q", cfg.Transcription.Model)
	}
	if cfg.Build.Workers != 4 {
		t.Fatalf("unexpected sample workers: %d", cfg.Build.Workers)
	}
	if len(cfg.Sync.Ignore) == 0 || cfg.Sync.Revision != "main" {
		t.Fatalf("unexpected sample sync section: %+v", cfg.Sync)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"empty dataset name", func(c *config.Config) { c.Dataset.Name = "" }, "dataset.name"},
		{"bad transcription url", func(c *config.Config) { c.Transcription.BaseURL = "ftp://example.com" }, "transcription.base_url"},
		{"zero retry attempts", func(c *config.Config) { c.Retry.MaxAttempts = 0 }, "retry.max_attempts"},
		{"inverted delays", func(c *config.Config) { c.Retry.InitialDelayMS = 5000; c.Retry.MaxDelayMS = 100 }, "retry.initial_delay_ms"},
		{"zero workers", func(c *config.Config) { c.Build.Workers = 0 }, "build.workers"},
		{"bad channels", func(c *config.Config) { c.Recording.Channels = 16 }, "recording.channels"},
		{"bad sample rate", func(c *config.Config) { c.Recording.SampleRate = 10 }, "recording.sample_rate"},
		{"bad log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"bad sync endpoint", func(c *config.Config) { c.Sync.Endpoint = "huggingface.co" }, "sync.endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestSyncTokenFallsBackToLegacyEnv(t *testing.T) {
	clearServiceEnv(t)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("HF_CLI", "legacy-hf")
	t.Setenv("QUILL_HF_REPO", "/someone/voice-notes/")

	configPath := filepath.Join(t.TempDir(), "quill.toml")
	if err := os.WriteFile(configPath, []byte("[paths]\ndataset_root = \""+t.TempDir()+"\"\n[sync]\nignore = [\" *.tmp \", \"\"]\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sync.Token != "legacy-hf" || cfg.Sync.Repo != "someone/voice-notes" {
		t.Fatalf("unexpected sync settings: %+v", cfg.Sync)
	}
	if len(cfg.Sync.Ignore) != 1 || cfg.Sync.Ignore[0] != "*.tmp" {
		t.Fatalf("expected trimmed ignore list, got %q", cfg.Sync.Ignore)
	}
	if err := cfg.RequireSync(); err != nil {
		t.Fatalf("RequireSync: %v", err)
	}

	cfg.Sync.Token = ""
	if err := cfg.RequireSync(); err == nil || !strings.Contains(err.Error(), "HF_TOKEN") {
		t.Fatalf("expected missing token error, got %v", err)
	}
	cfg.Sync.Token = "x"
	cfg.Sync.Repo = "no-owner"
	if err := cfg.RequireSync(); err == nil {
		t.Fatal("expected repo without owner to be rejected")
	}
}
