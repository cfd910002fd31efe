package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"quill/internal/config"
	"quill/internal/dataset"
	"quill/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	layout     dataset.Layout
	configPath string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	homeDir := filepath.Join(testsupport.BaseDir(cfg), "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("QUILL_NTFY_TOPIC", "")
	t.Setenv("HF_TOKEN", "")
	t.Setenv("HF_CLI", "")
	t.Setenv("QUILL_HF_REPO", "")

	configPath := filepath.Join(homeDir, ".config", "quill", "config.toml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	writeTestConfig(t, configPath, cfg)

	layout := dataset.NewLayout(cfg.Paths.DatasetRoot)
	if err := os.MkdirAll(layout.Root, 0o755); err != nil {
		t.Fatalf("mkdir dataset root: %v", err)
	}
	return &cliTestEnv{cfg: cfg, layout: layout, configPath: configPath}
}

func (e *cliTestEnv) populate(t *testing.T, fixtures ...testsupport.SampleFixture) {
	t.Helper()
	testsupport.PopulateDatasetRoot(t, e.layout, fixtures...)
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(""))
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
dataset_root = %q
state_dir = %q
log_dir = %q

[transcription]
api_key = %q
base_url = %q

[cleanup]
api_key = %q
base_url = %q

[recording]
binary = %q

[retry]
max_attempts = %d
initial_delay_ms = %d
max_delay_ms = %d

[build]
workers = %d
`,
		cfg.Paths.DatasetRoot,
		cfg.Paths.StateDir,
		cfg.Paths.LogDir,
		cfg.Transcription.APIKey,
		cfg.Transcription.BaseURL,
		cfg.Cleanup.APIKey,
		cfg.Cleanup.BaseURL,
		cfg.Recording.Binary,
		cfg.Retry.MaxAttempts,
		cfg.Retry.InitialDelayMS,
		cfg.Retry.MaxDelayMS,
		cfg.Build.Workers,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
