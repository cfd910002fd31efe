package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DatasetRoot string `toml:"dataset_root"`
	StateDir    string `toml:"state_dir"`
	LogDir      string `toml:"log_dir"`
}

// Dataset carries the descriptive metadata written into dataset.json.
type Dataset struct {
	Name        string `toml:"name"`
	Description string `toml:"description"`
	Version     string `toml:"version"`
	Author      string `toml:"author"`
	License     string `toml:"license"`
}

// Transcription contains settings for the speech-to-text service.
type Transcription struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Language       string `toml:"language"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Cleanup contains settings for the LLM cleanup pass.
type Cleanup struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	PromptPath     string `toml:"prompt_path"`
	PromptVersion  string `toml:"prompt_version"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Recording contains audio capture settings.
type Recording struct {
	Device     string `toml:"device"`
	SampleRate int    `toml:"sample_rate"`
	Channels   int    `toml:"channels"`
	Binary     string `toml:"binary"`
}

// Retry bounds the exponential backoff applied to transient service failures.
type Retry struct {
	MaxAttempts    int `toml:"max_attempts"`
	InitialDelayMS int `toml:"initial_delay_ms"`
	MaxDelayMS     int `toml:"max_delay_ms"`
}

// Build contains reconciliation tuning.
type Build struct {
	Workers int `toml:"workers"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Sync contains the Hugging Face dataset repository that quill sync uploads
// the dataset root to.
type Sync struct {
	Repo           string   `toml:"repo"`
	Token          string   `toml:"token"`
	Endpoint       string   `toml:"endpoint"`
	Revision       string   `toml:"revision"`
	CommitMessage  string   `toml:"commit_message"`
	Ignore         []string `toml:"ignore"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for quill.
//
// Configuration sections by subsystem:
//   - Paths: dataset root, state (journal, locks) and log directories
//   - Dataset: name/version/author metadata stamped into dataset.json
//   - Transcription: OpenAI-compatible speech-to-text endpoint
//   - Cleanup: OpenRouter chat endpoint and cleanup prompt
//   - Recording: capture device and sample format
//   - Retry: backoff bounds for transient service failures
//   - Build: reconciliation worker count
//   - Notifications: optional ntfy topic
//   - Sync: Hugging Face dataset repository for quill sync
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Dataset       Dataset       `toml:"dataset"`
	Transcription Transcription `toml:"transcription"`
	Cleanup       Cleanup       `toml:"cleanup"`
	Recording     Recording     `toml:"recording"`
	Retry         Retry         `toml:"retry"`
	Build         Build         `toml:"build"`
	Notifications Notifications `toml:"notifications"`
	Sync          Sync          `toml:"sync"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/quill/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("quill.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// OverrideDatasetRoot points the config at a different dataset root (the
// --root flag) and re-applies the root-relative defaults.
func (c *Config) OverrideDatasetRoot(root string) error {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil
	}
	expanded, err := expandPath(root)
	if err != nil {
		return fmt.Errorf("paths.dataset_root: %w", err)
	}
	c.Paths.DatasetRoot = expanded
	loadDotEnv(filepath.Join(expanded, ".env"))
	c.normalizeTranscription()
	c.normalizeCleanup()
	return nil
}

// EnsureDirectories creates the state and log directories. Artifact
// directories under the dataset root are created by the dataset layout.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FFprobeBinary returns the ffprobe executable name used for audio inspection.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// TranscriptionTimeout returns the per-request transcription timeout.
func (c *Config) TranscriptionTimeout() time.Duration {
	return time.Duration(c.Transcription.TimeoutSeconds) * time.Second
}

// CleanupTimeout returns the per-request cleanup timeout.
func (c *Config) CleanupTimeout() time.Duration {
	return time.Duration(c.Cleanup.TimeoutSeconds) * time.Second
}

// RetryDelays returns the initial and maximum backoff delays.
func (c *Config) RetryDelays() (time.Duration, time.Duration) {
	return time.Duration(c.Retry.InitialDelayMS) * time.Millisecond,
		time.Duration(c.Retry.MaxDelayMS) * time.Millisecond
}

// JournalPath returns the location of the SQLite run journal.
func (c *Config) JournalPath() string {
	return filepath.Join(c.Paths.StateDir, "journal.db")
}

// SyncTimeout bounds each Hugging Face request.
func (c *Config) SyncTimeout() time.Duration {
	return time.Duration(c.Sync.TimeoutSeconds) * time.Second
}

// RecordingLockPath returns the lock file guarding the capture device.
func (c *Config) RecordingLockPath() string {
	return filepath.Join(c.Paths.StateDir, "recording.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
