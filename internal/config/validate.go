package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDataset(); err != nil {
		return err
	}
	if err := c.validateEndpoints(); err != nil {
		return err
	}
	if err := c.validateRecording(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if err := c.validateBuild(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

// RequireTranscription reports whether the transcription service is usable.
// API keys are only demanded by the commands that call the service.
func (c *Config) RequireTranscription() error {
	if c.Transcription.APIKey == "" {
		return fmt.Errorf("transcription.api_key is required. Set %s env var or edit %s (create with 'quill config init')", envTranscriptionAPIKey, configHint())
	}
	return nil
}

// RequireCleanup reports whether the cleanup service is usable.
func (c *Config) RequireCleanup() error {
	if c.Cleanup.APIKey == "" {
		return fmt.Errorf("cleanup.api_key is required. Set %s env var or edit %s (create with 'quill config init')", envCleanupAPIKey, configHint())
	}
	return nil
}

// RequireSync reports whether quill sync has a repository and a token.
func (c *Config) RequireSync() error {
	if c.Sync.Repo == "" {
		return fmt.Errorf("sync.repo is required (e.g. \"user/dataset\"). Set %s env var or edit %s", envSyncRepo, configHint())
	}
	if strings.Count(c.Sync.Repo, "/") != 1 {
		return fmt.Errorf("sync.repo must look like \"owner/name\", got %q", c.Sync.Repo)
	}
	if c.Sync.Token == "" {
		return fmt.Errorf("sync.token is required. Set %s (or %s) env var or edit %s", envSyncToken, envSyncTokenLegacy, configHint())
	}
	return nil
}

func configHint() string {
	path, err := DefaultConfigPath()
	if err != nil {
		return "~/.config/quill/config.toml"
	}
	return path
}

func (c *Config) validateDataset() error {
	if c.Dataset.Name == "" {
		return errors.New("dataset.name must be set")
	}
	return nil
}

func (c *Config) validateEndpoints() error {
	if err := validateURL("transcription.base_url", c.Transcription.BaseURL); err != nil {
		return err
	}
	if err := validateURL("cleanup.base_url", c.Cleanup.BaseURL); err != nil {
		return err
	}
	if err := validateURL("sync.endpoint", c.Sync.Endpoint); err != nil {
		return err
	}
	return nil
}

func validateURL(key, value string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must use http or https, got %q", key, value)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", key)
	}
	return nil
}

func (c *Config) validateRecording() error {
	if c.Recording.SampleRate < 8000 || c.Recording.SampleRate > 192000 {
		return fmt.Errorf("recording.sample_rate must be between 8000 and 192000, got %d", c.Recording.SampleRate)
	}
	if c.Recording.Channels < 1 || c.Recording.Channels > maxRecordingChannels {
		return fmt.Errorf("recording.channels must be between 1 and %d", maxRecordingChannels)
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.MaxAttempts < 1 || c.Retry.MaxAttempts > maxRetryAttempts {
		return fmt.Errorf("retry.max_attempts must be between 1 and %d", maxRetryAttempts)
	}
	if err := ensurePositiveMap(map[string]int{
		"retry.initial_delay_ms": c.Retry.InitialDelayMS,
		"retry.max_delay_ms":     c.Retry.MaxDelayMS,
	}); err != nil {
		return err
	}
	if c.Retry.InitialDelayMS > c.Retry.MaxDelayMS {
		return errors.New("retry.initial_delay_ms must not exceed retry.max_delay_ms")
	}
	return nil
}

func (c *Config) validateBuild() error {
	return ensurePositiveMap(map[string]int{
		"build.workers":                 c.Build.Workers,
		"transcription.timeout_seconds": c.Transcription.TimeoutSeconds,
		"cleanup.timeout_seconds":       c.Cleanup.TimeoutSeconds,
		"sync.timeout_seconds":          c.Sync.TimeoutSeconds,
	})
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be 'console' or 'json', got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", strings.TrimSpace(key))
		}
	}
	return nil
}
