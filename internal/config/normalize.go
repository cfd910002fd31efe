package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

func (c *Config) normalize() error {
	loadDotEnv(".env")
	if err := c.normalizePaths(); err != nil {
		return err
	}
	loadDotEnv(filepath.Join(c.Paths.DatasetRoot, ".env"))
	c.normalizeDataset()
	c.normalizeTranscription()
	c.normalizeCleanup()
	c.normalizeRecording()
	c.normalizeNotifications()
	c.normalizeSync()
	c.normalizeLogging()
	return nil
}

// loadDotEnv populates the process environment from .env files without
// overriding variables that are already set. Missing files are ignored.
func loadDotEnv(paths ...string) {
	existing := make([]string, 0, len(paths))
	for _, path := range paths {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			existing = append(existing, path)
		}
	}
	if len(existing) == 0 {
		return
	}
	_ = godotenv.Load(existing...)
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DatasetRoot) == "" {
		c.Paths.DatasetRoot = defaultDatasetRoot
	}
	if c.Paths.DatasetRoot, err = expandPath(c.Paths.DatasetRoot); err != nil {
		return fmt.Errorf("paths.dataset_root: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeDataset() {
	c.Dataset.Name = strings.TrimSpace(c.Dataset.Name)
	c.Dataset.Description = strings.TrimSpace(c.Dataset.Description)
	c.Dataset.Version = strings.TrimSpace(c.Dataset.Version)
	if c.Dataset.Version == "" {
		c.Dataset.Version = defaultDatasetVersion
	}
	c.Dataset.Author = strings.TrimSpace(c.Dataset.Author)
	c.Dataset.License = strings.TrimSpace(c.Dataset.License)
}

func (c *Config) normalizeTranscription() {
	c.Transcription.APIKey = strings.TrimSpace(c.Transcription.APIKey)
	if c.Transcription.APIKey == "" {
		if value, ok := os.LookupEnv(envTranscriptionAPIKey); ok {
			c.Transcription.APIKey = strings.TrimSpace(value)
		}
	}
	c.Transcription.BaseURL = strings.TrimSpace(c.Transcription.BaseURL)
	if c.Transcription.BaseURL == "" {
		c.Transcription.BaseURL = defaultTranscriptionBaseURL
	}
	c.Transcription.Model = strings.TrimSpace(c.Transcription.Model)
	if c.Transcription.Model == "" {
		c.Transcription.Model = defaultTranscriptionModel
	}
	c.Transcription.Language = strings.ToLower(strings.TrimSpace(c.Transcription.Language))
	if c.Transcription.TimeoutSeconds <= 0 {
		c.Transcription.TimeoutSeconds = defaultTranscriptionTimeout
	}
}

func (c *Config) normalizeCleanup() {
	c.Cleanup.APIKey = strings.TrimSpace(c.Cleanup.APIKey)
	if c.Cleanup.APIKey == "" {
		for _, key := range []string{envCleanupAPIKey, envCleanupAPIKeyLegacy} {
			if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
				c.Cleanup.APIKey = strings.TrimSpace(value)
				break
			}
		}
	}
	c.Cleanup.BaseURL = strings.TrimSpace(c.Cleanup.BaseURL)
	if c.Cleanup.BaseURL == "" {
		c.Cleanup.BaseURL = defaultCleanupBaseURL
	}
	if value, ok := os.LookupEnv(envCleanupModel); ok && strings.TrimSpace(value) != "" {
		c.Cleanup.Model = strings.TrimSpace(value)
	}
	c.Cleanup.Model = strings.TrimSpace(c.Cleanup.Model)
	if c.Cleanup.Model == "" {
		c.Cleanup.Model = defaultCleanupModel
	}
	c.Cleanup.Referer = strings.TrimSpace(c.Cleanup.Referer)
	if c.Cleanup.Referer == "" {
		c.Cleanup.Referer = defaultCleanupReferer
	}
	c.Cleanup.Title = strings.TrimSpace(c.Cleanup.Title)
	if c.Cleanup.Title == "" {
		c.Cleanup.Title = defaultCleanupTitle
	}
	c.Cleanup.PromptPath = strings.TrimSpace(c.Cleanup.PromptPath)
	if c.Cleanup.PromptPath != "" {
		if !filepath.IsAbs(c.Cleanup.PromptPath) && !strings.HasPrefix(c.Cleanup.PromptPath, "~") {
			c.Cleanup.PromptPath = filepath.Join(c.Paths.DatasetRoot, c.Cleanup.PromptPath)
		}
		if expanded, err := expandPath(c.Cleanup.PromptPath); err == nil {
			c.Cleanup.PromptPath = expanded
		}
	}
	c.Cleanup.PromptVersion = strings.TrimSpace(c.Cleanup.PromptVersion)
	if c.Cleanup.TimeoutSeconds <= 0 {
		c.Cleanup.TimeoutSeconds = defaultCleanupTimeout
	}
}

func (c *Config) normalizeRecording() {
	c.Recording.Device = strings.TrimSpace(c.Recording.Device)
	c.Recording.Binary = strings.TrimSpace(c.Recording.Binary)
	if c.Recording.Binary == "" {
		c.Recording.Binary = defaultRecordingBinary
	}
	if c.Recording.SampleRate == 0 {
		c.Recording.SampleRate = defaultRecordingSampleRate
	}
	if c.Recording.Channels == 0 {
		c.Recording.Channels = defaultRecordingChannels
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv(envNtfyTopic); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeSync() {
	c.Sync.Repo = strings.Trim(strings.TrimSpace(c.Sync.Repo), "/")
	if c.Sync.Repo == "" {
		c.Sync.Repo = strings.Trim(strings.TrimSpace(os.Getenv(envSyncRepo)), "/")
	}
	c.Sync.Token = strings.TrimSpace(c.Sync.Token)
	if c.Sync.Token == "" {
		for _, key := range []string{envSyncToken, envSyncTokenLegacy} {
			if value := strings.TrimSpace(os.Getenv(key)); value != "" {
				c.Sync.Token = value
				break
			}
		}
	}
	c.Sync.Endpoint = strings.TrimRight(strings.TrimSpace(c.Sync.Endpoint), "/")
	if c.Sync.Endpoint == "" {
		c.Sync.Endpoint = defaultSyncEndpoint
	}
	c.Sync.Revision = strings.TrimSpace(c.Sync.Revision)
	if c.Sync.Revision == "" {
		c.Sync.Revision = defaultSyncRevision
	}
	c.Sync.CommitMessage = strings.TrimSpace(c.Sync.CommitMessage)
	if c.Sync.CommitMessage == "" {
		c.Sync.CommitMessage = defaultSyncCommitMessage
	}
	if c.Sync.Ignore == nil {
		c.Sync.Ignore = append([]string(nil), defaultSyncIgnore...)
	}
	patterns := c.Sync.Ignore[:0]
	for _, pattern := range c.Sync.Ignore {
		if pattern = strings.TrimSpace(pattern); pattern != "" {
			patterns = append(patterns, pattern)
		}
	}
	c.Sync.Ignore = patterns
	if c.Sync.TimeoutSeconds <= 0 {
		c.Sync.TimeoutSeconds = defaultSyncTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
