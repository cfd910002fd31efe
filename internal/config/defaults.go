package config

const (
	defaultDatasetRoot          = "."
	defaultStateDir             = "~/.local/share/quill"
	defaultLogDir               = "~/.local/share/quill/logs"
	defaultDatasetName          = "Text Cleanup Fine-Tuning Dataset"
	defaultDatasetDescription   = "Dataset for fine-tuning speech-to-text cleanup models"
	defaultDatasetVersion       = "1.0.0"
	defaultDatasetLicense       = "Private"
	defaultTranscriptionBaseURL = "https://api.openai.com/v1/audio/transcriptions"
	defaultTranscriptionModel   = "whisper-1"
	defaultTranscriptionTimeout = 300
	defaultCleanupBaseURL       = "https://openrouter.ai/api/v1/chat/completions"
	defaultCleanupModel         = "google/gemini-2.5-flash"
	defaultCleanupReferer       = "https://github.com/quill-corpus/quill"
	defaultCleanupTitle         = "Quill Transcript Cleanup"
	defaultCleanupTimeout       = 120
	defaultRecordingSampleRate  = 44100
	defaultRecordingChannels    = 1
	defaultRecordingBinary      = "arecord"
	defaultRetryMaxAttempts     = 3
	defaultRetryInitialDelayMS  = 1000
	defaultRetryMaxDelayMS      = 10000
	defaultBuildWorkers         = 4
	defaultNotifyRequestTimeout = 10
	defaultSyncEndpoint         = "https://huggingface.co"
	defaultSyncRevision         = "main"
	defaultSyncCommitMessage    = "Sync dataset from local repository"
	defaultSyncTimeout          = 600
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	maxRetryAttempts            = 10
	maxRecordingChannels        = 8
	envTranscriptionAPIKey      = "OPENAI_API_KEY"
	envCleanupAPIKey            = "OPENROUTER_API_KEY"
	envCleanupAPIKeyLegacy      = "OPENROTUER_API_KEY"
	envCleanupModel             = "TEXT_CLEANUP_VALIDATION_MODEL"
	envNtfyTopic                = "QUILL_NTFY_TOPIC"
	envSyncToken                = "HF_TOKEN"
	envSyncTokenLegacy          = "HF_CLI"
	envSyncRepo                 = "QUILL_HF_REPO"
)

// defaultSyncIgnore keeps local state and secrets out of the uploaded repo.
var defaultSyncIgnore = []string{".git", "__pycache__", "*.pyc", ".DS_Store", ".env", ".dataset.lock", "*.partial"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DatasetRoot: defaultDatasetRoot,
			StateDir:    defaultStateDir,
			LogDir:      defaultLogDir,
		},
		Dataset: Dataset{
			Name:        defaultDatasetName,
			Description: defaultDatasetDescription,
			Version:     defaultDatasetVersion,
			License:     defaultDatasetLicense,
		},
		Transcription: Transcription{
			BaseURL:        defaultTranscriptionBaseURL,
			Model:          defaultTranscriptionModel,
			TimeoutSeconds: defaultTranscriptionTimeout,
		},
		Cleanup: Cleanup{
			BaseURL:        defaultCleanupBaseURL,
			Model:          defaultCleanupModel,
			Referer:        defaultCleanupReferer,
			Title:          defaultCleanupTitle,
			TimeoutSeconds: defaultCleanupTimeout,
		},
		Recording: Recording{
			SampleRate: defaultRecordingSampleRate,
			Channels:   defaultRecordingChannels,
			Binary:     defaultRecordingBinary,
		},
		Retry: Retry{
			MaxAttempts:    defaultRetryMaxAttempts,
			InitialDelayMS: defaultRetryInitialDelayMS,
			MaxDelayMS:     defaultRetryMaxDelayMS,
		},
		Build: Build{
			Workers: defaultBuildWorkers,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
		},
		Sync: Sync{
			Endpoint:       defaultSyncEndpoint,
			Revision:       defaultSyncRevision,
			CommitMessage:  defaultSyncCommitMessage,
			Ignore:         append([]string(nil), defaultSyncIgnore...),
			TimeoutSeconds: defaultSyncTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
