package dataset

// Files lists artifact paths relative to the dataset root. A nil entry means
// the artifact is absent.
type Files struct {
	Audio         *string `json:"audio"`
	RawTranscript *string `json:"raw_transcript"`
	AutoCleanup   *string `json:"auto_cleanup"`
	ManualCleanup *string `json:"manual_cleanup"`
}

// AudioMetadata is probed from the audio artifact. Duration and sample rate
// stay nil when probing failed; ProbeError then carries the reason.
type AudioMetadata struct {
	DurationSeconds *float64 `json:"duration_seconds"`
	Format          string   `json:"format"`
	SampleRate      *int     `json:"sample_rate"`
	ProbeError      string   `json:"probe_error,omitempty"`
}

// TextStatistics holds whitespace-token counts per text artifact.
type TextStatistics struct {
	RawWordCount    *int `json:"raw_word_count"`
	AutoWordCount   *int `json:"auto_word_count"`
	ManualWordCount *int `json:"manual_word_count"`
}

// Models records which model produced each generated artifact.
type Models struct {
	TranscriptionModelID *string `json:"transcription_model_id"`
	CleanupModelID       *string `json:"cleanup_model_id"`
}

// Status flags are derived from artifact presence and content.
type Status struct {
	Recorded        bool `json:"recorded"`
	Transcribed     bool `json:"transcribed"`
	AutoCleaned     bool `json:"auto_cleaned"`
	ManuallyCleaned bool `json:"manually_cleaned"`
	IsComplete      bool `json:"is_complete"`
}

// Content embeds trimmed copies of the text artifacts.
type Content struct {
	RawTranscript string `json:"raw_transcript,omitempty"`
	AutoCleanup   string `json:"auto_cleanup,omitempty"`
	ManualCleanup string `json:"manual_cleanup,omitempty"`
}

// Sample is the canonical record for one recorded question.
type Sample struct {
	ID             string         `json:"id"`
	SampleNumber   int            `json:"sample_number"`
	QuestionID     string         `json:"question_id"`
	Question       string         `json:"question"`
	Files          Files          `json:"files"`
	AudioMetadata  *AudioMetadata `json:"audio_metadata"`
	TextStatistics TextStatistics `json:"text_statistics"`
	Models         Models         `json:"models"`
	Status         Status         `json:"status"`
	Content        Content        `json:"content"`
}

// Metadata describes the dataset as a whole.
type Metadata struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`
	Author      string `json:"author"`
	License     string `json:"license"`
	Created     string `json:"created"`
}

// Statistics aggregates per-sample status and size.
type Statistics struct {
	TotalSamples           int     `json:"total_samples"`
	RecordedSamples        int     `json:"recorded_samples"`
	TranscribedSamples     int     `json:"transcribed_samples"`
	AutoCleanedSamples     int     `json:"auto_cleaned_samples"`
	ManuallyCleanedSamples int     `json:"manually_cleaned_samples"`
	CompletedSamples       int     `json:"completed_samples"`
	CompletionPercentage   float64 `json:"completion_percentage"`
	TotalAudioSeconds      float64 `json:"total_audio_seconds"`
	TotalRawWords          int     `json:"total_raw_words"`
	TotalManualWords       int     `json:"total_manual_words"`
}

// Configuration records the processing setup in effect for the build.
type Configuration struct {
	TranscriptionModel string `json:"transcription_model"`
	CleanupModel       string `json:"cleanup_model"`
	PromptVersion      string `json:"prompt_version"`
	AudioFormat        string `json:"audio_format"`
	AudioSampleRate    int    `json:"audio_sample_rate"`
}

// Dataset is the shape of dataset.json.
type Dataset struct {
	Metadata      Metadata      `json:"metadata"`
	Statistics    Statistics    `json:"statistics"`
	Configuration Configuration `json:"configuration"`
	Samples       []Sample      `json:"samples"`
}

// Ptr returns a pointer to v. Used for the nullable snapshot fields.
func Ptr[T any](v T) *T {
	return &v
}

// Deref returns the pointed-to value or the zero value.
func Deref[T any](p *T) T {
	if p == nil {
		var zero T
		return zero
	}
	return *p
}
