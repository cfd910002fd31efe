package validate

import (
	"fmt"
	"strings"

	"quill/internal/dataset"
	"quill/internal/services"
)

// Issue codes reported per sample.
const (
	IssueMissingAudio         = "missing_audio"
	IssueMissingRawTranscript = "missing_raw_transcript"
	IssueMissingManualCleanup = "missing_manual_cleanup"
	IssueEmptyManualCleanup   = "empty_manual_cleanup"
	// WarningMissingAutoCleanup is informational and never blocks completion.
	WarningMissingAutoCleanup = "missing_auto_cleanup"
)

// SampleReport lists what keeps one sample from being complete.
type SampleReport struct {
	ID           string   `json:"id"`
	SampleNumber int      `json:"sample_number"`
	Complete     bool     `json:"complete"`
	Issues       []string `json:"issues"`
	Warnings     []string `json:"warnings"`
}

// Summary aggregates the per-sample reports.
type Summary struct {
	Total          int      `json:"total"`
	Complete       int      `json:"complete"`
	Incomplete     int      `json:"incomplete"`
	ProblemSamples []int    `json:"problem_samples"`
	Warnings       []string `json:"warnings"`
}

// Report is the outcome of validating a set of samples.
type Report struct {
	Valid   bool           `json:"valid"`
	Summary Summary        `json:"summary"`
	Samples []SampleReport `json:"samples"`
}

// Validate checks each sample for the artifacts a training pair needs. It
// reads only the records and never touches the filesystem.
func Validate(samples []dataset.Sample) Report {
	ordered := make([]dataset.Sample, len(samples))
	copy(ordered, samples)
	dataset.SortSamples(ordered)

	report := Report{
		Samples: make([]SampleReport, 0, len(ordered)),
		Summary: Summary{ProblemSamples: []int{}, Warnings: []string{}},
	}
	for _, sample := range ordered {
		sr := check(sample)
		report.Samples = append(report.Samples, sr)
		report.Summary.Total++
		if sr.Complete {
			report.Summary.Complete++
		} else {
			report.Summary.Incomplete++
			report.Summary.ProblemSamples = append(report.Summary.ProblemSamples, sample.SampleNumber)
		}
		for _, w := range sr.Warnings {
			report.Summary.Warnings = append(report.Summary.Warnings, fmt.Sprintf("sample %d: %s", sample.SampleNumber, w))
		}
	}
	report.Valid = report.Summary.Incomplete == 0
	return report
}

func check(sample dataset.Sample) SampleReport {
	sr := SampleReport{
		ID:           sample.ID,
		SampleNumber: sample.SampleNumber,
		Issues:       []string{},
		Warnings:     []string{},
	}
	if sample.Files.Audio == nil {
		sr.Issues = append(sr.Issues, IssueMissingAudio)
	}
	if sample.Files.RawTranscript == nil || strings.TrimSpace(sample.Content.RawTranscript) == "" {
		sr.Issues = append(sr.Issues, IssueMissingRawTranscript)
	}
	switch {
	case sample.Files.ManualCleanup == nil:
		sr.Issues = append(sr.Issues, IssueMissingManualCleanup)
	case !dataset.IsManualCleanupDone(sample.Content.ManualCleanup):
		sr.Issues = append(sr.Issues, IssueEmptyManualCleanup)
	}
	if sample.Files.AutoCleanup == nil || strings.TrimSpace(sample.Content.AutoCleanup) == "" {
		sr.Warnings = append(sr.Warnings, WarningMissingAutoCleanup)
	}
	sr.Complete = len(sr.Issues) == 0
	return sr
}

// Err returns a validation error naming the incomplete samples, or nil when
// every sample is complete.
func (r Report) Err() error {
	if r.Valid {
		return nil
	}
	numbers := make([]string, 0, len(r.Summary.ProblemSamples))
	for _, n := range r.Summary.ProblemSamples {
		numbers = append(numbers, fmt.Sprint(n))
	}
	return services.Wrap(services.ErrValidation, "validate", "",
		fmt.Sprintf("%d of %d samples incomplete (samples %s)", r.Summary.Incomplete, r.Summary.Total, strings.Join(numbers, ", ")), nil)
}
