package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"quill/internal/dataset"
	"quill/internal/services"
)

// Supported output formats.
const (
	FormatJSON  = "json"
	FormatJSONL = "jsonl"
)

// Record is one training pair.
type Record struct {
	Input    string   `json:"input"`
	Output   string   `json:"output"`
	Metadata Metadata `json:"metadata"`
}

// Metadata identifies the sample a record came from.
type Metadata struct {
	SampleID     string `json:"sample_id"`
	SampleNumber int    `json:"sample_number"`
	QuestionText string `json:"question_text"`
}

// ParseFormat normalizes a user-supplied format name.
func ParseFormat(value string) (string, error) {
	switch format := strings.ToLower(strings.TrimSpace(value)); format {
	case FormatJSON, FormatJSONL:
		return format, nil
	default:
		return "", services.Wrap(services.ErrConfiguration, "export", "format", fmt.Sprintf("unsupported format %q (want json or jsonl)", value), nil)
	}
}

// Records keeps the complete samples ordered by sample number and maps them
// to training pairs.
func Records(samples []dataset.Sample) []Record {
	ordered := make([]dataset.Sample, 0, len(samples))
	for _, s := range samples {
		if s.Status.IsComplete {
			ordered = append(ordered, s)
		}
	}
	dataset.SortSamples(ordered)
	records := make([]Record, 0, len(ordered))
	for _, s := range ordered {
		records = append(records, Record{
			Input:  s.Content.RawTranscript,
			Output: s.Content.ManualCleanup,
			Metadata: Metadata{
				SampleID:     s.ID,
				SampleNumber: s.SampleNumber,
				QuestionText: s.Question,
			},
		})
	}
	return records
}

// Encode renders the records for format. Zero complete samples yields
// ErrEmptyExport.
func Encode(format string, samples []dataset.Sample) ([]byte, int, error) {
	format, err := ParseFormat(format)
	if err != nil {
		return nil, 0, err
	}
	records := Records(samples)
	if len(records) == 0 {
		return nil, 0, services.Wrap(services.ErrEmptyExport, "export", "", fmt.Sprintf("%d samples, none complete", len(samples)), nil)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	switch format {
	case FormatJSON:
		enc.SetIndent("", "  ")
		if err := enc.Encode(records); err != nil {
			return nil, 0, fmt.Errorf("encode export: %w", err)
		}
	case FormatJSONL:
		for _, record := range records {
			if err := enc.Encode(record); err != nil {
				return nil, 0, fmt.Errorf("encode export: %w", err)
			}
		}
	}
	return buf.Bytes(), len(records), nil
}

// Write streams the export to w. Nothing is written when there are no
// complete samples.
func Write(w io.Writer, format string, samples []dataset.Sample) (int, error) {
	payload, count, err := Encode(format, samples)
	if err != nil {
		return 0, err
	}
	if _, err := w.Write(payload); err != nil {
		return 0, services.Wrap(services.ErrFileSystem, "export", "write", "", err)
	}
	return count, nil
}

// WriteFile writes the export to path atomically. The file is never created
// when the export would be empty.
func WriteFile(path, format string, samples []dataset.Sample) (int, error) {
	payload, count, err := Encode(format, samples)
	if err != nil {
		return 0, err
	}
	if err := dataset.WriteAtomic(path, payload, 0o644); err != nil {
		return 0, err
	}
	return count, nil
}
