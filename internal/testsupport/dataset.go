package testsupport

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"quill/internal/dataset"
	"quill/internal/questions"
)

// SampleFixture describes the artifacts to lay down for one question.
// Nil text pointers leave the artifact absent.
type SampleFixture struct {
	ID     string
	Number int
	Text   string
	Audio  bool
	Raw    *string
	Auto   *string
	Manual *string
}

// Text is a helper for building SampleFixture fields.
func Text(s string) *string { return &s }

// NewDatasetRoot creates a dataset root under a temp dir holding
// questions.json and the requested artifacts, all named by id.
func NewDatasetRoot(t testing.TB, fixtures ...SampleFixture) dataset.Layout {
	t.Helper()
	return PopulateDatasetRoot(t, dataset.NewLayout(filepath.Join(t.TempDir(), "dataset")), fixtures...)
}

// PopulateDatasetRoot writes questions.json and artifacts into layout.
func PopulateDatasetRoot(t testing.TB, layout dataset.Layout, fixtures ...SampleFixture) dataset.Layout {
	t.Helper()
	entries := make([]questions.Question, 0, len(fixtures))
	for _, f := range fixtures {
		text := f.Text
		if text == "" {
			text = "Question?"
		}
		entries = append(entries, questions.Question{ID: f.ID, Number: f.Number, Text: text, HasRecording: f.Audio})
		if f.Audio {
			WriteWAV(t, layout.CanonicalPath(dataset.SlotAudio, f.ID), 16000, 1, 0.5)
		}
		if f.Raw != nil {
			WriteText(t, layout.CanonicalPath(dataset.SlotRaw, f.ID), *f.Raw)
		}
		if f.Auto != nil {
			WriteText(t, layout.CanonicalPath(dataset.SlotAuto, f.ID), *f.Auto)
		}
		if f.Manual != nil {
			WriteText(t, layout.CanonicalPath(dataset.SlotManual, f.ID), *f.Manual)
		}
	}
	payload, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		t.Fatalf("encode questions: %v", err)
	}
	WriteText(t, layout.QuestionsPath(), string(payload))
	return layout
}
