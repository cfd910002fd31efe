package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"quill/internal/dataset"
	"quill/internal/services"
	"quill/internal/testsupport"
)

type fakeServices struct {
	whisper *httptest.Server
	llm     *httptest.Server
	calls   atomic.Int32
}

func newFakeServices(t *testing.T, whisperStatus int) *fakeServices {
	t.Helper()
	f := &fakeServices{}
	f.whisper = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		if whisperStatus != http.StatusOK {
			http.Error(w, "denied", whisperStatus)
			return
		}
		_, _ = io.WriteString(w, "um so hello there\n")
	}))
	f.llm = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]any{
			"choices": []any{
				map[string]any{"message": map[string]any{"content": "So, hello there."}, "finish_reason": "stop"},
			},
		}
		_ = json.NewEncoder(w).Encode(payload)
	}))
	t.Cleanup(func() {
		f.whisper.Close()
		f.llm.Close()
	})
	return f
}

func TestProcessRunsMissingStages(t *testing.T) {
	fakes := newFakeServices(t, http.StatusOK)
	env := setupCLITestEnv(t, testsupport.WithServiceURLs(fakes.whisper.URL, fakes.llm.URL))
	env.populate(t,
		testsupport.SampleFixture{ID: "a", Number: 1, Audio: true},
		testsupport.SampleFixture{ID: "b", Number: 2},
	)

	out, _, err := runCLI(t, []string{"process"}, env.configPath)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	requireContains(t, out, "1 succeeded, 0 failed")
	requireContains(t, out, "placeholder_created")

	raw := testsupport.ReadText(t, env.layout.CanonicalPath(dataset.SlotRaw, "a"))
	if strings.TrimSpace(raw) != "um so hello there" {
		t.Fatalf("unexpected raw transcript %q", raw)
	}
	auto := testsupport.ReadText(t, env.layout.CanonicalPath(dataset.SlotAuto, "a"))
	if strings.TrimSpace(auto) != "So, hello there." {
		t.Fatalf("unexpected auto cleanup %q", auto)
	}
	if _, ok := env.layout.Resolve(dataset.SlotManual, "a", 1); !ok {
		t.Fatal("expected manual cleanup placeholder")
	}
	if _, ok := env.layout.Resolve(dataset.SlotRaw, "b", 2); ok {
		t.Fatal("unrecorded sample must not be processed")
	}

	// A second run has nothing left to do.
	before := fakes.calls.Load()
	if _, _, err := runCLI(t, []string{"process", "1"}, env.configPath); err != nil {
		t.Fatalf("second process: %v", err)
	}
	if fakes.calls.Load() != before {
		t.Fatal("expected existing transcript to be reused")
	}

	out, _, err = runCLI(t, []string{"history", "1"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "transcription")
	requireContains(t, out, "placeholder_created")
}

func TestProcessAuthFailureIsNotRetried(t *testing.T) {
	fakes := newFakeServices(t, http.StatusUnauthorized)
	env := setupCLITestEnv(t, testsupport.WithServiceURLs(fakes.whisper.URL, fakes.llm.URL))
	env.populate(t, testsupport.SampleFixture{ID: "a", Number: 1, Audio: true})

	out, _, err := runCLI(t, []string{"process", "a"}, env.configPath)
	if services.ExitCode(err) != services.ExitAuth {
		t.Fatalf("expected auth exit code, got %d (%v)", services.ExitCode(err), err)
	}
	requireContains(t, out, "0 succeeded, 1 failed")
	if got := fakes.calls.Load(); got != 1 {
		t.Fatalf("expected a single transcription attempt, got %d", got)
	}
	if _, ok := env.layout.Resolve(dataset.SlotRaw, "a", 1); ok {
		t.Fatal("raw transcript must not be written on failure")
	}
}

func TestProcessUnknownQuestion(t *testing.T) {
	env := setupCLITestEnv(t)
	env.populate(t, testsupport.SampleFixture{ID: "a", Number: 1, Audio: true})
	if _, _, err := runCLI(t, []string{"process", "9"}, env.configPath); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestProcessJSONOutput(t *testing.T) {
	fakes := newFakeServices(t, http.StatusOK)
	env := setupCLITestEnv(t, testsupport.WithServiceURLs(fakes.whisper.URL, fakes.llm.URL))
	env.populate(t, testsupport.SampleFixture{ID: "a", Number: 1, Audio: true, Raw: testsupport.Text("hi there")})

	out, _, err := runCLI(t, []string{"--json", "process", "--all"}, env.configPath)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	var payload struct {
		Succeeded int          `json:"succeeded"`
		Samples   []processRow `json:"samples"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if payload.Succeeded != 1 || len(payload.Samples) != 1 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	row := payload.Samples[0]
	if len(row.Skipped) == 0 || row.Skipped[0] != "transcription" {
		t.Fatalf("expected transcription to be skipped, got %+v", row)
	}
	if fakes.calls.Load() != 0 {
		t.Fatal("transcription service must not be called when a transcript exists")
	}
}
