package pipeline_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"quill/internal/dataset"
	"quill/internal/pipeline"
	"quill/internal/questions"
	"quill/internal/recording"
	"quill/internal/services"
	"quill/internal/testsupport"
)

type fakeCapture struct {
	mu       sync.Mutex
	devices  []recording.Device
	startErr error
	started  []string
}

func (f *fakeCapture) Devices(context.Context) ([]recording.Device, error) {
	return f.devices, nil
}

func (f *fakeCapture) Start(_ context.Context, device, dest string) (pipeline.Session, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.mu.Lock()
	f.started = append(f.started, device)
	f.mu.Unlock()
	return &fakeSession{device: device, dest: dest}, nil
}

type fakeSession struct {
	device string
	dest   string
}

func (s *fakeSession) Stop() (recording.Result, error) {
	payload := testsupport.WAVBytes(16000, 1, 1)
	if err := os.WriteFile(s.dest, payload, 0o644); err != nil {
		return recording.Result{}, err
	}
	return recording.Result{Path: s.dest, Device: s.device, Bytes: int64(len(payload)), DurationSeconds: 1}, nil
}

func (s *fakeSession) Abort() error { return nil }

func TestRecordingAllocatesIDAndMarksRecorded(t *testing.T) {
	h := newHarness(t, testsupport.SampleFixture{Number: 1, Text: "What did you build?"})
	q := h.question(t, 1)
	if q.ID != "" {
		t.Fatalf("fixture should start without an id, got %q", q.ID)
	}

	started, err := h.pipe.StartRecording(context.Background(), q, "")
	if err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	if started.ID == "" {
		t.Fatal("expected an allocated id")
	}
	if h.capture.started[0] != "hw:1,0" {
		t.Fatalf("expected first device, got %v", h.capture.started)
	}
	if active, ok := h.pipe.Recording(); !ok || active.ID != started.ID {
		t.Fatalf("expected active recording for %s", started.ID)
	}

	saved, err := questions.Load(h.layout.QuestionsPath())
	if err != nil {
		t.Fatalf("reload questions: %v", err)
	}
	if persisted, _ := saved.ByNumber(1); persisted.ID != started.ID {
		t.Fatalf("id not saved before capture: %+v", persisted)
	}

	rec, err := h.pipe.StopRecording(context.Background())
	if err != nil {
		t.Fatalf("StopRecording: %v", err)
	}
	if rec.Capture.DurationSeconds != 1 || !rec.Question.HasRecording {
		t.Fatalf("unexpected recording %+v", rec)
	}
	if _, err := os.Stat(h.layout.CanonicalPath(dataset.SlotAudio, started.ID)); err != nil {
		t.Fatalf("audio not written: %v", err)
	}
	if sample := h.sample(t, started.ID); !sample.Status.Recorded || sample.Question != "What did you build?" {
		t.Fatalf("sample not refreshed: %+v", sample)
	}
	saved, _ = questions.Load(h.layout.QuestionsPath())
	if persisted, _ := saved.ByNumber(1); !persisted.HasRecording {
		t.Fatal("has_recording not saved")
	}
	if _, ok := h.pipe.Recording(); ok {
		t.Fatal("recording should no longer be active")
	}
	if _, err := h.pipe.StopRecording(context.Background()); !errors.Is(err, pipeline.ErrNoActiveRecording) {
		t.Fatalf("expected ErrNoActiveRecording, got %v", err)
	}
}

func TestRecordingIsExclusive(t *testing.T) {
	h := newHarness(t,
		testsupport.SampleFixture{ID: "q1", Number: 1},
		testsupport.SampleFixture{ID: "q2", Number: 2},
	)
	if _, err := h.pipe.StartRecording(context.Background(), h.question(t, 1), "hw:2,0"); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	_, err := h.pipe.StartRecording(context.Background(), h.question(t, 2), "")
	if !errors.Is(err, recording.ErrRecordingActive) || !errors.Is(err, services.ErrDevice) {
		t.Fatalf("expected ErrRecordingActive, got %v", err)
	}
	if err := h.pipe.AbortRecording(); err != nil {
		t.Fatalf("AbortRecording: %v", err)
	}
	if _, err := h.pipe.StartRecording(context.Background(), h.question(t, 2), ""); err != nil {
		t.Fatalf("StartRecording after abort: %v", err)
	}
}

func TestRecordingRefusesExistingAudio(t *testing.T) {
	h := newHarness(t, testsupport.SampleFixture{ID: "q1", Number: 1, Audio: true})
	_, err := h.pipe.StartRecording(context.Background(), h.question(t, 1), "")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRecordingWithoutDevices(t *testing.T) {
	h := newHarness(t, testsupport.SampleFixture{ID: "q1", Number: 1})
	h.capture.devices = nil
	_, err := h.pipe.StartRecording(context.Background(), h.question(t, 1), "")
	if !errors.Is(err, services.ErrDevice) {
		t.Fatalf("expected ErrDevice, got %v", err)
	}
	if _, ok := h.pipe.Recording(); ok {
		t.Fatal("no recording should be active")
	}
}

func TestRecordingStartFailureRollsBack(t *testing.T) {
	h := newHarness(t, testsupport.SampleFixture{ID: "q1", Number: 1})
	h.capture.startErr = services.Wrap(services.ErrDevice, "recording", "start", "arecord failed", nil)
	if _, err := h.pipe.StartRecording(context.Background(), h.question(t, 1), ""); !errors.Is(err, services.ErrDevice) {
		t.Fatalf("expected ErrDevice, got %v", err)
	}
	failed := h.events.ofType(pipeline.EventFailed)
	if len(failed) != 1 || failed[0].Stage != pipeline.StageRecording || failed[0].To != pipeline.StateIdle {
		t.Fatalf("expected rollback to idle, got %+v", failed)
	}
}
