package preflight

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"quill/internal/recording"
	"quill/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	result := CheckDirectoryAccess("test", t.TempDir())
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed || result.Detail == "" {
		t.Fatalf("expected failure with detail for missing dir, got %+v", result)
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if result := CheckDirectoryAccess("test", f); result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestModelsURL(t *testing.T) {
	tests := map[string]string{
		"https://api.openai.com/v1/audio/transcriptions": "https://api.openai.com/v1/models",
		"https://openrouter.ai/api/v1/chat/completions":  "https://openrouter.ai/api/v1/models",
		"http://127.0.0.1:8080":                          "http://127.0.0.1:8080/models",
		"http://127.0.0.1:8080/v1/chat/completions?x=1":  "http://127.0.0.1:8080/v1/models",
	}
	for in, want := range tests {
		got, err := modelsURL(in)
		if err != nil || got != want {
			t.Errorf("modelsURL(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := modelsURL("not a url"); err == nil {
		t.Error("expected error for relative url")
	}
}

func TestCheckEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("Authorization") != "Bearer good-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ok := CheckEndpoint(context.Background(), Endpoint{Name: "API", BaseURL: srv.URL + "/v1/chat/completions", APIKey: "good-key"})
	if !ok.Passed {
		t.Fatalf("expected pass, got: %s", ok.Detail)
	}
	bad := CheckEndpoint(context.Background(), Endpoint{Name: "API", BaseURL: srv.URL + "/v1/chat/completions", APIKey: "bad-key"})
	if bad.Passed || bad.Detail != "auth failed (invalid api key)" {
		t.Fatalf("expected auth failure, got %+v", bad)
	}
	missing := CheckEndpoint(context.Background(), Endpoint{Name: "API", BaseURL: srv.URL})
	if missing.Passed || missing.Detail != "API key missing" {
		t.Fatalf("expected missing key failure, got %+v", missing)
	}
}

type stubLister struct {
	devices []recording.Device
	err     error
}

func (s stubLister) Devices(context.Context) ([]recording.Device, error) { return s.devices, s.err }

func TestCheckDevices(t *testing.T) {
	if r := CheckDevices(context.Background(), stubLister{}); r.Passed {
		t.Fatal("expected failure without devices")
	}
	if r := CheckDevices(context.Background(), stubLister{err: errors.New("sysfs unreadable")}); r.Passed || r.Detail != "sysfs unreadable" {
		t.Fatalf("unexpected result %+v", r)
	}
	r := CheckDevices(context.Background(), stubLister{devices: []recording.Device{{ID: "hw:1,0"}, {ID: "hw:2,0"}}})
	if !r.Passed || r.Detail != "hw:1,0, hw:2,0" {
		t.Fatalf("unexpected result %+v", r)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	layout := testsupport.NewDatasetRoot(t)
	if results := RunAll(context.Background(), nil, layout, Options{}); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_OfflineConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries("", "arecord", "ffprobe"))
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	layout := testsupport.NewDatasetRoot(t, testsupport.SampleFixture{ID: "q1", Number: 1, Audio: true})

	results := RunAll(context.Background(), cfg, layout, Options{
		Offline: true,
		Devices: stubLister{devices: []recording.Device{{ID: "hw:1,0"}}},
	})
	if len(results) != 8 {
		t.Fatalf("expected 8 results, got %d: %+v", len(results), results)
	}
	for _, r := range results {
		if !r.Passed {
			t.Errorf("check %q failed: %s", r.Name, r.Detail)
		}
	}
	if Failed(results) {
		t.Fatal("expected no failures")
	}

	cfg.Cleanup.APIKey = ""
	results = RunAll(context.Background(), cfg, layout, Options{Offline: true})
	if !Failed(results) {
		t.Fatal("missing cleanup key must fail doctor")
	}
}

func TestFailedIgnoresOptionalChecks(t *testing.T) {
	if Failed([]Result{{Name: "FFprobe", Optional: true}, {Name: "Dataset root", Passed: true}}) {
		t.Fatal("optional failures must not fail doctor")
	}
}
