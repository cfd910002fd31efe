package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"quill/internal/services"
)

// stubHub accepts every file inline and records committed paths.
type stubHub struct {
	server   *httptest.Server
	requests atomic.Int32
	paths    []string
	failures int32
}

func newStubHub(t *testing.T) *stubHub {
	t.Helper()
	hub := &stubHub{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/datasets/owner/data/preupload/main", func(w http.ResponseWriter, r *http.Request) {
		if hub.requests.Add(1) <= hub.failures {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		var req struct {
			Files []struct {
				Path string `json:"path"`
			} `json:"files"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		modes := make([]map[string]any, 0, len(req.Files))
		for _, f := range req.Files {
			modes = append(modes, map[string]any{"path": f.Path, "uploadMode": "regular"})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"files": modes})
	})
	mux.HandleFunc("POST /api/datasets/owner/data/commit/main", func(w http.ResponseWriter, r *http.Request) {
		hub.requests.Add(1)
		scanner := bufio.NewScanner(r.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
		for scanner.Scan() {
			var line struct {
				Key   string            `json:"key"`
				Value map[string]string `json:"value"`
			}
			if err := json.Unmarshal(scanner.Bytes(), &line); err == nil && line.Key == "file" {
				hub.paths = append(hub.paths, line.Value["path"])
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"commitOid": "c0ffee", "commitUrl": "https://hub.test/commit/c0ffee"})
	})
	hub.server = httptest.NewServer(mux)
	t.Cleanup(hub.server.Close)
	return hub
}

func appendSyncConfig(t *testing.T, env *cliTestEnv, endpoint string) {
	t.Helper()
	f, err := os.OpenFile(env.configPath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open config: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString("\n[sync]\nrepo = \"owner/data\"\nendpoint = \"" + endpoint + "\"\n"); err != nil {
		t.Fatalf("append config: %v", err)
	}
}

func TestSyncUploadsDatasetFolder(t *testing.T) {
	env := setupCLITestEnv(t)
	env.populate(t, completeAndPlaceholder()...)
	hub := newStubHub(t)
	appendSyncConfig(t, env, hub.server.URL)
	t.Setenv("HF_CLI", "hf-legacy")
	if err := os.WriteFile(env.layout.LockPath(), nil, 0o644); err != nil {
		t.Fatalf("write lock: %v", err)
	}

	out, _, err := runCLI(t, []string{"sync", "--yes"}, env.configPath)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	requireContains(t, out, "Synced "+hub.server.URL+"/datasets/owner/data")
	requireContains(t, out, "https://hub.test/commit/c0ffee")

	joined := strings.Join(hub.paths, ",")
	requireContains(t, joined, "questions.json")
	if strings.Contains(joined, ".dataset.lock") {
		t.Fatalf("lock file must not be uploaded: %v", hub.paths)
	}
}

func TestSyncRetriesTransientFailures(t *testing.T) {
	env := setupCLITestEnv(t)
	env.populate(t, completeAndPlaceholder()...)
	hub := newStubHub(t)
	hub.failures = 1
	appendSyncConfig(t, env, hub.server.URL)
	t.Setenv("HF_TOKEN", "hf-test")

	if _, _, err := runCLI(t, []string{"sync", "--yes"}, env.configPath); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(hub.paths) == 0 {
		t.Fatal("expected a commit after the retry")
	}
}

func TestSyncAbortsWithoutConfirmation(t *testing.T) {
	env := setupCLITestEnv(t)
	env.populate(t, completeAndPlaceholder()...)
	hub := newStubHub(t)
	appendSyncConfig(t, env, hub.server.URL)
	t.Setenv("HF_TOKEN", "hf-test")

	out, _, err := runCLI(t, []string{"sync"}, env.configPath)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	requireContains(t, out, "[y/N]")
	requireContains(t, out, "Aborted.")
	if n := hub.requests.Load(); n != 0 {
		t.Fatalf("expected no requests, got %d", n)
	}
}

func TestSyncRequiresCredentials(t *testing.T) {
	env := setupCLITestEnv(t)
	env.populate(t, completeAndPlaceholder()...)

	_, _, err := runCLI(t, []string{"sync", "--yes"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "sync.repo is required") {
		t.Fatalf("expected missing repo error, got %v", err)
	}

	_, _, err = runCLI(t, []string{"sync", "--yes", "--repo", "owner/data"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "sync.token is required") {
		t.Fatalf("expected missing token error, got %v", err)
	}
}

func TestSyncDryRunListsFiles(t *testing.T) {
	env := setupCLITestEnv(t)
	env.populate(t, completeAndPlaceholder()...)

	out, _, err := runCLI(t, []string{"sync", "--dry-run"}, env.configPath)
	if err != nil {
		t.Fatalf("sync --dry-run: %v", err)
	}
	requireContains(t, out, "questions.json")
}

func TestSyncEmptyDatasetRoot(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"sync", "--dry-run"}, env.configPath)
	if !errors.Is(err, services.ErrEmptyExport) {
		t.Fatalf("expected empty error, got %v", err)
	}
}
