package dataset_test

import (
	"os"
	"path/filepath"
	"testing"

	"quill/internal/dataset"
)

func touch(t *testing.T, path string, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestResolvePrefersIDOverNumber(t *testing.T) {
	layout := dataset.NewLayout(t.TempDir())
	touch(t, filepath.Join(layout.Dir(dataset.SlotRaw), "7.txt"), "legacy")
	touch(t, filepath.Join(layout.Dir(dataset.SlotRaw), "abc.txt"), "modern")

	path, ok := layout.Resolve(dataset.SlotRaw, "abc", 7)
	if !ok || filepath.Base(path) != "abc.txt" {
		t.Fatalf("expected id-named artifact, got %q ok=%v", path, ok)
	}

	path, ok = layout.Resolve(dataset.SlotRaw, "other", 7)
	if !ok || filepath.Base(path) != "7.txt" {
		t.Fatalf("expected number fallback, got %q ok=%v", path, ok)
	}

	if _, ok := layout.Resolve(dataset.SlotAuto, "abc", 7); ok {
		t.Fatal("expected missing auto cleanup")
	}
}

func TestResolveAudioExtensionOrder(t *testing.T) {
	layout := dataset.NewLayout(t.TempDir())
	touch(t, filepath.Join(layout.Dir(dataset.SlotAudio), "q1.ogg"), "x")
	touch(t, filepath.Join(layout.Dir(dataset.SlotAudio), "q1.mp3"), "x")

	path, ok := layout.Resolve(dataset.SlotAudio, "q1", 1)
	if !ok || filepath.Ext(path) != ".mp3" {
		t.Fatalf("expected .mp3 before .ogg, got %q", path)
	}
}

func TestResolveIgnoresDirectories(t *testing.T) {
	layout := dataset.NewLayout(t.TempDir())
	if err := os.MkdirAll(filepath.Join(layout.Dir(dataset.SlotManual), "q1.txt"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if _, ok := layout.Resolve(dataset.SlotManual, "q1", 1); ok {
		t.Fatal("directory must not resolve as an artifact")
	}
}

func TestRelUsesForwardSlashes(t *testing.T) {
	layout := dataset.NewLayout(t.TempDir())
	rel := layout.Rel(layout.CanonicalPath(dataset.SlotManual, "abc"))
	if rel != "manual-cleanups/abc.txt" {
		t.Fatalf("unexpected relative path: %q", rel)
	}
	if got := layout.Rel(layout.CanonicalPath(dataset.SlotAudio, "abc")); got != "audio/abc.wav" {
		t.Fatalf("unexpected audio path: %q", got)
	}
}

func TestWriteAtomicLeavesNoTempFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	target := filepath.Join(dir, "out.txt")
	if err := dataset.WriteAtomic(target, []byte("first"), 0o644); err != nil {
		t.Fatalf("WriteAtomic: %v", err)
	}
	if err := dataset.WriteAtomic(target, []byte("second"), 0o644); err != nil {
		t.Fatalf("WriteAtomic overwrite: %v", err)
	}
	content, err := os.ReadFile(target)
	if err != nil || string(content) != "second" {
		t.Fatalf("unexpected content %q err=%v", content, err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the target file, got %d entries", len(entries))
	}
}

func TestEnsureDirs(t *testing.T) {
	layout := dataset.NewLayout(t.TempDir())
	if err := layout.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	for _, slot := range []dataset.Slot{dataset.SlotAudio, dataset.SlotRaw, dataset.SlotAuto, dataset.SlotManual} {
		if info, err := os.Stat(layout.Dir(slot)); err != nil || !info.IsDir() {
			t.Fatalf("expected %s directory: %v", slot, err)
		}
	}
}
