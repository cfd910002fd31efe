package hf

import (
	"testing"
)

func TestCollectAppliesIgnorePatterns(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "dataset.json", "{}")
	writeFile(t, dir, "audio/q1.wav", "RIFF")
	writeFile(t, dir, "audio/q2.wav.partial", "RIFF")
	writeFile(t, dir, ".git/HEAD", "ref")
	writeFile(t, dir, "scripts/__pycache__/x.pyc", "bytes")
	writeFile(t, dir, ".env", "HF_TOKEN=secret")

	files, err := Collect(dir, []string{".git", "__pycache__", "*.pyc", ".env", "*.partial"})
	if err != nil {
		t.Fatalf("Collect returned error: %v", err)
	}
	var paths []string
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	if len(paths) != 2 || paths[0] != "audio/q1.wav" || paths[1] != "dataset.json" {
		t.Fatalf("unexpected files %v", paths)
	}
	if files[0].Size != 4 {
		t.Fatalf("unexpected size %d", files[0].Size)
	}
}

func TestIgnoredMatchesRelativePaths(t *testing.T) {
	if !Ignored("exports/old/a.json", []string{"exports/old/*"}) {
		t.Fatal("expected relative path pattern to match")
	}
	if Ignored("exports/new.json", []string{"exports/old/*"}) {
		t.Fatal("unexpected match")
	}
}
