package dataset

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"quill/internal/services"
)

// Artifact directory and file names under the dataset root.
const (
	AudioDir      = "audio"
	RawDir        = "whisper-transcripts"
	AutoDir       = "auto-cleanup"
	ManualDir     = "manual-cleanups"
	QuestionsFile = "questions.json"
	SnapshotFile  = "dataset.json"
	LockFile      = ".dataset.lock"
)

// AudioExtensions lists accepted audio extensions in resolution order.
var AudioExtensions = []string{".wav", ".mp3", ".flac", ".m4a", ".ogg"}

// Slot identifies one of the four per-sample artifacts.
type Slot int

const (
	SlotAudio Slot = iota
	SlotRaw
	SlotAuto
	SlotManual
)

func (s Slot) String() string {
	switch s {
	case SlotAudio:
		return "audio"
	case SlotRaw:
		return "raw_transcript"
	case SlotAuto:
		return "auto_cleanup"
	case SlotManual:
		return "manual_cleanup"
	default:
		return "unknown"
	}
}

// Layout maps a dataset root onto artifact locations.
type Layout struct {
	Root string
}

// NewLayout returns a Layout rooted at root.
func NewLayout(root string) Layout {
	return Layout{Root: filepath.Clean(root)}
}

// Dir returns the directory holding the slot's artifacts.
func (l Layout) Dir(slot Slot) string {
	switch slot {
	case SlotAudio:
		return filepath.Join(l.Root, AudioDir)
	case SlotRaw:
		return filepath.Join(l.Root, RawDir)
	case SlotAuto:
		return filepath.Join(l.Root, AutoDir)
	default:
		return filepath.Join(l.Root, ManualDir)
	}
}

// QuestionsPath returns the question registry location.
func (l Layout) QuestionsPath() string { return filepath.Join(l.Root, QuestionsFile) }

// SnapshotPath returns the dataset.json location.
func (l Layout) SnapshotPath() string { return filepath.Join(l.Root, SnapshotFile) }

// LockPath returns the store lock file location.
func (l Layout) LockPath() string { return filepath.Join(l.Root, LockFile) }

// ExportPath returns the default training export location for format.
func (l Layout) ExportPath(format string) string {
	return filepath.Join(l.Root, "dataset_training."+format)
}

// CanonicalPath is where new artifacts for id are written. Audio is always
// recorded as WAV.
func (l Layout) CanonicalPath(slot Slot, id string) string {
	if slot == SlotAudio {
		return filepath.Join(l.Dir(slot), id+".wav")
	}
	return filepath.Join(l.Dir(slot), id+".txt")
}

// Candidates lists the paths probed for an artifact, most preferred first:
// the id name before the legacy number name, and audio by extension order.
func (l Layout) Candidates(slot Slot, id string, number int) []string {
	keys := make([]string, 0, 2)
	if id = strings.TrimSpace(id); id != "" {
		keys = append(keys, id)
	}
	if number > 0 {
		keys = append(keys, strconv.Itoa(number))
	}
	exts := []string{".txt"}
	if slot == SlotAudio {
		exts = AudioExtensions
	}
	dir := l.Dir(slot)
	out := make([]string, 0, len(keys)*len(exts))
	for _, key := range keys {
		for _, ext := range exts {
			out = append(out, filepath.Join(dir, key+ext))
		}
	}
	return out
}

// Resolve returns the first existing regular file among the candidates.
func (l Layout) Resolve(slot Slot, id string, number int) (string, bool) {
	for _, candidate := range l.Candidates(slot, id, number) {
		info, err := os.Stat(candidate)
		if err == nil && info.Mode().IsRegular() {
			return candidate, true
		}
	}
	return "", false
}

// Rel converts an absolute artifact path into the forward-slash form stored
// in dataset.json.
func (l Layout) Rel(path string) string {
	rel, err := filepath.Rel(l.Root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// EnsureDirs creates the artifact directories.
func (l Layout) EnsureDirs() error {
	for _, slot := range []Slot{SlotAudio, SlotRaw, SlotAuto, SlotManual} {
		dir := l.Dir(slot)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return services.Wrap(services.ErrFileSystem, "layout", "create directory", dir, err)
		}
	}
	return nil
}

// WriteAtomic writes data to a temporary file beside path and renames it
// into place, so readers never observe a partial artifact.
func WriteAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return services.Wrap(services.ErrFileSystem, "write", "create directory", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return services.Wrap(services.ErrFileSystem, "write", "create temp file", path, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return services.Wrap(services.ErrFileSystem, "write", "write temp file", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return services.Wrap(services.ErrFileSystem, "write", "sync temp file", path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return services.Wrap(services.ErrFileSystem, "write", "close temp file", path, err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		cleanup()
		return services.Wrap(services.ErrFileSystem, "write", "chmod temp file", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return services.Wrap(services.ErrFileSystem, "write", "rename", path, err)
	}
	return nil
}
