package dataset

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"quill/internal/services"
)

// ErrCorruptSnapshot reports a dataset.json that exists but cannot be decoded.
var ErrCorruptSnapshot = errors.New("corrupt dataset snapshot")

// ManualPlaceholder is the content of a freshly created manual-cleanup file.
const ManualPlaceholder = ""

const lockRetryDelay = 50 * time.Millisecond

// Store holds one canonical record per sample plus the dataset header and
// persists them as dataset.json.
type Store struct {
	layout Layout

	mu            sync.RWMutex
	metadata      Metadata
	configuration Configuration
	statistics    Statistics
	samples       map[string]Sample
}

// NewStore returns an empty store bound to layout.
func NewStore(layout Layout) *Store {
	return &Store{layout: layout, samples: make(map[string]Sample)}
}

// Layout returns the artifact layout the store is bound to.
func (s *Store) Layout() Layout { return s.layout }

// Load replaces the store contents with the persisted snapshot. A missing
// snapshot leaves the store empty.
func (s *Store) Load() error {
	payload, err := os.ReadFile(s.layout.SnapshotPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.reset(Dataset{})
			return nil
		}
		return services.Wrap(services.ErrFileSystem, "store", "read snapshot", s.layout.SnapshotPath(), err)
	}
	var snapshot Dataset
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCorruptSnapshot, s.layout.SnapshotPath(), err)
	}
	s.reset(snapshot)
	return nil
}

func (s *Store) reset(snapshot Dataset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata = snapshot.Metadata
	s.configuration = snapshot.Configuration
	s.statistics = snapshot.Statistics
	s.samples = make(map[string]Sample, len(snapshot.Samples))
	for _, sample := range snapshot.Samples {
		if strings.TrimSpace(sample.ID) == "" {
			continue
		}
		s.samples[sample.ID] = sample
	}
}

// Persist writes the snapshot atomically.
func (s *Store) Persist() error {
	payload, err := s.Encode()
	if err != nil {
		return err
	}
	return WriteAtomic(s.layout.SnapshotPath(), payload, 0o644)
}

// Encode renders the snapshot exactly as Persist writes it.
func (s *Store) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.Snapshot()); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// Snapshot returns the full dataset with samples in canonical order.
func (s *Store) Snapshot() Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Dataset{
		Metadata:      s.metadata,
		Statistics:    s.statistics,
		Configuration: s.configuration,
		Samples:       s.sortedLocked(),
	}
}

// Get returns the sample with id.
func (s *Store) Get(id string) (Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sample, ok := s.samples[id]
	if !ok {
		return Sample{}, services.Wrap(services.ErrNotFound, "store", "get", "sample "+id, nil)
	}
	return sample, nil
}

// Upsert inserts sample or merges it into the stored record. Derived fields
// are replaced; model provenance is merged so an empty incoming value keeps
// the stored one.
func (s *Store) Upsert(sample Sample) error {
	if strings.TrimSpace(sample.ID) == "" {
		return services.Wrap(services.ErrValidation, "store", "upsert", "sample id is empty", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.samples[sample.ID]; ok {
		sample.Models = MergeModels(existing.Models, sample.Models)
	}
	s.samples[sample.ID] = sample
	return nil
}

// Retain drops every sample whose id is not in ids and returns how many
// were removed.
func (s *Store) Retain(ids map[string]struct{}) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id := range s.samples {
		if _, ok := ids[id]; !ok {
			delete(s.samples, id)
			removed++
		}
	}
	return removed
}

// All returns a copy of every sample ordered by number, then id.
func (s *Store) All() []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedLocked()
}

// Len reports the number of stored samples.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.samples)
}

func (s *Store) sortedLocked() []Sample {
	out := make([]Sample, 0, len(s.samples))
	for _, sample := range s.samples {
		out = append(out, sample)
	}
	SortSamples(out)
	return out
}

// SetHeader replaces the dataset metadata and configuration.
func (s *Store) SetHeader(metadata Metadata, configuration Configuration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata = metadata
	s.configuration = configuration
}

// Metadata returns the dataset metadata.
func (s *Store) Metadata() Metadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metadata
}

// Configuration returns the recorded processing configuration.
func (s *Store) Configuration() Configuration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.configuration
}

// Statistics returns the aggregate statistics.
func (s *Store) Statistics() Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.statistics
}

// SetStatistics replaces the aggregate statistics.
func (s *Store) SetStatistics(stats Statistics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statistics = stats
}

// Lock acquires the cross-process store lock, waiting until ctx is done.
// The returned function releases it.
func (s *Store) Lock(ctx context.Context) (func(), error) {
	if err := os.MkdirAll(s.layout.Root, 0o755); err != nil {
		return nil, services.Wrap(services.ErrFileSystem, "store", "create root", s.layout.Root, err)
	}
	lock := flock.New(s.layout.LockPath())
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, services.Wrap(services.ErrFileSystem, "store", "lock", s.layout.LockPath(), err)
	}
	if !locked {
		return nil, services.Wrap(services.ErrFileSystem, "store", "lock", "dataset is locked by another process", nil)
	}
	return func() { _ = lock.Unlock() }, nil
}

// MergeModels overlays incoming provenance onto stored values.
func MergeModels(stored, incoming Models) Models {
	merged := stored
	if v := Deref(incoming.TranscriptionModelID); strings.TrimSpace(v) != "" {
		merged.TranscriptionModelID = Ptr(v)
	}
	if v := Deref(incoming.CleanupModelID); strings.TrimSpace(v) != "" {
		merged.CleanupModelID = Ptr(v)
	}
	return merged
}

// SortSamples orders samples by number, breaking ties by id.
func SortSamples(samples []Sample) {
	sort.SliceStable(samples, func(i, j int) bool {
		if samples[i].SampleNumber != samples[j].SampleNumber {
			return samples[i].SampleNumber < samples[j].SampleNumber
		}
		return samples[i].ID < samples[j].ID
	})
}

// DeriveStatus recomputes the status flags from the files and content the
// sample already carries.
func (s *Sample) DeriveStatus() {
	s.Status = Status{
		Recorded:        s.Files.Audio != nil,
		Transcribed:     s.Files.RawTranscript != nil && s.Content.RawTranscript != "",
		AutoCleaned:     s.Files.AutoCleanup != nil && s.Content.AutoCleanup != "",
		ManuallyCleaned: s.Files.ManualCleanup != nil && IsManualCleanupDone(s.Content.ManualCleanup),
	}
	s.Status.IsComplete = s.Status.Recorded && s.Status.Transcribed && s.Status.ManuallyCleaned
}

// IsManualCleanupDone reports whether manual-cleanup text holds real edits.
func IsManualCleanupDone(content string) bool {
	trimmed := strings.TrimSpace(content)
	return trimmed != "" && trimmed != strings.TrimSpace(ManualPlaceholder)
}
