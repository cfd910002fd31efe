package questions

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"quill/internal/dataset"
	"quill/internal/services"
)

// Question is one prompt the speaker answers.
type Question struct {
	ID           string `json:"id"`
	Number       int    `json:"number" validate:"gt=0"`
	Text         string `json:"question" validate:"required"`
	HasRecording bool   `json:"has_recording"`
}

// UnmarshalJSON accepts the legacy "uuid" and "recorded" keys.
func (q *Question) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID           string `json:"id"`
		UUID         string `json:"uuid"`
		Number       int    `json:"number"`
		Text         string `json:"question"`
		HasRecording *bool  `json:"has_recording"`
		Recorded     *bool  `json:"recorded"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	q.ID = strings.TrimSpace(raw.ID)
	if q.ID == "" {
		q.ID = strings.TrimSpace(raw.UUID)
	}
	q.Number = raw.Number
	q.Text = raw.Text
	switch {
	case raw.HasRecording != nil:
		q.HasRecording = *raw.HasRecording
	case raw.Recorded != nil:
		q.HasRecording = *raw.Recorded
	}
	return nil
}

// SampleID is the dataset record id for q. Questions without a stable id
// fall back to their number, which matches legacy artifact names.
func (q Question) SampleID() string {
	if id := strings.TrimSpace(q.ID); id != "" {
		return id
	}
	return strconv.Itoa(q.Number)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Registry is the ordered question list backed by questions.json.
type Registry struct {
	path string

	mu        sync.RWMutex
	questions []Question
}

// Load reads and validates the registry at path. Ids and numbers must be
// unique; question text is NFC-normalized.
func Load(path string) (*Registry, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "questions", "load", path, err)
		}
		return nil, services.Wrap(services.ErrFileSystem, "questions", "load", path, err)
	}
	var entries []Question
	if err := json.Unmarshal(payload, &entries); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "questions", "decode", path, err)
	}
	if err := normalizeAll(entries); err != nil {
		return nil, err
	}
	sortQuestions(entries)
	return &Registry{path: path, questions: entries}, nil
}

// New returns an empty registry that saves to path.
func New(path string) *Registry {
	return &Registry{path: path}
}

func normalizeAll(entries []Question) error {
	ids := make(map[string]int, len(entries))
	numbers := make(map[int]struct{}, len(entries))
	for i := range entries {
		q := &entries[i]
		q.Text = normalizeText(q.Text)
		if err := validate.Struct(q); err != nil {
			return services.Wrap(services.ErrConfiguration, "questions", "validate", fmt.Sprintf("entry %d", i+1), err)
		}
		if _, dup := numbers[q.Number]; dup {
			return services.Wrap(services.ErrConfiguration, "questions", "validate", fmt.Sprintf("duplicate number %d", q.Number), nil)
		}
		numbers[q.Number] = struct{}{}
		if q.ID == "" {
			continue
		}
		if prev, dup := ids[q.ID]; dup {
			return services.Wrap(services.ErrConfiguration, "questions", "validate", fmt.Sprintf("duplicate id %s (numbers %d and %d)", q.ID, prev, q.Number), nil)
		}
		ids[q.ID] = q.Number
	}
	return nil
}

func normalizeText(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}

func sortQuestions(entries []Question) {
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Number < entries[j].Number })
}

// Path returns the backing file.
func (r *Registry) Path() string { return r.path }

// All returns the questions ordered by number.
func (r *Registry) All() []Question {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Question, len(r.questions))
	copy(out, r.questions)
	return out
}

// Len reports the number of questions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.questions)
}

// ByNumber looks a question up by its ordinal.
func (r *Registry) ByNumber(number int) (Question, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, q := range r.questions {
		if q.Number == number {
			return q, true
		}
	}
	return Question{}, false
}

// ByID looks a question up by its stable id.
func (r *Registry) ByID(id string) (Question, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, q := range r.questions {
		if q.ID != "" && q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// Lookup resolves a reference that is either a question id or a number.
func (r *Registry) Lookup(ref string) (Question, bool) {
	ref = strings.TrimSpace(ref)
	if q, ok := r.ByID(ref); ok {
		return q, true
	}
	if number, err := strconv.Atoi(ref); err == nil {
		return r.ByNumber(number)
	}
	return Question{}, false
}

// NextUnrecorded returns the lowest-numbered question without a recording.
func (r *Registry) NextUnrecorded() (Question, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, q := range r.questions {
		if !q.HasRecording {
			return q, true
		}
	}
	return Question{}, false
}

// EnsureID allocates a stable id for the question numbered number when it
// has none, and returns the updated question. Call Save to persist.
func (r *Registry) EnsureID(number int) (Question, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.questions {
		if r.questions[i].Number != number {
			continue
		}
		if r.questions[i].ID != "" {
			return r.questions[i], false, nil
		}
		r.questions[i].ID = uuid.NewString()
		return r.questions[i], true, nil
	}
	return Question{}, false, services.Wrap(services.ErrNotFound, "questions", "ensure id", fmt.Sprintf("question %d", number), nil)
}

// MarkRecorded sets has_recording on the question with id.
func (r *Registry) MarkRecorded(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.questions {
		if r.questions[i].ID == id {
			r.questions[i].HasRecording = true
			return nil
		}
	}
	return services.Wrap(services.ErrNotFound, "questions", "mark recorded", "question "+id, nil)
}

// Add appends a question numbered after the current maximum.
func (r *Registry) Add(text string) (Question, error) {
	q := Question{ID: uuid.NewString(), Text: normalizeText(text)}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.questions {
		if existing.Number >= q.Number {
			q.Number = existing.Number
		}
	}
	q.Number++
	if err := validate.Struct(q); err != nil {
		return Question{}, services.Wrap(services.ErrValidation, "questions", "add", "invalid question", err)
	}
	r.questions = append(r.questions, q)
	return q, nil
}

// Save writes the registry back to its file atomically.
func (r *Registry) Save() error {
	r.mu.RLock()
	entries := make([]Question, len(r.questions))
	copy(entries, r.questions)
	r.mu.RUnlock()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("encode questions: %w", err)
	}
	return dataset.WriteAtomic(r.path, buf.Bytes(), 0o644)
}
