package pipeline

import (
	"errors"
	"fmt"
	"sync"
)

// ErrInvalidTransition is returned when a sample is asked to move to a state
// that does not follow its current one.
var ErrInvalidTransition = errors.New("invalid state transition")

// State is a sample's position in the ingestion lifecycle.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateRecorded
	StateTranscribing
	StateTranscribed
	StateCleaningUp
	StateAutoCleaned
	StatePlaceholderCreated
)

var stateNames = map[State]string{
	StateIdle:               "idle",
	StateRecording:          "recording",
	StateRecorded:           "recorded",
	StateTranscribing:       "transcribing",
	StateTranscribed:        "transcribed",
	StateCleaningUp:         "cleaning_up",
	StateAutoCleaned:        "auto_cleaned",
	StatePlaceholderCreated: "placeholder_created",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// rollbacks maps an in-progress state to the state a failure returns to.
var rollbacks = map[State]State{
	StateRecording:    StateIdle,
	StateTranscribing: StateRecorded,
	StateCleaningUp:   StateTranscribed,
}

// CanTransition reports whether from may move to to: one step forward along
// the chain, or back to the entry state of a failed stage.
func CanTransition(from, to State) bool {
	if to == from+1 && to <= StatePlaceholderCreated {
		return true
	}
	back, ok := rollbacks[from]
	return ok && back == to
}

// Machine guards one sample's state.
type Machine struct {
	mu       sync.Mutex
	state    State
	onChange func(from, to State)
}

// NewMachine starts a machine at initial. onChange, when set, observes every
// accepted transition.
func NewMachine(initial State, onChange func(from, to State)) *Machine {
	return &Machine{state: initial, onChange: onChange}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Transition moves the machine to to, or fails with ErrInvalidTransition.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	from := m.state
	if !CanTransition(from, to) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	m.state = to
	m.mu.Unlock()
	if m.onChange != nil {
		m.onChange(from, to)
	}
	return nil
}

// Rollback returns an in-progress state to its entry state.
func (m *Machine) Rollback() error {
	back, ok := rollbacks[m.State()]
	if !ok {
		return fmt.Errorf("%w: %s has no rollback", ErrInvalidTransition, m.State())
	}
	return m.Transition(back)
}
