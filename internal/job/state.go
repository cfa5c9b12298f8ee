package job

import (
	"errors"
	"fmt"
)

// State is the lifecycle stage of a migration job.
type State string

const (
	StateUploaded         State = "uploaded"
	StateDetecting        State = "detecting"
	StateMapping          State = "mapping"
	StateValidating       State = "validating"
	StatePreviewReady     State = "preview_ready"
	StateImporting        State = "importing"
	StateCompleted        State = "completed"
	StateRolledBack       State = "rolled_back"
	StateValidationFailed State = "validation_failed"
	StateImportFailed     State = "import_failed"
)

// ErrIllegalTransition is returned when a state change is not permitted
// by the lifecycle. Callers should treat this as a client error, not a bug.
var ErrIllegalTransition = errors.New("illegal job state transition")

// transitions lists the legal next states for each state. Anything not
// listed here is rejected at the API boundary.
var transitions = map[State][]State{
	StateUploaded:     {StateDetecting},
	StateDetecting:    {StateMapping},
	StateMapping:      {StateValidating},
	StateValidating:   {StatePreviewReady, StateValidationFailed},
	StatePreviewReady: {StateImporting, StateValidating, StateMapping},
	StateImporting:    {StateCompleted, StateImportFailed},
	StateCompleted:    {StateRolledBack},
	// Terminal states
	StateRolledBack:       nil,
	StateValidationFailed: nil,
	StateImportFailed:     nil,
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether the job can make no further progress.
func (s State) Terminal() bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

// CanTransition reports whether moving from s to next is legal.
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transition validates a state change and returns the new state.
func (s State) Transition(next State) (State, error) {
	if !next.Valid() {
		return s, fmt.Errorf("unknown state %q: %w", next, ErrIllegalTransition)
	}
	if !s.CanTransition(next) {
		return s, fmt.Errorf("%s -> %s: %w", s, next, ErrIllegalTransition)
	}
	return next, nil
}
