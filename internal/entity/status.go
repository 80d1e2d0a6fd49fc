package entity

import "fmt"

// SQLGenerationStatus tracks verification of a generated SQL statement.
// A generation starts as NONE and moves to exactly one terminal state.
type SQLGenerationStatus string

const (
	// SQLGenerationNone marks a generation that has not been verified yet.
	SQLGenerationNone SQLGenerationStatus = "NONE"
	// SQLGenerationValid marks a generation whose SQL executed successfully.
	SQLGenerationValid SQLGenerationStatus = "VALID"
	// SQLGenerationInvalid marks a generation whose SQL failed execution.
	SQLGenerationInvalid SQLGenerationStatus = "INVALID"
)

// Known reports whether s is one of the defined statuses.
func (s SQLGenerationStatus) Known() bool {
	switch s {
	case SQLGenerationNone, SQLGenerationValid, SQLGenerationInvalid:
		return true
	}
	return false
}

// Terminal reports whether s admits no further transitions.
func (s SQLGenerationStatus) Terminal() bool {
	return s == SQLGenerationValid || s == SQLGenerationInvalid
}

// CanTransition reports whether a generation in status s may move to
// status to. The only legal moves are NONE to VALID and NONE to INVALID.
func (s SQLGenerationStatus) CanTransition(to SQLGenerationStatus) bool {
	return s == SQLGenerationNone && to.Terminal()
}

// Transition validates the move from s to to and returns the new status.
func (s SQLGenerationStatus) Transition(to SQLGenerationStatus) (SQLGenerationStatus, error) {
	if !s.CanTransition(to) {
		return s, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, to)
	}
	return to, nil
}

// FineTuningStatus tracks the lifecycle of a model fine-tuning job.
// The wire values are lowercase and stored verbatim.
type FineTuningStatus string

const (
	FineTuningQueued          FineTuningStatus = "queued"
	FineTuningValidatingFiles FineTuningStatus = "validating_files"
	FineTuningRunning         FineTuningStatus = "running"
	FineTuningSucceeded       FineTuningStatus = "succeeded"
	FineTuningFailed          FineTuningStatus = "failed"
	FineTuningCancelled       FineTuningStatus = "cancelled"
)

// Known reports whether s is one of the defined statuses.
func (s FineTuningStatus) Known() bool {
	switch s {
	case FineTuningQueued, FineTuningValidatingFiles, FineTuningRunning,
		FineTuningSucceeded, FineTuningFailed, FineTuningCancelled:
		return true
	}
	return false
}

// Terminal reports whether s admits no further transitions.
func (s FineTuningStatus) Terminal() bool {
	switch s {
	case FineTuningSucceeded, FineTuningFailed, FineTuningCancelled:
		return true
	}
	return false
}

// rank orders the forward progression of a job. Terminal outcomes share
// the final rank so a job resolves to exactly one of them.
func (s FineTuningStatus) rank() int {
	switch s {
	case FineTuningQueued:
		return 0
	case FineTuningValidatingFiles:
		return 1
	case FineTuningRunning:
		return 2
	case FineTuningSucceeded, FineTuningFailed:
		return 3
	}
	return -1
}

// CanTransition reports whether a job in status s may move to status to.
// Jobs advance one step at a time through queued, validating_files and
// running before resolving to succeeded or failed. Cancellation is legal
// from any non-terminal status. Terminal statuses never change.
func (s FineTuningStatus) CanTransition(to FineTuningStatus) bool {
	if s.Terminal() || !s.Known() || !to.Known() {
		return false
	}
	if to == FineTuningCancelled {
		return true
	}
	return to.rank() == s.rank()+1
}

// Transition validates the move from s to to and returns the new status.
func (s FineTuningStatus) Transition(to FineTuningStatus) (FineTuningStatus, error) {
	if !s.CanTransition(to) {
		return s, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, to)
	}
	return to, nil
}
