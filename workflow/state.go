package workflow

import "time"

// Reserved state keys. The runner owns these: it writes them during a run
// and stage updates never overwrite them.
const (
	// KeyRunID holds the run identifier assigned at run entry.
	KeyRunID = "run_id"

	// KeySteps holds the running count of executed stages.
	KeySteps = "steps"

	// KeyErrors holds the []StageError of absorbed stage failures.
	KeyErrors = "errors"

	// KeyCancelled marks a state returned from a cancelled run.
	KeyCancelled = "cancelled"
)

// State is the shared record one run threads through its stages. Stages
// receive a copy and return an update; the runner overlays the update onto
// the running state. A State belongs to exactly one run and is never
// touched by two stage executions at once.
type State map[string]any

// StageError is one absorbed stage failure, kept on the state under
// KeyErrors.
type StageError struct {
	// Stage is the stage key that failed.
	Stage string

	// Message is the terminal error text.
	Message string

	// Time is when the failure was recorded.
	Time time.Time
}

// Clone returns a copy of the state. Values are copied by reference except
// the error list, which is copied so appends on one copy never show up in
// the other.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	if errs, ok := out[KeyErrors].([]StageError); ok {
		out[KeyErrors] = append([]StageError(nil), errs...)
	}
	return out
}

// RunID returns the run identifier, or "" outside a run.
func (s State) RunID() string {
	v, _ := s[KeyRunID].(string)
	return v
}

// Steps returns how many stages have executed so far.
func (s State) Steps() int {
	v, _ := s[KeySteps].(int)
	return v
}

// Errors returns the absorbed stage failures in the order they happened.
func (s State) Errors() []StageError {
	v, _ := s[KeyErrors].([]StageError)
	return v
}

// Cancelled reports whether the run that produced this state was cancelled
// before it finished.
func (s State) Cancelled() bool {
	v, _ := s[KeyCancelled].(bool)
	return v
}

// merge overlays update onto s. Reserved keys in the update are dropped;
// a stage cannot rewrite the run's bookkeeping.
func (s State) merge(update State) {
	for k, v := range update {
		switch k {
		case KeyRunID, KeySteps, KeyErrors, KeyCancelled:
			continue
		}
		s[k] = v
	}
}

// appendError records an absorbed stage failure on the state.
func (s State) appendError(stage string, err error) {
	errs, _ := s[KeyErrors].([]StageError)
	s[KeyErrors] = append(errs, StageError{
		Stage:   stage,
		Message: err.Error(),
		Time:    time.Now(),
	})
}
