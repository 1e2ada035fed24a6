package pipeline

import "fmt"

// ArtifactState is the runtime state of one artifact within a run.
type ArtifactState string

const (
	StatePending   ArtifactState = "PENDING"
	StateRunning   ArtifactState = "RUNNING"
	StateCompleted ArtifactState = "COMPLETED"
	StateFailed    ArtifactState = "FAILED"
	StateSkipped   ArtifactState = "SKIPPED"
	StateCached    ArtifactState = "CACHED"
)

// ExecutionState holds per-artifact state keyed by artifact path.
type ExecutionState map[string]ArtifactState

// IsTerminal reports whether s is final.
func IsTerminal(s ArtifactState) bool {
	switch s {
	case StateCompleted, StateFailed, StateSkipped, StateCached:
		return true
	default:
		return false
	}
}

// IsSuccessful reports whether s left a valid output behind.
func IsSuccessful(s ArtifactState) bool {
	return s == StateCompleted || s == StateCached
}

// Transition moves key from one state to another.
//
// The caller supplies the expected prior state so that races show up as
// errors. state is mutated only if the transition is allowed.
func Transition(state ExecutionState, key string, from, to ArtifactState) error {
	cur, ok := state[key]
	if !ok {
		return fmt.Errorf("unknown artifact in state: %q", key)
	}
	if cur != from {
		return fmt.Errorf("invalid transition for %q: expected %s, got %s", key, from, cur)
	}
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("disallowed transition for %q: %s -> %s", key, from, to)
	}
	state[key] = to
	return nil
}

func isAllowedTransition(from, to ArtifactState) bool {
	switch from {
	case StatePending:
		return to == StateRunning || to == StateCached || to == StateSkipped
	case StateRunning:
		return to == StateCompleted || to == StateFailed
	default:
		return false
	}
}
