package runlog

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"jarscan/internal/transform"
)

// CodeInternal is recorded for failures that are not transform errors.
const CodeInternal = "INTERNAL"

// Recorder writes run.json at the start and end of a run, and
// failures.json at the end.
type Recorder struct {
	Store *Store

	// Now defaults to time.Now.
	Now func() time.Time
}

// NewRunID returns a random UUID. Run IDs are operational identifiers and
// take no part in caching.
func NewRunID() string {
	return uuid.NewString()
}

func (r *Recorder) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

// StartRun persists run with status running.
func (r *Recorder) StartRun(run Run) (Run, error) {
	if r == nil || r.Store == nil {
		return Run{}, errors.New("Store is required")
	}
	if run.RunID == "" {
		run.RunID = NewRunID()
	}
	if run.StartTime.IsZero() {
		run.StartTime = r.now()
	}
	run.Status = StatusRunning
	run.EndTime = nil
	if err := r.Store.SaveRun(run); err != nil {
		return Run{}, err
	}
	return run, nil
}

// FinishRun stamps the end time, persists run and its failures.
func (r *Recorder) FinishRun(run Run, failures []Failure) (Run, error) {
	if r == nil || r.Store == nil {
		return Run{}, errors.New("Store is required")
	}
	end := r.now()
	if end.Before(run.StartTime) {
		end = run.StartTime
	}
	run.EndTime = &end
	if err := r.Store.SaveFailures(run.RunID, failures); err != nil {
		return Run{}, err
	}
	if err := r.Store.SaveRun(run); err != nil {
		return Run{}, err
	}
	return run, nil
}

// FailureFromError classifies err for artifact. Transform errors keep their
// code; anything else is INTERNAL.
func FailureFromError(artifact, hash string, err error) (Failure, error) {
	if err == nil {
		return Failure{}, errors.New("nil error")
	}
	code := string(transform.CodeOf(err))
	if code == "" {
		code = CodeInternal
	}
	f := Failure{
		Artifact:     artifact,
		Hash:         hash,
		ErrorCode:    code,
		ErrorMessage: err.Error(),
	}
	if verr := f.Validate(); verr != nil {
		return Failure{}, fmt.Errorf("invalid failure: %w", verr)
	}
	return f, nil
}
