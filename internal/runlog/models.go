package runlog

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// RunStatus is the outcome of a run.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusSucceeded RunStatus = "succeeded"
	StatusFailed    RunStatus = "failed"
	StatusCanceled  RunStatus = "canceled"
)

// CacheMode records whether the run consulted the artifact cache.
type CacheMode string

const (
	CacheModeFile     CacheMode = "file"
	CacheModeDisabled CacheMode = "disabled"
)

// Run is the persisted record of one transform invocation over a set of
// artifacts.
type Run struct {
	RunID      string     `json:"run_id"`
	InputsHash string     `json:"inputs_hash"`
	StartTime  time.Time  `json:"start_time"`
	EndTime    *time.Time `json:"end_time"`
	CacheMode  CacheMode  `json:"cache_mode"`
	Status     RunStatus  `json:"status"`

	Artifacts   int `json:"artifacts"`
	Transformed int `json:"transformed"`
	Cached      int `json:"cached"`
	Failed      int `json:"failed"`
	Skipped     int `json:"skipped"`

	// TraceHash is set when the run finished and a trace was built.
	TraceHash string `json:"trace_hash,omitempty"`
}

// Validate reports every problem with r at once.
func (r Run) Validate() error {
	var errs []error
	if strings.TrimSpace(r.RunID) == "" {
		errs = append(errs, errors.New("run_id is required"))
	}
	if strings.TrimSpace(r.InputsHash) == "" {
		errs = append(errs, errors.New("inputs_hash is required"))
	}
	if r.StartTime.IsZero() {
		errs = append(errs, errors.New("start_time is required"))
	}
	if r.EndTime != nil && r.EndTime.Before(r.StartTime) {
		errs = append(errs, errors.New("end_time must not precede start_time"))
	}
	switch r.CacheMode {
	case CacheModeFile, CacheModeDisabled:
	default:
		errs = append(errs, fmt.Errorf("invalid cache_mode %q", r.CacheMode))
	}
	switch r.Status {
	case StatusRunning, StatusSucceeded, StatusFailed, StatusCanceled:
	default:
		errs = append(errs, fmt.Errorf("invalid status %q", r.Status))
	}
	for name, n := range map[string]int{
		"artifacts":   r.Artifacts,
		"transformed": r.Transformed,
		"cached":      r.Cached,
		"failed":      r.Failed,
		"skipped":     r.Skipped,
	} {
		if n < 0 {
			errs = append(errs, fmt.Errorf("%s must be >= 0", name))
		}
	}
	if sum := r.Transformed + r.Cached + r.Failed + r.Skipped; sum > r.Artifacts {
		errs = append(errs, fmt.Errorf("outcome counts (%d) exceed artifacts (%d)", sum, r.Artifacts))
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

// Failure is one artifact that did not produce an output.
type Failure struct {
	Artifact     string `json:"artifact"`
	Hash         string `json:"hash,omitempty"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// Validate reports every problem with f at once.
func (f Failure) Validate() error {
	var errs []error
	if strings.TrimSpace(f.Artifact) == "" {
		errs = append(errs, errors.New("artifact is required"))
	}
	if strings.TrimSpace(f.ErrorCode) == "" {
		errs = append(errs, errors.New("error_code is required"))
	}
	if strings.TrimSpace(f.ErrorMessage) == "" {
		errs = append(errs, errors.New("error_message is required"))
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
