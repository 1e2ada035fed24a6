package trace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Sink receives events from the pipeline.
//
// Record must not panic and must not block for long. Callers treat it as
// possibly a no-op.
type Sink interface {
	Record(event Event)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Record(Event) {}

// SafeRecord records event on s, swallowing panics from a faulty sink.
func SafeRecord(s Sink, event Event) {
	if s == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	s.Record(event)
}

// Recorder is a concurrency-safe in-memory collector.
//
// Ordering is computed after collection, so lock contention never changes
// the canonical trace.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Record(event Event) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

// Snapshot returns a copy of all recorded events in insertion order.
func (r *Recorder) Snapshot() []Event {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Trace builds a canonical RunTrace from the recorded events.
func (r *Recorder) Trace(inputsHash string) RunTrace {
	tr := RunTrace{InputsHash: inputsHash, Events: r.Snapshot()}
	tr.Canonicalize()
	return tr
}

// WriteFile writes the canonical JSON of t to path, replacing any existing
// file atomically.
func WriteFile(path string, t RunTrace) error {
	data, err := t.CanonicalJSON()
	if err != nil {
		return fmt.Errorf("encoding trace: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating trace directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating trace file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing trace file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing trace file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("committing trace file: %w", err)
	}
	return nil
}

// ReadFile loads a trace written by WriteFile.
func ReadFile(path string) (RunTrace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RunTrace{}, err
	}
	var raw struct {
		InputsHash string `json:"inputsHash"`
		Events     []struct {
			Kind     EventKind `json:"kind"`
			Artifact string    `json:"artifact"`
			Hash     string    `json:"hash"`
			Output   string    `json:"output"`
			Reason   string    `json:"reason"`
		} `json:"events"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return RunTrace{}, fmt.Errorf("parsing trace %s: %w", path, err)
	}
	tr := RunTrace{InputsHash: raw.InputsHash}
	for _, e := range raw.Events {
		tr.Events = append(tr.Events, Event{Kind: e.Kind, Artifact: e.Artifact, Hash: e.Hash, Output: e.Output, Reason: e.Reason})
	}
	return tr, tr.Validate()
}
