// Package trace records what a transform run decided for each artifact.
//
// A RunTrace holds logical facts only: which artifacts were transformed,
// replayed, failed or skipped, and under which artifact hash. It never holds
// timestamps, durations or error strings, so two runs over the same inputs
// produce byte-identical canonical JSON regardless of scheduling.
package trace

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// RunTrace is the canonical record of one run.
//
// InputsHash identifies the resolved input set. Events are put in their
// canonical order by Canonicalize; consumers should treat the trace as
// immutable afterwards.
type RunTrace struct {
	InputsHash string
	Events     []Event
}

// EventKind discriminates Event. The string values are part of the canonical
// bytes; do not rename.
type EventKind string

const (
	EventArtifactTransformed EventKind = "ArtifactTransformed"
	EventArtifactCached      EventKind = "ArtifactCached"
	EventArtifactFailed      EventKind = "ArtifactFailed"
	EventArtifactSkipped     EventKind = "ArtifactSkipped"
)

// Event is a single per-artifact decision.
type Event struct {
	Kind EventKind

	// Artifact is the base name of the input archive. Required.
	Artifact string

	// Hash is the artifact hash, when it could be computed.
	Hash string

	// Output is the registered output name.
	Output string

	// Reason is a stable reason code, e.g. an error code for failures or
	// "FailFast" for skips.
	Reason string
}

// Validate checks basic invariants.
func (t *RunTrace) Validate() error {
	if t == nil {
		return errors.New("trace is nil")
	}
	if t.InputsHash == "" {
		return errors.New("inputsHash is required")
	}
	for i, e := range t.Events {
		if kindOrder(e.Kind) == unknownKind {
			return fmt.Errorf("events[%d].kind %q is unknown", i, e.Kind)
		}
		if e.Artifact == "" {
			return fmt.Errorf("events[%d].artifact is required", i)
		}
	}
	return nil
}

// Canonicalize sorts events by (artifact, kind, hash, output, reason).
// The order does not depend on when events were recorded.
func (t *RunTrace) Canonicalize() {
	if t == nil {
		return
	}
	sort.SliceStable(t.Events, func(i, j int) bool {
		a, b := t.Events[i], t.Events[j]
		if a.Artifact != b.Artifact {
			return a.Artifact < b.Artifact
		}
		if kindOrder(a.Kind) != kindOrder(b.Kind) {
			return kindOrder(a.Kind) < kindOrder(b.Kind)
		}
		if a.Hash != b.Hash {
			return a.Hash < b.Hash
		}
		if a.Output != b.Output {
			return a.Output < b.Output
		}
		return a.Reason < b.Reason
	})
}

const unknownKind = 1000

func kindOrder(k EventKind) int {
	switch k {
	case EventArtifactCached:
		return 10
	case EventArtifactTransformed:
		return 20
	case EventArtifactFailed:
		return 30
	case EventArtifactSkipped:
		return 40
	default:
		return unknownKind
	}
}

// CanonicalJSON returns the canonical encoding of a sorted copy of the trace.
func (t RunTrace) CanonicalJSON() ([]byte, error) {
	cp := RunTrace{InputsHash: t.InputsHash, Events: make([]Event, len(t.Events))}
	copy(cp.Events, t.Events)
	cp.Canonicalize()
	if err := cp.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(&cp)
}

// Hash returns the sha256 hex of the canonical JSON.
func (t RunTrace) Hash() (string, error) {
	b, err := t.CanonicalJSON()
	if err != nil {
		return "", err
	}
	return ComputeTraceHash(b), nil
}

// MarshalJSON writes fields in a fixed order.
func (t RunTrace) MarshalJSON() ([]byte, error) {
	if t.InputsHash == "" {
		return nil, errors.New("inputsHash is required")
	}
	var buf bytes.Buffer
	buf.WriteString(`{"inputsHash":`)
	writeString(&buf, t.InputsHash)
	buf.WriteString(`,"events":[`)
	for i := range t.Events {
		if i > 0 {
			buf.WriteByte(',')
		}
		eb, err := json.Marshal(t.Events[i])
		if err != nil {
			return nil, err
		}
		buf.Write(eb)
	}
	buf.WriteString("]}")
	return buf.Bytes(), nil
}

// MarshalJSON writes kind first and omits empty optional fields.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.Kind == "" {
		return nil, errors.New("kind is required")
	}
	var buf bytes.Buffer
	buf.WriteString(`{"kind":`)
	writeString(&buf, string(e.Kind))
	buf.WriteString(`,"artifact":`)
	writeString(&buf, e.Artifact)
	for _, f := range []struct{ key, val string }{
		{"hash", e.Hash},
		{"output", e.Output},
		{"reason", e.Reason},
	} {
		if f.val == "" {
			continue
		}
		buf.WriteString(`,"` + f.key + `":`)
		writeString(&buf, f.val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeString(buf *bytes.Buffer, s string) {
	b, _ := json.Marshal(s)
	buf.Write(b)
}
