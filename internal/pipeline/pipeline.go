// Package pipeline is the transform host: it runs the jar transform over a
// set of artifacts with bounded parallelism, consulting the artifact cache
// and registering every output in a shared Registry.
//
// Each artifact moves through the state machine
//
//	PENDING -> RUNNING -> COMPLETED | FAILED
//	PENDING -> CACHED
//	PENDING -> SKIPPED
//
// and produces one log line, one trace event, one metrics observation and
// one OpenTelemetry span.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"jarscan/internal/core"
	"jarscan/internal/metrics"
	"jarscan/internal/trace"
	"jarscan/internal/transform"
)

// TracerName is the instrumentation name used when no tracer is supplied.
const TracerName = "jarscan/pipeline"

// Skip reasons recorded in the trace.
const (
	ReasonFailFast = "FailFast"
	ReasonCanceled = "Canceled"
)

// CodeInternal is the trace reason for failures that are not transform errors.
const CodeInternal = "INTERNAL"

// Options tunes a Pipeline. Zero values of the optional collaborators are
// replaced by no-op implementations.
type Options struct {
	// Concurrency bounds the number of artifacts processed at once.
	Concurrency int

	// FailFast stops dispatching after the first failed artifact.
	FailFast bool

	Logger  logrus.FieldLogger
	Metrics *metrics.Metrics
	Events  trace.Sink
	Tracer  oteltrace.Tracer
}

// Pipeline runs transforms for a set of artifacts.
type Pipeline struct {
	Runner   *core.Runner
	Registry *Registry

	opts Options
}

// New validates its arguments and fills in defaults.
func New(runner *core.Runner, registry *Registry, opts Options) (*Pipeline, error) {
	if runner == nil || runner.Transform == nil {
		return nil, errors.New("pipeline: runner with a transform is required")
	}
	if registry == nil {
		return nil, errors.New("pipeline: registry is required")
	}
	if opts.Concurrency <= 0 {
		return nil, fmt.Errorf("pipeline: concurrency must be > 0, got %d", opts.Concurrency)
	}
	if opts.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		opts.Logger = l
	}
	if opts.Events == nil {
		opts.Events = trace.NopSink{}
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(TracerName)
	}
	return &Pipeline{Runner: runner, Registry: registry, opts: opts}, nil
}

// Result is the outcome of a run. All maps are keyed by artifact path.
type Result struct {
	InputsHash string

	// Artifacts in dispatch order (sorted by path).
	Artifacts []core.Artifact

	FinalState ExecutionState
	Hashes     map[string]core.ArtifactHash
	Outputs    map[string]string
	Errors     map[string]error
}

// Count returns how many artifacts ended in s.
func (r *Result) Count(s ArtifactState) int {
	n := 0
	for _, st := range r.FinalState {
		if st == s {
			n++
		}
	}
	return n
}

// Failed reports whether any artifact failed.
func (r *Result) Failed() bool {
	return r.Count(StateFailed) > 0
}

// run holds the mutable state of one Run call. Everything is guarded by mu.
type run struct {
	mu  sync.Mutex
	res *Result
}

func (r *run) transition(key string, from, to ArtifactState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Transition(r.res.FinalState, key, from, to)
}

func (r *run) record(key string, hash core.ArtifactHash, output string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hash != "" {
		r.res.Hashes[key] = hash
	}
	if output != "" {
		r.res.Outputs[key] = output
	}
	if err != nil {
		r.res.Errors[key] = err
	}
}

// Run processes artifacts and returns once every artifact reached a terminal
// state. A failing artifact does not stop the others unless FailFast is set.
//
// If ctx is canceled, artifacts not yet started are SKIPPED and the returned
// error wraps ctx.Err(); the Result is still returned.
func (p *Pipeline) Run(ctx context.Context, artifacts []core.Artifact) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	sorted := make([]core.Artifact, len(artifacts))
	copy(sorted, artifacts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	names := make([]string, len(sorted))
	res := &Result{
		Artifacts:  sorted,
		FinalState: make(ExecutionState, len(sorted)),
		Hashes:     make(map[string]core.ArtifactHash),
		Outputs:    make(map[string]string),
		Errors:     make(map[string]error),
	}
	for i, art := range sorted {
		if _, dup := res.FinalState[art.Path]; dup {
			return nil, fmt.Errorf("pipeline: artifact %s listed twice", art.Path)
		}
		res.FinalState[art.Path] = StatePending
		names[i] = art.Name()
	}
	res.InputsHash = trace.InputsHash(names)

	ctx, span := p.opts.Tracer.Start(ctx, "jarscan.run", oteltrace.WithAttributes(
		attribute.Int("jarscan.artifacts", len(sorted)),
		attribute.Int("jarscan.concurrency", p.opts.Concurrency),
	))
	defer span.End()

	// Claim output names in path order so a contested name always goes to
	// the same artifact.
	for _, art := range sorted {
		if err := p.Registry.Claim(art.Path, p.Runner.Transform.OutputNameFor(art.Path)); err != nil {
			p.opts.Logger.WithField("artifact", art.Name()).WithError(err).Debug("output name contested")
		}
	}

	r := &run{res: res}
	var stopped atomic.Bool

	// Artifact failures are recorded in the Result; only invariant
	// violations reach the group.
	var g errgroup.Group
	g.SetLimit(p.opts.Concurrency)

	skipReason := func() string {
		if ctx.Err() != nil {
			return ReasonCanceled
		}
		if stopped.Load() {
			return ReasonFailFast
		}
		return ""
	}

	for _, art := range sorted {
		if reason := skipReason(); reason != "" {
			if err := p.skip(r, art, reason); err != nil {
				return nil, abort(err, &g)
			}
			continue
		}
		g.Go(func() error {
			if reason := skipReason(); reason != "" {
				return p.skip(r, art, reason)
			}
			ok, err := p.process(ctx, r, art)
			if err != nil {
				return err
			}
			if !ok && p.opts.FailFast {
				stopped.Store(true)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invariant violation")
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("jarscan.completed", res.Count(StateCompleted)),
		attribute.Int("jarscan.cached", res.Count(StateCached)),
		attribute.Int("jarscan.failed", res.Count(StateFailed)),
		attribute.Int("jarscan.skipped", res.Count(StateSkipped)),
	)
	if res.Failed() {
		span.SetStatus(codes.Error, "artifacts failed")
	}

	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("run canceled: %w", err)
	}
	return res, nil
}

// abort waits for the workers already started and reports their errors
// together with err.
func abort(err error, g *errgroup.Group) error {
	return errors.Join(err, g.Wait())
}

func (p *Pipeline) skip(r *run, art core.Artifact, reason string) error {
	if err := r.transition(art.Path, StatePending, StateSkipped); err != nil {
		return err
	}
	trace.SafeRecord(p.opts.Events, trace.Event{Kind: trace.EventArtifactSkipped, Artifact: art.Name(), Reason: reason})
	p.opts.Metrics.ObserveTransform(metrics.StatusSkipped, 0)
	p.opts.Logger.WithFields(logrus.Fields{"artifact": art.Name(), "reason": reason}).Info("artifact skipped")
	return nil
}

// process drives one artifact to a terminal state. ok is false when the
// artifact failed; err is reserved for state machine violations.
func (p *Pipeline) process(ctx context.Context, r *run, art core.Artifact) (ok bool, err error) {
	start := time.Now()
	done := p.opts.Metrics.Started()
	defer done()

	ctx, span := p.opts.Tracer.Start(ctx, "jarscan.transform", oteltrace.WithAttributes(
		attribute.String("jarscan.artifact", art.Name()),
	))
	defer span.End()

	log := p.opts.Logger.WithField("artifact", art.Name())
	outputs := p.Registry.For(art.Path)

	hash, err := p.Runner.Hash(art)
	if err != nil {
		return false, p.fail(r, span, log, art, "", outputs, StatePending, err, start)
	}
	span.SetAttributes(attribute.String("jarscan.hash", hash.String()))
	log = log.WithField("hash", hash.Short())

	entry, err := p.Runner.Probe(hash)
	if err != nil {
		log.WithError(err).Warn("cache lookup failed, treating as miss")
		entry = nil
	}
	p.opts.Metrics.CacheLookup(entry != nil)

	if entry != nil {
		rr, rerr := p.Runner.Replay(entry, outputs)
		if rerr == nil {
			outputs.Commit()
			if err := r.transition(art.Path, StatePending, StateCached); err != nil {
				return false, err
			}
			r.record(art.Path, hash, rr.OutputPath, nil)
			trace.SafeRecord(p.opts.Events, trace.Event{
				Kind: trace.EventArtifactCached, Artifact: art.Name(), Hash: hash.String(), Output: entry.OutputName,
			})
			p.opts.Metrics.ObserveTransform(metrics.StatusCached, time.Since(start))
			span.SetAttributes(attribute.String("jarscan.state", string(StateCached)))
			log.WithField("output", rr.OutputPath).Info("replayed from cache")
			return true, nil
		}
		log.WithError(rerr).Warn("cache replay failed, transforming")
	}

	if err := r.transition(art.Path, StatePending, StateRunning); err != nil {
		return false, err
	}
	rr, err := p.Runner.Execute(ctx, art, hash, outputs)
	if err != nil {
		return false, p.fail(r, span, log, art, hash, outputs, StateRunning, err, start)
	}

	outputs.Commit()
	if err := r.transition(art.Path, StateRunning, StateCompleted); err != nil {
		return false, err
	}
	r.record(art.Path, hash, rr.OutputPath, nil)
	trace.SafeRecord(p.opts.Events, trace.Event{
		Kind: trace.EventArtifactTransformed, Artifact: art.Name(), Hash: hash.String(), Output: lastName(outputs),
	})
	p.opts.Metrics.ObserveTransform(metrics.StatusCompleted, time.Since(start))
	span.SetAttributes(attribute.String("jarscan.state", string(StateCompleted)))
	log.WithField("output", rr.OutputPath).Info("transformed")
	return true, nil
}

// fail moves art to FAILED, removing whatever it wrote. It returns only
// state machine errors.
func (p *Pipeline) fail(r *run, span oteltrace.Span, log logrus.FieldLogger, art core.Artifact, hash core.ArtifactHash,
	outputs *ArtifactOutputs, from ArtifactState, cause error, start time.Time) error {
	if derr := outputs.Discard(); derr != nil {
		log.WithError(derr).Warn("removing partial output failed")
	}
	if from == StatePending {
		if err := r.transition(art.Path, StatePending, StateRunning); err != nil {
			return err
		}
	}
	if err := r.transition(art.Path, StateRunning, StateFailed); err != nil {
		return err
	}
	r.record(art.Path, hash, "", cause)

	reason := ReasonOf(cause)
	trace.SafeRecord(p.opts.Events, trace.Event{
		Kind: trace.EventArtifactFailed, Artifact: art.Name(), Hash: string(hash), Reason: reason,
	})
	p.opts.Metrics.ObserveTransform(metrics.StatusFailed, time.Since(start))
	span.RecordError(cause)
	span.SetStatus(codes.Error, reason)
	span.SetAttributes(attribute.String("jarscan.state", string(StateFailed)))
	log.WithError(cause).WithField("code", reason).Error("transform failed")
	return nil
}

// ReasonOf returns the transform error code of err, or INTERNAL.
func ReasonOf(err error) string {
	if code := transform.CodeOf(err); code != "" {
		return string(code)
	}
	return CodeInternal
}

func lastName(o *ArtifactOutputs) string {
	names := o.Names()
	if len(names) == 0 {
		return ""
	}
	return names[len(names)-1]
}
