package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/sirupsen/logrus"
	oteltrace "go.opentelemetry.io/otel/trace"

	"jarscan/internal/core"
	"jarscan/internal/metrics"
	"jarscan/internal/pipeline"
	"jarscan/internal/runlog"
	"jarscan/internal/scanner"
	"jarscan/internal/trace"
	"jarscan/internal/transform"
)

// TransformIdentity names the transform in every artifact hash.
const TransformIdentity = "jar-analyzer"

// CLIResult is the outcome of one CLI invocation.
type CLIResult struct {
	ExitCode int
	RunID    string
	Result   *pipeline.Result
}

// Env holds the process-level collaborators of an execution. Zero values
// are replaced by defaults.
type Env struct {
	Stdout io.Writer
	Stderr io.Writer

	// Tracer receives the run and per-artifact spans.
	Tracer oteltrace.Tracer
}

func (e Env) stdout() io.Writer {
	if e.Stdout == nil {
		return io.Discard
	}
	return e.Stdout
}

func (e Env) stderr() io.Writer {
	if e.Stderr == nil {
		return io.Discard
	}
	return e.Stderr
}

func newLogger(w io.Writer, level logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
	return l
}

// Execute runs the transform pipeline for a canonical invocation.
//
// Responsibilities:
//   - Resolve inputs against WorkDir.
//   - Select the cache (file cache, or none with --no-cache).
//   - Record the run under .jarscan/runs, even when artifacts fail.
//   - Write the optional trace and metrics files after the pipeline ends.
//   - Translate outcomes to semantic exit codes.
func Execute(ctx context.Context, inv Invocation, env Env) (res CLIResult, execErr error) {
	res.ExitCode = ExitInternalError
	if inv.Config == nil {
		return res, errors.New("invocation has no config")
	}
	cfg := inv.Config

	res.RunID = runlog.NewRunID()
	logger := newLogger(env.stderr(), cfg.Level())
	log := logger.WithField("run_id", res.RunID)

	artifacts, err := core.NewInputResolver(inv.WorkDir, cfg.ArchiveSuffix).Resolve(inv.Inputs)
	if err != nil {
		res.ExitCode = ExitInvalidInvocation
		return res, &InvocationError{ExitCode: ExitInvalidInvocation, Message: err.Error(), Err: err}
	}
	if len(artifacts) == 0 {
		log.Warn("no input archives matched")
	}

	var cache core.Cache = core.NewFileCache(inv.CacheDir)
	cacheMode := runlog.CacheModeFile
	if inv.NoCache {
		cache = core.NoCache{}
		cacheMode = runlog.CacheModeDisabled
	}

	scan := scanner.New(osfs.New("/"), scanner.Options{
		Header:    cfg.Scanner.Header,
		Timestamp: cfg.Scanner.Timestamp,
	})
	analyzer := transform.NewJarAnalyzer(scan)
	analyzer.ArchiveSuffix = cfg.ArchiveSuffix
	analyzer.PropertiesSuffix = cfg.PropertiesSuffix

	runner := core.NewRunner(cache, analyzer, core.HashInput{
		Identity:         TransformIdentity,
		SchemaVersion:    scanner.SchemaVersion,
		ArchiveSuffix:    cfg.ArchiveSuffix,
		PropertiesSuffix: cfg.PropertiesSuffix,
		Header:           cfg.Scanner.Header,
	})

	m := metrics.New(nil)
	events := trace.NewRecorder()
	p, err := pipeline.New(runner, pipeline.NewRegistry(inv.OutputDir), pipeline.Options{
		Concurrency: cfg.Concurrency,
		FailFast:    cfg.FailFast,
		Logger:      log,
		Metrics:     m,
		Events:      events,
		Tracer:      env.Tracer,
	})
	if err != nil {
		return res, err
	}

	names := make([]string, len(artifacts))
	for i, a := range artifacts {
		names[i] = a.Name()
	}

	// The run log is best-effort: a broken .jarscan directory must not hide
	// the transform results.
	var rec *runlog.Recorder
	var run runlog.Run
	if st, serr := runlog.NewStore(inv.WorkDir); serr == nil {
		rec = &runlog.Recorder{Store: st}
		run, serr = rec.StartRun(runlog.Run{
			RunID:      res.RunID,
			InputsHash: trace.InputsHash(names),
			CacheMode:  cacheMode,
			Artifacts:  len(artifacts),
		})
		if serr != nil {
			log.WithError(serr).Warn("recording run start failed")
			rec = nil
		}
	}

	log.WithFields(logrus.Fields{
		"artifacts":   len(artifacts),
		"concurrency": cfg.Concurrency,
		"cache":       string(cacheMode),
	}).Info("run started")

	result, runErr := p.Run(ctx, artifacts)
	if result == nil {
		if rec != nil {
			run.Status = runlog.StatusFailed
			if _, ferr := rec.FinishRun(run, nil); ferr != nil {
				log.WithError(ferr).Warn("recording run end failed")
			}
		}
		return res, fmt.Errorf("pipeline: %w", runErr)
	}
	res.Result = result

	tr := events.Trace(result.InputsHash)
	traceHash, err := tr.Hash()
	if err != nil {
		return res, fmt.Errorf("hashing trace: %w", err)
	}
	if inv.TracePath != "" {
		if err := trace.WriteFile(inv.TracePath, tr); err != nil {
			return res, fmt.Errorf("writing trace: %w", err)
		}
	}
	if inv.MetricsPath != "" {
		if err := m.WriteTextfile(inv.MetricsPath); err != nil {
			return res, fmt.Errorf("writing metrics: %w", err)
		}
	}

	if rec != nil {
		run.Transformed = result.Count(pipeline.StateCompleted)
		run.Cached = result.Count(pipeline.StateCached)
		run.Failed = result.Count(pipeline.StateFailed)
		run.Skipped = result.Count(pipeline.StateSkipped)
		run.TraceHash = traceHash
		switch {
		case runErr != nil:
			run.Status = runlog.StatusCanceled
		case result.Failed():
			run.Status = runlog.StatusFailed
		default:
			run.Status = runlog.StatusSucceeded
		}
		if _, ferr := rec.FinishRun(run, failuresOf(result, log)); ferr != nil {
			log.WithError(ferr).Warn("recording run end failed")
		}
	}

	printSummary(env.stdout(), result)

	switch {
	case runErr != nil:
		res.ExitCode = ExitArtifactFailure
		return res, runErr
	case result.Failed():
		res.ExitCode = ExitArtifactFailure
		return res, fmt.Errorf("%d of %d artifacts failed", result.Count(pipeline.StateFailed), len(result.Artifacts))
	}
	res.ExitCode = ExitSuccess
	return res, nil
}

// failuresOf converts the per-artifact errors of result into run log
// records, sorted by artifact.
func failuresOf(result *pipeline.Result, log logrus.FieldLogger) []runlog.Failure {
	keys := make([]string, 0, len(result.Errors))
	for k := range result.Errors {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	failures := make([]runlog.Failure, 0, len(keys))
	for _, k := range keys {
		name := core.Artifact{Path: k}.Name()
		f, err := runlog.FailureFromError(name, string(result.Hashes[k]), result.Errors[k])
		if err != nil {
			log.WithError(err).WithField("artifact", name).Warn("cannot record failure")
			continue
		}
		failures = append(failures, f)
	}
	return failures
}
