package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"jarscan/internal/config"
)

const (
	ExitSuccess           = 0
	ExitArtifactFailure   = 1
	ExitInvalidInvocation = 2
	ExitConfigError       = 3
	ExitInternalError     = 4
)

// Invocation is the fully canonicalized description of a transform run.
//
// All paths are normalized (Clean) and all relative paths are resolved
// relative to WorkDir, which is always absolute.
type Invocation struct {
	WorkDir string

	// ConfigPath is empty when no config file was used.
	ConfigPath string
	Config     *config.Config

	// Inputs are the raw jar, directory and glob arguments. The resolver
	// interprets them against WorkDir.
	Inputs []string

	OutputDir   string
	CacheDir    string
	NoCache     bool
	TracePath   string
	MetricsPath string
}

// InvocationError carries the exit code of an error detected before any
// artifact is processed.
type InvocationError struct {
	ExitCode int
	Message  string
	Err      error
}

func (e *InvocationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func (e *InvocationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func invalidInvocationf(format string, args ...any) error {
	return &InvocationError{ExitCode: ExitInvalidInvocation, Message: fmt.Sprintf(format, args...)}
}

func configError(err error) error {
	return &InvocationError{ExitCode: ExitConfigError, Message: err.Error(), Err: err}
}

// transformFlags are the raw values of the transform command flags.
type transformFlags struct {
	workDir     string
	configPath  string
	outputDir   string
	cacheDir    string
	noCache     bool
	concurrency int
	failFast    bool
	tracePath   string
	metricsPath string
	logLevel    string
}

// changedFunc reports whether a flag was set on the command line.
type changedFunc func(name string) bool

// canonicalize turns flags and positional arguments into an Invocation.
//
// Precedence is flag, then jarscan.yml, then built-in default. The config
// file is --config when given, otherwise jarscan.yml in the work dir if it
// exists.
func canonicalize(f transformFlags, changed changedFunc, args []string) (Invocation, error) {
	if len(args) == 0 {
		return Invocation{}, invalidInvocationf("at least one input (jar, directory or glob) is required")
	}
	for _, a := range args {
		if strings.TrimSpace(a) == "" {
			return Invocation{}, invalidInvocationf("input arguments must not be empty")
		}
	}

	workDir, err := resolveWorkDir(f.workDir)
	if err != nil {
		return Invocation{}, err
	}

	inv := Invocation{WorkDir: workDir, Inputs: append([]string(nil), args...), NoCache: f.noCache}

	cfg, cfgPath, err := loadConfig(workDir, f.configPath)
	if err != nil {
		return Invocation{}, err
	}
	inv.ConfigPath = cfgPath

	if changed("concurrency") {
		if f.concurrency < 1 {
			return Invocation{}, invalidInvocationf("--concurrency must be >= 1 (got %d)", f.concurrency)
		}
		cfg.Concurrency = f.concurrency
	}
	if changed("log-level") {
		if _, err := logrus.ParseLevel(f.logLevel); err != nil {
			return Invocation{}, invalidInvocationf("invalid --log-level %q", f.logLevel)
		}
		cfg.LogLevel = f.logLevel
	}
	if changed("fail-fast") {
		cfg.FailFast = f.failFast
	}
	if changed("output-dir") {
		cfg.OutputDir = f.outputDir
	}
	if changed("cache-dir") {
		cfg.CacheDir = f.cacheDir
	}
	if changed("trace") {
		cfg.TraceFile = f.tracePath
	}
	if changed("metrics-file") {
		cfg.MetricsFile = f.metricsPath
	}
	inv.Config = cfg

	if inv.OutputDir, err = resolveUnderWorkDir(workDir, cfg.OutputDir); err != nil {
		return Invocation{}, err
	}
	if inv.CacheDir, err = resolveUnderWorkDir(workDir, cfg.CacheDir); err != nil {
		return Invocation{}, err
	}
	if strings.TrimSpace(cfg.TraceFile) != "" {
		if inv.TracePath, err = resolveUnderWorkDir(workDir, cfg.TraceFile); err != nil {
			return Invocation{}, err
		}
	}
	if strings.TrimSpace(cfg.MetricsFile) != "" {
		if inv.MetricsPath, err = resolveUnderWorkDir(workDir, cfg.MetricsFile); err != nil {
			return Invocation{}, err
		}
	}
	if inv.OutputDir == inv.CacheDir {
		return Invocation{}, invalidInvocationf("output dir and cache dir must differ (both %q)", inv.OutputDir)
	}
	return inv, nil
}

// resolveWorkDir defaults to the process working directory when raw is
// empty. Everything after this point is independent of the process CWD.
func resolveWorkDir(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", &InvocationError{ExitCode: ExitInternalError, Message: "cannot determine working directory", Err: err}
		}
		return filepath.Clean(wd), nil
	}
	wd := filepath.Clean(raw)
	if !filepath.IsAbs(wd) {
		return "", invalidInvocationf("--workdir must be an absolute path (got %q)", raw)
	}
	info, err := os.Stat(wd)
	if err != nil {
		return "", invalidInvocationf("--workdir %q: %v", raw, err)
	}
	if !info.IsDir() {
		return "", invalidInvocationf("--workdir %q is not a directory", raw)
	}
	return wd, nil
}

func loadConfig(workDir, flagPath string) (*config.Config, string, error) {
	path := ""
	if strings.TrimSpace(flagPath) != "" {
		p, err := resolveUnderWorkDir(workDir, flagPath)
		if err != nil {
			return nil, "", err
		}
		path = p
	} else if p, ok := config.Find(workDir); ok {
		path = p
	}
	if path == "" {
		return config.Default(), "", nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", configError(err)
	}
	return cfg, path, nil
}

func resolveUnderWorkDir(workDir, p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", invalidInvocationf("path must not be empty")
	}
	clean := filepath.Clean(p)
	if clean == "." {
		return "", invalidInvocationf("path must not be '.'")
	}

	// If absolute, accept as-is; it is still deterministic.
	// If relative, resolve under WorkDir.
	if filepath.IsAbs(clean) {
		return clean, nil
	}

	// WorkDir is required to be absolute, so Join does not consult process CWD.
	return filepath.Clean(filepath.Join(workDir, clean)), nil
}

// ExitCode maps an error returned by Run to a semantic exit code.
// Unknown errors are internal errors.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var invErr *InvocationError
	if errors.As(err, &invErr) && invErr != nil {
		if invErr.ExitCode != 0 {
			return invErr.ExitCode
		}
		return ExitInvalidInvocation
	}
	var verr *config.ValidationError
	if errors.As(err, &verr) {
		return ExitConfigError
	}
	return ExitInternalError
}
