// Package config loads jarscan.yml.
//
// Every field is optional. Load applies defaults first and then validates, so
// a file only needs the settings that differ from the defaults. Relative
// directories are interpreted against the working directory by the caller.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up in the working directory.
const FileName = "jarscan.yml"

// CurrentVersion is the only supported config version.
const CurrentVersion = "1"

const (
	DefaultCacheDir         = ".jarscan/cache"
	DefaultOutputDir        = "build/jarscan"
	DefaultArchiveSuffix    = ".jar"
	DefaultPropertiesSuffix = ".properties"
	DefaultLogLevel         = "info"
)

// ScannerConfig controls the written properties file.
type ScannerConfig struct {
	Header    string `yaml:"header,omitempty"`
	Timestamp bool   `yaml:"timestamp,omitempty"`
}

// Config is the jarscan.yml schema.
type Config struct {
	Version          string        `yaml:"version"`
	Concurrency      int           `yaml:"concurrency,omitempty"`
	CacheDir         string        `yaml:"cache_dir,omitempty"`
	OutputDir        string        `yaml:"output_dir,omitempty"`
	ArchiveSuffix    string        `yaml:"archive_suffix,omitempty"`
	PropertiesSuffix string        `yaml:"properties_suffix,omitempty"`
	LogLevel         string        `yaml:"log_level,omitempty"`
	FailFast         bool          `yaml:"fail_fast,omitempty"`
	Scanner          ScannerConfig `yaml:"scanner,omitempty"`
	MetricsFile      string        `yaml:"metrics_file,omitempty"`
	TraceFile        string        `yaml:"trace_file,omitempty"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills every unset field.
func (c *Config) ApplyDefaults() {
	if c.Version == "" {
		c.Version = CurrentVersion
	}
	if c.Concurrency == 0 {
		c.Concurrency = runtime.NumCPU()
	}
	if c.CacheDir == "" {
		c.CacheDir = DefaultCacheDir
	}
	if c.OutputDir == "" {
		c.OutputDir = DefaultOutputDir
	}
	if c.ArchiveSuffix == "" {
		c.ArchiveSuffix = DefaultArchiveSuffix
	}
	if c.PropertiesSuffix == "" {
		c.PropertiesSuffix = DefaultPropertiesSuffix
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}

// ValidationError lists every problem found in a config.
type ValidationError struct {
	Path string
	Errs []error
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	prefix := "invalid configuration"
	if e.Path != "" {
		prefix += " " + e.Path
	}
	return prefix + ": " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() []error { return e.Errs }

// Validate checks c after defaults were applied.
func (c *Config) Validate() error {
	var errs []error
	if c.Version != CurrentVersion {
		errs = append(errs, fmt.Errorf("unsupported version: %q (expected: %q)", c.Version, CurrentVersion))
	}
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be >= 1, got %d", c.Concurrency))
	}
	for name, suffix := range map[string]string{
		"archive_suffix":    c.ArchiveSuffix,
		"properties_suffix": c.PropertiesSuffix,
	} {
		if !strings.HasPrefix(suffix, ".") || len(suffix) < 2 {
			errs = append(errs, fmt.Errorf("%s must start with '.' and name an extension, got %q", name, suffix))
		}
		if strings.ContainsAny(suffix, `/\`) {
			errs = append(errs, fmt.Errorf("%s must not contain path separators, got %q", name, suffix))
		}
	}
	if c.ArchiveSuffix == c.PropertiesSuffix {
		errs = append(errs, fmt.Errorf("archive_suffix and properties_suffix must differ, both are %q", c.ArchiveSuffix))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if strings.ContainsAny(c.Scanner.Header, "\r\n") {
		errs = append(errs, errors.New("scanner.header must be a single line"))
	}
	if len(errs) == 0 {
		return nil
	}
	return &ValidationError{Errs: errs}
}

// Level returns the parsed log level. Call after Validate.
func (c *Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// Load reads, defaults and validates the config at path. Unknown keys are
// rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			verr.Path = path
			return nil, verr
		}
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes, defaults and validates YAML config data. An empty document
// yields the defaults.
func Parse(data []byte) (*Config, error) {
	var c Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Find returns the path of jarscan.yml in dir, if it exists.
func Find(dir string) (string, bool) {
	path := filepath.Join(dir, FileName)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", false
	}
	return path, true
}
