// Package transform adapts a jar scanner to an artifact-transform host.
//
// A transform receives one input archive, derives the name of its output by
// replacing the archive suffix with the properties suffix, and asks the
// scanner to write the properties file there. The host owns both the input
// location and the output directory; it is reached only through the
// InputArtifact and Outputs interfaces.
package transform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// DefaultArchiveSuffix is the suffix replaced in input names.
	DefaultArchiveSuffix = ".jar"

	// DefaultPropertiesSuffix is the suffix used for output names.
	DefaultPropertiesSuffix = ".properties"
)

// InputArtifact resolves the location of the artifact being transformed.
type InputArtifact interface {
	Location() (string, error)
}

// Outputs registers transform outputs with the host.
//
// File registers an output with the given relative name and returns the
// path the transform must write it to.
type Outputs interface {
	File(name string) (string, error)
}

// Scanner performs the analysis of one archive, writing its result to outputPath.
type Scanner interface {
	Scan(ctx context.Context, inputPath, outputPath string) error
}

// Remover is implemented by scanners that write through their own
// filesystem. Transform uses it to remove a partial output; other scanners
// are assumed to write to the OS filesystem.
type Remover interface {
	Remove(path string) error
}

// ScanFunc adapts a function to the Scanner interface.
type ScanFunc func(ctx context.Context, inputPath, outputPath string) error

// Scan calls f.
func (f ScanFunc) Scan(ctx context.Context, inputPath, outputPath string) error {
	return f(ctx, inputPath, outputPath)
}

// FileLocation is an InputArtifact for a fixed path.
type FileLocation string

// Location returns the path.
func (l FileLocation) Location() (string, error) {
	if strings.TrimSpace(string(l)) == "" {
		return "", errors.New("empty input location")
	}
	return string(l), nil
}

// JarAnalyzer is the jar to properties transform.
//
// A JarAnalyzer holds no per-invocation state and may be shared by
// concurrent transforms.
type JarAnalyzer struct {
	Scanner Scanner

	// ArchiveSuffix and PropertiesSuffix default to .jar and .properties.
	ArchiveSuffix    string
	PropertiesSuffix string
}

// NewJarAnalyzer creates a JarAnalyzer with default suffixes.
func NewJarAnalyzer(s Scanner) *JarAnalyzer {
	return &JarAnalyzer{
		Scanner:          s,
		ArchiveSuffix:    DefaultArchiveSuffix,
		PropertiesSuffix: DefaultPropertiesSuffix,
	}
}

// OutputName replaces the first occurrence of from in name with to.
// A name without from is returned unchanged.
func OutputName(name, from, to string) string {
	if from == "" {
		return name
	}
	return strings.Replace(name, from, to, 1)
}

// OutputNameFor returns the output file name for the given input path.
func (a *JarAnalyzer) OutputNameFor(inputPath string) string {
	return OutputName(filepath.Base(inputPath), a.archiveSuffix(), a.propertiesSuffix())
}

// Transform scans the input artifact into a properties file registered
// through outputs.
//
// Every returned error satisfies errors.Is(err, ErrFatal). When the scan
// fails, any file at the output path is removed before returning.
func (a *JarAnalyzer) Transform(ctx context.Context, input InputArtifact, outputs Outputs) error {
	if a == nil || a.Scanner == nil {
		return &Error{Code: CodeScanFailed, Err: errors.New("scanner is nil")}
	}
	if input == nil {
		return &Error{Code: CodeInputUnresolved, Err: errors.New("input artifact is nil")}
	}
	if outputs == nil {
		return &Error{Code: CodeOutputRejected, Err: errors.New("outputs is nil")}
	}

	inputPath, err := input.Location()
	if err != nil {
		return &Error{Code: CodeInputUnresolved, Err: err}
	}

	outputPath, err := outputs.File(a.OutputNameFor(inputPath))
	if err != nil {
		code := CodeOutputRejected
		if errors.Is(err, ErrOutputCollision) {
			code = CodeOutputCollision
		}
		return &Error{Code: code, Input: inputPath, Err: err}
	}
	if filepath.Clean(outputPath) == filepath.Clean(inputPath) {
		return &Error{Code: CodeOutputCollision, Input: inputPath, Output: outputPath, Err: ErrOutputCollision}
	}

	if err := ctx.Err(); err != nil {
		return &Error{Code: CodeCanceled, Input: inputPath, Output: outputPath, Err: err}
	}

	if err := a.Scanner.Scan(ctx, inputPath, outputPath); err != nil {
		a.discard(outputPath)
		code := CodeScanFailed
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			code = CodeCanceled
		}
		return &Error{Code: code, Input: inputPath, Output: outputPath, Err: fmt.Errorf("scanning: %w", err)}
	}
	return nil
}

func (a *JarAnalyzer) archiveSuffix() string {
	if a.ArchiveSuffix == "" {
		return DefaultArchiveSuffix
	}
	return a.ArchiveSuffix
}

func (a *JarAnalyzer) propertiesSuffix() string {
	if a.PropertiesSuffix == "" {
		return DefaultPropertiesSuffix
	}
	return a.PropertiesSuffix
}

// discard removes a partially written output. Missing files are fine.
func (a *JarAnalyzer) discard(path string) {
	if r, ok := a.Scanner.(Remover); ok {
		_ = r.Remove(path)
		return
	}
	_ = os.Remove(path)
}
