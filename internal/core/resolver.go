package core

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// InputResolver resolves command line arguments to a deterministic list of
// archives.
//
// Arguments may be literal files, directories, or glob patterns:
//   - literal files are taken as-is and must exist
//   - directories contribute the files directly inside them that end with Suffix
//   - globs are expanded; only regular files are kept
//
// The result is sorted by path and free of duplicates, independent of the
// order in which the filesystem lists entries.
type InputResolver struct {
	// BaseDir is the working directory for resolving relative paths.
	BaseDir string

	// Suffix selects archives inside directory arguments.
	Suffix string
}

// NewInputResolver creates a new InputResolver with the given base directory.
func NewInputResolver(baseDir, suffix string) *InputResolver {
	return &InputResolver{BaseDir: baseDir, Suffix: suffix}
}

// Resolve expands all arguments and returns the archives in sorted order.
func (r *InputResolver) Resolve(args []string) ([]Artifact, error) {
	pathSet := make(map[string]struct{})

	for _, arg := range args {
		if strings.TrimSpace(arg) == "" {
			return nil, fmt.Errorf("empty input argument")
		}
		expanded, err := r.expand(arg)
		if err != nil {
			return nil, fmt.Errorf("expanding %q: %w", arg, err)
		}
		for _, p := range expanded {
			pathSet[p] = struct{}{}
		}
	}

	// Must sort explicitly, do not rely on OS directory ordering
	paths := make([]string, 0, len(pathSet))
	for p := range pathSet {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	artifacts := make([]Artifact, 0, len(paths))
	for _, p := range paths {
		artifacts = append(artifacts, Artifact{Path: p})
	}
	return artifacts, nil
}

func (r *InputResolver) expand(arg string) ([]string, error) {
	full := arg
	if !filepath.IsAbs(arg) {
		full = filepath.Join(r.BaseDir, arg)
	}
	full = filepath.Clean(full)

	if !containsGlobChar(arg) {
		info, err := os.Stat(full)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			return r.archivesIn(full)
		}
		return []string{full}, nil
	}

	matches, err := filepath.Glob(full)
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern: %w", err)
	}
	files := make([]string, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			return nil, fmt.Errorf("stat %q: %w", m, err)
		}
		if info.IsDir() {
			continue
		}
		files = append(files, filepath.Clean(m))
	}
	return files, nil
}

// archivesIn lists the archives directly inside dir. Subdirectories are not
// descended into.
func (r *InputResolver) archivesIn(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if r.Suffix != "" && !strings.HasSuffix(e.Name(), r.Suffix) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files, nil
}

// containsGlobChar returns true if the pattern contains glob special characters.
func containsGlobChar(pattern string) bool {
	for _, c := range pattern {
		switch c {
		case '*', '?', '[', ']':
			return true
		}
	}
	return false
}
