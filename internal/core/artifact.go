package core

import (
	"errors"
	"path/filepath"
)

// Artifact is an input archive to be transformed.
//
// Artifact implements transform.InputArtifact.
type Artifact struct {
	// Path is the absolute, cleaned location of the archive.
	Path string
}

// Name is the base name of the archive. It identifies the artifact in logs,
// traces and run records.
func (a Artifact) Name() string {
	return filepath.Base(a.Path)
}

// Location returns the archive path.
func (a Artifact) Location() (string, error) {
	if a.Path == "" {
		return "", errors.New("artifact path is empty")
	}
	return a.Path, nil
}

// Output is a transform result read back from disk.
type Output struct {
	// Path is where the output was written.
	Path string

	// Content is the normalized file content.
	Content []byte
}
