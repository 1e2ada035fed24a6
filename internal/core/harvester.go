package core

import (
	"fmt"
	"os"
)

// Harvester reads a transform output back from disk so it can be cached.
//
// Only the registered output path is read; nothing else in the output
// directory is considered part of the result.
type Harvester struct {
	// Normalizer is used to normalize output contents.
	// If nil, no normalization is applied (raw bytes preserved).
	Normalizer OutputNormalizer
}

// NewHarvester creates a Harvester that keeps raw bytes.
func NewHarvester() *Harvester {
	return &Harvester{}
}

// NewHarvesterWithNormalizer creates a Harvester with a custom normalizer.
func NewHarvesterWithNormalizer(normalizer OutputNormalizer) *Harvester {
	return &Harvester{Normalizer: normalizer}
}

// Harvest reads the output at path.
//
// Returns an error if the output does not exist (the transform failed to
// produce it), is a directory, or cannot be read.
func (h *Harvester) Harvest(path string) (*Output, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("registered output does not exist: %s", path)
		}
		return nil, fmt.Errorf("stat output %q: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("registered output is a directory: %s", path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading output %q: %w", path, err)
	}
	if h.Normalizer != nil {
		content = h.Normalizer.Normalize(content)
	}

	return &Output{Path: path, Content: content}, nil
}
