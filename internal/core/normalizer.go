package core

import (
	"bytes"
	"regexp"
)

// OutputNormalizer defines the interface for normalizing output content.
// Normalization removes nondeterministic data like timestamps.
type OutputNormalizer interface {
	// Normalize processes content to remove nondeterministic data.
	Normalize(content []byte) []byte
}

// PropertiesNormalizer makes properties output independent of when it was
// written.
//
// It handles:
//   - CRLF line endings (converted to LF)
//   - date comment lines as written by java.util.Properties#store
//     (#Sat Oct 17 09:30:00 UTC 2026), which are dropped
type PropertiesNormalizer struct {
	dateComment *regexp.Regexp
}

// NewPropertiesNormalizer creates a PropertiesNormalizer.
func NewPropertiesNormalizer() *PropertiesNormalizer {
	return &PropertiesNormalizer{
		dateComment: regexp.MustCompile(`(?m)^#(Mon|Tue|Wed|Thu|Fri|Sat|Sun) [A-Z][a-z]{2} \d{2} \d{2}:\d{2}:\d{2} [A-Za-z0-9+:\-]+ \d{4}\n`),
	}
}

// Normalize converts line endings and removes date comments.
func (n *PropertiesNormalizer) Normalize(content []byte) []byte {
	result := bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	return n.dateComment.ReplaceAll(result, nil)
}

// RawNormalizer performs no normalization, preserving raw bytes exactly.
type RawNormalizer struct{}

// NewRawNormalizer creates a normalizer that preserves content unchanged.
func NewRawNormalizer() *RawNormalizer {
	return &RawNormalizer{}
}

// Normalize returns content unchanged.
func (n *RawNormalizer) Normalize(content []byte) []byte {
	return content
}
