package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
)

// ArtifactHash is the deterministic identifier of one transform invocation.
//
// Includes: transform settings, input name, input content.
// Excludes: timestamps, absolute paths, file metadata.
//
// Any change to an included component MUST produce a different hash.
type ArtifactHash string

// String returns the string representation of the ArtifactHash.
func (h ArtifactHash) String() string {
	return string(h)
}

// Short returns the first 12 characters, for logs.
func (h ArtifactHash) Short() string {
	if len(h) <= 12 {
		return string(h)
	}
	return string(h[:12])
}

// HashInput contains all components required for computing an ArtifactHash.
type HashInput struct {
	// Identity names the transform (e.g. "jar-analyzer").
	Identity string

	// SchemaVersion is the version of the output format.
	SchemaVersion string

	// ArchiveSuffix and PropertiesSuffix determine the output name.
	ArchiveSuffix    string
	PropertiesSuffix string

	// Header is the configured header comment; it is part of the cached bytes.
	Header string

	// InputName is the base name of the archive.
	InputName string
}

// ArtifactHasher computes deterministic hashes for transform invocations.
type ArtifactHasher struct{}

// NewArtifactHasher creates a new ArtifactHasher.
func NewArtifactHasher() *ArtifactHasher {
	return &ArtifactHasher{}
}

// ComputeHash hashes the settings in input followed by the archive bytes read
// from content.
//
// Every field is written with an 8-byte big-endian length prefix. The content
// is written last, so it needs no prefix.
func (h *ArtifactHasher) ComputeHash(input HashInput, content io.Reader) (ArtifactHash, error) {
	hasher := sha256.New()

	writeField(hasher, input.Identity)
	writeField(hasher, input.SchemaVersion)
	writeField(hasher, input.ArchiveSuffix)
	writeField(hasher, input.PropertiesSuffix)
	writeField(hasher, input.Header)
	writeField(hasher, input.InputName)

	if content != nil {
		if _, err := io.Copy(hasher, content); err != nil {
			return "", fmt.Errorf("hashing content: %w", err)
		}
	}

	return ArtifactHash(hex.EncodeToString(hasher.Sum(nil))), nil
}

func writeField(w hash.Hash, s string) {
	var prefix [8]byte
	binary.BigEndian.PutUint64(prefix[:], uint64(len(s)))
	w.Write(prefix[:])
	w.Write([]byte(s))
}
