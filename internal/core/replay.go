package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"jarscan/internal/transform"
)

// ReplayResult describes a restored cache entry.
type ReplayResult struct {
	// Hash is the ArtifactHash that was replayed.
	Hash ArtifactHash

	// OutputPath is where the output was registered.
	OutputPath string

	// Rewritten is false when the output already had the cached content.
	Rewritten bool
}

// Replayer restores cached outputs through the host's output registration.
//
// Replay registers the cached output name exactly as a transform would, then
// makes the file at the registered path bit-for-bit identical to the cached
// content.
type Replayer struct{}

// NewReplayer creates a new Replayer.
func NewReplayer() *Replayer {
	return &Replayer{}
}

// Replay restores entry into outputs.
func (r *Replayer) Replay(entry *CacheEntry, outputs transform.Outputs) (*ReplayResult, error) {
	if entry == nil {
		return nil, fmt.Errorf("cache entry is nil")
	}
	if outputs == nil {
		return nil, fmt.Errorf("outputs is nil")
	}
	if entry.OutputName == "" {
		return nil, fmt.Errorf("cache entry %s: output name is empty", entry.Hash)
	}
	if entry.Content == nil {
		return nil, fmt.Errorf("cache entry %s: missing content", entry.Hash)
	}

	target, err := outputs.File(entry.OutputName)
	if err != nil {
		return nil, fmt.Errorf("registering %q: %w", entry.OutputName, err)
	}

	res := &ReplayResult{Hash: entry.Hash, OutputPath: target}

	wantHash := sha256Hex(entry.Content)
	haveHash, ok, err := fileSHA256HexIfExists(target)
	if err != nil {
		return nil, fmt.Errorf("hashing existing output %q: %w", target, err)
	}
	if ok && haveHash == wantHash {
		return res, nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, fmt.Errorf("creating parent directory: %w", err)
	}
	if err := writeFileAtomic(target, entry.Content, 0o644); err != nil {
		return nil, fmt.Errorf("restoring %q: %w", target, err)
	}
	res.Rewritten = true
	return res, nil
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func fileSHA256HexIfExists(path string) (hash string, exists bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", true, err
	}
	return hex.EncodeToString(h.Sum(nil)), true, nil
}
