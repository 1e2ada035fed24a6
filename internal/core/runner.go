package core

import (
	"context"
	"fmt"
	"os"
	"sync"

	"jarscan/internal/transform"
)

// Runner transforms one artifact, reusing cached results.
//
// The runner implements the full per-artifact flow:
//  1. Compute the artifact hash from settings and archive content
//  2. Check cache for an existing result
//  3. If cached: replay the output (the transform does not run)
//  4. If not cached: transform, harvest the output, cache it
//
// Failed transforms are not cached and leave no output behind.
type Runner struct {
	// Cache stores and retrieves transform results.
	Cache Cache

	// Transform performs the jar analysis.
	Transform *transform.JarAnalyzer

	// Hasher computes deterministic artifact hashes.
	Hasher *ArtifactHasher

	// Harvester reads outputs back after a transform.
	Harvester *Harvester

	// Replayer restores cached outputs.
	Replayer *Replayer

	// Settings are the hash components shared by all artifacts.
	Settings HashInput
}

// NewRunner creates a Runner with the given cache and transform.
func NewRunner(cache Cache, t *transform.JarAnalyzer, settings HashInput) *Runner {
	if cache == nil {
		cache = NoCache{}
	}
	return &Runner{
		Cache:     cache,
		Transform: t,
		Hasher:    NewArtifactHasher(),
		Harvester: NewHarvesterWithNormalizer(NewPropertiesNormalizer()),
		Replayer:  NewReplayer(),
		Settings:  settings,
	}
}

// RunResult contains the result of transforming one artifact.
type RunResult struct {
	// Hash is the computed artifact hash.
	Hash ArtifactHash

	// OutputPath is the registered output location.
	OutputPath string

	// FromCache indicates if the output was replayed from cache.
	FromCache bool
}

// Hash computes the ArtifactHash of art.
func (r *Runner) Hash(art Artifact) (ArtifactHash, error) {
	f, err := os.Open(art.Path)
	if err != nil {
		return "", &transform.Error{Code: transform.CodeInputUnresolved, Input: art.Path, Err: err}
	}
	defer f.Close()

	in := r.Settings
	in.InputName = art.Name()
	return r.Hasher.ComputeHash(in, f)
}

// Probe reports the cached entry for hash, if any.
func (r *Runner) Probe(hash ArtifactHash) (*CacheEntry, error) {
	entry, err := r.Cache.Get(hash)
	if err != nil {
		return nil, fmt.Errorf("checking cache: %w", err)
	}
	return entry, nil
}

// Run transforms art into outputs or replays it from cache.
//
// A returned transform error satisfies errors.Is(err, transform.ErrFatal);
// other errors are infrastructure failures (hashing, cache access).
func (r *Runner) Run(ctx context.Context, art Artifact, outputs transform.Outputs) (*RunResult, error) {
	if r.Transform == nil {
		return nil, fmt.Errorf("runner: transform is nil")
	}

	hash, err := r.Hash(art)
	if err != nil {
		return nil, err
	}

	entry, err := r.Probe(hash)
	if err != nil {
		return nil, err
	}
	if entry != nil {
		return r.Replay(entry, outputs)
	}

	return r.Execute(ctx, art, hash, outputs)
}

// Replay restores a cached entry through outputs.
func (r *Runner) Replay(entry *CacheEntry, outputs transform.Outputs) (*RunResult, error) {
	res, err := r.Replayer.Replay(entry, outputs)
	if err != nil {
		return nil, fmt.Errorf("replaying cached result: %w", err)
	}
	return &RunResult{Hash: entry.Hash, OutputPath: res.OutputPath, FromCache: true}, nil
}

// Execute runs the transform for art and caches the harvested output under
// hash. The transform runs even if hash is already cached.
func (r *Runner) Execute(ctx context.Context, art Artifact, hash ArtifactHash, outputs transform.Outputs) (*RunResult, error) {
	if r.Transform == nil {
		return nil, fmt.Errorf("runner: transform is nil")
	}
	rec := &recordingOutputs{inner: outputs}
	if err := r.Transform.Transform(ctx, art, rec); err != nil {
		return nil, err
	}

	name, path := rec.last()
	if path == "" {
		return nil, fmt.Errorf("transform of %q registered no output", art.Name())
	}

	out, err := r.Harvester.Harvest(path)
	if err != nil {
		return nil, fmt.Errorf("harvesting output: %w", err)
	}

	entry := &CacheEntry{
		Hash:       hash,
		InputName:  art.Name(),
		OutputName: name,
		Content:    out.Content,
	}
	if err := r.Cache.Put(entry); err != nil {
		return nil, fmt.Errorf("caching result: %w", err)
	}

	return &RunResult{Hash: hash, OutputPath: path}, nil
}

// recordingOutputs remembers what the transform registered.
type recordingOutputs struct {
	inner transform.Outputs

	mu   sync.Mutex
	name string
	path string
}

func (o *recordingOutputs) File(name string) (string, error) {
	path, err := o.inner.File(name)
	if err != nil {
		return "", err
	}
	o.mu.Lock()
	o.name, o.path = name, path
	o.mu.Unlock()
	return path, nil
}

func (o *recordingOutputs) last() (string, string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.name, o.path
}
