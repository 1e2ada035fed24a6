package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"jarscan/internal/transform"
)

// ErrDuplicateOutput is returned when two artifacts of one run would write
// the same output.
var ErrDuplicateOutput = errors.New("output name already registered")

// Registry owns the output directory of a run. It hands out one Outputs
// per artifact and guarantees that no two artifacts share an output name.
type Registry struct {
	dir string

	mu        sync.Mutex
	owners    map[string]string // output name -> artifact key
	committed map[string]string // output name -> absolute path
}

// NewRegistry creates a registry writing into dir.
func NewRegistry(dir string) *Registry {
	return &Registry{
		dir:       filepath.Clean(dir),
		owners:    make(map[string]string),
		committed: make(map[string]string),
	}
}

// Dir returns the output directory.
func (r *Registry) Dir() string { return r.dir }

// Claim reserves name for artifact ahead of execution. Claiming in a fixed
// order decides which artifact keeps a contested name, independent of which
// one finishes first.
func (r *Registry) Claim(artifact, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.claimLocked(artifact, name)
}

func (r *Registry) claimLocked(artifact, name string) error {
	if owner, ok := r.owners[name]; ok && owner != artifact {
		return fmt.Errorf("%w: %q is owned by %s", ErrDuplicateOutput, name, owner)
	}
	r.owners[name] = artifact
	return nil
}

// For returns the Outputs collaborator of one artifact.
func (r *Registry) For(artifact string) *ArtifactOutputs {
	return &ArtifactOutputs{registry: r, artifact: artifact}
}

// Committed returns the published output paths, sorted.
func (r *Registry) Committed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	paths := make([]string, 0, len(r.committed))
	for _, p := range r.committed {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (r *Registry) commit(names []string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	paths := make([]string, 0, len(names))
	for _, n := range names {
		p := filepath.Join(r.dir, n)
		r.committed[n] = p
		paths = append(paths, p)
	}
	return paths
}

// validateName accepts clean relative paths inside the output dir.
func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("output name is empty")
	}
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return fmt.Errorf("output name %q must be relative", name)
	}
	if filepath.Clean(name) != name || name == "." {
		return fmt.Errorf("output name %q is not a clean file name", name)
	}
	for _, part := range strings.Split(filepath.ToSlash(name), "/") {
		if part == ".." {
			return fmt.Errorf("output name %q escapes the output directory", name)
		}
	}
	return nil
}

// ArtifactOutputs implements transform.Outputs for one artifact.
//
// Registered names stay reserved for the whole run. Commit publishes them;
// Discard removes whatever was written.
type ArtifactOutputs struct {
	registry *Registry
	artifact string

	mu    sync.Mutex
	names []string
	done  bool
}

// File registers name and returns the absolute path to write it to.
func (o *ArtifactOutputs) File(name string) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.done {
		return "", fmt.Errorf("outputs of %s are already finalized", o.artifact)
	}

	path := filepath.Join(o.registry.dir, name)
	if path == filepath.Clean(o.artifact) {
		return "", fmt.Errorf("%w: %s", transform.ErrOutputCollision, path)
	}

	o.registry.mu.Lock()
	err := o.registry.claimLocked(o.artifact, name)
	o.registry.mu.Unlock()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	for _, n := range o.names {
		if n == name {
			return path, nil
		}
	}
	o.names = append(o.names, name)
	return path, nil
}

// Names returns the registered names in registration order.
func (o *ArtifactOutputs) Names() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.names...)
}

// Commit publishes the registered outputs and returns their paths.
func (o *ArtifactOutputs) Commit() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.done {
		return nil
	}
	o.done = true
	return o.registry.commit(o.names)
}

// Discard removes any file written for the registered outputs. The names
// stay claimed for the rest of the run. The artifact itself is never removed.
func (o *ArtifactOutputs) Discard() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.done {
		return nil
	}
	o.done = true

	var errs []error
	for _, n := range o.names {
		path := filepath.Join(o.registry.dir, n)
		if path == filepath.Clean(o.artifact) {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
