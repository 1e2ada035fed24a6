package core

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type dirOutputs struct {
	dir   string
	names []string
}

func (o *dirOutputs) File(name string) (string, error) {
	o.names = append(o.names, name)
	return filepath.Join(o.dir, name), nil
}

// TestReplay_RestoresOutput verifies the cached output is registered and written.
func TestReplay_RestoresOutput(t *testing.T) {
	dir := t.TempDir()
	outputs := &dirOutputs{dir: filepath.Join(dir, "nested")}

	res, err := NewReplayer().Replay(sampleEntry("h1"), outputs)
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if !res.Rewritten {
		t.Error("expected output to be written")
	}
	if len(outputs.names) != 1 || outputs.names[0] != "library-1.0.properties" {
		t.Errorf("unexpected registrations: %v", outputs.names)
	}

	content, err := os.ReadFile(filepath.Join(dir, "nested", "library-1.0.properties"))
	if err != nil {
		t.Fatalf("failed to read restored output: %v", err)
	}
	if !bytes.Equal(content, sampleEntry("h1").Content) {
		t.Errorf("restored content mismatch: %q", content)
	}
}

// TestReplay_SkipsIdenticalOutput leaves an up to date file untouched.
func TestReplay_SkipsIdenticalOutput(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "library-1.0.properties")
	if err := os.WriteFile(target, sampleEntry("h1").Content, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(target, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	res, err := NewReplayer().Replay(sampleEntry("h1"), &dirOutputs{dir: dir})
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if res.Rewritten {
		t.Error("identical output must not be rewritten")
	}
	info, err := os.Stat(target)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if !info.ModTime().Equal(old) {
		t.Error("identical output was touched")
	}
}

// TestReplay_OverwritesStaleOutput replaces content that differs from the cache.
func TestReplay_OverwritesStaleOutput(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "library-1.0.properties")
	if err := os.WriteFile(target, []byte("packages=stale\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := NewReplayer().Replay(sampleEntry("h1"), &dirOutputs{dir: dir}); err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	content, _ := os.ReadFile(target)
	if !bytes.Equal(content, sampleEntry("h1").Content) {
		t.Errorf("stale output not replaced: %q", content)
	}
}

type refusingOutputs struct{}

func (refusingOutputs) File(string) (string, error) { return "", errors.New("refused") }

func TestReplay_Errors(t *testing.T) {
	r := NewReplayer()
	if _, err := r.Replay(nil, &dirOutputs{dir: t.TempDir()}); err == nil {
		t.Error("expected error for nil entry")
	}
	noContent := sampleEntry("h")
	noContent.Content = nil
	if _, err := r.Replay(noContent, &dirOutputs{dir: t.TempDir()}); err == nil {
		t.Error("expected error for entry without content")
	}
	if _, err := r.Replay(sampleEntry("h"), refusingOutputs{}); err == nil {
		t.Error("expected error when registration is refused")
	}
}
