package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jarscan/internal/transform"
)

func TestRegistry_FileReturnsPathInsideDir(t *testing.T) {
	dir := t.TempDir()
	reg := NewRegistry(filepath.Join(dir, "out"))

	path, err := reg.For("/libs/a.jar").File("a.properties")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "out", "a.properties"), path)

	info, err := os.Stat(filepath.Join(dir, "out"))
	require.NoError(t, err)
	assert.True(t, info.IsDir(), "output directory is created on registration")
}

func TestRegistry_RejectsInvalidNames(t *testing.T) {
	reg := NewRegistry(t.TempDir())
	out := reg.For("/libs/a.jar")

	for _, name := range []string{"", " ", "/abs.properties", "../up.properties", "a/../../b", ".", "./a.properties", "a//b"} {
		_, err := out.File(name)
		assert.Error(t, err, "name %q", name)
	}
	assert.Empty(t, out.Names())
}

func TestRegistry_DuplicateAcrossArtifacts(t *testing.T) {
	reg := NewRegistry(t.TempDir())

	require.NoError(t, reg.Claim("/x/lib.jar", "lib.properties"))
	err := reg.Claim("/y/lib.jar", "lib.properties")
	assert.True(t, errors.Is(err, ErrDuplicateOutput))

	_, err = reg.For("/y/lib.jar").File("lib.properties")
	assert.True(t, errors.Is(err, ErrDuplicateOutput))

	// The owner may register its claimed name, twice even.
	a := reg.For("/x/lib.jar")
	_, err = a.File("lib.properties")
	require.NoError(t, err)
	_, err = a.File("lib.properties")
	require.NoError(t, err)
	assert.Equal(t, []string{"lib.properties"}, a.Names())
}

func TestRegistry_CommitAndDiscard(t *testing.T) {
	dir := t.TempDir()
	reg := NewRegistry(dir)

	ok := reg.For("/libs/a.jar")
	pathA, err := ok.File("a.properties")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(pathA, []byte("packages=a\n"), 0o644))
	assert.Equal(t, []string{pathA}, ok.Commit())

	bad := reg.For("/libs/b.jar")
	pathB, err := bad.File("b.properties")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(pathB, []byte("partial"), 0o644))
	require.NoError(t, bad.Discard())

	_, err = os.Stat(pathB)
	assert.True(t, os.IsNotExist(err), "discarded output must be removed")
	assert.Equal(t, []string{pathA}, reg.Committed())

	// Finalized outputs accept no further registrations.
	_, err = ok.File("late.properties")
	assert.Error(t, err)
	assert.NoError(t, bad.Discard(), "second discard is a no-op")

	// A discarded name stays owned by its artifact.
	_, err = reg.For("/other/b.jar").File("b.properties")
	assert.True(t, errors.Is(err, ErrDuplicateOutput))
}

func TestRegistry_DiscardWithoutFile(t *testing.T) {
	reg := NewRegistry(t.TempDir())
	out := reg.For("/libs/a.jar")
	_, err := out.File("a.properties")
	require.NoError(t, err)
	assert.NoError(t, out.Discard())
}

func TestRegistry_RefusesArtifactOwnPath(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "lib.zip")
	require.NoError(t, os.WriteFile(input, []byte("archive bytes"), 0o644))

	out := NewRegistry(dir).For(input)
	_, err := out.File("lib.zip")
	require.Error(t, err)
	assert.True(t, errors.Is(err, transform.ErrOutputCollision))
	assert.Empty(t, out.Names())

	require.NoError(t, out.Discard())
	data, err := os.ReadFile(input)
	require.NoError(t, err)
	assert.Equal(t, "archive bytes", string(data))
}
