package transform_test

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jarscan/internal/scanner"
	"jarscan/internal/transform"
)

// dirOutputs registers outputs inside a directory.
type dirOutputs struct {
	dir string

	mu    sync.Mutex
	names []string
}

func (o *dirOutputs) File(name string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.names = append(o.names, name)
	return filepath.Join(o.dir, name), nil
}

func writeJar(t *testing.T, path string, entries ...string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for _, e := range entries {
		w, err := zw.Create(e)
		require.NoError(t, err)
		_, err = w.Write([]byte("x"))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func newAnalyzer() *transform.JarAnalyzer {
	return transform.NewJarAnalyzer(scanner.New(osfs.New("/"), scanner.Options{}))
}

func TestOutputName(t *testing.T) {
	cases := []struct{ in, want string }{
		{"library-1.0.jar", "library-1.0.properties"},
		{"a.jar.jar", "a.properties.jar"},
		{"my.jarfile-2.jar", "my.propertiesfile-2.jar"},
		{"no-suffix.zip", "no-suffix.zip"},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, transform.OutputName(tc.in, ".jar", ".properties"), tc.in)
	}
	assert.Equal(t, "x.jar", transform.OutputName("x.jar", "", ".properties"))
}

func TestTransform_ProducesSingleOutput(t *testing.T) {
	inDir := t.TempDir()
	outDir := t.TempDir()
	input := filepath.Join(inDir, "library-1.0.jar")
	writeJar(t, input, "com/acme/A.class", "com/acme/util/U.class")

	outputs := &dirOutputs{dir: outDir}
	err := newAnalyzer().Transform(context.Background(), transform.FileLocation(input), outputs)
	require.NoError(t, err)

	assert.Equal(t, []string{"library-1.0.properties"}, outputs.names)
	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "library-1.0.properties", entries[0].Name())

	data, err := os.ReadFile(filepath.Join(outDir, "library-1.0.properties"))
	require.NoError(t, err)
	assert.Equal(t, "packages=com.acme,com.acme.util\n", string(data))
}

func TestTransform_ScanFailureIsFatalAndLeavesNoOutput(t *testing.T) {
	outDir := t.TempDir()
	ioErr := &fs.PathError{Op: "read", Path: "broken.jar", Err: errors.New("short read")}
	partial := transform.ScanFunc(func(_ context.Context, _, out string) error {
		require.NoError(t, os.WriteFile(out, []byte("packages=half"), 0o644))
		return ioErr
	})

	a := transform.NewJarAnalyzer(partial)
	err := a.Transform(context.Background(), transform.FileLocation("/in/broken.jar"), &dirOutputs{dir: outDir})
	require.Error(t, err)
	assert.ErrorIs(t, err, transform.ErrFatal)
	assert.ErrorIs(t, err, ioErr)
	assert.Equal(t, transform.CodeScanFailed, transform.CodeOf(err))

	_, statErr := os.Stat(filepath.Join(outDir, "broken.properties"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestTransform_InvalidArchive(t *testing.T) {
	inDir := t.TempDir()
	outDir := t.TempDir()
	input := filepath.Join(inDir, "bad.jar")
	require.NoError(t, os.WriteFile(input, []byte("garbage"), 0o644))

	err := newAnalyzer().Transform(context.Background(), transform.FileLocation(input), &dirOutputs{dir: outDir})
	require.ErrorIs(t, err, transform.ErrFatal)

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTransform_InputUnresolved(t *testing.T) {
	err := newAnalyzer().Transform(context.Background(), transform.FileLocation(""), &dirOutputs{dir: t.TempDir()})
	assert.Equal(t, transform.CodeInputUnresolved, transform.CodeOf(err))
	assert.ErrorIs(t, err, transform.ErrFatal)
}

type rejectingOutputs struct{}

func (rejectingOutputs) File(name string) (string, error) {
	return "", fmt.Errorf("output %q already registered", name)
}

func TestTransform_OutputRejected(t *testing.T) {
	called := false
	a := transform.NewJarAnalyzer(transform.ScanFunc(func(context.Context, string, string) error {
		called = true
		return nil
	}))
	err := a.Transform(context.Background(), transform.FileLocation("/in/x.jar"), rejectingOutputs{})
	assert.Equal(t, transform.CodeOutputRejected, transform.CodeOf(err))
	assert.False(t, called)
}

func TestTransform_OutputCollision(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "archive.zip")
	require.NoError(t, os.WriteFile(input, []byte("keep me"), 0o644))

	a := newAnalyzer()
	err := a.Transform(context.Background(), transform.FileLocation(input), &dirOutputs{dir: dir})
	require.ErrorIs(t, err, transform.ErrOutputCollision)
	assert.Equal(t, transform.CodeOutputCollision, transform.CodeOf(err))

	data, err := os.ReadFile(input)
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(data))
}

func TestTransform_CanceledBeforeScan(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := transform.NewJarAnalyzer(transform.ScanFunc(func(context.Context, string, string) error {
		t.Fatal("scanner must not run after cancellation")
		return nil
	}))
	err := a.Transform(ctx, transform.FileLocation("/in/x.jar"), &dirOutputs{dir: t.TempDir()})
	assert.Equal(t, transform.CodeCanceled, transform.CodeOf(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTransform_CustomSuffixes(t *testing.T) {
	outputs := &dirOutputs{dir: t.TempDir()}
	a := &transform.JarAnalyzer{
		Scanner:          transform.ScanFunc(func(_ context.Context, _, out string) error { return os.WriteFile(out, nil, 0o644) }),
		ArchiveSuffix:    ".war",
		PropertiesSuffix: ".pkgs",
	}
	require.NoError(t, a.Transform(context.Background(), transform.FileLocation("/in/app.war"), outputs))
	assert.Equal(t, []string{"app.pkgs"}, outputs.names)
}

func TestTransform_ConcurrentInvocationsDoNotInterfere(t *testing.T) {
	inDir := t.TempDir()
	outDir := t.TempDir()
	a := newAnalyzer()
	outputs := &dirOutputs{dir: outDir}

	const n = 8
	for i := 0; i < n; i++ {
		writeJar(t, filepath.Join(inDir, fmt.Sprintf("lib-%d.jar", i)), fmt.Sprintf("pkg%d/C.class", i))
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := filepath.Join(inDir, fmt.Sprintf("lib-%d.jar", i))
			errs[i] = a.Transform(context.Background(), transform.FileLocation(in), outputs)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		data, err := os.ReadFile(filepath.Join(outDir, fmt.Sprintf("lib-%d.properties", i)))
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("packages=pkg%d\n", i), string(data))
	}
}

type collidingOutputs struct{}

func (collidingOutputs) File(name string) (string, error) {
	return "", fmt.Errorf("%w: %s", transform.ErrOutputCollision, name)
}

func TestTransform_HostReportedCollision(t *testing.T) {
	called := false
	a := transform.NewJarAnalyzer(transform.ScanFunc(func(context.Context, string, string) error {
		called = true
		return nil
	}))
	err := a.Transform(context.Background(), transform.FileLocation("/in/lib.zip"), collidingOutputs{})
	assert.Equal(t, transform.CodeOutputCollision, transform.CodeOf(err))
	assert.ErrorIs(t, err, transform.ErrOutputCollision)
	assert.False(t, called)
}

// partialScanner writes half an output into its own filesystem and fails.
type partialScanner struct {
	fs billy.Filesystem
}

func (s partialScanner) Scan(_ context.Context, _, outputPath string) error {
	if err := util.WriteFile(s.fs, outputPath, []byte("packages=half"), 0o644); err != nil {
		return err
	}
	return errors.New("disk full")
}

func (s partialScanner) Remove(path string) error { return s.fs.Remove(path) }

func TestTransform_FailureCleanupUsesScannerFilesystem(t *testing.T) {
	fsys := memfs.New()
	a := transform.NewJarAnalyzer(partialScanner{fs: fsys})

	err := a.Transform(context.Background(), transform.FileLocation("/in/lib.jar"), &dirOutputs{dir: "/out"})
	assert.Equal(t, transform.CodeScanFailed, transform.CodeOf(err))

	_, err = fsys.Stat("/out/lib.properties")
	assert.ErrorIs(t, err, os.ErrNotExist, "partial output must be removed from the scanner filesystem")
}
