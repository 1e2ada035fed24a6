package scanner

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildJar(t *testing.T, names ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, n := range names {
		w, err := zw.Create(n)
		require.NoError(t, err)
		_, err = w.Write([]byte("content of " + n))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func writeJar(t *testing.T, fsys billy.Filesystem, path string, names ...string) {
	t.Helper()
	require.NoError(t, util.WriteFile(fsys, path, buildJar(t, names...), 0o644))
}

func TestPackages_CollectsClassDirectories(t *testing.T) {
	fsys := memfs.New()
	writeJar(t, fsys, "/in/library-1.0.jar",
		"META-INF/MANIFEST.MF",
		"META-INF/versions/9/com/example/api/Api.class",
		"com/example/api/Api.class",
		"com/example/api/Api$Inner.class",
		"com/example/impl/Impl.class",
		"com/example/impl/resources/config.txt",
		"module-info.class",
		"org/other/",
	)

	pkgs, err := Packages(fsys, "/in/library-1.0.jar")
	require.NoError(t, err)
	assert.Equal(t, []string{"com.example.api", "com.example.impl"}, pkgs)
}

func TestPackages_EmptyArchive(t *testing.T) {
	fsys := memfs.New()
	writeJar(t, fsys, "/in/empty.jar")

	pkgs, err := Packages(fsys, "/in/empty.jar")
	require.NoError(t, err)
	assert.Empty(t, pkgs)
}

func TestPackageOf(t *testing.T) {
	cases := []struct {
		name string
		pkg  string
		ok   bool
	}{
		{"com/acme/Foo.class", "com.acme", true},
		{"/com/acme/Foo.class", "com.acme", true},
		{"Foo.class", "", false},
		{"META-INF/Foo.class", "", false},
		{"com/acme/Foo.java", "", false},
		{"com/acme/package-info.class", "com.acme", true},
	}
	for _, tc := range cases {
		pkg, ok := packageOf(tc.name)
		assert.Equal(t, tc.ok, ok, tc.name)
		assert.Equal(t, tc.pkg, pkg, tc.name)
	}
}

func TestScanJar_WritesProperties(t *testing.T) {
	fsys := memfs.New()
	writeJar(t, fsys, "/in/library-1.0.jar", "b/B.class", "a/A.class", "a/A2.class")

	require.NoError(t, ScanJar(fsys, "/in/library-1.0.jar", "/out/library-1.0.properties"))

	data, err := util.ReadFile(fsys, "/out/library-1.0.properties")
	require.NoError(t, err)
	assert.Equal(t, "packages=a,b\n", string(data))

	pkgs, err := ReadPackages(fsys, "/out/library-1.0.properties")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, pkgs)
}

func TestScan_HeaderAndTimestamp(t *testing.T) {
	fsys := memfs.New()
	writeJar(t, fsys, "/in/x.jar", "x/X.class")

	fixed := time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)
	s := New(fsys, Options{Header: "generated by jarscan", Timestamp: true, Now: func() time.Time { return fixed }})
	require.NoError(t, s.Scan(context.Background(), "/in/x.jar", "/out/x.properties"))

	data, err := util.ReadFile(fsys, "/out/x.properties")
	require.NoError(t, err)
	assert.Equal(t, "#generated by jarscan\n#Sat Oct 17 09:30:00 UTC 2026\npackages=x\n", string(data))

	pkgs, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, pkgs)
}

func TestScan_InvalidArchiveLeavesNoOutput(t *testing.T) {
	fsys := memfs.New()
	require.NoError(t, util.WriteFile(fsys, "/in/broken.jar", []byte("not a zip"), 0o644))

	err := ScanJar(fsys, "/in/broken.jar", "/out/broken.properties")
	require.Error(t, err)

	_, statErr := fsys.Stat("/out/broken.properties")
	assert.Error(t, statErr)
}

func TestScan_MissingInput(t *testing.T) {
	fsys := memfs.New()
	err := ScanJar(fsys, "/in/missing.jar", "/out/missing.properties")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.jar")
}

func TestScan_CanceledContext(t *testing.T) {
	fsys := memfs.New()
	writeJar(t, fsys, "/in/x.jar", "x/X.class")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New(fsys, Options{}).Scan(ctx, "/in/x.jar", "/out/x.properties")
	require.ErrorIs(t, err, context.Canceled)

	_, statErr := fsys.Stat("/out/x.properties")
	assert.Error(t, statErr)
}

func TestDecode_MissingKey(t *testing.T) {
	_, err := Decode([]byte("other=1\n"))
	require.Error(t, err)

	pkgs, err := Decode([]byte("packages=\n"))
	require.NoError(t, err)
	assert.Empty(t, pkgs)
}

func TestRemove(t *testing.T) {
	fsys := memfs.New()
	require.NoError(t, util.WriteFile(fsys, "/out/a.properties", []byte("packages=a\n"), 0o644))
	s := New(fsys, Options{})

	require.NoError(t, s.Remove("/out/a.properties"))
	_, err := fsys.Stat("/out/a.properties")
	assert.Error(t, err)

	assert.NoError(t, s.Remove("/out/a.properties"), "removing a missing file is not an error")
}
