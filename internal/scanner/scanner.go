// Package scanner reads Java archives and records which packages they contain.
//
// The result of a scan is a properties file with a single key:
//
//	packages=com.example.api,com.example.impl
//
// Package names are derived from the parent directory of every class entry
// outside META-INF/, sorted and de-duplicated so that the output only depends
// on the archive content.
package scanner

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/magiconair/properties"
)

const (
	// PackagesKey is the properties key holding the comma separated package list.
	PackagesKey = "packages"

	// SchemaVersion identifies the layout of the written properties file.
	// It participates in cache keys; bump it when the output format changes.
	SchemaVersion = "1"

	// TimestampLayout matches java.util.Date#toString, which is what
	// java.util.Properties#store writes as its date comment.
	TimestampLayout = "Mon Jan 02 15:04:05 MST 2006"
)

// Options controls how the properties file is written.
type Options struct {
	// Header is written as a leading comment when non-empty.
	Header string

	// Timestamp adds a date comment line after the header.
	Timestamp bool

	// Now is used for the timestamp comment. Defaults to time.Now.
	Now func() time.Time
}

// Scanner scans archives on a billy filesystem.
type Scanner struct {
	FS      billy.Filesystem
	Options Options
}

// New creates a Scanner over fsys.
func New(fsys billy.Filesystem, opts Options) *Scanner {
	return &Scanner{FS: fsys, Options: opts}
}

// ScanJar scans the archive at inputPath and writes its package list to
// outputPath using default options.
func ScanJar(fsys billy.Filesystem, inputPath, outputPath string) error {
	return New(fsys, Options{}).Scan(context.Background(), inputPath, outputPath)
}

// Remove deletes path from the scanner's filesystem. A missing file is not
// an error.
func (s *Scanner) Remove(path string) error {
	if err := s.FS.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Scan reads the archive at inputPath and writes the properties file to
// outputPath. The output is written atomically: on error nothing is left at
// outputPath.
func (s *Scanner) Scan(ctx context.Context, inputPath, outputPath string) error {
	if s == nil || s.FS == nil {
		return fmt.Errorf("scanner: filesystem is nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	pkgs, err := Packages(s.FS, inputPath)
	if err != nil {
		return err
	}

	data, err := Encode(pkgs, s.Options)
	if err != nil {
		return fmt.Errorf("scanner: encoding %q: %w", outputPath, err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := writeAtomic(s.FS, outputPath, data); err != nil {
		return fmt.Errorf("scanner: writing %q: %w", outputPath, err)
	}
	return nil
}

// Packages returns the sorted set of packages that contain at least one class
// in the archive at archivePath.
func Packages(fsys billy.Filesystem, archivePath string) ([]string, error) {
	info, err := fsys.Stat(archivePath)
	if err != nil {
		return nil, fmt.Errorf("scanner: stat %q: %w", archivePath, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("scanner: %q is a directory", archivePath)
	}

	f, err := fsys.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("scanner: open %q: %w", archivePath, err)
	}
	defer f.Close()

	zr, err := zip.NewReader(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("scanner: reading archive %q: %w", archivePath, err)
	}

	set := make(map[string]struct{})
	for _, entry := range zr.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		if pkg, ok := packageOf(entry.Name); ok {
			set[pkg] = struct{}{}
		}
	}

	pkgs := make([]string, 0, len(set))
	for p := range set {
		pkgs = append(pkgs, p)
	}
	sort.Strings(pkgs)
	return pkgs, nil
}

// packageOf maps an archive entry name to its Java package.
// Entries outside class files, under META-INF/, or in the default package
// yield ok=false.
func packageOf(name string) (string, bool) {
	name = strings.TrimPrefix(path.Clean("/"+filepath.ToSlash(name)), "/")
	if !strings.HasSuffix(name, ".class") {
		return "", false
	}
	if name == "META-INF" || strings.HasPrefix(name, "META-INF/") {
		return "", false
	}
	dir := path.Dir(name)
	if dir == "." || dir == "" {
		return "", false
	}
	return strings.ReplaceAll(dir, "/", "."), true
}

// Encode renders pkgs in the properties format.
func Encode(pkgs []string, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	if opts.Header != "" {
		for _, line := range strings.Split(opts.Header, "\n") {
			buf.WriteString("#" + line + "\n")
		}
	}
	if opts.Timestamp {
		now := time.Now
		if opts.Now != nil {
			now = opts.Now
		}
		buf.WriteString("#" + now().Format(TimestampLayout) + "\n")
	}

	p := properties.NewProperties()
	p.WriteSeparator = "="
	if _, _, err := p.Set(PackagesKey, strings.Join(pkgs, ",")); err != nil {
		return nil, err
	}
	if _, err := p.Write(&buf, properties.ISO_8859_1); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses a properties file produced by Encode and returns its package list.
func Decode(data []byte) ([]string, error) {
	p, err := properties.Load(data, properties.ISO_8859_1)
	if err != nil {
		return nil, fmt.Errorf("scanner: parsing properties: %w", err)
	}
	raw, ok := p.Get(PackagesKey)
	if !ok {
		return nil, fmt.Errorf("scanner: missing %q key", PackagesKey)
	}
	if raw == "" {
		return []string{}, nil
	}
	return strings.Split(raw, ","), nil
}

// ReadPackages reads the properties file at path and returns its package list.
func ReadPackages(fsys billy.Filesystem, path string) ([]string, error) {
	data, err := util.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("scanner: reading %q: %w", path, err)
	}
	return Decode(data)
}

func writeAtomic(fsys billy.Filesystem, target string, data []byte) error {
	dir := filepath.Dir(target)
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := util.TempFile(fsys, dir, "."+filepath.Base(target)+".tmp-")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if committed {
			return
		}
		_ = tmp.Close()
		_ = fsys.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	// Temp files are created 0600.
	if ch, ok := fsys.(billy.Change); ok {
		if err := ch.Chmod(tmpName, 0o644); err != nil {
			return err
		}
	}
	if err := fsys.Rename(tmpName, target); err != nil {
		return err
	}
	committed = true
	return nil
}
