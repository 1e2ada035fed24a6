package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// CacheEntry is the stored result of a successful transform.
//
// Failed transforms are never cached: a scan failure is an I/O problem and
// must not be replayed as if it were a result.
type CacheEntry struct {
	// Hash identifies this cache entry.
	Hash ArtifactHash `json:"hash"`

	// InputName is the base name of the archive that produced the entry.
	InputName string `json:"input_name"`

	// OutputName is the registered output file name.
	OutputName string `json:"output_name"`

	// Content is the normalized output. It is stored outside metadata.json.
	Content []byte `json:"-"`
}

// Cache provides storage and retrieval of transform results.
//
// If an ArtifactHash has been seen before, the transform MUST NOT run again;
// the cached output is replayed exactly.
type Cache interface {
	// Has checks if a cache entry exists for the given hash.
	Has(hash ArtifactHash) (bool, error)

	// Get retrieves a cache entry by hash.
	// Returns nil if the entry does not exist.
	Get(hash ArtifactHash) (*CacheEntry, error)

	// Put stores a cache entry.
	Put(entry *CacheEntry) error
}

// FileCache implements Cache using the filesystem.
//
// Structure:
//
//	{CacheDir}/
//	  {hash[0:2]}/
//	    {hash}/
//	      metadata.json
//	      output.blob
type FileCache struct {
	// CacheDir is the root directory for cache storage.
	CacheDir string
}

// NewFileCache creates a new filesystem-based cache.
func NewFileCache(cacheDir string) *FileCache {
	return &FileCache{CacheDir: cacheDir}
}

// Has checks if a cache entry exists for the given hash.
func (c *FileCache) Has(hash ArtifactHash) (bool, error) {
	metadataPath := filepath.Join(c.entryPath(hash), "metadata.json")

	_, err := os.Stat(metadataPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("checking cache entry: %w", err)
	}
	return true, nil
}

// Get retrieves a cache entry by hash.
func (c *FileCache) Get(hash ArtifactHash) (*CacheEntry, error) {
	entryDir := c.entryPath(hash)

	data, err := os.ReadFile(filepath.Join(entryDir, "metadata.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading cache metadata: %w", err)
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("parsing cache metadata: %w", err)
	}
	if entry.Hash != hash {
		return nil, fmt.Errorf("cache entry %s: metadata hash mismatch (%s)", hash, entry.Hash)
	}

	content, err := os.ReadFile(filepath.Join(entryDir, "output.blob"))
	if err != nil {
		return nil, fmt.Errorf("reading cached output: %w", err)
	}
	entry.Content = content

	return &entry, nil
}

// Put stores a cache entry.
//
// The entry is written into a temp dir and renamed into place, so a crash
// never leaves a metadata.json without its blob at the canonical path.
// An existing complete entry for the same hash is kept.
func (c *FileCache) Put(entry *CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry is nil")
	}
	if entry.Hash == "" {
		return fmt.Errorf("cache entry hash is empty")
	}

	entryDir := c.entryPath(entry.Hash)
	parentDir := filepath.Dir(entryDir)

	// Ensure parent exists so temp dir is created on the same filesystem.
	if err := os.MkdirAll(parentDir, 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	tmpDir, err := os.MkdirTemp(parentDir, "tmp-entry-"+string(entry.Hash)+"-")
	if err != nil {
		return fmt.Errorf("creating temp cache entry dir: %w", err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		_ = os.RemoveAll(tmpDir)
	}()

	// Blob first, so metadata only appears after the blob succeeds.
	if err := writeFileAtomic(filepath.Join(tmpDir, "output.blob"), entry.Content, 0o644); err != nil {
		return fmt.Errorf("writing cached output: %w", err)
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling cache metadata: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(tmpDir, "metadata.json"), data, 0o644); err != nil {
		return fmt.Errorf("writing cache metadata: %w", err)
	}

	if err := os.Rename(tmpDir, entryDir); err != nil {
		// Another writer committed this hash first; entries for one hash
		// are identical.
		if ok, herr := c.Has(entry.Hash); herr == nil && ok {
			return nil
		}
		// A partial entry without metadata.json is a miss; replace it.
		_ = os.RemoveAll(entryDir)
		if err := os.Rename(tmpDir, entryDir); err != nil {
			return fmt.Errorf("committing cache entry: %w", err)
		}
	}
	committed = true
	return nil
}

// entryPath returns the directory path for a cache entry.
// Uses first 2 characters of hash as a prefix directory to avoid
// having too many entries in a single directory.
func (c *FileCache) entryPath(hash ArtifactHash) string {
	hashStr := string(hash)
	if len(hashStr) < 2 {
		return filepath.Join(c.CacheDir, hashStr)
	}
	return filepath.Join(c.CacheDir, hashStr[:2], hashStr)
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	tmp, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	_ = tmp.Sync() // best-effort durability
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// MemoryCache implements Cache using in-memory storage.
// Useful for testing and short-lived processes.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[ArtifactHash]*CacheEntry
}

// NewMemoryCache creates a new in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[ArtifactHash]*CacheEntry),
	}
}

// Has checks if a cache entry exists.
func (c *MemoryCache) Has(hash ArtifactHash) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, exists := c.entries[hash]
	return exists, nil
}

// Get retrieves a copy of a cache entry.
func (c *MemoryCache) Get(hash ArtifactHash) (*CacheEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, exists := c.entries[hash]
	if !exists {
		return nil, nil
	}
	return copyEntry(entry), nil
}

// Put stores a copy of entry.
func (c *MemoryCache) Put(entry *CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry is nil")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entry.Hash] = copyEntry(entry)
	return nil
}

// Len returns the number of stored entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func copyEntry(entry *CacheEntry) *CacheEntry {
	cp := *entry
	cp.Content = append([]byte(nil), entry.Content...)
	return &cp
}

// NoCache never stores anything. Every lookup is a miss.
type NoCache struct{}

func (NoCache) Has(ArtifactHash) (bool, error)        { return false, nil }
func (NoCache) Get(ArtifactHash) (*CacheEntry, error) { return nil, nil }
func (NoCache) Put(*CacheEntry) error                 { return nil }
