package staging

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"creator-bridge/internal/bridge"
)

// Area is a directory of downloaded media, one file per record.
//
// Directory structure:
//
//	<staging_dir>/
//	  <record_id>          (complete download)
//	  <record_id>-*.part   (download in progress)
type Area struct {
	dir       string
	maxSize   int64
	ephemeral bool
	mu        sync.Mutex
}

var _ bridge.StagingArea = (*Area)(nil)

// NewArea creates a staging area rooted at dir. Downloads larger than
// maxSize bytes are rejected; maxSize must be positive.
func NewArea(dir string, maxSize int64) (*Area, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("staging max size must be positive, got %d", maxSize)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	return &Area{dir: dir, maxSize: maxSize}, nil
}

// NewTempArea creates a staging area in a fresh temporary directory that
// Close removes.
func NewTempArea(maxSize int64) (*Area, error) {
	dir, err := os.MkdirTemp("", "bridge-staging-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp staging directory: %w", err)
	}
	a, err := NewArea(dir, maxSize)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	a.ephemeral = true
	return a, nil
}

// Dir returns the root directory.
func (a *Area) Dir() string { return a.dir }

// Store streams r to disk while computing its SHA-256. The file only
// appears under its final name once it is complete.
func (a *Area) Store(recordID string, r io.Reader) (*bridge.MediaFile, error) {
	name, err := fileName(recordID)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(a.dir, name+"-*.part")
	if err != nil {
		return nil, fmt.Errorf("creating staging file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), io.LimitReader(r, a.maxSize+1))
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("writing staging file: %w", err)
	}
	if n > a.maxSize {
		cleanup()
		return nil, bridge.Permanent(fmt.Errorf("%w: larger than %d bytes", bridge.ErrInvalidMedia, a.maxSize))
	}
	if n == 0 {
		cleanup()
		return nil, bridge.Permanent(fmt.Errorf("%w: empty download", bridge.ErrInvalidMedia))
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return nil, fmt.Errorf("syncing staging file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("closing staging file: %w", err)
	}

	final := filepath.Join(a.dir, name)
	a.mu.Lock()
	err = os.Rename(tmpPath, final)
	a.mu.Unlock()
	if err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("finalizing staging file: %w", err)
	}

	return &bridge.MediaFile{
		LocalPath: final,
		Checksum:  hex.EncodeToString(h.Sum(nil)),
		FileSize:  n,
	}, nil
}

// Verify re-hashes the file at m.LocalPath and compares it with m.
func (a *Area) Verify(m bridge.MediaFile) bool {
	if m.LocalPath == "" || m.Checksum == "" || !a.owns(m.LocalPath) {
		return false
	}
	f, err := os.Open(m.LocalPath)
	if err != nil {
		return false
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return false
	}
	return n == m.FileSize && hex.EncodeToString(h.Sum(nil)) == m.Checksum
}

// Remove deletes a staged file. Paths outside the area are refused.
func (a *Area) Remove(path string) error {
	if path == "" {
		return nil
	}
	if !a.owns(path) {
		return fmt.Errorf("refusing to remove %s: outside staging area %s", path, a.dir)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing staged file: %w", err)
	}
	return nil
}

// Size returns the total bytes of every file in the area, partial downloads included.
func (a *Area) Size() (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return 0, fmt.Errorf("reading staging directory: %w", err)
	}
	var total int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}

// Prune removes complete and partial files whose record id keep rejects.
func (a *Area) Prune(keep func(recordID string) bool) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return 0, fmt.Errorf("reading staging directory: %w", err)
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if keep(recordOf(e.Name())) {
			continue
		}
		path := filepath.Join(a.dir, e.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("removing %s: %w", path, err)
		}
		removed++
	}
	return removed, nil
}

// Close removes the directory of a temporary area. It is a no-op otherwise.
func (a *Area) Close() error {
	if !a.ephemeral {
		return nil
	}
	return os.RemoveAll(a.dir)
}

func (a *Area) owns(path string) bool {
	rel, err := filepath.Rel(a.dir, filepath.Clean(path))
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..") && !strings.ContainsRune(rel, filepath.Separator)
}

// recordOf maps a file name back to its record id. Partial downloads are
// named <record_id>-<random>.part.
func recordOf(name string) string {
	base, ok := strings.CutSuffix(name, ".part")
	if !ok {
		return name
	}
	if i := strings.LastIndexByte(base, '-'); i > 0 {
		return base[:i]
	}
	return ""
}

func fileName(recordID string) (string, error) {
	if recordID == "" || recordID != filepath.Base(recordID) || strings.HasPrefix(recordID, ".") {
		return "", fmt.Errorf("invalid record id for staging: %q", recordID)
	}
	return recordID, nil
}
