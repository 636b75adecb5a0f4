// Package fsgate implements the filesystem primitives the storage engine is
// built on: directory creation, atomic file writes, reads, recursive deletes
// and metadata listing with access and creation times.
//
// Every primitive reports failure as an error; nothing panics on expected
// conditions such as a missing file.
package fsgate

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("fsgate: file not found")
	ErrNotDirectory = errors.New("fsgate: path exists and is not a directory")
)

// Housekeeping lists platform artifacts that do not make a directory
// non-empty.
var Housekeeping = []string{".DS_Store", "Thumbs.db"}

const tempSuffix = ".tmp"

// Meta describes one entry found by ListMetadata. Zero times mean the
// platform did not report them.
type Meta struct {
	Path       string
	Size       int64
	IsDir      bool
	AccessTime time.Time
	CreatedAt  time.Time
}

// Recency is the eviction ordering key: last access, else creation, else
// the Unix epoch.
func (m Meta) Recency() time.Time {
	if !m.AccessTime.IsZero() {
		return m.AccessTime
	}
	if !m.CreatedAt.IsZero() {
		return m.CreatedAt
	}
	return time.Unix(0, 0)
}

// Gateway performs filesystem operations. It is safe for concurrent use;
// callers serialize mutations of the same paths.
type Gateway struct {
	log     *slog.Logger
	now     func() time.Time
	chtimes func(path string, atime, mtime time.Time) error
}

// New returns a Gateway logging to log and stamping access times with now.
func New(log *slog.Logger, now func() time.Time) *Gateway {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if now == nil {
		now = time.Now
	}
	return &Gateway{log: log, now: now, chtimes: os.Chtimes}
}

// CreateDirectory creates path and its parents. An existing directory is
// success; an existing non-directory is ErrNotDirectory.
func (g *Gateway) CreateDirectory(path string) error {
	info, err := os.Stat(path)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("create directory %s: %w", path, ErrNotDirectory)
		}
		return nil
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		g.log.Warn("create directory failed", "path", path, "err", err)
		return fmt.Errorf("create directory %s: %w", path, err)
	}
	g.log.Debug("created directory", "path", path)
	return nil
}

// Write replaces the content of path with data. The parent directory must
// already exist. The data lands under a temporary name first and is renamed
// into place, so readers never observe a partial file.
func (g *Gateway) Write(data []byte, path string) error {
	tmpPath := filepath.Join(filepath.Dir(path), "."+uuid.NewString()+tempSuffix)

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		g.log.Warn("write failed", "path", path, "err", err)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		g.log.Warn("write failed", "path", path, "err", err)
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	success = true

	// the entry is stored even if its times could not be refreshed
	if err := g.Touch(path); err != nil {
		g.log.Warn("refresh access time failed", "path", path, "err", err)
	}
	g.log.Debug("wrote file", "path", path, "bytes", len(data))
	return nil
}

// Read returns the content of path and refreshes its access time.
func (g *Gateway) Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", path, ErrNotFound)
		}
		g.log.Warn("read failed", "path", path, "err", err)
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := g.Touch(path); err != nil {
		g.log.Warn("refresh access time failed", "path", path, "err", err)
	}
	g.log.Debug("read file", "path", path, "bytes", len(data))
	return data, nil
}

// Peek returns the content of path without touching its access time.
func (g *Gateway) Peek(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// Touch stamps path as accessed now. Modification time is moved along with
// it so platforms without access-time reporting keep the same ordering.
func (g *Gateway) Touch(path string) error {
	now := g.now()
	if err := g.chtimes(path, now, now); err != nil {
		return fmt.Errorf("touch %s: %w", path, err)
	}
	return nil
}

// Delete removes a file, or a directory with all its descendants. A missing
// path is ErrNotFound, not success.
func (g *Gateway) Delete(path string) error {
	if _, err := os.Lstat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("delete %s: %w", path, ErrNotFound)
		}
		return fmt.Errorf("delete %s: %w", path, err)
	}
	if err := os.RemoveAll(path); err != nil {
		g.log.Warn("delete failed", "path", path, "err", err)
		return fmt.Errorf("delete %s: %w", path, err)
	}
	g.log.Debug("deleted", "path", path)
	return nil
}

// Exists reports whether path exists.
func (g *Gateway) Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// ListMetadata returns every entry below dir, directories included, in
// lexical walk order. dir itself is not listed. A missing dir yields an
// error matching fs.ErrNotExist. Entries removed while the walk is running
// are skipped.
func (g *Gateway) ListMetadata(dir string) ([]Meta, error) {
	var metas []Meta
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path != dir && errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if path == dir {
			if !d.IsDir() {
				return ErrNotDirectory
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}

		atime, btime := fileTimes(path, info)
		m := Meta{
			Path:       path,
			IsDir:      d.IsDir(),
			AccessTime: atime,
			CreatedAt:  btime,
		}
		if !m.IsDir {
			m.Size = info.Size()
		}
		metas = append(metas, m)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	return metas, nil
}

// Subdirectories returns the immediate child directories of dir.
func (g *Gateway) Subdirectories(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(dir, e.Name()))
		}
	}
	return dirs, nil
}

// IsEmpty reports whether dir has no entries other than a single
// housekeeping artifact. An unreadable dir is an error, not false.
func (g *Gateway) IsEmpty(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, fmt.Errorf("read directory %s: %w", dir, err)
	}
	switch len(entries) {
	case 0:
		return true, nil
	case 1:
		return slices.Contains(Housekeeping, entries[0].Name()), nil
	default:
		return false, nil
	}
}
