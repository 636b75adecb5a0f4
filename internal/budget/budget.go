// Package budget enforces byte budgets on directories by evicting the least
// recently used files.
//
// A budget of 0 means unlimited. No single write may reach the budget: a
// request of budget bytes or more fails even against an empty directory.
package budget

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"github.com/aweris/stash/internal/fsgate"
)

var (
	ErrFileTooLarge      = errors.New("budget: file too large")
	ErrBudgetExceeded    = errors.New("budget: budget exceeded after eviction")
	ErrDirectoryNotFound = errors.New("budget: directory not found")
)

// TooLargeError reports a request that can never fit the budget.
type TooLargeError struct {
	Limit     int64
	Requested int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("budget: file size %d reaches the maximum limit %d", e.Requested, e.Limit)
}

func (e *TooLargeError) Is(target error) bool { return target == ErrFileTooLarge }

// EvictionError reports that eviction could not make room for a request.
// It carries everything an operator needs to act on it.
type EvictionError struct {
	Directory   string
	Limit       int64
	Available   int64
	Requested   int64
	Deleted     []string
	Undeletable []string
}

func (e *EvictionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "budget: could not free space in %s (limit %d, available %d, requested %d)",
		e.Directory, e.Limit, e.Available, e.Requested)
	if len(e.Deleted) > 0 {
		fmt.Fprintf(&b, "; deleted: %s", strings.Join(e.Deleted, ", "))
	}
	if len(e.Undeletable) > 0 {
		fmt.Fprintf(&b, "; failed to delete: %s", strings.Join(e.Undeletable, ", "))
	}
	return b.String()
}

func (e *EvictionError) Is(target error) bool { return target == ErrBudgetExceeded }

// Filesystem is the subset of the gateway the manager needs.
type Filesystem interface {
	ListMetadata(dir string) ([]fsgate.Meta, error)
	Delete(path string) error
}

// Manager reserves space in budgeted directories. It does not lock; callers
// hold the mutual-exclusion domain of the directory across Reserve and the
// write that follows it.
type Manager struct {
	fs  Filesystem
	log *slog.Logger
}

// New returns a Manager evicting through fsys.
func New(fsys Filesystem, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Manager{fs: fsys, log: log}
}

// Reserve makes room for requested bytes in dir under limit, evicting the
// least recently used files when needed. It deletes no more files than the
// request requires. A dir that does not exist yet is empty.
func (m *Manager) Reserve(dir string, limit, requested int64) error {
	if limit <= 0 {
		return nil
	}
	if requested >= limit {
		return &TooLargeError{Limit: limit, Requested: requested}
	}

	metas, err := m.list(dir)
	if err != nil {
		return err
	}

	available := limit - total(metas)
	if available >= requested {
		return nil
	}

	m.log.Info("not enough free space, evicting",
		"dir", dir, "limit", limit, "available", available, "requested", requested)

	candidates := make([]fsgate.Meta, 0, len(metas))
	for _, meta := range metas {
		if !meta.IsDir {
			candidates = append(candidates, meta)
		}
	}
	// most recently used first; the tail is evicted first
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Recency().After(candidates[j].Recency())
	})

	var deleted, undeletable []string
	for available < requested && len(candidates) > 0 {
		victim := candidates[len(candidates)-1]
		candidates = candidates[:len(candidates)-1]

		if err := m.fs.Delete(victim.Path); err != nil {
			if errors.Is(err, fsgate.ErrNotFound) {
				// removed since listing, e.g. by an eviction in another store
				available += victim.Size
				continue
			}
			m.log.Warn("evict failed", "path", victim.Path, "err", err)
			undeletable = append(undeletable, victim.Path)
			continue
		}
		available += victim.Size
		deleted = append(deleted, victim.Path)
		m.log.Debug("evicted", "path", victim.Path, "bytes", victim.Size)
	}

	if available >= requested {
		m.log.Info("eviction freed enough space", "dir", dir, "evicted", len(deleted))
		return nil
	}

	evictErr := &EvictionError{
		Directory:   dir,
		Limit:       limit,
		Available:   available,
		Requested:   requested,
		Deleted:     deleted,
		Undeletable: undeletable,
	}
	m.log.Error("eviction could not satisfy request", "err", evictErr)
	return evictErr
}

// SizeOf returns the total size of the files below dir. It reports false
// when dir cannot be enumerated, including when it does not exist yet.
func (m *Manager) SizeOf(dir string) (int64, bool) {
	metas, err := m.fs.ListMetadata(dir)
	if err != nil {
		return 0, false
	}
	return total(metas), true
}

func (m *Manager) list(dir string) ([]fsgate.Meta, error) {
	metas, err := m.fs.ListMetadata(dir)
	if err == nil {
		return metas, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrDirectoryNotFound, err)
}

func total(metas []fsgate.Meta) int64 {
	var size int64
	for _, meta := range metas {
		if !meta.IsDir {
			size += meta.Size
		}
	}
	return size
}
