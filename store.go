package stash

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/aweris/stash/internal/fsgate"
	"github.com/aweris/stash/internal/layout"
)

// Entry is one stored (key, kind) pair as read back from disk.
type Entry struct {
	Key  string
	Kind Kind
	Path string
	Data []byte
}

// Store is a named, budgeted partition of the registry root, realized as
// the directory root/<name>. Its directory may be deleted at any time; the
// store recreates it on the next write.
type Store struct {
	reg    *Registry
	name   string
	dir    string
	budget atomic.Int64
}

func newStore(r *Registry, name string, limit int64) *Store {
	s := &Store{
		reg:  r,
		name: name,
		dir:  layout.StoreDir(r.root, name),
	}
	s.budget.Store(limit)
	return s
}

func (s *Store) Name() string { return s.name }
func (s *Store) Dir() string  { return s.dir }

// Budget returns the store's byte budget. 0 is unlimited.
func (s *Store) Budget() int64 { return s.budget.Load() }

// SetBudget changes the store's byte budget. Existing entries are not
// evicted until the next write.
func (s *Store) SetBudget(bytes int64) {
	bytes = max(0, bytes)
	s.budget.Store(bytes)
	s.reg.log.Info("store budget updated", "store", s.name, "bytes", bytes)
}

// Size returns the size of the store's entries. It reports false when the
// store directory does not exist or cannot be read.
func (s *Store) Size() (int64, bool) {
	return s.reg.budgets.SizeOf(s.dir)
}

// Put writes data as the (key, kind) entry and returns its path. Room is
// made first in the store's budget, then in the aggregate budget, evicting
// least recently used entries as needed. A failure in the store's budget
// leaves the other stores untouched.
func (s *Store) Put(key string, kind Kind, data []byte) (string, error) {
	if err := s.validate(key); err != nil {
		return "", err
	}
	if !kind.Valid() {
		return "", fmt.Errorf("put %s: kind %d: %w", key, kind, ErrUnsupported)
	}
	size := int64(len(data))

	s.reg.rootMu.RLock()
	defer s.reg.rootMu.RUnlock()

	lock := s.reg.storeLock(s.name)
	lock.Lock()
	defer lock.Unlock()

	if err := s.reg.budgets.Reserve(s.dir, s.Budget(), size); err != nil {
		return "", fmt.Errorf("put %s in store %s: %w", key, s.name, err)
	}

	s.reg.aggMu.Lock()
	if s.reg.aggregate > 0 {
		defer s.reg.aggMu.Unlock()
		if err := s.reg.budgets.Reserve(s.reg.root, s.reg.aggregate, size); err != nil {
			return "", fmt.Errorf("put %s in aggregate: %w", key, err)
		}
	} else {
		s.reg.aggMu.Unlock()
	}

	if err := s.reg.fs.CreateDirectory(s.dir); err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	path := layout.Resolve(s.reg.root, s.name, key, kind)
	if err := s.reg.fs.Write(data, path); err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return path, nil
}

// Get returns the first entry for key in the order jpeg, png, video, audio,
// text. Reading refreshes the entry's access time.
func (s *Store) Get(key string) (Entry, error) {
	return s.GetKind(key, 0)
}

// GetKind is Get with kind tried before the fixed order.
func (s *Store) GetKind(key string, kind Kind) (Entry, error) {
	if err := s.validate(key); err != nil {
		return Entry{}, err
	}

	lock := s.reg.storeLock(s.name)
	lock.RLock()
	defer lock.RUnlock()

	for _, path := range layout.Candidates(s.reg.root, s.name, key, kind) {
		data, err := s.reg.fs.Read(path)
		if errors.Is(err, fsgate.ErrNotFound) {
			continue
		}
		if err != nil {
			return Entry{}, fmt.Errorf("get %s: %w", key, err)
		}

		found, _ := layout.KindOf(path)
		if kind.Valid() && path == layout.Resolve(s.reg.root, s.name, key, kind) {
			found = kind
		}
		return Entry{Key: key, Kind: found, Path: path, Data: data}, nil
	}
	return Entry{}, fmt.Errorf("get %s: %w", key, ErrFileNotFound)
}

// Delete removes the first entry for key in Get's lookup order. When a key
// holds entries of several kinds, each call removes one of them.
func (s *Store) Delete(key string) error {
	if err := s.validate(key); err != nil {
		return err
	}

	s.reg.rootMu.RLock()
	defer s.reg.rootMu.RUnlock()

	lock := s.reg.storeLock(s.name)
	lock.Lock()
	defer lock.Unlock()

	for _, path := range layout.Candidates(s.reg.root, s.name, key, 0) {
		if s.reg.fs.Exists(path) {
			if err := s.reg.fs.Delete(path); err != nil {
				return fmt.Errorf("delete %s: %w", key, err)
			}
			return nil
		}
	}
	return fmt.Errorf("delete %s: %w", key, ErrFileNotFound)
}

// DeleteStore removes the store's directory and all its entries.
func (s *Store) DeleteStore() error {
	if err := s.validateName(); err != nil {
		return err
	}

	s.reg.rootMu.RLock()
	defer s.reg.rootMu.RUnlock()

	lock := s.reg.storeLock(s.name)
	lock.Lock()
	defer lock.Unlock()

	if err := s.reg.fs.Delete(s.dir); err != nil {
		return fmt.Errorf("delete store %s: %w", s.name, err)
	}
	s.reg.log.Info("deleted store", "store", s.name)
	return nil
}

// validate rejects store names and keys that would escape the one-level
// layout.
func (s *Store) validate(key string) error {
	if err := s.validateName(); err != nil {
		return err
	}
	if !validSegment(key) {
		return fmt.Errorf("key %q: %w", key, ErrInvalidPath)
	}
	return nil
}

func (s *Store) validateName() error {
	if !validSegment(s.name) {
		return fmt.Errorf("store %q: %w", s.name, ErrInvalidPath)
	}
	return nil
}

func validSegment(v string) bool {
	if v == "" || v == "." || v == ".." {
		return false
	}
	return !strings.ContainsAny(v, `/\`) && filepath.Base(v) == v
}
