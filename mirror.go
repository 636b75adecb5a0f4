package stash

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"time"

	"github.com/aweris/stash/internal/layout"
	"github.com/aweris/stash/internal/mirror"
)

// Authenticator provides credentials for OCI registries.
type Authenticator = mirror.Authenticator

// MirrorOption configures Push and Pull.
type MirrorOption func(*mirror.Options)

// WithAuth sets registry credentials. Without it the Docker keychain is used.
func WithAuth(auth Authenticator) MirrorOption {
	return func(o *mirror.Options) { o.Auth = auth }
}

// WithInsecure allows plain HTTP registries.
func WithInsecure() MirrorOption {
	return func(o *mirror.Options) { o.Insecure = true }
}

// WithConcurrency sets the number of parallel layer transfers.
func WithConcurrency(n int) MirrorOption {
	return func(o *mirror.Options) {
		if n > 0 {
			o.Concurrency = n
		}
	}
}

// WithRetry sets how many times a registry round trip is attempted and the
// wait after the first failure, which doubles after each further one.
func WithRetry(attempts int, delay time.Duration) MirrorOption {
	return func(o *mirror.Options) {
		o.Attempts = attempts
		o.RetryDelay = delay
	}
}

func (s *Store) remote(ref string, opts []MirrorOption) (*mirror.Remote, error) {
	options := mirror.Options{Logger: s.reg.log}
	for _, opt := range opts {
		opt(&options)
	}
	return mirror.New(ref, options)
}

// Push uploads every entry of the store to the image ref. Access times are
// left untouched.
func (s *Store) Push(ctx context.Context, ref string, opts ...MirrorOption) error {
	if err := s.validateName(); err != nil {
		return err
	}
	r, err := s.remote(ref, opts)
	if err != nil {
		return err
	}

	entries, err := s.snapshot()
	if err != nil {
		return fmt.Errorf("push %s: %w", s.name, err)
	}
	if err := r.Push(ctx, s.name, entries); err != nil {
		return fmt.Errorf("push %s: %w", s.name, err)
	}
	return nil
}

func (s *Store) snapshot() (map[string][]byte, error) {
	lock := s.reg.storeLock(s.name)
	lock.RLock()
	defer lock.RUnlock()

	metas, err := s.reg.fs.ListMetadata(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string][]byte{}, nil
		}
		return nil, err
	}

	entries := make(map[string][]byte, len(metas))
	for _, meta := range metas {
		name := filepath.Base(meta.Path)
		if meta.IsDir || filepath.Dir(meta.Path) != s.dir {
			continue
		}
		if _, _, ok := layout.Split(name); !ok {
			continue
		}
		data, err := s.reg.fs.Peek(meta.Path)
		if errors.Is(err, ErrFileNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		entries[name] = data
	}
	return entries, nil
}

// Pull downloads the image ref and writes its entries into the store with
// Put, so both budgets apply. It returns the number of entries written;
// entries that could not be written are reported together in the error.
func (s *Store) Pull(ctx context.Context, ref string, opts ...MirrorOption) (int, error) {
	if err := s.validateName(); err != nil {
		return 0, err
	}
	r, err := s.remote(ref, opts)
	if err != nil {
		return 0, err
	}

	from, entries, err := r.Pull(ctx)
	if err != nil {
		return 0, fmt.Errorf("pull into %s: %w", s.name, err)
	}

	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	var written int
	var errs []error
	for _, name := range names {
		key, kind, ok := layout.Split(name)
		if !ok {
			errs = append(errs, fmt.Errorf("entry %s: %w", name, ErrInvalidPath))
			continue
		}
		if _, err := s.Put(key, kind, entries[name]); err != nil {
			errs = append(errs, err)
			continue
		}
		written++
	}

	s.reg.log.Info("pulled store", "store", s.name, "from", from, "entries", written)
	return written, errors.Join(errs...)
}
