package stash

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/aweris/stash/internal/budget"
	"github.com/aweris/stash/internal/compression"
	"github.com/aweris/stash/internal/fsgate"
)

// DefaultStoreName is the name of the shared store returned by Default.
const DefaultStoreName = "default"

// cleanupConcurrency bounds the goroutines inspecting store directories.
const cleanupConcurrency = 4

// Registry owns a root directory, the names of the stores opened under it
// and the aggregate budget they share.
//
// Each store name has its own lock covering reserve, write and delete in
// that store. A second, registry-wide lock covers aggregate reservation and
// the write that follows it. Every mutation also holds the root lock shared,
// which DeleteEverything takes exclusively. Locks are always taken root
// first, then store, then aggregate.
type Registry struct {
	root    string
	fs      *fsgate.Gateway
	budgets *budget.Manager
	codec   Codec
	log     *slog.Logger

	rootMu sync.RWMutex

	mu           sync.Mutex
	names        map[string]struct{}
	locks        map[string]*sync.RWMutex
	storeBudget  int64
	defaultStore *Store

	aggMu     sync.Mutex
	aggregate int64
}

// NewRegistry creates a registry. Nothing touches the disk until the first
// write; root and store directories are created lazily.
func NewRegistry(opts ...Option) (*Registry, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	if options.Root == "" {
		return nil, fmt.Errorf("root: %w", ErrInvalidPath)
	}
	root, err := filepath.Abs(options.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	log := options.Logger
	if log == nil {
		log = slog.Default()
	}
	if !options.Logging {
		log = slog.New(slog.DiscardHandler)
	}

	codec := options.Codec
	if codec == nil {
		compressor, err := compression.NewCompressor(options.CompressionLevel, options.Compression)
		if err != nil {
			return nil, fmt.Errorf("create compressor: %w", err)
		}
		codec = &defaultCodec{compressor: compressor}
	}

	gw := fsgate.New(log, options.Clock)
	return &Registry{
		root:        root,
		fs:          gw,
		budgets:     budget.New(gw, log),
		codec:       codec,
		log:         log,
		names:       make(map[string]struct{}),
		locks:       make(map[string]*sync.RWMutex),
		storeBudget: options.StoreBudget,
		aggregate:   options.AggregateBudget,
	}, nil
}

// Root returns the directory all stores live under.
func (r *Registry) Root() string { return r.root }

// Open returns a store named name. A blank or already open name yields
// ErrBlankStoreName or ErrDuplicateStoreName together with a usable store:
// the condition is a warning, not a failure. Stores sharing a name share a
// directory and therefore see the same entries.
func (r *Registry) Open(name string, opts ...StoreOption) (*Store, error) {
	var options StoreOptions
	for _, opt := range opts {
		opt(&options)
	}

	limit := options.Budget
	if !options.HasBudget {
		limit = r.inheritedBudget()
	}

	s := newStore(r, name, limit)
	err := r.register(name)
	if err != nil {
		r.log.Warn("store name may collide with another store", "store", name, "err", err)
	}
	return s, err
}

// Default returns the shared store named "default", creating it on first
// use. Its budget follows the aggregate budget.
func (r *Registry) Default() *Store {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.defaultStore == nil {
		r.defaultStore = newStore(r, DefaultStoreName, r.AggregateBudget())
		r.names[DefaultStoreName] = struct{}{}
	}
	return r.defaultStore
}

func (r *Registry) register(name string) error {
	if name == "" {
		return ErrBlankStoreName
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.names[name]; dup {
		return fmt.Errorf("%w: %q", ErrDuplicateStoreName, name)
	}
	r.names[name] = struct{}{}
	return nil
}

func (r *Registry) inheritedBudget() int64 {
	r.mu.Lock()
	storeBudget := r.storeBudget
	r.mu.Unlock()

	if storeBudget >= 0 {
		return storeBudget
	}
	return r.AggregateBudget()
}

// storeLock returns the lock of the store directory called name.
func (r *Registry) storeLock(name string) *sync.RWMutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.locks[name]
	if !ok {
		l = &sync.RWMutex{}
		r.locks[name] = l
	}
	return l
}

// AggregateBudget returns the budget shared by all stores. 0 is unlimited.
func (r *Registry) AggregateBudget() int64 {
	r.aggMu.Lock()
	defer r.aggMu.Unlock()
	return r.aggregate
}

// SetAggregateBudget changes the budget shared by all stores, gives the
// default store the same budget and removes store directories left empty.
func (r *Registry) SetAggregateBudget(bytes int64) error {
	bytes = max(0, bytes)

	r.aggMu.Lock()
	r.aggregate = bytes
	r.aggMu.Unlock()
	r.log.Info("aggregate budget updated", "bytes", bytes)

	r.Default().SetBudget(bytes)
	return r.Cleanup()
}

// AggregateSize returns the size of all entries of all stores. It reports
// false when the root cannot be enumerated, e.g. before the first write.
func (r *Registry) AggregateSize() (int64, bool) {
	return r.budgets.SizeOf(r.root)
}

// Cleanup deletes store directories that hold no entries. A missing root
// is already clean.
func (r *Registry) Cleanup() error {
	dirs, err := r.fs.Subdirectories(r.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("cleanup: %w", err)
	}

	p := pool.New().WithErrors().WithMaxGoroutines(cleanupConcurrency)
	for _, dir := range dirs {
		p.Go(func() error {
			return r.removeIfEmpty(dir)
		})
	}
	if err := p.Wait(); err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}
	return nil
}

func (r *Registry) removeIfEmpty(dir string) error {
	r.rootMu.RLock()
	defer r.rootMu.RUnlock()

	lock := r.storeLock(filepath.Base(dir))
	lock.Lock()
	defer lock.Unlock()

	empty, err := r.fs.IsEmpty(dir)
	if err != nil {
		r.log.Warn("cannot inspect store directory", "dir", dir, "err", err)
		return nil
	}
	if !empty {
		return nil
	}
	r.log.Info("removing empty store directory", "dir", dir)
	return r.fs.Delete(dir)
}

// DeleteEverything removes the root directory with every store and entry
// in it. Open stores stay usable and recreate their directory on the next
// write.
func (r *Registry) DeleteEverything() error {
	r.rootMu.Lock()
	defer r.rootMu.Unlock()

	if err := r.fs.Delete(r.root); err != nil {
		return fmt.Errorf("delete everything: %w", err)
	}
	r.log.Info("deleted all stores", "root", r.root)
	return nil
}

// Close releases resources held by the codec.
func (r *Registry) Close() error {
	if c, ok := r.codec.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
