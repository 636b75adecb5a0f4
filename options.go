package stash

import (
	"log/slog"
	"time"
)

// Options configures a Registry.
type Options struct {
	Root             string
	AggregateBudget  int64
	StoreBudget      int64 // negative: derive from the aggregate budget
	Logger           *slog.Logger
	Logging          bool
	Clock            func() time.Time
	Codec            Codec
	Compression      bool
	CompressionLevel int
}

// Option is a functional option for configuring NewRegistry.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		Root:        DefaultRoot(),
		StoreBudget: -1,
		Logging:     true,
		Clock:       time.Now,
	}
}

// WithRoot sets the directory all stores live under.
func WithRoot(dir string) Option {
	return func(o *Options) { o.Root = dir }
}

// WithAggregateBudget sets the byte budget shared by all stores. 0 means
// unlimited.
func WithAggregateBudget(bytes int64) Option {
	return func(o *Options) { o.AggregateBudget = max(0, bytes) }
}

// WithStoreBudget sets the budget given to stores opened without their
// own. By default stores inherit the aggregate budget in effect when they
// are opened.
func WithStoreBudget(bytes int64) Option {
	return func(o *Options) { o.StoreBudget = max(0, bytes) }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithLogging turns logging on or off.
func WithLogging(enabled bool) Option {
	return func(o *Options) { o.Logging = enabled }
}

// WithClock sets the time source used to stamp entry access times.
func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		if now != nil {
			o.Clock = now
		}
	}
}

// WithCodec replaces the default payload codec.
func WithCodec(c Codec) Option {
	return func(o *Options) { o.Codec = c }
}

// WithCompression makes the default codec zstd-compress text payloads.
// Levels run from 1 (fastest) to 3 (smallest).
func WithCompression(level int) Option {
	return func(o *Options) {
		o.Compression = true
		o.CompressionLevel = level
	}
}

// StoreOptions configures a single store.
type StoreOptions struct {
	Budget    int64
	HasBudget bool
}

// StoreOption is a functional option for configuring Registry.Open.
type StoreOption func(*StoreOptions)

// WithBudget sets the store's own byte budget. 0 means unlimited.
func WithBudget(bytes int64) StoreOption {
	return func(o *StoreOptions) {
		o.Budget = max(0, bytes)
		o.HasBudget = true
	}
}
