// Package mirror copies the entries of a store to and from an OCI registry.
//
// A store is pushed as one image. Entries are grouped by extension, packed
// into zstd layers, and the image config records the store name:
//
//	labels:
//	  dev.stash.store:   <store name>
//	  dev.stash.entries: <entry count>
//
// Pulling returns the entries by file name; writing them back is left to
// the caller so budgets are enforced on the way in.
package mirror

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/types"
	"github.com/klauspost/compress/zstd"
	"github.com/sourcegraph/conc/pool"
)

const (
	DefaultConcurrency = 4
	DefaultAttempts    = 3
	DefaultRetryDelay  = 500 * time.Millisecond

	labelStore   = "dev.stash.store"
	labelEntries = "dev.stash.entries"
)

// Authenticator provides credentials for a registry host. Empty
// credentials fall back to the Docker keychain.
type Authenticator interface {
	Authenticate(registry string) (username, password string, err error)
}

// Options configures a Remote.
type Options struct {
	Auth        Authenticator
	Concurrency int
	Insecure    bool
	Logger      *slog.Logger

	// Attempts bounds registry round trips per push or fetch. RetryDelay is
	// the wait after the first failure and doubles after each further one.
	Attempts   int
	RetryDelay time.Duration
}

// Remote is one image reference in an OCI registry.
type Remote struct {
	ref         name.Reference
	auth        Authenticator
	concurrency int
	retry       retryPolicy
	log         *slog.Logger
}

// New parses ref (e.g. "ghcr.io/acme/stash/avatars:main").
func New(ref string, opts Options) (*Remote, error) {
	nameOpts := []name.Option{name.WithDefaultTag("latest")}
	if opts.Insecure {
		nameOpts = append(nameOpts, name.Insecure)
	}
	parsed, err := name.ParseReference(ref, nameOpts...)
	if err != nil {
		return nil, fmt.Errorf("invalid image ref %q: %w", ref, err)
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	policy := retryPolicy{attempts: opts.Attempts, delay: opts.RetryDelay}
	if policy.attempts <= 0 {
		policy.attempts = DefaultAttempts
	}
	if policy.delay <= 0 {
		policy.delay = DefaultRetryDelay
	}
	return &Remote{ref: parsed, auth: opts.Auth, concurrency: concurrency, retry: policy, log: log}, nil
}

func (r *Remote) String() string   { return r.ref.String() }
func (r *Remote) Registry() string { return r.ref.Context().RegistryStr() }

// entryLayer is one packed group of entries as a zstd OCI layer. Digests
// are computed once, when the layer is built.
type entryLayer struct {
	packed []byte
	blob   []byte
	digest v1.Hash
	diffID v1.Hash
}

var layerEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))

func newEntryLayer(packed []byte) (*entryLayer, error) {
	blob := layerEncoder.EncodeAll(packed, nil)
	digest, _, err := v1.SHA256(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("digest layer: %w", err)
	}
	diffID, _, err := v1.SHA256(bytes.NewReader(packed))
	if err != nil {
		return nil, fmt.Errorf("digest layer content: %w", err)
	}
	return &entryLayer{packed: packed, blob: blob, digest: digest, diffID: diffID}, nil
}

func (l *entryLayer) Digest() (v1.Hash, error)             { return l.digest, nil }
func (l *entryLayer) DiffID() (v1.Hash, error)             { return l.diffID, nil }
func (l *entryLayer) Size() (int64, error)                 { return int64(len(l.blob)), nil }
func (l *entryLayer) MediaType() (types.MediaType, error)  { return types.OCILayerZStd, nil }
func (l *entryLayer) Compressed() (io.ReadCloser, error)   { return reader(l.blob), nil }
func (l *entryLayer) Uncompressed() (io.ReadCloser, error) { return reader(l.packed), nil }

func reader(b []byte) io.ReadCloser { return io.NopCloser(bytes.NewReader(b)) }

// Push uploads entries, keyed by file name, as the image of store.
func (r *Remote) Push(ctx context.Context, store string, entries map[string][]byte) error {
	groups := GroupByExt(entries)
	plan := BuildLayerPlan(GroupSizes(groups))

	layers := make([]v1.Layer, 0, len(plan))
	var totalRaw, totalCompressed int64
	for _, names := range plan {
		data, err := PackLayer(CollectGroups(names, groups))
		if err != nil {
			return fmt.Errorf("pack layer: %w", err)
		}
		layer, err := newEntryLayer(data)
		if err != nil {
			return err
		}
		totalRaw += int64(len(data))
		totalCompressed += int64(len(layer.blob))
		layers = append(layers, layer)
	}

	r.log.Info("pushing store",
		"store", store, "ref", r.String(), "entries", len(entries), "layers", len(layers),
		"bytes", totalRaw, "compressed", totalCompressed)

	img, err := r.buildImage(layers, store, len(entries))
	if err != nil {
		return fmt.Errorf("build image: %w", err)
	}

	options := append(r.remoteOptions(ctx), remote.WithJobs(r.concurrency))
	_, err = retryDo(ctx, r.retry, func() (struct{}, error) {
		return struct{}{}, remote.Write(r.ref, img, options...)
	})
	if err != nil {
		return fmt.Errorf("push image: %w", err)
	}
	return nil
}

func (r *Remote) buildImage(layers []v1.Layer, store string, count int) (v1.Image, error) {
	img := empty.Image

	if len(layers) > 0 {
		var err error
		img, err = mutate.AppendLayers(img, layers...)
		if err != nil {
			return nil, err
		}
	}

	cfg, err := img.ConfigFile()
	if err != nil {
		return nil, err
	}
	cfg = cfg.DeepCopy()
	cfg.Config.Labels = map[string]string{
		labelStore:   store,
		labelEntries: strconv.Itoa(count),
	}
	return mutate.ConfigFile(img, cfg)
}

// Pull downloads the image and returns the store name it was pushed from
// and its entries keyed by file name.
func (r *Remote) Pull(ctx context.Context) (string, map[string][]byte, error) {
	img, err := retryDo(ctx, r.retry, func() (v1.Image, error) {
		return remote.Image(r.ref, r.remoteOptions(ctx)...)
	})
	if err != nil {
		return "", nil, fmt.Errorf("fetch image: %w", err)
	}

	cfg, err := img.ConfigFile()
	if err != nil {
		return "", nil, fmt.Errorf("get config: %w", err)
	}
	store := cfg.Config.Labels[labelStore]
	if store == "" {
		return "", nil, fmt.Errorf("missing %s label", labelStore)
	}

	layers, err := img.Layers()
	if err != nil {
		return "", nil, fmt.Errorf("get layers: %w", err)
	}

	r.log.Info("pulling store", "store", store, "ref", r.String(), "layers", len(layers))

	var mu sync.Mutex
	entries := make(map[string][]byte)

	p := pool.New().WithMaxGoroutines(r.concurrency).WithContext(ctx).WithCancelOnError()
	for _, layer := range layers {
		p.Go(func(ctx context.Context) error {
			rc, err := layer.Uncompressed()
			if err != nil {
				return fmt.Errorf("read layer: %w", err)
			}
			data, err := io.ReadAll(rc)
			if cerr := rc.Close(); cerr != nil && err == nil {
				err = cerr
			}
			if err != nil {
				return fmt.Errorf("read layer: %w", err)
			}

			unpacked, err := UnpackLayer(data)
			if err != nil {
				return fmt.Errorf("unpack layer: %w", err)
			}

			mu.Lock()
			for k, v := range unpacked {
				entries[k] = v
			}
			mu.Unlock()
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return "", nil, err
	}
	return store, entries, nil
}

func (r *Remote) remoteOptions(ctx context.Context) []remote.Option {
	options := []remote.Option{remote.WithContext(ctx)}
	if r.auth != nil {
		username, password, err := r.auth.Authenticate(r.Registry())
		if err == nil && username != "" {
			return append(options, remote.WithAuth(&authn.Basic{
				Username: username,
				Password: password,
			}))
		}
	}
	return append(options, remote.WithAuthFromKeychain(authn.DefaultKeychain))
}

type retryPolicy struct {
	attempts int
	delay    time.Duration
}

// backoff returns the wait after the failed attempt n, counting from 0.
func (p retryPolicy) backoff(n int) time.Duration {
	return p.delay << n
}

func retryDo[T any](ctx context.Context, p retryPolicy, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for n := range p.attempts {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if n == p.attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(p.backoff(n)):
		}
	}
	return zero, fmt.Errorf("after %d attempts: %w", p.attempts, lastErr)
}
