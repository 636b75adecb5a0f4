package stash

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-containerregistry/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRef(t *testing.T, repo string) string {
	t.Helper()
	srv := httptest.NewServer(registry.New())
	t.Cleanup(srv.Close)
	return strings.TrimPrefix(srv.URL, "http://") + "/" + repo
}

func TestPushPull(t *testing.T) {
	ctx := context.Background()
	ref := testRef(t, "stash/avatars:test")

	src := openStore(t, newTestRegistry(t), "avatars")
	_, err := src.Put("alice", KindPNG, []byte("alice-png"))
	require.NoError(t, err)
	_, err = src.Save("prefs", Value{Value: "dark"})
	require.NoError(t, err)
	_, err = src.Put("clip", KindVideo, make([]byte, 4096))
	require.NoError(t, err)

	// stray files that are not entries stay local
	require.NoError(t, os.WriteFile(filepath.Join(src.Dir(), ".DS_Store"), []byte("x"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(src.Dir(), "nested"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src.Dir(), "nested", "deep.txt"), []byte("x"), 0644))

	require.NoError(t, src.Push(ctx, ref, WithInsecure()))

	dst := openStore(t, newTestRegistry(t), "restored")
	n, err := dst.Pull(ctx, ref, WithInsecure(), WithConcurrency(2))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	entry, err := dst.Get("alice")
	require.NoError(t, err)
	assert.Equal(t, "alice-png", string(entry.Data))
	assert.Equal(t, KindPNG, entry.Kind)

	p, err := dst.Load("prefs")
	require.NoError(t, err)
	assert.Equal(t, Value{Value: "dark"}, p)

	entry, err = dst.Get("clip")
	require.NoError(t, err)
	assert.Len(t, entry.Data, 4096)

	_, err = os.Stat(filepath.Join(dst.Dir(), "nested"))
	assert.True(t, os.IsNotExist(err))
}

func TestPullRespectsBudget(t *testing.T) {
	ctx := context.Background()
	ref := testRef(t, "stash/big:test")

	src := openStore(t, newTestRegistry(t), "big")
	_, err := src.Put("small", KindAudio, make([]byte, 50))
	require.NoError(t, err)
	_, err = src.Put("large", KindVideo, make([]byte, 500))
	require.NoError(t, err)
	require.NoError(t, src.Push(ctx, ref, WithInsecure()))

	dst := openStore(t, newTestRegistry(t), "tiny", WithBudget(100))
	n, err := dst.Pull(ctx, ref, WithInsecure())
	require.ErrorIs(t, err, ErrFileTooLarge)
	assert.Equal(t, 1, n)

	_, err = dst.Get("small")
	assert.NoError(t, err)
}

func TestPushEmptyStore(t *testing.T) {
	ctx := context.Background()
	ref := testRef(t, "stash/empty:test")

	s := openStore(t, newTestRegistry(t), "empty")
	require.NoError(t, s.Push(ctx, ref, WithInsecure()))

	dst := openStore(t, newTestRegistry(t), "dst")
	n, err := dst.Pull(ctx, ref, WithInsecure())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPullUnreachableRegistry(t *testing.T) {
	srv := httptest.NewServer(registry.New())
	ref := strings.TrimPrefix(srv.URL, "http://") + "/stash/gone:test"
	srv.Close()

	s := openStore(t, newTestRegistry(t), "s")
	n, err := s.Pull(context.Background(), ref, WithInsecure(), WithRetry(2, time.Millisecond))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Zero(t, n)
}

func TestMirrorInvalidRef(t *testing.T) {
	s := openStore(t, newTestRegistry(t), "s")
	assert.Error(t, s.Push(context.Background(), "NOT A REF"))
	_, err := s.Pull(context.Background(), "NOT A REF")
	assert.Error(t, err)
}
