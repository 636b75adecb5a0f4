package fsgate

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T, now time.Time) (*Gateway, string) {
	t.Helper()
	return New(nil, func() time.Time { return now }), t.TempDir()
}

func TestCreateDirectory(t *testing.T) {
	g, root := newTestGateway(t, time.Now())
	dir := filepath.Join(root, "a", "b")

	require.NoError(t, g.CreateDirectory(dir))
	require.NoError(t, g.CreateDirectory(dir), "existing directory is success")

	file := filepath.Join(root, "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))
	assert.ErrorIs(t, g.CreateDirectory(file), ErrNotDirectory)
}

func TestWriteAndRead(t *testing.T) {
	g, root := newTestGateway(t, time.Now())
	path := filepath.Join(root, "entry.txt")

	require.NoError(t, g.Write([]byte("first"), path))
	require.NoError(t, g.Write([]byte("second"), path))

	got, err := g.Read(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestWriteSucceedsWhenTouchFails(t *testing.T) {
	g, root := newTestGateway(t, time.Now())
	g.chtimes = func(string, time.Time, time.Time) error {
		return errors.New("operation not permitted")
	}
	path := filepath.Join(root, "entry.txt")

	require.NoError(t, g.Write([]byte("stored"), path))

	got, err := g.Peek(path)
	require.NoError(t, err)
	assert.Equal(t, "stored", string(got))
	assert.Error(t, g.Touch(path))
}

func TestWriteMissingParent(t *testing.T) {
	g, root := newTestGateway(t, time.Now())
	err := g.Write([]byte("x"), filepath.Join(root, "missing", "entry.txt"))
	assert.Error(t, err)
}

func TestReadNotFound(t *testing.T) {
	g, root := newTestGateway(t, time.Now())
	_, err := g.Read(filepath.Join(root, "nope"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReadRefreshesAccessTime(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := now
	g := New(nil, func() time.Time { return clock })
	root := t.TempDir()
	path := filepath.Join(root, "a.txt")

	require.NoError(t, g.Write([]byte("x"), path))
	clock = now.Add(time.Hour)
	_, err := g.Read(path)
	require.NoError(t, err)

	metas, err := g.ListMetadata(root)
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.True(t, metas[0].Recency().Equal(clock), "recency %v, want %v", metas[0].Recency(), clock)
}

func TestDelete(t *testing.T) {
	g, root := newTestGateway(t, time.Now())

	assert.ErrorIs(t, g.Delete(filepath.Join(root, "nope")), ErrNotFound)

	dir := filepath.Join(root, "store")
	require.NoError(t, g.CreateDirectory(dir))
	require.NoError(t, g.Write([]byte("x"), filepath.Join(dir, "k.txt")))
	require.NoError(t, g.Delete(dir))
	assert.False(t, g.Exists(dir))
}

func TestListMetadata(t *testing.T) {
	g, root := newTestGateway(t, time.Now())
	require.NoError(t, g.CreateDirectory(filepath.Join(root, "s1")))
	require.NoError(t, g.Write(make([]byte, 10), filepath.Join(root, "s1", "a.jpg")))
	require.NoError(t, g.Write(make([]byte, 5), filepath.Join(root, "s1", "b.txt")))

	metas, err := g.ListMetadata(root)
	require.NoError(t, err)
	require.Len(t, metas, 3)

	assert.True(t, metas[0].IsDir)
	assert.Equal(t, filepath.Join(root, "s1"), metas[0].Path)
	assert.Equal(t, int64(10), metas[1].Size)
	assert.Equal(t, int64(5), metas[2].Size)
}

func TestListMetadataMissing(t *testing.T) {
	g, root := newTestGateway(t, time.Now())
	_, err := g.ListMetadata(filepath.Join(root, "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestIsEmpty(t *testing.T) {
	g, root := newTestGateway(t, time.Now())

	empty, err := g.IsEmpty(root)
	require.NoError(t, err)
	assert.True(t, empty)

	require.NoError(t, os.WriteFile(filepath.Join(root, ".DS_Store"), nil, 0644))
	empty, err = g.IsEmpty(root)
	require.NoError(t, err)
	assert.True(t, empty, "housekeeping artifact alone does not count")

	require.NoError(t, os.WriteFile(filepath.Join(root, "k.txt"), nil, 0644))
	empty, err = g.IsEmpty(root)
	require.NoError(t, err)
	assert.False(t, empty)

	_, err = g.IsEmpty(filepath.Join(root, "missing"))
	assert.Error(t, err)
}

func TestRecencyFallback(t *testing.T) {
	created := time.Unix(100, 0)
	assert.Equal(t, created, Meta{CreatedAt: created}.Recency())
	assert.Equal(t, time.Unix(0, 0), Meta{}.Recency())
}
