package stash

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tickingClock returns strictly increasing times so that entry recency
// follows call order.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	now := time.Unix(1_700_000_000, 0)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func newTestRegistry(t *testing.T, opts ...Option) *Registry {
	t.Helper()
	base := []Option{
		WithRoot(t.TempDir()),
		WithLogging(false),
		WithClock(tickingClock()),
	}
	reg, err := NewRegistry(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })
	return reg
}

func openStore(t *testing.T, reg *Registry, name string, opts ...StoreOption) *Store {
	t.Helper()
	s, err := reg.Open(name, opts...)
	require.NoError(t, err)
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	reg := newTestRegistry(t)
	s := openStore(t, reg, "media")

	for _, kind := range []Kind{KindJPEG, KindPNG, KindVideo, KindAudio, KindObject, KindValue} {
		t.Run(kind.String(), func(t *testing.T) {
			key := "k-" + kind.String()
			data := []byte("payload for " + kind.String())

			path, err := s.Put(key, kind, data)
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(reg.Root(), "media", key+kind.Ext()), path)

			entry, err := s.Get(key)
			require.NoError(t, err)
			assert.Equal(t, data, entry.Data)
			assert.Equal(t, path, entry.Path)
			assert.Equal(t, key, entry.Key)
		})
	}
}

func TestPutOverwrites(t *testing.T) {
	s := openStore(t, newTestRegistry(t), "s")

	_, err := s.Put("k", KindValue, []byte("one"))
	require.NoError(t, err)
	_, err = s.Put("k", KindValue, []byte("two"))
	require.NoError(t, err)

	entry, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "two", string(entry.Data))
}

func TestGetLookupOrder(t *testing.T) {
	s := openStore(t, newTestRegistry(t), "s")

	_, err := s.Put("k", KindValue, []byte("text"))
	require.NoError(t, err)
	_, err = s.Put("k", KindPNG, []byte("png"))
	require.NoError(t, err)
	_, err = s.Put("k", KindAudio, []byte("mp3"))
	require.NoError(t, err)

	entry, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, KindPNG, entry.Kind)

	entry, err = s.GetKind("k", KindValue)
	require.NoError(t, err)
	assert.Equal(t, KindValue, entry.Kind)
	assert.Equal(t, "text", string(entry.Data))

	entry, err = s.GetKind("k", KindVideo)
	require.NoError(t, err)
	assert.Equal(t, KindPNG, entry.Kind, "missing requested kind falls back to the fixed order")
}

func TestGetMissing(t *testing.T) {
	s := openStore(t, newTestRegistry(t), "s")
	_, err := s.Get("nope")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestDeleteRemovesFirstMatchOnly(t *testing.T) {
	s := openStore(t, newTestRegistry(t), "s")

	_, err := s.Put("k", KindJPEG, []byte("jpg"))
	require.NoError(t, err)
	_, err = s.Put("k", KindObject, []byte(`{}`))
	require.NoError(t, err)

	require.NoError(t, s.Delete("k"))
	entry, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, KindObject, entry.Kind)

	require.NoError(t, s.Delete("k"))
	assert.ErrorIs(t, s.Delete("k"), ErrFileNotFound)
}

func TestInvalidKeys(t *testing.T) {
	s := openStore(t, newTestRegistry(t), "s")

	for _, key := range []string{"", ".", "..", "a/b", `a\b`} {
		_, err := s.Put(key, KindValue, []byte("x"))
		assert.ErrorIs(t, err, ErrInvalidPath, "key %q", key)
		_, err = s.Get(key)
		assert.ErrorIs(t, err, ErrInvalidPath, "key %q", key)
		assert.ErrorIs(t, s.Delete(key), ErrInvalidPath, "key %q", key)
	}

	_, err := s.Put("k", Kind(99), []byte("x"))
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestFileTooLarge(t *testing.T) {
	reg := newTestRegistry(t)
	s := openStore(t, reg, "s", WithBudget(100))

	_, err := s.Put("big", KindValue, make([]byte, 150))
	require.ErrorIs(t, err, ErrFileTooLarge)
	var tooLarge *TooLargeError
	require.ErrorAs(t, err, &tooLarge)
	assert.Equal(t, int64(100), tooLarge.Limit)

	_, err = s.Put("exact", KindValue, make([]byte, 100))
	assert.ErrorIs(t, err, ErrFileTooLarge)

	_, ok := s.Size()
	assert.False(t, ok, "nothing was written")
}

func TestUnlimitedBudgetNeverEvicts(t *testing.T) {
	s := openStore(t, newTestRegistry(t), "s")
	require.Zero(t, s.Budget())

	for i := range 5 {
		_, err := s.Put(fmt.Sprintf("k%d", i), KindVideo, make([]byte, 64*1024))
		require.NoError(t, err)
	}
	size, ok := s.Size()
	require.True(t, ok)
	assert.Equal(t, int64(5*64*1024), size)
}

func TestEvictsOldestFirst(t *testing.T) {
	const entry = 1_200_000
	s := openStore(t, newTestRegistry(t), "s", WithBudget(5_000_000))

	for i := 1; i <= 4; i++ {
		_, err := s.Put(fmt.Sprintf("k%d", i), KindVideo, make([]byte, entry))
		require.NoError(t, err)
	}

	// 4,800,000 used: the fifth write needs exactly one eviction
	_, err := s.Put("k5", KindVideo, make([]byte, entry))
	require.NoError(t, err)
	assertKeys(t, s, []string{"k2", "k3", "k4", "k5"}, []string{"k1"})

	_, err = s.Put("k6", KindVideo, make([]byte, entry))
	require.NoError(t, err)
	assertKeys(t, s, []string{"k3", "k4", "k5", "k6"}, []string{"k2"})

	size, ok := s.Size()
	require.True(t, ok)
	assert.LessOrEqual(t, size, int64(5_000_000))
}

func TestSixthEntryEvictsOnlyOldest(t *testing.T) {
	const entry = 1_200_000
	s := openStore(t, newTestRegistry(t), "s", WithBudget(6_000_001))

	for i := 1; i <= 6; i++ {
		_, err := s.Put(fmt.Sprintf("k%d", i), KindVideo, make([]byte, entry))
		require.NoError(t, err)
	}
	assertKeys(t, s, []string{"k2", "k3", "k4", "k5", "k6"}, []string{"k1"})
}

func TestReadRefreshesRecency(t *testing.T) {
	s := openStore(t, newTestRegistry(t), "s", WithBudget(100))

	for _, k := range []string{"a", "b", "c"} {
		_, err := s.Put(k, KindValue, make([]byte, 30))
		require.NoError(t, err)
	}
	_, err := s.Get("a")
	require.NoError(t, err)

	_, err = s.Put("d", KindValue, make([]byte, 30))
	require.NoError(t, err)
	assertKeys(t, s, []string{"a", "c", "d"}, []string{"b"})
}

func TestBudgetInvariant(t *testing.T) {
	const limit = 1000
	s := openStore(t, newTestRegistry(t), "s", WithBudget(limit))

	sizes := []int{100, 900, 999, 1000, 1, 450, 450, 450, 2000, 700, 300, 299}
	for i, n := range sizes {
		_, err := s.Put(fmt.Sprintf("k%d", i%4), KindObject, bytes.Repeat([]byte{'x'}, n))
		if err != nil {
			require.ErrorIs(t, err, ErrFileTooLarge)
			continue
		}
		size, ok := s.Size()
		require.True(t, ok)
		require.LessOrEqual(t, size, int64(limit), "after write %d", i)
	}
}

func TestConcurrentPutsRespectBudget(t *testing.T) {
	const limit = 1000
	reg := newTestRegistry(t)
	s := openStore(t, reg, "s", WithBudget(limit))

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 20 {
				_, err := s.Put(fmt.Sprintf("w%d-%d", w, i), KindValue, make([]byte, 100))
				assert.NoError(t, err)
				_, _ = s.Get(fmt.Sprintf("w%d-%d", w, i))
			}
		}()
	}
	wg.Wait()

	size, ok := s.Size()
	require.True(t, ok)
	assert.LessOrEqual(t, size, int64(limit))
}

func TestDeleteStoreThenReuse(t *testing.T) {
	s := openStore(t, newTestRegistry(t), "s")

	_, err := s.Put("k", KindValue, []byte("x"))
	require.NoError(t, err)
	require.NoError(t, s.DeleteStore())

	_, err = os.Stat(s.Dir())
	assert.True(t, os.IsNotExist(err))
	assert.ErrorIs(t, s.DeleteStore(), ErrFileNotFound)

	_, err = s.Put("k", KindValue, []byte("y"))
	require.NoError(t, err, "store directory is recreated lazily")
	entry, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "y", string(entry.Data))
}

func assertKeys(t *testing.T, s *Store, present, absent []string) {
	t.Helper()
	for _, k := range present {
		_, err := s.Get(k)
		assert.NoError(t, err, "expected %s to be present", k)
	}
	for _, k := range absent {
		_, err := s.Get(k)
		assert.ErrorIs(t, err, ErrFileNotFound, "expected %s to be evicted", k)
	}
}
