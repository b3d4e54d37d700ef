package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func at(seconds int64) time.Time {
	return time.Unix(seconds, 0)
}

// TestLRUEviction covers SPEC_FULL.md §8 scenario 3.
func TestLRUEviction(t *testing.T) {
	dir := t.TempDir()
	c := New(Config{Capacity: 100, DiskDir: dir}, nil)

	require.NoError(t, c.Write("/a", 0, make([]byte, 60), at(1)))
	require.NoError(t, c.Write("/b", 0, make([]byte, 60), at(2)))

	require.False(t, c.HasFile("/a"))
	require.True(t, c.HasFile("/b"))
	require.Equal(t, int64(60), c.Size())

	c.SetFileOpen("/b", true)
	require.NoError(t, c.Write("/c", 0, make([]byte, 60), at(3)))

	require.True(t, c.HasFile("/b"))
	require.Equal(t, int64(60), c.Size())
}

func TestReadFillsMissingRangesViaFetch(t *testing.T) {
	calls := 0
	fetch := func(_ context.Context, key string, offset, length int64) ([]byte, error) {
		calls++
		buf := make([]byte, length)
		for i := range buf {
			buf[i] = 'x'
		}
		return buf, nil
	}
	c := New(Config{Capacity: 1 << 20}, fetch)

	out := make([]byte, 10)
	n, err := c.Read(context.Background(), "/a", 0, out, time.Time{})
	require.NoError(t, err)
	require.Equal(t, 10, n)
	require.Equal(t, 1, calls)
	require.True(t, c.HasFileData("/a", 0, 10))

	// Second read over the same range is already resident; fetch not called again.
	n, err = c.Read(context.Background(), "/a", 0, out, time.Time{})
	require.NoError(t, err)
	require.Equal(t, 10, n)
	require.Equal(t, 1, calls)
}

func TestReadWithNewerRemoteMtimeRefetches(t *testing.T) {
	calls := 0
	fetch := func(_ context.Context, key string, offset, length int64) ([]byte, error) {
		calls++
		buf := make([]byte, length)
		for i := range buf {
			buf[i] = byte('a' + calls)
		}
		return buf, nil
	}
	c := New(Config{Capacity: 1 << 20}, fetch)

	out := make([]byte, 4)
	_, err := c.Read(context.Background(), "/a", 0, out, at(1))
	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.True(t, c.HasFileData("/a", 0, 4))

	// A newer remote mtime invalidates the resident page and forces a refetch.
	_, err = c.Read(context.Background(), "/a", 0, out, at(2))
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestEraseAndRename(t *testing.T) {
	c := New(Config{Capacity: 1 << 20}, nil)
	require.NoError(t, c.Write("/a", 0, []byte("hi"), at(1)))
	c.Rename("/a", "/b")
	require.False(t, c.HasFile("/a"))
	require.True(t, c.HasFile("/b"))

	c.Erase("/b")
	require.False(t, c.HasFile("/b"))
}
