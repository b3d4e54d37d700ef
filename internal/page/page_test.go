package page

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPageReadWithinRange(t *testing.T) {
	p := NewFromBytes(0, []byte("012345"))
	out := make([]byte, 3)
	n, err := p.Read(2, out)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, "234", string(out))
}

func TestPageReadOutOfRange(t *testing.T) {
	p := NewFromBytes(10, []byte("0123"))
	out := make([]byte, 2)
	_, err := p.Read(2, out)
	require.ErrorIs(t, err, ErrInvalidRange)
}

func TestPageRefreshGrows(t *testing.T) {
	p := NewFromBytes(0, []byte("012"))
	require.NoError(t, p.Refresh(3, []byte("abc")))
	require.Equal(t, int64(6), p.Size)
	out := make([]byte, 6)
	_, err := p.Read(0, out)
	require.NoError(t, err)
	require.Equal(t, "012abc", string(out))
}

func TestPageResizeSmallerIsLazy(t *testing.T) {
	p := NewFromBytes(0, []byte("0123456789"))
	p.ResizeSmaller(4)
	require.Equal(t, int64(4), p.Size)
}

func TestPageDiskBackedRoundTrip(t *testing.T) {
	dir := t.TempDir()
	p, err := NewDiskBacked(dir, "/a", 0, []byte("hello"))
	require.NoError(t, err)
	require.True(t, p.IsDiskBacked())
	require.Equal(t, int64(0), p.CachedSize())

	out := make([]byte, 5)
	_, err = p.Read(0, out)
	require.NoError(t, err)
	require.Equal(t, "hello", string(out))

	require.NoError(t, p.Close())
}
