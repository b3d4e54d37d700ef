package metadata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestToStatDirectoryAndFile(t *testing.T) {
	dir := &FileMetaData{Path: "/a", Mode: 0o755, IsDir: true, Size: 0}
	st := dir.ToStat()
	require.Equal(t, uint32(2), st.Nlink)
	require.Equal(t, uint32(sIFDIR|0o755), st.Mode)

	file := &FileMetaData{Path: "/a/b", Mode: 0o644, Size: 1025}
	st = file.ToStat()
	require.Equal(t, uint32(1), st.Nlink)
	require.Equal(t, int64(1025/512+1), st.Blocks)
	require.Equal(t, int32(4096), st.Blksize)
}

func TestAccessOwnerGroupOther(t *testing.T) {
	m := &FileMetaData{Mode: 0o640, UID: 10, GID: 20}
	require.True(t, m.Access(10, 20, R_OK|W_OK))
	require.False(t, m.Access(99, 20, W_OK)) // group: r only
	require.True(t, m.Access(99, 20, R_OK))
	require.False(t, m.Access(99, 99, R_OK)) // other: no bits
}

func TestAccessRootBypassesExceptExecute(t *testing.T) {
	m := &FileMetaData{Mode: 0o600}
	require.True(t, m.Access(0, 0, R_OK|W_OK))
	require.False(t, m.Access(0, 0, X_OK))

	mExec := &FileMetaData{Mode: 0o100}
	require.True(t, mExec.Access(0, 0, X_OK))
}

func TestManagerEvictsLRUSkippingOpen(t *testing.T) {
	m := NewManager(2, 0)
	require.True(t, m.Add(&FileMetaData{Path: "/a"}))
	require.True(t, m.Add(&FileMetaData{Path: "/b"}))

	a, _ := m.Get("/a")
	a.FileOpen = true

	require.True(t, m.Add(&FileMetaData{Path: "/c"}))
	require.True(t, m.Has("/a"))
	require.False(t, m.Has("/b"))
	require.True(t, m.Has("/c"))
}

func TestManagerRenameUpdatesIndexAndPath(t *testing.T) {
	m := NewManager(0, 0)
	m.Add(&FileMetaData{Path: "/old"})
	require.True(t, m.Rename("/old", "/new"))

	require.False(t, m.Has("/old"))
	meta, ok := m.Get("/new")
	require.True(t, ok)
	require.Equal(t, "/new", meta.Path)
}

func TestManagerTTLExpiry(t *testing.T) {
	m := NewManager(0, time.Millisecond)
	m.Add(&FileMetaData{Path: "/a", ChangeTime: time.Now().Add(-time.Hour)})
	require.False(t, m.Has("/a"))
}
