package tree

import (
	"testing"
	"time"

	"github.com/objectfs/objectfs/internal/metadata"
	"github.com/stretchr/testify/require"
)

func fileMeta(p string) *metadata.FileMetaData {
	return &metadata.FileMetaData{Path: p, Size: 5, ModifyTime: time.Unix(1, 0)}
}

// TestListingOrphanReparenting covers SPEC_FULL.md §8 scenario 4: a child
// key arrives before its parent directory has been grown.
func TestListingOrphanReparenting(t *testing.T) {
	tr := New()

	// Child /dir/a.txt listed before /dir itself is known.
	tr.Grow(fileMeta("/dir/a.txt"))

	_, ok := tr.Find("/dir/a.txt")
	require.True(t, ok, "orphan node itself is addressable by path")
	require.Empty(t, tr.ChildrenRange("/dir"), "parent not yet grown has no children")

	// Now the directory itself grows (e.g. via a common-prefix entry).
	tr.Grow(BuildCommonPrefixDir("/dir"))

	children := tr.ChildrenRange("/dir")
	require.Len(t, children, 1)
	require.Equal(t, "/dir/a.txt", children[0].Path)
}

func TestGrowExistingRefreshesMeta(t *testing.T) {
	tr := New()
	tr.Grow(fileMeta("/a"))
	n, _ := tr.Find("/a")
	require.Equal(t, int64(5), n.Meta.Size)

	updated := fileMeta("/a")
	updated.Size = 99
	tr.Grow(updated)

	n, _ = tr.Find("/a")
	require.Equal(t, int64(99), n.Meta.Size)
}

func TestRenameReparentsAcrossDirectories(t *testing.T) {
	tr := New()
	tr.Grow(BuildCommonPrefixDir("/src"))
	tr.Grow(BuildCommonPrefixDir("/dst"))
	tr.Grow(fileMeta("/src/a.txt"))

	require.True(t, tr.Rename("/src/a.txt", "/dst/a.txt"))

	require.Empty(t, tr.ChildrenRange("/src"))
	children := tr.ChildrenRange("/dst")
	require.Len(t, children, 1)
	require.Equal(t, "/dst/a.txt", children[0].Path)
}

func TestNodeFindInsertRemoveRenameChild(t *testing.T) {
	tr := New()
	root, _ := tr.Find("/")

	child := newNode("/a", fileMeta("/a"))
	root.Insert(child)

	found, ok := root.Find("a")
	require.True(t, ok)
	require.Same(t, child, found)

	require.True(t, root.RenameChild("a", "b"))
	require.Equal(t, "/b", child.Path)

	root.Remove("b")
	_, ok = root.Find("b")
	require.False(t, ok)
}
