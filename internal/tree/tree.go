// Package tree implements DirectoryTree and Node, the lazily-populated
// directory hierarchy described in SPEC_FULL.md §4.E. Keys arrive from
// object-store listings in no particular order, so the tree must tolerate
// a child being grown before its parent directory node exists; it holds
// such orphans in a parent-path multimap until the parent itself grows.
package tree

import (
	"path"
	"strings"
	"sync"
	"time"

	"github.com/objectfs/objectfs/internal/metadata"
)

// Node is one entry (file or directory) in the tree.
type Node struct {
	mu sync.Mutex

	Name   string
	Path   string
	Meta   *metadata.FileMetaData
	parent *Node

	children map[string]*Node
	// listed marks whether this directory's children have been populated
	// from an object-store listing; Drive consults this to decide whether
	// to issue a fresh listing before resolving a path underneath it.
	listed bool
}

func newNode(p string, meta *metadata.FileMetaData) *Node {
	n := &Node{Path: p, Name: path.Base(p), Meta: meta}
	if meta.IsDir {
		n.children = make(map[string]*Node)
	}
	return n
}

// Find returns the child named childName, if present.
func (n *Node) Find(childName string) (*Node, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	c, ok := n.children[childName]
	return c, ok
}

// Insert attaches child under n, replacing any existing child of the same
// name.
func (n *Node) Insert(child *Node) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.children == nil {
		n.children = make(map[string]*Node)
	}
	child.parent = n
	n.children[child.Name] = child
}

// Remove detaches the child named childName.
func (n *Node) Remove(childName string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.children, childName)
}

// RenameChild moves the child named oldName to newName in place, updating
// the child's own Name and Path. Returns false if oldName was absent.
func (n *Node) RenameChild(oldName, newName string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	child, ok := n.children[oldName]
	if !ok {
		return false
	}
	delete(n.children, oldName)

	child.mu.Lock()
	child.Name = newName
	child.Path = path.Join(n.Path, newName)
	child.mu.Unlock()

	n.children[newName] = child
	return true
}

// Children returns a snapshot slice of n's children.
func (n *Node) Children() []*Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*Node, 0, len(n.children))
	for _, c := range n.children {
		out = append(out, c)
	}
	return out
}

// SetListed records whether this directory's children are known-fresh.
func (n *Node) SetListed(listed bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listed = listed
}

// Listed reports whether this directory's children are known-fresh.
func (n *Node) Listed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.listed
}

// DirectoryTree is the lazily-populated hierarchy rooted at "/".
type DirectoryTree struct {
	mu sync.Mutex

	root  *Node
	nodes map[string]*Node // path -> node, for O(1) Find

	// orphans holds metadata for children already listed whose parent
	// directory node has not yet been grown, keyed by parent path.
	orphans map[string][]*metadata.FileMetaData
}

// New creates a DirectoryTree with a synthetic root at "/".
func New() *DirectoryTree {
	rootMeta := &metadata.FileMetaData{Path: "/", IsDir: true, ModifyTime: time.Unix(0, 0)}
	root := newNode("/", rootMeta)
	return &DirectoryTree{
		root:    root,
		nodes:   map[string]*Node{"/": root},
		orphans: make(map[string][]*metadata.FileMetaData),
	}
}

// Find returns the node at path p.
func (t *DirectoryTree) Find(p string) (*Node, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[normalize(p)]
	return n, ok
}

// Grow inserts or refreshes the node for meta, attaching it to its parent
// if the parent is already known, or stashing it as an orphan otherwise.
// Growing a directory node also re-parents any orphans waiting on it.
func (t *DirectoryTree) Grow(meta *metadata.FileMetaData) *Node {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.growLocked(meta)
}

// GrowAll grows a batch of metadata records, e.g. the result of a single
// listing page.
func (t *DirectoryTree) GrowAll(metas []*metadata.FileMetaData) []*Node {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Node, 0, len(metas))
	for _, m := range metas {
		out = append(out, t.growLocked(m))
	}
	return out
}

func (t *DirectoryTree) growLocked(meta *metadata.FileMetaData) *Node {
	p := normalize(meta.Path)

	if existing, ok := t.nodes[p]; ok {
		existing.mu.Lock()
		existing.Meta = meta
		if meta.IsDir && existing.children == nil {
			existing.children = make(map[string]*Node)
		}
		existing.mu.Unlock()
		t.absorbOrphansLocked(existing)
		return existing
	}

	n := newNode(p, meta)
	t.nodes[p] = n

	parentPath := normalize(path.Dir(p))
	if parent, ok := t.nodes[parentPath]; ok {
		parent.Insert(n)
	} else if p != "/" {
		t.orphans[parentPath] = append(t.orphans[parentPath], meta)
	}

	if meta.IsDir {
		t.absorbOrphansLocked(n)
	}
	return n
}

func (t *DirectoryTree) absorbOrphansLocked(dir *Node) {
	waiting, ok := t.orphans[dir.Path]
	if !ok {
		return
	}
	delete(t.orphans, dir.Path)
	for _, meta := range waiting {
		p := normalize(meta.Path)
		if existing, ok := t.nodes[p]; ok {
			dir.Insert(existing)
			continue
		}
		n := newNode(p, meta)
		t.nodes[p] = n
		dir.Insert(n)
		if meta.IsDir {
			t.absorbOrphansLocked(n)
		}
	}
}

// ChildrenRange returns the children currently known under dirPath,
// without regard to whether the directory has been fully listed.
func (t *DirectoryTree) ChildrenRange(dirPath string) []*Node {
	t.mu.Lock()
	n, ok := t.nodes[normalize(dirPath)]
	t.mu.Unlock()
	if !ok {
		return nil
	}
	return n.Children()
}

// Remove detaches the node at p from the tree and its parent.
func (t *DirectoryTree) Remove(p string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p = normalize(p)
	n, ok := t.nodes[p]
	if !ok {
		return
	}
	if n.parent != nil {
		n.parent.Remove(n.Name)
	}
	delete(t.nodes, p)
}

// Rename moves the node at oldPath to newPath, reattaching it under the
// (possibly different) parent directory for newPath.
func (t *DirectoryTree) Rename(oldPath, newPath string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	oldPath, newPath = normalize(oldPath), normalize(newPath)
	n, ok := t.nodes[oldPath]
	if !ok {
		return false
	}

	if n.parent != nil {
		n.parent.Remove(n.Name)
	}
	delete(t.nodes, oldPath)

	n.mu.Lock()
	n.Name = path.Base(newPath)
	n.Path = newPath
	n.Meta.Path = newPath
	n.mu.Unlock()

	t.nodes[newPath] = n

	parentPath := normalize(path.Dir(newPath))
	if parent, ok := t.nodes[parentPath]; ok {
		parent.Insert(n)
	} else {
		t.orphans[parentPath] = append(t.orphans[parentPath], n.Meta)
	}
	return true
}

// BuildCommonPrefixDir constructs a synthetic directory FileMetaData for a
// common-prefix entry returned by a listing, with a zero mtime so that a
// later real listing of that path always supersedes it.
func BuildCommonPrefixDir(prefixPath string) *metadata.FileMetaData {
	return &metadata.FileMetaData{
		Path:       normalize(prefixPath),
		IsDir:      true,
		Mode:       0o755,
		ModifyTime: time.Unix(0, 0),
	}
}

func normalize(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
