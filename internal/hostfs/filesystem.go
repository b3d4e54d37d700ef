//go:build !cgofuse
// +build !cgofuse

// Package hostfs binds Drive to a concrete FUSE host. Two build variants
// exist, matching the reference tree's split: this file (the default)
// targets Linux via github.com/hanwen/go-fuse/v2; the cgofuse-tagged
// sibling targets the other platforms cgofuse supports.
package hostfs

import (
	"context"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/objectfs/objectfs/internal/drive"
	"github.com/objectfs/objectfs/internal/metadata"
)

// toSyscallErrno translates Drive's host-agnostic Errno into go-fuse's
// syscall.Errno.
func toSyscallErrno(e drive.Errno) syscall.Errno {
	switch e {
	case drive.EOK:
		return 0
	case drive.ENOENT:
		return syscall.ENOENT
	case drive.EACCES:
		return syscall.EACCES
	case drive.EEXIST:
		return syscall.EEXIST
	case drive.ENOTEMPTY:
		return syscall.ENOTEMPTY
	case drive.ENOTDIR:
		return syscall.ENOTDIR
	case drive.EISDIR:
		return syscall.EISDIR
	case drive.EROFS:
		return syscall.EROFS
	case drive.EINVAL:
		return syscall.EINVAL
	case drive.ENOSYS:
		return syscall.ENOSYS
	case drive.ENAMETOOLONG:
		return syscall.ENAMETOOLONG
	default:
		return syscall.EIO
	}
}

func attrFromStat(stat metadata.Stat) fuse.Attr {
	return fuse.Attr{
		Mode:    stat.Mode,
		Size:    uint64(stat.Size),
		Blocks:  uint64(stat.Blocks),
		Blksize: uint32(stat.Blksize),
		Nlink:   stat.Nlink,
		Owner:   fuse.Owner{Uid: stat.UID, Gid: stat.GID},
		Mtime:   uint64(stat.Mtime.Unix()),
		Atime:   uint64(stat.Atime.Unix()),
		Ctime:   uint64(stat.Ctime.Unix()),
	}
}

func joinPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}

// Node is the single InodeEmbedder type for every entry in the mount; its
// identity is Drive plus the path it represents, grounded on the reference
// tree's DirectoryNode/FileNode split collapsed into one type since Drive
// (not the FUSE layer) is the source of truth for what is a file or a
// directory.
type Node struct {
	fs.Inode
	d    *drive.Drive
	path string
}

// Root returns the Inode for the mount's root, suitable for fs.Mount's
// second argument.
func Root(d *drive.Drive) fs.InodeEmbedder {
	return &Node{d: d, path: "/"}
}

var (
	_ fs.NodeGetattrer  = (*Node)(nil)
	_ fs.NodeSetattrer  = (*Node)(nil)
	_ fs.NodeAccesser   = (*Node)(nil)
	_ fs.NodeStatfser   = (*Node)(nil)
	_ fs.NodeLookuper   = (*Node)(nil)
	_ fs.NodeReaddirer  = (*Node)(nil)
	_ fs.NodeMkdirer    = (*Node)(nil)
	_ fs.NodeCreater    = (*Node)(nil)
	_ fs.NodeUnlinker   = (*Node)(nil)
	_ fs.NodeRmdirer    = (*Node)(nil)
	_ fs.NodeRenamer    = (*Node)(nil)
	_ fs.NodeSymlinker  = (*Node)(nil)
	_ fs.NodeReadlinker = (*Node)(nil)
	_ fs.NodeLinker     = (*Node)(nil)
	_ fs.NodeOpener     = (*Node)(nil)
)

func (n *Node) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	stat, errno := n.d.Getattr(ctx, n.path)
	if errno != drive.EOK {
		return toSyscallErrno(errno)
	}
	out.Attr = attrFromStat(stat)
	return 0
}

func (n *Node) Setattr(ctx context.Context, f fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if size, ok := in.GetSize(); ok {
		if errno := n.d.Truncate(ctx, n.path, int64(size)); errno != drive.EOK {
			return toSyscallErrno(errno)
		}
	}
	if mode, ok := in.GetMode(); ok {
		if errno := n.d.Chmod(ctx, n.path, mode); errno != drive.EOK {
			return toSyscallErrno(errno)
		}
	}
	if mtime, ok := in.GetMTime(); ok {
		if errno := n.d.Utimens(ctx, n.path, mtime, mtime); errno != drive.EOK {
			return toSyscallErrno(errno)
		}
	}
	return n.Getattr(ctx, nil, out)
}

func (n *Node) Access(ctx context.Context, mask uint32) syscall.Errno {
	uid, gid := n.d.DefaultOwner()
	return toSyscallErrno(n.d.Access(ctx, n.path, uid, gid, mask))
}

func (n *Node) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	res := n.d.Statfs()
	out.Bsize = res.BlockSize
	out.Blocks = res.Blocks
	out.Bfree = res.BlocksFree
	out.Bavail = res.BlocksFree
	out.Files = res.Files
	out.NameLen = res.NameMax
	return 0
}

func (n *Node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	childPath := joinPath(n.path, name)
	if target, ok := n.d.Readlink(childPath); ok == drive.EOK {
		_ = target
		child := &Node{d: n.d, path: childPath}
		return n.NewInode(ctx, child, fs.StableAttr{Mode: syscall.S_IFLNK}), 0
	}
	stat, errno := n.d.Getattr(ctx, childPath)
	if errno != drive.EOK {
		return nil, toSyscallErrno(errno)
	}
	out.Attr = attrFromStat(stat)
	child := &Node{d: n.d, path: childPath}
	return n.NewInode(ctx, child, fs.StableAttr{Mode: stat.Mode & syscall.S_IFMT}), 0
}

func (n *Node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries, errno := n.d.Readdir(ctx, n.path)
	if errno != drive.EOK {
		return nil, toSyscallErrno(errno)
	}
	out := make([]fuse.DirEntry, 0, len(entries))
	for _, e := range entries {
		mode := uint32(fuse.S_IFREG)
		if e.IsDir {
			mode = fuse.S_IFDIR
		}
		out = append(out, fuse.DirEntry{Name: e.Name, Mode: mode})
	}
	return fs.NewListDirStream(out), 0
}

func (n *Node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	childPath := joinPath(n.path, name)
	uid, gid := n.d.DefaultOwner()
	if errno := n.d.Mkdir(ctx, childPath, mode, uid, gid); errno != drive.EOK {
		return nil, toSyscallErrno(errno)
	}
	stat, errno := n.d.Getattr(ctx, childPath)
	if errno != drive.EOK {
		return nil, toSyscallErrno(errno)
	}
	out.Attr = attrFromStat(stat)
	return n.NewInode(ctx, &Node{d: n.d, path: childPath}, fs.StableAttr{Mode: fuse.S_IFDIR}), 0
}

func (n *Node) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	childPath := joinPath(n.path, name)
	uid, gid := n.d.DefaultOwner()
	h, errno := n.d.Create(ctx, childPath, mode, uid, gid)
	if errno != drive.EOK {
		return nil, nil, 0, toSyscallErrno(errno)
	}
	stat, errno := n.d.Getattr(ctx, childPath)
	if errno != drive.EOK {
		return nil, nil, 0, toSyscallErrno(errno)
	}
	out.Attr = attrFromStat(stat)
	child := n.NewInode(ctx, &Node{d: n.d, path: childPath}, fs.StableAttr{Mode: fuse.S_IFREG})
	return child, &FileHandle{d: n.d, handle: h}, 0, 0
}

func (n *Node) Unlink(ctx context.Context, name string) syscall.Errno {
	return toSyscallErrno(n.d.Unlink(ctx, joinPath(n.path, name)))
}

func (n *Node) Rmdir(ctx context.Context, name string) syscall.Errno {
	return toSyscallErrno(n.d.Rmdir(ctx, joinPath(n.path, name)))
}

func (n *Node) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	newParentNode, ok := newParent.(*Node)
	if !ok {
		return syscall.EINVAL
	}
	oldPath := joinPath(n.path, name)
	newPath := joinPath(newParentNode.path, newName)
	return toSyscallErrno(n.d.Rename(ctx, oldPath, newPath))
}

func (n *Node) Symlink(ctx context.Context, target, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	linkPath := joinPath(n.path, name)
	uid, gid := n.d.DefaultOwner()
	if errno := n.d.Symlink(target, linkPath, uid, gid); errno != drive.EOK {
		return nil, toSyscallErrno(errno)
	}
	out.Attr.Mode = syscall.S_IFLNK | 0o777
	return n.NewInode(ctx, &Node{d: n.d, path: linkPath}, fs.StableAttr{Mode: syscall.S_IFLNK}), 0
}

func (n *Node) Readlink(ctx context.Context) ([]byte, syscall.Errno) {
	target, errno := n.d.Readlink(n.path)
	if errno != drive.EOK {
		return nil, toSyscallErrno(errno)
	}
	return []byte(target), 0
}

func (n *Node) Link(ctx context.Context, target fs.InodeEmbedder, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	targetNode, ok := target.(*Node)
	if !ok {
		return nil, syscall.EINVAL
	}
	newPath := joinPath(n.path, name)
	if errno := n.d.Link(ctx, targetNode.path, newPath); errno != drive.EOK {
		return nil, toSyscallErrno(errno)
	}
	stat, errno := n.d.Getattr(ctx, newPath)
	if errno != drive.EOK {
		return nil, toSyscallErrno(errno)
	}
	out.Attr = attrFromStat(stat)
	return n.NewInode(ctx, &Node{d: n.d, path: newPath}, fs.StableAttr{Mode: fuse.S_IFREG}), 0
}

func (n *Node) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	h, errno := n.d.Open(ctx, n.path, flags)
	if errno != drive.EOK {
		return nil, 0, toSyscallErrno(errno)
	}
	return &FileHandle{d: n.d, handle: h}, 0, 0
}

// FileHandle wraps the uint64 handle Drive's Open/Create return.
type FileHandle struct {
	d      *drive.Drive
	handle uint64
}

var (
	_ fs.FileReader   = (*FileHandle)(nil)
	_ fs.FileWriter   = (*FileHandle)(nil)
	_ fs.FileReleaser = (*FileHandle)(nil)
)

func (fh *FileHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	n, errno := fh.d.Read(ctx, fh.handle, off, dest)
	if errno != drive.EOK {
		return nil, toSyscallErrno(errno)
	}
	return fuse.ReadResultData(dest[:n]), 0
}

func (fh *FileHandle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	n, errno := fh.d.Write(fh.handle, off, data)
	if errno != drive.EOK {
		return 0, toSyscallErrno(errno)
	}
	return uint32(n), 0
}

func (fh *FileHandle) Release(ctx context.Context) syscall.Errno {
	return toSyscallErrno(fh.d.Release(fh.handle))
}
