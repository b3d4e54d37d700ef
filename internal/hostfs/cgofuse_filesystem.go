//go:build cgofuse
// +build cgofuse

package hostfs

import (
	"context"
	"sync"
	"time"

	"github.com/winfsp/cgofuse/fuse"

	"github.com/objectfs/objectfs/internal/drive"
)

// CgoFuseFS adapts Drive to cgofuse's path-based FileSystemBase, grounded on
// the reference tree's own cgofuse adapter. Unlike the go-fuse/v2 adapter,
// there is no parallel Inode tree here: every callback resolves a path
// straight through Drive, matching cgofuse's path-addressed model.
type CgoFuseFS struct {
	fuse.FileSystemBase

	d *drive.Drive

	mu        sync.Mutex
	openPaths map[uint64]string
}

// NewCgoFuseFS constructs a CgoFuseFS bound to d.
func NewCgoFuseFS(d *drive.Drive) *CgoFuseFS {
	return &CgoFuseFS{d: d, openPaths: make(map[uint64]string)}
}

func toErrno(e drive.Errno) int {
	switch e {
	case drive.EOK:
		return 0
	case drive.ENOENT:
		return -fuse.ENOENT
	case drive.EACCES:
		return -fuse.EACCES
	case drive.EEXIST:
		return -fuse.EEXIST
	case drive.ENOTEMPTY:
		return -fuse.ENOTEMPTY
	case drive.ENOTDIR:
		return -fuse.ENOTDIR
	case drive.EISDIR:
		return -fuse.EISDIR
	case drive.EROFS:
		return -fuse.EROFS
	case drive.EINVAL:
		return -fuse.EINVAL
	case drive.ENOSYS:
		return -fuse.ENOSYS
	case drive.ENAMETOOLONG:
		return -fuse.ENAMETOOLONG
	default:
		return -fuse.EIO
	}
}

func applyStat(stat *fuse.Stat_t, mode uint32, size int64, nlink uint32, uid, gid uint32, mtime, atime, ctime time.Time) {
	stat.Mode = mode
	stat.Size = size
	stat.Nlink = nlink
	stat.Uid = uid
	stat.Gid = gid
	stat.Mtim.Sec = mtime.Unix()
	stat.Mtim.Nsec = int64(mtime.Nanosecond())
	stat.Atim.Sec = atime.Unix()
	stat.Atim.Nsec = int64(atime.Nanosecond())
	stat.Ctim.Sec = ctime.Unix()
	stat.Ctim.Nsec = int64(ctime.Nanosecond())
}

func (fs *CgoFuseFS) Getattr(path string, stat *fuse.Stat_t, fh uint64) int {
	ctx := context.Background()
	s, errno := fs.d.Getattr(ctx, path)
	if errno != drive.EOK {
		return toErrno(errno)
	}
	applyStat(stat, s.Mode, s.Size, s.Nlink, s.UID, s.GID, s.Mtime, s.Atime, s.Ctime)
	return 0
}

func (fs *CgoFuseFS) Mkdir(path string, mode uint32) int {
	uid, gid := fs.d.DefaultOwner()
	return toErrno(fs.d.Mkdir(context.Background(), path, mode, uid, gid))
}

func (fs *CgoFuseFS) Unlink(path string) int {
	return toErrno(fs.d.Unlink(context.Background(), path))
}

func (fs *CgoFuseFS) Rmdir(path string) int {
	return toErrno(fs.d.Rmdir(context.Background(), path))
}

func (fs *CgoFuseFS) Rename(oldpath string, newpath string) int {
	return toErrno(fs.d.Rename(context.Background(), oldpath, newpath))
}

func (fs *CgoFuseFS) Symlink(target string, newpath string) int {
	uid, gid := fs.d.DefaultOwner()
	return toErrno(fs.d.Symlink(target, newpath, uid, gid))
}

func (fs *CgoFuseFS) Readlink(path string) (int, string) {
	target, errno := fs.d.Readlink(path)
	if errno != drive.EOK {
		return toErrno(errno), ""
	}
	return 0, target
}

func (fs *CgoFuseFS) Link(oldpath string, newpath string) int {
	return toErrno(fs.d.Link(context.Background(), oldpath, newpath))
}

func (fs *CgoFuseFS) Chmod(path string, mode uint32) int {
	return toErrno(fs.d.Chmod(context.Background(), path, mode))
}

func (fs *CgoFuseFS) Chown(path string, uid uint32, gid uint32) int {
	return toErrno(fs.d.Chown(context.Background(), path, uid, gid))
}

func (fs *CgoFuseFS) Utimens(path string, tmsp []fuse.Timespec) int {
	now := time.Now()
	atime, mtime := now, now
	if len(tmsp) == 2 {
		atime = time.Unix(tmsp[0].Sec, tmsp[0].Nsec)
		mtime = time.Unix(tmsp[1].Sec, tmsp[1].Nsec)
	}
	return toErrno(fs.d.Utimens(context.Background(), path, atime, mtime))
}

func (fs *CgoFuseFS) Truncate(path string, size int64, fh uint64) int {
	return toErrno(fs.d.Truncate(context.Background(), path, size))
}

func (fs *CgoFuseFS) Create(path string, flags int, mode uint32) (int, uint64) {
	uid, gid := fs.d.DefaultOwner()
	h, errno := fs.d.Create(context.Background(), path, mode, uid, gid)
	if errno != drive.EOK {
		return toErrno(errno), ^uint64(0)
	}
	fs.mu.Lock()
	fs.openPaths[h] = path
	fs.mu.Unlock()
	return 0, h
}

func (fs *CgoFuseFS) Open(path string, flags int) (int, uint64) {
	h, errno := fs.d.Open(context.Background(), path, uint32(flags))
	if errno != drive.EOK {
		return toErrno(errno), ^uint64(0)
	}
	fs.mu.Lock()
	fs.openPaths[h] = path
	fs.mu.Unlock()
	return 0, h
}

func (fs *CgoFuseFS) Read(path string, buff []byte, ofst int64, fh uint64) int {
	n, errno := fs.d.Read(context.Background(), fh, ofst, buff)
	if errno != drive.EOK {
		return toErrno(errno)
	}
	return n
}

func (fs *CgoFuseFS) Write(path string, buff []byte, ofst int64, fh uint64) int {
	n, errno := fs.d.Write(fh, ofst, buff)
	if errno != drive.EOK {
		return toErrno(errno)
	}
	return n
}

func (fs *CgoFuseFS) Release(path string, fh uint64) int {
	errno := fs.d.Release(fh)
	fs.mu.Lock()
	delete(fs.openPaths, fh)
	fs.mu.Unlock()
	return toErrno(errno)
}

func (fs *CgoFuseFS) Access(path string, mask uint32) int {
	uid, gid := fs.d.DefaultOwner()
	return toErrno(fs.d.Access(context.Background(), path, uid, gid, mask))
}

func (fs *CgoFuseFS) Statfs(path string, stat *fuse.Statfs_t) int {
	res := fs.d.Statfs()
	stat.Bsize = uint64(res.BlockSize)
	stat.Frsize = uint64(res.BlockSize)
	stat.Blocks = res.Blocks
	stat.Bfree = res.BlocksFree
	stat.Bavail = res.BlocksFree
	stat.Files = res.Files
	stat.Namemax = uint64(res.NameMax)
	return 0
}

func (fs *CgoFuseFS) Readdir(path string,
	fill func(name string, stat *fuse.Stat_t, ofst int64) bool,
	ofst int64, fh uint64) int {

	entries, errno := fs.d.Readdir(context.Background(), path)
	if errno != drive.EOK {
		return toErrno(errno)
	}

	fill(".", nil, 0)
	fill("..", nil, 0)
	for _, e := range entries {
		var stat fuse.Stat_t
		if e.IsDir {
			stat.Mode = fuse.S_IFDIR | 0o755
			stat.Nlink = 2
		} else {
			stat.Mode = fuse.S_IFREG | 0o644
			stat.Nlink = 1
		}
		if !fill(e.Name, &stat, 0) {
			break
		}
	}
	return 0
}
