package drive

import (
	"context"
	"time"

	"github.com/objectfs/objectfs/internal/metadata"
	"github.com/objectfs/objectfs/internal/transfer"
)

const symlinkMode = 0o120000 // S_IFLNK

func symlinkStat(target string, uid, gid uint32) metadata.Stat {
	return metadata.Stat{
		Mode:    symlinkMode | 0o777,
		Size:    int64(len(target)),
		Blocks:  1,
		Blksize: 4096,
		Nlink:   1,
		UID:     uid,
		GID:     gid,
	}
}

func (d *Drive) symlinkTarget(p string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	target, ok := d.symlinks[p]
	return target, ok
}

// Readlink returns the target a Symlink call recorded for path.
func (d *Drive) Readlink(p string) (string, Errno) {
	target, ok := d.symlinkTarget(normalizePath(p))
	if !ok {
		return "", ENOENT
	}
	return target, EOK
}

// Symlink records a local-only symlink at linkPath pointing at target.
// Symlinks do not survive a process restart (SPEC_FULL.md §9).
func (d *Drive) Symlink(target, linkPath string, uid, gid uint32) Errno {
	linkPath = normalizePath(linkPath)
	d.mu.Lock()
	d.symlinks[linkPath] = target
	d.mu.Unlock()
	return EOK
}

// Link creates a local-only hard link by duplicating oldPath's content and
// metadata under newPath. Because FileMetaData is keyed one-per-path (see
// SPEC_FULL.md §9's numlink open question), the two paths do not share a
// single metadata record the way a POSIX hardlink shares one inode; each
// copy's numlink is reported as 1. A process restart loses the association.
func (d *Drive) Link(ctx context.Context, oldPath, newPath string) Errno {
	n, errno := d.lookup(ctx, oldPath)
	if errno != EOK {
		return errno
	}
	if n.Meta.IsDir {
		return EISDIR
	}

	oldKey := keyForPath(normalizePath(oldPath))
	newPath = normalizePath(newPath)
	newKey := keyForPath(newPath)

	data, err := d.store.GetObjectRange(ctx, oldKey, 0, n.Meta.GetSize())
	if err != nil {
		return errnoFromStoreError(err)
	}
	if err := d.store.PutObject(ctx, newKey, data); err != nil {
		return errnoFromStoreError(err)
	}

	now := time.Now()
	stat := n.Meta.ToStat()
	m := &metadata.FileMetaData{
		Path:       newPath,
		Size:       stat.Size,
		Mode:       stat.Mode &^ 0o170000, // strip ToStat's type bits back off
		UID:        stat.UID,
		GID:        stat.GID,
		ModifyTime: now,
		AccessTime: now,
		ChangeTime: now,
	}
	d.meta.Add(m)
	d.tree.Grow(m)
	return EOK
}

// Mknod creates a regular file node; special device/fifo types have no
// representation in an object store and are rejected.
func (d *Drive) Mknod(p string, mode uint32, uid, gid uint32) Errno {
	const sIFREG = 0o100000
	if mode&0o170000 != 0 && mode&0o170000 != sIFREG {
		return ENOSYS
	}
	return d.createEmpty(context.Background(), p, mode&0o7777, uid, gid, false)
}

// Mkdir creates an empty trailing-slash marker object representing a
// directory, matching the reference tree's Mkdir.
func (d *Drive) Mkdir(ctx context.Context, p string, mode uint32, uid, gid uint32) Errno {
	return d.createEmpty(ctx, p, mode, uid, gid, true)
}

func (d *Drive) createEmpty(ctx context.Context, p string, mode, uid, gid uint32, isDir bool) Errno {
	p = normalizePath(p)
	key := keyForPath(p)
	if isDir {
		key += "/"
	}
	if err := d.store.PutObject(ctx, key, nil); err != nil {
		d.logger.Warn("drive: create failed", "path", p, "error", err)
		return errnoFromStoreError(err)
	}

	now := time.Now()
	m := &metadata.FileMetaData{
		Path:       p,
		Mode:       mode,
		UID:        uid,
		GID:        gid,
		IsDir:      isDir,
		ModifyTime: now,
		AccessTime: now,
		ChangeTime: now,
	}
	d.meta.Add(m)
	d.tree.Grow(m)
	if isDir {
		if n, ok := d.tree.Find(p); ok {
			n.SetListed(true)
		}
	}
	return EOK
}

// Create creates a new regular file and opens it in one step, mirroring the
// reference tree's Create (empty PutObject, then an immediate Open).
func (d *Drive) Create(ctx context.Context, p string, mode uint32, uid, gid uint32) (uint64, Errno) {
	if errno := d.createEmpty(ctx, p, mode, uid, gid, false); errno != EOK {
		return 0, errno
	}
	return d.Open(ctx, p, 0)
}

// Open returns a handle for an already-existing path.
func (d *Drive) Open(ctx context.Context, p string, flags uint32) (uint64, Errno) {
	n, errno := d.lookup(ctx, p)
	if errno != EOK {
		return 0, errno
	}
	n.Meta.SetFileOpen(true)
	d.cache.SetFileOpen(keyForPath(n.Path), true)

	d.mu.Lock()
	h := d.nextHandle
	d.nextHandle++
	d.openFiles[h] = &openFile{path: n.Path, flags: flags}
	d.mu.Unlock()
	return h, EOK
}

// Read reads len(dest) bytes at offset from the file behind handle.
func (d *Drive) Read(ctx context.Context, handle uint64, offset int64, dest []byte) (int, Errno) {
	d.mu.Lock()
	of, ok := d.openFiles[handle]
	d.mu.Unlock()
	if !ok {
		return 0, EINVAL
	}

	n, errno := d.lookup(ctx, of.path)
	if errno != EOK {
		return 0, errno
	}

	size := n.Meta.GetSize()
	if offset >= size {
		return 0, EOK
	}
	if offset+int64(len(dest)) > size {
		dest = dest[:size-offset]
	}

	read, err := d.cache.Read(ctx, keyForPath(n.Path), offset, dest, n.Meta.ToStat().Mtime)
	if err != nil {
		d.logger.Warn("drive: read failed", "path", n.Path, "offset", offset, "error", err)
		return 0, errnoFromStoreError(err)
	}
	return read, EOK
}

// Write writes src at offset into the file behind handle, extending its
// size and marking it dirty.
func (d *Drive) Write(handle uint64, offset int64, src []byte) (int, Errno) {
	d.mu.Lock()
	of, ok := d.openFiles[handle]
	d.mu.Unlock()
	if !ok {
		return 0, EINVAL
	}

	n, errno := d.lookup(context.Background(), of.path)
	if errno != EOK {
		return 0, errno
	}

	now := time.Now()
	if err := d.cache.Write(keyForPath(n.Path), offset, src, now); err != nil {
		d.logger.Warn("drive: write failed", "path", n.Path, "offset", offset, "error", err)
		return 0, EIO
	}

	if newSize := offset + int64(len(src)); newSize > n.Meta.GetSize() {
		n.Meta.SetSize(newSize, now)
	} else {
		n.Meta.SetTimes(now, now)
	}
	n.Meta.SetNeedUpload(true)
	return len(src), EOK
}

// Truncate resizes path's cached content and stored size.
func (d *Drive) Truncate(ctx context.Context, p string, size int64) Errno {
	n, errno := d.lookup(ctx, p)
	if errno != EOK {
		return errno
	}
	now := time.Now()
	d.cache.Resize(keyForPath(n.Path), size, now)
	n.Meta.SetSize(size, now)
	n.Meta.SetNeedUpload(true)
	return EOK
}

// Release closes handle, flushing a dirty file's cached content to the
// object store (SPEC_FULL.md §4.I: "on release of a dirty file, schedules
// an upload").
func (d *Drive) Release(handle uint64) Errno {
	d.mu.Lock()
	of, ok := d.openFiles[handle]
	if ok {
		delete(d.openFiles, handle)
	}
	d.mu.Unlock()
	if !ok {
		return EINVAL
	}

	n, errno := d.lookup(context.Background(), of.path)
	if errno != EOK {
		return errno
	}

	n.Meta.SetFileOpen(false)
	d.cache.SetFileOpen(keyForPath(n.Path), false)

	if n.Meta.NeedsUpload() {
		d.scheduleUpload(n.Path)
	}
	return EOK
}

// scheduleUpload submits a background upload of path's current cached
// content, clearing need_upload only once the engine reports Completed.
func (d *Drive) scheduleUpload(p string) {
	key := keyForPath(p)
	n, ok := d.tree.Find(p)
	if !ok {
		return
	}
	size := n.Meta.GetSize()
	source := &cacheReaderAt{cache: d.cache, key: key}

	d.pool.Submit(func() {
		ctx := context.Background()
		h := d.engine.UploadFile(ctx, key, size, source)
		if status := h.WaitUntilFinished(); status != transfer.Completed {
			d.logger.Warn("drive: background upload did not complete", "path", p, "status", status)
			return
		}
		n.Meta.SetNeedUpload(false)
	})
}

// cacheReaderAt adapts a Cache's already-resident file content to
// io.ReaderAt for the transfer engine's upload path. It assumes the bytes
// being uploaded were all written through the same Cache and are resident
// (no fetch is triggered), so it passes a zero mtime: this is re-reading
// the client's own just-written content, not a remote-staleness check.
type cacheReaderAt struct {
	cache interface {
		Read(ctx context.Context, key string, offset int64, out []byte, remoteMtime time.Time) (int, error)
	}
	key string
}

func (r *cacheReaderAt) ReadAt(p []byte, off int64) (int, error) {
	n, err := r.cache.Read(context.Background(), r.key, off, p, time.Time{})
	return n, err
}

// Unlink removes a file.
func (d *Drive) Unlink(ctx context.Context, p string) Errno {
	p = normalizePath(p)
	if _, ok := d.symlinkTarget(p); ok {
		d.mu.Lock()
		delete(d.symlinks, p)
		d.mu.Unlock()
		return EOK
	}

	n, errno := d.lookup(ctx, p)
	if errno != EOK {
		return errno
	}
	if n.Meta.IsDir {
		return EISDIR
	}

	if err := d.store.DeleteObject(ctx, keyForPath(p)); err != nil {
		d.logger.Warn("drive: unlink failed", "path", p, "error", err)
		return errnoFromStoreError(err)
	}
	d.cache.Erase(keyForPath(p))
	d.meta.Erase(p)
	d.tree.Remove(p)
	return EOK
}

// Rmdir removes an empty directory.
func (d *Drive) Rmdir(ctx context.Context, p string) Errno {
	p = normalizePath(p)
	n, errno := d.lookup(ctx, p)
	if errno != EOK {
		return errno
	}
	if !n.Meta.IsDir {
		return ENOTDIR
	}
	if errno := d.ensureListed(ctx, p); errno != EOK {
		return errno
	}
	if len(d.tree.ChildrenRange(p)) > 0 {
		return ENOTEMPTY
	}

	key := keyForPath(p) + "/"
	if err := d.store.DeleteObject(ctx, key); err != nil {
		d.logger.Warn("drive: rmdir failed", "path", p, "error", err)
		return errnoFromStoreError(err)
	}
	d.meta.Erase(p)
	d.tree.Remove(p)
	return EOK
}

// Rename moves oldPath to newPath. Since the object store has no native
// rename, this copies the object under the new key and deletes the old one;
// the tree/metadata/cache move is performed first so that at no observable
// instant are both keys present in the tree (SPEC_FULL.md §8).
func (d *Drive) Rename(ctx context.Context, oldPath, newPath string) Errno {
	oldPath, newPath = normalizePath(oldPath), normalizePath(newPath)

	n, errno := d.lookup(ctx, oldPath)
	if errno != EOK {
		return errno
	}

	oldKey, newKey := keyForPath(oldPath), keyForPath(newPath)
	if n.Meta.IsDir {
		oldKey += "/"
		newKey += "/"
	}

	if !n.Meta.IsDir {
		data, err := d.store.GetObjectRange(ctx, oldKey, 0, n.Meta.GetSize())
		if err != nil {
			return errnoFromStoreError(err)
		}
		if err := d.store.PutObject(ctx, newKey, data); err != nil {
			return errnoFromStoreError(err)
		}
	} else {
		if err := d.store.PutObject(ctx, newKey, nil); err != nil {
			return errnoFromStoreError(err)
		}
	}

	if !d.tree.Rename(oldPath, newPath) {
		return ENOENT
	}
	d.meta.Rename(oldPath, newPath)
	d.cache.Rename(oldKey, newKey)

	if err := d.store.DeleteObject(ctx, oldKey); err != nil {
		d.logger.Warn("drive: rename could not delete old key", "old", oldPath, "error", err)
	}
	return EOK
}

// Chmod updates path's permission bits.
func (d *Drive) Chmod(ctx context.Context, p string, mode uint32) Errno {
	n, errno := d.lookup(ctx, p)
	if errno != EOK {
		return errno
	}
	n.Meta.SetMode(mode, time.Now())
	return EOK
}

// Chown updates path's owner/group.
func (d *Drive) Chown(ctx context.Context, p string, uid, gid uint32) Errno {
	n, errno := d.lookup(ctx, p)
	if errno != EOK {
		return errno
	}
	n.Meta.SetOwner(uid, gid, time.Now())
	return EOK
}

// Utimens updates path's access and modification times.
func (d *Drive) Utimens(ctx context.Context, p string, atime, mtime time.Time) Errno {
	n, errno := d.lookup(ctx, p)
	if errno != EOK {
		return errno
	}
	n.Meta.SetTimes(atime, mtime)
	return EOK
}

