// Package metadata implements FileMetaData and Manager, the per-path POSIX
// stat record and its LRU-bounded table described in SPEC_FULL.md §4.D.
package metadata

import (
	"container/list"
	"sync"
	"time"
)

const (
	// S_IFDIR and S_IFREG mirror the POSIX type bits ORed into Mode by
	// ToStat; stdlib os.FileMode is avoided here since the value must
	// match the raw bits the host callback surface expects.
	sIFDIR = 0o040000
	sIFREG = 0o100000

	blockSize = 512
	blksize   = 4096
)

// FileMetaData is the POSIX metadata record for one path.
type FileMetaData struct {
	mu sync.Mutex

	Path       string
	Size       int64
	Mode       uint32 // permission bits only; type bits are added by ToStat
	UID        uint32
	GID        uint32
	AccessTime time.Time
	ModifyTime time.Time
	ChangeTime time.Time
	IsDir      bool
	FileOpen   bool
	NeedUpload bool
}

// Stat is a POSIX-stat-shaped projection of a FileMetaData, independent of
// any particular FUSE binding's attribute struct.
type Stat struct {
	Mode    uint32
	Size    int64
	Blocks  int64
	Blksize int32
	Nlink   uint32
	UID     uint32
	GID     uint32
	Atime   time.Time
	Mtime   time.Time
	Ctime   time.Time
}

// ToStat translates m into its POSIX stat representation: mode is OR'd
// with the type bits, blocks is size/512+1, blksize is a fixed 4 KiB, and
// numlink is 2 for directories and 1 otherwise.
func (m *FileMetaData) ToStat() Stat {
	m.mu.Lock()
	defer m.mu.Unlock()

	mode := m.Mode
	nlink := uint32(1)
	if m.IsDir {
		mode |= sIFDIR
		nlink = 2
	} else {
		mode |= sIFREG
	}

	return Stat{
		Mode:    mode,
		Size:    m.Size,
		Blocks:  m.Size/blockSize + 1,
		Blksize: blksize,
		Nlink:   nlink,
		UID:     m.UID,
		GID:     m.GID,
		Atime:   m.AccessTime,
		Mtime:   m.ModifyTime,
		Ctime:   m.ChangeTime,
	}
}

// amode bits, matching the POSIX access(2) request mask.
const (
	R_OK = 4
	W_OK = 2
	X_OK = 1
)

// Access reports whether the identity (uid, gid) is granted the requested
// amode bits (a combination of R_OK/W_OK/X_OK) against this entry's owner,
// group, and other permission bits. uid == 0 (root) always passes, except
// that execute still requires at least one x bit set somewhere in Mode.
func (m *FileMetaData) Access(uid, gid uint32, amode uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if uid == 0 {
		if amode&X_OK == 0 {
			return true
		}
		return m.Mode&0o111 != 0
	}

	var bits uint32
	switch {
	case uid == m.UID:
		bits = (m.Mode >> 6) & 0o7
	case gid == m.GID:
		bits = (m.Mode >> 3) & 0o7
	default:
		bits = m.Mode & 0o7
	}
	return uint32(amode)&bits == uint32(amode)
}

// SetFileOpen records whether path is currently held open by a host
// callback caller, protecting it from the Manager's and Cache's eviction.
func (m *FileMetaData) SetFileOpen(open bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FileOpen = open
}

// IsFileOpen reports the current open state set by SetFileOpen.
func (m *FileMetaData) IsFileOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.FileOpen
}

// SetNeedUpload records whether path has unflushed writes pending upload.
func (m *FileMetaData) SetNeedUpload(need bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NeedUpload = need
}

// NeedsUpload reports the current need-upload state.
func (m *FileMetaData) NeedsUpload() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.NeedUpload
}

// SetSize updates the tracked size and bumps ModifyTime/ChangeTime to now.
func (m *FileMetaData) SetSize(size int64, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Size = size
	m.ModifyTime = now
	m.ChangeTime = now
}

// GetSize returns the tracked size.
func (m *FileMetaData) GetSize() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Size
}

// SetMode updates the permission bits and bumps ChangeTime.
func (m *FileMetaData) SetMode(mode uint32, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Mode = mode
	m.ChangeTime = now
}

// SetOwner updates uid/gid and bumps ChangeTime.
func (m *FileMetaData) SetOwner(uid, gid uint32, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UID = uid
	m.GID = gid
	m.ChangeTime = now
}

// SetTimes updates the access and modify times.
func (m *FileMetaData) SetTimes(atime, mtime time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AccessTime = atime
	m.ModifyTime = mtime
}

type entryList struct {
	meta *FileMetaData
	el   *list.Element
}

// Manager is an LRU-bounded table of FileMetaData keyed by path.
type Manager struct {
	mu         sync.Mutex
	maxEntries int
	ttl        time.Duration

	entries map[string]*entryList
	order   *list.List // front = most recently used
}

// NewManager creates a Manager. maxEntries <= 0 means unbounded; ttl <= 0
// disables expiry.
func NewManager(maxEntries int, ttl time.Duration) *Manager {
	return &Manager{
		maxEntries: maxEntries,
		ttl:        ttl,
		entries:    make(map[string]*entryList),
		order:      list.New(),
	}
}

// Add inserts meta, evicting LRU entries (skipping open files) if the
// table is at capacity. Returns false if insertion could not make room.
func (m *Manager) Add(meta *FileMetaData) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.entries[meta.Path]; ok {
		el.meta = meta
		m.order.MoveToFront(el.el)
		return true
	}

	if m.maxEntries > 0 && len(m.entries) >= m.maxEntries {
		if !m.evictOneLocked() {
			return false
		}
	}

	el := m.order.PushFront(meta.Path)
	m.entries[meta.Path] = &entryList{meta: meta, el: el}
	return true
}

func (m *Manager) evictOneLocked() bool {
	for el := m.order.Back(); el != nil; el = el.Prev() {
		path := el.Value.(string)
		entry := m.entries[path]
		if entry == nil {
			continue
		}
		entry.meta.mu.Lock()
		open := entry.meta.FileOpen
		entry.meta.mu.Unlock()
		if open {
			continue
		}
		m.order.Remove(el)
		delete(m.entries, path)
		return true
	}
	return false
}

// Get returns the FileMetaData for path, or nil with ok=false if absent or
// expired.
func (m *Manager) Get(path string) (*FileMetaData, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[path]
	if !ok {
		return nil, false
	}
	if m.ttl > 0 && time.Since(entry.meta.ChangeTime) > m.ttl {
		m.order.Remove(entry.el)
		delete(m.entries, path)
		return nil, false
	}
	m.order.MoveToFront(entry.el)
	return entry.meta, true
}

// Has reports whether path has a live (non-expired) entry.
func (m *Manager) Has(path string) bool {
	_, ok := m.Get(path)
	return ok
}

// Erase removes path's entry.
func (m *Manager) Erase(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[path]
	if !ok {
		return
	}
	m.order.Remove(entry.el)
	delete(m.entries, path)
}

// Rename moves the entry at oldPath to newPath under one lock, updating
// both the index key and the FileMetaData's own Path field.
func (m *Manager) Rename(oldPath, newPath string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[oldPath]
	if !ok {
		return false
	}
	entry.meta.mu.Lock()
	entry.meta.Path = newPath
	entry.meta.mu.Unlock()

	delete(m.entries, oldPath)
	m.entries[newPath] = entry
	entry.el.Value = newPath
	return true
}

// Clear removes every entry.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*entryList)
	m.order.Init()
}

// Len returns the number of live entries.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
