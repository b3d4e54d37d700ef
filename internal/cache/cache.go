// Package cache implements Cache, the LRU collection of Files bounded by a
// byte budget described in SPEC_FULL.md §4.C. Cache never talks to the
// object store directly; read misses are satisfied through a caller-supplied
// FetchFunc so the transfer engine stays a separate, swappable concern.
package cache

import (
	"container/list"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/objectfs/objectfs/internal/diskcache"
	"github.com/objectfs/objectfs/internal/metrics"
	"github.com/objectfs/objectfs/internal/objfile"
)

// FetchFunc downloads [offset, offset+length) of key from the object store.
// It is supplied by Drive, which owns the transfer engine.
type FetchFunc func(ctx context.Context, key string, offset, length int64) ([]byte, error)

// Config configures a Cache.
type Config struct {
	// Capacity is the maximum sum of cached (memory-resident) bytes across
	// all Files.
	Capacity int64
	// DiskDir, if non-empty, enables disk fallback for Files that cannot
	// fit in the memory budget.
	DiskDir string
	Logger  *slog.Logger

	// Metrics, if non-nil, receives per-read hit/miss counts (SPEC_FULL.md
	// §11's cache hit/miss counters).
	Metrics *metrics.Collector
}

type entry struct {
	key  string
	file *objfile.File
	open bool
}

// Cache is an LRU map of key to File, bounded by a global memory-byte
// budget with optional disk-backed spill.
type Cache struct {
	mu       sync.Mutex
	capacity int64
	size     int64
	diskDir  string
	logger   *slog.Logger

	items map[string]*list.Element
	order *list.List // front = most recently used

	fetch     FetchFunc
	collector *metrics.Collector
}

// New creates a Cache. fetch is invoked to satisfy read misses; it may be
// nil for a Cache used only as a write-side staging area.
func New(cfg Config, fetch FetchFunc) *Cache {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		capacity:  cfg.Capacity,
		diskDir:   cfg.DiskDir,
		logger:    logger,
		items:     make(map[string]*list.Element),
		order:     list.New(),
		fetch:     fetch,
		collector: cfg.Metrics,
	}
}

func (c *Cache) touchLocked(key string) *entry {
	if el, ok := c.items[key]; ok {
		c.order.MoveToFront(el)
		return el.Value.(*entry)
	}
	e := &entry{key: key, file: objfile.New(key)}
	el := c.order.PushFront(e)
	c.items[key] = el
	return e
}

// Read satisfies [offset, offset+len(out)) for key, fetching any missing
// ranges through FetchFunc and filling them into the File before copying
// into out. Returns the number of bytes copied.
//
// remoteMtime is the caller's currently-known authoritative mtime for key
// (SPEC_FULL.md §4.B/§9); a zero value skips the staleness check. Drive
// passes the metadata manager's tracked ModifyTime so a File that went
// stale relative to the object store is invalidated before being read.
func (c *Cache) Read(ctx context.Context, key string, offset int64, out []byte, remoteMtime time.Time) (int, error) {
	c.mu.Lock()
	e := c.touchLocked(key)
	_, missing := e.file.Read(offset, int64(len(out)), remoteMtime)
	c.mu.Unlock()

	if c.collector != nil {
		if len(missing) == 0 {
			c.collector.RecordCacheHit(key, int64(len(out)))
		} else {
			var missingBytes int64
			for _, gap := range missing {
				missingBytes += gap.Len
			}
			c.collector.RecordCacheMiss(key, missingBytes)
		}
	}

	for _, gap := range missing {
		if c.fetch == nil {
			continue
		}
		data, err := c.fetch(ctx, key, gap.Offset, gap.Len)
		if err != nil {
			return 0, fmt.Errorf("cache: fetch %s [%d,%d): %w", key, gap.Offset, gap.Offset+gap.Len, err)
		}
		if err := e.file.Fill(gap.Offset, data); err != nil {
			return 0, err
		}
	}

	c.mu.Lock()
	c.size = c.totalCachedLocked()
	c.mu.Unlock()

	return e.file.CopyInto(offset, out)
}

// Write ensures key's File exists, makes room via Free if the memory budget
// is exceeded, falls back to disk if necessary, and delegates to
// File.Write.
func (c *Cache) Write(key string, offset int64, src []byte, mtime time.Time) error {
	c.mu.Lock()
	e := c.touchLocked(key)

	projected := c.size + int64(len(src))
	if projected > c.capacity {
		freed := c.freeLocked(projected-c.capacity, key)
		if !freed && c.diskDir != "" {
			if ok, _ := diskcache.IsSafeDiskSpace(c.diskDir, int64(len(src))); ok {
				e.file.SetDiskBacked(c.diskDir)
			}
		}
	}
	c.mu.Unlock()

	if err := e.file.Write(offset, src, mtime); err != nil {
		return err
	}

	c.mu.Lock()
	c.size = c.totalCachedLocked()
	c.mu.Unlock()
	return nil
}

// Resize truncates key's File to newSize; a newSize at or beyond the end of
// the cached pages leaves them unchanged (no pages are added).
func (c *Cache) Resize(key string, newSize int64, mtime time.Time) {
	c.mu.Lock()
	e := c.touchLocked(key)
	c.mu.Unlock()

	e.file.Resize(newSize, mtime)

	c.mu.Lock()
	c.size = c.totalCachedLocked()
	c.mu.Unlock()
}

// SetFileOpen marks key as open (not evictable) or closed.
func (c *Cache) SetFileOpen(key string, open bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.touchLocked(key)
	e.open = open
}

// Rename moves key's entry, if present, to newKey.
func (c *Cache) Rename(oldKey, newKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[oldKey]
	if !ok {
		return
	}
	e := el.Value.(*entry)
	e.key = newKey
	delete(c.items, oldKey)
	c.items[newKey] = el
}

// Erase drops key's File entirely, releasing its pages.
func (c *Cache) Erase(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eraseLocked(key)
}

func (c *Cache) eraseLocked(key string) {
	el, ok := c.items[key]
	if !ok {
		return
	}
	e := el.Value.(*entry)
	e.file.Clear()
	c.order.Remove(el)
	delete(c.items, key)
}

// Free pops least-recently-used Files, skipping spare and open ones, until
// at least bytesNeeded has been reclaimed from the memory budget. Returns
// whether enough was freed.
func (c *Cache) Free(bytesNeeded int64, spare string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.freeLocked(bytesNeeded, spare)
}

func (c *Cache) freeLocked(bytesNeeded int64, spare string) bool {
	var freed int64
	for el := c.order.Back(); el != nil && freed < bytesNeeded; {
		e := el.Value.(*entry)
		prev := el.Prev()
		if e.key == spare || e.open {
			el = prev
			continue
		}
		freed += e.file.CachedSize()
		c.order.Remove(el)
		e.file.Clear()
		delete(c.items, e.key)
		c.logger.Debug("cache evicted file", "key", e.key, "freed", freed)
		el = prev
	}
	c.size = c.totalCachedLocked()
	return freed >= bytesNeeded
}

func (c *Cache) totalCachedLocked() int64 {
	var total int64
	for _, el := range c.items {
		total += el.Value.(*entry).file.CachedSize()
	}
	return total
}

// HasFileData reports whether [offset, offset+length) is entirely resident
// for key.
func (c *Cache) HasFileData(key string, offset, length int64) bool {
	c.mu.Lock()
	el, ok := c.items[key]
	c.mu.Unlock()
	if !ok {
		return false
	}
	return el.Value.(*entry).file.HasData(offset, length)
}

// GetUnloadedRanges returns the gaps in key's File up to totalSize.
func (c *Cache) GetUnloadedRanges(key string, totalSize int64) []objfile.Range {
	c.mu.Lock()
	el, ok := c.items[key]
	c.mu.Unlock()
	if !ok {
		return []objfile.Range{{Offset: 0, Len: totalSize}}
	}
	return el.Value.(*entry).file.UnloadedRanges(totalSize)
}

// HasFile reports whether key currently has a cache entry.
func (c *Cache) HasFile(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[key]
	return ok
}

// Size returns the current sum of cached (memory-resident) bytes.
func (c *Cache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}
