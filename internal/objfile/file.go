// Package objfile implements File, the ordered page set for one object key
// described in SPEC_FULL.md §3/§4.B. A File never performs I/O itself; it
// only tracks which byte ranges are resident and reports the gaps.
package objfile

import (
	"sort"
	"sync"
	"time"

	"github.com/objectfs/objectfs/internal/page"
)

// Range is a half-open [Offset, Offset+Len) byte range.
type Range struct {
	Offset int64
	Len    int64
}

// File owns a sorted, non-overlapping set of Pages for one key.
type File struct {
	mu sync.Mutex

	pages      []*page.Page
	mtime      time.Time
	diskBacked bool
	diskDir    string
	key        string
}

// New creates an empty File for key.
func New(key string) *File {
	return &File{key: key}
}

// SetDiskBacked switches the File so that new pages are created on disk
// under dir; existing memory pages remain memory-resident until evicted.
func (f *File) SetDiskBacked(dir string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.diskBacked = true
	f.diskDir = dir
}

// IsDiskBacked reports whether new pages are currently disk-backed.
func (f *File) IsDiskBacked() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.diskBacked
}

// Mtime returns the File's last-known modification time.
func (f *File) Mtime() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mtime
}

// CachedSize returns the sum of sizes of memory-resident pages.
func (f *File) CachedSize() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cachedSizeLocked()
}

func (f *File) cachedSizeLocked() int64 {
	var total int64
	for _, p := range f.pages {
		total += p.CachedSize()
	}
	return total
}

// LogicalSize returns the sum of sizes of all pages, memory- and
// disk-backed.
func (f *File) LogicalSize() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total int64
	for _, p := range f.pages {
		total += p.Size
	}
	return total
}

// Read returns the subset of pages intersecting [offset, offset+len) and
// the gaps within that window. The caller is responsible for filling gaps
// via the transfer engine and re-invoking Read; File itself never performs
// I/O.
//
// remoteMtime is the caller's currently-known authoritative mtime for the
// object (SPEC_FULL.md §4.B's read(offset, len, cached_mtime) signature). A
// zero remoteMtime skips the check entirely. Otherwise: if the File has no
// mtime of its own yet, remoteMtime is adopted outright; if remoteMtime is
// newer than the File's mtime, the object changed out from under the cache
// and all pages are cleared before the range is computed (SPEC_FULL.md §9:
// "reads with a newer mtime do" invalidate; writes never do).
func (f *File) Read(offset, length int64, remoteMtime time.Time) (pages []*page.Page, missing []Range) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !remoteMtime.IsZero() {
		switch {
		case f.mtime.IsZero():
			f.mtime = remoteMtime
		case remoteMtime.After(f.mtime):
			f.clearLocked()
			f.mtime = remoteMtime
		}
	}

	end := offset + length
	cursor := offset

	for _, p := range f.pages {
		if p.End() <= offset {
			continue
		}
		if p.Offset >= end {
			break
		}
		if p.Offset > cursor {
			missing = append(missing, Range{Offset: cursor, Len: p.Offset - cursor})
		}
		pages = append(pages, p)
		if p.End() > cursor {
			cursor = p.End()
		}
	}
	if cursor < end {
		missing = append(missing, Range{Offset: cursor, Len: end - cursor})
	}
	return pages, missing
}

// CopyInto reads [offset, offset+len(out)) into out using the currently
// resident pages only, zero-filling any gap. It does not consult the
// transfer engine; callers first ensure data residency via Read+fetch.
func (f *File) CopyInto(offset int64, out []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range out {
		out[i] = 0
	}

	length := int64(len(out))
	end := offset + length
	var copied int

	for _, p := range f.pages {
		if p.End() <= offset || p.Offset >= end {
			continue
		}
		lo := p.Offset
		if lo < offset {
			lo = offset
		}
		hi := p.End()
		if hi > end {
			hi = end
		}
		if hi <= lo {
			continue
		}
		chunk := make([]byte, hi-lo)
		if _, err := p.Read(lo, chunk); err != nil {
			return copied, err
		}
		copy(out[lo-offset:hi-offset], chunk)
		if int(hi-offset) > copied {
			copied = int(hi - offset)
		}
	}
	return len(out), nil
}

// Write overwrites [offset, offset+len(src)) in place, refreshing
// intersecting pages and inserting new pages for gaps, then unconditionally
// adopts mtime. Unlike Read, Write never clears pages based on mtime
// ordering: the asymmetry is by design, per SPEC_FULL.md §9.
func (f *File) Write(offset int64, src []byte, mtime time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.insertLocked(offset, src); err != nil {
		return err
	}
	f.mtime = mtime
	return nil
}

// Fill inserts bytes fetched from the object store to satisfy a prior read
// miss. Unlike Write, it never clears existing pages and never touches
// mtime: it is a cache-population step, not a client-visible modification.
func (f *File) Fill(offset int64, src []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.insertLocked(offset, src)
}

func (f *File) insertLocked(offset int64, src []byte) error {
	if len(src) == 0 {
		return nil
	}

	end := offset + int64(len(src))
	cursor := offset
	var newPages []*page.Page

	for _, p := range f.pages {
		if p.End() <= cursor {
			continue
		}
		if p.Offset >= end {
			break
		}

		if p.Offset > cursor {
			np, err := f.newPageLocked(cursor, src[cursor-offset:p.Offset-offset])
			if err != nil {
				return err
			}
			newPages = append(newPages, np)
			cursor = p.Offset
		}

		overlapEnd := p.End()
		if overlapEnd > end {
			overlapEnd = end
		}
		if err := p.Refresh(cursor, src[cursor-offset:overlapEnd-offset]); err != nil {
			return err
		}
		cursor = overlapEnd
	}

	if cursor < end {
		np, err := f.newPageLocked(cursor, src[cursor-offset:])
		if err != nil {
			return err
		}
		newPages = append(newPages, np)
	}

	if len(newPages) > 0 {
		f.pages = append(f.pages, newPages...)
		sort.Slice(f.pages, func(i, j int) bool { return f.pages[i].Offset < f.pages[j].Offset })
	}

	return nil
}

func (f *File) newPageLocked(offset int64, src []byte) (*page.Page, error) {
	if f.diskBacked {
		return page.NewDiskBacked(f.diskDir, f.key, offset, src)
	}
	return page.NewFromBytes(offset, src), nil
}

// Resize erases pages strictly after newSize and truncates the page
// straddling the new boundary.
func (f *File) Resize(newSize int64, mtime time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.mtime = mtime

	var kept []*page.Page
	for _, p := range f.pages {
		if p.Offset >= newSize {
			p.Close()
			continue
		}
		if p.End() > newSize {
			p.ResizeSmaller(newSize - p.Offset)
		}
		kept = append(kept, p)
	}
	f.pages = kept
}

// Clear removes all pages, releasing their resources.
func (f *File) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clearLocked()
}

func (f *File) clearLocked() {
	for _, p := range f.pages {
		p.Close()
	}
	f.pages = nil
}

// UnloadedRanges returns the gaps between pages plus the trailing gap to
// totalSize.
func (f *File) UnloadedRanges(totalSize int64) []Range {
	f.mu.Lock()
	defer f.mu.Unlock()

	var ranges []Range
	cursor := int64(0)
	for _, p := range f.pages {
		if p.Offset > cursor {
			ranges = append(ranges, Range{Offset: cursor, Len: p.Offset - cursor})
		}
		if p.End() > cursor {
			cursor = p.End()
		}
	}
	if cursor < totalSize {
		ranges = append(ranges, Range{Offset: cursor, Len: totalSize - cursor})
	}
	return ranges
}

// HasData reports whether [offset, offset+len) is entirely covered by
// resident pages.
func (f *File) HasData(offset, length int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	end := offset + length
	cursor := offset
	for _, p := range f.pages {
		if p.End() <= cursor {
			continue
		}
		if p.Offset > cursor {
			return false
		}
		if p.End() >= end {
			return true
		}
		cursor = p.End()
	}
	return cursor >= end
}

// ConsecutiveRangeAtFront returns the maximal prefix of pages with no gaps,
// as a half-open [begin, end) range.
func (f *File) ConsecutiveRangeAtFront() (begin, end int64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.pages) == 0 {
		return 0, 0
	}
	begin = f.pages[0].Offset
	end = f.pages[0].End()
	for _, p := range f.pages[1:] {
		if p.Offset != end {
			break
		}
		end = p.End()
	}
	return begin, end
}

// IntersectingRange returns the pages touching [off1, off2).
func (f *File) IntersectingRange(off1, off2 int64) []*page.Page {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*page.Page
	for _, p := range f.pages {
		if p.End() <= off1 || p.Offset >= off2 {
			continue
		}
		out = append(out, p)
	}
	return out
}
