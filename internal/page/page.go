// Package page implements Page, the fixed-owner byte-range unit of cache
// residency described in SPEC_FULL.md §3/§4.A. A Page's body lives either in
// memory or on local disk at a deterministic temp path; never both.
package page

import (
	"fmt"
	"io"
	"os"

	"github.com/objectfs/objectfs/internal/diskcache"
)

// Page is a half-open byte range [Offset, Offset+Size) of one File, backed
// by either an in-memory buffer or a regular file on local disk.
type Page struct {
	Offset int64
	Size   int64

	mem      []byte
	diskPath string
	diskDir  string
	key      string
}

// NewFromBytes creates an in-memory page. The slice is copied; callers may
// reuse or discard src afterward.
func NewFromBytes(offset int64, src []byte) *Page {
	buf := make([]byte, len(src))
	copy(buf, src)
	return &Page{Offset: offset, Size: int64(len(buf)), mem: buf}
}

// NewDiskBacked creates a page whose body is materialized as a file on
// local disk at a deterministic path derived from key, offset, and size.
func NewDiskBacked(diskDir, key string, offset int64, src []byte) (*Page, error) {
	p := &Page{Offset: offset, Size: int64(len(src)), diskDir: diskDir, key: key}
	p.diskPath = diskcache.TempPath(diskDir, key, offset, p.Size)
	if err := os.WriteFile(p.diskPath, src, 0o600); err != nil {
		return nil, fmt.Errorf("page: write disk body: %w", err)
	}
	return p, nil
}

// IsDiskBacked reports whether the page body lives on disk.
func (p *Page) IsDiskBacked() bool {
	return p.diskPath != ""
}

// End returns the page's exclusive upper bound.
func (p *Page) End() int64 {
	return p.Offset + p.Size
}

// Read copies bytes from [offset, offset+len(out)) into out. The requested
// range must lie entirely within the page.
func (p *Page) Read(offset int64, out []byte) (int, error) {
	length := int64(len(out))
	if offset < p.Offset || offset+length > p.End() {
		return 0, ErrInvalidRange
	}
	if p.IsDiskBacked() {
		f, err := os.Open(p.diskPath)
		if err != nil {
			return 0, fmt.Errorf("page: open disk body: %w", err)
		}
		defer f.Close()
		n, err := f.ReadAt(out, offset-p.Offset)
		if err != nil && err != io.EOF {
			return n, fmt.Errorf("page: read disk body: %w", err)
		}
		return n, nil
	}
	n := copy(out, p.mem[offset-p.Offset:])
	return n, nil
}

// Refresh overwrites the intersecting bytes starting at offset, growing the
// page if offset+len(src) exceeds the current end.
func (p *Page) Refresh(offset int64, src []byte) error {
	newEnd := offset + int64(len(src))
	if newEnd > p.End() {
		p.Size = newEnd - p.Offset
	}

	if p.IsDiskBacked() {
		return p.refreshDisk(offset, src)
	}

	relOffset := offset - p.Offset
	if relOffset+int64(len(src)) > int64(len(p.mem)) {
		grown := make([]byte, relOffset+int64(len(src)))
		copy(grown, p.mem)
		p.mem = grown
	}
	copy(p.mem[relOffset:], src)
	return nil
}

func (p *Page) refreshDisk(offset int64, src []byte) error {
	f, err := os.OpenFile(p.diskPath, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return fmt.Errorf("page: open disk body for refresh: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteAt(src, offset-p.Offset); err != nil {
		return fmt.Errorf("page: write disk body: %w", err)
	}
	return nil
}

// ResizeSmaller lazily truncates the page to newSize; a subsequent Refresh
// past newSize re-extends it. Only the logical Size is updated; the
// underlying body is not eagerly shrunk.
func (p *Page) ResizeSmaller(newSize int64) {
	if newSize < p.Size {
		p.Size = newSize
	}
}

// Close releases the page's resources, unlinking its disk temp file if any.
func (p *Page) Close() error {
	if p.IsDiskBacked() {
		if err := os.Remove(p.diskPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("page: unlink disk body: %w", err)
		}
	}
	return nil
}

// CachedSize returns the number of bytes this page contributes to the
// File's memory-resident cached_size accounting: Size if memory-backed, 0
// if disk-backed.
func (p *Page) CachedSize() int64 {
	if p.IsDiskBacked() {
		return 0
	}
	return p.Size
}

// invalidRangeError is the type of ErrInvalidRange, returned by Read when
// the requested range falls outside the page.
type invalidRangeError struct{}

func (invalidRangeError) Error() string { return "page: invalid range" }

// ErrInvalidRange is returned by Read when [offset, offset+len) is not a
// subset of the page's own range.
var ErrInvalidRange error = invalidRangeError{}
