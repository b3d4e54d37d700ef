// Package diskcache names and sweeps the on-disk spill directory used by
// disk-backed pages.
package diskcache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const tempFilePrefix = "objectfs-page-"

// TempPath returns the deterministic temp file path for a disk-backed page
// covering [offset, offset+size) of key, under dir.
func TempPath(dir, key string, offset, size int64) string {
	h := sha256.Sum256([]byte(key))
	digest := hex.EncodeToString(h[:])[:16]
	name := fmt.Sprintf("%s%s-%d-%d", tempFilePrefix, digest, offset, size)
	return filepath.Join(dir, name)
}

// Sweep removes any stale page temp files left behind by an unclean prior
// shutdown. Called once from the Drive root constructor, grounded on the
// original qsfs Cache constructor's startup sweep (see SPEC_FULL.md §12).
func Sweep(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return os.MkdirAll(dir, 0o700)
		}
		return fmt.Errorf("diskcache: read %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !strings.HasPrefix(entry.Name(), tempFilePrefix) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("diskcache: remove stale %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// IsSafeDiskSpace reports whether dir's filesystem has at least needed free
// bytes available, a sanity probe consulted before spilling a page to disk.
func IsSafeDiskSpace(dir string, needed int64) (bool, error) {
	var stat statfsResult
	if err := statfs(dir, &stat); err != nil {
		return false, fmt.Errorf("diskcache: statfs %s: %w", dir, err)
	}
	return stat.freeBytes() >= needed, nil
}
