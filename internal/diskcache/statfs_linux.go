//go:build linux

package diskcache

import "golang.org/x/sys/unix"

type statfsResult struct {
	bsize  int64
	bavail uint64
}

func (s statfsResult) freeBytes() int64 {
	return int64(s.bavail) * s.bsize
}

func statfs(path string, out *statfsResult) error {
	var buf unix.Statfs_t
	if err := unix.Statfs(path, &buf); err != nil {
		return err
	}
	out.bsize = buf.Bsize
	out.bavail = buf.Bavail
	return nil
}
