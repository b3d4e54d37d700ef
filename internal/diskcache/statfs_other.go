//go:build !linux && !windows

package diskcache

import "syscall"

type statfsResult struct {
	bsize  int64
	bavail uint64
}

func (s statfsResult) freeBytes() int64 {
	return int64(s.bavail) * s.bsize
}

func statfs(path string, out *statfsResult) error {
	var buf syscall.Statfs_t
	if err := syscall.Statfs(path, &buf); err != nil {
		return err
	}
	out.bsize = int64(buf.Bsize)
	out.bavail = buf.Bavail
	return nil
}
