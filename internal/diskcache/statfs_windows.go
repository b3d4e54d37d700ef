//go:build windows

package diskcache

import "golang.org/x/sys/windows"

type statfsResult struct {
	freeBytesAvail uint64
}

func (s statfsResult) freeBytes() int64 {
	return int64(s.freeBytesAvail)
}

func statfs(path string, out *statfsResult) error {
	var freeBytesAvail, totalBytes, totalFreeBytes uint64
	pathPtr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return err
	}
	if err := windows.GetDiskFreeSpaceEx(pathPtr, &freeBytesAvail, &totalBytes, &totalFreeBytes); err != nil {
		return err
	}
	out.freeBytesAvail = freeBytesAvail
	return nil
}
