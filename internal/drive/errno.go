package drive

import (
	"errors"

	objfserrors "github.com/objectfs/objectfs/pkg/errors"
)

// Errno is Drive's host-agnostic POSIX error code. Each host adapter
// (internal/hostfs) translates these into its own binding's representation
// (go-fuse's syscall.Errno, cgofuse's int). Keeping the enum here rather than
// importing a FUSE binding's error type keeps Drive usable by either host.
type Errno int

const (
	EOK Errno = iota
	ENOENT
	EACCES
	EIO
	EEXIST
	ENOTEMPTY
	ENOTDIR
	EISDIR
	EROFS
	EINVAL
	ENOSYS
	ENAMETOOLONG
)

func (e Errno) Error() string {
	switch e {
	case EOK:
		return "success"
	case ENOENT:
		return "no such file or directory"
	case EACCES:
		return "permission denied"
	case EIO:
		return "I/O error"
	case EEXIST:
		return "file exists"
	case ENOTEMPTY:
		return "directory not empty"
	case ENOTDIR:
		return "not a directory"
	case EISDIR:
		return "is a directory"
	case EROFS:
		return "read-only filesystem"
	case EINVAL:
		return "invalid argument"
	case ENOSYS:
		return "function not implemented"
	case ENAMETOOLONG:
		return "name too long"
	default:
		return "unknown error"
	}
}

// errnoFromStoreError maps an object-store ClientError's ErrorKind to the
// nearest POSIX errno, per SPEC_FULL.md §7: KeyNotExist/BucketNotExist ->
// ENOENT, AccessDenied -> EACCES, NetworkConnection -> EIO, default EIO.
func errnoFromStoreError(err error) Errno {
	var ce *objfserrors.ClientError
	if !errors.As(err, &ce) {
		return EIO
	}
	switch ce.Kind {
	case objfserrors.KeyNotExist, objfserrors.BucketNotExist:
		return ENOENT
	case objfserrors.AccessDenied:
		return EACCES
	case objfserrors.NetworkConnection:
		return EIO
	default:
		return EIO
	}
}
