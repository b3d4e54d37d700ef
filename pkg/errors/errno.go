package errors

import "syscall"

// kindToErrno is the closed mapping from ErrorKind to the nearest POSIX
// errno, consulted by the Drive façade when translating a ClientError into
// a host-callback return value. Kinds absent from the table fall back to
// EIO.
var kindToErrno = map[ErrorKind]syscall.Errno{
	KeyNotExist:    syscall.ENOENT,
	BucketNotExist: syscall.ENOENT,
	AccessDenied:   syscall.EACCES,

	NetworkConnection:  syscall.EIO,
	ServiceUnavailable: syscall.EIO,
}

// Errno returns the POSIX errno the Drive façade should surface for kind.
func Errno(kind ErrorKind) syscall.Errno {
	if errno, ok := kindToErrno[kind]; ok {
		return errno
	}
	return syscall.EIO
}

// ErrnoFor translates err to a POSIX errno, unwrapping to a *ClientError if
// present and defaulting to EIO for any other error type.
func ErrnoFor(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	var ce *ClientError
	if As(err, &ce) {
		return Errno(ce.Kind)
	}
	return syscall.EIO
}

// As is a thin wrapper over errors.As specialized for *ClientError, kept
// local so callers don't need a second import for the common case.
func As(err error, target **ClientError) bool {
	for err != nil {
		if ce, ok := err.(*ClientError); ok {
			*target = ce
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}
