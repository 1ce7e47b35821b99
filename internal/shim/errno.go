package shim

import (
	"context"
	"errors"
	"io/fs"
	"syscall"

	"github.com/ajaxzhan/mirrorfs/pkg/types"
)

// ToErrno maps an error from the resolver or the host onto the errno handed
// back to the driver. Errors nothing here recognises are reported as ENOENT.
func ToErrno(err error) syscall.Errno {
	if err == nil {
		return 0
	}

	switch {
	case errors.Is(err, types.ErrNotFound), errors.Is(err, types.ErrExcluded):
		return syscall.ENOENT
	case errors.Is(err, types.ErrExists):
		return syscall.EEXIST
	case errors.Is(err, types.ErrNotDir):
		return syscall.ENOTDIR
	case errors.Is(err, types.ErrIsDir):
		return syscall.EISDIR
	case errors.Is(err, types.ErrEscapesRoot):
		return syscall.EACCES
	case errors.Is(err, types.ErrInvalidPath):
		return syscall.EINVAL
	case errors.Is(err, types.ErrUnsupported):
		return syscall.ENOSYS
	case errors.Is(err, types.ErrReadOnly):
		return syscall.EROFS
	}

	// *os.PathError, *os.LinkError and *os.SyscallError all unwrap to the errno.
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}

	switch {
	case errors.Is(err, fs.ErrNotExist):
		return syscall.ENOENT
	case errors.Is(err, fs.ErrExist):
		return syscall.EEXIST
	case errors.Is(err, fs.ErrPermission):
		return syscall.EACCES
	case errors.Is(err, fs.ErrClosed):
		return syscall.EBADF
	case errors.Is(err, fs.ErrInvalid):
		return syscall.EINVAL
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return syscall.EINTR
	default:
		return syscall.ENOENT
	}
}
