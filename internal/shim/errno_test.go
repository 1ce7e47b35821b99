package shim

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ajaxzhan/mirrorfs/pkg/types"
)

func TestToErrno(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected syscall.Errno
	}{
		{"nil", nil, 0},
		{"not found", types.ErrNotFound, syscall.ENOENT},
		{"excluded", types.ErrExcluded, syscall.ENOENT},
		{"exists", types.ErrExists, syscall.EEXIST},
		{"not dir", types.ErrNotDir, syscall.ENOTDIR},
		{"is dir", types.ErrIsDir, syscall.EISDIR},
		{"escapes root", types.ErrEscapesRoot, syscall.EACCES},
		{"invalid path", types.ErrInvalidPath, syscall.EINVAL},
		{"unsupported", types.ErrUnsupported, syscall.ENOSYS},
		{"read only", types.ErrReadOnly, syscall.EROFS},
		{"wrapped sentinel", fmt.Errorf("lookup: %w", types.ErrIsDir), syscall.EISDIR},
		{"wrapped excluded", fmt.Errorf("%w: /a.secret", types.ErrExcluded), syscall.ENOENT},
		{"excluded create", fmt.Errorf("%w: /b.secret is excluded", os.ErrPermission), syscall.EACCES},
		{"raw errno", syscall.ENOTEMPTY, syscall.ENOTEMPTY},
		{"symlink refused", syscall.ELOOP, syscall.ELOOP},
		{"path error", &os.PathError{Op: "rmdir", Path: "/x", Err: syscall.ENOTEMPTY}, syscall.ENOTEMPTY},
		{"link error", &os.LinkError{Op: "rename", Old: "/a", New: "/b", Err: syscall.EXDEV}, syscall.EXDEV},
		{"fs not exist", os.ErrNotExist, syscall.ENOENT},
		{"fs exist", os.ErrExist, syscall.EEXIST},
		{"fs permission", os.ErrPermission, syscall.EACCES},
		{"fs closed", os.ErrClosed, syscall.EBADF},
		{"canceled", context.Canceled, syscall.EINTR},
		{"unhandled", errors.New("something odd"), syscall.ENOENT},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ToErrno(tt.err))
		})
	}
}
