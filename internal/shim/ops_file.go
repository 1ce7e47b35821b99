package shim

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
	"time"

	"github.com/go-git/go-billy/v5"

	"github.com/ajaxzhan/mirrorfs/pkg/types"
)

// hostFlags keeps the open(2) flags the host file is opened with. O_APPEND
// is dropped because the driver always supplies explicit offsets.
func hostFlags(flags int) int {
	return flags & (accMode | os.O_TRUNC | os.O_SYNC)
}

func writable(flags int) bool {
	return flags&accMode != os.O_RDONLY || flags&os.O_TRUNC != 0
}

// Create creates and opens a new empty regular file. The returned handle
// must be released with Release.
func (t *Translator) Create(path string, flags int, mode uint32) (fh uint64, errno syscall.Errno) {
	defer t.track("create", path, time.Now(), &errno, nil)

	fh, err := t.create(path, flags, mode)
	return fh, ToErrno(err)
}

func (t *Translator) create(path string, flags int, mode uint32) (uint64, error) {
	if err := t.mutable(); err != nil {
		return 0, err
	}
	rel, concrete, err := t.resolveNew(path)
	if err != nil {
		return 0, err
	}
	if t.exists(concrete) {
		return 0, fmt.Errorf("%w: %s", types.ErrExists, path)
	}
	if err := t.checkParent(concrete); err != nil {
		return 0, fmt.Errorf("%w: %s", types.ErrNotFound, path)
	}

	f, err := t.host.OpenFile(concrete, hostFlags(flags)|os.O_CREATE|os.O_EXCL, fileMode(mode))
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return 0, fmt.Errorf("%w: %s", types.ErrExists, path)
		}
		return 0, fmt.Errorf("%w: %s: %v", types.ErrNotFound, path, err)
	}
	return t.handles.register(rel, f, flags), nil
}

// Open opens an existing file. Directories are opened with Opendir.
func (t *Translator) Open(path string, flags int) (fh uint64, errno syscall.Errno) {
	defer t.track("open", path, time.Now(), &errno, nil)

	fh, err := t.open(path, flags)
	return fh, ToErrno(err)
}

func (t *Translator) open(path string, flags int) (uint64, error) {
	if writable(flags) {
		if err := t.mutable(); err != nil {
			return 0, err
		}
	}
	rel, concrete, err := t.resolve(path)
	if err != nil {
		return 0, err
	}
	if err := t.checkRegular(concrete); err != nil {
		return 0, err
	}

	f, err := t.host.OpenFile(concrete, hostFlags(flags), 0)
	if err != nil {
		return 0, err
	}
	return t.handles.register(rel, f, flags), nil
}

// Read reads up to len(dest) bytes at off. A short count means end of file.
func (t *Translator) Read(path string, dest []byte, off int64, fh uint64) (n int, errno syscall.Errno) {
	defer t.track("read", path, time.Now(), &errno, &n)

	n, err := t.read(path, dest, off, fh)
	return n, ToErrno(err)
}

func (t *Translator) read(path string, dest []byte, off int64, fh uint64) (int, error) {
	if off < 0 {
		return 0, syscall.EINVAL
	}
	if h, ok := t.handles.acquire(fh); ok {
		defer t.handles.put(h)
		return readAt(h.file, dest, off)
	}

	f, err := t.openRegular(path, os.O_RDONLY)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return readAt(f, dest, off)
}

// Write writes all of data at off, extending the file as needed. Writing
// past the end leaves a hole that reads back as zeros.
func (t *Translator) Write(path string, data []byte, off int64, fh uint64) (n int, errno syscall.Errno) {
	defer t.track("write", path, time.Now(), &errno, &n)

	n, err := t.write(path, data, off, fh)
	return n, ToErrno(err)
}

func (t *Translator) write(path string, data []byte, off int64, fh uint64) (int, error) {
	if err := t.mutable(); err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, syscall.EINVAL
	}
	if h, ok := t.handles.acquire(fh); ok {
		defer t.handles.put(h)
		if !h.canWrite() {
			return 0, syscall.EBADF
		}
		return h.writeAt(data, off)
	}

	f, err := t.openRegular(path, os.O_WRONLY)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return writeAt(f, data, off)
}

// Truncate resizes a regular file, zero-filling when it grows. A handle
// opened read-only is not used; the file is reopened by path instead.
func (t *Translator) Truncate(path string, size int64, fh uint64) (errno syscall.Errno) {
	defer t.track("truncate", path, time.Now(), &errno, nil)
	return ToErrno(t.truncate(path, size, fh))
}

func (t *Translator) truncate(path string, size int64, fh uint64) error {
	if err := t.mutable(); err != nil {
		return err
	}
	if size < 0 {
		return syscall.EINVAL
	}
	if h, ok := t.handles.acquire(fh); ok {
		defer t.handles.put(h)
		if h.canWrite() {
			return h.file.Truncate(size)
		}
	}

	f, err := t.openRegular(path, os.O_WRONLY)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Truncate(size)
}

// Release drops a handle registered by Open or Create.
func (t *Translator) Release(path string, fh uint64) (errno syscall.Errno) {
	defer t.track("release", path, time.Now(), &errno, nil)

	ok, err := t.handles.release(fh)
	if !ok {
		return syscall.EBADF
	}
	return ToErrno(err)
}

// Flush is called on every close(2) of a descriptor. Data is written through
// to the host on each Write, so there is nothing to flush.
func (t *Translator) Flush(path string, fh uint64) (errno syscall.Errno) {
	defer t.track("flush", path, time.Now(), &errno, nil)
	return 0
}

type syncer interface {
	Sync() error
}

// Fsync commits a file's data to stable storage on the host.
func (t *Translator) Fsync(path string, fh uint64) (errno syscall.Errno) {
	defer t.track("fsync", path, time.Now(), &errno, nil)

	h, ok := t.handles.acquire(fh)
	if !ok {
		return 0
	}
	defer t.handles.put(h)

	if s, ok := h.file.(syncer); ok {
		return ToErrno(s.Sync())
	}
	return 0
}

// checkRegular fails unless the host path is a regular file. Symlinks are
// not followed: the host would resolve them outside the mount root.
func (t *Translator) checkRegular(concrete string) error {
	attr, err := t.stat(concrete)
	if err != nil {
		return err
	}
	switch attr.Kind {
	case types.KindDirectory:
		return types.ErrIsDir
	case types.KindSymlink:
		return syscall.ELOOP
	}
	return nil
}

// openRegular opens an existing regular file for a single call.
func (t *Translator) openRegular(path string, flag int) (billy.File, error) {
	_, concrete, err := t.resolve(path)
	if err != nil {
		return nil, err
	}
	if err := t.checkRegular(concrete); err != nil {
		return nil, err
	}
	return t.host.OpenFile(concrete, flag, 0)
}

func readAt(r io.ReaderAt, dest []byte, off int64) (int, error) {
	n, err := r.ReadAt(dest, off)
	if err != nil && !errors.Is(err, io.EOF) && n == 0 {
		return 0, err
	}
	return n, nil
}

func writeAt(f billy.File, data []byte, off int64) (int, error) {
	var (
		n   int
		err error
	)
	if w, ok := f.(io.WriterAt); ok {
		n, err = w.WriteAt(data, off)
	} else {
		if _, err = f.Seek(off, io.SeekStart); err == nil {
			n, err = f.Write(data)
		}
	}
	if err != nil && n == 0 {
		return 0, err
	}
	return n, nil
}

func (h *handle) writeAt(data []byte, off int64) (int, error) {
	if _, ok := h.file.(io.WriterAt); !ok {
		h.mu.Lock()
		defer h.mu.Unlock()
	}
	return writeAt(h.file, data, off)
}
