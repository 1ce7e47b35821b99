package shim

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/go-git/go-billy/v5"

	"github.com/ajaxzhan/mirrorfs/pkg/types"
)

// renameat2(2) flags as passed through by the kernel.
const (
	RenameNoReplace uint32 = 1 << 0
	RenameExchange  uint32 = 1 << 1
)

// Access always succeeds. Permission checks are left to the kernel
// (default_permissions) and the host.
func (t *Translator) Access(path string, mask uint32) (errno syscall.Errno) {
	defer t.track("access", path, time.Now(), &errno, nil)
	return 0
}

type statter interface {
	Stat() (os.FileInfo, error)
}

// Getattr returns the attributes of path. With a registered handle the open
// file is stat'ed instead, so unlinked but open files keep working.
func (t *Translator) Getattr(path string, fh uint64) (attr *types.Attr, errno syscall.Errno) {
	defer t.track("getattr", path, time.Now(), &errno, nil)

	attr, err := t.getattr(path, fh)
	return attr, ToErrno(err)
}

func (t *Translator) getattr(path string, fh uint64) (*types.Attr, error) {
	if h, ok := t.handles.acquire(fh); ok {
		defer t.handles.put(h)
		if s, ok := h.file.(statter); ok {
			if info, err := s.Stat(); err == nil {
				return attrFromInfo(info), nil
			}
		}
	}

	_, concrete, err := t.resolve(path)
	if err != nil {
		return nil, err
	}
	return t.stat(concrete)
}

// Rename moves from to to. flags carries RenameNoReplace or RenameExchange.
func (t *Translator) Rename(from, to string, flags uint32) (errno syscall.Errno) {
	defer t.track("rename", from, time.Now(), &errno, nil)
	return ToErrno(t.rename(from, to, flags))
}

func (t *Translator) rename(from, to string, flags uint32) error {
	if err := t.mutable(); err != nil {
		return err
	}
	if flags&RenameExchange != 0 {
		return syscall.EINVAL
	}
	fromRel, fromConcrete, err := t.resolve(from)
	if err != nil {
		return err
	}
	toRel, toConcrete, err := t.resolveNew(to)
	if err != nil {
		return err
	}
	if fromRel == "" || toRel == "" {
		return syscall.EBUSY
	}
	if !t.exists(fromConcrete) {
		return fmt.Errorf("%w: %s", types.ErrNotFound, from)
	}
	if err := t.checkParent(toConcrete); err != nil {
		return err
	}
	if flags&RenameNoReplace != 0 && t.exists(toConcrete) {
		return fmt.Errorf("%w: %s", types.ErrExists, to)
	}
	return t.host.Rename(fromConcrete, toConcrete)
}

// Unlink removes a file or symlink.
func (t *Translator) Unlink(path string) (errno syscall.Errno) {
	defer t.track("unlink", path, time.Now(), &errno, nil)
	return ToErrno(t.unlink(path))
}

func (t *Translator) unlink(path string) error {
	if err := t.mutable(); err != nil {
		return err
	}
	_, concrete, err := t.resolve(path)
	if err != nil {
		return err
	}
	attr, err := t.stat(concrete)
	if err != nil {
		return err
	}
	// billy's Remove also removes empty directories.
	if attr.IsDir() {
		return fmt.Errorf("%w: %s", types.ErrIsDir, path)
	}
	return t.host.Remove(concrete)
}

// Statfs reports statistics of the filesystem holding path.
func (t *Translator) Statfs(path string) (st *types.StatFS, errno syscall.Errno) {
	defer t.track("statfs", path, time.Now(), &errno, nil)

	st, err := t.statfs(path)
	return st, ToErrno(err)
}

func (t *Translator) statfs(path string) (*types.StatFS, error) {
	_, concrete, err := t.resolve(path)
	if err != nil {
		return nil, err
	}
	s, ok := t.host.(StatFSer)
	if !ok {
		return nil, types.ErrUnsupported
	}
	return s.Statfs(concrete)
}

// change returns the host path of an existing node together with the
// host's metadata interface.
func (t *Translator) change(path string) (billy.Change, string, error) {
	if err := t.mutable(); err != nil {
		return nil, "", err
	}
	_, concrete, err := t.resolve(path)
	if err != nil {
		return nil, "", err
	}
	if !t.exists(concrete) {
		return nil, "", fmt.Errorf("%w: %s", types.ErrNotFound, path)
	}
	c, ok := t.host.(billy.Change)
	if !ok {
		return nil, "", types.ErrUnsupported
	}
	return c, concrete, nil
}

// Chmod changes the permission bits of path.
func (t *Translator) Chmod(path string, mode uint32) (errno syscall.Errno) {
	defer t.track("chmod", path, time.Now(), &errno, nil)

	c, concrete, err := t.change(path)
	if err != nil {
		return ToErrno(err)
	}
	return ToErrno(c.Chmod(concrete, fileMode(mode)))
}

// Chown changes the owner of path without following a trailing symlink.
// A value of -1 leaves that id unchanged.
func (t *Translator) Chown(path string, uid, gid int) (errno syscall.Errno) {
	defer t.track("chown", path, time.Now(), &errno, nil)

	c, concrete, err := t.change(path)
	if err != nil {
		return ToErrno(err)
	}
	return ToErrno(c.Lchown(concrete, uid, gid))
}

// Utimens sets access and modification times. A nil time keeps the
// current value.
func (t *Translator) Utimens(path string, atime, mtime *time.Time) (errno syscall.Errno) {
	defer t.track("utimens", path, time.Now(), &errno, nil)
	return ToErrno(t.utimens(path, atime, mtime))
}

func (t *Translator) utimens(path string, atime, mtime *time.Time) error {
	c, concrete, err := t.change(path)
	if err != nil {
		return err
	}
	if atime == nil || mtime == nil {
		cur, err := t.stat(concrete)
		if err != nil {
			return err
		}
		if atime == nil {
			atime = &cur.Atime
		}
		if mtime == nil {
			mtime = &cur.Mtime
		}
	}
	return c.Chtimes(concrete, *atime, *mtime)
}

// Readlink returns the target of a symlink verbatim.
func (t *Translator) Readlink(path string) (target string, errno syscall.Errno) {
	defer t.track("readlink", path, time.Now(), &errno, nil)

	target, err := t.readlink(path)
	return target, ToErrno(err)
}

func (t *Translator) readlink(path string) (string, error) {
	_, concrete, err := t.resolve(path)
	if err != nil {
		return "", err
	}
	attr, err := t.stat(concrete)
	if err != nil {
		return "", err
	}
	if attr.Kind != types.KindSymlink {
		return "", syscall.EINVAL
	}
	return t.host.Readlink(concrete)
}

// Symlink creates newpath pointing at target. The target is stored as given
// and is not resolved against the mount.
func (t *Translator) Symlink(target, newpath string) (errno syscall.Errno) {
	defer t.track("symlink", newpath, time.Now(), &errno, nil)
	return ToErrno(t.symlink(target, newpath))
}

func (t *Translator) symlink(target, newpath string) error {
	if err := t.mutable(); err != nil {
		return err
	}
	_, concrete, err := t.resolveNew(newpath)
	if err != nil {
		return err
	}
	if t.exists(concrete) {
		return fmt.Errorf("%w: %s", types.ErrExists, newpath)
	}
	if err := t.checkParent(concrete); err != nil {
		return err
	}
	return t.host.Symlink(target, concrete)
}
