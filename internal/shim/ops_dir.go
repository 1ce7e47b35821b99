package shim

import (
	"errors"
	"fmt"
	"os"
	"path"
	"syscall"
	"time"

	"github.com/ajaxzhan/mirrorfs/pkg/types"
)

// FillFunc receives one directory entry. Returning false stops enumeration.
type FillFunc func(name string, attr *types.Attr) bool

// Mkdir creates exactly one directory.
func (t *Translator) Mkdir(path string, mode uint32) (errno syscall.Errno) {
	defer t.track("mkdir", path, time.Now(), &errno, nil)
	return ToErrno(t.mkdir(path, mode))
}

func (t *Translator) mkdir(virtual string, mode uint32) error {
	if err := t.mutable(); err != nil {
		return err
	}
	_, concrete, err := t.resolveNew(virtual)
	if err != nil {
		return err
	}
	if t.exists(concrete) {
		return fmt.Errorf("%w: %s", types.ErrExists, virtual)
	}
	// billy's MkdirAll would create missing parents.
	if err := t.checkParent(concrete); err != nil {
		return fmt.Errorf("%w: %s", types.ErrNotFound, virtual)
	}

	perm := fileMode(mode)
	if m, ok := t.host.(Mkdirer); ok {
		err = m.Mkdir(concrete, perm)
	} else {
		err = t.host.MkdirAll(concrete, perm)
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, os.ErrExist):
		return fmt.Errorf("%w: %s", types.ErrExists, virtual)
	default:
		return fmt.Errorf("%w: %s: %v", types.ErrNotFound, virtual, err)
	}
}

// Rmdir removes an empty directory. Emptiness is enforced by the host.
func (t *Translator) Rmdir(path string) (errno syscall.Errno) {
	defer t.track("rmdir", path, time.Now(), &errno, nil)
	return ToErrno(t.rmdir(path))
}

func (t *Translator) rmdir(virtual string) error {
	if err := t.mutable(); err != nil {
		return err
	}
	rel, concrete, err := t.resolve(virtual)
	if err != nil {
		return err
	}
	if err := t.checkDir(concrete); err != nil {
		return err
	}
	if rel == "" {
		return syscall.EBUSY
	}
	return t.host.Remove(concrete)
}

// Readdir feeds every immediate child of a directory to fill in host
// enumeration order. "." and ".." are left to the driver binding.
func (t *Translator) Readdir(dir string, fill FillFunc) (errno syscall.Errno) {
	defer t.track("readdir", dir, time.Now(), &errno, nil)
	return ToErrno(t.readdir(dir, fill))
}

func (t *Translator) readdir(dir string, fill FillFunc) error {
	rel, concrete, err := t.resolve(dir)
	if err != nil {
		return err
	}
	if err := t.checkDir(concrete); err != nil {
		return err
	}

	entries, err := t.host.ReadDir(concrete)
	if err != nil {
		return err
	}
	for _, info := range entries {
		name := info.Name()
		if t.exclude.match(path.Join(rel, name)) {
			continue
		}
		if !fill(name, attrFromInfo(info)) {
			break
		}
	}
	return nil
}

// Opendir checks that path is an existing directory.
func (t *Translator) Opendir(path string) (errno syscall.Errno) {
	defer t.track("opendir", path, time.Now(), &errno, nil)

	_, concrete, err := t.resolve(path)
	if err != nil {
		return ToErrno(err)
	}
	return ToErrno(t.checkDir(concrete))
}

// Releasedir pairs with Opendir. Directory streams are not kept open.
func (t *Translator) Releasedir(path string) (errno syscall.Errno) {
	defer t.track("releasedir", path, time.Now(), &errno, nil)
	return 0
}

// checkDir fails unless the host path is an existing directory.
func (t *Translator) checkDir(concrete string) error {
	attr, err := t.stat(concrete)
	if err != nil {
		return err
	}
	if !attr.IsDir() {
		return fmt.Errorf("%w: %s", types.ErrNotDir, concrete)
	}
	return nil
}
