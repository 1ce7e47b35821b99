//go:build cgofuse
// +build cgofuse

package fs

import (
	"errors"
	"syscall"

	"github.com/winfsp/cgofuse/fuse"

	"github.com/ajaxzhan/mirrorfs/internal/logging"
)

// cgoMounter mounts through libfuse (or WinFsp on Windows).
type cgoMounter struct {
	mfs   *MirrorFS
	cfs   *cgoFS
	host  *fuse.FileSystemHost
	ended chan struct{}
}

func newMounter(m *MirrorFS) mounter {
	return &cgoMounter{mfs: m, ended: make(chan struct{})}
}

func mountArgs(cfg *Config) []string {
	args := []string{
		"-o", "fsname=" + cfg.FsName,
		"-o", "default_permissions",
		"-o", "attr_timeout=0",
		"-o", "entry_timeout=0",
		"-o", "negative_timeout=0",
	}
	if cfg.ReadOnly {
		args = append(args, "-o", "ro")
	}
	if cfg.AllowOther {
		args = append(args, "-o", "allow_other")
	}
	if cfg.DirectIO {
		args = append(args, "-o", "direct_io")
	}
	if cfg.Debug {
		args = append(args, "-d")
	}
	return args
}

func (c *cgoMounter) mount() error {
	c.cfs = newCgoFS(c.mfs.tr)
	c.host = fuse.NewFileSystemHost(c.cfs)

	result := make(chan bool, 1)
	go func() {
		// Mount blocks until the filesystem is unmounted.
		result <- c.host.Mount(c.mfs.config.MountPoint, mountArgs(c.mfs.config))
		close(c.ended)
	}()

	select {
	case <-c.cfs.ready:
		logging.Debug("cgofuse host started", logging.String("mount_point", c.mfs.config.MountPoint))
		return nil
	case <-result:
		return errors.New("cgofuse mount failed")
	}
}

func (c *cgoMounter) unmount() error {
	if !c.host.Unmount() {
		return syscall.EBUSY
	}
	<-c.ended
	return nil
}

func (c *cgoMounter) done() <-chan struct{} {
	return c.ended
}
