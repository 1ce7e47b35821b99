// Package fs mounts a host directory through FUSE, delegating every
// filesystem call to a shim.Translator.
package fs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/ajaxzhan/mirrorfs/internal/logging"
	"github.com/ajaxzhan/mirrorfs/internal/shim"
	"github.com/ajaxzhan/mirrorfs/pkg/types"
)

// Errors for MirrorFS
var (
	ErrInvalidTarget     = errors.New("invalid target directory")
	ErrInvalidMountPoint = errors.New("invalid mount point")
	ErrMountInProgress   = errors.New("filesystem is already mounted by this instance")
	ErrUnmounted         = errors.New("filesystem was unmounted externally")
)

const (
	defaultFsName            = "mirrorfs"
	defaultUnmountRetries    = 5
	defaultUnmountRetryDelay = 200 * time.Millisecond
)

// Config holds the configuration for creating a MirrorFS.
type Config struct {
	Target     string // host directory to mirror
	MountPoint string // where to mount the FUSE filesystem
	FsName     string // shown in the first column of mount(8)
	AllowOther bool
	ReadOnly   bool
	Debug      bool // log every FUSE request
	DirectIO   bool // bypass the kernel page cache for file data
	Exclude    []string

	// LockDir holds the per-mount-point lock files. Defaults to a
	// mirrorfs directory under os.TempDir().
	LockDir string

	UnmountRetries    uint
	UnmountRetryDelay time.Duration

	Host          shim.Host     // defaults to the OS host
	Observer      shim.Observer // called after every translated call
	OnStateChange func(mounted bool)
}

// MirrorFS is a FUSE filesystem mirroring a host directory.
type MirrorFS struct {
	config     *Config
	tr         *shim.Translator
	mounted    atomic.Bool
	active     atomic.Bool
	newMounter func(*MirrorFS) mounter
}

// mounter is the driver-specific half of a mount. mount returns once the
// kernel mount is established; done is closed when the session ends.
type mounter interface {
	mount() error
	unmount() error
	done() <-chan struct{}
}

// New creates a new MirrorFS instance.
func New(config *Config) (*MirrorFS, error) {
	if config.Target == "" {
		return nil, ErrInvalidTarget
	}
	if config.MountPoint == "" {
		return nil, ErrInvalidMountPoint
	}

	cfg := *config
	if err := checkDir(&cfg.Target, ErrInvalidTarget); err != nil {
		return nil, err
	}
	if err := checkDir(&cfg.MountPoint, ErrInvalidMountPoint); err != nil {
		return nil, err
	}
	if cfg.Target == cfg.MountPoint {
		return nil, &types.OpError{Op: "mount", Path: cfg.MountPoint, Err: errors.New("mount point and target are the same directory")}
	}
	if cfg.FsName == "" {
		cfg.FsName = defaultFsName
	}
	if cfg.LockDir == "" {
		cfg.LockDir = filepath.Join(os.TempDir(), "mirrorfs")
	}
	if cfg.UnmountRetries == 0 {
		cfg.UnmountRetries = defaultUnmountRetries
	}
	if cfg.UnmountRetryDelay <= 0 {
		cfg.UnmountRetryDelay = defaultUnmountRetryDelay
	}

	tr, err := shim.New(shim.Config{
		Root:     cfg.Target,
		Host:     cfg.Host,
		ReadOnly: cfg.ReadOnly,
		Exclude:  cfg.Exclude,
		Observer: cfg.Observer,
	})
	if err != nil {
		return nil, err
	}

	return &MirrorFS{
		config:     &cfg,
		tr:         tr,
		newMounter: newMounter,
	}, nil
}

// checkDir makes *path absolute and verifies it names a directory.
func checkDir(path *string, invalid error) error {
	abs, err := filepath.Abs(*path)
	if err != nil {
		return &types.OpError{Op: "stat", Path: *path, Err: invalid}
	}
	info, err := os.Stat(abs)
	if err != nil {
		return &types.OpError{Op: "stat", Path: abs, Err: errors.Join(invalid, err)}
	}
	if !info.IsDir() {
		return &types.OpError{Op: "stat", Path: abs, Err: errors.Join(invalid, types.ErrNotDir)}
	}
	*path = abs
	return nil
}

// Mount mounts the filesystem and serves it until ctx is cancelled or the
// mount is removed from outside. On cancellation it unmounts and returns
// ctx.Err().
func (m *MirrorFS) Mount(ctx context.Context) error {
	if !m.active.CompareAndSwap(false, true) {
		return ErrMountInProgress
	}
	defer m.active.Store(false)

	lock, err := acquireMountLock(m.config.LockDir, m.config.MountPoint)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.release(); err != nil {
			logging.Warn("failed to release mount lock", logging.String("path", lock.path), logging.Err(err))
		}
	}()

	mnt := m.newMounter(m)
	if err := mnt.mount(); err != nil {
		return &types.OpError{Op: "mount", Path: m.config.MountPoint, Err: err}
	}
	m.setMounted(true)
	logging.Info("filesystem mounted",
		logging.String("target", m.config.Target),
		logging.String("mount_point", m.config.MountPoint),
		logging.Bool("read_only", m.config.ReadOnly),
	)

	var result error
	select {
	case <-ctx.Done():
		if err := m.unmount(mnt); err != nil {
			logging.Error("failed to unmount", logging.String("mount_point", m.config.MountPoint), logging.Err(err))
			result = &types.OpError{Op: "unmount", Path: m.config.MountPoint, Err: err}
		}
	case <-mnt.done():
		logging.Warn("filesystem unmounted externally", logging.String("mount_point", m.config.MountPoint))
		result = ErrUnmounted
	}

	m.setMounted(false)
	m.tr.Destroy()
	logging.Info("filesystem unmounted", logging.String("mount_point", m.config.MountPoint))

	if result != nil {
		return result
	}
	return ctx.Err()
}

// unmount retries while the kernel reports the mount as busy.
func (m *MirrorFS) unmount(mnt mounter) error {
	return retry.Do(mnt.unmount,
		retry.Attempts(m.config.UnmountRetries),
		retry.Delay(m.config.UnmountRetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(isBusy),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logging.Warn("mount point busy, retrying unmount", logging.Int("attempt", int(n)+1), logging.Err(err))
		}),
	)
}

// isBusy reports whether err means the mount is still in use.
// fusermount only reports this through its output.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.EBUSY) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "busy")
}

func (m *MirrorFS) setMounted(mounted bool) {
	m.mounted.Store(mounted)
	if m.config.OnStateChange != nil {
		m.config.OnStateChange(mounted)
	}
}

// IsMounted returns true if the filesystem is currently mounted.
func (m *MirrorFS) IsMounted() bool {
	return m.mounted.Load()
}

// Translator returns the translator serving this mount.
func (m *MirrorFS) Translator() *shim.Translator {
	return m.tr
}

// MountPoint returns the absolute mount point.
func (m *MirrorFS) MountPoint() string {
	return m.config.MountPoint
}

// Target returns the absolute target directory.
func (m *MirrorFS) Target() string {
	return m.config.Target
}
