// Package shim translates filesystem calls received from a FUSE driver into
// operations on a host directory tree.
package shim

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ajaxzhan/mirrorfs/internal/logging"
	"github.com/ajaxzhan/mirrorfs/pkg/types"
)

// Config configures a Translator.
type Config struct {
	Root     string   // host directory mirrored at the mount root
	Host     Host     // defaults to the OS host
	ReadOnly bool     // reject every mutating call with EROFS
	Exclude  []string // gitignore-style patterns hidden from the mount
	Observer Observer // optional, called after every handler
}

// Translator executes driver calls against the host. It is safe for
// concurrent use; apart from open handles it holds no per-path state.
type Translator struct {
	resolver *Resolver
	host     Host
	readOnly bool
	exclude  *excluder
	observer Observer
	handles  *handleTable
}

// accMode masks the access mode out of open(2) flags.
const accMode = os.O_RDONLY | os.O_WRONLY | os.O_RDWR

// New creates a translator for cfg.Root.
func New(cfg Config) (*Translator, error) {
	resolver, err := NewResolver(cfg.Root)
	if err != nil {
		return nil, err
	}

	host := cfg.Host
	if host == nil {
		host = NewOSHost()
	}

	info, err := host.Stat(resolver.Root())
	if err != nil {
		return nil, &types.OpError{Op: "root", Path: resolver.Root(), Err: err}
	}
	if !info.IsDir() {
		return nil, &types.OpError{Op: "root", Path: resolver.Root(), Err: types.ErrNotDir}
	}

	return &Translator{
		resolver: resolver,
		host:     host,
		readOnly: cfg.ReadOnly,
		exclude:  newExcluder(cfg.Exclude),
		observer: cfg.Observer,
		handles:  newHandleTable(),
	}, nil
}

// Root returns the host directory being mirrored.
func (t *Translator) Root() string {
	return t.resolver.Root()
}

// OpenHandles returns the number of registered file handles.
func (t *Translator) OpenHandles() int {
	return t.handles.len()
}

// track is deferred by every handler. It turns a panic from the host layer
// into EIO and reports the call to the observer.
func (t *Translator) track(op, path string, start time.Time, errno *syscall.Errno, n *int) {
	if r := recover(); r != nil {
		logging.Error("panic in filesystem handler",
			logging.String("op", op),
			logging.String("path", path),
			logging.Any("panic", r),
		)
		*errno = syscall.EIO
		if n != nil {
			*n = 0
		}
	}

	if t.observer == nil {
		return
	}
	bytes := 0
	if n != nil {
		bytes = *n
	}
	t.observer.Observe(op, time.Since(start), *errno, bytes)
}

// resolve maps a virtual path of an existing node to its host path.
// Excluded paths behave as absent.
func (t *Translator) resolve(virtual string) (rel, concrete string, err error) {
	rel, err = Clean(virtual)
	if err != nil {
		return "", "", err
	}
	if t.exclude.match(rel) {
		return "", "", fmt.Errorf("%w: %s", types.ErrExcluded, virtual)
	}
	return rel, t.resolver.join(rel), nil
}

// resolveNew maps a virtual path that is about to be created. Creating an
// excluded path is refused.
func (t *Translator) resolveNew(virtual string) (rel, concrete string, err error) {
	rel, err = Clean(virtual)
	if err != nil {
		return "", "", err
	}
	if t.exclude.match(rel) {
		return "", "", fmt.Errorf("%w: %s is excluded", fs.ErrPermission, virtual)
	}
	return rel, t.resolver.join(rel), nil
}

// mutable fails with ErrReadOnly on a read-only translator.
func (t *Translator) mutable() error {
	if t.readOnly {
		return types.ErrReadOnly
	}
	return nil
}

// stat returns the attributes of an existing host path. Any failure is
// reported as ErrNotFound.
func (t *Translator) stat(concrete string) (*types.Attr, error) {
	attr, err := attributesOf(t.host, concrete)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrNotFound, concrete)
	}
	return attr, nil
}

// exists reports whether anything, including a dangling symlink, is at the
// host path.
func (t *Translator) exists(concrete string) bool {
	_, err := t.host.Lstat(concrete)
	return err == nil
}

// checkParent verifies that the parent of a host path is an existing
// directory. Symlinks to directories count.
func (t *Translator) checkParent(concrete string) error {
	dir := filepath.Dir(concrete)
	info, err := t.host.Stat(dir)
	if err != nil {
		return fmt.Errorf("%w: %s", types.ErrNotFound, dir)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", types.ErrNotDir, dir)
	}
	return nil
}

// Destroy closes every open handle. It is called when the driver shuts down.
func (t *Translator) Destroy() {
	if n := t.handles.closeAll(); n > 0 {
		logging.Info("closed open handles on shutdown", logging.Int("count", n))
	}
}

func (t *Translator) String() string {
	return fmt.Sprintf("shim(%s)", t.resolver.Root())
}
