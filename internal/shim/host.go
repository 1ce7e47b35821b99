package shim

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/ajaxzhan/mirrorfs/pkg/types"
)

// Host is the filesystem the translator re-executes operations against.
// Paths passed to it are absolute host paths produced by the Resolver.
type Host interface {
	billy.Basic
	billy.Dir
	billy.Symlink
}

// Mkdirer is implemented by hosts that can create a single directory
// without creating missing parents.
type Mkdirer interface {
	Mkdir(name string, perm os.FileMode) error
}

// StatFSer is implemented by hosts that can report filesystem statistics.
type StatFSer interface {
	Statfs(name string) (*types.StatFS, error)
}

// osHost is the production host: the unrooted billy OS filesystem extended
// with the metadata calls billy leaves out.
type osHost struct {
	*osfs.ChrootOS
}

var (
	_ Host         = (*osHost)(nil)
	_ Mkdirer      = (*osHost)(nil)
	_ StatFSer     = (*osHost)(nil)
	_ billy.Change = (*osHost)(nil)
)

// NewOSHost returns a host backed by the operating system.
func NewOSHost() Host {
	return &osHost{ChrootOS: osfs.Default}
}

// ReadDir lists a directory. Entries removed between the listing and their
// lstat are skipped instead of failing the whole listing.
func (h *osHost) ReadDir(name string) ([]os.FileInfo, error) {
	entries, err := os.ReadDir(name)
	if err != nil {
		return nil, err
	}

	infos := make([]os.FileInfo, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (h *osHost) Mkdir(name string, perm os.FileMode) error {
	return os.Mkdir(name, perm)
}

func (h *osHost) Chmod(name string, mode os.FileMode) error {
	return os.Chmod(name, mode)
}

func (h *osHost) Lchown(name string, uid, gid int) error {
	return os.Lchown(name, uid, gid)
}

func (h *osHost) Chown(name string, uid, gid int) error {
	return os.Chown(name, uid, gid)
}

func (h *osHost) Chtimes(name string, atime, mtime time.Time) error {
	return os.Chtimes(name, atime, mtime)
}

func (h *osHost) Statfs(name string) (*types.StatFS, error) {
	return statfs(name)
}
