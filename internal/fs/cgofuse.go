//go:build cgofuse
// +build cgofuse

package fs

import (
	"math"
	"syscall"
	"time"

	"github.com/winfsp/cgofuse/fuse"

	"github.com/ajaxzhan/mirrorfs/internal/shim"
	"github.com/ajaxzhan/mirrorfs/pkg/types"
)

// utimensat(2) sentinels carried in Timespec.Nsec.
const (
	utimeNow  = (1 << 30) - 1
	utimeOmit = (1 << 30) - 2
)

// cgoFS exposes the translator through the libfuse / WinFsp high-level
// path API. Paths already arrive mount-relative, so calls pass straight
// through.
type cgoFS struct {
	fuse.FileSystemBase

	tr    *shim.Translator
	ready chan struct{}
}

func newCgoFS(tr *shim.Translator) *cgoFS {
	return &cgoFS{tr: tr, ready: make(chan struct{})}
}

func status(errno syscall.Errno) int {
	return -int(errno)
}

// Init signals that the mount is established.
func (c *cgoFS) Init() {
	close(c.ready)
}

// Access checks file access.
func (c *cgoFS) Access(path string, mask uint32) int {
	return status(c.tr.Access(path, mask))
}

// Getattr gets file attributes.
func (c *cgoFS) Getattr(path string, stat *fuse.Stat_t, fh uint64) int {
	attr, errno := c.tr.Getattr(path, fh)
	if errno != 0 {
		return status(errno)
	}
	fillStat(stat, attr)
	return 0
}

// Create creates and opens a file.
func (c *cgoFS) Create(path string, flags int, mode uint32) (int, uint64) {
	fh, errno := c.tr.Create(path, flags, mode)
	if errno != 0 {
		return status(errno), math.MaxUint64
	}
	return 0, fh
}

// Open opens a file.
func (c *cgoFS) Open(path string, flags int) (int, uint64) {
	fh, errno := c.tr.Open(path, flags)
	if errno != 0 {
		return status(errno), math.MaxUint64
	}
	return 0, fh
}

// Read reads from a file.
func (c *cgoFS) Read(path string, buff []byte, ofst int64, fh uint64) int {
	n, errno := c.tr.Read(path, buff, ofst, fh)
	if errno != 0 {
		return status(errno)
	}
	return n
}

// Write writes to a file.
func (c *cgoFS) Write(path string, buff []byte, ofst int64, fh uint64) int {
	n, errno := c.tr.Write(path, buff, ofst, fh)
	if errno != 0 {
		return status(errno)
	}
	return n
}

// Truncate changes the size of a file.
func (c *cgoFS) Truncate(path string, size int64, fh uint64) int {
	return status(c.tr.Truncate(path, size, fh))
}

func (c *cgoFS) Flush(path string, fh uint64) int {
	return status(c.tr.Flush(path, fh))
}

func (c *cgoFS) Fsync(path string, datasync bool, fh uint64) int {
	return status(c.tr.Fsync(path, fh))
}

func (c *cgoFS) Release(path string, fh uint64) int {
	return status(c.tr.Release(path, fh))
}

// Mkdir creates a directory.
func (c *cgoFS) Mkdir(path string, mode uint32) int {
	return status(c.tr.Mkdir(path, mode))
}

// Rmdir removes a directory.
func (c *cgoFS) Rmdir(path string) int {
	return status(c.tr.Rmdir(path))
}

// Unlink removes a file.
func (c *cgoFS) Unlink(path string) int {
	return status(c.tr.Unlink(path))
}

// Rename renames a file or directory. The high-level API carries no
// rename flags.
func (c *cgoFS) Rename(oldpath string, newpath string) int {
	return status(c.tr.Rename(oldpath, newpath, 0))
}

func (c *cgoFS) Opendir(path string) (int, uint64) {
	if errno := c.tr.Opendir(path); errno != 0 {
		return status(errno), math.MaxUint64
	}
	return 0, 0
}

// Readdir lists a directory. The high-level API expects "." and ".." from
// the filesystem.
func (c *cgoFS) Readdir(path string, fill func(name string, stat *fuse.Stat_t, ofst int64) bool, ofst int64, fh uint64) int {
	fill(".", nil, 0)
	fill("..", nil, 0)

	errno := c.tr.Readdir(path, func(name string, attr *types.Attr) bool {
		stat := &fuse.Stat_t{}
		fillStat(stat, attr)
		return fill(name, stat, 0)
	})
	return status(errno)
}

func (c *cgoFS) Releasedir(path string, fh uint64) int {
	return status(c.tr.Releasedir(path))
}

func (c *cgoFS) Statfs(path string, stat *fuse.Statfs_t) int {
	st, errno := c.tr.Statfs(path)
	if errno == syscall.ENOSYS {
		return 0
	}
	if errno != 0 {
		return status(errno)
	}
	stat.Bsize = uint64(st.Bsize)
	stat.Frsize = uint64(st.Frsize)
	stat.Blocks = st.Blocks
	stat.Bfree = st.Bfree
	stat.Bavail = st.Bavail
	stat.Files = st.Files
	stat.Ffree = st.Ffree
	stat.Favail = st.Ffree
	stat.Namemax = uint64(st.NameLen)
	return 0
}

func (c *cgoFS) Chmod(path string, mode uint32) int {
	return status(c.tr.Chmod(path, mode))
}

// Chown changes ownership; an all-ones id leaves that id unchanged.
func (c *cgoFS) Chown(path string, uid uint32, gid uint32) int {
	u, g := int(uid), int(gid)
	if uid == math.MaxUint32 {
		u = -1
	}
	if gid == math.MaxUint32 {
		g = -1
	}
	return status(c.tr.Chown(path, u, g))
}

// Utimens changes the access and modification times. A nil slice means now.
func (c *cgoFS) Utimens(path string, tmsp []fuse.Timespec) int {
	now := time.Now()
	if len(tmsp) < 2 {
		return status(c.tr.Utimens(path, &now, &now))
	}
	return status(c.tr.Utimens(path, timespecTime(tmsp[0], now), timespecTime(tmsp[1], now)))
}

func timespecTime(ts fuse.Timespec, now time.Time) *time.Time {
	switch ts.Nsec {
	case utimeOmit:
		return nil
	case utimeNow:
		return &now
	}
	t := ts.Time()
	return &t
}

func (c *cgoFS) Readlink(path string) (int, string) {
	target, errno := c.tr.Readlink(path)
	if errno != 0 {
		return status(errno), ""
	}
	return 0, target
}

func (c *cgoFS) Symlink(target string, newpath string) int {
	return status(c.tr.Symlink(target, newpath))
}

func fillStat(stat *fuse.Stat_t, a *types.Attr) {
	stat.Ino = a.Ino
	stat.Mode = a.Mode
	stat.Nlink = a.Nlink
	stat.Uid = a.Uid
	stat.Gid = a.Gid
	stat.Size = int64(a.Size)
	stat.Blksize = int64(a.Blksize)
	stat.Blocks = int64(a.Blocks)
	stat.Atim = fuse.NewTimespec(a.Atime)
	stat.Mtim = fuse.NewTimespec(a.Mtime)
	stat.Ctim = fuse.NewTimespec(a.Ctime)
	stat.Birthtim = fuse.NewTimespec(a.Birthtime)
}
