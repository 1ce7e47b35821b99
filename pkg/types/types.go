// Package types defines the core domain types shared by the translation shim
// and its driver bindings.
package types

import (
	"os"
	"syscall"
	"time"
)

// NodeKind is the closed set of node kinds a mirrored path can have.
type NodeKind int

const (
	KindFile      NodeKind = iota // Regular file (and any non-directory, non-symlink host node)
	KindDirectory                 // Directory
	KindSymlink                   // Symbolic link
)

// String returns the lowercase name of the kind.
func (k NodeKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	case KindSymlink:
		return "symlink"
	default:
		return "unknown"
	}
}

// ModeType returns the S_IF* type bits for the kind.
func (k NodeKind) ModeType() uint32 {
	switch k {
	case KindDirectory:
		return syscall.S_IFDIR
	case KindSymlink:
		return syscall.S_IFLNK
	default:
		return syscall.S_IFREG
	}
}

// KindOf derives the node kind from a host file mode: directory, else
// symlink, else file.
func KindOf(mode os.FileMode) NodeKind {
	switch {
	case mode.IsDir():
		return KindDirectory
	case mode&os.ModeSymlink != 0:
		return KindSymlink
	default:
		return KindFile
	}
}

// DefaultPerm is the permission word reported for a kind when the host does
// not expose POSIX permission bits.
func (k NodeKind) DefaultPerm() uint32 {
	switch k {
	case KindDirectory:
		return 0o755
	case KindSymlink:
		return 0o777
	default:
		return 0o644
	}
}

// Permissions holds the nine POSIX permission bits as booleans.
type Permissions struct {
	UserRead   bool
	UserWrite  bool
	UserExec   bool
	GroupRead  bool
	GroupWrite bool
	GroupExec  bool
	OtherRead  bool
	OtherWrite bool
	OtherExec  bool
}

// PermissionsFromMode unpacks the low nine bits of mode.
func PermissionsFromMode(mode uint32) *Permissions {
	return &Permissions{
		UserRead:   mode&0o400 != 0,
		UserWrite:  mode&0o200 != 0,
		UserExec:   mode&0o100 != 0,
		GroupRead:  mode&0o040 != 0,
		GroupWrite: mode&0o020 != 0,
		GroupExec:  mode&0o010 != 0,
		OtherRead:  mode&0o004 != 0,
		OtherWrite: mode&0o002 != 0,
		OtherExec:  mode&0o001 != 0,
	}
}

// Bits packs the permissions back into a mode word.
func (p *Permissions) Bits() uint32 {
	var m uint32
	set := func(b bool, bit uint32) {
		if b {
			m |= bit
		}
	}
	set(p.UserRead, 0o400)
	set(p.UserWrite, 0o200)
	set(p.UserExec, 0o100)
	set(p.GroupRead, 0o040)
	set(p.GroupWrite, 0o020)
	set(p.GroupExec, 0o010)
	set(p.OtherRead, 0o004)
	set(p.OtherWrite, 0o002)
	set(p.OtherExec, 0o001)
	return m
}

// Attr is the attribute record handed back to the FUSE driver.
type Attr struct {
	Kind      NodeKind
	Mode      uint32 // S_IF* type bits | permission bits
	Size      uint64
	Atime     time.Time
	Mtime     time.Time
	Ctime     time.Time
	Birthtime time.Time // equals Ctime when the host cannot report it

	// Perm is nil when the host does not expose POSIX permission bits.
	Perm *Permissions

	Nlink   uint32
	Uid     uint32
	Gid     uint32
	Ino     uint64
	Blocks  uint64
	Blksize uint32
}

// IsDir reports whether the attribute describes a directory.
func (a *Attr) IsDir() bool {
	return a.Kind == KindDirectory
}

// StatFS describes the filesystem backing the mirrored root.
type StatFS struct {
	Blocks  uint64
	Bfree   uint64
	Bavail  uint64
	Files   uint64
	Ffree   uint64
	Bsize   uint32
	Frsize  uint32
	NameLen uint32
}
