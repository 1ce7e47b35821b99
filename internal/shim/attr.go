package shim

import (
	"os"
	"syscall"

	"github.com/ajaxzhan/mirrorfs/pkg/types"
)

// attributesOf reads the attributes of a host path without following a
// trailing symlink.
func attributesOf(host Host, concrete string) (*types.Attr, error) {
	info, err := host.Lstat(concrete)
	if err != nil {
		return nil, err
	}
	return attrFromInfo(info), nil
}

// attrFromInfo converts host file info into the driver-facing record. When
// the host exposes a native stat structure its bits are folded in, otherwise
// the mode is derived from the node kind alone.
func attrFromInfo(info os.FileInfo) *types.Attr {
	kind := types.KindOf(info.Mode())
	attr := &types.Attr{
		Kind: kind,
		Size: uint64(info.Size()),
	}
	if fillFromSys(attr, info.Sys()) {
		return attr
	}

	attr.Mode = kind.ModeType() | kind.DefaultPerm()
	mtime := info.ModTime()
	attr.Atime = mtime
	attr.Mtime = mtime
	attr.Ctime = mtime
	attr.Birthtime = mtime
	attr.Nlink = 1
	if kind == types.KindDirectory {
		attr.Nlink = 2
	}
	return attr
}

// fileMode converts a POSIX mode word into an os.FileMode, keeping the
// setuid, setgid and sticky bits.
func fileMode(mode uint32) os.FileMode {
	m := os.FileMode(mode & 0o777)
	if mode&syscall.S_ISUID != 0 {
		m |= os.ModeSetuid
	}
	if mode&syscall.S_ISGID != 0 {
		m |= os.ModeSetgid
	}
	if mode&syscall.S_ISVTX != 0 {
		m |= os.ModeSticky
	}
	return m
}
