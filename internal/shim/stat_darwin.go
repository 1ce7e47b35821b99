//go:build darwin

package shim

import (
	"syscall"
	"time"

	"github.com/ajaxzhan/mirrorfs/pkg/types"
)

func fillFromSys(attr *types.Attr, sys any) bool {
	st, ok := sys.(*syscall.Stat_t)
	if !ok || st == nil {
		return false
	}

	attr.Mode = uint32(st.Mode)
	attr.Perm = types.PermissionsFromMode(attr.Mode)
	attr.Atime = time.Unix(st.Atimespec.Sec, st.Atimespec.Nsec)
	attr.Mtime = time.Unix(st.Mtimespec.Sec, st.Mtimespec.Nsec)
	attr.Ctime = time.Unix(st.Ctimespec.Sec, st.Ctimespec.Nsec)
	attr.Birthtime = time.Unix(st.Birthtimespec.Sec, st.Birthtimespec.Nsec)
	attr.Nlink = uint32(st.Nlink)
	attr.Uid = st.Uid
	attr.Gid = st.Gid
	attr.Ino = st.Ino
	attr.Blocks = uint64(st.Blocks)
	attr.Blksize = uint32(st.Blksize)
	return true
}
