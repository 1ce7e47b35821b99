//go:build linux

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

	attr.Mode = st.Mode
	attr.Perm = types.PermissionsFromMode(st.Mode)
	attr.Atime = time.Unix(int64(st.Atim.Sec), int64(st.Atim.Nsec))
	attr.Mtime = time.Unix(int64(st.Mtim.Sec), int64(st.Mtim.Nsec))
	attr.Ctime = time.Unix(int64(st.Ctim.Sec), int64(st.Ctim.Nsec))
	// Linux stat(2) has no birth time.
	attr.Birthtime = attr.Ctime
	attr.Nlink = uint32(st.Nlink)
	attr.Uid = st.Uid
	attr.Gid = st.Gid
	attr.Ino = st.Ino
	attr.Blocks = uint64(st.Blocks)
	attr.Blksize = uint32(st.Blksize)
	return true
}
