//go:build linux

package shim

import (
	"golang.org/x/sys/unix"

	"github.com/ajaxzhan/mirrorfs/pkg/types"
)

func statfs(name string) (*types.StatFS, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(name, &st); err != nil {
		return nil, err
	}
	return &types.StatFS{
		Blocks:  st.Blocks,
		Bfree:   st.Bfree,
		Bavail:  st.Bavail,
		Files:   st.Files,
		Ffree:   st.Ffree,
		Bsize:   uint32(st.Bsize),
		Frsize:  uint32(st.Frsize),
		NameLen: uint32(st.Namelen),
	}, nil
}
