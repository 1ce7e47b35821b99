//go:build !cgofuse

package fs

import (
	"syscall"
	"testing"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/stretchr/testify/assert"

	"github.com/ajaxzhan/mirrorfs/pkg/types"
)

func TestFillAttr(t *testing.T) {
	mtime := time.Unix(1700000000, 123)
	attr := &types.Attr{
		Kind:    types.KindFile,
		Mode:    syscall.S_IFREG | 0o640,
		Size:    42,
		Atime:   mtime.Add(time.Second),
		Mtime:   mtime,
		Ctime:   mtime.Add(2 * time.Second),
		Nlink:   3,
		Uid:     1000,
		Gid:     100,
		Ino:     77,
		Blocks:  8,
		Blksize: 4096,
	}

	var out fuse.Attr
	fillAttr(&out, attr)

	assert.Equal(t, uint64(77), out.Ino)
	assert.Equal(t, uint32(syscall.S_IFREG|0o640), out.Mode)
	assert.Equal(t, uint64(42), out.Size)
	assert.Equal(t, uint64(8), out.Blocks)
	assert.Equal(t, uint32(4096), out.Blksize)
	assert.Equal(t, uint32(3), out.Nlink)
	assert.Equal(t, uint32(1000), out.Uid)
	assert.Equal(t, uint32(100), out.Gid)
	assert.Equal(t, uint64(mtime.Unix()), out.Mtime)
	assert.Equal(t, uint32(123), out.Mtimensec)
	assert.Equal(t, uint64(mtime.Unix()+1), out.Atime)
	assert.Equal(t, uint64(mtime.Unix()+2), out.Ctime)
}

func TestMountOptions(t *testing.T) {
	opts := mountOptions(&Config{FsName: "data", AllowOther: true, ReadOnly: true})

	assert.Equal(t, "data", opts.FsName)
	assert.True(t, opts.AllowOther)
	assert.Contains(t, opts.Options, "default_permissions")
	assert.Contains(t, opts.Options, "ro")
	assert.Zero(t, *opts.EntryTimeout)
	assert.Zero(t, *opts.AttrTimeout)
	assert.Zero(t, *opts.NegativeTimeout)

	rw := mountOptions(&Config{FsName: "data"})
	assert.NotContains(t, rw.Options, "ro")
}

func TestOpenFlags(t *testing.T) {
	assert.Zero(t, (&MirrorFS{config: &Config{}}).openFlags())
	assert.Equal(t, uint32(fuse.FOPEN_DIRECT_IO), (&MirrorFS{config: &Config{DirectIO: true}}).openFlags())
}
