//go:build !cgofuse

package fs

import (
	"context"
	"path"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/ajaxzhan/mirrorfs/internal/shim"
	"github.com/ajaxzhan/mirrorfs/pkg/types"
)

// mirrorNode holds what every node kind shares. Nodes keep no path of their
// own: it is recomputed from the inode tree on each call, so renames need
// no bookkeeping.
type mirrorNode struct {
	fs.Inode
	mfs *MirrorFS
}

func (n *mirrorNode) tr() *shim.Translator {
	return n.mfs.tr
}

// virtualPath returns the mount-relative path of the node. An unlinked node
// resolves to a placeholder that does not exist on the host.
func (n *mirrorNode) virtualPath() string {
	return inodePath(n.EmbeddedInode())
}

func (n *mirrorNode) childPath(name string) string {
	return path.Join(n.virtualPath(), name)
}

func inodePath(in *fs.Inode) string {
	return "/" + in.Path(in.Root())
}

// newChild creates the inode for a child described by attr.
func (n *mirrorNode) newChild(ctx context.Context, attr *types.Attr) *fs.Inode {
	var child fs.InodeEmbedder
	switch attr.Kind {
	case types.KindDirectory:
		child = &mirrorDir{mirrorNode: mirrorNode{mfs: n.mfs}}
	case types.KindSymlink:
		child = &mirrorSymlink{mirrorNode: mirrorNode{mfs: n.mfs}}
	default:
		child = &mirrorFile{mirrorNode: mirrorNode{mfs: n.mfs}}
	}

	mode := attr.Mode & syscall.S_IFMT
	if mode == 0 {
		mode = attr.Kind.ModeType()
	}
	return n.NewInode(ctx, child, fs.StableAttr{Mode: mode, Ino: attr.Ino})
}

// entry stats p and returns its inode with out filled in.
func (n *mirrorNode) entry(ctx context.Context, p string, fh uint64, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	attr, errno := n.tr().Getattr(p, fh)
	if errno != 0 {
		return nil, errno
	}
	fillAttr(&out.Attr, attr)
	return n.newChild(ctx, attr), fs.OK
}

// Getattr implements fs.NodeGetattrer.
func (n *mirrorNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	attr, errno := n.tr().Getattr(n.virtualPath(), handleID(f))
	if errno != 0 {
		return errno
	}
	fillAttr(&out.Attr, attr)
	return fs.OK
}

// Setattr implements fs.NodeSetattrer.
func (n *mirrorNode) Setattr(ctx context.Context, f fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	p := n.virtualPath()
	fh := handleID(f)
	tr := n.tr()

	if size, ok := in.GetSize(); ok {
		if errno := tr.Truncate(p, int64(size), fh); errno != 0 {
			return errno
		}
	}

	if mode, ok := in.GetMode(); ok {
		if errno := tr.Chmod(p, mode); errno != 0 {
			return errno
		}
	}

	uid, uok := in.GetUID()
	gid, gok := in.GetGID()
	if uok || gok {
		u, g := -1, -1
		if uok {
			u = int(uid)
		}
		if gok {
			g = int(gid)
		}
		if errno := tr.Chown(p, u, g); errno != 0 {
			return errno
		}
	}

	atime, aok := in.GetATime()
	mtime, mok := in.GetMTime()
	if aok || mok {
		var ap, mp *time.Time
		if aok {
			ap = &atime
		}
		if mok {
			mp = &mtime
		}
		if errno := tr.Utimens(p, ap, mp); errno != 0 {
			return errno
		}
	}

	attr, errno := tr.Getattr(p, fh)
	if errno != 0 {
		return errno
	}
	fillAttr(&out.Attr, attr)
	return fs.OK
}

// Access implements fs.NodeAccesser.
func (n *mirrorNode) Access(ctx context.Context, mask uint32) syscall.Errno {
	return n.tr().Access(n.virtualPath(), mask)
}

// mirrorDir is a directory node.
type mirrorDir struct {
	mirrorNode
}

var _ = (fs.NodeLookuper)((*mirrorDir)(nil))
var _ = (fs.NodeOpendirer)((*mirrorDir)(nil))
var _ = (fs.NodeReaddirer)((*mirrorDir)(nil))
var _ = (fs.NodeGetattrer)((*mirrorDir)(nil))
var _ = (fs.NodeSetattrer)((*mirrorDir)(nil))
var _ = (fs.NodeAccesser)((*mirrorDir)(nil))
var _ = (fs.NodeMkdirer)((*mirrorDir)(nil))
var _ = (fs.NodeRmdirer)((*mirrorDir)(nil))
var _ = (fs.NodeUnlinker)((*mirrorDir)(nil))
var _ = (fs.NodeRenamer)((*mirrorDir)(nil))
var _ = (fs.NodeCreater)((*mirrorDir)(nil))
var _ = (fs.NodeSymlinker)((*mirrorDir)(nil))
var _ = (fs.NodeStatfser)((*mirrorDir)(nil))

// Lookup implements fs.NodeLookuper.
func (d *mirrorDir) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	return d.entry(ctx, d.childPath(name), 0, out)
}

// Opendir implements fs.NodeOpendirer.
func (d *mirrorDir) Opendir(ctx context.Context) syscall.Errno {
	return d.tr().Opendir(d.virtualPath())
}

// Readdir implements fs.NodeReaddirer.
func (d *mirrorDir) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	var entries []fuse.DirEntry
	errno := d.tr().Readdir(d.virtualPath(), func(name string, attr *types.Attr) bool {
		entries = append(entries, fuse.DirEntry{
			Name: name,
			Mode: attr.Mode,
			Ino:  attr.Ino,
		})
		return true
	})
	if errno != 0 {
		return nil, errno
	}
	return fs.NewListDirStream(entries), fs.OK
}

// Mkdir implements fs.NodeMkdirer.
func (d *mirrorDir) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	p := d.childPath(name)
	if errno := d.tr().Mkdir(p, mode); errno != 0 {
		return nil, errno
	}
	return d.entry(ctx, p, 0, out)
}

// Rmdir implements fs.NodeRmdirer.
func (d *mirrorDir) Rmdir(ctx context.Context, name string) syscall.Errno {
	return d.tr().Rmdir(d.childPath(name))
}

// Unlink implements fs.NodeUnlinker.
func (d *mirrorDir) Unlink(ctx context.Context, name string) syscall.Errno {
	return d.tr().Unlink(d.childPath(name))
}

// Rename implements fs.NodeRenamer.
func (d *mirrorDir) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	to := path.Join(inodePath(newParent.EmbeddedInode()), newName)
	return d.tr().Rename(d.childPath(name), to, flags)
}

// Create implements fs.NodeCreater.
func (d *mirrorDir) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	p := d.childPath(name)
	fh, errno := d.tr().Create(p, int(flags), mode)
	if errno != 0 {
		return nil, nil, 0, errno
	}

	inode, errno := d.entry(ctx, p, fh, out)
	if errno != 0 {
		d.tr().Release(p, fh)
		return nil, nil, 0, errno
	}
	return inode, &mirrorHandle{node: inode, tr: d.tr(), fh: fh}, d.mfs.openFlags(), fs.OK
}

// Symlink implements fs.NodeSymlinker.
func (d *mirrorDir) Symlink(ctx context.Context, target, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	p := d.childPath(name)
	if errno := d.tr().Symlink(target, p); errno != 0 {
		return nil, errno
	}
	return d.entry(ctx, p, 0, out)
}

// Statfs implements fs.NodeStatfser. Hosts without statfs report zeroes
// so that df(1) keeps working.
func (d *mirrorDir) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	st, errno := d.tr().Statfs(d.virtualPath())
	if errno == syscall.ENOSYS {
		return fs.OK
	}
	if errno != 0 {
		return errno
	}
	out.Blocks = st.Blocks
	out.Bfree = st.Bfree
	out.Bavail = st.Bavail
	out.Files = st.Files
	out.Ffree = st.Ffree
	out.Bsize = st.Bsize
	out.Frsize = st.Frsize
	out.NameLen = st.NameLen
	return fs.OK
}

// mirrorFile is a regular file node. Special files share it.
type mirrorFile struct {
	mirrorNode
}

var _ = (fs.NodeOpener)((*mirrorFile)(nil))
var _ = (fs.NodeGetattrer)((*mirrorFile)(nil))
var _ = (fs.NodeSetattrer)((*mirrorFile)(nil))
var _ = (fs.NodeAccesser)((*mirrorFile)(nil))

// Open implements fs.NodeOpener.
func (f *mirrorFile) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	fh, errno := f.tr().Open(f.virtualPath(), int(flags))
	if errno != 0 {
		return nil, 0, errno
	}
	return &mirrorHandle{node: f.EmbeddedInode(), tr: f.tr(), fh: fh}, f.mfs.openFlags(), fs.OK
}

// mirrorSymlink is a symbolic link node.
type mirrorSymlink struct {
	mirrorNode
}

var _ = (fs.NodeReadlinker)((*mirrorSymlink)(nil))
var _ = (fs.NodeGetattrer)((*mirrorSymlink)(nil))

// Readlink implements fs.NodeReadlinker.
func (s *mirrorSymlink) Readlink(ctx context.Context) ([]byte, syscall.Errno) {
	target, errno := s.tr().Readlink(s.virtualPath())
	if errno != 0 {
		return nil, errno
	}
	return []byte(target), fs.OK
}

// mirrorHandle carries a translator handle id.
type mirrorHandle struct {
	node *fs.Inode
	tr   *shim.Translator
	fh   uint64
}

var _ = (fs.FileReader)((*mirrorHandle)(nil))
var _ = (fs.FileWriter)((*mirrorHandle)(nil))
var _ = (fs.FileFlusher)((*mirrorHandle)(nil))
var _ = (fs.FileFsyncer)((*mirrorHandle)(nil))
var _ = (fs.FileReleaser)((*mirrorHandle)(nil))
var _ = (fs.FileGetattrer)((*mirrorHandle)(nil))

// handleID extracts the translator handle from f, or 0.
func handleID(f fs.FileHandle) uint64 {
	if h, ok := f.(*mirrorHandle); ok {
		return h.fh
	}
	return 0
}

// Read implements fs.FileReader.
func (h *mirrorHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	n, errno := h.tr.Read(inodePath(h.node), dest, off, h.fh)
	if errno != 0 {
		return nil, errno
	}
	return fuse.ReadResultData(dest[:n]), fs.OK
}

// Write implements fs.FileWriter.
func (h *mirrorHandle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	n, errno := h.tr.Write(inodePath(h.node), data, off, h.fh)
	if errno != 0 {
		return 0, errno
	}
	return uint32(n), fs.OK
}

// Flush implements fs.FileFlusher.
func (h *mirrorHandle) Flush(ctx context.Context) syscall.Errno {
	return h.tr.Flush(inodePath(h.node), h.fh)
}

// Fsync implements fs.FileFsyncer.
func (h *mirrorHandle) Fsync(ctx context.Context, flags uint32) syscall.Errno {
	return h.tr.Fsync(inodePath(h.node), h.fh)
}

// Release implements fs.FileReleaser.
func (h *mirrorHandle) Release(ctx context.Context) syscall.Errno {
	return h.tr.Release(inodePath(h.node), h.fh)
}

// Getattr implements fs.FileGetattrer.
func (h *mirrorHandle) Getattr(ctx context.Context, out *fuse.AttrOut) syscall.Errno {
	attr, errno := h.tr.Getattr(inodePath(h.node), h.fh)
	if errno != 0 {
		return errno
	}
	fillAttr(&out.Attr, attr)
	return fs.OK
}

// fillAttr copies translated attributes into a FUSE reply.
func fillAttr(out *fuse.Attr, a *types.Attr) {
	out.Ino = a.Ino
	out.Mode = a.Mode
	out.Size = a.Size
	out.Blocks = a.Blocks
	out.Blksize = a.Blksize
	out.Nlink = a.Nlink
	out.Owner = fuse.Owner{Uid: a.Uid, Gid: a.Gid}
	out.SetTimes(&a.Atime, &a.Mtime, &a.Ctime)
}

// openFlags returns the FOPEN_* flags for new handles.
func (m *MirrorFS) openFlags() uint32 {
	if m.config.DirectIO {
		return fuse.FOPEN_DIRECT_IO
	}
	return 0
}

// newRoot creates the root node of the mount.
func (m *MirrorFS) newRoot() *mirrorDir {
	return &mirrorDir{mirrorNode: mirrorNode{mfs: m}}
}
