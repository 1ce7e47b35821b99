//go:build !cgofuse

package fs

import (
	"sync"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/ajaxzhan/mirrorfs/internal/logging"
)

// goFuseMounter mounts through the kernel FUSE protocol directly.
type goFuseMounter struct {
	mfs    *MirrorFS
	server *fuse.Server
	ended  chan struct{}
	once   sync.Once
}

func newMounter(m *MirrorFS) mounter {
	return &goFuseMounter{mfs: m, ended: make(chan struct{})}
}

// mountOptions builds the go-fuse options for cfg. Every cache timeout is
// zero: the host tree can change underneath the mount at any time.
func mountOptions(cfg *Config) *fs.Options {
	var zero time.Duration

	options := []string{"default_permissions"}
	if cfg.ReadOnly {
		options = append(options, "ro")
	}

	return &fs.Options{
		MountOptions: fuse.MountOptions{
			AllowOther: cfg.AllowOther,
			FsName:     cfg.FsName,
			Name:       "mirrorfs",
			Debug:      cfg.Debug,
			Options:    options,
		},
		EntryTimeout:    &zero,
		AttrTimeout:     &zero,
		NegativeTimeout: &zero,
	}
}

func (g *goFuseMounter) mount() error {
	server, err := fs.Mount(g.mfs.config.MountPoint, g.mfs.newRoot(), mountOptions(g.mfs.config))
	if err != nil {
		return err
	}
	g.server = server

	go func() {
		server.Wait()
		g.once.Do(func() { close(g.ended) })
	}()

	logging.Debug("go-fuse server started", logging.String("mount_point", g.mfs.config.MountPoint))
	return nil
}

func (g *goFuseMounter) unmount() error {
	if err := g.server.Unmount(); err != nil {
		return err
	}
	<-g.ended
	return nil
}

func (g *goFuseMounter) done() <-chan struct{} {
	return g.ended
}
