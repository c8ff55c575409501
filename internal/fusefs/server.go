package fusefs

import (
	"fmt"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/rs/zerolog"

	"github.com/dabrowne/ledgerfs/config"
	"github.com/dabrowne/ledgerfs/internal/util"
	"github.com/dabrowne/ledgerfs/internal/vfs"
)

// Server wraps the mounted FUSE server.
type Server struct {
	srv *fuse.Server
	log zerolog.Logger
}

// Mount mounts fsys at mountPoint and starts serving. Call Wait to block
// until unmount and Unmount to tear the mount down.
func Mount(fsys *vfs.FileSystem, mountPoint string, cfg *config.Config) (*Server, error) {
	log := util.GetLogger("fusefs")

	attrTimeout := time.Duration(cfg.AttrTimeout * float64(time.Second))
	entryTimeout := time.Duration(cfg.EntryTimeout * float64(time.Second))

	root := &node{fsys: fsys, path: "/"}
	srv, err := fs.Mount(mountPoint, root, &fs.Options{
		AttrTimeout:  &attrTimeout,
		EntryTimeout: &entryTimeout,
		MountOptions: fuse.MountOptions{
			Name:   cfg.MountOptions.Name,
			FsName: cfg.MountOptions.FsName,
			Debug:  cfg.MountOptions.Debug,
			Logger: util.NewLogLogger("fuse", util.DebugLevel),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mount %s: %w", mountPoint, err)
	}

	log.Info().Str("mountpoint", mountPoint).Msg("Filesystem mounted")
	return &Server{srv: srv, log: log}, nil
}

// Wait blocks until the filesystem is unmounted.
func (s *Server) Wait() {
	s.srv.Wait()
}

// Unmount cleanly unmounts the filesystem.
func (s *Server) Unmount() error {
	return s.srv.Unmount()
}
