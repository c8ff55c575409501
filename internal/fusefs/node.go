// Package fusefs binds the path-based filesystem adapter to the kernel
// through go-fuse's node API. Every inode is a thin wrapper around its
// path; all state lives behind the router.
package fusefs

import (
	"context"
	"errors"
	"path"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/dabrowne/ledgerfs/internal/route"
	"github.com/dabrowne/ledgerfs/internal/vfs"
)

type node struct {
	fs.Inode
	fsys *vfs.FileSystem
	path string
}

var (
	_ fs.InodeEmbedder = (*node)(nil)

	_ fs.NodeLookuper   = (*node)(nil)
	_ fs.NodeGetattrer  = (*node)(nil)
	_ fs.NodeReaddirer  = (*node)(nil)
	_ fs.NodeOpener     = (*node)(nil)
	_ fs.NodeReader     = (*node)(nil)
	_ fs.NodeGetxattrer = (*node)(nil)
	_ fs.NodeListxattrer = (*node)(nil)
	_ fs.NodeStatfser   = (*node)(nil)

	_ fs.NodeSetattrer     = (*node)(nil)
	_ fs.NodeCreater       = (*node)(nil)
	_ fs.NodeWriter        = (*node)(nil)
	_ fs.NodeMkdirer       = (*node)(nil)
	_ fs.NodeUnlinker      = (*node)(nil)
	_ fs.NodeRmdirer       = (*node)(nil)
	_ fs.NodeRenamer       = (*node)(nil)
	_ fs.NodeSymlinker     = (*node)(nil)
	_ fs.NodeSetxattrer    = (*node)(nil)
	_ fs.NodeRemovexattrer = (*node)(nil)
)

// fileHandle carries the handle id allocated at open time. The adapter
// never reuses ids, which makes them useful trace markers in debug logs.
type fileHandle struct {
	id uint64
}

func childPath(parent, name string) string {
	return path.Join(parent, name)
}

func errnoFromErr(err error) syscall.Errno {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, vfs.ErrNotExist):
		return syscall.ENOENT
	case errors.Is(err, vfs.ErrReadOnly):
		return syscall.EROFS
	default:
		return syscall.EIO
	}
}

func fillAttr(attr route.Attr, out *fuse.Attr) {
	out.Mode = attr.Mode
	out.Size = attr.Size
}

func (n *node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	child := childPath(n.path, name)
	attr, err := n.fsys.GetAttr(child)
	if err != nil {
		return nil, errnoFromErr(err)
	}
	fillAttr(attr, &out.Attr)

	stable := fs.StableAttr{Mode: attr.Mode & syscall.S_IFMT}
	return n.NewInode(ctx, &node{fsys: n.fsys, path: child}, stable), 0
}

func (n *node) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	attr, err := n.fsys.GetAttr(n.path)
	if err != nil {
		return errnoFromErr(err)
	}
	fillAttr(attr, &out.Attr)
	return 0
}

// Readdir lists entry names only; entry modes are left unknown so listing
// a month of transactions does not stat every one of them upstream.
func (n *node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries, err := n.fsys.ReadDir(n.path)
	if err != nil {
		return nil, errnoFromErr(err)
	}
	list := make([]fuse.DirEntry, 0, len(entries))
	for _, name := range entries {
		if name == "." || name == ".." {
			continue
		}
		list = append(list, fuse.DirEntry{Name: name})
	}
	return fs.NewListDirStream(list), 0
}

func (n *node) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	const writeFlags = uint32(syscall.O_WRONLY | syscall.O_RDWR | syscall.O_APPEND | syscall.O_TRUNC)
	if flags&writeFlags != 0 {
		return nil, 0, syscall.EROFS
	}
	fh, err := n.fsys.Open(n.path, flags)
	if err != nil {
		return nil, 0, errnoFromErr(err)
	}
	// Direct IO: file contents are regenerated per read and their sizes
	// drift as caches expire, so the page cache must not serve stale
	// lengths.
	return &fileHandle{id: fh}, fuse.FOPEN_DIRECT_IO, 0
}

func (n *node) Read(ctx context.Context, f fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	var fh uint64
	if h, ok := f.(*fileHandle); ok {
		fh = h.id
	}
	data, err := n.fsys.Read(n.path, len(dest), off, fh)
	if err != nil {
		return nil, errnoFromErr(err)
	}
	return fuse.ReadResultData(data), 0
}

func (n *node) Getxattr(ctx context.Context, attr string, dest []byte) (uint32, syscall.Errno) {
	data, err := n.fsys.GetXAttr(n.path, attr)
	if err != nil {
		return 0, errnoFromErr(err)
	}
	if len(data) == 0 {
		return 0, syscall.ENODATA
	}
	if len(dest) < len(data) {
		return uint32(len(data)), syscall.ERANGE
	}
	return uint32(copy(dest, data)), 0
}

func (n *node) Listxattr(ctx context.Context, dest []byte) (uint32, syscall.Errno) {
	names, err := n.fsys.ListXAttr(n.path)
	if err != nil {
		return 0, errnoFromErr(err)
	}
	var buf []byte
	for _, name := range names {
		buf = append(buf, name...)
		buf = append(buf, 0)
	}
	if len(dest) < len(buf) {
		return uint32(len(buf)), syscall.ERANGE
	}
	return uint32(copy(dest, buf)), 0
}

func (n *node) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	out.Bsize = 4096
	out.NameLen = 255
	return 0
}

// Setattr routes each attribute change to its mutating operation, all of
// which refuse with EROFS. Dispatching per valid bit keeps the refusal
// uniform with the other write paths.
func (n *node) Setattr(ctx context.Context, f fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if mode, ok := in.GetMode(); ok {
		return errnoFromErr(n.fsys.Chmod(n.path, mode))
	}
	uid, uok := in.GetUID()
	gid, gok := in.GetGID()
	if uok || gok {
		return errnoFromErr(n.fsys.Chown(n.path, uid, gid))
	}
	if size, ok := in.GetSize(); ok {
		return errnoFromErr(n.fsys.Truncate(n.path, size))
	}
	return errnoFromErr(n.fsys.Utimens(n.path))
}

func (n *node) Create(ctx context.Context, name string, flags, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	return nil, nil, 0, errnoFromErr(n.fsys.Create(childPath(n.path, name), flags, mode))
}

func (n *node) Write(ctx context.Context, f fs.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	return 0, errnoFromErr(n.fsys.Write(n.path, data, off))
}

func (n *node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	return nil, errnoFromErr(n.fsys.Mkdir(childPath(n.path, name), mode))
}

func (n *node) Unlink(ctx context.Context, name string) syscall.Errno {
	return errnoFromErr(n.fsys.Unlink(childPath(n.path, name)))
}

func (n *node) Rmdir(ctx context.Context, name string) syscall.Errno {
	return errnoFromErr(n.fsys.Rmdir(childPath(n.path, name)))
}

func (n *node) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	dest := newName
	if p, ok := newParent.(*node); ok {
		dest = childPath(p.path, newName)
	}
	return errnoFromErr(n.fsys.Rename(childPath(n.path, name), dest))
}

func (n *node) Symlink(ctx context.Context, target, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	return nil, errnoFromErr(n.fsys.Symlink(target, childPath(n.path, name)))
}

func (n *node) Setxattr(ctx context.Context, attr string, data []byte, flags uint32) syscall.Errno {
	return errnoFromErr(n.fsys.SetXAttr(n.path, attr, data))
}

func (n *node) Removexattr(ctx context.Context, attr string) syscall.Errno {
	return errnoFromErr(n.fsys.RemoveXAttr(n.path, attr))
}
