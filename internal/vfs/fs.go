// Package vfs adapts syscall-like, path-based filesystem operations onto
// the router. It is stateless per call: the only mutable state is the open
// handle counter, everything else is recomputed through dispatch.
package vfs

import (
	"errors"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/dabrowne/ledgerfs/internal/route"
	"github.com/dabrowne/ledgerfs/internal/util"
)

// Sentinel errors surfaced to the FUSE boundary. Anything else coming out
// of a handler is an undifferentiated I/O failure.
var (
	ErrNotExist = errors.New("no such entry")
	ErrReadOnly = errors.New("read-only filesystem")
)

// FileSystem dispatches filesystem operations through a router and applies
// the fallback rules between operation tables.
type FileSystem struct {
	router *route.Router
	lastFH atomic.Uint64
	log    zerolog.Logger
}

func New(router *route.Router) *FileSystem {
	return &FileSystem{
		router: router,
		log:    util.GetLogger("vfs"),
	}
}

func (f *FileSystem) Router() *route.Router { return f.router }

// ReadDir lists a routed directory. The two conventional self/parent
// pseudo-entries are prepended to the handler's listing.
func (f *FileSystem) ReadDir(path string) ([]string, error) {
	n, err := f.router.Dispatch(route.OpReadDir, path)
	if errors.Is(err, route.ErrNotRouted) {
		return nil, ErrNotExist
	}
	if err != nil {
		return nil, err
	}
	return append([]string{".", ".."}, n.Entries...), nil
}

// ReadLink returns the full payload of a routed file.
func (f *FileSystem) ReadLink(path string) ([]byte, error) {
	n, err := f.router.Dispatch(route.OpReadLink, path)
	if errors.Is(err, route.ErrNotRouted) {
		return nil, ErrNotExist
	}
	if err != nil {
		return nil, err
	}
	return n.Data, nil
}

// GetAttr resolves path through the readdir table first and the readlink
// table second, returning the synthesized attributes of whichever answers.
func (f *FileSystem) GetAttr(path string) (route.Attr, error) {
	for _, op := range []route.Op{route.OpReadDir, route.OpReadLink} {
		n, err := f.router.Dispatch(op, path)
		if errors.Is(err, route.ErrNotRouted) {
			continue
		}
		if err != nil {
			return route.Attr{}, err
		}
		return n.Attr(), nil
	}
	return route.Attr{}, ErrNotExist
}

// Open dispatches the open table purely for handler side effects and then
// allocates the next handle. Opening never fails just because a path has
// no open route; handles are strictly increasing and never reused within a
// process lifetime.
func (f *FileSystem) Open(path string, flags uint32) (uint64, error) {
	if _, err := f.router.Dispatch(route.OpOpen, path); err != nil && !errors.Is(err, route.ErrNotRouted) {
		return 0, err
	}
	return f.lastFH.Add(1), nil
}

// Read serves a routed read handler's payload verbatim (the handler owns
// any offset semantics it implements). Without a read route it falls back
// to the readlink payload sliced to [offset, offset+size), clipped to the
// payload length.
func (f *FileSystem) Read(path string, size int, offset int64, fh uint64) ([]byte, error) {
	n, err := f.router.Dispatch(route.OpRead, path)
	if err == nil {
		return n.Data, nil
	}
	if !errors.Is(err, route.ErrNotRouted) {
		return nil, err
	}

	data, err := f.ReadLink(path)
	if err != nil {
		return nil, err
	}
	if offset >= int64(len(data)) {
		return nil, nil
	}
	end := offset + int64(size)
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return data[offset:end], nil
}

// GetXAttr returns the routed extended attribute payload, or an empty
// result (not an error) when nothing is routed.
func (f *FileSystem) GetXAttr(path, name string) ([]byte, error) {
	n, err := f.router.Dispatch(route.OpGetXAttr, path)
	if errors.Is(err, route.ErrNotRouted) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return n.Data, nil
}

// ListXAttr returns the routed attribute names, or an empty result when
// nothing is routed.
func (f *FileSystem) ListXAttr(path string) ([]string, error) {
	n, err := f.router.Dispatch(route.OpListXAttr, path)
	if errors.Is(err, route.ErrNotRouted) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return n.Entries, nil
}
