package vfs

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dabrowne/ledgerfs/internal/route"
)

func newTestFS(t *testing.T) *FileSystem {
	t.Helper()

	r := route.NewRouter()
	require.NoError(t, r.Handle(route.OpReadDir, "/", route.Func0(func() (any, error) {
		return []string{"dir", "file.txt"}, nil
	})))
	require.NoError(t, r.Handle(route.OpReadDir, "/dir", route.Func0(func() (any, error) {
		return []string{"file.txt"}, nil
	})))
	require.NoError(t, r.Handle(route.OpReadLink, "/dir/file.txt", route.Func0(func() (any, error) {
		return "hello", nil
	})))
	return New(r)
}

func TestFileSystem_ReadDir(t *testing.T) {
	t.Parallel()

	fs := newTestFS(t)
	names, err := fs.ReadDir("/dir")
	require.NoError(t, err)
	assert.Equal(t, []string{".", "..", "file.txt"}, names)

	_, err = fs.ReadDir("/nowhere/nested")
	assert.ErrorIs(t, err, ErrNotExist)
}

func TestFileSystem_ReadLink(t *testing.T) {
	t.Parallel()

	fs := newTestFS(t)
	data, err := fs.ReadLink("/dir/file.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	_, err = fs.ReadLink("/dir/missing.txt")
	assert.ErrorIs(t, err, ErrNotExist)
}

func TestFileSystem_GetAttr(t *testing.T) {
	t.Parallel()

	fs := newTestFS(t)

	// Routed through the readdir table: directory attributes.
	attr, err := fs.GetAttr("/dir")
	require.NoError(t, err)
	assert.Equal(t, uint32(syscall.S_IFDIR|0o555), attr.Mode)

	// Routed only through the readlink table: file attributes with size.
	attr, err = fs.GetAttr("/dir/file.txt")
	require.NoError(t, err)
	assert.Equal(t, uint32(syscall.S_IFREG|0o444), attr.Mode)
	assert.Equal(t, uint64(5), attr.Size)

	_, err = fs.GetAttr("/wholly/unrouted")
	assert.ErrorIs(t, err, ErrNotExist)
}

func TestFileSystem_ReadFallsBackToReadLink(t *testing.T) {
	t.Parallel()

	fs := newTestFS(t)

	tests := []struct {
		offset int64
		size   int
		want   string
		desc   string
	}{
		{0, 100, "hello", "size clipped to payload length"},
		{2, 3, "llo", "offset and size honored"},
		{4, 10, "o", "tail read"},
		{5, 1, "", "offset at end"},
		{100, 1, "", "offset past end"},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			data, err := fs.Read("/dir/file.txt", tt.size, tt.offset, 1)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(data))
		})
	}
}

func TestFileSystem_ReadPrefersReadRoute(t *testing.T) {
	t.Parallel()

	fs := newTestFS(t)
	require.NoError(t, fs.Router().Handle(route.OpRead, "/dir/file.txt", route.Func0(func() (any, error) {
		return "routed read", nil
	})))

	// A read route serves its payload whole; the handler owns any offset
	// semantics.
	data, err := fs.Read("/dir/file.txt", 3, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, "routed read", string(data))
}

func TestFileSystem_OpenAllocatesMonotonicHandles(t *testing.T) {
	t.Parallel()

	fs := newTestFS(t)
	var prev uint64
	for i, path := range []string{"/dir/file.txt", "/no/route/here", "/dir", "/x"} {
		fh, err := fs.Open(path, 0)
		require.NoError(t, err, "open %d", i)
		assert.Greater(t, fh, prev)
		prev = fh
	}
}

func TestFileSystem_XAttrUnroutedIsEmpty(t *testing.T) {
	t.Parallel()

	fs := newTestFS(t)

	data, err := fs.GetXAttr("/dir/file.txt", "user.anything")
	require.NoError(t, err)
	assert.Empty(t, data)

	names, err := fs.ListXAttr("/dir/file.txt")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestFileSystem_XAttrRouted(t *testing.T) {
	t.Parallel()

	fs := newTestFS(t)
	require.NoError(t, fs.Router().Handle(route.OpGetXAttr, "/dir/file.txt", route.Func0(func() (any, error) {
		return "xattr-value", nil
	})))
	require.NoError(t, fs.Router().Handle(route.OpListXAttr, "/dir/file.txt", route.Func0(func() (any, error) {
		return []string{"user.a", "user.b"}, nil
	})))

	data, err := fs.GetXAttr("/dir/file.txt", "user.a")
	require.NoError(t, err)
	assert.Equal(t, []byte("xattr-value"), data)

	names, err := fs.ListXAttr("/dir/file.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"user.a", "user.b"}, names)
}

func TestFileSystem_MutatingOpsAreReadOnly(t *testing.T) {
	t.Parallel()

	fs := newTestFS(t)

	ops := map[string]func() error{
		"create":      func() error { return fs.Create("/dir/new", 0, 0o644) },
		"write":       func() error { return fs.Write("/dir/file.txt", []byte("x"), 0) },
		"truncate":    func() error { return fs.Truncate("/dir/file.txt", 0) },
		"unlink":      func() error { return fs.Unlink("/dir/file.txt") },
		"chmod":       func() error { return fs.Chmod("/dir/file.txt", 0o777) },
		"chown":       func() error { return fs.Chown("/dir/file.txt", 0, 0) },
		"mkdir":       func() error { return fs.Mkdir("/newdir", 0o755) },
		"removexattr": func() error { return fs.RemoveXAttr("/dir/file.txt", "user.a") },
		"rename":      func() error { return fs.Rename("/dir/file.txt", "/dir/other.txt") },
		"rmdir":       func() error { return fs.Rmdir("/dir") },
		"setxattr":    func() error { return fs.SetXAttr("/dir/file.txt", "user.a", []byte("v")) },
		"symlink":     func() error { return fs.Symlink("/dir/file.txt", "/link") },
		"utimens":     func() error { return fs.Utimens("/dir/file.txt") },
	}

	for name, op := range ops {
		assert.ErrorIs(t, op(), ErrReadOnly, name)
	}

	// Rejection causes no observable state change.
	names, err := fs.ReadDir("/dir")
	require.NoError(t, err)
	assert.Equal(t, []string{".", "..", "file.txt"}, names)
}
