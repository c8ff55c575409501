package vfs

// Every mutating operation fails with the same fixed ErrReadOnly,
// regardless of path or routing state. Registration cannot override this.

func (f *FileSystem) Create(path string, flags, mode uint32) error { return ErrReadOnly }

func (f *FileSystem) Write(path string, data []byte, offset int64) error { return ErrReadOnly }

func (f *FileSystem) Truncate(path string, size uint64) error { return ErrReadOnly }

func (f *FileSystem) Unlink(path string) error { return ErrReadOnly }

func (f *FileSystem) Chmod(path string, mode uint32) error { return ErrReadOnly }

func (f *FileSystem) Chown(path string, uid, gid uint32) error { return ErrReadOnly }

func (f *FileSystem) Mkdir(path string, mode uint32) error { return ErrReadOnly }

func (f *FileSystem) RemoveXAttr(path, name string) error { return ErrReadOnly }

func (f *FileSystem) Rename(oldPath, newPath string) error { return ErrReadOnly }

func (f *FileSystem) Rmdir(path string) error { return ErrReadOnly }

func (f *FileSystem) SetXAttr(path, name string, value []byte) error { return ErrReadOnly }

func (f *FileSystem) Symlink(target, link string) error { return ErrReadOnly }

func (f *FileSystem) Utimens(path string) error { return ErrReadOnly }
