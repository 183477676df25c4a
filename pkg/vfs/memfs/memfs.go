// Package memfs provides an in-memory, single-directory filesystem of
// fixed-size files. It is the filesystem the kernel runs against in tests
// and in the demo.
package memfs

import (
	"io"
	"sort"
	"sync"
	"time"

	vfs "userprog/pkg/vfs"
)

// inode is the shared state of one file. Open handles keep a removed
// inode alive until they are closed.
type inode struct {
	mu        sync.RWMutex
	data      []byte
	denyWrite int
	mtime     time.Time
}

var _ vfs.FileSystem = (*FS)(nil)

// FS represents an in-memory filesystem.
type FS struct {
	mu    sync.RWMutex
	files map[string]*inode
}

// New creates a new in-memory filesystem.
func New() *FS {
	return &FS{
		files: make(map[string]*inode),
	}
}

// Create implements vfs.FileSystem.Create.
func (fs *FS) Create(path string, initialSize int64) error {
	if initialSize < 0 || initialSize > vfs.MaxFileSize {
		return vfs.ErrInvalidSize
	}
	name, err := vfs.FlatName(path)
	if err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, exists := fs.files[name]; exists {
		return vfs.ErrFileExists
	}
	fs.files[name] = &inode{
		data:  make([]byte, initialSize),
		mtime: time.Now(),
	}
	return nil
}

// Remove implements vfs.FileSystem.Remove.
func (fs *FS) Remove(path string) error {
	name, err := vfs.FlatName(path)
	if err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, ok := fs.files[name]; !ok {
		return vfs.ErrFileNotFound
	}
	delete(fs.files, name)
	return nil
}

// Open implements vfs.FileSystem.Open.
func (fs *FS) Open(path string) (vfs.File, error) {
	name, err := vfs.FlatName(path)
	if err != nil {
		return nil, err
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	node, ok := fs.files[name]
	if !ok {
		return nil, vfs.ErrFileNotFound
	}
	return &memFile{node: node}, nil
}

// Stat implements vfs.FileSystem.Stat.
func (fs *FS) Stat(path string) (vfs.FileInfo, error) {
	name, err := vfs.FlatName(path)
	if err != nil {
		return vfs.FileInfo{}, err
	}

	fs.mu.RLock()
	node, ok := fs.files[name]
	fs.mu.RUnlock()
	if !ok {
		return vfs.FileInfo{}, vfs.ErrFileNotFound
	}

	node.mu.RLock()
	defer node.mu.RUnlock()
	return vfs.FileInfo{
		Name:    name,
		Size:    int64(len(node.data)),
		ModTime: node.mtime,
	}, nil
}

// WriteFile creates or replaces the file at path with a copy of data. It
// is used to install executables and fixtures.
func (fs *FS) WriteFile(path string, data []byte) error {
	name, err := vfs.FlatName(path)
	if err != nil {
		return err
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.files[name] = &inode{data: buf, mtime: time.Now()}
	return nil
}

// Names returns the sorted names of every file.
func (fs *FS) Names() []string {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	names := make([]string, 0, len(fs.files))
	for name := range fs.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ReadFile returns a copy of the contents of the file at path.
func (fs *FS) ReadFile(path string) ([]byte, error) {
	name, err := vfs.FlatName(path)
	if err != nil {
		return nil, err
	}

	fs.mu.RLock()
	node, ok := fs.files[name]
	fs.mu.RUnlock()
	if !ok {
		return nil, vfs.ErrFileNotFound
	}

	node.mu.RLock()
	defer node.mu.RUnlock()
	out := make([]byte, len(node.data))
	copy(out, node.data)
	return out, nil
}

// memFile is an open handle on an inode.
type memFile struct {
	mu     sync.Mutex
	node   *inode
	pos    int64
	closed bool
	denied bool
}

// Read implements io.Reader.
func (f *memFile) Read(b []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0, vfs.ErrClosedFile
	}
	if len(b) == 0 {
		return 0, nil
	}

	f.node.mu.RLock()
	defer f.node.mu.RUnlock()

	if f.pos >= int64(len(f.node.data)) {
		return 0, io.EOF
	}
	n := copy(b, f.node.data[f.pos:])
	f.pos += int64(n)
	return n, nil
}

// Write implements io.Writer.
func (f *memFile) Write(b []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0, vfs.ErrClosedFile
	}

	f.node.mu.Lock()
	defer f.node.mu.Unlock()

	if f.node.denyWrite > 0 {
		return 0, vfs.ErrWriteDenied
	}
	if f.pos >= int64(len(f.node.data)) {
		if len(b) == 0 {
			return 0, nil
		}
		return 0, io.ErrShortWrite
	}

	n := copy(f.node.data[f.pos:], b)
	f.pos += int64(n)
	f.node.mtime = time.Now()
	if n < len(b) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

// Seek implements io.Seeker.
func (f *memFile) Seek(offset int64, whence int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0, vfs.ErrClosedFile
	}

	var pos int64
	switch whence {
	case vfs.SEEK_SET:
		pos = offset
	case vfs.SEEK_CUR:
		pos = f.pos + offset
	case vfs.SEEK_END:
		f.node.mu.RLock()
		pos = int64(len(f.node.data)) + offset
		f.node.mu.RUnlock()
	default:
		return 0, vfs.ErrInvalidSeek
	}

	if pos < 0 {
		return 0, vfs.ErrInvalidSeek
	}
	f.pos = pos
	return pos, nil
}

// Tell implements vfs.File.
func (f *memFile) Tell() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pos
}

// Length implements vfs.File.
func (f *memFile) Length() int64 {
	f.node.mu.RLock()
	defer f.node.mu.RUnlock()
	return int64(len(f.node.data))
}

// DenyWrite implements vfs.File.
func (f *memFile) DenyWrite() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed || f.denied {
		return
	}
	f.denied = true
	f.node.mu.Lock()
	f.node.denyWrite++
	f.node.mu.Unlock()
}

// AllowWrite implements vfs.File.
func (f *memFile) AllowWrite() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allowWrite()
}

func (f *memFile) allowWrite() {
	if !f.denied {
		return
	}
	f.denied = false
	f.node.mu.Lock()
	f.node.denyWrite--
	f.node.mu.Unlock()
}

// Close implements io.Closer.
func (f *memFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.allowWrite()
	f.closed = true
	return nil
}
