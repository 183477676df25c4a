package vfs

import (
	"io"
	"math"
	"time"
)

// FileSystem is the set of filesystem primitives the kernel calls on
// behalf of user processes. Implementations must be safe for concurrent
// use of metadata operations; reads and writes on open files are
// serialized by the caller.
type FileSystem interface {
	// Create creates a file of initialSize zero bytes. It fails if the
	// file already exists or the name is not acceptable.
	Create(path string, initialSize int64) error

	// Remove removes the file at path. Files that are open stay usable
	// through their existing handles.
	Remove(path string) error

	// Open opens an existing file. Each call returns an independent
	// handle with its own position.
	Open(path string) (File, error)

	// Stat returns a FileInfo describing the file at path.
	Stat(path string) (FileInfo, error)
}

// File is an open file handle.
type File interface {
	// Read reads from the current position, advancing it.
	io.Reader

	// Write writes at the current position, advancing it. Files do not
	// grow: a write that reaches the end of the file is cut short.
	io.Writer

	// Seek sets the position for the next Read or Write. Positions past
	// the end of the file are allowed.
	io.Seeker

	// Close releases the handle. Closing twice is a no-op.
	io.Closer

	// Tell returns the current position.
	Tell() int64

	// Length returns the size of the file in bytes.
	Length() int64

	// DenyWrite prevents writes to the underlying file until this handle
	// calls AllowWrite or is closed.
	DenyWrite()

	// AllowWrite lifts a denial placed through this handle.
	AllowWrite()
}

// MaxFileSize is the largest file a user process can create or address.
const MaxFileSize = math.MaxInt32

// FileInfo describes a file and is returned by Stat.
type FileInfo struct {
	Name    string    // Cleaned path of the file
	Size    int64     // Length in bytes
	ModTime time.Time // Last modification time
}

// SeekWhence constants for Seek operations.
const (
	SEEK_SET = io.SeekStart   // Relative to start of file.
	SEEK_CUR = io.SeekCurrent // Relative to current position.
	SEEK_END = io.SeekEnd     // Relative to end of file.
)
