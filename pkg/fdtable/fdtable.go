// Package fdtable implements the per-process file descriptor table.
//
// Descriptors 0 and 1 are reserved for console input and output and never
// hold a file. Files are installed at the lowest free descriptor starting
// at 2. The table exclusively owns every file it holds: a file leaves the
// table only by being closed.
package fdtable

import (
	"errors"
	"sync"

	"userprog/pkg/vfs"
)

// Reserved descriptors.
const (
	// Stdin is the console input descriptor.
	Stdin = 0
	// Stdout is the console output descriptor.
	Stdout = 1
	// FirstFile is the lowest descriptor that can hold a file.
	FirstFile = 2
	// DefaultCapacity is the number of slots in a table, reserved ones included.
	DefaultCapacity = 128
)

// Table errors.
var (
	ErrTableFull     = errors.New("fdtable: descriptor table full")
	ErrBadDescriptor = errors.New("fdtable: bad file descriptor")
)

// Table maps descriptors to open files. Mutation is serialized so that a
// process with several execution contexts cannot corrupt its table.
type Table struct {
	mu    sync.Mutex
	slots []vfs.File
	// high is one past the highest slot ever filled.
	high int
	open int
}

// New creates a table with capacity slots. Capacities too small to hold a
// single file fall back to DefaultCapacity.
func New(capacity int) *Table {
	if capacity <= FirstFile {
		capacity = DefaultCapacity
	}
	return &Table{
		slots: make([]vfs.File, capacity),
		high:  FirstFile,
	}
}

// Capacity returns the number of slots, reserved ones included.
func (t *Table) Capacity() int {
	return len(t.slots)
}

// Valid reports whether fd is inside the table.
func (t *Table) Valid(fd int) bool {
	return fd >= 0 && fd < len(t.slots)
}

// Install stores f at the lowest free descriptor and returns it. The table
// takes ownership of f: if no slot is free, f is closed and ErrTableFull
// is returned.
func (t *Table) Install(f vfs.File) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for fd := FirstFile; fd < len(t.slots); fd++ {
		if t.slots[fd] == nil {
			t.slots[fd] = f
			t.open++
			if fd >= t.high {
				t.high = fd + 1
			}
			return fd, nil
		}
	}

	f.Close()
	return -1, ErrTableFull
}

// Get returns the file held at fd.
func (t *Table) Get(fd int) (vfs.File, error) {
	if fd < FirstFile || !t.Valid(fd) {
		return nil, ErrBadDescriptor
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	f := t.slots[fd]
	if f == nil {
		return nil, ErrBadDescriptor
	}
	return f, nil
}

// Close closes the file held at fd and frees the slot. Closing a reserved,
// out-of-range or empty descriptor returns ErrBadDescriptor and changes
// nothing.
func (t *Table) Close(fd int) error {
	if fd < FirstFile || !t.Valid(fd) {
		return ErrBadDescriptor
	}

	t.mu.Lock()
	f := t.slots[fd]
	if f == nil {
		t.mu.Unlock()
		return ErrBadDescriptor
	}
	t.slots[fd] = nil
	t.open--
	t.mu.Unlock()

	return f.Close()
}

// CloseAll closes every live descriptor in ascending order, stopping after
// the highest slot that was ever filled. It returns the number of files
// closed.
func (t *Table) CloseAll() int {
	t.mu.Lock()
	var files []vfs.File
	for fd := FirstFile; fd < t.high; fd++ {
		if f := t.slots[fd]; f != nil {
			files = append(files, f)
			t.slots[fd] = nil
		}
	}
	t.open = 0
	t.mu.Unlock()

	for _, f := range files {
		f.Close()
	}
	return len(files)
}

// Len returns the number of open files.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}
