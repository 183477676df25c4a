package process

import (
	"errors"
	"fmt"
	"sync"

	"userprog/pkg/mem"
	"userprog/pkg/vfs"
)

// Loader errors.
var (
	ErrNoSuchProgram = errors.New("no program registered for executable")
)

// Loader builds the image of a newly spawned process.
type Loader interface {
	// Load installs the address space and executable of p and returns the
	// program to run. A load error leaves p without an executable.
	Load(p *Process) (Program, error)
}

// StackPages is the number of stack pages mapped below mem.PhysBase.
const StackPages = 1

// ImageLoader loads programs registered by name. A program can only be
// loaded while an executable file of the same name exists in the
// filesystem; that file stays open, with writes denied, for the life of
// the process.
type ImageLoader struct {
	fs       vfs.FileSystem
	mu       sync.RWMutex
	programs map[string]Program
}

// NewImageLoader creates a loader that resolves executables in fs.
func NewImageLoader(fs vfs.FileSystem) *ImageLoader {
	return &ImageLoader{
		fs:       fs,
		programs: make(map[string]Program),
	}
}

// Register associates a program with an executable name.
func (l *ImageLoader) Register(name string, prog Program) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.programs[name] = prog
}

// Load implements Loader.
func (l *ImageLoader) Load(p *Process) (Program, error) {
	l.mu.RLock()
	prog, ok := l.programs[p.Name]
	l.mu.RUnlock()

	f, err := l.fs.Open(p.Name)
	if err != nil {
		return nil, fmt.Errorf("load %s: open failed: %w", p.Name, err)
	}
	if !ok {
		f.Close()
		return nil, fmt.Errorf("load %s: %w", p.Name, ErrNoSuchProgram)
	}

	pt := mem.NewPageTable()
	if err := pt.MapRange(mem.PhysBase-StackPages*mem.PageSize, StackPages*mem.PageSize, true); err != nil {
		f.Close()
		return nil, fmt.Errorf("load %s: stack: %w", p.Name, err)
	}

	f.DenyWrite()
	p.Memory = pt
	p.SetExecutable(f)
	return prog, nil
}
