package process

import (
	"strings"
	"sync"
	"time"

	"userprog/pkg/fdtable"
	"userprog/pkg/mem"
	"userprog/pkg/vfs"
)

// Program is the body of a user process. It runs on the process's own
// goroutine and talks to the kernel only through traps.
type Program func(p *Process)

// Process represents a user process in the system.
type Process struct {
	// PID is the unique process identifier, assigned by the process table.
	PID int
	// ParentPID is the PID of the parent process, or 0 for none.
	ParentPID int
	// Name is the first word of the command line.
	Name string
	// CommandLine is the full command line the process was started with.
	CommandLine string
	// Args is the command line split into words.
	Args []string
	// Memory is the address space, installed by the loader.
	Memory *mem.PageTable
	// Files is the descriptor table.
	Files *fdtable.Table
	// CreatedAt is when the process was created.
	CreatedAt time.Time
	// StartedAt is when the program was entered.
	StartedAt time.Time
	// FinishedAt is when the process was reaped.
	FinishedAt time.Time

	// mu protects the fields below.
	mu         sync.Mutex
	state      ProcessState
	executable vfs.File
	children   map[int]*Process
	orphaned   bool
	trap       TrapHandler

	loaded  chan struct{}
	loadOK  bool
	handoff *Handoff
	done    chan struct{}
}

// NewProcess creates a process record for cmdline. The PID is assigned
// when the record is placed in a Table.
func NewProcess(parentPID int, cmdline string, fileCapacity int) *Process {
	args := strings.Fields(cmdline)
	name := ""
	if len(args) > 0 {
		name = args[0]
	}
	return &Process{
		ParentPID:   parentPID,
		Name:        name,
		CommandLine: cmdline,
		Args:        args,
		Files:       fdtable.New(fileCapacity),
		CreatedAt:   time.Now(),
		state:       StateSpawning,
		children:    make(map[int]*Process),
		loaded:      make(chan struct{}),
		handoff:     NewHandoff(),
		done:        make(chan struct{}),
	}
}

// SetExecutable records the file the process image was loaded from. Writes
// to it stay denied until the process exits.
func (p *Process) SetExecutable(f vfs.File) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.executable = f
}

// releaseExecutable closes the executable, if any, re-allowing writes.
func (p *Process) releaseExecutable() {
	p.mu.Lock()
	f := p.executable
	p.executable = nil
	p.mu.Unlock()

	if f != nil {
		f.Close()
	}
}

// WaitLoaded blocks until the loader has finished with the process and
// reports whether the load succeeded.
func (p *Process) WaitLoaded() bool {
	<-p.loaded
	return p.loadOK
}

// signalLoaded publishes the load result. It is called exactly once.
func (p *Process) signalLoaded(ok bool) {
	p.loadOK = ok
	close(p.loaded)
}

// Done returns a channel that is closed once the process has been reaped.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// adopt registers child as waitable. It returns false once p has started
// exiting and can no longer wait.
func (p *Process) adopt(child *Process) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.orphaned {
		return false
	}
	p.children[child.PID] = child
	return true
}

// takeChild removes and returns the waitable child with the given PID.
// A child can be taken at most once.
func (p *Process) takeChild(pid int) *Process {
	p.mu.Lock()
	defer p.mu.Unlock()

	child, ok := p.children[pid]
	if !ok {
		return nil
	}
	delete(p.children, pid)
	return child
}

// orphanChildren releases every child that was never waited for, so that
// none of them blocks at exit.
func (p *Process) orphanChildren() {
	p.mu.Lock()
	children := p.children
	p.children = make(map[int]*Process)
	p.orphaned = true
	p.mu.Unlock()

	for _, child := range children {
		child.handoff.Release()
	}
}

// Children returns the PIDs of children that can still be waited for.
func (p *Process) Children() []int {
	p.mu.Lock()
	defer p.mu.Unlock()

	pids := make([]int, 0, len(p.children))
	for pid := range p.children {
		pids = append(pids, pid)
	}
	return pids
}

// TrapHandler services a trap raised by a process.
type TrapHandler interface {
	HandleTrap(p *Process, f *Frame) error
}

// Frame is the register state saved when a process traps into the kernel.
type Frame struct {
	// ESP is the user stack pointer at the time of the trap.
	ESP mem.Addr
	// EAX receives the result of value-returning calls.
	EAX uint32
}

// Trap raises a system call from the process's own goroutine. The
// returned error is non-nil when the process no longer exists or the
// machine halted; the caller must not continue running user code then.
func (p *Process) Trap(f *Frame) error {
	p.mu.Lock()
	h := p.trap
	p.mu.Unlock()

	if h == nil {
		return ErrNoTrapHandler
	}
	return h.HandleTrap(p, f)
}
