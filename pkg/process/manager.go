package process

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"

	"userprog/pkg/console"
	"userprog/pkg/fdtable"
)

// Manager errors.
var (
	ErrInvalidCommand = errors.New("invalid command")
	ErrLoadFailed     = errors.New("load failed")
	ErrNotChild       = errors.New("not a waitable child")
	ErrNoTrapHandler  = errors.New("no trap handler installed")
	ErrHalted         = errors.New("system halted")
)

// Config contains configuration for a Manager.
type Config struct {
	// MaxProcesses is the number of PID slots.
	MaxProcesses int
	// FileCapacity is the descriptor table size of every process.
	FileCapacity int
	// Logger receives lifecycle messages. Nil discards them.
	Logger *log.Logger
}

// DefaultConfig returns the default manager configuration.
func DefaultConfig() Config {
	return Config{
		MaxProcesses: DefaultMaxProcesses,
		FileCapacity: fdtable.DefaultCapacity,
	}
}

// Manager creates, runs and reaps processes.
type Manager struct {
	cfg     Config
	loader  Loader
	console console.Device
	table   *Table
	exits   *ExitTable
	logger  *log.Logger
	halted  atomic.Bool

	// mu protects trap.
	mu   sync.RWMutex
	trap TrapHandler
}

// NewManager creates a process manager. Exit messages are written to cons.
func NewManager(cfg Config, loader Loader, cons console.Device) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if cons == nil {
		cons = console.New(nil, nil)
	}
	return &Manager{
		cfg:     cfg,
		loader:  loader,
		console: cons,
		table:   NewTable(cfg.MaxProcesses),
		exits:   NewExitTable(),
		logger:  logger,
	}
}

// SetTrapHandler installs the handler that services traps from every
// process spawned afterwards.
func (m *Manager) SetTrapHandler(h TrapHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trap = h
}

// Start spawns a process with no parent and waits for it to load.
func (m *Manager) Start(cmdline string) (*Process, error) {
	p, err := m.Spawn(nil, cmdline)
	if err != nil {
		return nil, err
	}
	if !p.WaitLoaded() {
		return nil, fmt.Errorf("start %q: %w", cmdline, ErrLoadFailed)
	}
	return p, nil
}

// Spawn creates a process for cmdline and starts loading it on a new
// goroutine. It returns as soon as the record exists; callers learn the
// outcome of the load from WaitLoaded.
func (m *Manager) Spawn(parent *Process, cmdline string) (*Process, error) {
	parentPID := 0
	if parent != nil {
		parentPID = parent.PID
	}

	if m.halted.Load() {
		return nil, ErrHalted
	}

	p := NewProcess(parentPID, cmdline, m.cfg.FileCapacity)
	if p.Name == "" {
		return nil, ErrInvalidCommand
	}

	m.mu.RLock()
	p.trap = m.trap
	m.mu.RUnlock()

	pid, err := m.table.Allocate(p)
	if err != nil {
		return nil, err
	}
	m.exits.Reset(pid)

	go m.run(p, parent)
	return p, nil
}

// run loads p and executes its program.
func (m *Manager) run(p *Process, parent *Process) {
	prog, err := m.loader.Load(p)
	if err != nil {
		m.logger.Printf("pid %d: %v", p.PID, err)
		p.TransitionTo(StateLoadFailed)
		m.exits.Record(p.PID, -1)
		p.signalLoaded(false)
		m.reap(p)
		return
	}

	p.TransitionTo(StateLoaded)
	if parent == nil || !parent.adopt(p) {
		p.handoff.Release()
	}
	p.signalLoaded(true)
	p.TransitionTo(StateRunning)

	defer func() {
		if r := recover(); r != nil {
			m.logger.Printf("pid %d: %s: killed: %v", p.PID, p.Name, r)
		}
		if p.State() == StateRunning && !m.halted.Load() {
			m.Exit(p, -1)
		}
	}()
	prog(p)
}

// Exit terminates p with status: the status is recorded, every open file
// and the executable are closed, still-running children are orphaned, and
// the status is handed to the parent. Exit returns once the parent has
// collected the status (or can no longer do so) and p has been reaped.
func (m *Manager) Exit(p *Process, status int) error {
	if err := p.TransitionTo(StateExiting); err != nil {
		return err
	}

	m.exits.Record(p.PID, status)
	p.Files.CloseAll()
	p.releaseExecutable()

	console.Printf(m.console, "%s: exit(%d)\n", p.Name, status)
	m.logger.Printf("pid %d: %s: exit(%d)", p.PID, p.Name, status)

	p.orphanChildren()
	p.handoff.Deliver(status)
	m.reap(p)
	return nil
}

// reap tears down p and makes its PID reusable.
func (m *Manager) reap(p *Process) {
	if err := p.TransitionTo(StateReaped); err != nil {
		m.logger.Printf("pid %d: reap from %s: %v", p.PID, p.State(), err)
	}
	if err := m.table.Release(p); err != nil {
		m.logger.Printf("pid %d: release: %v", p.PID, err)
	}
	close(p.done)
}

// Halt stops the manager. No process can be spawned afterwards, and a
// program that stops running after the halt is left as it is instead of
// being exited.
func (m *Manager) Halt() {
	if m.halted.CompareAndSwap(false, true) {
		m.logger.Printf("halted with %d live processes", m.table.Len())
	}
}

// Halted reports whether Halt has been called.
func (m *Manager) Halted() bool {
	return m.halted.Load()
}

// Wait waits for the child of parent with the given PID to exit and
// returns its exit status. Each child can be waited for once; waiting for
// anything else fails with ErrNotChild.
func (m *Manager) Wait(parent *Process, pid int) (int, error) {
	child := parent.takeChild(pid)
	if child == nil {
		return -1, ErrNotChild
	}
	return child.handoff.Collect()
}

// Lookup returns the live process with the given PID, or nil.
func (m *Manager) Lookup(pid int) *Process {
	return m.table.Lookup(pid)
}

// ExitStatus returns the last recorded exit status of pid, or NoStatus.
func (m *Manager) ExitStatus(pid int) int {
	return m.exits.Lookup(pid)
}

// Count returns the number of processes that have not been reaped.
func (m *Manager) Count() int {
	return m.table.Len()
}
