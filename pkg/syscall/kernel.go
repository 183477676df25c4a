// Package syscall implements the kernel side of the system call boundary:
// the call table, the trap dispatcher that validates and decodes the
// caller's stack, and the calls themselves.
package syscall

import (
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"userprog/pkg/console"
	"userprog/pkg/process"
	"userprog/pkg/vfs"
)

// Dispatch results. A nil result means the process continues.
var (
	// ErrExited is returned once the trapping process no longer exists,
	// either because it called exit or because it was killed.
	ErrExited = errors.New("process exited")
	// ErrHalted is returned after the machine has been powered off.
	ErrHalted = process.ErrHalted
)

// Policy selects what happens on an unknown system call number.
type Policy int

const (
	// IgnoreUnknown returns to the caller without doing anything.
	IgnoreUnknown Policy = iota
	// TerminateUnknown kills the caller with status -1.
	TerminateUnknown
)

func (p Policy) String() string {
	switch p {
	case IgnoreUnknown:
		return "ignore"
	case TerminateUnknown:
		return "terminate"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy parses "ignore" or "terminate".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ignore":
		return IgnoreUnknown, nil
	case "terminate":
		return TerminateUnknown, nil
	default:
		return IgnoreUnknown, fmt.Errorf("unknown syscall policy %q", s)
	}
}

// Config contains configuration for a Kernel.
type Config struct {
	// UnknownSyscall decides the fate of callers using an unknown number.
	UnknownSyscall Policy
	// Trace logs every dispatched call.
	Trace bool
	// Logger receives faults, unknown calls and traces. Nil discards them.
	Logger *log.Logger
}

// DefaultConfig returns the default kernel configuration.
func DefaultConfig() Config {
	return Config{
		UnknownSyscall: IgnoreUnknown,
	}
}

// Machine is the power control of the simulated machine.
type Machine interface {
	PowerOff()
}

// MachineFunc adapts a function to Machine.
type MachineFunc func()

// PowerOff implements Machine.
func (f MachineFunc) PowerOff() { f() }

// Kernel services traps for every process of a process.Manager.
type Kernel struct {
	cfg      Config
	logger   *log.Logger
	procs    *process.Manager
	fs       vfs.FileSystem
	console  console.Device
	machine  Machine
	registry *Registry

	// fsLock serializes file reads and writes across all processes.
	fsLock sync.Mutex
}

// New creates a kernel and installs it as the trap handler of procs.
func New(cfg Config, procs *process.Manager, fs vfs.FileSystem, cons console.Device, machine Machine) *Kernel {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if machine == nil {
		machine = MachineFunc(func() {})
	}

	k := &Kernel{
		cfg:     cfg,
		logger:  logger,
		procs:   procs,
		fs:      fs,
		console: cons,
		machine: machine,
	}

	reg, err := NewRegistry(k.descriptors()...)
	if err != nil {
		panic(err)
	}
	k.registry = reg

	procs.SetTrapHandler(k)
	return k
}

// Registry returns the kernel's call table.
func (k *Kernel) Registry() *Registry {
	return k.registry
}

func (k *Kernel) descriptors() []Descriptor {
	return []Descriptor{
		{Number: SysHalt, Name: "halt", Argc: 0, Handler: VoidHandler(k.sysHalt)},
		{Number: SysExit, Name: "exit", Argc: 1, Handler: VoidHandler(k.sysExit)},
		{Number: SysExec, Name: "exec", Argc: 1, Handler: ValueHandler(k.sysExec)},
		{Number: SysWait, Name: "wait", Argc: 1, Handler: ValueHandler(k.sysWait)},
		{Number: SysCreate, Name: "create", Argc: 2, Handler: ValueHandler(k.sysCreate)},
		{Number: SysRemove, Name: "remove", Argc: 1, Handler: ValueHandler(k.sysRemove)},
		{Number: SysOpen, Name: "open", Argc: 1, Handler: ValueHandler(k.sysOpen)},
		{Number: SysFilesize, Name: "filesize", Argc: 1, Handler: ValueHandler(k.sysFilesize)},
		{Number: SysRead, Name: "read", Argc: 3, Handler: ValueHandler(k.sysRead)},
		{Number: SysWrite, Name: "write", Argc: 3, Handler: ValueHandler(k.sysWrite)},
		{Number: SysSeek, Name: "seek", Argc: 2, Handler: VoidHandler(k.sysSeek)},
		{Number: SysTell, Name: "tell", Argc: 1, Handler: ValueHandler(k.sysTell)},
		{Number: SysClose, Name: "close", Argc: 1, Handler: VoidHandler(k.sysClose)},
	}
}
