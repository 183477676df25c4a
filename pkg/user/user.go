// Package user is the user-mode half of the system call interface. A
// program built with Run gets a User that places arguments on the
// process's own stack, traps into the kernel and reads the result back,
// exactly as a compiled user program would.
package user

import (
	"runtime"

	"userprog/pkg/mem"
	"userprog/pkg/process"
	"userprog/pkg/syscall"
)

// HeapBase is where the first allocation is placed.
const HeapBase mem.Addr = 0x08048000

// frameSize is room for the call number and MaxArgs arguments.
const frameSize = (1 + syscall.MaxArgs) * mem.WordSize

// User is the view of the system a program has. It must only be used from
// the process's own goroutine.
type User struct {
	p     *process.Process
	frame process.Frame
	brk   mem.Addr
}

// New returns the user view of p.
func New(p *process.Process) *User {
	return &User{
		p:     p,
		frame: process.Frame{ESP: mem.PhysBase - frameSize},
		brk:   HeapBase,
	}
}

// Main is the entry point of a user program. Its result is the exit status.
type Main func(u *User) int

// Run adapts main to a process.Program. Returning from main exits with the
// returned status.
func Run(main Main) process.Program {
	return func(p *process.Process) {
		u := New(p)
		u.Exit(main(u))
	}
}

// Process returns the underlying process.
func (u *User) Process() *process.Process {
	return u.p
}

// Args returns the command line words, program name first.
func (u *User) Args() []string {
	return u.p.Args
}

// Syscall raises system call num with up to syscall.MaxArgs arguments and
// returns EAX afterwards. It does not return if the process was killed,
// exited or the machine halted.
func (u *User) Syscall(num uint32, args ...uint32) int32 {
	if len(args) > syscall.MaxArgs {
		panic("user: too many system call arguments")
	}
	words := append([]uint32{num}, args...)
	for i, w := range words {
		if err := mem.WriteWord(u.p.Memory, u.frame.ESP+mem.Addr(i*mem.WordSize), w); err != nil {
			panic(err)
		}
	}
	return u.trap()
}

// SyscallAt traps with the stack pointer set to esp, leaving memory as it
// is. The stack pointer is restored afterwards.
func (u *User) SyscallAt(esp mem.Addr) int32 {
	saved := u.frame.ESP
	u.frame.ESP = esp
	defer func() { u.frame.ESP = saved }()
	return u.trap()
}

func (u *User) trap() int32 {
	if err := u.p.Trap(&u.frame); err != nil {
		runtime.Goexit()
	}
	return int32(u.frame.EAX)
}

// Alloc maps n zeroed, writable bytes and returns their address.
func (u *User) Alloc(n uint32) mem.Addr {
	addr := u.brk
	if n == 0 {
		return addr
	}
	if err := u.p.Memory.MapRange(addr, n, true); err != nil {
		panic(err)
	}
	u.brk = mem.PageRound(addr+mem.Addr(n)-1) + mem.PageSize
	return addr
}

// Bytes copies b into freshly allocated memory.
func (u *User) Bytes(b []byte) mem.Addr {
	addr := u.Alloc(uint32(len(b)))
	u.Store(addr, b)
	return addr
}

// CString copies s and a terminating NUL into freshly allocated memory.
func (u *User) CString(s string) mem.Addr {
	return u.Bytes(append([]byte(s), 0))
}

// Load copies n bytes at addr out of the address space.
func (u *User) Load(addr mem.Addr, n uint32) []byte {
	b := make([]byte, n)
	if err := u.p.Memory.ReadAt(b, addr); err != nil {
		panic(err)
	}
	return b
}

// Store copies b into the address space at addr.
func (u *User) Store(addr mem.Addr, b []byte) {
	if err := u.p.Memory.WriteAt(b, addr); err != nil {
		panic(err)
	}
}
