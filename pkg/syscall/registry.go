package syscall

import (
	"errors"
	"fmt"

	"userprog/pkg/mem"
	"userprog/pkg/process"
)

// System call numbers.
const (
	SysHalt = iota
	SysExit
	SysExec
	SysWait
	SysCreate
	SysRemove
	SysOpen
	SysFilesize
	SysRead
	SysWrite
	SysSeek
	SysTell
	SysClose

	// NumSyscalls is one past the highest system call number.
	NumSyscalls
)

// MaxArgs is the largest argument count of any system call.
const MaxArgs = 3

// Call is the context a handler runs in.
type Call struct {
	// Proc is the trapping process.
	Proc *process.Process
	// Frame is the trapping process's saved registers.
	Frame *process.Frame
	// Desc describes the call being made.
	Desc Descriptor
}

// Handler is the body of a system call. It is either a ValueHandler or a
// VoidHandler.
type Handler interface {
	handler()
}

// ValueHandler is a call whose result is placed in the caller's EAX.
type ValueHandler func(c *Call, a *Args) (int32, error)

// VoidHandler is a call that leaves EAX untouched.
type VoidHandler func(c *Call, a *Args) error

func (ValueHandler) handler() {}
func (VoidHandler) handler()  {}

// Descriptor describes one system call.
type Descriptor struct {
	Number  uint32
	Name    string
	Argc    int
	Handler Handler
}

// Returns reports whether the call writes a result to EAX.
func (d Descriptor) Returns() bool {
	_, ok := d.Handler.(ValueHandler)
	return ok
}

// validHandler reports whether h is one of the two handler shapes and
// not a nil function.
func validHandler(h Handler) bool {
	switch h := h.(type) {
	case ValueHandler:
		return h != nil
	case VoidHandler:
		return h != nil
	default:
		return false
	}
}

// Registry errors.
var (
	ErrDuplicateSyscall = errors.New("duplicate system call number")
	ErrSparseRegistry   = errors.New("system call numbers are not dense")
	ErrBadArgc          = errors.New("argument count out of range")
	ErrNoHandler        = errors.New("system call has no handler")
)

// Registry is the table of system calls indexed by number. It cannot be
// modified once built.
type Registry struct {
	table []Descriptor
}

// NewRegistry builds a registry from descs. The numbers must be exactly
// 0..len(descs)-1, each appearing once.
func NewRegistry(descs ...Descriptor) (*Registry, error) {
	table := make([]Descriptor, len(descs))
	seen := make([]bool, len(descs))
	for _, d := range descs {
		if int(d.Number) >= len(descs) {
			return nil, fmt.Errorf("%s (%d): %w", d.Name, d.Number, ErrSparseRegistry)
		}
		if seen[d.Number] {
			return nil, fmt.Errorf("%s (%d): %w", d.Name, d.Number, ErrDuplicateSyscall)
		}
		if d.Argc < 0 || d.Argc > MaxArgs {
			return nil, fmt.Errorf("%s: %d: %w", d.Name, d.Argc, ErrBadArgc)
		}
		if !validHandler(d.Handler) {
			return nil, fmt.Errorf("%s: %w", d.Name, ErrNoHandler)
		}
		seen[d.Number] = true
		table[d.Number] = d
	}
	return &Registry{table: table}, nil
}

// Lookup returns the descriptor for num.
func (r *Registry) Lookup(num uint32) (Descriptor, bool) {
	if num >= uint32(len(r.table)) {
		return Descriptor{}, false
	}
	return r.table[num], true
}

// Len returns the number of registered calls.
func (r *Registry) Len() int {
	return len(r.table)
}

// Args is a cursor over the validated argument slots of one call. Reading
// past the descriptor's argument count panics.
type Args struct {
	slots []uint32
	next  int
}

// NewArgs returns a cursor over slots.
func NewArgs(slots ...uint32) *Args {
	return &Args{slots: slots}
}

// Len returns the number of slots.
func (a *Args) Len() int {
	return len(a.slots)
}

func (a *Args) word() uint32 {
	if a.next >= len(a.slots) {
		panic(fmt.Sprintf("syscall: argument %d read, only %d passed", a.next, len(a.slots)))
	}
	w := a.slots[a.next]
	a.next++
	return w
}

// Int consumes the next slot as a signed integer.
func (a *Args) Int() int32 {
	return int32(a.word())
}

// Uint consumes the next slot as an unsigned integer.
func (a *Args) Uint() uint32 {
	return a.word()
}

// Ptr consumes the next slot as a user address.
func (a *Args) Ptr() mem.Addr {
	return mem.Addr(a.word())
}
