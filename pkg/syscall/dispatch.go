package syscall

import (
	"encoding/binary"
	"errors"
	"fmt"

	"userprog/pkg/mem"
	"userprog/pkg/process"
)

// HandleTrap implements process.TrapHandler.
func (k *Kernel) HandleTrap(p *process.Process, f *process.Frame) error {
	return k.Dispatch(p, f)
}

// Dispatch services one trap from p. The word at f.ESP is the call number
// and the arguments follow it, one word each. Every slot the call uses is
// validated before any of them is read. A bad pointer anywhere kills p
// with status -1.
func (k *Kernel) Dispatch(p *process.Process, f *process.Frame) error {
	as := p.Memory
	if as == nil {
		return k.kill(p, &mem.FaultError{Addr: f.ESP, Err: mem.ErrUnmapped})
	}

	if err := validateWords(as, f.ESP, 1); err != nil {
		return k.kill(p, err)
	}
	num, err := mem.ReadWord(as, f.ESP)
	if err != nil {
		return k.kill(p, err)
	}

	d, ok := k.registry.Lookup(num)
	if !ok {
		return k.unknown(p, num)
	}

	argv := f.ESP + mem.WordSize
	if err := validateWords(as, argv, d.Argc); err != nil {
		return k.kill(p, err)
	}
	buf := make([]byte, d.Argc*mem.WordSize)
	if err := as.ReadAt(buf, argv); err != nil {
		return k.kill(p, err)
	}
	slots := make([]uint32, d.Argc)
	for i := range slots {
		slots[i] = binary.LittleEndian.Uint32(buf[i*mem.WordSize:])
	}

	c := &Call{Proc: p, Frame: f, Desc: d}
	args := NewArgs(slots...)

	switch h := d.Handler.(type) {
	case ValueHandler:
		ret, err := h(c, args)
		if err != nil {
			return k.finish(p, d, slots, err)
		}
		f.EAX = uint32(ret)
		if k.cfg.Trace {
			k.logger.Printf("pid %d: %s(%v) = %d", p.PID, d.Name, slots, ret)
		}
	case VoidHandler:
		if err := h(c, args); err != nil {
			return k.finish(p, d, slots, err)
		}
		if k.cfg.Trace {
			k.logger.Printf("pid %d: %s(%v)", p.PID, d.Name, slots)
		}
	}
	return nil
}

// validateWords checks n consecutive stack slots starting at addr.
func validateWords(as mem.Translator, addr mem.Addr, n int) error {
	if n == 0 {
		return nil
	}
	if err := mem.Validate(as, addr); err != nil {
		return err
	}
	return mem.ValidateRange(as, addr, uint32(n*mem.WordSize))
}

// finish turns a handler error into the dispatch result.
func (k *Kernel) finish(p *process.Process, d Descriptor, slots []uint32, err error) error {
	if mem.IsFault(err) {
		return k.kill(p, fmt.Errorf("%s(%v): %w", d.Name, slots, err))
	}
	if k.cfg.Trace {
		k.logger.Printf("pid %d: %s(%v): %v", p.PID, d.Name, slots, err)
	}
	return err
}

// unknown applies the unknown-call policy.
func (k *Kernel) unknown(p *process.Process, num uint32) error {
	k.logger.Printf("pid %d: unknown system call %d (%s)", p.PID, num, k.cfg.UnknownSyscall)
	if k.cfg.UnknownSyscall == TerminateUnknown {
		return k.terminate(p)
	}
	return nil
}

// kill terminates p after a bad pointer.
func (k *Kernel) kill(p *process.Process, err error) error {
	k.logger.Printf("pid %d: %s: killed: %v", p.PID, p.Name, err)
	return k.terminate(p)
}

func (k *Kernel) terminate(p *process.Process) error {
	if err := k.procs.Exit(p, -1); err != nil && !errors.Is(err, process.ErrInvalidTransition) {
		return err
	}
	return ErrExited
}
