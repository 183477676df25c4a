package syscall

import (
	"userprog/pkg/mem"
)

// sysHalt powers the machine off. The caller never resumes.
func (k *Kernel) sysHalt(c *Call, a *Args) error {
	k.logger.Printf("pid %d: %s: halt", c.Proc.PID, c.Proc.Name)
	k.procs.Halt()
	k.machine.PowerOff()
	return ErrHalted
}

// sysExit terminates the caller with the given status.
func (k *Kernel) sysExit(c *Call, a *Args) error {
	status := a.Int()
	if err := k.procs.Exit(c.Proc, int(status)); err != nil {
		return err
	}
	return ErrExited
}

// sysExec runs a command line in a new child process and returns its PID
// once the child has loaded, or -1 if it could not be created or loaded.
func (k *Kernel) sysExec(c *Call, a *Args) (int32, error) {
	cmdline, err := mem.ValidateString(c.Proc.Memory, a.Ptr())
	if err != nil {
		return 0, err
	}

	child, err := k.procs.Spawn(c.Proc, cmdline)
	if err != nil {
		k.logger.Printf("pid %d: exec %q: %v", c.Proc.PID, cmdline, err)
		return -1, nil
	}
	if !child.WaitLoaded() {
		return -1, nil
	}
	return int32(child.PID), nil
}

// sysWait returns the exit status of a child, or -1 if pid is not a child
// that can still be waited for.
func (k *Kernel) sysWait(c *Call, a *Args) (int32, error) {
	status, err := k.procs.Wait(c.Proc, int(a.Int()))
	if err != nil {
		return -1, nil
	}
	return int32(status), nil
}
