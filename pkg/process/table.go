package process

import (
	"errors"
	"sync"
)

// Table errors.
var (
	ErrTooManyProcesses = errors.New("process table full")
	ErrInvalidPID       = errors.New("invalid PID")
	ErrStaleRelease     = errors.New("PID slot holds a different process")
)

// DefaultMaxProcesses is the default number of PID slots.
const DefaultMaxProcesses = 2040

// Table is an arena of process records indexed by PID. PID 0 is never
// allocated. A slot becomes reusable only through Release.
type Table struct {
	mu    sync.Mutex
	slots []*Process
	next  int
	live  int
}

// NewTable creates a table with room for capacity processes.
func NewTable(capacity int) *Table {
	if capacity <= 0 {
		capacity = DefaultMaxProcesses
	}
	return &Table{
		slots: make([]*Process, capacity+1),
		next:  1,
	}
}

// Allocate assigns the next free PID to p and stores it. PIDs are handed
// out round-robin so that a just-released PID is not immediately reused.
func (t *Table) Allocate(p *Process) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.slots) - 1
	for i := 0; i < n; i++ {
		pid := (t.next-1+i)%n + 1
		if t.slots[pid] == nil {
			t.slots[pid] = p
			t.next = pid%n + 1
			t.live++
			p.PID = pid
			return pid, nil
		}
	}
	return 0, ErrTooManyProcesses
}

// Lookup returns the process holding pid, or nil.
func (t *Table) Lookup(pid int) *Process {
	t.mu.Lock()
	defer t.mu.Unlock()

	if pid <= 0 || pid >= len(t.slots) {
		return nil
	}
	return t.slots[pid]
}

// Release frees the slot of p. It fails if the slot does not hold p.
func (t *Table) Release(p *Process) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if p.PID <= 0 || p.PID >= len(t.slots) {
		return ErrInvalidPID
	}
	if t.slots[p.PID] != p {
		return ErrStaleRelease
	}
	t.slots[p.PID] = nil
	t.live--
	return nil
}

// Len returns the number of allocated PIDs.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}
