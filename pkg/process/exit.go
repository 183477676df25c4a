package process

import (
	"errors"
	"sync"
	"sync/atomic"
)

// NoStatus is the exit-status table entry for a PID that has not exited.
const NoStatus = -5

// Handoff errors.
var (
	ErrAlreadyDelivered = errors.New("exit status already delivered")
	ErrAlreadyCollected = errors.New("exit status already collected")
)

// Handoff carries one exit status from a child to its parent. The child
// delivers once and stays blocked until the parent collects; a parent
// that will never collect releases the child instead.
type Handoff struct {
	status    chan int
	ack       chan struct{}
	delivered atomic.Bool
	collected atomic.Bool
	release   sync.Once
}

// NewHandoff creates an empty handoff.
func NewHandoff() *Handoff {
	return &Handoff{
		status: make(chan int, 1),
		ack:    make(chan struct{}),
	}
}

// Deliver hands status to the parent and blocks until it has been
// collected or the handoff has been released.
func (h *Handoff) Deliver(status int) error {
	if !h.delivered.CompareAndSwap(false, true) {
		return ErrAlreadyDelivered
	}
	h.status <- status
	<-h.ack
	return nil
}

// Collect blocks until the status has been delivered, takes it, and lets
// the child proceed.
func (h *Handoff) Collect() (int, error) {
	if !h.collected.CompareAndSwap(false, true) {
		return -1, ErrAlreadyCollected
	}
	status := <-h.status
	h.Release()
	return status, nil
}

// Release lets a delivering child proceed without a collector. It is
// idempotent.
func (h *Handoff) Release() {
	h.release.Do(func() { close(h.ack) })
}

// ExitTable records the last exit status of every PID. An entry is written
// at most once per PID lifetime and cleared when the PID is reallocated.
type ExitTable struct {
	mu     sync.Mutex
	status map[int]int
}

// NewExitTable creates an empty exit-status table.
func NewExitTable() *ExitTable {
	return &ExitTable{
		status: make(map[int]int),
	}
}

// Record stores status for pid. It returns false, leaving the entry
// unchanged, if a status was already recorded.
func (t *ExitTable) Record(pid, status int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.status[pid]; ok && s != NoStatus {
		return false
	}
	t.status[pid] = status
	return true
}

// Lookup returns the recorded status for pid, or NoStatus.
func (t *ExitTable) Lookup(pid int) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.status[pid]
	if !ok {
		return NoStatus
	}
	return s
}

// Reset clears the entry for a PID that is being reallocated.
func (t *ExitTable) Reset(pid int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status[pid] = NoStatus
}
