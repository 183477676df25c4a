package process

import (
	"errors"
	"time"
)

// State transition errors.
var (
	ErrInvalidTransition = errors.New("invalid state transition")
)

// ProcessState represents the lifecycle state of a process.
type ProcessState string

const (
	// StateSpawning indicates the process record exists and its image is loading.
	StateSpawning ProcessState = "spawning"
	// StateLoaded indicates the image loaded and the parent is being told.
	StateLoaded ProcessState = "loaded"
	// StateLoadFailed indicates the image could not be loaded.
	StateLoadFailed ProcessState = "load-failed"
	// StateRunning indicates the process is executing its program.
	StateRunning ProcessState = "running"
	// StateExiting indicates the process is releasing resources and
	// handing its status to the parent.
	StateExiting ProcessState = "exiting"
	// StateReaped indicates the process is gone and its PID may be reused.
	StateReaped ProcessState = "reaped"
)

// StateTransition represents a valid state transition.
type StateTransition struct {
	From ProcessState
	To   ProcessState
}

// ValidTransitions defines all valid state transitions.
var ValidTransitions = []StateTransition{
	// Image loaded
	{From: StateSpawning, To: StateLoaded},
	// Image missing or unreadable
	{From: StateSpawning, To: StateLoadFailed},
	// Program entered
	{From: StateLoaded, To: StateRunning},
	// exit, or killed after a fault
	{From: StateRunning, To: StateExiting},
	// Status collected or orphaned
	{From: StateExiting, To: StateReaped},
	// Failed loads are torn down without a handoff
	{From: StateLoadFailed, To: StateReaped},
}

// IsValidTransition checks if a state transition is valid.
func IsValidTransition(from, to ProcessState) bool {
	for _, t := range ValidTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

// TransitionTo attempts to transition the process to a new state.
func (p *Process) TransitionTo(to ProcessState) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !IsValidTransition(p.state, to) {
		return ErrInvalidTransition
	}

	p.state = to

	switch to {
	case StateRunning:
		p.StartedAt = time.Now()
	case StateReaped:
		p.FinishedAt = time.Now()
	}

	return nil
}

// State returns the current state.
func (p *Process) State() ProcessState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// IsAlive returns true if the process has not been reaped.
func (p *Process) IsAlive() bool {
	return p.State() != StateReaped
}
