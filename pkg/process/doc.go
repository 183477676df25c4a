/*
Package process manages user processes for the system-call layer: the
process table, the exit-status table, and the handshakes that connect a
parent to the children it executes.

Every process runs on its own goroutine. The package provides:

  - Process records with an address space, a descriptor table and the
    executable they were loaded from
  - A process table that hands out identifiers and reuses them only after
    a process has been fully torn down
  - A load signal, so that exec never returns the identifier of a child
    that failed to load
  - An exit handoff, so that a parent collects the exact exit status
    before the child's resources are released

# Process States

	spawning -> loaded -> running -> exiting -> reaped
	spawning -> load-failed -> reaped

# Usage

	loader := process.NewImageLoader(fs)
	loader.Register("echo", echoMain)

	m := process.NewManager(process.DefaultConfig(), loader, cons)
	p, err := m.Start("echo hello")
	if err != nil {
		// Handle error
	}
	<-p.Done()

A parent running on a process goroutine executes and reaps a child with
Spawn, WaitLoaded and Wait; a process ends with Exit.
*/
package process
