// userprog boots a small simulated machine: an in-memory filesystem, a
// console on stdin/stdout, and a kernel servicing system calls from user
// programs that run as goroutines. It runs an init program and powers off
// when init halts the machine or exits.
package main

import (
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"userprog/pkg/console"
	"userprog/pkg/process"
	"userprog/pkg/syscall"
	"userprog/pkg/vfs/memfs"
)

// machine is a booted system.
type machine struct {
	fs       *memfs.FS
	procs    *process.Manager
	power    syscall.Machine
	poweroff chan struct{}
}

// boot installs the demo programs and brings up the kernel.
func boot(cfg syscall.Config, in io.Reader, out io.Writer) (*machine, error) {
	m := &machine{
		fs:       memfs.New(),
		poweroff: make(chan struct{}),
	}

	// Install the executables
	loader := process.NewImageLoader(m.fs)
	for name, prog := range programs() {
		if err := m.fs.WriteFile(name, []byte("#!"+name+"\n")); err != nil {
			return nil, err
		}
		loader.Register(name, prog)
	}

	cons := console.New(in, out)

	pcfg := process.DefaultConfig()
	pcfg.Logger = cfg.Logger
	m.procs = process.NewManager(pcfg, loader, cons)

	var once sync.Once
	m.power = syscall.MachineFunc(func() {
		once.Do(func() { close(m.poweroff) })
	})
	syscall.New(cfg, m.procs, m.fs, cons, m.power)
	return m, nil
}

func main() {
	initCmd := "init"
	trace := false

	if envInit := os.Getenv("USERPROG_INIT"); envInit != "" {
		initCmd = envInit
	}
	if os.Getenv("USERPROG_TRACE") == "true" {
		trace = true
	}
	policy, err := syscall.ParsePolicy(os.Getenv("USERPROG_UNKNOWN_SYSCALL"))
	if err != nil {
		log.Fatalf("Invalid USERPROG_UNKNOWN_SYSCALL: %v", err)
	}

	m, err := boot(syscall.Config{
		UnknownSyscall: policy,
		Trace:          trace,
		Logger:         log.New(os.Stderr, "kernel: ", log.LstdFlags),
	}, os.Stdin, os.Stdout)
	if err != nil {
		log.Fatalf("Failed to boot: %v", err)
	}

	log.Printf("Booting %q", initCmd)
	p, err := m.procs.Start(initCmd)
	if err != nil {
		log.Fatalf("Failed to start init: %v", err)
	}

	select {
	case <-m.poweroff:
		log.Println("Powering off...")
	case <-p.Done():
		log.Printf("init exited with status %d", m.procs.ExitStatus(p.PID))
	}

	log.Printf("Files: %s", strings.Join(m.fs.Names(), " "))
}
