package process

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"userprog/pkg/console"
	"userprog/pkg/vfs/memfs"
)

// TestProcessStateTransitions tests valid and invalid state transitions.
func TestProcessStateTransitions(t *testing.T) {
	p := NewProcess(0, "test arg1", 0)

	tests := []struct {
		name    string
		from    ProcessState
		to      ProcessState
		wantErr bool
	}{
		{"Spawning to Loaded", StateSpawning, StateLoaded, false},
		{"Spawning to LoadFailed", StateSpawning, StateLoadFailed, false},
		{"Loaded to Running", StateLoaded, StateRunning, false},
		{"Running to Exiting", StateRunning, StateExiting, false},
		{"Exiting to Reaped", StateExiting, StateReaped, false},
		{"LoadFailed to Reaped", StateLoadFailed, StateReaped, false},
		{"Spawning to Running", StateSpawning, StateRunning, true},
		{"LoadFailed to Running", StateLoadFailed, StateRunning, true},
		{"Running to Reaped", StateRunning, StateReaped, true},
		{"Reaped to Spawning", StateReaped, StateSpawning, true},
		{"Exiting to Exiting", StateExiting, StateExiting, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p.state = tt.from
			err := p.TransitionTo(tt.to)
			if (err != nil) != tt.wantErr {
				t.Errorf("TransitionTo() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewProcess(t *testing.T) {
	p := NewProcess(3, "  echo   a b ", 0)

	if p.Name != "echo" {
		t.Errorf("Name = %q, want %q", p.Name, "echo")
	}
	if len(p.Args) != 3 {
		t.Errorf("Args = %q, want 3 words", p.Args)
	}
	if p.ParentPID != 3 {
		t.Errorf("ParentPID = %d, want 3", p.ParentPID)
	}
	if p.State() != StateSpawning {
		t.Errorf("State() = %v, want %v", p.State(), StateSpawning)
	}
	if err := p.Trap(&Frame{}); !errors.Is(err, ErrNoTrapHandler) {
		t.Errorf("Trap() error = %v, want ErrNoTrapHandler", err)
	}
}

func TestTableAllocateRelease(t *testing.T) {
	tbl := NewTable(3)

	var procs []*Process
	for want := 1; want <= 3; want++ {
		p := NewProcess(0, "p", 0)
		pid, err := tbl.Allocate(p)
		if err != nil {
			t.Fatalf("Allocate() error = %v", err)
		}
		if pid != want || p.PID != want {
			t.Errorf("Allocate() = %d (PID %d), want %d", pid, p.PID, want)
		}
		procs = append(procs, p)
	}

	if _, err := tbl.Allocate(NewProcess(0, "q", 0)); !errors.Is(err, ErrTooManyProcesses) {
		t.Errorf("Allocate() on full table error = %v, want ErrTooManyProcesses", err)
	}

	stranger := NewProcess(0, "s", 0)
	stranger.PID = 2
	if err := tbl.Release(stranger); !errors.Is(err, ErrStaleRelease) {
		t.Errorf("Release() of stranger error = %v, want ErrStaleRelease", err)
	}

	if err := tbl.Release(procs[1]); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if tbl.Lookup(2) != nil {
		t.Error("Lookup(2) after Release is not nil")
	}
	if err := tbl.Release(procs[1]); !errors.Is(err, ErrStaleRelease) {
		t.Errorf("second Release() error = %v, want ErrStaleRelease", err)
	}

	p := NewProcess(0, "r", 0)
	if pid, _ := tbl.Allocate(p); pid != 2 {
		t.Errorf("Allocate() after Release = %d, want 2", pid)
	}
	if tbl.Len() != 3 {
		t.Errorf("Len() = %d, want 3", tbl.Len())
	}
}

func TestExitTable(t *testing.T) {
	et := NewExitTable()

	if got := et.Lookup(7); got != NoStatus {
		t.Errorf("Lookup() = %d, want NoStatus", got)
	}
	if !et.Record(7, 42) {
		t.Fatal("Record() = false on first write")
	}
	if et.Record(7, 1) {
		t.Error("Record() = true on second write")
	}
	if got := et.Lookup(7); got != 42 {
		t.Errorf("Lookup() = %d, want 42", got)
	}

	et.Reset(7)
	if got := et.Lookup(7); got != NoStatus {
		t.Errorf("Lookup() after Reset = %d, want NoStatus", got)
	}
}

func TestHandoff(t *testing.T) {
	h := NewHandoff()

	delivered := make(chan struct{})
	go func() {
		h.Deliver(42)
		close(delivered)
	}()

	select {
	case <-delivered:
		t.Fatal("Deliver() returned before the status was collected")
	case <-time.After(20 * time.Millisecond):
	}

	status, err := h.Collect()
	if err != nil || status != 42 {
		t.Errorf("Collect() = (%d, %v), want (42, nil)", status, err)
	}
	<-delivered

	if _, err := h.Collect(); !errors.Is(err, ErrAlreadyCollected) {
		t.Errorf("second Collect() error = %v, want ErrAlreadyCollected", err)
	}
	if err := h.Deliver(1); !errors.Is(err, ErrAlreadyDelivered) {
		t.Errorf("second Deliver() error = %v, want ErrAlreadyDelivered", err)
	}
}

func TestHandoffRelease(t *testing.T) {
	h := NewHandoff()
	h.Release()
	h.Release()

	done := make(chan struct{})
	go func() {
		h.Deliver(0)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Deliver() blocked on a released handoff")
	}
}

// newTestManager returns a manager whose loader knows the given programs,
// each installed as an executable file.
func newTestManager(t *testing.T, programs map[string]Program) (*Manager, *memfs.FS, *bytes.Buffer) {
	t.Helper()

	fs := memfs.New()
	loader := NewImageLoader(fs)
	for name, prog := range programs {
		if err := fs.WriteFile(name, []byte("image:"+name)); err != nil {
			t.Fatalf("WriteFile(%q) failed: %v", name, err)
		}
		loader.Register(name, prog)
	}

	var out bytes.Buffer
	cons := console.New(nil, &syncWriter{w: &out})
	return NewManager(DefaultConfig(), loader, cons), fs, &out
}

type syncWriter struct {
	mu sync.Mutex
	w  *bytes.Buffer
}

func (s *syncWriter) Write(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(b)
}

func waitDone(t *testing.T, p *Process) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("pid %d (%s) did not finish", p.PID, p.Name)
	}
}

func TestManagerSpawnWaitExit(t *testing.T) {
	var m *Manager
	var child *Process
	var gotStatus int
	var gotErr error

	m, _, out := newTestManager(t, map[string]Program{
		"child": func(p *Process) {
			m.Exit(p, 42)
		},
		"parent": func(p *Process) {
			var err error
			child, err = m.Spawn(p, "child")
			if err != nil || !child.WaitLoaded() {
				m.Exit(p, -2)
				return
			}
			gotStatus, gotErr = m.Wait(p, child.PID)
			if _, err := m.Wait(p, child.PID); !errors.Is(err, ErrNotChild) {
				m.Exit(p, -3)
				return
			}
			m.Exit(p, 0)
		},
	})

	p, err := m.Start("parent")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitDone(t, p)
	waitDone(t, child)

	if gotErr != nil || gotStatus != 42 {
		t.Errorf("Wait() = (%d, %v), want (42, nil)", gotStatus, gotErr)
	}
	if got := m.ExitStatus(p.PID); got != 0 {
		t.Errorf("ExitStatus(parent) = %d, want 0", got)
	}
	want := "child: exit(42)\nparent: exit(0)\n"
	if out.String() != want {
		t.Errorf("console = %q, want %q", out.String(), want)
	}
	if m.Count() != 0 {
		t.Errorf("Count() = %d, want 0", m.Count())
	}
}

func TestManagerExitBlocksUntilCollected(t *testing.T) {
	var m *Manager
	exited := make(chan *Process, 1)
	proceed := make(chan struct{})
	collected := make(chan int, 1)

	m, _, _ = newTestManager(t, map[string]Program{
		"child": func(p *Process) {
			exited <- p
			m.Exit(p, 7)
		},
		"parent": func(p *Process) {
			child, _ := m.Spawn(p, "child")
			child.WaitLoaded()
			<-proceed
			status, _ := m.Wait(p, child.PID)
			collected <- status
			m.Exit(p, 0)
		},
	})

	parent, err := m.Start("parent")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	child := <-exited

	// The child has delivered but nobody has collected: it must stay put.
	time.Sleep(20 * time.Millisecond)
	if !child.IsAlive() {
		t.Fatal("child reaped before the parent collected its status")
	}
	if got := m.ExitStatus(child.PID); got != 7 {
		t.Errorf("ExitStatus(child) = %d, want 7", got)
	}

	close(proceed)
	if status := <-collected; status != 7 {
		t.Errorf("Wait() = %d, want 7", status)
	}
	waitDone(t, child)
	waitDone(t, parent)
}

func TestManagerLoadFailure(t *testing.T) {
	var m *Manager
	result := make(chan bool, 1)
	var failedPID int

	m, fs, _ := newTestManager(t, map[string]Program{
		"parent": func(p *Process) {
			child, err := m.Spawn(p, "missing arg")
			if err != nil {
				result <- false
				m.Exit(p, 0)
				return
			}
			failedPID = child.PID
			result <- child.WaitLoaded()
			if _, err := m.Wait(p, child.PID); !errors.Is(err, ErrNotChild) {
				m.Exit(p, -1)
				return
			}
			m.Exit(p, 0)
		},
	})
	// An executable file without a registered program also fails to load.
	fs.WriteFile("orphan", []byte("no program"))

	parent, err := m.Start("parent")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if ok := <-result; ok {
		t.Error("WaitLoaded() = true for a missing executable")
	}
	waitDone(t, parent)
	if got := m.ExitStatus(parent.PID); got != 0 {
		t.Errorf("parent exit status = %d, want 0", got)
	}
	if got := m.ExitStatus(failedPID); got != -1 {
		t.Errorf("failed child exit status = %d, want -1", got)
	}

	if _, err := m.Start("orphan"); !errors.Is(err, ErrLoadFailed) {
		t.Errorf("Start(orphan) error = %v, want ErrLoadFailed", err)
	}
	if _, err := m.Start("   "); !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("Start(blank) error = %v, want ErrInvalidCommand", err)
	}
}

func TestManagerOrphanedChildDoesNotBlock(t *testing.T) {
	var m *Manager
	release := make(chan struct{})
	children := make(chan *Process, 1)

	m, _, _ = newTestManager(t, map[string]Program{
		"child": func(p *Process) {
			<-release
			m.Exit(p, 3)
		},
		"parent": func(p *Process) {
			child, _ := m.Spawn(p, "child")
			child.WaitLoaded()
			children <- child
			m.Exit(p, 0)
		},
	})

	parent, err := m.Start("parent")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	child := <-children
	waitDone(t, parent)

	close(release)
	waitDone(t, child)
	if got := m.ExitStatus(child.PID); got != 3 {
		t.Errorf("ExitStatus(child) = %d, want 3", got)
	}
}

func TestManagerPanicKillsProcess(t *testing.T) {
	m, _, out := newTestManager(t, map[string]Program{
		"crash": func(p *Process) {
			var table []int
			_ = table[3]
		},
	})

	p, err := m.Start("crash")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitDone(t, p)

	if got := m.ExitStatus(p.PID); got != -1 {
		t.Errorf("ExitStatus() = %d, want -1", got)
	}
	if out.String() != "crash: exit(-1)\n" {
		t.Errorf("console = %q", out.String())
	}
}

func TestExecutableWriteDenied(t *testing.T) {
	var m *Manager
	var fs *memfs.FS
	observed := make(chan int, 1)

	m, fs, _ = newTestManager(t, map[string]Program{
		"self": func(p *Process) {
			f, _ := fs.Open("self")
			n, _ := f.Write([]byte("x"))
			f.Close()
			observed <- n
			m.Exit(p, 0)
		},
	})

	p, err := m.Start("self")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if n := <-observed; n != 0 {
		t.Errorf("write to running executable wrote %d bytes, want 0", n)
	}
	waitDone(t, p)

	f, _ := fs.Open("self")
	defer f.Close()
	if n, _ := f.Write([]byte("x")); n != 1 {
		t.Errorf("write after exit wrote %d bytes, want 1", n)
	}
}

func TestManagerHalt(t *testing.T) {
	m, _, out := newTestManager(t, map[string]Program{
		"idle": func(p *Process) {},
	})

	m.Halt()
	m.Halt()
	if !m.Halted() {
		t.Fatal("Halted() = false after Halt")
	}
	if _, err := m.Start("idle"); !errors.Is(err, ErrHalted) {
		t.Errorf("Start() after Halt error = %v, want ErrHalted", err)
	}
	if out.Len() != 0 {
		t.Errorf("console = %q, want empty", out.String())
	}
}

func TestAdoptAfterOrphaning(t *testing.T) {
	parent := NewProcess(0, "parent", 0)
	child := NewProcess(0, "child", 0)
	child.PID = 2

	parent.orphanChildren()
	if parent.adopt(child) {
		t.Fatal("adopt() succeeded on an exiting parent")
	}
	if len(parent.Children()) != 0 {
		t.Errorf("Children() = %v, want none", parent.Children())
	}
}
