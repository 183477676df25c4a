package user

import (
	"sync"
	"testing"
	"time"

	"userprog/pkg/console"
	"userprog/pkg/mem"
	"userprog/pkg/process"
	"userprog/pkg/vfs/memfs"
)

// recorder is a trap handler that decodes each frame and answers with the
// call number plus 100.
type recorder struct {
	mu    sync.Mutex
	calls [][]uint32
}

func (r *recorder) HandleTrap(p *process.Process, f *process.Frame) error {
	words := make([]uint32, 4)
	for i := range words {
		w, err := mem.ReadWord(p.Memory, f.ESP+mem.Addr(i*mem.WordSize))
		if err != nil {
			return err
		}
		words[i] = w
	}

	r.mu.Lock()
	r.calls = append(r.calls, words)
	r.mu.Unlock()

	if words[0] == 1 {
		return process.ErrHalted
	}
	f.EAX = words[0] + 100
	return nil
}

func startProgram(t *testing.T, h process.TrapHandler, main Main) *process.Process {
	t.Helper()

	fs := memfs.New()
	if err := fs.WriteFile("prog", []byte("image")); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	loader := process.NewImageLoader(fs)
	loader.Register("prog", Run(main))

	m := process.NewManager(process.DefaultConfig(), loader, console.New(nil, nil))
	m.SetTrapHandler(h)

	p, err := m.Start("prog arg")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return p
}

func TestSyscallFrame(t *testing.T) {
	r := &recorder{}
	results := make(chan int32, 2)

	startProgram(t, r, func(u *User) int {
		results <- u.Syscall(7, 11, 22, 33)
		results <- u.Syscall(9)
		return 0
	})

	if got := <-results; got != 107 {
		t.Errorf("Syscall(7) = %d, want 107", got)
	}
	if got := <-results; got != 109 {
		t.Errorf("Syscall(9) = %d, want 109", got)
	}

	time.Sleep(10 * time.Millisecond)
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) < 2 {
		t.Fatalf("recorded %d calls, want at least 2", len(r.calls))
	}
	want := []uint32{7, 11, 22, 33}
	for i, w := range want {
		if r.calls[0][i] != w {
			t.Errorf("slot %d = %d, want %d", i, r.calls[0][i], w)
		}
	}
}

func TestTrapErrorStopsProgram(t *testing.T) {
	r := &recorder{}
	after := make(chan bool, 1)

	startProgram(t, r, func(u *User) int {
		u.Exit(3)
		after <- true
		return 0
	})

	select {
	case <-after:
		t.Fatal("program continued after a failed trap")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestAllocAndStrings(t *testing.T) {
	r := &recorder{}
	type result struct {
		a, b  mem.Addr
		text  []byte
		args  []string
		empty mem.Addr
	}
	done := make(chan result, 1)

	startProgram(t, r, func(u *User) int {
		var res result
		res.a = u.Alloc(10)
		res.b = u.CString("hello")
		res.text = u.Load(res.b, 6)
		res.args = u.Args()
		res.empty = u.Alloc(0)
		done <- res
		return 0
	})

	res := <-done
	if res.a != HeapBase {
		t.Errorf("first Alloc() = %#x, want %#x", res.a, HeapBase)
	}
	if res.b != HeapBase+mem.PageSize {
		t.Errorf("second Alloc() = %#x, want next page", res.b)
	}
	if string(res.text) != "hello\x00" {
		t.Errorf("Load() = %q, want %q", res.text, "hello\x00")
	}
	if len(res.args) != 2 || res.args[1] != "arg" {
		t.Errorf("Args() = %v", res.args)
	}
	if res.empty != HeapBase+2*mem.PageSize {
		t.Errorf("Alloc(0) = %#x, want current break", res.empty)
	}
}
