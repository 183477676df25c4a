package main

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"userprog/pkg/syscall"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitPowerOff(t *testing.T, m *machine) {
	t.Helper()
	select {
	case <-m.poweroff:
	case <-time.After(5 * time.Second):
		t.Fatal("machine did not power off")
	}
}

// assertInOrder checks that every part occurs in s, in order.
func assertInOrder(t *testing.T, s string, parts ...string) {
	t.Helper()
	rest := s
	for _, part := range parts {
		i := strings.Index(rest, part)
		if i < 0 {
			t.Fatalf("output missing %q (in order)\n%s", part, s)
		}
		rest = rest[i+len(part):]
	}
}

func TestInitScript(t *testing.T) {
	out := &syncBuffer{}
	m, err := boot(syscall.DefaultConfig(), nil, out)
	if err != nil {
		t.Fatalf("boot() error = %v", err)
	}

	if _, err := m.procs.Start("init"); err != nil {
		t.Fatalf("Start(init) error = %v", err)
	}
	waitPowerOff(t, m)

	assertInOrder(t, out.String(),
		"booting userprog\n",
		"echo: exit(0)\n",
		"write: exit(0)\n",
		"welcome-to-userprog\n",
		"cat: exit(0)\n",
		"exit: exit(7)\n",
		"init: exit 7: status 7\n",
		"bad: exit(-1)\n",
		"init: bad: status -1\n",
		"init: exec failed: nosuchprogram\n",
	)
	if strings.Contains(out.String(), "init: exit(") {
		t.Error("init printed an exit line after halting")
	}

	data, err := m.fs.ReadFile("motd")
	if err != nil || string(data) != "welcome-to-userprog" {
		t.Errorf("motd = (%q, %v)", data, err)
	}
}

func TestPowerOffTwice(t *testing.T) {
	m, err := boot(syscall.DefaultConfig(), nil, nil)
	if err != nil {
		t.Fatalf("boot() error = %v", err)
	}

	m.power.PowerOff()
	m.power.PowerOff()
	waitPowerOff(t, m)
}

func TestShell(t *testing.T) {
	out := &syncBuffer{}
	input := strings.NewReader("write note hi there\ncat note\nunlink note\ncat note\nhalt\n")
	m, err := boot(syscall.DefaultConfig(), input, out)
	if err != nil {
		t.Fatalf("boot() error = %v", err)
	}

	if _, err := m.procs.Start("shell"); err != nil {
		t.Fatalf("Start(shell) error = %v", err)
	}
	waitPowerOff(t, m)

	assertInOrder(t, out.String(),
		"$ ", "write: exit(0)\n",
		"$ ", "hi there\n", "cat: exit(0)\n",
		"$ ", "unlink: exit(0)\n",
		"$ ", "cat: note: cannot open\n", "cat: exit(1)\n",
		"$ ",
	)
	if names := m.fs.Names(); strings.Contains(strings.Join(names, " "), "note") {
		t.Errorf("Names() = %v, note was not removed", names)
	}
}

func TestShellEndOfInput(t *testing.T) {
	out := &syncBuffer{}
	m, err := boot(syscall.DefaultConfig(), strings.NewReader("echo last"), out)
	if err != nil {
		t.Fatalf("boot() error = %v", err)
	}

	p, err := m.procs.Start("shell")
	if err != nil {
		t.Fatalf("Start(shell) error = %v", err)
	}
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("shell did not exit at end of input")
	}

	assertInOrder(t, out.String(), "$ ", "last\n", "echo: exit(0)\n", "shell: exit(0)\n")
}
