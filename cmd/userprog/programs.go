package main

import (
	"strconv"
	"strings"

	"userprog/pkg/mem"
	"userprog/pkg/process"
	"userprog/pkg/syscall"
	"userprog/pkg/user"
)

// programs returns the user programs installed on the demo machine.
func programs() map[string]process.Program {
	return map[string]process.Program{
		"init":   user.Run(initMain),
		"echo":   user.Run(echoMain),
		"cat":    user.Run(catMain),
		"write":  user.Run(writeMain),
		"exit":   user.Run(exitMain),
		"bad":    user.Run(badMain),
		"halt":   user.Run(haltMain),
		"shell":  user.Run(shellMain),
		"unlink": user.Run(unlinkMain),
	}
}

// initMain runs a fixed boot script and halts.
func initMain(u *user.User) int {
	script := []string{
		"echo booting userprog",
		"write motd welcome-to-userprog",
		"cat motd",
		"exit 7",
		"bad",
		"nosuchprogram",
	}
	for _, cmd := range script {
		run(u, cmd)
	}
	u.Halt()
	return 0
}

// run executes cmd in a child and reports how it went.
func run(u *user.User, cmd string) {
	self := u.Args()[0]
	pid := u.Exec(cmd)
	if pid < 0 {
		u.Print(self + ": exec failed: " + cmd + "\n")
		return
	}
	status := u.Wait(pid)
	if status != 0 {
		u.Print(self + ": " + cmd + ": status " + strconv.Itoa(status) + "\n")
	}
}

// shellMain reads one command per line from the console and runs it until
// end of input or "halt".
func shellMain(u *user.User) int {
	for {
		u.Print("$ ")
		line, ok := readLine(u)
		line = strings.TrimSpace(line)
		if line == "halt" {
			u.Halt()
		}
		if line != "" {
			run(u, line)
		}
		if !ok {
			return 0
		}
	}
}

// readLine reads console input up to a newline. The console yields NUL
// once its input is exhausted.
func readLine(u *user.User) (string, bool) {
	buf := u.Alloc(1)
	var sb strings.Builder
	for {
		u.Read(0, buf, 1)
		c := u.Load(buf, 1)[0]
		switch c {
		case 0:
			return sb.String(), false
		case '\n':
			return sb.String(), true
		}
		sb.WriteByte(c)
	}
}

func echoMain(u *user.User) int {
	u.Print(strings.Join(u.Args()[1:], " ") + "\n")
	return 0
}

func catMain(u *user.User) int {
	status := 0
	for _, name := range u.Args()[1:] {
		fd := u.Open(name)
		if fd < 0 {
			u.Print("cat: " + name + ": cannot open\n")
			status = 1
			continue
		}
		size := u.Filesize(fd)
		if data := u.ReadAll(fd, uint32(size)); len(data) > 0 {
			u.Print(string(data) + "\n")
		}
		u.Close(fd)
	}
	return status
}

// writeMain creates a file holding the remaining words.
func writeMain(u *user.User) int {
	args := u.Args()
	if len(args) < 3 {
		u.Print("usage: write FILE TEXT...\n")
		return 1
	}
	text := strings.Join(args[2:], " ")
	if !u.Create(args[1], uint32(len(text))) {
		u.Print("write: " + args[1] + ": cannot create\n")
		return 1
	}
	fd := u.Open(args[1])
	if fd < 0 {
		return 1
	}
	defer u.Close(fd)
	if n := u.Write(fd, u.Bytes([]byte(text)), uint32(len(text))); n != len(text) {
		return 1
	}
	return 0
}

func unlinkMain(u *user.User) int {
	for _, name := range u.Args()[1:] {
		if !u.Remove(name) {
			return 1
		}
	}
	return 0
}

func exitMain(u *user.User) int {
	if len(u.Args()) < 2 {
		return 0
	}
	n, err := strconv.Atoi(u.Args()[1])
	if err != nil {
		return -1
	}
	return n
}

// badMain hands the kernel a pointer into kernel space.
func badMain(u *user.User) int {
	u.Syscall(syscall.SysWrite, 1, uint32(mem.PhysBase), 4)
	return 0
}

func haltMain(u *user.User) int {
	u.Halt()
	return 0
}
