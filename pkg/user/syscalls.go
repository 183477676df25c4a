package user

import (
	"userprog/pkg/mem"
	"userprog/pkg/syscall"
)

// Halt powers the machine off.
func (u *User) Halt() {
	u.Syscall(syscall.SysHalt)
}

// Exit terminates the process with status.
func (u *User) Exit(status int) {
	u.Syscall(syscall.SysExit, uint32(int32(status)))
}

// Exec runs cmdline in a child process and returns its PID, or -1.
func (u *User) Exec(cmdline string) int {
	return int(u.Syscall(syscall.SysExec, uint32(u.CString(cmdline))))
}

// Wait waits for child pid and returns its exit status, or -1.
func (u *User) Wait(pid int) int {
	return int(u.Syscall(syscall.SysWait, uint32(int32(pid))))
}

// Create creates a file of size bytes.
func (u *User) Create(name string, size uint32) bool {
	return u.Syscall(syscall.SysCreate, uint32(u.CString(name)), size) != 0
}

// Remove removes a file.
func (u *User) Remove(name string) bool {
	return u.Syscall(syscall.SysRemove, uint32(u.CString(name))) != 0
}

// Open opens a file and returns its descriptor, or -1.
func (u *User) Open(name string) int {
	return int(u.Syscall(syscall.SysOpen, uint32(u.CString(name))))
}

// Filesize returns the size of the file open as fd, or -1.
func (u *User) Filesize(fd int) int {
	return int(u.Syscall(syscall.SysFilesize, uint32(int32(fd))))
}

// Read reads up to size bytes from fd into buf.
func (u *User) Read(fd int, buf mem.Addr, size uint32) int {
	return int(u.Syscall(syscall.SysRead, uint32(int32(fd)), uint32(buf), size))
}

// Write writes size bytes at buf to fd.
func (u *User) Write(fd int, buf mem.Addr, size uint32) int {
	return int(u.Syscall(syscall.SysWrite, uint32(int32(fd)), uint32(buf), size))
}

// Seek sets the position of fd.
func (u *User) Seek(fd int, pos uint32) {
	u.Syscall(syscall.SysSeek, uint32(int32(fd)), pos)
}

// Tell returns the position of fd, or -1.
func (u *User) Tell(fd int) int {
	return int(u.Syscall(syscall.SysTell, uint32(int32(fd))))
}

// Close closes fd.
func (u *User) Close(fd int) {
	u.Syscall(syscall.SysClose, uint32(int32(fd)))
}

// Print writes s to the console.
func (u *User) Print(s string) int {
	if s == "" {
		return 0
	}
	return u.Write(1, u.Bytes([]byte(s)), uint32(len(s)))
}

// ReadAll reads up to n bytes from fd and returns them.
func (u *User) ReadAll(fd int, n uint32) []byte {
	buf := u.Alloc(n)
	got := u.Read(fd, buf, n)
	if got <= 0 {
		return nil
	}
	return u.Load(buf, uint32(got))
}
