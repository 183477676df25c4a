package syscall

import (
	"userprog/pkg/fdtable"
	"userprog/pkg/mem"
	"userprog/pkg/vfs"
)

func boolResult(ok bool) int32 {
	if ok {
		return 1
	}
	return 0
}

// sysCreate creates a file of the given size. It returns 1 on success.
func (k *Kernel) sysCreate(c *Call, a *Args) (int32, error) {
	path, err := mem.ValidateString(c.Proc.Memory, a.Ptr())
	if err != nil {
		return 0, err
	}
	size := a.Uint()
	if size > vfs.MaxFileSize {
		return 0, nil
	}
	return boolResult(k.fs.Create(path, int64(size)) == nil), nil
}

// sysRemove removes a file. It returns 1 on success.
func (k *Kernel) sysRemove(c *Call, a *Args) (int32, error) {
	path, err := mem.ValidateString(c.Proc.Memory, a.Ptr())
	if err != nil {
		return 0, err
	}
	return boolResult(k.fs.Remove(path) == nil), nil
}

// sysOpen opens a file and returns its descriptor, or -1.
func (k *Kernel) sysOpen(c *Call, a *Args) (int32, error) {
	path, err := mem.ValidateString(c.Proc.Memory, a.Ptr())
	if err != nil {
		return 0, err
	}

	f, err := k.fs.Open(path)
	if err != nil {
		return -1, nil
	}
	fd, err := c.Proc.Files.Install(f)
	if err != nil {
		return -1, nil
	}
	return int32(fd), nil
}

// file returns the open file behind a descriptor argument.
func file(c *Call, fd int32) (vfs.File, bool) {
	f, err := c.Proc.Files.Get(int(fd))
	return f, err == nil
}

// sysFilesize returns the size of an open file, or -1.
func (k *Kernel) sysFilesize(c *Call, a *Args) (int32, error) {
	f, ok := file(c, a.Int())
	if !ok {
		return -1, nil
	}
	return int32(f.Length()), nil
}

// sysRead reads into a user buffer. Descriptor 0 reads from the console.
func (k *Kernel) sysRead(c *Call, a *Args) (int32, error) {
	fd, buf, size := a.Int(), a.Ptr(), a.Uint()
	as := c.Proc.Memory
	if err := mem.ValidateWritableRange(as, buf, size); err != nil {
		return 0, err
	}

	if fd == fdtable.Stdin {
		data := make([]byte, size)
		for i := range data {
			data[i] = k.console.Getc()
		}
		if err := as.WriteAt(data, buf); err != nil {
			return 0, err
		}
		return int32(size), nil
	}

	f, ok := file(c, fd)
	if !ok {
		return -1, nil
	}
	data := make([]byte, size)
	k.fsLock.Lock()
	n, _ := f.Read(data)
	k.fsLock.Unlock()

	if err := as.WriteAt(data[:n], buf); err != nil {
		return 0, err
	}
	return int32(n), nil
}

// sysWrite writes a user buffer. Descriptor 1 writes to the console as a
// single unit.
func (k *Kernel) sysWrite(c *Call, a *Args) (int32, error) {
	fd, buf, size := a.Int(), a.Ptr(), a.Uint()
	as := c.Proc.Memory
	if err := mem.ValidateRange(as, buf, size); err != nil {
		return 0, err
	}

	data := make([]byte, size)
	if err := as.ReadAt(data, buf); err != nil {
		return 0, err
	}

	if fd == fdtable.Stdout {
		k.console.Putbuf(data)
		return int32(size), nil
	}

	f, ok := file(c, fd)
	if !ok {
		return 0, nil
	}
	k.fsLock.Lock()
	n, _ := f.Write(data)
	k.fsLock.Unlock()
	return int32(n), nil
}

// sysSeek moves the position of an open file. Bad descriptors and
// positions past MaxFileSize are ignored.
func (k *Kernel) sysSeek(c *Call, a *Args) error {
	fd, pos := a.Int(), a.Uint()
	if pos > vfs.MaxFileSize {
		return nil
	}
	if f, ok := file(c, fd); ok {
		f.Seek(int64(pos), vfs.SEEK_SET)
	}
	return nil
}

// sysTell returns the position of an open file, or -1.
func (k *Kernel) sysTell(c *Call, a *Args) (int32, error) {
	f, ok := file(c, a.Int())
	if !ok {
		return -1, nil
	}
	return int32(f.Tell()), nil
}

// sysClose closes a descriptor. Bad or already closed descriptors are
// ignored.
func (k *Kernel) sysClose(c *Call, a *Args) error {
	c.Proc.Files.Close(int(a.Int()))
	return nil
}
