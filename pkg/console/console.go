// Package console provides the character console behind descriptors 0
// and 1: a byte-at-a-time input side and a buffer-at-a-time output side.
package console

import (
	"bufio"
	"fmt"
	"io"
	"sync"
)

// Device is the console primitive the kernel calls.
type Device interface {
	// Getc blocks until one byte of input is available and returns it.
	Getc() byte
	// Putbuf writes b to the output as one unit. Bytes from concurrent
	// calls never interleave.
	Putbuf(b []byte)
}

// Console is a Device over an io.Reader and an io.Writer.
type Console struct {
	inMu  sync.Mutex
	in    *bufio.Reader
	outMu sync.Mutex
	out   io.Writer
}

// New creates a console reading from in and writing to out. A nil in
// behaves as an empty input; a nil out discards output.
func New(in io.Reader, out io.Writer) *Console {
	if in == nil {
		in = eofReader{}
	}
	if out == nil {
		out = io.Discard
	}
	return &Console{
		in:  bufio.NewReader(in),
		out: out,
	}
}

// Getc implements Device. Once the input is exhausted it returns 0.
func (c *Console) Getc() byte {
	c.inMu.Lock()
	defer c.inMu.Unlock()

	b, err := c.in.ReadByte()
	if err != nil {
		return 0
	}
	return b
}

// Putbuf implements Device.
func (c *Console) Putbuf(b []byte) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	c.out.Write(b)
}

// Printf formats according to a format specifier and writes the result
// with a single Putbuf.
func Printf(d Device, format string, args ...interface{}) {
	d.Putbuf([]byte(fmt.Sprintf(format, args...)))
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }
