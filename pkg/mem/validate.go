package mem

import (
	"bytes"
	"errors"
	"fmt"
)

// Validation errors.
var (
	ErrNullPointer   = errors.New("null pointer")
	ErrKernelAddress = errors.New("address outside user space")
	ErrUnmapped      = errors.New("address not mapped")
	ErrReadOnly      = errors.New("page not writable")
	ErrStringTooLong = errors.New("string exceeds maximum length")
)

// MaxStringLen bounds ValidateString; longer strings fault.
const MaxStringLen = 16 * PageSize

// FaultError reports an address that failed validation.
type FaultError struct {
	// Addr is the first offending address.
	Addr Addr
	// Err is one of the validation errors above.
	Err error
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("mem: fault at 0x%08x: %v", uint32(e.Addr), e.Err)
}

func (e *FaultError) Unwrap() error {
	return e.Err
}

// IsFault reports whether err is a validation fault.
func IsFault(err error) bool {
	var fe *FaultError
	return errors.As(err, &fe)
}

// Validate checks that addr is non-null, below PhysBase and mapped in t.
func Validate(t Translator, addr Addr) error {
	if addr == 0 {
		return &FaultError{Addr: addr, Err: ErrNullPointer}
	}
	return validateRange(t, addr, 1, false)
}

// ValidateRange checks every page touched by [addr, addr+n). A zero-length
// range is always valid and touches no page.
func ValidateRange(t Translator, addr Addr, n uint32) error {
	if n == 0 {
		return nil
	}
	return validateRange(t, addr, n, false)
}

// ValidateWritableRange is ValidateRange that additionally requires every
// page to be writable.
func ValidateWritableRange(t Translator, addr Addr, n uint32) error {
	if n == 0 {
		return nil
	}
	return validateRange(t, addr, n, true)
}

func validateRange(t Translator, addr Addr, n uint32, write bool) error {
	if addr == 0 {
		return &FaultError{Addr: addr, Err: ErrNullPointer}
	}
	if !IsUser(addr) {
		return &FaultError{Addr: addr, Err: ErrKernelAddress}
	}
	end := uint64(addr) + uint64(n)
	if end > uint64(PhysBase) {
		return &FaultError{Addr: PhysBase, Err: ErrKernelAddress}
	}

	for pg := uint64(PageRound(addr)); pg < end; pg += PageSize {
		at := maxAddr(Addr(pg), addr)
		mapped, writable := t.Translate(Addr(pg))
		if !mapped {
			return &FaultError{Addr: at, Err: ErrUnmapped}
		}
		if write && !writable {
			return &FaultError{Addr: at, Err: ErrReadOnly}
		}
	}
	return nil
}

// ValidateString validates a NUL-terminated string starting at addr, page
// by page, and returns it without the terminator. Every page the string
// touches, including the one holding the terminator, must be mapped.
func ValidateString(as AddressSpace, addr Addr) (string, error) {
	if addr == 0 {
		return "", &FaultError{Addr: addr, Err: ErrNullPointer}
	}

	var buf []byte
	cur := addr
	for {
		if !IsUser(cur) {
			return "", &FaultError{Addr: cur, Err: ErrKernelAddress}
		}
		if mapped, _ := as.Translate(cur); !mapped {
			return "", &FaultError{Addr: cur, Err: ErrUnmapped}
		}

		next := PageRound(cur) + PageSize
		chunk := make([]byte, next-cur)
		if err := as.ReadAt(chunk, cur); err != nil {
			return "", err
		}
		if i := bytes.IndexByte(chunk, 0); i >= 0 {
			buf = append(buf, chunk[:i]...)
			if len(buf) > MaxStringLen {
				return "", &FaultError{Addr: addr, Err: ErrStringTooLong}
			}
			return string(buf), nil
		}

		buf = append(buf, chunk...)
		if len(buf) > MaxStringLen {
			return "", &FaultError{Addr: addr, Err: ErrStringTooLong}
		}
		cur = next
	}
}
