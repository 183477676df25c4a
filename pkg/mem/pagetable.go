package mem

import (
	"encoding/binary"
	"sync"
)

// Addr is a 32-bit virtual address in a process's address space.
type Addr uint32

// Address space geometry.
const (
	// PageShift is log2 of the page size.
	PageShift = 12
	// PageSize is the size of one virtual page in bytes.
	PageSize = 1 << PageShift
	// PhysBase is the first address reserved for the kernel. Every
	// user-accessible address lies strictly below it.
	PhysBase Addr = 0xC0000000
)

// PageRound returns the start of the page containing addr.
func PageRound(addr Addr) Addr {
	return addr &^ (PageSize - 1)
}

// IsUser reports whether addr lies in the user portion of the address space.
func IsUser(addr Addr) bool {
	return addr < PhysBase
}

// Translator is the "translate or fail" primitive the validator is built on.
type Translator interface {
	// Translate reports whether the page containing addr is mapped, and if
	// so whether it may be written.
	Translate(addr Addr) (mapped, writable bool)
}

// AddressSpace is a process's address-translation context. The kernel
// copies data across it only after the range has been validated.
type AddressSpace interface {
	Translator
	// ReadAt copies len(b) bytes starting at addr into b.
	ReadAt(b []byte, addr Addr) error
	// WriteAt copies b into memory starting at addr.
	WriteAt(b []byte, addr Addr) error
}

// WordSize is the size of one stack slot.
const WordSize = 4

// ReadWord reads the little-endian word at addr.
func ReadWord(as AddressSpace, addr Addr) (uint32, error) {
	var b [WordSize]byte
	if err := as.ReadAt(b[:], addr); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

// WriteWord stores v at addr in little-endian order.
func WriteWord(as AddressSpace, addr Addr, v uint32) error {
	var b [WordSize]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return as.WriteAt(b[:], addr)
}

// page is one mapped 4 KiB frame.
type page struct {
	data     [PageSize]byte
	writable bool
}

// PageTable is a sparse, in-memory page table. It is safe for concurrent use.
type PageTable struct {
	mu    sync.RWMutex
	pages map[Addr]*page
}

// NewPageTable creates an empty page table.
func NewPageTable() *PageTable {
	return &PageTable{
		pages: make(map[Addr]*page),
	}
}

// Map maps a zeroed page at the page containing addr. Mapping an already
// mapped page only updates its writable bit.
func (pt *PageTable) Map(addr Addr, writable bool) error {
	if !IsUser(addr) {
		return &FaultError{Addr: addr, Err: ErrKernelAddress}
	}

	pt.mu.Lock()
	defer pt.mu.Unlock()

	base := PageRound(addr)
	if pg, ok := pt.pages[base]; ok {
		pg.writable = writable
		return nil
	}
	pt.pages[base] = &page{writable: writable}
	return nil
}

// MapRange maps every page touched by [addr, addr+n).
func (pt *PageTable) MapRange(addr Addr, n uint32, writable bool) error {
	if n == 0 {
		return nil
	}
	end := uint64(addr) + uint64(n)
	if end > uint64(PhysBase) {
		return &FaultError{Addr: addr, Err: ErrKernelAddress}
	}
	for pg := uint64(PageRound(addr)); pg < end; pg += PageSize {
		if err := pt.Map(Addr(pg), writable); err != nil {
			return err
		}
	}
	return nil
}

// Unmap removes the page containing addr. Unmapping an unmapped page is a no-op.
func (pt *PageTable) Unmap(addr Addr) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	delete(pt.pages, PageRound(addr))
}

// Translate implements Translator.
func (pt *PageTable) Translate(addr Addr) (mapped, writable bool) {
	if !IsUser(addr) {
		return false, false
	}

	pt.mu.RLock()
	defer pt.mu.RUnlock()

	pg, ok := pt.pages[PageRound(addr)]
	if !ok {
		return false, false
	}
	return true, pg.writable
}

// Len returns the number of mapped pages.
func (pt *PageTable) Len() int {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	return len(pt.pages)
}

// ReadAt implements AddressSpace. It fails without copying anything if any
// byte of the range is unmapped.
func (pt *PageTable) ReadAt(b []byte, addr Addr) error {
	pt.mu.RLock()
	defer pt.mu.RUnlock()

	if err := pt.check(addr, len(b)); err != nil {
		return err
	}
	pt.each(addr, len(b), func(pg *page, off, n, done int) {
		copy(b[done:done+n], pg.data[off:off+n])
	})
	return nil
}

// WriteAt implements AddressSpace. Writes bypass the writable bit: the
// kernel and the loader may fill read-only pages.
func (pt *PageTable) WriteAt(b []byte, addr Addr) error {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	if err := pt.check(addr, len(b)); err != nil {
		return err
	}
	pt.each(addr, len(b), func(pg *page, off, n, done int) {
		copy(pg.data[off:off+n], b[done:done+n])
	})
	return nil
}

// check verifies that [addr, addr+n) is mapped. Callers hold pt.mu.
func (pt *PageTable) check(addr Addr, n int) error {
	if n == 0 {
		return nil
	}
	end := uint64(addr) + uint64(n)
	if end > uint64(PhysBase) {
		return &FaultError{Addr: addr, Err: ErrKernelAddress}
	}
	for pg := uint64(PageRound(addr)); pg < end; pg += PageSize {
		if _, ok := pt.pages[Addr(pg)]; !ok {
			return &FaultError{Addr: maxAddr(Addr(pg), addr), Err: ErrUnmapped}
		}
	}
	return nil
}

// each walks [addr, addr+n) page by page. Callers hold pt.mu and have
// already checked the range.
func (pt *PageTable) each(addr Addr, n int, fn func(pg *page, off, n, done int)) {
	done := 0
	for done < n {
		cur := addr + Addr(done)
		off := int(cur - PageRound(cur))
		chunk := PageSize - off
		if chunk > n-done {
			chunk = n - done
		}
		fn(pt.pages[PageRound(cur)], off, chunk, done)
		done += chunk
	}
}

func maxAddr(a, b Addr) Addr {
	if a > b {
		return a
	}
	return b
}
