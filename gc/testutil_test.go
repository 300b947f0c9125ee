package gc

import (
	"github.com/ProtonOS/ProtonOS-sub008/bitset"
	"github.com/ProtonOS/ProtonOS-sub008/hal"
	"github.com/ProtonOS/ProtonOS-sub008/typesys"
)

// fakeMemory is a byte-addressable heap with no MMU underneath it,
// swapped in for mem in every test in this package — the same seam
// jit/codeheap_test.go exercises for copyToVirtualMemory, generalized
// here to the handful of operations the collector needs.
type fakeMemory struct {
	bytes map[hal.VirtAddr]byte
}

func newFakeMemory() *fakeMemory { return &fakeMemory{bytes: make(map[hal.VirtAddr]byte)} }

func (m *fakeMemory) ReadWord(addr hal.VirtAddr) uintptr {
	var v uintptr
	for i := 0; i < 8; i++ {
		v |= uintptr(m.bytes[addr+hal.VirtAddr(i)]) << (8 * i)
	}
	return v
}

func (m *fakeMemory) WriteWord(addr hal.VirtAddr, v uintptr) {
	for i := 0; i < 8; i++ {
		m.bytes[addr+hal.VirtAddr(i)] = byte(v >> (8 * i))
	}
}

func (m *fakeMemory) ReadU32(addr hal.VirtAddr) uint32 {
	var v uint32
	for i := 0; i < 4; i++ {
		v |= uint32(m.bytes[addr+hal.VirtAddr(i)]) << (8 * i)
	}
	return v
}

func (m *fakeMemory) WriteU32(addr hal.VirtAddr, v uint32) {
	for i := 0; i < 4; i++ {
		m.bytes[addr+hal.VirtAddr(i)] = byte(v >> (8 * i))
	}
}

func (m *fakeMemory) Copy(dst, src hal.VirtAddr, n int) {
	buf := make([]byte, n)
	for i := 0; i < n; i++ {
		buf[i] = m.bytes[src+hal.VirtAddr(i)]
	}
	for i := 0; i < n; i++ {
		m.bytes[dst+hal.VirtAddr(i)] = buf[i]
	}
}

// fakePages is a PageAllocator that hands out ever-increasing physical
// addresses from a configurable starting point.
type fakePages struct {
	next hal.PhysAddr
}

func (p *fakePages) AllocContiguous(pages int, flags hal.AllocFlags) (hal.PhysAddr, error) {
	addr := p.next
	p.next += hal.PhysAddr(pages * pageSize)
	return addr, nil
}

func (p *fakePages) Free(addr hal.PhysAddr, pages int) {}

// fakeVMem maps physical addresses straight through to virtual ones (the
// fakeMemory backing store is addressed by value, not by any real
// hardware mapping, so identity is the simplest faithful fake).
type fakeVMem struct{}

func (fakeVMem) Map(phys hal.PhysAddr, size uintptr, prot hal.Prot) (hal.VirtAddr, error) {
	return hal.VirtAddr(phys), nil
}
func (fakeVMem) Protect(va hal.VirtAddr, size uintptr, prot hal.Prot) error { return nil }
func (fakeVMem) Unmap(va hal.VirtAddr, size uintptr) error                  { return nil }

// withFakeMemory swaps mem for a fresh fakeMemory for the duration of a
// test.
func withFakeMemory() (*fakeMemory, func()) {
	orig := mem
	fm := newFakeMemory()
	mem = fm
	return fm, func() { mem = orig }
}

// refTD is a small reference type with one reference-typed field at
// offset 8 (past the header), used by mark/compact tests to build a
// two-object chain.
func refTD(name string) *typesys.TD {
	bmp := bitset.New(0)
	bmp.Set(1) // field at byte offset 1*8 is a reference
	return &typesys.TD{
		Kind:         typesys.KindReference,
		Name:         name,
		SizeBytes:    16, // one reference field plus padding
		HasRefBitmap: bmp,
	}
}

// leafTD is a reference type with no reference fields.
func leafTD(name string) *typesys.TD {
	return &typesys.TD{Kind: typesys.KindReference, Name: name, SizeBytes: 8}
}
