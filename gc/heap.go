// Package gc implements the managed runtime's two heap regions and the
// stop-the-world mark-sweep-compact collector that reclaims them (spec.md
// section 4.D). Objects are addressed as raw hal.VirtAddr values rather
// than Go pointers, the same convention jit/codeheap.go uses for emitted
// code: the memory backing a hal.VirtAddr is owned by the kernel's own
// page tables, not by the Go runtime's heap.
package gc

import (
	"sync"
	"unsafe"

	"github.com/ProtonOS/ProtonOS-sub008/errors"
	"github.com/ProtonOS/ProtonOS-sub008/hal"
	"github.com/ProtonOS/ProtonOS-sub008/typesys"
)

const pageSize = 4096

// tlabBytes is the size of one thread-local allocation buffer refill off
// the SOH's global bump pointer (spec.md section 4.D: "bump-pointer
// allocation in SOH ... with a TLAB per CPU").
const tlabBytes = 16 * 1024

// sohGrowPages is the minimum number of pages SOH.growLocked reserves each
// time the bump pointer runs off the end of the mapped region.
const sohGrowPages = 64 // 256 KiB per growth step

// LOHThreshold is the size, in bytes, at or above which an allocation is
// routed to the large-object heap instead of the SOH (spec.md section
// 4.D "a configurable threshold (e.g., 85 KiB)").
const LOHThreshold = 85 * 1024

// memoryAccess is the one seam between the GC's object-layout logic and
// the raw bytes a hal.VirtAddr names, mirroring jit/codeheap.go's
// copyToVirtualMemory swap point: production code reads and writes
// through real mapped memory via unsafe, while hosted tests substitute a
// plain byte-addressable fake with no MMU underneath it.
type memoryAccess interface {
	ReadWord(addr hal.VirtAddr) uintptr
	WriteWord(addr hal.VirtAddr, v uintptr)
	ReadU32(addr hal.VirtAddr) uint32
	WriteU32(addr hal.VirtAddr, v uint32)
	Copy(dst, src hal.VirtAddr, n int)
}

// mem is the active memoryAccess implementation. Tests swap this for a
// fake; a genuine kernel build never does.
var mem memoryAccess = realMemory{}

type realMemory struct{}

func (realMemory) ReadWord(addr hal.VirtAddr) uintptr {
	return *(*uintptr)(unsafe.Pointer(uintptr(addr)))
}

func (realMemory) WriteWord(addr hal.VirtAddr, v uintptr) {
	*(*uintptr)(unsafe.Pointer(uintptr(addr))) = v
}

func (realMemory) ReadU32(addr hal.VirtAddr) uint32 {
	return *(*uint32)(unsafe.Pointer(uintptr(addr)))
}

func (realMemory) WriteU32(addr hal.VirtAddr, v uint32) {
	*(*uint32)(unsafe.Pointer(uintptr(addr))) = v
}

func (realMemory) Copy(dst, src hal.VirtAddr, n int) {
	dstSlice := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(dst))), n)
	srcSlice := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(src))), n)
	copy(dstSlice, srcSlice)
}

// SOH is the small-object heap: a single contiguous, linearly growable
// region bump-allocated into per-CPU TLABs. Grounded on
// linker/internal/memory/wrapper.go's pattern of a linear region that
// grows by fixed increments on demand, retargeted here from WASM
// memory.grow pages to native page-backed TLAB refills.
type SOH struct {
	mu    sync.Mutex
	pages hal.PageAllocator
	vmem  hal.VirtualMemory

	base  hal.VirtAddr
	next  hal.VirtAddr // bump pointer: next unallocated byte
	limit hal.VirtAddr // end of the currently mapped region
}

// NewSOH constructs an SOH over the kernel's physical page allocator and
// virtual memory mapper. No pages are reserved until the first refill.
func NewSOH(pages hal.PageAllocator, vmem hal.VirtualMemory) *SOH {
	return &SOH{pages: pages, vmem: vmem}
}

// Base returns the start of the mapped SOH region (0 before the first
// growth) — the collector's linear walk (mark.go, compact.go) starts here.
func (h *SOH) Base() hal.VirtAddr { return h.base }

// Top returns the current bump pointer: the exclusive end of object data
// written so far.
func (h *SOH) Top() hal.VirtAddr {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.next
}

// refill carves at least minBytes off the global bump pointer, growing
// the mapped region first if the current one can't satisfy it, and
// returns the new chunk's bounds for a TLAB to allocate out of.
func (h *SOH) refill(minBytes int) (hal.VirtAddr, hal.VirtAddr, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	need := tlabBytes
	if minBytes > need {
		need = minBytes
	}
	if h.next+hal.VirtAddr(need) > h.limit {
		if err := h.growLocked(need); err != nil {
			return 0, 0, err
		}
	}
	start := h.next
	h.next += hal.VirtAddr(need)
	return start, start + hal.VirtAddr(need), nil
}

// growLocked maps at least minBytes of additional writable pages onto the
// end of the SOH region. Callers hold h.mu.
func (h *SOH) growLocked(minBytes int) error {
	pagesNeeded := (minBytes + pageSize - 1) / pageSize
	if pagesNeeded < sohGrowPages {
		pagesNeeded = sohGrowPages
	}
	phys, err := h.pages.AllocContiguous(pagesNeeded, hal.AllocZeroed)
	if err != nil {
		return errors.OutOfMemory("page allocator exhausted growing the small-object heap")
	}
	va, err := h.vmem.Map(phys, uintptr(pagesNeeded*pageSize), hal.ProtRead|hal.ProtWrite)
	if err != nil {
		h.pages.Free(phys, pagesNeeded)
		return err
	}
	if h.base == 0 {
		h.base = va
		h.next = va
	}
	h.limit = va + hal.VirtAddr(pagesNeeded*pageSize)
	return nil
}

// resetTop rewinds the bump pointer, called by the collector after
// compaction has packed every surviving object toward the region's base
// (spec.md section 4.D step 5 "advance the bump pointer").
func (h *SOH) resetTop(newTop hal.VirtAddr) {
	h.mu.Lock()
	h.next = newTop
	h.mu.Unlock()
}

// TLAB is a per-CPU thread-local allocation buffer: bump allocation within
// a chunk carved from an SOH, keeping the hot allocation path lock-free
// except on refill (spec.md section 4.D).
type TLAB struct {
	soh         *SOH
	next, limit hal.VirtAddr
}

// NewTLAB returns an empty TLAB that refills lazily on first use.
func NewTLAB(soh *SOH) *TLAB { return &TLAB{soh: soh} }

// Alloc bump-allocates room for an instance of td, writes its object
// header, and returns the new object's address. size is the instance
// payload size in bytes (typesys.TD.InstanceSize() for a fixed-size type,
// or the length-word-plus-elements size AllocArray computes for an array).
// Callers must route anything at or above LOHThreshold to the LOH instead
// — Alloc does not check the threshold itself, since a TLAB never holds
// large-object-sized chunks.
func (t *TLAB) Alloc(td *typesys.TD, size uint32) (hal.VirtAddr, error) {
	total := align8(int(typesys.HeaderWords*8) + int(size))
	if t.next+hal.VirtAddr(total) > t.limit {
		start, limit, err := t.soh.refill(total)
		if err != nil {
			return 0, err
		}
		t.next, t.limit = start, limit
	}
	addr := t.next
	t.next += hal.VirtAddr(total)
	writeHeader(addr, td, 0)
	return addr, nil
}

func align8(n int) int { return (n + 7) &^ 7 }

// writeHeader installs td's address and the given GC bits at addr's
// object header word (typesys.PackHeader / spec.md section 3).
func writeHeader(addr hal.VirtAddr, td *typesys.TD, bits typesys.HeaderBits) {
	word := typesys.PackHeader(uintptr(unsafe.Pointer(td)), bits)
	mem.WriteWord(addr, word)
}

// readHeader recovers the TD and GC bits packed at addr's header word.
func readHeader(addr hal.VirtAddr) (*typesys.TD, typesys.HeaderBits) {
	word := mem.ReadWord(addr)
	tdAddr, bits := typesys.UnpackHeader(word)
	return (*typesys.TD)(unsafe.Pointer(tdAddr)), bits
}

// elementSlotSize returns the number of bytes one array slot of the given
// element type occupies: a pointer width for reference-like elements
// (arrays store pointers to the referent, never the instance inline),
// the value type's own instance size otherwise.
func elementSlotSize(element *typesys.TD) uint32 {
	switch element.Kind {
	case typesys.KindReference, typesys.KindArray, typesys.KindInterface:
		return 8
	default:
		return element.InstanceSize()
	}
}

// objectSize returns the total bytes (header plus payload) the object at
// addr occupies, used by the collector's linear SOH walk, which must
// discover each object's extent to find the next header (spec.md section
// 4.D step 3).
func objectSize(addr hal.VirtAddr, td *typesys.TD) uint32 {
	if td.Kind == typesys.KindArray {
		length := mem.ReadU32(addr + hal.VirtAddr(typesys.HeaderWords*8))
		return uint32(typesys.ArrayHeaderWords*8) + length*elementSlotSize(td.Element)
	}
	return uint32(typesys.HeaderWords*8) + td.InstanceSize()
}

// AllocArray computes an array's total size from its element count,
// allocates it through t, and writes the length word every array carries
// immediately after the object header (spec.md section 3 "a length word").
func (t *TLAB) AllocArray(td *typesys.TD, length uint32) (hal.VirtAddr, error) {
	payload := uint32(typesys.ArrayHeaderWords-typesys.HeaderWords)*8 + length*elementSlotSize(td.Element)
	addr, err := t.Alloc(td, payload)
	if err != nil {
		return 0, err
	}
	mem.WriteU32(addr+hal.VirtAddr(typesys.HeaderWords*8), length)
	return addr, nil
}
