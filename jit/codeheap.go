package jit

import (
	"unsafe"

	"github.com/ProtonOS/ProtonOS-sub008/errors"
	"github.com/ProtonOS/ProtonOS-sub008/hal"
	"github.com/ProtonOS/ProtonOS-sub008/typesys"
)

// pageSize is the only page size this tier-0 JIT lays code out in; larger
// method bodies simply consume more pages from CodeHeap.
const pageSize = 4096

// CodeHeap hands out executable memory for compiled method bodies,
// enforcing the write-then-execute discipline spec.md section 4.C
// requires: a page is mapped writable, the emitted bytes are copied in,
// and only then is the mapping transitioned to read-execute — no thread
// ever observes a page that is simultaneously writable and executable.
// Grounded on engine/logger.go's sync.Once one-shot-init idiom, generalized
// from "initialize exactly once" to "commit this method's code exactly
// once" (the JIT lock typesys.MD.CompileOnce already provides the
// exactly-once guarantee at the MD level; CodeHeap only owns turning bytes
// into an executable mapping).
type CodeHeap struct {
	pages hal.PageAllocator
	vmem  hal.VirtualMemory
}

// NewCodeHeap constructs a CodeHeap over the kernel's physical page
// allocator and virtual memory mapper (hal.PageAllocator, hal.VirtualMemory
// — spec.md section 6's "from outside the core" seams).
func NewCodeHeap(pages hal.PageAllocator, vmem hal.VirtualMemory) *CodeHeap {
	return &CodeHeap{pages: pages, vmem: vmem}
}

// Commit copies code into freshly allocated pages and returns the
// executable entry point, following the allocate-write-protect sequence:
// map writable, write, then Protect to read-execute. The pages are never
// freed individually — methods live for the process's lifetime, matching
// spec.md section 4.C's "compiled code is never reclaimed while any thread
// might still be executing it or hold its address".
func (h *CodeHeap) Commit(code []byte) (typesys.CodePtr, error) {
	if len(code) == 0 {
		return 0, errors.Panic(errors.PhaseJIT, "cannot commit an empty method body")
	}

	numPages := (len(code) + pageSize - 1) / pageSize
	phys, err := h.pages.AllocContiguous(numPages, hal.AllocZeroed)
	if err != nil {
		return 0, err
	}

	va, err := h.vmem.Map(phys, uintptr(numPages*pageSize), hal.ProtRead|hal.ProtWrite)
	if err != nil {
		h.pages.Free(phys, numPages)
		return 0, err
	}

	copyToVirtualMemory(va, code)

	if err := h.vmem.Protect(va, uintptr(numPages*pageSize), hal.ProtRead|hal.ProtExec); err != nil {
		return 0, err
	}

	return typesys.CodePtr(va), nil
}

// copyToVirtualMemory writes code into the mapped virtual address. This is
// the one seam a hosted build and a bare-metal build differ on: hosted
// tests (no real MMU) substitute a no-op or a plain-slice copy, while a
// genuine kernel build copies through the mapping hal.VirtualMemory.Map
// returned. Kept as its own function so it is the only thing a test harness
// needs to fake.
var copyToVirtualMemory = func(va hal.VirtAddr, code []byte) {
	dst := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(va))), len(code))
	copy(dst, code)
}

// CompileAndInstall runs all three JIT phases on md's bytecode, commits the
// result to executable memory, and installs it as md's entry point —
// through md.CompileOnce, so concurrent first-calls to the same method
// compile it exactly once (spec.md section 4.B "JIT lock ... at most one
// thread compiles a given MD"). isRefLocal marks md.LocalsSig's
// reference-typed entries for Phase 3's liveness pass.
func CompileAndInstall(md *typesys.MD, heap *CodeHeap, instrs []Instr, ehSpecs []EHRegionSpec, ehMeta []EHRegionMeta, isRefLocal []bool) error {
	return md.CompileOnce(func(m *typesys.MD) (typesys.CodePtr, error) {
		cm, err := Compile(instrs, ehSpecs, BuildEHTable(ehSpecs, ehMeta).Regions, isRefLocal)
		if err != nil {
			return 0, err
		}
		entry, err := heap.Commit(cm.Code)
		if err != nil {
			return 0, err
		}
		m.StackMap = &cm.StackMap
		m.EHTable = &cm.EHTable
		return entry, nil
	})
}
