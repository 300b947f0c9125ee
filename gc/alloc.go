package gc

import (
	"github.com/ProtonOS/ProtonOS-sub008/hal"
	"github.com/ProtonOS/ProtonOS-sub008/typesys"
)

// Heap is the allocator a CPU's thread calls into: it owns one TLAB over
// the shared SOH and routes anything at or above LOHThreshold to the
// shared LOH instead (spec.md section 4.D "a configurable threshold
// (e.g., 85 KiB) determines SOH vs LOH placement"). One Heap exists per
// CPU so the TLAB fast path stays lock-free; the LOH fallback is shared
// and serializes on LOH.mu only for objects large enough that the extra
// locking is noise next to the mapping cost itself.
type Heap struct {
	tlab *TLAB
	loh  *LOH
}

// NewHeap builds a per-CPU allocator over a shared SOH and LOH.
func NewHeap(soh *SOH, loh *LOH) *Heap {
	return &Heap{tlab: NewTLAB(soh), loh: loh}
}

// Alloc allocates a fixed-size instance of td, choosing the SOH's TLAB or
// the LOH by comparing size against LOHThreshold.
func (h *Heap) Alloc(td *typesys.TD, size uint32) (hal.VirtAddr, error) {
	if size >= LOHThreshold {
		return h.loh.Alloc(td, size)
	}
	return h.tlab.Alloc(td, size)
}

// AllocArray allocates an array of length elements of td.Element, choosing
// the SOH's TLAB or the LOH by the array's total computed size.
func (h *Heap) AllocArray(td *typesys.TD, length uint32) (hal.VirtAddr, error) {
	payload := uint32(typesys.ArrayHeaderWords-typesys.HeaderWords)*8 + length*elementSlotSize(td.Element)
	if payload >= LOHThreshold {
		return h.loh.AllocArray(td, length)
	}
	return h.tlab.AllocArray(td, length)
}
