package typesys

// Safepoint is one entry of an MD's stackmap: the set of live references
// in registers and stack slots at a given native-code PC offset (spec.md
// section 3 invariant 3, section 4.C phase 3). Built by package jit;
// consumed by package gc during root scanning.
type Safepoint struct {
	// PCOffset is the byte offset from the method's native entry point —
	// either a call-site return address or a back-edge poll location.
	PCOffset uint32

	// LiveRegs lists the abstract register ids (0-15, matching the x86-64
	// general-purpose register encoding jit/x86 uses) holding a live
	// reference at this PC.
	LiveRegs []uint8

	// LiveSlots lists frame-relative byte offsets (from the frame base)
	// holding a live reference at this PC.
	LiveSlots []int32

	// InteriorSlots parallels LiveSlots: true at index i means the
	// reference at LiveSlots[i] is an interior pointer (points into the
	// middle of an object, e.g. a by-ref parameter) rather than an
	// object-start reference (spec.md section 9 "Interior pointers").
	// GC compaction must adjust interior pointers by the same delta
	// applied to their referent, not treat them as object headers.
	InteriorSlots []bool
}

// StackMap is an MD's full side table of safepoints, sorted ascending by
// PCOffset so gc can binary-search it during a stop-the-world root scan.
type StackMap struct {
	Safepoints []Safepoint
}

// At returns the Safepoint covering pcOffset, and whether one was found.
// A gc encountering a parked thread whose PC has no covering Safepoint is
// a core invariant violation (spec.md section 7: "stackmap absent at a
// safepoint" panics, it does not raise a managed exception).
func (sm *StackMap) At(pcOffset uint32) (Safepoint, bool) {
	lo, hi := 0, len(sm.Safepoints)
	for lo < hi {
		mid := (lo + hi) / 2
		if sm.Safepoints[mid].PCOffset < pcOffset {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(sm.Safepoints) && sm.Safepoints[lo].PCOffset == pcOffset {
		return sm.Safepoints[lo], true
	}
	return Safepoint{}, false
}

// HandlerKind classifies an EHRegion's handler (spec.md section 4.E).
type HandlerKind uint8

const (
	HandlerCatch HandlerKind = iota
	HandlerFilter
	HandlerFinally
	HandlerFault
)

// EHRegion is one try-region entry of an MD's EH table: a PC range plus
// its handler (spec.md section 3 invariant 4).
type EHRegion struct {
	TryStartPC uint32
	TryEndPC   uint32

	Kind HandlerKind

	// HandlerPC is the funclet entry point for Catch/Finally/Fault; for
	// Filter it is the catch body entered once the filter funclet (at
	// FilterPC) returns non-zero.
	HandlerPC uint32
	FilterPC  uint32 // 0 unless Kind == HandlerFilter

	// CatchTD is nil for Finally/Fault regions.
	CatchTD *TD

	// Nesting is this region's depth, with 0 the outermost try in the
	// method. Regions at the same PC range with higher Nesting are
	// visited first during both EH passes (spec.md section 4.E "innermost
	// to outermost").
	Nesting int
}

// EHTable is an MD's full side table of try-regions, covering every byte
// offset of the method's emitted code (spec.md section 3 invariant 4).
type EHTable struct {
	Regions []EHRegion
}

// Enclosing returns every region whose PC range contains pc, ordered
// innermost-first (highest Nesting first), matching the order spec.md
// section 4.E's two passes must visit them in.
func (t *EHTable) Enclosing(pc uint32) []EHRegion {
	var out []EHRegion
	for _, r := range t.Regions {
		if pc >= r.TryStartPC && pc < r.TryEndPC {
			out = append(out, r)
		}
	}
	// Stable sort by descending Nesting: innermost (highest nesting)
	// first. Regions are few per method; insertion sort is adequate and
	// keeps this allocation-free on the steady-state path length.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Nesting > out[j-1].Nesting; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
