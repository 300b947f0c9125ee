package typesys

import "github.com/ProtonOS/ProtonOS-sub008/bitset"

// CodePtr is a native code address: either the one-shot JIT trampoline for
// a not-yet-compiled MD, or the emitted entry point after compilation
// (spec.md section 3 "Method descriptor (MD)").
type CodePtr uintptr

// InterfaceMapEntry is one row of a TD's flat interface map: which
// interface TD this entry satisfies, and at what vtable slot offset the
// interface's methods begin (spec.md section 3 invariant 5).
type InterfaceMapEntry struct {
	Interface   *TD
	SlotOffset  int
}

// TD is the canonical Type Descriptor, spec.md section 3. TDs are
// immutable once Publish is called: every field below is set during
// construction (by package loader) and never mutated
// afterward, so concurrent readers need no lock (spec.md section 5 "TD
// table: readers are lock-free after publication").
type TD struct {
	Kind Kind
	Name string // fully qualified, e.g. "MyAssembly.Widgets.Widget"

	SizeBytes uint32
	Align     uint32

	Base    *TD // nullable; base-type pointer
	Element *TD // nullable; array/span element type

	Interfaces []InterfaceMapEntry
	VTable     []CodePtr

	Fields       []FieldInfo
	StaticRegion *StaticRegion

	// HasRefBitmap indexes by pointer-word offset from the start of an
	// instance (i.e. bit i corresponds to byte offset i*8) and is the
	// canonical source of truth for which offsets hold references
	// (spec.md section 3 invariant 2). Array/value-type-in-array tracing
	// uses Element's bitmap repeated per slot instead.
	HasRefBitmap *bitset.BitSet

	Finalizer *MD // nullable

	// TypeArgs is empty for non-generic TDs; for a generic instantiation
	// it holds the type-argument tuple that, together with GenericDef,
	// forms this TD's canonical key (spec.md section 4.B).
	TypeArgs   []*TD
	GenericDef *TD // nullable; the open generic definition instantiated

	published bool
}

// IsArrayLike reports whether a TD is an array, which carries a length
// word per spec.md section 3. Kind has no string value, so no TD is
// recognised here as a string.
func (t *TD) IsArrayLike() bool {
	return t.Kind == KindArray
}

// Publish marks a TD immutable. Called exactly once by the Loader after a
// TD's fields are fully populated (spec.md section 3 "TDs ... are
// immutable once published and globally unique").
func (t *TD) Publish() { t.published = true }

// Published reports whether Publish has been called.
func (t *TD) Published() bool { return t.published }

// InstanceSize returns the number of bytes an instance of this TD
// occupies, excluding the object header for reference types (headers are
// accounted for separately by the allocator, since value types embedded
// inline never carry one — spec.md section 4.A "Algorithm (layout)").
func (t *TD) InstanceSize() uint32 { return t.SizeBytes }
