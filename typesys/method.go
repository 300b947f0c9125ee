package typesys

import (
	"sync"
	"sync/atomic"
)

// Attrs are the method attribute flags of spec.md section 3 "Method
// descriptor (MD)".
type Attrs uint8

const (
	AttrStatic Attrs = 1 << iota
	AttrVirtual
	AttrHasThis
	AttrPInvoke
)

func (a Attrs) Has(f Attrs) bool { return a&f != 0 }

// Signature is a method's parameter and return TDs.
type Signature struct {
	Params []*TD
	Return *TD // nil for void
}

// MD is the canonical Method Descriptor, spec.md section 3. Its native
// entry point mutates exactly once, from a trampoline to the JIT-compiled
// code address, guarded by CompileOnce — this is the per-MD JIT lock of
// DESIGN.md's Open Question on initialization vs. JIT locks.
type MD struct {
	DeclaringTD *TD
	Name        string
	Sig         Signature

	Bytecode  []byte
	LocalsSig []*TD

	Attrs Attrs

	// entry holds the current CodePtr: the trampoline until compiled,
	// then the emitted native entry point.
	entry atomic.Uintptr

	compileOnce sync.Once

	// StackMap and EHTable are filled by the JIT during Phase 3 (spec.md
	// section 4.C). Nil until the method is compiled.
	StackMap *StackMap
	EHTable  *EHTable
}

// Entry returns the method's current native entry point: the trampoline
// before compilation, the compiled code address after.
func (m *MD) Entry() CodePtr { return CodePtr(m.entry.Load()) }

// SetTrampoline installs the initial one-shot trampoline address. Called
// once by the Loader when the MD is created.
func (m *MD) SetTrampoline(trampoline CodePtr) {
	m.entry.Store(uintptr(trampoline))
}

// CompileOnce runs compile exactly once for this MD, then atomically flips
// the entry point from the trampoline to the address compile returns. If
// compile fails, the trampoline remains installed so a subsequent call
// re-enters the trampoline (which the Loader/JIT is expected to treat as
// "not yet compiled" and retry, or propagate the failure as a managed
// exception per spec.md section 4.B).
func (m *MD) CompileOnce(compile func(*MD) (CodePtr, error)) error {
	var compileErr error
	m.compileOnce.Do(func() {
		addr, err := compile(m)
		if err != nil {
			compileErr = err
			return
		}
		m.entry.Store(uintptr(addr))
	})
	return compileErr
}

// Compiled reports whether this MD's trampoline has been flipped to
// compiled code.
func (m *MD) Compiled() bool {
	return m.StackMap != nil
}

// DelegateDescriptor represents a bound or unbound method reference used
// for delegate invocation (SPEC_FULL.md "delegate invocation" — required
// by spec.md section 4.C but with no section 3 data-model entry).
// Single-cast delegates have len(InvocationList) == 1; a multicast
// delegate's Invoke calls each entry in order, returning the last result.
type DelegateDescriptor struct {
	InvocationList []BoundMethod
}

// BoundMethod pairs an MD with an optional bound receiver. This is nil for
// a delegate over a static method.
type BoundMethod struct {
	Target *MD
	This   uintptr // 0 (null) for a static-method delegate
}

// NewSingleDelegate builds a single-cast delegate.
func NewSingleDelegate(target *MD, this uintptr) *DelegateDescriptor {
	return &DelegateDescriptor{InvocationList: []BoundMethod{{Target: target, This: this}}}
}

// Combine returns a new multicast delegate invoking a then b's entries in
// order (the combine semantics required by spec.md section 4.C's
// "delegate invocation (single and multicast)").
func (d *DelegateDescriptor) Combine(other *DelegateDescriptor) *DelegateDescriptor {
	combined := make([]BoundMethod, 0, len(d.InvocationList)+len(other.InvocationList))
	combined = append(combined, d.InvocationList...)
	combined = append(combined, other.InvocationList...)
	return &DelegateDescriptor{InvocationList: combined}
}
