// Package hal declares the collaborator interfaces the managed runtime core
// consumes from the layer below it (spec.md section 6, "From outside the
// core"). UEFI handoff, ACPI, GDT/IDT/TSS setup, the physical/virtual memory
// primitives themselves, and device drivers are all out of scope (spec.md
// section 1) — this package only names the seams the core calls through.
package hal

import "context"

// PageAllocator hands out physical pages. Out of scope beyond this
// interface: the physical page allocator itself.
type PageAllocator interface {
	// AllocContiguous reserves a run of physically contiguous pages.
	AllocContiguous(pages int, flags AllocFlags) (PhysAddr, error)
	Free(addr PhysAddr, pages int)
}

// AllocFlags qualifies a PageAllocator request.
type AllocFlags uint32

const (
	AllocZeroed AllocFlags = 1 << iota
	AllocDMA32
)

// PhysAddr is an opaque physical address handed back by PageAllocator and
// consumed by VirtualMemory.
type PhysAddr uintptr

// VirtAddr is an opaque virtual address.
type VirtAddr uintptr

// Prot is a page protection bitmask.
type Prot uint32

const (
	ProtRead Prot = 1 << iota
	ProtWrite
	ProtExec
)

// VirtualMemory maps, reprotects, and unmaps pages. The JIT's
// executable-memory discipline (spec.md section 4.C) depends on Map
// producing a writable mapping and Protect later transitioning it to
// read-execute, never both at once.
type VirtualMemory interface {
	Map(phys PhysAddr, size uintptr, prot Prot) (VirtAddr, error)
	Protect(va VirtAddr, size uintptr, prot Prot) error
	Unmap(va VirtAddr, size uintptr) error
}

// InterruptHandler is invoked on the CPU that took the interrupt. It must
// not allocate and does not participate in GC root scanning (spec.md
// section 4.F).
type InterruptHandler func(vector int)

// Interrupt registers vector handlers and acknowledges delivery. GDT/IDT/TSS
// setup and APIC programming live below this interface, out of scope.
type Interrupt interface {
	Register(vector int, handler InterruptHandler)
	EOI(vector int)
}

// Timer arms the APIC local timer that drives scheduler ticks and GC
// safepoint polling cadence.
type Timer interface {
	ArmOneShot(ns uint64)
	ArmPeriodic(ns uint64)
}

// CPUInfo describes one logical CPU as enumerated by firmware/ACPI, out of
// scope beyond this return shape.
type CPUInfo struct {
	ID       int
	NUMANode int
	APICID   uint32
}

// CPU enumerates topology. Bring-up of each CPU (the context-switch
// trampoline, GS-base setup) is out of scope.
type CPU interface {
	Topology() []CPUInfo
}

// ParsedModule is the resolved-symbol view of a loaded bytecode assembly
// that BytecodeReader exposes. Table shapes are modeled on a CLR-style
// metadata format (TypeDef/MethodDef/FieldDef/Signature tables, a COM+
// header carrying the entry-point token) — see DESIGN.md for the
// saferwall-pe grounding of these field names. Bytecode file format parsing
// itself (PE/metadata tables) is out of scope (spec.md section 1).
type ParsedModule struct {
	Name         string
	Version      string
	TypeDefs     []TypeDefRow
	MethodDefs   []MethodDefRow
	FieldDefs    []FieldDefRow
	Signatures   [][]byte
	Resources    [][]byte
	EntryPointRVA uint32
}

// TypeDefRow is one row of a ParsedModule's type-definition table.
type TypeDefRow struct {
	Name        string
	Namespace   string
	BaseTypeRef int // index into an external type-ref table, -1 if none
	Interfaces  []int
	FieldStart  int
	MethodStart int
	IsValueType bool
	IsInterface bool
}

// MethodDefRow is one row of a ParsedModule's method-definition table.
type MethodDefRow struct {
	Name           string
	SignatureIndex int
	BodyRVA        uint32 // 0 for abstract/pinvoke methods
	IsStatic       bool
	IsVirtual      bool
	IsPInvoke      bool
	LocalsSigIndex int
}

// FieldDefRow is one row of a ParsedModule's field-definition table.
// "Resolved-symbol input" (spec.md section 4.B) means the reader has
// already turned the field's raw signature blob into a usable type
// reference rather than handing the loader opaque metadata bytes to
// decode: TypeRef is a PrimitiveRef* constant, or — if >= 0 — the index of
// a TypeDefRow elsewhere in this same ParsedModule.
type FieldDefRow struct {
	Name     string
	TypeRef  int
	IsStatic bool
}

// PrimitiveRef* are the well-known primitive type references a
// FieldDefRow.TypeRef or MethodDefRow signature slot may carry instead of a
// TypeDef index.
const (
	PrimitiveRefInt32 = -1 - iota
	PrimitiveRefInt64
	PrimitiveRefFloat64
	PrimitiveRefObjectRef
)

// BytecodeReader opens a resolved-symbol view of a module's bytes. The
// parser behind it (PE/metadata tables) is out of scope (spec.md section
// 1); the core only consumes the ParsedModule it returns.
type BytecodeReader interface {
	OpenModule(ctx context.Context, bytes []byte) (*ParsedModule, error)
}

// Console is the one-way diagnostic sink the core logs through (spec.md
// section 6). It is not a terminal: no raw-mode, no read path — just a
// write, matching the out-of-scope "serial console" driver beneath it.
type Console interface {
	Write(s string)
}
