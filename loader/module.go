// Package loader implements spec.md section 4.B, Assembly Loader / Resolver:
// it consumes a hal.ParsedModule (resolved-symbol input from an external
// bytecode reader), attaches method bodies to typesys.MDs, and resolves
// cross-module references lazily — on first entry to an MD's trampoline the
// loader must have every TD the method references already resolved before
// the JIT begins.
package loader

import (
	"context"
	"sync"

	"github.com/ProtonOS/ProtonOS-sub008/errors"
	"github.com/ProtonOS/ProtonOS-sub008/hal"
	"github.com/ProtonOS/ProtonOS-sub008/typesys"
)

// ModuleHandle is a loaded module: its TDs and MDs indexed by their position
// in the originating hal.ParsedModule's tables, plus the cross-module
// Namespace it is registered under for lazy resolution by other modules.
type ModuleHandle struct {
	Name    string
	Version string

	types   []*typesys.TD
	methods []*typesys.MD

	// fieldOwner[i] is the TD owning the i-th row of the module's flat
	// FieldDef table, and fieldLocalIndex[i] is that field's position
	// within fieldOwner[i].Fields — together they let ResolveToken answer
	// a TokenFieldRef in O(1) instead of scanning every TD.
	fieldOwner      []*typesys.TD
	fieldLocalIndex []int

	entryPointRVA uint32
	rvaToMethod   map[uint32]int

	mu sync.RWMutex
}

// Loader owns the root Namespace every loaded module registers into, and
// the generic instantiation table shared across all of them (spec.md
// section 4.B: "a shared table keyed by (generic-definition,
// type-argument-tuple)"). Grounded on linker.Linker: a root Namespace plus
// a lazily-created resolver, both guarded by one mutex.
type Loader struct {
	reader hal.BytecodeReader

	root *Namespace

	instantiations *typesys.InstantiationTable

	mu      sync.RWMutex
	modules map[string]*ModuleHandle
}

// New creates a Loader reading modules through reader (the external
// bytecode-parsing collaborator, spec.md section 6).
func New(reader hal.BytecodeReader) *Loader {
	return &Loader{
		reader:         reader,
		root:           NewNamespace(),
		instantiations: typesys.NewInstantiationTable(),
		modules:        make(map[string]*ModuleHandle),
	}
}

// LoadModule parses bytes through the BytecodeReader, builds a TD for every
// TypeDefRow and an MD for every MethodDefRow, lays out fields, builds each
// TD's interface map (no vtable is built: TD.VTable stays empty), and
// registers the module in the Loader's namespace so later modules can
// resolve cross-module references against it. References to types outside
// this module are NOT resolved here — ResolveToken resolves them lazily, on
// an MD's first trampoline entry (spec.md section 4.B).
func (l *Loader) LoadModule(ctx context.Context, bytes []byte) (*ModuleHandle, error) {
	parsed, err := l.reader.OpenModule(ctx, bytes)
	if err != nil {
		return nil, errors.TypeLoadFailed("<unknown>", "bytecode reader: "+err.Error())
	}

	h := &ModuleHandle{
		Name:          parsed.Name,
		Version:       parsed.Version,
		entryPointRVA: parsed.EntryPointRVA,
		rvaToMethod:   make(map[uint32]int),
	}

	if err := buildTypes(h, parsed); err != nil {
		return nil, err
	}
	if err := buildFields(h, parsed); err != nil {
		return nil, err
	}
	if err := buildMethods(h, parsed); err != nil {
		return nil, err
	}
	publishTypes(h)

	l.mu.Lock()
	l.modules[parsed.Name] = h
	l.mu.Unlock()

	l.root.Instance(parsed.Name).bind(h)

	return h, nil
}

// Module returns the handle for a previously loaded module by name (spec.md
// section 6 "Reflection APIs: enumerate types of a module ..." starts from
// a named module, not a handle the caller already has in hand).
func (l *Loader) Module(name string) (*ModuleHandle, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	h, ok := l.modules[name]
	if !ok {
		return nil, errors.MissingMember(name, "module not loaded")
	}
	return h, nil
}

// buildTypes creates one TD per TypeDefRow, in row order so BaseTypeRef
// indices (which only ever point to an earlier row within the same module —
// cross-module base types are out of LoadModule's scope, see ResolveToken)
// resolve against already-built entries.
func buildTypes(h *ModuleHandle, parsed *hal.ParsedModule) error {
	h.types = make([]*typesys.TD, len(parsed.TypeDefs))

	for i, row := range parsed.TypeDefs {
		kind := typesys.KindReference
		switch {
		case row.IsInterface:
			kind = typesys.KindInterface
		case row.IsValueType:
			kind = typesys.KindValue
		}

		td := &typesys.TD{
			Kind: kind,
			Name: row.Name,
		}

		if row.BaseTypeRef >= 0 {
			if row.BaseTypeRef >= i {
				return errors.TypeLoadFailed(row.Name, "base type reference is not yet defined in this module")
			}
			td.Base = h.types[row.BaseTypeRef]
		}

		h.types[i] = td
	}

	for i, row := range parsed.TypeDefs {
		td := h.types[i]
		var ifaces []*typesys.TD
		for _, ref := range row.Interfaces {
			if ref < 0 || ref >= len(h.types) {
				return errors.MissingMember(row.Name, "interface reference out of range")
			}
			ifaces = append(ifaces, h.types[ref])
		}
		// Interface method counts are not known here, so every interface
		// is given a width of zero and each map entry gets SlotOffset 0;
		// buildMethods does not revisit the map.
		widths := make([]int, len(ifaces))
		td.Interfaces = typesys.BuildInterfaceMap(td, ifaces, widths, 0)
	}

	return nil
}

// publishTypes marks every TD in the module immutable once its fields have
// been populated. Must run after buildFields.
func publishTypes(h *ModuleHandle) {
	for _, td := range h.types {
		td.Publish()
	}
}

// prim* are shared, pre-published TDs for hal.PrimitiveRef*'s well-known
// scalar kinds. These never vary across modules, so one instance per kind
// is reused rather than rebuilt per load.
var (
	primInt32     = &typesys.TD{Kind: typesys.KindPrimitive, Name: "int32", SizeBytes: 4, Align: 4}
	primInt64     = &typesys.TD{Kind: typesys.KindPrimitive, Name: "int64", SizeBytes: 8, Align: 8}
	primFloat64   = &typesys.TD{Kind: typesys.KindPrimitive, Name: "float64", SizeBytes: 8, Align: 8}
	primObjectRef = &typesys.TD{Kind: typesys.KindReference, Name: "object", SizeBytes: 8, Align: 8}
)

func init() {
	primInt32.Publish()
	primInt64.Publish()
	primFloat64.Publish()
	primObjectRef.Publish()
}

// resolveFieldType turns a FieldDefRow.TypeRef into a *typesys.TD: one of
// the shared primitive TDs for a PrimitiveRef* sentinel, or a same-module
// TypeDefRow by index.
func resolveFieldType(h *ModuleHandle, ref int) (*typesys.TD, error) {
	switch ref {
	case hal.PrimitiveRefInt32:
		return primInt32, nil
	case hal.PrimitiveRefInt64:
		return primInt64, nil
	case hal.PrimitiveRefFloat64:
		return primFloat64, nil
	case hal.PrimitiveRefObjectRef:
		return primObjectRef, nil
	}
	if ref < 0 || ref >= len(h.types) {
		return nil, errors.MissingMember(h.Name, "field type reference out of range")
	}
	return h.types[ref], nil
}

// buildFields lays out each TD's instance fields in TypeDefRow.FieldStart
// order, using typesys.LayoutFields, and records the flat
// FieldDef-index-to-(TD, local-index) correlation ResolveToken needs for
// TokenFieldRef.
func buildFields(h *ModuleHandle, parsed *hal.ParsedModule) error {
	h.fieldOwner = make([]*typesys.TD, len(parsed.FieldDefs))
	h.fieldLocalIndex = make([]int, len(parsed.FieldDefs))

	for ti, trow := range parsed.TypeDefs {
		td := h.types[ti]
		end := len(parsed.FieldDefs)
		if ti+1 < len(parsed.TypeDefs) {
			end = parsed.TypeDefs[ti+1].FieldStart
		}

		var baseSize, baseAlign uint32
		if td.Base != nil {
			baseSize, baseAlign = td.Base.SizeBytes, td.Base.Align
		} else {
			baseAlign = 1
		}

		var instanceSpecs, staticSpecs []typesys.FieldSpec
		var instanceRows, staticRows []int

		for fi := trow.FieldStart; fi < end && fi < len(parsed.FieldDefs); fi++ {
			row := parsed.FieldDefs[fi]
			ft, err := resolveFieldType(h, row.TypeRef)
			if err != nil {
				return err
			}
			spec := typesys.FieldSpec{Name: row.Name, Type: ft}
			if row.IsStatic {
				staticSpecs = append(staticSpecs, spec)
				staticRows = append(staticRows, fi)
			} else {
				instanceSpecs = append(instanceSpecs, spec)
				instanceRows = append(instanceRows, fi)
			}
		}

		laidOut, size, align, refBitmap := typesys.LayoutFields(instanceSpecs, baseSize, baseAlign)
		td.Fields = laidOut
		td.SizeBytes = size
		td.Align = align
		td.HasRefBitmap = refBitmap

		for localIdx, fi := range instanceRows {
			h.fieldOwner[fi] = td
			h.fieldLocalIndex[fi] = localIdx
		}

		if len(staticSpecs) > 0 {
			td.StaticRegion = typesys.LayoutStatics(staticSpecs)
			for localIdx, fi := range staticRows {
				h.fieldOwner[fi] = td
				// Static fields are addressed by RefOffsets/Bytes order,
				// not by typesys.FieldInfo index — record the static
				// sub-table index with a negative-offset encoding so
				// ResolveToken can tell the two tables apart.
				h.fieldLocalIndex[fi] = -(localIdx + 1)
			}
		}
	}

	return nil
}

// buildMethods creates one MD per MethodDefRow, installs a trampoline entry
// point, and wires each MD to its DeclaringTD by consulting the owning
// TypeDefRow's MethodStart range.
func buildMethods(h *ModuleHandle, parsed *hal.ParsedModule) error {
	h.methods = make([]*typesys.MD, len(parsed.MethodDefs))

	for ti, trow := range parsed.TypeDefs {
		end := len(parsed.MethodDefs)
		if ti+1 < len(parsed.TypeDefs) {
			end = parsed.TypeDefs[ti+1].MethodStart
		}
		for mi := trow.MethodStart; mi < end && mi < len(parsed.MethodDefs); mi++ {
			row := parsed.MethodDefs[mi]
			attrs := typesys.Attrs(0)
			if row.IsStatic {
				attrs |= typesys.AttrStatic
			} else {
				attrs |= typesys.AttrHasThis
			}
			if row.IsVirtual {
				attrs |= typesys.AttrVirtual
			}
			if row.IsPInvoke {
				attrs |= typesys.AttrPInvoke
			}

			md := &typesys.MD{
				DeclaringTD: h.types[ti],
				Name:        row.Name,
				Attrs:       attrs,
			}
			md.SetTrampoline(trampolineMarker)

			h.methods[mi] = md
			if row.BodyRVA != 0 {
				h.rvaToMethod[row.BodyRVA] = mi
			}
		}
	}

	return nil
}

// trampolineMarker is the sentinel CodePtr installed before an MD has ever
// been through CompileOnce. It is never a valid code address (code heap
// pages start above 0), so the JIT can tell "not yet compiled" apart from
// "compiled to address 0", which cannot occur.
const trampolineMarker = typesys.CodePtr(0)

// FindEntryPoint returns the MD at the module's declared entry-point RVA
// (spec.md section 4.B).
func (h *ModuleHandle) FindEntryPoint() (*typesys.MD, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	idx, ok := h.rvaToMethod[h.entryPointRVA]
	if !ok {
		return nil, errors.MissingMember(h.Name, "module has no entry point at its declared RVA")
	}
	return h.methods[idx], nil
}

// Type returns the TD at index i within this module's TypeDef table.
func (h *ModuleHandle) Type(i int) (*typesys.TD, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if i < 0 || i >= len(h.types) {
		return nil, errors.MissingMember(h.Name, "type index out of range")
	}
	return h.types[i], nil
}

// Method returns the MD at index i within this module's MethodDef table.
func (h *ModuleHandle) Method(i int) (*typesys.MD, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if i < 0 || i >= len(h.methods) {
		return nil, errors.MissingMember(h.Name, "method index out of range")
	}
	return h.methods[i], nil
}
