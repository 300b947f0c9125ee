package loader

import "github.com/ProtonOS/ProtonOS-sub008/typesys"

// Resolve implements spec.md section 4.A's Resolve(definition,
// type-arguments) → TD: returns the canonical generic-instantiation TD for
// (def, args), building it with the Loader's own field/vtable-layout logic
// on first use. The Loader, not typesys, owns this entry point because
// building an instantiation's TD requires the same TypeDef-row layout
// machinery LoadModule uses — typesys.InstantiationTable only supplies the
// keyed cache, not the construction.
func (l *Loader) Resolve(def *typesys.TD, args []*typesys.TD) *typesys.TD {
	return l.instantiations.GetOrCreate(def, args, func() *typesys.TD {
		return instantiate(def, args)
	})
}

// instantiate builds a closed TD from an open generic definition and a
// type-argument tuple: same layout, vtable, and interface map as def, with
// TypeArgs recorded so the JIT can decide per spec.md section 4.B whether
// this instantiation shares a code body with another ("reference-type
// instantiations may share a single code body keyed by 'canonical
// reference'; value-type instantiations compile a distinct body per key").
func instantiate(def *typesys.TD, args []*typesys.TD) *typesys.TD {
	inst := &typesys.TD{
		Kind:         def.Kind,
		Name:         def.Name,
		Base:         def.Base,
		Element:      def.Element,
		Interfaces:   def.Interfaces,
		VTable:       def.VTable,
		SizeBytes:    def.SizeBytes,
		Align:        def.Align,
		HasRefBitmap: def.HasRefBitmap,
		TypeArgs:     args,
		GenericDef:   def,
	}
	inst.Publish()
	return inst
}

// CanShareCodeBody reports whether a generic instantiation's type-argument
// tuple lets it reuse another instantiation's compiled method bodies
// (spec.md section 4.B). Exposed on Loader so the JIT never needs to know
// about typesys.CanShareCodeBody directly — it asks the component that
// owns instantiation policy.
func (l *Loader) CanShareCodeBody(args []*typesys.TD) bool {
	return typesys.CanShareCodeBody(args)
}
