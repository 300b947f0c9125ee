package jit

import "github.com/ProtonOS/ProtonOS-sub008/typesys"

// EHRegionMeta carries the loader-resolved parts of a try-region that
// Phase 1 doesn't need (spec.md section 4.E's catch-TD/handler-kind), kept
// separate from EHRegionSpec so flow analysis only has to thread the PC
// boundaries it actually uses.
type EHRegionMeta struct {
	Kind    typesys.HandlerKind
	CatchTD *typesys.TD // nil for Finally/Fault
}

// BuildEHTable assembles an MD's EHTable from Phase 1's region boundaries
// plus their loader-resolved metadata, computing each region's Nesting by
// interval containment — grounded on
// asyncify/internal/engine/callgraph.go's sorted-range table pattern
// (ranges ordered so a PC lookup finds its enclosing entries without a
// linear scan of the whole table), generalized here to also rank nested
// try-regions innermost-first per spec.md section 4.E's two-pass dispatch
// order (typesys.EHTable.Enclosing already implements that ordering at
// lookup time; this function only has to get Nesting right once).
func BuildEHTable(specs []EHRegionSpec, meta []EHRegionMeta) typesys.EHTable {
	regions := make([]typesys.EHRegion, len(specs))
	for i, s := range specs {
		regions[i] = typesys.EHRegion{
			TryStartPC: uint32(s.TryStartPC),
			TryEndPC:   uint32(s.TryEndPC),
			HandlerPC:  uint32(s.HandlerPC),
			FilterPC:   uint32(s.FilterPC),
		}
		if i < len(meta) {
			regions[i].Kind = meta[i].Kind
			regions[i].CatchTD = meta[i].CatchTD
		}
	}

	for i := range regions {
		nesting := 0
		for j := range regions {
			if i == j {
				continue
			}
			if encloses(regions[j], regions[i]) {
				nesting++
			}
		}
		regions[i].Nesting = nesting
	}

	return typesys.EHTable{Regions: regions}
}

// encloses reports whether outer's try range strictly contains inner's —
// a region sharing inner's exact range is a sibling, not an enclosing
// region, and does not count toward nesting depth.
func encloses(outer, inner typesys.EHRegion) bool {
	if outer.TryStartPC == inner.TryStartPC && outer.TryEndPC == inner.TryEndPC {
		return false
	}
	return outer.TryStartPC <= inner.TryStartPC && outer.TryEndPC >= inner.TryEndPC
}
