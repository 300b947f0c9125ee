package typesys

import "github.com/ProtonOS/ProtonOS-sub008/errors"

// GetInterfaceSlot resolves an interface method call against td's
// interface map (spec.md section 4.A): find the entry matching iface,
// then the target vtable slot is its SlotOffset plus ifaceMethodIndex
// (spec.md section 3 invariant 5).
func GetInterfaceSlot(td *TD, iface *TD, ifaceMethodIndex int) (CodePtr, error) {
	for _, entry := range td.Interfaces {
		if entry.Interface != iface {
			continue
		}
		slot := entry.SlotOffset + ifaceMethodIndex
		if slot < 0 || slot >= len(td.VTable) {
			return 0, errors.TypeLoadFailed(td.Name, "interface slot out of range")
		}
		return td.VTable[slot], nil
	}
	return 0, errors.TypeLoadFailed(td.Name, "type does not implement interface "+iface.Name)
}

// BuildInterfaceMap computes td's flat interface map from its declared
// direct interfaces and its base type's already-built map, appending new
// vtable slots for any interface not already satisfied through the base
// (spec.md section 4.A). vtableSlotsPerInterface gives each interface's
// method count, in the same order as directInterfaces.
func BuildInterfaceMap(td *TD, directInterfaces []*TD, vtableSlotsPerInterface []int, nextFreeSlot int) []InterfaceMapEntry {
	var entries []InterfaceMapEntry
	if td.Base != nil {
		entries = append(entries, td.Base.Interfaces...)
	}

	already := func(iface *TD) bool {
		for _, e := range entries {
			if e.Interface == iface {
				return true
			}
		}
		return false
	}

	for i, iface := range directInterfaces {
		if already(iface) {
			continue
		}
		entries = append(entries, InterfaceMapEntry{Interface: iface, SlotOffset: nextFreeSlot})
		nextFreeSlot += vtableSlotsPerInterface[i]
	}
	return entries
}
