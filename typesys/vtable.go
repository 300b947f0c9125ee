package typesys

import "github.com/ProtonOS/ProtonOS-sub008/errors"

// GetVTableSlot resolves a virtual method index against td's vtable
// (spec.md section 4.A). The caller (package jit, emitting a virtual-call
// instruction) is responsible for the null-receiver check before calling
// this — a null receiver raises NullReference before any dispatch
// computation (spec.md section 4.C "Virtual call on null receiver").
func GetVTableSlot(td *TD, virtualMethodIndex int) (CodePtr, error) {
	if virtualMethodIndex < 0 || virtualMethodIndex >= len(td.VTable) {
		return 0, errors.TypeLoadFailed(td.Name, "virtual method index out of range")
	}
	return td.VTable[virtualMethodIndex], nil
}
