package corert

import (
	"unsafe"

	"github.com/ProtonOS/ProtonOS-sub008/errors"
	"github.com/ProtonOS/ProtonOS-sub008/hal"
	"github.com/ProtonOS/ProtonOS-sub008/loader"
	"github.com/ProtonOS/ProtonOS-sub008/typesys"
)

// ModuleTypes enumerates every TD a loaded module defines (spec.md section
// 6 "Reflection APIs: enumerate types of a module"). Grounded on
// cmd/coreinspect's collectTypes: ModuleHandle.Type(i) is walked from 0
// until it errors, the only enumeration the loader's public API offers.
func (c *Core) ModuleTypes(h *loader.ModuleHandle) []*typesys.TD {
	var tds []*typesys.TD
	for i := 0; ; i++ {
		td, err := h.Type(i)
		if err != nil {
			break
		}
		tds = append(tds, td)
	}
	return tds
}

// TypeMethods returns every MD declared directly on td (spec.md section 6
// "get methods/fields/constructors of a type"). typesys.TD carries no
// per-type method list of its own (methods live only in the module's flat
// MethodDef table); this filters ModuleHandle.Method(i)'s same sequential
// walk cmd/coreinspect's collectMethods uses by DeclaringTD.
func (c *Core) TypeMethods(h *loader.ModuleHandle, td *typesys.TD) []*typesys.MD {
	var mds []*typesys.MD
	for i := 0; ; i++ {
		md, err := h.Method(i)
		if err != nil {
			break
		}
		if md.DeclaringTD == td {
			mds = append(mds, md)
		}
	}
	return mds
}

// TypeConstructors returns td's constructors: the subset of TypeMethods
// named ".ctor", the CLR naming convention typesys's object model follows
// throughout (spec.md section 3).
func (c *Core) TypeConstructors(h *loader.ModuleHandle, td *typesys.TD) []*typesys.MD {
	var ctors []*typesys.MD
	for _, md := range c.TypeMethods(h, td) {
		if md.Name == ".ctor" {
			ctors = append(ctors, md)
		}
	}
	return ctors
}

// TypeFields returns td's own declared fields (spec.md section 6 "get
// methods/fields/constructors of a type"). td.Fields already holds exactly
// this — reflection here is a read-only view over typesys's own layout
// data, nothing to resolve.
func (c *Core) TypeFields(td *typesys.TD) []typesys.FieldInfo {
	return td.Fields
}

// maxInvokeArgs bounds Invoke's boxed-argument arity: the tier-0 calling
// convention below dispatches through a fixed family of Go func types, one
// per arity, the same way callEntry casts to exactly one zero-arg shape.
const maxInvokeArgs = 4

// Invoke calls md with each element of boxedArgs unboxed first, per
// SPEC_FULL.md's boxed-array calling convention (every reflection argument
// travels boxed regardless of its declared type, unboxed here before the
// native call), returning the raw result word (spec.md section 6
// "invoke a method by descriptor and boxed argument array").
//
// Generalizes core.go's callEntry: callEntry casts a CodePtr to a Go
// zero-arg func and calls it directly; Invoke does the same for up to
// maxInvokeArgs uintptr-shaped arguments, one cast per arity since Go has
// no variadic unsafe function-pointer cast.
func (c *Core) Invoke(md *typesys.MD, boxedArgs []hal.VirtAddr) (uintptr, error) {
	if len(boxedArgs) != len(md.Sig.Params) {
		return 0, errors.MissingMember(md.Name, "boxed argument count does not match method signature")
	}
	if len(boxedArgs) > maxInvokeArgs {
		return 0, errors.Panic(errors.PhaseJIT, "Invoke: too many arguments for the tier-0 calling convention")
	}

	args := make([]uintptr, len(boxedArgs))
	for i, boxed := range boxedArgs {
		// Unbox: skip past the object header to the boxed payload, per
		// typesys.BoxedValueOffset's "[header][value bytes]" layout, and
		// read the value word out from there.
		payload := uintptr(boxed) + typesys.HeaderWords*8 + typesys.BoxedValueOffset
		args[i] = *(*uintptr)(unsafe.Pointer(payload))
	}

	return invokeNative(md.Entry(), args), nil
}

// invokeNative casts entry to the Go func type matching len(args) and
// calls it. See Invoke's doc comment for why this is a small fixed family
// of casts rather than one generic call.
func invokeNative(entry typesys.CodePtr, args []uintptr) uintptr {
	switch len(args) {
	case 0:
		fn := *(*func())(unsafe.Pointer(&entry))
		fn()
		return 0
	case 1:
		fn := *(*func(uintptr) uintptr)(unsafe.Pointer(&entry))
		return fn(args[0])
	case 2:
		fn := *(*func(uintptr, uintptr) uintptr)(unsafe.Pointer(&entry))
		return fn(args[0], args[1])
	case 3:
		fn := *(*func(uintptr, uintptr, uintptr) uintptr)(unsafe.Pointer(&entry))
		return fn(args[0], args[1], args[2])
	default:
		fn := *(*func(uintptr, uintptr, uintptr, uintptr) uintptr)(unsafe.Pointer(&entry))
		return fn(args[0], args[1], args[2], args[3])
	}
}
