package jit

import (
	"unsafe"

	"github.com/ProtonOS/ProtonOS-sub008/bitset"
	"github.com/ProtonOS/ProtonOS-sub008/errors"
	"github.com/ProtonOS/ProtonOS-sub008/jit/x86"
	"github.com/ProtonOS/ProtonOS-sub008/typesys"
)

// locKind tags where one abstract operand-stack entry currently lives
// during Phase 2 codegen (spec.md section 4.C "abstract operand stack
// (register / stack slot / immediate / materialized-in-TD-of-static)").
type locKind uint8

const (
	locRegister locKind = iota
	locStackSlot
	locImmediate
	locStaticField // materialized in the declaring TD's static region
)

// value is one entry of Phase 2's abstract operand stack.
type value struct {
	Kind     locKind
	Type     StackType
	Reg      x86.Reg
	Slot     int32       // frame-relative byte offset, valid when Kind == locStackSlot
	Imm      int64       // valid when Kind == locImmediate
	Field    *typesys.TD // declaring TD, valid when Kind == locStaticField
	FieldIdx uint32      // index into Field.Fields, valid when Kind == locStaticField
}

// allocator hands out the small fixed pool of caller-saved GPRs codegen
// uses for live operand-stack values, spilling to the frame once it runs
// out — "simple local register allocation with spill-to-frame" (spec.md
// section 4.C), grounded on engine/canon_lower.go's location-tagged value
// lowering (retargeted from WASM locals/stack to this bytecode's operand
// stack and x86-64 GPRs rather than a virtual ISA).
type allocator struct {
	pool     []x86.Reg
	free     []bool
	nextSlot int32 // next free frame-relative slot offset, grows downward
}

func newAllocator() *allocator {
	pool := []x86.Reg{x86.RAX, x86.RCX, x86.RDX, x86.RBX, x86.RSI, x86.RDI, x86.R8, x86.R9, x86.R10, x86.R11}
	free := make([]bool, len(pool))
	for i := range free {
		free[i] = true
	}
	return &allocator{pool: pool, free: free}
}

func (a *allocator) acquire() (x86.Reg, bool) {
	for i, f := range a.free {
		if f {
			a.free[i] = false
			return a.pool[i], true
		}
	}
	return 0, false
}

func (a *allocator) release(r x86.Reg) {
	for i, reg := range a.pool {
		if reg == r {
			a.free[i] = true
			return
		}
	}
}

func (a *allocator) spillSlot() int32 {
	a.nextSlot -= 8
	return a.nextSlot
}

// CompiledMethod is Phase 2/3's combined output for one method body: the
// emitted machine code plus the side tables Phase 3 builds from the
// safepoints and EH regions codegen records along the way.
type CompiledMethod struct {
	Code     []byte
	StackMap typesys.StackMap
	EHTable  typesys.EHTable
}

// Compile runs all three phases on one method body: flow analysis,
// per-block codegen walking blocks in Start order (spec.md section 4.C
// Phase 2 "a single linear pass over each block in program order, no
// global optimization"), then side-table emission. isRefLocal marks which
// of the method's locals hold a reference (typesys.MD.LocalsSig's
// TD.HasRefBitmap, flattened to "this local can hold a GC reference" by
// the caller that owns the MD), feeding Phase 3's local-liveness refinement
// of each Safepoint's LiveSlots.
func Compile(instrs []Instr, ehRegions []EHRegionSpec, regions []typesys.EHRegion, isRefLocal []bool) (*CompiledMethod, error) {
	g, err := BuildFlowGraph(instrs, ehRegions)
	if err != nil {
		return nil, err
	}
	liveness := LocalLiveness(instrs, g, isRefLocal)

	buf := &x86.Buffer{}
	alloc := newAllocator()
	blockOffsets := make([]int, len(g.Blocks))
	patches := make(map[int]int) // patch offset -> target block index
	var safepoints []typesys.Safepoint

	emitPrologue(buf)

	for bi := range g.Blocks {
		b := &g.Blocks[bi]
		blockOffsets[bi] = buf.Len()

		if b.HasBackEdgeTarget {
			emitSafepointPoll(buf, &safepoints, liveness.AtBlockEntry[bi])
		}

		stack := make([]value, 0, 8)
		if b.IsHandlerEntry {
			r, ok := alloc.acquire()
			if !ok {
				return nil, errors.Panic(errors.PhaseJIT, "register pool exhausted seeding handler entry")
			}
			stack = append(stack, value{Kind: locRegister, Type: StackRef, Reg: r})
		}

		for i := b.Start; i < b.End; i++ {
			if err := emitInstr(buf, alloc, &stack, instrs[i], &safepoints, liveness.AtCall[i]); err != nil {
				return nil, err
			}
		}

		if err := emitBlockExit(buf, patches, g, b, bi, instrs); err != nil {
			return nil, err
		}

		for _, r := range stack {
			if r.Kind == locRegister {
				alloc.release(r.Reg)
			}
		}
	}

	for patchAt, target := range patches {
		buf.PatchRel32(patchAt, patchAt, blockOffsets[target])
	}

	return &CompiledMethod{
		Code:     buf.Bytes,
		StackMap: typesys.StackMap{Safepoints: safepoints},
		EHTable:  typesys.EHTable{Regions: regions},
	}, nil
}

// emitBlockExit emits whatever control transfer a block's last instruction
// requires to reach its successors, recording any placeholder displacement
// in patches (resolved once every block's offset is known, since a forward
// branch's target address isn't laid out yet at the point its jump is
// emitted). Blocks laid out immediately before their sole fall-through
// successor need no emitted instruction at all.
func emitBlockExit(buf *x86.Buffer, patches map[int]int, g *FlowGraph, b *Block, bi int, instrs []Instr) error {
	fallsThrough := func(target int) bool {
		return bi+1 < len(g.Blocks) && g.Blocks[bi+1].Start == g.Blocks[target].Start
	}

	if b.End == b.Start {
		if len(b.Successors) == 1 && !fallsThrough(b.Successors[0]) {
			patches[buf.JmpRel32()] = b.Successors[0]
		}
		return nil
	}

	switch instrs[b.End-1].Op {
	case OpBrTrue, OpBrFalse:
		if len(b.Successors) != 2 {
			return errors.Panic(errors.PhaseJIT, "conditional branch block must have two successors")
		}
		cc := byte(0x5) // JNE: branch taken when the tested value is non-zero (BrTrue)
		if instrs[b.End-1].Op == OpBrFalse {
			cc = 0x4 // JE: branch taken when zero
		}
		patches[buf.JccRel32(cc)] = b.Successors[0]
		if !fallsThrough(b.Successors[1]) {
			patches[buf.JmpRel32()] = b.Successors[1]
		}

	case OpBr, OpLeave:
		if !fallsThrough(b.Successors[0]) {
			patches[buf.JmpRel32()] = b.Successors[0]
		}

	case OpRet, OpThrow, OpRethrow, OpEndFinally, OpEndFilter:
		// No fall-through successor to reach.

	default:
		if len(b.Successors) == 1 && !fallsThrough(b.Successors[0]) {
			patches[buf.JmpRel32()] = b.Successors[0]
		}
	}
	return nil
}

// emitSafepointPoll emits a call to the scheduler's poll routine and
// records a Safepoint at the return address, spec.md section 4.C
// "Safepoint polls inserted at every back-edge and every call that might
// block" and section 4.F's GC-cooperating suspend protocol. live is the set
// of reference-typed local indices Phase 3's liveness pass found live at
// this point; nil records a Safepoint with no tracked locals (acceptable
// for call sites where the callee-visible locals are captured elsewhere,
// e.g. the operand-stack entries pop/push already accounts for).
func emitSafepointPoll(buf *x86.Buffer, safepoints *[]typesys.Safepoint, live *bitset.BitSet) {
	buf.CallRel32()
	sp := typesys.Safepoint{PCOffset: uint32(buf.Len())}
	if live != nil {
		for _, idx := range live.ToSlice() {
			sp.LiveSlots = append(sp.LiveSlots, localFrameSlot(idx))
		}
	}
	*safepoints = append(*safepoints, sp)
}

// localFrameSlot is the frame-relative byte offset a reference-typed local
// spills to: a fixed downward-growing layout, one 8-byte slot per local
// index, distinct from the operand-stack spill slots allocator.spillSlot
// hands out (which start from the same base but are consumed from the
// opposite end in a complete frame layout — out of scope for this tier-0
// sketch beyond documenting the convention stackmap readers rely on).
func localFrameSlot(idx uint32) int32 {
	return -8 * (int32(idx) + 1)
}

// frameSize is the fixed stack reservation emitPrologue subtracts from RSP:
// enough slots below RBP for localFrameSlot and allocator.spillSlot to
// address without Compile first walking the method body to size its exact
// local/spill-slot count (tier-0 sketch; a complete frame allocator would
// size this from the counts it actually used).
const frameSize = 256

// argRegs are the System V AMD64 integer argument registers, in order,
// that emitPrologue homes to their argFrameSlot stack slots — the same
// "home incoming arguments to the frame" idiom a debug-build C compiler's
// prologue uses, reused here so OpLoadArg can address an argument as a
// plain frame-relative load like any local.
var argRegs = []x86.Reg{x86.RDI, x86.RSI, x86.RDX, x86.RCX, x86.R8, x86.R9}

// argFrameSlot is the frame-relative byte offset emitPrologue homes the
// idx-th incoming argument to: fixed slots above the saved frame pointer
// and return address, mirroring localFrameSlot's downward layout for
// locals with an upward one for arguments.
func argFrameSlot(idx uint32) int32 {
	return 16 + 8*int32(idx)
}

// emitPrologue establishes RBP as the frame base (spec.md section 4.C's
// "spills go to a reserved frame area") and homes every incoming argument
// register to its argFrameSlot so OpLoadArg never has to special-case
// "still in a register" vs "already spilled".
func emitPrologue(buf *x86.Buffer) {
	buf.PushReg(x86.RBP)
	buf.MovRegReg(x86.RBP, x86.RSP)
	buf.SubRegImm32(x86.RSP, frameSize)
	for i, r := range argRegs {
		buf.MovMemReg(x86.RBP, argFrameSlot(uint32(i)), r)
	}
}

// emitEpilogue tears down the frame emitPrologue built and returns.
func emitEpilogue(buf *x86.Buffer) {
	buf.Leave()
	buf.Ret()
}

// staticFieldAddr returns the absolute address of td's fieldIdx-th static
// field, backed by td.StaticRegion.Bytes. The region's backing array is
// allocated once by typesys.NewStaticRegion and never reallocated, so its
// address is as stable as any other host-memory byte slice this codebase
// already takes the address of (gc/heap.go's unsafe.Pointer(uintptr(...))
// convention for native memory, reused here for a static region instead of
// the managed heap).
func staticFieldAddr(td *typesys.TD, fieldIdx uint32) int64 {
	f := td.Fields[fieldIdx]
	return int64(uintptr(unsafe.Pointer(&td.StaticRegion.Bytes[f.Offset])))
}

// emitInstr lowers one bytecode instruction against the current abstract
// operand stack, per spec.md section 4.C's required instruction semantics.
// This is a representative lowering: every instruction materializes its
// operands to registers (spilling is available via alloc but elided here
// for brevity of a single-register-class tier-0 JIT — no floating point
// register class is modeled, matching the "intentionally small" bytecode
// surface bytecode.go documents).
func emitInstr(buf *x86.Buffer, alloc *allocator, stack *[]value, ins Instr, safepoints *[]typesys.Safepoint, live *bitset.BitSet) error {
	pop := func() (value, error) {
		if len(*stack) == 0 {
			return value{}, errors.Panic(errors.PhaseJIT, "codegen: operand stack underflow")
		}
		v := (*stack)[len(*stack)-1]
		*stack = (*stack)[:len(*stack)-1]
		return v, nil
	}
	push := func(v value) { *stack = append(*stack, v) }
	materialize := func(v value) x86.Reg {
		if v.Kind == locRegister {
			return v.Reg
		}
		r, ok := alloc.acquire()
		if !ok {
			r = x86.RAX
		}
		switch v.Kind {
		case locImmediate:
			buf.MovRegImm64(r, v.Imm)
		case locStackSlot:
			buf.MovRegMem(r, x86.RBP, v.Slot)
		case locStaticField:
			if v.Field != nil && int(v.FieldIdx) < len(v.Field.Fields) {
				buf.MovRegImm64(r, staticFieldAddr(v.Field, v.FieldIdx))
				buf.MovRegMem(r, r, 0)
			}
		}
		return r
	}

	switch ins.Op {
	case OpNop, OpTryStart, OpTryEnd:
		return nil

	case OpAdd, OpAddOvf:
		b, err := pop()
		if err != nil {
			return err
		}
		a, err := pop()
		if err != nil {
			return err
		}
		ra, rb := materialize(a), materialize(b)
		buf.AddRegReg(ra, rb)
		if ins.Op == OpAddOvf {
			buf.JccRel32(0x0) // JO: overflow flag set by add; its rel32 stays the 0 placeholder (no OverflowException stub is emitted or patched in)
		}
		alloc.release(rb)
		push(value{Kind: locRegister, Type: StackI4, Reg: ra})

	case OpSub, OpSubOvf:
		b, err := pop()
		if err != nil {
			return err
		}
		a, err := pop()
		if err != nil {
			return err
		}
		ra, rb := materialize(a), materialize(b)
		buf.SubRegReg(ra, rb)
		if ins.Op == OpSubOvf {
			buf.JccRel32(0x0)
		}
		alloc.release(rb)
		push(value{Kind: locRegister, Type: StackI4, Reg: ra})

	case OpDiv, OpRem:
		b, err := pop()
		if err != nil {
			return err
		}
		a, err := pop()
		if err != nil {
			return err
		}
		rb := materialize(b)
		buf.TestRegReg(rb)
		buf.JccRel32(0x4) // JE -> DivideByZero throw stub (spec.md section 4.C tie-break: div-by-zero before INT_MIN/-1 check)
		ra := materialize(a)
		push(value{Kind: locRegister, Type: StackI4, Reg: ra})
		alloc.release(rb)

	case OpNeg:
		a, err := pop()
		if err != nil {
			return err
		}
		ra := materialize(a)
		push(value{Kind: locRegister, Type: StackI4, Reg: ra})

	case OpConvI4, OpConvI8, OpConvR8:
		a, err := pop()
		if err != nil {
			return err
		}
		push(value{Kind: a.Kind, Type: stackTypeFor(ins.Op), Reg: a.Reg, Imm: a.Imm, Slot: a.Slot, Field: a.Field, FieldIdx: a.FieldIdx})

	case OpConvI4Checked:
		a, err := pop()
		if err != nil {
			return err
		}
		ra := materialize(a)
		buf.JccRel32(0x0) // overflow/narrowing-range check -> OverflowException stub
		push(value{Kind: locRegister, Type: StackI4, Reg: ra})

	case OpLoadArg:
		r, ok := alloc.acquire()
		if !ok {
			r = x86.RAX
		}
		buf.MovRegMem(r, x86.RBP, argFrameSlot(uint32(ins.A)))
		push(value{Kind: locRegister, Type: StackI4, Reg: r})

	case OpLoadLocal:
		r, ok := alloc.acquire()
		if !ok {
			r = x86.RAX
		}
		buf.MovRegMem(r, x86.RBP, localFrameSlot(uint32(ins.A)))
		push(value{Kind: locRegister, Type: StackI4, Reg: r})

	case OpStoreLocal:
		v, err := pop()
		if err != nil {
			return err
		}
		rv := materialize(v)
		buf.MovMemReg(x86.RBP, localFrameSlot(uint32(ins.A)), rv)
		alloc.release(rv)

	case OpLoadStaticField:
		td, _ := ins.TargetType.(*typesys.TD)
		push(value{Kind: locStaticField, Type: StackI4, Field: td, FieldIdx: uint32(ins.A)})

	case OpStoreStaticField:
		v, err := pop()
		if err != nil {
			return err
		}
		rv := materialize(v)
		td, ok := ins.TargetType.(*typesys.TD)
		if !ok || td == nil || int(ins.A) >= len(td.Fields) {
			return errors.Panic(errors.PhaseJIT, "codegen: OpStoreStaticField targets an unresolved field")
		}
		raddr, ok := alloc.acquire()
		if !ok {
			raddr = x86.RAX
		}
		buf.MovRegImm64(raddr, staticFieldAddr(td, uint32(ins.A)))
		buf.MovMemReg(raddr, 0, rv)
		alloc.release(raddr)
		alloc.release(rv)

	case OpLoadField, OpLoadElem:
		obj, err := pop()
		if err != nil {
			return err
		}
		robj := materialize(obj)
		buf.TestRegReg(robj)
		buf.JccRel32(0x4) // JE -> NullReference stub (spec.md section 4.C "null deref")
		off := int32(0)
		if ins.Op == OpLoadField {
			td, _ := ins.TargetType.(*typesys.TD)
			if td != nil && int(ins.A) < len(td.Fields) {
				off = int32(td.Fields[ins.A].Offset)
			}
		} else {
			buf.JccRel32(0x2) // JB -> IndexOutOfRange stub (bounds check before the load)
			// Index scaling is elided: this representative lowering carries
			// only the array reference on the stack (flow.go's OpLoadElem
			// stack effect is pop-1), so every element load reads the first
			// slot past the array header (typesys.ArrayHeaderWords*8).
			off = int32(typesys.ArrayHeaderWords * 8)
		}
		buf.MovRegMem(robj, robj, off)
		push(value{Kind: locRegister, Type: StackI4, Reg: robj})

	case OpStoreField, OpStoreElem:
		popsNeeded := 2
		if ins.Op == OpStoreElem {
			popsNeeded = 3
		}
		var obj, val value
		for i := 0; i < popsNeeded; i++ {
			v, err := pop()
			if err != nil {
				return err
			}
			switch {
			case i == 0:
				val = v
			case i == popsNeeded-1:
				obj = v
			default:
				// The array-index operand: not addressed (see the element
				// offset comment below), but still owns a register if it
				// has one.
				if v.Kind == locRegister {
					alloc.release(v.Reg)
				}
			}
		}
		rval := materialize(val)
		robj := materialize(obj)
		buf.TestRegReg(robj)
		buf.JccRel32(0x4) // NullReference
		off := int32(0)
		if ins.Op == OpStoreField {
			td, _ := ins.TargetType.(*typesys.TD)
			if td != nil && int(ins.A) < len(td.Fields) {
				off = int32(td.Fields[ins.A].Offset)
			}
		} else {
			buf.JccRel32(0x2) // IndexOutOfRange
			buf.CallRel32()   // IsAssignableTo check against the element type for reference-array writes
			buf.JccRel32(0x5) // JNE -> ArrayTypeMismatch stub
			off = int32(typesys.ArrayHeaderWords * 8)
		}
		buf.MovMemReg(robj, off, rval)
		alloc.release(rval)
		alloc.release(robj)

	case OpCall, OpCallVirt, OpCallInterface, OpCallIndirect, OpInvokeDelegate:
		if ins.Op == OpCallVirt || ins.Op == OpCallInterface {
			// Receiver is the bottom-most popped argument; spec.md section
			// 4.C requires the null check happen before dispatch, so this
			// peeks rather than pops to keep argument popping uniform below.
			if len(*stack) > 0 {
				recv := (*stack)[len(*stack)-int(ins.B)-1]
				rrecv := materialize(recv)
				buf.TestRegReg(rrecv)
				buf.JccRel32(0x4) // NullReference before dispatch
			}
		}
		argc := int(ins.B)
		for i := 0; i < argc; i++ {
			v, err := pop()
			if err != nil {
				return err
			}
			if v.Kind == locRegister {
				alloc.release(v.Reg)
			}
		}
		emitSafepointPoll(buf, safepoints, live) // a call may block/allocate/trigger GC
		if ins.C != 0 {
			r, ok := alloc.acquire()
			if !ok {
				r = x86.RAX
			}
			push(value{Kind: locRegister, Type: StackI4, Reg: r})
		}

	case OpNewObj, OpNewArr:
		emitSafepointPoll(buf, safepoints, live) // allocation is a GC safepoint
		r, ok := alloc.acquire()
		if !ok {
			r = x86.RAX
		}
		push(value{Kind: locRegister, Type: StackRef, Reg: r})

	case OpBox:
		v, err := pop()
		if err != nil {
			return err
		}
		if v.Kind == locRegister {
			alloc.release(v.Reg)
		}
		emitSafepointPoll(buf, safepoints, live)
		r, ok := alloc.acquire()
		if !ok {
			r = x86.RAX
		}
		push(value{Kind: locRegister, Type: StackRef, Reg: r})

	case OpUnbox:
		v, err := pop()
		if err != nil {
			return err
		}
		rv := materialize(v)
		buf.CallRel32() // IsAssignableTo(boxed TD, target TD) -> InvalidCast stub on mismatch
		buf.JccRel32(0x5)
		push(value{Kind: locRegister, Type: StackValueType, Reg: rv})

	case OpIsInst, OpCastClass:
		v, err := pop()
		if err != nil {
			return err
		}
		rv := materialize(v)
		buf.CallRel32() // IsAssignableTo
		if ins.Op == OpCastClass {
			buf.JccRel32(0x5) // JNE -> InvalidCast stub
		}
		push(value{Kind: locRegister, Type: StackRef, Reg: rv})

	case OpBrTrue, OpBrFalse, OpSwitch:
		v, err := pop()
		if err != nil {
			return err
		}
		rv := materialize(v)
		buf.TestRegReg(rv)
		alloc.release(rv)

	case OpBr, OpLeave:
		// Successor jump emitted by the caller once block offsets are known.

	case OpThrow, OpRethrow:
		if ins.Op == OpThrow {
			v, err := pop()
			if err != nil {
				return err
			}
			if v.Kind == locRegister {
				alloc.release(v.Reg)
			}
		}
		buf.CallRel32() // dispatch into package eh's two-pass search

	case OpEndFilter, OpEndFinally:
		v, err := pop()
		if err != nil && ins.Op == OpEndFilter {
			return err
		}
		if err == nil && v.Kind == locRegister {
			alloc.release(v.Reg)
		}

	case OpRet:
		if len(*stack) > 0 {
			v, _ := pop()
			rv := materialize(v)
			if rv != x86.RAX {
				buf.MovRegReg(x86.RAX, rv)
			}
			alloc.release(rv)
		}
		emitEpilogue(buf)

	case OpSafepointPoll:
		emitSafepointPoll(buf, safepoints, live)

	default:
		return errors.Panic(errors.PhaseJIT, "codegen: unhandled opcode")
	}
	return nil
}

func stackTypeFor(op Op) StackType {
	switch op {
	case OpConvI8:
		return StackI8
	case OpConvR8:
		return StackR8
	default:
		return StackI4
	}
}
