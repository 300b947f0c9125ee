// Package jit implements spec.md section 4.C, the tier-0 JIT compiler:
// translating one bytecode method body into x86-64 machine code plus its
// side tables (stackmap, EH table), in three phases (flow analysis,
// per-block codegen, side-table emission).
package jit

// Op is a bytecode instruction opcode. The instruction set covers exactly
// the "required instruction semantics" spec.md section 4.C lists; it is
// intentionally small (stack-based, one operand slot per instruction) since
// decoding the wire format is the BytecodeReader's job (hal.BytecodeReader,
// spec.md section 6), not the JIT's — by the time a method's Bytecode
// reaches here it is already this flat Op stream.
type Op uint8

const (
	OpNop Op = iota

	// Arithmetic / bitwise / shift, overflow-checked variants raise
	// OverflowException per spec.md section 4.C.
	OpAdd
	OpAddOvf
	OpSub
	OpSubOvf
	OpMul
	OpMulOvf
	OpDiv
	OpRem
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr
	OpNeg

	OpConvI4
	OpConvI8
	OpConvR8
	OpConvI4Checked

	OpLoadLocal
	OpStoreLocal
	OpLoadArg
	OpLoadStaticField
	OpStoreStaticField
	OpLoadField
	OpStoreField
	OpLoadElem
	OpStoreElem

	OpCall
	OpCallVirt
	OpCallInterface
	OpCallIndirect
	OpInvokeDelegate

	OpNewObj
	OpNewArr
	OpBox
	OpUnbox

	OpIsInst
	OpCastClass

	OpBr
	OpBrTrue
	OpBrFalse
	OpSwitch

	OpThrow
	OpRethrow
	OpEndFilter
	OpEndFinally
	OpLeave

	OpTryStart
	OpTryEnd
	OpRet

	// OpSafepointPoll is not present in source bytecode, and Phase 1 does
	// not insert it: Compile emits a poll itself on entry to every
	// back-edge target block and at every call or allocation; emitInstr
	// lowers an explicit OpSafepointPoll the same way.
	OpSafepointPoll
)

// StackType tags one entry of the abstract operand stack tracked through
// both Phase 1 (merge verification) and Phase 2 (codegen), spec.md section
// 4.C "element-type vector".
type StackType uint8

const (
	StackI4 StackType = iota
	StackI8
	StackR8
	StackRef
	StackValueType
)

// Instr is one decoded bytecode instruction: an opcode plus its operands.
// A,B,C are a generic 3-operand shape (local/arg/field index, branch
// target, token index, element count) — which fields are meaningful
// depends on Op.
type Instr struct {
	Op Op
	A  int32
	B  int32
	C  int32

	// TargetType is set for instructions whose behavior depends on a
	// resolved TD (OpNewObj, OpNewArr, OpBox, OpUnbox, OpIsInst,
	// OpCastClass, OpLoadField/OpStoreField's declaring type,
	// OpLoadStaticField/OpStoreStaticField's declaring type).
	TargetType any // *typesys.TD, resolved by loader before JIT sees it

	// TryRegion is set on OpTryStart/OpTryEnd to the EHRegion metadata
	// already resolved by the loader (catch TD, handler kind, handler PC);
	// Phase 1 only needs to know *where* regions start/end for block
	// splitting, so the payload is carried opaquely.
	TryRegion any
}
