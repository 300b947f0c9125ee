// Package x86 is the tier-0 JIT's instruction encoder: a byte-buffer
// emitter with one method per instruction shape, grounded on
// wat/internal/encoder's Buffer/EncodeInstr pattern (AppendByte/WriteBytes
// plus one opcode-table-driven emit function), retargeted from emitting
// WASM bytecode to emitting x86-64 machine code bytes.
package x86

// Reg is a general-purpose x86-64 register, encoded the same way
// typesys.Safepoint.LiveRegs numbers them (0-15; 8-15 need a REX prefix).
type Reg uint8

const (
	RAX Reg = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

// Buffer accumulates emitted machine code bytes for one method body.
// Mirrors encoder.Buffer: a growable byte slice with small fixed-width
// write helpers, nothing more.
type Buffer struct {
	Bytes []byte
}

func (b *Buffer) AppendByte(v byte)   { b.Bytes = append(b.Bytes, v) }
func (b *Buffer) WriteBytes(v []byte) { b.Bytes = append(b.Bytes, v...) }
func (b *Buffer) Len() int            { return len(b.Bytes) }

func (b *Buffer) WriteI32(v int32) {
	b.WriteBytes([]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
}

func (b *Buffer) WriteI64(v int64) {
	for i := 0; i < 8; i++ {
		b.AppendByte(byte(v >> (8 * i)))
	}
}

// rex builds a REX prefix byte: W (64-bit operand), R (reg field
// extension), X (index field extension), B (rm/base field extension).
func rex(w, r, x, bExt bool) byte {
	var v byte = 0x40
	if w {
		v |= 1 << 3
	}
	if r {
		v |= 1 << 2
	}
	if x {
		v |= 1 << 1
	}
	if bExt {
		v |= 1
	}
	return v
}

func modrm(mod, reg, rm byte) byte {
	return mod<<6 | (reg&7)<<3 | (rm & 7)
}

// MovRegReg emits `mov dst, src` (64-bit GPR to GPR).
func (b *Buffer) MovRegReg(dst, src Reg) {
	b.AppendByte(rex(true, src >= R8, false, dst >= R8))
	b.AppendByte(0x89)
	b.AppendByte(modrm(0b11, byte(src), byte(dst)))
}

// MovRegImm64 emits `mov dst, imm64` (used to materialize a trampoline
// target or a constant that doesn't fit a 32-bit immediate).
func (b *Buffer) MovRegImm64(dst Reg, imm int64) {
	b.AppendByte(rex(true, false, false, dst >= R8))
	b.AppendByte(0xB8 + byte(dst)&7)
	b.WriteI64(imm)
}

// AddRegReg emits `add dst, src`.
func (b *Buffer) AddRegReg(dst, src Reg) {
	b.AppendByte(rex(true, src >= R8, false, dst >= R8))
	b.AppendByte(0x01)
	b.AppendByte(modrm(0b11, byte(src), byte(dst)))
}

// SubRegReg emits `sub dst, src`.
func (b *Buffer) SubRegReg(dst, src Reg) {
	b.AppendByte(rex(true, src >= R8, false, dst >= R8))
	b.AppendByte(0x29)
	b.AppendByte(modrm(0b11, byte(src), byte(dst)))
}

// CmpRegReg emits `cmp a, b`.
func (b *Buffer) CmpRegReg(a, bReg Reg) {
	b.AppendByte(rex(true, bReg >= R8, false, a >= R8))
	b.AppendByte(0x39)
	b.AppendByte(modrm(0b11, byte(bReg), byte(a)))
}

// TestRegReg emits `test a, a` — the null-receiver check idiom spec.md
// section 4.C requires before any virtual/instance dispatch.
func (b *Buffer) TestRegReg(a Reg) {
	b.AppendByte(rex(true, a >= R8, false, a >= R8))
	b.AppendByte(0x85)
	b.AppendByte(modrm(0b11, byte(a), byte(a)))
}

// JmpRel32 emits a near unconditional jump with a placeholder 32-bit
// displacement, returning the buffer offset of that displacement so the
// caller can patch it once the target's final address is known (branch
// targets are only resolved after every block has been sized — see
// codegen.go's two-pass layout).
func (b *Buffer) JmpRel32() (patchAt int) {
	b.AppendByte(0xE9)
	patchAt = b.Len()
	b.WriteI32(0)
	return patchAt
}

// JccRel32 emits a conditional near jump (cc is the SSE/Jcc condition
// nibble, e.g. 0x4 for JE, 0x5 for JNE) with a placeholder displacement.
func (b *Buffer) JccRel32(cc byte) (patchAt int) {
	b.AppendByte(0x0F)
	b.AppendByte(0x80 | cc)
	patchAt = b.Len()
	b.WriteI32(0)
	return patchAt
}

// PatchRel32 fills in a previously emitted placeholder displacement once
// the jump target's offset is known.
func (b *Buffer) PatchRel32(patchAt int, from, to int) {
	disp := int32(to - (from + 4))
	b.Bytes[patchAt] = byte(disp)
	b.Bytes[patchAt+1] = byte(disp >> 8)
	b.Bytes[patchAt+2] = byte(disp >> 16)
	b.Bytes[patchAt+3] = byte(disp >> 24)
}

// CallRel32 emits a near call with a placeholder displacement, patched the
// same way as JmpRel32.
func (b *Buffer) CallRel32() (patchAt int) {
	b.AppendByte(0xE8)
	patchAt = b.Len()
	b.WriteI32(0)
	return patchAt
}

// Ret emits a near return.
func (b *Buffer) Ret() { b.AppendByte(0xC3) }

// Int3 emits a breakpoint trap, used as trampoline/unreachable-code filler
// so a stray jump into unpatched bytes faults immediately instead of
// executing garbage.
func (b *Buffer) Int3() { b.AppendByte(0xCC) }

// MovRegMem emits `mov dst, [base+disp32]`, a 32-bit-displacement memory
// load. base must not be RSP or R12 (their ModRM.rm encoding of 0b100
// means "SIB byte follows" rather than "this register" — codegen.go's
// allocator never hands out either, and RBP, the only other base this JIT
// addresses through, encodes disp32 forms with no SIB needed).
func (b *Buffer) MovRegMem(dst, base Reg, disp32 int32) {
	b.AppendByte(rex(true, dst >= R8, false, base >= R8))
	b.AppendByte(0x8B)
	b.AppendByte(modrm(0b10, byte(dst), byte(base)))
	b.WriteI32(disp32)
}

// MovMemReg emits `mov [base+disp32], src`, the store counterpart of
// MovRegMem.
func (b *Buffer) MovMemReg(base Reg, disp32 int32, src Reg) {
	b.AppendByte(rex(true, src >= R8, false, base >= R8))
	b.AppendByte(0x89)
	b.AppendByte(modrm(0b10, byte(src), byte(base)))
	b.WriteI32(disp32)
}

// PushReg emits `push r64`.
func (b *Buffer) PushReg(r Reg) {
	if r >= R8 {
		b.AppendByte(rex(false, false, false, true))
	}
	b.AppendByte(0x50 + byte(r)&7)
}

// PopReg emits `pop r64`.
func (b *Buffer) PopReg(r Reg) {
	if r >= R8 {
		b.AppendByte(rex(false, false, false, true))
	}
	b.AppendByte(0x58 + byte(r)&7)
}

// SubRegImm32 emits `sub dst, imm32`, opcode extension /5.
func (b *Buffer) SubRegImm32(dst Reg, imm int32) {
	b.AppendByte(rex(true, false, false, dst >= R8))
	b.AppendByte(0x81)
	b.AppendByte(modrm(0b11, 5, byte(dst)))
	b.WriteI32(imm)
}

// Leave emits the `leave` instruction (mov rsp, rbp; pop rbp folded into
// one byte), Compile's epilogue counterpart to its push rbp; mov rbp, rsp
// prologue.
func (b *Buffer) Leave() { b.AppendByte(0xC9) }
