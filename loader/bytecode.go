package loader

import (
	"github.com/ProtonOS/ProtonOS-sub008/errors"
	"github.com/ProtonOS/ProtonOS-sub008/jit"
	"github.com/ProtonOS/ProtonOS-sub008/typesys"
)

// reader walks a method body's raw bytes, decoding the ULEB128 varints and
// tokens DecodeBody consumes. Grounded on linker/internal/wasm/encoding.go's
// DecodeULEB128, retargeted from a one-shot decode call into a stateful
// cursor so a whole instruction stream can be walked in one pass.
type reader struct {
	buf []byte
	pos int
}

func (r *reader) u8() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, errors.TypeLoadFailed("<body>", "truncated method body")
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) uleb() (uint32, error) {
	var result uint32
	var shift uint32
	for {
		b, err := r.u8()
		if err != nil {
			return 0, err
		}
		result |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
		if shift > 35 {
			return 0, errors.TypeLoadFailed("<body>", "malformed varint in method body")
		}
	}
}

func (r *reader) str(n int) (string, error) {
	if r.pos+n > len(r.buf) {
		return "", errors.TypeLoadFailed("<body>", "truncated method body")
	}
	s := string(r.buf[r.pos : r.pos+n])
	r.pos += n
	return s, nil
}

// token reads a cross-module reference: a one-byte module-path length (0
// meaning "this module"), that many bytes of path, a one-byte TokenKind,
// and a ULEB128 row index.
func (r *reader) token(ownModule string) (Token, error) {
	pathLen, err := r.u8()
	if err != nil {
		return Token{}, err
	}
	path := ownModule
	if pathLen > 0 {
		path, err = r.str(int(pathLen))
		if err != nil {
			return Token{}, err
		}
	}
	kindByte, err := r.u8()
	if err != nil {
		return Token{}, err
	}
	idx, err := r.uleb()
	if err != nil {
		return Token{}, err
	}
	return Token{Kind: TokenKind(kindByte), ModulePath: path, Index: int(idx)}, nil
}

// needsTypeToken reports whether op carries a resolved-TD operand in the
// wire format (spec.md section 4.C's instruction set; see jit.Instr's
// TargetType doc comment for the exact list).
func needsTypeToken(op jit.Op) bool {
	switch op {
	case jit.OpNewObj, jit.OpNewArr, jit.OpBox, jit.OpUnbox,
		jit.OpIsInst, jit.OpCastClass,
		jit.OpLoadField, jit.OpStoreField,
		jit.OpLoadStaticField, jit.OpStoreStaticField:
		return true
	default:
		return false
	}
}

// DecodeBody decodes md's raw bytecode into the three inputs
// jit.CompileAndInstall needs: the flat Instr stream, the method's
// try-region table (boundaries plus loader-resolved catch types), and the
// reference-ness of each local slot. This is the Loader/JIT boundary spec.md
// section 4.C assumes ("by the time a method's Bytecode reaches here it is
// already this flat Op stream" — jit/bytecode.go) — decoding the wire
// format and resolving its type/method/field tokens through ResolveToken is
// the Loader's job, translating stack-based bytecode methods is the JIT's.
//
// Wire format (this core's own, method bodies are not a spec.md-mandated
// format): a ULEB128 region count and that many region records (four
// ULEB128 PCs, a handler-kind byte, and a token for a catch region), then a
// ULEB128 instruction count and that many instruction records (an opcode
// byte, three ULEB128 operands, and a token where needsTypeToken says so).
func (l *Loader) DecodeBody(h *ModuleHandle, md *typesys.MD) ([]jit.Instr, []jit.EHRegionSpec, []jit.EHRegionMeta, []bool, error) {
	r := &reader{buf: md.Bytecode}

	numRegions, err := r.uleb()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	specs := make([]jit.EHRegionSpec, numRegions)
	metas := make([]jit.EHRegionMeta, numRegions)
	for i := range specs {
		tryStart, err := r.uleb()
		if err != nil {
			return nil, nil, nil, nil, err
		}
		tryEnd, err := r.uleb()
		if err != nil {
			return nil, nil, nil, nil, err
		}
		handlerPC, err := r.uleb()
		if err != nil {
			return nil, nil, nil, nil, err
		}
		filterPC, err := r.uleb()
		if err != nil {
			return nil, nil, nil, nil, err
		}
		kindByte, err := r.u8()
		if err != nil {
			return nil, nil, nil, nil, err
		}
		kind := typesys.HandlerKind(kindByte)

		var catchTD *typesys.TD
		if kind == typesys.HandlerCatch {
			tok, err := r.token(h.Name)
			if err != nil {
				return nil, nil, nil, nil, err
			}
			resolved, err := l.ResolveToken(tok)
			if err != nil {
				return nil, nil, nil, nil, err
			}
			td, ok := resolved.(*typesys.TD)
			if !ok {
				return nil, nil, nil, nil, errors.TypeLoadFailed(h.Name, "catch region token did not resolve to a type")
			}
			catchTD = td
		}

		specs[i] = jit.EHRegionSpec{
			TryStartPC: int(tryStart), TryEndPC: int(tryEnd),
			HandlerPC: int(handlerPC), FilterPC: int(filterPC),
		}
		metas[i] = jit.EHRegionMeta{Kind: kind, CatchTD: catchTD}
	}

	numInstrs, err := r.uleb()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	instrs := make([]jit.Instr, numInstrs)
	for i := range instrs {
		opByte, err := r.u8()
		if err != nil {
			return nil, nil, nil, nil, err
		}
		a, err := r.uleb()
		if err != nil {
			return nil, nil, nil, nil, err
		}
		b, err := r.uleb()
		if err != nil {
			return nil, nil, nil, nil, err
		}
		c, err := r.uleb()
		if err != nil {
			return nil, nil, nil, nil, err
		}

		op := jit.Op(opByte)
		instrs[i] = jit.Instr{Op: op, A: int32(a), B: int32(b), C: int32(c)}

		if needsTypeToken(op) {
			tok, err := r.token(h.Name)
			if err != nil {
				return nil, nil, nil, nil, err
			}
			resolved, err := l.ResolveToken(tok)
			if err != nil {
				return nil, nil, nil, nil, err
			}
			instrs[i].TargetType = resolved
		}
	}

	isRefLocal := make([]bool, len(md.LocalsSig))
	for i, td := range md.LocalsSig {
		isRefLocal[i] = td.Kind == typesys.KindReference || td.Kind == typesys.KindArray || td.Kind == typesys.KindInterface
	}

	return instrs, specs, metas, isRefLocal, nil
}
