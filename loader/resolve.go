package loader

import (
	"github.com/ProtonOS/ProtonOS-sub008/errors"
	"github.com/ProtonOS/ProtonOS-sub008/typesys"
)

// TokenKind distinguishes what a cross-module Token refers to, mirroring
// the three return shapes spec.md section 4.B's ResolveToken operation can
// produce.
type TokenKind uint8

const (
	TokenTypeRef TokenKind = iota
	TokenMethodRef
	TokenFieldRef
)

// Token is an unresolved cross-module reference, as it would appear inside
// a method body's bytecode before the loader resolves it: which module it
// names (by path in the Loader's Namespace), and which row of that module's
// TypeDef/MethodDef/FieldDef table.
type Token struct {
	Kind       TokenKind
	ModulePath string
	Index      int
}

// FieldDescriptor is the resolved form of a TokenFieldRef: the owning TD and
// the already-laid-out FieldInfo for that field.
type FieldDescriptor struct {
	Owner *typesys.TD
	Field typesys.FieldInfo
}

// ResolveToken resolves a cross-module Token against the Loader's
// namespace, lazily loading is explicitly NOT performed here — the target
// module must already have been loaded via LoadModule (spec.md section
// 4.B's laziness is about deferring resolution until an MD's first
// trampoline entry, not about loading modules on demand; module bytes
// arrive from the host, which the loader has no way to fetch itself).
//
// Resolution failures raise TypeLoadFailed (module or type missing) or
// MissingMember (method or field missing), per spec.md section 4.B.
func (l *Loader) ResolveToken(tok Token) (any, error) {
	h := l.root.Resolve(tok.ModulePath)
	if h == nil {
		return nil, errors.TypeLoadFailed(tok.ModulePath, "referenced module is not loaded")
	}

	switch tok.Kind {
	case TokenTypeRef:
		td, err := h.Type(tok.Index)
		if err != nil {
			return nil, errors.TypeLoadFailed(tok.ModulePath, err.Error())
		}
		return td, nil

	case TokenMethodRef:
		md, err := h.Method(tok.Index)
		if err != nil {
			return nil, errors.MissingMember(tok.ModulePath, err.Error())
		}
		return md, nil

	case TokenFieldRef:
		return l.resolveFieldToken(h, tok.Index)

	default:
		return nil, errors.TypeLoadFailed(tok.ModulePath, "unknown token kind")
	}
}

// resolveFieldToken looks a flat FieldDef index up via the
// fieldOwner/fieldLocalIndex tables buildFields recorded at load time. A
// negative fieldLocalIndex encodes a static field: -(i+1) is the field's
// position among Owner's static fields (the order LayoutStatics laid them
// out in Owner.StaticRegion.Bytes), which has no typesys.FieldInfo
// counterpart (statics are scanned by offset into StaticRegion.Bytes, not
// by an instance FieldInfo).
func (l *Loader) resolveFieldToken(h *ModuleHandle, index int) (*FieldDescriptor, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if index < 0 || index >= len(h.fieldOwner) || h.fieldOwner[index] == nil {
		return nil, errors.MissingMember(h.Name, "field index out of range")
	}

	owner := h.fieldOwner[index]
	localIdx := h.fieldLocalIndex[index]
	if localIdx < 0 {
		return nil, errors.MissingMember(h.Name, "static field references must resolve through StaticRegion, not FieldDescriptor")
	}
	if localIdx >= len(owner.Fields) {
		return nil, errors.MissingMember(h.Name, "field index out of range")
	}
	return &FieldDescriptor{Owner: owner, Field: owner.Fields[localIdx]}, nil
}
