package typesys

import "github.com/ProtonOS/ProtonOS-sub008/bitset"

// alignTo rounds offset up to the next multiple of align (align must be a
// power of two). Grounded on transcoder/internal/abi's AlignTo helper,
// reused here for field packing instead of canonical-ABI value packing.
func alignTo(offset, align uint32) uint32 {
	if align == 0 {
		return offset
	}
	return (offset + align - 1) &^ (align - 1)
}

// FieldSpec is one field awaiting layout: its declared name and type.
// Instance and static fields are passed in separate lists: LayoutFields
// lays out instance fields; static fields get their own StaticRegion via
// LayoutStatics.
type FieldSpec struct {
	Name string
	Type *TD
}

// LayoutFields packs fields in declaration order, honoring each field's
// TD alignment, per spec.md section 4.A "Algorithm (layout)": "fields are
// packed in declaration order honoring their TD's alignment; reference
// fields may be grouped for barrier efficiency but the bitmap is
// canonical." This implementation does not reorder for barrier grouping
// (the GC has no write barrier to make efficient — spec.md section 4.D
// "Write barrier" — so there is nothing to optimize for), which keeps
// field offsets predictable for diagnostics.
//
// baseSize/baseAlign seed the layout for a reference type's fields, which
// are placed after its base type's fields (value types nested in
// reference types are laid out inline; value types nested in arrays are
// laid out contiguously without object headers, per spec.md section 4.A).
func LayoutFields(fields []FieldSpec, baseSize, baseAlign uint32) (laidOut []FieldInfo, totalSize, align uint32, refBitmap *bitset.BitSet) {
	offset := baseSize
	maxAlign := baseAlign
	if maxAlign == 0 {
		maxAlign = 1
	}

	laidOut = make([]FieldInfo, 0, len(fields))
	var refOffsets []uint32

	for _, f := range fields {
		fieldAlign := f.Type.Align
		if fieldAlign == 0 {
			fieldAlign = 1
		}
		offset = alignTo(offset, fieldAlign)

		isRef := f.Type.Kind == KindReference || f.Type.Kind == KindArray || f.Type.Kind == KindInterface
		laidOut = append(laidOut, FieldInfo{
			Name:        f.Name,
			Offset:      offset,
			Type:        f.Type,
			IsReference: isRef,
		})

		if isRef {
			refOffsets = append(refOffsets, offset)
		} else if f.Type.Kind == KindValue && f.Type.HasRefBitmap != nil {
			// Value type nested inline: its own reference offsets shift
			// by this field's base offset (spec.md invariant 2 must hold
			// transitively through nested value types).
			for _, nested := range f.Type.HasRefBitmap.ToSlice() {
				refOffsets = append(refOffsets, offset+nested*8)
			}
		}

		if fieldAlign > maxAlign {
			maxAlign = fieldAlign
		}
		offset += f.Type.SizeBytes
	}

	totalSize = alignTo(offset, maxAlign)

	maxWord := uint32(0)
	for _, off := range refOffsets {
		if w := off / 8; w > maxWord {
			maxWord = w
		}
	}
	refBitmap = bitset.New(int(maxWord) + 1)
	for _, off := range refOffsets {
		refBitmap.Set(off / 8)
	}

	return laidOut, totalSize, maxAlign, refBitmap
}

// LayoutStatics allocates a TD's static-field region and computes its
// reference offsets the same way LayoutFields does for instances, since
// statics are scanned as GC roots rather than traced through an owning
// object (spec.md section 4.D step 2(b)).
func LayoutStatics(fields []FieldSpec) *StaticRegion {
	laidOut, size, _, refBitmap := LayoutFields(fields, 0, 1)
	region := NewStaticRegion(size)
	for _, f := range laidOut {
		if f.IsReference {
			region.RefOffsets = append(region.RefOffsets, f.Offset)
		}
	}
	_ = refBitmap // bitmap form is redundant with RefOffsets for a flat static region; kept for LayoutFields' single return shape
	return region
}
