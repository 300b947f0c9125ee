package typesys

// HeaderWords is the number of pointer-sized words at the start of every
// heap object, spec.md section 3 "Object header". The header carries the
// TD pointer plus GC metadata bits packed into its low, unused address
// bits (the four bits below need a TD pointer aligned to 16 bytes).
const HeaderWords = 1

// HeaderBits are the GC metadata bits packed into the low bits of an
// object header's TD pointer word (spec.md section 3).
type HeaderBits uintptr

const (
	BitMark HeaderBits = 1 << iota
	BitForwarding
	BitPinned
	BitHashSeeded

	headerBitMask = BitMark | BitForwarding | BitPinned | BitHashSeeded
)

// PackHeader combines a TD address with its metadata bits. td must already
// be aligned such that its low bits (up to headerBitMask's width) are zero.
func PackHeader(td uintptr, bits HeaderBits) uintptr {
	return (td &^ uintptr(headerBitMask)) | uintptr(bits)
}

// UnpackHeader splits a header word back into the TD address and its bits.
func UnpackHeader(word uintptr) (tdAddr uintptr, bits HeaderBits) {
	return word &^ uintptr(headerBitMask), HeaderBits(word) & headerBitMask
}

// ArrayHeaderWords is the number of words preceding an array's elements:
// the object header, then a length word (spec.md section 3).
const ArrayHeaderWords = HeaderWords + 1

// StringHeaderWords is the number of words preceding a string's UTF-16
// code units: the object header, then a length word (spec.md section 3).
const StringHeaderWords = HeaderWords + 1

// BoxedValueOffset is the byte offset, from the start of a boxed object's
// payload (i.e. past the header), at which the wrapped value type's bytes
// begin. Fixed at zero: a boxed object is exactly [header][value bytes],
// so jit codegen and gc root-scanning agree on a single layout
// (SPEC_FULL.md "Boxing layout").
const BoxedValueOffset = 0
