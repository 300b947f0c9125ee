package typesys

// FieldInfo describes one field of a TD's layout: its byte offset within
// an instance, its type, and whether gc must trace through it.
type FieldInfo struct {
	Name        string
	Offset      uint32
	Type        *TD
	IsReference bool
	IsStatic    bool
}

// StaticRegion is the storage backing a TD's static fields. Per DESIGN.md's
// Open Question decision, this is owned per-TD rather than drawn from one
// global table.
type StaticRegion struct {
	Bytes []byte
	// RefOffsets are the byte offsets within Bytes that hold references,
	// scanned as GC roots (spec.md section 4.D step 2(b)).
	RefOffsets []uint32
}

// NewStaticRegion allocates a zeroed static-field region of size bytes.
func NewStaticRegion(size uint32) *StaticRegion {
	return &StaticRegion{Bytes: make([]byte, size)}
}
