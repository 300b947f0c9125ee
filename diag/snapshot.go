package diag

import "encoding/json"

// Snapshot is the diagnostic dump format emitted over Console for offline
// inspection by cmd/coreinspect (SPEC_FULL.md "Diagnostic dump format").
// The core never writes this to a filesystem — there isn't one in scope —
// Emit renders it as one JSON line for a Console.Write call; the developer captures that off
// the serial console and feeds the file to cmd/coreinspect.
type Snapshot struct {
	Types     []TypeSummary     `json:"types"`
	Methods   []MethodSummary   `json:"methods"`
	RunQueues []RunQueueSummary `json:"run_queues"`
	GC        GCSummary         `json:"gc"`
}

// TypeSummary is a flattened view of one typesys.TD, enough to browse
// layout/vtable/interface-map shape without the core exposing live pointers.
type TypeSummary struct {
	Name            string   `json:"name"`
	Kind            string   `json:"kind"`
	SizeBytes       uint32   `json:"size_bytes"`
	Alignment       uint32   `json:"alignment"`
	VTableLen       int      `json:"vtable_len"`
	InterfaceCount  int      `json:"interface_count"`
	FieldNames      []string `json:"field_names"`
	HasRefBitmapLen int      `json:"has_ref_bitmap_len"`
}

// MethodSummary is a flattened view of one typesys.MD, including whether
// its JIT side tables have been emitted yet.
type MethodSummary struct {
	DeclaringType string `json:"declaring_type"`
	Name          string `json:"name"`
	Compiled      bool   `json:"compiled"`
	SafepointsLen int    `json:"safepoints_len"`
	EHRegionsLen  int    `json:"eh_regions_len"`
}

// RunQueueSummary is a per-CPU scheduler snapshot line (spec.md section 8
// scenario 5's "final run-queue sum" property).
type RunQueueSummary struct {
	CPU        int `json:"cpu"`
	Runnable   int `json:"runnable"`
	Running    int `json:"running"`
	ParkedGC   int `json:"parked_gc"`
}

// GCSummary is the heap-bounds/mark-retain counters spec.md section 8 pins
// ("sum of objects marked equals sum of objects retained").
type GCSummary struct {
	Collections   uint64 `json:"collections"`
	LiveBytesSOH  uint64 `json:"live_bytes_soh"`
	LiveBytesLOH  uint64 `json:"live_bytes_loh"`
	ObjectsMarked uint64 `json:"objects_marked"`
	ObjectsFreed  uint64 `json:"objects_freed"`
}

// Emit serializes the snapshot to one compact JSON line and returns it.
// It writes nothing itself; the caller passes the line to Console.Write
// as the single Write call described above.
func (s Snapshot) Emit() (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
