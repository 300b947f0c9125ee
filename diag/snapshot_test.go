package diag

import (
	"encoding/json"
	"testing"
)

func TestSnapshot_Emit(t *testing.T) {
	s := Snapshot{
		Types:   []TypeSummary{{Name: "System.Widget", Kind: "reference", SizeBytes: 24}},
		Methods: []MethodSummary{{DeclaringType: "System.Widget", Name: "Frob", Compiled: true}},
		RunQueues: []RunQueueSummary{
			{CPU: 0, Runnable: 2},
			{CPU: 1, Runnable: 1},
		},
		GC: GCSummary{Collections: 3, ObjectsMarked: 100, ObjectsFreed: 40},
	}

	line, err := s.Emit()
	if err != nil {
		t.Fatalf("Emit() error: %v", err)
	}

	var round Snapshot
	if err := json.Unmarshal([]byte(line), &round); err != nil {
		t.Fatalf("Emit() produced non-JSON: %v", err)
	}
	if round.GC.Collections != 3 {
		t.Errorf("round-tripped Collections = %d, want 3", round.GC.Collections)
	}
	if len(round.Types) != 1 || round.Types[0].Name != "System.Widget" {
		t.Errorf("round-tripped Types = %+v", round.Types)
	}
}
