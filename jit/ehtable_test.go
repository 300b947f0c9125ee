package jit

import (
	"testing"

	"github.com/ProtonOS/ProtonOS-sub008/typesys"
)

func TestBuildEHTable_NestingByContainment(t *testing.T) {
	// outer try [0,20), inner try [5,10) nested inside it.
	specs := []EHRegionSpec{
		{TryStartPC: 0, TryEndPC: 20, HandlerPC: 20},
		{TryStartPC: 5, TryEndPC: 10, HandlerPC: 10},
	}
	meta := []EHRegionMeta{
		{Kind: typesys.HandlerCatch},
		{Kind: typesys.HandlerCatch},
	}
	table := BuildEHTable(specs, meta)
	if table.Regions[0].Nesting != 0 {
		t.Errorf("outer region Nesting = %d, want 0", table.Regions[0].Nesting)
	}
	if table.Regions[1].Nesting != 1 {
		t.Errorf("inner region Nesting = %d, want 1", table.Regions[1].Nesting)
	}
}

func TestBuildEHTable_SiblingsNotNested(t *testing.T) {
	specs := []EHRegionSpec{
		{TryStartPC: 0, TryEndPC: 10, HandlerPC: 10},
		{TryStartPC: 10, TryEndPC: 20, HandlerPC: 20},
	}
	table := BuildEHTable(specs, nil)
	if table.Regions[0].Nesting != 0 || table.Regions[1].Nesting != 0 {
		t.Errorf("disjoint sibling regions should both have Nesting 0, got %d and %d",
			table.Regions[0].Nesting, table.Regions[1].Nesting)
	}
}

func TestEHTable_EnclosingOrdersInnermostFirst(t *testing.T) {
	specs := []EHRegionSpec{
		{TryStartPC: 0, TryEndPC: 20, HandlerPC: 20},
		{TryStartPC: 5, TryEndPC: 10, HandlerPC: 10},
	}
	table := BuildEHTable(specs, nil)
	enclosing := table.Enclosing(7)
	if len(enclosing) != 2 {
		t.Fatalf("pc 7 should be enclosed by both regions, got %d", len(enclosing))
	}
	if enclosing[0].Nesting < enclosing[1].Nesting {
		t.Errorf("expected innermost-first order, got Nesting %d then %d", enclosing[0].Nesting, enclosing[1].Nesting)
	}
}
