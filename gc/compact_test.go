package gc

import (
	"testing"

	"github.com/ProtonOS/ProtonOS-sub008/hal"
	"github.com/ProtonOS/ProtonOS-sub008/typesys"
)

func TestCollect_CompactsReachableObjectTowardBaseAndUpdatesRoot(t *testing.T) {
	_, restore := withFakeMemory()
	defer restore()

	soh := NewSOH(&fakePages{next: 0x200000}, fakeVMem{})
	loh := NewLOH(&fakePages{next: 0x210000}, fakeVMem{})
	tlab := NewTLAB(soh)
	leaf := leafTD("Leaf")

	// Garbage allocated first, then the surviving object: after
	// compaction the survivor must have moved down to take garbage's
	// place at the region's base.
	if _, err := tlab.Alloc(leaf, leaf.SizeBytes); err != nil {
		t.Fatalf("Alloc garbage: %v", err)
	}
	reachable, err := tlab.Alloc(leaf, leaf.SizeBytes)
	if err != nil {
		t.Fatalf("Alloc reachable: %v", err)
	}

	md := &typesys.MD{Name: "M"}
	md.StackMap = &typesys.StackMap{Safepoints: []typesys.Safepoint{{PCOffset: 0, LiveRegs: []uint8{0}}}}
	var regs [16]hal.VirtAddr
	regs[0] = reachable
	roots := Roots{Threads: []ThreadSnapshot{{Frames: []FrameSnapshot{{MD: md, PCOffset: 0, Regs: regs}}}}}

	c := NewCollector(soh, loh, nil)
	if err := c.Collect(roots); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	newAddr := roots.Threads[0].Frames[0].Regs[0]
	if newAddr != soh.Base() {
		t.Errorf("surviving object should have moved to the SOH base, got %#x want %#x", newAddr, soh.Base())
	}
	gotTD, bits := readHeader(newAddr)
	if gotTD != leaf {
		t.Errorf("header TD after compaction = %v, want %v", gotTD, leaf)
	}
	if bits&typesys.BitMark != 0 {
		t.Errorf("mark bit should be cleared after compaction")
	}

	slotBytes := align8(int(typesys.HeaderWords*8) + int(leaf.SizeBytes))
	wantTop := soh.Base() + hal.VirtAddr(slotBytes)
	if soh.Top() != wantTop {
		t.Errorf("SOH top = %#x, want %#x (garbage reclaimed)", soh.Top(), wantTop)
	}
}

func TestCollect_AdjustsFieldReferenceAfterBothObjectsMove(t *testing.T) {
	_, restore := withFakeMemory()
	defer restore()

	soh := NewSOH(&fakePages{next: 0x300000}, fakeVMem{})
	loh := NewLOH(&fakePages{next: 0x310000}, fakeVMem{})
	tlab := NewTLAB(soh)

	// Garbage first so both surviving objects actually have to move.
	garbageTD := leafTD("Garbage")
	if _, err := tlab.Alloc(garbageTD, garbageTD.SizeBytes); err != nil {
		t.Fatalf("Alloc garbage: %v", err)
	}

	child := leafTD("Child")
	childAddr, _ := tlab.Alloc(child, child.SizeBytes)

	parent := refTD("Parent")
	parentAddr, _ := tlab.Alloc(parent, parent.SizeBytes)
	fieldAddr := parentAddr + hal.VirtAddr(typesys.HeaderWords*8) + 8
	mem.WriteWord(fieldAddr, uintptr(childAddr))

	md := &typesys.MD{Name: "M"}
	md.StackMap = &typesys.StackMap{Safepoints: []typesys.Safepoint{{PCOffset: 0, LiveRegs: []uint8{0}}}}
	var regs [16]hal.VirtAddr
	regs[0] = parentAddr
	roots := Roots{Threads: []ThreadSnapshot{{Frames: []FrameSnapshot{{MD: md, PCOffset: 0, Regs: regs}}}}}

	c := NewCollector(soh, loh, nil)
	if err := c.Collect(roots); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	newParent := roots.Threads[0].Frames[0].Regs[0]
	if newParent == parentAddr {
		t.Fatalf("parent should have moved (garbage preceded it)")
	}
	newFieldAddr := newParent + hal.VirtAddr(typesys.HeaderWords*8) + 8
	gotChildRef := hal.VirtAddr(mem.ReadWord(newFieldAddr))
	if gotChildRef == childAddr {
		t.Errorf("parent's field still points at the child's old address %#x", childAddr)
	}
	gotTD, _ := readHeader(gotChildRef)
	if gotTD != child {
		t.Errorf("parent's field does not point at a valid relocated Child object")
	}
}

func TestFinalizerQueue_TwoPassProtocolAcrossTwoCollections(t *testing.T) {
	_, restore := withFakeMemory()
	defer restore()

	soh := NewSOH(&fakePages{next: 0x400000}, fakeVMem{})
	loh := NewLOH(&fakePages{next: 0x410000}, fakeVMem{})
	tlab := NewTLAB(soh)

	finMD := &typesys.MD{Name: "Finalize"}
	withFinalizer := &typesys.TD{Kind: typesys.KindReference, Name: "Finalizable", SizeBytes: 8, Finalizer: finMD}
	addr, err := tlab.Alloc(withFinalizer, withFinalizer.SizeBytes)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}

	fq := NewFinalizerQueue()
	c := NewCollector(soh, loh, fq)

	// First collection: no roots reference addr, so it is unreachable for
	// the first time. It must survive this round (kept alive for the
	// finalizer) and be recorded pending, not yet queued to run.
	if err := c.Collect(Roots{}); err != nil {
		t.Fatalf("first Collect: %v", err)
	}
	if fq.Pending() != 1 {
		t.Errorf("after first miss, Pending() = %d, want 1", fq.Pending())
	}
	if len(fq.Drain()) != 0 {
		t.Errorf("finalizer should not run after only one missed collection")
	}

	// Second collection: still unreachable. It should now be queued for
	// the finalizer thread.
	if err := c.Collect(Roots{}); err != nil {
		t.Fatalf("second Collect: %v", err)
	}
	entries := fq.Drain()
	if len(entries) != 1 || entries[0].MD != finMD {
		t.Fatalf("expected the finalizer to be queued after a second miss, got %v", entries)
	}
	if fq.KeptAlive() != 1 {
		t.Errorf("object must stay kept-alive until Confirm, KeptAlive() = %d, want 1", fq.KeptAlive())
	}

	// Confirm finalization ran; a further collection should now reclaim it
	// for good (no longer kept alive, nothing resurrects it).
	fq.Confirm(addr)
	if fq.KeptAlive() != 0 {
		t.Errorf("KeptAlive() after Confirm = %d, want 0", fq.KeptAlive())
	}
}
