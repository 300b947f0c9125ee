package gc

import (
	"testing"

	"github.com/ProtonOS/ProtonOS-sub008/hal"
	"github.com/ProtonOS/ProtonOS-sub008/typesys"
)

func TestMark_ReachableThroughRegisterRootGetsMarked(t *testing.T) {
	_, restore := withFakeMemory()
	defer restore()

	soh := NewSOH(&fakePages{next: 0x80000}, fakeVMem{})
	tlab := NewTLAB(soh)
	leaf := leafTD("Leaf")

	addr, err := tlab.Alloc(leaf, leaf.SizeBytes)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}

	md := &typesys.MD{Name: "Method"}
	md.StackMap = &typesys.StackMap{Safepoints: []typesys.Safepoint{
		{PCOffset: 10, LiveRegs: []uint8{0}},
	}}
	var regs [16]hal.VirtAddr
	regs[0] = addr

	roots := Roots{Threads: []ThreadSnapshot{{Frames: []FrameSnapshot{
		{MD: md, PCOffset: 10, Regs: regs},
	}}}}

	c := NewCollector(soh, NewLOH(&fakePages{next: 0x90000}, fakeVMem{}), nil)
	if err := c.Mark(roots); err != nil {
		t.Fatalf("Mark: %v", err)
	}
	if !isMarked(addr) {
		t.Errorf("object reachable via a live register should be marked")
	}
}

func TestMark_UnreachableObjectNotMarked(t *testing.T) {
	_, restore := withFakeMemory()
	defer restore()

	soh := NewSOH(&fakePages{next: 0xa0000}, fakeVMem{})
	tlab := NewTLAB(soh)
	leaf := leafTD("Leaf")

	addr, _ := tlab.Alloc(leaf, leaf.SizeBytes)

	c := NewCollector(soh, NewLOH(&fakePages{next: 0xb0000}, fakeVMem{}), nil)
	if err := c.Mark(Roots{}); err != nil {
		t.Fatalf("Mark: %v", err)
	}
	if isMarked(addr) {
		t.Errorf("object with no roots should not be marked")
	}
}

func TestMark_TraversesReferenceFieldToChild(t *testing.T) {
	_, restore := withFakeMemory()
	defer restore()

	soh := NewSOH(&fakePages{next: 0xc0000}, fakeVMem{})
	tlab := NewTLAB(soh)

	child := leafTD("Child")
	childAddr, _ := tlab.Alloc(child, child.SizeBytes)

	parent := refTD("Parent")
	parentAddr, _ := tlab.Alloc(parent, parent.SizeBytes)
	// field at instance offset 8 (bit 1 of the bitmap) holds the reference.
	mem.WriteWord(parentAddr+hal.VirtAddr(typesys.HeaderWords*8)+8, uintptr(childAddr))

	md := &typesys.MD{Name: "Method"}
	md.StackMap = &typesys.StackMap{Safepoints: []typesys.Safepoint{
		{PCOffset: 0, LiveRegs: []uint8{0}},
	}}
	var regs [16]hal.VirtAddr
	regs[0] = parentAddr

	roots := Roots{Threads: []ThreadSnapshot{{Frames: []FrameSnapshot{
		{MD: md, PCOffset: 0, Regs: regs},
	}}}}

	c := NewCollector(soh, NewLOH(&fakePages{next: 0xd0000}, fakeVMem{}), nil)
	if err := c.Mark(roots); err != nil {
		t.Fatalf("Mark: %v", err)
	}
	if !isMarked(parentAddr) {
		t.Errorf("parent should be marked (directly rooted)")
	}
	if !isMarked(childAddr) {
		t.Errorf("child should be marked (reachable through parent's reference field)")
	}
}

func TestMark_MissingStackMapErrors(t *testing.T) {
	_, restore := withFakeMemory()
	defer restore()

	soh := NewSOH(&fakePages{next: 0xe0000}, fakeVMem{})
	md := &typesys.MD{Name: "Uncompiled"} // StackMap is nil

	roots := Roots{Threads: []ThreadSnapshot{{Frames: []FrameSnapshot{
		{MD: md, PCOffset: 0},
	}}}}

	c := NewCollector(soh, NewLOH(&fakePages{next: 0xf0000}, fakeVMem{}), nil)
	if err := c.Mark(roots); err == nil {
		t.Fatalf("expected an error marking against an uncompiled method's frame")
	}
}

func TestMark_StaticRootTraced(t *testing.T) {
	_, restore := withFakeMemory()
	defer restore()

	soh := NewSOH(&fakePages{next: 0x110000}, fakeVMem{})
	tlab := NewTLAB(soh)
	leaf := leafTD("Leaf")
	addr, _ := tlab.Alloc(leaf, leaf.SizeBytes)

	sr := typesys.NewStaticRegion(16)
	writeWordToBytes(sr.Bytes, 8, uintptr(addr))
	sr.RefOffsets = []uint32{8}

	c := NewCollector(soh, NewLOH(&fakePages{next: 0x120000}, fakeVMem{}), nil)
	if err := c.Mark(Roots{Statics: []*typesys.StaticRegion{sr}}); err != nil {
		t.Fatalf("Mark: %v", err)
	}
	if !isMarked(addr) {
		t.Errorf("object referenced by a static field should be marked")
	}
}
