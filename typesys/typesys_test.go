package typesys

import "testing"

func primitiveTD(name string, size, align uint32) *TD {
	return &TD{Kind: KindPrimitive, Name: name, SizeBytes: size, Align: align, published: true}
}

func TestLayoutFields_PacksAndAligns(t *testing.T) {
	i32 := primitiveTD("int32", 4, 4)
	i64 := primitiveTD("int64", 8, 8)
	ref := &TD{Kind: KindReference, Name: "Object", SizeBytes: 8, Align: 8}

	fields := []FieldSpec{
		{Name: "a", Type: i32},
		{Name: "b", Type: i64}, // must be 8-aligned, so a 4-byte pad is expected after "a"
		{Name: "c", Type: ref},
	}

	laidOut, size, align, bm := LayoutFields(fields, 0, 1)

	if laidOut[0].Offset != 0 {
		t.Errorf("field a offset = %d, want 0", laidOut[0].Offset)
	}
	if laidOut[1].Offset != 8 {
		t.Errorf("field b offset = %d, want 8 (padded for 8-byte alignment)", laidOut[1].Offset)
	}
	if laidOut[2].Offset != 16 {
		t.Errorf("field c offset = %d, want 16", laidOut[2].Offset)
	}
	if !laidOut[2].IsReference {
		t.Errorf("field c should be marked as a reference field")
	}
	if size != 24 {
		t.Errorf("total size = %d, want 24", size)
	}
	if align != 8 {
		t.Errorf("align = %d, want 8", align)
	}
	if !bm.Has(2) { // offset 16 / 8 = word 2
		t.Errorf("expected reference bitmap to mark word 2 (offset 16) live")
	}
	if bm.Has(0) || bm.Has(1) {
		t.Errorf("expected reference bitmap to leave non-reference words clear")
	}
}

func TestIsAssignableTo_BaseChain(t *testing.T) {
	object := &TD{Kind: KindReference, Name: "Object"}
	animal := &TD{Kind: KindReference, Name: "Animal", Base: object}
	dog := &TD{Kind: KindReference, Name: "Dog", Base: animal}
	cat := &TD{Kind: KindReference, Name: "Cat", Base: animal}

	if !IsAssignableTo(dog, animal) {
		t.Errorf("Dog should be assignable to Animal")
	}
	if !IsAssignableTo(dog, object) {
		t.Errorf("Dog should be assignable to Object (transitively)")
	}
	if IsAssignableTo(dog, cat) {
		t.Errorf("Dog should not be assignable to Cat")
	}
	if !IsAssignableTo(dog, dog) {
		t.Errorf("a type should be assignable to itself")
	}
}

func TestIsAssignableTo_Interfaces(t *testing.T) {
	iface := &TD{Kind: KindInterface, Name: "IFoo"}
	impl := &TD{Kind: KindReference, Name: "Impl", Interfaces: []InterfaceMapEntry{{Interface: iface, SlotOffset: 0}}}
	other := &TD{Kind: KindReference, Name: "Other"}

	if !IsAssignableTo(impl, iface) {
		t.Errorf("Impl should be assignable to IFoo")
	}
	if IsAssignableTo(other, iface) {
		t.Errorf("Other should not be assignable to IFoo")
	}
}

func TestIsAssignableTo_ArrayCovariance(t *testing.T) {
	object := &TD{Kind: KindReference, Name: "Object"}
	animal := &TD{Kind: KindReference, Name: "Animal", Base: object}
	dog := &TD{Kind: KindReference, Name: "Dog", Base: animal}

	dogArray := &TD{Kind: KindArray, Element: dog}
	animalArray := &TD{Kind: KindArray, Element: animal}

	if !IsAssignableTo(dogArray, animalArray) {
		t.Errorf("Dog[] should be covariantly assignable to Animal[]")
	}

	i32 := primitiveTD("int32", 4, 4)
	i32Array := &TD{Kind: KindArray, Element: i32}
	i64 := primitiveTD("int64", 8, 8)
	i64Array := &TD{Kind: KindArray, Element: i64}
	if IsAssignableTo(i32Array, i64Array) {
		t.Errorf("value-type arrays must be invariant, not covariant")
	}
}

func TestGetVTableSlot(t *testing.T) {
	td := &TD{Name: "Widget", VTable: []CodePtr{0x1000, 0x1010, 0x1020}}

	slot, err := GetVTableSlot(td, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if slot != 0x1010 {
		t.Errorf("slot = %#x, want 0x1010", slot)
	}

	if _, err := GetVTableSlot(td, 5); err == nil {
		t.Errorf("expected error for out-of-range index")
	}
}

func TestGetInterfaceSlot(t *testing.T) {
	iface := &TD{Name: "IFoo"}
	td := &TD{
		Name:       "Widget",
		VTable:     []CodePtr{0x1000, 0x1010, 0x1020, 0x1030},
		Interfaces: []InterfaceMapEntry{{Interface: iface, SlotOffset: 2}},
	}

	slot, err := GetInterfaceSlot(td, iface, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if slot != 0x1030 {
		t.Errorf("slot = %#x, want 0x1030", slot)
	}

	other := &TD{Name: "IBar"}
	if _, err := GetInterfaceSlot(td, other, 0); err == nil {
		t.Errorf("expected error for unimplemented interface")
	}
}

func TestInstantiationTable_SameKeySameTD(t *testing.T) {
	tbl := NewInstantiationTable()
	listDef := &TD{Name: "List"}
	intArg := primitiveTD("int32", 4, 4)

	builds := 0
	build := func() *TD {
		builds++
		return &TD{Name: "List<int32>", GenericDef: listDef, TypeArgs: []*TD{intArg}}
	}

	a := tbl.GetOrCreate(listDef, []*TD{intArg}, build)
	b := tbl.GetOrCreate(listDef, []*TD{intArg}, build)

	if a != b {
		t.Errorf("expected the same TD pointer for equal keys")
	}
	if builds != 1 {
		t.Errorf("build() called %d times, want 1", builds)
	}
}

func TestCanShareCodeBody(t *testing.T) {
	ref := &TD{Kind: KindReference, Name: "Object"}
	val := &TD{Kind: KindValue, Name: "int32"}

	if !CanShareCodeBody([]*TD{ref, ref}) {
		t.Errorf("all-reference-type args should allow code sharing")
	}
	if CanShareCodeBody([]*TD{ref, val}) {
		t.Errorf("a value-type arg should force a distinct code body")
	}
}

func TestMD_CompileOnce(t *testing.T) {
	md := &MD{Name: "Frob"}
	md.SetTrampoline(0xCAFE)

	calls := 0
	compile := func(m *MD) (CodePtr, error) {
		calls++
		m.StackMap = &StackMap{}
		return 0xBEEF, nil
	}

	if err := md.CompileOnce(compile); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := md.CompileOnce(compile); err != nil {
		t.Fatalf("unexpected error on second call: %v", err)
	}

	if calls != 1 {
		t.Errorf("compile called %d times, want 1", calls)
	}
	if md.Entry() != 0xBEEF {
		t.Errorf("entry = %#x, want 0xBEEF", md.Entry())
	}
	if !md.Compiled() {
		t.Errorf("expected Compiled() to be true after CompileOnce")
	}
}

func TestDelegateDescriptor_Combine(t *testing.T) {
	m1 := &MD{Name: "OnClickA"}
	m2 := &MD{Name: "OnClickB"}

	d1 := NewSingleDelegate(m1, 0x1)
	d2 := NewSingleDelegate(m2, 0x2)

	combined := d1.Combine(d2)
	if len(combined.InvocationList) != 2 {
		t.Fatalf("combined list len = %d, want 2", len(combined.InvocationList))
	}
	if combined.InvocationList[0].Target != m1 || combined.InvocationList[1].Target != m2 {
		t.Errorf("combine should preserve invocation order")
	}
}

func TestStackMap_At(t *testing.T) {
	sm := &StackMap{Safepoints: []Safepoint{
		{PCOffset: 10, LiveRegs: []uint8{0}},
		{PCOffset: 40, LiveRegs: []uint8{1, 2}},
	}}

	sp, ok := sm.At(40)
	if !ok {
		t.Fatalf("expected a safepoint at PC 40")
	}
	if len(sp.LiveRegs) != 2 {
		t.Errorf("LiveRegs len = %d, want 2", len(sp.LiveRegs))
	}

	if _, ok := sm.At(25); ok {
		t.Errorf("expected no safepoint at PC 25")
	}
}

func TestEHTable_EnclosingInnermostFirst(t *testing.T) {
	catchTD := &TD{Name: "Exception"}
	tbl := &EHTable{Regions: []EHRegion{
		{TryStartPC: 0, TryEndPC: 100, Kind: HandlerFinally, HandlerPC: 90, Nesting: 0},
		{TryStartPC: 10, TryEndPC: 50, Kind: HandlerCatch, HandlerPC: 60, CatchTD: catchTD, Nesting: 1},
	}}

	enclosing := tbl.Enclosing(20)
	if len(enclosing) != 2 {
		t.Fatalf("expected 2 enclosing regions, got %d", len(enclosing))
	}
	if enclosing[0].Nesting != 1 {
		t.Errorf("expected innermost (highest nesting) region first, got nesting %d", enclosing[0].Nesting)
	}
}
