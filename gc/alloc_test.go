package gc

import "testing"

func TestHeap_RoutesBySizeToSOHOrLOH(t *testing.T) {
	_, restore := withFakeMemory()
	defer restore()

	soh := NewSOH(&fakePages{next: 0x500000}, fakeVMem{})
	loh := NewLOH(&fakePages{next: 0x510000}, fakeVMem{})
	heap := NewHeap(soh, loh)

	small := leafTD("Small")
	small.SizeBytes = 16
	smallAddr, err := heap.Alloc(small, small.SizeBytes)
	if err != nil {
		t.Fatalf("Alloc small: %v", err)
	}
	if smallAddr < soh.Base() || smallAddr >= soh.Top() {
		t.Errorf("small object should land in the SOH, got %#x (base %#x top %#x)", smallAddr, soh.Base(), soh.Top())
	}
	var sohNodeCount int
	loh.Each(func(n *lohNode) { sohNodeCount++ })
	if sohNodeCount != 0 {
		t.Errorf("small allocation should not have touched the LOH")
	}

	big := leafTD("Big")
	bigAddr, err := heap.Alloc(big, LOHThreshold)
	if err != nil {
		t.Fatalf("Alloc big: %v", err)
	}
	var found bool
	loh.Each(func(n *lohNode) {
		if n.addr == bigAddr {
			found = true
		}
	})
	if !found {
		t.Errorf("object at the LOH threshold should have been routed to the LOH")
	}
}
