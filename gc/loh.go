package gc

import (
	"sync"

	"github.com/ProtonOS/ProtonOS-sub008/errors"
	"github.com/ProtonOS/ProtonOS-sub008/hal"
	"github.com/ProtonOS/ProtonOS-sub008/typesys"
)

// lohNode is one entry of the large-object heap's doubly-linked list: an
// individually mapped region holding exactly one object (spec.md section
// 4.D "the LOH is a doubly-linked list of individually mapped regions").
type lohNode struct {
	prev, next *lohNode
	addr       hal.VirtAddr
	phys       hal.PhysAddr
	pages      int
}

// LOH is the large-object heap. Grounded on resource/table.go's
// UnifiedTable insert/remove/iterate lifecycle (Insert records a new
// entry and fires a create event, Remove drops one and fires a destroy
// event), retargeted from a handle-indexed table to a doubly-linked list
// because LOH entries are individually mapped address regions rather than
// slots in a shared backing array, and because the collector's sweep
// (mark.go, compact.go) needs cheap O(1) unlink of an arbitrary node
// during a single forward walk.
type LOH struct {
	mu    sync.Mutex
	pages hal.PageAllocator
	vmem  hal.VirtualMemory
	head  *lohNode
	tail  *lohNode
}

// NewLOH constructs an empty large-object heap.
func NewLOH(pages hal.PageAllocator, vmem hal.VirtualMemory) *LOH {
	return &LOH{pages: pages, vmem: vmem}
}

// Alloc maps a fresh region sized for an instance of td (size bytes of
// payload, e.g. from AllocArray's array computation) and links it at the
// tail of the LOH list. Called for any allocation at or above
// LOHThreshold instead of routing through a TLAB.
func (l *LOH) Alloc(td *typesys.TD, size uint32) (hal.VirtAddr, error) {
	total := int(typesys.HeaderWords*8) + align8(int(size))
	pagesNeeded := (total + pageSize - 1) / pageSize

	phys, err := l.pages.AllocContiguous(pagesNeeded, hal.AllocZeroed)
	if err != nil {
		return 0, errors.OutOfMemory("page allocator exhausted allocating a large object")
	}
	va, err := l.vmem.Map(phys, uintptr(pagesNeeded*pageSize), hal.ProtRead|hal.ProtWrite)
	if err != nil {
		l.pages.Free(phys, pagesNeeded)
		return 0, err
	}

	writeHeader(va, td, 0)

	node := &lohNode{addr: va, phys: phys, pages: pagesNeeded}
	l.mu.Lock()
	if l.tail == nil {
		l.head, l.tail = node, node
	} else {
		node.prev = l.tail
		l.tail.next = node
		l.tail = node
	}
	l.mu.Unlock()

	return va, nil
}

// AllocArray is the LOH counterpart of TLAB.AllocArray: computes the
// total size from the element count, allocates it, and writes the length
// word.
func (l *LOH) AllocArray(td *typesys.TD, length uint32) (hal.VirtAddr, error) {
	payload := uint32(typesys.ArrayHeaderWords-typesys.HeaderWords)*8 + length*elementSlotSize(td.Element)
	addr, err := l.Alloc(td, payload)
	if err != nil {
		return 0, err
	}
	mem.WriteU32(addr+hal.VirtAddr(typesys.HeaderWords*8), length)
	return addr, nil
}

// Each visits every live LOH node's object address in list order. Used by
// mark.go to enumerate LOH allocation sites during root-reachable
// traversal is not needed here (LOH objects are reached like any other
// heap object, by following references from roots) — Each exists for
// compact.go's sweep pass, which must walk the whole list to find
// unmarked nodes.
func (l *LOH) Each(fn func(node *lohNode)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for n := l.head; n != nil; n = n.next {
		fn(n)
	}
}

// unlink removes node from the list and unmaps its backing pages. Called
// only by the collector's LOH sweep step (spec.md section 4.D step 6)
// while the world is stopped, so no further locking is required beyond
// protecting the list pointers from a concurrent Alloc on another CPU.
func (l *LOH) unlink(node *lohNode) {
	l.mu.Lock()
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		l.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		l.tail = node.prev
	}
	l.mu.Unlock()

	l.vmem.Unmap(node.addr, uintptr(node.pages*pageSize))
	l.pages.Free(node.phys, node.pages)
}
