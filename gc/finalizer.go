package gc

import (
	"sync"

	"github.com/ProtonOS/ProtonOS-sub008/hal"
	"github.com/ProtonOS/ProtonOS-sub008/typesys"
)

// FinalizerEntry pairs a dying object's address with the finalizer method
// to run on it, handed to a dedicated finalizer thread (spec.md section
// 4.D "finalized on a dedicated thread before their storage is
// reclaimed").
type FinalizerEntry struct {
	Addr hal.VirtAddr
	MD   *typesys.MD
}

// FinalizerQueue implements the two-pass finalization protocol (spec.md
// section 4.D): an object with a finalizer found unreachable is first
// recorded pending and kept alive through one more collection so its
// fields stay valid; found unreachable a second time, it moves to the
// ready queue for the finalizer thread to run, but its storage is still
// kept alive (via the collector re-marking it each cycle) until the
// finalizer thread calls Confirm, at which point nothing resurrects it
// and the next collection reclaims it normally. Grounded on
// resource/table.go's Dropper interface (Drop() invoked exactly once when
// a handle's last reference is removed), retargeted from that immediate
// single-pass drop into this queue-then-reclaim protocol.
type FinalizerQueue struct {
	mu        sync.Mutex
	pending   map[hal.VirtAddr]*typesys.MD // found unreachable once
	keepAlive map[hal.VirtAddr]*typesys.MD // queued for the finalizer thread; storage still protected
	confirmed map[hal.VirtAddr]bool        // finalizer already ran; next miss is ordinary garbage
	ready     []FinalizerEntry
}

// NewFinalizerQueue returns an empty queue.
func NewFinalizerQueue() *FinalizerQueue {
	return &FinalizerQueue{
		pending:   make(map[hal.VirtAddr]*typesys.MD),
		keepAlive: make(map[hal.VirtAddr]*typesys.MD),
		confirmed: make(map[hal.VirtAddr]bool),
	}
}

// advance records that addr was found unreachable during this collection,
// transitioning it from unseen -> pending -> keepAlive (enqueuing it for
// the finalizer thread on that second transition). Reports whether the
// collector must resurrect addr for this cycle: false once its finalizer
// has already been confirmed, at which point it is ordinary garbage and
// the confirmed marker is consumed so a later, unrelated object reusing
// the same address starts the protocol fresh.
func (q *FinalizerQueue) advance(addr hal.VirtAddr, fin *typesys.MD) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.confirmed[addr] {
		delete(q.confirmed, addr)
		return false
	}
	if _, ok := q.keepAlive[addr]; ok {
		return true
	}
	if _, ok := q.pending[addr]; ok {
		delete(q.pending, addr)
		q.keepAlive[addr] = fin
		q.ready = append(q.ready, FinalizerEntry{Addr: addr, MD: fin})
		return true
	}
	q.pending[addr] = fin
	return true
}

// clearIfTracked removes addr from both the pending and keep-alive sets,
// called when a collection finds it reachable again — ordinary references
// resurrected it before its finalizer ever ran, so finalization is
// cancelled. Reports whether addr was tracked at all.
func (q *FinalizerQueue) clearIfTracked(addr hal.VirtAddr) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, p := q.pending[addr]
	_, k := q.keepAlive[addr]
	delete(q.pending, addr)
	delete(q.keepAlive, addr)
	return p || k
}

// Confirm tells the queue that addr's finalizer has finished running, so
// it may stop being kept alive — the next collection that finds it
// unreachable reclaims its storage for good instead of restarting the
// two-pass protocol.
func (q *FinalizerQueue) Confirm(addr hal.VirtAddr) {
	q.mu.Lock()
	delete(q.keepAlive, addr)
	q.confirmed[addr] = true
	q.mu.Unlock()
}

// Drain removes and returns every entry the finalizer thread has not yet
// run, for it to invoke in order.
func (q *FinalizerQueue) Drain() []FinalizerEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.ready
	q.ready = nil
	return out
}

// Pending reports how many objects are waiting for a second collection to
// confirm they are still unreachable. Exposed for tests and diagnostics.
func (q *FinalizerQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// KeptAlive reports how many objects are queued for the finalizer thread
// but not yet confirmed finalized.
func (q *FinalizerQueue) KeptAlive() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.keepAlive)
}
