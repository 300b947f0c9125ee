package sched

import "sync/atomic"

// InterlockedCompareExchange atomically compares *addr to comparand and,
// if equal, stores value; it always returns the value read from *addr
// before the attempt (spec.md section 6 "Thread APIs surfaced to managed
// code: ... interlocked compare-exchange / add"). Grounded on
// gc/safepoint.go's existing atomic.Bool usage for cross-thread flags,
// generalized here to the int64 CAS a managed Interlocked.CompareExchange
// call needs.
func InterlockedCompareExchange(addr *int64, comparand, value int64) int64 {
	for {
		old := atomic.LoadInt64(addr)
		if old != comparand {
			return old
		}
		if atomic.CompareAndSwapInt64(addr, old, value) {
			return old
		}
	}
}

// InterlockedAdd atomically adds delta to *addr and returns the new
// value.
func InterlockedAdd(addr *int64, delta int64) int64 {
	return atomic.AddInt64(addr, delta)
}
