package gc

import (
	"sync"
	"sync/atomic"
)

// Coordinator implements the stop-the-world safepoint rendezvous (spec.md
// section 4.D step 1, section 4.F "GC cooperation"): it raises a global
// flag every mutator's safepoint poll observes, waits for every CPU to
// park, lets the collector run, then clears the flag and wakes every
// parked mutator. Grounded on engine/wazero.go's wasiInitMu sync.Mutex +
// wasiInitDone atomic.Bool pairing, generalized from "has one-time
// initialization already run" to "is a collection in progress right now",
// and from a single waiter to an N-of-N rendezvous built on sync.Cond.
//
// spec.md section 5 requires a full memory fence before the coordinator
// declares "all parked" and again before resume; Go's memory model gives
// that for free here, since both the parked-count update and the
// requested flag are synchronized through mu/atomic.Bool, which already
// establish the needed happens-before edges — no separate fence call is
// required.
type Coordinator struct {
	mu        sync.Mutex
	cond      *sync.Cond
	requested atomic.Bool
	cpuCount  int
	parked    int
	resumeGen uint64
}

// NewCoordinator builds a rendezvous for cpuCount mutator-bearing CPUs.
func NewCoordinator(cpuCount int) *Coordinator {
	c := &Coordinator{cpuCount: cpuCount}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Requested reports whether a collection has been requested — the single
// check every safepoint poll performs, shared with the scheduler's
// preemption-requested check (spec.md section 4.F).
func (c *Coordinator) Requested() bool { return c.requested.Load() }

// RequestCollection raises the global flag, typically from an
// allocation's slow path that found the heap exhausted.
func (c *Coordinator) RequestCollection() { c.requested.Store(true) }

// ParkAndWait is called by a mutator thread once it observes Requested()
// at a safepoint: it records that this CPU has parked and blocks until
// the collector has finished this round and Resume has been called.
func (c *Coordinator) ParkAndWait() {
	c.mu.Lock()
	defer c.mu.Unlock()

	myGen := c.resumeGen
	c.parked++
	if c.parked == c.cpuCount {
		c.cond.Broadcast()
	}
	for c.resumeGen == myGen {
		c.cond.Wait()
	}
}

// Quiescent blocks the GC coordinator thread until every mutator CPU has
// parked (spec.md section 4.D step 1 "When all have parked, the heap is
// quiescent").
func (c *Coordinator) Quiescent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.parked < c.cpuCount {
		c.cond.Wait()
	}
}

// Resume clears the GC flag, resets the parked count, and wakes every
// mutator blocked in ParkAndWait (spec.md section 4.D step 7 "Clear the
// GC flag. Mutators unpark.").
func (c *Coordinator) Resume() {
	c.mu.Lock()
	c.requested.Store(false)
	c.parked = 0
	c.resumeGen++
	c.mu.Unlock()
	c.cond.Broadcast()
}

// RunCycle is the coordinator-side convenience wrapper spec.md's seven
// steps describe: request a collection, wait for every mutator to park,
// run collect against the given roots, then resume. The caller supplies
// roots (gathered from the scheduler's parked thread snapshots) only
// after Quiescent returns, since roots are only valid once every mutator
// has actually stopped moving them.
func (c *Coordinator) RunCycle(collector *Collector, gatherRoots func() Roots) error {
	c.RequestCollection()
	c.Quiescent()
	err := collector.Collect(gatherRoots())
	c.Resume()
	return err
}
