// Package sched implements the preemptive per-CPU thread scheduler
// (spec.md section 4.F): one run queue per CPU, a periodic-tick
// dispatcher, and safepoints that cooperate with the garbage collector's
// stop-the-world rendezvous (package gc).
package sched

import "sync"

// RunQueue is one CPU's FIFO of runnable threads (spec.md section 4.F
// "Structure ... each queue is a simple FIFO of runnable threads"). Owned
// by one CPU and mutated by that CPU plus occasional remote enqueues from
// a waking thread or a work-stealing neighbor, guarded by a per-queue
// mutex (spec.md section 5 "guarded by a per-queue spinlock" — the
// teacher repo never hand-rolls a spinlock, using sync.Mutex/sync.RWMutex
// throughout linker/resource instead, and spec.md explicitly allows
// whatever primitive fits; this follows the teacher's own idiom).
type RunQueue struct {
	mu    sync.Mutex
	items []*Thread
}

// NewRunQueue returns an empty run queue.
func NewRunQueue() *RunQueue { return &RunQueue{} }

// Push enqueues t at the back of the queue.
func (q *RunQueue) Push(t *Thread) {
	q.mu.Lock()
	q.items = append(q.items, t)
	q.mu.Unlock()
}

// Pop dequeues the thread at the front of the queue, or nil if empty.
func (q *RunQueue) Pop() *Thread {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	t := q.items[0]
	q.items = q.items[1:]
	return t
}

// Len reports the number of runnable threads currently queued.
func (q *RunQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// CPU is one logical processor's scheduling state: its run queue, which
// thread (if any) it is currently running, and the preempt-requested flag
// the timer tick and the thread's own safepoint check share (spec.md
// section 4.F "GC cooperation ... share the same safepoint check path").
type CPU struct {
	ID    int
	Queue *RunQueue

	mu      sync.Mutex
	running *Thread
	preempt bool
}

// NewCPU returns an idle CPU with an empty run queue.
func NewCPU(id int) *CPU {
	return &CPU{ID: id, Queue: NewRunQueue()}
}

// Running returns the thread currently executing on this CPU, or nil if
// idle.
func (c *CPU) Running() *Thread {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *CPU) setRunning(t *Thread) {
	c.mu.Lock()
	c.running = t
	c.mu.Unlock()
}

func (c *CPU) clearRunning() {
	c.mu.Lock()
	c.running = nil
	c.mu.Unlock()
}

// RequestPreempt raises this CPU's preempt flag, observed by the running
// thread at its next safepoint (spec.md section 4.F "Preemption and
// safepoints").
func (c *CPU) RequestPreempt() {
	c.mu.Lock()
	c.preempt = true
	c.mu.Unlock()
}

// PreemptRequested reports and does not clear the flag; ClearPreempt does
// the clearing once the thread has actually yielded.
func (c *CPU) PreemptRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.preempt
}

// ClearPreempt resets the preempt flag after the running thread has
// yielded at a safepoint.
func (c *CPU) ClearPreempt() {
	c.mu.Lock()
	c.preempt = false
	c.mu.Unlock()
}
