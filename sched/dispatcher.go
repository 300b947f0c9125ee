package sched

import (
	"context"
	"time"

	"github.com/ProtonOS/ProtonOS-sub008/errors"
	"github.com/ProtonOS/ProtonOS-sub008/gc"
)

// Dispatcher owns every CPU's scheduling state and the GC coordinator
// they rendezvous through. Grounded on engine/asyncify.go's Scheduler:
// its Step/Run tick loop (inspect current status, act once, return to the
// caller) is generalized here from one goroutine stepping a single
// asyncify-suspended call to one CPU stepping its run queue, with the
// same "idle vs continue vs done" shape reappearing as "queue empty vs
// thread ran vs thread terminated".
type Dispatcher struct {
	CPUs []*CPU
	GC   *gc.Coordinator
}

// NewDispatcher builds a dispatcher over cpuCount CPUs sharing one GC
// coordinator.
func NewDispatcher(cpuCount int, coord *gc.Coordinator) *Dispatcher {
	d := &Dispatcher{GC: coord}
	for i := 0; i < cpuCount; i++ {
		d.CPUs = append(d.CPUs, NewCPU(i))
	}
	return d
}

// Enqueue pushes t onto the given CPU's run queue and records that CPU as
// t's affinity; it does not change t's state.
func (d *Dispatcher) Enqueue(cpu *CPU, t *Thread) {
	t.mu.Lock()
	t.cpu = cpu
	t.mu.Unlock()
	cpu.Queue.Push(t)
}

// Tick is the periodic timer interrupt's entry point (spec.md section
// 4.F "Preemption ... a timer interrupt fires on each CPU"): it requests
// preemption of whatever is running, then — if the CPU is idle — tries to
// schedule its next thread immediately rather than waiting for the
// preempted thread to yield.
func (d *Dispatcher) Tick(cpu *CPU) {
	if cpu.Running() != nil {
		cpu.RequestPreempt()
		return
	}
	d.Schedule(cpu)
}

// Schedule pops the next runnable thread onto cpu, falling back to a
// single work-steal attempt from another CPU's queue if cpu's own queue
// is empty (spec.md section 4.F "Work stealing takes at most one thread
// per attempt"). Returns the thread now running, or nil if no work was
// found anywhere.
func (d *Dispatcher) Schedule(cpu *CPU) *Thread {
	next := cpu.Queue.Pop()
	if next == nil {
		next = d.stealOnce(cpu)
	}
	if next == nil {
		return nil
	}
	if err := next.Transition(StateRunning); err != nil {
		panic(err)
	}
	next.mu.Lock()
	next.cpu = cpu
	next.mu.Unlock()
	cpu.setRunning(next)
	cpu.ClearPreempt()
	return next
}

// stealOnce takes at most one runnable thread from another CPU's queue.
func (d *Dispatcher) stealOnce(cpu *CPU) *Thread {
	for _, other := range d.CPUs {
		if other == cpu {
			continue
		}
		if t := other.Queue.Pop(); t != nil {
			return t
		}
	}
	return nil
}

// Safepoint is the shared check every JIT-emitted safepoint poll reaches
// (spec.md section 4.F "The 'GC requested' flag and 'preempt requested'
// flag share the same safepoint check path"). gatherRoots captures the
// thread's current live-reference snapshot; it is only invoked if a
// collection has actually been requested. Returns any exception the
// thread must now raise (spec.md section 5 "Cancellation" observed at
// the same safepoint), or nil if the thread should simply continue.
func (d *Dispatcher) Safepoint(cpu *CPU, t *Thread, gatherRoots func() gc.ThreadSnapshot) error {
	if d.GC.Requested() {
		t.SetRootSnapshot(gatherRoots())
		if err := t.ParkForGC(); err != nil {
			return err
		}
		d.GC.ParkAndWait()
		t.ResumeFromGC()
	}

	if cpu.PreemptRequested() {
		if err := t.Transition(StateRunnable); err != nil {
			return err
		}
		cpu.clearRunning()
		cpu.ClearPreempt()
		cpu.Queue.Push(t)
	}

	if t.CancelRequested() {
		return errors.ThreadInterrupted()
	}
	return nil
}

// Terminate retires a thread that has finished running: it transitions
// Running -> Terminating -> Finalized and clears it from its CPU.
func (d *Dispatcher) Terminate(cpu *CPU, t *Thread) error {
	if err := t.Transition(StateTerminating); err != nil {
		return err
	}
	if err := t.Transition(StateFinalized); err != nil {
		return err
	}
	cpu.clearRunning()
	t.signalDone()
	return nil
}

// Yield moves t from StateRunning back to StateRunnable, re-enqueues it at
// the back of its own CPU's run queue, and schedules that CPU's next
// thread — the voluntary counterpart to Tick's involuntary preemption
// (spec.md section 6 "Thread APIs surfaced to managed code: ... yield").
func (d *Dispatcher) Yield(t *Thread) error {
	t.mu.Lock()
	cpu := t.cpu
	t.mu.Unlock()
	if cpu == nil {
		return errors.Panic(errors.PhaseSched, "cannot yield a thread with no CPU affinity")
	}
	if err := t.Transition(StateRunnable); err != nil {
		return err
	}
	cpu.clearRunning()
	cpu.Queue.Push(t)
	d.Schedule(cpu)
	return nil
}

// Sleep parks t in StateWaiting for dur, or until ctx is cancelled first
// (spec.md section 6 "... sleep"). Grounded on WaitQueue.Wait's own
// ctx/deadline race; the queue here is a private, ephemeral one nothing
// ever signals, so the wait can only end by timeout or cancellation.
func (d *Dispatcher) Sleep(ctx context.Context, t *Thread, dur time.Duration) error {
	q := NewWaitQueue()
	timedOut, err := q.Wait(ctx, t, time.Now().Add(dur))
	if err != nil {
		return err
	}
	if !timedOut {
		return errors.Panic(errors.PhaseSched, "sleep wait resolved without a timeout or a cancellation")
	}
	return nil
}
