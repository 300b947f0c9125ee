package sched

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ProtonOS/ProtonOS-sub008/errors"
	"github.com/ProtonOS/ProtonOS-sub008/gc"
)

// State is a thread's position in the lifecycle spec.md section 4.F
// describes. Grounded on engine/asyncify.go's StepStatus enum
// (StepContinue/StepIdle/StepDone), generalized from a three-state async
// step result to the scheduler's full thread lifecycle.
type State int

const (
	StateRunnable State = iota
	StateRunning
	StateWaiting
	StateParkedForGC
	StateTerminating
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateRunnable:
		return "runnable"
	case StateRunning:
		return "running"
	case StateWaiting:
		return "waiting"
	case StateParkedForGC:
		return "parked-for-gc"
	case StateTerminating:
		return "terminating"
	case StateFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// transitions is the allowed-transition table (spec.md section 4.F
// "Thread lifecycle"). StateParkedForGC is reached from, and returned to,
// any state via ParkForGC/ResumeFromGC rather than this table, since GC
// parking can interrupt any state short of StateFinalized.
var transitions = map[State][]State{
	StateRunnable:    {StateRunning},
	StateRunning:     {StateRunnable, StateWaiting, StateTerminating},
	StateWaiting:     {StateRunnable},
	StateTerminating: {StateFinalized},
}

// CPUContext is a thread's saved register state while it is not the CPU's
// running thread: general-purpose registers plus an opaque
// extended-state area (x87/SSE/AVX), restored verbatim on resumption.
type CPUContext struct {
	GPRegs [16]uint64
	FPRegs [512]byte // XSAVE legacy area; opaque to the scheduler
}

// Thread is one schedulable unit of execution (spec.md section 4.F
// "Structure ... the scheduler owns a Thread Control Block per thread").
type Thread struct {
	ID uint64

	mu        sync.Mutex
	state     State
	prevState State // saved by ParkForGC, restored by ResumeFromGC

	cpu      *CPU // last (or current) CPU affinity
	ctx      CPUContext
	priority int

	stackBase  uintptr
	stackLimit uintptr // guard page boundary

	cancel atomic.Bool

	// pendingExc, when non-nil, is the exception currently being
	// dispatched through eh.Dispatch on this thread's stack.
	pendingExc error

	// rootSnapshot is this thread's GC root contribution, captured when
	// it parks for a collection (spec.md section 4.D step 2(a)).
	rootSnapshot gc.ThreadSnapshot

	waitDeadline time.Time
	hasDeadline  bool

	// done is closed once by signalDone when this thread reaches
	// StateFinalized, the wakeup Join blocks on (spec.md section 6
	// "Thread APIs surfaced to managed code: create, join, yield, sleep").
	done     chan struct{}
	doneOnce sync.Once
}

// NewThread returns a freshly created, runnable thread.
func NewThread(id uint64, priority int) *Thread {
	return &Thread{ID: id, state: StateRunnable, priority: priority, done: make(chan struct{})}
}

// Join blocks until t reaches StateFinalized, or ctx is cancelled first.
// Grounded on WaitQueue.Wait's own ctx/channel select shape, specialized
// to a one-shot completion signal rather than a requeueable wait queue
// (a terminated thread is never going to run again, so there is nothing
// to requeue onto).
func (t *Thread) Join(ctx context.Context) error {
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// signalDone marks t as joined-with-able; called once by the dispatcher
// after t reaches StateFinalized. Safe to call more than once.
func (t *Thread) signalDone() {
	t.doneOnce.Do(func() { close(t.done) })
}

// State returns the thread's current lifecycle state.
func (t *Thread) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Transition moves the thread to state `to`, validated against the
// allowed-transition table. An illegal transition is a core invariant
// violation (spec.md section 7's halt-vs-raise boundary), not a managed
// exception, so it panics via errors.Panic rather than returning one
// through the exception handler.
func (t *Thread) Transition(to State) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transitionLocked(to)
}

func (t *Thread) transitionLocked(to State) error {
	for _, allowed := range transitions[t.state] {
		if allowed == to {
			t.state = to
			return nil
		}
	}
	return errors.Panic(errors.PhaseSched,
		"illegal thread state transition "+t.state.String()+" -> "+to.String())
}

// ParkForGC saves the thread's current state and moves it to
// StateParkedForGC, from any state other than StateFinalized (spec.md
// section 4.F "the GC-parked state can interrupt any of the above").
func (t *Thread) ParkForGC() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateFinalized {
		return errors.Panic(errors.PhaseSched, "cannot park a finalized thread for GC")
	}
	t.prevState = t.state
	t.state = StateParkedForGC
	return nil
}

// ResumeFromGC restores the state ParkForGC saved.
func (t *Thread) ResumeFromGC() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = t.prevState
}

// RequestCancel sets this thread's cancellation flag; the thread observes
// it at its next safepoint and raises errors.ThreadInterrupted (spec.md
// section 5 "Cancellation").
func (t *Thread) RequestCancel() { t.cancel.Store(true) }

// CancelRequested reports whether RequestCancel has been called.
func (t *Thread) CancelRequested() bool { return t.cancel.Load() }

// SetRootSnapshot records this thread's GC root contribution; called
// while parked, before the collector's mark phase reads it.
func (t *Thread) SetRootSnapshot(snap gc.ThreadSnapshot) {
	t.mu.Lock()
	t.rootSnapshot = snap
	t.mu.Unlock()
}

// RootSnapshot returns the snapshot set by SetRootSnapshot.
func (t *Thread) RootSnapshot() gc.ThreadSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rootSnapshot
}

// SetDeadline records the absolute time a pending wait should time out.
func (t *Thread) SetDeadline(d time.Time) {
	t.mu.Lock()
	t.waitDeadline, t.hasDeadline = d, true
	t.mu.Unlock()
}

// ClearDeadline removes any deadline set by SetDeadline.
func (t *Thread) ClearDeadline() {
	t.mu.Lock()
	t.hasDeadline = false
	t.mu.Unlock()
}
