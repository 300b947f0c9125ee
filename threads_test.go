package corert

import (
	"context"
	"testing"
	"time"

	"github.com/ProtonOS/ProtonOS-sub008/gc"
	"github.com/ProtonOS/ProtonOS-sub008/sched"
)

func newSchedCore(t *testing.T, cpus int) *Core {
	t.Helper()
	coord := gc.NewCoordinator(cpus)
	return &Core{cfg: DefaultConfig(), Sched: sched.NewDispatcher(cpus, coord), Coord: coord}
}

func TestCore_CreateThreadEnqueuesRoundRobin(t *testing.T) {
	core := newSchedCore(t, 2)
	a := core.CreateThread(0)
	b := core.CreateThread(0)
	if a.ID == b.ID {
		t.Fatalf("expected distinct thread IDs, got %d twice", a.ID)
	}
	total := core.Sched.CPUs[0].Queue.Len() + core.Sched.CPUs[1].Queue.Len()
	if total != 2 {
		t.Fatalf("expected both created threads enqueued across the two CPUs, total queued = %d", total)
	}
}

func TestCore_JoinThreadWaitsForTermination(t *testing.T) {
	core := newSchedCore(t, 1)
	th := core.CreateThread(0)
	core.Sched.Schedule(core.Sched.CPUs[0])

	done := make(chan error, 1)
	go func() { done <- core.JoinThread(context.Background(), th) }()

	select {
	case <-done:
		t.Fatal("JoinThread returned before the thread terminated")
	case <-time.After(20 * time.Millisecond):
	}

	if err := core.Sched.Terminate(core.Sched.CPUs[0], th); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("JoinThread: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("JoinThread never observed termination")
	}
}

func TestCore_YieldThreadReschedulesSoleQueuedThread(t *testing.T) {
	core := newSchedCore(t, 1)
	th := core.CreateThread(0)
	core.Sched.Schedule(core.Sched.CPUs[0])

	// Nothing else is queued, so Yield's own Schedule call immediately
	// re-picks th (the sole queued thread) as the CPU's next running
	// thread; TestDispatcher_YieldRequeuesAndSchedulesNext (sched package)
	// covers the case where a distinct thread is there to take the CPU
	// instead. This only checks the call bridges through without error.
	if err := core.YieldThread(th); err != nil {
		t.Fatalf("YieldThread: %v", err)
	}
	if th.State() != sched.StateRunning {
		t.Fatalf("state = %v, want running (th was the only queued thread, so it got rescheduled)", th.State())
	}
}

func TestCore_SleepThreadBlocksForDuration(t *testing.T) {
	core := newSchedCore(t, 1)
	th := core.CreateThread(0)
	core.Sched.Schedule(core.Sched.CPUs[0]) // a thread sleeps from the running state
	start := time.Now()
	if err := core.SleepThread(context.Background(), th, 10*time.Millisecond); err != nil {
		t.Fatalf("SleepThread: %v", err)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatal("SleepThread returned before its duration elapsed")
	}
}

func TestCore_InterlockedCompareExchangeAndAdd(t *testing.T) {
	core := newSchedCore(t, 1)
	v := int64(1)
	if old := core.InterlockedCompareExchange(&v, 1, 2); old != 1 {
		t.Fatalf("old = %d, want 1", old)
	}
	if v != 2 {
		t.Fatalf("v = %d, want 2", v)
	}
	if got := core.InterlockedAdd(&v, 5); got != 7 {
		t.Fatalf("InterlockedAdd = %d, want 7", got)
	}
}
