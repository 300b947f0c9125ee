package corert

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ProtonOS/ProtonOS-sub008/sched"
)

// CreateThread creates a new schedulable thread at the given priority,
// enqueues it round-robin across the core's CPUs, and returns it (spec.md
// section 6 "Thread APIs surfaced to managed code: create, join, yield,
// sleep, interlocked compare-exchange / add"). The returned *sched.Thread
// is the managed-code-facing handle every other Thread API call below
// takes.
func (c *Core) CreateThread(priority int) *sched.Thread {
	id := atomic.AddUint64(&c.nextThreadID, 1)
	t := sched.NewThread(id, priority)
	cpu := c.Sched.CPUs[atomic.AddUint64(&c.nextCPU, 1)%uint64(len(c.Sched.CPUs))]
	c.Sched.Enqueue(cpu, t)
	return t
}

// JoinThread blocks the caller until t terminates, or ctx is cancelled.
func (c *Core) JoinThread(ctx context.Context, t *sched.Thread) error {
	return t.Join(ctx)
}

// YieldThread voluntarily gives up t's CPU, the same way a managed
// Thread.Yield() call would.
func (c *Core) YieldThread(t *sched.Thread) error {
	return c.Sched.Yield(t)
}

// SleepThread parks t for dur, or until ctx is cancelled first.
func (c *Core) SleepThread(ctx context.Context, t *sched.Thread, dur time.Duration) error {
	return c.Sched.Sleep(ctx, t, dur)
}

// InterlockedCompareExchange is re-exported at the core's managed-API
// surface alongside the Thread calls above, since spec.md section 6 lists
// it in the same "Thread APIs surfaced to managed code" sentence even
// though the primitive itself is data-width-generic, not thread-specific.
func (c *Core) InterlockedCompareExchange(addr *int64, comparand, value int64) int64 {
	return sched.InterlockedCompareExchange(addr, comparand, value)
}

// InterlockedAdd is the add counterpart of InterlockedCompareExchange.
func (c *Core) InterlockedAdd(addr *int64, delta int64) int64 {
	return sched.InterlockedAdd(addr, delta)
}
