package async

import (
	"context"
	"sync"
	"time"

	"github.com/ha1tch/asyncstore/internal/asynclog"
	asyncerrors "github.com/ha1tch/asyncstore/pkg/errors"
)

// flushFlags is the bitset tracking one flush's progress through the
// barrier, matching the source's IN_PROGRESS/FLUSHING/COMPLETE states
// directly rather than three separate booleans.
type flushFlags uint8

const (
	flushInProgress flushFlags = 1 << iota
	flushFlushing
	flushComplete
)

// flushState is the shared flush-barrier bookkeeping, guarded by the
// dispatcher's queue lock. It lives alongside the queue itself because
// every field here is read and mutated under the same mutex that guards
// enqueue/dequeue (spec.md's queue_lock covers both).
type flushState struct {
	flags flushFlags
	count int
	op    *Op // the singleton sentinel; never executed, recognized by identity
	cond  *sync.Cond
}

// isFlushSentinel reports whether op is the dispatcher's flush sentinel,
// recognized by pointer identity rather than by any field on Op.
func (d *Dispatcher) isFlushSentinel(op *Op) bool {
	return op == d.flush.op
}

// condWaitTimeout waits on cond with a bounded timeout. sync.Cond has no
// native timeout support, so a timer broadcasts the condition if nothing
// else does first; the waiter re-checks its predicate on every wake,
// spurious or not. Must be called with cond.L held.
func condWaitTimeout(cond *sync.Cond, timeout time.Duration) {
	timer := time.AfterFunc(timeout, func() {
		cond.L.Lock()
		cond.Broadcast()
		cond.L.Unlock()
	})
	defer timer.Stop()
	cond.Wait()
}

// flushArm runs the pop-and-arm path: executed by exactly the one worker
// that dequeued the sentinel. Must be called with d.mu held.
func (d *Dispatcher) flushArm() {
	if d.flush.flags&flushInProgress == 0 {
		// The sentinel is only ever enqueued with IN_PROGRESS already set
		// by Flush. Log and bail rather than wedging the worker on a
		// barrier nobody is waiting on.
		asynclog.Flush(d.cfg.Logger).Warn("flush sentinel dequeued without IN_PROGRESS set",
			"error", asyncerrors.Internal("flush sentinel armed out of sequence").Err().Error())
		return
	}
	d.flush.flags |= flushFlushing
	d.flush.count = 1
	d.flushParticipate(true)
}

// flushWaitOnEntry runs the wait path for a worker that observes FLUSHING
// set at the top of its loop (not the one that armed it). Must be called
// with d.mu held.
func (d *Dispatcher) flushWaitOnEntry() {
	d.flushParticipate(false)
}

// flushParticipate is the shared body of both paths above. selfArmed is
// true only for the worker that just set FLUSHING itself — it already
// set count to 1 and must not increment again, matching the source's
// distinction between the arming worker and everyone that follows it.
func (d *Dispatcher) flushParticipate(selfArmed bool) {
	if !selfArmed {
		d.flush.count++
	}

	if d.flush.count == d.numWorkers() {
		d.flush.flags |= flushComplete
		d.flush.flags &^= flushFlushing
		asynclog.Flush(d.cfg.Logger).Debug("flush barrier complete", "participants", d.flush.count)
		d.mu.Unlock()
		d.flush.cond.Broadcast()
		d.mu.Lock()
		return
	}

	for d.flush.flags&flushFlushing != 0 {
		condWaitTimeout(d.flush.cond, d.cfg.FlushWaitTimeout)
	}
}

// Flush blocks until every op enqueued before this call has reached the
// Free state. Overlapping flushes are rejected rather than queued: a
// second Flush call returns an error coded ErrCodeAsyncFlushBusy until the
// first has cleared.
// Unlike the source, which has no caller-facing deadline at all, Flush
// honors ctx cancellation: a caller whose context expires mid-wait gets a
// Timeout error back without corrupting the shared flush state for
// whoever calls Flush next.
func (d *Dispatcher) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return asyncerrors.Timeout("Dispatcher.Flush", 0).WithCause(err).Err()
	}

	d.mu.Lock()
	if d.flush.flags&flushInProgress != 0 {
		d.mu.Unlock()
		return asyncerrors.New(asyncerrors.ErrCodeAsyncFlushBusy, "async: flush already in progress").Warning().Err()
	}
	d.flush.flags = flushInProgress
	d.flush.count = 0

	op := d.flush.op
	op.state.Store(StateEnqueued)
	d.queue.PushBack(op)
	d.curQueue++
	d.opsCond.Broadcast()
	d.mu.Unlock()

	start := time.Now()
	done := make(chan struct{})
	go func() {
		d.mu.Lock()
		for d.flush.flags&flushComplete == 0 {
			condWaitTimeout(d.flush.cond, d.cfg.FlushWaitTimeout)
		}
		d.flush.flags = 0
		d.flush.count = 0
		d.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return asyncerrors.Timeout("Dispatcher.Flush", time.Since(start)).WithCause(ctx.Err()).Err()
	}
}
