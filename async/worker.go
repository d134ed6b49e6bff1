package async

import (
	"context"
	"runtime"

	"github.com/ha1tch/asyncstore/engine"
	"github.com/ha1tch/asyncstore/internal/asynclog"
	"github.com/ha1tch/asyncstore/pkg/log"
)

// worker is one long-lived goroutine's private state: its own engine
// session and its own cursor cache. Nothing here is ever touched by
// another worker.
type worker struct {
	id         int
	dispatcher *Dispatcher
	session    engine.Session
	cache      *cursorCache
	logger     *log.Logger
}

// loop drains the dispatcher's queue until the dispatcher stops running.
// It implements spec.md §4.5 exactly: acquire the lock, resolve any
// pending flush, peek-and-pop the queue head, release the lock before
// any engine call or callback, then repeat.
func (w *worker) loop(ctx context.Context) {
	d := w.dispatcher
	wlog := asynclog.Worker(w.logger)

	for {
		d.mu.Lock()
		if !d.running.Load() {
			d.mu.Unlock()
			return
		}

		if d.flush.flags&flushFlushing != 0 {
			d.flushWaitOnEntry()
		}

		if d.queue.Len() == 0 {
			d.mu.Unlock()
			d.waitForWork()
			continue
		}

		front := d.queue.Front()
		d.queue.Remove(front)
		d.curQueue--
		op := front.Value.(*Op)
		op.state.Store(StateWorking)

		if d.isFlushSentinel(op) {
			d.flushArm()
			d.mu.Unlock()
			continue
		}
		d.mu.Unlock()

		wlog.Debug("dequeued op", "worker", w.id, "kind", op.Kind.String(), "uri", op.Format.URI)
		handleOp(ctx, op, w)
	}
}

// shutdown closes every cursor the worker opened and its session. Called
// once, after loop returns, never while d.mu is held.
func (w *worker) shutdown() {
	wlog := asynclog.Worker(w.logger)
	if err := w.cache.closeAll(); err != nil {
		wlog.Warn("error closing cached cursors", "worker", w.id, "error", err.Error())
	}
	if err := w.session.Close(); err != nil {
		wlog.Warn("error closing session", "worker", w.id, "error", err.Error())
	}
}

// waitForWork idles a worker whose queue was empty. The default mode
// waits on ops_cond with a bounded timeout — the timeout is the liveness
// safety net against a lost signal, not the primary wakeup path; a
// spurious or timed-out wake is harmless because loop re-checks the
// queue from the top. IdleYield trades that for a bare scheduler yield,
// kept for parity with the source's busy-poll option.
func (d *Dispatcher) waitForWork() {
	switch d.cfg.IdleMode {
	case IdleYield:
		runtime.Gosched()
	default:
		d.mu.Lock()
		if d.queue.Len() == 0 && d.running.Load() {
			condWaitTimeout(d.opsCond, d.cfg.IdleWaitTimeout)
		}
		d.mu.Unlock()
	}
}
