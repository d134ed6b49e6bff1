// Package async implements the asynchronous operation dispatcher: a
// fixed pool of workers draining a shared FIFO queue of single-record
// operations against an engine.Engine, with a flush barrier that lets a
// caller block until every op submitted before it has resolved.
package async

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ha1tch/asyncstore/engine"
	"github.com/ha1tch/asyncstore/internal/asynclog"
	asyncerrors "github.com/ha1tch/asyncstore/pkg/errors"
	"github.com/ha1tch/asyncstore/pkg/log"
)

// IdleMode selects how an idle worker waits for new work. This is a
// tuning knob the source leaves as a compile-time #if 0; here it is a
// runtime config field, defaulting to the power-efficient choice.
type IdleMode int

const (
	// IdleTimedWait parks the worker on a condition variable with a
	// bounded timeout. Default.
	IdleTimedWait IdleMode = iota
	// IdleYield spins the worker with a bare scheduler yield instead of
	// blocking. Useful for busy-poll benchmarking; burns a CPU per idle
	// worker.
	IdleYield
)

// Config configures a Dispatcher.
type Config struct {
	// AsyncWorkers is the fixed size of the worker pool. Must be >= 1.
	AsyncWorkers int

	// FlushWaitTimeout bounds each wait on the flush condition variable.
	// A worker or flush initiator re-checks its predicate after every
	// timeout, so this controls liveness latency, not correctness.
	FlushWaitTimeout time.Duration

	// IdleWaitTimeout bounds each wait on the ops condition variable when
	// a worker finds the queue empty.
	IdleWaitTimeout time.Duration

	// IdleMode selects the idle-wait strategy. Defaults to IdleTimedWait.
	IdleMode IdleMode

	// Logger receives dispatcher/worker/flush category log entries. If
	// nil, log.Default() is used.
	Logger *log.Logger
}

// DefaultConfig returns a Config with the source's own flush-wait
// timeout literal (10s) and a conservative idle timeout.
func DefaultConfig() Config {
	return Config{
		AsyncWorkers:     4,
		FlushWaitTimeout: 10 * time.Second,
		IdleWaitTimeout:  1 * time.Second,
		IdleMode:         IdleTimedWait,
		Logger:           log.Default(),
	}
}

// Dispatcher is the owned, borrow-passed shared state associated with one
// engine instance. It is never a process-wide singleton: callers
// construct one per engine.Engine they want to drive and pass it around
// by pointer.
type Dispatcher struct {
	cfg Config
	eng engine.Engine

	mu       sync.Mutex
	queue    *list.List // of *Op
	curQueue int
	opsCond  *sync.Cond
	flush    flushState

	running atomic.Bool
	workers []*worker
	wg      sync.WaitGroup
}

// New constructs a Dispatcher bound to eng. Call Start to spin up the
// worker pool.
func New(eng engine.Engine, cfg Config) (*Dispatcher, error) {
	if cfg.AsyncWorkers < 1 {
		return nil, asyncerrors.InvalidInput("AsyncWorkers", fmt.Sprintf("must be >= 1, got %d", cfg.AsyncWorkers)).Err()
	}
	if cfg.FlushWaitTimeout <= 0 {
		cfg.FlushWaitTimeout = DefaultConfig().FlushWaitTimeout
	}
	if cfg.IdleWaitTimeout <= 0 {
		cfg.IdleWaitTimeout = DefaultConfig().IdleWaitTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	d := &Dispatcher{
		cfg:   cfg,
		eng:   eng,
		queue: list.New(),
	}
	d.opsCond = sync.NewCond(&d.mu)
	d.flush = flushState{
		op:   NewOp(OpInsert, NewFormat("", ""), nil, nil, nil), // body never read; recognized by identity only
		cond: sync.NewCond(&d.mu),
	}
	return d, nil
}

// numWorkers returns the fixed worker-pool size. Safe to call with or
// without d.mu held since it never changes after Start.
func (d *Dispatcher) numWorkers() int {
	return len(d.workers)
}

// Start opens one session per worker and launches the worker pool. It
// returns as soon as every worker goroutine has been spawned; it does
// not wait for them to reach their first idle point.
func (d *Dispatcher) Start(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return fmt.Errorf("async: dispatcher already started")
	}

	dlog := asynclog.Dispatch(d.cfg.Logger)

	d.workers = make([]*worker, 0, d.cfg.AsyncWorkers)
	for i := 0; i < d.cfg.AsyncWorkers; i++ {
		session, err := d.eng.OpenSession(ctx)
		if err != nil {
			d.running.Store(false)
			return fmt.Errorf("async: opening session for worker %d: %w", i, err)
		}
		w := &worker{
			id:         i,
			dispatcher: d,
			session:    session,
			cache:      newCursorCache(),
			logger:     d.cfg.Logger,
		}
		d.workers = append(d.workers, w)
	}

	dlog.Info("dispatcher starting", "workers", d.cfg.AsyncWorkers)

	for _, w := range d.workers {
		d.wg.Add(1)
		go func(w *worker) {
			defer d.wg.Done()
			w.loop(ctx)
			w.shutdown()
		}(w)
	}

	return nil
}

// Stop clears the run flag and blocks until every worker has drained its
// current op (if any), closed its cursor cache, and exited. It does not
// cancel any op already in flight.
func (d *Dispatcher) Stop() {
	if !d.running.CompareAndSwap(true, false) {
		return
	}
	d.mu.Lock()
	d.opsCond.Broadcast()
	d.mu.Unlock()
	d.wg.Wait()
	logged, dropped := d.cfg.Logger.Stats()
	asynclog.Dispatch(d.cfg.Logger).Info("dispatcher stopped", "entries_logged", logged, "entries_dropped", dropped)
}

// Enqueue places op on the shared queue for a worker to pick up. op must
// be in the Free state; Enqueue transitions it to Enqueued itself, since
// spec.md places this bookkeeping inside the core's enqueue contract
// rather than on the caller.
func (d *Dispatcher) Enqueue(op *Op) error {
	if op.State() != StateFree {
		return fmt.Errorf("async: cannot enqueue op in state %s, want free", op.State())
	}

	d.mu.Lock()
	op.state.Store(StateEnqueued)
	d.queue.PushBack(op)
	d.curQueue++
	d.mu.Unlock()

	d.opsCond.Broadcast()
	return nil
}

// QueueDepth returns the current number of queued ops, including the
// flush sentinel if one is pending.
func (d *Dispatcher) QueueDepth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.curQueue
}
