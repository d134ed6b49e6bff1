package async

import (
	"context"
	"errors"

	"github.com/ha1tch/asyncstore/engine"
	"github.com/ha1tch/asyncstore/internal/asynclog"
	asyncerrors "github.com/ha1tch/asyncstore/pkg/errors"
)

// handleOp runs the full begin/execute/callback/commit-or-rollback/recycle
// protocol for one op on behalf of w. It is called with no lock held —
// every suspension point here is an engine call or the user callback,
// never queue_lock.
//
// The op is released (state set to Free) only after the transaction has
// resolved, so a callback that observes "done" can never race with
// still-open engine state.
func handleOp(ctx context.Context, op *Op, w *worker) {
	wlog := asynclog.Worker(w.logger)

	if err := w.session.Begin(ctx); err != nil {
		coded := asyncerrors.Wrap(err, asyncerrors.ErrCodeAsyncTxn, "begin transaction failed").
			WithOp("Worker.handleOp").
			WithField("worker", w.id).
			WithField("uri", op.Format.URI).
			Err()
		wlog.Error("begin transaction failed", coded, "worker", w.id, "uri", op.Format.URI)
		notify(op, coded, wlog, w.id)
		op.state.Store(StateFree)
		return
	}

	cursor, err := w.cache.getOrOpen(ctx, w.session, op.Format)
	if err != nil {
		coded := asyncerrors.Wrap(err, asyncerrors.ErrCodeAsyncCursorOpen, "cursor open failed").
			WithOp("Worker.handleOp").
			WithField("worker", w.id).
			WithField("uri", op.Format.URI).
			Err()
		wlog.Error("cursor open failed", coded, "worker", w.id, "uri", op.Format.URI)
		if rbErr := w.session.Rollback(ctx); rbErr != nil {
			wlog.Error("rollback after cursor-open failure also failed",
				asyncerrors.Wrap(rbErr, asyncerrors.ErrCodeAsyncTxn, "rollback failed").Err(), "worker", w.id)
		}
		notify(op, coded, wlog, w.id)
		op.state.Store(StateFree)
		return
	}

	status := execute(ctx, op, cursor)

	var cbErr error
	if op.Callback != nil {
		cbErr = op.Callback(op, status)
		if cbErr != nil {
			cbErr = asyncerrors.Wrap(cbErr, asyncerrors.ErrCodeAsyncCallback, "callback forced rollback").
				WithOp("Worker.handleOp").
				WithField("worker", w.id).
				WithField("kind", op.Kind.String()).
				Err()
		}
	}

	commit := (status == nil || errors.Is(status, engine.ErrNotFound)) && cbErr == nil
	if commit {
		if err := w.session.Commit(ctx); err != nil {
			wlog.Error("commit failed", asyncerrors.Wrap(err, asyncerrors.ErrCodeAsyncTxn, "commit failed").Err(),
				"worker", w.id, "kind", op.Kind.String())
		}
	} else {
		if cbErr != nil {
			wlog.Warn("rolling back due to callback error", "worker", w.id, "error", cbErr.Error())
		}
		if err := w.session.Rollback(ctx); err != nil {
			wlog.Error("rollback failed", asyncerrors.Wrap(err, asyncerrors.ErrCodeAsyncTxn, "rollback failed").Err(),
				"worker", w.id, "kind", op.Kind.String())
		}
	}

	if err := cursor.Reset(ctx); err != nil {
		wlog.Warn("cursor reset failed", "worker", w.id, "error", err.Error())
	}

	wlog.Debug("op resolved", "worker", w.id, "kind", op.Kind.String(), "committed", commit)
	op.state.Store(StateFree)
}

// notify invokes op's callback, if any, with a resolved status that never
// reached execute (begin or cursor-open failed before dispatch).
func notify(op *Op, status error, wlog interface {
	Warn(msg string, fields ...interface{})
}, workerID int) {
	if op.Callback == nil {
		return
	}
	if err := op.Callback(op, status); err != nil {
		wlog.Warn("callback returned error on already-failed op", "worker", workerID, "error", err.Error())
	}
}
