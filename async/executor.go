package async

import (
	"context"
	"errors"
	"fmt"

	asyncerrors "github.com/ha1tch/asyncstore/pkg/errors"

	"github.com/ha1tch/asyncstore/engine"
)

// ErrInvalidOpKind is the engine status produced when an Op carries a
// kind the executor does not recognize. It can only happen through a
// programming bug — OpKind is a closed enum — but the executor still
// reports it as a status rather than panicking, so the handler's
// commit/rollback/callback machinery stays uniform.
var ErrInvalidOpKind = asyncerrors.New(asyncerrors.ErrCodeAsyncInvalidOp, "async: invalid op kind").Critical().Err()

// execute binds op's key/value to cursor and dispatches by op.Kind. The
// caller must already hold op in the Working state and must have bound
// cursor to op.Format. The returned error is the op's engine status:
// engine.ErrNotFound is a valid SEARCH/REMOVE outcome, not a failure.
func execute(ctx context.Context, op *Op, cursor engine.Cursor) error {
	cursor.SetKey(op.Key)

	switch op.Kind {
	case OpInsert, OpUpdate:
		cursor.SetValue(op.Value)
		if err := cursor.Insert(ctx); err != nil {
			return fmt.Errorf("async: insert: %w", err)
		}
		return nil

	case OpRemove:
		if err := cursor.Remove(ctx); err != nil {
			if errors.Is(err, engine.ErrNotFound) {
				return engine.ErrNotFound
			}
			return fmt.Errorf("async: remove: %w", err)
		}
		return nil

	case OpSearch:
		if err := cursor.Search(ctx); err != nil {
			if errors.Is(err, engine.ErrNotFound) {
				return engine.ErrNotFound
			}
			return fmt.Errorf("async: search: %w", err)
		}
		op.Value = cursor.Value()
		return nil

	default:
		return ErrInvalidOpKind
	}
}
