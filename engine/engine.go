// Package engine defines the storage-engine capabilities the async
// dispatcher consumes as an external collaborator: sessions own
// transactions, cursors are bound to one table/config signature, and
// every cursor operation works on raw key/value bytes. The dispatcher
// never interprets a key or value; it only moves bytes between an op
// and a cursor.
package engine

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Cursor.Search and Cursor.Remove when the key
// does not exist in the underlying table. It is a valid outcome, not a
// failure of the dispatcher core.
var ErrNotFound = errors.New("engine: key not found")

// Engine opens sessions and cursors against a table store. Implementations
// are expected to be safe for concurrent use by multiple workers, each
// holding its own Session.
type Engine interface {
	// OpenSession returns a new session. Each dispatcher worker owns
	// exactly one session for its entire lifetime.
	OpenSession(ctx context.Context) (Session, error)

	// Close releases any engine-wide resources (connection pools,
	// background watchers). Called once during dispatcher shutdown
	// after every worker session has been closed.
	Close() error
}

// Session owns a transaction boundary and any cursors opened against it.
// A session is single-threaded by contract: the dispatcher never calls
// two Session methods concurrently on the same Session.
type Session interface {
	// Begin starts a transaction. The dispatcher always pairs Begin
	// with exactly one of Commit or Rollback before calling Begin again.
	Begin(ctx context.Context) error

	// Commit commits the current transaction.
	Commit(ctx context.Context) error

	// Rollback aborts the current transaction.
	Rollback(ctx context.Context) error

	// OpenCursor returns a cursor bound to the given table URI and
	// configuration string. May fail if the URI is unknown or the
	// configuration is invalid.
	OpenCursor(ctx context.Context, uri, config string) (Cursor, error)

	// Close releases the session and any cursors still open on it.
	Close() error
}

// Cursor is a handle bound to one table/config signature, used to read or
// write raw records. A cursor is owned by exactly one worker for its
// entire open lifetime and is never accessed concurrently.
type Cursor interface {
	// SetKey stages the raw key bytes for the next operation.
	SetKey(key []byte)

	// SetValue stages the raw value bytes for the next Insert.
	SetValue(value []byte)

	// Value returns the raw value bytes most recently read by Search.
	Value() []byte

	// Insert writes the staged key/value. INSERT and UPDATE ops both
	// call Insert; distinguishing overwrite-vs-create semantics, if a
	// caller needs it, is an engine-specific concern (see DESIGN.md).
	Insert(ctx context.Context) error

	// Remove deletes the staged key. Returns ErrNotFound if absent.
	Remove(ctx context.Context) error

	// Search looks up the staged key and, on success, makes the value
	// available through Value. Returns ErrNotFound if absent.
	Search(ctx context.Context) error

	// Reset releases any cursor position state (e.g. page pins) without
	// closing the underlying handle, so the cursor can be reused by a
	// later op under a different transaction.
	Reset(ctx context.Context) error

	// Close releases the cursor. Called only at worker shutdown.
	Close() error
}
