package async

import (
	"hash/fnv"
	"sync/atomic"
)

// OpKind identifies what an Op does. It is an int with a closed set of
// named constants below; any other value is reported by the executor as
// ErrInvalidOpKind.
type OpKind int

const (
	// OpInsert creates or overwrites a record.
	OpInsert OpKind = iota
	// OpUpdate is dispatched identically to OpInsert by this core; see
	// DESIGN.md's Open Question 1 for why the distinction is left to the
	// engine rather than redefined here.
	OpUpdate
	// OpRemove deletes a record.
	OpRemove
	// OpSearch looks up a record and copies its value back into the op.
	OpSearch
)

func (k OpKind) String() string {
	switch k {
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpRemove:
		return "remove"
	case OpSearch:
		return "search"
	default:
		return "unknown"
	}
}

// State is an Op's lifecycle stage. Transitions are linear:
// FREE -> ENQUEUED -> WORKING -> FREE. It is read and written with
// atomic operations because a caller may legitimately poll an op's state
// from a goroutine other than the one currently mutating it (e.g. a test
// waiting for drain), even though only one owner ever writes at a time.
type State int32

const (
	StateFree State = iota
	StateEnqueued
	StateWorking
)

func (s State) String() string {
	switch s {
	case StateFree:
		return "free"
	case StateEnqueued:
		return "enqueued"
	case StateWorking:
		return "working"
	default:
		return "unknown"
	}
}

// Callback is invoked once an op has executed, before its transaction is
// committed or rolled back. status is nil on success, engine.ErrNotFound on a valid miss, or any
// other error the engine or cursor cache produced. The callback's return
// value feeds the commit/rollback decision in handleOp: a non-nil return
// forces a rollback even if status was otherwise fine.
type Callback func(op *Op, status error) error

// Format is the immutable (uri, config) pair an Op is bound to, plus
// precomputed hashes so cursor-cache lookups compare cheap integers
// before falling back to string equality. Formats never change after
// registration; an Op's Format reference is fixed for the op's lifetime.
type Format struct {
	URI        string
	Config     string
	uriHash    uint64
	configHash uint64
}

// NewFormat builds a Format, precomputing its hashes.
func NewFormat(uri, config string) *Format {
	return &Format{
		URI:        uri,
		Config:     config,
		uriHash:    fnvHash(uri),
		configHash: fnvHash(config),
	}
}

func fnvHash(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}

// signature returns the (uriHash, configHash) pair used for cursor-cache
// lookup.
func (f *Format) signature() (uint64, uint64) {
	return f.uriHash, f.configHash
}

// Op is a single queued unit of work. Ownership discipline, not a shared
// lock, protects it: only the submitter writes it while Free, only the
// queue holds a reference to it while Enqueued, and only the worker that
// dequeued it touches it while Working.
type Op struct {
	Kind     OpKind
	Format   *Format
	Key      []byte
	Value    []byte
	Callback Callback

	state State32
}

// State32 wraps an atomic.Int32 to store a State, so Op.state reads never
// race with the worker that owns the op.
type State32 struct {
	v atomic.Int32
}

func (s *State32) Load() State      { return State(s.v.Load()) }
func (s *State32) Store(st State)   { s.v.Store(int32(st)) }

// NewOp allocates an op in the Free state. Submitters fill in Kind,
// Format, Key, Value, and Callback before transitioning it to Enqueued
// with Dispatcher.Enqueue.
func NewOp(kind OpKind, format *Format, key, value []byte, cb Callback) *Op {
	op := &Op{
		Kind:     kind,
		Format:   format,
		Key:      key,
		Value:    value,
		Callback: cb,
	}
	op.state.Store(StateFree)
	return op
}

// State returns the op's current lifecycle state.
func (op *Op) State() State {
	return op.state.Load()
}
