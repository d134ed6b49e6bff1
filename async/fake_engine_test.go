package async

import (
	"context"
	"fmt"
	"sync"

	"github.com/ha1tch/asyncstore/engine"
)

// fakeEngine is a trivial in-memory engine.Engine used to exercise the
// dispatcher's concurrency and lifecycle behaviour without a real
// storage backend. It records how many cursors were opened in total so
// tests can assert on cursor-cache hit rates.
type fakeEngine struct {
	mu         sync.Mutex
	tables     map[string]map[string][]byte // uri -> key -> value
	cursorOpens int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{tables: make(map[string]map[string][]byte)}
}

func (e *fakeEngine) OpenSession(ctx context.Context) (engine.Session, error) {
	return &fakeSession{engine: e}, nil
}

func (e *fakeEngine) Close() error { return nil }

func (e *fakeEngine) get(uri string, key []byte) ([]byte, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	table, ok := e.tables[uri]
	if !ok {
		return nil, false
	}
	v, ok := table[string(key)]
	return v, ok
}

type fakeSession struct {
	engine     *fakeEngine
	inTxn      bool
	writes     map[writeKey][]byte // staged writes, applied on commit
	deletes    map[writeKey]bool
}

type writeKey struct {
	uri string
	key string
}

func (s *fakeSession) Begin(ctx context.Context) error {
	if s.inTxn {
		return fmt.Errorf("fakeSession: already in transaction")
	}
	s.inTxn = true
	s.writes = make(map[writeKey][]byte)
	s.deletes = make(map[writeKey]bool)
	return nil
}

func (s *fakeSession) Commit(ctx context.Context) error {
	if !s.inTxn {
		return fmt.Errorf("fakeSession: no active transaction")
	}
	s.engine.mu.Lock()
	for wk, v := range s.writes {
		table, ok := s.engine.tables[wk.uri]
		if !ok {
			table = make(map[string][]byte)
			s.engine.tables[wk.uri] = table
		}
		table[wk.key] = v
	}
	for wk := range s.deletes {
		if table, ok := s.engine.tables[wk.uri]; ok {
			delete(table, wk.key)
		}
	}
	s.engine.mu.Unlock()
	s.inTxn = false
	return nil
}

func (s *fakeSession) Rollback(ctx context.Context) error {
	if !s.inTxn {
		return fmt.Errorf("fakeSession: no active transaction")
	}
	s.inTxn = false
	return nil
}

func (s *fakeSession) OpenCursor(ctx context.Context, uri, config string) (engine.Cursor, error) {
	s.engine.mu.Lock()
	s.engine.cursorOpens++
	s.engine.mu.Unlock()
	return &fakeCursor{session: s, uri: uri}, nil
}

func (s *fakeSession) Close() error { return nil }

type fakeCursor struct {
	session *fakeSession
	uri     string
	key     []byte
	value   []byte
	last    []byte
}

func (c *fakeCursor) SetKey(key []byte)     { c.key = key }
func (c *fakeCursor) SetValue(value []byte) { c.value = value }
func (c *fakeCursor) Value() []byte         { return c.last }

func (c *fakeCursor) Insert(ctx context.Context) error {
	wk := writeKey{uri: c.uri, key: string(c.key)}
	c.session.writes[wk] = append([]byte(nil), c.value...)
	delete(c.session.deletes, wk)
	return nil
}

func (c *fakeCursor) Remove(ctx context.Context) error {
	wk := writeKey{uri: c.uri, key: string(c.key)}
	if _, staged := c.session.writes[wk]; staged {
		delete(c.session.writes, wk)
		c.session.deletes[wk] = true
		return nil
	}
	if _, ok := c.session.engine.get(c.uri, c.key); !ok {
		return engine.ErrNotFound
	}
	c.session.deletes[wk] = true
	return nil
}

func (c *fakeCursor) Search(ctx context.Context) error {
	wk := writeKey{uri: c.uri, key: string(c.key)}
	if v, staged := c.session.writes[wk]; staged {
		c.last = v
		return nil
	}
	if c.session.deletes[wk] {
		return engine.ErrNotFound
	}
	v, ok := c.session.engine.get(c.uri, c.key)
	if !ok {
		return engine.ErrNotFound
	}
	c.last = v
	return nil
}

func (c *fakeCursor) Reset(ctx context.Context) error {
	c.key, c.value, c.last = nil, nil, nil
	return nil
}

func (c *fakeCursor) Close() error { return nil }
