package kvsqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ha1tch/asyncstore/engine"
)

// session owns zero-or-one active *sql.Tx at a time. Cursors opened on a
// session hold a reference back to it rather than to a fixed *sql.Tx, so
// a single cursor cached across many ops keeps working across each op's
// distinct Begin/Commit cycle (spec.md's "cursor is kept, the
// transaction is not").
type session struct {
	engine *Engine
	tx     *sql.Tx
}

func (s *session) Begin(ctx context.Context) error {
	if s.tx != nil {
		return fmt.Errorf("kvsqlite: session already has an active transaction")
	}
	tx, err := s.engine.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("kvsqlite: begin: %w", err)
	}
	s.tx = tx
	return nil
}

func (s *session) Commit(ctx context.Context) error {
	if s.tx == nil {
		return fmt.Errorf("kvsqlite: no active transaction to commit")
	}
	err := s.tx.Commit()
	s.tx = nil
	if err != nil {
		return fmt.Errorf("kvsqlite: commit: %w", err)
	}
	return nil
}

func (s *session) Rollback(ctx context.Context) error {
	if s.tx == nil {
		return fmt.Errorf("kvsqlite: no active transaction to roll back")
	}
	err := s.tx.Rollback()
	s.tx = nil
	if err != nil {
		return fmt.Errorf("kvsqlite: rollback: %w", err)
	}
	return nil
}

func (s *session) OpenCursor(ctx context.Context, uri, config string) (engine.Cursor, error) {
	table := tableName(uri)
	if s.tx != nil {
		if err := s.engine.ensureTable(ctx, s.tx, table); err != nil {
			return nil, err
		}
	} else {
		// No transaction active yet (e.g. a cursor opened outside the
		// op-handler's begin/commit framing, such as in a direct test).
		// Ensure the table exists using its own short-lived transaction.
		tx, err := s.engine.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("kvsqlite: open cursor: %w", err)
		}
		if err := s.engine.ensureTable(ctx, tx, table); err != nil {
			tx.Rollback()
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("kvsqlite: open cursor: commit table creation: %w", err)
		}
	}

	return &cursor{session: s, table: table}, nil
}

func (s *session) Close() error {
	if s.tx != nil {
		err := s.tx.Rollback()
		s.tx = nil
		return err
	}
	return nil
}
