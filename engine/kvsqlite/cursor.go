package kvsqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ha1tch/asyncstore/engine"
)

// cursor is bound to one table and resolves its owning session's current
// transaction lazily on every call, rather than caching a *sql.Tx itself
// — the cursor outlives any single transaction, since it stays in the
// worker's cursor cache across many ops.
type cursor struct {
	session *session
	table   string

	key       []byte
	value     []byte
	lastValue []byte
}

func (c *cursor) SetKey(key []byte)   { c.key = key }
func (c *cursor) SetValue(value []byte) { c.value = value }
func (c *cursor) Value() []byte       { return c.lastValue }

func (c *cursor) tx() (*sql.Tx, error) {
	if c.session.tx == nil {
		return nil, fmt.Errorf("kvsqlite: cursor used outside an active transaction")
	}
	return c.session.tx, nil
}

func (c *cursor) Insert(ctx context.Context) error {
	tx, err := c.tx()
	if err != nil {
		return err
	}
	stmt := fmt.Sprintf(
		"INSERT INTO %s (k, v) VALUES (?, ?) ON CONFLICT(k) DO UPDATE SET v = excluded.v",
		c.table,
	)
	if _, err := tx.ExecContext(ctx, stmt, c.key, c.value); err != nil {
		return fmt.Errorf("kvsqlite: insert: %w", err)
	}
	return nil
}

func (c *cursor) Remove(ctx context.Context) error {
	tx, err := c.tx()
	if err != nil {
		return err
	}
	stmt := fmt.Sprintf("DELETE FROM %s WHERE k = ?", c.table)
	res, err := tx.ExecContext(ctx, stmt, c.key)
	if err != nil {
		return fmt.Errorf("kvsqlite: remove: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("kvsqlite: remove: rows affected: %w", err)
	}
	if n == 0 {
		return engine.ErrNotFound
	}
	return nil
}

func (c *cursor) Search(ctx context.Context) error {
	tx, err := c.tx()
	if err != nil {
		return err
	}
	stmt := fmt.Sprintf("SELECT v FROM %s WHERE k = ?", c.table)
	var v []byte
	err = tx.QueryRowContext(ctx, stmt, c.key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("kvsqlite: search: %w", err)
	}
	c.lastValue = v
	return nil
}

func (c *cursor) Reset(ctx context.Context) error {
	c.key = nil
	c.value = nil
	c.lastValue = nil
	return nil
}

// Close is a no-op: the cursor holds no resource beyond the table name
// and its owning session, both of which outlive it regardless.
func (c *cursor) Close() error {
	return nil
}
