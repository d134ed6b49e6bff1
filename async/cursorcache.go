package async

import (
	"container/list"
	"context"
	"fmt"

	"github.com/ha1tch/asyncstore/engine"
)

// cacheEntry binds a (uriHash, configHash) signature to a cursor owned by
// exactly one worker. Entries are never shared or concurrently accessed
// across workers.
type cacheEntry struct {
	uriHash    uint64
	configHash uint64
	uri        string
	config     string
	cursor     engine.Cursor
}

// cursorCache is a per-worker, unlocked list of open cursors. Insertion
// order is most-recently-used at the head, matching the discipline the
// dispatcher relies on for cheap lookups: ops from the same call site
// tend to reuse the same format, so a recently opened cursor is the one
// most likely to hit next. There is no eviction — list length is bounded
// by the number of distinct formats a single worker happens to see.
type cursorCache struct {
	entries *list.List // of *cacheEntry
}

func newCursorCache() *cursorCache {
	return &cursorCache{entries: list.New()}
}

// getOrOpen returns a cursor usable for format, opening and caching a new
// one on a miss. On an open failure, no partial entry is left behind.
func (c *cursorCache) getOrOpen(ctx context.Context, session engine.Session, format *Format) (engine.Cursor, error) {
	uriHash, configHash := format.signature()

	for e := c.entries.Front(); e != nil; e = e.Next() {
		entry := e.Value.(*cacheEntry)
		if entry.uriHash == uriHash && entry.configHash == configHash &&
			entry.uri == format.URI && entry.config == format.Config {
			if e != c.entries.Front() {
				c.entries.MoveToFront(e)
			}
			return entry.cursor, nil
		}
	}

	cursor, err := session.OpenCursor(ctx, format.URI, format.Config)
	if err != nil {
		return nil, fmt.Errorf("cursor cache: open cursor for %q: %w", format.URI, err)
	}

	c.entries.PushFront(&cacheEntry{
		uriHash:    uriHash,
		configHash: configHash,
		uri:        format.URI,
		config:     format.Config,
		cursor:     cursor,
	})
	return cursor, nil
}

// len reports the number of distinct cursors currently cached.
func (c *cursorCache) len() int {
	return c.entries.Len()
}

// closeAll closes every cached cursor, used during worker shutdown. It
// keeps going past individual close errors so shutdown never leaks the
// cursors it can still reach, returning the first error encountered.
func (c *cursorCache) closeAll() error {
	var first error
	for e := c.entries.Front(); e != nil; e = e.Next() {
		entry := e.Value.(*cacheEntry)
		if err := entry.cursor.Close(); err != nil && first == nil {
			first = err
		}
	}
	c.entries.Init()
	return first
}
