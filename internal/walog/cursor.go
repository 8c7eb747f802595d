package walog

import "fmt"

// Cursor is a scoped, forward-only reader over a Log. It holds no resource
// of its own beyond the shared Log handle today, but Close is part of the
// contract (spec.md §4.B, §9) so a future per-cursor resource — a
// memory-mapped read view, say — can be released on every exit path
// without changing callers.
type Cursor struct {
	log    *Log
	next   uint64
	onWarn func(index uint64, err error)
}

// OnWarning registers a callback invoked whenever Next silently skips a
// record it could not decode (spec.md §7's DECODE_ERROR: logged and
// skipped, the matcher continues). Not safe to call concurrently with Next.
func (c *Cursor) OnWarning(fn func(index uint64, err error)) {
	c.onWarn = fn
}

// Next returns the next record in append order. ok is false (with a nil
// error) when the cursor has caught up to the tail of the log — the
// runtime's cue to idle-yield per spec.md §4.E/§5, not an error condition.
// A non-nil error is always an ErrIOError from the underlying storage and
// is fatal to the caller.
//
// Records that fail to decode (corrupt bytes, or an unrecognized kind byte
// — spec.md §6's "unknown kinds MUST be ignored with a warning") are
// skipped internally: Next keeps advancing until it finds a good record or
// runs out of data, so a single bad record never wedges the matcher.
func (c *Cursor) Next() (Record, bool, error) {
	for {
		last, err := c.log.wal.LastIndex()
		if err != nil {
			return Record{}, false, fmt.Errorf("%w: reading last index: %v", ErrIOError, err)
		}
		if c.next > last {
			return Record{}, false, nil
		}

		idx := c.next
		data, err := c.log.wal.Read(idx)
		if err != nil {
			return Record{}, false, fmt.Errorf("%w: reading record %d: %v", ErrIOError, idx, err)
		}

		rec, decErr := Decode(data)
		c.next++
		if decErr != nil {
			if c.onWarn != nil {
				c.onWarn(idx, decErr)
			}
			continue
		}
		return rec, true, nil
	}
}

// Close releases the cursor. Safe to call multiple times.
func (c *Cursor) Close() error {
	return nil
}
