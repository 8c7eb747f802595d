// Package walog is the durable order log: a single-producer,
// single-consumer append-only sequence of order records backed by
// github.com/tidwall/wal, the embeddable append-only log library that is
// the natural sibling of github.com/tidwall/btree (already used by
// internal/book). See spec.md §4.B.
package walog

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tidwall/wal"
)

// ErrIOError wraps any failure from the underlying storage. It is fatal to
// the matcher per spec.md §7: the process should surface it and stop, and
// a restart replays the log from the beginning.
var ErrIOError = errors.New("walog: io error")

// Log is the durable append-only sequence of order records. Append is the
// only producer-facing operation; Cursor is the only consumer-facing one.
// Both are safe to use concurrently with each other (tidwall/wal guards
// its own segment state), though spec.md §4.B only requires a single
// producer and a single consumer.
type Log struct {
	mu  sync.Mutex
	wal *wal.Log
}

// Open opens (or creates) the durable log rooted at dir.
func Open(dir string) (*Log, error) {
	w, err := wal.Open(dir, wal.DefaultOptions)
	if err != nil {
		return nil, fmt.Errorf("%w: opening wal at %s: %v", ErrIOError, dir, err)
	}
	return &Log{wal: w}, nil
}

// Append durably enqueues rec. It returns once the record survives a
// consumer restart. O(1) amortized.
func (l *Log) Append(rec Record) error {
	data, err := Encode(rec)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	last, err := l.wal.LastIndex()
	if err != nil {
		return fmt.Errorf("%w: reading last index: %v", ErrIOError, err)
	}
	if err := l.wal.Write(last+1, data); err != nil {
		return fmt.Errorf("%w: writing record %d: %v", ErrIOError, last+1, err)
	}
	return nil
}

// Close releases the log's storage handle. Safe to call once all cursors
// derived from this log are done.
func (l *Log) Close() error {
	if err := l.wal.Close(); err != nil {
		return fmt.Errorf("%w: closing wal: %v", ErrIOError, err)
	}
	return nil
}

// Cursor returns a scoped forward reader starting at the first record ever
// appended. Replaying from the beginning on every Cursor() call is what
// lets the matcher runtime (spec.md §4.E) reconstruct the book from
// scratch on every process start.
func (l *Log) Cursor() *Cursor {
	return &Cursor{log: l, next: 1}
}
