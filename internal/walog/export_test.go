package walog

import "fmt"

// AppendRawForTest bypasses Encode to let tests inject bytes that don't
// decode cleanly, simulating on-disk corruption or a future, unrecognized
// record kind. Exported only to _test.go files via the package-internal
// test build; never called from production code.
func (l *Log) AppendRawForTest(data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	last, err := l.wal.LastIndex()
	if err != nil {
		return fmt.Errorf("%w: reading last index: %v", ErrIOError, err)
	}
	if err := l.wal.Write(last+1, data); err != nil {
		return fmt.Errorf("%w: writing raw record %d: %v", ErrIOError, last+1, err)
	}
	return nil
}
