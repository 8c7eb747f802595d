package walog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"clob/internal/model"
)

// ErrDecodeError means a log record's bytes could not be parsed into a
// Record. The cursor logs and skips these rather than failing the matcher.
var ErrDecodeError = errors.New("walog: decode error")

// Kind distinguishes the record kinds carried by the log. Submit is the
// only kind spec.md's core requires; Cancel is the permitted extension
// from spec.md §6 that lets cancellation flow through the same total
// order as submissions (spec.md §5).
type Kind uint8

const (
	KindSubmit Kind = iota
	KindCancel
)

// minRecordLen is kind(1) + idLen(2) + side(4) + price(8) + qty(8).
const minRecordLen = 1 + 2 + 4 + 8 + 8

// maxIDLen bounds the length-prefixed order id so a corrupt length field
// can't be misread as a call to allocate gigabytes.
const maxIDLen = math.MaxUint16

// Record is the on-disk shape of one log entry: {kind, orderId, side,
// price, quantity}, encoded with primitive-integer fields per spec.md §4.B.
type Record struct {
	Kind     Kind
	OrderID  model.OrderID
	Side     model.Side
	Price    int64
	Quantity int64
}

// Encode serializes a Record with a fixed BigEndian layout: 1 byte kind,
// 2 byte id length, id bytes, 4 byte side, 8 byte price, 8 byte quantity.
// Cancel records only need the id, but the fixed layout keeps decode
// branch-free and the extra zero bytes are a few dozen bytes of disk, not
// a real cost for a durable log.
func Encode(r Record) ([]byte, error) {
	if len(r.OrderID) == 0 {
		return nil, fmt.Errorf("%w: empty order id", model.ErrInvalidArgument)
	}
	if len(r.OrderID) > maxIDLen {
		return nil, fmt.Errorf("%w: order id too long (%d bytes)", model.ErrInvalidArgument, len(r.OrderID))
	}

	buf := make([]byte, minRecordLen+len(r.OrderID))
	buf[0] = byte(r.Kind)
	binary.BigEndian.PutUint16(buf[1:3], uint16(len(r.OrderID)))
	n := copy(buf[3:], r.OrderID)
	off := 3 + n
	binary.BigEndian.PutUint32(buf[off:off+4], uint32(r.Side))
	binary.BigEndian.PutUint64(buf[off+4:off+12], uint64(r.Price))
	binary.BigEndian.PutUint64(buf[off+12:off+20], uint64(r.Quantity))
	return buf, nil
}

// Decode is the inverse of Encode. It never returns a partially-populated
// Record on error.
func Decode(data []byte) (Record, error) {
	if len(data) < 3 {
		return Record{}, fmt.Errorf("%w: record too short (%d bytes)", ErrDecodeError, len(data))
	}
	kind := Kind(data[0])
	if kind != KindSubmit && kind != KindCancel {
		return Record{}, fmt.Errorf("%w: unknown record kind %d", ErrDecodeError, data[0])
	}
	idLen := int(binary.BigEndian.Uint16(data[1:3]))
	off := 3
	if len(data) < off+idLen+4+8+8 {
		return Record{}, fmt.Errorf("%w: record truncated", ErrDecodeError)
	}
	id := string(data[off : off+idLen])
	off += idLen
	side := model.Side(binary.BigEndian.Uint32(data[off : off+4]))
	price := int64(binary.BigEndian.Uint64(data[off+4 : off+12]))
	qty := int64(binary.BigEndian.Uint64(data[off+12 : off+20]))

	return Record{
		Kind:     kind,
		OrderID:  model.OrderID(id),
		Side:     side,
		Price:    price,
		Quantity: qty,
	}, nil
}
