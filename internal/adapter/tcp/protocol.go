// Package tcp is the one minimal submission adapter spec.md §2 allows: a
// binary TCP protocol directly descended from the teacher's
// internal/net/{server,messages}.go, re-pointed at int64 ticks/lots and the
// durable log (internal/walog) instead of an in-process engine call.
package tcp

import (
	"encoding/binary"
	"errors"
	"fmt"

	"clob/internal/model"
)

var (
	// ErrInvalidMessageType is returned by ParseRequest for an unrecognized
	// message type.
	ErrInvalidMessageType = errors.New("tcp: invalid message type")
	// ErrMessageTooShort is returned by ParseRequest when the buffer is shorter
	// than the message type it claims to be.
	ErrMessageTooShort = errors.New("tcp: message too short")
)

// MessageType distinguishes the requests a client may send.
type MessageType uint16

const (
	Heartbeat MessageType = iota
	SubmitOrder
	CancelOrder
	LogBook
)

// ReportType distinguishes the responses the adapter pushes back.
type ReportType uint8

const (
	Accepted ReportType = iota
	Rejected
	Execution
)

// baseHeaderLen is the 2-byte message type prefix every request carries.
const baseHeaderLen = 2

// submitBodyLen is side(4) + price(8) + quantity(8) + idLen(2), not
// counting the variable-length id that follows.
const submitBodyLen = 4 + 8 + 8 + 2

// cancelBodyLen is idLen(2), not counting the variable-length id.
const cancelBodyLen = 2

// SubmitRequest is a parsed SubmitOrder request body.
type SubmitRequest struct {
	OrderID  model.OrderID
	Side     model.Side
	Price    int64
	Quantity int64
}

// CancelRequest is a parsed CancelOrder request body.
type CancelRequest struct {
	OrderID model.OrderID
}

// ParseRequest reads the 2-byte type prefix and dispatches to the matching
// body parser. It never partially trusts a short buffer: when the buffer is
// shorter than the message it claims to be, it returns ErrMessageTooShort
// rather than reading past the end. Bytes past the end of the message are
// ignored.
func ParseRequest(buf []byte) (MessageType, any, error) {
	if len(buf) < baseHeaderLen {
		return 0, nil, fmt.Errorf("%w: no room for message type", ErrMessageTooShort)
	}
	typ := MessageType(binary.BigEndian.Uint16(buf[0:2]))
	body := buf[baseHeaderLen:]

	switch typ {
	case Heartbeat:
		return typ, nil, nil
	case SubmitOrder:
		req, err := parseSubmit(body)
		return typ, req, err
	case CancelOrder:
		req, err := parseCancel(body)
		return typ, req, err
	case LogBook:
		return typ, nil, nil
	default:
		return 0, nil, fmt.Errorf("%w: %d", ErrInvalidMessageType, typ)
	}
}

func parseSubmit(body []byte) (SubmitRequest, error) {
	if len(body) < submitBodyLen {
		return SubmitRequest{}, fmt.Errorf("%w: submit body", ErrMessageTooShort)
	}
	side := model.Side(binary.BigEndian.Uint32(body[0:4]))
	price := int64(binary.BigEndian.Uint64(body[4:12]))
	qty := int64(binary.BigEndian.Uint64(body[12:20]))
	idLen := int(binary.BigEndian.Uint16(body[20:22]))
	if len(body) < submitBodyLen+idLen {
		return SubmitRequest{}, fmt.Errorf("%w: submit id truncated", ErrMessageTooShort)
	}
	id := string(body[submitBodyLen : submitBodyLen+idLen])
	return SubmitRequest{OrderID: model.OrderID(id), Side: side, Price: price, Quantity: qty}, nil
}

func parseCancel(body []byte) (CancelRequest, error) {
	if len(body) < cancelBodyLen {
		return CancelRequest{}, fmt.Errorf("%w: cancel body", ErrMessageTooShort)
	}
	idLen := int(binary.BigEndian.Uint16(body[0:2]))
	if len(body) < cancelBodyLen+idLen {
		return CancelRequest{}, fmt.Errorf("%w: cancel id truncated", ErrMessageTooShort)
	}
	id := string(body[cancelBodyLen : cancelBodyLen+idLen])
	return CancelRequest{OrderID: model.OrderID(id)}, nil
}

// EncodeSubmit is the client-side counterpart to parseSubmit, used by
// cmd/client to build the wire request.
func EncodeSubmit(req SubmitRequest) []byte {
	id := []byte(req.OrderID)
	buf := make([]byte, baseHeaderLen+submitBodyLen+len(id))
	binary.BigEndian.PutUint16(buf[0:2], uint16(SubmitOrder))
	binary.BigEndian.PutUint32(buf[2:6], uint32(req.Side))
	binary.BigEndian.PutUint64(buf[6:14], uint64(req.Price))
	binary.BigEndian.PutUint64(buf[14:22], uint64(req.Quantity))
	binary.BigEndian.PutUint16(buf[22:24], uint16(len(id)))
	copy(buf[24:], id)
	return buf
}

// EncodeCancel is the client-side counterpart to parseCancel.
func EncodeCancel(req CancelRequest) []byte {
	id := []byte(req.OrderID)
	buf := make([]byte, baseHeaderLen+cancelBodyLen+len(id))
	binary.BigEndian.PutUint16(buf[0:2], uint16(CancelOrder))
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(id)))
	copy(buf[4:], id)
	return buf
}

// EncodeLogBook builds the no-body LogBook request.
func EncodeLogBook() []byte {
	buf := make([]byte, baseHeaderLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(LogBook))
	return buf
}

// Report is a response pushed back to a connected client: an immediate
// accept/reject acknowledgement for a request it sent, or an execution
// report for a trade that involved one of its resting orders.
type Report struct {
	Type        ReportType
	OrderID     model.OrderID
	Side        model.Side
	Price       int64
	Quantity    int64
	Counterpart model.OrderID
	Err         string
}

// reportFixedLen is type(1) + side(1) + price(8) + quantity(8) +
// orderIdLen(2) + counterpartLen(2) + errLen(4).
const reportFixedLen = 1 + 1 + 8 + 8 + 2 + 2 + 4

// Serialize encodes a Report for the wire. Mirrors the teacher's
// Report.Serialize in internal/net/messages.go, generalized to int64
// price/quantity and variable-length order ids instead of fixed 16-byte
// UUIDs.
func (r Report) Serialize() []byte {
	orderID := []byte(r.OrderID)
	counterpart := []byte(r.Counterpart)
	errStr := []byte(r.Err)

	total := reportFixedLen + len(orderID) + len(counterpart) + len(errStr)
	buf := make([]byte, total)

	buf[0] = byte(r.Type)
	buf[1] = byte(r.Side)
	binary.BigEndian.PutUint64(buf[2:10], uint64(r.Price))
	binary.BigEndian.PutUint64(buf[10:18], uint64(r.Quantity))
	binary.BigEndian.PutUint16(buf[18:20], uint16(len(orderID)))
	binary.BigEndian.PutUint16(buf[20:22], uint16(len(counterpart)))
	binary.BigEndian.PutUint32(buf[22:26], uint32(len(errStr)))

	off := reportFixedLen
	off += copy(buf[off:], orderID)
	off += copy(buf[off:], counterpart)
	copy(buf[off:], errStr)
	return buf
}

// DecodeReport is the client-side counterpart to Serialize, used by
// cmd/client to render incoming reports.
func DecodeReport(buf []byte) (Report, error) {
	if len(buf) < reportFixedLen {
		return Report{}, fmt.Errorf("%w: report header", ErrMessageTooShort)
	}
	r := Report{
		Type:     ReportType(buf[0]),
		Side:     model.Side(buf[1]),
		Price:    int64(binary.BigEndian.Uint64(buf[2:10])),
		Quantity: int64(binary.BigEndian.Uint64(buf[10:18])),
	}
	orderIDLen := int(binary.BigEndian.Uint16(buf[18:20]))
	counterpartLen := int(binary.BigEndian.Uint16(buf[20:22]))
	errLen := int(binary.BigEndian.Uint32(buf[22:26]))

	off := reportFixedLen
	if len(buf) < off+orderIDLen+counterpartLen+errLen {
		return Report{}, fmt.Errorf("%w: report body truncated", ErrMessageTooShort)
	}
	r.OrderID = model.OrderID(buf[off : off+orderIDLen])
	off += orderIDLen
	r.Counterpart = model.OrderID(buf[off : off+counterpartLen])
	off += counterpartLen
	r.Err = string(buf[off : off+errLen])
	return r, nil
}
