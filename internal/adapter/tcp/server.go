package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/tomb.v2"

	"clob/internal/book"
	"clob/internal/matcher"
	"clob/internal/model"
	"clob/internal/walog"
)

const (
	maxRecvSize        = 4 * 1024
	defaultNWorkers    = 10
	defaultConnTimeout = time.Second
)

// ErrClientDoesNotExist means a trade report had no connection left to
// deliver to — the client disconnected between submitting and the matcher
// producing a fill. Not fatal; the report is simply dropped.
var ErrClientDoesNotExist = errors.New("tcp: client does not exist")

// connMessage links one parsed request to the connection it arrived on.
type connMessage struct {
	conn net.Conn
	typ  MessageType
	body any
}

// Server is the binary TCP submission adapter from SPEC_FULL.md §4.G. It
// never mutates the book directly: SubmitOrder/CancelOrder requests are
// validated, turned into walog records, and appended to the durable log —
// the matcher runtime is the only thing that ever calls book.Submit or
// book.Cancel. Reads (LogBook) go through runtime.Query, the only sanctioned
// way to touch the book from outside the matcher goroutine.
//
// Grounded on the teacher's internal/net/server.go (worker pool + tomb +
// per-connection read loop) and internal/worker.go (the pool itself).
type Server struct {
	addr    string
	log     *walog.Log
	runtime *matcher.Runtime
	pool    workerPool
	logger  zerolog.Logger

	sessionsMu sync.Mutex
	sessions   map[model.OrderID]net.Conn

	messages chan connMessage
}

// New constructs a Server bound to addr (host:port), appending validated
// requests to log and routing book reads through runtime.
func New(addr string, log *walog.Log, runtime *matcher.Runtime, logger zerolog.Logger) *Server {
	return &Server{
		addr:     addr,
		log:      log,
		runtime:  runtime,
		pool:     newWorkerPool(defaultNWorkers, logger),
		logger:   logger,
		sessions: make(map[model.OrderID]net.Conn),
		messages: make(chan connMessage, 1),
	}
}

// Run listens on addr and serves connections until t starts dying or the
// listener fails to start. It also drains trades, a channel of matcher
// fills the runtime is publishing on.
func (s *Server) Run(t *tomb.Tomb, trades <-chan model.Trade) error {
	var lc net.ListenConfig
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	t.Go(func() error {
		<-t.Dying()
		cancel()
		return nil
	})

	listener, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("tcp: listen on %s: %w", s.addr, err)
	}
	defer listener.Close()

	t.Go(func() error {
		s.pool.setup(t, s.handleConnection)
		return nil
	})
	t.Go(func() error {
		return s.reportLoop(t, trades)
	})
	t.Go(func() error {
		return s.requestHandler(t)
	})

	s.logger.Info().Str("addr", s.addr).Msg("tcp adapter listening")
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-t.Dying():
				return nil
			default:
				s.logger.Error().Err(err).Msg("accept failed")
				continue
			}
		}
		s.pool.addTask(conn)
	}
}

// requestHandler is the teacher's sessionHandler: a single goroutine that
// serializes handling of parsed requests so that session bookkeeping (the
// order-id to connection map) never needs its own lock beyond sessionsMu.
func (s *Server) requestHandler(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case msg := <-s.messages:
			s.handleRequest(msg)
		}
	}
}

func (s *Server) handleRequest(msg connMessage) {
	switch msg.typ {
	case Heartbeat:
		return
	case SubmitOrder:
		req := msg.body.(SubmitRequest)
		s.handleSubmit(msg.conn, req)
	case CancelOrder:
		req := msg.body.(CancelRequest)
		s.handleCancel(msg.conn, req)
	case LogBook:
		s.handleLogBook(msg.conn)
	}
}

func (s *Server) handleSubmit(conn net.Conn, req SubmitRequest) {
	// Validate before the record ever reaches the durable log — an
	// INVALID_ARG order must never be appended (SPEC_FULL.md §4.G).
	if _, err := model.NewOrder(req.OrderID, req.Side, req.Price, req.Quantity); err != nil {
		s.reject(conn, req.OrderID, req.Side, err)
		return
	}

	s.sessionsMu.Lock()
	s.sessions[req.OrderID] = conn
	s.sessionsMu.Unlock()

	err := s.log.Append(walog.Record{
		Kind:     walog.KindSubmit,
		OrderID:  req.OrderID,
		Side:     req.Side,
		Price:    req.Price,
		Quantity: req.Quantity,
	})
	if err != nil {
		s.reject(conn, req.OrderID, req.Side, err)
		return
	}
	s.accept(conn, req.OrderID, req.Side, req.Price, req.Quantity)
}

func (s *Server) handleCancel(conn net.Conn, req CancelRequest) {
	if req.OrderID == "" {
		s.reject(conn, req.OrderID, 0, fmt.Errorf("%w: empty order id", model.ErrInvalidArgument))
		return
	}
	if err := s.log.Append(walog.Record{Kind: walog.KindCancel, OrderID: req.OrderID}); err != nil {
		s.reject(conn, req.OrderID, 0, err)
		return
	}
	s.accept(conn, req.OrderID, 0, 0, 0)
}

// handleLogBook services the teacher's debug LogBook action entirely
// server-side: it queries the book through the matcher's safe Query
// mechanism and writes a structured log line, exactly mirroring what
// Engine.LogBook() did for the teacher (no wire response).
func (s *Server) handleLogBook(conn net.Conn) {
	var bid, ask int64
	var bidOk, askOk bool
	var buyCount, sellCount int
	s.runtime.Query(func(bk *book.Book) {
		bid, _, bidOk = bk.BestBid()
		ask, _, askOk = bk.BestAsk()
		buyCount, sellCount = bk.RestingOrders()
	})
	s.logger.Info().
		Int64("bestBid", bid).Bool("hasBid", bidOk).
		Int64("bestAsk", ask).Bool("hasAsk", askOk).
		Int("restingBuy", buyCount).Int("restingSell", sellCount).
		Str("requestedBy", conn.RemoteAddr().String()).
		Msg("book snapshot")
}

func (s *Server) accept(conn net.Conn, id model.OrderID, side model.Side, price, qty int64) {
	rep := Report{Type: Accepted, OrderID: id, Side: side, Price: price, Quantity: qty}
	if _, err := conn.Write(rep.Serialize()); err != nil {
		s.logger.Warn().Err(err).Str("orderId", string(id)).Msg("failed to deliver accept")
	}
}

func (s *Server) reject(conn net.Conn, id model.OrderID, side model.Side, reason error) {
	rep := Report{Type: Rejected, OrderID: id, Side: side, Err: reason.Error()}
	if _, err := conn.Write(rep.Serialize()); err != nil {
		s.logger.Warn().Err(err).Str("orderId", string(id)).Msg("failed to deliver reject")
	}
}

// reportLoop drains the matcher's trade output and pushes an Execution
// report to each side's owning connection, if it is still around.
func (s *Server) reportLoop(t *tomb.Tomb, trades <-chan model.Trade) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case tr := <-trades:
			s.deliverExecution(tr.BuyOrderID, model.Buy, tr.SellOrderID, tr)
			s.deliverExecution(tr.SellOrderID, model.Sell, tr.BuyOrderID, tr)
		}
	}
}

func (s *Server) deliverExecution(id model.OrderID, side model.Side, counterpart model.OrderID, tr model.Trade) {
	s.sessionsMu.Lock()
	conn, ok := s.sessions[id]
	s.sessionsMu.Unlock()
	if !ok {
		return
	}

	rep := Report{
		Type:        Execution,
		OrderID:     id,
		Side:        side,
		Price:       tr.Price,
		Quantity:    tr.Quantity,
		Counterpart: counterpart,
	}
	if _, err := conn.Write(rep.Serialize()); err != nil {
		s.logger.Warn().Err(err).Str("orderId", string(id)).Msg("failed to deliver execution report")
		s.sessionsMu.Lock()
		delete(s.sessions, id)
		s.sessionsMu.Unlock()
	}
}

// handleConnection reads exactly one request off conn, parses it, and
// forwards it to requestHandler — mirroring the teacher's short-lived,
// one-request-per-task worker shape (internal/net/server.go
// handleConnection) rather than holding a long-lived read loop per
// connection inside a pool worker.
func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	conn, ok := task.(net.Conn)
	if !ok {
		return fmt.Errorf("tcp: unexpected task type %T", task)
	}

	if err := conn.SetReadDeadline(time.Now().Add(defaultConnTimeout)); err != nil {
		s.logger.Error().Err(err).Str("addr", conn.RemoteAddr().String()).Msg("failed setting read deadline")
		conn.Close()
		return nil
	}

	buf := make([]byte, maxRecvSize)
	n, err := conn.Read(buf)
	if err != nil {
		s.closeConn(conn)
		return nil
	}

	typ, body, err := ParseRequest(buf[:n])
	if err != nil {
		s.logger.Warn().Err(err).Str("addr", conn.RemoteAddr().String()).Msg("malformed request")
		s.closeConn(conn)
		return nil
	}

	select {
	case s.messages <- connMessage{conn: conn, typ: typ, body: body}:
	case <-t.Dying():
		return nil
	}

	// Keep the connection open so reports/acks can be written back to it
	// and so the client may send further requests; hand it back to the
	// pool to read the next one.
	s.pool.addTask(conn)
	return nil
}

func (s *Server) closeConn(conn net.Conn) {
	if err := conn.Close(); err != nil {
		s.logger.Warn().Err(err).Str("addr", conn.RemoteAddr().String()).Msg("error closing connection")
	}
}
