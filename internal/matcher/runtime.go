// Package matcher is the single cooperative loop that owns a cursor over
// the durable log and exclusive mutation rights over the order book
// (spec.md §4.E, §5). It is grounded on the teacher's internal/worker.go
// and internal/net/server.go, both built on gopkg.in/tomb.v2 for lifecycle
// and github.com/rs/zerolog for structured logging.
package matcher

import (
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/tomb.v2"

	"clob/internal/book"
	"clob/internal/metrics"
	"clob/internal/model"
	"clob/internal/walog"
)

// DefaultIdlePoll is how long Run sleeps when the cursor has caught up to
// the tail of the log. Bounded and small, per spec.md §4.E's "yield the
// CPU briefly" requirement.
const DefaultIdlePoll = 2 * time.Millisecond

// Runtime drives a Book from a Log. All mutation of the book happens on
// the goroutine that calls Run (spec.md §5) — nothing in Runtime is safe
// to call concurrently with Run, except Query, which hands the book to a
// closure executed on Run's own goroutine and blocks the caller until it
// completes. That is the only sanctioned way to read the book from
// outside the matcher: the spec is explicit that there is no internal
// locking, so any other concurrent read would race.
type Runtime struct {
	log      *walog.Log
	book     *book.Book
	metrics  *metrics.Collector
	trades   chan model.Trade
	requests chan bookRequest
	idlePoll time.Duration
	logger   zerolog.Logger
}

type bookRequest struct {
	fn   func(*book.Book)
	done chan struct{}
}

// New constructs a Runtime. trades is the single-producer channel trade
// output is published on (spec.md §5's "safe-publish mechanism" for
// external readers); metrics may be nil if observability isn't wired up.
func New(log *walog.Log, b *book.Book, mc *metrics.Collector, trades chan model.Trade, logger zerolog.Logger) *Runtime {
	return &Runtime{
		log:      log,
		book:     b,
		metrics:  mc,
		trades:   trades,
		requests: make(chan bookRequest),
		idlePoll: DefaultIdlePoll,
		logger:   logger,
	}
}

// Query runs fn against the book on the matcher's own goroutine and
// blocks until it completes. Safe to call from any goroutine, including
// concurrently with itself and with Run. Must not be called after Run has
// returned — there is nothing left to service the request.
func (r *Runtime) Query(fn func(*book.Book)) {
	done := make(chan struct{})
	r.requests <- bookRequest{fn: fn, done: done}
	<-done
}

// Run is the matcher loop body from spec.md §4.E. It replays the entire
// log from the beginning (the cursor always starts at the first record),
// decodes each record, drives the book, and publishes resulting trades.
// It returns nil on a clean shutdown (t.Dying() fires), or a non-nil error
// on an ErrIOError from the log — fatal per spec.md §7, meant to be
// surfaced to the process.
func (r *Runtime) Run(t *tomb.Tomb) error {
	cur := r.log.Cursor()
	defer cur.Close()

	cur.OnWarning(func(index uint64, err error) {
		r.logger.Warn().Uint64("index", index).Err(err).Msg("skipping undecodable log record")
	})

	for {
		select {
		case <-t.Dying():
			return nil
		case req := <-r.requests:
			req.fn(r.book)
			close(req.done)
			continue
		default:
		}

		rec, ok, err := cur.Next()
		if err != nil {
			r.logger.Error().Err(err).Msg("durable log read failed, matcher stopping")
			return err
		}
		if !ok {
			select {
			case <-t.Dying():
				return nil
			case req := <-r.requests:
				req.fn(r.book)
				close(req.done)
			case <-time.After(r.idlePoll):
			}
			continue
		}

		r.apply(t, rec)
	}
}

func (r *Runtime) apply(t *tomb.Tomb, rec walog.Record) {
	switch rec.Kind {
	case walog.KindCancel:
		if !r.book.Cancel(rec.OrderID) {
			r.logger.Info().Str("orderId", string(rec.OrderID)).Msg("cancel ignored: unknown or already terminal order")
		}
		if r.metrics != nil {
			r.metrics.ObserveBook(r.book)
		}
	case walog.KindSubmit:
		order, err := model.NewOrder(rec.OrderID, rec.Side, rec.Price, rec.Quantity)
		if err != nil {
			// The adapter validates before appending, so reaching here
			// means the log itself holds a malformed submit record.
			r.logger.Error().Err(err).Str("orderId", string(rec.OrderID)).Msg("dropping malformed submit record")
			return
		}
		trades := r.book.Submit(order)
		if r.metrics != nil {
			r.metrics.ObserveTrades(len(trades))
			r.metrics.ObserveBook(r.book)
		}
		for _, tr := range trades {
			select {
			case r.trades <- tr:
			case <-t.Dying():
				return
			}
		}
	default:
		r.logger.Warn().Uint8("kind", uint8(rec.Kind)).Msg("unhandled record kind")
	}
}

