// Package book implements the two-sided, price-indexed order book and the
// price-time-priority matching algorithm that operates on it (spec.md
// §4.C, §4.D). It is grounded on the teacher's
// internal/engine/orderbook.go (a btree.BTreeG[*PriceLevel] per side) and
// on lightsgoout-go-quantcup's lazy-cancellation trick: Cancel only
// mutates shared order state, and the matching walk (or a BestBid/BestAsk
// query) is what actually evicts dead entries from a FIFO queue.
package book

import (
	"clob/internal/model"

	"github.com/tidwall/btree"
)

type levels = btree.BTreeG[*PriceLevel]

// Book is a two-sided order book for a single instrument. All mutation is
// expected to happen from a single goroutine (spec.md §5) — there is no
// internal locking.
type Book struct {
	bids *levels // descending by price: best bid first
	asks *levels // ascending by price: best ask first
	byID map[model.OrderID]*model.Order

	trades []model.Trade // append-only trade log (spec.md §3)

	restingBuy  int
	restingSell int
}

// New constructs an empty book.
func New() *Book {
	bids := btree.NewBTreeG(func(a, b *PriceLevel) bool { return a.Price > b.Price })
	asks := btree.NewBTreeG(func(a, b *PriceLevel) bool { return a.Price < b.Price })
	return &Book{
		bids: bids,
		asks: asks,
		byID: make(map[model.OrderID]*model.Order),
	}
}

// Submit runs the matching algorithm (spec.md §4.D) against the opposing
// side, then rests any remainder at the incoming order's limit price.
// Returns the trades produced by this submission, in the order they
// occurred.
func (b *Book) Submit(order *model.Order) []model.Trade {
	own, opp := b.bids, b.asks
	if order.Side() == model.Sell {
		own, opp = b.asks, b.bids
	}

	var trades []model.Trade
	for order.Remaining() > 0 {
		top, ok := opp.Min()
		if !ok {
			break
		}
		if order.Side() == model.Buy && order.Price() < top.Price {
			break
		}
		if order.Side() == model.Sell && order.Price() > top.Price {
			break
		}

		top.evictDead(b.evict)
		for !top.empty() && order.Remaining() > 0 {
			resting := top.Orders[0]
			if !resting.IsRestable() || resting.Remaining() == 0 {
				top.Orders = top.Orders[1:]
				b.evict(resting)
				continue
			}

			q := min64(order.Remaining(), resting.Remaining())
			order.Fill(q)
			resting.Fill(q)

			buyID, sellID := order.ID(), resting.ID()
			if order.Side() == model.Sell {
				buyID, sellID = resting.ID(), order.ID()
			}
			trade, err := model.NewTrade(buyID, sellID, top.Price, q)
			if err != nil {
				// Both ids and quantities are already validated upstream;
				// a failure here means an invariant broke.
				panic("book: produced an invalid trade: " + err.Error())
			}
			trades = append(trades, trade)
			b.trades = append(b.trades, trade)

			if resting.Remaining() == 0 {
				top.Orders = top.Orders[1:]
				b.evict(resting)
			}
		}

		if top.empty() {
			opp.Delete(top)
		}
	}

	if order.Remaining() > 0 {
		b.rest(own, order)
	} else {
		delete(b.byID, order.ID())
	}
	return trades
}

// rest inserts the residual order at the tail of its price level's FIFO
// queue and indexes it by id.
func (b *Book) rest(own *levels, order *model.Order) {
	if existing, ok := own.Get(&PriceLevel{Price: order.Price()}); ok {
		existing.append(order)
	} else {
		own.Set(newPriceLevel(order.Price(), order))
	}
	b.byID[order.ID()] = order
	if order.Side() == model.Buy {
		b.restingBuy++
	} else {
		b.restingSell++
	}
}

// evict removes a terminal order from the by-id index and the resting
// counts. Called when the matching walk fills a resting order or pops a
// dead head-of-queue entry, and when BestBid/BestAsk pop dead entries off
// the top level — this is the "lazy eviction" spec.md §3/§9 describes.
func (b *Book) evict(o *model.Order) {
	delete(b.byID, o.ID())
	if o.Side() == model.Buy {
		b.restingBuy--
	} else {
		b.restingSell--
	}
}

// Cancel marks the referenced order CANCELED without touching its FIFO
// queue position (spec.md §4.C: unlinking from the middle of a queue is
// O(n); a status check on peek is O(1)). Returns whether the order was
// cancelable — true only if its prior status was OPEN or PARTIALLY_FILLED.
func (b *Book) Cancel(id model.OrderID) bool {
	o, ok := b.byID[id]
	if !ok {
		return false
	}
	if o.Status().Terminal() {
		return false
	}
	o.Cancel()
	return true
}

// Lookup returns a snapshot of the order if it is still in the by-id
// index: a resting order, or a canceled one that has not yet been evicted.
// Filled and evicted orders are not found.
func (b *Book) Lookup(id model.OrderID) (model.Order, bool) {
	o, ok := b.byID[id]
	if !ok {
		return model.Order{}, false
	}
	return *o, true
}

// BestBid returns the best bid price and its aggregate visible quantity,
// skipping lazily-dead entries on demand.
func (b *Book) BestBid() (price int64, qty int64, ok bool) {
	return topOfBook(b.bids, b.evict)
}

// BestAsk returns the best ask price and its aggregate visible quantity,
// skipping lazily-dead entries on demand.
func (b *Book) BestAsk() (price int64, qty int64, ok bool) {
	return topOfBook(b.asks, b.evict)
}

func topOfBook(l *levels, onEvict func(*model.Order)) (price, qty int64, ok bool) {
	for {
		top, found := l.Min()
		if !found {
			return 0, 0, false
		}
		top.evictDead(onEvict)
		if top.empty() {
			l.Delete(top)
			continue
		}
		return top.Price, top.visibleQty(), true
	}
}

// RestingOrders reports the number of orders resting on each side — the
// "count of resting orders per side" observability output from spec.md
// §6. A canceled order stays counted until it is lazily evicted.
func (b *Book) RestingOrders() (buy, sell int) {
	return b.restingBuy, b.restingSell
}

// TradeCount reports the cumulative number of trades this book has
// produced — the other observability output from spec.md §6.
func (b *Book) TradeCount() int {
	return len(b.trades)
}

// Trades returns a copy of the full trade log produced by this book.
func (b *Book) Trades() []model.Trade {
	out := make([]model.Trade, len(b.trades))
	copy(out, b.trades)
	return out
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
