package book_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clob/internal/book"
	"clob/internal/model"
)

func mustOrder(t *testing.T, id model.OrderID, side model.Side, price, qty int64) *model.Order {
	t.Helper()
	o, err := model.NewOrder(id, side, price, qty)
	require.NoError(t, err)
	return o
}

// Scenario 1 (spec.md §8): direct cross, resting SELL taken by a crossing
// BUY — execution price is the resting (maker) order's price.
func TestSubmit_DirectCross(t *testing.T) {
	b := book.New()

	s1 := mustOrder(t, "S1", model.Sell, 10000, 5)
	trades := b.Submit(s1)
	assert.Empty(t, trades)

	b1 := mustOrder(t, "B1", model.Buy, 10100, 5)
	trades = b.Submit(b1)

	require.Len(t, trades, 1)
	assert.Equal(t, model.Trade{BuyOrderID: "B1", SellOrderID: "S1", Price: 10000, Quantity: 5}, trades[0])

	assert.Equal(t, model.Filled, b1.Status())
	assert.Equal(t, model.Filled, s1.Status())
	// A filled maker is removed from the id index.
	_, ok := b.Lookup("S1")
	assert.False(t, ok)

	_, _, ok = b.BestBid()
	assert.False(t, ok)
	_, _, ok = b.BestAsk()
	assert.False(t, ok)
}

// Scenario 2: symmetric cross — resting BUY is the maker, execution at the
// BUY's (higher) limit price.
func TestSubmit_SymmetricCross(t *testing.T) {
	b := book.New()

	b1 := mustOrder(t, "B1", model.Buy, 10100, 5)
	assert.Empty(t, b.Submit(b1))

	s1 := mustOrder(t, "S1", model.Sell, 10000, 5)
	trades := b.Submit(s1)

	require.Len(t, trades, 1)
	assert.Equal(t, model.Trade{BuyOrderID: "B1", SellOrderID: "S1", Price: 10100, Quantity: 5}, trades[0])
	assert.Equal(t, model.Filled, b1.Status())
	assert.Equal(t, model.Filled, s1.Status())
}

// Scenario 3: partial sweep across two resting SELLs, FIFO within price,
// taker left resting for the remainder.
func TestSubmit_PartialSweep_FIFOWithinLevel(t *testing.T) {
	b := book.New()

	s1 := mustOrder(t, "S1", model.Sell, 10000, 3)
	s2 := mustOrder(t, "S2", model.Sell, 10000, 2)
	require.Empty(t, b.Submit(s1))
	require.Empty(t, b.Submit(s2))

	b1 := mustOrder(t, "B1", model.Buy, 10100, 6)
	trades := b.Submit(b1)

	require.Len(t, trades, 2)
	assert.Equal(t, model.Trade{BuyOrderID: "B1", SellOrderID: "S1", Price: 10000, Quantity: 3}, trades[0])
	assert.Equal(t, model.Trade{BuyOrderID: "B1", SellOrderID: "S2", Price: 10000, Quantity: 2}, trades[1])

	assert.Equal(t, model.Filled, s1.Status())
	assert.Equal(t, model.Filled, s2.Status())
	assert.Equal(t, model.PartiallyFilled, b1.Status())
	assert.Equal(t, int64(1), b1.Remaining())

	price, qty, ok := b.BestBid()
	require.True(t, ok)
	assert.Equal(t, int64(10100), price)
	assert.Equal(t, int64(1), qty)
}

// Scenario 4: no cross, both orders rest.
func TestSubmit_NoCross(t *testing.T) {
	b := book.New()

	b1 := mustOrder(t, "B1", model.Buy, 9000, 5)
	s1 := mustOrder(t, "S1", model.Sell, 10000, 5)
	assert.Empty(t, b.Submit(b1))
	assert.Empty(t, b.Submit(s1))

	bidPrice, bidQty, ok := b.BestBid()
	require.True(t, ok)
	assert.Equal(t, int64(9000), bidPrice)
	assert.Equal(t, int64(5), bidQty)

	askPrice, askQty, ok := b.BestAsk()
	require.True(t, ok)
	assert.Equal(t, int64(10000), askPrice)
	assert.Equal(t, int64(5), askQty)
}

// Scenario 5: cancel before match — the canceled order must never appear
// in a subsequent trade, and the eviction must be lazy (it still sits in
// the queue until the matcher walks past it).
func TestCancel_BeforeMatch_NeverTrades(t *testing.T) {
	b := book.New()

	s1 := mustOrder(t, "S1", model.Sell, 10000, 10)
	require.Empty(t, b.Submit(s1))

	ok := b.Cancel("S1")
	assert.True(t, ok)
	assert.Equal(t, model.Canceled, s1.Status())

	b1 := mustOrder(t, "B1", model.Buy, 11000, 5)
	trades := b.Submit(b1)

	assert.Empty(t, trades)
	assert.Equal(t, model.Open, b1.Status())
	price, qty, ok := b.BestBid()
	require.True(t, ok)
	assert.Equal(t, int64(11000), price)
	assert.Equal(t, int64(5), qty)
}

func TestCancel_UnknownOrAlreadyTerminal(t *testing.T) {
	b := book.New()
	assert.False(t, b.Cancel("nope"))

	s1 := mustOrder(t, "S1", model.Sell, 10000, 5)
	b1 := mustOrder(t, "B1", model.Buy, 10100, 5)
	require.Empty(t, b.Submit(s1))
	require.Len(t, b.Submit(b1), 1)

	// S1 is now FILLED; cancel must report not-cancelable.
	assert.False(t, b.Cancel("S1"))
}

// Price-time priority: two resting orders at the same price, A before B;
// an incoming crossing order must fill A in full before touching B.
func TestPriceTimePriority_WithinLevel(t *testing.T) {
	b := book.New()

	a := mustOrder(t, "A", model.Sell, 10000, 4)
	bb := mustOrder(t, "B", model.Sell, 10000, 4)
	require.Empty(t, b.Submit(a))
	require.Empty(t, b.Submit(bb))

	taker := mustOrder(t, "T", model.Buy, 10000, 4)
	trades := b.Submit(taker)

	require.Len(t, trades, 1)
	assert.Equal(t, model.OrderID("A"), trades[0].SellOrderID)
	assert.Equal(t, model.Filled, a.Status())
	assert.Equal(t, model.Open, bb.Status())
}

// No-crossing invariant across a deeper book with multiple price levels on
// both sides, verified once the book is built and again after a crossing
// submission.
func TestSubmit_MultiLevel_NeverCrosses(t *testing.T) {
	b := book.New()

	require.Empty(t, b.Submit(mustOrder(t, "B1", model.Buy, 99, 100)))
	require.Empty(t, b.Submit(mustOrder(t, "B2", model.Buy, 99, 90)))
	require.Empty(t, b.Submit(mustOrder(t, "B3", model.Buy, 98, 50)))
	require.Empty(t, b.Submit(mustOrder(t, "S1", model.Sell, 100, 100)))
	require.Empty(t, b.Submit(mustOrder(t, "S2", model.Sell, 101, 20)))

	assertNoCross(t, b)

	trades := b.Submit(mustOrder(t, "B4", model.Buy, 100, 120))
	require.Len(t, trades, 1)
	assert.Equal(t, int64(100), trades[0].Price)
	assert.Equal(t, int64(100), trades[0].Quantity)
	assertNoCross(t, b)

	askPrice, askQty, ok := b.BestAsk()
	require.True(t, ok)
	assert.Equal(t, int64(101), askPrice)
	assert.Equal(t, int64(20), askQty)
}

func assertNoCross(t *testing.T, b *book.Book) {
	t.Helper()
	bidPrice, _, bidOk := b.BestBid()
	askPrice, _, askOk := b.BestAsk()
	if bidOk && askOk {
		assert.Less(t, bidPrice, askPrice, "book crossed: bid %d >= ask %d", bidPrice, askPrice)
	}
}

// Conservation of quantity: traded quantity on the buy side always equals
// traded quantity on the sell side.
func TestConservationOfQuantity(t *testing.T) {
	b := book.New()

	require.Empty(t, b.Submit(mustOrder(t, "S1", model.Sell, 100, 7)))
	require.Empty(t, b.Submit(mustOrder(t, "S2", model.Sell, 100, 3)))
	trades := b.Submit(mustOrder(t, "B1", model.Buy, 100, 11))

	var buyQty, sellQty int64
	for _, tr := range trades {
		buyQty += tr.Quantity
		sellQty += tr.Quantity
	}
	assert.Equal(t, buyQty, sellQty)
	assert.Equal(t, int64(10), buyQty)
}
