package model

import "fmt"

// Trade is an immutable execution record. Price is always the resting
// (maker) order's limit price — price improvement accrues to the taker,
// per spec.md §4.D.
type Trade struct {
	BuyOrderID  OrderID
	SellOrderID OrderID
	Price       int64
	Quantity    int64
}

// NewTrade validates and constructs a Trade. All fields must be positive
// (ids non-empty, price and quantity > 0).
func NewTrade(buyID, sellID OrderID, price, quantity int64) (Trade, error) {
	if buyID == "" || sellID == "" {
		return Trade{}, fmt.Errorf("%w: empty trade counterparty id", ErrInvalidArgument)
	}
	if price <= 0 {
		return Trade{}, fmt.Errorf("%w: non-positive trade price %d", ErrInvalidArgument, price)
	}
	if quantity <= 0 {
		return Trade{}, fmt.Errorf("%w: non-positive trade quantity %d", ErrInvalidArgument, quantity)
	}
	return Trade{BuyOrderID: buyID, SellOrderID: sellID, Price: price, Quantity: quantity}, nil
}

func (t Trade) String() string {
	return fmt.Sprintf("Trade{buy=%s sell=%s price=%d qty=%d}", t.BuyOrderID, t.SellOrderID, t.Price, t.Quantity)
}
