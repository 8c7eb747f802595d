package book

import "clob/internal/model"

// PriceLevel holds every order resting at a single price, in strict FIFO
// (insertion) order. Orders are appended at the tail and consumed from the
// head; canceled or filled orders may linger at the head until the
// matching walk encounters and evicts them (spec.md §3, §9 — lazy
// cancellation).
type PriceLevel struct {
	Price  int64
	Orders []*model.Order
}

func newPriceLevel(price int64, first *model.Order) *PriceLevel {
	return &PriceLevel{Price: price, Orders: []*model.Order{first}}
}

func (p *PriceLevel) append(o *model.Order) {
	p.Orders = append(p.Orders, o)
}

// evictDead drops dead (terminal or zero-remaining) orders off the front
// of the queue, invoking onEvict for each one so the caller can remove it
// from the by-id index. Returns once the head is alive or the level is
// empty.
func (p *PriceLevel) evictDead(onEvict func(*model.Order)) {
	for len(p.Orders) > 0 {
		head := p.Orders[0]
		if head.IsRestable() && head.Remaining() > 0 {
			return
		}
		p.Orders = p.Orders[1:]
		onEvict(head)
	}
}

func (p *PriceLevel) empty() bool { return len(p.Orders) == 0 }

// visibleQty sums the remaining quantity of every live order at this
// level, skipping dead ones without mutating the queue.
func (p *PriceLevel) visibleQty() int64 {
	var total int64
	for _, o := range p.Orders {
		if o.IsRestable() && o.Remaining() > 0 {
			total += o.Remaining()
		}
	}
	return total
}
