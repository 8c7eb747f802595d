// Package metrics exposes the read-only observability outputs from
// spec.md §6 — best bid/ask, resting order counts per side, cumulative
// trade count — via github.com/prometheus/client_golang. None of this
// bears on matching correctness; it is a pure side channel the matcher
// runtime updates after every processed record.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"clob/internal/book"
)

// Collector holds the Prometheus instruments for one book.
type Collector struct {
	bestBid       prometheus.Gauge
	bestAsk       prometheus.Gauge
	restingOrders *prometheus.GaugeVec
	tradesTotal   prometheus.Counter
}

// NewCollector builds a Collector and registers its instruments with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		bestBid: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "clob_best_bid_price_ticks",
			Help: "Current best bid price, in ticks. Zero when the bid side is empty.",
		}),
		bestAsk: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "clob_best_ask_price_ticks",
			Help: "Current best ask price, in ticks. Zero when the ask side is empty.",
		}),
		restingOrders: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "clob_resting_orders",
			Help: "Number of resting orders, by side. Canceled orders count until lazily evicted.",
		}, []string{"side"}),
		tradesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clob_trades_total",
			Help: "Cumulative number of trades produced by the matching engine.",
		}),
	}
	reg.MustRegister(c.bestBid, c.bestAsk, c.restingOrders, c.tradesTotal)
	return c
}

// ObserveBook refreshes the gauges from the current book state. Cheap
// enough to call after every processed log record.
func (c *Collector) ObserveBook(b *book.Book) {
	if price, _, ok := b.BestBid(); ok {
		c.bestBid.Set(float64(price))
	} else {
		c.bestBid.Set(0)
	}
	if price, _, ok := b.BestAsk(); ok {
		c.bestAsk.Set(float64(price))
	} else {
		c.bestAsk.Set(0)
	}
	buy, sell := b.RestingOrders()
	c.restingOrders.WithLabelValues("buy").Set(float64(buy))
	c.restingOrders.WithLabelValues("sell").Set(float64(sell))
}

// ObserveTrades increments the trade counter by the number of trades just
// produced.
func (c *Collector) ObserveTrades(n int) {
	if n > 0 {
		c.tradesTotal.Add(float64(n))
	}
}
