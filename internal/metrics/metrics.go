// Package metrics exposes the bot's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PriceUpdatesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "triarb_price_updates_total", Help: "Book ticker updates applied to the price cache"},
	)
	FeedConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "triarb_feed_connections", Help: "Open market data stream connections"},
	)
	CyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "triarb_cycles_total", Help: "Detection cycles completed"},
	)
	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "triarb_cycle_duration_seconds",
			Help:    "Wall time of one detection cycle",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)
	TrianglesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "triarb_triangles_evaluated_total", Help: "Triangles simulated"},
	)
	SimulationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "triarb_simulation_failures_total", Help: "Simulations rejected, by reason"},
		[]string{"reason"},
	)
	OpportunitiesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "triarb_opportunities_total", Help: "Profitable triangles, by cooldown outcome"},
		[]string{"outcome"},
	)
	TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "triarb_trades_total", Help: "Trade executions, by terminal status"},
		[]string{"status"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "triarb_orders_total", Help: "Orders placed, by channel and leg status"},
		[]string{"method", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		PriceUpdatesTotal,
		FeedConnections,
		CyclesTotal,
		CycleDuration,
		TrianglesTotal,
		SimulationFailures,
		OpportunitiesTotal,
		TradesTotal,
		OrdersTotal,
	)
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
