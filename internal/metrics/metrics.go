// Package metrics provides Prometheus metrics collection for the relay.
// It defines and manages the signal, gate, order, and PnL metrics exposed
// via the /metrics endpoint for monitoring and alerting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the relay. It provides counters,
// gauges, and histograms for signal throughput, gate rejections, order
// latency, and running PnL.
type Metrics struct {
	// Signal intake
	SignalsReceived  prometheus.Counter // Total number of inbound webhook signals
	SignalsDuplicate prometheus.Counter // Total number of signals ignored as duplicate claims
	SignalsInvalid   prometheus.Counter // Total number of signals rejected as unclassifiable

	// Gate rejections, by kind
	GateRejections *prometheus.CounterVec // Total rejections, labeled by gate kind (daily_drawdown/cooldown/regime_alloc/edge)

	// Order execution
	OrdersPlaced           prometheus.Counter   // Total number of orders placed against the venue
	OrderPollRetries       prometheus.Counter   // Total number of non-terminal polling attempts
	OrderExecutionDuration prometheus.Histogram // Duration from order placement to terminal status, in seconds

	// PnL and position state
	RealizedPnLTotal prometheus.Counter // Cumulative absolute realized PnL (sum of magnitudes) in quote currency
	DailyPnL         prometheus.Gauge   // Current UTC day's running PnL total
	ActivePositions  prometheus.Gauge   // Number of symbols currently carrying an open position
	LossStreak       *prometheus.GaugeVec // Current loss streak per strategy

	// System
	ErrorsTotal prometheus.Counter // Total number of internal errors encountered
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing,
// where a fresh registry avoids collisions with the default one).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		SignalsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "signals_received_total",
			Help: "Total number of inbound webhook signals",
		}),
		SignalsDuplicate: factory.NewCounter(prometheus.CounterOpts{
			Name: "signals_duplicate_total",
			Help: "Total number of signals ignored as duplicate idempotency claims",
		}),
		SignalsInvalid: factory.NewCounter(prometheus.CounterOpts{
			Name: "signals_invalid_total",
			Help: "Total number of signals rejected as unclassifiable",
		}),
		GateRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gate_rejections_total",
			Help: "Total number of signals rejected by a risk gate, labeled by kind",
		}, []string{"kind"}),
		OrdersPlaced: factory.NewCounter(prometheus.CounterOpts{
			Name: "orders_placed_total",
			Help: "Total number of orders placed against the venue",
		}),
		OrderPollRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "order_poll_retries_total",
			Help: "Total number of non-terminal order status polls",
		}),
		OrderExecutionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "order_execution_duration_seconds",
			Help:    "Duration from order placement to terminal status in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		RealizedPnLTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "realized_pnl_total",
			Help: "Cumulative realized PnL in quote currency (monotonic counter of absolute moves; see daily_pnl for signed running total)",
		}),
		DailyPnL: factory.NewGauge(prometheus.GaugeOpts{
			Name: "daily_pnl",
			Help: "Current UTC day's running PnL total in quote currency",
		}),
		ActivePositions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "active_positions",
			Help: "Number of symbols currently carrying an open position",
		}),
		LossStreak: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "loss_streak",
			Help: "Current consecutive-loss streak, labeled by strategy",
		}, []string{"strategy"}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of internal errors encountered",
		}),
	}
}

// UpdatePositions updates the active positions gauge from a symbol->size map.
func (m *Metrics) UpdatePositions(positions map[string]float64) {
	count := 0
	for _, size := range positions {
		if size != 0 {
			count++
		}
	}
	m.ActivePositions.Set(float64(count))
}

// ObserveRealized records a closed trade's realized PnL against the
// cumulative counter (magnitude) and the signed daily gauge.
func (m *Metrics) ObserveRealized(realized, dailyTotal float64) {
	m.RealizedPnLTotal.Add(absFloat(realized))
	m.DailyPnL.Set(dailyTotal)
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
