package metrics

import "github.com/prometheus/client_golang/prometheus"

// Interfaces for metrics to avoid circular imports
type MetricsCounter interface {
	Inc()
}

type MetricsGauge interface {
	Set(float64)
	Add(float64)
}

type MetricsHistogram interface {
	Observe(float64)
}

// Legacy interfaces for compatibility
type Counter = MetricsCounter
type Gauge = MetricsGauge
type Histogram = MetricsHistogram

// MetricsWrapper provides a simple interface for the webhook handler and
// order engine to use metrics without depending on *prometheus.Counter etc.
// directly.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

func (w *MetricsWrapper) SignalsReceivedInc() {
	w.m.SignalsReceived.Inc()
}

func (w *MetricsWrapper) SignalsDuplicateInc() {
	w.m.SignalsDuplicate.Inc()
}

func (w *MetricsWrapper) SignalsInvalidInc() {
	w.m.SignalsInvalid.Inc()
}

func (w *MetricsWrapper) GateRejectionInc(kind string) {
	w.m.GateRejections.WithLabelValues(kind).Inc()
}

func (w *MetricsWrapper) OrdersPlacedInc() {
	w.m.OrdersPlaced.Inc()
}

func (w *MetricsWrapper) OrderPollRetriesInc() {
	w.m.OrderPollRetries.Inc()
}

func (w *MetricsWrapper) OrderExecutionDuration() MetricsHistogram {
	return &HistogramWrapper{w.m.OrderExecutionDuration}
}

func (w *MetricsWrapper) LossStreakSet(strategy string, streak int) {
	w.m.LossStreak.WithLabelValues(strategy).Set(float64(streak))
}

func (w *MetricsWrapper) ErrorsTotalInc() {
	w.m.ErrorsTotal.Inc()
}

func (w *MetricsWrapper) ObserveRealized(realized, dailyTotal float64) {
	w.m.ObserveRealized(realized, dailyTotal)
}

func (w *MetricsWrapper) UpdatePositions(positions map[string]float64) {
	w.m.UpdatePositions(positions)
}

type CounterWrapper struct {
	c prometheus.Counter
}

func (cw *CounterWrapper) Inc() {
	cw.c.Inc()
}

type GaugeWrapper struct {
	g prometheus.Gauge
}

func (gw *GaugeWrapper) Set(v float64) {
	gw.g.Set(v)
}

func (gw *GaugeWrapper) Add(v float64) {
	gw.g.Add(v)
}

type HistogramWrapper struct {
	h prometheus.Histogram
}

func (hw *HistogramWrapper) Observe(v float64) {
	hw.h.Observe(v)
}
