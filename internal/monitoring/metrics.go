// Package monitoring exposes Prometheus metrics for order construction and
// execution tracking.
package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Rejection reasons recorded by RecordRejection.
const (
	ReasonDuplicate      = "duplicate"
	ReasonInvalidInput   = "invalid_input"
	ReasonPricingFailure = "pricing_failure"
	ReasonZeroQuantity   = "zero_quantity"
	ReasonGated          = "gated"
	ReasonNoContracts    = "no_contracts"
)

// Metrics holds the collectors of one process. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	ordersBuilt     *prometheus.CounterVec
	orderQuantity   *prometheus.HistogramVec
	rejections      *prometheus.CounterVec
	buildDuration   *prometheus.HistogramVec
	executionEvents *prometheus.CounterVec
	activePositions *prometheus.GaugeVec
	workingOrders   *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// uses a fresh private registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		gatherer: reg,
		ordersBuilt: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ordercore_orders_built_total",
				Help: "Total number of orders constructed",
			},
			[]string{"strategy", "kind"},
		),
		orderQuantity: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ordercore_order_quantity",
				Help:    "Distribution of constructed order quantities",
				Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
			},
			[]string{"strategy"},
		),
		rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ordercore_order_rejections_total",
				Help: "Construction attempts that returned no order",
			},
			[]string{"strategy", "reason"},
		),
		buildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ordercore_build_duration_seconds",
				Help:    "Time spent constructing one order",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"strategy"},
		),
		executionEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ordercore_execution_events_total",
				Help: "Execution events applied to ledgers",
			},
			[]string{"strategy", "event"},
		),
		activePositions: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ordercore_active_positions",
				Help: "Open positions per strategy",
			},
			[]string{"strategy"},
		),
		workingOrders: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ordercore_working_orders",
				Help: "Working orders per strategy",
			},
			[]string{"strategy"},
		),
	}
	reg.MustRegister(m.ordersBuilt, m.orderQuantity, m.rejections, m.buildDuration,
		m.executionEvents, m.activePositions, m.workingOrders)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// RecordOrderBuilt records a constructed order.
func (m *Metrics) RecordOrderBuilt(strategy string, quantity int, credit bool) {
	if m == nil {
		return
	}
	kind := "debit"
	if credit {
		kind = "credit"
	}
	m.ordersBuilt.WithLabelValues(strategy, kind).Inc()
	m.orderQuantity.WithLabelValues(strategy).Observe(float64(quantity))
}

// RecordRejection records a construction attempt that produced no order.
func (m *Metrics) RecordRejection(strategy, reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(strategy, reason).Inc()
}

// ObserveBuildDuration records how long one construction call took.
func (m *Metrics) ObserveBuildDuration(strategy string, d time.Duration) {
	if m == nil {
		return
	}
	m.buildDuration.WithLabelValues(strategy).Observe(d.Seconds())
}

// RecordExecutionEvent counts an applied execution event.
func (m *Metrics) RecordExecutionEvent(strategy, event string) {
	if m == nil {
		return
	}
	m.executionEvents.WithLabelValues(strategy, event).Inc()
}

// SetLedgerGauges publishes the ledger counters of a strategy.
func (m *Metrics) SetLedgerGauges(strategy string, activePositions, workingOrders int) {
	if m == nil {
		return
	}
	m.activePositions.WithLabelValues(strategy).Set(float64(activePositions))
	m.workingOrders.WithLabelValues(strategy).Set(float64(workingOrders))
}
