// Package metrics exposes Prometheus metrics for the live trading loop:
// order submission outcomes, retry counts, position and equity gauges, and
// reconciliation discrepancies.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the trading daemon.
type Metrics struct {
	OrdersTotal            prometheus.Counter   // orders accepted by the exchange
	OrderRetries           prometheus.Counter   // order submission retries
	OrderFailures          prometheus.Counter   // submissions failed after retries
	OrderExecutionDuration prometheus.Histogram // submission latency in seconds

	ActivePositions   prometheus.Gauge       // open positions tracked locally
	PositionsClosed   *prometheus.CounterVec // closed positions by exit reason
	EquityBalance     prometheus.Gauge       // latest reconciled account balance
	DrawdownFraction  prometheus.Gauge       // current drawdown from peak equity
	ReconcileMismatch prometheus.Counter     // local/exchange discrepancies observed
	CycleFailures     prometheus.Counter     // trading cycles abandoned on error

	TicksReceived prometheus.Counter // price stream messages consumed
	WSReconnects  prometheus.Counter // price stream reconnections
	ErrorsTotal   prometheus.Counter // recovered errors of any kind
}

// New creates and registers all metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry, keeping tests
// isolated from the global Prometheus state.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		OrdersTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "orders_total",
			Help: "Total number of orders accepted by the exchange",
		}),
		OrderRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "order_retries_total",
			Help: "Total number of order submission retries",
		}),
		OrderFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "order_failures_total",
			Help: "Total number of order submissions that failed after retries",
		}),
		OrderExecutionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "order_execution_duration_seconds",
			Help:    "Duration of order submission attempts in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		ActivePositions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "active_positions",
			Help: "Number of open positions tracked locally",
		}),
		PositionsClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "positions_closed_total",
			Help: "Total number of positions closed, by exit reason",
		}, []string{"reason"}),
		EquityBalance: factory.NewGauge(prometheus.GaugeOpts{
			Name: "equity_balance",
			Help: "Latest reconciled account balance",
		}),
		DrawdownFraction: factory.NewGauge(prometheus.GaugeOpts{
			Name: "drawdown_fraction",
			Help: "Current drawdown from peak equity as a fraction",
		}),
		ReconcileMismatch: factory.NewCounter(prometheus.CounterOpts{
			Name: "reconcile_mismatches_total",
			Help: "Total number of local/exchange position discrepancies",
		}),
		CycleFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "cycle_failures_total",
			Help: "Total number of trading cycles abandoned on error",
		}),
		TicksReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "ticks_received_total",
			Help: "Total number of price stream messages consumed",
		}),
		WSReconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "ws_reconnects_total",
			Help: "Total number of price stream reconnections",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of recovered errors",
		}),
	}
}
