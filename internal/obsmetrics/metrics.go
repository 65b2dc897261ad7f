// Package obsmetrics provides Prometheus operational metrics for the control
// plane, generalized from bitunixbot's internal/metrics package (trading/ML
// counters, gauges, histograms registered via promauto) into the scalping
// control plane's own set of counters and gauges, exposed on the admin API's
// /metrics endpoint.
package obsmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus series the control plane publishes.
type Metrics struct {
	PositionsOpenedTotal   prometheus.Counter
	PositionsClosedTotal   *prometheus.CounterVec // labeled by close reason
	ActivePositions        prometheus.Gauge
	RealizedPnlTotal       prometheus.Gauge
	CircuitBreakerTripped  prometheus.Counter
	RiskEventsTotal        *prometheus.CounterVec // labeled by event type
	ExchangeErrorsTotal    prometheus.Counter
	ReconciliationRunsTotal prometheus.Counter
	ReconciliationFixesTotal prometheus.Counter
	SchedulerCycleDuration prometheus.Histogram
	RiskCheckDuration      prometheus.Histogram
}

// New creates and registers all metrics against the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics against a custom registry, for test
// isolation.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		PositionsOpenedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "scalpbot_positions_opened_total",
			Help: "Total number of positions opened.",
		}),
		PositionsClosedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scalpbot_positions_closed_total",
			Help: "Total number of positions closed, by close reason.",
		}, []string{"reason"}),
		ActivePositions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "scalpbot_active_positions",
			Help: "Current number of active positions across all symbols.",
		}),
		RealizedPnlTotal: factory.NewGauge(prometheus.GaugeOpts{
			Name: "scalpbot_realized_pnl_total",
			Help: "Cumulative realized PnL across all closed positions.",
		}),
		CircuitBreakerTripped: factory.NewCounter(prometheus.CounterOpts{
			Name: "scalpbot_circuit_breaker_tripped_total",
			Help: "Total number of times the daily-loss circuit breaker has tripped.",
		}),
		RiskEventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scalpbot_risk_events_total",
			Help: "Total number of risk events emitted, by event type.",
		}, []string{"type"}),
		ExchangeErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "scalpbot_exchange_errors_total",
			Help: "Total number of exchange gateway call failures.",
		}),
		ReconciliationRunsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "scalpbot_reconciliation_runs_total",
			Help: "Total number of state reconciliation passes run.",
		}),
		ReconciliationFixesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "scalpbot_reconciliation_fixes_total",
			Help: "Total number of corrective actions taken during reconciliation.",
		}),
		SchedulerCycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "scalpbot_scheduler_cycle_duration_seconds",
			Help:    "Duration of one StrategyScheduler decision cycle across all symbols.",
			Buckets: prometheus.DefBuckets,
		}),
		RiskCheckDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "scalpbot_risk_check_duration_seconds",
			Help:    "Duration of one RiskMonitor symbol check.",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
	}
}

// ObserveSchedulerCycle is a small timing helper mirroring the style used by
// the cycle/sweep loops that call it.
func (m *Metrics) ObserveSchedulerCycle(start time.Time) {
	m.SchedulerCycleDuration.Observe(time.Since(start).Seconds())
}

// ObserveRiskCheck times a single RiskMonitor.checkSymbol call.
func (m *Metrics) ObserveRiskCheck(start time.Time) {
	m.RiskCheckDuration.Observe(time.Since(start).Seconds())
}
