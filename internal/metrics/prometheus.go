package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements Collector with client_golang vectors.
type PrometheusCollector struct {
	ledgerComputed  prometheus.Counter
	ledgerLines     prometheus.Histogram
	ledgerLatency   prometheus.Histogram
	integrityErrors *prometheus.CounterVec

	transactions     *prometheus.CounterVec
	recomputes       *prometheus.CounterVec
	recomputeLatency prometheus.Histogram
	cacheDrift       prometheus.Gauge

	storeOps     *prometheus.CounterVec
	storeLatency *prometheus.HistogramVec
	circuitState *prometheus.GaugeVec
	circuitOpens *prometheus.CounterVec
}

// NewPrometheusCollector creates a collector whose metrics live under namespace.
func NewPrometheusCollector(namespace string) *PrometheusCollector {
	return &PrometheusCollector{
		ledgerComputed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_computations_total",
			Help:      "Total number of successful ledger folds",
		}),
		ledgerLines: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ledger_lines",
			Help:      "Number of transactions per computed ledger",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		ledgerLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ledger_compute_duration_seconds",
			Help:      "Time spent folding a ledger",
			Buckets:   prometheus.DefBuckets,
		}),
		integrityErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_integrity_errors_total",
			Help:      "Malformed transactions rejected, by reason",
		}, []string{"reason"}),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_recorded_total",
			Help:      "Transactions appended, by kind",
		}, []string{"kind"}),
		recomputes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "balance_recomputes_total",
			Help:      "Cached balance recomputations, by status",
		}, []string{"status"}),
		recomputeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "balance_recompute_duration_seconds",
			Help:      "Time spent recomputing a cached balance under the partner lock",
			Buckets:   prometheus.DefBuckets,
		}),
		cacheDrift: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "balance_cache_drift_partners",
			Help:      "Partners whose cached balance differed from the fold at the last reconcile",
		}),
		storeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Store calls, by operation and status",
		}, []string{"operation", "status"}),
		storeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Store call latency, by operation",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		circuitState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_state",
			Help:      "Current circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
		circuitOpens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_opens_total",
			Help:      "Total number of circuit breaker opens",
		}, []string{"name"}),
	}
}

// Register registers every metric with registry.
func (pc *PrometheusCollector) Register(registry prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		pc.ledgerComputed,
		pc.ledgerLines,
		pc.ledgerLatency,
		pc.integrityErrors,
		pc.transactions,
		pc.recomputes,
		pc.recomputeLatency,
		pc.cacheDrift,
		pc.storeOps,
		pc.storeLatency,
		pc.circuitState,
		pc.circuitOpens,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (pc *PrometheusCollector) RecordLedgerComputed(lines int, duration time.Duration) {
	pc.ledgerComputed.Inc()
	pc.ledgerLines.Observe(float64(lines))
	pc.ledgerLatency.Observe(duration.Seconds())
}

func (pc *PrometheusCollector) RecordIntegrityError(reason string) {
	pc.integrityErrors.WithLabelValues(reason).Inc()
}

func (pc *PrometheusCollector) RecordTransaction(kind string) {
	pc.transactions.WithLabelValues(kind).Inc()
}

func (pc *PrometheusCollector) RecordRecompute(success bool, duration time.Duration) {
	pc.recomputes.WithLabelValues(status(success)).Inc()
	pc.recomputeLatency.Observe(duration.Seconds())
}

func (pc *PrometheusCollector) RecordCacheDrift(partners int) {
	pc.cacheDrift.Set(float64(partners))
}

func (pc *PrometheusCollector) RecordStoreOp(op string, success bool, duration time.Duration) {
	pc.storeOps.WithLabelValues(op, status(success)).Inc()
	pc.storeLatency.WithLabelValues(op).Observe(duration.Seconds())
}

func (pc *PrometheusCollector) RecordCircuitState(name string, state CircuitState) {
	pc.circuitState.WithLabelValues(name).Set(float64(state))
	if state == CircuitOpen {
		pc.circuitOpens.WithLabelValues(name).Inc()
	}
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

var _ Collector = (*PrometheusCollector)(nil)
