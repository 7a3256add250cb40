package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arloliu/livequery/types"
)

// PrometheusCollector implements types.MetricsCollector backed by Prometheus.
//
// Collectors are created and registered lazily on first use, so constructing a
// PrometheusCollector that is never exercised leaves the registry untouched.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	// Query metrics
	subscribes          *prometheus.CounterVec
	unsubscribes        *prometheus.CounterVec
	activeSubscriptions *prometheus.GaugeVec
	snapshots           *prometheus.CounterVec
	staleCallbacks      prometheus.Counter
	resubscribeSkipped  prometheus.Counter

	// Lifecycle metrics
	transitions    *prometheus.CounterVec
	droppedChanges prometheus.Counter

	// Write metrics
	writes         *prometheus.CounterVec
	writeLatency   prometheus.Histogram
	writeConflicts prometheus.Counter

	// Backup metrics
	backupOps *prometheus.CounterVec
}

// Compile-time assertion that PrometheusCollector implements MetricsCollector.
var _ types.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheus creates a new Prometheus-backed metrics collector.
//
// Parameters:
//   - reg: Prometheus registerer interface (uses prometheus.DefaultRegisterer if nil)
//   - namespace: Prometheus metrics namespace (defaults to "livequery" if empty)
//
// Returns:
//   - *PrometheusCollector: A MetricsCollector implementation using Prometheus
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "livequery"
	}

	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.subscribes = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "query",
			Name:      "subscribes_total",
			Help:      "Total subscription attempts by descriptor kind and result.",
		}, []string{"kind", "result"})

		p.unsubscribes = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "query",
			Name:      "unsubscribes_total",
			Help:      "Total subscription teardowns by descriptor kind.",
		}, []string{"kind"})

		p.activeSubscriptions = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "query",
			Name:      "active_subscriptions",
			Help:      "Current number of live subscriptions by descriptor kind.",
		}, []string{"kind"})

		p.snapshots = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "query",
			Name:      "snapshots_total",
			Help:      "Total snapshots applied to queries by descriptor kind.",
		}, []string{"kind"})

		p.staleCallbacks = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "query",
			Name:      "stale_callbacks_total",
			Help:      "Callbacks discarded because their subscription was superseded.",
		})

		p.resubscribeSkipped = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "query",
			Name:      "resubscribe_skipped_total",
			Help:      "Updates whose descriptor was equal to the previous one.",
		})

		p.transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Total lifecycle status transitions.",
		}, []string{"from", "to"})

		p.droppedChanges = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "lifecycle",
			Name:      "dropped_notifications_total",
			Help:      "State notifications dropped for slow subscribers.",
		})

		p.writes = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "write",
			Name:      "results_total",
			Help:      "Total remote write outcomes (success,failure).",
		}, []string{"result"})

		p.writeLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "write",
			Name:      "latency_seconds",
			Help:      "Latency of remote writes in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms .. ~2s
		})

		p.writeConflicts = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "write",
			Name:      "conflicts_total",
			Help:      "Optimistic-concurrency conflicts retried by the store.",
		})

		p.backupOps = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "backup",
			Name:      "operations_total",
			Help:      "Backup store operations by kind (load,save) and result.",
		}, []string{"operation", "result"})

		p.reg.MustRegister(p.subscribes)
		p.reg.MustRegister(p.unsubscribes)
		p.reg.MustRegister(p.activeSubscriptions)
		p.reg.MustRegister(p.snapshots)
		p.reg.MustRegister(p.staleCallbacks)
		p.reg.MustRegister(p.resubscribeSkipped)
		p.reg.MustRegister(p.transitions)
		p.reg.MustRegister(p.droppedChanges)
		p.reg.MustRegister(p.writes)
		p.reg.MustRegister(p.writeLatency)
		p.reg.MustRegister(p.writeConflicts)
		p.reg.MustRegister(p.backupOps)
	})
}

func result(success bool) string {
	if success {
		return "success"
	}

	return "failure"
}

// QueryMetrics implementation

// RecordSubscribe counts a subscription attempt and tracks it as active on success.
func (p *PrometheusCollector) RecordSubscribe(kind string, success bool) {
	p.ensureRegistered()
	p.subscribes.WithLabelValues(kind, result(success)).Inc()
	if success {
		p.activeSubscriptions.WithLabelValues(kind).Inc()
	}
}

// RecordUnsubscribe counts a teardown and decrements the active gauge.
func (p *PrometheusCollector) RecordUnsubscribe(kind string) {
	p.ensureRegistered()
	p.unsubscribes.WithLabelValues(kind).Inc()
	p.activeSubscriptions.WithLabelValues(kind).Dec()
}

// RecordSnapshot counts an applied snapshot.
func (p *PrometheusCollector) RecordSnapshot(kind string) {
	p.ensureRegistered()
	p.snapshots.WithLabelValues(kind).Inc()
}

// RecordStaleCallback counts a discarded callback.
func (p *PrometheusCollector) RecordStaleCallback() {
	p.ensureRegistered()
	p.staleCallbacks.Inc()
}

// RecordResubscribeSkipped counts an update absorbed by descriptor equality.
func (p *PrometheusCollector) RecordResubscribeSkipped() {
	p.ensureRegistered()
	p.resubscribeSkipped.Inc()
}

// LifecycleMetrics implementation

// RecordStateTransition counts a status transition.
func (p *PrometheusCollector) RecordStateTransition(from, to types.Status) {
	p.ensureRegistered()
	p.transitions.WithLabelValues(from.String(), to.String()).Inc()
}

// RecordStateChangeDropped counts a dropped notification.
func (p *PrometheusCollector) RecordStateChangeDropped() {
	p.ensureRegistered()
	p.droppedChanges.Inc()
}

// WriteMetrics implementation

// RecordWrite counts a write outcome and observes its latency.
func (p *PrometheusCollector) RecordWrite(success bool, duration float64) {
	p.ensureRegistered()
	p.writes.WithLabelValues(result(success)).Inc()
	p.writeLatency.Observe(duration)
}

// RecordWriteConflict counts a retried write conflict.
func (p *PrometheusCollector) RecordWriteConflict() {
	p.ensureRegistered()
	p.writeConflicts.Inc()
}

// BackupMetrics implementation

// RecordBackupOperation counts a backup load or save.
func (p *PrometheusCollector) RecordBackupOperation(operation string, success bool) {
	p.ensureRegistered()
	p.backupOps.WithLabelValues(operation, result(success)).Inc()
}
