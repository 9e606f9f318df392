// Package metrics holds the Prometheus collectors of the engine. All methods
// are safe on a nil *Metrics so components can run without instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "parityarb"

// Metrics bundles every collector the engine exports.
type Metrics struct {
	QueueDepth    *prometheus.GaugeVec
	QueueEnqueued *prometheus.CounterVec
	QueueDropped  *prometheus.CounterVec
	BookApplied   *prometheus.CounterVec
	BookGaps      *prometheus.CounterVec
	BookDiscarded *prometheus.CounterVec
	Reconciles    *prometheus.CounterVec
	Opportunities *prometheus.CounterVec
	Executions    *prometheus.CounterVec
	Rejections    *prometheus.CounterVec
	LegLatency    *prometheus.HistogramVec
	HaltedSymbols prometheus.Gauge
	SinkFailures  *prometheus.CounterVec
	Unparsed      *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "queue_depth",
			Help: "Items currently buffered per queue.",
		}, []string{"queue"}),
		QueueEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "queue_enqueued_total",
			Help: "Items admitted per queue.",
		}, []string{"queue"}),
		QueueDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "queue_dropped_total",
			Help: "Items evicted or rejected per queue and policy.",
		}, []string{"queue", "policy"}),
		BookApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "book_applied_total",
			Help: "Ticks applied to the order book.",
		}, []string{"venue"}),
		BookGaps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "book_sequence_gaps_total",
			Help: "Sequence gaps that drifted a symbol book.",
		}, []string{"venue"}),
		BookDiscarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "book_discarded_total",
			Help: "Stale or duplicate ticks discarded.",
		}, []string{"venue"}),
		Reconciles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "book_reconciles_total",
			Help: "Snapshot reconciliations by result.",
		}, []string{"venue", "result"}),
		Opportunities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "opportunities_total",
			Help: "Opportunities emitted by the detector.",
		}, []string{"symbol"}),
		Executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "executions_total",
			Help: "Executions by terminal status.",
		}, []string{"status"}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "admission_rejections_total",
			Help: "Opportunities rejected or dropped before execution.",
		}, []string{"reason"}),
		LegLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "leg_latency_seconds",
			Help:    "Order round-trip latency per venue and purpose.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"venue", "purpose"}),
		HaltedSymbols: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "halted_symbols",
			Help: "Symbols halted after a hedge failure.",
		}),
		SinkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sink_failures_total",
			Help: "Persistence writes that failed or were shed.",
		}, []string{"kind"}),
		Unparsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "feed_unparsed_total",
			Help: "Venue messages the normalizer could not turn into a tick.",
		}, []string{"venue"}),
	}
	reg.MustRegister(
		m.QueueDepth, m.QueueEnqueued, m.QueueDropped,
		m.BookApplied, m.BookGaps, m.BookDiscarded, m.Reconciles,
		m.Opportunities, m.Executions, m.Rejections, m.LegLatency,
		m.HaltedSymbols, m.SinkFailures, m.Unparsed,
	)
	return m
}

func (m *Metrics) SetQueueDepth(queue string, depth int) {
	if m == nil {
		return
	}
	m.QueueDepth.WithLabelValues(queue).Set(float64(depth))
}

func (m *Metrics) QueueAdmitted(queue string) {
	if m == nil {
		return
	}
	m.QueueEnqueued.WithLabelValues(queue).Inc()
}

func (m *Metrics) QueueDrop(queue, policy string) {
	if m == nil {
		return
	}
	m.QueueDropped.WithLabelValues(queue, policy).Inc()
}

func (m *Metrics) TickApplied(venue string, gap bool) {
	if m == nil {
		return
	}
	m.BookApplied.WithLabelValues(venue).Inc()
	if gap {
		m.BookGaps.WithLabelValues(venue).Inc()
	}
}

func (m *Metrics) TickDiscarded(venue string) {
	if m == nil {
		return
	}
	m.BookDiscarded.WithLabelValues(venue).Inc()
}

func (m *Metrics) Reconciled(venue, result string) {
	if m == nil {
		return
	}
	m.Reconciles.WithLabelValues(venue, result).Inc()
}

func (m *Metrics) OpportunityDetected(symbol string) {
	if m == nil {
		return
	}
	m.Opportunities.WithLabelValues(symbol).Inc()
}

func (m *Metrics) ExecutionFinished(status string) {
	if m == nil {
		return
	}
	m.Executions.WithLabelValues(status).Inc()
}

func (m *Metrics) Rejected(reason string) {
	if m == nil {
		return
	}
	m.Rejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveLeg(venue, purpose string, seconds float64) {
	if m == nil {
		return
	}
	m.LegLatency.WithLabelValues(venue, purpose).Observe(seconds)
}

func (m *Metrics) SetHalted(n int) {
	if m == nil {
		return
	}
	m.HaltedSymbols.Set(float64(n))
}

func (m *Metrics) SinkFailed(kind string) {
	if m == nil {
		return
	}
	m.SinkFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) Unparsable(venue string) {
	if m == nil {
		return
	}
	m.Unparsed.WithLabelValues(venue).Inc()
}
