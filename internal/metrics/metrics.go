// Package metrics exposes CRIT's Prometheus instrumentation. A single
// Metrics instance is shared by every table server in a process; each
// counter/gauge is labeled by table name rather than minted per-table, so
// opening a new table never risks a duplicate-registration panic.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector CRIT reports.
type Metrics struct {
	registry *prometheus.Registry

	WritesTotal           *prometheus.CounterVec
	ReplicatedWritesTotal *prometheus.CounterVec
	WriteLatency          *prometheus.HistogramVec
	ReadsTotal            *prometheus.CounterVec
	PendingAcksGauge      *prometheus.GaugeVec
	PeerCountGauge        *prometheus.GaugeVec
	PausedGauge           *prometheus.GaugeVec
	TableSizeGauge        *prometheus.GaugeVec

	JoinAttemptsTotal *prometheus.CounterVec
	JoinSuccessTotal  *prometheus.CounterVec
	JoinFailureTotal  *prometheus.CounterVec
	JoinDuration      prometheus.Histogram

	DownEventsTotal *prometheus.CounterVec
	LockWaitSeconds prometheus.Histogram
}

// New creates a Metrics instance registered against a fresh registry, which
// the caller can expose via promhttp.HandlerFor (see cmd/critnode).
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{registry: reg}

	factory := promauto.With(reg)

	m.WritesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crit",
		Name:      "writes_total",
		Help:      "Total number of local write operations accepted by a table server.",
	}, []string{"table"})
	m.ReplicatedWritesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crit",
		Name:      "replicated_writes_total",
		Help:      "Total number of remote_op writes applied from peers.",
	}, []string{"table"})
	m.WriteLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "crit",
		Name:      "write_latency_seconds",
		Help:      "Latency from write submission to every peer ack (or local completion with no peers).",
		Buckets:   prometheus.DefBuckets,
	}, []string{"table"})
	m.ReadsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crit",
		Name:      "reads_total",
		Help:      "Total number of lookup/dump operations served.",
	}, []string{"table"})
	m.PendingAcksGauge = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "crit",
		Name:      "pending_acks",
		Help:      "Writes currently waiting on one or more peer acks.",
	}, []string{"table"})
	m.PeerCountGauge = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "crit",
		Name:      "peer_count",
		Help:      "Current size of a table's segment peer set.",
	}, []string{"table"})
	m.PausedGauge = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "crit",
		Name:      "paused",
		Help:      "1 if a table server currently has at least one outstanding pause token, 0 otherwise.",
	}, []string{"table"})
	m.TableSizeGauge = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "crit",
		Name:      "table_size",
		Help:      "Current number of records held locally.",
	}, []string{"table"})

	m.JoinAttemptsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crit",
		Subsystem: "join",
		Name:      "attempts_total",
		Help:      "Total number of join coordination attempts started.",
	}, []string{"table"})
	m.JoinSuccessTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crit",
		Subsystem: "join",
		Name:      "success_total",
		Help:      "Total number of join coordination attempts that completed successfully.",
	}, []string{"table"})
	m.JoinFailureTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crit",
		Subsystem: "join",
		Name:      "failure_total",
		Help:      "Total number of join coordination attempts that aborted.",
	}, []string{"table", "reason"})
	m.JoinDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: "crit",
		Subsystem: "join",
		Name:      "duration_seconds",
		Help:      "Wall time spent in the twelve-step join protocol, successful or not.",
		Buckets:   prometheus.DefBuckets,
	})

	m.DownEventsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crit",
		Name:      "down_events_total",
		Help:      "Total number of peer DOWN events handled.",
	}, []string{"table"})
	m.LockWaitSeconds = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: "crit",
		Subsystem: "lock",
		Name:      "wait_seconds",
		Help:      "Time spent waiting to acquire the cluster-wide join lock.",
		Buckets:   prometheus.DefBuckets,
	})

	return m
}

// NewNop returns a Metrics backed by its own private registry, suitable for
// tests and for any Server constructed without an explicit Metrics.
func NewNop() *Metrics { return New() }

// Registry exposes the underlying registry so a process can mount
// promhttp.HandlerFor(m.Registry(), ...) on its admin endpoint.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) RecordWrite(table string) { m.WritesTotal.WithLabelValues(table).Inc() }

func (m *Metrics) RecordReplicatedWrite(table string) {
	m.ReplicatedWritesTotal.WithLabelValues(table).Inc()
}

func (m *Metrics) RecordRead(table string) { m.ReadsTotal.WithLabelValues(table).Inc() }

func (m *Metrics) ObserveWriteLatency(table string, seconds float64) {
	m.WriteLatency.WithLabelValues(table).Observe(seconds)
}

func (m *Metrics) SetPendingAcks(table string, n int) {
	m.PendingAcksGauge.WithLabelValues(table).Set(float64(n))
}

func (m *Metrics) SetPeerCount(table string, n int) {
	m.PeerCountGauge.WithLabelValues(table).Set(float64(n))
}

func (m *Metrics) SetPaused(table string, paused bool) {
	v := 0.0
	if paused {
		v = 1.0
	}
	m.PausedGauge.WithLabelValues(table).Set(v)
}

func (m *Metrics) SetTableSize(table string, n int) {
	m.TableSizeGauge.WithLabelValues(table).Set(float64(n))
}

func (m *Metrics) RecordJoinAttempt(table string) { m.JoinAttemptsTotal.WithLabelValues(table).Inc() }

func (m *Metrics) RecordJoinSuccess(table string, seconds float64) {
	m.JoinSuccessTotal.WithLabelValues(table).Inc()
	m.JoinDuration.Observe(seconds)
}

func (m *Metrics) RecordJoinFailure(table, reason string, seconds float64) {
	m.JoinFailureTotal.WithLabelValues(table, reason).Inc()
	m.JoinDuration.Observe(seconds)
}

func (m *Metrics) RecordDownEvent(table string) { m.DownEventsTotal.WithLabelValues(table).Inc() }

func (m *Metrics) ObserveLockWait(seconds float64) { m.LockWaitSeconds.Observe(seconds) }
