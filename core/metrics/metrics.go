// Package metrics exposes Prometheus metrics for migration runs.
//
// Every method is safe on a nil *Metrics, so components take metrics as an
// optional dependency.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "migrator"

// Metrics holds the collectors of one process.
type Metrics struct {
	registry *prometheus.Registry

	operationsTotal  *prometheus.CounterVec
	batchesTotal     prometheus.Counter
	retriesTotal     *prometheus.CounterVec
	commitDuration   prometheus.Histogram
	assetsTotal      *prometheus.CounterVec
	assetBytesTotal  prometheus.Counter
	dedupGroupsTotal *prometheus.CounterVec
	findings         *prometheus.GaugeVec
}

// New creates and registers the collectors on registry.
func New(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{
		registry: registry,
		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Document operations committed, by kind",
			},
			[]string{"kind"}, // upsert, delete, field_delete
		),
		batchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_committed_total",
			Help:      "Batches committed to the target store",
		}),
		retriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retries_total",
				Help:      "Retried calls after transient failures",
			},
			[]string{"component"},
		),
		commitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "commit_duration_seconds",
			Help:      "Time taken to commit one batch, retries included",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		assetsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "assets_total",
				Help:      "Objects processed by the asset copier, by result",
			},
			[]string{"result"}, // copied, skipped, failed
		),
		assetBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "asset_bytes_copied_total",
			Help:      "Bytes uploaded by the asset copier",
		}),
		dedupGroupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dedup_groups_total",
				Help:      "Duplicate groups handled, by result",
			},
			[]string{"result"}, // merged, skipped
		),
		findings: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "reconcile_findings",
				Help:      "Findings of the last reconciliation, by kind and category",
			},
			[]string{"kind", "category"}, // kind: unused, dangling, unrecognized
		),
	}

	collectors := []prometheus.Collector{
		m.operationsTotal, m.batchesTotal, m.retriesTotal, m.commitDuration,
		m.assetsTotal, m.assetBytesTotal, m.dedupGroupsTotal, m.findings,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// BatchCommitted records one committed batch.
func (m *Metrics) BatchCommitted(upserts, deletes, fieldDeletes int, took time.Duration) {
	if m == nil {
		return
	}
	m.batchesTotal.Inc()
	m.operationsTotal.WithLabelValues("upsert").Add(float64(upserts))
	m.operationsTotal.WithLabelValues("delete").Add(float64(deletes))
	m.operationsTotal.WithLabelValues("field_delete").Add(float64(fieldDeletes))
	m.commitDuration.Observe(took.Seconds())
}

// Retry records a retried call.
func (m *Metrics) Retry(component string) {
	if m == nil {
		return
	}
	m.retriesTotal.WithLabelValues(component).Inc()
}

// Asset records one processed object.
func (m *Metrics) Asset(result string, bytes int64) {
	if m == nil {
		return
	}
	m.assetsTotal.WithLabelValues(result).Inc()
	if bytes > 0 {
		m.assetBytesTotal.Add(float64(bytes))
	}
}

// DedupGroup records one handled duplicate group.
func (m *Metrics) DedupGroup(result string) {
	if m == nil {
		return
	}
	m.dedupGroupsTotal.WithLabelValues(result).Inc()
}

// Finding sets the count of one reconciliation finding.
func (m *Metrics) Finding(kind, category string, count int) {
	if m == nil {
		return
	}
	m.findings.WithLabelValues(kind, category).Set(float64(count))
}
