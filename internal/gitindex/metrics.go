package gitindex

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Skip reasons recorded by the sync engine.
const (
	SkipExcluded  = "excluded"
	SkipBinary    = "binary"
	SkipSubmodule = "submodule"
)

// Metrics holds the sync engine's Prometheus metrics. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	DocumentsUpserted *prometheus.CounterVec
	DocumentsDeleted  prometheus.Counter
	BlobsSkipped      *prometheus.CounterVec
	SyncDuration      *prometheus.HistogramVec
}

// NewMetrics creates the metrics and registers them with registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		DocumentsUpserted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relic_gitindex_documents_upserted_total",
				Help: "Total number of documents upserted",
			},
			[]string{"kind"},
		),
		DocumentsDeleted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "relic_gitindex_documents_deleted_total",
				Help: "Total number of blob documents deleted",
			},
		),
		BlobsSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relic_gitindex_blobs_skipped_total",
				Help: "Total number of blobs not indexed",
			},
			[]string{"reason"},
		),
		SyncDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relic_gitindex_sync_duration_seconds",
				Help:    "Synchronization pass duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
			},
			[]string{"kind"},
		),
	}

	registry.MustRegister(
		m.DocumentsUpserted,
		m.DocumentsDeleted,
		m.BlobsSkipped,
		m.SyncDuration,
	)
	return m
}

func (m *Metrics) recordUpsert(kind string) {
	if m == nil {
		return
	}
	m.DocumentsUpserted.WithLabelValues(kind).Inc()
}

func (m *Metrics) recordDelete() {
	if m == nil {
		return
	}
	m.DocumentsDeleted.Inc()
}

func (m *Metrics) recordSkip(reason string) {
	if m == nil {
		return
	}
	m.BlobsSkipped.WithLabelValues(reason).Inc()
}

func (m *Metrics) observeSync(kind string, start time.Time) {
	if m == nil {
		return
	}
	m.SyncDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}
