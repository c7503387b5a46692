// Package stats exposes Prometheus counters and histograms for the
// ingest/build/query pipeline, grounded on the metrics-vector pattern
// in pkg/metrics of the reference orchestrator example: package-level
// vars registered once in init(), plus a Timer helper for durations.
package stats

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	IngestRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vecstore_ingest_rows_total",
			Help: "Total number of vector records appended to the ingest buffer",
		},
		[]string{"index"},
	)

	IngestRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vecstore_ingest_rejected_total",
			Help: "Total number of batches rejected by validation before WAL append",
		},
		[]string{"index"},
	)

	FlushesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vecstore_flushes_total",
			Help: "Total number of ingest buffer flushes to a staged slice",
		},
		[]string{"index", "reason"},
	)

	SliceWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vecstore_slice_write_duration_seconds",
			Help:    "Time taken to write a staged slice to the object store",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"index", "format"},
	)

	ShardBuildDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vecstore_shard_build_duration_seconds",
			Help:    "Time taken to build and publish one shard",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"index", "algorithm"},
	)

	ShardsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vecstore_shards_total",
			Help: "Current number of published shards per index",
		},
		[]string{"index"},
	)

	VectorsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vecstore_vectors_total",
			Help: "Current number of vectors recorded in the manifest per index",
		},
		[]string{"index"},
	)

	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vecstore_query_duration_seconds",
			Help:    "End-to-end search latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"index"},
	)

	QueryShardsScanned = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vecstore_query_shards_scanned",
			Help:    "Number of shards fanned out to per query",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128},
		},
		[]string{"index"},
	)

	NProbeIgnoredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vecstore_nprobe_ignored_total",
			Help: "Total number of queries where an explicit nprobe was advisory-only and not honored by the shard's ANN backend",
		},
		[]string{"index"},
	)

	SweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vecstore_sweep_duration_seconds",
			Help:    "Time taken for one housekeeping sweep across all indexes",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		IngestRowsTotal,
		IngestRejectedTotal,
		FlushesTotal,
		SliceWriteDuration,
		ShardBuildDuration,
		ShardsTotal,
		VectorsTotal,
		QueryDuration,
		QueryShardsScanned,
		NProbeIgnoredTotal,
		SweepDuration,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer times one operation for later histogram observation.
type Timer struct {
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) ObserveSeconds(h prometheus.Observer) {
	h.Observe(time.Since(t.start).Seconds())
}
