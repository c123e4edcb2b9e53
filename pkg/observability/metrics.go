package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the index engine and
// the HTTP facade.
type Metrics struct {
	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Vector operation metrics
	VectorsInserted prometheus.Counter
	VectorsDeleted  prometheus.Counter
	SearchesTotal   prometheus.Counter

	// Per-collection index metrics
	IndexSize     *prometheus.GaugeVec
	IndexLive     *prometheus.GaugeVec
	IndexMaxLayer *prometheus.GaugeVec

	// Search metrics
	SearchLatency    prometheus.Histogram
	SearchResultSize prometheus.Histogram

	// Maintenance metrics
	CompactionsTotal   prometheus.Counter
	CompactionDuration prometheus.Histogram
	SnapshotsWritten   prometheus.Counter
	SnapshotsRestored  prometheus.Counter
}

// NewMetrics registers the instruments on the default registry. Call
// it once per process; use NewMetricsWith for an isolated registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers the instruments on reg.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vexdb_requests_total",
				Help: "Total number of HTTP requests by route and status",
			},
			[]string{"route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vexdb_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"route"},
		),

		VectorsInserted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "vexdb_vectors_inserted_total",
				Help: "Total number of vectors inserted",
			},
		),
		VectorsDeleted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "vexdb_vectors_deleted_total",
				Help: "Total number of vectors tombstoned",
			},
		),
		SearchesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "vexdb_searches_total",
				Help: "Total number of search operations",
			},
		),

		IndexSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vexdb_index_size",
				Help: "Number of assigned ids in the index by collection",
			},
			[]string{"collection"},
		),
		IndexLive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vexdb_index_live",
				Help: "Number of live (not tombstoned) vectors by collection",
			},
			[]string{"collection"},
		),
		IndexMaxLayer: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vexdb_index_max_layer",
				Help: "Top layer of the HNSW graph by collection",
			},
			[]string{"collection"},
		),

		SearchLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vexdb_search_latency_seconds",
				Help:    "Search latency in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
		),
		SearchResultSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vexdb_search_result_size",
				Help:    "Number of results returned by search",
				Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500},
			},
		),

		CompactionsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "vexdb_compactions_total",
				Help: "Total number of compaction runs",
			},
		),
		CompactionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vexdb_compaction_duration_seconds",
				Help:    "Compaction duration in seconds",
				Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60},
			},
		),
		SnapshotsWritten: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "vexdb_snapshots_written_total",
				Help: "Total number of snapshots written",
			},
		),
		SnapshotsRestored: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "vexdb_snapshots_restored_total",
				Help: "Total number of snapshots restored",
			},
		),
	}
}

// RecordRequest records one HTTP request.
func (m *Metrics) RecordRequest(route, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(route, status).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordInsert records vector insertions.
func (m *Metrics) RecordInsert(count int) {
	m.VectorsInserted.Add(float64(count))
}

// RecordDelete records vector deletions.
func (m *Metrics) RecordDelete(count int) {
	m.VectorsDeleted.Add(float64(count))
}

// RecordSearch records one search with its latency and result size.
func (m *Metrics) RecordSearch(duration time.Duration, resultSize int) {
	m.SearchesTotal.Inc()
	m.SearchLatency.Observe(duration.Seconds())
	m.SearchResultSize.Observe(float64(resultSize))
}

// RecordCompaction records one compaction run.
func (m *Metrics) RecordCompaction(duration time.Duration) {
	m.CompactionsTotal.Inc()
	m.CompactionDuration.Observe(duration.Seconds())
}

// UpdateIndex refreshes the per-collection gauges.
func (m *Metrics) UpdateIndex(collection string, size, live, maxLayer int) {
	m.IndexSize.WithLabelValues(collection).Set(float64(size))
	m.IndexLive.WithLabelValues(collection).Set(float64(live))
	m.IndexMaxLayer.WithLabelValues(collection).Set(float64(maxLayer))
}

// DropIndex removes a deleted collection's gauges.
func (m *Metrics) DropIndex(collection string) {
	m.IndexSize.DeleteLabelValues(collection)
	m.IndexLive.DeleteLabelValues(collection)
	m.IndexMaxLayer.DeleteLabelValues(collection)
}
