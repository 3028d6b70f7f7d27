// Package metrics holds the prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsIngestedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hivewatch_events_ingested_total",
		Help: "Events accepted into the store",
	}, []string{"source"})

	EventsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hivewatch_events_rejected_total",
		Help: "Events dropped before reaching the store",
	}, []string{"source", "reason"}) // reason: decode, invalid

	QueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hivewatch_queries_total",
		Help: "Queries answered by the query boundary",
	}, []string{"type", "status"}) // status: ok, error

	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hivewatch_query_duration_seconds",
		Help:    "Time spent answering a query, including the synopsis rebuild",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
	}, []string{"type"})

	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hivewatch_query_connections_active",
		Help: "Open query connections",
	})

	WindowEvictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hivewatch_window_evictions_total",
		Help: "Periodic window resets",
	}, []string{"window"})

	StaleEvictedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hivewatch_stale_events_evicted_total",
		Help: "Events removed from the primary store for exceeding the maximum age",
	})

	ArchivedRowsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hivewatch_archived_rows_total",
		Help: "Evicted events written to parquet archive files",
	})
)

// ObserveQuery records one answered query.
func ObserveQuery(queryType, status string, elapsed time.Duration) {
	QueriesTotal.WithLabelValues(queryType, status).Inc()
	QueryDuration.WithLabelValues(queryType).Observe(elapsed.Seconds())
}

// =============================================================================
// Store Collector
// =============================================================================

// StoreSource is what the collector reads from the store on every scrape.
type StoreSource interface {
	Len() int
	WindowSizes() map[string]int
}

// StoreCollector exports live store sizes.
type StoreCollector struct {
	src StoreSource

	events *prometheus.Desc
	window *prometheus.Desc
}

// NewStoreCollector creates a collector over src.
func NewStoreCollector(src StoreSource) *StoreCollector {
	return &StoreCollector{
		src: src,
		events: prometheus.NewDesc("hivewatch_store_events",
			"Events held in the primary store", nil, nil),
		window: prometheus.NewDesc("hivewatch_window_entries",
			"Entries accumulated in a window since its last reset", []string{"window"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *StoreCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.events
	ch <- c.window
}

// Collect implements prometheus.Collector.
func (c *StoreCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.events, prometheus.GaugeValue, float64(c.src.Len()))
	for name, n := range c.src.WindowSizes() {
		ch <- prometheus.MustNewConstMetric(c.window, prometheus.GaugeValue, float64(n), name)
	}
}
