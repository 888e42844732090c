package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SourcesIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "localbook_sources_ingested_total",
			Help: "Total sources ingested to completion",
		},
	)

	IngestFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "localbook_ingest_failures_total",
			Help: "Total ingestion failures by stage",
		},
		[]string{"stage"},
	)

	IngestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "localbook_ingest_duration_seconds",
			Help:    "Ingestion duration per source in seconds",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
		},
	)

	ChunksIndexed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "localbook_chunks_indexed_total",
			Help: "Total chunks written to the vector index",
		},
	)

	QueryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "localbook_query_duration_seconds",
			Help:    "Question answering duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)

	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "localbook_query_total",
			Help: "Total questions answered",
		},
		[]string{"status"},
	)

	SummariesGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "localbook_summaries_generated_total",
			Help: "Total summaries generated by format",
		},
		[]string{"format", "status"},
	)

	ActiveJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "localbook_active_jobs",
			Help: "Background jobs currently admitted or running",
		},
	)

	StatusSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "localbook_status_subscribers",
			Help: "Open status subscriptions",
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "localbook_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "localbook_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)
)

func Init() {
	prometheus.MustRegister(SourcesIngested)
	prometheus.MustRegister(IngestFailures)
	prometheus.MustRegister(IngestDuration)
	prometheus.MustRegister(ChunksIndexed)
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(QueryTotal)
	prometheus.MustRegister(SummariesGenerated)
	prometheus.MustRegister(ActiveJobs)
	prometheus.MustRegister(StatusSubscribers)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
