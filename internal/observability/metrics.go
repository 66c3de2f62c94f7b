// Package observability provides metrics and tracing for the application.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UploadsTotal counts upload requests by outcome ("accepted", "rejected", "failed").
	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snaptag_uploads_total",
		Help: "Total number of image uploads by outcome",
	}, []string{"outcome"})

	// DetectorFailures counts label detection calls degraded to an empty result.
	DetectorFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snaptag_detector_failures_total",
		Help: "Total number of label detection calls that failed and were degraded to no tags",
	})

	// DetectedLabels records how many labels each detection call returned.
	DetectedLabels = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "snaptag_detected_labels_per_call",
		Help:    "Number of labels returned per detection call",
		Buckets: []float64{0, 1, 2, 3, 5, 8, 10},
	})

	// IngestFallbacks counts ingestions that fell back to a tagless post insert.
	IngestFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snaptag_ingest_fallbacks_total",
		Help: "Total number of ingestions that degraded to a post without tags",
	})

	// SignedURLLatency records signed URL issuance latency.
	SignedURLLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "snaptag_signed_url_latency_seconds",
		Help:    "Signed URL issuance latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// OrphanedObjects counts storage objects left behind by failed deletions.
	OrphanedObjects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snaptag_orphaned_objects_total",
		Help: "Total number of storage objects recorded for the cleanup sweep",
	})

	// OrphanSweeps counts cleanup sweep attempts by result ("cleaned", "failed").
	OrphanSweeps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snaptag_orphan_sweeps_total",
		Help: "Total number of orphan cleanup attempts by result",
	}, []string{"result"})

	// RedisErrors counts Redis errors by operation type.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snaptag_redis_errors_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})
)

// ObserveSignedURL records the latency of a signed URL issuance.
func ObserveSignedURL(start time.Time) {
	SignedURLLatency.Observe(time.Since(start).Seconds())
}
