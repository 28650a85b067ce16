// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PipelineStagesCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_stages_completed_total",
			Help: "Total number of pipeline stages completed",
		},
		[]string{"stage"},
	)

	PipelineStagesFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_stages_failed_total",
			Help: "Total number of pipeline stages failed",
		},
		[]string{"stage", "error_code"},
	)

	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "pipeline_stage_duration_seconds",
			Help: "Duration of pipeline stage processing in seconds",
		},
		[]string{"stage"},
	)

	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "model_cache_hits_total",
			Help: "Total number of model cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "model_cache_misses_total",
			Help: "Total number of model cache misses",
		},
	)

	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "model_cache_evictions_total",
			Help: "Total number of model cache entries evicted",
		},
	)

	CacheBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "model_cache_bytes",
			Help: "Total bytes currently held by the model cache",
		},
	)

	DownloadsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "model_downloads_in_flight",
			Help: "Number of model downloads currently in progress",
		},
	)
)
