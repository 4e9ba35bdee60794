// Package metrics registers the Prometheus collectors exercised at every
// contract point named in spec.md §4 and §9 ("Workers publish busy/total
// gauges and latency histograms at each step"), following the singleton
// registration pattern in zombar-tunnelmesh's internal/coord/metrics.go.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector chunkvault updates.
type Metrics struct {
	HTTPRequestDuration *prometheus.HistogramVec

	ChunksUploadedTotal      prometheus.Counter
	ChunkUploadFailuresTotal prometheus.Counter
	BytesUploadedTotal       prometheus.Counter
	RetriesTotal             prometheus.Counter
	ThrottledRequestsTotal   *prometheus.CounterVec

	StoragePutLatencySeconds prometheus.Histogram
	DBUpdateLatencySeconds   prometheus.Histogram

	WorkerCount     prometheus.Gauge
	WorkerBusyCount prometheus.Gauge
	TaskQueueDepth  prometheus.Gauge
	InflightChunks  prometheus.Gauge

	AutoscaleEventsTotal *prometheus.CounterVec
	HungTasksTotal       prometheus.Counter
	CleanupRunsTotal     prometheus.Counter
}

var (
	once     sync.Once
	instance *Metrics
)

// Init registers all collectors against registry (nil uses the default
// registerer). Subsequent calls return the already-initialized instance,
// matching the once.Do guard in the teacher's metrics source.
func Init(registry prometheus.Registerer) *Metrics {
	once.Do(func() {
		if registry == nil {
			registry = prometheus.DefaultRegisterer
		}
		f := promauto.With(registry)

		instance = &Metrics{
			HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
				Name: "chunkvault_http_request_duration_seconds",
				Help: "HTTP request duration in seconds.",
			}, []string{"method", "route", "status_code"}),

			ChunksUploadedTotal: f.NewCounter(prometheus.CounterOpts{
				Name: "chunkvault_chunks_uploaded_total",
				Help: "Chunks persisted successfully.",
			}),
			ChunkUploadFailuresTotal: f.NewCounter(prometheus.CounterOpts{
				Name: "chunkvault_chunk_upload_failures_total",
				Help: "Chunks that failed permanently after exhausting retries.",
			}),
			BytesUploadedTotal: f.NewCounter(prometheus.CounterOpts{
				Name: "chunkvault_bytes_uploaded_total",
				Help: "Bytes persisted across all chunk writes.",
			}),
			RetriesTotal: f.NewCounter(prometheus.CounterOpts{
				Name: "chunkvault_retries_total",
				Help: "Chunk write retry attempts.",
			}),
			ThrottledRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
				Name: "chunkvault_throttled_requests_total",
				Help: "Requests rejected by an admission limiter, labeled by refusing limiter.",
			}, []string{"reason"}),

			StoragePutLatencySeconds: f.NewHistogram(prometheus.HistogramOpts{
				Name: "chunkvault_storage_put_latency_seconds",
				Help: "Latency of chunk storage writes.",
			}),
			DBUpdateLatencySeconds: f.NewHistogram(prometheus.HistogramOpts{
				Name: "chunkvault_db_update_latency_seconds",
				Help: "Latency of metadata store chunk row updates.",
			}),

			WorkerCount: f.NewGauge(prometheus.GaugeOpts{
				Name: "chunkvault_worker_count",
				Help: "Current worker pool size.",
			}),
			WorkerBusyCount: f.NewGauge(prometheus.GaugeOpts{
				Name: "chunkvault_worker_busy_count",
				Help: "Workers currently executing a task.",
			}),
			TaskQueueDepth: f.NewGauge(prometheus.GaugeOpts{
				Name: "chunkvault_task_queue_depth",
				Help: "Tasks waiting for a worker slot.",
			}),
			InflightChunks: f.NewGauge(prometheus.GaugeOpts{
				Name: "chunkvault_inflight_chunks",
				Help: "Chunk tasks admitted but not yet terminal.",
			}),

			AutoscaleEventsTotal: f.NewCounterVec(prometheus.CounterOpts{
				Name: "chunkvault_autoscale_events_total",
				Help: "Autoscaler resize decisions, labeled by direction.",
			}, []string{"direction"}),
			HungTasksTotal: f.NewCounter(prometheus.CounterOpts{
				Name: "chunkvault_hung_tasks_total",
				Help: "Tasks flagged as hung relative to the rolling average duration.",
			}),
			CleanupRunsTotal: f.NewCounter(prometheus.CounterOpts{
				Name: "chunkvault_cleanup_runs_total",
				Help: "Completed maintenance sweeps.",
			}),
		}
	})

	return instance
}

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
