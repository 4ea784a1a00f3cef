package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry             *prometheus.Registry
	photosTotal          *prometheus.CounterVec
	photoDuration        *prometheus.HistogramVec
	activePhotos         prometheus.Gauge
	verdictsTotal        *prometheus.CounterVec
	degradedStagesTotal  *prometheus.CounterVec
	pixelsProcessedTotal prometheus.Counter
	outputBytesTotal     prometheus.Counter
	computeTimeMSTotal   prometheus.Counter
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		photosTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "passpix_worker_photos_total",
			Help: "Total worker photos by source type and final status.",
		}, []string{"source_type", "status"}),
		photoDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "passpix_worker_photo_duration_seconds",
			Help:    "Total processing duration for each worker photo.",
			Buckets: prometheus.DefBuckets,
		}, []string{"source_type", "status"}),
		activePhotos: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "passpix_worker_active_photos",
			Help: "Current number of photos being processed by the worker.",
		}),
		verdictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "passpix_worker_verdicts_total",
			Help: "Total compliance verdicts by kind (ready or rejected).",
		}, []string{"verdict"}),
		degradedStagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "passpix_worker_degraded_stages_total",
			Help: "Total pipeline stages that fell back to their degraded path.",
		}, []string{"stage"}),
		pixelsProcessedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "passpix_usage_pixels_processed_total",
			Help: "Total output pixels produced across all ready photos.",
		}),
		outputBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "passpix_usage_output_bytes_total",
			Help: "Total encoded output bytes across all ready photos.",
		}),
		computeTimeMSTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "passpix_usage_compute_time_ms_total",
			Help: "Total compute time in milliseconds across ready photos.",
		}),
	}

	registry.MustRegister(
		m.photosTotal,
		m.photoDuration,
		m.activePhotos,
		m.verdictsTotal,
		m.degradedStagesTotal,
		m.pixelsProcessedTotal,
		m.outputBytesTotal,
		m.computeTimeMSTotal,
	)
	return m
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
