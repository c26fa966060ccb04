// Package metrics exposes pipeline and HTTP counters over a private Prometheus registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"MindMapService/internal/ports"
)

// Collector holds all Prometheus metrics for the service.
type Collector struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	PipelineRuns     *prometheus.CounterVec
	PipelineDuration prometheus.Histogram
	Fetches          *prometheus.CounterVec
	SnapshotsStored  prometheus.Counter
}

var (
	_ ports.FetchObserver = (*Collector)(nil)
	_ ports.RunObserver   = (*Collector)(nil)
)

// NewCollector creates and registers every metric under namespace.
func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		PipelineRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pipeline_runs_total",
				Help:      "Mind-map pipeline runs by outcome",
			},
			[]string{"status"},
		),
		PipelineDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "pipeline_duration_seconds",
				Help:      "Mind-map pipeline run duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
			},
		),
		Fetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetches_total",
				Help:      "Content fetches by outcome",
			},
			[]string{"outcome"},
		),
		SnapshotsStored: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "snapshots_stored_total",
				Help:      "Total number of mind maps stored",
			},
		),
	}

	c.registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.PipelineRuns,
		c.PipelineDuration,
		c.Fetches,
		c.SnapshotsStored,
	)
	return c
}

// Registry returns the registry backing this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// FetchCompleted counts one fetch outcome.
func (c *Collector) FetchCompleted(ok bool) {
	outcome := "failed"
	if ok {
		outcome = "ok"
	}
	c.Fetches.WithLabelValues(outcome).Inc()
}

// RunCompleted records a finished pipeline run.
func (c *Collector) RunCompleted(status string, elapsed time.Duration) {
	c.PipelineRuns.WithLabelValues(status).Inc()
	c.PipelineDuration.Observe(elapsed.Seconds())
}

// SnapshotStored counts a persisted snapshot.
func (c *Collector) SnapshotStored() {
	c.SnapshotsStored.Inc()
}

// ObserveHTTP records one served request.
func (c *Collector) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
