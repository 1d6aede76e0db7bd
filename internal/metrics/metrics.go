// Package metrics exposes pipeline counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sabot-go/internal/sabot"
)

// Namespace prefixes every metric name.
const Namespace = "sabot"

// Metrics implements sabot.Metrics on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	ItemsTotal         *prometheus.CounterVec
	DownloadFailures   *prometheus.CounterVec
	RunsTotal          *prometheus.CounterVec
	RunDurationSeconds *prometheus.HistogramVec
	LastRunTimestamp   *prometheus.GaugeVec
	PollerRunning      prometheus.Gauge
	PollerIntervalSecs prometheus.Gauge
}

var _ sabot.Metrics = (*Metrics)(nil)

// New creates the metrics and registers them, with the Go and process
// collectors, on a new registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	factory := promauto.With(reg)
	m := &Metrics{registry: reg}

	m.ItemsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "items_total",
			Help:      "Content items processed, by final state",
		},
		[]string{"platform", "state"},
	)
	m.DownloadFailures = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "media_download_failures_total",
			Help:      "Media references that could not be downloaded",
		},
		[]string{"platform"},
	)
	m.RunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs, by trigger and outcome",
		},
		[]string{"platform", "trigger", "status"},
	)
	m.RunDurationSeconds = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of pipeline runs in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s to ~7min
		},
		[]string{"platform"},
	)
	m.LastRunTimestamp = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last pipeline run finished",
		},
		[]string{"platform"},
	)
	m.PollerRunning = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "poller",
			Name:      "running",
			Help:      "1 while the background poller is scheduled",
		},
	)
	m.PollerIntervalSecs = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "poller",
			Name:      "interval_seconds",
			Help:      "Effective polling interval",
		},
	)
	return m
}

func (m *Metrics) ItemProcessed(platform sabot.Platform, state sabot.ItemState) {
	m.ItemsTotal.WithLabelValues(string(platform), string(state)).Inc()
}

func (m *Metrics) DownloadFailed(platform sabot.Platform) {
	m.DownloadFailures.WithLabelValues(string(platform)).Inc()
}

func (m *Metrics) RunFinished(platform sabot.Platform, trigger sabot.Trigger, elapsed time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.RunsTotal.WithLabelValues(string(platform), string(trigger), status).Inc()
	m.RunDurationSeconds.WithLabelValues(string(platform)).Observe(elapsed.Seconds())
	m.LastRunTimestamp.WithLabelValues(string(platform)).SetToCurrentTime()
}

// PollerState records whether the poller runs and at what interval.
func (m *Metrics) PollerState(running bool, interval time.Duration) {
	if running {
		m.PollerRunning.Set(1)
	} else {
		m.PollerRunning.Set(0)
	}
	m.PollerIntervalSecs.Set(interval.Seconds())
}

// Registry returns the registry the metrics live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
