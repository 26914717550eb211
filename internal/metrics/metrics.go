// Package metrics exposes delivery, queue and HTTP metrics. Every Metrics
// value owns its registry so tests and binaries do not share state.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mailer"

type Metrics struct {
	registry *prometheus.Registry

	messagesAccepted  *prometheus.CounterVec
	deliveryAttempts  *prometheus.CounterVec
	deliveryDuration  *prometheus.HistogramVec
	queueRuns         *prometheus.CounterVec
	queueBatchSize    prometheus.Histogram
	activeTransports  prometheus.Gauge
	httpRequests      *prometheus.CounterVec
	httpRequestLength *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		messagesAccepted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_accepted_total",
				Help:      "Messages persisted, by intake path.",
			},
			[]string{"path"}, // send, queue, smtp
		),
		deliveryAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "delivery_attempts_total",
				Help:      "Delivery attempts by provider type and outcome.",
			},
			[]string{"provider_type", "outcome"}, // sent, retry, failed
		),
		deliveryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "delivery_duration_seconds",
				Help:      "Duration of provider dispatch calls.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"provider_type"},
		),
		queueRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queue_runs_total",
				Help:      "Queue processing runs by result.",
			},
			[]string{"result"}, // ok, error, skipped
		),
		queueBatchSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "queue_batch_size",
				Help:      "Due messages picked up per queue run.",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
			},
		),
		activeTransports: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_transports",
				Help:      "Active transports after the last reload.",
			},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests.",
			},
			[]string{"method", "route", "status_code"},
		),
		httpRequestLength: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// Registry returns the registry the metrics are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// The recording methods below are no-ops on a nil *Metrics.

func (m *Metrics) MessageAccepted(path string) {
	if m == nil {
		return
	}
	m.messagesAccepted.WithLabelValues(path).Inc()
}

func (m *Metrics) DeliveryAttempt(providerType, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.deliveryAttempts.WithLabelValues(providerType, outcome).Inc()
	m.deliveryDuration.WithLabelValues(providerType).Observe(took.Seconds())
}

func (m *Metrics) QueueRun(result string, batch int) {
	if m == nil {
		return
	}
	m.queueRuns.WithLabelValues(result).Inc()
	if result != "skipped" {
		m.queueBatchSize.Observe(float64(batch))
	}
}

func (m *Metrics) ActiveTransports(n int) {
	if m == nil {
		return
	}
	m.activeTransports.Set(float64(n))
}

func (m *Metrics) HTTPRequest(method, route string, status int, took time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, statusLabel(status)).Inc()
	m.httpRequestLength.WithLabelValues(method, route).Observe(took.Seconds())
}
