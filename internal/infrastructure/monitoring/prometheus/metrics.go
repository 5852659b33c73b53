// Package prometheus collects the service metrics: extraction pipeline
// counters, dispatch counters, and HTTP request instrumentation.
package prometheus

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "prescripto"

// Metrics holds all collectors. One instance per process, registered on a
// single registry.
type Metrics struct {
	registry *prometheus.Registry

	extractions        *prometheus.CounterVec
	extractionDuration *prometheus.HistogramVec
	entriesExtracted   *prometheus.CounterVec
	reminderEvents     prometheus.Counter
	dispatched         prometheus.Counter
	dispatchFailures   prometheus.Counter
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		extractions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_total",
			Help:      "Documents run through the extraction pipeline, by outcome.",
		}, []string{"status"}),
		extractionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extraction_duration_seconds",
			Help:      "End-to-end extraction pipeline latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		entriesExtracted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_extracted_total",
			Help:      "Medication entries extracted, by confidence.",
		}, []string{"confidence"}),
		reminderEvents: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminder_events_total",
			Help:      "Reminder events produced by schedule expansion.",
		}),
		dispatched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_dispatched_total",
			Help:      "Reminder events published to the notification topic.",
		}),
		dispatchFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminder_dispatch_failures_total",
			Help:      "Reminder events that failed to publish or to be marked.",
		}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by method, route, and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// ObserveExtraction records one pipeline run.
func (m *Metrics) ObserveExtraction(status string, seconds float64) {
	m.extractions.WithLabelValues(status).Inc()
	m.extractionDuration.WithLabelValues(status).Observe(seconds)
}

// AddEntries counts extracted entries by confidence label.
func (m *Metrics) AddEntries(confidence string, n int) {
	m.entriesExtracted.WithLabelValues(confidence).Add(float64(n))
}

// AddReminderEvents counts expanded reminder events.
func (m *Metrics) AddReminderEvents(n int) {
	m.reminderEvents.Add(float64(n))
}

// AddDispatched counts successfully published reminders.
func (m *Metrics) AddDispatched(n int) {
	m.dispatched.Add(float64(n))
}

// AddDispatchFailures counts failed dispatch attempts.
func (m *Metrics) AddDispatchFailures(n int) {
	m.dispatchFailures.Add(float64(n))
}

// ObserveHTTPRequest records one served request.
func (m *Metrics) ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Handler exposes the scrape endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, used by tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
