// Package metrics exposes Prometheus instrumentation shared by the
// orchestrator and the participant services.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Consume outcomes.
const (
	OutcomeAcked        = "acked"
	OutcomeRetried      = "retried"
	OutcomeDeadLettered = "dead_lettered"
	OutcomeRequeued     = "requeued"
)

// Metrics wraps the Prometheus collectors of a single service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	consumed        *prometheus.CounterVec
	published       *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	handlerDuration *prometheus.HistogramVec
}

// New creates a registry and registers the saga metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	consumed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "saga_messages_consumed_total",
		Help: "Total number of consumed messages by queue and outcome.",
	}, []string{"queue", "outcome"})

	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "saga_messages_published_total",
		Help: "Total number of published messages by routing key.",
	}, []string{"routing_key"})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "saga_transitions_total",
		Help: "Total number of saga status transitions by target status.",
	}, []string{"status"})

	handlerDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "saga_handler_duration_seconds",
		Help:    "Message handler latency by queue.",
		Buckets: prometheus.DefBuckets,
	}, []string{"queue"})

	registry.MustRegister(consumed, published, transitions, handlerDuration)

	return &Metrics{
		registry:        registry,
		consumed:        consumed,
		published:       published,
		transitions:     transitions,
		handlerDuration: handlerDuration,
	}
}

// Handler exposes the metrics registry via HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry for tests and custom exporters.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

func (m *Metrics) IncConsumed(queue, outcome string) {
	if m == nil {
		return
	}
	m.consumed.WithLabelValues(queue, outcome).Inc()
}

func (m *Metrics) IncPublished(routingKey string) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(routingKey).Inc()
}

func (m *Metrics) IncTransition(status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(status).Inc()
}

// ObserveHandler records how long a handler took for a queue.
func (m *Metrics) ObserveHandler(queue string, d time.Duration) {
	if m == nil {
		return
	}
	m.handlerDuration.WithLabelValues(queue).Observe(d.Seconds())
}
