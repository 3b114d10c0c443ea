// Package metrics owns the Prometheus collectors for the engine and its
// transports.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sipeed/picocrud/pkg/domain"
)

const namespace = "picocrud"

// Metrics is a private registry plus the collectors registered on it.
type Metrics struct {
	Registry *prometheus.Registry

	childOps      *prometheus.CounterVec
	childDuration *prometheus.HistogramVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	brokerMsgs    *prometheus.CounterVec
	maintenance   *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		childOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "child",
				Name:      "operations_total",
				Help:      "Child collection operations by kind, operation and status code.",
			},
			[]string{"kind", "operation", "status"},
		),
		childDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "child",
				Name:      "operation_duration_seconds",
				Help:      "Duration of child collection operations, fetch to persist.",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
			},
			[]string{"kind", "operation"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests by method, route and status.",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
			},
			[]string{"method", "route"},
		),
		brokerMsgs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "broker",
				Name:      "messages_total",
				Help:      "Broker commands handled, by result.",
			},
			[]string{"result"},
		),
		maintenance: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "maintenance",
				Name:      "runs_total",
				Help:      "Scheduled store maintenance runs, by result.",
			},
			[]string{"result"},
		),
	}
	m.Registry.MustRegister(
		m.childOps,
		m.childDuration,
		m.httpRequests,
		m.httpDuration,
		m.brokerMsgs,
		m.maintenance,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// ObserveOperation implements nested.Recorder.
func (m *Metrics) ObserveOperation(kind string, op domain.Operation, status int, elapsed time.Duration) {
	m.childOps.WithLabelValues(kind, string(op), strconv.Itoa(status)).Inc()
	m.childDuration.WithLabelValues(kind, string(op)).Observe(elapsed.Seconds())
}

// ObserveHTTP records one request. route is the router pattern, not the raw
// path, to keep label cardinality bounded.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// BrokerMessage counts a broker command by result ("ok", "error", "invalid").
func (m *Metrics) BrokerMessage(result string) {
	m.brokerMsgs.WithLabelValues(result).Inc()
}

// MaintenanceRun counts a maintenance run by result ("ok", "error").
func (m *Metrics) MaintenanceRun(result string) {
	m.maintenance.WithLabelValues(result).Inc()
}
