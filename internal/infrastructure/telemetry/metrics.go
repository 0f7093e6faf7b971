package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nest"

// Metrics holds the Prometheus collectors exposed on /metrics.
// All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	syncRuns       *prometheus.CounterVec
	syncOperations *prometheus.CounterVec
	syncDuration   prometheus.Histogram

	jobRuns     *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec

	paymentEvents   *prometheus.CounterVec
	persistFailures *prometheus.CounterVec
	emails          *prometheus.CounterVec
}

// NewMetrics creates the collectors on a private registry together with
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		syncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "imagesync",
			Name:      "runs_total",
			Help:      "Image sync runs by final status.",
		}, []string{"status"}),
		syncOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "imagesync",
			Name:      "operations_total",
			Help:      "Blob operations performed by image sync runs.",
		}, []string{"kind"}),
		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "imagesync",
			Name:      "run_duration_seconds",
			Help:      "Wall time of image sync runs.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Background job attempts by job and status.",
		}, []string{"job", "status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_duration_seconds",
			Help:      "Background job attempt duration.",
			Buckets:   []float64{0.1, 1, 10, 60, 300, 1800},
		}, []string{"job"}),
		paymentEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "webhook_events_total",
			Help:      "Stripe webhook events by type and outcome.",
		}, []string{"type", "outcome"}),
		persistFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "persist_failures_total",
			Help:      "Background session writes to postgres that failed.",
		}, []string{"operation"}),
		emails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "email",
			Name:      "sent_total",
			Help:      "Transactional emails by kind and result.",
		}, []string{"kind", "result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests, m.httpDuration,
		m.syncRuns, m.syncOperations, m.syncDuration,
		m.jobRuns, m.jobDuration,
		m.paymentEvents, m.persistFailures, m.emails,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// SyncRunObservation summarizes a finished image sync run.
type SyncRunObservation struct {
	Status    string
	Duration  time.Duration
	Uploaded  int
	Updated   int
	Deleted   int
	Protected int
	Errors    int
}

// ObserveSyncRun records a finished image sync run.
func (m *Metrics) ObserveSyncRun(o SyncRunObservation) {
	if m == nil {
		return
	}
	m.syncRuns.WithLabelValues(o.Status).Inc()
	m.syncDuration.Observe(o.Duration.Seconds())
	for kind, n := range map[string]int{
		"upload":    o.Uploaded,
		"update":    o.Updated,
		"delete":    o.Deleted,
		"protected": o.Protected,
		"error":     o.Errors,
	} {
		if n > 0 {
			m.syncOperations.WithLabelValues(kind).Add(float64(n))
		}
	}
}

// ObserveJob records one background job attempt.
func (m *Metrics) ObserveJob(job, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job, status).Inc()
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

// IncPaymentEvent counts a webhook event.
func (m *Metrics) IncPaymentEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.paymentEvents.WithLabelValues(eventType, outcome).Inc()
}

// IncPersistFailure counts a failed background postgres write.
func (m *Metrics) IncPersistFailure(operation string) {
	if m == nil {
		return
	}
	m.persistFailures.WithLabelValues(operation).Inc()
}

// IncEmail counts a transactional email attempt.
func (m *Metrics) IncEmail(kind string, err error) {
	if m == nil {
		return
	}
	result := "sent"
	if err != nil {
		result = "failed"
	}
	m.emails.WithLabelValues(kind, result).Inc()
}
