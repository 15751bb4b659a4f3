package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus collectors on a private registry.
// All methods are safe to call on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	errorsTotal       *prometheus.CounterVec
	jobsTotal         *prometheus.CounterVec
	jobDuration       prometheus.Histogram
	queueDepth        prometheus.Gauge
	analysisTotal     *prometheus.CounterVec
	analysisDuration  prometheus.Histogram
	assignmentsTotal  *prometheus.CounterVec
	cacheLookupsTotal *prometheus.CounterVec
}

// NewMetrics registers the service collectors under the given namespace.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"method", "route", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		errorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_errors_total",
			Help:      "HTTP errors by route and error code.",
		}, []string{"method", "route", "code"}),
		jobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_jobs_total",
			Help:      "Processed pipeline jobs by outcome.",
		}, []string{"outcome"}),
		jobDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_job_duration_seconds",
			Help:      "Wall time spent processing a single job.",
			Buckets:   []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_queue_depth",
			Help:      "Jobs waiting in the pipeline queue.",
		}),
		analysisTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_requests_total",
			Help:      "Analysis calls by result (ok, fallback).",
		}, []string{"result"}),
		analysisDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Latency of the analysis call including retries.",
			Buckets:   []float64{.25, .5, 1, 2.5, 5, 10, 30, 60},
		}),
		assignmentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assignments_total",
			Help:      "Automatic assignment attempts by result (assigned, unassigned).",
		}, []string{"result"}),
		cacheLookupsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assessor_cache_lookups_total",
			Help:      "Assessor directory cache lookups by result (hit, miss).",
		}, []string{"result"}),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(method, route, code).Inc()
}

// RecordJob counts a processed job and its duration.
func (m *Metrics) RecordJob(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(outcome).Inc()
	m.jobDuration.Observe(duration.Seconds())
}

// SetQueueDepth publishes the current queue length.
func (m *Metrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}

// RecordAnalysis counts an analysis call.
func (m *Metrics) RecordAnalysis(fallback bool, duration time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if fallback {
		result = "fallback"
	}
	m.analysisTotal.WithLabelValues(result).Inc()
	m.analysisDuration.Observe(duration.Seconds())
}

// RecordAssignment counts an automatic assignment attempt.
func (m *Metrics) RecordAssignment(assigned bool) {
	if m == nil {
		return
	}
	result := "assigned"
	if !assigned {
		result = "unassigned"
	}
	m.assignmentsTotal.WithLabelValues(result).Inc()
}

// RecordCacheLookup counts an assessor cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookupsTotal.WithLabelValues(result).Inc()
}
