package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation. Every method is safe on a nil receiver.
type MetricsService struct {
	registry          *prometheus.Registry
	handler           http.Handler
	requestDuration   *prometheus.HistogramVec
	requestTotal      *prometheus.CounterVec
	cacheLatency      prometheus.Observer
	cacheWrite        prometheus.Observer
	cacheLookups      *prometheus.CounterVec
	classifierLatency *prometheus.HistogramVec
	predictions       *prometheus.CounterVec
	escalations       *prometheus.CounterVec
	sweepDuration     prometheus.Histogram
	sweepFailures     prometheus.Counter
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_lookups_total",
		Help: "Cache lookups by result",
	}, []string{"result"})

	classifierLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "classifier_request_duration_seconds",
		Help:    "Duration of classifier calls by outcome",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
	}, []string{"outcome"})

	predictions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "complaint_predictions_total",
		Help: "Predictions applied to complaints by result",
	}, []string{"result"})

	escalations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "complaint_escalations_total",
		Help: "Escalations raised by level and trigger",
	}, []string{"level", "trigger"})

	sweepDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sla_sweep_duration_seconds",
		Help:    "Duration of SLA escalation sweeps",
		Buckets: prometheus.DefBuckets,
	})

	sweepFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sla_sweep_complaint_failures_total",
		Help: "Complaints that failed to escalate during a sweep",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheLookups, classifierLatency,
		predictions, escalations, sweepDuration, sweepFailures, goroutines)

	return &MetricsService{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
		cacheLatency:      cacheLatency,
		cacheWrite:        cacheWrite,
		cacheLookups:      cacheLookups,
		classifierLatency: classifierLatency,
		predictions:       predictions,
		escalations:       escalations,
		sweepDuration:     sweepDuration,
		sweepFailures:     sweepFailures,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveClassifierCall implements classifier.Observer.
func (m *MetricsService) ObserveClassifierCall(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.classifierLatency.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordPrediction counts an applied prediction as routed or sent to review.
func (m *MetricsService) RecordPrediction(reviewRequired bool) {
	if m == nil {
		return
	}
	result := "routed"
	if reviewRequired {
		result = "review"
	}
	m.predictions.WithLabelValues(result).Inc()
}

// RecordEscalation counts one raised escalation.
func (m *MetricsService) RecordEscalation(level string, automatic bool) {
	if m == nil {
		return
	}
	trigger := "manual"
	if automatic {
		trigger = "sweep"
	}
	m.escalations.WithLabelValues(level, trigger).Inc()
}

// ObserveSweep records one escalation sweep.
func (m *MetricsService) ObserveSweep(duration time.Duration, failures int) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(duration.Seconds())
	if failures > 0 {
		m.sweepFailures.Add(float64(failures))
	}
}
