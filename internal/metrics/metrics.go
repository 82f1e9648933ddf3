// Package metrics holds the Prometheus collectors of the analysis service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "adsbfuel"

// Registry holds all Prometheus metrics for the service.
type Registry struct {
	reg *prometheus.Registry

	// HTTP Metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Trace acquisition
	TraceFetchesTotal  *prometheus.CounterVec
	TraceFetchDuration prometheus.Histogram

	// Analysis
	AnalysesTotal    *prometheus.CounterVec
	AnalysisDuration prometheus.Histogram
	LegsTotal        *prometheus.CounterVec
	SanitizedTotal   prometheus.Counter
	MTOWRetriesTotal prometheus.Counter
	FuelBurnedKg     prometheus.Counter
	CO2EmittedKg     prometheus.Counter

	// Model cache
	ModelCacheTotal *prometheus.CounterVec
}

// New creates a registry with every collector registered, plus the Go
// runtime and process collectors.
func New() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Registry{
		reg: reg,

		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests processed by route, method, and status code",
			},
			[]string{"route", "method", "status_code"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency distribution in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"route", "method"},
		),
		HTTPRequestsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Number of HTTP requests currently being processed",
			},
		),

		TraceFetchesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "trace_fetches_total",
				Help:      "Trace fetches by result (ok, not_found, error)",
			},
			[]string{"result"},
		),
		TraceFetchDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "trace_fetch_duration_seconds",
				Help:      "Trace fetch latency in seconds, including retries",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
			},
		),

		AnalysesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "analyses_total",
				Help:      "Completed analyses by result (ok, error)",
			},
			[]string{"result"},
		),
		AnalysisDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "analysis_duration_seconds",
				Help:      "Time to analyse one series in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
			},
		),
		LegsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "legs_total",
				Help:      "Legs by outcome (integrated, skipped, dropped)",
			},
			[]string{"outcome"},
		),
		SanitizedTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fuel_flow_sanitized_total",
				Help:      "Fuel flow values replaced by zero because they were negative or not finite",
			},
		),
		MTOWRetriesTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fuel_mtow_retries_total",
				Help:      "Leg integrations repeated at maximum take-off weight",
			},
		),
		FuelBurnedKg: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fuel_burned_kg_total",
				Help:      "Fuel mass burned across all integrated legs",
			},
		),
		CO2EmittedKg: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "co2_emitted_kg_total",
				Help:      "CO2 mass emitted across all integrated legs",
			},
		),

		ModelCacheTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "model_cache_requests_total",
				Help:      "Fuel-flow model cache lookups by result (hit, miss)",
			},
			[]string{"result"},
		),
	}
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Middleware records HTTP metrics for each request, labelled by chi route pattern.
func (r *Registry) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.HTTPRequestsInFlight.Inc()
		defer r.HTTPRequestsInFlight.Dec()

		start := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, req)

		// The pattern is only complete once routing has happened
		route := "unknown"
		if rctx := chi.RouteContext(req.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}

		r.HTTPRequestsTotal.WithLabelValues(route, req.Method, strconv.Itoa(wrapped.statusCode)).Inc()
		r.HTTPRequestDuration.WithLabelValues(route, req.Method).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}
