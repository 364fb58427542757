package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lexigraph/case-assistant/internal/core/domain"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	queryStageDuration *prometheus.HistogramVec
	queryPathTotal     *prometheus.CounterVec
	querySources       *prometheus.HistogramVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ca",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ca",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ca",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queryStageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ca",
			Subsystem: "query",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each query pipeline stage.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "stage"},
	)
	queryPathTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ca",
			Subsystem: "query",
			Name:      "path_total",
			Help:      "Total answered queries by retrieval path.",
		},
		[]string{"service", "path"},
	)
	querySources := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ca",
			Subsystem: "query",
			Name:      "sources",
			Help:      "Distribution of cited sources per answered query.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 25},
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		queryStageDuration,
		queryPathTotal,
		querySources,
	)

	return &HTTPServerMetrics{
		registry:           registry,
		requestTotal:       requestTotal,
		requestDuration:    requestDuration,
		requestInFlight:    requestInFlight,
		queryStageDuration: queryStageDuration,
		queryPathTotal:     queryPathTotal,
		querySources:       querySources,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/documents/"):
		return "/v1/documents/{document_id}"
	case strings.HasPrefix(path, "/v1/cases/") && strings.HasSuffix(path, "/documents"):
		return "/v1/cases/{case_id}/documents"
	case strings.HasPrefix(path, "/v1/cases/") && strings.HasSuffix(path, "/query"):
		return "/v1/cases/{case_id}/query"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordSources(service string, count int) {
	m.querySources.WithLabelValues(service).Observe(float64(count))
}

// QueryObserver adapts the metrics registry to the query pipeline's
// observer hook.
type QueryObserver struct {
	metrics *HTTPServerMetrics
	service string
}

func NewQueryObserver(metrics *HTTPServerMetrics, service string) *QueryObserver {
	return &QueryObserver{metrics: metrics, service: service}
}

func (o *QueryObserver) ObserveStage(stage string, duration time.Duration) {
	o.metrics.queryStageDuration.WithLabelValues(o.service, stage).Observe(duration.Seconds())
}

func (o *QueryObserver) ObservePath(path domain.QueryPath) {
	o.metrics.queryPathTotal.WithLabelValues(o.service, string(path)).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
