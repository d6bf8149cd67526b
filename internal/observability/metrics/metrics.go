package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sessionlog"

// Recorder owns a Prometheus registry with the HTTP and datastore collectors
// the service exports. Each Recorder is independent so tests never share
// global state.
type Recorder struct {
	registry          *prometheus.Registry
	requests          *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	datastoreUp       prometheus.Gauge
}

var defaultRecorder atomic.Pointer[Recorder]

func init() {
	defaultRecorder.Store(New())
}

// New constructs a Recorder with its own registry. Go runtime and process
// collectors are registered alongside the service metrics.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests processed by the API.",
		}, []string{"method", "path", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "document_operations_total",
			Help:      "Document operations by collection, operation and outcome.",
		}, []string{"collection", "operation", "outcome"}),
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "document_operation_duration_seconds",
			Help:      "Duration of document operations.",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"collection", "operation"}),
		datastoreUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "datastore_up",
			Help:      "Whether the last datastore ping succeeded (1) or failed (0).",
		}),
	}
	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.requests,
		r.requestDuration,
		r.operations,
		r.operationDuration,
		r.datastoreUp,
	)
	return r
}

// Default returns the process-wide Recorder used by package-level helpers.
func Default() *Recorder {
	return defaultRecorder.Load()
}

// SetDefault replaces the process-wide Recorder. A nil recorder is ignored.
func SetDefault(r *Recorder) {
	if r != nil {
		defaultRecorder.Store(r)
	}
}

// Registry exposes the underlying registry so callers can register extra
// collectors.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveRequest records one HTTP request by method, normalized path and
// status code.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	labels := prometheus.Labels{
		"method": strings.ToUpper(method),
		"path":   normalizePath(path),
		"status": strconv.Itoa(status),
	}
	r.requests.With(labels).Inc()
	r.requestDuration.With(labels).Observe(duration.Seconds())
}

// ObserveOperation records the outcome of a repository call.
func (r *Recorder) ObserveOperation(collection, operation string, err error, duration time.Duration) {
	collection = normalizeName(collection)
	operation = normalizeName(operation)
	r.operations.WithLabelValues(collection, operation, outcome(err)).Inc()
	r.operationDuration.WithLabelValues(collection, operation).Observe(duration.Seconds())
}

// SetDatastoreHealth updates the datastore_up gauge.
func (r *Recorder) SetDatastoreHealth(healthy bool) {
	if healthy {
		r.datastoreUp.Set(1)
		return
	}
	r.datastoreUp.Set(0)
}

// Reset clears request and operation series. It is intended for test setups.
func (r *Recorder) Reset() {
	r.requests.Reset()
	r.requestDuration.Reset()
	r.operations.Reset()
	r.operationDuration.Reset()
	r.datastoreUp.Set(0)
}

// Handler exposes the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

func normalizePath(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "" {
			continue
		}
		if looksLikeIdentifier(part) {
			parts[i] = ":id"
		}
	}
	normalized := strings.Join(parts, "/")
	if !strings.HasPrefix(normalized, "/") {
		normalized = "/" + normalized
	}
	if strings.HasSuffix(normalized, "/") && len(normalized) > 1 {
		normalized = strings.TrimSuffix(normalized, "/")
	}
	return normalized
}

// looksLikeIdentifier matches ObjectIDs, UUIDs and other opaque tokens while
// leaving route words such as "sessions" intact.
func looksLikeIdentifier(segment string) bool {
	if len(segment) >= 20 {
		return true
	}
	digitCount := 0
	for _, r := range segment {
		if r >= '0' && r <= '9' {
			digitCount++
		}
	}
	return digitCount >= 3
}

func normalizeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
