package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "social_layer",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "social_layer",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "social_layer",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	gasPoolSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "social_layer",
			Subsystem: "gas",
			Name:      "pool_size",
			Help:      "Leases currently available in the gas pool.",
		},
	)

	gasBorrowWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "social_layer",
			Subsystem: "gas",
			Name:      "borrow_wait_seconds",
			Help:      "Time spent acquiring a gas lease, including retries.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8), // 1ms to ~16s
		},
	)

	gasRebalances = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "social_layer",
			Subsystem: "gas",
			Name:      "rebalances_total",
			Help:      "Total number of gas pool rebalance runs.",
		},
		[]string{"outcome"},
	)

	taskExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "social_layer",
			Subsystem: "tasks",
			Name:      "executions_total",
			Help:      "Total number of delegated task executions.",
		},
		[]string{"action", "status"},
	)

	taskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "social_layer",
			Subsystem: "tasks",
			Name:      "execution_duration_seconds",
			Help:      "Duration of delegated task executions.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"action"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		gasPoolSize,
		gasBorrowWait,
		gasRebalances,
		taskExecutions,
		taskDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// SetGasPoolSize records the current lease pool size.
func SetGasPoolSize(n int) {
	gasPoolSize.Set(float64(n))
}

// ObserveBorrowWait records the time a task spent acquiring a lease.
func ObserveBorrowWait(d time.Duration) {
	gasBorrowWait.Observe(d.Seconds())
}

// RecordRebalance records a rebalance run outcome ("replaced", "skipped",
// "failed").
func RecordRebalance(outcome string) {
	gasRebalances.WithLabelValues(outcome).Inc()
}

// RecordTaskExecution records metrics for one executed task.
func RecordTaskExecution(action string, duration time.Duration, success bool) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	status := "error"
	if success {
		status = "success"
	}
	taskExecutions.WithLabelValues(action, status).Inc()
	taskDuration.WithLabelValues(action).Observe(duration.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses per-object path segments so metric cardinality
// stays bounded.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) == 1 {
		return "/" + parts[0]
	}
	return "/" + parts[0] + "/" + parts[1]
}
