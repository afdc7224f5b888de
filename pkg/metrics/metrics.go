// Package metrics provides Prometheus instrumentation for routelens.
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

	"github.com/routelens/routelens/internal/model"
)

// Registry holds every routelens collector plus the Go runtime collectors.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

var (
	// LinesTotal counts classified base-log lines by event kind.
	LinesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "routelens_lines_total",
		Help: "Base-log lines classified, by event kind",
	}, []string{"kind"})

	// ProfileLoads counts profile loads by result (ok, error).
	ProfileLoads = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "routelens_profile_loads_total",
		Help: "Profile base-log loads by result",
	}, []string{"result"})

	// LoadDuration tracks how long reading, parsing and aggregating one profile takes.
	LoadDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "routelens_profile_load_duration_seconds",
		Help:    "Time to read, parse and aggregate one profile",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	// Profiles is the number of profiles with loaded data.
	Profiles = factory.NewGauge(prometheus.GaugeOpts{
		Name: "routelens_profiles",
		Help: "Profiles currently loaded",
	})

	// Reloads counts full reloads, by trigger (startup, watch, api).
	Reloads = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "routelens_reloads_total",
		Help: "Full data reloads by trigger",
	}, []string{"trigger"})

	// Exports counts stock exports by target and result.
	Exports = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "routelens_exports_total",
		Help: "Stock table exports by target and result",
	}, []string{"target", "result"})

	// SSEClients tracks connected reload subscribers.
	SSEClients = factory.NewGauge(prometheus.GaugeOpts{
		Name: "routelens_sse_clients",
		Help: "Connected server-sent event subscribers",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route and status.
	HTTPRequestsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "routelens_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "routelens_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "route"})
)

// RecordKinds adds per-kind line counts.
func RecordKinds(counts map[model.Kind]int) {
	for kind, n := range counts {
		LinesTotal.WithLabelValues(kind.String()).Add(float64(n))
	}
}

// Result maps an error to the "ok"/"error" label value.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// Middleware records request metrics. The chi route pattern is used as the
// route label so path parameters do not explode cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush lets streaming handlers behind the middleware flush.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
