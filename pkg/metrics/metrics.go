package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "saga"

// subsystem turns a service name like order-service into a valid metric
// name component.
func subsystem(service string) string { return strings.ReplaceAll(service, "-", "_") }

type ServerMetrics struct {
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec
}

func NewServerMetrics(reg prometheus.Registerer, service string) *ServerMetrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem(service),
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"handler", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem(service),
		Name:      "http_request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"handler"})

	reg.MustRegister(requests, latency)
	return &ServerMetrics{Requests: requests, LatencyMS: latency}
}

// Middleware records every request under its chi route pattern so ids in the
// path do not explode label cardinality.
func (m *ServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.Method + " " + r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = r.Method + " " + rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		m.LatencyMS.WithLabelValues(route).Observe(float64(time.Since(start).Milliseconds()))
	})
}

// ConsumerMetrics counts handled deliveries per queue and outcome
// (ack, drop, dead_letter).
type ConsumerMetrics struct {
	Deliveries *prometheus.CounterVec
	DurationMS *prometheus.HistogramVec
}

func NewConsumerMetrics(reg prometheus.Registerer, service string) *ConsumerMetrics {
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem(service),
		Name:      "consumer_deliveries_total",
		Help:      "Deliveries handled by queue consumers, by outcome.",
	}, []string{"queue", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem(service),
		Name:      "consumer_handle_duration_ms",
		Help:      "Time spent handling one delivery, retries included.",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 1000, 5000, 30000},
	}, []string{"queue"})

	reg.MustRegister(deliveries, duration)
	return &ConsumerMetrics{Deliveries: deliveries, DurationMS: duration}
}

func (m *ConsumerMetrics) Observe(queue, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.Deliveries.WithLabelValues(queue, outcome).Inc()
	m.DurationMS.WithLabelValues(queue).Observe(float64(took.Milliseconds()))
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
