// Package metrics exposes Prometheus instrumentation for the provider
// registries, the extension-host transport and the HTTP API.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/conneroisu/docfeat/internal/features"
	"github.com/conneroisu/docfeat/internal/registry"
)

var (
	// Registry metrics
	registeredProviders = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "docfeat_registered_providers",
			Help: "Number of providers currently registered per feature",
		},
		[]string{"feature"},
	)

	providerSetChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docfeat_provider_set_changes_total",
			Help: "Total number of registrations and disposals per feature",
		},
		[]string{"feature"},
	)

	providerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docfeat_provider_errors_total",
			Help: "Total number of provider invocations that failed per feature",
		},
		[]string{"feature"},
	)

	// Transport metrics
	transportConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "docfeat_transport_connections",
			Help: "Current number of connected extension hosts",
		},
	)

	transportRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docfeat_transport_requests_total",
			Help: "Total number of requests sent to remote providers by outcome",
		},
		[]string{"feature", "outcome"},
	)

	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docfeat_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docfeat_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// InstrumentRegistries keeps the provider gauges and change counters of regs
// up to date until the returned subscription is unsubscribed.
func InstrumentRegistries(regs *features.Registries) registry.Subscription {
	var mu sync.Mutex
	seen := make(map[features.Feature]bool)

	return regs.SubscribeCounts(func(feature features.Feature, n int) {
		registeredProviders.WithLabelValues(string(feature)).Set(float64(n))

		mu.Lock()
		replay := !seen[feature]
		seen[feature] = true
		mu.Unlock()

		if !replay {
			providerSetChanges.WithLabelValues(string(feature)).Inc()
		}
	})
}

// ProviderError counts a failed provider invocation.
func ProviderError(feature features.Feature) {
	providerErrors.WithLabelValues(string(feature)).Inc()
}

// ConnectionOpened counts a newly connected extension host.
func ConnectionOpened() { transportConnections.Inc() }

// ConnectionClosed counts a disconnected extension host.
func ConnectionClosed() { transportConnections.Dec() }

// TransportRequest counts a request to a remote provider. outcome is one of
// "ok", "error", "timeout" or "closed".
func TransportRequest(feature features.Feature, outcome string) {
	transportRequests.WithLabelValues(string(feature), outcome).Inc()
}

// Handler serves the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware instruments HTTP requests with Prometheus metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(wrapped.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// Hijack is needed for WebSocket upgrades.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("%T does not support hijacking", s.ResponseWriter)
	}
	return hj.Hijack()
}
