package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docsplatform"

// UnmatchedRoute labels requests that did not match a registered route.
const UnmatchedRoute = "unmatched"

// Recorder owns a Prometheus registry with the API's collectors. Each
// Recorder is independent so tests can assert on a fresh instance.
type Recorder struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	buildTriggers   *prometheus.CounterVec
	imports         *prometheus.CounterVec
}

var (
	defaultMu       sync.RWMutex
	defaultRecorder = New()
)

// New constructs a Recorder registered against a fresh registry that also
// carries the Go runtime and process collectors.
func New() *Recorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)
	return &Recorder{
		registry: registry,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests processed by the API",
		}, []string{"method", "route", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		buildTriggers: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "build_triggers_total",
			Help:      "Build trigger decisions by outcome",
		}, []string{"outcome"}),
		imports: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "project_imports_total",
			Help:      "Project import finishing runs by outcome",
		}, []string{"outcome"}),
	}
}

// Default returns the process-wide Recorder.
func Default() *Recorder {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultRecorder
}

// SetDefault replaces the process-wide Recorder. Nil is ignored.
func SetDefault(recorder *Recorder) {
	if recorder == nil {
		return
	}
	defaultMu.Lock()
	defaultRecorder = recorder
	defaultMu.Unlock()
}

// Registry exposes the underlying registry for additional collectors.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveRequest records one request against its route pattern.
func (r *Recorder) ObserveRequest(method, route string, status int, duration time.Duration) {
	if route == "" {
		route = UnmatchedRoute
	}
	method = strings.ToUpper(method)
	r.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	r.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveBuildTrigger counts a build gateway decision.
func (r *Recorder) ObserveBuildTrigger(outcome string) {
	r.buildTriggers.WithLabelValues(normalizeName(outcome)).Inc()
}

// ObserveImport counts an import finishing run.
func (r *Recorder) ObserveImport(outcome string) {
	r.imports.WithLabelValues(normalizeName(outcome)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

type routeKey struct{}

type routeHolder struct {
	mu    sync.Mutex
	route string
}

// withRouteHolder prepares ctx to receive the matched route from an inner
// handler.
func withRouteHolder(ctx context.Context) (context.Context, *routeHolder) {
	holder := &routeHolder{}
	return context.WithValue(ctx, routeKey{}, holder), holder
}

// SetRoute records the matched route pattern for the surrounding
// HTTPMiddleware. It is a no-op outside the middleware.
func SetRoute(ctx context.Context, route string) {
	holder, ok := ctx.Value(routeKey{}).(*routeHolder)
	if !ok || route == "" {
		return
	}
	holder.mu.Lock()
	holder.route = route
	holder.mu.Unlock()
}

func (h *routeHolder) value() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.route
}

func normalizeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

// ObserveRequest is a helper on the default recorder.
func ObserveRequest(method, route string, status int, duration time.Duration) {
	Default().ObserveRequest(method, route, status, duration)
}

// ObserveBuildTrigger is a helper on the default recorder.
func ObserveBuildTrigger(outcome string) {
	Default().ObserveBuildTrigger(outcome)
}

// ObserveImport is a helper on the default recorder.
func ObserveImport(outcome string) {
	Default().ObserveImport(outcome)
}

// Handler exposes the default recorder as an HTTP handler.
func Handler() http.Handler {
	return Default().Handler()
}
