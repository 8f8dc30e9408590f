package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets  = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	storeDurationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	bodySizeBuckets      = []float64{100, 1024, 10240, 102400, 1048576}
)

// Metrics holds all Prometheus metric instruments for the service.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestSizeBytes  *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Interaction metrics
	InteractionsTotal       *prometheus.CounterVec
	CommandsDispatchedTotal *prometheus.CounterVec
	CooldownNoticesTotal    prometheus.Counter
	DropsTotal              *prometheus.CounterVec

	// Cache metrics
	ResolverCacheHitsTotal     prometheus.Counter
	ResolverCacheMissesTotal   prometheus.Counter
	CapabilityCacheHitsTotal   prometheus.Counter
	CapabilityCacheMissesTotal prometheus.Counter

	// Inventory metrics
	InventorySavesTotal   *prometheus.CounterVec
	InventorySaveDuration prometheus.Histogram
	InventoryTrackedUsers prometheus.Gauge

	// System metrics
	CatalogReloadTotal *prometheus.CounterVec
	DefinitionsLoaded  prometheus.Gauge
	CatalogsLoaded     prometheus.Gauge
	HostConnections    prometheus.Gauge
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coreitems_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coreitems_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPRequestSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coreitems_http_request_size_bytes",
			Help:    "HTTP request body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coreitems_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		// Interactions
		InteractionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coreitems_interactions_total",
			Help: "Total number of host interactions by outcome.",
		}, []string{"action", "outcome"}),
		CommandsDispatchedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coreitems_commands_dispatched_total",
			Help: "Total number of dispatched commands.",
		}, []string{"dispatcher", "status"}),
		CooldownNoticesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coreitems_cooldown_notices_total",
			Help: "Total cooldown messages sent to users.",
		}),
		DropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coreitems_drops_total",
			Help: "Total drop attempts of custom items.",
		}, []string{"allowed"}),

		// Cache
		ResolverCacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coreitems_resolver_cache_hits_total",
			Help: "Total resolver cache hits.",
		}),
		ResolverCacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coreitems_resolver_cache_misses_total",
			Help: "Total resolver cache misses.",
		}),
		CapabilityCacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coreitems_capability_cache_hits_total",
			Help: "Total capability cache hits.",
		}),
		CapabilityCacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coreitems_capability_cache_misses_total",
			Help: "Total capability cache misses.",
		}),

		// Inventory
		InventorySavesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coreitems_inventory_saves_total",
			Help: "Total inventory snapshot saves.",
		}, []string{"status"}),
		InventorySaveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "coreitems_inventory_save_duration_seconds",
			Help:    "Inventory snapshot save duration in seconds.",
			Buckets: storeDurationBuckets,
		}),
		InventoryTrackedUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "coreitems_inventory_tracked_users",
			Help: "Number of users with tracked custom items.",
		}),

		// System
		CatalogReloadTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coreitems_catalog_reload_total",
			Help: "Total catalog reloads.",
		}, []string{"status"}),
		DefinitionsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "coreitems_definitions_loaded",
			Help: "Number of loaded item definitions.",
		}),
		CatalogsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "coreitems_catalogs_loaded",
			Help: "Number of loaded catalogs.",
		}),
		HostConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "coreitems_host_connections",
			Help: "Number of open host bridge connections.",
		}),
	}

	reg.MustRegister(
		// HTTP
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSizeBytes,
		m.HTTPResponseSizeBytes,
		// Interactions
		m.InteractionsTotal,
		m.CommandsDispatchedTotal,
		m.CooldownNoticesTotal,
		m.DropsTotal,
		// Cache
		m.ResolverCacheHitsTotal,
		m.ResolverCacheMissesTotal,
		m.CapabilityCacheHitsTotal,
		m.CapabilityCacheMissesTotal,
		// Inventory
		m.InventorySavesTotal,
		m.InventorySaveDuration,
		m.InventoryTrackedUsers,
		// System
		m.CatalogReloadTotal,
		m.DefinitionsLoaded,
		m.CatalogsLoaded,
		m.HostConnections,
	)

	return m
}

// --- Recording helpers ---
//
// Every helper is safe to call on a nil *Metrics so components can run
// without instrumentation in tests.

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, reqSize, respSize int) {
	if m == nil {
		return
	}
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPRequestSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(reqSize))
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordInteraction records the outcome of one host interaction.
func (m *Metrics) RecordInteraction(action, outcome string) {
	if m == nil {
		return
	}
	m.InteractionsTotal.WithLabelValues(action, outcome).Inc()
}

// RecordCommandDispatch records a command handed to a dispatcher.
func (m *Metrics) RecordCommandDispatch(dispatcher, status string) {
	if m == nil {
		return
	}
	m.CommandsDispatchedTotal.WithLabelValues(dispatcher, status).Inc()
}

// RecordCooldownNotice records a cooldown message that passed the throttle.
func (m *Metrics) RecordCooldownNotice() {
	if m == nil {
		return
	}
	m.CooldownNoticesTotal.Inc()
}

// RecordDrop records a drop attempt of a custom item.
func (m *Metrics) RecordDrop(allowed bool) {
	if m == nil {
		return
	}
	m.DropsTotal.WithLabelValues(strconv.FormatBool(allowed)).Inc()
}

// RecordResolverCacheHit records a resolver cache hit.
func (m *Metrics) RecordResolverCacheHit() {
	if m == nil {
		return
	}
	m.ResolverCacheHitsTotal.Inc()
}

// RecordResolverCacheMiss records a resolver cache miss.
func (m *Metrics) RecordResolverCacheMiss() {
	if m == nil {
		return
	}
	m.ResolverCacheMissesTotal.Inc()
}

// RecordCapabilityCacheHit records a capability cache hit.
func (m *Metrics) RecordCapabilityCacheHit() {
	if m == nil {
		return
	}
	m.CapabilityCacheHitsTotal.Inc()
}

// RecordCapabilityCacheMiss records a capability cache miss.
func (m *Metrics) RecordCapabilityCacheMiss() {
	if m == nil {
		return
	}
	m.CapabilityCacheMissesTotal.Inc()
}

// RecordInventorySave records an inventory snapshot save.
func (m *Metrics) RecordInventorySave(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.InventorySavesTotal.WithLabelValues(status).Inc()
	m.InventorySaveDuration.Observe(duration.Seconds())
}

// SetInventoryTrackedUsers sets the number of users with tracked items.
func (m *Metrics) SetInventoryTrackedUsers(count int) {
	if m == nil {
		return
	}
	m.InventoryTrackedUsers.Set(float64(count))
}

// RecordCatalogReload records a catalog reload.
func (m *Metrics) RecordCatalogReload(status string) {
	if m == nil {
		return
	}
	m.CatalogReloadTotal.WithLabelValues(status).Inc()
}

// SetCatalogsLoaded sets the catalog and definition gauges.
func (m *Metrics) SetCatalogsLoaded(catalogs, definitions int) {
	if m == nil {
		return
	}
	m.CatalogsLoaded.Set(float64(catalogs))
	m.DefinitionsLoaded.Set(float64(definitions))
}

// HostConnected increments the open host connection gauge.
func (m *Metrics) HostConnected() {
	if m == nil {
		return
	}
	m.HostConnections.Inc()
}

// HostDisconnected decrements the open host connection gauge.
func (m *Metrics) HostDisconnected() {
	if m == nil {
		return
	}
	m.HostConnections.Dec()
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := newResponseRecorder(w)

		next.ServeHTTP(sw, r)

		duration := time.Since(start)
		pathPattern := routePattern(r)
		reqSize := 0
		if r.ContentLength > 0 {
			reqSize = int(r.ContentLength)
		}

		m.RecordHTTPRequest(r.Method, pathPattern, sw.status, duration, reqSize, sw.bytes)
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	// chi route patterns have trailing /*, remove it.
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// responseRecorder captures the status and body size. The metrics and tracing
// middleware both use it.
type responseRecorder struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

func newResponseRecorder(w http.ResponseWriter) *responseRecorder {
	return &responseRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (w *responseRecorder) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseRecorder) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Unwrap exposes the underlying writer so websocket upgrades can hijack it.
func (w *responseRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
