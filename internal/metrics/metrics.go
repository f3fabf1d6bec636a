package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes application metrics that are safe to scrape via Prometheus.
type Metrics struct {
	registry             *prometheus.Registry
	httpRequests         *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	firewallActions      *prometheus.CounterVec
	syncSessions         prometheus.Gauge
	syncEventsTotal      prometheus.Counter
	syncDroppedSessions  prometheus.Counter
	discoveryRunsTotal   prometheus.Counter
	discoveryRunDuration prometheus.Histogram
	detectionAlertsTotal prometheus.Counter
}

// New creates a fresh Metrics registry with HTTP, firewall, sync, and
// discovery metrics registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "netctl",
		Name:      "http_requests_total",
		Help:      "Count of HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "netctl",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests served",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	firewallActions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "netctl",
		Name:      "firewall_actions_total",
		Help:      "Firewall actions attempted, by kind and outcome",
	}, []string{"kind", "outcome"})

	syncSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "netctl",
		Name:      "sync_sessions",
		Help:      "Number of currently streaming admin sessions",
	})

	syncEventsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "netctl",
		Name:      "sync_events_total",
		Help:      "Total sync events broadcast to admin sessions",
	})

	syncDroppedSessions := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "netctl",
		Name:      "sync_dropped_sessions_total",
		Help:      "Sessions disconnected because their outbound queue overflowed",
	})

	discoveryRunsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "netctl",
		Name:      "discovery_runs_total",
		Help:      "Total number of discovery sweeps processed",
	})

	discoveryRunDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "netctl",
		Name:      "discovery_run_duration_seconds",
		Help:      "Duration of discovery sweeps from start to finish",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	detectionAlertsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "netctl",
		Name:      "detection_alerts_total",
		Help:      "Alerts ingested from the detection feed",
	})

	registry.MustRegister(
		httpRequests,
		httpRequestDuration,
		firewallActions,
		syncSessions,
		syncEventsTotal,
		syncDroppedSessions,
		discoveryRunsTotal,
		discoveryRunDuration,
		detectionAlertsTotal,
	)

	return &Metrics{
		registry:             registry,
		httpRequests:         httpRequests,
		httpRequestDuration:  httpRequestDuration,
		firewallActions:      firewallActions,
		syncSessions:         syncSessions,
		syncEventsTotal:      syncEventsTotal,
		syncDroppedSessions:  syncDroppedSessions,
		discoveryRunsTotal:   discoveryRunsTotal,
		discoveryRunDuration: discoveryRunDuration,
		detectionAlertsTotal: detectionAlertsTotal,
	}
}

// ObserveHTTPRequest records a single HTTP request/response cycle.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"path":   path,
		"status": strconv.Itoa(status),
	}
	m.httpRequests.With(labels).Inc()
	m.httpRequestDuration.With(labels).Observe(duration.Seconds())
}

// IncFirewallAction records one attempted firewall action.
func (m *Metrics) IncFirewallAction(kind, outcome string) {
	if m == nil {
		return
	}
	m.firewallActions.With(prometheus.Labels{"kind": kind, "outcome": outcome}).Inc()
}

// SetSyncSessions sets the current streaming session gauge.
func (m *Metrics) SetSyncSessions(n int) {
	if m == nil {
		return
	}
	m.syncSessions.Set(float64(n))
}

// IncSyncEvent counts one broadcast event.
func (m *Metrics) IncSyncEvent() {
	if m == nil {
		return
	}
	m.syncEventsTotal.Inc()
}

// IncDroppedSession counts one session disconnected on queue overflow.
func (m *Metrics) IncDroppedSession() {
	if m == nil {
		return
	}
	m.syncDroppedSessions.Inc()
}

// IncDiscoveryRun increments the discovery sweep counter.
func (m *Metrics) IncDiscoveryRun() {
	if m == nil {
		return
	}
	m.discoveryRunsTotal.Inc()
}

// ObserveDiscoveryRunDuration observes a discovery sweep duration.
func (m *Metrics) ObserveDiscoveryRunDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.discoveryRunDuration.Observe(duration.Seconds())
}

// IncDetectionAlert counts one ingested detection alert.
func (m *Metrics) IncDetectionAlert() {
	if m == nil {
		return
	}
	m.detectionAlertsTotal.Inc()
}

// Handler exposes the Prometheus registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics unavailable"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
