package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandler_nilMetrics(t *testing.T) {
	var m *Metrics
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	m.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if got := rr.Body.String(); !strings.Contains(got, "metrics unavailable") {
		t.Fatalf("expected body to mention metrics unavailable, got %q", got)
	}
}

func TestNilMetricsMethodsAreNoOps(t *testing.T) {
	var m *Metrics
	m.ObserveHTTPRequest(http.MethodGet, "/", http.StatusOK, time.Millisecond)
	m.IncFirewallAction("block", "success")
	m.SetSyncSessions(3)
	m.IncSyncEvent()
	m.IncDroppedSession()
	m.IncDiscoveryRun()
	m.ObserveDiscoveryRunDuration(time.Second)
	m.IncDetectionAlert()
}

func TestHandler_exposesRegisteredMetrics(t *testing.T) {
	m := New()
	m.ObserveHTTPRequest(http.MethodGet, "/readyz", http.StatusOK, 12*time.Millisecond)
	m.IncFirewallAction("block", "success")
	m.SetSyncSessions(2)
	m.IncSyncEvent()
	m.IncDiscoveryRun()
	m.ObserveDiscoveryRunDuration(3 * time.Second)
	m.IncDetectionAlert()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	m.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	body := rr.Body.String()
	if !strings.Contains(body, "netctl_http_requests_total{method=\"GET\",path=\"/readyz\",status=\"200\"} 1") {
		t.Fatalf("expected labeled request counter to be incremented; body=%s", body)
	}
	if !strings.Contains(body, "netctl_firewall_actions_total{kind=\"block\",outcome=\"success\"} 1") {
		t.Fatalf("expected firewall action counter to be incremented; body=%s", body)
	}
	if !strings.Contains(body, "netctl_sync_sessions 2") {
		t.Fatalf("expected session gauge to be set; body=%s", body)
	}
	if !strings.Contains(body, "netctl_sync_events_total 1") {
		t.Fatalf("expected sync event counter to be incremented; body=%s", body)
	}
	if !strings.Contains(body, "netctl_discovery_runs_total 1") {
		t.Fatalf("expected discovery runs counter to be incremented; body=%s", body)
	}
	if !strings.Contains(body, "netctl_discovery_run_duration_seconds_count 1") {
		t.Fatalf("expected discovery run duration histogram to have one observation; body=%s", body)
	}
	if !strings.Contains(body, "netctl_detection_alerts_total 1") {
		t.Fatalf("expected detection alert counter to be incremented; body=%s", body)
	}
}
