package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var metric dto.Metric
	if err := c.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	return metric.Counter.GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var metric dto.Metric
	if err := g.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	return metric.Gauge.GetValue()
}

func TestNew(t *testing.T) {
	m := New()
	if m == nil {
		t.Fatal("New() returned nil")
	}

	if m.Registry() == nil {
		t.Error("Registry() returned nil")
	}

	// Vectors only show up once a label set is used
	m.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/me", "200").Inc()
	m.DatabaseOpsTotal.WithLabelValues("create").Inc()

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	names := make(map[string]bool)
	for _, f := range families {
		if !strings.HasPrefix(f.GetName(), "equiptrack_") {
			t.Errorf("metric %q lacks the equiptrack_ prefix", f.GetName())
		}
		names[f.GetName()] = true
	}

	for _, want := range []string{
		"equiptrack_http_requests_total",
		"equiptrack_database_operations_total",
		"equiptrack_sqlite_open_handles",
		"equiptrack_imports_total",
		"equiptrack_scans_total",
		"equiptrack_uptime_seconds",
		"equiptrack_sessions",
		"equiptrack_tenants",
	} {
		if !names[want] {
			t.Errorf("metric %q not registered", want)
		}
	}
}

func TestGlobalMetrics(t *testing.T) {
	// Initially global should be nil
	if Global() != nil {
		t.Error("Global() should be nil before SetGlobal")
	}

	m := New()
	SetGlobal(m)

	if Global() != m {
		t.Error("Global() did not return the set metrics")
	}

	SetGlobal(nil)
}

func TestSetOpenHandles(t *testing.T) {
	m := New()

	m.SetOpenHandles(3)
	if got := gaugeValue(t, m.OpenHandles); got != 3 {
		t.Errorf("OpenHandles = %f, want 3", got)
	}

	m.SetOpenHandles(0)
	if got := gaugeValue(t, m.OpenHandles); got != 0 {
		t.Errorf("OpenHandles = %f, want 0", got)
	}
}
