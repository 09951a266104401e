// Package metrics exposes Prometheus metrics for the service.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP API
	HTTPRequestsTotal          *prometheus.CounterVec
	HTTPRequestDurationSeconds *prometheus.HistogramVec
	HTTPErrorsTotal            *prometheus.CounterVec
	AuthFailuresTotal          *prometheus.CounterVec

	// Tenants and databases
	TenantResolutionsTotal *prometheus.CounterVec
	DatabaseOpsTotal       *prometheus.CounterVec
	OpenHandles            prometheus.Gauge

	// Inventory activity
	ImportsTotal      prometheus.Counter
	ImportedRowsTotal prometheus.Counter
	MaintenanceTotal  prometheus.Counter
	ScansTotal        prometheus.Counter
	PredictionsTotal  *prometheus.CounterVec
	AuditEntriesTotal *prometheus.CounterVec

	// System
	UptimeSeconds  prometheus.Gauge
	Goroutines     prometheus.Gauge
	StateFileBytes prometheus.Gauge
	Sessions       prometheus.Gauge
	Tenants        prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "equiptrack_http_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "equiptrack_http_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "equiptrack_http_errors_total",
				Help: "Total number of API error responses",
			},
			[]string{"error_type"},
		),
		AuthFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "equiptrack_auth_failures_total",
				Help: "Total number of rejected credentials",
			},
			[]string{"reason"},
		),

		TenantResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "equiptrack_tenant_resolutions_total",
				Help: "Total number of identity resolutions",
			},
			[]string{"created"},
		),
		DatabaseOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "equiptrack_database_operations_total",
				Help: "Total number of database file operations",
			},
			[]string{"op"},
		),
		OpenHandles: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "equiptrack_sqlite_open_handles",
				Help: "Number of pooled SQLite handles",
			},
		),

		ImportsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "equiptrack_imports_total",
				Help: "Total number of table imports",
			},
		),
		ImportedRowsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "equiptrack_imported_rows_total",
				Help: "Total number of imported rows",
			},
		),
		MaintenanceTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "equiptrack_maintenance_records_total",
				Help: "Total number of maintenance records logged",
			},
		),
		ScansTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "equiptrack_scans_total",
				Help: "Total number of recorded scans",
			},
		),
		PredictionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "equiptrack_predictions_total",
				Help: "Total number of computed predictions by status",
			},
			[]string{"status"},
		),
		AuditEntriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "equiptrack_audit_entries_total",
				Help: "Total number of audit log entries written",
			},
			[]string{"action"},
		),

		UptimeSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "equiptrack_uptime_seconds",
				Help: "Server uptime in seconds",
			},
		),
		Goroutines: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "equiptrack_goroutines",
				Help: "Number of active goroutines",
			},
		),
		StateFileBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "equiptrack_state_file_bytes",
				Help: "BoltDB state file size in bytes",
			},
		),
		Sessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "equiptrack_sessions",
				Help: "Number of stored session states",
			},
		),
		Tenants: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "equiptrack_tenants",
				Help: "Number of known user records",
			},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDurationSeconds,
		m.HTTPErrorsTotal,
		m.AuthFailuresTotal,
		m.TenantResolutionsTotal,
		m.DatabaseOpsTotal,
		m.OpenHandles,
		m.ImportsTotal,
		m.ImportedRowsTotal,
		m.MaintenanceTotal,
		m.ScansTotal,
		m.PredictionsTotal,
		m.AuditEntriesTotal,
		m.UptimeSeconds,
		m.Goroutines,
		m.StateFileBytes,
		m.Sessions,
		m.Tenants,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetOpenHandles records the pooled handle count
func (m *Metrics) SetOpenHandles(n int) {
	m.OpenHandles.Set(float64(n))
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}
