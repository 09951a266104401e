package metrics

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"
)

type mockStatsProvider struct {
	stats *Stats
}

func (m *mockStatsProvider) Stats(ctx context.Context) (*Stats, error) {
	return m.stats, nil
}

func openTestDB(t *testing.T, path string) *bolt.DB {
	t.Helper()
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	return db
}

func newTestCollector(t *testing.T, stats StatsProvider) *Collector {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.db")
	db := openTestDB(t, path)
	t.Cleanup(func() { db.Close() })

	c, err := NewCollector(db, New(), stats, path, 10*time.Second)
	if err != nil {
		t.Fatalf("Failed to create collector: %v", err)
	}
	return c
}

func TestNewCollector(t *testing.T) {
	stats := &mockStatsProvider{stats: &Stats{Tenants: 4, Sessions: 2}}
	c := newTestCollector(t, stats)

	c.Start(context.Background())

	if got := gaugeValue(t, c.metrics.Tenants); got != 4 {
		t.Errorf("Tenants = %f, want 4", got)
	}
	if got := gaugeValue(t, c.metrics.Sessions); got != 2 {
		t.Errorf("Sessions = %f, want 2", got)
	}
	if got := gaugeValue(t, c.metrics.StateFileBytes); got <= 0 {
		t.Errorf("StateFileBytes = %f, want > 0", got)
	}

	if err := c.Stop(); err != nil {
		t.Errorf("Failed to stop collector: %v", err)
	}
}

func TestCollectorPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	db := openTestDB(t, path)

	c, err := NewCollector(db, New(), nil, path, 10*time.Second)
	if err != nil {
		t.Fatalf("Failed to create collector: %v", err)
	}

	c.TrackHTTPRequest("GET", "/api/v1/tables/{table}", "200")
	c.TrackImport(12)
	c.TrackImport(3)
	c.TrackScan()
	c.TrackDatabaseOp("create")
	c.TrackPredictions(map[string]int{"Overdue": 2, "OK": 5})

	// Stop persists
	if err := c.Stop(); err != nil {
		t.Errorf("Failed to stop collector: %v", err)
	}
	db.Close()

	db2 := openTestDB(t, path)
	defer db2.Close()

	m2 := New()
	c2, err := NewCollector(db2, m2, nil, path, 10*time.Second)
	if err != nil {
		t.Fatalf("Failed to recreate collector: %v", err)
	}
	defer c2.Stop()

	if c2.shadow.ImportedRows != 15 {
		t.Errorf("ImportedRows = %f, want 15", c2.shadow.ImportedRows)
	}
	if got := counterValue(t, m2.ImportsTotal); got != 2 {
		t.Errorf("ImportsTotal = %f, want 2", got)
	}
	if got := counterValue(t, m2.PredictionsTotal.WithLabelValues("Overdue")); got != 2 {
		t.Errorf("PredictionsTotal{Overdue} = %f, want 2", got)
	}
	if got := counterValue(t, m2.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/tables/{table}", "200")); got != 1 {
		t.Errorf("HTTPRequestsTotal = %f, want 1", got)
	}
	if got := counterValue(t, m2.DatabaseOpsTotal.WithLabelValues("create")); got != 1 {
		t.Errorf("DatabaseOpsTotal{create} = %f, want 1", got)
	}
}

func TestCollectorTrackMethods(t *testing.T) {
	c := newTestCollector(t, nil)
	defer c.Stop()

	c.TrackHTTPError("server_error")
	if c.shadow.HTTPErrors["server_error"] != 1 {
		t.Error("TrackHTTPError failed")
	}

	c.TrackAuthFailure("invalid_token")
	if c.shadow.AuthFailures["invalid_token"] != 1 {
		t.Error("TrackAuthFailure failed")
	}

	c.TrackTenantResolution(true)
	c.TrackTenantResolution(false)
	c.TrackTenantResolution(false)
	if c.shadow.TenantResolutions["true"] != 1 || c.shadow.TenantResolutions["false"] != 2 {
		t.Errorf("TrackTenantResolution failed: %v", c.shadow.TenantResolutions)
	}

	c.TrackMaintenance()
	if c.shadow.MaintenanceRecords != 1 {
		t.Error("TrackMaintenance failed")
	}

	c.TrackAudit("Edit Row")
	if c.shadow.AuditEntries["Edit Row"] != 1 {
		t.Error("TrackAudit failed")
	}
	if got := counterValue(t, c.metrics.AuditEntriesTotal.WithLabelValues("Edit Row")); got != 1 {
		t.Errorf("AuditEntriesTotal = %f, want 1", got)
	}
}

func TestNilCollector(t *testing.T) {
	var c *Collector

	// None of these should panic
	c.TrackHTTPRequest("GET", "/", "200")
	c.TrackHTTPError("not_found")
	c.TrackAuthFailure("invalid_api_key")
	c.TrackTenantResolution(true)
	c.TrackDatabaseOp("delete")
	c.TrackImport(1)
	c.TrackMaintenance()
	c.TrackScan()
	c.TrackPredictions(map[string]int{"OK": 1})
	c.TrackAudit("Create DB")

	if c.Metrics() != nil {
		t.Error("Metrics() on nil collector should be nil")
	}
}

func TestLabelKeyHelpers(t *testing.T) {
	tripleKey := makeTripleLabelKey("GET", "/api", "200")
	m, p, s := splitTripleLabelKey(tripleKey)
	if m != "GET" || p != "/api" || s != "200" {
		t.Errorf("Expected (GET, /api, 200), got (%s, %s, %s)", m, p, s)
	}

	m, p, s = splitTripleLabelKey("GET")
	if m != "GET" || p != "" || s != "" {
		t.Errorf("Expected (GET, , ), got (%s, %s, %s)", m, p, s)
	}
}
