package metrics

import (
	"context"
	"encoding/json"
	"os"
	"runtime"
	"strconv"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Stats contains state counts for the system gauges
type Stats struct {
	Tenants  int
	Sessions int
}

// StatsProvider provides state counts for metrics
type StatsProvider interface {
	Stats(ctx context.Context) (*Stats, error)
}

var bucketMetrics = []byte("metrics")

// ShadowCounters stores counter values for persistence
type ShadowCounters struct {
	HTTPRequests       map[string]float64 `json:"http_requests"`
	HTTPErrors         map[string]float64 `json:"http_errors"`
	AuthFailures       map[string]float64 `json:"auth_failures"`
	TenantResolutions  map[string]float64 `json:"tenant_resolutions"`
	DatabaseOps        map[string]float64 `json:"database_ops"`
	Predictions        map[string]float64 `json:"predictions"`
	AuditEntries       map[string]float64 `json:"audit_entries"`
	Imports            float64            `json:"imports"`
	ImportedRows       float64            `json:"imported_rows"`
	MaintenanceRecords float64            `json:"maintenance_records"`
	Scans              float64            `json:"scans"`
}

func newShadowCounters() ShadowCounters {
	return ShadowCounters{
		HTTPRequests:      make(map[string]float64),
		HTTPErrors:        make(map[string]float64),
		AuthFailures:      make(map[string]float64),
		TenantResolutions: make(map[string]float64),
		DatabaseOps:       make(map[string]float64),
		Predictions:       make(map[string]float64),
		AuditEntries:      make(map[string]float64),
	}
}

// Collector handles metrics persistence and system gauge updates.
// A nil *Collector is valid and records nothing.
type Collector struct {
	db            *bolt.DB
	metrics       *Metrics
	stats         StatsProvider
	storagePath   string
	flushInterval time.Duration
	startTime     time.Time

	shadow ShadowCounters
	mu     sync.Mutex
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewCollector creates a new metrics collector
func NewCollector(db *bolt.DB, m *Metrics, stats StatsProvider, storagePath string, flushInterval time.Duration) (*Collector, error) {
	if flushInterval == 0 {
		flushInterval = 10 * time.Second
	}

	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketMetrics)
		return err
	})
	if err != nil {
		return nil, err
	}

	c := &Collector{
		db:            db,
		metrics:       m,
		stats:         stats,
		storagePath:   storagePath,
		flushInterval: flushInterval,
		startTime:     time.Now(),
		shadow:        newShadowCounters(),
		stopCh:        make(chan struct{}),
	}

	if err := c.loadCounters(); err != nil {
		return nil, err
	}

	return c, nil
}

// Metrics returns the underlying metric set
func (c *Collector) Metrics() *Metrics {
	if c == nil {
		return nil
	}
	return c.metrics
}

// Start begins the collector background tasks
func (c *Collector) Start(ctx context.Context) {
	c.collectSystemMetrics(ctx)
	c.wg.Add(2)
	go c.persistLoop(ctx)
	go c.updateSystemMetrics(ctx)
}

// Stop stops the collector and persists final values
func (c *Collector) Stop() error {
	close(c.stopCh)
	c.wg.Wait()
	return c.persistCounters()
}

// loadCounters loads persisted counter values from BoltDB
func (c *Collector) loadCounters() error {
	return c.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketMetrics)
		if bucket == nil {
			return nil
		}

		data := bucket.Get([]byte("counters"))
		if data == nil {
			return nil
		}

		var shadow ShadowCounters
		if err := json.Unmarshal(data, &shadow); err != nil {
			return nil // Skip invalid data
		}

		c.mu.Lock()
		defer c.mu.Unlock()

		for k, v := range shadow.HTTPRequests {
			method, path, status := splitTripleLabelKey(k)
			c.shadow.HTTPRequests[k] = v
			c.metrics.HTTPRequestsTotal.WithLabelValues(method, path, status).Add(v)
		}
		restoreVec(shadow.HTTPErrors, c.shadow.HTTPErrors, c.metrics.HTTPErrorsTotal.WithLabelValues)
		restoreVec(shadow.AuthFailures, c.shadow.AuthFailures, c.metrics.AuthFailuresTotal.WithLabelValues)
		restoreVec(shadow.TenantResolutions, c.shadow.TenantResolutions, c.metrics.TenantResolutionsTotal.WithLabelValues)
		restoreVec(shadow.DatabaseOps, c.shadow.DatabaseOps, c.metrics.DatabaseOpsTotal.WithLabelValues)
		restoreVec(shadow.Predictions, c.shadow.Predictions, c.metrics.PredictionsTotal.WithLabelValues)
		restoreVec(shadow.AuditEntries, c.shadow.AuditEntries, c.metrics.AuditEntriesTotal.WithLabelValues)

		c.shadow.Imports = shadow.Imports
		c.shadow.ImportedRows = shadow.ImportedRows
		c.shadow.MaintenanceRecords = shadow.MaintenanceRecords
		c.shadow.Scans = shadow.Scans
		c.metrics.ImportsTotal.Add(shadow.Imports)
		c.metrics.ImportedRowsTotal.Add(shadow.ImportedRows)
		c.metrics.MaintenanceTotal.Add(shadow.MaintenanceRecords)
		c.metrics.ScansTotal.Add(shadow.Scans)

		return nil
	})
}

func restoreVec[C interface{ Add(float64) }](from, into map[string]float64, counter func(...string) C) {
	for k, v := range from {
		into[k] = v
		counter(k).Add(v)
	}
}

// persistCounters saves counter values to BoltDB
func (c *Collector) persistCounters() error {
	c.mu.Lock()
	data, err := json.Marshal(c.shadow)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	return c.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketMetrics)
		if bucket == nil {
			return nil
		}
		return bucket.Put([]byte("counters"), data)
	})
}

// persistLoop periodically persists counter values
func (c *Collector) persistLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.persistCounters()
		}
	}
}

// updateSystemMetrics periodically updates system gauges
func (c *Collector) updateSystemMetrics(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.collectSystemMetrics(ctx)
		}
	}
}

// collectSystemMetrics collects current system state
func (c *Collector) collectSystemMetrics(ctx context.Context) {
	c.metrics.UptimeSeconds.Set(time.Since(c.startTime).Seconds())
	c.metrics.Goroutines.Set(float64(runtime.NumGoroutine()))

	if c.storagePath != "" {
		if info, err := os.Stat(c.storagePath); err == nil {
			c.metrics.StateFileBytes.Set(float64(info.Size()))
		}
	}

	if c.stats != nil {
		stats, err := c.stats.Stats(ctx)
		if err == nil {
			c.metrics.Tenants.Set(float64(stats.Tenants))
			c.metrics.Sessions.Set(float64(stats.Sessions))
		}
	}
}

// TrackHTTPRequest tracks an API request and updates shadow counter
func (c *Collector) TrackHTTPRequest(method, path, status string) {
	if c == nil {
		return
	}
	key := makeTripleLabelKey(method, path, status)
	c.mu.Lock()
	c.shadow.HTTPRequests[key]++
	c.mu.Unlock()
	c.metrics.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
}

// TrackHTTPError tracks an API error and updates shadow counter
func (c *Collector) TrackHTTPError(errorType string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.shadow.HTTPErrors[errorType]++
	c.mu.Unlock()
	c.metrics.HTTPErrorsTotal.WithLabelValues(errorType).Inc()
}

// TrackAuthFailure tracks a rejected credential
func (c *Collector) TrackAuthFailure(reason string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.shadow.AuthFailures[reason]++
	c.mu.Unlock()
	c.metrics.AuthFailuresTotal.WithLabelValues(reason).Inc()
}

// TrackTenantResolution tracks a resolve; created marks a first access
func (c *Collector) TrackTenantResolution(created bool) {
	if c == nil {
		return
	}
	label := strconv.FormatBool(created)
	c.mu.Lock()
	c.shadow.TenantResolutions[label]++
	c.mu.Unlock()
	c.metrics.TenantResolutionsTotal.WithLabelValues(label).Inc()
}

// TrackDatabaseOp tracks a create, delete or rename of a database file
func (c *Collector) TrackDatabaseOp(op string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.shadow.DatabaseOps[op]++
	c.mu.Unlock()
	c.metrics.DatabaseOpsTotal.WithLabelValues(op).Inc()
}

// TrackImport tracks a table import of rows rows
func (c *Collector) TrackImport(rows int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.shadow.Imports++
	c.shadow.ImportedRows += float64(rows)
	c.mu.Unlock()
	c.metrics.ImportsTotal.Inc()
	c.metrics.ImportedRowsTotal.Add(float64(rows))
}

// TrackMaintenance tracks a logged maintenance record
func (c *Collector) TrackMaintenance() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.shadow.MaintenanceRecords++
	c.mu.Unlock()
	c.metrics.MaintenanceTotal.Inc()
}

// TrackScan tracks a recorded scan
func (c *Collector) TrackScan() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.shadow.Scans++
	c.mu.Unlock()
	c.metrics.ScansTotal.Inc()
}

// TrackPredictions tracks computed predictions keyed by status
func (c *Collector) TrackPredictions(byStatus map[string]int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	for status, n := range byStatus {
		c.shadow.Predictions[status] += float64(n)
	}
	c.mu.Unlock()
	for status, n := range byStatus {
		c.metrics.PredictionsTotal.WithLabelValues(status).Add(float64(n))
	}
}

// TrackAudit tracks a written audit entry
func (c *Collector) TrackAudit(action string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.shadow.AuditEntries[action]++
	c.mu.Unlock()
	c.metrics.AuditEntriesTotal.WithLabelValues(action).Inc()
}

// Helper functions for label key serialization
func makeTripleLabelKey(a, b, c string) string {
	return a + "|" + b + "|" + c
}

func splitTripleLabelKey(key string) (string, string, string) {
	parts := make([]string, 0, 3)
	start := 0
	for i := 0; i < len(key); i++ {
		if key[i] == '|' {
			parts = append(parts, key[start:i])
			start = i + 1
		}
	}
	parts = append(parts, key[start:])

	if len(parts) >= 3 {
		return parts[0], parts[1], parts[2]
	}
	if len(parts) == 2 {
		return parts[0], parts[1], ""
	}
	if len(parts) == 1 {
		return parts[0], "", ""
	}
	return "", "", ""
}
