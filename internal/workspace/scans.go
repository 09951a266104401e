package workspace

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Scan is one recorded barcode or QR scan
type Scan struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	ScannedBy string    `json:"scanned_by"`
	Location  string    `json:"location"`
	Timestamp time.Time `json:"timestamp"`
}

// RecordScan stores a decoded code
func (d *DB) RecordScan(ctx context.Context, code, scannedBy, location string) (*Scan, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("%w: code is required", ErrInvalidInput)
	}
	s := &Scan{
		ID:        uuid.New().String(),
		Code:      code,
		ScannedBy: scannedBy,
		Location:  strings.TrimSpace(location),
		Timestamp: d.now().UTC().Truncate(time.Second),
	}

	_, err := d.exec(ctx, d.db, d.sb.Insert(TableScans).
		Columns("id", "code", "scanned_by", "location", "timestamp").
		Values(s.ID, s.Code, s.ScannedBy, s.Location, s.Timestamp.Format(time.RFC3339)))
	if err != nil {
		return nil, fmt.Errorf("failed to record scan: %w", err)
	}
	return s, nil
}

// ListScans returns recent scans, newest first. limit 0 returns all.
func (d *DB) ListScans(ctx context.Context, limit uint64) ([]Scan, error) {
	q := d.sb.Select("id", "code", "scanned_by", "location", "timestamp").
		From(TableScans).
		OrderBy("timestamp DESC", "rowid DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	rows, err := d.query(ctx, d.db, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}
	defer rows.Close()

	scans := []Scan{}
	for rows.Next() {
		var s Scan
		var id, by, loc, ts sql.NullString
		if err := rows.Scan(&id, &s.Code, &by, &loc, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan scan record: %w", err)
		}
		s.ID = id.String
		s.ScannedBy = by.String
		s.Location = loc.String
		s.Timestamp, _ = parseTimestamp(ts.String)
		scans = append(scans, s)
	}
	return scans, rows.Err()
}

// parseTimestamp reads timestamps written by this package or by older
// tooling that stored a space-separated form
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999", "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}
