package workspace

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// Audit actions written by mutating operations
const (
	ActionCreateDB       = "Create DB"
	ActionDeleteDB       = "Delete DB"
	ActionRenameDB       = "Rename DB"
	ActionImportTable    = "Import Table"
	ActionEditRow        = "Edit Row"
	ActionDeleteRow      = "Delete Row"
	ActionAddMaintenance = "Add Maintenance"
	ActionRecordScan     = "Record Scan"
	ActionUpdateSettings = "Update Maintenance Settings"
	ActionClearAuditLog  = "Clear Audit Log"
)

// AuditEntry is one audit_log row
type AuditEntry struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	User      string    `json:"user"`
	Detail    string    `json:"detail"`
}

// AuditFilter narrows ListAudit; zero fields match everything
type AuditFilter struct {
	User   string
	Action string
	Since  time.Time
	Until  time.Time
	Limit  uint64
}

// LogAudit appends an audit entry
func (d *DB) LogAudit(ctx context.Context, user, action, detail string) error {
	ts := d.now().UTC().Truncate(time.Second).Format(time.RFC3339)
	_, err := d.exec(ctx, d.db, d.sb.Insert(TableAudit).
		Columns("timestamp", "action", quoteIdent("user"), "detail").
		Values(ts, action, user, detail))
	if err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// ListAudit returns audit entries, newest first
func (d *DB) ListAudit(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	q := d.sb.Select("id", "timestamp", "action", quoteIdent("user"), "detail").
		From(TableAudit).
		OrderBy("timestamp DESC", "id DESC")
	if u := strings.TrimSpace(f.User); u != "" {
		q = q.Where(matchID("user", u))
	}
	if a := strings.TrimSpace(f.Action); a != "" {
		q = q.Where(matchID("action", a))
	}
	if !f.Since.IsZero() {
		q = q.Where(sq.GtOrEq{"timestamp": f.Since.UTC().Format(time.RFC3339)})
	}
	if !f.Until.IsZero() {
		q = q.Where(sq.LtOrEq{"timestamp": f.Until.UTC().Format(time.RFC3339)})
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	rows, err := d.query(ctx, d.db, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit log: %w", err)
	}
	defer rows.Close()

	entries := []AuditEntry{}
	for rows.Next() {
		var e AuditEntry
		var ts, action, user, detail sql.NullString
		if err := rows.Scan(&e.ID, &ts, &action, &user, &detail); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Timestamp, _ = parseTimestamp(ts.String)
		e.Action = action.String
		e.User = user.String
		e.Detail = detail.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ClearAudit deletes every audit entry and returns how many were removed
func (d *DB) ClearAudit(ctx context.Context) (int64, error) {
	res, err := d.exec(ctx, d.db, d.sb.Delete(TableAudit))
	if err != nil {
		return 0, fmt.Errorf("failed to clear audit log: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// AuditTable renders entries as a Table for CSV export
func AuditTable(entries []AuditEntry) *Table {
	t := &Table{Name: TableAudit, Columns: []string{"id", "timestamp", "action", "user", "detail"}}
	for _, e := range entries {
		t.Rows = append(t.Rows, Row{
			"id":        e.ID,
			"timestamp": e.Timestamp.Format(time.RFC3339),
			"action":    e.Action,
			"user":      e.User,
			"detail":    e.Detail,
		})
	}
	return t
}
