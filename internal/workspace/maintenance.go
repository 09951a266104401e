package workspace

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/foxzi/equiptrack/internal/predict"
)

// LastMaintenanceColumn is set on equipment rows when maintenance is logged
const LastMaintenanceColumn = "last_maintenance_date"

// MaintenanceRecord is one maintenance_log entry
type MaintenanceRecord struct {
	ID          int64     `json:"id"`
	EquipmentID string    `json:"equipment_id"`
	Description string    `json:"description"`
	Date        string    `json:"date"`
	Technician  string    `json:"technician"`
	LoggedAt    time.Time `json:"logged_at"`
}

// MaintenanceFilter narrows ListMaintenance; zero fields match everything
type MaintenanceFilter struct {
	EquipmentID string
	Technician  string
	From        time.Time
	To          time.Time
	Limit       uint64
}

// AddMaintenance logs rec and, when activeTable has an ID column, stamps
// last_maintenance_date on the matching equipment rows. Both writes share
// one transaction. Returns the new record and the number of equipment rows
// updated.
func (d *DB) AddMaintenance(ctx context.Context, activeTable string, rec MaintenanceRecord) (*MaintenanceRecord, int64, error) {
	rec.EquipmentID = strings.TrimSpace(rec.EquipmentID)
	rec.Technician = strings.TrimSpace(rec.Technician)
	if rec.EquipmentID == "" {
		return nil, 0, ErrMissingID
	}
	date, err := predict.ParseDate(rec.Date)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	rec.Date = date.Format(predict.DateLayout)
	rec.LoggedAt = d.now().UTC().Truncate(time.Second)

	if activeTable != "" {
		if err := ValidateTableName(activeTable); err != nil {
			return nil, 0, err
		}
	}

	var updated int64
	err = d.withTx(ctx, func(tx *sql.Tx) error {
		res, err := d.exec(ctx, tx, d.sb.Insert(TableMaintenance).
			Columns("equipment_id", "description", "date", "technician", "logged_at").
			Values(rec.EquipmentID, rec.Description, rec.Date, rec.Technician, rec.LoggedAt))
		if err != nil {
			return fmt.Errorf("failed to insert maintenance record: %w", err)
		}
		rec.ID, _ = res.LastInsertId()

		if activeTable == "" || isLogTable(activeTable) {
			return nil
		}
		name, err := d.tableName(ctx, tx, activeTable)
		if err != nil {
			return err
		}
		cols, err := d.columns(ctx, tx, name)
		if err != nil {
			return err
		}
		idCol := IDColumn(cols)
		if idCol == "" {
			return nil
		}
		if _, err := d.ensureColumns(ctx, tx, name, LastMaintenanceColumn); err != nil {
			return err
		}
		res, err = d.exec(ctx, tx, d.sb.Update(quoteIdent(name)).
			Set(quoteIdent(LastMaintenanceColumn), rec.Date).
			Where(matchID(idCol, rec.EquipmentID)))
		if err != nil {
			return fmt.Errorf("failed to update equipment row: %w", err)
		}
		updated, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return &rec, updated, nil
}

// ListMaintenance returns maintenance records, newest first
func (d *DB) ListMaintenance(ctx context.Context, f MaintenanceFilter) ([]MaintenanceRecord, error) {
	q := d.sb.Select("id", "equipment_id", "description", "date", "technician", "logged_at").
		From(TableMaintenance).
		OrderBy("date DESC", "id DESC")
	if id := strings.TrimSpace(f.EquipmentID); id != "" {
		q = q.Where(matchID("equipment_id", id))
	}
	if tech := strings.TrimSpace(f.Technician); tech != "" {
		q = q.Where(matchID("technician", tech))
	}
	if !f.From.IsZero() {
		q = q.Where(sq.GtOrEq{"date": f.From.Format(predict.DateLayout)})
	}
	if !f.To.IsZero() {
		q = q.Where(sq.LtOrEq{"date": f.To.Format(predict.DateLayout)})
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	rows, err := d.query(ctx, d.db, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list maintenance: %w", err)
	}
	defer rows.Close()

	records := []MaintenanceRecord{}
	for rows.Next() {
		var r MaintenanceRecord
		var desc, tech sql.NullString
		var loggedAt sql.NullTime
		if err := rows.Scan(&r.ID, &r.EquipmentID, &desc, &r.Date, &tech, &loggedAt); err != nil {
			return nil, fmt.Errorf("failed to scan maintenance record: %w", err)
		}
		r.Description = desc.String
		r.Technician = tech.String
		r.LoggedAt = loggedAt.Time
		records = append(records, r)
	}
	return records, rows.Err()
}

// LoadHistory returns every maintenance event as estimator input. Rows with
// a date that does not parse are skipped.
func (d *DB) LoadHistory(ctx context.Context) ([]predict.Record, error) {
	rows, err := d.query(ctx, d.db, d.sb.Select("equipment_id", "date").From(TableMaintenance))
	if err != nil {
		return nil, fmt.Errorf("failed to load maintenance history: %w", err)
	}
	defer rows.Close()

	var history []predict.Record
	for rows.Next() {
		var id, date sql.NullString
		if err := rows.Scan(&id, &date); err != nil {
			return nil, fmt.Errorf("failed to scan maintenance record: %w", err)
		}
		t, err := predict.ParseDate(date.String)
		if err != nil {
			continue
		}
		history = append(history, predict.Record{EquipmentID: id.String, Date: t})
	}
	return history, rows.Err()
}
