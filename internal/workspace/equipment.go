package workspace

import (
	"context"
	"fmt"
	"time"

	"github.com/foxzi/equiptrack/internal/predict"
)

// LoadEquipment reads table as estimator input. The table must have an ID
// column; the type column is optional.
func (d *DB) LoadEquipment(ctx context.Context, table string) ([]predict.Equipment, error) {
	t, err := d.LoadTable(ctx, table)
	if err != nil {
		return nil, err
	}
	return EquipmentFromTable(t)
}

// EquipmentFromTable extracts id and type from each row of t
func EquipmentFromTable(t *Table) ([]predict.Equipment, error) {
	idCol := IDColumn(t.Columns)
	if idCol == "" {
		return nil, fmt.Errorf("%s: %w", t.Name, ErrNoIDColumn)
	}
	typeCol := TypeColumn(t.Columns)

	equipment := make([]predict.Equipment, 0, len(t.Rows))
	for i := range t.Rows {
		eq := predict.Equipment{ID: t.String(i, idCol)}
		if typeCol != "" {
			eq.Type = t.String(i, typeCol)
		}
		equipment = append(equipment, eq)
	}
	return equipment, nil
}

// Predict runs the estimator over table using the maintenance log as history.
// intervals maps equipment type to configured days for this table.
func (d *DB) Predict(ctx context.Context, table string, intervals map[string]int, today time.Time, opts predict.Options) ([]predict.Prediction, error) {
	equipment, err := d.LoadEquipment(ctx, table)
	if err != nil {
		return nil, err
	}
	history, err := d.LoadHistory(ctx)
	if err != nil {
		return nil, err
	}
	return predict.Estimate(equipment, history, intervals, today, opts), nil
}

// PredictionsTable renders predictions as a Table for CSV export
func PredictionsTable(preds []predict.Prediction) *Table {
	t := &Table{
		Name: "predictions",
		Columns: []string{
			"equipment_id", "equipment_type", "last_maintenance", "interval_days",
			"observed_interval_days", "next_due", "days_remaining", "status",
		},
	}
	for _, p := range preds {
		row := Row{
			"equipment_id":   p.EquipmentID,
			"equipment_type": p.EquipmentType,
			"interval_days":  int64(p.IntervalDays),
			"status":         string(p.Status),
		}
		if p.LastMaintenance != nil {
			row["last_maintenance"] = p.LastMaintenance.Format(predict.DateLayout)
		}
		if p.ObservedInterval != nil {
			row["observed_interval_days"] = int64(*p.ObservedInterval)
		}
		if p.NextDue != nil {
			row["next_due"] = p.NextDue.Format(predict.DateLayout)
		}
		if p.DaysRemaining != nil {
			row["days_remaining"] = int64(*p.DaysRemaining)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}
