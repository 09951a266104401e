package workspace

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/foxzi/equiptrack/internal/predict"
)

// Row is one table row keyed by column name
type Row map[string]any

// Table is a loaded table
type Table struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// String returns the value of col in row i as text
func (t *Table) String(i int, col string) string {
	if i < 0 || i >= len(t.Rows) {
		return ""
	}
	return stringify(t.Rows[i][col])
}

// IDColumn returns the first column named equipment_id or asset_id, compared
// case-insensitively, or "" when there is none
func IDColumn(columns []string) string {
	for _, c := range columns {
		switch strings.ToLower(c) {
		case "equipment_id", "asset_id":
			return c
		}
	}
	return ""
}

// TypeColumn returns the equipment type column, preferring equipment_type over type
func TypeColumn(columns []string) string {
	if c := findColumn(columns, "equipment_type"); c != "" {
		return c
	}
	return findColumn(columns, "type")
}

// StatusColumn returns the status column, if any
func StatusColumn(columns []string) string {
	return findColumn(columns, "status")
}

// findColumn returns the stored column matching name case-insensitively
func findColumn(columns []string, name string) string {
	for _, c := range columns {
		if strings.EqualFold(c, name) {
			return c
		}
	}
	return ""
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}

// scanRows reads every row of rows into Row maps
func scanRows(rows *sql.Rows) ([]string, []Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read columns: %w", err)
	}

	result := []Row{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				row[c] = string(b)
			} else {
				row[c] = values[i]
			}
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return cols, result, nil
}

// LoadTable reads every row of table. A missing table is ErrNoTable; an
// existing empty table returns no rows and no error.
func (d *DB) LoadTable(ctx context.Context, table string) (*Table, error) {
	if err := ValidateTableName(table); err != nil {
		return nil, err
	}
	name, err := d.tableName(ctx, d.db, table)
	if err != nil {
		return nil, err
	}
	return d.loadTable(ctx, d.db, name)
}

func (d *DB) loadTable(ctx context.Context, q queryer, name string) (*Table, error) {
	cols, err := d.columns(ctx, q, name)
	if err != nil {
		return nil, err
	}
	rows, err := d.query(ctx, q, d.sb.Select(quotedAll(cols)...).From(quoteIdent(name)).OrderBy("rowid"))
	if err != nil {
		return nil, fmt.Errorf("failed to load table %s: %w", name, err)
	}
	defer rows.Close()

	_, result, err := scanRows(rows)
	if err != nil {
		return nil, err
	}
	return &Table{Name: name, Columns: cols, Rows: result}, nil
}

func quotedAll(cols []string) []string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
	}
	return quoted
}

// validateColumns rejects empty or duplicate column names
func validateColumns(columns []string) error {
	if len(columns) == 0 {
		return fmt.Errorf("%w: no columns", ErrInvalidInput)
	}
	seen := make(map[string]bool, len(columns))
	for _, c := range columns {
		if strings.TrimSpace(c) == "" {
			return fmt.Errorf("%w: empty column name", ErrInvalidInput)
		}
		key := strings.ToLower(c)
		if seen[key] {
			return fmt.Errorf("%w: duplicate column %q", ErrInvalidInput, c)
		}
		seen[key] = true
	}
	return nil
}

// ReplaceTable drops table and recreates it with TEXT columns holding rows,
// all in one transaction. The managed log tables cannot be replaced.
func (d *DB) ReplaceTable(ctx context.Context, table string, columns []string, rows [][]string) error {
	if err := ValidateTableName(table); err != nil {
		return err
	}
	if isLogTable(table) {
		return fmt.Errorf("%w: %q", ErrReservedTable, table)
	}
	if err := validateColumns(columns); err != nil {
		return err
	}

	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = quoteIdent(c) + " TEXT"
	}

	return d.withTx(ctx, func(tx *sql.Tx) error {
		// Drop under the stored spelling when it differs in case
		existing, err := d.tableName(ctx, tx, table)
		if err == nil {
			if _, err := tx.ExecContext(ctx, "DROP TABLE "+quoteIdent(existing)); err != nil {
				return fmt.Errorf("failed to drop table %s: %w", existing, err)
			}
		}

		create := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(table), strings.Join(defs, ", "))
		if _, err := tx.ExecContext(ctx, create); err != nil {
			return fmt.Errorf("failed to create table %s: %w", table, err)
		}

		for _, r := range rows {
			values := make([]any, len(columns))
			for i := range columns {
				if i < len(r) {
					values[i] = r[i]
				}
			}
			ins := d.sb.Insert(quoteIdent(table)).Columns(quotedAll(columns)...).Values(values...)
			if _, err := d.exec(ctx, tx, ins); err != nil {
				return fmt.Errorf("failed to insert into %s: %w", table, err)
			}
		}
		return nil
	})
}

// UpsertRow updates the rows whose id matches row's id, or inserts row when
// none match. Columns in row that the table lacks are added. Returns true
// when a new row was inserted.
func (d *DB) UpsertRow(ctx context.Context, table string, row map[string]string) (bool, error) {
	if err := ValidateTableName(table); err != nil {
		return false, err
	}
	if isLogTable(table) {
		return false, fmt.Errorf("%w: %q", ErrReservedTable, table)
	}

	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if err := validateColumns(keys); err != nil {
		return false, err
	}

	inserted := false
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		name, err := d.tableName(ctx, tx, table)
		if err != nil {
			return err
		}
		cols, err := d.columns(ctx, tx, name)
		if err != nil {
			return err
		}
		idCol := IDColumn(cols)
		if idCol == "" {
			return fmt.Errorf("%s: %w", name, ErrNoIDColumn)
		}

		var id string
		for _, k := range keys {
			if strings.EqualFold(k, idCol) {
				id = strings.TrimSpace(row[k])
			}
		}
		if id == "" {
			return ErrMissingID
		}

		cols, err = d.ensureColumns(ctx, tx, name, keys...)
		if err != nil {
			return err
		}

		set := make(map[string]any, len(keys))
		for _, k := range keys {
			c := findColumn(cols, k)
			if c == idCol {
				set[quoteIdent(c)] = id
			} else {
				set[quoteIdent(c)] = row[k]
			}
		}

		res, err := d.exec(ctx, tx, d.sb.Update(quoteIdent(name)).SetMap(set).
			Where(matchID(idCol, id)))
		if err != nil {
			return fmt.Errorf("failed to update row: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}

		if _, err := d.exec(ctx, tx, d.sb.Insert(quoteIdent(name)).SetMap(set)); err != nil {
			return fmt.Errorf("failed to insert row: %w", err)
		}
		inserted = true
		return nil
	})
	return inserted, err
}

// DeleteRow deletes the rows whose id matches id
func (d *DB) DeleteRow(ctx context.Context, table, id string) (int64, error) {
	if err := ValidateTableName(table); err != nil {
		return 0, err
	}
	if isLogTable(table) {
		return 0, fmt.Errorf("%w: %q", ErrReservedTable, table)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return 0, ErrMissingID
	}

	var deleted int64
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		name, err := d.tableName(ctx, tx, table)
		if err != nil {
			return err
		}
		cols, err := d.columns(ctx, tx, name)
		if err != nil {
			return err
		}
		idCol := IDColumn(cols)
		if idCol == "" {
			return fmt.Errorf("%s: %w", name, ErrNoIDColumn)
		}

		res, err := d.exec(ctx, tx, d.sb.Delete(quoteIdent(name)).Where(matchID(idCol, id)))
		if err != nil {
			return fmt.Errorf("failed to delete row: %w", err)
		}
		deleted, _ = res.RowsAffected()
		if deleted == 0 {
			return fmt.Errorf("%s: %w", id, ErrRowNotFound)
		}
		return nil
	})
	return deleted, err
}

// matchID compares an id column to id under predict.NormalizeID
func matchID(col, id string) sq.Sqlizer {
	return sq.Expr(fmt.Sprintf("normid(%s) = ?", quoteIdent(col)), predict.NormalizeID(id))
}
