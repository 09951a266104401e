// Package workspace provides access to a tenant's SQLite databases: the
// user-defined equipment tables plus the maintenance, scan and audit logs.
package workspace

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/foxzi/equiptrack/internal/predict"
)

// driverName is go-sqlite3 with the normid() function registered on every
// connection. normid applies predict.NormalizeID, so SQL filters match ids
// exactly as the estimator does.
const driverName = "sqlite3_equiptrack"

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("normid", normID, true)
		},
	})
}

// normID is the SQL form of predict.NormalizeID. NULL and non-text values
// are accepted so a sparse column never fails a query.
func normID(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return predict.NormalizeID(x)
	case []byte:
		return predict.NormalizeID(string(x))
	default:
		return predict.NormalizeID(fmt.Sprint(x))
	}
}

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	TableMaintenance = "maintenance_log"
	TableScans       = "scanned_items"
	TableAudit       = "audit_log"

	gooseTable = "goose_db_version"
)

var (
	ErrNoDatabase    = errors.New("database does not exist")
	ErrNoTable       = errors.New("table does not exist")
	ErrInvalidTable  = errors.New("invalid table name")
	ErrReservedTable = errors.New("table is reserved")
	ErrNoIDColumn    = errors.New("table has no equipment_id or asset_id column")
	ErrMissingID     = errors.New("row has no equipment id")
	ErrRowNotFound   = errors.New("row not found")
	ErrInvalidInput  = errors.New("invalid input")
)

var safeNameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateTableName checks a user-supplied table name
func ValidateTableName(name string) error {
	if !safeNameRegex.MatchString(name) || len(name) > 128 {
		return fmt.Errorf("%w: %q", ErrInvalidTable, name)
	}
	if strings.HasPrefix(strings.ToLower(name), "sqlite_") || strings.EqualFold(name, gooseTable) {
		return fmt.Errorf("%w: %q", ErrReservedTable, name)
	}
	return nil
}

// isLogTable reports whether name is one of the managed log tables
func isLogTable(name string) bool {
	switch strings.ToLower(name) {
	case TableMaintenance, TableScans, TableAudit:
		return true
	}
	return false
}

// quoteIdent quotes a table or column identifier
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// DB is an open tenant database
type DB struct {
	db   *sql.DB
	path string
	sb   sq.StatementBuilderType
	now  func() time.Time
}

// Open opens an existing database file and applies pending migrations.
// A missing file is ErrNoDatabase; no file is created.
func Open(ctx context.Context, path string, busyTimeout time.Duration) (*DB, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrNoDatabase)
		}
		return nil, fmt.Errorf("failed to stat database: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s: %w", path, ErrNoDatabase)
	}

	dsn := fmt.Sprintf("%s?_busy_timeout=%d&_journal_mode=WAL&_txlock=immediate",
		path, busyTimeout.Milliseconds())
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	d := &DB{
		db:   db,
		path: path,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Question),
		now:  time.Now,
	}
	if _, err := d.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

// Migrate applies pending schema migrations and returns the schema version
func (d *DB) Migrate(ctx context.Context) (int64, error) {
	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return 0, fmt.Errorf("failed to load migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, d.db, fsys)
	if err != nil {
		return 0, fmt.Errorf("failed to create migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return 0, fmt.Errorf("failed to run migrations: %w", err)
	}
	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

// Path returns the database file path
func (d *DB) Path() string {
	return d.path
}

// Close closes the database
func (d *DB) Close() error {
	return d.db.Close()
}

// queryer is satisfied by *sql.DB and *sql.Tx
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// withTx runs fn in a transaction, committing on success
func (d *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (d *DB) exec(ctx context.Context, q queryer, b sq.Sqlizer) (sql.Result, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	return q.ExecContext(ctx, query, args...)
}

func (d *DB) query(ctx context.Context, q queryer, b sq.Sqlizer) (*sql.Rows, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	return q.QueryContext(ctx, query, args...)
}

// tableName returns the stored name of table, matched case-insensitively
func (d *DB) tableName(ctx context.Context, q queryer, table string) (string, error) {
	query, args, err := d.sb.Select("name").From("sqlite_master").
		Where(sq.Eq{"type": "table"}).
		Where(sq.Expr("name = ? COLLATE NOCASE", table)).
		Limit(1).ToSql()
	if err != nil {
		return "", fmt.Errorf("failed to build query: %w", err)
	}
	var name string
	if err := q.QueryRowContext(ctx, query, args...).Scan(&name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%s: %w", table, ErrNoTable)
		}
		return "", fmt.Errorf("failed to look up table: %w", err)
	}
	return name, nil
}

// columns returns the column names of table in declaration order
func (d *DB) columns(ctx context.Context, q queryer, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

// ensureColumns adds any of want missing from table as TEXT columns and
// returns the resulting column list
func (d *DB) ensureColumns(ctx context.Context, q queryer, table string, want ...string) ([]string, error) {
	cols, err := d.columns(ctx, q, table)
	if err != nil {
		return nil, err
	}
	for _, w := range want {
		if findColumn(cols, w) != "" {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s TEXT", quoteIdent(table), quoteIdent(w))
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to add column %s to %s: %w", w, table, err)
		}
		cols = append(cols, w)
	}
	return cols, nil
}

// ListTables returns table names, excluding SQLite and migration bookkeeping
func (d *DB) ListTables(ctx context.Context) ([]string, error) {
	rows, err := d.query(ctx, d.db, d.sb.Select("name").From("sqlite_master").
		Where(sq.Eq{"type": "table"}).
		Where(sq.NotLike{"name": "sqlite_%"}).
		Where(sq.NotEq{"name": gooseTable}).
		OrderBy("name"))
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}
