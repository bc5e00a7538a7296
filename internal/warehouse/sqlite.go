package warehouse

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteWarehouse implements Warehouse on a local SQLite database. It is the
// development and test target; schemas and key semantics mirror the BigQuery
// backend.
type SQLiteWarehouse struct {
	db *sql.DB
}

// NewSQLiteWarehouse opens a connection to a SQLite database at the
// specified path. The path can be ":memory:" for an in-memory database.
func NewSQLiteWarehouse(path string, maxOpenConns, maxIdleConns int) (*SQLiteWarehouse, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	if maxIdleConns > 0 {
		db.SetMaxIdleConns(maxIdleConns)
	}

	return &SQLiteWarehouse{db: db}, nil
}

// DB exposes the underlying connection for tests.
func (w *SQLiteWarehouse) DB() *sql.DB {
	return w.db
}

func (w *SQLiteWarehouse) Close() error {
	return w.db.Close()
}

// EnsureDataset is a no-op for SQLite; the database file is the dataset.
func (w *SQLiteWarehouse) EnsureDataset(ctx context.Context) error {
	return nil
}

// EnsureTable creates the table and, for partitioned tables, an index on
// the partition column. Both statements are IF NOT EXISTS.
func (w *SQLiteWarehouse) EnsureTable(ctx context.Context, table Table) error {
	cols := make([]string, 0, len(table.Columns)+1)
	for _, c := range table.Columns {
		def := fmt.Sprintf("%q %s", c.Name, sqliteType(c.Type))
		if c.Required {
			def += " NOT NULL"
		}
		cols = append(cols, def)
	}
	cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", quoteAll(table.KeyColumns)))

	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %q (%s)", table.Name, strings.Join(cols, ", "))
	if _, err := w.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table.Name, err)
	}

	if table.PartitionBy != "" {
		idx := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %q ON %q (%q)",
			"idx_"+table.Name+"_"+table.PartitionBy, table.Name, table.PartitionBy)
		if _, err := w.db.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("failed to create index on %s: %w", table.Name, err)
		}
	}

	return nil
}

// Merge upserts rows inside a single transaction: one atomic reconciliation
// per entity type per run.
func (w *SQLiteWarehouse) Merge(ctx context.Context, table Table, rows []Row) (int64, int64, error) {
	if len(rows) == 0 {
		return 0, 0, nil
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	existsQuery := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %q WHERE %s)",
		table.Name, keyPredicate(table.KeyColumns))

	assignments := make([]string, 0, len(table.Columns))
	for _, name := range table.NonKeyColumns() {
		assignments = append(assignments, fmt.Sprintf("%q = excluded.%q", name, name))
	}

	upsert := fmt.Sprintf("INSERT INTO %q (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		table.Name,
		quoteAll(table.ColumnNames()),
		placeholders(len(table.Columns)),
		quoteAll(table.KeyColumns),
		strings.Join(assignments, ", "),
	)

	var inserted, updated int64
	for _, row := range rows {
		var exists bool
		if err := tx.QueryRowContext(ctx, existsQuery, keyValues(table, row)...).Scan(&exists); err != nil {
			return 0, 0, fmt.Errorf("failed to check existing key in %s: %w", table.Name, err)
		}

		if _, err := tx.ExecContext(ctx, upsert, columnValues(table, row)...); err != nil {
			return 0, 0, fmt.Errorf("failed to upsert into %s: %w", table.Name, err)
		}

		if exists {
			updated++
		} else {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit merge into %s: %w", table.Name, err)
	}

	return inserted, updated, nil
}

// Insert appends rows, silently skipping natural keys that already exist.
// Existing rows are never touched; append tables hold point-in-time facts.
func (w *SQLiteWarehouse) Insert(ctx context.Context, table Table, rows []Row) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt := fmt.Sprintf("INSERT OR IGNORE INTO %q (%s) VALUES (%s)",
		table.Name, quoteAll(table.ColumnNames()), placeholders(len(table.Columns)))

	var inserted int64
	for _, row := range rows {
		res, err := tx.ExecContext(ctx, stmt, columnValues(table, row)...)
		if err != nil {
			return 0, fmt.Errorf("failed to insert into %s: %w", table.Name, err)
		}
		n, _ := res.RowsAffected()
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit insert into %s: %w", table.Name, err)
	}

	return inserted, nil
}

// DeleteOlderThan removes rows whose partition timestamp is before cutoff.
func (w *SQLiteWarehouse) DeleteOlderThan(ctx context.Context, table Table, cutoff time.Time) (int64, error) {
	if table.PartitionBy == "" {
		return 0, fmt.Errorf("table %s is not partitioned", table.Name)
	}

	res, err := w.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %q WHERE %q < ?", table.Name, table.PartitionBy), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", table.Name, err)
	}

	return res.RowsAffected()
}

// TableStats reports the row count. SQLite does not track per-table bytes.
func (w *SQLiteWarehouse) TableStats(ctx context.Context, table Table) (*TableStats, error) {
	var count int64
	err := w.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %q", table.Name)).Scan(&count)
	if err != nil {
		return nil, fmt.Errorf("failed to count rows in %s: %w", table.Name, err)
	}
	return &TableStats{Rows: count}, nil
}

func sqliteType(t ColumnType) string {
	switch t {
	case Integer:
		return "INTEGER"
	case Float:
		return "REAL"
	case Boolean:
		return "BOOLEAN"
	case Timestamp:
		return "TIMESTAMP"
	case Date:
		return "DATE"
	default:
		// String and StringList; lists are stored as JSON text.
		return "TEXT"
	}
}

func quoteAll(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = fmt.Sprintf("%q", n)
	}
	return strings.Join(quoted, ", ")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func keyPredicate(keys []string) string {
	preds := make([]string, len(keys))
	for i, k := range keys {
		preds[i] = fmt.Sprintf("%q = ?", k)
	}
	return strings.Join(preds, " AND ")
}

func keyValues(table Table, row Row) []any {
	values := make([]any, len(table.KeyColumns))
	for i, k := range table.KeyColumns {
		values[i] = bindValue(row[k])
	}
	return values
}

func columnValues(table Table, row Row) []any {
	values := make([]any, len(table.Columns))
	for i, c := range table.Columns {
		values[i] = bindValue(row[c.Name])
	}
	return values
}

// bindValue converts row values into driver-friendly types; string slices
// become JSON text.
func bindValue(v any) any {
	switch val := v.(type) {
	case []string:
		data, err := json.Marshal(val)
		if err != nil {
			return "[]"
		}
		return string(data)
	case time.Time:
		return val.UTC()
	default:
		return v
	}
}
