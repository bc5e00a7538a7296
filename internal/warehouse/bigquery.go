package warehouse

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// BigQueryWarehouse implements Warehouse on a BigQuery dataset. Merges go
// through a short-lived staging table so each reconciliation is a single
// atomic MERGE statement.
type BigQueryWarehouse struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	location  string
}

// NewBigQueryWarehouse creates a BigQuery-backed warehouse. When
// credentialsPath is empty, application default credentials are used.
func NewBigQueryWarehouse(ctx context.Context, projectID, datasetID, credentialsPath, location string) (*BigQueryWarehouse, error) {
	var opts []option.ClientOption
	if credentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsPath))
	}

	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bigquery client: %w", err)
	}

	return &BigQueryWarehouse{
		client:    client,
		projectID: projectID,
		datasetID: datasetID,
		location:  location,
	}, nil
}

func (w *BigQueryWarehouse) Close() error {
	return w.client.Close()
}

func (w *BigQueryWarehouse) EnsureDataset(ctx context.Context) error {
	ds := w.client.Dataset(w.datasetID)
	_, err := ds.Metadata(ctx)
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return fmt.Errorf("failed to read dataset %s: %w", w.datasetID, err)
	}

	meta := &bigquery.DatasetMetadata{Location: w.location}
	if err := ds.Create(ctx, meta); err != nil {
		return fmt.Errorf("failed to create dataset %s: %w", w.datasetID, err)
	}
	return nil
}

func (w *BigQueryWarehouse) EnsureTable(ctx context.Context, table Table) error {
	ref := w.client.Dataset(w.datasetID).Table(table.Name)
	_, err := ref.Metadata(ctx)
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return fmt.Errorf("failed to read table %s: %w", table.Name, err)
	}

	meta := &bigquery.TableMetadata{Schema: bigquerySchema(table)}
	if table.PartitionBy != "" {
		meta.TimePartitioning = &bigquery.TimePartitioning{
			Type:  bigquery.DayPartitioningType,
			Field: table.PartitionBy,
		}
	}

	if err := ref.Create(ctx, meta); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table.Name, err)
	}
	return nil
}

// Merge stages the rows and runs one MERGE statement against the target.
// Rows sharing a natural key collapse to the last occurrence before staging
// so the MERGE source is key-unique.
func (w *BigQueryWarehouse) Merge(ctx context.Context, table Table, rows []Row) (int64, int64, error) {
	rows = dedupeByKey(table, rows)
	if len(rows) == 0 {
		return 0, 0, nil
	}

	stagingName, cleanup, err := w.stage(ctx, table, rows)
	if err != nil {
		return 0, 0, err
	}
	defer cleanup()

	target := w.tableID(table.Name)
	staging := w.tableID(stagingName)

	matched, err := w.countMatched(ctx, target, staging, table.KeyColumns)
	if err != nil {
		return 0, 0, err
	}

	assignments := make([]string, 0, len(table.Columns))
	for _, name := range table.NonKeyColumns() {
		assignments = append(assignments, fmt.Sprintf("T.`%s` = S.`%s`", name, name))
	}

	stmt := fmt.Sprintf(`MERGE %s T USING %s S ON %s
WHEN MATCHED THEN UPDATE SET %s
WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s)`,
		target, staging,
		joinPredicate("T", "S", table.KeyColumns),
		strings.Join(assignments, ", "),
		backtickAll(table.ColumnNames()),
		prefixAll("S", table.ColumnNames()),
	)

	affected, err := w.runDML(ctx, stmt, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to merge into %s: %w", table.Name, err)
	}

	inserted := affected - matched
	if inserted < 0 {
		inserted = 0
	}
	return inserted, matched, nil
}

// Insert stages the rows and appends only those whose natural key is absent
// from the target. Existing rows are never modified.
func (w *BigQueryWarehouse) Insert(ctx context.Context, table Table, rows []Row) (int64, error) {
	rows = dedupeByKey(table, rows)
	if len(rows) == 0 {
		return 0, nil
	}

	stagingName, cleanup, err := w.stage(ctx, table, rows)
	if err != nil {
		return 0, err
	}
	defer cleanup()

	target := w.tableID(table.Name)
	staging := w.tableID(stagingName)

	stmt := fmt.Sprintf(`INSERT INTO %s (%s)
SELECT %s FROM %s S
WHERE NOT EXISTS (SELECT 1 FROM %s T WHERE %s)`,
		target, backtickAll(table.ColumnNames()),
		prefixAll("S", table.ColumnNames()), staging,
		target, joinPredicate("T", "S", table.KeyColumns),
	)

	inserted, err := w.runDML(ctx, stmt, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to append into %s: %w", table.Name, err)
	}
	return inserted, nil
}

func (w *BigQueryWarehouse) DeleteOlderThan(ctx context.Context, table Table, cutoff time.Time) (int64, error) {
	if table.PartitionBy == "" {
		return 0, fmt.Errorf("table %s is not partitioned", table.Name)
	}

	stmt := fmt.Sprintf("DELETE FROM %s WHERE `%s` < @cutoff", w.tableID(table.Name), table.PartitionBy)
	deleted, err := w.runDML(ctx, stmt, []bigquery.QueryParameter{
		{Name: "cutoff", Value: cutoff.UTC()},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", table.Name, err)
	}
	return deleted, nil
}

func (w *BigQueryWarehouse) TableStats(ctx context.Context, table Table) (*TableStats, error) {
	meta, err := w.client.Dataset(w.datasetID).Table(table.Name).Metadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read table %s: %w", table.Name, err)
	}
	return &TableStats{Rows: int64(meta.NumRows), Bytes: meta.NumBytes}, nil
}

// stage creates an expiring staging table and streams rows into it. The
// returned cleanup deletes the table; expiration is the backstop if the
// process dies first.
func (w *BigQueryWarehouse) stage(ctx context.Context, table Table, rows []Row) (string, func(), error) {
	name := fmt.Sprintf("%s_staging_%s", table.Name, strings.ReplaceAll(uuid.NewString(), "-", ""))
	ref := w.client.Dataset(w.datasetID).Table(name)

	meta := &bigquery.TableMetadata{
		Schema:         bigquerySchema(table),
		ExpirationTime: time.Now().Add(time.Hour),
	}
	if err := ref.Create(ctx, meta); err != nil {
		return "", nil, fmt.Errorf("failed to create staging table for %s: %w", table.Name, err)
	}

	cleanup := func() {
		_ = ref.Delete(context.WithoutCancel(ctx))
	}

	savers := make([]*rowSaver, len(rows))
	for i, row := range rows {
		savers[i] = &rowSaver{table: table, row: row}
	}

	if err := ref.Inserter().Put(ctx, savers); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to stage rows for %s: %w", table.Name, err)
	}

	return name, cleanup, nil
}

func (w *BigQueryWarehouse) countMatched(ctx context.Context, target, staging string, keys []string) (int64, error) {
	stmt := fmt.Sprintf("SELECT COUNT(1) FROM %s T JOIN %s S ON %s",
		target, staging, joinPredicate("T", "S", keys))

	q := w.client.Query(stmt)
	q.Location = w.location
	it, err := q.Read(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count matched keys: %w", err)
	}

	var values []bigquery.Value
	if err := it.Next(&values); err != nil {
		return 0, fmt.Errorf("failed to read matched key count: %w", err)
	}

	count, ok := values[0].(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected matched key count type %T", values[0])
	}
	return count, nil
}

func (w *BigQueryWarehouse) runDML(ctx context.Context, stmt string, params []bigquery.QueryParameter) (int64, error) {
	q := w.client.Query(stmt)
	q.Location = w.location
	q.Parameters = params

	job, err := q.Run(ctx)
	if err != nil {
		return 0, err
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return 0, err
	}
	if err := status.Err(); err != nil {
		return 0, err
	}

	if stats, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
		return stats.NumDMLAffectedRows, nil
	}
	return 0, nil
}

func (w *BigQueryWarehouse) tableID(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", w.projectID, w.datasetID, name)
}

// rowSaver adapts a Row to the streaming insert API. The insert ID derives
// from the natural key so retried Put calls stay best-effort idempotent.
type rowSaver struct {
	table Table
	row   Row
}

func (s *rowSaver) Save() (map[string]bigquery.Value, string, error) {
	values := make(map[string]bigquery.Value, len(s.table.Columns))
	for _, c := range s.table.Columns {
		v := s.row[c.Name]
		if v == nil {
			continue
		}
		values[c.Name] = bigquery.Value(v)
	}

	parts := make([]string, len(s.table.KeyColumns))
	for i, k := range s.table.KeyColumns {
		parts[i] = fmt.Sprint(s.row[k])
	}
	return values, strings.Join(parts, "|"), nil
}

func bigquerySchema(table Table) bigquery.Schema {
	schema := make(bigquery.Schema, 0, len(table.Columns))
	for _, c := range table.Columns {
		field := &bigquery.FieldSchema{
			Name:     c.Name,
			Required: c.Required,
		}
		switch c.Type {
		case Integer:
			field.Type = bigquery.IntegerFieldType
		case Float:
			field.Type = bigquery.FloatFieldType
		case Boolean:
			field.Type = bigquery.BooleanFieldType
		case Timestamp:
			field.Type = bigquery.TimestampFieldType
		case Date:
			field.Type = bigquery.DateFieldType
		case StringList:
			field.Type = bigquery.StringFieldType
			field.Repeated = true
			field.Required = false
		default:
			field.Type = bigquery.StringFieldType
		}
		schema = append(schema, field)
	}
	return schema
}

func dedupeByKey(table Table, rows []Row) []Row {
	index := make(map[string]int, len(rows))
	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		parts := make([]string, len(table.KeyColumns))
		for i, k := range table.KeyColumns {
			parts[i] = fmt.Sprint(row[k])
		}
		key := strings.Join(parts, "\x1f")
		if i, ok := index[key]; ok {
			out[i] = row
			continue
		}
		index[key] = len(out)
		out = append(out, row)
	}
	return out
}

func joinPredicate(left, right string, keys []string) string {
	preds := make([]string, len(keys))
	for i, k := range keys {
		preds[i] = fmt.Sprintf("%s.`%s` = %s.`%s`", left, k, right, k)
	}
	return strings.Join(preds, " AND ")
}

func backtickAll(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = "`" + n + "`"
	}
	return strings.Join(quoted, ", ")
}

func prefixAll(alias string, names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = fmt.Sprintf("%s.`%s`", alias, n)
	}
	return strings.Join(quoted, ", ")
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
