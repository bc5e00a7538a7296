package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotlake/internal/shared"
)

// LoadResult reports what a single table load changed.
type LoadResult struct {
	Table    string `json:"table"`
	Inserted int64  `json:"inserted"`
	Updated  int64  `json:"updated"`
}

// PruneResult reports retention deletions for one append-only table.
type PruneResult struct {
	Table   string    `json:"table"`
	Deleted int64     `json:"deleted"`
	Cutoff  time.Time `json:"cutoff"`
}

// Loader routes rows into the warehouse with the load semantics each table
// declares: merged tables reconcile by natural key, append-only tables only
// ever gain rows.
type Loader struct {
	wh     Warehouse
	logger *log.Logger
}

func NewLoader(wh Warehouse, logger *log.Logger) *Loader {
	if logger == nil {
		logger = log.Default()
	}
	return &Loader{wh: wh, logger: logger}
}

// EnsureSchema creates the dataset and every table if missing. Safe to call
// before every run.
func (l *Loader) EnsureSchema(ctx context.Context) error {
	if err := l.wh.EnsureDataset(ctx); err != nil {
		return &LoadError{Op: "ensure dataset", Err: err}
	}
	for _, table := range AllTables {
		if err := l.wh.EnsureTable(ctx, table); err != nil {
			return &LoadError{Op: "ensure table", Table: table.Name, Err: err}
		}
	}
	return nil
}

// Load writes rows into table. Merge tables are upserted atomically; append
// tables gain only rows whose natural key is new. An empty batch is a no-op.
func (l *Loader) Load(ctx context.Context, table Table, rows []Row) (*LoadResult, error) {
	result := &LoadResult{Table: table.Name}
	if len(rows) == 0 {
		return result, nil
	}

	var err error
	if table.AppendOnly {
		result.Inserted, err = l.wh.Insert(ctx, table, rows)
	} else {
		result.Inserted, result.Updated, err = l.wh.Merge(ctx, table, rows)
	}
	if err != nil {
		return nil, &LoadError{Op: "load", Table: table.Name, Err: err}
	}

	l.logger.Info("loaded table",
		"table", table.Name, "rows", len(rows),
		"inserted", result.Inserted, "updated", result.Updated)
	return result, nil
}

// Prune deletes rows older than retentionDays from every partitioned
// append-only table. It is an explicit maintenance operation, never part of
// a sync run.
func (l *Loader) Prune(ctx context.Context, retentionDays int) ([]PruneResult, error) {
	if retentionDays <= 0 {
		return nil, fmt.Errorf("%w: retention days must be positive", shared.ErrInvalidArgument)
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	var results []PruneResult
	for _, table := range AllTables {
		if !table.AppendOnly || table.PartitionBy == "" {
			continue
		}

		deleted, err := l.wh.DeleteOlderThan(ctx, table, cutoff)
		if err != nil {
			return results, &LoadError{Op: "prune", Table: table.Name, Err: err}
		}

		l.logger.Info("pruned table", "table", table.Name, "deleted", deleted, "cutoff", cutoff)
		results = append(results, PruneResult{Table: table.Name, Deleted: deleted, Cutoff: cutoff})
	}
	return results, nil
}

// Stats collects row counts for every table.
func (l *Loader) Stats(ctx context.Context) (map[string]*TableStats, error) {
	stats := make(map[string]*TableStats, len(AllTables))
	for _, table := range AllTables {
		s, err := l.wh.TableStats(ctx, table)
		if err != nil {
			return nil, &LoadError{Op: "stats", Table: table.Name, Err: err}
		}
		stats[table.Name] = s
	}
	return stats, nil
}
