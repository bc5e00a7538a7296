// package warehouse provides the analytical warehouse layer: fixed table
// definitions, backend implementations (SQLite, BigQuery), and the
// incremental loader that reconciles each run's records against them.
package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/spotlake/internal/shared"
)

// Row is one record in warehouse column form.
type Row map[string]any

// TableStats describes a table's current size.
type TableStats struct {
	Rows  int64
	Bytes int64
}

// Warehouse is the connection contract the loader requires of a backend.
//
// EnsureDataset and EnsureTable are idempotent: creating something that
// already exists is a no-op. Merge is the unit of transactional atomicity
// for an entity type within a run.
type Warehouse interface {
	// EnsureDataset creates the target dataset if it does not exist.
	EnsureDataset(ctx context.Context) error

	// EnsureTable creates the table with its declared schema and
	// partitioning if it does not exist.
	EnsureTable(ctx context.Context, table Table) error

	// Merge reconciles rows against the table in one atomic operation
	// keyed on the table's natural key: matched keys update all non-key
	// columns, unmatched keys insert.
	Merge(ctx context.Context, table Table, rows []Row) (inserted, updated int64, err error)

	// Insert appends rows whose natural key is not already present.
	// Existing keys are left untouched, never updated.
	Insert(ctx context.Context, table Table, rows []Row) (inserted int64, err error)

	// DeleteOlderThan removes rows whose partition timestamp is before
	// cutoff, returning the number of rows removed.
	DeleteOlderThan(ctx context.Context, table Table, cutoff time.Time) (int64, error)

	// TableStats reports the table's row count and stored bytes.
	TableStats(ctx context.Context, table Table) (*TableStats, error)

	Close() error
}

// LoadError is a warehouse-side failure during merge or insert. It is fatal
// for that entity type's load step only; previously loaded entity types stay
// committed.
type LoadError struct {
	Op    string
	Table string
	Err   error
}

func (e *LoadError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *LoadError) Unwrap() []error { return []error{shared.ErrWarehouse, e.Err} }
