package warehouse

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/spotlake/internal/shared"
)

// recordingWarehouse captures which backend operation each table reached.
type recordingWarehouse struct {
	merged   []string
	inserted []string
	pruned   []string

	mergeErr  error
	insertErr error
	deleteErr error
}

func (w *recordingWarehouse) EnsureDataset(ctx context.Context) error { return nil }

func (w *recordingWarehouse) EnsureTable(ctx context.Context, table Table) error { return nil }

func (w *recordingWarehouse) Merge(ctx context.Context, table Table, rows []Row) (int64, int64, error) {
	if w.mergeErr != nil {
		return 0, 0, w.mergeErr
	}
	w.merged = append(w.merged, table.Name)
	return int64(len(rows)), 1, nil
}

func (w *recordingWarehouse) Insert(ctx context.Context, table Table, rows []Row) (int64, error) {
	if w.insertErr != nil {
		return 0, w.insertErr
	}
	w.inserted = append(w.inserted, table.Name)
	return int64(len(rows)), nil
}

func (w *recordingWarehouse) DeleteOlderThan(ctx context.Context, table Table, cutoff time.Time) (int64, error) {
	if w.deleteErr != nil {
		return 0, w.deleteErr
	}
	w.pruned = append(w.pruned, table.Name)
	return 3, nil
}

func (w *recordingWarehouse) TableStats(ctx context.Context, table Table) (*TableStats, error) {
	return &TableStats{Rows: 7}, nil
}

func (w *recordingWarehouse) Close() error { return nil }

func testLoader(wh Warehouse) *Loader {
	return NewLoader(wh, log.New(io.Discard))
}

func TestLoader(t *testing.T) {
	ctx := context.Background()
	rows := []Row{{"track_id": "t1"}}

	t.Run("Load", func(t *testing.T) {
		t.Run("Merges Keyed Tables", func(t *testing.T) {
			wh := &recordingWarehouse{}

			result, err := testLoader(wh).Load(ctx, Tracks, rows)
			if err != nil {
				t.Fatalf("load failed: %v", err)
			}
			if len(wh.merged) != 1 || wh.merged[0] != "tracks" {
				t.Errorf("expected a merge into tracks, got %v", wh.merged)
			}
			if len(wh.inserted) != 0 {
				t.Errorf("unexpected inserts: %v", wh.inserted)
			}
			if result.Inserted != 1 || result.Updated != 1 {
				t.Errorf("expected (1, 1), got (%d, %d)", result.Inserted, result.Updated)
			}
		})

		t.Run("Appends To Append-Only Tables", func(t *testing.T) {
			wh := &recordingWarehouse{}

			result, err := testLoader(wh).Load(ctx, PlayHistory, rows)
			if err != nil {
				t.Fatalf("load failed: %v", err)
			}
			if len(wh.inserted) != 1 || wh.inserted[0] != "play_history" {
				t.Errorf("expected an insert into play_history, got %v", wh.inserted)
			}
			if len(wh.merged) != 0 {
				t.Errorf("unexpected merges: %v", wh.merged)
			}
			if result.Updated != 0 {
				t.Errorf("append tables never update, got %d", result.Updated)
			}
		})

		t.Run("Skips Empty Batches", func(t *testing.T) {
			wh := &recordingWarehouse{mergeErr: errors.New("should not be reached")}

			result, err := testLoader(wh).Load(ctx, Tracks, nil)
			if err != nil {
				t.Fatalf("load failed: %v", err)
			}
			if result.Inserted != 0 || result.Updated != 0 {
				t.Errorf("expected an empty result, got %+v", result)
			}
		})

		t.Run("Wraps Backend Failures", func(t *testing.T) {
			cause := errors.New("disk full")
			wh := &recordingWarehouse{mergeErr: cause}

			_, err := testLoader(wh).Load(ctx, Tracks, rows)
			if !errors.Is(err, shared.ErrWarehouse) {
				t.Errorf("expected a warehouse error, got %v", err)
			}
			if !errors.Is(err, cause) {
				t.Errorf("expected the cause to be preserved, got %v", err)
			}

			var loadErr *LoadError
			if !errors.As(err, &loadErr) {
				t.Fatalf("expected a LoadError, got %T", err)
			}
			if loadErr.Table != "tracks" {
				t.Errorf("expected table name in error, got %q", loadErr.Table)
			}
		})
	})

	t.Run("Prune", func(t *testing.T) {
		t.Run("Targets Only Partitioned Append Tables", func(t *testing.T) {
			wh := &recordingWarehouse{}

			results, err := testLoader(wh).Prune(ctx, 90)
			if err != nil {
				t.Fatalf("prune failed: %v", err)
			}

			want := []string{"play_history", "top_tracks", "top_artists"}
			if len(wh.pruned) != len(want) {
				t.Fatalf("expected %v, got %v", want, wh.pruned)
			}
			for i, name := range want {
				if wh.pruned[i] != name {
					t.Errorf("expected %s at %d, got %s", name, i, wh.pruned[i])
				}
				if results[i].Table != name || results[i].Deleted != 3 {
					t.Errorf("unexpected result for %s: %+v", name, results[i])
				}
			}
		})

		t.Run("Cutoff Honors Retention Window", func(t *testing.T) {
			wh := &recordingWarehouse{}

			results, err := testLoader(wh).Prune(ctx, 90)
			if err != nil {
				t.Fatalf("prune failed: %v", err)
			}

			want := time.Now().UTC().AddDate(0, 0, -90)
			for _, r := range results {
				if diff := r.Cutoff.Sub(want); diff < -time.Minute || diff > time.Minute {
					t.Errorf("cutoff %v too far from %v", r.Cutoff, want)
				}
			}
		})

		t.Run("Rejects Non-Positive Retention", func(t *testing.T) {
			wh := &recordingWarehouse{}

			if _, err := testLoader(wh).Prune(ctx, 0); !errors.Is(err, shared.ErrInvalidArgument) {
				t.Errorf("expected an invalid argument error, got %v", err)
			}
			if len(wh.pruned) != 0 {
				t.Errorf("unexpected deletes: %v", wh.pruned)
			}
		})

		t.Run("Stops On Backend Failure", func(t *testing.T) {
			wh := &recordingWarehouse{deleteErr: errors.New("timeout")}

			_, err := testLoader(wh).Prune(ctx, 30)
			if !errors.Is(err, shared.ErrWarehouse) {
				t.Errorf("expected a warehouse error, got %v", err)
			}
		})
	})

	t.Run("Stats Covers Every Table", func(t *testing.T) {
		wh := &recordingWarehouse{}

		stats, err := testLoader(wh).Stats(ctx)
		if err != nil {
			t.Fatalf("stats failed: %v", err)
		}
		if len(stats) != len(AllTables) {
			t.Errorf("expected %d tables, got %d", len(AllTables), len(stats))
		}
		if stats["tracks"].Rows != 7 {
			t.Errorf("expected row count passthrough, got %d", stats["tracks"].Rows)
		}
	})
}
