package warehouse

import (
	"context"
	"testing"
	"time"
)

func openTestWarehouse(t *testing.T) *SQLiteWarehouse {
	t.Helper()

	// A single connection keeps every statement on the same in-memory
	// database.
	wh, err := NewSQLiteWarehouse(":memory:", 1, 1)
	if err != nil {
		t.Fatalf("failed to open warehouse: %v", err)
	}
	t.Cleanup(func() { wh.Close() })

	ctx := context.Background()
	for _, table := range AllTables {
		if err := wh.EnsureTable(ctx, table); err != nil {
			t.Fatalf("failed to create %s: %v", table.Name, err)
		}
	}
	return wh
}

func userRow(id, name string, extractedAt time.Time) Row {
	return Row{
		"user_id":      id,
		"display_name": name,
		"followers":    int64(12),
		"country":      "US",
		"product":      "premium",
		"extracted_at": extractedAt,
	}
}

func playRow(trackID string, playedAt time.Time) Row {
	return Row{
		"track_id":     trackID,
		"played_at":    playedAt,
		"context_type": "playlist",
		"context_uri":  "spotify:playlist:p1",
		"extracted_at": playedAt.Add(time.Hour),
	}
}

func TestSQLiteWarehouse(t *testing.T) {
	ctx := context.Background()
	stamp := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("EnsureTable Is Idempotent", func(t *testing.T) {
		wh := openTestWarehouse(t)

		for _, table := range AllTables {
			if err := wh.EnsureTable(ctx, table); err != nil {
				t.Errorf("second create of %s failed: %v", table.Name, err)
			}
		}
	})

	t.Run("Merge", func(t *testing.T) {
		t.Run("Counts New Keys As Inserted", func(t *testing.T) {
			wh := openTestWarehouse(t)

			inserted, updated, err := wh.Merge(ctx, Users, []Row{
				userRow("u1", "Alice", stamp),
				userRow("u2", "Bob", stamp),
			})
			if err != nil {
				t.Fatalf("merge failed: %v", err)
			}
			if inserted != 2 || updated != 0 {
				t.Errorf("expected (2, 0), got (%d, %d)", inserted, updated)
			}
		})

		t.Run("Counts Existing Keys As Updated", func(t *testing.T) {
			wh := openTestWarehouse(t)

			if _, _, err := wh.Merge(ctx, Users, []Row{userRow("u1", "Alice", stamp)}); err != nil {
				t.Fatalf("first merge failed: %v", err)
			}

			inserted, updated, err := wh.Merge(ctx, Users, []Row{
				userRow("u1", "Alicia", stamp.Add(time.Hour)),
				userRow("u2", "Bob", stamp.Add(time.Hour)),
			})
			if err != nil {
				t.Fatalf("second merge failed: %v", err)
			}
			if inserted != 1 || updated != 1 {
				t.Errorf("expected (1, 1), got (%d, %d)", inserted, updated)
			}

			var name string
			err = wh.DB().QueryRow(`SELECT "display_name" FROM "users" WHERE "user_id" = ?`, "u1").Scan(&name)
			if err != nil {
				t.Fatalf("failed to read back row: %v", err)
			}
			if name != "Alicia" {
				t.Errorf("expected updated display name, got %q", name)
			}
		})

		t.Run("Leaves Row Count Stable On Re-Merge", func(t *testing.T) {
			wh := openTestWarehouse(t)

			rows := []Row{userRow("u1", "Alice", stamp), userRow("u2", "Bob", stamp)}
			for range 2 {
				if _, _, err := wh.Merge(ctx, Users, rows); err != nil {
					t.Fatalf("merge failed: %v", err)
				}
			}

			stats, err := wh.TableStats(ctx, Users)
			if err != nil {
				t.Fatalf("failed to read stats: %v", err)
			}
			if stats.Rows != 2 {
				t.Errorf("expected 2 rows, got %d", stats.Rows)
			}
		})

		t.Run("Empty Batch Is A No-Op", func(t *testing.T) {
			wh := openTestWarehouse(t)

			inserted, updated, err := wh.Merge(ctx, Users, nil)
			if err != nil {
				t.Fatalf("merge failed: %v", err)
			}
			if inserted != 0 || updated != 0 {
				t.Errorf("expected (0, 0), got (%d, %d)", inserted, updated)
			}
		})

		t.Run("Stores String Lists As JSON", func(t *testing.T) {
			wh := openTestWarehouse(t)

			row := Row{
				"track_id":      "t1",
				"name":          "Song",
				"artists":       []string{"a1", "a2"},
				"album_id":      "al1",
				"album_name":    "Album",
				"release_date":  "2020-01-01",
				"duration_ms":   int64(201000),
				"popularity":    int64(55),
				"explicit":      false,
				"external_urls": "https://example.test/t1",
				"extracted_at":  stamp,
			}
			if _, _, err := wh.Merge(ctx, Tracks, []Row{row}); err != nil {
				t.Fatalf("merge failed: %v", err)
			}

			var artists string
			err := wh.DB().QueryRow(`SELECT "artists" FROM "tracks" WHERE "track_id" = ?`, "t1").Scan(&artists)
			if err != nil {
				t.Fatalf("failed to read back row: %v", err)
			}
			if artists != `["a1","a2"]` {
				t.Errorf("expected JSON artist list, got %q", artists)
			}
		})
	})

	t.Run("Insert", func(t *testing.T) {
		t.Run("Skips Existing Keys", func(t *testing.T) {
			wh := openTestWarehouse(t)

			first := playRow("t1", stamp)
			inserted, err := wh.Insert(ctx, PlayHistory, []Row{first})
			if err != nil {
				t.Fatalf("insert failed: %v", err)
			}
			if inserted != 1 {
				t.Fatalf("expected 1 inserted, got %d", inserted)
			}

			// Same (track_id, played_at) plus one genuinely new event.
			inserted, err = wh.Insert(ctx, PlayHistory, []Row{first, playRow("t1", stamp.Add(time.Minute))})
			if err != nil {
				t.Fatalf("second insert failed: %v", err)
			}
			if inserted != 1 {
				t.Errorf("expected 1 inserted on overlap, got %d", inserted)
			}

			stats, err := wh.TableStats(ctx, PlayHistory)
			if err != nil {
				t.Fatalf("failed to read stats: %v", err)
			}
			if stats.Rows != 2 {
				t.Errorf("expected 2 rows, got %d", stats.Rows)
			}
		})

		t.Run("Never Touches Existing Rows", func(t *testing.T) {
			wh := openTestWarehouse(t)

			original := playRow("t1", stamp)
			if _, err := wh.Insert(ctx, PlayHistory, []Row{original}); err != nil {
				t.Fatalf("insert failed: %v", err)
			}

			replay := playRow("t1", stamp)
			replay["context_type"] = "album"
			if _, err := wh.Insert(ctx, PlayHistory, []Row{replay}); err != nil {
				t.Fatalf("second insert failed: %v", err)
			}

			var contextType string
			err := wh.DB().QueryRow(`SELECT "context_type" FROM "play_history" WHERE "track_id" = ?`, "t1").Scan(&contextType)
			if err != nil {
				t.Fatalf("failed to read back row: %v", err)
			}
			if contextType != "playlist" {
				t.Errorf("expected original context_type, got %q", contextType)
			}
		})
	})

	t.Run("DeleteOlderThan", func(t *testing.T) {
		t.Run("Removes Only Rows Before Cutoff", func(t *testing.T) {
			wh := openTestWarehouse(t)

			cutoff := stamp
			rows := []Row{
				playRow("t1", cutoff.Add(-48*time.Hour)),
				playRow("t2", cutoff.Add(-time.Second)),
				playRow("t3", cutoff), // boundary row stays
				playRow("t4", cutoff.Add(time.Hour)),
			}
			if _, err := wh.Insert(ctx, PlayHistory, rows); err != nil {
				t.Fatalf("insert failed: %v", err)
			}

			deleted, err := wh.DeleteOlderThan(ctx, PlayHistory, cutoff)
			if err != nil {
				t.Fatalf("delete failed: %v", err)
			}
			if deleted != 2 {
				t.Errorf("expected 2 deleted, got %d", deleted)
			}

			stats, err := wh.TableStats(ctx, PlayHistory)
			if err != nil {
				t.Fatalf("failed to read stats: %v", err)
			}
			if stats.Rows != 2 {
				t.Errorf("expected 2 remaining rows, got %d", stats.Rows)
			}
		})

		t.Run("Rejects Unpartitioned Tables", func(t *testing.T) {
			wh := openTestWarehouse(t)

			if _, err := wh.DeleteOlderThan(ctx, Users, stamp); err == nil {
				t.Error("expected an error for an unpartitioned table")
			}
		})
	})

	t.Run("TableStats Counts Rows", func(t *testing.T) {
		wh := openTestWarehouse(t)

		stats, err := wh.TableStats(ctx, Users)
		if err != nil {
			t.Fatalf("failed to read stats: %v", err)
		}
		if stats.Rows != 0 {
			t.Errorf("expected empty table, got %d rows", stats.Rows)
		}

		if _, _, err := wh.Merge(ctx, Users, []Row{userRow("u1", "Alice", stamp)}); err != nil {
			t.Fatalf("merge failed: %v", err)
		}

		stats, err = wh.TableStats(ctx, Users)
		if err != nil {
			t.Fatalf("failed to read stats: %v", err)
		}
		if stats.Rows != 1 {
			t.Errorf("expected 1 row, got %d", stats.Rows)
		}
	})
}
