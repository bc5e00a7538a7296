package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/spotlake/internal/shared"
	tu "github.com/desertthunder/spotlake/internal/testing"
	"github.com/desertthunder/spotlake/internal/warehouse"
)

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			api := &tu.MockAPI{}

			runner := NewRunner(RunnerOpts{
				Config: config,
				Logger: logger,
				Output: output,
				API:    api,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.api != api {
				t.Error("expected api to be set")
			}
		})

		t.Run("with nil config uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Config: nil})

			if runner.config == nil {
				t.Error("expected default config to be set")
			}
		})

		t.Run("with nil logger uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Logger: nil})

			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
		})

		t.Run("with nil output uses stdout", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: nil})

			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		want := []string{"setup", "auth", "run", "prune", "stats"}
		if len(commands) != len(want) {
			t.Fatalf("expected %d commands, got %d", len(want), len(commands))
		}
		for i, name := range want {
			if commands[i].Name != name {
				t.Errorf("expected command %s at %d, got %s", name, i, commands[i].Name)
			}
		}
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"status": "succeeded"}, true); err != nil {
				t.Fatalf("writeJSON failed: %v", err)
			}
			if !strings.Contains(output.String(), "\"status\": \"succeeded\"") {
				t.Errorf("expected indented JSON, got: %s", output.String())
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"status": "succeeded"}, false); err != nil {
				t.Fatalf("writeJSON failed: %v", err)
			}
			if output.String() != "{\"status\":\"succeeded\"}\n" {
				t.Errorf("expected compact JSON, got: %s", output.String())
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			if err := runner.writeJSON(make(chan int), false); err == nil {
				t.Error("expected a marshal error")
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			if err := runner.writeJSON(map[string]string{"a": "b"}, false); err == nil {
				t.Error("expected a write error")
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Output: output})

		if err := runner.writePlain("loaded %d rows\n", 3); err != nil {
			t.Fatalf("writePlain failed: %v", err)
		}
		if output.String() != "loaded 3 rows\n" {
			t.Errorf("unexpected output: %s", output.String())
		}

		if err := NewRunner(RunnerOpts{Output: &tu.FWriter{}}).writePlain("x"); err == nil {
			t.Error("expected a write error")
		}
	})

	t.Run("openWarehouse", func(t *testing.T) {
		ctx := context.Background()

		t.Run("returns injected warehouse", func(t *testing.T) {
			injected, err := warehouse.NewSQLiteWarehouse(":memory:", 1, 1)
			if err != nil {
				t.Fatalf("failed to open warehouse: %v", err)
			}
			defer injected.Close()

			runner := NewRunner(RunnerOpts{Warehouse: injected})
			wh, err := runner.openWarehouse(ctx, runner.config)
			if err != nil {
				t.Fatalf("openWarehouse failed: %v", err)
			}
			if wh != warehouse.Warehouse(injected) {
				t.Error("expected the injected warehouse back")
			}
		})

		t.Run("opens sqlite backend", func(t *testing.T) {
			config := shared.DefaultConfig()
			config.Warehouse.SQLite.Path = filepath.Join(t.TempDir(), "test.db")

			runner := NewRunner(RunnerOpts{Config: config})
			wh, err := runner.openWarehouse(ctx, config)
			if err != nil {
				t.Fatalf("openWarehouse failed: %v", err)
			}
			wh.Close()

			if _, err := os.Stat(config.Warehouse.SQLite.Path); err != nil {
				t.Errorf("expected database file to exist: %v", err)
			}
		})

		t.Run("rejects bigquery without project", func(t *testing.T) {
			config := shared.DefaultConfig()
			config.Warehouse.Backend = "bigquery"

			runner := NewRunner(RunnerOpts{Config: config})
			if _, err := runner.openWarehouse(ctx, config); !errors.Is(err, shared.ErrInvalidConfig) {
				t.Errorf("expected an invalid config error, got %v", err)
			}
		})

		t.Run("rejects unknown backend", func(t *testing.T) {
			config := shared.DefaultConfig()
			config.Warehouse.Backend = "duckdb"

			runner := NewRunner(RunnerOpts{Config: config})
			if _, err := runner.openWarehouse(ctx, config); !errors.Is(err, shared.ErrInvalidConfig) {
				t.Errorf("expected an invalid config error, got %v", err)
			}
		})
	})

	t.Run("tokenManager requires credentials", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})

		if _, err := runner.tokenManager(runner.config); !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected a missing credentials error, got %v", err)
		}
	})

	t.Run("limits maps extraction config", func(t *testing.T) {
		config := shared.DefaultConfig()
		config.Extraction.MaxPlaylists = 7
		config.Extraction.ArtistBatchSize = 25

		limits := NewRunner(RunnerOpts{Config: config}).limits(config)
		if limits.MaxPlaylists != 7 {
			t.Errorf("expected max playlists 7, got %d", limits.MaxPlaylists)
		}
		if limits.ArtistBatchSize != 25 {
			t.Errorf("expected artist batch size 25, got %d", limits.ArtistBatchSize)
		}
		if limits.MaxTracksPerPlaylist != 100 {
			t.Errorf("expected default track bound, got %d", limits.MaxTracksPerPlaylist)
		}
	})
}
