package shared

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Warehouse.Backend != "sqlite" {
			t.Errorf("expected sqlite backend, got %s", config.Warehouse.Backend)
		}

		if config.Warehouse.SQLite.Path != "spotlake.db" {
			t.Errorf("expected sqlite path spotlake.db, got %s", config.Warehouse.SQLite.Path)
		}

		if config.Credentials.Spotify.RedirectURI != "http://localhost:8888/callback" {
			t.Errorf("expected default redirect URI, got %s", config.Credentials.Spotify.RedirectURI)
		}

		if config.Extraction.MaxPlaylists != 20 {
			t.Errorf("expected max_playlists 20, got %d", config.Extraction.MaxPlaylists)
		}

		if config.Extraction.RetentionDays != 90 {
			t.Errorf("expected retention_days 90, got %d", config.Extraction.RetentionDays)
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		if _, err := os.Stat(configPath); err != nil {
			t.Fatalf("config file should exist: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		if config.Warehouse.Backend != DefaultConfig().Warehouse.Backend {
			t.Error("created config backend doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		testConfig := `[credentials.spotify]
client_id = "test_client_id"
client_secret = "test_secret"
redirect_uri = "http://localhost:9999/callback"

[warehouse]
backend = "bigquery"

[warehouse.bigquery]
project_id = "analytics-proj"
dataset_id = "listening"
location = "EU"

[extraction]
max_playlists = 5
retention_days = 30
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Warehouse.Backend != "bigquery" {
			t.Errorf("expected bigquery backend, got %s", config.Warehouse.Backend)
		}
		if config.Warehouse.BigQuery.ProjectID != "analytics-proj" {
			t.Errorf("expected project analytics-proj, got %s", config.Warehouse.BigQuery.ProjectID)
		}
		if config.Extraction.MaxPlaylists != 5 {
			t.Errorf("expected max_playlists 5, got %d", config.Extraction.MaxPlaylists)
		}
		if config.Extraction.RetentionDays != 30 {
			t.Errorf("expected retention_days 30, got %d", config.Extraction.RetentionDays)
		}

		// Omitted bounds fall back to their defaults.
		if config.Extraction.AudioFeaturesBatchSize != 100 {
			t.Errorf("expected default batch size 100, got %d", config.Extraction.AudioFeaturesBatchSize)
		}
		if config.Extraction.MaxRecentlyPlayed != 50 {
			t.Errorf("expected default max_recently_played 50, got %d", config.Extraction.MaxRecentlyPlayed)
		}
	})

	t.Run("LoadConfig Rejects Oversized Batches", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		testConfig := `[extraction]
audio_features_batch_size = 250
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		if _, err := LoadConfig(configPath); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected an invalid config error, got %v", err)
		}
	})

	t.Run("LoadConfig Rejects Oversized Windows", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		testConfig := `[extraction]
top_items_limit = 200
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		if _, err := LoadConfig(configPath); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected an invalid config error, got %v", err)
		}
	})

	t.Run("LoadConfig Missing File", func(t *testing.T) {
		if _, err := LoadConfig("/nonexistent/config.toml"); err == nil {
			t.Error("expected an error for a missing file")
		}
	})
}
