package shared

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Warehouse   WarehouseConfig   `toml:"warehouse"`
	Extraction  ExtractionConfig  `toml:"extraction"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify API credentials and the token cache location.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	TokenPath    string `toml:"token_path"`
}

// WarehouseConfig selects and configures the warehouse backend.
type WarehouseConfig struct {
	Backend  string         `toml:"backend"` // sqlite or bigquery
	SQLite   SQLiteConfig   `toml:"sqlite"`
	BigQuery BigQueryConfig `toml:"bigquery"`
}

// SQLiteConfig contains local SQLite warehouse settings.
type SQLiteConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// BigQueryConfig contains BigQuery warehouse settings.
type BigQueryConfig struct {
	ProjectID       string `toml:"project_id"`
	DatasetID       string `toml:"dataset_id"`
	CredentialsPath string `toml:"credentials_path"`
	Location        string `toml:"location"`
}

// ExtractionConfig bounds each extraction run to keep API usage and storage cost predictable.
//
// Values are resolved once at process start and passed into the extractor and
// loader as plain parameters.
type ExtractionConfig struct {
	MaxPlaylists           int `toml:"max_playlists"`
	MaxTracksPerPlaylist   int `toml:"max_tracks_per_playlist"`
	MaxRecentlyPlayed      int `toml:"max_recently_played"`
	TopItemsLimit          int `toml:"top_items_limit"`
	AudioFeaturesBatchSize int `toml:"audio_features_batch_size"`
	ArtistBatchSize        int `toml:"artist_batch_size"`
	RetentionDays          int `toml:"retention_days"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.Extraction.applyDefaults()
	if err := config.Extraction.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	config.Extraction.applyDefaults()
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	// Check if file already exists
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s: %w", path, err)
	}

	// Write the embedded example config to the file
	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func (e *ExtractionConfig) applyDefaults() {
	if e.MaxPlaylists <= 0 {
		e.MaxPlaylists = 20
	}
	if e.MaxTracksPerPlaylist <= 0 {
		e.MaxTracksPerPlaylist = 100
	}
	if e.MaxRecentlyPlayed <= 0 {
		e.MaxRecentlyPlayed = 50
	}
	if e.TopItemsLimit <= 0 {
		e.TopItemsLimit = 20
	}
	if e.AudioFeaturesBatchSize <= 0 {
		e.AudioFeaturesBatchSize = 100
	}
	if e.ArtistBatchSize <= 0 {
		e.ArtistBatchSize = 50
	}
	if e.RetentionDays <= 0 {
		e.RetentionDays = 90
	}
}

func (e *ExtractionConfig) validate() error {
	if e.AudioFeaturesBatchSize > 100 {
		return fmt.Errorf("%w: audio_features_batch_size must be at most 100", ErrInvalidConfig)
	}
	if e.ArtistBatchSize > 50 {
		return fmt.Errorf("%w: artist_batch_size must be at most 50", ErrInvalidConfig)
	}
	if e.MaxRecentlyPlayed > 50 {
		return fmt.Errorf("%w: max_recently_played must be at most 50", ErrInvalidConfig)
	}
	if e.TopItemsLimit > 50 {
		return fmt.Errorf("%w: top_items_limit must be at most 50", ErrInvalidConfig)
	}
	return nil
}
