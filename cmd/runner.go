package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotlake/internal/shared"
	"github.com/desertthunder/spotlake/internal/spotify"
	"github.com/desertthunder/spotlake/internal/warehouse"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config *shared.Config
	logger *log.Logger
	output io.Writer

	// Injectable for tests; resolved from config when nil.
	warehouse  warehouse.Warehouse
	tokenStore spotify.TokenStore
	api        spotify.API
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	Logger     *log.Logger
	Output     io.Writer
	Warehouse  warehouse.Warehouse
	TokenStore spotify.TokenStore
	API        spotify.API
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config:     opts.Config,
		logger:     opts.Logger,
		output:     opts.Output,
		warehouse:  opts.Warehouse,
		tokenStore: opts.TokenStore,
		api:        opts.API,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, runCommand, pruneCommand, statsCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// loadConfig resolves configuration from the --config flag, falling back to
// embedded defaults when the file does not exist.
func (r *Runner) loadConfig(cmd *cli.Command) (*shared.Config, error) {
	path := cmd.String("config")
	if _, err := os.Stat(path); err != nil {
		r.logger.Debug("config file not found, using defaults", "path", path)
		return r.config, nil
	}

	config, err := shared.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	r.config = config
	return config, nil
}

// openWarehouse creates the configured warehouse backend.
func (r *Runner) openWarehouse(ctx context.Context, config *shared.Config) (warehouse.Warehouse, error) {
	if r.warehouse != nil {
		return r.warehouse, nil
	}

	switch config.Warehouse.Backend {
	case "", "sqlite":
		sq := config.Warehouse.SQLite
		path := sq.Path
		if path == "" {
			path = "spotlake.db"
		}
		return warehouse.NewSQLiteWarehouse(path, sq.MaxOpenConns, sq.MaxIdleConns)
	case "bigquery":
		bq := config.Warehouse.BigQuery
		if bq.ProjectID == "" || bq.DatasetID == "" {
			return nil, fmt.Errorf("%w: bigquery backend requires project_id and dataset_id", shared.ErrInvalidConfig)
		}
		return warehouse.NewBigQueryWarehouse(ctx, bq.ProjectID, bq.DatasetID, bq.CredentialsPath, bq.Location)
	default:
		return nil, fmt.Errorf("%w: unknown warehouse backend %q", shared.ErrInvalidConfig, config.Warehouse.Backend)
	}
}

// tokenManager builds the token manager backed by the configured token cache.
func (r *Runner) tokenManager(config *shared.Config) (*spotify.TokenManager, error) {
	creds := config.Credentials.Spotify
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, fmt.Errorf("%w: spotify client_id and client_secret are required", shared.ErrMissingCredentials)
	}

	store := r.tokenStore
	if store == nil {
		path := creds.TokenPath
		if path == "" {
			path = defaultTokenPath()
		}
		store = spotify.NewFileTokenStore(path)
	}

	conf := spotify.OAuthConfig(creds.ClientID, creds.ClientSecret, creds.RedirectURI)
	return spotify.NewTokenManager(conf, store), nil
}

// extractorAPI builds the rate-limited Spotify client unless a test double
// was injected.
func (r *Runner) extractorAPI(config *shared.Config) (spotify.API, error) {
	if r.api != nil {
		return r.api, nil
	}

	tokens, err := r.tokenManager(config)
	if err != nil {
		return nil, err
	}
	return spotify.NewClient(tokens, spotify.ClientOpts{Logger: r.logger}), nil
}

func (r *Runner) limits(config *shared.Config) spotify.Limits {
	e := config.Extraction
	return spotify.Limits{
		MaxPlaylists:           e.MaxPlaylists,
		MaxTracksPerPlaylist:   e.MaxTracksPerPlaylist,
		MaxRecentlyPlayed:      e.MaxRecentlyPlayed,
		TopItemsLimit:          e.TopItemsLimit,
		AudioFeaturesBatchSize: e.AudioFeaturesBatchSize,
		ArtistBatchSize:        e.ArtistBatchSize,
	}
}

func defaultTokenPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".spotlake/token.json"
	}
	return home + "/.spotlake/token.json"
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
