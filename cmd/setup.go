package main

import (
	"context"

	"github.com/desertthunder/spotlake/internal/shared"
	"github.com/desertthunder/spotlake/internal/warehouse"
	"github.com/urfave/cli/v3"
)

// SetupConfig writes a starter config.toml for the user to fill in.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("config")

	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}

	r.logger.Info("created config file", "path", path)
	r.writePlain("✓ Created %s\n", path)
	r.writePlain("  Fill in your Spotify credentials and warehouse settings, then run:\n")
	r.writePlain("  spotlake auth login\n")
	return nil
}

// SetupWarehouse creates the dataset and all tables in the configured backend.
func (r *Runner) SetupWarehouse(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	wh, err := r.openWarehouse(ctx, config)
	if err != nil {
		return err
	}
	defer wh.Close()

	loader := warehouse.NewLoader(wh, r.logger)
	if err := loader.EnsureSchema(ctx); err != nil {
		return err
	}

	r.writePlain("✓ Warehouse schema ready (%d tables)\n", len(warehouse.AllTables))
	return nil
}
