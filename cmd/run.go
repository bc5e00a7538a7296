package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/desertthunder/spotlake/internal/formatter"
	"github.com/desertthunder/spotlake/internal/pipeline"
	"github.com/desertthunder/spotlake/internal/spotify"
	"github.com/desertthunder/spotlake/internal/warehouse"
	"github.com/urfave/cli/v3"
)

// Run executes a full sync run and prints the summary.
func (r *Runner) Run(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	api, err := r.extractorAPI(config)
	if err != nil {
		return err
	}

	wh, err := r.openWarehouse(ctx, config)
	if err != nil {
		return err
	}
	defer wh.Close()

	extractor := spotify.NewExtractor(api, r.limits(config), r.logger)
	loader := warehouse.NewLoader(wh, r.logger)
	orchestrator := pipeline.New(extractor, loader, r.logger)

	progress := make(chan pipeline.ProgressUpdate, 64)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for update := range progress {
			if !cmd.Bool("quiet") {
				r.writePlain("→ %s\n", update.Message)
			}
		}
	}()

	summary, runErr := orchestrator.Run(ctx, progress)
	close(progress)
	<-printed

	if cmd.Bool("json") {
		if err := r.writeJSON(summary, cmd.Bool("pretty")); err != nil {
			return err
		}
	} else {
		r.writePlain("\n%s", formatter.RenderSummary(summary))
	}

	if path := cmd.String("output"); path != "" {
		if err := writeSummaryFile(path, summary); err != nil {
			return err
		}
		r.writePlain("Summary written to %s\n", path)
	}

	return runErr
}

// writeSummaryFile exports the summary in the format the file extension
// implies: .csv, .md, or plain text.
func writeSummaryFile(path string, summary *pipeline.Summary) error {
	var data []byte
	var err error

	switch filepath.Ext(path) {
	case ".csv":
		data, err = formatter.SummaryToCSV(summary)
	case ".md":
		data = formatter.SummaryToMarkdown(summary)
	default:
		data = formatter.SummaryToText(summary)
	}
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write summary file: %w", err)
	}
	return nil
}

// Prune deletes expired rows from the partitioned append-only tables.
func (r *Runner) Prune(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	retention := cmd.Int("retention-days")
	if retention <= 0 {
		retention = config.Extraction.RetentionDays
	}

	wh, err := r.openWarehouse(ctx, config)
	if err != nil {
		return err
	}
	defer wh.Close()

	loader := warehouse.NewLoader(wh, r.logger)
	results, err := loader.Prune(ctx, retention)
	if err != nil {
		return err
	}

	r.writePlain("%s", formatter.PruneToText(results))
	return nil
}

// Stats reports table sizes for the configured warehouse.
func (r *Runner) Stats(ctx context.Context, cmd *cli.Command) error {
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
	stats, err := loader.Stats(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(stats, cmd.Bool("pretty"))
	}

	r.writePlain("%s", formatter.StatsToText(stats))
	return nil
}
