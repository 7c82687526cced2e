package cmd

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"phototrail/caption"
	"phototrail/database"
	"phototrail/geocode"
	"phototrail/ingest"
	"phototrail/mapsnap"
	"phototrail/repository"
)

// ingestCommand creates the command that runs one incremental ingestion pass.
func ingestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Scan the photo source tree and ingest new photos",
		Long: `Walks the photo source tree, skips photos already in the store, and runs
every new photo through metadata extraction, geocoding, map snapshot retrieval,
caption generation and persistence. Safe to re-run at any time.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			logger, err := zap.NewProduction()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			db, err := database.Init(cfg.DatabasePath)
			if err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			if err := database.AutoMigrate(db); err != nil {
				return err
			}

			repo := repository.NewPhotoRepository(db)
			geocoder := geocode.NewClient(cfg.GeocodeEndpoint, cfg.GeocodeLanguage, cfg.HTTPTimeout, logger)
			snapshots := mapsnap.NewFetcher(cfg.SearchEndpoint, cfg.SerpAPIKey, cfg.SearchLocationBias, cfg.MapsPath, cfg.HTTPTimeout, logger)
			captioner := caption.NewGenerator(cfg.CaptionEndpoint, cfg.AnthropicAPIKey, cfg.CaptionModel, cfg.CaptionSystemPrompt, cfg.HTTPTimeout, logger)

			coordinator, err := ingest.NewCoordinator(cfg, repo, geocoder, snapshots, captioner, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			report, err := coordinator.Run(ctx)
			if report != nil {
				fmt.Printf("run %s: %d discovered, %d skipped, %d processed, %d failed\n",
					report.RunID, report.Discovered, report.Skipped, report.Processed, report.Failed)
			}
			return err
		},
	}
}
