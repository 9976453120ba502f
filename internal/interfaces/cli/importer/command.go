// Package importer provides the CLI entry for bulk-importing Siyuan CSV
// exports through the settlement batch path.
package importer

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"confgive/internal/infrastructure/config"
	"confgive/internal/infrastructure/database"
	"confgive/internal/infrastructure/importer"
	"confgive/internal/infrastructure/repository"
	"confgive/internal/shared/biztime"
	"confgive/internal/shared/logger"
)

var (
	env       string
	file      string
	importEnv string
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Bulk-import donations from a Siyuan CSV export",
		RunE:  run,
	}

	cmd.Flags().StringVarP(&env, "env", "e", "development", "Environment (development, test, production)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to the CSV export (required)")
	cmd.Flags().StringVar(&importEnv, "import-env", "production", "Environment tag for imported rows (sandbox or production)")
	cmd.MarkFlagRequired("file")

	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	if envVar := os.Getenv("ENV"); envVar != "" {
		env = envVar
	}

	cfg, err := config.Load(env)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(&cfg.Logger); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	log := logger.NewLogger()

	if err := biztime.Init(cfg.Business.Timezone); err != nil {
		return err
	}

	raw, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("failed to read csv file: %w", err)
	}

	result := importer.ParseCSV(string(raw), importEnv)

	for _, lineErr := range result.Errors {
		log.Warnw("skipped csv line", "line", lineErr.Line, "reason", lineErr.Reason)
	}

	if len(result.Records) == 0 {
		log.Infow("nothing to import",
			"skipped_tappay", result.SkippedTapPay,
			"errors", len(result.Errors))
		return nil
	}

	if err := database.Init(&cfg.Database); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := repository.NewGivingRepository(database.Get())

	// All-or-nothing: one bad row rolls back the whole upload.
	inserted, err := repo.CreateBatch(context.Background(), result.Records)
	if err != nil {
		return fmt.Errorf("bulk import failed, no rows committed: %w", err)
	}

	log.Infow("bulk import completed",
		"inserted", inserted,
		"skipped_tappay", result.SkippedTapPay,
		"errors", len(result.Errors))

	return nil
}
