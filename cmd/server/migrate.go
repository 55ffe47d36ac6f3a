package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/site-audit/migrations"
	"github.com/garyjia/site-audit/pkg/database"
)

var migrateStatus bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE:  runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateStatus, "status", false, "list applied and pending migrations without applying them")
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := cmd.Context()
	db, err := database.New(ctx, cfg.Database.Config, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if !migrateStatus {
		applied, err := migrator.Run(ctx, migrations.FS)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		logger.Info("Migrations complete", zap.Int("applied", applied))
		fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", applied)
		return nil
	}

	status, err := migrator.Status(ctx, migrations.FS)
	if err != nil {
		return err
	}
	for _, m := range status {
		state := "pending"
		if m.Applied {
			state = "applied"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%03d  %-8s %s\n", m.Version, state, m.Name)
	}
	return nil
}
