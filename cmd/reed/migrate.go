package main

import (
	"fmt"

	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/reed/pkg/database"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.connect(ctx); err != nil {
				return err
			}

			instance, ok := a.db.(*database.DatabaseInstance)
			if !ok {
				return fmt.Errorf("migration requires a direct database connection")
			}
			driver, err := postgres.WithInstance(instance.DB.DB, &postgres.Config{})
			if err != nil {
				return fmt.Errorf("failed to prepare migration driver: %w", err)
			}

			service := database.NewMigrationService(a.logger, &database.MigrationConfig{
				MigrationFolderPath: a.cfg.DatabaseMigrationFolderPath,
				Version:             uint(a.cfg.DatabaseMigrationVersion),
				Force:               a.cfg.DatabaseMigrationForce,
				AutoRollback:        a.cfg.DatabaseMigrationAutoRollback,
			})
			if err := service.Migrate(a.cfg.DatabaseName, driver); err != nil {
				return err
			}

			a.logger.WithContext(ctx).Info("Migrations applied")
			return nil
		},
	}
}
