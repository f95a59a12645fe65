package main

import (
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/reed/pkg/models"
)

func newLinkCmd(a *app) *cobra.Command {
	var entityTypes []string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "link",
		Short: "Build candidates and source links from ingested source rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.connect(ctx); err != nil {
				return err
			}

			types, err := models.SelectEntityTypes(entityTypes)
			if err != nil {
				return err
			}

			report, err := a.builder().Run(ctx, types, dryRun)
			if err != nil {
				return err
			}

			a.logger.WithContext(ctx).WithFields(map[string]any{
				"run_id":   report.RunID,
				"dry_run":  report.DryRun,
				"counters": report.Counters,
				"warnings": report.Warnings,
			}).Info("Link run finished")
			return report.Err()
		},
	}

	cmd.Flags().StringSliceVar(&entityTypes, "entity-type", nil, "entity types to process (default all, in dependency order)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "run the full pipeline and roll back all writes")
	return cmd
}
