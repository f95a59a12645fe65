package main

import (
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/reed/pkg/models"
)

func newPromoteCmd(a *app) *cobra.Command {
	var entityTypes []string
	var sourceScope string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "promote",
		Short: "Materialize auto_promote candidates into canonical records",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.connect(ctx); err != nil {
				return err
			}

			types, err := models.SelectEntityTypes(entityTypes)
			if err != nil {
				return err
			}

			report, err := a.lifecycleEngine().Promote(ctx, types, sourceScope, dryRun)
			if err != nil {
				return err
			}
			for _, entityType := range types {
				a.logger.WithContext(ctx).WithFields(map[string]any{
					"entity_type": entityType,
					"action_id":   report.Actions[entityType],
					"dry_run":     report.DryRun,
					"counters":    report.Counters[entityType],
				}).Info("Promotion pass finished")
			}
			return report.Err()
		},
	}

	cmd.Flags().StringSliceVar(&entityTypes, "entity-type", nil, "entity types to promote (default all, in dependency order)")
	cmd.Flags().StringVar(&sourceScope, "source-scope", "default", "rule set source scope")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "run the promotion pass and roll back all writes")
	return cmd
}
