package main

import (
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/reed/pkg/models"
)

func newScoreCmd(a *app) *cobra.Command {
	var entityTypes []string
	var sourceScope string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score candidates against the active rule sets",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.connect(ctx); err != nil {
				return err
			}

			types, err := models.SelectEntityTypes(entityTypes)
			if err != nil {
				return err
			}
			engine, err := a.scoringEngine()
			if err != nil {
				return err
			}

			runs, err := engine.Run(ctx, types, sourceScope, dryRun)
			if err != nil {
				return err
			}
			var runErr error
			for _, run := range runs {
				a.logger.WithContext(ctx).WithFields(map[string]any{
					"run_id":      run.ID,
					"entity_type": run.EntityType,
					"status":      run.Status,
					"counters":    run.Counters.GetValue(),
				}).Info("Score run finished")
				if err := run.Err(); err != nil {
					runErr = err
				}
			}
			return runErr
		},
	}

	cmd.Flags().StringSliceVar(&entityTypes, "entity-type", nil, "entity types to score (default all)")
	cmd.Flags().StringVar(&sourceScope, "source-scope", "default", "rule set source scope")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compute scores and roll back candidate mutations")
	return cmd
}
