package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/reed/pkg/lifecycle"
	"github.com/Ramsey-B/reed/pkg/models"
)

func newApplyCmd(a *app) *cobra.Command {
	var entityType string
	var file string
	var actor string
	var sourceScope string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply manual review decisions from a CSV file",
		Long:  "Reads candidate_id,decision[,note] rows and applies promote, reject, or hold decisions as one audited action. Replaying the same file is a no-op.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.connect(ctx); err != nil {
				return err
			}

			parsed, err := models.ParseEntityType(entityType)
			if err != nil {
				return err
			}

			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("failed to open decisions file %s: %w", file, err)
			}
			defer f.Close()

			decisions, err := lifecycle.ParseDecisionsCSV(f)
			if err != nil {
				return err
			}

			counters, replay, err := a.lifecycleEngine().Apply(ctx, parsed, decisions, actor, sourceScope, dryRun)
			if err != nil {
				return err
			}
			a.logger.WithContext(ctx).WithFields(map[string]any{
				"entity_type": parsed,
				"decisions":   len(decisions),
				"replay":      replay,
				"dry_run":     dryRun,
				"counters":    counters,
			}).Info("Decision batch finished")
			return counters.Err()
		},
	}

	cmd.Flags().StringVar(&entityType, "entity-type", "", "entity type the decisions apply to")
	cmd.Flags().StringVar(&file, "file", "", "CSV file of reviewer decisions")
	cmd.Flags().StringVar(&actor, "actor", "", "reviewer identity recorded on the action")
	cmd.Flags().StringVar(&sourceScope, "source-scope", "default", "rule set source scope")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "apply decisions and roll back all writes")
	_ = cmd.MarkFlagRequired("entity-type")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}
