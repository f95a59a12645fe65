package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/reed/pkg/models"
)

func lineageThresholdFlags(cmd *cobra.Command, thresholds *models.LineageThresholds) {
	cmd.Flags().Float64Var(&thresholds.MinPctCandidateWithSource, "min-pct-with-source", 100, "minimum percent of candidates with a source link")
	cmd.Flags().Float64Var(&thresholds.MinPctCandidateToCanonical, "min-pct-to-canonical", 0, "minimum percent of candidates promoted to canonical")
	cmd.Flags().BoolVar(&thresholds.AllowBlockingIssues, "allow-blocking-issues", false, "pass the verdict even when blocking issues exist")
}

func newLineageCmd(a *app) *cobra.Command {
	var entityTypes []string
	var snapshot bool
	var thresholds models.LineageThresholds

	cmd := &cobra.Command{
		Use:   "lineage",
		Short: "Report lineage coverage and blocking issues",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.connect(ctx); err != nil {
				return err
			}

			types, err := models.SelectEntityTypes(entityTypes)
			if err != nil {
				return err
			}

			report, err := a.reporter(thresholds).Report(ctx, types, snapshot)
			if err != nil {
				return err
			}
			return printJSON(report)
		},
	}

	cmd.Flags().StringSliceVar(&entityTypes, "entity-type", nil, "entity types to measure (default all)")
	cmd.Flags().BoolVar(&snapshot, "snapshot", false, "persist one snapshot row per entity type")
	lineageThresholdFlags(cmd, &thresholds)
	return cmd
}

func newPurgeCheckCmd(a *app) *cobra.Command {
	var entityTypes []string
	var thresholds models.LineageThresholds

	cmd := &cobra.Command{
		Use:   "purge-check",
		Short: "Verify source data can be purged without losing lineage",
		Long:  "Runs the lineage report, persists a snapshot, and exits non-zero when any entity type fails its thresholds or has blocking issues.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.connect(ctx); err != nil {
				return err
			}

			types, err := models.SelectEntityTypes(entityTypes)
			if err != nil {
				return err
			}

			report, err := a.reporter(thresholds).Report(ctx, types, true)
			if err != nil {
				return err
			}
			if err := printJSON(report); err != nil {
				return err
			}
			if !report.Passed {
				return fmt.Errorf("purge check failed: lineage coverage below thresholds or blocking issues present")
			}
			a.logger.WithContext(ctx).Info("Purge check passed")
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&entityTypes, "entity-type", nil, "entity types to check (default all)")
	lineageThresholdFlags(cmd, &thresholds)
	return cmd
}

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
