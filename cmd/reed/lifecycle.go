package main

import (
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/reed/pkg/models"
)

func newLifecycleCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lifecycle",
		Short: "Operate on canonical records",
	}
	cmd.AddCommand(
		newMergeCmd(a),
		newSplitCmd(a),
		newDemoteCmd(a),
		newUnlinkCmd(a),
	)
	return cmd
}

func newMergeCmd(a *app) *cobra.Command {
	var entityType, keepID, mergeID, actor, sourceScope string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge one canonical into another",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.connect(ctx); err != nil {
				return err
			}
			parsed, err := models.ParseEntityType(entityType)
			if err != nil {
				return err
			}

			action, replay, err := a.lifecycleEngine().Merge(ctx, parsed, keepID, mergeID, actor, sourceScope, dryRun)
			if err != nil {
				return err
			}
			a.logger.WithContext(ctx).WithFields(map[string]any{
				"action_id": action.ID,
				"keep_id":   keepID,
				"merge_id":  mergeID,
				"replay":    replay,
				"dry_run":   dryRun,
			}).Info("Merge finished")
			return nil
		},
	}

	cmd.Flags().StringVar(&entityType, "entity-type", "", "entity type of both canonicals")
	cmd.Flags().StringVar(&keepID, "keep", "", "canonical that survives")
	cmd.Flags().StringVar(&mergeID, "merge", "", "canonical folded into the survivor")
	cmd.Flags().StringVar(&actor, "actor", "", "operator identity recorded on the action")
	cmd.Flags().StringVar(&sourceScope, "source-scope", "default", "rule set source scope")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "run the merge and roll back all writes")
	_ = cmd.MarkFlagRequired("entity-type")
	_ = cmd.MarkFlagRequired("keep")
	_ = cmd.MarkFlagRequired("merge")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func newSplitCmd(a *app) *cobra.Command {
	var entityType, canonicalID, actor, sourceScope string
	var candidateIDs []string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "split",
		Short: "Move a subset of candidates onto a new canonical",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.connect(ctx); err != nil {
				return err
			}
			parsed, err := models.ParseEntityType(entityType)
			if err != nil {
				return err
			}

			action, replay, err := a.lifecycleEngine().Split(ctx, parsed, canonicalID, candidateIDs, actor, sourceScope, dryRun)
			if err != nil {
				return err
			}
			a.logger.WithContext(ctx).WithFields(map[string]any{
				"action_id":    action.ID,
				"canonical_id": canonicalID,
				"candidates":   len(candidateIDs),
				"replay":       replay,
				"dry_run":      dryRun,
			}).Info("Split finished")
			return nil
		},
	}

	cmd.Flags().StringVar(&entityType, "entity-type", "", "entity type of the canonical")
	cmd.Flags().StringVar(&canonicalID, "canonical", "", "canonical to split")
	cmd.Flags().StringSliceVar(&candidateIDs, "candidate", nil, "candidate ids to move to the new canonical")
	cmd.Flags().StringVar(&actor, "actor", "", "operator identity recorded on the action")
	cmd.Flags().StringVar(&sourceScope, "source-scope", "default", "rule set source scope")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "run the split and roll back all writes")
	_ = cmd.MarkFlagRequired("entity-type")
	_ = cmd.MarkFlagRequired("canonical")
	_ = cmd.MarkFlagRequired("candidate")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func newDemoteCmd(a *app) *cobra.Command {
	var entityType, canonicalID, actor string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "demote",
		Short: "Withdraw a canonical and return its candidates to review",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.connect(ctx); err != nil {
				return err
			}
			parsed, err := models.ParseEntityType(entityType)
			if err != nil {
				return err
			}

			action, replay, err := a.lifecycleEngine().Demote(ctx, parsed, canonicalID, actor, dryRun)
			if err != nil {
				return err
			}
			a.logger.WithContext(ctx).WithFields(map[string]any{
				"action_id":    action.ID,
				"canonical_id": canonicalID,
				"replay":       replay,
				"dry_run":      dryRun,
			}).Info("Demote finished")
			return nil
		},
	}

	cmd.Flags().StringVar(&entityType, "entity-type", "", "entity type of the canonical")
	cmd.Flags().StringVar(&canonicalID, "canonical", "", "canonical to demote")
	cmd.Flags().StringVar(&actor, "actor", "", "operator identity recorded on the action")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "run the demote and roll back all writes")
	_ = cmd.MarkFlagRequired("entity-type")
	_ = cmd.MarkFlagRequired("canonical")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func newUnlinkCmd(a *app) *cobra.Command {
	var candidateID, actor, sourceScope string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "unlink",
		Short: "Detach one candidate from its canonical",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.connect(ctx); err != nil {
				return err
			}

			action, replay, err := a.lifecycleEngine().Unlink(ctx, candidateID, actor, sourceScope, dryRun)
			if err != nil {
				return err
			}
			a.logger.WithContext(ctx).WithFields(map[string]any{
				"action_id":    action.ID,
				"candidate_id": candidateID,
				"replay":       replay,
				"dry_run":      dryRun,
			}).Info("Unlink finished")
			return nil
		},
	}

	cmd.Flags().StringVar(&candidateID, "candidate", "", "candidate to detach")
	cmd.Flags().StringVar(&actor, "actor", "", "operator identity recorded on the action")
	cmd.Flags().StringVar(&sourceScope, "source-scope", "default", "rule set source scope")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "run the unlink and roll back all writes")
	_ = cmd.MarkFlagRequired("candidate")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}
