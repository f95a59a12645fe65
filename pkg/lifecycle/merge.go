package lifecycle

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/Ramsey-B/reed/pkg/database"
	"github.com/Ramsey-B/reed/pkg/models"
	"github.com/Ramsey-B/reed/pkg/tracing"
)

// Merge folds one canonical into another. The losing record is retired with
// a back-reference, never deleted; its candidate links repoint to the
// survivor and survivorship reruns over the union. Replaying the same merge
// is a no-op.
func (e *Engine) Merge(ctx context.Context, entityType models.EntityType, keepID, mergeID, actor, sourceScope string, dryRun bool) (*models.LifecycleAction, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "lifecycle.Engine.Merge")
	defer span.End()

	if keepID == mergeID {
		return nil, false, httperror.NewHTTPErrorf(http.StatusBadRequest, "cannot merge canonical %s into itself", mergeID)
	}

	doc, err := e.activeDocument(ctx, entityType, sourceScope)
	if err != nil {
		return nil, false, err
	}

	payload := map[string]any{"keep_id": keepID, "merge_id": mergeID}
	return e.runAction(ctx, models.LifecycleActionMerge, entityType, actor, payload, dryRun,
		func(ctx context.Context, tx database.Tx, action *models.LifecycleAction) error {
			return e.merge(ctx, action, doc, entityType, keepID, mergeID)
		})
}

func (e *Engine) merge(ctx context.Context, action *models.LifecycleAction, doc models.RuleDocument, entityType models.EntityType, keepID, mergeID string) error {
	keep, err := e.canonicalRepo.ResolveLive(ctx, keepID)
	if err != nil {
		return err
	}
	loser, err := e.canonicalRepo.GetByID(ctx, mergeID)
	if err != nil {
		return err
	}

	if keep.EntityType != entityType || loser.EntityType != entityType {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "merge targets must both be %s canonicals", entityType)
	}
	if loser.Status == models.CanonicalStatusMerged {
		return httperror.NewHTTPErrorf(http.StatusConflict, "canonical %s is already merged", loser.ID)
	}
	if keep.ID == loser.ID {
		return httperror.NewHTTPErrorf(http.StatusConflict, "merge target resolves to the same live canonical %s", keep.ID)
	}

	repointed, err := e.canonicalLinkRepo.Repoint(ctx, loser.ID, keep.ID)
	if err != nil {
		return err
	}

	// Candidates promoted into the losing canonical now point at the
	// survivor. Promoted candidates stay promoted through a merge.
	moved, err := e.candidateRepo.ListByCanonical(ctx, keep.ID)
	if err != nil {
		return err
	}
	for i := range moved {
		cand := &moved[i]
		if cand.PromotedCanonicalID == nil || *cand.PromotedCanonicalID != loser.ID {
			continue
		}
		if err := e.candidateRepo.ApplyStateChange(ctx, cand, models.StateChange{
			ResolutionState:     models.ResolutionStateAutoPromote,
			IsPromoted:          true,
			PromotedCanonicalID: &keep.ID,
		}); err != nil {
			return err
		}
	}

	if err := e.recomputeCanonical(ctx, doc, keep, "merge", action.ID); err != nil {
		return err
	}
	if err := e.canonicalRepo.SetStatus(ctx, loser.ID, models.CanonicalStatusMerged, &keep.ID); err != nil {
		return err
	}

	// Registrations reference events and yachts by canonical id; those
	// references follow the survivor.
	rewritten := 0
	if entityType == models.EntityTypeEvent || entityType == models.EntityTypeYacht {
		attr := "event_canonical_id"
		if entityType == models.EntityTypeYacht {
			attr = "yacht_canonical_id"
		}
		rewritten, err = e.canonicalRepo.RewriteAttrRef(ctx, models.EntityTypeRegistration, attr, loser.ID, keep.ID)
		if err != nil {
			return err
		}
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"action_id":      action.ID,
		"keep_id":        keep.ID,
		"merge_id":       loser.ID,
		"links_moved":    repointed,
		"refs_rewritten": rewritten,
	}).Info("Merged canonical")

	if err := e.actionRepo.RecordItem(ctx, action.ID, loser.ID, models.ItemOutcomeApplied, nil,
		map[string]any{"status": models.CanonicalStatusActive},
		map[string]any{"status": models.CanonicalStatusMerged, "merged_into_id": keep.ID},
	); err != nil {
		return err
	}
	return e.actionRepo.RecordItem(ctx, action.ID, keep.ID, models.ItemOutcomeApplied, nil,
		map[string]any{"links": len(moved) - repointed},
		map[string]any{"links": len(moved)},
	)
}
