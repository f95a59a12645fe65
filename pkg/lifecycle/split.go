package lifecycle

import (
	"context"
	"net/http"
	"sort"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/Ramsey-B/reed/pkg/database"
	"github.com/Ramsey-B/reed/pkg/models"
	"github.com/Ramsey-B/reed/pkg/tracing"
)

// Split carves a subset of a canonical's candidates out into a new canonical
// and reruns survivorship on both sides. At least one candidate must remain
// behind.
func (e *Engine) Split(ctx context.Context, entityType models.EntityType, canonicalID string, candidateIDs []string, actor, sourceScope string, dryRun bool) (*models.LifecycleAction, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "lifecycle.Engine.Split")
	defer span.End()

	if len(candidateIDs) == 0 {
		return nil, false, httperror.NewHTTPError(http.StatusBadRequest, "split requires at least one candidate to move")
	}

	doc, err := e.activeDocument(ctx, entityType, sourceScope)
	if err != nil {
		return nil, false, err
	}

	sorted := append([]string{}, candidateIDs...)
	sort.Strings(sorted)
	payload := map[string]any{"canonical_id": canonicalID, "candidate_ids": sorted}

	return e.runAction(ctx, models.LifecycleActionSplit, entityType, actor, payload, dryRun,
		func(ctx context.Context, tx database.Tx, action *models.LifecycleAction) error {
			return e.split(ctx, action, doc, entityType, canonicalID, sorted)
		})
}

func (e *Engine) split(ctx context.Context, action *models.LifecycleAction, doc models.RuleDocument, entityType models.EntityType, canonicalID string, candidateIDs []string) error {
	source, err := e.canonicalRepo.ResolveLive(ctx, canonicalID)
	if err != nil {
		return err
	}
	if source.EntityType != entityType {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "canonical %s is not a %s", source.ID, entityType)
	}

	linked, err := e.candidateRepo.ListByCanonical(ctx, source.ID)
	if err != nil {
		return err
	}

	linkedIDs := map[string]bool{}
	for i := range linked {
		linkedIDs[linked[i].ID] = true
	}
	for _, id := range candidateIDs {
		if !linkedIDs[id] {
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "candidate %s is not linked to canonical %s", id, source.ID)
		}
	}
	if len(candidateIDs) >= len(linked) {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "split must leave at least one candidate on canonical %s", source.ID)
	}

	target, err := e.canonicalRepo.Create(ctx, entityType, map[string]any{}, nil, action.ID)
	if err != nil {
		return err
	}
	if _, err := e.canonicalLinkRepo.RepointCandidates(ctx, candidateIDs, target.ID); err != nil {
		return err
	}

	for i := range linked {
		cand := &linked[i]
		if !contains(candidateIDs, cand.ID) || !cand.IsPromoted {
			continue
		}
		if err := e.candidateRepo.ApplyStateChange(ctx, cand, models.StateChange{
			ResolutionState:     models.ResolutionStateAutoPromote,
			IsPromoted:          true,
			PromotedCanonicalID: &target.ID,
		}); err != nil {
			return err
		}
	}

	if err := e.recomputeCanonical(ctx, doc, source, "split", action.ID); err != nil {
		return err
	}
	if err := e.recomputeCanonical(ctx, doc, target, "split", action.ID); err != nil {
		return err
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"action_id":     action.ID,
		"canonical_id":  source.ID,
		"new_canonical": target.ID,
		"moved":         len(candidateIDs),
	}).Info("Split canonical")

	return e.actionRepo.RecordItem(ctx, action.ID, source.ID, models.ItemOutcomeApplied, nil,
		map[string]any{"candidates": len(linked)},
		map[string]any{"candidates": len(linked) - len(candidateIDs), "new_canonical_id": target.ID},
	)
}

func contains(list []string, want string) bool {
	for _, item := range list {
		if item == want {
			return true
		}
	}
	return false
}
