package lifecycle

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/Ramsey-B/reed/pkg/database"
	"github.com/Ramsey-B/reed/pkg/models"
	"github.com/Ramsey-B/reed/pkg/tracing"
)

// Demote withdraws a canonical from service. Every linked candidate returns
// to review with its promotion cleared; the canonical record is retained
// inert for audit.
func (e *Engine) Demote(ctx context.Context, entityType models.EntityType, canonicalID, actor string, dryRun bool) (*models.LifecycleAction, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "lifecycle.Engine.Demote")
	defer span.End()

	payload := map[string]any{"canonical_id": canonicalID}
	return e.runAction(ctx, models.LifecycleActionDemote, entityType, actor, payload, dryRun,
		func(ctx context.Context, tx database.Tx, action *models.LifecycleAction) error {
			return e.demote(ctx, action, entityType, canonicalID)
		})
}

func (e *Engine) demote(ctx context.Context, action *models.LifecycleAction, entityType models.EntityType, canonicalID string) error {
	can, err := e.canonicalRepo.GetByID(ctx, canonicalID)
	if err != nil {
		return err
	}
	if can.EntityType != entityType {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "canonical %s is not a %s", can.ID, entityType)
	}
	if can.Status != models.CanonicalStatusActive {
		return httperror.NewHTTPErrorf(http.StatusConflict, "canonical %s is %s, only active canonicals can be demoted", can.ID, can.Status)
	}

	candidates, err := e.candidateRepo.ListByCanonical(ctx, can.ID)
	if err != nil {
		return err
	}

	for i := range candidates {
		cand := &candidates[i]
		before := snapshotMap(cand)

		// Clearing the promotion in the same mutation is what lets the state
		// leave auto_promote.
		if err := e.candidateRepo.ApplyStateChange(ctx, cand, models.StateChange{
			ResolutionState: models.ResolutionStateReview,
			IsPromoted:      false,
		}); err != nil {
			return err
		}
		if _, err := e.canonicalLinkRepo.Delete(ctx, cand.ID); err != nil {
			return err
		}
		if err := e.actionRepo.RecordItem(ctx, action.ID, cand.ID, models.ItemOutcomeApplied, nil, before, snapshotMap(cand)); err != nil {
			return err
		}
	}

	if err := e.canonicalRepo.SetStatus(ctx, can.ID, models.CanonicalStatusInert, nil); err != nil {
		return err
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"action_id":    action.ID,
		"canonical_id": can.ID,
		"candidates":   len(candidates),
	}).Info("Demoted canonical")

	return e.actionRepo.RecordItem(ctx, action.ID, can.ID, models.ItemOutcomeApplied, nil,
		map[string]any{"status": models.CanonicalStatusActive},
		map[string]any{"status": models.CanonicalStatusInert},
	)
}
