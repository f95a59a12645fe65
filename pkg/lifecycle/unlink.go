package lifecycle

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/Ramsey-B/reed/pkg/database"
	"github.com/Ramsey-B/reed/pkg/models"
	"github.com/Ramsey-B/reed/pkg/tracing"
)

// Unlink detaches one candidate from its canonical and returns it to review.
// Sibling candidates keep their links; the canonical's attributes are
// recomputed from whoever remains, or the canonical goes inert when nobody
// does.
func (e *Engine) Unlink(ctx context.Context, candidateID, actor, sourceScope string, dryRun bool) (*models.LifecycleAction, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "lifecycle.Engine.Unlink")
	defer span.End()

	cand, err := e.candidateRepo.GetByID(ctx, candidateID)
	if err != nil {
		return nil, false, err
	}

	doc, err := e.activeDocument(ctx, cand.EntityType, sourceScope)
	if err != nil {
		return nil, false, err
	}

	link, err := e.canonicalLinkRepo.GetByCandidate(ctx, candidateID)
	if err != nil {
		return nil, false, err
	}
	if link == nil {
		return nil, false, httperror.NewHTTPErrorf(http.StatusNotFound, "candidate %s has no canonical link", candidateID)
	}

	// The canonical identity is part of the action fingerprint: unlinking
	// the same candidate from a later canonical is a new action, not a
	// replay of the first one.
	payload := map[string]any{"candidate_id": candidateID, "canonical_id": link.CanonicalID}
	return e.runAction(ctx, models.LifecycleActionUnlink, cand.EntityType, actor, payload, dryRun,
		func(ctx context.Context, tx database.Tx, action *models.LifecycleAction) error {
			return e.unlink(ctx, action, doc, cand)
		})
}

func (e *Engine) unlink(ctx context.Context, action *models.LifecycleAction, doc models.RuleDocument, cand *models.Candidate) error {
	link, err := e.canonicalLinkRepo.GetByCandidate(ctx, cand.ID)
	if err != nil {
		return err
	}
	if link == nil {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "candidate %s has no canonical link", cand.ID)
	}

	before := snapshotMap(cand)
	if _, err := e.canonicalLinkRepo.Delete(ctx, cand.ID); err != nil {
		return err
	}
	if err := e.candidateRepo.ApplyStateChange(ctx, cand, models.StateChange{
		ResolutionState: models.ResolutionStateReview,
		IsPromoted:      false,
	}); err != nil {
		return err
	}

	can, err := e.canonicalRepo.GetByID(ctx, link.CanonicalID)
	if err != nil {
		return err
	}
	remaining, err := e.candidateRepo.ListByCanonical(ctx, can.ID)
	if err != nil {
		return err
	}
	if len(remaining) == 0 {
		if can.Status == models.CanonicalStatusActive {
			if err := e.canonicalRepo.SetStatus(ctx, can.ID, models.CanonicalStatusInert, nil); err != nil {
				return err
			}
		}
	} else if can.Status == models.CanonicalStatusActive {
		if err := e.recomputeCanonical(ctx, doc, can, "unlink", action.ID); err != nil {
			return err
		}
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"action_id":    action.ID,
		"candidate_id": cand.ID,
		"canonical_id": can.ID,
	}).Info("Unlinked candidate")

	return e.actionRepo.RecordItem(ctx, action.ID, cand.ID, models.ItemOutcomeApplied, nil, before, snapshotMap(cand))
}
