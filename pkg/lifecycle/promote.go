package lifecycle

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Ramsey-B/reed/pkg/database"
	"github.com/Ramsey-B/reed/pkg/models"
	"github.com/Ramsey-B/reed/pkg/tracing"
)

// PromoteCounters summarizes one entity type's promotion pass.
type PromoteCounters struct {
	CandidatesSeen    int `json:"candidates_seen"`
	Promoted          int `json:"promoted"`
	Relinked          int `json:"relinked"`
	SkippedMissingDep int `json:"candidates_skipped_missing_dep"`
	Errors            int `json:"errors"`
}

// PromoteReport is the outcome of a promotion run across entity types.
type PromoteReport struct {
	DryRun   bool                                   `json:"dry_run"`
	Counters map[models.EntityType]*PromoteCounters `json:"counters"`
	Actions  map[models.EntityType]string           `json:"actions"`
}

// Err returns a terminal error when any entity type recorded unresolved
// errors.
func (r *PromoteReport) Err() error {
	total := 0
	for _, c := range r.Counters {
		total += c.Errors
	}
	if total > 0 {
		return fmt.Errorf("promotion run finished with %d unresolved errors", total)
	}
	return nil
}

// Promote materializes every auto_promote candidate of the selected entity
// types into a canonical record. Types run in dependency order; each type is
// one audited action in its own transaction. Registrations whose event
// candidate is not yet promoted are skipped and picked up by a later run.
func (e *Engine) Promote(ctx context.Context, entityTypes []models.EntityType, sourceScope string, dryRun bool) (*PromoteReport, error) {
	ctx, span := tracing.StartSpan(ctx, "lifecycle.Engine.Promote")
	defer span.End()

	report := &PromoteReport{
		DryRun:   dryRun,
		Counters: map[models.EntityType]*PromoteCounters{},
		Actions:  map[models.EntityType]string{},
	}

	for _, entityType := range entityTypes {
		counters := &PromoteCounters{}
		report.Counters[entityType] = counters

		doc, err := e.activeDocument(ctx, entityType, sourceScope)
		if err != nil {
			return nil, err
		}

		payload := map[string]any{"run_id": uuid.New().String(), "source_scope": sourceScope}
		action, _, err := e.runAction(ctx, models.LifecycleActionPromote, entityType, PipelineActor, payload, dryRun,
			func(ctx context.Context, tx database.Tx, action *models.LifecycleAction) error {
				return e.promoteEntityType(ctx, tx, action, entityType, doc, counters)
			})
		if err != nil {
			return nil, err
		}
		report.Actions[entityType] = action.ID
	}

	return report, nil
}

func (e *Engine) promoteEntityType(ctx context.Context, tx database.Tx, action *models.LifecycleAction, entityType models.EntityType, doc models.RuleDocument, counters *PromoteCounters) error {
	candidates, err := e.candidateRepo.ListPromotable(ctx, entityType)
	if err != nil {
		return err
	}

	for i := range candidates {
		cand := &candidates[i]
		counters.CandidatesSeen++

		name := fmt.Sprintf("promote_%d", i)
		err := database.WithSavepoint(ctx, tx, name, func(ctx context.Context) error {
			return e.promoteCandidate(ctx, action, doc, cand, counters)
		})
		if err != nil {
			e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"action_id":    action.ID,
				"candidate_id": cand.ID,
			}).Error("Failed to promote candidate")
			counters.Errors++
			detail := err.Error()
			if recErr := e.actionRepo.RecordItem(ctx, action.ID, cand.ID, models.ItemOutcomeError, &detail, nil, nil); recErr != nil {
				return recErr
			}
		}
	}
	return nil
}

func (e *Engine) promoteCandidate(ctx context.Context, action *models.LifecycleAction, doc models.RuleDocument, cand *models.Candidate, counters *PromoteCounters) error {
	deps, skipReason, err := e.promotedDependencies(ctx, cand)
	if err != nil {
		return err
	}
	if skipReason != "" {
		counters.SkippedMissingDep++
		return e.actionRepo.RecordItem(ctx, action.ID, cand.ID, models.ItemOutcomeSkipped, &skipReason, nil, nil)
	}

	before := snapshotMap(cand)

	// A link left behind by a partially applied earlier run is reused rather
	// than minting a second canonical for the same candidate.
	existing, err := e.canonicalLinkRepo.GetByCandidate(ctx, cand.ID)
	if err != nil {
		return err
	}

	var can *models.Canonical
	if existing != nil {
		can, err = e.canonicalRepo.ResolveLive(ctx, existing.CanonicalID)
		if err != nil {
			return err
		}
		if err := e.recomputeCanonical(ctx, doc, can, "auto_promote", action.ID); err != nil {
			return err
		}
		counters.Relinked++
	} else {
		contribution, err := e.contribution(ctx, cand)
		if err != nil {
			return err
		}
		for k, v := range deps {
			contribution.Attrs[k] = v
		}

		attrs, decisions := Resolve(doc, []Contribution{contribution})
		can, err = e.canonicalRepo.Create(ctx, cand.EntityType, attrs, cand.QualityScore, action.ID)
		if err != nil {
			return err
		}
		if err := e.canonicalLinkRepo.Upsert(ctx, &models.CanonicalLink{
			EntityType:  cand.EntityType,
			CandidateID: cand.ID,
			CanonicalID: can.ID,
			LinkKind:    models.LinkKindAuto,
		}); err != nil {
			return err
		}
		if err := e.writeProvenance(ctx, cand.EntityType, can.ID, decisions, "auto_promote", doc.Version, action.ID); err != nil {
			return err
		}
	}

	if err := e.candidateRepo.ApplyStateChange(ctx, cand, models.StateChange{
		ResolutionState:     models.ResolutionStateAutoPromote,
		IsPromoted:          true,
		PromotedCanonicalID: &can.ID,
	}); err != nil {
		return err
	}

	if _, err := e.nbaRepo.DismissForCandidates(ctx, []string{cand.ID}); err != nil {
		return err
	}

	counters.Promoted++
	return e.actionRepo.RecordItem(ctx, action.ID, cand.ID, models.ItemOutcomeApplied, nil, before, snapshotMap(cand))
}

// promotedDependencies checks that a registration's event dependency is
// already promoted and returns the canonical references to attach. A missing
// or unpromoted event is a skip; a yacht is attached when promoted but does
// not block.
func (e *Engine) promotedDependencies(ctx context.Context, cand *models.Candidate) (map[string]any, string, error) {
	if cand.EntityType != models.EntityTypeRegistration {
		return nil, "", nil
	}

	attrs := cand.Attrs.GetValue()
	deps := map[string]any{}

	eventID, _ := attrs["event_candidate_id"].(string)
	if eventID == "" {
		return nil, "candidates_skipped_missing_dep:event", nil
	}
	event, err := e.candidateRepo.GetByID(ctx, eventID)
	if err != nil {
		return nil, "", err
	}
	if !event.IsPromoted || event.PromotedCanonicalID == nil {
		return nil, "candidates_skipped_missing_dep:event", nil
	}
	deps["event_canonical_id"] = *event.PromotedCanonicalID

	if yachtID, _ := attrs["yacht_candidate_id"].(string); yachtID != "" {
		yacht, err := e.candidateRepo.GetByID(ctx, yachtID)
		if err != nil {
			return nil, "", err
		}
		if yacht.IsPromoted && yacht.PromotedCanonicalID != nil {
			deps["yacht_canonical_id"] = *yacht.PromotedCanonicalID
		}
	}

	return deps, "", nil
}

func snapshotMap(cand *models.Candidate) map[string]any {
	out := map[string]any{
		"resolution_state": cand.ResolutionState,
		"is_promoted":      cand.IsPromoted,
	}
	if cand.PromotedCanonicalID != nil {
		out["promoted_canonical_id"] = *cand.PromotedCanonicalID
	}
	return out
}
