package lifecycle

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/reed/internal/repositories/candidate"
	"github.com/Ramsey-B/reed/internal/repositories/canonical"
	"github.com/Ramsey-B/reed/internal/repositories/canonicallink"
	"github.com/Ramsey-B/reed/internal/repositories/lifecycleaction"
	"github.com/Ramsey-B/reed/internal/repositories/nextbestaction"
	"github.com/Ramsey-B/reed/internal/repositories/provenance"
	"github.com/Ramsey-B/reed/internal/repositories/ruleset"
	"github.com/Ramsey-B/reed/internal/repositories/sourcelink"
	"github.com/Ramsey-B/reed/pkg/database"
	"github.com/Ramsey-B/reed/pkg/fingerprint"
	"github.com/Ramsey-B/reed/pkg/models"
	"github.com/Ramsey-B/reed/pkg/tracing"
)

// PipelineActor is the actor recorded for automated pipeline operations.
const PipelineActor = "pipeline"

// Engine executes canonical lifecycle operations.
type Engine struct {
	logger            ectologger.Logger
	ruleSetRepo       *ruleset.Repository
	candidateRepo     *candidate.Repository
	canonicalRepo     *canonical.Repository
	canonicalLinkRepo *canonicallink.Repository
	sourceLinkRepo    *sourcelink.Repository
	provenanceRepo    *provenance.Repository
	actionRepo        *lifecycleaction.Repository
	nbaRepo           *nextbestaction.Repository
}

func NewEngine(
	logger ectologger.Logger,
	ruleSetRepo *ruleset.Repository,
	candidateRepo *candidate.Repository,
	canonicalRepo *canonical.Repository,
	canonicalLinkRepo *canonicallink.Repository,
	sourceLinkRepo *sourcelink.Repository,
	provenanceRepo *provenance.Repository,
	actionRepo *lifecycleaction.Repository,
	nbaRepo *nextbestaction.Repository,
) *Engine {
	return &Engine{
		logger:            logger,
		ruleSetRepo:       ruleSetRepo,
		candidateRepo:     candidateRepo,
		canonicalRepo:     canonicalRepo,
		canonicalLinkRepo: canonicalLinkRepo,
		sourceLinkRepo:    sourceLinkRepo,
		provenanceRepo:    provenanceRepo,
		actionRepo:        actionRepo,
		nbaRepo:           nbaRepo,
	}
}

// runAction wraps a lifecycle operation in one transaction with an audit
// record. A replay of an already-applied fingerprint is a no-op; a dry run
// executes fn fully and rolls everything back, leaving no trace.
func (e *Engine) runAction(
	ctx context.Context,
	actionType models.LifecycleActionType,
	entityType models.EntityType,
	actor string,
	payload map[string]any,
	dryRun bool,
	fn func(ctx context.Context, tx database.Tx, action *models.LifecycleAction) error,
) (*models.LifecycleAction, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "lifecycle.Engine.runAction")
	defer span.End()

	action := &models.LifecycleAction{
		ActionType: actionType,
		EntityType: entityType,
		ActionFingerprint: fingerprint.Generate(map[string]any{
			"action_type": string(actionType),
			"entity_type": string(entityType),
			"payload":     payload,
		}),
		Actor:   actor,
		Payload: database.JSONB[map[string]any]{Data: payload},
		DryRun:  dryRun,
	}

	ctxTx, tx, err := e.actionRepo.DB().GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx)

	replay, err := e.actionRepo.Begin(ctxTx, action)
	if err != nil {
		return nil, false, err
	}
	if replay {
		e.logger.WithContext(ctx).WithFields(map[string]any{
			"action_type": actionType,
			"fingerprint": action.ActionFingerprint,
		}).Info("Action already applied; no-op")
		return action, true, tx.Rollback(ctx)
	}

	if err := fn(ctxTx, tx, action); err != nil {
		return nil, false, err
	}

	if err := e.actionRepo.Finish(ctxTx, action.ID, models.RunStatusOK); err != nil {
		return nil, false, err
	}
	if dryRun {
		return action, false, tx.Rollback(ctx)
	}
	return action, false, tx.Commit(ctxTx)
}

// activeDocument loads the active rule document for an entity type.
func (e *Engine) activeDocument(ctx context.Context, entityType models.EntityType, sourceScope string) (models.RuleDocument, error) {
	ruleSet, err := e.ruleSetRepo.GetActive(ctx, entityType, sourceScope)
	if err != nil {
		return models.RuleDocument{}, err
	}
	return ruleSet.Document.GetValue(), nil
}

// contribution builds one candidate's survivorship input.
func (e *Engine) contribution(ctx context.Context, cand *models.Candidate) (Contribution, error) {
	systems, err := e.sourceLinkRepo.DistinctSourceSystems(ctx, cand.ID)
	if err != nil {
		return Contribution{}, err
	}
	return Contribution{
		CandidateID:   cand.ID,
		Attrs:         cand.Attrs.GetValue(),
		QualityScore:  cand.QualityScore,
		SourceSystems: systems,
		UpdatedAt:     cand.UpdatedAt,
	}, nil
}

// contributionsFor loads survivorship inputs for every candidate linked to a
// canonical.
func (e *Engine) contributionsFor(ctx context.Context, canonicalID string) ([]Contribution, error) {
	candidates, err := e.candidateRepo.ListByCanonical(ctx, canonicalID)
	if err != nil {
		return nil, err
	}
	contributions := make([]Contribution, 0, len(candidates))
	for i := range candidates {
		c, err := e.contribution(ctx, &candidates[i])
		if err != nil {
			return nil, err
		}
		contributions = append(contributions, c)
	}
	return contributions, nil
}

// recomputeCanonical reruns survivorship over the canonical's current link
// set and replaces its attributes and provenance.
func (e *Engine) recomputeCanonical(ctx context.Context, doc models.RuleDocument, can *models.Canonical, decidedBy, runID string) error {
	contributions, err := e.contributionsFor(ctx, can.ID)
	if err != nil {
		return err
	}
	if len(contributions) == 0 {
		return httperror.NewHTTPErrorf(http.StatusConflict, "canonical %s has no linked candidates to resolve from", can.ID)
	}

	attrs, decisions := Resolve(doc, contributions)
	confidence := maxScore(contributions)
	if err := e.canonicalRepo.UpdateAttrs(ctx, can.ID, attrs, confidence, runID); err != nil {
		return err
	}
	return e.writeProvenance(ctx, can.EntityType, can.ID, decisions, decidedBy, doc.Version, runID)
}

// writeProvenance upserts one row per surviving attribute and prunes rows
// for attributes that no longer survive.
func (e *Engine) writeProvenance(ctx context.Context, entityType models.EntityType, canonicalID string, decisions []AttributeDecision, decidedBy, ruleVersion, runID string) error {
	keep := make([]string, 0, len(decisions))
	for _, d := range decisions {
		keep = append(keep, d.Attribute)
		row := &models.AttributeProvenance{
			EntityType:      entityType,
			CanonicalID:     canonicalID,
			Attribute:       d.Attribute,
			CandidateID:     d.CandidateID,
			SourceSystem:    d.SourceSystem,
			Method:          string(d.Method),
			DecidedBy:       decidedBy,
			RuleVersion:     &ruleVersion,
			ResolutionRunID: &runID,
		}
		if err := e.provenanceRepo.Upsert(ctx, row); err != nil {
			return err
		}
	}
	return e.provenanceRepo.DeleteForCanonicalAttrs(ctx, canonicalID, keep)
}

func maxScore(contributions []Contribution) *float64 {
	var best *float64
	for i := range contributions {
		score := contributions[i].QualityScore
		if score == nil {
			continue
		}
		if best == nil || *score > *best {
			v := *score
			best = &v
		}
	}
	return best
}
