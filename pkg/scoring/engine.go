package scoring

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/reed/internal/repositories/candidate"
	"github.com/Ramsey-B/reed/internal/repositories/nextbestaction"
	"github.com/Ramsey-B/reed/internal/repositories/ruleset"
	"github.com/Ramsey-B/reed/internal/repositories/scorerun"
	"github.com/Ramsey-B/reed/internal/repositories/sourcelink"
	"github.com/Ramsey-B/reed/pkg/database"
	"github.com/Ramsey-B/reed/pkg/models"
	"github.com/Ramsey-B/reed/pkg/tracing"
)

// Engine runs batch scoring passes over candidates using the active rule set
// for each entity type.
type Engine struct {
	logger        ectologger.Logger
	ruleSetRepo   *ruleset.Repository
	candidateRepo *candidate.Repository
	linkRepo      *sourcelink.Repository
	runRepo       *scorerun.Repository
	nbaRepo       *nextbestaction.Repository
	policy        models.TrustPolicy
	batchSize     int
}

func NewEngine(
	logger ectologger.Logger,
	ruleSetRepo *ruleset.Repository,
	candidateRepo *candidate.Repository,
	linkRepo *sourcelink.Repository,
	runRepo *scorerun.Repository,
	nbaRepo *nextbestaction.Repository,
	policy models.TrustPolicy,
	batchSize int,
) *Engine {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Engine{
		logger:        logger,
		ruleSetRepo:   ruleSetRepo,
		candidateRepo: candidateRepo,
		linkRepo:      linkRepo,
		runRepo:       runRepo,
		nbaRepo:       nbaRepo,
		policy:        policy,
		batchSize:     batchSize,
	}
}

// Run scores every candidate of the selected entity types against the active
// rule set and the source-trust policy. Each entity type gets its own score
// run row and its own transaction; a dry run computes everything, records the
// run row, and rolls the candidate mutations back.
func (e *Engine) Run(ctx context.Context, entityTypes []models.EntityType, sourceScope string, dryRun bool) ([]models.ScoreRun, error) {
	ctx, span := tracing.StartSpan(ctx, "scoring.Engine.Run")
	defer span.End()

	runs := make([]models.ScoreRun, 0, len(entityTypes))
	for _, entityType := range entityTypes {
		run, err := e.runEntityType(ctx, entityType, sourceScope, dryRun)
		if err != nil {
			return runs, err
		}
		runs = append(runs, *run)
	}
	return runs, nil
}

func (e *Engine) runEntityType(ctx context.Context, entityType models.EntityType, sourceScope string, dryRun bool) (*models.ScoreRun, error) {
	ctx, span := tracing.StartSpan(ctx, "scoring.Engine.runEntityType")
	defer span.End()

	ruleSet, err := e.ruleSetRepo.GetActive(ctx, entityType, sourceScope)
	if err != nil {
		return nil, err
	}

	// The run row is opened and closed outside the scoring transaction so a
	// dry run still leaves an auditable record behind.
	run, err := e.runRepo.Open(ctx, entityType, ruleSet.ID, dryRun)
	if err != nil {
		return nil, err
	}

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id":       run.ID,
		"entity_type":  entityType,
		"rule_version": ruleSet.Version,
		"dry_run":      dryRun,
	})
	log.Info("Starting score run")

	counters, err := e.scoreAll(ctx, entityType, ruleSet, run, dryRun)
	if err != nil {
		if closeErr := e.runRepo.Close(ctx, run.ID, models.RunStatusFailed, counters); closeErr != nil {
			log.WithError(closeErr).Error("Failed to close score run after failure")
		}
		return nil, err
	}

	if err := e.runRepo.Close(ctx, run.ID, models.RunStatusOK, counters); err != nil {
		return nil, err
	}

	run.Status = models.RunStatusOK
	run.Counters.Data = counters
	log.WithFields(map[string]any{"counters": counters}).Info("Score run complete")
	return run, nil
}

func (e *Engine) scoreAll(ctx context.Context, entityType models.EntityType, ruleSet *models.RuleSet, run *models.ScoreRun, dryRun bool) (models.ScoreCounters, error) {
	counters := models.ScoreCounters{}

	ctxTx, tx, err := e.candidateRepo.DB().GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return counters, err
	}
	defer tx.Rollback(ctx)

	doc := ruleSet.Document.GetValue()
	afterID := ""
	seq := 0
	for {
		batch, err := e.candidateRepo.ListBatch(ctxTx, entityType, afterID, e.batchSize)
		if err != nil {
			return counters, err
		}
		if len(batch) == 0 {
			break
		}

		for i := range batch {
			cand := &batch[i]
			seq++
			name := fmt.Sprintf("score_row_%d", seq)

			err := database.WithSavepoint(ctxTx, tx, name, func(ctx context.Context) error {
				return e.scoreCandidate(ctx, cand, doc, ruleSet.Version, run.ID, &counters)
			})
			if err != nil {
				e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
					"run_id":       run.ID,
					"candidate_id": cand.ID,
				}).Error("Failed to score candidate")
				counters.Errors++
			}
		}

		afterID = batch[len(batch)-1].ID
	}

	if dryRun {
		return counters, tx.Rollback(ctx)
	}
	return counters, tx.Commit(ctxTx)
}

func (e *Engine) scoreCandidate(ctx context.Context, cand *models.Candidate, doc models.RuleDocument, ruleVersion, runID string, counters *models.ScoreCounters) error {
	sourceSystems, err := e.linkRepo.DistinctSourceSystems(ctx, cand.ID)
	if err != nil {
		return err
	}

	result := Compute(Input{
		EntityType:    cand.EntityType,
		Attrs:         cand.Attrs.GetValue(),
		IsPromoted:    cand.IsPromoted,
		Rules:         doc,
		Policy:        e.policy,
		SourceSystems: sourceSystems,
	})

	score := result.FinalScore
	change := models.StateChange{
		ResolutionState:     result.State,
		IsPromoted:          cand.IsPromoted,
		PromotedCanonicalID: cand.PromotedCanonicalID,
		QualityScore:        &score,
		ConfidenceReasons:   result.Reasons,
		RuleVersion:         &ruleVersion,
		ScoreRunID:          &runID,
	}
	if err := e.candidateRepo.ApplyStateChange(ctx, cand, change); err != nil {
		return err
	}

	counters.Scored++
	switch result.State {
	case models.ResolutionStateAutoPromote:
		counters.AutoPromote++
	case models.ResolutionStateReview:
		counters.Review++
	case models.ResolutionStateHold:
		counters.Hold++
	case models.ResolutionStateReject:
		counters.Reject++
	}
	if result.HardBlocked {
		counters.HardBlocked++
	}
	if result.TrustCapped {
		counters.TrustCapped++
	}

	return e.syncActions(ctx, cand, doc, result, runID, counters)
}

// syncActions keeps next-best-action items aligned with the latest score.
// Open enrichment actions exist only for unpromoted review and hold
// candidates; everything else dismisses them.
func (e *Engine) syncActions(ctx context.Context, cand *models.Candidate, doc models.RuleDocument, result Result, runID string, counters *models.ScoreCounters) error {
	actionable := !cand.IsPromoted &&
		(result.State == models.ResolutionStateReview || result.State == models.ResolutionStateHold) &&
		!result.HardBlocked

	var keepReasons []string
	if actionable {
		for _, feature := range enrichmentTargets(doc, result.MissingFeatures) {
			reason := "missing_" + feature
			keepReasons = append(keepReasons, reason)

			opened, err := e.nbaRepo.OpenIfAbsent(ctx, &models.NextBestAction{
				EntityType:  cand.EntityType,
				CandidateID: cand.ID,
				ActionType:  models.NBAActionEnrichCandidate,
				ReasonCode:  reason,
				Priority:    doc.FeatureWeights[feature],
				Status:      models.NBAStatusOpen,
				ScoreRunID:  &runID,
			})
			if err != nil {
				return err
			}
			if opened {
				counters.NBAsOpened++
			}
		}
	}

	closed, err := e.nbaRepo.CloseStale(ctx, cand.ID, []string{models.NBAActionEnrichCandidate}, keepReasons)
	if err != nil {
		return err
	}
	counters.NBAsClosed += closed
	return nil
}

// enrichmentTargets filters missing features down to those worth a work
// item. A zero-weight feature cannot move the score, so it never opens one.
func enrichmentTargets(doc models.RuleDocument, missing []string) []string {
	var targets []string
	for _, feature := range missing {
		if doc.FeatureWeights[feature] > 0 {
			targets = append(targets, feature)
		}
	}
	return targets
}
