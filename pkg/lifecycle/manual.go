package lifecycle

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/Ramsey-B/reed/pkg/database"
	"github.com/Ramsey-B/reed/pkg/models"
	"github.com/Ramsey-B/reed/pkg/tracing"
)

// Manual review decisions.
const (
	DecisionPromote = "promote"
	DecisionReject  = "reject"
	DecisionHold    = "hold"
)

// Decision is one reviewer verdict on a candidate.
type Decision struct {
	CandidateID string
	Decision    string
	Note        string
}

// ApplyCounters summarizes a manual decision batch.
type ApplyCounters struct {
	Applied int `json:"applied"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// Err returns a terminal error when the batch recorded unresolved errors.
func (c *ApplyCounters) Err() error {
	if c.Errors > 0 {
		return fmt.Errorf("decision batch finished with %d unresolved errors", c.Errors)
	}
	return nil
}

// ParseDecisionsCSV reads reviewer decisions from CSV rows of
// candidate_id,decision[,note]. A leading header row is skipped.
func ParseDecisionsCSV(r io.Reader) ([]Decision, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var decisions []Decision
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid decision csv: %v", err)
		}
		if len(record) < 2 {
			return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "decision rows need candidate_id and decision, got %d columns", len(record))
		}
		if strings.EqualFold(strings.TrimSpace(record[0]), "candidate_id") {
			continue
		}

		d := Decision{
			CandidateID: strings.TrimSpace(record[0]),
			Decision:    strings.ToLower(strings.TrimSpace(record[1])),
		}
		if len(record) > 2 {
			d.Note = strings.TrimSpace(record[2])
		}
		switch d.Decision {
		case DecisionPromote, DecisionReject, DecisionHold:
		default:
			return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown decision %q for candidate %s", d.Decision, d.CandidateID)
		}
		decisions = append(decisions, d)
	}
	if len(decisions) == 0 {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "decision csv contains no rows")
	}
	return decisions, nil
}

// Apply executes a batch of reviewer decisions as one audited action.
// Replaying an identical batch is a no-op; within a batch each decision is
// isolated so one bad row does not poison the rest.
func (e *Engine) Apply(ctx context.Context, entityType models.EntityType, decisions []Decision, actor, sourceScope string, dryRun bool) (*ApplyCounters, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "lifecycle.Engine.Apply")
	defer span.End()

	doc, err := e.activeDocument(ctx, entityType, sourceScope)
	if err != nil {
		return nil, false, err
	}

	rows := make([]any, 0, len(decisions))
	for _, d := range decisions {
		rows = append(rows, map[string]any{"candidate_id": d.CandidateID, "decision": d.Decision})
	}
	payload := map[string]any{"decisions": rows}

	counters := &ApplyCounters{}
	_, replay, err := e.runAction(ctx, models.LifecycleActionManual, entityType, actor, payload, dryRun,
		func(ctx context.Context, tx database.Tx, action *models.LifecycleAction) error {
			for i, d := range decisions {
				name := fmt.Sprintf("decision_%d", i)
				decision := d
				err := database.WithSavepoint(ctx, tx, name, func(ctx context.Context) error {
					return e.applyDecision(ctx, action, doc, entityType, decision, counters)
				})
				if err != nil {
					e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
						"action_id":    action.ID,
						"candidate_id": decision.CandidateID,
						"decision":     decision.Decision,
					}).Error("Failed to apply decision")
					counters.Errors++
					detail := err.Error()
					if recErr := e.actionRepo.RecordItem(ctx, action.ID, decision.CandidateID, models.ItemOutcomeError, &detail, nil, nil); recErr != nil {
						return recErr
					}
				}
			}
			return nil
		})
	return counters, replay, err
}

func (e *Engine) applyDecision(ctx context.Context, action *models.LifecycleAction, doc models.RuleDocument, entityType models.EntityType, d Decision, counters *ApplyCounters) error {
	cand, err := e.candidateRepo.GetByID(ctx, d.CandidateID)
	if err != nil {
		return err
	}
	if cand.EntityType != entityType {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "candidate %s is a %s, batch is for %s", cand.ID, cand.EntityType, entityType)
	}

	switch d.Decision {
	case DecisionPromote:
		return e.manualPromote(ctx, action, doc, cand, counters)
	case DecisionReject, DecisionHold:
		return e.manualRoute(ctx, action, cand, d.Decision, counters)
	default:
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown decision %q", d.Decision)
	}
}

func (e *Engine) manualPromote(ctx context.Context, action *models.LifecycleAction, doc models.RuleDocument, cand *models.Candidate, counters *ApplyCounters) error {
	if cand.IsPromoted {
		counters.Skipped++
		detail := "already promoted"
		return e.actionRepo.RecordItem(ctx, action.ID, cand.ID, models.ItemOutcomeSkipped, &detail, nil, nil)
	}
	if cand.ResolutionState != models.ResolutionStateReview && cand.ResolutionState != models.ResolutionStateHold {
		return httperror.NewHTTPErrorf(http.StatusConflict, "candidate %s is %s, manual promote requires review or hold", cand.ID, cand.ResolutionState)
	}

	deps, skipReason, err := e.promotedDependencies(ctx, cand)
	if err != nil {
		return err
	}
	if skipReason != "" {
		counters.Skipped++
		return e.actionRepo.RecordItem(ctx, action.ID, cand.ID, models.ItemOutcomeSkipped, &skipReason, nil, nil)
	}

	before := snapshotMap(cand)

	// A dangling link from earlier partial work self-heals here: follow any
	// merge chain to the live canonical and reuse it instead of minting a
	// duplicate.
	var can *models.Canonical
	existing, err := e.canonicalLinkRepo.GetByCandidate(ctx, cand.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		can, err = e.canonicalRepo.ResolveLive(ctx, existing.CanonicalID)
		if err != nil {
			return err
		}
		if can.ID != existing.CanonicalID {
			if err := e.canonicalLinkRepo.Upsert(ctx, &models.CanonicalLink{
				EntityType:  cand.EntityType,
				CandidateID: cand.ID,
				CanonicalID: can.ID,
				LinkKind:    models.LinkKindManual,
			}); err != nil {
				return err
			}
		}
		if err := e.recomputeCanonical(ctx, doc, can, "manual", action.ID); err != nil {
			return err
		}
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
			LinkKind:    models.LinkKindManual,
		}); err != nil {
			return err
		}
		if err := e.writeProvenance(ctx, cand.EntityType, can.ID, decisions, "manual", doc.Version, action.ID); err != nil {
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

	counters.Applied++
	return e.actionRepo.RecordItem(ctx, action.ID, cand.ID, models.ItemOutcomeApplied, nil, before, snapshotMap(cand))
}

func (e *Engine) manualRoute(ctx context.Context, action *models.LifecycleAction, cand *models.Candidate, decision string, counters *ApplyCounters) error {
	if cand.IsPromoted {
		return httperror.NewHTTPErrorf(http.StatusConflict, "candidate %s is promoted, demote its canonical before a %s decision", cand.ID, decision)
	}

	state := models.ResolutionStateHold
	if decision == DecisionReject {
		state = models.ResolutionStateReject
	}
	if cand.ResolutionState == state {
		counters.Skipped++
		detail := "already " + string(state)
		return e.actionRepo.RecordItem(ctx, action.ID, cand.ID, models.ItemOutcomeSkipped, &detail, nil, nil)
	}

	before := snapshotMap(cand)
	if err := e.candidateRepo.ApplyStateChange(ctx, cand, models.StateChange{
		ResolutionState: state,
		IsPromoted:      false,
	}); err != nil {
		return err
	}
	if state == models.ResolutionStateReject {
		if _, err := e.nbaRepo.DismissForCandidates(ctx, []string{cand.ID}); err != nil {
			return err
		}
	}

	counters.Applied++
	return e.actionRepo.RecordItem(ctx, action.ID, cand.ID, models.ItemOutcomeApplied, nil, before, snapshotMap(cand))
}
