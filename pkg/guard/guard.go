// Package guard is the single choke point for candidate state mutations.
// Every write path that touches (resolution_state, is_promoted,
// promoted_canonical_id) must pass its old and new snapshots through Check
// before writing, so illegal transitions are refused identically regardless
// of caller.
package guard

import (
	"fmt"

	"github.com/Ramsey-B/reed/pkg/models"
)

// TransitionError identifies a refused state mutation. Callers must treat it
// as a refused operation, never coerce the candidate into a "closest legal"
// state.
type TransitionError struct {
	EntityType  models.EntityType
	CandidateID string
	From        models.StateSnapshot
	To          models.StateSnapshot
	Reason      string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal transition for %s %s: %s -> %s (%s)",
		e.EntityType, e.CandidateID, describe(e.From), describe(e.To), e.Reason)
}

func describe(s models.StateSnapshot) string {
	canonical := "nil"
	if s.PromotedCanonicalID != nil {
		canonical = *s.PromotedCanonicalID
	}
	return fmt.Sprintf("{state=%s promoted=%t canonical=%s}", s.ResolutionState, s.IsPromoted, canonical)
}

// Check validates a requested mutation of a candidate's guarded fields.
// Returns a *TransitionError when the mutation is illegal.
//
// Rules:
//   - is_promoted=true requires resolution_state=auto_promote and a canonical
//     id; an unpromoted candidate must not carry a canonical id.
//   - When old and new are both promoted, resolution_state must stay
//     auto_promote. Lifecycle operations leave the promoted state by clearing
//     is_promoted in the same mutation, which makes new.IsPromoted false and
//     structurally bypasses this rule.
//   - reject cannot move directly to auto_promote unless the candidate was
//     promoted beforehand.
func Check(entityType models.EntityType, candidateID string, old, new models.StateSnapshot) error {
	if !new.ResolutionState.Valid() {
		return &TransitionError{
			EntityType:  entityType,
			CandidateID: candidateID,
			From:        old,
			To:          new,
			Reason:      fmt.Sprintf("unknown resolution state %q", new.ResolutionState),
		}
	}

	if new.IsPromoted {
		if new.ResolutionState != models.ResolutionStateAutoPromote {
			return &TransitionError{
				EntityType:  entityType,
				CandidateID: candidateID,
				From:        old,
				To:          new,
				Reason:      "promoted candidate must be in auto_promote",
			}
		}
		if new.PromotedCanonicalID == nil || *new.PromotedCanonicalID == "" {
			return &TransitionError{
				EntityType:  entityType,
				CandidateID: candidateID,
				From:        old,
				To:          new,
				Reason:      "promoted candidate must reference a canonical",
			}
		}
	} else if new.PromotedCanonicalID != nil && *new.PromotedCanonicalID != "" {
		return &TransitionError{
			EntityType:  entityType,
			CandidateID: candidateID,
			From:        old,
			To:          new,
			Reason:      "unpromoted candidate cannot reference a canonical",
		}
	}

	if old.IsPromoted && new.IsPromoted && new.ResolutionState != models.ResolutionStateAutoPromote {
		return &TransitionError{
			EntityType:  entityType,
			CandidateID: candidateID,
			From:        old,
			To:          new,
			Reason:      "promoted candidate cannot change resolution state",
		}
	}

	if !old.IsPromoted &&
		old.ResolutionState == models.ResolutionStateReject &&
		new.ResolutionState == models.ResolutionStateAutoPromote {
		return &TransitionError{
			EntityType:  entityType,
			CandidateID: candidateID,
			From:        old,
			To:          new,
			Reason:      "reject cannot move directly to auto_promote; pass through review or hold",
		}
	}

	return nil
}
