package models

import (
	"time"

	"github.com/Ramsey-B/reed/pkg/database"
)

// ResolutionState routes a candidate through the promotion state machine.
type ResolutionState string

const (
	ResolutionStateAutoPromote ResolutionState = "auto_promote"
	ResolutionStateReview      ResolutionState = "review"
	ResolutionStateHold        ResolutionState = "hold"
	ResolutionStateReject      ResolutionState = "reject"
)

func (s ResolutionState) Valid() bool {
	switch s {
	case ResolutionStateAutoPromote, ResolutionStateReview, ResolutionStateHold, ResolutionStateReject:
		return true
	}
	return false
}

// Candidate is a working record representing one hypothesized real-world
// entity. Created on first observation of a fingerprint, enriched fill-nulls
// only by later observations, mutated by scoring and lifecycle operations,
// never physically deleted.
type Candidate struct {
	ID                  string                         `json:"id" db:"id"`
	EntityType          EntityType                     `json:"entity_type" db:"entity_type"`
	StableFingerprint   string                         `json:"stable_fingerprint" db:"stable_fingerprint"`
	Attrs               database.JSONB[map[string]any] `json:"attrs" db:"attrs"`
	QualityScore        *float64                       `json:"quality_score" db:"quality_score"`
	ResolutionState     ResolutionState                `json:"resolution_state" db:"resolution_state"`
	ConfidenceReasons   database.JSONB[[]string]       `json:"confidence_reasons" db:"confidence_reasons"`
	IsPromoted          bool                           `json:"is_promoted" db:"is_promoted"`
	PromotedCanonicalID *string                        `json:"promoted_canonical_id" db:"promoted_canonical_id"`
	RuleVersion         *string                        `json:"rule_version" db:"rule_version"`
	ScoreRunID          *string                        `json:"score_run_id" db:"score_run_id"`
	CreatedAt           time.Time                      `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time                      `json:"updated_at" db:"updated_at"`
}

// StateSnapshot is the slice of a candidate the transition guard inspects.
type StateSnapshot struct {
	ResolutionState     ResolutionState
	IsPromoted          bool
	PromotedCanonicalID *string
}

// Snapshot extracts the guard-relevant fields of the candidate.
func (c *Candidate) Snapshot() StateSnapshot {
	return StateSnapshot{
		ResolutionState:     c.ResolutionState,
		IsPromoted:          c.IsPromoted,
		PromotedCanonicalID: c.PromotedCanonicalID,
	}
}

// StateChange is a requested mutation of the guard-relevant fields, applied
// through the candidate repository's guarded update.
type StateChange struct {
	ResolutionState     ResolutionState
	IsPromoted          bool
	PromotedCanonicalID *string
	QualityScore        *float64
	ConfidenceReasons   []string
	RuleVersion         *string
	ScoreRunID          *string
}
