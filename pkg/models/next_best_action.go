package models

import "time"

// NBAStatus is the work-item lifecycle for a next best action.
type NBAStatus string

const (
	NBAStatusOpen       NBAStatus = "open"
	NBAStatusInProgress NBAStatus = "in_progress"
	NBAStatusDone       NBAStatus = "done"
	NBAStatusDismissed  NBAStatus = "dismissed"
)

// NBA action types.
const (
	NBAActionEnrichCandidate  = "enrich_candidate"
	NBAActionManualEnrichment = "manual_enrichment"
	NBAActionManualReview     = "manual_review"
)

// NextBestAction is a prioritized, deduplicated work item for a candidate
// needing enrichment or manual review. At most one open or in-progress item
// per (candidate, action_type, reason_code).
type NextBestAction struct {
	ID          string     `json:"id" db:"id"`
	EntityType  EntityType `json:"entity_type" db:"entity_type"`
	CandidateID string     `json:"candidate_id" db:"candidate_id"`
	ActionType  string     `json:"action_type" db:"action_type"`
	ReasonCode  string     `json:"reason_code" db:"reason_code"`
	Priority    float64    `json:"priority" db:"priority"`
	Status      NBAStatus  `json:"status" db:"status"`
	ScoreRunID  *string    `json:"score_run_id" db:"score_run_id"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}
