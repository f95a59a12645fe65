package models

import (
	"time"

	"github.com/Ramsey-B/reed/pkg/database"
)

// LineageMetrics is the per-entity-type coverage measurement used for
// purge-readiness decisions.
type LineageMetrics struct {
	CandidatesTotal           int            `json:"candidates_total"`
	CandidatesWithSourceLink  int            `json:"candidates_with_source_link"`
	CandidatesPromoted        int            `json:"candidates_promoted"`
	PctCandidateWithSource    *float64       `json:"pct_candidate_with_source"`
	PctCandidateToCanonical   *float64       `json:"pct_candidate_to_canonical"`
	UnresolvedByState         map[string]int `json:"unresolved_by_state"`
	SourceLinksTotal          int            `json:"source_links_total"`
	UnlinkedSourceRows        int            `json:"unlinked_source_rows"`
	PromotedMissingLink       int            `json:"promoted_missing_link"`
	CanonicalMissingProvenance int           `json:"canonical_missing_provenance"`
	UnresolvedCriticalDeps    int            `json:"unresolved_critical_deps"`
}

// LineageThresholds gate the purge-readiness verdict.
type LineageThresholds struct {
	MinPctCandidateWithSource  float64 `json:"min_pct_candidate_with_source" yaml:"min_pct_candidate_with_source"`
	MinPctCandidateToCanonical float64 `json:"min_pct_candidate_to_canonical" yaml:"min_pct_candidate_to_canonical"`
	AllowBlockingIssues        bool    `json:"allow_blocking_issues" yaml:"allow_blocking_issues"`
}

// LineageSnapshot is a persisted coverage measurement.
type LineageSnapshot struct {
	ID               string                         `json:"id" db:"id"`
	EntityType       EntityType                     `json:"entity_type" db:"entity_type"`
	Metrics          database.JSONB[LineageMetrics] `json:"metrics" db:"metrics"`
	ThresholdsPassed bool                           `json:"thresholds_passed" db:"thresholds_passed"`
	CreatedAt        time.Time                      `json:"created_at" db:"created_at"`
}
