package models

import "time"

// AttributeProvenance names which candidate and source won a canonical
// attribute. Exactly one active row per (entity_type, canonical_id,
// attribute); re-promotion, merge, and split replace the row in place.
type AttributeProvenance struct {
	ID              string     `json:"id" db:"id"`
	EntityType      EntityType `json:"entity_type" db:"entity_type"`
	CanonicalID     string     `json:"canonical_id" db:"canonical_id"`
	Attribute       string     `json:"attribute" db:"attribute"`
	CandidateID     string     `json:"candidate_id" db:"candidate_id"`
	SourceSystem    *string    `json:"source_system" db:"source_system"`
	Method          string     `json:"method" db:"method"`
	DecidedBy       string     `json:"decided_by" db:"decided_by"`
	RuleVersion     *string    `json:"rule_version" db:"rule_version"`
	ResolutionRunID *string    `json:"resolution_run_id" db:"resolution_run_id"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}
