package models

import (
	"time"

	"github.com/Ramsey-B/reed/pkg/database"
)

// CanonicalStatus tracks the disposition of a canonical record. Merged and
// inert canonicals are retained for audit, never deleted.
type CanonicalStatus string

const (
	CanonicalStatusActive CanonicalStatus = "active"
	CanonicalStatusMerged CanonicalStatus = "merged"
	CanonicalStatusInert  CanonicalStatus = "inert"
)

// Canonical is the trusted, promoted record surfaced for operational use.
type Canonical struct {
	ID              string                         `json:"id" db:"id"`
	EntityType      EntityType                     `json:"entity_type" db:"entity_type"`
	Attrs           database.JSONB[map[string]any] `json:"attrs" db:"attrs"`
	Confidence      *float64                       `json:"confidence" db:"confidence"`
	ResolutionRunID *string                        `json:"resolution_run_id" db:"resolution_run_id"`
	Status          CanonicalStatus                `json:"status" db:"status"`
	MergedIntoID    *string                        `json:"merged_into_id" db:"merged_into_id"`
	CreatedAt       time.Time                      `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time                      `json:"updated_at" db:"updated_at"`
}

// LinkKind distinguishes pipeline-made links from operator decisions.
type LinkKind string

const (
	LinkKindAuto   LinkKind = "auto"
	LinkKindManual LinkKind = "manual"
)

// CanonicalLink maps a candidate onto its canonical. At most one active row
// per candidate; many candidates may share a canonical.
type CanonicalLink struct {
	ID          string     `json:"id" db:"id"`
	EntityType  EntityType `json:"entity_type" db:"entity_type"`
	CandidateID string     `json:"candidate_id" db:"candidate_id"`
	CanonicalID string     `json:"canonical_id" db:"canonical_id"`
	LinkKind    LinkKind   `json:"link_kind" db:"link_kind"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}
