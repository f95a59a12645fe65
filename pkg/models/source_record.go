package models

import (
	"time"

	"github.com/Ramsey-B/reed/pkg/database"
)

// SourceRecord is a normalized, entity-typed row produced by an ingestion
// adapter. Immutable once ingested.
type SourceRecord struct {
	ID           string                         `json:"id" db:"id"`
	EntityType   EntityType                     `json:"entity_type" db:"entity_type"`
	SourceSystem string                         `json:"source_system" db:"source_system"`
	SourceTable  string                         `json:"source_table" db:"source_table"`
	SourceRowKey string                         `json:"source_row_key" db:"source_row_key"`
	RowHash      string                         `json:"row_hash" db:"row_hash"`
	Attrs        database.JSONB[map[string]any] `json:"attrs" db:"attrs"`
	CreatedAt    time.Time                      `json:"created_at" db:"created_at"`
}

// SourceLink ties one source record to the candidate it supports.
type SourceLink struct {
	ID           string     `json:"id" db:"id"`
	EntityType   EntityType `json:"entity_type" db:"entity_type"`
	CandidateID  string     `json:"candidate_id" db:"candidate_id"`
	SourceSystem string     `json:"source_system" db:"source_system"`
	SourceTable  string     `json:"source_table" db:"source_table"`
	SourceRowKey string     `json:"source_row_key" db:"source_row_key"`
	RowHash      string     `json:"row_hash" db:"row_hash"`
	LinkScore    *float64   `json:"link_score" db:"link_score"`
	LinkReason   *string    `json:"link_reason" db:"link_reason"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

// SkippedRow records a source row that could not be linked, with a stable
// reason code so no input is silently lost.
type SkippedRow struct {
	ID           string     `json:"id" db:"id"`
	EntityType   EntityType `json:"entity_type" db:"entity_type"`
	SourceSystem string     `json:"source_system" db:"source_system"`
	SourceTable  string     `json:"source_table" db:"source_table"`
	SourceRowKey string     `json:"source_row_key" db:"source_row_key"`
	ReasonCode   string     `json:"reason_code" db:"reason_code"`
	RunID        string     `json:"run_id" db:"run_id"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}
