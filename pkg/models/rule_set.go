package models

import (
	"time"

	"github.com/Ramsey-B/reed/pkg/database"
)

// SurvivorshipMethod selects which linked candidate's value wins a canonical
// attribute.
type SurvivorshipMethod string

const (
	SurvivorshipHighestPrecedenceNonNull SurvivorshipMethod = "highest_precedence_non_null"
	SurvivorshipHighestScoreConfirmed    SurvivorshipMethod = "highest_score_confirmed"
)

func (m SurvivorshipMethod) Valid() bool {
	return m == SurvivorshipHighestPrecedenceNonNull || m == SurvivorshipHighestScoreConfirmed
}

// Thresholds route a final score into a resolution state. Ordered
// hold <= review <= auto_promote.
type Thresholds struct {
	Hold        float64 `json:"hold" yaml:"hold"`
	Review      float64 `json:"review" yaml:"review"`
	AutoPromote float64 `json:"auto_promote" yaml:"auto_promote"`
}

// RuleDocument is the declarative scoring configuration for one entity type,
// loaded from YAML and validated before any row is scored.
type RuleDocument struct {
	EntityType                EntityType                    `json:"entity_type" yaml:"entity_type" validate:"required"`
	SourceScope               string                        `json:"source_scope" yaml:"source_scope" validate:"required"`
	Version                   string                        `json:"version" yaml:"version" validate:"required"`
	Thresholds                Thresholds                    `json:"thresholds" yaml:"thresholds"`
	FeatureWeights            map[string]float64            `json:"feature_weights" yaml:"feature_weights" validate:"required,min=1"`
	HardBlocks                []string                      `json:"hard_blocks" yaml:"hard_blocks"`
	MissingAttributePenalties map[string]float64            `json:"missing_attribute_penalties" yaml:"missing_attribute_penalties"`
	SourcePrecedence          []string                      `json:"source_precedence" yaml:"source_precedence"`
	Survivorship              map[string]SurvivorshipMethod `json:"survivorship" yaml:"survivorship"`
}

// RuleSet is a registered rule document: content hashed, versioned, at most
// one active per (entity_type, source_scope).
type RuleSet struct {
	ID          string                       `json:"id" db:"id"`
	EntityType  EntityType                   `json:"entity_type" db:"entity_type"`
	SourceScope string                       `json:"source_scope" db:"source_scope"`
	Version     string                       `json:"version" db:"version"`
	YamlHash    string                       `json:"yaml_hash" db:"yaml_hash"`
	Document    database.JSONB[RuleDocument] `json:"document" db:"document"`
	IsActive    bool                         `json:"is_active" db:"is_active"`
	CreatedAt   time.Time                    `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time                    `json:"updated_at" db:"updated_at"`
}
