package models

// TrustTier is a coarse label for how reliable a source system is.
type TrustTier string

const (
	TrustTierPrimary   TrustTier = "primary"
	TrustTierSecondary TrustTier = "secondary"
	TrustTierScraped   TrustTier = "scraped"
)

// SourceTrust is the per-source entry of the trust policy.
type SourceTrust struct {
	Weight float64   `json:"weight" yaml:"weight" validate:"gte=0,lte=1"`
	Tier   TrustTier `json:"tier" yaml:"tier" validate:"required,oneof=primary secondary scraped"`
}

// TrustPolicy adjusts confidence based on which sources, and how many
// distinct ones, support a candidate. One policy covers all entity types.
type TrustPolicy struct {
	Version                          string                 `json:"version" yaml:"version" validate:"required"`
	Sources                          map[string]SourceTrust `json:"sources" yaml:"sources" validate:"required,min=1,dive"`
	HighTrustThreshold               float64                `json:"high_trust_threshold" yaml:"high_trust_threshold" validate:"gte=0,lte=1"`
	MinDistinctSourcesForAutoPromote int                    `json:"min_distinct_sources_for_auto_promote" yaml:"min_distinct_sources_for_auto_promote" validate:"gte=0"`
	RequireHighTrustForAutoPromote   bool                   `json:"require_high_trust_for_auto_promote" yaml:"require_high_trust_for_auto_promote"`
	SingleSourcePenalty              float64                `json:"single_source_penalty" yaml:"single_source_penalty" validate:"gte=0"`
	MultiSourceBonus                 float64                `json:"multi_source_bonus" yaml:"multi_source_bonus" validate:"gte=0"`
	NoHighTrustPenalty               float64                `json:"no_high_trust_penalty" yaml:"no_high_trust_penalty" validate:"gte=0"`
	MaxTotalAdjustmentAbs            float64                `json:"max_total_adjustment_abs" yaml:"max_total_adjustment_abs" validate:"gte=0"`
}

// SourceWeight returns the configured weight for a source system. Unknown
// sources get weight 0 so they never count as high trust.
func (p *TrustPolicy) SourceWeight(sourceSystem string) float64 {
	if s, ok := p.Sources[sourceSystem]; ok {
		return s.Weight
	}
	return 0
}
