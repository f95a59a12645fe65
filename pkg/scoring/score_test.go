package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/reed/pkg/models"
)

func testPolicy() models.TrustPolicy {
	return models.TrustPolicy{
		Version: "test",
		Sources: map[string]models.SourceTrust{
			"registrar":  {Weight: 1.0, Tier: models.TrustTierPrimary},
			"web_scrape": {Weight: 0.5, Tier: models.TrustTierScraped},
		},
		HighTrustThreshold:               0.8,
		MinDistinctSourcesForAutoPromote: 1,
		RequireHighTrustForAutoPromote:   true,
		SingleSourcePenalty:              0.02,
		MultiSourceBonus:                 0.05,
		NoHighTrustPenalty:               0.02,
		MaxTotalAdjustmentAbs:            0.10,
	}
}

func testRules() models.RuleDocument {
	return models.RuleDocument{
		EntityType:  models.EntityTypeParticipant,
		SourceScope: "default",
		Version:     "test",
		Thresholds: models.Thresholds{
			Hold:        0.40,
			Review:      0.70,
			AutoPromote: 0.92,
		},
		FeatureWeights: map[string]float64{
			"name":  0.50,
			"email": 0.46,
		},
		HardBlocks: []string{"conflict:email"},
		MissingAttributePenalties: map[string]float64{
			"missing_email": 0.05,
		},
	}
}

func TestCompute(t *testing.T) {
	t.Run("should cap a high score at review when no high trust source backs it", func(t *testing.T) {
		res := Compute(Input{
			EntityType:    models.EntityTypeParticipant,
			Attrs:         map[string]any{"name": "alice tran", "email": "alice@example.com"},
			Rules:         testRules(),
			Policy:        testPolicy(),
			SourceSystems: []string{"web_scrape"},
		})

		assert.Equal(t, 0.96, res.BaseScore)
		assert.Equal(t, -0.04, res.Adjustment)
		assert.Equal(t, 0.92, res.FinalScore)
		assert.True(t, res.TrustCapped)
		assert.Equal(t, models.ResolutionStateReview, res.State)
		assert.Contains(t, res.Reasons, "gate:require_high_trust")
	})

	t.Run("should auto promote with a multi source bonus", func(t *testing.T) {
		rules := testRules()
		rules.FeatureWeights = map[string]float64{
			"name":  0.50,
			"email": 0.40,
		}
		rules.MissingAttributePenalties = nil

		res := Compute(Input{
			EntityType:    models.EntityTypeParticipant,
			Attrs:         map[string]any{"name": "alice tran", "email": "alice@example.com"},
			Rules:         rules,
			Policy:        testPolicy(),
			SourceSystems: []string{"registrar", "web_scrape"},
		})

		assert.Equal(t, 0.90, res.BaseScore)
		assert.Equal(t, 0.05, res.Adjustment)
		assert.Equal(t, 0.95, res.FinalScore)
		assert.False(t, res.TrustCapped)
		assert.Equal(t, models.ResolutionStateAutoPromote, res.State)
		assert.Contains(t, res.Reasons, "trust:multi_source:+0.0500")
	})

	t.Run("should short-circuit on hard block", func(t *testing.T) {
		res := Compute(Input{
			EntityType: models.EntityTypeParticipant,
			Attrs: map[string]any{
				"name":        "alice tran",
				"email":       "alice@example.com",
				"hard_blocks": []any{"conflict:email"},
			},
			Rules:         testRules(),
			Policy:        testPolicy(),
			SourceSystems: []string{"registrar", "web_scrape"},
		})

		assert.True(t, res.HardBlocked)
		assert.Equal(t, 0.0, res.FinalScore)
		assert.Equal(t, models.ResolutionStateReject, res.State)
		assert.Equal(t, []string{"hard_block:conflict:email"}, res.Reasons)
	})

	t.Run("should apply missing attribute penalties and report missing features", func(t *testing.T) {
		res := Compute(Input{
			EntityType:    models.EntityTypeParticipant,
			Attrs:         map[string]any{"name": "alice tran"},
			Rules:         testRules(),
			Policy:        testPolicy(),
			SourceSystems: []string{"registrar"},
		})

		// 0.50 for name, -0.05 for the missing email penalty.
		assert.Equal(t, 0.45, res.BaseScore)
		assert.Equal(t, []string{"email"}, res.MissingFeatures)
		assert.Contains(t, res.Reasons, "penalty:missing_email:0.0500")
		assert.Equal(t, models.ResolutionStateHold, res.State)
	})

	t.Run("should treat blank strings as absent", func(t *testing.T) {
		res := Compute(Input{
			EntityType:    models.EntityTypeParticipant,
			Attrs:         map[string]any{"name": "alice tran", "email": "   "},
			Rules:         testRules(),
			Policy:        testPolicy(),
			SourceSystems: []string{"registrar"},
		})

		assert.Contains(t, res.MissingFeatures, "email")
	})

	t.Run("should clamp the trust adjustment", func(t *testing.T) {
		policy := testPolicy()
		policy.SingleSourcePenalty = 0.08
		policy.NoHighTrustPenalty = 0.08

		res := Compute(Input{
			EntityType:    models.EntityTypeParticipant,
			Attrs:         map[string]any{"name": "alice tran", "email": "alice@example.com"},
			Rules:         testRules(),
			Policy:        policy,
			SourceSystems: []string{"web_scrape"},
		})

		assert.Equal(t, -0.10, res.Adjustment)
		assert.Contains(t, res.Reasons, "trust:clamped:-0.1000")
	})

	t.Run("should route below hold threshold to reject", func(t *testing.T) {
		res := Compute(Input{
			EntityType:    models.EntityTypeParticipant,
			Attrs:         map[string]any{},
			Rules:         testRules(),
			Policy:        testPolicy(),
			SourceSystems: []string{"registrar"},
		})

		assert.Equal(t, 0.0, res.BaseScore)
		assert.Equal(t, models.ResolutionStateReject, res.State)
	})

	t.Run("should never route a promoted candidate below auto_promote", func(t *testing.T) {
		res := Compute(Input{
			EntityType:    models.EntityTypeParticipant,
			Attrs:         map[string]any{"name": "alice tran"},
			IsPromoted:    true,
			Rules:         testRules(),
			Policy:        testPolicy(),
			SourceSystems: []string{"registrar"},
		})

		assert.Equal(t, models.ResolutionStateAutoPromote, res.State)
	})

	t.Run("should skip zero-weight features when selecting enrichment targets", func(t *testing.T) {
		rules := testRules()
		rules.FeatureWeights = map[string]float64{
			"name":      0.50,
			"email":     0.46,
			"deck_plan": 0,
		}

		targets := enrichmentTargets(rules, []string{"email", "deck_plan"})
		assert.Equal(t, []string{"email"}, targets)
	})

	t.Run("should be deterministic for identical input", func(t *testing.T) {
		in := Input{
			EntityType:    models.EntityTypeParticipant,
			Attrs:         map[string]any{"name": "alice tran", "email": "alice@example.com"},
			Rules:         testRules(),
			Policy:        testPolicy(),
			SourceSystems: []string{"registrar", "web_scrape"},
		}

		first := Compute(in)
		second := Compute(in)
		assert.Equal(t, first, second)
	})
}
