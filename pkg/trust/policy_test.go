package trust

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/reed/pkg/models"
)

func policyFixture() models.TrustPolicy {
	return models.TrustPolicy{
		Version: "test",
		Sources: map[string]models.SourceTrust{
			"registrar":  {Weight: 1.0, Tier: models.TrustTierPrimary},
			"roster":     {Weight: 0.7, Tier: models.TrustTierSecondary},
			"web_scrape": {Weight: 0.3, Tier: models.TrustTierScraped},
		},
		HighTrustThreshold:               0.8,
		MinDistinctSourcesForAutoPromote: 2,
		RequireHighTrustForAutoPromote:   true,
		SingleSourcePenalty:              0.05,
		MultiSourceBonus:                 0.05,
		NoHighTrustPenalty:               0.05,
		MaxTotalAdjustmentAbs:            0.10,
	}
}

func TestComputeSignals(t *testing.T) {
	t.Run("should count distinct sources and detect high trust", func(t *testing.T) {
		policy := policyFixture()

		signals := ComputeSignals(&policy, []string{"registrar", "web_scrape", "registrar"})
		assert.Equal(t, 2, signals.DistinctSourceCount)
		assert.True(t, signals.HasHighTrustSource)
		assert.Equal(t, 1.0, signals.MaxSourceWeight)
	})

	t.Run("should ignore empty source names", func(t *testing.T) {
		policy := policyFixture()

		signals := ComputeSignals(&policy, []string{"", "web_scrape"})
		assert.Equal(t, 1, signals.DistinctSourceCount)
		assert.False(t, signals.HasHighTrustSource)
	})

	t.Run("should give unknown sources zero weight", func(t *testing.T) {
		policy := policyFixture()

		signals := ComputeSignals(&policy, []string{"mystery_feed"})
		assert.Equal(t, 1, signals.DistinctSourceCount)
		assert.False(t, signals.HasHighTrustSource)
		assert.Equal(t, 0.0, signals.MaxSourceWeight)
	})
}

func TestAdjustment(t *testing.T) {
	t.Run("should penalize a single low trust source", func(t *testing.T) {
		policy := policyFixture()
		signals := ComputeSignals(&policy, []string{"web_scrape"})

		adj, reasons := Adjustment(&policy, signals)
		assert.Equal(t, -0.10, adj)
		assert.Contains(t, reasons, "trust:single_source:-0.0500")
		assert.Contains(t, reasons, "trust:no_high_trust:-0.0500")
	})

	t.Run("should reward multiple sources with high trust present", func(t *testing.T) {
		policy := policyFixture()
		signals := ComputeSignals(&policy, []string{"registrar", "roster"})

		adj, reasons := Adjustment(&policy, signals)
		assert.Equal(t, 0.05, adj)
		assert.Equal(t, []string{"trust:multi_source:+0.0500"}, reasons)
	})

	t.Run("should clamp the total adjustment", func(t *testing.T) {
		policy := policyFixture()
		policy.SingleSourcePenalty = 0.09
		policy.NoHighTrustPenalty = 0.09
		signals := ComputeSignals(&policy, []string{"web_scrape"})

		adj, reasons := Adjustment(&policy, signals)
		assert.Equal(t, -0.10, adj)
		assert.Contains(t, reasons, "trust:clamped:-0.1000")
	})
}

func TestGate(t *testing.T) {
	t.Run("should gate when no high trust source", func(t *testing.T) {
		policy := policyFixture()
		signals := ComputeSignals(&policy, []string{"roster", "web_scrape"})

		capped, reason := Gate(&policy, signals)
		assert.True(t, capped)
		assert.Equal(t, "gate:require_high_trust", reason)
	})

	t.Run("should gate when below the distinct source minimum", func(t *testing.T) {
		policy := policyFixture()
		signals := ComputeSignals(&policy, []string{"registrar"})

		capped, reason := Gate(&policy, signals)
		assert.True(t, capped)
		assert.Equal(t, "gate:min_distinct_sources:1<2", reason)
	})

	t.Run("should pass when both conditions hold", func(t *testing.T) {
		policy := policyFixture()
		signals := ComputeSignals(&policy, []string{"registrar", "roster"})

		capped, reason := Gate(&policy, signals)
		assert.False(t, capped)
		assert.Empty(t, reason)
	})
}

func TestParse(t *testing.T) {
	t.Run("should parse a valid policy document", func(t *testing.T) {
		raw := []byte(`
version: "1"
sources:
  registrar:
    weight: 1.0
    tier: primary
high_trust_threshold: 0.8
max_total_adjustment_abs: 0.1
`)
		policy, err := Parse(raw)
		assert.NoError(t, err)
		assert.Equal(t, "1", policy.Version)
		assert.Equal(t, 1.0, policy.Sources["registrar"].Weight)
	})

	t.Run("should reject an invalid tier", func(t *testing.T) {
		raw := []byte(`
version: "1"
sources:
  registrar:
    weight: 1.0
    tier: gossip
`)
		_, err := Parse(raw)
		assert.Error(t, err)
	})

	t.Run("should reject a policy without sources", func(t *testing.T) {
		raw := []byte(`
version: "1"
`)
		_, err := Parse(raw)
		assert.Error(t, err)
	})
}
