package lineage

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/reed/pkg/models"
)

func TestPct(t *testing.T) {
	t.Run("should return nil for an empty denominator", func(t *testing.T) {
		assert.Nil(t, pct(5, 0))
	})

	t.Run("should round to two decimals on a 0-100 scale", func(t *testing.T) {
		assert.Equal(t, 50.0, *pct(1, 2))
		assert.Equal(t, 33.33, *pct(1, 3))
		assert.Equal(t, 100.0, *pct(7, 7))
	})
}

func TestBlockingIssues(t *testing.T) {
	t.Run("should be empty when lineage is clean", func(t *testing.T) {
		assert.Empty(t, blockingIssues(models.LineageMetrics{}))
	})

	t.Run("should name each violated guarantee with its count", func(t *testing.T) {
		issues := blockingIssues(models.LineageMetrics{
			UnlinkedSourceRows:         3,
			PromotedMissingLink:        1,
			CanonicalMissingProvenance: 2,
			UnresolvedCriticalDeps:     4,
		})
		assert.Equal(t, []string{
			"unlinked_source_rows:3",
			"promoted_missing_link:1",
			"canonical_missing_provenance:2",
			"unresolved_critical_deps:4",
		}, issues)
	})
}

func TestVerdict(t *testing.T) {
	reporter := func(thresholds models.LineageThresholds) *Reporter {
		return &Reporter{thresholds: thresholds}
	}

	t.Run("should fail below the source coverage minimum", func(t *testing.T) {
		r := reporter(models.LineageThresholds{MinPctCandidateWithSource: 100})
		v := 99.5
		assert.False(t, r.verdict(models.LineageMetrics{PctCandidateWithSource: &v}))
	})

	t.Run("should pass vacuously when a type has no candidates", func(t *testing.T) {
		r := reporter(models.LineageThresholds{MinPctCandidateWithSource: 100, MinPctCandidateToCanonical: 50})
		assert.True(t, r.verdict(models.LineageMetrics{}))
	})

	t.Run("should fail on blocking issues by default", func(t *testing.T) {
		r := reporter(models.LineageThresholds{})
		assert.False(t, r.verdict(models.LineageMetrics{UnlinkedSourceRows: 1}))
	})

	t.Run("should tolerate blocking issues when allowed", func(t *testing.T) {
		r := reporter(models.LineageThresholds{AllowBlockingIssues: true})
		assert.True(t, r.verdict(models.LineageMetrics{UnlinkedSourceRows: 1}))
	})

	t.Run("should fail below the promotion coverage minimum", func(t *testing.T) {
		r := reporter(models.LineageThresholds{MinPctCandidateToCanonical: 80})
		v := 79.99
		assert.False(t, r.verdict(models.LineageMetrics{PctCandidateToCanonical: &v}))
	})
}
