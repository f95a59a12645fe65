package normalizers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName(t *testing.T) {
	t.Run("should lowercase and strip punctuation", func(t *testing.T) {
		assert.Equal(t, "oconnor sean", NormalizeName("O'Connor, Sean"))
	})

	t.Run("should strip personal suffixes", func(t *testing.T) {
		assert.Equal(t, "robert smith", NormalizeName("Robert Smith Jr."))
		assert.Equal(t, "robert smith", NormalizeName("Robert Smith III"))
	})

	t.Run("should collapse whitespace", func(t *testing.T) {
		assert.Equal(t, "royal yacht club", NormalizeName("  Royal   Yacht  Club "))
	})
}

func TestNormalizeSailNumber(t *testing.T) {
	t.Run("should converge prefix variants", func(t *testing.T) {
		assert.Equal(t, "USA1234", NormalizeSailNumber("USA 1234"))
		assert.Equal(t, "USA1234", NormalizeSailNumber("usa-1234"))
		assert.Equal(t, "USA1234", NormalizeSailNumber("USA1234"))
	})

	t.Run("should handle bare numbers", func(t *testing.T) {
		assert.Equal(t, "1234", NormalizeSailNumber(" 1234 "))
	})
}

func TestNormalizeEmail(t *testing.T) {
	t.Run("should trim and lowercase", func(t *testing.T) {
		assert.Equal(t, "alice@example.com", NormalizeEmail("  Alice@Example.COM "))
	})
}

func TestNormalizeSeason(t *testing.T) {
	t.Run("should extract the four digit year", func(t *testing.T) {
		assert.Equal(t, "2024", NormalizeSeason("Summer 2024"))
		assert.Equal(t, "2024", NormalizeSeason("2024/25"))
		assert.Equal(t, "2024", NormalizeSeason("2024"))
	})

	t.Run("should return empty when no year present", func(t *testing.T) {
		assert.Equal(t, "", NormalizeSeason("spring series"))
	})
}

func TestApply(t *testing.T) {
	t.Run("should return the value unchanged for an unknown normalizer", func(t *testing.T) {
		assert.Equal(t, "As Is", Apply("As Is", "nope"))
	})

	t.Run("should apply a chain in order", func(t *testing.T) {
		assert.Equal(t, "ab12", ApplyChain(" AB 12 ", "trim_lower", "alphanumeric"))
	})
}
