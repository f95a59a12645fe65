package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/reed/pkg/models"
)

func floatPtr(v float64) *float64 {
	return &v
}

func survivorshipDoc() models.RuleDocument {
	return models.RuleDocument{
		EntityType:       models.EntityTypeParticipant,
		SourceScope:      "default",
		Version:          "test",
		SourcePrecedence: []string{"registrar", "roster", "web_scrape"},
		Survivorship: map[string]models.SurvivorshipMethod{
			"email": models.SurvivorshipHighestPrecedenceNonNull,
			"phone": models.SurvivorshipHighestScoreConfirmed,
		},
	}
}

func TestResolve(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("should pick the highest precedence non null value", func(t *testing.T) {
		contributions := []Contribution{
			{
				CandidateID:   "cand-scrape",
				Attrs:         map[string]any{"email": "scraped@example.com"},
				SourceSystems: []string{"web_scrape"},
				UpdatedAt:     base.Add(time.Hour),
			},
			{
				CandidateID:   "cand-reg",
				Attrs:         map[string]any{"email": "official@example.com"},
				SourceSystems: []string{"registrar"},
				UpdatedAt:     base,
			},
		}

		attrs, decisions := Resolve(survivorshipDoc(), contributions)
		assert.Equal(t, "official@example.com", attrs["email"])
		assert.Len(t, decisions, 1)
		assert.Equal(t, "cand-reg", decisions[0].CandidateID)
		assert.Equal(t, models.SurvivorshipHighestPrecedenceNonNull, decisions[0].Method)
		assert.Equal(t, "registrar", *decisions[0].SourceSystem)
	})

	t.Run("should skip null and empty values", func(t *testing.T) {
		contributions := []Contribution{
			{
				CandidateID:   "cand-reg",
				Attrs:         map[string]any{"email": ""},
				SourceSystems: []string{"registrar"},
				UpdatedAt:     base,
			},
			{
				CandidateID:   "cand-scrape",
				Attrs:         map[string]any{"email": "scraped@example.com"},
				SourceSystems: []string{"web_scrape"},
				UpdatedAt:     base,
			},
		}

		attrs, _ := Resolve(survivorshipDoc(), contributions)
		assert.Equal(t, "scraped@example.com", attrs["email"])
	})

	t.Run("should pick the highest scoring contribution for score confirmed attributes", func(t *testing.T) {
		contributions := []Contribution{
			{
				CandidateID:   "cand-low",
				Attrs:         map[string]any{"phone": "111"},
				QualityScore:  floatPtr(0.6),
				SourceSystems: []string{"registrar"},
				UpdatedAt:     base,
			},
			{
				CandidateID:   "cand-high",
				Attrs:         map[string]any{"phone": "222"},
				QualityScore:  floatPtr(0.9),
				SourceSystems: []string{"web_scrape"},
				UpdatedAt:     base,
			},
		}

		attrs, decisions := Resolve(survivorshipDoc(), contributions)
		assert.Equal(t, "222", attrs["phone"])
		assert.Equal(t, "cand-high", decisions[0].CandidateID)
	})

	t.Run("should rank an unscored contribution below any scored one", func(t *testing.T) {
		contributions := []Contribution{
			{
				CandidateID:   "cand-unscored",
				Attrs:         map[string]any{"phone": "111"},
				SourceSystems: []string{"registrar"},
				UpdatedAt:     base.Add(time.Hour),
			},
			{
				CandidateID:   "cand-scored",
				Attrs:         map[string]any{"phone": "222"},
				QualityScore:  floatPtr(0.1),
				SourceSystems: []string{"web_scrape"},
				UpdatedAt:     base,
			},
		}

		attrs, _ := Resolve(survivorshipDoc(), contributions)
		assert.Equal(t, "222", attrs["phone"])
	})

	t.Run("should break ties toward the most recent contribution", func(t *testing.T) {
		contributions := []Contribution{
			{
				CandidateID:   "cand-old",
				Attrs:         map[string]any{"email": "old@example.com"},
				SourceSystems: []string{"registrar"},
				UpdatedAt:     base,
			},
			{
				CandidateID:   "cand-new",
				Attrs:         map[string]any{"email": "new@example.com"},
				SourceSystems: []string{"registrar"},
				UpdatedAt:     base.Add(time.Hour),
			},
		}

		attrs, _ := Resolve(survivorshipDoc(), contributions)
		assert.Equal(t, "new@example.com", attrs["email"])
	})

	t.Run("should default attributes without a configured method to precedence", func(t *testing.T) {
		contributions := []Contribution{
			{
				CandidateID:   "cand-scrape",
				Attrs:         map[string]any{"country": "NZL"},
				SourceSystems: []string{"web_scrape"},
				UpdatedAt:     base.Add(time.Hour),
			},
			{
				CandidateID:   "cand-reg",
				Attrs:         map[string]any{"country": "AUS"},
				SourceSystems: []string{"registrar"},
				UpdatedAt:     base,
			},
		}

		attrs, decisions := Resolve(survivorshipDoc(), contributions)
		assert.Equal(t, "AUS", attrs["country"])
		assert.Equal(t, models.SurvivorshipHighestPrecedenceNonNull, decisions[0].Method)
	})

	t.Run("should never surface internal bookkeeping attributes", func(t *testing.T) {
		contributions := []Contribution{
			{
				CandidateID:   "cand-1",
				Attrs:         map[string]any{"email": "a@example.com", "hard_blocks": []any{"conflict:phone"}},
				SourceSystems: []string{"registrar"},
				UpdatedAt:     base,
			},
		}

		attrs, decisions := Resolve(survivorshipDoc(), contributions)
		assert.NotContains(t, attrs, "hard_blocks")
		assert.Len(t, decisions, 1)
	})

	t.Run("should return empty results for no contributions", func(t *testing.T) {
		attrs, decisions := Resolve(survivorshipDoc(), nil)
		assert.Empty(t, attrs)
		assert.Empty(t, decisions)
	})
}
