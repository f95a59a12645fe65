package integration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/reed/pkg/models"
)

func TestPromotionProvenanceAgainstLiveDatabase(t *testing.T) {
	env := newTestEnv(t)
	env.registerRules(t, yachtRules())

	cand := env.seedYachtCandidate(t, "fp-prov-1", "Wind Dancer", "USA 123", "registrar")
	env.markPromotable(t, cand)

	report, err := env.lifecycle.Promote(env.ctx, []models.EntityType{models.EntityTypeYacht}, "default", false)
	require.NoError(t, err)
	require.NoError(t, report.Err())
	require.Equal(t, 1, report.Counters[models.EntityTypeYacht].Promoted)

	link, err := env.links.GetByCandidate(env.ctx, cand.ID)
	require.NoError(t, err)
	require.NotNil(t, link)

	t.Run("should record one provenance row per canonical attribute", func(t *testing.T) {
		rows, err := env.provenance.ListByCanonical(env.ctx, link.CanonicalID)
		require.NoError(t, err)
		require.NotEmpty(t, rows)

		seen := map[string]int{}
		for _, row := range rows {
			seen[row.Attribute]++
			assert.Equal(t, cand.ID, row.CandidateID)
		}
		for attr, count := range seen {
			assert.Equal(t, 1, count, "attribute %s has duplicate provenance", attr)
		}
		assert.Contains(t, seen, "name")
		assert.Contains(t, seen, "sail_number")
	})

	t.Run("should overwrite provenance when the candidate is promoted again", func(t *testing.T) {
		fresh, err := env.candidates.GetByID(env.ctx, cand.ID)
		require.NoError(t, err)
		require.NoError(t, env.candidates.ApplyStateChange(env.ctx, fresh, models.StateChange{
			ResolutionState: models.ResolutionStateReview,
		}))
		fresh, err = env.candidates.GetByID(env.ctx, cand.ID)
		require.NoError(t, err)
		env.markPromotable(t, fresh)

		report, err := env.lifecycle.Promote(env.ctx, []models.EntityType{models.EntityTypeYacht}, "default", false)
		require.NoError(t, err)
		require.NoError(t, report.Err())
		assert.Equal(t, 1, report.Counters[models.EntityTypeYacht].Relinked)

		rows, err := env.provenance.ListByCanonical(env.ctx, link.CanonicalID)
		require.NoError(t, err)
		seen := map[string]int{}
		for _, row := range rows {
			seen[row.Attribute]++
		}
		for attr, count := range seen {
			assert.Equal(t, 1, count, "attribute %s has duplicate provenance after re-promotion", attr)
		}
	})
}

func TestMergeAgainstLiveDatabase(t *testing.T) {
	env := newTestEnv(t)
	env.registerRules(t, yachtRules())

	keep := env.seedYachtCandidate(t, "fp-merge-keep", "Wind Dancer", "USA 123", "registrar")
	lose := env.seedYachtCandidate(t, "fp-merge-lose", "Wind Dancer II", "USA 123", "club_roster")
	env.markPromotable(t, keep)
	env.markPromotable(t, lose)

	report, err := env.lifecycle.Promote(env.ctx, []models.EntityType{models.EntityTypeYacht}, "default", false)
	require.NoError(t, err)
	require.NoError(t, report.Err())
	require.Equal(t, 2, report.Counters[models.EntityTypeYacht].Promoted)

	keepLink, err := env.links.GetByCandidate(env.ctx, keep.ID)
	require.NoError(t, err)
	require.NotNil(t, keepLink)
	loseLink, err := env.links.GetByCandidate(env.ctx, lose.ID)
	require.NoError(t, err)
	require.NotNil(t, loseLink)

	_, replay, err := env.lifecycle.Merge(env.ctx, models.EntityTypeYacht,
		keepLink.CanonicalID, loseLink.CanonicalID, "ops@example.com", "default", false)
	require.NoError(t, err)
	require.False(t, replay)

	t.Run("should retire the losing canonical with a back-reference", func(t *testing.T) {
		loser, err := env.canonicals.GetByID(env.ctx, loseLink.CanonicalID)
		require.NoError(t, err)
		assert.Equal(t, models.CanonicalStatusMerged, loser.Status)
		require.NotNil(t, loser.MergedIntoID)
		assert.Equal(t, keepLink.CanonicalID, *loser.MergedIntoID)
	})

	t.Run("should repoint every candidate link to the survivor", func(t *testing.T) {
		survivorLinks, err := env.links.ListByCanonical(env.ctx, keepLink.CanonicalID)
		require.NoError(t, err)
		assert.Len(t, survivorLinks, 2)

		loserLinks, err := env.links.ListByCanonical(env.ctx, loseLink.CanonicalID)
		require.NoError(t, err)
		assert.Empty(t, loserLinks)

		moved, err := env.candidates.GetByID(env.ctx, lose.ID)
		require.NoError(t, err)
		assert.True(t, moved.IsPromoted)
		require.NotNil(t, moved.PromotedCanonicalID)
		assert.Equal(t, keepLink.CanonicalID, *moved.PromotedCanonicalID)
	})

	t.Run("should absorb a replay of the same merge", func(t *testing.T) {
		_, replay, err := env.lifecycle.Merge(env.ctx, models.EntityTypeYacht,
			keepLink.CanonicalID, loseLink.CanonicalID, "ops@example.com", "default", false)
		require.NoError(t, err)
		assert.True(t, replay)
	})
}

func TestUnlinkAgainstLiveDatabase(t *testing.T) {
	env := newTestEnv(t)
	env.registerRules(t, yachtRules())

	t.Run("should detach exactly one candidate and leave siblings linked", func(t *testing.T) {
		first := env.seedYachtCandidate(t, "fp-unlink-1", "Sea Sprite", "USA 9", "registrar")
		second := env.seedYachtCandidate(t, "fp-unlink-2", "Sea Sprite Two", "USA 9", "club_roster")
		env.markPromotable(t, first)
		env.markPromotable(t, second)

		report, err := env.lifecycle.Promote(env.ctx, []models.EntityType{models.EntityTypeYacht}, "default", false)
		require.NoError(t, err)
		require.NoError(t, report.Err())

		firstLink, err := env.links.GetByCandidate(env.ctx, first.ID)
		require.NoError(t, err)
		secondLink, err := env.links.GetByCandidate(env.ctx, second.ID)
		require.NoError(t, err)
		_, replay, err := env.lifecycle.Merge(env.ctx, models.EntityTypeYacht,
			firstLink.CanonicalID, secondLink.CanonicalID, "ops@example.com", "default", false)
		require.NoError(t, err)
		require.False(t, replay)

		_, replay, err = env.lifecycle.Unlink(env.ctx, second.ID, "ops@example.com", "default", false)
		require.NoError(t, err)
		require.False(t, replay)

		gone, err := env.links.GetByCandidate(env.ctx, second.ID)
		require.NoError(t, err)
		assert.Nil(t, gone)
		detached, err := env.candidates.GetByID(env.ctx, second.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ResolutionStateReview, detached.ResolutionState)
		assert.False(t, detached.IsPromoted)

		kept, err := env.links.GetByCandidate(env.ctx, first.ID)
		require.NoError(t, err)
		require.NotNil(t, kept)
		assert.Equal(t, firstLink.CanonicalID, kept.CanonicalID)
		sibling, err := env.candidates.GetByID(env.ctx, first.ID)
		require.NoError(t, err)
		assert.True(t, sibling.IsPromoted)

		canonical, err := env.canonicals.GetByID(env.ctx, firstLink.CanonicalID)
		require.NoError(t, err)
		assert.Equal(t, models.CanonicalStatusActive, canonical.Status)
	})

	t.Run("should treat a second unlink after re-promotion as a new action", func(t *testing.T) {
		cand := env.seedYachtCandidate(t, "fp-unlink-again", "Mist Runner", "USA 42", "registrar")
		env.markPromotable(t, cand)
		report, err := env.lifecycle.Promote(env.ctx, []models.EntityType{models.EntityTypeYacht}, "default", false)
		require.NoError(t, err)
		require.NoError(t, report.Err())

		firstLink, err := env.links.GetByCandidate(env.ctx, cand.ID)
		require.NoError(t, err)
		require.NotNil(t, firstLink)

		_, replay, err := env.lifecycle.Unlink(env.ctx, cand.ID, "ops@example.com", "default", false)
		require.NoError(t, err)
		require.False(t, replay)

		fresh, err := env.candidates.GetByID(env.ctx, cand.ID)
		require.NoError(t, err)
		env.markPromotable(t, fresh)
		report, err = env.lifecycle.Promote(env.ctx, []models.EntityType{models.EntityTypeYacht}, "default", false)
		require.NoError(t, err)
		require.NoError(t, report.Err())

		secondLink, err := env.links.GetByCandidate(env.ctx, cand.ID)
		require.NoError(t, err)
		require.NotNil(t, secondLink)
		require.NotEqual(t, firstLink.CanonicalID, secondLink.CanonicalID)

		_, replay, err = env.lifecycle.Unlink(env.ctx, cand.ID, "ops@example.com", "default", false)
		require.NoError(t, err)
		assert.False(t, replay, "unlink from a different canonical was absorbed as a replay")

		gone, err := env.links.GetByCandidate(env.ctx, cand.ID)
		require.NoError(t, err)
		assert.Nil(t, gone)
		detached, err := env.candidates.GetByID(env.ctx, cand.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ResolutionStateReview, detached.ResolutionState)
		assert.False(t, detached.IsPromoted)
	})
}
