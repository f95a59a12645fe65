package integration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/reed/pkg/database"
	"github.com/Ramsey-B/reed/pkg/models"
)

func TestLinkRunRerunAgainstLiveDatabase(t *testing.T) {
	env := newTestEnv(t)

	rows := []struct {
		key    string
		system string
		attrs  map[string]any
	}{
		{"reg-1", "registrar", map[string]any{"name": "Wind Dancer", "sail_number": "USA 123"}},
		{"roster-7", "club_roster", map[string]any{"name": "Wind Dancer", "sail_number": "USA 123", "hull_color": "blue"}},
		{"reg-2", "registrar", map[string]any{"name": "Sea Sprite", "sail_number": "USA 9"}},
		{"roster-8", "club_roster", map[string]any{"name": "No Sail Number"}},
	}
	for _, row := range rows {
		require.NoError(t, env.sources.Insert(env.ctx, &models.SourceRecord{
			EntityType:   models.EntityTypeYacht,
			SourceSystem: row.system,
			SourceTable:  "yachts",
			SourceRowKey: row.key,
			RowHash:      "hash-" + row.key,
			Attrs:        database.JSONB[map[string]any]{Data: row.attrs},
		}))
	}

	t.Run("should create candidates and links on the first run", func(t *testing.T) {
		report, err := env.builder.Run(env.ctx, []models.EntityType{models.EntityTypeYacht}, false)
		require.NoError(t, err)
		require.NoError(t, report.Err())

		c := report.Counters[models.EntityTypeYacht]
		assert.Equal(t, 4, c.RowsSeen)
		assert.Equal(t, 2, c.Created)
		assert.Equal(t, 1, c.Enriched)
		assert.Equal(t, 3, c.Linked)
		assert.Equal(t, 1, c.Skipped)
		assert.Equal(t, 0, c.Errors)
		assert.Equal(t, 1, c.SkippedReasons["missing_identity:sail_number"])

		candidates, err := env.candidates.ListBatch(env.ctx, models.EntityTypeYacht, "", 10)
		require.NoError(t, err)
		assert.Len(t, candidates, 2)
	})

	t.Run("should change nothing on a rerun over the same rows", func(t *testing.T) {
		report, err := env.builder.Run(env.ctx, []models.EntityType{models.EntityTypeYacht}, false)
		require.NoError(t, err)
		require.NoError(t, report.Err())

		c := report.Counters[models.EntityTypeYacht]
		assert.Equal(t, 4, c.RowsSeen)
		assert.Equal(t, 0, c.Created)
		assert.Equal(t, 0, c.Enriched)
		assert.Equal(t, 0, c.Linked)
		assert.Equal(t, 0, c.Errors)

		candidates, err := env.candidates.ListBatch(env.ctx, models.EntityTypeYacht, "", 10)
		require.NoError(t, err)
		require.Len(t, candidates, 2)
		for _, cand := range candidates {
			links, err := env.sourceLinks.ListByCandidate(env.ctx, cand.ID)
			require.NoError(t, err)
			if cand.Attrs.GetValue()["name"] == "Wind Dancer" {
				assert.Len(t, links, 2)
				assert.Equal(t, "blue", cand.Attrs.GetValue()["hull_color"])
			} else {
				assert.Len(t, links, 1)
			}
		}
	})
}
