package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectEntityTypes(t *testing.T) {
	t.Run("should return all types in processing order for an empty selector", func(t *testing.T) {
		types, err := SelectEntityTypes(nil)
		assert.NoError(t, err)
		assert.Equal(t, EntityTypeOrder, types)
	})

	t.Run("should order the selection by processing order regardless of input order", func(t *testing.T) {
		types, err := SelectEntityTypes([]string{"registration", "event"})
		assert.NoError(t, err)
		assert.Equal(t, []EntityType{EntityTypeEvent, EntityTypeRegistration}, types)
	})

	t.Run("should reject unknown types", func(t *testing.T) {
		_, err := SelectEntityTypes([]string{"event", "fleet"})
		assert.Error(t, err)
	})

	t.Run("should deduplicate repeated selectors", func(t *testing.T) {
		types, err := SelectEntityTypes([]string{"yacht", "yacht"})
		assert.NoError(t, err)
		assert.Equal(t, []EntityType{EntityTypeYacht}, types)
	})
}

func TestRunReport(t *testing.T) {
	t.Run("should accumulate counters per entity type", func(t *testing.T) {
		report := NewRunReport("run-1", "link", false)
		report.Add(EntityTypeYacht, func(c *LinkCounters) {
			c.RowsSeen++
			c.Created++
		})
		report.Add(EntityTypeYacht, func(c *LinkCounters) {
			c.RowsSeen++
			c.Enriched++
		})

		c := report.Counters[EntityTypeYacht]
		assert.Equal(t, 2, c.RowsSeen)
		assert.Equal(t, 1, c.Created)
		assert.Equal(t, 1, c.Enriched)
	})

	t.Run("should return no error for a clean run", func(t *testing.T) {
		report := NewRunReport("run-1", "link", false)
		report.Add(EntityTypeYacht, func(c *LinkCounters) { c.Linked++ })
		assert.NoError(t, report.Err())
	})

	t.Run("should surface unresolved errors across types", func(t *testing.T) {
		report := NewRunReport("run-1", "link", true)
		report.Add(EntityTypeYacht, func(c *LinkCounters) { c.Errors++ })
		report.Add(EntityTypeClub, func(c *LinkCounters) { c.Errors += 2 })

		err := report.Err()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "3 unresolved errors")
	})
}
