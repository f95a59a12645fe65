package models

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/reed/pkg/database"
)

func TestScoreRunErr(t *testing.T) {
	t.Run("should return no error for a clean run", func(t *testing.T) {
		run := ScoreRun{
			ID:       "run-1",
			Counters: database.JSONB[ScoreCounters]{Data: ScoreCounters{Scored: 10}},
		}
		assert.NoError(t, run.Err())
	})

	t.Run("should surface unresolved errors", func(t *testing.T) {
		run := ScoreRun{
			ID:       "run-1",
			Counters: database.JSONB[ScoreCounters]{Data: ScoreCounters{Scored: 10, Errors: 2}},
		}

		err := run.Err()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "2 unresolved errors")
	})
}
