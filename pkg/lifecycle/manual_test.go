package lifecycle

import (
	"strings"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/stretchr/testify/assert"
)

func TestParseDecisionsCSV(t *testing.T) {
	t.Run("should parse rows and skip the header", func(t *testing.T) {
		raw := "candidate_id,decision,note\n" +
			"cand-1,promote,looks solid\n" +
			"cand-2,REJECT\n" +
			"cand-3,hold,waiting on registrar\n"

		decisions, err := ParseDecisionsCSV(strings.NewReader(raw))
		assert.NoError(t, err)
		assert.Len(t, decisions, 3)
		assert.Equal(t, Decision{CandidateID: "cand-1", Decision: DecisionPromote, Note: "looks solid"}, decisions[0])
		assert.Equal(t, Decision{CandidateID: "cand-2", Decision: DecisionReject}, decisions[1])
		assert.Equal(t, Decision{CandidateID: "cand-3", Decision: DecisionHold, Note: "waiting on registrar"}, decisions[2])
	})

	t.Run("should parse rows without a header", func(t *testing.T) {
		decisions, err := ParseDecisionsCSV(strings.NewReader("cand-1,promote\n"))
		assert.NoError(t, err)
		assert.Len(t, decisions, 1)
	})

	t.Run("should reject an unknown decision", func(t *testing.T) {
		_, err := ParseDecisionsCSV(strings.NewReader("cand-1,approve\n"))
		assert.Error(t, err)
		assert.True(t, httperror.IsHTTPError(err))
		assert.Contains(t, err.Error(), "unknown decision")
	})

	t.Run("should reject rows missing the decision column", func(t *testing.T) {
		_, err := ParseDecisionsCSV(strings.NewReader("cand-1\n"))
		assert.Error(t, err)
	})

	t.Run("should reject an empty file", func(t *testing.T) {
		_, err := ParseDecisionsCSV(strings.NewReader(""))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "no rows")
	})

	t.Run("should reject a file with only a header", func(t *testing.T) {
		_, err := ParseDecisionsCSV(strings.NewReader("candidate_id,decision\n"))
		assert.Error(t, err)
	})
}

func TestApplyCountersErr(t *testing.T) {
	t.Run("should return no error for a clean batch", func(t *testing.T) {
		c := &ApplyCounters{Applied: 2, Skipped: 1}
		assert.NoError(t, c.Err())
	})

	t.Run("should surface unresolved errors", func(t *testing.T) {
		c := &ApplyCounters{Applied: 2, Errors: 1}
		err := c.Err()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "1 unresolved errors")
	})
}
