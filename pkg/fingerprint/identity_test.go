package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/reed/pkg/models"
)

func TestIdentityKey(t *testing.T) {
	t.Run("should converge participant rows after normalization", func(t *testing.T) {
		first, err := IdentityKey(models.EntityTypeParticipant, map[string]any{
			"name":  "Robert Smith Jr.",
			"email": "  Bob@Example.com ",
		}, nil)
		assert.NoError(t, err)

		second, err := IdentityKey(models.EntityTypeParticipant, map[string]any{
			"name":  "robert smith",
			"email": "bob@example.com",
		}, nil)
		assert.NoError(t, err)

		assert.Equal(t, first, second)
	})

	t.Run("should converge yacht sail number variants", func(t *testing.T) {
		first, err := IdentityKey(models.EntityTypeYacht, map[string]any{
			"name":        "Wild Oats",
			"sail_number": "AUS 10001",
		}, nil)
		assert.NoError(t, err)

		second, err := IdentityKey(models.EntityTypeYacht, map[string]any{
			"name":        "wild oats",
			"sail_number": "aus-10001",
		}, nil)
		assert.NoError(t, err)

		assert.Equal(t, first, second)
	})

	t.Run("should report the missing identity field", func(t *testing.T) {
		_, err := IdentityKey(models.EntityTypeParticipant, map[string]any{
			"name": "Robert Smith",
		}, nil)
		assert.Error(t, err)

		var missing *MissingIdentityError
		assert.ErrorAs(t, err, &missing)
		assert.Equal(t, "email", missing.Field)
		assert.Equal(t, "missing_identity:email", missing.ReasonCode())
	})

	t.Run("should treat a blank value as missing", func(t *testing.T) {
		_, err := IdentityKey(models.EntityTypeClub, map[string]any{
			"name": "   ",
		}, nil)
		assert.Error(t, err)

		var missing *MissingIdentityError
		assert.ErrorAs(t, err, &missing)
		assert.Equal(t, "name", missing.Field)
	})

	t.Run("should require both dependencies for registrations", func(t *testing.T) {
		_, err := IdentityKey(models.EntityTypeRegistration, map[string]any{
			"external_id": "REG-1",
		}, &Dependencies{EventCandidateID: "event-1"})
		assert.Error(t, err)

		var missing *MissingIdentityError
		assert.ErrorAs(t, err, &missing)
		assert.Equal(t, "yacht_candidate_id", missing.Field)
	})

	t.Run("should bind registrations to their dependency candidates", func(t *testing.T) {
		deps := &Dependencies{EventCandidateID: "event-1", YachtCandidateID: "yacht-1"}
		first, err := IdentityKey(models.EntityTypeRegistration, map[string]any{"external_id": "REG-1"}, deps)
		assert.NoError(t, err)

		other := &Dependencies{EventCandidateID: "event-2", YachtCandidateID: "yacht-1"}
		second, err := IdentityKey(models.EntityTypeRegistration, map[string]any{"external_id": "REG-1"}, other)
		assert.NoError(t, err)

		assert.NotEqual(t, first, second)
	})
}

func TestGenerate(t *testing.T) {
	t.Run("should not depend on key order", func(t *testing.T) {
		a := Generate(map[string]any{"a": 1, "b": "x", "c": map[string]any{"d": true}})
		b := Generate(map[string]any{"c": map[string]any{"d": true}, "b": "x", "a": 1})
		assert.Equal(t, a, b)
	})

	t.Run("should change when a nested value changes", func(t *testing.T) {
		a := Generate(map[string]any{"c": map[string]any{"d": true}})
		b := Generate(map[string]any{"c": map[string]any{"d": false}})
		assert.NotEqual(t, a, b)
	})

	t.Run("should skip excluded fields", func(t *testing.T) {
		a := GenerateWithExclusions(map[string]any{"a": 1, "ts": "now"}, map[string]bool{"ts": true})
		b := GenerateWithExclusions(map[string]any{"a": 1, "ts": "later"}, map[string]bool{"ts": true})
		assert.Equal(t, a, b)
	})
}
