package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFillNulls(t *testing.T) {
	t.Run("should fill missing and empty attributes", func(t *testing.T) {
		existing := map[string]any{"name": "alice tran", "email": ""}
		incoming := map[string]any{"email": "alice@example.com", "phone": "555-0100"}

		merged, changed := FillNulls(existing, incoming)
		assert.True(t, changed)
		assert.Equal(t, "alice tran", merged["name"])
		assert.Equal(t, "alice@example.com", merged["email"])
		assert.Equal(t, "555-0100", merged["phone"])
	})

	t.Run("should never overwrite a present value", func(t *testing.T) {
		existing := map[string]any{"email": "alice@example.com"}
		incoming := map[string]any{"email": "alice@example.com"}

		merged, changed := FillNulls(existing, incoming)
		assert.False(t, changed)
		assert.Equal(t, "alice@example.com", merged["email"])
	})

	t.Run("should ignore empty incoming values", func(t *testing.T) {
		existing := map[string]any{"email": "alice@example.com"}
		incoming := map[string]any{"email": "", "phone": nil}

		merged, changed := FillNulls(existing, incoming)
		assert.False(t, changed)
		assert.Equal(t, "alice@example.com", merged["email"])
		assert.NotContains(t, merged, "phone")
	})

	t.Run("should record a conflict tag for differing scalars", func(t *testing.T) {
		existing := map[string]any{"email": "alice@example.com"}
		incoming := map[string]any{"email": "other@example.com"}

		merged, changed := FillNulls(existing, incoming)
		assert.True(t, changed)
		assert.Equal(t, "alice@example.com", merged["email"])
		assert.Equal(t, []any{"conflict:email"}, merged["hard_blocks"])
	})

	t.Run("should not duplicate an existing conflict tag", func(t *testing.T) {
		existing := map[string]any{
			"email":       "alice@example.com",
			"hard_blocks": []any{"conflict:email"},
		}
		incoming := map[string]any{"email": "other@example.com"}

		merged, changed := FillNulls(existing, incoming)
		assert.False(t, changed)
		assert.Equal(t, []any{"conflict:email"}, merged["hard_blocks"])
	})

	t.Run("should sort accumulated conflict tags", func(t *testing.T) {
		existing := map[string]any{
			"email": "alice@example.com",
			"phone": "555-0100",
		}
		incoming := map[string]any{
			"phone": "555-0199",
			"email": "other@example.com",
		}

		merged, changed := FillNulls(existing, incoming)
		assert.True(t, changed)
		assert.Equal(t, []any{"conflict:email", "conflict:phone"}, merged["hard_blocks"])
	})

	t.Run("should not flag structured values as conflicts", func(t *testing.T) {
		existing := map[string]any{"tags": []any{"a"}}
		incoming := map[string]any{"tags": []any{"b"}}

		merged, changed := FillNulls(existing, incoming)
		assert.False(t, changed)
		assert.NotContains(t, merged, "hard_blocks")
	})

	t.Run("should flag differing numeric scalars", func(t *testing.T) {
		existing := map[string]any{"loa": 12.5}
		incoming := map[string]any{"loa": 14.0}

		merged, _ := FillNulls(existing, incoming)
		assert.Equal(t, []any{"conflict:loa"}, merged["hard_blocks"])
	})

	t.Run("should not mutate the input maps", func(t *testing.T) {
		existing := map[string]any{"name": "alice"}
		incoming := map[string]any{"email": "alice@example.com"}

		FillNulls(existing, incoming)
		assert.NotContains(t, existing, "email")
	})
}
