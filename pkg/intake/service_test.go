package intake

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/reed/pkg/models"
)

func TestEnvelopeValidate(t *testing.T) {
	valid := Envelope{
		EntityType:   models.EntityTypeParticipant,
		SourceSystem: "registrar",
		SourceTable:  "entries",
		SourceRowKey: "row-1",
		Attrs:        map[string]any{"name": "alice tran"},
	}

	t.Run("should accept a complete envelope", func(t *testing.T) {
		e := valid
		assert.NoError(t, e.validate())
	})

	t.Run("should reject an unknown entity type", func(t *testing.T) {
		e := valid
		e.EntityType = "fleet"
		assert.Error(t, e.validate())
	})

	t.Run("should reject missing source coordinates", func(t *testing.T) {
		e := valid
		e.SourceRowKey = ""
		assert.Error(t, e.validate())
	})

	t.Run("should reject empty attrs", func(t *testing.T) {
		e := valid
		e.Attrs = nil
		assert.Error(t, e.validate())
	})
}
