package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/reed/pkg/models"
)

func testLoader() *Loader {
	return NewLoader(ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
}

const validDoc = `
entity_type: participant
source_scope: default
version: "1"
thresholds:
  hold: 0.4
  review: 0.7
  auto_promote: 0.92
feature_weights:
  name: 0.5
  email: 0.5
hard_blocks:
  - "conflict:email"
survivorship:
  name: highest_precedence_non_null
`

func TestParse(t *testing.T) {
	t.Run("should parse a valid document", func(t *testing.T) {
		doc, err := testLoader().Parse([]byte(validDoc))
		assert.NoError(t, err)
		assert.Equal(t, models.EntityTypeParticipant, doc.EntityType)
		assert.Equal(t, 0.92, doc.Thresholds.AutoPromote)
		assert.Equal(t, 0.5, doc.FeatureWeights["email"])
	})

	t.Run("should reject unordered thresholds", func(t *testing.T) {
		raw := `
entity_type: participant
source_scope: default
version: "1"
thresholds:
  hold: 0.8
  review: 0.7
  auto_promote: 0.9
feature_weights:
  name: 0.5
`
		_, err := testLoader().Parse([]byte(raw))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "thresholds must be ordered")
	})

	t.Run("should reject a threshold outside the unit interval", func(t *testing.T) {
		raw := `
entity_type: participant
source_scope: default
version: "1"
thresholds:
  hold: 0.4
  review: 0.7
  auto_promote: 1.2
feature_weights:
  name: 0.5
`
		_, err := testLoader().Parse([]byte(raw))
		assert.Error(t, err)
	})

	t.Run("should reject an unknown entity type", func(t *testing.T) {
		raw := `
entity_type: dinghy
source_scope: default
version: "1"
feature_weights:
  name: 0.5
`
		_, err := testLoader().Parse([]byte(raw))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unknown entity type")
	})

	t.Run("should reject a document without feature weights", func(t *testing.T) {
		raw := `
entity_type: participant
source_scope: default
version: "1"
`
		_, err := testLoader().Parse([]byte(raw))
		assert.Error(t, err)
	})

	t.Run("should reject an unknown survivorship method", func(t *testing.T) {
		raw := `
entity_type: participant
source_scope: default
version: "1"
feature_weights:
  name: 0.5
survivorship:
  name: newest_wins
`
		_, err := testLoader().Parse([]byte(raw))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unknown survivorship method")
	})

	t.Run("should reject a negative feature weight", func(t *testing.T) {
		raw := `
entity_type: participant
source_scope: default
version: "1"
feature_weights:
  name: -0.5
`
		_, err := testLoader().Parse([]byte(raw))
		assert.Error(t, err)
	})
}

func TestLoadFolder(t *testing.T) {
	writeDoc := func(t *testing.T, dir, name, entityType string) {
		raw := `
entity_type: ` + entityType + `
source_scope: default
version: "1"
thresholds:
  hold: 0.4
  review: 0.7
  auto_promote: 0.9
feature_weights:
  name: 0.5
`
		assert.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(raw), 0o644))
	}

	t.Run("should return documents in processing order and skip the trust policy", func(t *testing.T) {
		dir := t.TempDir()
		writeDoc(t, dir, "participant.yaml", "participant")
		writeDoc(t, dir, "club.yaml", "club")
		writeDoc(t, dir, "event.yml", "event")
		assert.NoError(t, os.WriteFile(filepath.Join(dir, "trust_policy.yaml"), []byte("version: x"), 0o644))
		assert.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore"), 0o644))

		rules, err := testLoader().LoadFolder(dir)
		assert.NoError(t, err)
		assert.Len(t, rules, 3)
		assert.Equal(t, models.EntityTypeClub, rules[0].Document.EntityType)
		assert.Equal(t, models.EntityTypeEvent, rules[1].Document.EntityType)
		assert.Equal(t, models.EntityTypeParticipant, rules[2].Document.EntityType)
	})

	t.Run("should fail on an empty folder", func(t *testing.T) {
		_, err := testLoader().LoadFolder(t.TempDir())
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "no rule documents found")
	})

	t.Run("should hash the file content", func(t *testing.T) {
		dir := t.TempDir()
		writeDoc(t, dir, "participant.yaml", "participant")

		rule, err := testLoader().LoadFile(filepath.Join(dir, "participant.yaml"))
		assert.NoError(t, err)
		assert.Len(t, rule.YamlHash, 64)
	})
}
