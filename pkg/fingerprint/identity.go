package fingerprint

import (
	"fmt"

	"github.com/Ramsey-B/reed/pkg/models"
	"github.com/Ramsey-B/reed/pkg/normalizers"
)

// MissingIdentityError signals that a source row lacks the minimum identity
// needed to fingerprint it. Callers record the row as skipped, never fail the
// run.
type MissingIdentityError struct {
	EntityType models.EntityType
	Field      string
}

func (e *MissingIdentityError) Error() string {
	return fmt.Sprintf("%s row is missing identity field %s", e.EntityType, e.Field)
}

// ReasonCode is the stable skip reason recorded for this row.
func (e *MissingIdentityError) ReasonCode() string {
	return "missing_identity:" + e.Field
}

// Dependencies carries resolved candidate ids that a registration fingerprint
// is built over.
type Dependencies struct {
	EventCandidateID string
	YachtCandidateID string
}

// IdentityKey computes the stable fingerprint for a normalized source row.
// The function is pure: identical normalized inputs always yield the
// identical fingerprint, regardless of which adapter or run produced them.
func IdentityKey(entityType models.EntityType, attrs map[string]any, deps *Dependencies) (string, error) {
	switch entityType {
	case models.EntityTypeParticipant:
		name, err := identityPart(entityType, attrs, "name", "nname")
		if err != nil {
			return "", err
		}
		email, err := identityPart(entityType, attrs, "email", "nemail")
		if err != nil {
			return "", err
		}
		return HashParts(name, email), nil

	case models.EntityTypeYacht:
		name, err := identityPart(entityType, attrs, "name", "nname")
		if err != nil {
			return "", err
		}
		sail, err := identityPart(entityType, attrs, "sail_number", "nsail")
		if err != nil {
			return "", err
		}
		return HashParts(name, sail), nil

	case models.EntityTypeClub:
		name, err := identityPart(entityType, attrs, "name", "nname")
		if err != nil {
			return "", err
		}
		return HashParts(name), nil

	case models.EntityTypeEvent:
		name, err := identityPart(entityType, attrs, "name", "nname")
		if err != nil {
			return "", err
		}
		season, err := identityPart(entityType, attrs, "season", "nseason")
		if err != nil {
			return "", err
		}
		externalID, err := identityPart(entityType, attrs, "external_id", "trim_lower")
		if err != nil {
			return "", err
		}
		return HashParts(name, season, externalID), nil

	case models.EntityTypeRegistration:
		if deps == nil || deps.EventCandidateID == "" {
			return "", &MissingIdentityError{EntityType: entityType, Field: "event_candidate_id"}
		}
		if deps.YachtCandidateID == "" {
			return "", &MissingIdentityError{EntityType: entityType, Field: "yacht_candidate_id"}
		}
		externalID, err := identityPart(entityType, attrs, "external_id", "trim_lower")
		if err != nil {
			return "", err
		}
		return HashParts(deps.EventCandidateID, externalID, deps.YachtCandidateID), nil
	}

	return "", fmt.Errorf("unknown entity type %q", entityType)
}

func identityPart(entityType models.EntityType, attrs map[string]any, field, normalizer string) (string, error) {
	raw, ok := attrs[field]
	if !ok || raw == nil {
		return "", &MissingIdentityError{EntityType: entityType, Field: field}
	}
	s, ok := raw.(string)
	if !ok {
		s = fmt.Sprintf("%v", raw)
	}
	normalized := normalizers.Apply(s, normalizer)
	if normalized == "" {
		return "", &MissingIdentityError{EntityType: entityType, Field: field}
	}
	return normalized, nil
}
