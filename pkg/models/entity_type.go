package models

import "fmt"

// EntityType identifies which real-world entity a record describes.
type EntityType string

const (
	EntityTypeClub         EntityType = "club"
	EntityTypeEvent        EntityType = "event"
	EntityTypeYacht        EntityType = "yacht"
	EntityTypeParticipant  EntityType = "participant"
	EntityTypeRegistration EntityType = "registration"
)

// EntityTypeOrder is the processing order for link-building and promotion.
// Registrations come last because their canonical form references promoted
// events and yachts.
var EntityTypeOrder = []EntityType{
	EntityTypeClub,
	EntityTypeEvent,
	EntityTypeYacht,
	EntityTypeParticipant,
	EntityTypeRegistration,
}

func (t EntityType) Valid() bool {
	switch t {
	case EntityTypeClub, EntityTypeEvent, EntityTypeYacht, EntityTypeParticipant, EntityTypeRegistration:
		return true
	}
	return false
}

// ParseEntityType validates a user-supplied entity type string.
func ParseEntityType(s string) (EntityType, error) {
	t := EntityType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown entity type %q", s)
	}
	return t, nil
}

// SelectEntityTypes returns the processing-ordered subset of entity types
// matching the selector. An empty selector means all types.
func SelectEntityTypes(selector []string) ([]EntityType, error) {
	if len(selector) == 0 {
		return EntityTypeOrder, nil
	}
	requested := make(map[EntityType]bool, len(selector))
	for _, s := range selector {
		t, err := ParseEntityType(s)
		if err != nil {
			return nil, err
		}
		requested[t] = true
	}
	var out []EntityType
	for _, t := range EntityTypeOrder {
		if requested[t] {
			out = append(out, t)
		}
	}
	return out, nil
}
