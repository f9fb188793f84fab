package types

import (
	"fmt"
	"time"
)

// EntityType classifies a knowledge-graph entity.
type EntityType string

// Entity type constants
const (
	EntityTypePerson       EntityType = "person"
	EntityTypeProject      EntityType = "project"
	EntityTypeConcept      EntityType = "concept"
	EntityTypePreference   EntityType = "preference"
	EntityTypeTool         EntityType = "tool"
	EntityTypeOrganization EntityType = "organization"
	EntityTypeLocation     EntityType = "location"
	EntityTypeTopic        EntityType = "topic"
)

// ValidEntityTypes contains all valid entity types.
var ValidEntityTypes = []EntityType{
	EntityTypePerson,
	EntityTypeProject,
	EntityTypeConcept,
	EntityTypePreference,
	EntityTypeTool,
	EntityTypeOrganization,
	EntityTypeLocation,
	EntityTypeTopic,
}

// IsValidEntityType checks if the given value is a valid entity type.
func IsValidEntityType(t EntityType) bool {
	for _, valid := range ValidEntityTypes {
		if t == valid {
			return true
		}
	}
	return false
}

// Entity is an evolving node in the knowledge graph. Names are unique
// case-insensitively; observations are an ordered, duplicate-free list.
type Entity struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	EntityType   EntityType `json:"entity_type"`
	Summary      *string    `json:"summary,omitempty"`
	Observations []string   `json:"observations"`
	Importance   float64    `json:"importance"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	AccessedAt   *time.Time `json:"accessed_at,omitempty"`
	AccessCount  int        `json:"access_count"`
}

// Validate checks the caller-supplied fields of an entity.
func (e *Entity) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("entity name must not be empty")
	}
	if !IsValidEntityType(e.EntityType) {
		return fmt.Errorf("invalid entity_type %q", e.EntityType)
	}
	return nil
}

// EmbeddingText produces the text that is embedded for an entity: the name,
// summary (when present), and all observations joined by spaces.
func (e *Entity) EmbeddingText() string {
	text := e.Name
	if e.Summary != nil && *e.Summary != "" {
		text += " " + *e.Summary
	}
	for _, obs := range e.Observations {
		text += " " + obs
	}
	return text
}
