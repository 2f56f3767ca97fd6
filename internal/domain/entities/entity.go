// Package entities contains core domain data structures.
package entities

import (
	"strings"
	"time"
)

// EntityType is the category tag of an entity (person, place, concept, ...).
type EntityType string

// Common entity types produced by the extraction pipeline. Any other
// string is accepted; the graph does not keep a closed vocabulary.
const (
	EntityTypePerson       EntityType = "person"
	EntityTypeOrganization EntityType = "organization"
	EntityTypeLocation     EntityType = "location"
	EntityTypeConcept      EntityType = "concept"
	EntityTypeEvent        EntityType = "event"
)

// DefaultConfidence is applied when an observation carries no confidence.
const DefaultConfidence = 1.0

// Entity represents a named node of a persona's knowledge graph.
// Within a persona, (NormalizeName(Name), Type) is the natural key.
type Entity struct {
	ID         string     `json:"id"`
	PersonaID  string     `json:"persona_id"`
	VectorID   string     `json:"vector_id,omitempty"` // Link to an embedding record, empty if none
	Type       EntityType `json:"type"`
	Name       string     `json:"name"`
	Properties Properties `json:"properties"`
	Confidence float64    `json:"confidence"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Matches reports whether the entity has the given name (case-insensitive) and type.
func (e *Entity) Matches(name string, entityType EntityType) bool {
	return e.Type == entityType && NormalizeName(e.Name) == NormalizeName(name)
}

// EntityUpdate carries the mutable fields of an entity merge.
type EntityUpdate struct {
	Confidence float64
	VectorID   string
	Properties Properties
	UpdatedAt  time.Time
}

// TraversedEntity is an entity discovered by multi-hop traversal,
// annotated with the smallest hop count at which it was reached.
type TraversedEntity struct {
	Entity
	Depth int `json:"depth"`
}

// NormalizeName converts a name to lowercase for case-insensitive matching.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// EntityKey builds the natural key for an entity observation.
func EntityKey(personaID, name string, entityType EntityType) string {
	return "entity:" + personaID + ":" + string(entityType) + ":" + NormalizeName(name)
}
