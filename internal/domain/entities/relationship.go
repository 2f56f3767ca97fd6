package entities

import "time"

// RelationType defines the kind of relationship between entities.
type RelationType string

// Frequent relationship types. The graph accepts any non-empty string.
const (
	RelationKnows     RelationType = "knows"
	RelationWorksAt   RelationType = "works_at"
	RelationLocatedIn RelationType = "located_in"
	RelationPartOf    RelationType = "part_of"
	RelationRelatedTo RelationType = "related_to"
	RelationMentions  RelationType = "mentions"
)

// DefaultStrength is applied when an observation carries no strength.
const DefaultStrength = 1.0

// Direction selects which side of a relationship an entity sits on.
type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
	DirectionBoth     Direction = "both"
)

// Relationship represents a directed connection between two entities.
// (PersonaID, SourceEntityID, TargetEntityID, Type) is the natural key;
// A->B and B->A are distinct records.
type Relationship struct {
	ID             string       `json:"id"`
	PersonaID      string       `json:"persona_id"`
	SourceEntityID string       `json:"source_entity_id"`
	TargetEntityID string       `json:"target_entity_id"`
	Type           RelationType `json:"relationship_type"`
	Strength       float64      `json:"strength"`
	Context        string       `json:"context,omitempty"`
	Properties     Properties   `json:"properties"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// EdgeKey identifies a relationship by its endpoints and type only.
type EdgeKey struct {
	Source string
	Target string
	Type   RelationType
}

// Edge returns the endpoint/type identity of the relationship.
func (r *Relationship) Edge() EdgeKey {
	return EdgeKey{Source: r.SourceEntityID, Target: r.TargetEntityID, Type: r.Type}
}

// Involves reports whether the entity is either endpoint.
func (r *Relationship) Involves(entityID string) bool {
	return r.SourceEntityID == entityID || r.TargetEntityID == entityID
}

// DirectionFrom returns outgoing when entityID is the source, incoming otherwise.
func (r *Relationship) DirectionFrom(entityID string) Direction {
	if r.SourceEntityID == entityID {
		return DirectionOutgoing
	}
	return DirectionIncoming
}

// OtherEnd returns the endpoint that is not entityID.
func (r *Relationship) OtherEnd(entityID string) string {
	if r.SourceEntityID == entityID {
		return r.TargetEntityID
	}
	return r.SourceEntityID
}

// RelationshipUpdate carries the mutable fields of a relationship merge.
type RelationshipUpdate struct {
	Strength   float64
	Context    string
	Properties Properties
	UpdatedAt  time.Time
}

// RelationshipKey builds the natural key for a relationship observation.
func RelationshipKey(personaID, sourceID, targetID string, relType RelationType) string {
	return "relationship:" + personaID + ":" + sourceID + ":" + targetID + ":" + string(relType)
}
