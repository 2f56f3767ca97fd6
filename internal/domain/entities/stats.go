package entities

// RawGraphStats holds the counts the storage layer aggregates for a persona.
type RawGraphStats struct {
	TotalEntities      int      `json:"totalEntities"`
	TotalRelationships int      `json:"totalRelationships"`
	EntityTypes        []string `json:"entityTypes"`
	RelationshipTypes  []string `json:"relationshipTypes"`
}

// Complexity is a coarse size bucket derived from the entity count.
type Complexity string

const (
	ComplexityLow      Complexity = "low"
	ComplexityMedium   Complexity = "medium"
	ComplexityHigh     Complexity = "high"
	ComplexityVeryHigh Complexity = "very_high"
)
