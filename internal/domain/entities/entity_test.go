package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "ada lovelace", NormalizeName("  Ada Lovelace "))
	assert.Equal(t, "", NormalizeName("   "))
}

func TestEntity_Matches(t *testing.T) {
	e := &Entity{Name: "Ada Lovelace", Type: EntityTypePerson}

	assert.True(t, e.Matches("ada lovelace", EntityTypePerson))
	assert.True(t, e.Matches("ADA LOVELACE ", EntityTypePerson))
	assert.False(t, e.Matches("Ada Lovelace", EntityTypeConcept))
	assert.False(t, e.Matches("Ada", EntityTypePerson))
}

func TestEntityKey_CaseInsensitive(t *testing.T) {
	a := EntityKey("p1", "Ada", EntityTypePerson)
	b := EntityKey("p1", "ADA", EntityTypePerson)
	c := EntityKey("p2", "Ada", EntityTypePerson)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestRelationship_Direction(t *testing.T) {
	rel := &Relationship{SourceEntityID: "a", TargetEntityID: "b", Type: RelationKnows}

	assert.Equal(t, DirectionOutgoing, rel.DirectionFrom("a"))
	assert.Equal(t, DirectionIncoming, rel.DirectionFrom("b"))
	assert.Equal(t, "b", rel.OtherEnd("a"))
	assert.Equal(t, "a", rel.OtherEnd("b"))
	assert.True(t, rel.Involves("a"))
	assert.False(t, rel.Involves("c"))
}

func TestRelationshipKey_Directional(t *testing.T) {
	forward := RelationshipKey("p1", "a", "b", RelationKnows)
	backward := RelationshipKey("p1", "b", "a", RelationKnows)

	assert.NotEqual(t, forward, backward)
}
