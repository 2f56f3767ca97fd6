package services

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/kgraph/internal/domain/entities"
	"github.com/ersonp/kgraph/internal/domain/mocks"
)

func TestDensity(t *testing.T) {
	assert.InDelta(t, 0.4, Density(5, 4), 1e-9)
	assert.Equal(t, 0.0, Density(1, 3))
	assert.Equal(t, 0.0, Density(0, 0))
	assert.InDelta(t, 2.0, Density(2, 2), 1e-9, "directed graphs can exceed 1")
}

func TestAverageDegree(t *testing.T) {
	assert.InDelta(t, 0.8, AverageDegree(5, 4), 1e-9)
	assert.Equal(t, 0.0, AverageDegree(0, 4))
}

func TestComplexityFor(t *testing.T) {
	tests := []struct {
		nodes    int
		expected entities.Complexity
	}{
		{0, entities.ComplexityLow},
		{9, entities.ComplexityLow},
		{10, entities.ComplexityMedium},
		{49, entities.ComplexityMedium},
		{50, entities.ComplexityHigh},
		{199, entities.ComplexityHigh},
		{200, entities.ComplexityVeryHigh},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, ComplexityFor(tt.nodes), "nodes=%d", tt.nodes)
	}
}

func TestGetGraphStatistics(t *testing.T) {
	store := mocks.NewGraphStore()
	for i, id := range []string{"a", "b", "c"} {
		typ := entities.EntityTypePerson
		if i == 2 {
			typ = entities.EntityTypeLocation
		}
		store.PutEntity(&entities.Entity{ID: id, PersonaID: "p1", Name: id, Type: typ})
	}
	store.PutRelationship(&entities.Relationship{ID: "r1", PersonaID: "p1", SourceEntityID: "a", TargetEntityID: "b", Type: entities.RelationKnows})
	store.PutRelationship(&entities.Relationship{ID: "r2", PersonaID: "p1", SourceEntityID: "b", TargetEntityID: "c", Type: entities.RelationLocatedIn})
	store.PutEntity(&entities.Entity{ID: "x", PersonaID: "p2", Name: "x", Type: entities.EntityTypeEvent})

	svc := NewStatisticsService(store, nil)
	svc.now = func() time.Time { return fixedNow }

	result := svc.GetGraphStatistics(t.Context(), "p1")

	require.True(t, result.Ok())
	stats := result.Value
	assert.Equal(t, 3, stats.TotalEntities)
	assert.Equal(t, 2, stats.TotalRelationships)
	assert.Equal(t, []string{"location", "person"}, stats.EntityTypes)
	assert.Equal(t, []string{"knows", "located_in"}, stats.RelationshipTypes)
	assert.Equal(t, 0.6667, stats.GraphDensity)
	assert.Equal(t, 0.67, stats.AverageRelationshipsPerEntity)
	assert.Equal(t, entities.ComplexityLow, stats.GraphComplexity)
	assert.Equal(t, fixedNow, stats.LastUpdated)
}

func TestGetGraphStatistics_FailureReturnsZeroedRecord(t *testing.T) {
	store := mocks.NewGraphStore()
	store.StatsErr = errors.New("no such table")
	obs := &mocks.Observer{}
	svc := NewStatisticsService(store, obs)
	svc.now = func() time.Time { return fixedNow }

	result := svc.GetGraphStatistics(t.Context(), "p1")

	assert.True(t, result.Degraded())
	require.NotNil(t, result.Value)
	assert.Equal(t, 0, result.Value.TotalEntities)
	assert.Equal(t, 0.0, result.Value.GraphDensity)
	assert.Equal(t, entities.ComplexityLow, result.Value.GraphComplexity)
	assert.Empty(t, result.Value.EntityTypes)
	assert.Equal(t, fixedNow, result.Value.LastUpdated)
	assert.Len(t, obs.Errors(), 1)
}
