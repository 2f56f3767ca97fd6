package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/kgraph/internal/domain/entities"
	"github.com/ersonp/kgraph/internal/domain/services"
	"github.com/ersonp/kgraph/internal/infrastructure/config"
)

var baseTime = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// setupTestRepo creates an in-memory SQLite repository for testing.
func setupTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(config.SQLiteConfig{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	err = repo.EnsureSchema(context.Background())
	require.NoError(t, err)

	return repo
}

func insertEntity(t *testing.T, repo *Repository, id, persona, name string, typ entities.EntityType, conf float64, created time.Time) {
	t.Helper()
	require.NoError(t, repo.InsertEntity(t.Context(), &entities.Entity{
		ID: id, PersonaID: persona, Name: name, Type: typ, Confidence: conf,
		Properties: entities.Properties{"seed": true}, CreatedAt: created, UpdatedAt: created,
	}))
}

func insertRel(t *testing.T, repo *Repository, id, src, tgt string, typ entities.RelationType, updated time.Time) {
	t.Helper()
	require.NoError(t, repo.InsertRelationship(t.Context(), &entities.Relationship{
		ID: id, PersonaID: "p1", SourceEntityID: src, TargetEntityID: tgt, Type: typ,
		Strength: 0.5, CreatedAt: updated, UpdatedAt: updated,
	}))
}

func TestNewRepository(t *testing.T) {
	t.Run("success with memory database", func(t *testing.T) {
		repo, err := NewRepository(config.SQLiteConfig{Path: ":memory:"})
		require.NoError(t, err)
		defer repo.Close()
		assert.NotNil(t, repo)
	})

	t.Run("success with file database", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "graph.db")
		repo, err := NewRepository(config.SQLiteConfig{Path: path})
		require.NoError(t, err)
		defer repo.Close()
		assert.Equal(t, path, repo.Path())
	})

	t.Run("error with empty path", func(t *testing.T) {
		_, err := NewRepository(config.SQLiteConfig{Path: ""})
		require.Error(t, err)
	})
}

func TestRepository_EnsureSchema(t *testing.T) {
	repo := setupTestRepo(t)

	for _, table := range []string{"entities", "relationships"} {
		var count int
		err := repo.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "table %s should exist", table)
	}

	// Idempotent
	require.NoError(t, repo.EnsureSchema(t.Context()))
}

func TestRepository_EntityRoundTrip(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := t.Context()

	entity := &entities.Entity{
		ID: "e1", PersonaID: "p1", VectorID: "v1", Type: entities.EntityTypePerson, Name: "Ada Lovelace",
		Properties: entities.Properties{"born": 1815, "tags": []any{"math"}}, Confidence: 0.7,
		CreatedAt: baseTime, UpdatedAt: baseTime,
	}
	require.NoError(t, repo.InsertEntity(ctx, entity))

	found, err := repo.FindEntityByID(ctx, "e1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "p1", found.PersonaID)
	assert.Equal(t, "v1", found.VectorID)
	assert.Equal(t, entities.EntityTypePerson, found.Type)
	assert.Equal(t, 0.7, found.Confidence)
	assert.Equal(t, float64(1815), found.Properties["born"])
	assert.True(t, baseTime.Equal(found.CreatedAt))

	t.Run("duplicate id rejected", func(t *testing.T) {
		assert.Error(t, repo.InsertEntity(ctx, entity))
	})

	t.Run("missing returns nil", func(t *testing.T) {
		missing, err := repo.FindEntityByID(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("update", func(t *testing.T) {
		later := baseTime.Add(time.Hour)
		err := repo.UpdateEntity(ctx, "e1", entities.EntityUpdate{
			Confidence: 0.9, VectorID: "v2", Properties: entities.Properties{"born": 1815, "died": 1852}, UpdatedAt: later,
		})
		require.NoError(t, err)

		updated, err := repo.FindEntityByID(ctx, "e1")
		require.NoError(t, err)
		assert.Equal(t, 0.9, updated.Confidence)
		assert.Equal(t, "v2", updated.VectorID)
		assert.Equal(t, float64(1852), updated.Properties["died"])
		assert.True(t, later.Equal(updated.UpdatedAt))
		assert.True(t, baseTime.Equal(updated.CreatedAt))
	})

	t.Run("update missing", func(t *testing.T) {
		err := repo.UpdateEntity(ctx, "nope", entities.EntityUpdate{UpdatedAt: baseTime})
		assert.ErrorContains(t, err, "entity not found")
	})
}

func TestRepository_SearchEntitiesByName(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := t.Context()

	insertEntity(t, repo, "1", "p1", "Catalog", entities.EntityTypeConcept, 1, baseTime)
	insertEntity(t, repo, "2", "p1", "Bobcat", entities.EntityTypeConcept, 1, baseTime)
	insertEntity(t, repo, "3", "p1", "Cat", entities.EntityTypeConcept, 1, baseTime)
	insertEntity(t, repo, "4", "p2", "cat", entities.EntityTypeConcept, 1, baseTime)
	insertEntity(t, repo, "5", "p1", "100% cotton", entities.EntityTypeConcept, 1, baseTime)

	found, err := repo.SearchEntitiesByName(ctx, "p1", " CAT ", 10)
	require.NoError(t, err)
	ids := make([]string, 0, len(found))
	for _, e := range found {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"3", "2", "1"}, ids, "exact match first, then by name")

	limited, err := repo.SearchEntitiesByName(ctx, "p1", "cat", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "3", limited[0].ID)

	wildcard, err := repo.SearchEntitiesByName(ctx, "p1", "%", 10)
	require.NoError(t, err)
	require.Len(t, wildcard, 1, "LIKE wildcards match literally")
	assert.Equal(t, "5", wildcard[0].ID)
}

func TestRepository_ListEntitiesByPersona(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := t.Context()

	insertEntity(t, repo, "b", "p1", "B", entities.EntityTypeConcept, 1, baseTime.Add(time.Minute))
	insertEntity(t, repo, "a", "p1", "A", entities.EntityTypeConcept, 1, baseTime)
	insertEntity(t, repo, "x", "p2", "X", entities.EntityTypeConcept, 1, baseTime)

	all, err := repo.ListEntitiesByPersona(ctx, "p1", 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "b", all[1].ID)

	one, err := repo.ListEntitiesByPersona(ctx, "p1", 1)
	require.NoError(t, err)
	assert.Len(t, one, 1)
}

func TestRepository_Relationships(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := t.Context()

	for _, id := range []string{"a", "b", "c"} {
		insertEntity(t, repo, id, "p1", id, entities.EntityTypeConcept, 1, baseTime)
	}
	insertRel(t, repo, "r1", "a", "b", entities.RelationKnows, baseTime)
	insertRel(t, repo, "r2", "c", "a", entities.RelationMentions, baseTime.Add(time.Minute))

	t.Run("directions", func(t *testing.T) {
		out, err := repo.FindEntityRelationships(ctx, "a", entities.DirectionOutgoing, 10)
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, "r1", out[0].ID)

		in, err := repo.FindEntityRelationships(ctx, "a", entities.DirectionIncoming, 10)
		require.NoError(t, err)
		require.Len(t, in, 1)
		assert.Equal(t, "r2", in[0].ID)

		both, err := repo.FindEntityRelationships(ctx, "a", entities.DirectionBoth, 10)
		require.NoError(t, err)
		require.Len(t, both, 2)
		assert.Equal(t, "r2", both[0].ID, "most recently updated first")

		capped, err := repo.FindEntityRelationships(ctx, "a", entities.DirectionBoth, 1)
		require.NoError(t, err)
		assert.Len(t, capped, 1)
	})

	t.Run("unknown direction", func(t *testing.T) {
		_, err := repo.FindEntityRelationships(ctx, "a", "sideways", 10)
		assert.Error(t, err)
	})

	t.Run("update", func(t *testing.T) {
		err := repo.UpdateRelationship(ctx, "r1", entities.RelationshipUpdate{
			Strength: 0.75, Context: "colleagues", Properties: entities.Properties{entities.UpdateCountKey: 1},
			UpdatedAt: baseTime.Add(time.Hour),
		})
		require.NoError(t, err)

		out, err := repo.FindEntityRelationships(ctx, "a", entities.DirectionOutgoing, 10)
		require.NoError(t, err)
		assert.Equal(t, 0.75, out[0].Strength)
		assert.Equal(t, "colleagues", out[0].Context)
		assert.Equal(t, 1, out[0].Properties.UpdateCount())
	})

	t.Run("update missing", func(t *testing.T) {
		err := repo.UpdateRelationship(ctx, "nope", entities.RelationshipUpdate{UpdatedAt: baseTime})
		assert.ErrorContains(t, err, "relationship not found")
	})

	t.Run("dangling endpoint rejected", func(t *testing.T) {
		err := repo.InsertRelationship(ctx, &entities.Relationship{
			ID: "r3", PersonaID: "p1", SourceEntityID: "a", TargetEntityID: "ghost",
			Type: entities.RelationKnows, CreatedAt: baseTime, UpdatedAt: baseTime,
		})
		assert.Error(t, err)
	})

	t.Run("delete cascades", func(t *testing.T) {
		require.NoError(t, repo.DeleteEntity(ctx, "c"))

		both, err := repo.FindEntityRelationships(ctx, "a", entities.DirectionBoth, 10)
		require.NoError(t, err)
		require.Len(t, both, 1)
		assert.Equal(t, "r1", both[0].ID)

		assert.ErrorContains(t, repo.DeleteEntity(ctx, "c"), "entity not found")
	})
}

func TestRepository_FindRelatedEntities(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := t.Context()

	// a -> b -> c -> d, e -> a, and a cycle b -> a.
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		insertEntity(t, repo, id, "p1", id, entities.EntityTypeConcept, 1, baseTime)
	}
	insertRel(t, repo, "r1", "a", "b", entities.RelationRelatedTo, baseTime)
	insertRel(t, repo, "r2", "b", "c", entities.RelationRelatedTo, baseTime)
	insertRel(t, repo, "r3", "c", "d", entities.RelationRelatedTo, baseTime)
	insertRel(t, repo, "r4", "e", "a", entities.RelationRelatedTo, baseTime)
	insertRel(t, repo, "r5", "b", "a", entities.RelationKnows, baseTime)

	depthOf := func(list []entities.TraversedEntity) map[string]int {
		m := make(map[string]int, len(list))
		for _, te := range list {
			m[te.ID] = te.Depth
		}
		return m
	}

	t.Run("depth 1", func(t *testing.T) {
		found, err := repo.FindRelatedEntities(ctx, "a", 1, 50)
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"b": 1, "e": 1}, depthOf(found))
	})

	t.Run("depth 3 keeps smallest depth and excludes start", func(t *testing.T) {
		found, err := repo.FindRelatedEntities(ctx, "a", 3, 50)
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"b": 1, "e": 1, "c": 2, "d": 3}, depthOf(found))
		assert.Equal(t, true, found[0].Properties["seed"])
	})

	t.Run("limit", func(t *testing.T) {
		found, err := repo.FindRelatedEntities(ctx, "a", 3, 2)
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"b": 1, "e": 1}, depthOf(found))
	})

	t.Run("zero depth", func(t *testing.T) {
		found, err := repo.FindRelatedEntities(ctx, "a", 0, 50)
		require.NoError(t, err)
		assert.Empty(t, found)
	})
}

func TestRepository_GraphStats(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := t.Context()

	insertEntity(t, repo, "a", "p1", "A", entities.EntityTypePerson, 1, baseTime)
	insertEntity(t, repo, "b", "p1", "B", entities.EntityTypeLocation, 1, baseTime)
	insertEntity(t, repo, "c", "p1", "C", entities.EntityTypePerson, 1, baseTime)
	insertEntity(t, repo, "x", "p2", "X", entities.EntityTypeEvent, 1, baseTime)
	insertRel(t, repo, "r1", "a", "b", entities.RelationLocatedIn, baseTime)

	stats, err := repo.GraphStats(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, &entities.RawGraphStats{
		TotalEntities:      3,
		TotalRelationships: 1,
		EntityTypes:        []string{"location", "person"},
		RelationshipTypes:  []string{"located_in"},
	}, stats)

	empty, err := repo.GraphStats(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, 0, empty.TotalEntities)
	assert.Empty(t, empty.EntityTypes)
}

func TestRepository_WithServices(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := t.Context()

	merge := services.NewMergeService(repo, nil, nil, services.MergeOptions{})
	batch := services.NewBatchService(merge, nil, services.BatchOptions{Concurrency: 1})

	conf := func(v float64) *float64 { return &v }
	result := batch.ProcessBatch(ctx,
		[]services.EntityInput{
			{ID: "ada", PersonaID: "p1", Name: "Ada", Type: entities.EntityTypePerson, Confidence: conf(0.6)},
			{ID: "engine", PersonaID: "p1", Name: "Analytical Engine", Type: entities.EntityTypeConcept},
			{PersonaID: "p1", Name: "ADA", Type: entities.EntityTypePerson, Confidence: conf(0.9)},
		},
		[]services.RelationshipInput{
			{PersonaID: "p1", SourceEntityID: "ada", TargetEntityID: "engine", Type: entities.RelationRelatedTo, Strength: conf(0.4)},
			{PersonaID: "p1", SourceEntityID: "ada", TargetEntityID: "engine", Type: entities.RelationRelatedTo, Strength: conf(0.8)},
			{PersonaID: "p1", SourceEntityID: "ada", TargetEntityID: "ghost", Type: entities.RelationKnows},
		},
	)

	assert.Equal(t, services.BatchSummary{EntitiesProcessed: 3, RelationshipsProcessed: 2, RelationshipsFailed: 1}, result.Summary)

	ada, err := repo.FindEntityByID(ctx, "ada")
	require.NoError(t, err)
	assert.Equal(t, 0.9, ada.Confidence)

	rels, err := repo.FindEntityRelationships(ctx, "ada", entities.DirectionOutgoing, 10)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.InDelta(t, 0.6, rels[0].Strength, 1e-9)
	assert.Equal(t, 1, rels[0].Properties.UpdateCount())

	traversal := services.NewTraversalService(repo, nil)
	related := traversal.FindRelatedEntities(ctx, "ada", services.RelatedOptions{})
	require.True(t, related.Ok())
	require.Len(t, related.Value, 1)
	assert.Equal(t, "engine", related.Value[0].ID)
	require.Len(t, related.Value[0].Relationships, 1)
	assert.Equal(t, entities.DirectionIncoming, related.Value[0].Relationships[0].Direction)

	stats := services.NewStatisticsService(repo, nil).GetGraphStatistics(ctx, "p1")
	require.True(t, stats.Ok())
	assert.Equal(t, 2, stats.Value.TotalEntities)
	assert.Equal(t, 1.0, stats.Value.GraphDensity)
}
