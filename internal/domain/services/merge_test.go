package services

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/kgraph/internal/domain/entities"
	"github.com/ersonp/kgraph/internal/domain/mocks"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func ptr(f float64) *float64 { return &f }

func newTestMergeService(store *mocks.GraphStore) (*MergeService, *mocks.Observer) {
	obs := &mocks.Observer{}
	svc := NewMergeService(store, &mocks.Locker{}, obs, MergeOptions{})
	svc.now = func() time.Time { return fixedNow }
	n := 0
	var mu sync.Mutex
	svc.newID = func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%d", n)
	}
	return svc, obs
}

func TestCreateOrMergeEntity_CreatesNew(t *testing.T) {
	store := mocks.NewGraphStore()
	svc, obs := newTestMergeService(store)

	id, err := svc.CreateOrMergeEntity(t.Context(), EntityInput{
		PersonaID:  "p1",
		Name:       "Ada Lovelace",
		Type:       entities.EntityTypePerson,
		Properties: entities.Properties{"born": 1815},
		Confidence: ptr(0.8),
		VectorID:   "vec-1",
	})

	require.NoError(t, err)
	assert.Equal(t, "id-1", id)

	stored := store.Entity(id)
	require.NotNil(t, stored)
	assert.Equal(t, "p1", stored.PersonaID)
	assert.Equal(t, 0.8, stored.Confidence)
	assert.Equal(t, "vec-1", stored.VectorID)
	assert.Equal(t, fixedNow, stored.CreatedAt)
	assert.Equal(t, entities.Properties{"born": 1815}, stored.Properties)
	assert.Contains(t, obs.Messages(), "Created new entity")
}

func TestCreateOrMergeEntity_UsesProvidedID(t *testing.T) {
	store := mocks.NewGraphStore()
	svc, _ := newTestMergeService(store)

	id, err := svc.CreateOrMergeEntity(t.Context(), EntityInput{
		ID: "custom", PersonaID: "p1", Name: "Paris", Type: entities.EntityTypeLocation,
	})

	require.NoError(t, err)
	assert.Equal(t, "custom", id)
	assert.Equal(t, entities.DefaultConfidence, store.Entity("custom").Confidence)
}

func TestCreateOrMergeEntity_Idempotent(t *testing.T) {
	store := mocks.NewGraphStore()
	svc, _ := newTestMergeService(store)
	in := EntityInput{PersonaID: "p1", Name: "Ada", Type: entities.EntityTypePerson, Confidence: ptr(0.7)}

	first, err := svc.CreateOrMergeEntity(t.Context(), in)
	require.NoError(t, err)
	second, err := svc.CreateOrMergeEntity(t.Context(), in)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, store.EntityCount())
	assert.Equal(t, 0, store.UpdateEntityCalls)
}

func TestCreateOrMergeEntity_CaseInsensitiveName(t *testing.T) {
	store := mocks.NewGraphStore()
	svc, _ := newTestMergeService(store)

	first, err := svc.CreateOrMergeEntity(t.Context(), EntityInput{PersonaID: "p1", Name: "Ada", Type: entities.EntityTypePerson})
	require.NoError(t, err)
	second, err := svc.CreateOrMergeEntity(t.Context(), EntityInput{PersonaID: "p1", Name: "ADA", Type: entities.EntityTypePerson})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, store.EntityCount())
}

func TestCreateOrMergeEntity_KeyIncludesTypeAndPersona(t *testing.T) {
	store := mocks.NewGraphStore()
	svc, _ := newTestMergeService(store)

	a, err := svc.CreateOrMergeEntity(t.Context(), EntityInput{PersonaID: "p1", Name: "Mercury", Type: entities.EntityTypeConcept})
	require.NoError(t, err)
	b, err := svc.CreateOrMergeEntity(t.Context(), EntityInput{PersonaID: "p1", Name: "Mercury", Type: entities.EntityTypeLocation})
	require.NoError(t, err)
	c, err := svc.CreateOrMergeEntity(t.Context(), EntityInput{PersonaID: "p2", Name: "Mercury", Type: entities.EntityTypeConcept})
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, 3, store.EntityCount())
}

func TestCreateOrMergeEntity_HigherConfidenceMerges(t *testing.T) {
	store := mocks.NewGraphStore()
	svc, obs := newTestMergeService(store)

	id, err := svc.CreateOrMergeEntity(t.Context(), EntityInput{
		PersonaID: "p1", Name: "Ada", Type: entities.EntityTypePerson,
		Properties: entities.Properties{"role": "writer", "city": "London"},
		Confidence: ptr(0.5), VectorID: "vec-old",
	})
	require.NoError(t, err)

	later := fixedNow.Add(time.Hour)
	svc.now = func() time.Time { return later }

	merged, err := svc.CreateOrMergeEntity(t.Context(), EntityInput{
		PersonaID: "p1", Name: "ada", Type: entities.EntityTypePerson,
		Properties: entities.Properties{"role": "mathematician"},
		Confidence: ptr(0.9),
	})
	require.NoError(t, err)
	assert.Equal(t, id, merged)

	stored := store.Entity(id)
	assert.Equal(t, 0.9, stored.Confidence)
	assert.Equal(t, "vec-old", stored.VectorID, "empty vector id keeps the stored link")
	assert.Equal(t, entities.Properties{"role": "mathematician", "city": "London"}, stored.Properties)
	assert.Equal(t, later, stored.UpdatedAt)
	assert.Equal(t, "Ada", stored.Name, "name is never rewritten")
	assert.Contains(t, obs.Messages(), "Updated existing entity with higher confidence")
}

func TestCreateOrMergeEntity_ConfidenceNeverRegresses(t *testing.T) {
	tests := []struct {
		name     string
		incoming *float64
	}{
		{name: "lower", incoming: ptr(0.3)},
		{name: "equal", incoming: ptr(0.6)},
		{name: "explicit zero", incoming: ptr(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := mocks.NewGraphStore()
			svc, _ := newTestMergeService(store)

			id, err := svc.CreateOrMergeEntity(t.Context(), EntityInput{
				PersonaID: "p1", Name: "Ada", Type: entities.EntityTypePerson,
				Properties: entities.Properties{"role": "writer"}, Confidence: ptr(0.6), VectorID: "vec-1",
			})
			require.NoError(t, err)

			again, err := svc.CreateOrMergeEntity(t.Context(), EntityInput{
				PersonaID: "p1", Name: "Ada", Type: entities.EntityTypePerson,
				Properties: entities.Properties{"role": "impostor"}, Confidence: tt.incoming, VectorID: "vec-2",
			})
			require.NoError(t, err)
			assert.Equal(t, id, again)

			stored := store.Entity(id)
			assert.Equal(t, 0.6, stored.Confidence)
			assert.Equal(t, "vec-1", stored.VectorID)
			assert.Equal(t, entities.Properties{"role": "writer"}, stored.Properties)
			assert.Equal(t, 0, store.UpdateEntityCalls)
		})
	}
}

func TestCreateOrMergeEntity_UnsetConfidenceBeatsLowerStored(t *testing.T) {
	store := mocks.NewGraphStore()
	svc, _ := newTestMergeService(store)

	id, err := svc.CreateOrMergeEntity(t.Context(), EntityInput{PersonaID: "p1", Name: "Ada", Type: entities.EntityTypePerson, Confidence: ptr(0.4)})
	require.NoError(t, err)
	_, err = svc.CreateOrMergeEntity(t.Context(), EntityInput{PersonaID: "p1", Name: "Ada", Type: entities.EntityTypePerson})
	require.NoError(t, err)

	assert.Equal(t, 1.0, store.Entity(id).Confidence)
}

func TestCreateOrMergeEntity_UsesBoundedCandidateScan(t *testing.T) {
	store := mocks.NewGraphStore()
	svc, _ := newTestMergeService(store)

	_, err := svc.CreateOrMergeEntity(t.Context(), EntityInput{PersonaID: "p1", Name: "Ada", Type: entities.EntityTypePerson})
	require.NoError(t, err)

	assert.Equal(t, []int{DefaultEntityCandidateLimit}, store.SearchLimits)
}

func TestCreateOrMergeEntity_Validation(t *testing.T) {
	tests := []struct {
		name string
		in   EntityInput
	}{
		{name: "missing persona", in: EntityInput{Name: "Ada", Type: entities.EntityTypePerson}},
		{name: "blank name", in: EntityInput{PersonaID: "p1", Name: "  ", Type: entities.EntityTypePerson}},
		{name: "missing type", in: EntityInput{PersonaID: "p1", Name: "Ada"}},
		{name: "confidence above one", in: EntityInput{PersonaID: "p1", Name: "Ada", Type: entities.EntityTypePerson, Confidence: ptr(1.5)}},
		{name: "negative confidence", in: EntityInput{PersonaID: "p1", Name: "Ada", Type: entities.EntityTypePerson, Confidence: ptr(-0.1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := mocks.NewGraphStore()
			svc, _ := newTestMergeService(store)

			_, err := svc.CreateOrMergeEntity(t.Context(), tt.in)

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidInput)
			var werr *WriteError
			require.ErrorAs(t, err, &werr)
			assert.Equal(t, "createOrMergeEntity", werr.Op)
			assert.Empty(t, store.SearchLimits, "storage is not touched")
		})
	}
}

func TestCreateOrMergeEntity_StorageFailures(t *testing.T) {
	storageErr := errors.New("disk full")

	tests := []struct {
		name  string
		setup func(*mocks.GraphStore)
	}{
		{name: "lookup fails", setup: func(m *mocks.GraphStore) { m.SearchErr = storageErr }},
		{name: "insert fails", setup: func(m *mocks.GraphStore) { m.InsertEntityErr = storageErr }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := mocks.NewGraphStore()
			tt.setup(store)
			svc, obs := newTestMergeService(store)

			_, err := svc.CreateOrMergeEntity(t.Context(), EntityInput{PersonaID: "p1", Name: "Ada", Type: entities.EntityTypePerson})

			var werr *WriteError
			require.ErrorAs(t, err, &werr)
			assert.ErrorIs(t, err, storageErr)
			assert.Equal(t, "p1", werr.PersonaID)
			assert.Equal(t, "Ada", werr.Name)
			assert.Equal(t, entities.EntityTypePerson, werr.EntityType)
			assert.Contains(t, err.Error(), "createOrMergeEntity failed")
			assert.Len(t, obs.Errors(), 1)
			assert.Equal(t, 0, store.EntityCount())
		})
	}
}

func TestCreateOrMergeEntity_UpdateFailure(t *testing.T) {
	store := mocks.NewGraphStore()
	svc, _ := newTestMergeService(store)

	id, err := svc.CreateOrMergeEntity(t.Context(), EntityInput{PersonaID: "p1", Name: "Ada", Type: entities.EntityTypePerson, Confidence: ptr(0.2)})
	require.NoError(t, err)

	store.UpdateEntityErr = errors.New("locked")
	_, err = svc.CreateOrMergeEntity(t.Context(), EntityInput{PersonaID: "p1", Name: "Ada", Type: entities.EntityTypePerson, Confidence: ptr(0.9)})

	var werr *WriteError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, 0.2, store.Entity(id).Confidence)
}

func TestCreateOrMergeEntity_LockFailure(t *testing.T) {
	store := mocks.NewGraphStore()
	svc := NewMergeService(store, &mocks.Locker{Err: errors.New("redis down")}, nil, MergeOptions{})

	_, err := svc.CreateOrMergeEntity(t.Context(), EntityInput{PersonaID: "p1", Name: "Ada", Type: entities.EntityTypePerson})

	var werr *WriteError
	require.ErrorAs(t, err, &werr)
	assert.Contains(t, err.Error(), "acquiring merge lock")
	assert.Equal(t, 0, store.InsertEntityCalls)
}

func TestCreateOrMergeEntity_ConcurrentSameKeyCreatesOnce(t *testing.T) {
	store := mocks.NewGraphStore()
	locker := &mocks.Locker{}
	svc := NewMergeService(store, locker, nil, MergeOptions{})

	var wg sync.WaitGroup
	ids := make([]string, 20)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := svc.CreateOrMergeEntity(t.Context(), EntityInput{PersonaID: "p1", Name: "Ada", Type: entities.EntityTypePerson})
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, store.EntityCount())
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestCreateOrMergeRelationship_CreatesNew(t *testing.T) {
	store := mocks.NewGraphStore()
	svc, _ := newTestMergeService(store)

	id, err := svc.CreateOrMergeRelationship(t.Context(), RelationshipInput{
		PersonaID: "p1", SourceEntityID: "a", TargetEntityID: "b",
		Type: entities.RelationKnows, Strength: ptr(0.6), Context: "met at work",
	})

	require.NoError(t, err)
	rel := store.Relationship(id)
	require.NotNil(t, rel)
	assert.Equal(t, 0.6, rel.Strength)
	assert.Equal(t, "met at work", rel.Context)
	assert.Equal(t, 0, rel.Properties.UpdateCount())
}

func TestCreateOrMergeRelationship_MergeAveragesStrength(t *testing.T) {
	store := mocks.NewGraphStore()
	svc, obs := newTestMergeService(store)
	in := RelationshipInput{PersonaID: "p1", SourceEntityID: "a", TargetEntityID: "b", Type: entities.RelationKnows}

	in.Strength = ptr(0.4)
	id, err := svc.CreateOrMergeRelationship(t.Context(), in)
	require.NoError(t, err)

	in.Strength = ptr(0.8)
	again, err := svc.CreateOrMergeRelationship(t.Context(), in)
	require.NoError(t, err)

	assert.Equal(t, id, again)
	rel := store.Relationship(id)
	assert.InDelta(t, 0.6, rel.Strength, 1e-9)
	assert.Equal(t, 1, rel.Properties.UpdateCount())
	assert.Contains(t, obs.Messages(), "Updated existing relationship")
}

func TestCreateOrMergeRelationship_UpdateCountIncrements(t *testing.T) {
	store := mocks.NewGraphStore()
	svc, _ := newTestMergeService(store)
	in := RelationshipInput{PersonaID: "p1", SourceEntityID: "a", TargetEntityID: "b", Type: entities.RelationKnows}

	id, err := svc.CreateOrMergeRelationship(t.Context(), in)
	require.NoError(t, err)
	for range 3 {
		// A caller-supplied updateCount never overrides the counter.
		in.Properties = entities.Properties{entities.UpdateCountKey: 99}
		_, err = svc.CreateOrMergeRelationship(t.Context(), in)
		require.NoError(t, err)
	}

	assert.Equal(t, 3, store.Relationship(id).Properties.UpdateCount())
}

func TestCreateOrMergeRelationship_MergeIsOrderDependent(t *testing.T) {
	run := func(strengths ...float64) float64 {
		store := mocks.NewGraphStore()
		svc, _ := newTestMergeService(store)
		var id string
		for _, s := range strengths {
			var err error
			id, err = svc.CreateOrMergeRelationship(t.Context(), RelationshipInput{
				PersonaID: "p1", SourceEntityID: "a", TargetEntityID: "b",
				Type: entities.RelationKnows, Strength: ptr(s),
			})
			require.NoError(t, err)
		}
		return store.Relationship(id).Strength
	}

	// 0.2 -> 0.6 -> 1.0 gives 0.7; 1.0 -> 0.6 -> 0.2 gives 0.5.
	assert.InDelta(t, 0.7, run(0.2, 0.6, 1.0), 1e-9)
	assert.InDelta(t, 0.5, run(1.0, 0.6, 0.2), 1e-9)
}

func TestCreateOrMergeRelationship_ContextAndProperties(t *testing.T) {
	store := mocks.NewGraphStore()
	svc, _ := newTestMergeService(store)
	in := RelationshipInput{
		PersonaID: "p1", SourceEntityID: "a", TargetEntityID: "b", Type: entities.RelationWorksAt,
		Context: "original", Properties: entities.Properties{"since": 2019, "title": "dev"},
	}

	id, err := svc.CreateOrMergeRelationship(t.Context(), in)
	require.NoError(t, err)

	in.Context = ""
	in.Properties = entities.Properties{"title": "lead"}
	_, err = svc.CreateOrMergeRelationship(t.Context(), in)
	require.NoError(t, err)

	rel := store.Relationship(id)
	assert.Equal(t, "original", rel.Context, "empty context keeps the stored one")
	assert.Equal(t, 2019, rel.Properties["since"])
	assert.Equal(t, "lead", rel.Properties["title"])

	in.Context = "promoted"
	_, err = svc.CreateOrMergeRelationship(t.Context(), in)
	require.NoError(t, err)
	assert.Equal(t, "promoted", store.Relationship(id).Context)
}

func TestCreateOrMergeRelationship_Directional(t *testing.T) {
	store := mocks.NewGraphStore()
	svc, _ := newTestMergeService(store)

	forward, err := svc.CreateOrMergeRelationship(t.Context(), RelationshipInput{PersonaID: "p1", SourceEntityID: "a", TargetEntityID: "b", Type: entities.RelationKnows})
	require.NoError(t, err)
	backward, err := svc.CreateOrMergeRelationship(t.Context(), RelationshipInput{PersonaID: "p1", SourceEntityID: "b", TargetEntityID: "a", Type: entities.RelationKnows})
	require.NoError(t, err)
	otherType, err := svc.CreateOrMergeRelationship(t.Context(), RelationshipInput{PersonaID: "p1", SourceEntityID: "a", TargetEntityID: "b", Type: entities.RelationWorksAt})
	require.NoError(t, err)

	assert.NotEqual(t, forward, backward)
	assert.NotEqual(t, forward, otherType)
	assert.Equal(t, 3, store.RelationshipCount())
}

func TestCreateOrMergeRelationship_SelfLoop(t *testing.T) {
	store := mocks.NewGraphStore()
	svc, _ := newTestMergeService(store)

	id, err := svc.CreateOrMergeRelationship(t.Context(), RelationshipInput{PersonaID: "p1", SourceEntityID: "a", TargetEntityID: "a", Type: entities.RelationRelatedTo})

	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestCreateOrMergeRelationship_Failures(t *testing.T) {
	storageErr := errors.New("connection reset")

	tests := []struct {
		name        string
		in          RelationshipInput
		setup       func(*mocks.GraphStore)
		wantInvalid bool
	}{
		{
			name:        "missing target",
			in:          RelationshipInput{PersonaID: "p1", SourceEntityID: "a", Type: entities.RelationKnows},
			wantInvalid: true,
		},
		{
			name:        "strength out of range",
			in:          RelationshipInput{PersonaID: "p1", SourceEntityID: "a", TargetEntityID: "b", Type: entities.RelationKnows, Strength: ptr(2)},
			wantInvalid: true,
		},
		{
			name:  "lookup fails",
			in:    RelationshipInput{PersonaID: "p1", SourceEntityID: "a", TargetEntityID: "b", Type: entities.RelationKnows},
			setup: func(m *mocks.GraphStore) { m.FindRelationshipsErr = storageErr },
		},
		{
			name:  "insert fails",
			in:    RelationshipInput{PersonaID: "p1", SourceEntityID: "a", TargetEntityID: "b", Type: entities.RelationKnows},
			setup: func(m *mocks.GraphStore) { m.InsertRelationshipErr = storageErr },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := mocks.NewGraphStore()
			if tt.setup != nil {
				tt.setup(store)
			}
			svc, _ := newTestMergeService(store)

			_, err := svc.CreateOrMergeRelationship(t.Context(), tt.in)

			var werr *WriteError
			require.ErrorAs(t, err, &werr)
			assert.Equal(t, "createOrMergeRelationship", werr.Op)
			assert.Equal(t, tt.in.SourceEntityID, werr.SourceID)
			assert.Equal(t, tt.in.TargetEntityID, werr.TargetID)
			assert.Equal(t, tt.in.Type, werr.RelationshipType)
			if tt.wantInvalid {
				assert.ErrorIs(t, err, ErrInvalidInput)
			} else {
				assert.ErrorIs(t, err, storageErr)
			}
			assert.Equal(t, 0, store.RelationshipCount())
		})
	}
}
