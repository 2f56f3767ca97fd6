package mocks

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ersonp/kgraph/internal/domain/entities"
)

// GraphStore is an in-memory mock implementation of ports.GraphStore.
// It is safe for concurrent use.
type GraphStore struct {
	mu            sync.Mutex
	Entities      map[string]*entities.Entity
	Relationships map[string]*entities.Relationship

	// Err fails every operation when set.
	Err error

	// Per-operation errors (checked after Err)
	InsertEntityErr       error
	UpdateEntityErr       error
	DeleteEntityErr       error
	FindEntityByIDErr     error
	SearchErr             error
	ListErr               error
	StatsErr              error
	InsertRelationshipErr error
	UpdateRelationshipErr error
	FindRelationshipsErr  error
	FindRelatedErr        error
	EnsureSchemaErr       error

	// InsertEntityHook, when set, may reject a single insert.
	InsertEntityHook func(*entities.Entity) error
	// DeleteEntityHook, when set, may reject a single delete.
	DeleteEntityHook func(id string) error

	// Call tracking
	EnsureSchemaCalls       int
	Closed                  bool
	InsertEntityCalls       int
	UpdateEntityCalls       int
	DeleteEntityCalls       int
	InsertRelationshipCalls int
	UpdateRelationshipCalls int
	SearchLimits            []int
	DeletedEntityIDs        []string
}

// NewGraphStore creates a new empty mock GraphStore.
func NewGraphStore() *GraphStore {
	return &GraphStore{
		Entities:      make(map[string]*entities.Entity),
		Relationships: make(map[string]*entities.Relationship),
	}
}

func (m *GraphStore) fail(opErr error) error {
	if m.Err != nil {
		return m.Err
	}
	return opErr
}

// EnsureSchema records the call.
func (m *GraphStore) EnsureSchema(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EnsureSchemaCalls++
	return m.fail(m.EnsureSchemaErr)
}

// Close records the call.
func (m *GraphStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// PutEntity seeds an entity directly, bypassing call tracking.
func (m *GraphStore) PutEntity(e *entities.Entity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entities[e.ID] = copyEntity(e)
}

// PutRelationship seeds a relationship directly, bypassing call tracking.
func (m *GraphStore) PutRelationship(r *entities.Relationship) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Relationships[r.ID] = copyRelationship(r)
}

// Entity returns a copy of the stored entity, or nil.
func (m *GraphStore) Entity(id string) *entities.Entity {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.Entities[id]; ok {
		return copyEntity(e)
	}
	return nil
}

// Relationship returns a copy of the stored relationship, or nil.
func (m *GraphStore) Relationship(id string) *entities.Relationship {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.Relationships[id]; ok {
		return copyRelationship(r)
	}
	return nil
}

// EntityCount returns the number of stored entities.
func (m *GraphStore) EntityCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Entities)
}

// RelationshipCount returns the number of stored relationships.
func (m *GraphStore) RelationshipCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Relationships)
}

// InsertEntity stores a new entity.
func (m *GraphStore) InsertEntity(_ context.Context, e *entities.Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InsertEntityCalls++
	if err := m.fail(m.InsertEntityErr); err != nil {
		return err
	}
	if m.InsertEntityHook != nil {
		if err := m.InsertEntityHook(e); err != nil {
			return err
		}
	}
	if _, exists := m.Entities[e.ID]; exists {
		return fmt.Errorf("entity %s already exists", e.ID)
	}
	m.Entities[e.ID] = copyEntity(e)
	return nil
}

// UpdateEntity applies an entity merge.
func (m *GraphStore) UpdateEntity(_ context.Context, id string, u entities.EntityUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdateEntityCalls++
	if err := m.fail(m.UpdateEntityErr); err != nil {
		return err
	}
	e, ok := m.Entities[id]
	if !ok {
		return fmt.Errorf("entity %s not found", id)
	}
	e.Confidence = u.Confidence
	e.VectorID = u.VectorID
	e.Properties = u.Properties.Clone()
	e.UpdatedAt = u.UpdatedAt
	return nil
}

// DeleteEntity removes an entity and every relationship touching it.
func (m *GraphStore) DeleteEntity(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteEntityCalls++
	if err := m.fail(m.DeleteEntityErr); err != nil {
		return err
	}
	if m.DeleteEntityHook != nil {
		if err := m.DeleteEntityHook(id); err != nil {
			return err
		}
	}
	delete(m.Entities, id)
	for relID, r := range m.Relationships {
		if r.Involves(id) {
			delete(m.Relationships, relID)
		}
	}
	m.DeletedEntityIDs = append(m.DeletedEntityIDs, id)
	return nil
}

// FindEntityByID returns the entity, or nil when missing.
func (m *GraphStore) FindEntityByID(_ context.Context, id string) (*entities.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(m.FindEntityByIDErr); err != nil {
		return nil, err
	}
	if e, ok := m.Entities[id]; ok {
		return copyEntity(e), nil
	}
	return nil, nil
}

// SearchEntitiesByName returns substring matches, exact matches first.
func (m *GraphStore) SearchEntitiesByName(_ context.Context, personaID, name string, limit int) ([]*entities.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SearchLimits = append(m.SearchLimits, limit)
	if err := m.fail(m.SearchErr); err != nil {
		return nil, err
	}
	needle := entities.NormalizeName(name)
	var result []*entities.Entity
	for _, e := range m.Entities {
		if e.PersonaID == personaID && strings.Contains(entities.NormalizeName(e.Name), needle) {
			result = append(result, copyEntity(e))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		ei := entities.NormalizeName(result[i].Name) == needle
		ej := entities.NormalizeName(result[j].Name) == needle
		if ei != ej {
			return ei
		}
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return truncate(result, limit), nil
}

// ListEntitiesByPersona lists entities ordered by creation time.
func (m *GraphStore) ListEntitiesByPersona(_ context.Context, personaID string, limit int) ([]*entities.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(m.ListErr); err != nil {
		return nil, err
	}
	var result []*entities.Entity
	for _, e := range m.Entities {
		if e.PersonaID == personaID {
			result = append(result, copyEntity(e))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return truncate(result, limit), nil
}

// GraphStats aggregates per-persona counts.
func (m *GraphStore) GraphStats(_ context.Context, personaID string) (*entities.RawGraphStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(m.StatsErr); err != nil {
		return nil, err
	}
	stats := &entities.RawGraphStats{EntityTypes: []string{}, RelationshipTypes: []string{}}
	entityTypes := map[string]bool{}
	relTypes := map[string]bool{}
	for _, e := range m.Entities {
		if e.PersonaID == personaID {
			stats.TotalEntities++
			entityTypes[string(e.Type)] = true
		}
	}
	for _, r := range m.Relationships {
		if r.PersonaID == personaID {
			stats.TotalRelationships++
			relTypes[string(r.Type)] = true
		}
	}
	for t := range entityTypes {
		stats.EntityTypes = append(stats.EntityTypes, t)
	}
	for t := range relTypes {
		stats.RelationshipTypes = append(stats.RelationshipTypes, t)
	}
	sort.Strings(stats.EntityTypes)
	sort.Strings(stats.RelationshipTypes)
	return stats, nil
}

// InsertRelationship stores a new relationship.
func (m *GraphStore) InsertRelationship(_ context.Context, r *entities.Relationship) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InsertRelationshipCalls++
	if err := m.fail(m.InsertRelationshipErr); err != nil {
		return err
	}
	if _, exists := m.Relationships[r.ID]; exists {
		return fmt.Errorf("relationship %s already exists", r.ID)
	}
	m.Relationships[r.ID] = copyRelationship(r)
	return nil
}

// UpdateRelationship applies a relationship merge.
func (m *GraphStore) UpdateRelationship(_ context.Context, id string, u entities.RelationshipUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdateRelationshipCalls++
	if err := m.fail(m.UpdateRelationshipErr); err != nil {
		return err
	}
	r, ok := m.Relationships[id]
	if !ok {
		return fmt.Errorf("relationship %s not found", id)
	}
	r.Strength = u.Strength
	r.Context = u.Context
	r.Properties = u.Properties.Clone()
	r.UpdatedAt = u.UpdatedAt
	return nil
}

// FindEntityRelationships returns relationships on the requested side,
// most recently updated first.
func (m *GraphStore) FindEntityRelationships(_ context.Context, entityID string, direction entities.Direction, limit int) ([]entities.Relationship, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(m.FindRelationshipsErr); err != nil {
		return nil, err
	}
	var result []entities.Relationship
	for _, r := range m.Relationships {
		out := r.SourceEntityID == entityID
		in := r.TargetEntityID == entityID
		switch direction {
		case entities.DirectionOutgoing:
			if !out {
				continue
			}
		case entities.DirectionIncoming:
			if !in {
				continue
			}
		default:
			if !out && !in {
				continue
			}
		}
		result = append(result, *copyRelationship(r))
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].UpdatedAt.After(result[j].UpdatedAt)
		}
		return result[i].ID < result[j].ID
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// FindRelatedEntities runs a breadth-first walk over both directions.
func (m *GraphStore) FindRelatedEntities(_ context.Context, entityID string, maxDepth, limit int) ([]entities.TraversedEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(m.FindRelatedErr); err != nil {
		return nil, err
	}
	depths := map[string]int{entityID: 0}
	frontier := []string{entityID}
	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			for _, r := range m.Relationships {
				if !r.Involves(id) {
					continue
				}
				other := r.OtherEnd(id)
				if _, seen := depths[other]; seen {
					continue
				}
				depths[other] = depth
				next = append(next, other)
			}
		}
		frontier = next
	}

	var result []entities.TraversedEntity
	for id, depth := range depths {
		if id == entityID {
			continue
		}
		e, ok := m.Entities[id]
		if !ok {
			continue
		}
		result = append(result, entities.TraversedEntity{Entity: *copyEntity(e), Depth: depth})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Depth != result[j].Depth {
			return result[i].Depth < result[j].Depth
		}
		return result[i].ID < result[j].ID
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func truncate(list []*entities.Entity, limit int) []*entities.Entity {
	if limit > 0 && len(list) > limit {
		return list[:limit]
	}
	return list
}

func copyEntity(e *entities.Entity) *entities.Entity {
	c := *e
	c.Properties = e.Properties.Clone()
	return &c
}

func copyRelationship(r *entities.Relationship) *entities.Relationship {
	c := *r
	c.Properties = r.Properties.Clone()
	return &c
}
