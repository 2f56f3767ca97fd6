// Package ports defines interfaces for external service communication.
package ports

import (
	"context"

	"github.com/ersonp/kgraph/internal/domain/entities"
)

// GraphStore defines the storage collaborator the graph services run against.
// Implementations own durable records; every mutation either fully applies
// or returns an error. Finders return (nil, nil) when a record is missing.
type GraphStore interface {
	// EnsureSchema creates the storage schema if it doesn't exist.
	EnsureSchema(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error

	// Entity operations

	// InsertEntity persists a new entity record.
	InsertEntity(ctx context.Context, entity *entities.Entity) error

	// UpdateEntity applies a merge result to an existing entity.
	UpdateEntity(ctx context.Context, entityID string, update entities.EntityUpdate) error

	// DeleteEntity deletes an entity by ID.
	DeleteEntity(ctx context.Context, entityID string) error

	// FindEntityByID finds an entity by its ID.
	FindEntityByID(ctx context.Context, entityID string) (*entities.Entity, error)

	// SearchEntitiesByName returns up to limit entities of a persona whose
	// name contains name (case-insensitive). Exact matches come first.
	SearchEntitiesByName(ctx context.Context, personaID, name string, limit int) ([]*entities.Entity, error)

	// ListEntitiesByPersona lists a persona's entities. A limit <= 0 returns all.
	ListEntitiesByPersona(ctx context.Context, personaID string, limit int) ([]*entities.Entity, error)

	// GraphStats aggregates counts and distinct type lists for a persona.
	GraphStats(ctx context.Context, personaID string) (*entities.RawGraphStats, error)

	// Relationship operations

	// InsertRelationship persists a new relationship record.
	InsertRelationship(ctx context.Context, rel *entities.Relationship) error

	// UpdateRelationship applies a merge result to an existing relationship.
	UpdateRelationship(ctx context.Context, relationshipID string, update entities.RelationshipUpdate) error

	// FindEntityRelationships returns up to limit relationships touching the
	// entity on the requested side, most recently updated first.
	FindEntityRelationships(ctx context.Context, entityID string, direction entities.Direction, limit int) ([]entities.Relationship, error)

	// FindRelatedEntities walks relationships in both directions from entityID
	// up to maxDepth hops and returns at most limit entities, each annotated
	// with the smallest depth at which it was reached. The start is excluded.
	FindRelatedEntities(ctx context.Context, entityID string, maxDepth, limit int) ([]entities.TraversedEntity, error)
}
