// Package neo4j provides a GraphStore implementation backed by Neo4j.
package neo4j

import (
	"context"
	"encoding/json"
	"fmt"

	neo "github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/ersonp/kgraph/internal/domain/entities"
	"github.com/ersonp/kgraph/internal/infrastructure/config"
)

// Labels and relationship type used in the graph. Domain relationship
// types are stored as a property so they can be bound as parameters.
const (
	entityLabel  = "Entity"
	relationType = "RELATES"
)

// Repository implements the GraphStore interface using Neo4j.
type Repository struct {
	driver   neo.DriverWithContext
	database string
}

// NewRepository connects to Neo4j and verifies connectivity.
func NewRepository(ctx context.Context, cfg config.Neo4jConfig) (*Repository, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("neo4j uri is required")
	}

	driver, err := neo.NewDriverWithContext(cfg.URI, neo.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("connecting to neo4j: %w", err)
	}

	return &Repository{driver: driver, database: cfg.Database}, nil
}

// Close closes the Neo4j driver connection.
func (r *Repository) Close() error {
	return r.driver.Close(context.Background())
}

func (r *Repository) session(ctx context.Context, mode neo.AccessMode) neo.SessionWithContext {
	return r.driver.NewSession(ctx, neo.SessionConfig{AccessMode: mode, DatabaseName: r.database})
}

// EnsureSchema creates constraints and indexes if they don't exist.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	session := r.session(ctx, neo.AccessModeWrite)
	defer session.Close(ctx)

	statements := []string{
		`CREATE CONSTRAINT entity_id IF NOT EXISTS FOR (e:Entity) REQUIRE e.id IS UNIQUE`,
		`CREATE INDEX entity_persona IF NOT EXISTS FOR (e:Entity) ON (e.persona_id)`,
		`CREATE INDEX entity_normalized_name IF NOT EXISTS FOR (e:Entity) ON (e.normalized_name)`,
		`CREATE INDEX relates_id IF NOT EXISTS FOR ()-[r:RELATES]-() ON (r.id)`,
	}
	// One transaction per schema statement.
	for _, stmt := range statements {
		_, err := session.ExecuteWrite(ctx, func(tx neo.ManagedTransaction) (any, error) {
			result, err := tx.Run(ctx, stmt, nil)
			if err != nil {
				return nil, err
			}
			return result.Consume(ctx)
		})
		if err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	return nil
}

// Entity operations

// InsertEntity persists a new entity record.
func (r *Repository) InsertEntity(ctx context.Context, entity *entities.Entity) error {
	params, err := entityParams(entity)
	if err != nil {
		return err
	}

	session := r.session(ctx, neo.AccessModeWrite)
	defer session.Close(ctx)

	query := `CREATE (e:Entity) SET e = $props`
	_, err = session.ExecuteWrite(ctx, func(tx neo.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, map[string]any{"props": params})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("inserting entity: %w", err)
	}
	return nil
}

// UpdateEntity applies a merge result to an existing entity.
func (r *Repository) UpdateEntity(ctx context.Context, entityID string, update entities.EntityUpdate) error {
	props, err := encodeProperties(update.Properties)
	if err != nil {
		return err
	}

	query := `
		MATCH (e:Entity {id: $id})
		SET e.confidence = $confidence,
			e.vector_id = $vectorID,
			e.properties = $properties,
			e.updated_at = $updatedAt
		RETURN e.id AS id
	`
	return r.writeOne(ctx, query, map[string]any{
		"id":         entityID,
		"confidence": update.Confidence,
		"vectorID":   update.VectorID,
		"properties": props,
		"updatedAt":  update.UpdatedAt.UTC(),
	}, "updating entity", "entity not found: "+entityID)
}

// DeleteEntity deletes an entity and every relationship touching it.
func (r *Repository) DeleteEntity(ctx context.Context, entityID string) error {
	query := `
		MATCH (e:Entity {id: $id})
		WITH e, e.id AS id
		DETACH DELETE e
		RETURN id
	`
	return r.writeOne(ctx, query, map[string]any{"id": entityID},
		"deleting entity", "entity not found: "+entityID)
}

// FindEntityByID finds an entity by its ID.
func (r *Repository) FindEntityByID(ctx context.Context, entityID string) (*entities.Entity, error) {
	list, err := r.queryEntities(ctx, `MATCH (e:Entity {id: $id}) RETURN e`, map[string]any{"id": entityID})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// SearchEntitiesByName returns entities whose normalized name contains the
// normalized query. Exact matches sort first.
func (r *Repository) SearchEntitiesByName(ctx context.Context, personaID, name string, limit int) ([]*entities.Entity, error) {
	query := `
		MATCH (e:Entity {persona_id: $personaID})
		WHERE e.normalized_name CONTAINS $name
		RETURN e
		ORDER BY CASE WHEN e.normalized_name = $name THEN 0 ELSE 1 END, e.name, e.id
	` + limitClause(limit)
	return r.queryEntities(ctx, query, map[string]any{
		"personaID": personaID,
		"name":      entities.NormalizeName(name),
		"limit":     int64(limit),
	})
}

// ListEntitiesByPersona lists a persona's entities, oldest first.
func (r *Repository) ListEntitiesByPersona(ctx context.Context, personaID string, limit int) ([]*entities.Entity, error) {
	query := `
		MATCH (e:Entity {persona_id: $personaID})
		RETURN e
		ORDER BY e.created_at, e.id
	` + limitClause(limit)
	return r.queryEntities(ctx, query, map[string]any{
		"personaID": personaID,
		"limit":     int64(limit),
	})
}

// GraphStats aggregates counts and distinct type lists for a persona.
func (r *Repository) GraphStats(ctx context.Context, personaID string) (*entities.RawGraphStats, error) {
	query := `
		CALL {
			MATCH (e:Entity {persona_id: $personaID})
			RETURN count(e) AS entities, collect(DISTINCT e.type) AS entityTypes
		}
		CALL {
			MATCH ()-[r:RELATES {persona_id: $personaID}]->()
			RETURN count(r) AS relationships, collect(DISTINCT r.relationship_type) AS relationshipTypes
		}
		RETURN entities, relationships, entityTypes, relationshipTypes
	`
	rows, err := readRows(ctx, r, query, map[string]any{"personaID": personaID},
		func(record *neo.Record) (*entities.RawGraphStats, error) {
			return statsFromRecord(record), nil
		})
	if err != nil {
		return nil, fmt.Errorf("aggregating graph stats: %w", err)
	}
	if len(rows) != 1 {
		return nil, fmt.Errorf("aggregating graph stats: expected one row, got %d", len(rows))
	}
	return rows[0], nil
}

// Relationship operations

// InsertRelationship persists a new relationship record. Both endpoints
// must exist.
func (r *Repository) InsertRelationship(ctx context.Context, rel *entities.Relationship) error {
	params, err := relationshipParams(rel)
	if err != nil {
		return err
	}

	query := `
		MATCH (s:Entity {id: $source})
		MATCH (t:Entity {id: $target})
		CREATE (s)-[r:RELATES]->(t)
		SET r = $props
		RETURN r.id AS id
	`
	return r.writeOne(ctx, query, map[string]any{
		"source": rel.SourceEntityID,
		"target": rel.TargetEntityID,
		"props":  params,
	}, "inserting relationship", fmt.Sprintf("relationship endpoint not found: %s -> %s", rel.SourceEntityID, rel.TargetEntityID))
}

// UpdateRelationship applies a merge result to an existing relationship.
func (r *Repository) UpdateRelationship(ctx context.Context, relationshipID string, update entities.RelationshipUpdate) error {
	props, err := encodeProperties(update.Properties)
	if err != nil {
		return err
	}

	query := `
		MATCH ()-[r:RELATES {id: $id}]->()
		SET r.strength = $strength,
			r.context = $context,
			r.properties = $properties,
			r.updated_at = $updatedAt
		RETURN r.id AS id
	`
	return r.writeOne(ctx, query, map[string]any{
		"id":         relationshipID,
		"strength":   update.Strength,
		"context":    update.Context,
		"properties": props,
		"updatedAt":  update.UpdatedAt.UTC(),
	}, "updating relationship", "relationship not found: "+relationshipID)
}

// FindEntityRelationships returns relationships touching the entity on the
// requested side, most recently updated first.
func (r *Repository) FindEntityRelationships(ctx context.Context, entityID string, direction entities.Direction, limit int) ([]entities.Relationship, error) {
	var pattern string
	switch direction {
	case entities.DirectionOutgoing:
		pattern = `(s:Entity {id: $id})-[r:RELATES]->(t:Entity)`
	case entities.DirectionIncoming:
		pattern = `(s:Entity)-[r:RELATES]->(t:Entity {id: $id})`
	case entities.DirectionBoth, "":
		pattern = `(s:Entity)-[r:RELATES]->(t:Entity) WHERE s.id = $id OR t.id = $id`
	default:
		return nil, fmt.Errorf("unknown direction: %s", direction)
	}

	query := `
		MATCH ` + pattern + `
		RETURN r, s.id AS source, t.id AS target
		ORDER BY r.updated_at DESC, r.id
	` + limitClause(limit)

	rels, err := readRows(ctx, r, query, map[string]any{"id": entityID, "limit": int64(limit)}, relationshipFromRecord)
	if err != nil {
		return nil, fmt.Errorf("querying relationships: %w", err)
	}
	return rels, nil
}

// FindRelatedEntities walks relationships in both directions with a
// variable-length match and returns entities with their smallest hop count.
func (r *Repository) FindRelatedEntities(ctx context.Context, entityID string, maxDepth, limit int) ([]entities.TraversedEntity, error) {
	if maxDepth < 1 {
		return []entities.TraversedEntity{}, nil
	}

	// Variable-length bounds cannot be parameters.
	query := fmt.Sprintf(`
		MATCH p = (start:Entity {id: $id})-[:%s*1..%d]-(e:Entity)
		WHERE e.id <> $id
		WITH e, min(length(p)) AS depth
		RETURN e, depth
		ORDER BY depth, e.name, e.id
	`, relationType, maxDepth) + limitClause(limit)

	found, err := readRows(ctx, r, query, map[string]any{"id": entityID, "limit": int64(limit)},
		func(record *neo.Record) (entities.TraversedEntity, error) {
			entity, err := entityFromRecord(record, "e")
			if err != nil {
				return entities.TraversedEntity{}, err
			}
			return entities.TraversedEntity{
				Entity: *entity,
				Depth:  getIntFromRecord(record, "depth"),
			}, nil
		})
	if err != nil {
		return nil, fmt.Errorf("finding related entities: %w", err)
	}
	return found, nil
}

// queryEntities runs a read query whose rows carry an entity node as "e".
func (r *Repository) queryEntities(ctx context.Context, query string, params map[string]any) ([]*entities.Entity, error) {
	list, err := readRows(ctx, r, query, params, func(record *neo.Record) (*entities.Entity, error) {
		return entityFromRecord(record, "e")
	})
	if err != nil {
		return nil, fmt.Errorf("querying entities: %w", err)
	}
	return list, nil
}

// readRows runs query in a managed read transaction, so transient cluster
// errors are retried, and maps every row while the result is still open.
func readRows[T any](ctx context.Context, r *Repository, query string, params map[string]any, mapRow func(*neo.Record) (T, error)) ([]T, error) {
	session := r.session(ctx, neo.AccessModeRead)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		rows := make([]T, 0, 16)
		for result.Next(ctx) {
			row, err := mapRow(result.Record())
			if err != nil {
				return nil, err
			}
			rows = append(rows, row)
		}
		if err := result.Err(); err != nil {
			return nil, err
		}
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]T), nil
}

// writeOne runs a write query in a managed transaction. The query returns
// one row per affected record; no row means the target was not found.
func (r *Repository) writeOne(ctx context.Context, query string, params map[string]any, action, notFound string) error {
	session := r.session(ctx, neo.AccessModeWrite)
	defer session.Close(ctx)

	matched, err := session.ExecuteWrite(ctx, func(tx neo.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		found := result.Next(ctx)
		if err := result.Err(); err != nil {
			return nil, err
		}
		if _, err := result.Consume(ctx); err != nil {
			return nil, err
		}
		return found, nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	if !matched.(bool) {
		return fmt.Errorf("%s", notFound)
	}
	return nil
}

// limitClause returns a LIMIT bound to $limit, or nothing when limit <= 0.
func limitClause(limit int) string {
	if limit <= 0 {
		return ""
	}
	return "LIMIT $limit"
}

func encodeProperties(props entities.Properties) (string, error) {
	if props == nil {
		props = entities.Properties{}
	}
	data, err := json.Marshal(props)
	if err != nil {
		return "", fmt.Errorf("encoding properties: %w", err)
	}
	return string(data), nil
}
