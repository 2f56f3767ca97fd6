// Package sqlite provides a SQLite implementation of the GraphStore interface.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/ersonp/kgraph/internal/domain/entities"
	"github.com/ersonp/kgraph/internal/domain/ports"
	"github.com/ersonp/kgraph/internal/infrastructure/config"
)

const memoryPath = ":memory:"

// Connection pragmas are applied by the driver to every pooled connection.
const connPragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

const entityColumns = `id, persona_id, vector_id, type, name, properties, confidence, created_at, updated_at`

const relationshipColumns = `id, persona_id, source_entity_id, target_entity_id, relationship_type,
	strength, context, properties, created_at, updated_at`

// Repository implements ports.GraphStore using SQLite.
type Repository struct {
	db   *sql.DB
	path string
}

var _ ports.GraphStore = (*Repository)(nil)

// NewRepository creates a new SQLite repository.
func NewRepository(cfg config.SQLiteConfig) (*Repository, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite path is required")
	}

	db, err := sql.Open("sqlite", cfg.Path+"?"+connPragmas)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	if cfg.Path == memoryPath {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	} else {
		// Enable WAL mode for better concurrent read/write performance
		if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling WAL mode: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to sqlite database: %w", err)
	}

	return &Repository{
		db:   db,
		path: cfg.Path,
	}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Path returns the database file path.
func (r *Repository) Path() string {
	return r.path
}

// EnsureSchema creates the database schema if it doesn't exist.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	schema := `
	-- Entities (persona-scoped named nodes)
	CREATE TABLE IF NOT EXISTS entities (
		id TEXT PRIMARY KEY,
		persona_id TEXT NOT NULL,
		vector_id TEXT NOT NULL DEFAULT '',
		type TEXT NOT NULL,
		name TEXT NOT NULL,
		normalized_name TEXT NOT NULL,
		properties TEXT NOT NULL DEFAULT '{}',
		confidence REAL NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_entities_persona_name ON entities(persona_id, normalized_name);
	CREATE INDEX IF NOT EXISTS idx_entities_persona_created ON entities(persona_id, created_at);

	-- Directed relationships between entities
	CREATE TABLE IF NOT EXISTS relationships (
		id TEXT PRIMARY KEY,
		persona_id TEXT NOT NULL,
		source_entity_id TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
		target_entity_id TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
		relationship_type TEXT NOT NULL,
		strength REAL NOT NULL,
		context TEXT NOT NULL DEFAULT '',
		properties TEXT NOT NULL DEFAULT '{}',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_relationships_source ON relationships(source_entity_id);
	CREATE INDEX IF NOT EXISTS idx_relationships_target ON relationships(target_entity_id);
	CREATE INDEX IF NOT EXISTS idx_relationships_persona ON relationships(persona_id, relationship_type);
	`

	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// Entity operations

// InsertEntity persists a new entity record.
func (r *Repository) InsertEntity(ctx context.Context, entity *entities.Entity) error {
	props, err := encodeProperties(entity.Properties)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO entities (id, persona_id, vector_id, type, name, normalized_name,
			properties, confidence, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		entity.ID,
		entity.PersonaID,
		entity.VectorID,
		string(entity.Type),
		entity.Name,
		entities.NormalizeName(entity.Name),
		props,
		entity.Confidence,
		entity.CreatedAt.UTC(),
		entity.UpdatedAt.UTC(),
	)
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
		UPDATE entities
		SET confidence = ?, vector_id = ?, properties = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		update.Confidence,
		update.VectorID,
		props,
		update.UpdatedAt.UTC(),
		entityID,
	)
	if err != nil {
		return fmt.Errorf("updating entity: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("entity not found: %s", entityID)
	}
	return nil
}

// DeleteEntity deletes an entity by ID. Its relationships are removed by cascade.
func (r *Repository) DeleteEntity(ctx context.Context, entityID string) error {
	query := `DELETE FROM entities WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query, entityID)
	if err != nil {
		return fmt.Errorf("deleting entity: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("entity not found: %s", entityID)
	}
	return nil
}

// FindEntityByID finds an entity by its ID.
func (r *Repository) FindEntityByID(ctx context.Context, entityID string) (*entities.Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities WHERE id = ?`

	list, err := r.queryEntities(ctx, query, entityID)
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
	normalized := entities.NormalizeName(name)
	pattern := "%" + escapeLike(normalized) + "%"

	query := `
		SELECT ` + entityColumns + `
		FROM entities
		WHERE persona_id = ? AND normalized_name LIKE ? ESCAPE '\'
		ORDER BY (normalized_name = ?) DESC, name, id
		LIMIT ?
	`
	return r.queryEntities(ctx, query, personaID, pattern, normalized, sqlLimit(limit))
}

// ListEntitiesByPersona lists a persona's entities, oldest first.
func (r *Repository) ListEntitiesByPersona(ctx context.Context, personaID string, limit int) ([]*entities.Entity, error) {
	query := `
		SELECT ` + entityColumns + `
		FROM entities
		WHERE persona_id = ?
		ORDER BY created_at, id
		LIMIT ?
	`
	return r.queryEntities(ctx, query, personaID, sqlLimit(limit))
}

// GraphStats aggregates counts and distinct type lists for a persona.
func (r *Repository) GraphStats(ctx context.Context, personaID string) (*entities.RawGraphStats, error) {
	stats := &entities.RawGraphStats{}

	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entities WHERE persona_id = ?`, personaID,
	).Scan(&stats.TotalEntities); err != nil {
		return nil, fmt.Errorf("counting entities: %w", err)
	}

	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM relationships WHERE persona_id = ?`, personaID,
	).Scan(&stats.TotalRelationships); err != nil {
		return nil, fmt.Errorf("counting relationships: %w", err)
	}

	var err error
	stats.EntityTypes, err = r.queryStrings(ctx,
		`SELECT DISTINCT type FROM entities WHERE persona_id = ? ORDER BY type`, personaID)
	if err != nil {
		return nil, fmt.Errorf("listing entity types: %w", err)
	}

	stats.RelationshipTypes, err = r.queryStrings(ctx,
		`SELECT DISTINCT relationship_type FROM relationships WHERE persona_id = ? ORDER BY relationship_type`, personaID)
	if err != nil {
		return nil, fmt.Errorf("listing relationship types: %w", err)
	}

	return stats, nil
}

// Relationship operations

// InsertRelationship persists a new relationship record. Both endpoints
// must exist.
func (r *Repository) InsertRelationship(ctx context.Context, rel *entities.Relationship) error {
	props, err := encodeProperties(rel.Properties)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO relationships (id, persona_id, source_entity_id, target_entity_id,
			relationship_type, strength, context, properties, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		rel.ID,
		rel.PersonaID,
		rel.SourceEntityID,
		rel.TargetEntityID,
		string(rel.Type),
		rel.Strength,
		rel.Context,
		props,
		rel.CreatedAt.UTC(),
		rel.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting relationship: %w", err)
	}
	return nil
}

// UpdateRelationship applies a merge result to an existing relationship.
func (r *Repository) UpdateRelationship(ctx context.Context, relationshipID string, update entities.RelationshipUpdate) error {
	props, err := encodeProperties(update.Properties)
	if err != nil {
		return err
	}

	query := `
		UPDATE relationships
		SET strength = ?, context = ?, properties = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		update.Strength,
		update.Context,
		props,
		update.UpdatedAt.UTC(),
		relationshipID,
	)
	if err != nil {
		return fmt.Errorf("updating relationship: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("relationship not found: %s", relationshipID)
	}
	return nil
}

// FindEntityRelationships returns relationships touching the entity on the
// requested side, most recently updated first.
func (r *Repository) FindEntityRelationships(ctx context.Context, entityID string, direction entities.Direction, limit int) ([]entities.Relationship, error) {
	var where string
	args := []any{entityID}
	switch direction {
	case entities.DirectionOutgoing:
		where = "source_entity_id = ?"
	case entities.DirectionIncoming:
		where = "target_entity_id = ?"
	case entities.DirectionBoth, "":
		where = "(source_entity_id = ? OR target_entity_id = ?)"
		args = append(args, entityID)
	default:
		return nil, fmt.Errorf("unknown direction: %s", direction)
	}

	query := `
		SELECT ` + relationshipColumns + `
		FROM relationships
		WHERE ` + where + `
		ORDER BY updated_at DESC, id
		LIMIT ?
	`
	args = append(args, sqlLimit(limit))
	return r.queryRelationships(ctx, query, args...)
}

// FindRelatedEntities walks relationships in both directions using a
// recursive CTE and returns entities with their smallest hop count.
func (r *Repository) FindRelatedEntities(ctx context.Context, entityID string, maxDepth, limit int) ([]entities.TraversedEntity, error) {
	if maxDepth < 1 {
		return []entities.TraversedEntity{}, nil
	}

	query := `
		WITH RECURSIVE walk(entity_id, depth) AS (
			-- Base case: the start entity
			SELECT ?, 0

			UNION

			-- Recursive case: step across any relationship touching the frontier
			SELECT
				CASE WHEN rel.source_entity_id = walk.entity_id
					THEN rel.target_entity_id
					ELSE rel.source_entity_id
				END,
				walk.depth + 1
			FROM walk
			JOIN relationships rel
				ON rel.source_entity_id = walk.entity_id OR rel.target_entity_id = walk.entity_id
			WHERE walk.depth < ?
		)
		SELECT e.id, e.persona_id, e.vector_id, e.type, e.name, e.properties, e.confidence,
			e.created_at, e.updated_at, MIN(walk.depth) AS depth
		FROM walk
		JOIN entities e ON e.id = walk.entity_id
		WHERE walk.entity_id != ?
		GROUP BY e.id
		ORDER BY depth, e.name, e.id
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, entityID, maxDepth, entityID, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("finding related entities: %w", err)
	}
	defer rows.Close()

	result := make([]entities.TraversedEntity, 0, 16)
	for rows.Next() {
		var te entities.TraversedEntity
		if err := scanEntity(rows, &te.Entity, &te.Depth); err != nil {
			return nil, err
		}
		result = append(result, te)
	}
	return result, rows.Err()
}

// queryEntities is a helper to execute entity queries.
func (r *Repository) queryEntities(ctx context.Context, query string, args ...any) ([]*entities.Entity, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying entities: %w", err)
	}
	defer rows.Close()

	list := make([]*entities.Entity, 0, 16)
	for rows.Next() {
		var e entities.Entity
		if err := scanEntity(rows, &e); err != nil {
			return nil, err
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}

// queryRelationships is a helper to execute relationship queries.
func (r *Repository) queryRelationships(ctx context.Context, query string, args ...any) ([]entities.Relationship, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying relationships: %w", err)
	}
	defer rows.Close()

	relationships := make([]entities.Relationship, 0, 16)
	for rows.Next() {
		var rel entities.Relationship
		var relType, props string
		if err := rows.Scan(
			&rel.ID,
			&rel.PersonaID,
			&rel.SourceEntityID,
			&rel.TargetEntityID,
			&relType,
			&rel.Strength,
			&rel.Context,
			&props,
			timestamp{&rel.CreatedAt},
			timestamp{&rel.UpdatedAt},
		); err != nil {
			return nil, fmt.Errorf("scanning relationship: %w", err)
		}
		rel.Type = entities.RelationType(relType)
		if rel.Properties, err = decodeProperties(props); err != nil {
			return nil, err
		}
		relationships = append(relationships, rel)
	}
	return relationships, rows.Err()
}

func (r *Repository) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// scanEntity scans the entity columns plus any extra trailing destinations.
func scanEntity(rows *sql.Rows, e *entities.Entity, extra ...any) error {
	var entityType, props string
	dest := []any{
		&e.ID,
		&e.PersonaID,
		&e.VectorID,
		&entityType,
		&e.Name,
		&props,
		&e.Confidence,
		timestamp{&e.CreatedAt},
		timestamp{&e.UpdatedAt},
	}
	if err := rows.Scan(append(dest, extra...)...); err != nil {
		return fmt.Errorf("scanning entity: %w", err)
	}
	e.Type = entities.EntityType(entityType)

	var err error
	e.Properties, err = decodeProperties(props)
	return err
}

func encodeProperties(p entities.Properties) (string, error) {
	if p == nil {
		return "{}", nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshaling properties: %w", err)
	}
	return string(data), nil
}

func decodeProperties(s string) (entities.Properties, error) {
	props := entities.Properties{}
	if s == "" {
		return props, nil
	}
	if err := json.Unmarshal([]byte(s), &props); err != nil {
		return nil, fmt.Errorf("unmarshaling properties: %w", err)
	}
	return props, nil
}

// escapeLike escapes LIKE wildcards so the query matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// sqlLimit maps "no limit" (<= 0) to SQLite's -1.
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
