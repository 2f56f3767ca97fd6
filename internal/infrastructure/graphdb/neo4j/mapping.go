package neo4j

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	neo "github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/ersonp/kgraph/internal/domain/entities"
)

// entityParams flattens an entity into node properties. Neo4j cannot store
// nested maps, so Properties is kept as a JSON string.
func entityParams(e *entities.Entity) (map[string]any, error) {
	props, err := encodeProperties(e.Properties)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id":              e.ID,
		"persona_id":      e.PersonaID,
		"vector_id":       e.VectorID,
		"type":            string(e.Type),
		"name":            e.Name,
		"normalized_name": entities.NormalizeName(e.Name),
		"properties":      props,
		"confidence":      e.Confidence,
		"created_at":      e.CreatedAt.UTC(),
		"updated_at":      e.UpdatedAt.UTC(),
	}, nil
}

func relationshipParams(rel *entities.Relationship) (map[string]any, error) {
	props, err := encodeProperties(rel.Properties)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id":                rel.ID,
		"persona_id":        rel.PersonaID,
		"relationship_type": string(rel.Type),
		"strength":          rel.Strength,
		"context":           rel.Context,
		"properties":        props,
		"created_at":        rel.CreatedAt.UTC(),
		"updated_at":        rel.UpdatedAt.UTC(),
	}, nil
}

func entityFromRecord(record *neo.Record, key string) (*entities.Entity, error) {
	val, ok := record.Get(key)
	if !ok {
		return nil, fmt.Errorf("record has no %q column", key)
	}
	node, ok := val.(neo.Node)
	if !ok {
		return nil, fmt.Errorf("column %q is %T, not a node", key, val)
	}
	return entityFromProps(node.Props)
}

func entityFromProps(m map[string]any) (*entities.Entity, error) {
	props, err := decodeProperties(getStringFromMap(m, "properties", ""))
	if err != nil {
		return nil, err
	}
	return &entities.Entity{
		ID:         getStringFromMap(m, "id", ""),
		PersonaID:  getStringFromMap(m, "persona_id", ""),
		VectorID:   getStringFromMap(m, "vector_id", ""),
		Type:       entities.EntityType(getStringFromMap(m, "type", "")),
		Name:       getStringFromMap(m, "name", ""),
		Properties: props,
		Confidence: getFloat64FromMap(m, "confidence", 0),
		CreatedAt:  getTimeFromMap(m, "created_at"),
		UpdatedAt:  getTimeFromMap(m, "updated_at"),
	}, nil
}

func relationshipFromRecord(record *neo.Record) (entities.Relationship, error) {
	val, ok := record.Get("r")
	if !ok {
		return entities.Relationship{}, fmt.Errorf("record has no %q column", "r")
	}
	rel, ok := val.(neo.Relationship)
	if !ok {
		return entities.Relationship{}, fmt.Errorf("column %q is %T, not a relationship", "r", val)
	}
	return relationshipFromProps(rel.Props, getStringFromRecord(record, "source"), getStringFromRecord(record, "target"))
}

func relationshipFromProps(m map[string]any, sourceID, targetID string) (entities.Relationship, error) {
	props, err := decodeProperties(getStringFromMap(m, "properties", ""))
	if err != nil {
		return entities.Relationship{}, err
	}
	return entities.Relationship{
		ID:             getStringFromMap(m, "id", ""),
		PersonaID:      getStringFromMap(m, "persona_id", ""),
		SourceEntityID: sourceID,
		TargetEntityID: targetID,
		Type:           entities.RelationType(getStringFromMap(m, "relationship_type", "")),
		Strength:       getFloat64FromMap(m, "strength", 0),
		Context:        getStringFromMap(m, "context", ""),
		Properties:     props,
		CreatedAt:      getTimeFromMap(m, "created_at"),
		UpdatedAt:      getTimeFromMap(m, "updated_at"),
	}, nil
}

func statsFromRecord(record *neo.Record) *entities.RawGraphStats {
	return &entities.RawGraphStats{
		TotalEntities:      getIntFromRecord(record, "entities"),
		TotalRelationships: getIntFromRecord(record, "relationships"),
		EntityTypes:        getSortedStringsFromRecord(record, "entityTypes"),
		RelationshipTypes:  getSortedStringsFromRecord(record, "relationshipTypes"),
	}
}

func decodeProperties(raw string) (entities.Properties, error) {
	props := entities.Properties{}
	if raw == "" {
		return props, nil
	}
	if err := json.Unmarshal([]byte(raw), &props); err != nil {
		return nil, fmt.Errorf("decoding properties: %w", err)
	}
	return props, nil
}

// ============================================================================
// Helper Functions
// ============================================================================

func getStringFromRecord(record *neo.Record, key string) string {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

func getIntFromRecord(record *neo.Record, key string) int {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return 0
	}
	if i, ok := val.(int64); ok {
		return int(i)
	}
	if i, ok := val.(int); ok {
		return i
	}
	return 0
}

func getSortedStringsFromRecord(record *neo.Record, key string) []string {
	result := []string{}
	val, ok := record.Get(key)
	if !ok || val == nil {
		return result
	}
	if slice, ok := val.([]any); ok {
		for _, v := range slice {
			if str, ok := v.(string); ok {
				result = append(result, str)
			}
		}
	}
	sort.Strings(result)
	return result
}

func getStringFromMap(m map[string]any, key, defaultValue string) string {
	val, ok := m[key]
	if !ok || val == nil {
		return defaultValue
	}
	if str, ok := val.(string); ok {
		return str
	}
	return defaultValue
}

func getFloat64FromMap(m map[string]any, key string, defaultValue float64) float64 {
	val, ok := m[key]
	if !ok || val == nil {
		return defaultValue
	}
	if f, ok := val.(float64); ok {
		return f
	}
	if i, ok := val.(int64); ok {
		return float64(i)
	}
	return defaultValue
}

// getTimeFromMap reads a DateTime property. Values written by other tools
// as RFC 3339 strings are accepted too.
func getTimeFromMap(m map[string]any, key string) time.Time {
	switch v := m[key].(type) {
	case time.Time:
		return v.UTC()
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
