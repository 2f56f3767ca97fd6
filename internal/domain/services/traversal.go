package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ersonp/kgraph/internal/domain/entities"
	"github.com/ersonp/kgraph/internal/domain/ports"
)

// Traversal defaults.
const (
	DefaultMaxDepth             = 2
	DefaultRelatedLimit         = 50
	DefaultMinStrength          = 0.1
	DefaultRelationshipsPerNode = 5
	DefaultContextRelationships = 10
	defaultEnrichConcurrency    = 8
)

// RelationshipSummary is a relationship seen from one of its endpoints.
type RelationshipSummary struct {
	ID                string                `json:"id"`
	Type              entities.RelationType `json:"type"`
	Strength          float64               `json:"strength"`
	Direction         entities.Direction    `json:"direction"`
	ConnectedEntityID string                `json:"connectedEntityId"`
}

// RelatedEntity is a traversal hit enriched with a few of its relationships.
type RelatedEntity struct {
	entities.TraversedEntity
	Relationships []RelationshipSummary `json:"relationships"`
}

// RelatedOptions configures FindRelatedEntities. Zero values select defaults.
type RelatedOptions struct {
	MaxDepth          int
	Limit             int
	EntityTypes       []entities.EntityType
	RelationshipTypes []entities.RelationType
	// MinStrength filters on each entity's own confidence. It is not an
	// edge-weight filter. Nil selects DefaultMinStrength; 0 disables it.
	MinStrength *float64
	// RelationshipsPerEntity bounds the enrichment look-up per entity.
	RelationshipsPerEntity int
}

func (o RelatedOptions) withDefaults() RelatedOptions {
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	if o.Limit <= 0 {
		o.Limit = DefaultRelatedLimit
	}
	if o.MinStrength == nil {
		v := DefaultMinStrength
		o.MinStrength = &v
	}
	if o.RelationshipsPerEntity <= 0 {
		o.RelationshipsPerEntity = DefaultRelationshipsPerNode
	}
	return o
}

// ContextOptions configures GetGraphContext.
type ContextOptions struct {
	// IncludeRelationships defaults to true when nil.
	IncludeRelationships *bool
	MaxRelationships     int
}

func (o ContextOptions) includeRelationships() bool {
	return o.IncludeRelationships == nil || *o.IncludeRelationships
}

// GraphContext is the neighbourhood of a set of requested entities.
// Connections holds the relationships whose both endpoints were requested,
// the edges of the induced subgraph. A relationship with only one requested
// endpoint appears in Relationships but not in Connections.
type GraphContext struct {
	Entities      []*entities.Entity      `json:"entities"`
	Relationships []entities.Relationship `json:"relationships"`
	Connections   []entities.Relationship `json:"connections"`
}

func emptyGraphContext() *GraphContext {
	return &GraphContext{
		Entities:      []*entities.Entity{},
		Relationships: []entities.Relationship{},
		Connections:   []entities.Relationship{},
	}
}

// TraversalService answers multi-hop neighbourhood queries.
type TraversalService struct {
	store       ports.GraphStore
	observer    ports.Observer
	concurrency int
}

// NewTraversalService creates a new TraversalService.
func NewTraversalService(store ports.GraphStore, observer ports.Observer) *TraversalService {
	return &TraversalService{
		store:       store,
		observer:    observerOrNop(observer),
		concurrency: defaultEnrichConcurrency,
	}
}

// FindRelatedEntities walks the graph from entityID, filters the hits and
// attaches a short relationship summary to each. A failed traversal yields
// an empty list; a failed enrichment yields that entity with no
// relationships. Neither is returned as an error.
func (s *TraversalService) FindRelatedEntities(ctx context.Context, entityID string, opts RelatedOptions) Result[[]RelatedEntity] {
	opts = opts.withDefaults()

	hits, err := s.store.FindRelatedEntities(ctx, entityID, opts.MaxDepth, opts.Limit)
	if err != nil {
		err = fmt.Errorf("traversing from %s: %w", entityID, err)
		s.observer.Error("Failed to find related entities", err, ports.Fields{
			"operation": "findRelatedEntities",
			"entity_id": entityID,
		})
		return degraded([]RelatedEntity{}, err)
	}

	filtered := make([]entities.TraversedEntity, 0, len(hits))
	for _, h := range hits {
		if len(opts.EntityTypes) > 0 && !slices.Contains(opts.EntityTypes, h.Type) {
			continue
		}
		if *opts.MinStrength > 0 && h.Confidence < *opts.MinStrength {
			continue
		}
		filtered = append(filtered, h)
	}

	out := make([]RelatedEntity, len(filtered))
	var (
		mu   sync.Mutex
		errs []error
	)
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, h := range filtered {
		g.Go(func() error {
			out[i] = RelatedEntity{TraversedEntity: h, Relationships: []RelationshipSummary{}}
			rels, err := s.store.FindEntityRelationships(ctx, h.ID, entities.DirectionBoth, opts.RelationshipsPerEntity)
			if err != nil {
				err = fmt.Errorf("enriching %s: %w", h.ID, err)
				s.observer.Error("Failed to enrich related entity", err, ports.Fields{
					"operation": "findRelatedEntities",
					"entity_id": h.ID,
				})
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return nil
			}
			out[i].Relationships = summarize(h.ID, rels, opts.RelationshipTypes)
			return nil
		})
	}
	_ = g.Wait()

	s.observer.Info("Found related entities", ports.Fields{
		"entity_id":   entityID,
		"max_depth":   opts.MaxDepth,
		"found_count": len(out),
	})

	if len(errs) > 0 {
		return degraded(out, errors.Join(errs...))
	}
	return ok(out)
}

func summarize(entityID string, rels []entities.Relationship, types []entities.RelationType) []RelationshipSummary {
	summaries := make([]RelationshipSummary, 0, len(rels))
	for i := range rels {
		r := &rels[i]
		if len(types) > 0 && !slices.Contains(types, r.Type) {
			continue
		}
		summaries = append(summaries, RelationshipSummary{
			ID:                r.ID,
			Type:              r.Type,
			Strength:          r.Strength,
			Direction:         r.DirectionFrom(entityID),
			ConnectedEntityID: r.OtherEnd(entityID),
		})
	}
	return summaries
}

// GetGraphContext gathers the requested entities, their relationships and
// the relationships among them. Missing entities are skipped. Per-entity
// failures are skipped and reported through the result's Cause.
func (s *TraversalService) GetGraphContext(ctx context.Context, entityIDs []string, opts ContextOptions) Result[*GraphContext] {
	maxRels := opts.MaxRelationships
	if maxRels <= 0 {
		maxRels = DefaultContextRelationships
	}

	requested := make(map[string]bool, len(entityIDs))
	for _, id := range entityIDs {
		requested[id] = true
	}

	gc := emptyGraphContext()
	var errs []error

	for _, id := range entityIDs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		entity, err := s.store.FindEntityByID(ctx, id)
		if err != nil {
			errs = append(errs, s.contextFailure(id, fmt.Errorf("fetching entity %s: %w", id, err)))
			continue
		}
		if entity == nil {
			continue
		}
		gc.Entities = append(gc.Entities, entity)

		if !opts.includeRelationships() {
			continue
		}
		rels, err := s.store.FindEntityRelationships(ctx, id, entities.DirectionBoth, maxRels)
		if err != nil {
			errs = append(errs, s.contextFailure(id, fmt.Errorf("fetching relationships of %s: %w", id, err)))
			continue
		}
		gc.Relationships = append(gc.Relationships, rels...)
		for _, r := range rels {
			if requested[r.SourceEntityID] && requested[r.TargetEntityID] {
				gc.Connections = append(gc.Connections, r)
			}
		}
	}

	gc.Relationships = DeduplicateRelationships(gc.Relationships)
	gc.Connections = DeduplicateRelationships(gc.Connections)

	s.observer.Info("Retrieved graph context", ports.Fields{
		"requested_entities": len(entityIDs),
		"found_entities":     len(gc.Entities),
		"relationships":      len(gc.Relationships),
		"connections":        len(gc.Connections),
	})

	if len(errs) > 0 {
		return degraded(gc, errors.Join(errs...))
	}
	return ok(gc)
}

func (s *TraversalService) contextFailure(entityID string, err error) error {
	s.observer.Error("Failed to assemble entity context", err, ports.Fields{
		"operation": "getGraphContext",
		"entity_id": entityID,
	})
	return err
}

// DeduplicateRelationships keeps the first relationship seen for each
// (source, target, type). The input is not modified.
func DeduplicateRelationships(rels []entities.Relationship) []entities.Relationship {
	seen := make(map[entities.EdgeKey]bool, len(rels))
	out := make([]entities.Relationship, 0, len(rels))
	for i := range rels {
		key := rels[i].Edge()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, rels[i])
	}
	return out
}
