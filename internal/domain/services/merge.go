package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ersonp/kgraph/internal/domain/entities"
	"github.com/ersonp/kgraph/internal/domain/ports"
)

const (
	// DefaultEntityCandidateLimit bounds the name search used to find an
	// existing entity. Entities beyond this window are not seen, so a large
	// persona with many similar names can still receive a duplicate.
	DefaultEntityCandidateLimit = 5
	// DefaultRelationshipScanLimit bounds the outgoing-relationship scan
	// used to find an existing relationship.
	DefaultRelationshipScanLimit = 100
)

const (
	opCreateEntity       = "createOrMergeEntity"
	opCreateRelationship = "createOrMergeRelationship"
)

// EntityInput is one observation of an entity.
type EntityInput struct {
	ID         string              `json:"id,omitempty"` // Used only when a new record is created
	PersonaID  string              `json:"persona_id"`
	Name       string              `json:"name"`
	Type       entities.EntityType `json:"type"`
	Properties entities.Properties `json:"properties,omitempty"`
	Confidence *float64            `json:"confidence,omitempty"` // Pointer to distinguish 0 from unset
	VectorID   string              `json:"vector_id,omitempty"`
}

func (in EntityInput) confidence() float64 {
	if in.Confidence == nil {
		return entities.DefaultConfidence
	}
	return *in.Confidence
}

func (in EntityInput) validate() error {
	switch {
	case in.PersonaID == "":
		return invalid("persona id is required")
	case entities.NormalizeName(in.Name) == "":
		return invalid("entity name is required")
	case in.Type == "":
		return invalid("entity type is required")
	}
	if c := in.confidence(); c < 0 || c > 1 {
		return invalid("confidence %v outside [0,1]", c)
	}
	return nil
}

// RelationshipInput is one observation of a directed relationship.
type RelationshipInput struct {
	ID             string                `json:"id,omitempty"`
	PersonaID      string                `json:"persona_id"`
	SourceEntityID string                `json:"source_entity_id"`
	TargetEntityID string                `json:"target_entity_id"`
	Type           entities.RelationType `json:"relationship_type"`
	Strength       *float64              `json:"strength,omitempty"`
	Context        string                `json:"context,omitempty"`
	Properties     entities.Properties   `json:"properties,omitempty"`
}

func (in RelationshipInput) strength() float64 {
	if in.Strength == nil {
		return entities.DefaultStrength
	}
	return *in.Strength
}

func (in RelationshipInput) validate() error {
	switch {
	case in.PersonaID == "":
		return invalid("persona id is required")
	case in.SourceEntityID == "":
		return invalid("source entity id is required")
	case in.TargetEntityID == "":
		return invalid("target entity id is required")
	case in.Type == "":
		return invalid("relationship type is required")
	}
	if s := in.strength(); s < 0 || s > 1 {
		return invalid("strength %v outside [0,1]", s)
	}
	return nil
}

// MergeOptions tunes the bounded look-ups of the merge resolver.
type MergeOptions struct {
	EntityCandidateLimit  int
	RelationshipScanLimit int
}

func (o MergeOptions) withDefaults() MergeOptions {
	if o.EntityCandidateLimit <= 0 {
		o.EntityCandidateLimit = DefaultEntityCandidateLimit
	}
	if o.RelationshipScanLimit <= 0 {
		o.RelationshipScanLimit = DefaultRelationshipScanLimit
	}
	return o
}

// MergeService decides whether an observation is new or an update of an
// existing record and applies the merge.
//
// The look-up and the write are two storage calls. Each merge holds the
// KeyedLocker for its natural key across both, so concurrent merges of the
// same key are serialised. Without a locker (or across processes sharing a
// store with an in-process locker) two merges can both see "not found" and
// create duplicates.
type MergeService struct {
	store    ports.GraphStore
	locker   ports.KeyedLocker
	observer ports.Observer
	opts     MergeOptions
	now      func() time.Time
	newID    func() string
}

// NewMergeService creates a new MergeService. A nil locker disables
// per-key serialisation; a nil observer discards events.
func NewMergeService(store ports.GraphStore, locker ports.KeyedLocker, observer ports.Observer, opts MergeOptions) *MergeService {
	return &MergeService{
		store:    store,
		locker:   locker,
		observer: observerOrNop(observer),
		opts:     opts.withDefaults(),
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// CreateOrMergeEntity stores a new entity or merges the observation into the
// existing entity with the same (persona, name, type). Confidence never
// regresses: an observation with equal or lower confidence leaves the stored
// record untouched. Returns the ID of the stored entity.
func (s *MergeService) CreateOrMergeEntity(ctx context.Context, in EntityInput) (string, error) {
	if err := in.validate(); err != nil {
		return "", entityWriteError(opCreateEntity, in, err)
	}

	unlock, err := s.lock(ctx, entities.EntityKey(in.PersonaID, in.Name, in.Type))
	if err != nil {
		return "", entityWriteError(opCreateEntity, in, err)
	}
	defer unlock()

	existing, err := s.findEntity(ctx, in.PersonaID, in.Name, in.Type)
	if err != nil {
		return "", s.failEntity(in, err)
	}

	confidence := in.confidence()

	if existing != nil {
		if confidence <= existing.Confidence {
			return existing.ID, nil
		}

		vectorID := existing.VectorID
		if in.VectorID != "" {
			vectorID = in.VectorID
		}
		update := entities.EntityUpdate{
			Confidence: confidence,
			VectorID:   vectorID,
			Properties: existing.Properties.Merge(in.Properties),
			UpdatedAt:  s.now(),
		}
		if err := s.store.UpdateEntity(ctx, existing.ID, update); err != nil {
			return "", s.failEntity(in, fmt.Errorf("updating entity %s: %w", existing.ID, err))
		}

		s.observer.Info("Updated existing entity with higher confidence", ports.Fields{
			"entity_id":      existing.ID,
			"name":           in.Name,
			"old_confidence": existing.Confidence,
			"new_confidence": confidence,
		})
		return existing.ID, nil
	}

	id := in.ID
	if id == "" {
		id = s.newID()
	}
	now := s.now()
	entity := &entities.Entity{
		ID:         id,
		PersonaID:  in.PersonaID,
		VectorID:   in.VectorID,
		Type:       in.Type,
		Name:       in.Name,
		Properties: in.Properties.Clone(),
		Confidence: confidence,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.InsertEntity(ctx, entity); err != nil {
		return "", s.failEntity(in, fmt.Errorf("inserting entity: %w", err))
	}

	s.observer.Info("Created new entity", ports.Fields{
		"entity_id":  id,
		"persona_id": in.PersonaID,
		"type":       string(in.Type),
		"name":       in.Name,
		"confidence": confidence,
	})
	return id, nil
}

// CreateOrMergeRelationship stores a new directed relationship or merges the
// observation into the existing one with the same (persona, source, target,
// type). The merged strength is the mean of the stored and observed strength,
// so every merge halves the weight of history. This is recency-weighted
// smoothing, not a running average over all observations.
func (s *MergeService) CreateOrMergeRelationship(ctx context.Context, in RelationshipInput) (string, error) {
	if err := in.validate(); err != nil {
		return "", relationshipWriteError(opCreateRelationship, in, err)
	}

	unlock, err := s.lock(ctx, entities.RelationshipKey(in.PersonaID, in.SourceEntityID, in.TargetEntityID, in.Type))
	if err != nil {
		return "", relationshipWriteError(opCreateRelationship, in, err)
	}
	defer unlock()

	existing, err := s.findRelationship(ctx, in)
	if err != nil {
		return "", s.failRelationship(in, err)
	}

	strength := in.strength()

	if existing != nil {
		merged := (existing.Strength + strength) / 2

		relContext := existing.Context
		if in.Context != "" {
			relContext = in.Context
		}
		props := existing.Properties.Merge(in.Properties)
		props[entities.UpdateCountKey] = existing.Properties.UpdateCount() + 1

		update := entities.RelationshipUpdate{
			Strength:   merged,
			Context:    relContext,
			Properties: props,
			UpdatedAt:  s.now(),
		}
		if err := s.store.UpdateRelationship(ctx, existing.ID, update); err != nil {
			return "", s.failRelationship(in, fmt.Errorf("updating relationship %s: %w", existing.ID, err))
		}

		s.observer.Info("Updated existing relationship", ports.Fields{
			"relationship_id": existing.ID,
			"old_strength":    existing.Strength,
			"new_strength":    merged,
		})
		return existing.ID, nil
	}

	id := in.ID
	if id == "" {
		id = s.newID()
	}
	now := s.now()
	rel := &entities.Relationship{
		ID:             id,
		PersonaID:      in.PersonaID,
		SourceEntityID: in.SourceEntityID,
		TargetEntityID: in.TargetEntityID,
		Type:           in.Type,
		Strength:       strength,
		Context:        in.Context,
		Properties:     in.Properties.Clone(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.InsertRelationship(ctx, rel); err != nil {
		return "", s.failRelationship(in, fmt.Errorf("inserting relationship: %w", err))
	}

	s.observer.Info("Created new relationship", ports.Fields{
		"relationship_id":   id,
		"persona_id":        in.PersonaID,
		"source_entity_id":  in.SourceEntityID,
		"target_entity_id":  in.TargetEntityID,
		"relationship_type": string(in.Type),
		"strength":          strength,
	})
	return id, nil
}

// findEntity scans a bounded candidate window and filters it exactly.
func (s *MergeService) findEntity(ctx context.Context, personaID, name string, entityType entities.EntityType) (*entities.Entity, error) {
	candidates, err := s.store.SearchEntitiesByName(ctx, personaID, name, s.opts.EntityCandidateLimit)
	if err != nil {
		return nil, fmt.Errorf("looking up existing entity: %w", err)
	}
	for _, c := range candidates {
		if c.PersonaID == personaID && c.Matches(name, entityType) {
			return c, nil
		}
	}
	return nil, nil
}

// findRelationship scans the source's outgoing relationships for the exact
// directional key.
func (s *MergeService) findRelationship(ctx context.Context, in RelationshipInput) (*entities.Relationship, error) {
	rels, err := s.store.FindEntityRelationships(ctx, in.SourceEntityID, entities.DirectionOutgoing, s.opts.RelationshipScanLimit)
	if err != nil {
		return nil, fmt.Errorf("looking up existing relationship: %w", err)
	}
	for i := range rels {
		r := &rels[i]
		if r.PersonaID == in.PersonaID &&
			r.SourceEntityID == in.SourceEntityID &&
			r.TargetEntityID == in.TargetEntityID &&
			r.Type == in.Type {
			return r, nil
		}
	}
	return nil, nil
}

func (s *MergeService) lock(ctx context.Context, key string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	unlock, err := s.locker.Lock(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("acquiring merge lock: %w", err)
	}
	return unlock, nil
}

func (s *MergeService) failEntity(in EntityInput, err error) error {
	werr := entityWriteError(opCreateEntity, in, err)
	s.observer.Error("Entity write failed", werr, ports.Fields{
		"operation":  opCreateEntity,
		"persona_id": in.PersonaID,
		"type":       string(in.Type),
		"name":       in.Name,
	})
	return werr
}

func (s *MergeService) failRelationship(in RelationshipInput, err error) error {
	werr := relationshipWriteError(opCreateRelationship, in, err)
	s.observer.Error("Relationship write failed", werr, ports.Fields{
		"operation":         opCreateRelationship,
		"persona_id":        in.PersonaID,
		"source_entity_id":  in.SourceEntityID,
		"target_entity_id":  in.TargetEntityID,
		"relationship_type": string(in.Type),
	})
	return werr
}
