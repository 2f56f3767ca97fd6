package services

import (
	"context"
	"fmt"
	"time"

	"github.com/ersonp/kgraph/internal/domain/entities"
	"github.com/ersonp/kgraph/internal/domain/ports"
)

const (
	// DefaultOrphanMaxAge is the minimum age of a reapable entity.
	DefaultOrphanMaxAge = 30 * 24 * time.Hour
	// OrphanConfidenceThreshold is the confidence below which an orphan is reaped.
	OrphanConfidenceThreshold = 0.5
)

// ReaperService removes old, unconnected, low-confidence entities.
type ReaperService struct {
	store    ports.GraphStore
	vectors  ports.VectorLinks
	observer ports.Observer
	now      func() time.Time
}

// NewReaperService creates a new ReaperService. vectors may be nil, in
// which case vector records of reaped entities are left in place.
func NewReaperService(store ports.GraphStore, vectors ports.VectorLinks, observer ports.Observer) *ReaperService {
	return &ReaperService{
		store:    store,
		vectors:  vectors,
		observer: observerOrNop(observer),
		now:      time.Now,
	}
}

// CleanupOrphanedEntities deletes every entity of the persona that is older
// than maxAge, has no relationship in either direction and has confidence
// below 0.5. A maxAge <= 0 selects DefaultOrphanMaxAge. Returns the number
// deleted; any storage failure yields 0 for the whole run.
func (s *ReaperService) CleanupOrphanedEntities(ctx context.Context, personaID string, maxAge time.Duration) Result[int] {
	if maxAge <= 0 {
		maxAge = DefaultOrphanMaxAge
	}
	cutoff := s.now().Add(-maxAge)

	count, vectorIDs, err := s.sweep(ctx, personaID, cutoff)
	// Entities deleted before a failure are gone for good, so their vectors
	// are released whether or not the sweep finished.
	s.deleteVectors(ctx, personaID, vectorIDs)
	if err != nil {
		s.observer.Error("Failed to cleanup orphaned entities", err, ports.Fields{
			"operation":  "cleanupOrphanedEntities",
			"persona_id": personaID,
		})
		return degraded(0, err)
	}

	s.observer.Info("Cleaned up orphaned entities", ports.Fields{
		"persona_id":    personaID,
		"cleaned_count": count,
		"max_age":       maxAge.String(),
	})
	return ok(count)
}

func (s *ReaperService) deleteVectors(ctx context.Context, personaID string, vectorIDs []string) {
	if s.vectors == nil || len(vectorIDs) == 0 {
		return
	}
	if err := s.vectors.DeleteVectors(context.WithoutCancel(ctx), vectorIDs); err != nil {
		s.observer.Error("Failed to delete vectors of reaped entities", err, ports.Fields{
			"persona_id": personaID,
			"vectors":    len(vectorIDs),
		})
	}
}

// sweep returns the vector IDs of every entity it deleted, also when it
// stops early with an error.
func (s *ReaperService) sweep(ctx context.Context, personaID string, cutoff time.Time) (int, []string, error) {
	all, err := s.store.ListEntitiesByPersona(ctx, personaID, 0)
	if err != nil {
		return 0, nil, fmt.Errorf("listing entities: %w", err)
	}

	var (
		count     int
		vectorIDs []string
	)
	for _, e := range all {
		if e.CreatedAt.After(cutoff) || e.Confidence >= OrphanConfidenceThreshold {
			continue
		}

		rels, err := s.store.FindEntityRelationships(ctx, e.ID, entities.DirectionBoth, 1)
		if err != nil {
			return 0, vectorIDs, fmt.Errorf("probing relationships of %s: %w", e.ID, err)
		}
		if len(rels) > 0 {
			continue
		}

		if err := s.store.DeleteEntity(ctx, e.ID); err != nil {
			return 0, vectorIDs, fmt.Errorf("deleting entity %s: %w", e.ID, err)
		}
		count++
		if e.VectorID != "" {
			vectorIDs = append(vectorIDs, e.VectorID)
		}
	}
	return count, vectorIDs, nil
}
