package handlers

import (
	"context"
	"time"

	"github.com/ersonp/kgraph/internal/domain/ports"
	"github.com/ersonp/kgraph/internal/domain/services"
)

// VectorLinksFor resolves the vector links of a persona. It returns nil
// when the persona has no vector store.
type VectorLinksFor func(personaID string) ports.VectorLinks

// MaintenanceHandler runs housekeeping jobs over one or more personas.
type MaintenanceHandler struct {
	store    ports.GraphStore
	vectors  VectorLinksFor
	observer ports.Observer
}

// NewMaintenanceHandler creates a new maintenance handler. vectors may be nil.
func NewMaintenanceHandler(store ports.GraphStore, vectors VectorLinksFor, observer ports.Observer) *MaintenanceHandler {
	return &MaintenanceHandler{
		store:    store,
		vectors:  vectors,
		observer: observer,
	}
}

// CleanupResult is the outcome of the orphan sweep of one persona.
type CleanupResult struct {
	PersonaID string
	Removed   int
	Err       error
}

// HandleCleanup sweeps orphaned entities of each persona in turn. A failed
// persona does not stop the others.
func (h *MaintenanceHandler) HandleCleanup(ctx context.Context, personaIDs []string, maxAge time.Duration) []CleanupResult {
	results := make([]CleanupResult, 0, len(personaIDs))
	for _, personaID := range personaIDs {
		if err := ctx.Err(); err != nil {
			results = append(results, CleanupResult{PersonaID: personaID, Err: err})
			continue
		}

		var links ports.VectorLinks
		if h.vectors != nil {
			links = h.vectors(personaID)
		}

		reaper := services.NewReaperService(h.store, links, h.observer)
		res := reaper.CleanupOrphanedEntities(ctx, personaID, maxAge)
		results = append(results, CleanupResult{
			PersonaID: personaID,
			Removed:   res.Value,
			Err:       res.Cause,
		})
	}
	return results
}
