package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/ersonp/kgraph/internal/domain/services"
)

// QueryHandler handles read-only graph queries.
type QueryHandler struct {
	traversal *services.TraversalService
	search    *services.SearchService
	stats     *services.StatisticsService
}

// NewQueryHandler creates a new query handler.
func NewQueryHandler(traversal *services.TraversalService, search *services.SearchService, stats *services.StatisticsService) *QueryHandler {
	return &QueryHandler{
		traversal: traversal,
		search:    search,
		stats:     stats,
	}
}

// HandleRelated returns the neighbourhood of one entity. The error is only
// set for unusable arguments; storage trouble is reported by the result.
func (h *QueryHandler) HandleRelated(ctx context.Context, entityID string, opts services.RelatedOptions) (services.Result[[]services.RelatedEntity], error) {
	if strings.TrimSpace(entityID) == "" {
		return services.Result[[]services.RelatedEntity]{}, errors.New("entity id is required")
	}
	return h.traversal.FindRelatedEntities(ctx, entityID, opts), nil
}

// HandleContext returns the requested entities with their relationships.
func (h *QueryHandler) HandleContext(ctx context.Context, entityIDs []string, opts services.ContextOptions) (services.Result[*services.GraphContext], error) {
	ids := make([]string, 0, len(entityIDs))
	for _, id := range entityIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return services.Result[*services.GraphContext]{}, errors.New("at least one entity id is required")
	}
	return h.traversal.GetGraphContext(ctx, ids, opts), nil
}

// HandleSearch ranks a persona's entities against a query.
func (h *QueryHandler) HandleSearch(ctx context.Context, personaID, query string, opts services.SearchOptions) (services.Result[[]services.ScoredEntity], error) {
	if personaID == "" {
		return services.Result[[]services.ScoredEntity]{}, errors.New("persona is required")
	}
	if strings.TrimSpace(query) == "" {
		return services.Result[[]services.ScoredEntity]{}, errors.New("query is required")
	}
	return h.search.SearchEntities(ctx, personaID, query, opts), nil
}

// HandleStats returns the statistics of a persona's graph.
func (h *QueryHandler) HandleStats(ctx context.Context, personaID string) (services.Result[*services.GraphStatistics], error) {
	if personaID == "" {
		return services.Result[*services.GraphStatistics]{}, errors.New("persona is required")
	}
	return h.stats.GetGraphStatistics(ctx, personaID), nil
}
