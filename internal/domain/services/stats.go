package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ersonp/kgraph/internal/domain/entities"
	"github.com/ersonp/kgraph/internal/domain/ports"
)

// GraphStatistics is the raw storage aggregate plus derived shape metrics.
type GraphStatistics struct {
	entities.RawGraphStats
	GraphDensity                  float64             `json:"graphDensity"`
	AverageRelationshipsPerEntity float64             `json:"averageRelationshipsPerEntity"`
	GraphComplexity               entities.Complexity `json:"graphComplexity"`
	LastUpdated                   time.Time           `json:"lastUpdated"`
}

// StatisticsService derives graph statistics for a persona.
type StatisticsService struct {
	store    ports.GraphStore
	observer ports.Observer
	now      func() time.Time
}

// NewStatisticsService creates a new StatisticsService.
func NewStatisticsService(store ports.GraphStore, observer ports.Observer) *StatisticsService {
	return &StatisticsService{store: store, observer: observerOrNop(observer), now: time.Now}
}

// GetGraphStatistics returns counts and derived metrics. Statistics are best
// effort: a failed read yields a zeroed record with low complexity.
func (s *StatisticsService) GetGraphStatistics(ctx context.Context, personaID string) Result[*GraphStatistics] {
	raw, err := s.store.GraphStats(ctx, personaID)
	if err != nil {
		err = fmt.Errorf("reading graph stats for %s: %w", personaID, err)
		s.observer.Error("Failed to get graph statistics", err, ports.Fields{
			"operation":  "getGraphStatistics",
			"persona_id": personaID,
		})
		return degraded(emptyStatistics(s.now()), err)
	}

	stats := &GraphStatistics{
		RawGraphStats:                 *raw,
		GraphDensity:                  round(Density(raw.TotalEntities, raw.TotalRelationships), 4),
		AverageRelationshipsPerEntity: round(AverageDegree(raw.TotalEntities, raw.TotalRelationships), 2),
		GraphComplexity:               ComplexityFor(raw.TotalEntities),
		LastUpdated:                   s.now(),
	}
	if stats.EntityTypes == nil {
		stats.EntityTypes = []string{}
	}
	if stats.RelationshipTypes == nil {
		stats.RelationshipTypes = []string{}
	}
	return ok(stats)
}

func emptyStatistics(now time.Time) *GraphStatistics {
	return &GraphStatistics{
		RawGraphStats: entities.RawGraphStats{
			EntityTypes:       []string{},
			RelationshipTypes: []string{},
		},
		GraphComplexity: entities.ComplexityLow,
		LastUpdated:     now,
	}
}

// Density returns 2E / (N(N-1)), or 0 when N <= 1.
//
// Relationships are directed, so this undirected formula is an
// approximation: a fully connected directed graph scores 2, not 1.
func Density(nodes, edges int) float64 {
	if nodes <= 1 {
		return 0
	}
	n := float64(nodes)
	return 2 * float64(edges) / (n * (n - 1))
}

// AverageDegree returns E / N, or 0 when N is 0.
func AverageDegree(nodes, edges int) float64 {
	if nodes <= 0 {
		return 0
	}
	return float64(edges) / float64(nodes)
}

// ComplexityFor buckets a graph by entity count.
func ComplexityFor(nodes int) entities.Complexity {
	switch {
	case nodes < 10:
		return entities.ComplexityLow
	case nodes < 50:
		return entities.ComplexityMedium
	case nodes < 200:
		return entities.ComplexityHigh
	default:
		return entities.ComplexityVeryHigh
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
