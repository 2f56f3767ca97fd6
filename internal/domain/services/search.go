package services

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/ersonp/kgraph/internal/domain/entities"
	"github.com/ersonp/kgraph/internal/domain/ports"
)

// Search defaults.
const (
	DefaultSearchLimit   = 10
	searchCandidateLimit = 1000
	exactMatchScore      = 1.0
	substringWeight      = 0.5
	wholeWordWeight      = 0.3
)

// ScoredEntity is a search hit.
type ScoredEntity struct {
	*entities.Entity
	SearchScore float64 `json:"searchScore"`
}

// SearchOptions configures SearchEntities.
type SearchOptions struct {
	Limit         int
	EntityTypes   []entities.EntityType
	MinConfidence float64
}

// SearchService ranks a persona's entities against a free-text query.
//
// Scoring is a lexical heuristic over entity names. It stands in for a
// semantic search that could replace it behind the same contract: a query
// in, entities ranked by SearchScore out.
type SearchService struct {
	store    ports.GraphStore
	observer ports.Observer
}

// NewSearchService creates a new SearchService.
func NewSearchService(store ports.GraphStore, observer ports.Observer) *SearchService {
	return &SearchService{store: store, observer: observerOrNop(observer)}
}

// SearchEntities scores up to 1000 candidate entities and returns the best
// matches, highest score first. Ties keep candidate order. A failed read
// yields an empty list.
func (s *SearchService) SearchEntities(ctx context.Context, personaID, query string, opts SearchOptions) Result[[]ScoredEntity] {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	candidates, err := s.store.ListEntitiesByPersona(ctx, personaID, searchCandidateLimit)
	if err != nil {
		err = fmt.Errorf("listing candidates for %s: %w", personaID, err)
		s.observer.Error("Failed to search entities", err, ports.Fields{
			"operation":  "searchEntities",
			"persona_id": personaID,
			"query":      query,
		})
		return degraded([]ScoredEntity{}, err)
	}

	scored := make([]ScoredEntity, 0, len(candidates))
	for _, e := range candidates {
		if len(opts.EntityTypes) > 0 && !slices.Contains(opts.EntityTypes, e.Type) {
			continue
		}
		if e.Confidence < opts.MinConfidence {
			continue
		}
		score := ScoreName(e.Name, query, e.Confidence)
		if score <= 0 {
			continue
		}
		scored = append(scored, ScoredEntity{Entity: e, SearchScore: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].SearchScore > scored[j].SearchScore
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}

	s.observer.Info("Entity search completed", ports.Fields{
		"persona_id":    personaID,
		"query":         query,
		"results_count": len(scored),
	})
	return ok(scored)
}

// ScoreName scores name against query, case-insensitively. An exact match
// scores 1. Otherwise each whitespace-separated query term contributes
// 0.5/terms when it occurs in the name and a further 0.3/terms when it
// occurs as a whole word. The total is scaled by confidence.
func ScoreName(name, query string, confidence float64) float64 {
	name = strings.ToLower(name)
	query = strings.ToLower(query)

	if name == query {
		return exactMatchScore * confidence
	}

	terms := strings.Fields(query)
	if len(terms) == 0 {
		return 0
	}

	n := float64(len(terms))
	var score float64
	for _, term := range terms {
		if strings.Contains(name, term) {
			score += substringWeight / n
		}
		if containsWord(name, term) {
			score += wholeWordWeight / n
		}
	}
	return score * confidence
}

// containsWord reports whether term occurs in s with a word boundary on
// both sides, where word characters are ASCII letters, digits and '_'.
// It matches `\b` + QuoteMeta(term) + `\b` without compiling a regexp.
func containsWord(s, term string) bool {
	for from := 0; from <= len(s); {
		i := strings.Index(s[from:], term)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(term)
		if atBoundary(s, start) && atBoundary(s, end) {
			return true
		}
		from = start + 1
	}
	return false
}

func atBoundary(s string, i int) bool {
	return isWordByte(s, i-1) != isWordByte(s, i)
}

func isWordByte(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return false
	}
	c := s[i]
	return c == '_' || '0' <= c && c <= '9' || 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z'
}
