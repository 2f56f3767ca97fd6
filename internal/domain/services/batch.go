package services

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/ersonp/kgraph/internal/domain/ports"
)

// ItemStatus is the per-item outcome of a batch.
type ItemStatus string

const (
	StatusProcessed ItemStatus = "processed"
	StatusFailed    ItemStatus = "failed"
)

// ProcessedEntity is the outcome of one entity input.
type ProcessedEntity struct {
	Input  EntityInput `json:"input"`
	ID     string      `json:"id,omitempty"`
	Status ItemStatus  `json:"status"`
	Error  string      `json:"error,omitempty"`
}

// ProcessedRelationship is the outcome of one relationship input. Input
// holds the endpoints actually written after reference resolution.
type ProcessedRelationship struct {
	Input  RelationshipInput `json:"input"`
	ID     string            `json:"id,omitempty"`
	Status ItemStatus        `json:"status"`
	Error  string            `json:"error,omitempty"`
}

// BatchSummary counts outcomes per phase.
type BatchSummary struct {
	EntitiesProcessed      int `json:"entitiesProcessed"`
	EntitiesFailed         int `json:"entitiesFailed"`
	RelationshipsProcessed int `json:"relationshipsProcessed"`
	RelationshipsFailed    int `json:"relationshipsFailed"`
}

// BatchResult holds per-item outcomes in input order and the summary.
type BatchResult struct {
	Entities      []ProcessedEntity       `json:"entities"`
	Relationships []ProcessedRelationship `json:"relationships"`
	Summary       BatchSummary            `json:"summary"`
}

// BatchOptions configures batch processing.
type BatchOptions struct {
	// Concurrency is the number of items merged in parallel within a phase.
	// Values <= 1 process items sequentially.
	Concurrency int
}

// BatchService applies a batch of observations through the MergeService.
type BatchService struct {
	merge    *MergeService
	observer ports.Observer
	opts     BatchOptions
}

// NewBatchService creates a new BatchService.
func NewBatchService(merge *MergeService, observer ports.Observer, opts BatchOptions) *BatchService {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &BatchService{
		merge:    merge,
		observer: observerOrNop(observer),
		opts:     opts,
	}
}

// ProcessBatch merges every entity, then every relationship. A failed item
// is recorded and never aborts the rest of the batch. The batch as a whole
// is not atomic: items processed before a failure stay committed.
//
// A relationship endpoint equal to an entity input's explicit ID is
// rewritten to the ID that entity resolved to, so a batch can reference its
// own entities even when they merge into existing records.
func (s *BatchService) ProcessBatch(ctx context.Context, entityInputs []EntityInput, relInputs []RelationshipInput) *BatchResult {
	result := &BatchResult{
		Entities:      make([]ProcessedEntity, len(entityInputs)),
		Relationships: make([]ProcessedRelationship, len(relInputs)),
	}

	s.each(len(entityInputs), func(i int) {
		in := entityInputs[i]
		out := ProcessedEntity{Input: in}
		id, err := s.merge.CreateOrMergeEntity(ctx, in)
		if err != nil {
			out.Status = StatusFailed
			out.Error = err.Error()
		} else {
			out.ID = id
			out.Status = StatusProcessed
		}
		result.Entities[i] = out
	})

	refs := make(map[string]string)
	for _, e := range result.Entities {
		if e.Status == StatusProcessed && e.Input.ID != "" {
			refs[e.Input.ID] = e.ID
		}
		if e.Status == StatusProcessed {
			result.Summary.EntitiesProcessed++
		} else {
			result.Summary.EntitiesFailed++
		}
	}

	s.each(len(relInputs), func(i int) {
		in := relInputs[i]
		if id, ok := refs[in.SourceEntityID]; ok {
			in.SourceEntityID = id
		}
		if id, ok := refs[in.TargetEntityID]; ok {
			in.TargetEntityID = id
		}
		out := ProcessedRelationship{Input: in}
		id, err := s.merge.CreateOrMergeRelationship(ctx, in)
		if err != nil {
			out.Status = StatusFailed
			out.Error = err.Error()
		} else {
			out.ID = id
			out.Status = StatusProcessed
		}
		result.Relationships[i] = out
	})

	for _, r := range result.Relationships {
		if r.Status == StatusProcessed {
			result.Summary.RelationshipsProcessed++
		} else {
			result.Summary.RelationshipsFailed++
		}
	}

	s.observer.Info("Batch processing completed", ports.Fields{
		"entities_processed":      result.Summary.EntitiesProcessed,
		"entities_failed":         result.Summary.EntitiesFailed,
		"relationships_processed": result.Summary.RelationshipsProcessed,
		"relationships_failed":    result.Summary.RelationshipsFailed,
	})

	return result
}

// each runs fn for every index, at most Concurrency at a time.
// Items never return errors; failures are recorded in their result slot.
func (s *BatchService) each(n int, fn func(i int)) {
	if s.opts.Concurrency == 1 {
		for i := range n {
			fn(i)
		}
		return
	}
	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for i := range n {
		g.Go(func() error {
			fn(i)
			return nil
		})
	}
	_ = g.Wait()
}
