// Package handlers contains application use case handlers.
package handlers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ersonp/kgraph/internal/domain/entities"
	"github.com/ersonp/kgraph/internal/domain/services"
	"github.com/ersonp/kgraph/internal/infrastructure/parsers"
)

// IngestHandler handles batch file ingestion.
type IngestHandler struct {
	batchService *services.BatchService
}

// NewIngestHandler creates a new ingest handler.
func NewIngestHandler(batchService *services.BatchService) *IngestHandler {
	return &IngestHandler{
		batchService: batchService,
	}
}

// IngestResult contains the result of ingesting one file.
type IngestResult struct {
	FilePath string
	Format   string
	*services.BatchResult
}

// IngestDirectoryResult contains the result of ingesting a directory.
type IngestDirectoryResult struct {
	TotalFiles  int
	Summary     services.BatchSummary
	FileResults []*IngestResult
	Errors      []error
}

// Handle parses a batch file and consolidates it into the graph. A non-empty
// personaID replaces the persona of every item in the file. An empty format
// is inferred from the file extension.
func (h *IngestHandler) Handle(ctx context.Context, personaID, filePath, format string) (*IngestResult, error) {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("accessing file: %w", err)
	}

	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file: %s", absPath)
	}

	parser := parsers.ForFormat(format)
	if format == "" {
		parser = parsers.ForFile(absPath)
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(absPath)), ".")
	}
	if parser == nil {
		return nil, fmt.Errorf("unsupported format %q (use json or csv)", format)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer file.Close()

	batch, err := parser.Parse(file)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", absPath, err)
	}

	entityInputs, relInputs := toInputs(batch, personaID)
	result := h.batchService.ProcessBatch(ctx, entityInputs, relInputs)

	return &IngestResult{
		FilePath:    absPath,
		Format:      format,
		BatchResult: result,
	}, nil
}

// HandleDirectory ingests all matching files in a directory.
func (h *IngestHandler) HandleDirectory(ctx context.Context, personaID, dirPath, pattern string, recursive bool, progressFn func(file string)) (*IngestDirectoryResult, error) {
	absPath, err := filepath.Abs(dirPath)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("accessing path: %w", err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", absPath)
	}

	files, err := h.findFiles(absPath, pattern, recursive)
	if err != nil {
		return nil, fmt.Errorf("finding files: %w", err)
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no files matching pattern %q found in %s", pattern, absPath)
	}

	result := &IngestDirectoryResult{
		FileResults: make([]*IngestResult, 0, len(files)),
	}

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, err)
			break
		}
		if progressFn != nil {
			progressFn(file)
		}

		fileResult, err := h.Handle(ctx, personaID, file, "")
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("%s: %w", file, err))
			continue
		}

		result.FileResults = append(result.FileResults, fileResult)
		result.TotalFiles++
		result.Summary.EntitiesProcessed += fileResult.Summary.EntitiesProcessed
		result.Summary.EntitiesFailed += fileResult.Summary.EntitiesFailed
		result.Summary.RelationshipsProcessed += fileResult.Summary.RelationshipsProcessed
		result.Summary.RelationshipsFailed += fileResult.Summary.RelationshipsFailed
	}

	return result, nil
}

// findFiles finds all files matching the pattern in the directory.
func (h *IngestHandler) findFiles(dirPath string, pattern string, recursive bool) ([]string, error) {
	var files []string

	walkFn := func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if !recursive && path != dirPath {
				return filepath.SkipDir
			}
			return nil
		}

		matched, err := filepath.Match(pattern, d.Name())
		if err != nil {
			return err
		}

		if matched && parsers.ForFile(path) != nil {
			files = append(files, path)
		}

		return nil
	}

	if err := filepath.WalkDir(dirPath, walkFn); err != nil {
		return nil, err
	}

	return files, nil
}

// toInputs converts parsed records to merge inputs.
func toInputs(batch *parsers.Batch, personaID string) ([]services.EntityInput, []services.RelationshipInput) {
	persona := func(itemPersona string) string {
		if personaID != "" {
			return personaID
		}
		return itemPersona
	}

	entityInputs := make([]services.EntityInput, 0, len(batch.Entities))
	for _, raw := range batch.Entities {
		entityInputs = append(entityInputs, services.EntityInput{
			ID:         raw.ID,
			PersonaID:  persona(raw.PersonaID),
			Name:       raw.Name,
			Type:       entities.EntityType(strings.ToLower(strings.TrimSpace(raw.Type))),
			Properties: raw.Properties,
			Confidence: raw.Confidence,
			VectorID:   raw.VectorID,
		})
	}

	relInputs := make([]services.RelationshipInput, 0, len(batch.Relationships))
	for _, raw := range batch.Relationships {
		relInputs = append(relInputs, services.RelationshipInput{
			ID:             raw.ID,
			PersonaID:      persona(raw.PersonaID),
			SourceEntityID: raw.Source,
			TargetEntityID: raw.Target,
			Type:           entities.RelationType(strings.ToLower(strings.TrimSpace(raw.Type))),
			Strength:       raw.Strength,
			Context:        raw.Context,
			Properties:     raw.Properties,
		})
	}

	return entityInputs, relInputs
}

// IsDirectory checks if the given path is a directory.
func IsDirectory(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
