// Package parsers provides parsers for importing graph batches from various formats.
package parsers

import (
	"io"
	"path/filepath"
	"strings"
)

// RawEntity is an entity observation parsed from an external source before validation.
type RawEntity struct {
	ID         string         `json:"id,omitempty"`
	PersonaID  string         `json:"persona_id,omitempty"`
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
	Confidence *float64       `json:"confidence,omitempty"` // Pointer to distinguish 0 from unset
	VectorID   string         `json:"vector_id,omitempty"`
	LineNum    int            `json:"-"` // Position in source file (set by parser)
}

// RawRelationship is a relationship observation parsed from an external source.
// Source and Target hold entity IDs, either stored IDs or IDs declared by
// entities of the same batch.
type RawRelationship struct {
	ID         string         `json:"id,omitempty"`
	PersonaID  string         `json:"persona_id,omitempty"`
	Source     string         `json:"source_entity_id"`
	Target     string         `json:"target_entity_id"`
	Type       string         `json:"relationship_type"`
	Strength   *float64       `json:"strength,omitempty"`
	Context    string         `json:"context,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
	LineNum    int            `json:"-"`
}

// Batch is the parsed content of one import file.
type Batch struct {
	Entities      []RawEntity       `json:"entities"`
	Relationships []RawRelationship `json:"relationships"`
}

// Parser defines the interface for parsing batches from various formats.
type Parser interface {
	Parse(r io.Reader) (*Batch, error)
}

// ForFormat returns the appropriate parser for the given format.
// Supported formats: "json", "csv".
func ForFormat(format string) Parser {
	switch strings.ToLower(format) {
	case "json":
		return &JSONParser{}
	case "csv":
		return &CSVParser{}
	default:
		return nil
	}
}

// ForFile returns the appropriate parser based on file extension.
func ForFile(filename string) Parser {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".json":
		return &JSONParser{}
	case ".csv":
		return &CSVParser{}
	default:
		return nil
	}
}
