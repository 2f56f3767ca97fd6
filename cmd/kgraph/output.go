package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ersonp/kgraph/internal/domain/entities"
)

// writeJSON writes v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("encoding JSON: %w", err)
	}
	return nil
}

// writeWarning reports a degraded read. Results are still printed.
func writeWarning(w io.Writer, cause error) {
	if cause == nil {
		return
	}
	fmt.Fprintf(w, "warning: results may be incomplete: %v\n", cause)
}

func parseEntityTypes(values []string) []entities.EntityType {
	if len(values) == 0 {
		return nil
	}
	out := make([]entities.EntityType, 0, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, entities.EntityType(v))
		}
	}
	return out
}

func parseRelationTypes(values []string) []entities.RelationType {
	if len(values) == 0 {
		return nil
	}
	out := make([]entities.RelationType, 0, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, entities.RelationType(v))
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
