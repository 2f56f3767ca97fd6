package parsers

import (
	"encoding/json"
	"fmt"
	"io"
)

// JSONParser parses batches from a JSON object with "entities" and
// "relationships" arrays.
type JSONParser struct{}

// Parse reads JSON from the reader and returns the parsed batch.
func (p *JSONParser) Parse(r io.Reader) (*Batch, error) {
	var batch Batch

	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&batch); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}

	// Set positions (array index + 1, 1-indexed)
	for i := range batch.Entities {
		batch.Entities[i].LineNum = i + 1
	}
	for i := range batch.Relationships {
		batch.Relationships[i].LineNum = i + 1
	}

	return &batch, nil
}
