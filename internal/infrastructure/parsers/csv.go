package parsers

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// CSV row kinds.
const (
	KindEntity       = "entity"
	KindRelationship = "relationship"
)

// CSVParser parses batches from CSV format. Each row is either an entity or
// a relationship, selected by the kind column.
type CSVParser struct{}

// Parse reads CSV from the reader and returns the parsed batch.
// Columns: kind, id, persona_id, name, type, confidence, vector_id,
// source, target, strength, context, properties (a JSON object).
func (p *CSVParser) Parse(r io.Reader) (*Batch, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	colIndex, err := p.readHeader(reader)
	if err != nil {
		return nil, err
	}

	return p.readRecords(reader, colIndex)
}

// readHeader reads and validates the CSV header row.
func (p *CSVParser) readHeader(reader *csv.Reader) (map[string]int, error) {
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.TrimSpace(col)] = i
	}

	requiredCols := []string{"kind", "type"}
	for _, col := range requiredCols {
		if _, ok := colIndex[col]; !ok {
			return nil, fmt.Errorf("missing required column: %s", col)
		}
	}

	return colIndex, nil
}

// readRecords reads all data rows.
func (p *CSVParser) readRecords(reader *csv.Reader, colIndex map[string]int) (*Batch, error) {
	batch := &Batch{}
	lineNum := 1 // Header is line 1

	for {
		lineNum++
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}

		if err := p.parseRecord(batch, record, colIndex, lineNum); err != nil {
			return nil, err
		}
	}

	return batch, nil
}

// parseRecord appends one CSV record to the batch.
func (p *CSVParser) parseRecord(batch *Batch, record []string, colIndex map[string]int, lineNum int) error {
	props, err := parseProperties(getColumn(record, colIndex, "properties"), lineNum)
	if err != nil {
		return err
	}

	switch kind := strings.ToLower(getColumn(record, colIndex, "kind")); kind {
	case KindEntity:
		conf, err := parseScore(getColumn(record, colIndex, "confidence"), "confidence", lineNum)
		if err != nil {
			return err
		}
		batch.Entities = append(batch.Entities, RawEntity{
			ID:         getColumn(record, colIndex, "id"),
			PersonaID:  getColumn(record, colIndex, "persona_id"),
			Name:       getColumn(record, colIndex, "name"),
			Type:       getColumn(record, colIndex, "type"),
			Properties: props,
			Confidence: conf,
			VectorID:   getColumn(record, colIndex, "vector_id"),
			LineNum:    lineNum,
		})
	case KindRelationship:
		strength, err := parseScore(getColumn(record, colIndex, "strength"), "strength", lineNum)
		if err != nil {
			return err
		}
		batch.Relationships = append(batch.Relationships, RawRelationship{
			ID:         getColumn(record, colIndex, "id"),
			PersonaID:  getColumn(record, colIndex, "persona_id"),
			Source:     getColumn(record, colIndex, "source"),
			Target:     getColumn(record, colIndex, "target"),
			Type:       getColumn(record, colIndex, "type"),
			Strength:   strength,
			Context:    getColumn(record, colIndex, "context"),
			Properties: props,
			LineNum:    lineNum,
		})
	default:
		return fmt.Errorf("line %d: unknown kind %q (want %s or %s)", lineNum, kind, KindEntity, KindRelationship)
	}
	return nil
}

func parseScore(s, field string, lineNum int) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("line %d: invalid %s value %q: %w", lineNum, field, s, err)
	}
	return &v, nil
}

func parseProperties(s string, lineNum int) (map[string]any, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var props map[string]any
	if err := json.Unmarshal([]byte(s), &props); err != nil {
		return nil, fmt.Errorf("line %d: invalid properties: %w", lineNum, err)
	}
	return props, nil
}

// getColumn safely retrieves a column value from a record.
func getColumn(record []string, colIndex map[string]int, col string) string {
	if idx, ok := colIndex[col]; ok && idx < len(record) {
		return strings.TrimSpace(record[idx])
	}
	return ""
}
