package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ersonp/kgraph/internal/domain/entities"
)

// ErrInvalidInput is wrapped by write failures caused by the input itself
// rather than by storage.
var ErrInvalidInput = errors.New("invalid input")

// WriteError is returned by every failed write-path operation. It names the
// operation and carries the identifying fields of the record being written.
type WriteError struct {
	Op               string
	PersonaID        string
	Name             string
	EntityType       entities.EntityType
	SourceID         string
	TargetID         string
	RelationshipType entities.RelationType
	EntityID         string
	Err              error
}

// Error implements the error interface.
func (e *WriteError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(" failed")

	var ids []string
	if e.PersonaID != "" {
		ids = append(ids, "persona="+e.PersonaID)
	}
	if e.Name != "" {
		ids = append(ids, fmt.Sprintf("name=%q", e.Name))
	}
	if e.EntityType != "" {
		ids = append(ids, "type="+string(e.EntityType))
	}
	if e.EntityID != "" {
		ids = append(ids, "entity="+e.EntityID)
	}
	if e.SourceID != "" || e.TargetID != "" {
		ids = append(ids, "source="+e.SourceID, "target="+e.TargetID)
	}
	if e.RelationshipType != "" {
		ids = append(ids, "relationship_type="+string(e.RelationshipType))
	}
	if len(ids) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(ids, " "))
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *WriteError) Unwrap() error {
	return e.Err
}

func entityWriteError(op string, in EntityInput, err error) *WriteError {
	return &WriteError{
		Op:         op,
		PersonaID:  in.PersonaID,
		Name:       in.Name,
		EntityType: in.Type,
		Err:        err,
	}
}

func relationshipWriteError(op string, in RelationshipInput, err error) *WriteError {
	return &WriteError{
		Op:               op,
		PersonaID:        in.PersonaID,
		SourceID:         in.SourceEntityID,
		TargetID:         in.TargetEntityID,
		RelationshipType: in.Type,
		Err:              err,
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
