package ports

import "context"

// VectorLinks manages the embedding records entities point at through
// Entity.VectorID. The graph never searches vectors; it only removes
// records whose owning entity has been reaped.
type VectorLinks interface {
	// DeleteVectors removes the given vector records. Unknown IDs are ignored.
	DeleteVectors(ctx context.Context, vectorIDs []string) error
}
