// Package qdrant removes entity vector records from Qdrant.
package qdrant

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/ersonp/kgraph/internal/infrastructure/config"
)

// pointsDeleter is the slice of pb.PointsClient the repository uses.
type pointsDeleter interface {
	Delete(ctx context.Context, in *pb.DeletePoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
}

// Repository holds the gRPC connection shared by every persona collection.
type Repository struct {
	points pointsDeleter
	apiKey string
	conn   *grpc.ClientConn
}

// NewRepository creates a new Qdrant repository.
func NewRepository(cfg config.QdrantConfig) (*Repository, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant: %w", err)
	}

	return &Repository{
		points: pb.NewPointsClient(conn),
		apiKey: cfg.APIKey,
		conn:   conn,
	}, nil
}

// Close closes the gRPC connection.
func (r *Repository) Close() error {
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

// Collection returns the vector links of one persona collection.
func (r *Repository) Collection(name string) *Collection {
	return &Collection{repo: r, name: name}
}

// Collection implements VectorLinks for a single Qdrant collection.
type Collection struct {
	repo *Repository
	name string
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.name
}

// DeleteVectors removes the given points and waits for the operation to be
// applied. IDs that are neither UUIDs nor unsigned integers cannot exist in
// Qdrant and are skipped, as is a missing collection.
func (c *Collection) DeleteVectors(ctx context.Context, vectorIDs []string) error {
	ids := pointIDs(vectorIDs)
	if len(ids) == 0 {
		return nil
	}

	if c.repo.apiKey != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", c.repo.apiKey)
	}

	wait := true
	_, err := c.repo.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: c.name,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{Ids: ids},
			},
		},
	})
	if status.Code(err) == codes.NotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("deleting points from %s: %w", c.name, err)
	}

	return nil
}

// pointIDs converts vector IDs to Qdrant point IDs, dropping duplicates and
// values Qdrant cannot hold.
func pointIDs(vectorIDs []string) []*pb.PointId {
	seen := make(map[string]struct{}, len(vectorIDs))
	ids := make([]*pb.PointId, 0, len(vectorIDs))

	for _, id := range vectorIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		if u, err := uuid.Parse(id); err == nil {
			ids = append(ids, &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: u.String()}})
			continue
		}
		if n, err := strconv.ParseUint(id, 10, 64); err == nil {
			ids = append(ids, &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: n}})
		}
	}
	return ids
}
