package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ersonp/kgraph/internal/application/handlers"
	"github.com/ersonp/kgraph/internal/domain/ports"
	"github.com/ersonp/kgraph/internal/domain/services"
	"github.com/ersonp/kgraph/internal/infrastructure/config"
	"github.com/ersonp/kgraph/internal/infrastructure/graphdb/neo4j"
	"github.com/ersonp/kgraph/internal/infrastructure/graphdb/sqlite"
	"github.com/ersonp/kgraph/internal/infrastructure/lock"
	"github.com/ersonp/kgraph/internal/infrastructure/logging"
	"github.com/ersonp/kgraph/internal/infrastructure/vectordb/qdrant"
)

// Deps holds high-level dependencies for commands.
// Only handlers are exposed - services and repositories are internal.
type Deps struct {
	Config             *config.Config
	Personas           *config.PersonasConfig
	IngestHandler      *handlers.IngestHandler
	QueryHandler       *handlers.QueryHandler
	MaintenanceHandler *handlers.MaintenanceHandler
}

// internalDeps holds all dependencies including low-level components.
type internalDeps struct {
	Deps
	vectors *qdrant.Repository
}

// withDeps loads config and builds dependencies, then calls the provided function.
// It handles cleanup automatically.
func withDeps(ctx context.Context, fn func(*Deps) error) error {
	return withInternalDeps(ctx, func(d *internalDeps) error {
		return fn(&d.Deps)
	})
}

// withInternalDeps provides access to all dependencies including low-level components.
func withInternalDeps(ctx context.Context, fn func(*internalDeps) error) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	cfg, err := config.Load(cwd)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	personas, err := config.LoadPersonas(cwd)
	if err != nil {
		return fmt.Errorf("loading personas: %w", err)
	}

	logger, err := logging.New(cfg.Log.Env)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	observer := logging.NewObserver(logger)

	store, err := openStore(ctx, cfg, cwd)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensuring graph schema: %w", err)
	}

	locker, closeLocker, err := newLocker(cfg.Lock)
	if err != nil {
		return err
	}
	defer closeLocker()

	var vectors *qdrant.Repository
	if cfg.Qdrant.Enabled {
		vectors, err = qdrant.NewRepository(cfg.Qdrant)
		if err != nil {
			return fmt.Errorf("creating qdrant repository: %w", err)
		}
		defer vectors.Close()
	}

	merge := services.NewMergeService(store, locker, observer, services.MergeOptions{
		EntityCandidateLimit:  cfg.Merge.EntityCandidateLimit,
		RelationshipScanLimit: cfg.Merge.RelationshipScanLimit,
	})
	batch := services.NewBatchService(merge, observer, services.BatchOptions{
		Concurrency: cfg.Batch.Concurrency,
	})

	deps := &internalDeps{
		Deps: Deps{
			Config:        cfg,
			Personas:      personas,
			IngestHandler: handlers.NewIngestHandler(batch),
			QueryHandler: handlers.NewQueryHandler(
				services.NewTraversalService(store, observer),
				services.NewSearchService(store, observer),
				services.NewStatisticsService(store, observer),
			),
			MaintenanceHandler: handlers.NewMaintenanceHandler(store, vectorLinksFor(vectors, personas), observer),
		},
		vectors: vectors,
	}

	return fn(deps)
}

// openStore opens the graph store selected by the configuration.
func openStore(ctx context.Context, cfg *config.Config, basePath string) (ports.GraphStore, error) {
	switch cfg.Store.Driver {
	case config.DriverNeo4j:
		store, err := neo4j.NewRepository(ctx, cfg.Neo4j)
		if err != nil {
			return nil, fmt.Errorf("creating neo4j repository: %w", err)
		}
		return store, nil
	default:
		store, err := sqlite.NewRepository(config.SQLiteConfig{Path: cfg.SQLitePath(basePath)})
		if err != nil {
			return nil, fmt.Errorf("creating sqlite repository: %w", err)
		}
		return store, nil
	}
}

// newLocker builds the merge locker and its release function.
func newLocker(cfg config.LockConfig) (ports.KeyedLocker, func(), error) {
	if cfg.Driver != config.LockRedis {
		return lock.NewMemory(), func() {}, nil
	}
	locker, err := lock.NewRedis(lock.RedisOptions{URL: cfg.RedisURL, TTL: cfg.TTL})
	if err != nil {
		return nil, nil, fmt.Errorf("creating redis locker: %w", err)
	}
	return locker, func() { _ = locker.Close() }, nil
}

// vectorLinksFor maps a persona to its Qdrant collection. Without a
// repository, or for unregistered personas, there are no vector links.
func vectorLinksFor(repo *qdrant.Repository, personas *config.PersonasConfig) handlers.VectorLinksFor {
	if repo == nil {
		return nil
	}
	return func(personaID string) ports.VectorLinks {
		entry, err := personas.Get(personaID)
		if err != nil {
			return nil
		}
		return repo.Collection(entry.Collection)
	}
}

// requirePersona returns the --persona flag value.
func requirePersona() (string, error) {
	if globalPersona == "" {
		return "", errors.New("persona is required (use --persona flag)")
	}
	return globalPersona, nil
}
