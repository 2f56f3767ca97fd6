package handlers

import (
	"context"
	"fmt"

	"github.com/ersonp/kgraph/internal/domain/ports"
	"github.com/ersonp/kgraph/internal/infrastructure/config"
)

// StoreOpener opens the graph store selected by a configuration.
type StoreOpener func(ctx context.Context, cfg *config.Config) (ports.GraphStore, error)

// InitHandler handles workspace initialization.
type InitHandler struct {
	openStore StoreOpener
}

// NewInitHandler creates a new init handler. A nil opener skips schema
// creation.
func NewInitHandler(openStore StoreOpener) *InitHandler {
	return &InitHandler{
		openStore: openStore,
	}
}

// InitResult contains the result of initialization.
type InitResult struct {
	ConfigPath   string
	PersonasPath string
	Persona      string
	StoreDriver  string
}

// Handle writes the default configuration, registers the first persona and
// creates the graph schema.
func (h *InitHandler) Handle(ctx context.Context, basePath, persona string) (*InitResult, error) {
	if config.Exists(basePath) {
		return nil, fmt.Errorf("kgraph already initialized in %s", basePath)
	}

	if err := config.WriteDefault(basePath); err != nil {
		return nil, fmt.Errorf("writing default config: %w", err)
	}

	cfg, err := config.Load(basePath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	personas, err := config.LoadPersonas(basePath)
	if err != nil {
		return nil, fmt.Errorf("loading personas: %w", err)
	}
	if !personas.Exists(persona) {
		personas.Add(persona, config.PersonaEntry{Description: "Created by kgraph init"})
		if err := personas.Save(basePath); err != nil {
			return nil, fmt.Errorf("saving personas: %w", err)
		}
	}

	if h.openStore != nil {
		store, err := h.openStore(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("opening graph store: %w", err)
		}
		defer store.Close()

		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}

	return &InitResult{
		ConfigPath:   config.ConfigFilePath(basePath),
		PersonasPath: config.PersonasFilePath(basePath),
		Persona:      persona,
		StoreDriver:  cfg.Store.Driver,
	}, nil
}
