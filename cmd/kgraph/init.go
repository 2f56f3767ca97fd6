package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ersonp/kgraph/internal/application/handlers"
	"github.com/ersonp/kgraph/internal/domain/ports"
	"github.com/ersonp/kgraph/internal/infrastructure/config"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize kgraph in the current directory",
		Long:  "Writes .kgraph/config.yaml, registers the persona given by --persona (default \"default\") and creates the graph schema.",
		Args:  cobra.NoArgs,
		RunE:  runInit,
	}
}

func runInit(cmd *cobra.Command, _ []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	persona := globalPersona
	if persona == "" {
		persona = "default"
	}

	handler := handlers.NewInitHandler(func(ctx context.Context, cfg *config.Config) (ports.GraphStore, error) {
		return openStore(ctx, cfg, cwd)
	})

	result, err := handler.Handle(cmd.Context(), cwd, persona)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Initialized kgraph in %s\n", config.ConfigDir(cwd))
	fmt.Fprintf(out, "  config:   %s\n", result.ConfigPath)
	fmt.Fprintf(out, "  personas: %s\n", result.PersonasPath)
	fmt.Fprintf(out, "  store:    %s\n", result.StoreDriver)
	fmt.Fprintf(out, "Registered persona %q\n", result.Persona)
	return nil
}
