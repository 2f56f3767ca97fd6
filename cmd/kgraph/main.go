// Package main provides the entry point for the kgraph CLI application.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	version       = "0.1.0-dev"
	globalPersona string
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "kgraph",
		Short:         "A per-persona knowledge graph with merge-on-write consolidation",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&globalPersona, "persona", "p", "", "Persona to operate on")

	rootCmd.AddCommand(
		newInitCmd(),
		newIngestCmd(),
		newRelatedCmd(),
		newContextCmd(),
		newSearchCmd(),
		newStatsCmd(),
		newCleanupCmd(),
		newPersonasCmd(),
	)

	return rootCmd
}
