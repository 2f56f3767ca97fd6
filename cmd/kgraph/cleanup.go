package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ersonp/kgraph/internal/domain/services"
)

func newCleanupCmd() *cobra.Command {
	var (
		maxAge time.Duration
		all    bool
	)

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove old, unconnected, low-confidence entities",
		Long: `Deletes entities that are older than --max-age, have no relationship in
either direction and have confidence below 0.5. When Qdrant is enabled the
vector records of removed entities are deleted too.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCleanup(cmd, maxAge, all)
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", services.DefaultOrphanMaxAge, "Minimum age of a removable entity")
	cmd.Flags().BoolVar(&all, "all", false, "Sweep every registered persona")

	return cmd
}

func runCleanup(cmd *cobra.Command, maxAge time.Duration, all bool) error {
	return withInternalDeps(cmd.Context(), func(deps *internalDeps) error {
		var personas []string
		if all {
			personas = deps.Personas.Names()
			if len(personas) == 0 {
				return fmt.Errorf("no personas configured")
			}
		} else {
			persona, err := requirePersona()
			if err != nil {
				return err
			}
			personas = []string{persona}
		}

		out := cmd.OutOrStdout()
		if deps.vectors == nil {
			fmt.Fprintln(out, "Qdrant disabled: vector records are left in place.")
		}

		var failed int
		for _, r := range deps.MaintenanceHandler.HandleCleanup(cmd.Context(), personas, maxAge) {
			if r.Err != nil {
				failed++
				fmt.Fprintf(out, "%-20s failed: %v\n", r.PersonaID, r.Err)
				continue
			}
			fmt.Fprintf(out, "%-20s removed %d\n", r.PersonaID, r.Removed)
		}

		if failed > 0 {
			return fmt.Errorf("cleanup failed for %d of %d personas", failed, len(personas))
		}
		return nil
	})
}
