package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ersonp/kgraph/internal/domain/services"
)

func newContextCmd() *cobra.Command {
	var (
		maxRels int
		noRels  bool
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "context <entity-id>...",
		Short: "Show entities with their relationships and the connections among them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			include := !noRels
			opts := services.ContextOptions{IncludeRelationships: &include, MaxRelationships: maxRels}
			return runContext(cmd, args, opts, jsonOut)
		},
	}

	cmd.Flags().IntVar(&maxRels, "max-relationships", services.DefaultContextRelationships, "Relationships fetched per entity")
	cmd.Flags().BoolVar(&noRels, "no-relationships", false, "Only fetch the entities")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print JSON")

	return cmd
}

func runContext(cmd *cobra.Command, ids []string, opts services.ContextOptions, jsonOut bool) error {
	return withDeps(cmd.Context(), func(deps *Deps) error {
		result, err := deps.QueryHandler.HandleContext(cmd.Context(), ids, opts)
		if err != nil {
			return err
		}

		writeWarning(cmd.ErrOrStderr(), result.Cause)
		out := cmd.OutOrStdout()
		gc := result.Value

		if jsonOut {
			return writeJSON(out, gc)
		}

		fmt.Fprintf(out, "Entities (%d):\n", len(gc.Entities))
		for _, e := range gc.Entities {
			fmt.Fprintf(out, "  %s [%s] %s (%.2f)\n", e.ID, e.Type, e.Name, e.Confidence)
		}
		fmt.Fprintf(out, "Relationships (%d):\n", len(gc.Relationships))
		for _, r := range gc.Relationships {
			fmt.Fprintf(out, "  %s -[%s]-> %s (%.2f)\n", r.SourceEntityID, r.Type, r.TargetEntityID, r.Strength)
		}
		fmt.Fprintf(out, "Connections (%d):\n", len(gc.Connections))
		for _, r := range gc.Connections {
			fmt.Fprintf(out, "  %s -[%s]-> %s\n", r.SourceEntityID, r.Type, r.TargetEntityID)
		}
		return nil
	})
}
