package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show graph statistics for a persona",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd, jsonOut)
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print JSON")

	return cmd
}

func runStats(cmd *cobra.Command, jsonOut bool) error {
	persona, err := requirePersona()
	if err != nil {
		return err
	}

	return withDeps(cmd.Context(), func(deps *Deps) error {
		result, err := deps.QueryHandler.HandleStats(cmd.Context(), persona)
		if err != nil {
			return err
		}

		writeWarning(cmd.ErrOrStderr(), result.Cause)
		out := cmd.OutOrStdout()
		s := result.Value

		if jsonOut {
			return writeJSON(out, s)
		}

		fmt.Fprintf(out, "Persona:             %s\n", persona)
		fmt.Fprintf(out, "Entities:            %d\n", s.TotalEntities)
		fmt.Fprintf(out, "Relationships:       %d\n", s.TotalRelationships)
		fmt.Fprintf(out, "Density:             %.4f\n", s.GraphDensity)
		fmt.Fprintf(out, "Avg relationships:   %.2f\n", s.AverageRelationshipsPerEntity)
		fmt.Fprintf(out, "Complexity:          %s\n", s.GraphComplexity)
		fmt.Fprintf(out, "Entity types:        %s\n", strings.Join(s.EntityTypes, ", "))
		fmt.Fprintf(out, "Relationship types:  %s\n", strings.Join(s.RelationshipTypes, ", "))
		fmt.Fprintf(out, "Computed at:         %s\n", s.LastUpdated.Format(time.RFC3339))
		return nil
	})
}
