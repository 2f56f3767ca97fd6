package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ersonp/kgraph/internal/domain/services"
)

type relatedFlags struct {
	depth       int
	limit       int
	minStrength float64
	types       []string
	relTypes    []string
	jsonOut     bool
}

func newRelatedCmd() *cobra.Command {
	var flags relatedFlags

	cmd := &cobra.Command{
		Use:   "related <entity-id>",
		Short: "List entities reachable from an entity",
		Long:  "Walks relationships in both directions up to --depth hops and lists the entities found, nearest first.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelated(cmd, args[0], flags)
		},
	}

	cmd.Flags().IntVarP(&flags.depth, "depth", "d", DefaultMaxDepth, "Maximum number of hops")
	cmd.Flags().IntVarP(&flags.limit, "limit", "l", DefaultRelatedLimit, "Maximum number of entities")
	cmd.Flags().Float64Var(&flags.minStrength, "min-strength", services.DefaultMinStrength, "Minimum entity confidence (0 disables)")
	cmd.Flags().StringSliceVarP(&flags.types, "type", "t", nil, "Only entities of these types")
	cmd.Flags().StringSliceVar(&flags.relTypes, "rel-type", nil, "Only show relationships of these types")
	cmd.Flags().BoolVar(&flags.jsonOut, "json", false, "Print JSON")

	return cmd
}

func runRelated(cmd *cobra.Command, entityID string, flags relatedFlags) error {
	return withDeps(cmd.Context(), func(deps *Deps) error {
		minStrength := flags.minStrength
		result, err := deps.QueryHandler.HandleRelated(cmd.Context(), entityID, services.RelatedOptions{
			MaxDepth:          flags.depth,
			Limit:             flags.limit,
			EntityTypes:       parseEntityTypes(flags.types),
			RelationshipTypes: parseRelationTypes(flags.relTypes),
			MinStrength:       &minStrength,
		})
		if err != nil {
			return err
		}

		writeWarning(cmd.ErrOrStderr(), result.Cause)
		out := cmd.OutOrStdout()

		if flags.jsonOut {
			return writeJSON(out, result.Value)
		}

		if len(result.Value) == 0 {
			fmt.Fprintln(out, "No related entities found.")
			return nil
		}

		fmt.Fprintf(out, "%-5s %-36s %-14s %-30s %s\n", "DEPTH", "ID", "TYPE", "NAME", "CONFIDENCE")
		for _, re := range result.Value {
			fmt.Fprintf(out, "%-5d %-36s %-14s %-30s %.2f\n", re.Depth, re.ID, re.Type, truncate(re.Name, 30), re.Confidence)
			for _, rel := range re.Relationships {
				fmt.Fprintf(out, "      %s %s %s (%.2f)\n", rel.Direction, rel.Type, rel.ConnectedEntityID, rel.Strength)
			}
		}
		return nil
	})
}
