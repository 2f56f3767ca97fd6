package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ersonp/kgraph/internal/domain/services"
)

func newSearchCmd() *cobra.Command {
	var (
		limit         int
		types         []string
		minConfidence float64
		jsonOut       bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Rank a persona's entities by name against a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := services.SearchOptions{
				Limit:         limit,
				EntityTypes:   parseEntityTypes(types),
				MinConfidence: minConfidence,
			}
			return runSearch(cmd, strings.Join(args, " "), opts, jsonOut)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", DefaultSearchLimit, "Maximum number of results")
	cmd.Flags().StringSliceVarP(&types, "type", "t", nil, "Only entities of these types")
	cmd.Flags().Float64Var(&minConfidence, "min-confidence", 0, "Minimum entity confidence")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print JSON")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, opts services.SearchOptions, jsonOut bool) error {
	persona, err := requirePersona()
	if err != nil {
		return err
	}

	return withDeps(cmd.Context(), func(deps *Deps) error {
		result, err := deps.QueryHandler.HandleSearch(cmd.Context(), persona, query, opts)
		if err != nil {
			return err
		}

		writeWarning(cmd.ErrOrStderr(), result.Cause)
		out := cmd.OutOrStdout()

		if jsonOut {
			return writeJSON(out, result.Value)
		}

		if len(result.Value) == 0 {
			fmt.Fprintln(out, "No entities found.")
			return nil
		}

		fmt.Fprintf(out, "Found %d entities:\n\n", len(result.Value))
		for i, hit := range result.Value {
			fmt.Fprintf(out, "%d. [%s] %s  score=%.3f  id=%s\n", i+1, hit.Type, hit.Name, hit.SearchScore, hit.ID)
		}
		return nil
	})
}
