package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ersonp/kgraph/internal/application/handlers"
	"github.com/ersonp/kgraph/internal/domain/services"
)

type ingestFlags struct {
	format    string
	pattern   string
	recursive bool
	verbose   bool
}

func newIngestCmd() *cobra.Command {
	var flags ingestFlags

	cmd := &cobra.Command{
		Use:   "ingest <file|directory>",
		Short: "Consolidate a batch of entities and relationships",
		Long: `Reads a JSON or CSV batch and merges every entity and relationship into the
persona's graph. Entities merge on (persona, name, type); relationships merge on
(persona, source, target, type). Items that fail are reported without stopping the batch.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, args[0], flags)
		},
	}

	cmd.Flags().StringVarP(&flags.format, "format", "f", "", "Input format (json, csv); inferred from extension when empty")
	cmd.Flags().StringVar(&flags.pattern, "pattern", "*", "File pattern when ingesting a directory")
	cmd.Flags().BoolVarP(&flags.recursive, "recursive", "r", false, "Recurse into subdirectories")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "Print every failed item")

	return cmd
}

func runIngest(cmd *cobra.Command, path string, flags ingestFlags) error {
	persona, err := requirePersona()
	if err != nil {
		return err
	}

	return withDeps(cmd.Context(), func(deps *Deps) error {
		if _, err := deps.Personas.Get(persona); err != nil {
			return err
		}

		out := cmd.OutOrStdout()

		if handlers.IsDirectory(path) {
			result, err := deps.IngestHandler.HandleDirectory(cmd.Context(), persona, path, flags.pattern, flags.recursive, func(file string) {
				fmt.Fprintf(out, "Ingesting %s...\n", file)
			})
			if err != nil {
				return fmt.Errorf("ingesting directory: %w", err)
			}
			for _, fr := range result.FileResults {
				if flags.verbose {
					printFailures(out, fr.BatchResult)
				}
			}
			for _, ferr := range result.Errors {
				fmt.Fprintf(out, "  error: %v\n", ferr)
			}
			fmt.Fprintf(out, "Ingested %d files\n", result.TotalFiles)
			printSummary(out, result.Summary)
			return nil
		}

		fmt.Fprintf(out, "Ingesting %s...\n", path)
		result, err := deps.IngestHandler.Handle(cmd.Context(), persona, path, flags.format)
		if err != nil {
			return fmt.Errorf("ingesting file: %w", err)
		}
		if flags.verbose {
			printFailures(out, result.BatchResult)
		}
		printSummary(out, result.Summary)
		return nil
	})
}

func printSummary(w io.Writer, s services.BatchSummary) {
	fmt.Fprintf(w, "Entities:      %d processed, %d failed\n", s.EntitiesProcessed, s.EntitiesFailed)
	fmt.Fprintf(w, "Relationships: %d processed, %d failed\n", s.RelationshipsProcessed, s.RelationshipsFailed)
}

func printFailures(w io.Writer, result *services.BatchResult) {
	for i, e := range result.Entities {
		if e.Status == services.StatusFailed {
			fmt.Fprintf(w, "  entity #%d %q: %s\n", i+1, e.Input.Name, e.Error)
		}
	}
	for i, r := range result.Relationships {
		if r.Status == services.StatusFailed {
			fmt.Fprintf(w, "  relationship #%d %s -[%s]-> %s: %s\n", i+1, r.Input.SourceEntityID, r.Input.Type, r.Input.TargetEntityID, r.Error)
		}
	}
}
