package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ersonp/kgraph/internal/infrastructure/config"
)

func newPersonasCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "personas",
		Short: "Manage personas",
		RunE:  runPersonasList,
	}

	cmd.AddCommand(
		newPersonasListCmd(),
		newPersonasAddCmd(),
		newPersonasRemoveCmd(),
	)

	return cmd
}

func newPersonasListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all personas",
		RunE:  runPersonasList,
	}
}

func runPersonasList(cmd *cobra.Command, _ []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}
	return listPersonas(cmd.OutOrStdout(), cwd)
}

func listPersonas(w io.Writer, basePath string) error {
	personas, err := config.LoadPersonas(basePath)
	if err != nil {
		return fmt.Errorf("loading personas: %w", err)
	}

	if len(personas.Personas) == 0 {
		fmt.Fprintln(w, "No personas configured.")
		fmt.Fprintln(w, "Use 'kgraph personas add NAME' to register a persona.")
		return nil
	}

	fmt.Fprintf(w, "%-20s %-25s %s\n", "NAME", "COLLECTION", "DESCRIPTION")
	fmt.Fprintf(w, "%-20s %-25s %s\n", "----", "----------", "-----------")

	for _, name := range personas.Names() {
		p := personas.Personas[name]
		fmt.Fprintf(w, "%-20s %-25s %s\n", name, p.Collection, p.Description)
	}

	return nil
}

func newPersonasAddCmd() *cobra.Command {
	var (
		description string
		collection  string
	)

	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Register a persona",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("getting current directory: %w", err)
			}
			entry := config.PersonaEntry{Collection: collection, Description: description}
			if err := addPersona(cwd, args[0], entry); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered persona %q\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVarP(&description, "description", "d", "", "Persona description")
	cmd.Flags().StringVar(&collection, "collection", "", "Vector collection (default kgraph_<name>)")

	return cmd
}

func addPersona(basePath, name string, entry config.PersonaEntry) error {
	if !config.ValidPersonaName(name) {
		return fmt.Errorf("invalid persona name %q", name)
	}

	personas, err := config.LoadPersonas(basePath)
	if err != nil {
		return fmt.Errorf("loading personas: %w", err)
	}

	if personas.Exists(name) {
		return fmt.Errorf("persona %q already exists", name)
	}

	personas.Add(name, entry)
	return personas.Save(basePath)
}

func newPersonasRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove NAME",
		Short: "Unregister a persona",
		Long:  "Removes the persona from the registry. Its graph data is kept; use 'kgraph cleanup' or the store's own tools to delete it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("getting current directory: %w", err)
			}
			if err := removePersona(cwd, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed persona %q\n", args[0])
			return nil
		},
	}
}

func removePersona(basePath, name string) error {
	personas, err := config.LoadPersonas(basePath)
	if err != nil {
		return fmt.Errorf("loading personas: %w", err)
	}

	if !personas.Exists(name) {
		return fmt.Errorf("persona %q not found", name)
	}

	personas.Remove(name)
	return personas.Save(basePath)
}
