package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"prosopography/internal/codec"
	"prosopography/internal/service"
)

func newImportCmd(opts *rootOptions) *cobra.Command {
	var strategy string
	cmd := &cobra.Command{
		Use:   "import <file>...",
		Short: "Import fixture files",
		Long: fmt.Sprintf(`Import groups, collections and entities from fixture files.
The format follows the file extension (%s).

With --strategy merge (default) an entity sharing a URI with a stored one
updates it; with --strategy replace every entity is deleted first.

Examples:
  catalog import fixtures/letters.yaml
  catalog import --strategy replace dump.cbor`, strings.Join(codec.Formats, ", ")),
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			for i, path := range args {
				s := strategy
				// replace only before the first file, later files merge into it
				if i > 0 && s == service.StrategyReplace {
					s = service.StrategyMerge
				}
				result, err := a.catalog.ImportFile(cmd.Context(), path, s)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d created, %d updated, %d deleted, %d groups, %d collections\n",
					path, result.EntitiesCreated, result.EntitiesUpdated, result.EntitiesDeleted,
					result.GroupsCreated, result.CollectionsCreated)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&strategy, "strategy", "s", service.StrategyMerge, "import strategy (merge, replace)")
	return cmd
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var (
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the whole catalog as a fixture",
		Long: `Export groups, collections and entities.

Without --format the format follows the --output extension, or YAML when
writing to stdout.

Examples:
  catalog export > catalog.yaml
  catalog export -o dump.cbor
  catalog export --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format == "" {
				format = "yaml"
				if output != "" {
					format = strings.TrimPrefix(filepath.Ext(output), ".")
				}
			}

			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if output == "" {
				return a.catalog.Export(cmd.Context(), cmd.OutOrStdout(), format)
			}
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", output, err)
			}
			if err := a.catalog.Export(cmd.Context(), f, format); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "output format ("+strings.Join(codec.Formats, ", ")+")")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}
