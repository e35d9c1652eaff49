package main

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var (
		limit  int
		offset int
		format string
	)
	cmd := &cobra.Command{
		Use:   "search <kind> [field[__lookup]=value]...",
		Short: "List entities matching filters",
		Long: `List entities of a kind. Filters use the same field__lookup=value
pairs as the HTTP API; repeated filters are combined with AND.

Examples:
  catalog search person name=mozart
  catalog search person start_date__lt=1800-01-01 gender=male
  catalog search place collection=3 --limit 20 -f json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(format); err != nil {
				return err
			}
			values := url.Values{}
			for _, arg := range args[1:] {
				key, value, ok := strings.Cut(arg, "=")
				if !ok {
					return fmt.Errorf("filter %q must be field=value", arg)
				}
				values.Add(key, value)
			}
			if limit > 0 {
				values.Set("limit", strconv.Itoa(limit))
			}
			if offset > 0 {
				values.Set("offset", strconv.Itoa(offset))
			}

			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			kind, err := a.catalog.Registry().Resolve(args[0])
			if err != nil {
				return err
			}
			page, err := a.catalog.Search(cmd.Context(), kind, values)
			if err != nil {
				return err
			}
			return printPage(cmd.OutOrStdout(), page, format)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of results")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of results to skip")
	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "output format (table, json)")
	return cmd
}

func newLookupCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <kind> <id-or-uri>",
		Short: "Print one entity as JSON",
		Long: `Resolve a reference to an entity. A reference made of digits is a
primary key, anything else is one of the entity's URIs.

Examples:
  catalog lookup person 42
  catalog lookup place https://sws.geonames.org/2761369/`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			e, err := a.entity(cmd, args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), e)
		},
	}
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "history <kind> <id-or-uri>",
		Short: "List the revisions of an entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(format); err != nil {
				return err
			}
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			e, err := a.entity(cmd, args[0], args[1])
			if err != nil {
				return err
			}
			revs, err := a.catalog.History(cmd.Context(), e.Kind(), e.Base().ID)
			if err != nil {
				return err
			}
			return printRevisions(cmd.OutOrStdout(), revs, format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "output format (table, json)")
	return cmd
}
