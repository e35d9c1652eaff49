package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"prosopography/internal/domain"
	"prosopography/internal/service"
)

// ============================================================================
// Collections
// ============================================================================

func newCollectionCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "collection",
		Aliases: []string{"c"},
		Short:   "Manage collections and their members",
		Long: `Collections group entities. Every group allowed on a collection holds
the change and delete permissions on its members; adding or removing
members or groups updates those permissions.

Collections and groups are named by id or by name, entities by primary
key or URI.`,
	}
	cmd.AddCommand(
		newCollectionCreateCmd(opts),
		newCollectionListCmd(opts),
		newMembershipCmd(opts, "add", "Add entities to a collection"),
		newMembershipCmd(opts, "remove", "Remove entities from a collection"),
		newCollectionSetCmd(opts),
		newCollectionGroupsCmd(opts, "allow", "Allow groups on a collection"),
		newCollectionGroupsCmd(opts, "disallow", "Disallow groups on a collection"),
	)
	return cmd
}

func newCollectionCreateCmd(opts *rootOptions) *cobra.Command {
	var (
		description string
		groups      []string
	)
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ids, err := resolveGroups(cmd.Context(), a.catalog, groups)
			if err != nil {
				return err
			}
			c, err := a.catalog.CreateCollection(cmd.Context(), args[0], description, ids...)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created collection %d %s\n", c.ID, c.Name)
			return nil
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "collection description")
	cmd.Flags().StringSliceVarP(&groups, "group", "g", nil, "group allowed on the collection (repeatable)")
	return cmd
}

func newCollectionListCmd(opts *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(format); err != nil {
				return err
			}
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			collections, err := a.catalog.ListCollections(cmd.Context())
			if err != nil {
				return err
			}
			names, err := groupNames(cmd.Context(), a.catalog)
			if err != nil {
				return err
			}
			return printCollections(cmd.OutOrStdout(), collections, names, format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "output format (table, json)")
	return cmd
}

func newMembershipCmd(opts *rootOptions, action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <collection> <kind> <id-or-uri>...",
		Short: short,
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			c, err := a.catalog.ResolveCollection(ctx, args[0])
			if err != nil {
				return fmt.Errorf("collection %s: %w", args[0], err)
			}
			for _, ref := range args[2:] {
				e, err := a.entity(cmd, args[1], ref)
				if err != nil {
					return fmt.Errorf("%s %s: %w", args[1], ref, err)
				}
				id := e.Base().ID
				if action == "add" {
					err = a.catalog.AddToCollections(ctx, id, c.ID)
				} else {
					err = a.catalog.RemoveFromCollections(ctx, id, c.ID)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %d (%s) %s\n", action, e.Kind(), id, e, c.Name)
			}
			return nil
		},
	}
}

func newCollectionSetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <kind> <id-or-uri> [collection]...",
		Short: "Replace the collections of an entity",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			e, err := a.entity(cmd, args[0], args[1])
			if err != nil {
				return err
			}
			ids := make([]int64, 0, len(args)-2)
			for _, ref := range args[2:] {
				c, err := a.catalog.ResolveCollection(ctx, ref)
				if err != nil {
					return fmt.Errorf("collection %s: %w", ref, err)
				}
				ids = append(ids, c.ID)
			}
			if err := a.catalog.SetCollections(ctx, e.Base().ID, ids); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d now in %d collections\n", e.Kind(), e.Base().ID, len(ids))
			return nil
		},
	}
}

func newCollectionGroupsCmd(opts *rootOptions, action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <collection> <group>...",
		Short: short,
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			c, err := a.catalog.ResolveCollection(ctx, args[0])
			if err != nil {
				return fmt.Errorf("collection %s: %w", args[0], err)
			}
			ids, err := resolveGroups(ctx, a.catalog, args[1:])
			if err != nil {
				return err
			}
			if action == "allow" {
				err = a.catalog.AllowGroups(ctx, c.ID, ids...)
			} else {
				err = a.catalog.DisallowGroups(ctx, c.ID, ids...)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d groups on %s\n", action, len(ids), c.Name)
			return nil
		},
	}
}

// ============================================================================
// Groups
// ============================================================================

func newGroupCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "group",
		Aliases: []string{"g"},
		Short:   "Manage permission groups",
	}

	create := &cobra.Command{
		Use:   "create <name>...",
		Short: "Create groups",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			for _, name := range args {
				g, err := a.catalog.CreateGroup(cmd.Context(), name)
				if err != nil {
					return fmt.Errorf("group %s: %w", name, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created group %d %s\n", g.ID, g.Name)
			}
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List groups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			groups, err := a.catalog.ListGroups(cmd.Context())
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "ID\tNAME")
			for _, g := range groups {
				fmt.Fprintf(tw, "%d\t%s\n", g.ID, g.Name)
			}
			return tw.Flush()
		},
	}

	cmd.AddCommand(create, list)
	return cmd
}

// ============================================================================
// Permissions
// ============================================================================

func newPermsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "perms",
		Short: "Inspect and repair object permissions",
	}

	var format string
	list := &cobra.Command{
		Use:   "list <kind> <id-or-uri>",
		Short: "List the group permissions held on an entity",
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
			grants, err := a.catalog.Permissions(cmd.Context(), e.Kind(), e.Base().ID)
			if err != nil {
				return err
			}
			names, err := groupNames(cmd.Context(), a.catalog)
			if err != nil {
				return err
			}
			return printGrants(cmd.OutOrStdout(), grants, names, format)
		},
	}
	list.Flags().StringVarP(&format, "format", "f", formatTable, "output format (table, json)")

	check := &cobra.Command{
		Use:   "check <group> <action> <kind> <id-or-uri>",
		Short: "Report whether a group may change or delete an entity",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			g, err := a.catalog.ResolveGroup(ctx, args[0])
			if err != nil {
				return fmt.Errorf("group %s: %w", args[0], err)
			}
			e, err := a.entity(cmd, args[2], args[3])
			if err != nil {
				return err
			}
			ok, err := a.catalog.HasPermission(ctx, g.ID, domain.Action(args[1]), e.Kind(), e.Base().ID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ok)
			return nil
		},
	}

	var dryRun bool
	reconcile := &cobra.Command{
		Use:   "reconcile",
		Short: "Make permissions match collection membership",
		Long: `Recompute the change and delete permissions of every entity from the
groups allowed on its collections, granting what is missing and revoking
what no collection justifies.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			r := service.NewReconcileService(a.repo, a.catalog.Registry(), a.bus, a.log)
			report, err := r.ReconcilePermissions(cmd.Context(), dryRun)
			if err != nil {
				return err
			}
			verb := "fixed"
			if dryRun {
				verb = "would fix"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d entities checked, %s %d: %d granted, %d revoked\n",
				report.Entities, verb, report.Changed, len(report.Granted), len(report.Revoked))
			return nil
		},
	}
	reconcile.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "report without changing anything")

	cmd.AddCommand(list, check, reconcile)
	return cmd
}

func resolveGroups(ctx context.Context, svc *service.CatalogService, refs []string) ([]int64, error) {
	ids := make([]int64, 0, len(refs))
	for _, ref := range refs {
		g, err := svc.ResolveGroup(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("group %s: %w", ref, err)
		}
		ids = append(ids, g.ID)
	}
	return ids, nil
}

func groupNames(ctx context.Context, svc *service.CatalogService) (map[int64]string, error) {
	groups, err := svc.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(groups))
	for _, g := range groups {
		names[g.ID] = g.Name
	}
	return names, nil
}
