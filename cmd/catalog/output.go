package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"prosopography/internal/domain"
	"prosopography/internal/service"
)

// Output formats
const (
	formatTable = "table"
	formatJSON  = "json"
)

func validateFormat(format string) error {
	switch format {
	case formatTable, formatJSON:
		return nil
	}
	return fmt.Errorf("invalid format %q, must be %s or %s", format, formatTable, formatJSON)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func printPage(w io.Writer, page *service.Page, format string) error {
	if format == formatJSON {
		return printJSON(w, page)
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tNAME\tSTART\tEND\tURIS")
	for _, e := range page.Items {
		base := e.Base()
		uris := make([]string, 0, len(base.URIs))
		for _, u := range base.URIs {
			uris = append(uris, u.URI)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			base.ID, e.String(), domain.DatePtrString(base.StartDate), domain.DatePtrString(base.EndDate), strings.Join(uris, " "))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "%d of %d %s\n", len(page.Items), page.Total, page.Kind)
	return nil
}

func printRevisions(w io.Writer, revs []domain.Revision, format string) error {
	if format == formatJSON {
		return printJSON(w, revs)
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "VERSION\tDIGEST\tCREATED")
	for _, r := range revs {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", r.Version, shortDigest(r.Digest), r.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}

func printGrants(w io.Writer, grants []domain.Grant, groups map[int64]string, format string) error {
	if format == formatJSON {
		return printJSON(w, grants)
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "GROUP\tCODENAME")
	for _, g := range grants {
		fmt.Fprintf(tw, "%s\t%s\n", groupName(groups, g.GroupID), g.Codename)
	}
	return tw.Flush()
}

func printCollections(w io.Writer, collections []domain.Collection, groups map[int64]string, format string) error {
	if format == formatJSON {
		return printJSON(w, collections)
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tNAME\tGROUPS\tDESCRIPTION")
	for _, c := range collections {
		names := make([]string, 0, len(c.GroupIDs))
		for _, id := range c.GroupIDs {
			names = append(names, groupName(groups, id))
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", c.ID, c.Name, strings.Join(names, ","), c.Description)
	}
	return tw.Flush()
}

func groupName(groups map[int64]string, id int64) string {
	if name, ok := groups[id]; ok {
		return name
	}
	return fmt.Sprintf("#%d", id)
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
